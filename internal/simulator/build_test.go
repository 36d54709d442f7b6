package simulator_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spachava753/nsoran/internal/models"
	"github.com/spachava753/nsoran/internal/simulator"
)

// fakeTree creates a simulator tree whose ns3 driver records its arguments.
func fakeTree(t *testing.T, driver string) string {
	t.Helper()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "ns3"), []byte(driver), 0755))
	return dir
}

func TestBuildConfiguresAndCompiles(t *testing.T) {
	dir := fakeTree(t, "echo \"$@\" >> calls.log\n")

	b := simulator.NewBuilder(dir, true, false)
	b.Interpreter = "/bin/sh"
	b.Jobs = 4

	require.NoError(t, b.Build(context.Background()))

	data, err := os.ReadFile(filepath.Join(dir, "calls.log"))
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "configure --enable-examples --disable-gtk --disable-werror --build-profile=optimized --out=build/optimized", lines[0])
	assert.Equal(t, "-j 4 build", lines[1])
}

func TestBuildSkipConfiguration(t *testing.T) {
	dir := fakeTree(t, "echo \"$@\" >> calls.log\n")

	b := simulator.NewBuilder(dir, false, true)
	b.Interpreter = "/bin/sh"
	b.Jobs = 1

	require.NoError(t, b.Build(context.Background()))

	data, err := os.ReadFile(filepath.Join(dir, "calls.log"))
	require.NoError(t, err)
	assert.Equal(t, "-j 1 build\n", string(data))
}

func TestBuildFailure(t *testing.T) {
	dir := fakeTree(t, "echo 'missing dependency' >&2\nexit 1\n")

	b := simulator.NewBuilder(dir, false, false)
	b.Interpreter = "/bin/sh"

	err := b.Build(context.Background())
	require.ErrorIs(t, err, models.ErrBuildFailure)
	assert.Contains(t, err.Error(), "configure")
	assert.Contains(t, err.Error(), "missing dependency")
}

func TestBuildProgram(t *testing.T) {
	assert.Equal(t, simulator.WafProgram, simulator.BuildProgram(t.TempDir()))
	assert.Equal(t, simulator.DriverProgram, simulator.BuildProgram(fakeTree(t, "")))
}
