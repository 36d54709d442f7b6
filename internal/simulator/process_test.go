package simulator_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spachava753/nsoran/internal/models"
	"github.com/spachava753/nsoran/internal/simulator"
)

// writeScript creates an executable shell script and a run directory.
func writeScript(t *testing.T, body string) (string, *models.Run) {
	t.Helper()

	root := t.TempDir()
	script := filepath.Join(root, "sim.sh")
	require.NoError(t, os.WriteFile(script, []byte("#!/bin/sh\n"+body), 0755))

	dir := filepath.Join(root, "run")
	require.NoError(t, os.MkdirAll(dir, 0755))

	return script, &models.Run{ID: "test-run", Dir: dir}
}

func waitExit(t *testing.T, p *simulator.Process) {
	t.Helper()

	deadline := time.Now().Add(10 * time.Second)
	for p.IsAlive() {
		if time.Now().After(deadline) {
			t.Fatal("child did not exit")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestLaunchCapturesOutputAndExitCode(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping process test in short mode")
	}

	script, run := writeScript(t, "echo \"hello $1 $2\"\necho oops >&2\nexit 3\n")

	p, err := simulator.Launch(run, simulator.LaunchOptions{
		Executable: script,
		Params:     map[string]string{"ues": "3", "simTime": "1"},
	})
	require.NoError(t, err)
	defer p.Kill()

	assert.Equal(t, []string{script, "--simTime=1", "--ues=3"}, run.Command)
	assert.False(t, run.StartedAt.IsZero())

	waitExit(t, p)

	code, ok := p.ExitCode()
	require.True(t, ok)
	assert.Equal(t, 3, code)
	require.NotNil(t, run.ExitCode)
	assert.Equal(t, 3, *run.ExitCode)
	require.NotNil(t, run.ElapsedSec)

	assert.Contains(t, p.Stdout(), "hello --simTime=1 --ues=3")
	assert.Contains(t, p.Stderr(), "oops")
}

func TestIsAliveRecordsExitOnce(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping process test in short mode")
	}

	script, run := writeScript(t, "exit 0\n")

	p, err := simulator.Launch(run, simulator.LaunchOptions{Executable: script})
	require.NoError(t, err)
	defer p.Kill()

	waitExit(t, p)
	first := run.ElapsedSec
	require.NotNil(t, first)

	for i := 0; i < 3; i++ {
		assert.False(t, p.IsAlive())
	}
	assert.Same(t, first, run.ElapsedSec)
	assert.Equal(t, 0, *run.ExitCode)
}

func TestKillRunningChild(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping process test in short mode")
	}

	script, run := writeScript(t, "sleep 30\n")

	p, err := simulator.Launch(run, simulator.LaunchOptions{Executable: script})
	require.NoError(t, err)
	assert.True(t, p.IsAlive())

	start := time.Now()
	require.NoError(t, p.Kill())
	assert.Less(t, time.Since(start), killWait)

	assert.False(t, p.IsAlive())
	code, ok := p.ExitCode()
	require.True(t, ok)
	assert.NotEqual(t, 0, code)

	// Killing an already dead child is not an error.
	require.NoError(t, p.Kill())
}

func TestOutputIsCumulative(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping process test in short mode")
	}

	script, run := writeScript(t, "echo first\nsleep 0.3\necho second\n")

	p, err := simulator.Launch(run, simulator.LaunchOptions{Executable: script})
	require.NoError(t, err)
	defer p.Kill()

	waitExit(t, p)

	out := p.Stdout()
	assert.True(t, strings.Index(out, "first") < strings.Index(out, "second"), "stdout = %q", out)
}

func TestLaunchEnvironment(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping process test in short mode")
	}

	script, run := writeScript(t, "echo \"lib=$NSORAN_TEST_LIB\"\npwd\n")

	p, err := simulator.Launch(run, simulator.LaunchOptions{
		Executable: script,
		Env:        map[string]string{"NSORAN_TEST_LIB": "/ns3/build/lib"},
	})
	require.NoError(t, err)
	defer p.Kill()

	waitExit(t, p)

	out := p.Stdout()
	assert.Contains(t, out, "lib=/ns3/build/lib")
	assert.Contains(t, out, filepath.Base(run.Dir))
}

func TestLaunchFailures(t *testing.T) {
	run := &models.Run{ID: "r", Dir: t.TempDir()}

	_, err := simulator.Launch(run, simulator.LaunchOptions{})
	require.ErrorIs(t, err, models.ErrLaunchFailure)

	_, err = simulator.Launch(run, simulator.LaunchOptions{Executable: filepath.Join(run.Dir, "does-not-exist")})
	require.ErrorIs(t, err, models.ErrLaunchFailure)

	missing := &models.Run{ID: "r", Dir: filepath.Join(run.Dir, "missing")}
	_, err = simulator.Launch(missing, simulator.LaunchOptions{Executable: "/bin/true"})
	require.ErrorIs(t, err, models.ErrLaunchFailure)
}
