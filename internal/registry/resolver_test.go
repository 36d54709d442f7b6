package registry_test

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spachava753/nsoran/internal/models"
	"github.com/spachava753/nsoran/internal/registry"
)

func programs(names ...string) []registry.Program {
	out := make([]registry.Program, 0, len(names))
	for _, n := range names {
		out = append(out, registry.Program{Name: n, Path: "/ns3/" + n})
	}
	return out
}

func TestResolve(t *testing.T) {
	tests := []struct {
		name     string
		scenario string
		programs []registry.Program
		want     string
	}{
		{
			name:     "exact match wins over longer names",
			scenario: "scenario-one",
			programs: programs("build/scratch/scenario-one-extended", "build/scratch/scenario-one"),
			want:     "build/scratch/scenario-one",
		},
		{
			name:     "closest length among substring matches",
			scenario: "scenario",
			programs: programs("build/scratch/ns3.38-scenario-three-optimized", "build/scratch/ns3.38-scenario-optimized"),
			want:     "build/scratch/ns3.38-scenario-optimized",
		},
		{
			name:     "tie goes to first listed",
			scenario: "es",
			programs: programs("aes", "esx"),
			want:     "aes",
		},
		{
			name:     "non matching programs ignored",
			scenario: "lte",
			programs: programs("wifi-simple", "lte-sim", "mmwave"),
			want:     "lte-sim",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := registry.Resolve(tt.scenario, tt.programs)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.Name)
			assert.Equal(t, "/ns3/"+tt.want, got.Path)
		})
	}
}

func TestResolveDeterministic(t *testing.T) {
	progs := programs("scenario-a-1", "scenario-b-1", "scenario-c-22")

	first, err := registry.Resolve("scenario", progs)
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		got, err := registry.Resolve("scenario", progs)
		require.NoError(t, err)
		assert.Equal(t, first, got)
	}
	assert.Equal(t, "scenario-a-1", first.Name)
}

func TestResolveNoMatch(t *testing.T) {
	_, err := registry.Resolve("missing", programs("scenario-one", "scenario-two"))
	require.ErrorIs(t, err, models.ErrScriptResolution)

	_, err = registry.Resolve("", programs("scenario-one"))
	require.ErrorIs(t, err, models.ErrScriptResolution)
}

func TestCandidatesScore(t *testing.T) {
	matches := registry.Candidates("abc", programs("abcdef", "xyz", "abc"))
	require.Len(t, matches, 2)
	assert.InDelta(t, 0.5, matches[0].Score, 1e-9)
	assert.InDelta(t, 1.0, matches[1].Score, 1e-9)
}

func TestResolveExecutableCMake(t *testing.T) {
	ns3 := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(ns3, "ns3"), []byte("#!/usr/bin/env python3\n"), 0755))

	status := `build_profile = 'optimized'
ns3_runnable_programs = ['build/scratch/ns3.38-scenario-one-optimized',
 'build/scratch/ns3.38-scenario-one-extended-optimized']
ns3_runnable_scripts = ['first.py']
`
	statusFile := filepath.Join(ns3, ".lock-ns3_"+runtime.GOOS+"_build")
	require.NoError(t, os.WriteFile(statusFile, []byte(status), 0644))

	path, err := registry.ResolveExecutable(ns3, "scenario-one", true)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(ns3, "build/scratch/ns3.38-scenario-one-optimized"), path)
}

func TestResolveExecutableWafScratch(t *testing.T) {
	ns3 := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(ns3, "build", "optimized"), 0755))

	status := `#! /usr/bin/env python3
ns3_runnable_programs = ["build/optimized/scratch/scenario-zero/scenario-zero"]
`
	require.NoError(t, os.WriteFile(filepath.Join(ns3, "build", "optimized", "build-status.py"), []byte(status), 0644))

	path, err := registry.ResolveExecutable(ns3, "scenario-zero", true)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(ns3, "build", "optimized", "scratch", "scenario-zero", "scenario-zero"), path)
}

func TestResolveExecutableMissingStatus(t *testing.T) {
	_, err := registry.ResolveExecutable(t.TempDir(), "scenario-one", false)
	require.ErrorIs(t, err, models.ErrScriptResolution)
}
