package simulator_test

import (
	"path/filepath"
	"runtime"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"

	"github.com/spachava753/nsoran/internal/simulator"
)

var reproParams = map[string]string{"ues": "3", "simTime": "1.5"}

func TestCommand(t *testing.T) {
	got := simulator.Command("/ns3/build/scratch/scenario-one", map[string]string{"b": "2", "a": "1", "c": "x y"})
	assert.Equal(t, []string{"/ns3/build/scratch/scenario-one", "--a=1", "--b=2", "--c=x y"}, got)

	assert.Equal(t, []string{"/bin/sim"}, simulator.Command("/bin/sim", nil))
}

func TestReproCommand(t *testing.T) {
	g := goldie.New(t)

	g.Assert(t, "repro_command", []byte(simulator.ReproCommand(simulator.DriverProgram, "scenario-one", reproParams, false)))
	g.Assert(t, "repro_command_debug", []byte(simulator.ReproCommand(simulator.DriverProgram, "scenario-one", reproParams, true)))
	g.Assert(t, "repro_command_waf", []byte(simulator.ReproCommand(simulator.WafProgram, "scenario-one", reproParams, false)))
}

func TestReproCommandNoParams(t *testing.T) {
	assert.Equal(t, `python3 ./ns3 run "scenario-one"`, simulator.ReproCommand(simulator.DriverProgram, "scenario-one", nil, false))
	assert.Equal(t, `python3 ./ns3 run scenario-one --command-template="gdb --args %s"`, simulator.ReproCommand(simulator.DriverProgram, "scenario-one", nil, true))
}

func TestLibraryPath(t *testing.T) {
	sep := string(filepath.ListSeparator)

	assert.Equal(t, "/ns3/build/optimized"+sep+"/ns3/build/optimized/lib", simulator.LibraryPath("/ns3", true))
	assert.Equal(t, "/ns3/build"+sep+"/ns3/build/lib", simulator.LibraryPath("/ns3", false))

	env := simulator.LinkerEnv("/ns3", false)
	assert.Len(t, env, 1)
	if runtime.GOOS == "darwin" {
		assert.Contains(t, env, "DYLD_LIBRARY_PATH")
	} else {
		assert.Contains(t, env, "LD_LIBRARY_PATH")
	}
}
