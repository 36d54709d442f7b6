package simulator

import (
	"fmt"
	"sort"
	"strings"
)

// Command builds the child argument vector: the executable followed by one
// --key=value flag per parameter, sorted by key.
func Command(executable string, params map[string]string) []string {
	return append([]string{executable}, Flags(params)...)
}

// Flags renders params as sorted --key=value flags.
func Flags(params map[string]string) []string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	flags := make([]string, 0, len(keys))
	for _, k := range keys {
		flags = append(flags, fmt.Sprintf("--%s=%s", k, params[k]))
	}
	return flags
}

// ReproCommand returns a shell command that reruns the scenario through the
// simulator's own driver. With debug set the run is wrapped in gdb.
func ReproCommand(buildProgram, scenario string, params map[string]string, debug bool) string {
	flags := strings.Join(Flags(params), " ")
	target := scenario
	if flags != "" {
		target = scenario + " " + flags
	}

	runFlag := "run"
	if buildProgram == WafProgram {
		runFlag = "--run"
	}

	if !debug {
		return fmt.Sprintf("python3 %s %s \"%s\"", buildProgram, runFlag, target)
	}

	template := "gdb --args %s"
	if flags != "" {
		template += " " + flags
	}
	return fmt.Sprintf("python3 %s %s %s --command-template=\"%s\"", buildProgram, runFlag, scenario, template)
}
