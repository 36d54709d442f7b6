package registry

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
)

var (
	programsListRe = regexp.MustCompile(`(?ms)^ns3_runnable_programs\s*=\s*\[(.*?)\]`)
	quotedRe       = regexp.MustCompile(`'([^']*)'|"([^"]*)"`)
)

// LoadRunnablePrograms reads the simulator's build status file and returns
// the runnable programs in the order the build system listed them.
func LoadRunnablePrograms(ns3Path string, optimized bool) ([]Program, error) {
	status := locateBuildStatus(ns3Path, optimized)

	data, err := os.ReadFile(status.Path)
	if err != nil {
		return nil, fmt.Errorf("reading build status: %w", err)
	}

	names, err := ParseRunnablePrograms(data)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", status.Path, err)
	}

	programs := make([]Program, 0, len(names))
	for _, name := range names {
		path := name
		if !filepath.IsAbs(path) {
			path = filepath.Join(ns3Path, name)
		}
		abs, err := filepath.Abs(path)
		if err != nil {
			return nil, fmt.Errorf("getting absolute path for %s: %w", name, err)
		}
		programs = append(programs, Program{Name: name, Path: abs})
	}

	return programs, nil
}

// ParseRunnablePrograms extracts the ns3_runnable_programs list from the
// contents of a build status file.
func ParseRunnablePrograms(data []byte) ([]string, error) {
	m := programsListRe.FindSubmatch(data)
	if m == nil {
		return nil, fmt.Errorf("ns3_runnable_programs not found")
	}

	var names []string
	for _, q := range quotedRe.FindAllSubmatch(m[1], -1) {
		if len(q[1]) > 0 {
			names = append(names, string(q[1]))
		} else if len(q[2]) > 0 {
			names = append(names, string(q[2]))
		}
	}
	return names, nil
}

// HasDriverScript reports whether ns3Path uses the CMake-era ns3 driver
// instead of waf.
func HasDriverScript(ns3Path string) bool {
	_, err := os.Stat(filepath.Join(ns3Path, "ns3"))
	return err == nil
}

func locateBuildStatus(ns3Path string, optimized bool) buildStatus {
	if HasDriverScript(ns3Path) {
		// The status file name is platform dependent since ns-3.36.
		name := fmt.Sprintf(".lock-ns3_%s_build", runtime.GOOS)
		return buildStatus{Path: filepath.Join(ns3Path, name), CMake: true}
	}

	if optimized {
		return buildStatus{Path: filepath.Join(ns3Path, "build", "optimized", "build-status.py")}
	}
	return buildStatus{Path: filepath.Join(ns3Path, "build", "build-status.py")}
}
