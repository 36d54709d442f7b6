package simulator

import (
	"path/filepath"
	"runtime"
	"strings"
)

// LibraryPath returns the dynamic linker search path for the simulator's
// build output. Older trees keep the libraries in build/, newer ones in
// build/lib, so both are listed.
func LibraryPath(ns3Path string, optimized bool) string {
	buildDir := filepath.Join(ns3Path, "build")
	if optimized {
		buildDir = filepath.Join(buildDir, "optimized")
	}
	return strings.Join([]string{buildDir, filepath.Join(buildDir, "lib")}, string(filepath.ListSeparator))
}

// LinkerEnv returns the environment variable pointing the host's dynamic
// linker at the simulator libraries.
func LinkerEnv(ns3Path string, optimized bool) map[string]string {
	key := "LD_LIBRARY_PATH"
	if runtime.GOOS == "darwin" {
		key = "DYLD_LIBRARY_PATH"
	}
	return map[string]string{key: LibraryPath(ns3Path, optimized)}
}
