package registry

// Program is a runnable program exposed by the simulator build system.
type Program struct {
	Name string // as listed by the build system
	Path string // absolute path to the executable
}

// buildStatus describes where the build system left its program listing.
type buildStatus struct {
	Path  string
	CMake bool // ns-3.36+ with the ns3 driver script
}
