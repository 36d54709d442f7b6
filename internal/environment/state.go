package environment

// State is the lifecycle state of an environment.
type State int

const (
	StateClosed State = iota
	StateLaunching
	StateAwaitingInitialMetrics
	StateReady
	StateStepping
	StateTerminated
	StateTruncated
)

var stateNames = [...]string{
	StateClosed:                 "closed",
	StateLaunching:              "launching",
	StateAwaitingInitialMetrics: "awaiting_initial_metrics",
	StateReady:                  "ready",
	StateStepping:               "stepping",
	StateTerminated:             "terminated",
	StateTruncated:              "truncated",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// Terminal reports whether the run has ended.
func (s State) Terminal() bool {
	return s == StateTerminated || s == StateTruncated
}
