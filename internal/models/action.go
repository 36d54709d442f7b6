package models

// Action is the raw decision produced by an agent for one step.
type Action []int

// Target is one per-target feature tuple of a control action, excluding the
// timestamp. Its length matches the control header minus the timestamp column.
type Target []int64

// ControlAction is what the simulator receives for the current turn.
type ControlAction struct {
	Timestamp int64
	Targets   []Target
}

// StepResult is returned by every environment step.
type StepResult struct {
	Observation Observation `json:"observation"`
	Reward      float64     `json:"reward"`
	Terminated  bool        `json:"terminated"`
	Truncated   bool        `json:"truncated"`
	Info        Info        `json:"info"`
}

// Done reports whether the episode has ended.
func (r StepResult) Done() bool {
	return r.Terminated || r.Truncated
}
