package models

import "time"

// Run represents one execution of the simulator, from launch to teardown.
type Run struct {
	ID         string            `json:"id"`
	Dir        string            `json:"dir"`     // per-run working directory
	Command    []string          `json:"command"` // executable followed by --key=value flags
	Params     map[string]string `json:"params"`
	StartedAt  time.Time         `json:"started_at"`
	ElapsedSec *float64          `json:"elapsed_sec"` // nil while the child is running
	ExitCode   *int              `json:"exit_code"`   // nil while the child is running
	Terminated bool              `json:"terminated"`
	Truncated  bool              `json:"truncated"`
}

// Finished reports whether the child exit status has been recorded.
func (r *Run) Finished() bool {
	return r.ExitCode != nil
}

// Diagnostics is attached to the step that observed an abnormal child exit.
type Diagnostics struct {
	ExitCode     int       `json:"exit_code"`
	Error        string    `json:"error,omitempty"`      // set when the episode ended on an internal failure
	ErrorType    ErrorType `json:"error_type,omitempty"` // category of Error
	Stdout       string    `json:"stdout"`
	Stderr       string    `json:"stderr"`
	Command      string    `json:"command"`       // reproduce the run
	DebugCommand string    `json:"debug_command"` // reproduce the run under gdb
}

// Info is the auxiliary payload returned by reset and step.
type Info struct {
	IsOpen      bool         `json:"is_open"`
	Run         *Run         `json:"run,omitempty"`
	Diagnostics *Diagnostics `json:"diagnostics,omitempty"`
}
