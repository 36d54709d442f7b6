package models

import "errors"

// ErrorType identifies the category of error that occurred.
type ErrorType string

const (
	// Setup phase
	ErrTypeConfiguration    ErrorType = "configuration_error"
	ErrTypeBuildFailed      ErrorType = "build_failed"
	ErrTypeScriptResolution ErrorType = "script_resolution_failed"
	ErrTypeLaunchFailed     ErrorType = "launch_failed"

	// Episode phase
	ErrTypeSimulationFailed ErrorType = "simulation_failed"
	ErrTypeIngestFailed     ErrorType = "ingest_failed"
	ErrTypeActionFailed     ErrorType = "action_failed"

	// Caller misuse
	ErrTypeDoubleOpen ErrorType = "double_open"

	// Catch-all
	ErrTypeInternal ErrorType = "internal_error"
)

var (
	// ErrConfiguration reports a missing or invalid required setting. It is
	// raised by reset before any process is spawned.
	ErrConfiguration = errors.New("configuration error")

	// ErrBuildFailure reports that the simulator configure or compile step failed.
	ErrBuildFailure = errors.New("build failure")

	// ErrLaunchFailure reports that the simulator child process could not be started.
	ErrLaunchFailure = errors.New("launch failure")

	// ErrScriptResolution reports that no runnable program matched the scenario name.
	ErrScriptResolution = errors.New("script resolution failure")

	// ErrIngestFailure reports that the metric files of a run could not be
	// loaded into its store.
	ErrIngestFailure = errors.New("ingest failure")

	// ErrSynchronizationTimeout is returned by a bounded semaphore wait whose
	// deadline elapsed. It drives the liveness retry loop and never reaches
	// callers of the environment.
	ErrSynchronizationTimeout = errors.New("synchronization timeout")

	// ErrDoubleOpen reports a reset while a run is already open.
	ErrDoubleOpen = errors.New("environment already open")

	// ErrNotReady reports a step on an environment that has no open run.
	ErrNotReady = errors.New("environment not ready")

	// ErrIndexOutOfRange reports an action index outside the mapper's domain.
	ErrIndexOutOfRange = errors.New("index out of range")
)

// Classify maps an error to its ErrorType using the sentinel errors above.
func Classify(err error) ErrorType {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrConfiguration):
		return ErrTypeConfiguration
	case errors.Is(err, ErrBuildFailure):
		return ErrTypeBuildFailed
	case errors.Is(err, ErrScriptResolution):
		return ErrTypeScriptResolution
	case errors.Is(err, ErrLaunchFailure):
		return ErrTypeLaunchFailed
	case errors.Is(err, ErrIngestFailure):
		return ErrTypeIngestFailed
	case errors.Is(err, ErrDoubleOpen):
		return ErrTypeDoubleOpen
	default:
		return ErrTypeInternal
	}
}
