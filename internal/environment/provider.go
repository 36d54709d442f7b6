package environment

import (
	"context"

	"github.com/spachava753/nsoran/internal/ingest"
	"github.com/spachava753/nsoran/internal/models"
	"github.com/spachava753/nsoran/internal/store"
)

// Environment is a step-able simulation episode.
type Environment interface {
	// RunID returns the identifier of the open run, or "" when closed.
	RunID() string

	// Reset launches a new run and returns its initial observation.
	Reset(ctx context.Context) (models.Observation, models.Info, error)

	// Step applies an action and returns what the simulator produced in
	// response.
	Step(ctx context.Context, a models.Action) (models.StepResult, error)

	// Close terminates the open run, if any. It is safe to call repeatedly.
	Close() error
}

// ControlSchema describes where and how control actions are written.
type ControlSchema struct {
	ControlFile string   // read by the simulator after control-ready
	ActionLog   string   // every action issued, for auditing
	Header      []string // first column is the action timestamp
}

// UseCase supplies the deployment specific parts of an environment.
type UseCase interface {
	ingest.Extension

	// Schema returns the control file layout of the use case.
	Schema() ControlSchema

	// ComputeAction encodes an agent action into per-target tuples.
	ComputeAction(a models.Action) ([]models.Target, error)

	// Observe builds the observation from the records at or after since.
	Observe(ctx context.Context, r store.Reader, since int64) (models.Observation, error)

	// Reward scores the records at or after since.
	Reward(ctx context.Context, r store.Reader, since int64) (float64, error)
}

// Provider is a factory for environments.
type Provider interface {
	// Name returns the use case the provider builds environments for.
	Name() string

	// CreateEnvironment returns a new, closed environment.
	CreateEnvironment(ctx context.Context) (Environment, error)
}
