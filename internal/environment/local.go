package environment

import (
	"context"
	"fmt"
)

// UseCaseFactory creates a fresh use case for one environment.
type UseCaseFactory func() (UseCase, error)

// LocalProvider creates environments that run the simulator on this host.
type LocalProvider struct {
	name       string
	opts       Options
	newUseCase UseCaseFactory
}

var _ Provider = (*LocalProvider)(nil)

// NewLocalProvider creates a provider for the named use case.
func NewLocalProvider(name string, opts Options, newUseCase UseCaseFactory) *LocalProvider {
	return &LocalProvider{name: name, opts: opts, newUseCase: newUseCase}
}

func (p *LocalProvider) Name() string {
	return p.name
}

// CreateEnvironment returns a new closed environment with its own use case.
func (p *LocalProvider) CreateEnvironment(ctx context.Context) (Environment, error) {
	uc, err := p.newUseCase()
	if err != nil {
		return nil, fmt.Errorf("creating %s use case: %w", p.name, err)
	}
	return NewSimEnv(p.opts, uc)
}
