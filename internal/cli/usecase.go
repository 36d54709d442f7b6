package cli

import (
	"fmt"

	"github.com/spachava753/nsoran/internal/action"
	"github.com/spachava753/nsoran/internal/config"
	"github.com/spachava753/nsoran/internal/environment"
	"github.com/spachava753/nsoran/internal/models"
	"github.com/spachava753/nsoran/internal/usecase/powersaving"
)

// actionSpacer is implemented by use cases whose actions are flat indices.
type actionSpacer interface {
	ActionSpace() action.Mapper
}

// useCaseFactory returns the factory for the configured use case.
func useCaseFactory(cfg config.EnvConfig) (environment.UseCaseFactory, error) {
	switch cfg.UseCase {
	case powersaving.Name:
		return func() (environment.UseCase, error) {
			return powersaving.New(cfg.PowerSaving), nil
		}, nil
	default:
		return nil, fmt.Errorf("%w: unknown use case %q", models.ErrConfiguration, cfg.UseCase)
	}
}

// actionSpace returns the action space the default policy samples from.
func actionSpace(newUseCase environment.UseCaseFactory) (action.Mapper, error) {
	uc, err := newUseCase()
	if err != nil {
		return action.Mapper{}, err
	}
	s, ok := uc.(actionSpacer)
	if !ok {
		return action.Mapper{}, fmt.Errorf("%w: use case has no flat action space", models.ErrConfiguration)
	}
	return s.ActionSpace(), nil
}
