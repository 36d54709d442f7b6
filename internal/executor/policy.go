package executor

import (
	"math/rand/v2"

	"github.com/spachava753/nsoran/internal/action"
	"github.com/spachava753/nsoran/internal/models"
)

// Policy decides the next action from the latest observation.
type Policy interface {
	Act(obs models.Observation) (models.Action, error)
}

// NewPolicyFunc creates the policy for one episode from its seed.
type NewPolicyFunc func(seed uint64) Policy

// RandomPolicy samples flat action indices uniformly from an action space.
type RandomPolicy struct {
	rng   *rand.Rand
	space action.Mapper
}

// NewRandomPolicy returns a policy whose choices are fully determined by seed.
func NewRandomPolicy(space action.Mapper, seed uint64) *RandomPolicy {
	return &RandomPolicy{
		rng:   rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		space: space,
	}
}

// RandomPolicyFunc binds an action space for use as a NewPolicyFunc.
func RandomPolicyFunc(space action.Mapper) NewPolicyFunc {
	return func(seed uint64) Policy {
		return NewRandomPolicy(space, seed)
	}
}

func (p *RandomPolicy) Act(models.Observation) (models.Action, error) {
	v, err := p.space.IndexToValue(p.rng.IntN(p.space.Len()))
	if err != nil {
		return nil, err
	}
	return models.Action{v}, nil
}
