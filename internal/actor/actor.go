// Package actor turns the behavior models stored in a simulation state into
// live actors.
package actor

import (
	"errors"
	"fmt"

	"github.com/FairForge/orca/internal/state"
	"github.com/FairForge/orca/internal/transition"
)

// ErrActorConstruction is returned when a model's parameters are invalid.
var ErrActorConstruction = errors.New("actor: invalid model parameters")

// New builds the actor described by m. It has no side effects beyond
// validating m and seeding the actor's generator.
func New(m state.Model) (transition.Actor, error) {
	switch m.Kind() {
	case state.ModelBasic:
		return NewBasic(), nil
	case state.ModelMarkov:
		if m.Markov == nil {
			return nil, fmt.Errorf("%w: markov model without parameters", ErrActorConstruction)
		}
		return NewMarkov(*m.Markov)
	}
	return nil, fmt.Errorf("%w: unknown model type %q", ErrActorConstruction, m.Type)
}

// BuildAll builds one actor per person, in order. It fails on the first
// invalid model so a run never starts with a partial population.
func BuildAll(st *state.State) ([]transition.Actor, error) {
	actors := make([]transition.Actor, len(st.Persons))
	for i := range st.Persons {
		a, err := New(st.Persons[i].Model)
		if err != nil {
			return nil, fmt.Errorf("person %q: %w", st.Persons[i].Username, err)
		}
		actors[i] = a
	}
	return actors, nil
}
