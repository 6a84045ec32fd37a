package actor

import (
	"context"

	"github.com/FairForge/orca/internal/state"
	"github.com/FairForge/orca/internal/transition"
)

var basicScript = []transition.Action{
	transition.Login,
	transition.ReadProperty,
	transition.WriteProperty,
	transition.ReadProperty,
	transition.WriteProperty,
	transition.Logout,
}

// Basic repeats a fixed session: log in, read and write the person's own
// entry twice, log out. It ignores results.
type Basic struct {
	pos int
}

// NewBasic creates a Basic actor positioned at the start of its script.
func NewBasic() *Basic {
	return &Basic{}
}

// Next returns the next scripted transition.
func (b *Basic) Next() transition.Transition {
	a := basicScript[b.pos]
	b.pos = (b.pos + 1) % len(basicScript)
	return transition.Transition{Action: a}
}

// Transition executes the next scripted action.
func (b *Basic) Transition(ctx context.Context, exec *transition.Executor, person *state.Person) (transition.Outcome, error) {
	t := b.Next()
	res, rec, err := exec.Execute(ctx, t.Action, person)
	if err != nil {
		return transition.Outcome{}, err
	}
	return transition.Outcome{Transition: t, Result: res, Record: rec}, nil
}
