package transition

import (
	"context"
	"time"

	"github.com/FairForge/orca/internal/events"
	"github.com/FairForge/orca/internal/state"
)

// Transition is the next action an actor takes, with an optional pause
// before it.
type Transition struct {
	Action   Action
	Delay    time.Duration
	HasDelay bool
}

// DelayOrZero returns the pause before the action.
func (t Transition) DelayOrZero() time.Duration {
	if !t.HasDelay {
		return 0
	}
	return t.Delay
}

// Result classifies an executed transition.
type Result string

const (
	ResultOK    Result = "ok"
	ResultError Result = "error"
)

// Outcome is what one step of an actor produced.
type Outcome struct {
	Transition Transition
	Result     Result
	Record     events.Record
}

// Actor decides what a simulated person does next and does it.
//
// Transition returns an error only for internal failures; a failed directory
// call is reported through Outcome.Result. Implementations are owned by one
// goroutine and are not safe for concurrent use.
type Actor interface {
	Transition(ctx context.Context, exec *Executor, person *state.Person) (Outcome, error)
}
