// Package transition defines the actions an actor can take against the
// directory and the executors that carry them out.
package transition

import (
	"errors"
	"fmt"
	"iter"
)

// ErrInvalidOrdinal is returned when an integer does not name an action. A
// matrix index that fails to decode means the configuration is corrupt.
var ErrInvalidOrdinal = errors.New("transition: invalid action ordinal")

// Action is a directory operation. Ordinals are dense from zero and index the
// rows and columns of Markov transition matrices, so the order is part of the
// persisted format.
type Action int

const (
	Login Action = iota
	Logout
	ReadProperty
	WriteProperty

	actionCount
)

// ActionCount is the number of actions.
const ActionCount = int(actionCount)

// MatrixSize is the length of a flattened ActionCount x ActionCount matrix.
const MatrixSize = ActionCount * ActionCount

var actionNames = [ActionCount]string{
	Login:         "login",
	Logout:        "logout",
	ReadProperty:  "read_property",
	WriteProperty: "write_property",
}

// Ordinal returns the zero-based index of a.
func (a Action) Ordinal() int {
	return int(a)
}

// Valid reports whether a is a known action.
func (a Action) Valid() bool {
	return a >= 0 && a < actionCount
}

// ActionFromOrdinal decodes an ordinal.
func ActionFromOrdinal(n int) (Action, error) {
	if n < 0 || n >= ActionCount {
		return 0, fmt.Errorf("%w: %d not in [0, %d)", ErrInvalidOrdinal, n, ActionCount)
	}
	return Action(n), nil
}

func (a Action) String() string {
	if !a.Valid() {
		return fmt.Sprintf("action(%d)", int(a))
	}
	return actionNames[a]
}

// ParseAction returns the action with the given name.
func ParseAction(name string) (Action, error) {
	for a := range Actions() {
		if actionNames[a] == name {
			return a, nil
		}
	}
	return 0, fmt.Errorf("transition: unknown action %q", name)
}

// Actions iterates over every action in ordinal order.
func Actions() iter.Seq[Action] {
	return func(yield func(Action) bool) {
		for a := Action(0); a < actionCount; a++ {
			if !yield(a) {
				return
			}
		}
	}
}
