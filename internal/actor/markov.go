package actor

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"time"

	"github.com/FairForge/orca/internal/state"
	"github.com/FairForge/orca/internal/transition"
)

// rowSumTolerance is how far a matrix row may sum away from one.
const rowSumTolerance = 1e-6

// maxDelayMs is the longest delay, in milliseconds, a time.Duration holds.
const maxDelayMs = float64(math.MaxInt64) / float64(time.Millisecond)

// pcgIncrement is the second PCG seed word derived from a model seed.
const pcgIncrement = 0x9e3779b97f4a7c15

// Markov picks each action from the row of the transition matrix belonging to
// the previous action. The generator is private to the actor.
type Markov struct {
	current transition.Action
	started bool
	matrix  []float64
	rng     *rand.Rand

	hasDelay bool
	mean     float64 // milliseconds
	stdDev   float64 // milliseconds

	wait func(context.Context, time.Duration) error
}

// NewMarkov validates params and creates an actor starting at Login.
func NewMarkov(params state.MarkovParams) (*Markov, error) {
	if err := validateMatrix(params.DistributionsMatrix); err != nil {
		return nil, err
	}

	m := &Markov{
		current: transition.Login,
		matrix:  append([]float64(nil), params.DistributionsMatrix...),
		wait:    sleepContext,
	}

	if params.RNGSeed != nil {
		seed := *params.RNGSeed
		m.rng = rand.New(rand.NewPCG(seed, seed^pcgIncrement))
	} else {
		m.rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}

	if d := params.Delay; d != nil {
		if math.IsNaN(d.Mean) || math.IsInf(d.Mean, 0) {
			return nil, fmt.Errorf("%w: delay mean %v is not finite", ErrActorConstruction, d.Mean)
		}
		if math.IsNaN(d.StdDev) || math.IsInf(d.StdDev, 0) || d.StdDev < 0 {
			return nil, fmt.Errorf("%w: delay standard deviation %v must be finite and non-negative", ErrActorConstruction, d.StdDev)
		}
		m.hasDelay = true
		m.mean, m.stdDev = d.Mean, d.StdDev
	}
	return m, nil
}

func validateMatrix(matrix []float64) error {
	if len(matrix) != transition.MatrixSize {
		return fmt.Errorf("%w: matrix has %d entries, want %d", ErrActorConstruction, len(matrix), transition.MatrixSize)
	}
	for row := 0; row < transition.ActionCount; row++ {
		var sum float64
		for col := 0; col < transition.ActionCount; col++ {
			p := matrix[row*transition.ActionCount+col]
			if math.IsNaN(p) || math.IsInf(p, 0) || p < 0 {
				return fmt.Errorf("%w: entry [%d][%d] = %v is not a probability", ErrActorConstruction, row, col, p)
			}
			sum += p
		}
		if math.Abs(sum-1) > rowSumTolerance {
			return fmt.Errorf("%w: row %d sums to %v", ErrActorConstruction, row, sum)
		}
	}
	return nil
}

// Current returns the most recently chosen action.
func (m *Markov) Current() transition.Action {
	return m.current
}

// Next samples the next transition and moves the cursor to it.
func (m *Markov) Next() transition.Transition {
	n := transition.ActionCount
	row := m.matrix[m.current.Ordinal()*n : (m.current.Ordinal()+1)*n]

	draw := m.rng.Float64()
	idx := n - 1
	var sum float64
	for j, p := range row {
		sum += p
		if sum > draw {
			idx = j
			break
		}
	}

	// validateMatrix guarantees idx < ActionCount.
	next, _ := transition.ActionFromOrdinal(idx)
	m.current = next

	t := transition.Transition{Action: next}
	if m.hasDelay {
		ms := m.rng.NormFloat64()*m.stdDev + m.mean
		switch {
		case ms < 0:
			t.Delay = 0
		case ms >= maxDelayMs:
			t.Delay = time.Duration(math.MaxInt64)
		default:
			t.Delay = time.Duration(ms * float64(time.Millisecond))
		}
		t.HasDelay = true
	}
	return t
}

// Transition executes the next action. The first call logs in; every later
// call samples the matrix, waits out the delay and then executes.
func (m *Markov) Transition(ctx context.Context, exec *transition.Executor, person *state.Person) (transition.Outcome, error) {
	var t transition.Transition
	if !m.started {
		m.started = true
		t = transition.Transition{Action: m.current}
	} else {
		t = m.Next()
	}

	if err := m.wait(ctx, t.DelayOrZero()); err != nil {
		return transition.Outcome{Transition: t}, err
	}

	res, rec, err := exec.Execute(ctx, t.Action, person)
	if err != nil {
		return transition.Outcome{}, err
	}
	return transition.Outcome{Transition: t, Result: res, Record: rec}, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
