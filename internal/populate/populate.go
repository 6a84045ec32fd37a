// Package populate generates the simulated population described by a profile.
package populate

import (
	"errors"
	"fmt"
	"math/rand/v2"

	"github.com/FairForge/orca/internal/profile"
	"github.com/FairForge/orca/internal/state"
)

const (
	passwordLength  = 24
	passwordCharset = "abcdefghijkmnopqrstuvwxyzABCDEFGHJKLMNPQRSTUVWXYZ23456789-_.!"
	seedIncrement   = 0x94d049bb133111eb
)

// DefaultMatrix is the transition matrix given to generated Markov persons. A
// session starts by logging in, mostly reads its own entry, sometimes writes
// it, and eventually logs out. Rows and columns follow action ordinal order:
// login, logout, read_property, write_property.
func DefaultMatrix() []float64 {
	return []float64{
		0, 0.1, 0.6, 0.3, // login
		1, 0, 0, 0, // logout
		0, 0.2, 0.5, 0.3, // read_property
		0, 0.2, 0.5, 0.3, // write_property
	}
}

// Generate builds the state for p. With p.Seed set the result is fully
// reproducible.
func Generate(p *profile.Profile) (*state.State, error) {
	if p == nil {
		return nil, errors.New("populate: profile is required")
	}
	prof := *p
	prof.ApplyDefaults()
	if err := prof.Validate(); err != nil {
		return nil, err
	}

	var rng *rand.Rand
	if prof.Seed != nil {
		rng = rand.New(rand.NewPCG(*prof.Seed, *prof.Seed^seedIncrement))
	} else {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}

	st := &state.State{
		Profile:        prof,
		PreflightFlags: []state.Flag{},
		Persons:        make([]state.Person, 0, prof.PersonCount),
	}
	if prof.DisableMFAPolicy {
		st.PreflightFlags = append(st.PreflightFlags, state.FlagDisableAllPersonsMFAPolicy)
	}

	for i := range prof.PersonCount {
		st.Persons = append(st.Persons, newPerson(&prof, rng, i))
	}
	return st, nil
}

func newPerson(p *profile.Profile, rng *rand.Rand, i int) state.Person {
	person := state.Person{
		PreflightState: state.PreflightPresent,
		Username:       fmt.Sprintf("person_%05d", i),
		DisplayName:    fmt.Sprintf("Person %d", i),
		Credential:     state.PasswordCredential(password(rng)),
	}

	var groups []string
	for _, g := range p.Groups {
		if rng.IntN(2) == 0 {
			groups = append(groups, g)
		}
	}
	person.MemberOf = state.NewGroups(groups...)

	if p.AbsentRatio > 0 && rng.Float64() < p.AbsentRatio {
		person.PreflightState = state.PreflightAbsent
	}

	switch p.Model {
	case profile.ModelMarkov:
		seed := rng.Uint64()
		var delay *state.NormalDist
		if p.HasDelay() {
			delay = &state.NormalDist{Mean: p.DelayMeanMs, StdDev: p.DelayStdDevMs}
		}
		person.Model = state.MarkovModel(DefaultMatrix(), &seed, delay)
	default:
		person.Model = state.BasicModel()
	}
	return person
}

func password(rng *rand.Rand) string {
	b := make([]byte, passwordLength)
	for i := range b {
		b[i] = passwordCharset[rng.IntN(len(passwordCharset))]
	}
	return string(b)
}
