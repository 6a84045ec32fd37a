// Package state holds the serializable simulation plan: the profile, the
// preflight flags and every simulated person with its credential and behavior
// model. A state is generated ahead of a run so that as little as possible is
// computed while the run is measuring.
package state

import (
	"encoding/json"
	"fmt"
	"slices"

	"github.com/FairForge/orca/internal/profile"
)

// State is the complete simulation plan.
type State struct {
	Profile        profile.Profile `json:"profile"`
	PreflightFlags []Flag          `json:"preflight_flags"`
	Persons        []Person        `json:"persons"`
}

// HasFlag reports whether f is set.
func (s *State) HasFlag(f Flag) bool {
	return slices.Contains(s.PreflightFlags, f)
}

// Validate checks invariants the document schema cannot express.
func (s *State) Validate() error {
	seen := make(map[string]struct{}, len(s.Persons))
	for i := range s.Persons {
		p := &s.Persons[i]
		if p.Username == "" {
			return fmt.Errorf("%w: person %d has no username", ErrSerialization, i)
		}
		if _, dup := seen[p.Username]; dup {
			return fmt.Errorf("%w: duplicate username %q", ErrSerialization, p.Username)
		}
		seen[p.Username] = struct{}{}
		if p.Credential.Type != CredentialPassword {
			return fmt.Errorf("%w: person %q has unknown credential type %q", ErrSerialization, p.Username, p.Credential.Type)
		}
	}
	return nil
}

// Stats summarizes a population.
type Stats struct {
	Persons int `json:"persons"`
	Present int `json:"present"`
	Absent  int `json:"absent"`
	Basic   int `json:"basic"`
	Markov  int `json:"markov"`
}

// Stats counts persons by preflight state and model.
func (s *State) Stats() Stats {
	st := Stats{Persons: len(s.Persons)}
	for _, p := range s.Persons {
		switch p.PreflightState {
		case PreflightPresent:
			st.Present++
		case PreflightAbsent:
			st.Absent++
		}
		switch p.Model.Kind() {
		case ModelBasic:
			st.Basic++
		case ModelMarkov:
			st.Markov++
		}
	}
	return st
}

// Flag is a setup step applied to the directory before the run.
type Flag string

const (
	// FlagDisableAllPersonsMFAPolicy lets enrolled persons log in with a
	// password alone.
	FlagDisableAllPersonsMFAPolicy Flag = "disable_all_persons_mfa_policy"
)

// UnmarshalText rejects unknown flags.
func (f *Flag) UnmarshalText(text []byte) error {
	switch v := Flag(text); v {
	case FlagDisableAllPersonsMFAPolicy:
		*f = v
		return nil
	}
	return fmt.Errorf("unknown preflight flag %q", text)
}

// PreflightState is whether a person is expected to exist in the directory
// before the run starts.
type PreflightState string

const (
	PreflightPresent PreflightState = "present"
	PreflightAbsent  PreflightState = "absent"
)

// UnmarshalText rejects unknown preflight states.
func (p *PreflightState) UnmarshalText(text []byte) error {
	switch v := PreflightState(text); v {
	case PreflightPresent, PreflightAbsent:
		*p = v
		return nil
	}
	return fmt.Errorf("unknown preflight state %q", text)
}

// CredentialType tags a Credential.
type CredentialType string

const CredentialPassword CredentialType = "password"

// Credential is the secret a person authenticates with. Plain is kept in
// memory and in the state file only.
type Credential struct {
	Type  CredentialType `json:"type"`
	Plain string         `json:"plain"`
}

// PasswordCredential returns a password credential.
func PasswordCredential(plain string) Credential {
	return Credential{Type: CredentialPassword, Plain: plain}
}

// Groups is a sorted set of group names.
type Groups []string

// NewGroups returns the sorted, de-duplicated set of names.
func NewGroups(names ...string) Groups {
	g := make(Groups, 0, len(names))
	g = append(g, names...)
	slices.Sort(g)
	return slices.Compact(g)
}

// Contains reports whether name is a member.
func (g Groups) Contains(name string) bool {
	_, ok := slices.BinarySearch(g, name)
	return ok
}

// MarshalJSON writes the normalized list, never null.
func (g Groups) MarshalJSON() ([]byte, error) {
	return json.Marshal([]string(NewGroups(g...)))
}

// UnmarshalJSON normalizes the decoded list.
func (g *Groups) UnmarshalJSON(data []byte) error {
	var names []string
	if err := json.Unmarshal(data, &names); err != nil {
		return err
	}
	*g = NewGroups(names...)
	return nil
}

// Person is one simulated identity.
type Person struct {
	PreflightState PreflightState `json:"preflight_state"`
	Username       string         `json:"username"`
	DisplayName    string         `json:"display_name"`
	MemberOf       Groups         `json:"member_of"`
	Credential     Credential     `json:"credential"`
	Model          Model          `json:"model"`
}
