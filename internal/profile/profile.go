// Package profile holds the run configuration carried inside a simulation
// state. Profiles are written by hand as YAML and embedded into the generated
// state document.
package profile

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Model kinds a profile can assign to generated persons.
const (
	ModelBasic  = "basic"
	ModelMarkov = "markov"
)

// Profile describes one load run.
type Profile struct {
	Name       string  `yaml:"name" json:"name"`
	ControlURI string  `yaml:"control_uri" json:"control_uri"`
	Seed       *uint64 `yaml:"seed,omitempty" json:"seed,omitempty"`

	// Population
	PersonCount      int      `yaml:"person_count" json:"person_count"`
	Groups           []string `yaml:"groups,omitempty" json:"groups,omitempty"`
	AbsentRatio      float64  `yaml:"absent_ratio,omitempty" json:"absent_ratio,omitempty"`
	DisableMFAPolicy bool     `yaml:"disable_mfa_policy,omitempty" json:"disable_mfa_policy,omitempty"`

	// Behavior
	Model         string  `yaml:"model" json:"model"`
	DelayMeanMs   float64 `yaml:"delay_mean_ms,omitempty" json:"delay_mean_ms,omitempty"`
	DelayStdDevMs float64 `yaml:"delay_std_dev_ms,omitempty" json:"delay_std_dev_ms,omitempty"`

	// Run
	TestTime       time.Duration `yaml:"test_time" json:"test_time"`
	WarmupTime     time.Duration `yaml:"warmup_time,omitempty" json:"warmup_time,omitempty"`
	MaxConcurrency int           `yaml:"max_concurrency,omitempty" json:"max_concurrency,omitempty"`
	RateLimit      float64       `yaml:"rate_limit,omitempty" json:"rate_limit,omitempty"` // transitions per second, 0 = unlimited
}

// Default returns sensible defaults for a small local run.
func Default() *Profile {
	return &Profile{
		Name:        "default",
		ControlURI:  "memory://",
		PersonCount: 10,
		Groups:      []string{"idm_people_self_name_write", "orca_testers"},
		Model:       ModelMarkov,
		TestTime:    time.Minute,
	}
}

// ApplyDefaults fills in default values for unset fields
func (p *Profile) ApplyDefaults() {
	defaults := Default()

	if p.Name == "" {
		p.Name = defaults.Name
	}
	if p.ControlURI == "" {
		p.ControlURI = defaults.ControlURI
	}
	if p.PersonCount == 0 {
		p.PersonCount = defaults.PersonCount
	}
	if p.Model == "" {
		p.Model = defaults.Model
	}
	if p.TestTime == 0 {
		p.TestTime = defaults.TestTime
	}
}

// Validate checks if the profile is valid
func (p *Profile) Validate() error {
	if p.PersonCount < 0 {
		return errors.New("profile: person_count must not be negative")
	}
	if p.Model != ModelBasic && p.Model != ModelMarkov {
		return fmt.Errorf("profile: unknown model %q", p.Model)
	}
	if p.AbsentRatio < 0 || p.AbsentRatio > 1 {
		return fmt.Errorf("profile: absent_ratio %v outside [0, 1]", p.AbsentRatio)
	}
	if p.DelayMeanMs < 0 || p.DelayStdDevMs < 0 {
		return errors.New("profile: delay parameters must not be negative")
	}
	if p.TestTime < 0 || p.WarmupTime < 0 {
		return errors.New("profile: durations must not be negative")
	}
	if p.MaxConcurrency < 0 {
		return errors.New("profile: max_concurrency must not be negative")
	}
	if p.RateLimit < 0 {
		return errors.New("profile: rate_limit must not be negative")
	}
	return nil
}

// HasDelay reports whether generated Markov actors pause between transitions.
func (p *Profile) HasDelay() bool {
	return p.DelayMeanMs > 0 || p.DelayStdDevMs > 0
}

// Parse decodes a YAML profile, applies defaults and validates it.
func Parse(data []byte) (*Profile, error) {
	p := &Profile{}
	if err := yaml.Unmarshal(data, p); err != nil {
		return nil, fmt.Errorf("profile: decode: %w", err)
	}
	p.ApplyDefaults()
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// Load reads a YAML profile from path and applies ORCA_* environment
// overrides.
func Load(path string) (*Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("profile: read %s: %w", path, err)
	}
	p, err := Parse(data)
	if err != nil {
		return nil, err
	}
	if err := LoadFromEnv(p); err != nil {
		return nil, err
	}
	return p, p.Validate()
}
