// Package preflight prepares the directory for a run: it applies the state's
// preflight flags and makes every person's presence match its preflight state.
package preflight

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/FairForge/orca/internal/directory"
	"github.com/FairForge/orca/internal/state"
)

// DefaultConcurrency is the number of persons provisioned at once.
const DefaultConcurrency = 8

// Options tune Apply.
type Options struct {
	// Concurrency bounds parallel provisioning calls.
	Concurrency int
	// EnrollMFA enrols every present person in TOTP.
	EnrollMFA bool
}

// Report summarizes what Apply changed.
type Report struct {
	Ensured     int
	Removed     int
	MFADisabled bool
	Duration    time.Duration
}

// Apply provisions st into dir. It must complete before any actor starts; any
// error aborts the run.
func Apply(ctx context.Context, dir directory.Provisioner, st *state.State, opts Options, log *zap.Logger) (*Report, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultConcurrency
	}

	start := time.Now()
	report := &Report{}

	if st.HasFlag(state.FlagDisableAllPersonsMFAPolicy) {
		if err := dir.DisableMFAPolicy(ctx); err != nil {
			return nil, fmt.Errorf("preflight: disable mfa policy: %w", err)
		}
		report.MFADisabled = true
		log.Info("preflight flag applied", zap.String("flag", string(state.FlagDisableAllPersonsMFAPolicy)))
	}

	for i := range st.Persons {
		if st.Persons[i].PreflightState == state.PreflightPresent {
			report.Ensured++
		} else {
			report.Removed++
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Concurrency)
	for i := range st.Persons {
		p := &st.Persons[i]
		g.Go(func() error {
			return applyPerson(gctx, dir, p, opts.EnrollMFA)
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	report.Duration = time.Since(start)
	log.Info("preflight complete",
		zap.Int("ensured", report.Ensured),
		zap.Int("removed", report.Removed),
		zap.Duration("duration", report.Duration))
	return report, nil
}

func applyPerson(ctx context.Context, dir directory.Provisioner, p *state.Person, enrollMFA bool) error {
	switch p.PreflightState {
	case state.PreflightPresent:
		if p.Credential.Type != state.CredentialPassword {
			return fmt.Errorf("preflight: person %q: unsupported credential %q", p.Username, p.Credential.Type)
		}
		err := dir.EnsurePerson(ctx, directory.PersonSpec{
			Username:    p.Username,
			DisplayName: p.DisplayName,
			MemberOf:    p.MemberOf,
			Password:    p.Credential.Plain,
			EnrollMFA:   enrollMFA,
		})
		if err != nil {
			return fmt.Errorf("preflight: ensure person %q: %w", p.Username, err)
		}
	case state.PreflightAbsent:
		if err := dir.RemovePerson(ctx, p.Username); err != nil {
			return fmt.Errorf("preflight: remove person %q: %w", p.Username, err)
		}
	default:
		return fmt.Errorf("preflight: person %q: unknown preflight state %q", p.Username, p.PreflightState)
	}
	return nil
}
