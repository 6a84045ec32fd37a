package transition

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/FairForge/orca/internal/directory"
	"github.com/FairForge/orca/internal/events"
	"github.com/FairForge/orca/internal/state"
)

// ErrUnsupportedCredential is returned when a person carries a credential the
// executor cannot present.
var ErrUnsupportedCredential = errors.New("transition: unsupported credential")

type executeFunc func(e *Executor, ctx context.Context, p *state.Person) (Result, events.Record, error)

var executors = [ActionCount]executeFunc{
	Login:         (*Executor).Login,
	Logout:        (*Executor).Logout,
	ReadProperty:  (*Executor).ReadProperty,
	WriteProperty: (*Executor).WriteProperty,
}

// Executor runs actions against one directory session. Each executor times the
// directory call and classifies its result. Directory failures are logged and
// reported as ResultError, never returned.
type Executor struct {
	client directory.Client
	codes  directory.CodeSource
	log    *zap.Logger
	now    func() time.Time
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// WithCodeSource makes Login present a TOTP code for enrolled persons when the
// session accepts one.
func WithCodeSource(codes directory.CodeSource) ExecutorOption {
	return func(e *Executor) { e.codes = codes }
}

// NewExecutor creates an executor for one actor's session.
func NewExecutor(client directory.Client, log *zap.Logger, opts ...ExecutorOption) *Executor {
	if log == nil {
		log = zap.NewNop()
	}
	e := &Executor{client: client, log: log, now: time.Now}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute runs action for p.
func (e *Executor) Execute(ctx context.Context, action Action, p *state.Person) (Result, events.Record, error) {
	if !action.Valid() {
		return ResultError, events.Record{}, fmt.Errorf("%w: %d", ErrInvalidOrdinal, int(action))
	}
	return executors[action](e, ctx, p)
}

// Login authenticates the session as p.
func (e *Executor) Login(ctx context.Context, p *state.Person) (Result, events.Record, error) {
	if p.Credential.Type != state.CredentialPassword {
		return ResultError, events.Record{}, fmt.Errorf("%w: %q", ErrUnsupportedCredential, p.Credential.Type)
	}
	if tc, ok := e.client.(directory.TOTPClient); ok && e.codes != nil {
		if code, enrolled := e.codes.TOTPCode(p.Username, time.Now()); enrolled {
			return e.timed(ctx, Login, p, events.DetailAuthentication, func(ctx context.Context) error {
				return tc.AuthenticateTOTP(ctx, p.Username, p.Credential.Plain, code)
			})
		}
	}
	return e.timed(ctx, Login, p, events.DetailAuthentication, func(ctx context.Context) error {
		return e.client.Authenticate(ctx, p.Username, p.Credential.Plain)
	})
}

// Logout terminates the session.
func (e *Executor) Logout(ctx context.Context, p *state.Person) (Result, events.Record, error) {
	return e.timed(ctx, Logout, p, events.DetailLogout, e.client.TerminateSession)
}

// ReadProperty fetches p's own entry.
func (e *Executor) ReadProperty(ctx context.Context, p *state.Person) (Result, events.Record, error) {
	return e.timed(ctx, ReadProperty, p, events.DetailPersonGet, func(ctx context.Context) error {
		_, err := e.client.FetchPerson(ctx, p.Username)
		return err
	})
}

// WriteProperty sets p's display name.
func (e *Executor) WriteProperty(ctx context.Context, p *state.Person) (Result, events.Record, error) {
	return e.timed(ctx, WriteProperty, p, events.DetailPersonSet, func(ctx context.Context) error {
		return e.client.SetPersonDisplayName(ctx, p.Username, p.DisplayName)
	})
}

// timed measures call. The call runs on a context that is not cancelled with
// ctx so an in-flight request finishes even when the run ends.
func (e *Executor) timed(ctx context.Context, action Action, p *state.Person, ok events.Detail, call func(context.Context) error) (Result, events.Record, error) {
	callCtx := context.WithoutCancel(ctx)

	start := e.now()
	err := call(callCtx)
	duration := e.now().Sub(start)

	if err != nil {
		e.log.Debug("directory call failed",
			zap.String("action", action.String()),
			zap.String("username", p.Username),
			zap.Duration("duration", duration),
			zap.Error(err))
		return ResultError, events.Record{Start: start, Duration: duration, Details: events.DetailError}, nil
	}
	return ResultOK, events.Record{Start: start, Duration: duration, Details: ok}, nil
}
