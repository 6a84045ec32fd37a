// Package directory defines the client-side surface of the identity directory
// that simulated actors drive, plus an in-memory implementation of it.
package directory

import (
	"context"
	"errors"
	"time"
)

var (
	ErrInvalidCredentials = errors.New("directory: invalid credentials")
	ErrMFARequired        = errors.New("directory: multi-factor authentication required")
	ErrNotAuthenticated   = errors.New("directory: not authenticated")
	ErrSessionExpired     = errors.New("directory: session expired")
	ErrPersonNotFound     = errors.New("directory: person not found")
	ErrForbidden          = errors.New("directory: access denied")
)

// Entry is a person as returned by the directory.
type Entry struct {
	ID          string
	Username    string
	DisplayName string
	MemberOf    []string
}

// Client is one live session with the directory. A Client is driven by a
// single actor and is not shared.
type Client interface {
	Authenticate(ctx context.Context, username, secret string) error
	FetchPerson(ctx context.Context, username string) (*Entry, error)
	SetPersonDisplayName(ctx context.Context, username, value string) error
	TerminateSession(ctx context.Context) error
}

// TOTPClient is a Client that can present a second factor with the password.
type TOTPClient interface {
	Client
	AuthenticateTOTP(ctx context.Context, username, secret, code string) error
}

// CodeSource plays the part of a person's authenticator app. It returns the
// TOTP code valid at t, or false when the person is not enrolled.
type CodeSource interface {
	TOTPCode(username string, t time.Time) (string, bool)
}

// Connector opens sessions.
type Connector interface {
	Connect(ctx context.Context) (Client, error)
}

// SlotConnector opens sessions bound to a stable slot, such as the index of the
// person that drives the session. Per-session state derived from the slot does
// not depend on the order in which concurrent sessions are opened.
type SlotConnector interface {
	Connector
	ConnectSlot(ctx context.Context, slot uint64) (Client, error)
}

// PersonSpec describes a person to create or update during preflight.
type PersonSpec struct {
	Username    string
	DisplayName string
	MemberOf    []string
	Password    string
	EnrollMFA   bool
}

// Provisioner performs the administrative setup that happens before a run.
type Provisioner interface {
	EnsurePerson(ctx context.Context, spec PersonSpec) error
	RemovePerson(ctx context.Context, username string) error
	PersonExists(ctx context.Context, username string) (bool, error)
	DisableMFAPolicy(ctx context.Context) error
}
