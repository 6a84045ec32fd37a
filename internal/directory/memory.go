package directory

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// MemoryConfig configures the in-memory directory.
type MemoryConfig struct {
	Issuer     string
	SessionTTL time.Duration
	BcryptCost int
	EnforceMFA bool
	SigningKey []byte
}

// DefaultMemoryConfig returns a config with sensible defaults.
func DefaultMemoryConfig() *MemoryConfig {
	return &MemoryConfig{
		Issuer:     "orca",
		SessionTTL: 15 * time.Minute,
		BcryptCost: bcrypt.DefaultCost,
		EnforceMFA: true,
	}
}

// ApplyDefaults fills in default values for unset fields
func (c *MemoryConfig) ApplyDefaults() {
	defaults := DefaultMemoryConfig()

	if c.Issuer == "" {
		c.Issuer = defaults.Issuer
	}
	if c.SessionTTL == 0 {
		c.SessionTTL = defaults.SessionTTL
	}
	if c.BcryptCost == 0 {
		c.BcryptCost = defaults.BcryptCost
	}
}

// Validate checks if the configuration is valid
func (c *MemoryConfig) Validate() error {
	if c.SessionTTL < 0 {
		return errors.New("directory: session ttl must not be negative")
	}
	if c.BcryptCost < bcrypt.MinCost || c.BcryptCost > bcrypt.MaxCost {
		return fmt.Errorf("directory: bcrypt cost %d out of range", c.BcryptCost)
	}
	return nil
}

type personRecord struct {
	id           string
	username     string
	displayName  string
	memberOf     []string
	passwordHash []byte
	mfaSecret    string
}

func (p *personRecord) entry() *Entry {
	return &Entry{
		ID:          p.id,
		Username:    p.username,
		DisplayName: p.displayName,
		MemberOf:    slices.Clone(p.memberOf),
	}
}

// SessionClaims are the claims carried by a session token.
type SessionClaims struct {
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// Memory is an in-memory directory. Passwords are stored as bcrypt hashes and
// sessions are HS256 tokens that are revoked on logout.
type Memory struct {
	config *MemoryConfig
	mfa    *MFAService
	now    func() time.Time

	mu          sync.RWMutex
	persons     map[string]*personRecord // username -> person
	revoked     map[string]time.Time     // token id -> expiry
	mfaEnforced bool
}

// NewMemory creates an empty in-memory directory. config is copied and not
// modified.
func NewMemory(config *MemoryConfig) (*Memory, error) {
	if config == nil {
		config = DefaultMemoryConfig()
	}
	cfg := *config
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if len(cfg.SigningKey) == 0 {
		key := make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			return nil, fmt.Errorf("directory: generate signing key: %w", err)
		}
		cfg.SigningKey = key
	} else {
		cfg.SigningKey = slices.Clone(cfg.SigningKey)
	}

	return &Memory{
		config:      &cfg,
		mfa:         NewMFAService(cfg.Issuer),
		now:         time.Now,
		persons:     make(map[string]*personRecord),
		revoked:     make(map[string]time.Time),
		mfaEnforced: cfg.EnforceMFA,
	}, nil
}

// Connect opens a new unauthenticated session.
func (m *Memory) Connect(ctx context.Context) (Client, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &memorySession{dir: m}, nil
}

// EnsurePerson creates the person or replaces its attributes and password.
func (m *Memory) EnsurePerson(ctx context.Context, spec PersonSpec) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	username := strings.TrimSpace(spec.Username)
	if username == "" {
		return errors.New("directory: username is required")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(spec.Password), m.config.BcryptCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	var mfaSecret string
	if spec.EnrollMFA {
		mfaSecret, _, err = m.mfa.GenerateSecret(username)
		if err != nil {
			return err
		}
	}

	memberOf := slices.Clone(spec.MemberOf)
	slices.Sort(memberOf)
	memberOf = slices.Compact(memberOf)

	m.mu.Lock()
	defer m.mu.Unlock()

	rec, exists := m.persons[username]
	if !exists {
		rec = &personRecord{id: uuid.New().String(), username: username}
		m.persons[username] = rec
	}
	rec.displayName = spec.DisplayName
	rec.memberOf = memberOf
	rec.passwordHash = hash
	rec.mfaSecret = mfaSecret
	return nil
}

// RemovePerson deletes the person if it exists.
func (m *Memory) RemovePerson(ctx context.Context, username string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.persons, username)
	return nil
}

// PersonExists reports whether username is present.
func (m *Memory) PersonExists(ctx context.Context, username string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.persons[username]
	return ok, nil
}

// DisableMFAPolicy stops requiring a second factor from enrolled persons.
func (m *Memory) DisableMFAPolicy(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mfaEnforced = false
	return nil
}

// MFAEnforced reports whether enrolled persons must present a TOTP code.
func (m *Memory) MFAEnforced() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.mfaEnforced
}

// MFASecret returns the TOTP secret a person was enrolled with, if any.
func (m *Memory) MFASecret(username string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.persons[username]
	if !ok || rec.mfaSecret == "" {
		return "", false
	}
	return rec.mfaSecret, true
}

// TOTPCode returns the code an enrolled person's authenticator shows at t.
func (m *Memory) TOTPCode(username string, t time.Time) (string, bool) {
	secret, ok := m.MFASecret(username)
	if !ok {
		return "", false
	}
	code, err := m.mfa.GenerateCode(secret, t)
	if err != nil {
		return "", false
	}
	return code, true
}

// Len returns the number of persons.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.persons)
}

// authenticate checks the password (and TOTP code when required) and issues a
// session token.
func (m *Memory) authenticate(username, secret, code string, withCode bool) (string, error) {
	m.mu.RLock()
	rec, ok := m.persons[username]
	var (
		hash      []byte
		id        string
		mfaSecret string
	)
	if ok {
		hash, id, mfaSecret = rec.passwordHash, rec.id, rec.mfaSecret
	}
	enforced := m.mfaEnforced
	m.mu.RUnlock()

	if !ok {
		return "", ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword(hash, []byte(secret)); err != nil {
		return "", ErrInvalidCredentials
	}
	if mfaSecret != "" && enforced {
		if !withCode {
			return "", ErrMFARequired
		}
		if !m.mfa.ValidateCode(mfaSecret, code, m.now()) {
			return "", ErrInvalidCredentials
		}
	}

	now := m.now()
	claims := SessionClaims{
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.New().String(),
			Subject:   id,
			Issuer:    m.config.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.config.SessionTTL)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.config.SigningKey)
	if err != nil {
		return "", fmt.Errorf("sign session token: %w", err)
	}
	return token, nil
}

// verify parses a session token and rejects expired or revoked sessions.
func (m *Memory) verify(token string) (*SessionClaims, error) {
	if token == "" {
		return nil, ErrNotAuthenticated
	}
	claims := &SessionClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return m.config.SigningKey, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(m.config.Issuer),
		jwt.WithTimeFunc(m.now),
	)
	if errors.Is(err, jwt.ErrTokenExpired) {
		return nil, ErrSessionExpired
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotAuthenticated, err)
	}

	m.mu.RLock()
	_, revoked := m.revoked[claims.ID]
	m.mu.RUnlock()
	if revoked {
		return nil, ErrSessionExpired
	}
	return claims, nil
}

func (m *Memory) revoke(claims *SessionClaims) {
	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()
	for id, exp := range m.revoked {
		if exp.Before(now) {
			delete(m.revoked, id)
		}
	}
	m.revoked[claims.ID] = claims.ExpiresAt.Time
}

func (m *Memory) fetch(username string) (*Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.persons[username]
	if !ok {
		return nil, ErrPersonNotFound
	}
	return rec.entry(), nil
}

func (m *Memory) setDisplayName(username, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.persons[username]
	if !ok {
		return ErrPersonNotFound
	}
	rec.displayName = value
	return nil
}

// memorySession is one connection to a Memory directory.
type memorySession struct {
	dir *Memory

	mu    sync.Mutex
	token string
}

func (s *memorySession) Authenticate(ctx context.Context, username, secret string) error {
	return s.login(ctx, username, secret, "", false)
}

// AuthenticateTOTP authenticates with a password and a TOTP code.
func (s *memorySession) AuthenticateTOTP(ctx context.Context, username, secret, code string) error {
	return s.login(ctx, username, secret, code, true)
}

func (s *memorySession) login(ctx context.Context, username, secret, code string, withCode bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	token, err := s.dir.authenticate(username, secret, code, withCode)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.token = token
	s.mu.Unlock()
	return nil
}

func (s *memorySession) claims() (*SessionClaims, error) {
	s.mu.Lock()
	token := s.token
	s.mu.Unlock()
	return s.dir.verify(token)
}

func (s *memorySession) FetchPerson(ctx context.Context, username string) (*Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if _, err := s.claims(); err != nil {
		return nil, err
	}
	return s.dir.fetch(username)
}

func (s *memorySession) SetPersonDisplayName(ctx context.Context, username, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	claims, err := s.claims()
	if err != nil {
		return err
	}
	if claims.Username != username {
		return ErrForbidden
	}
	return s.dir.setDisplayName(username, value)
}

func (s *memorySession) TerminateSession(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	claims, err := s.claims()
	if err != nil {
		return err
	}
	s.dir.revoke(claims)

	s.mu.Lock()
	s.token = ""
	s.mu.Unlock()
	return nil
}
