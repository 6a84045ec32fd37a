package directory

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"
)

// ErrInjected is returned by calls the chaos decorator chose to fail.
var ErrInjected = errors.New("directory: injected failure")

// ChaosConfig defines the faults injected in front of a directory.
type ChaosConfig struct {
	ErrorRate  float64       // Probability of failing a call (0.0-1.0)
	LatencyMin time.Duration // Minimum added latency
	LatencyMax time.Duration // Maximum added latency
	Seed       uint64        // 0 means seeded from entropy
}

// Validate checks if the configuration is valid
func (c *ChaosConfig) Validate() error {
	if c.ErrorRate < 0 || c.ErrorRate > 1 {
		return fmt.Errorf("chaos: error rate %v outside [0, 1]", c.ErrorRate)
	}
	if c.LatencyMin < 0 || c.LatencyMax < 0 {
		return errors.New("chaos: latency must not be negative")
	}
	if c.LatencyMax < c.LatencyMin {
		return errors.New("chaos: latency max below latency min")
	}
	return nil
}

// Enabled reports whether any fault is configured.
func (c *ChaosConfig) Enabled() bool {
	return c.ErrorRate > 0 || c.LatencyMax > 0
}

// ChaosStats counts what the decorator injected.
type ChaosStats struct {
	Calls    int64
	Injected int64
	Delayed  int64
}

// Chaos wraps a Connector and injects latency and failures into every session
// it opens. Each session owns its own generator derived from the seed and the
// session's slot. Sessions opened with Connect use the opening order as slot,
// counted down from the top of the range so they never collide with
// ConnectSlot slots.
type Chaos struct {
	inner  Connector
	config ChaosConfig
	seed   uint64
	sleep  func(time.Duration)

	conns    atomic.Uint64
	calls    atomic.Int64
	injected atomic.Int64
	delayed  atomic.Int64
}

// NewChaos creates a fault-injecting connector.
func NewChaos(inner Connector, config ChaosConfig) (*Chaos, error) {
	if inner == nil {
		return nil, errors.New("chaos: inner connector is required")
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	seed := config.Seed
	if seed == 0 {
		seed = rand.Uint64()
	}
	return &Chaos{inner: inner, config: config, seed: seed, sleep: time.Sleep}, nil
}

// Connect opens a session on the inner connector and wraps it.
func (c *Chaos) Connect(ctx context.Context) (Client, error) {
	return c.open(ctx, math.MaxUint64-c.conns.Add(1))
}

// ConnectSlot opens a session whose fault sequence depends only on the seed and
// slot.
func (c *Chaos) ConnectSlot(ctx context.Context, slot uint64) (Client, error) {
	return c.open(ctx, slot)
}

func (c *Chaos) open(ctx context.Context, slot uint64) (Client, error) {
	client, err := c.inner.Connect(ctx)
	if err != nil {
		return nil, err
	}
	return &chaosClient{
		inner: client,
		chaos: c,
		rng:   rand.New(rand.NewPCG(c.seed, slot)),
	}, nil
}

// Stats returns a snapshot of the injection counters.
func (c *Chaos) Stats() ChaosStats {
	return ChaosStats{
		Calls:    c.calls.Load(),
		Injected: c.injected.Load(),
		Delayed:  c.delayed.Load(),
	}
}

type chaosClient struct {
	inner Client
	chaos *Chaos

	mu  sync.Mutex
	rng *rand.Rand
}

// inject applies latency and decides whether op fails.
func (c *chaosClient) inject(op string) error {
	cfg := c.chaos.config

	c.mu.Lock()
	var delay time.Duration
	if cfg.LatencyMax > 0 {
		delay = cfg.LatencyMin
		if span := cfg.LatencyMax - cfg.LatencyMin; span > 0 {
			delay += time.Duration(c.rng.Int64N(int64(span) + 1))
		}
	}
	fail := cfg.ErrorRate > 0 && c.rng.Float64() < cfg.ErrorRate
	c.mu.Unlock()

	c.chaos.calls.Add(1)
	if delay > 0 {
		c.chaos.delayed.Add(1)
		c.chaos.sleep(delay)
	}
	if fail {
		c.chaos.injected.Add(1)
		return fmt.Errorf("%w: %s", ErrInjected, op)
	}
	return nil
}

func (c *chaosClient) Authenticate(ctx context.Context, username, secret string) error {
	if err := c.inject("authenticate"); err != nil {
		return err
	}
	return c.inner.Authenticate(ctx, username, secret)
}

// AuthenticateTOTP forwards the code when the inner session accepts one and
// falls back to a password-only login otherwise.
func (c *chaosClient) AuthenticateTOTP(ctx context.Context, username, secret, code string) error {
	if err := c.inject("authenticate"); err != nil {
		return err
	}
	if tc, ok := c.inner.(TOTPClient); ok {
		return tc.AuthenticateTOTP(ctx, username, secret, code)
	}
	return c.inner.Authenticate(ctx, username, secret)
}

func (c *chaosClient) FetchPerson(ctx context.Context, username string) (*Entry, error) {
	if err := c.inject("fetch_person"); err != nil {
		return nil, err
	}
	return c.inner.FetchPerson(ctx, username)
}

func (c *chaosClient) SetPersonDisplayName(ctx context.Context, username, value string) error {
	if err := c.inject("set_person_display_name"); err != nil {
		return err
	}
	return c.inner.SetPersonDisplayName(ctx, username, value)
}

func (c *chaosClient) TerminateSession(ctx context.Context) error {
	if err := c.inject("terminate_session"); err != nil {
		return err
	}
	return c.inner.TerminateSession(ctx)
}
