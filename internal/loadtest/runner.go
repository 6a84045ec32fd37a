package loadtest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/FairForge/orca/internal/actor"
	"github.com/FairForge/orca/internal/directory"
	"github.com/FairForge/orca/internal/events"
	"github.com/FairForge/orca/internal/ratelimit"
	"github.com/FairForge/orca/internal/state"
	"github.com/FairForge/orca/internal/transition"
)

// Config defines the run budget and pacing.
type Config struct {
	Duration       time.Duration // Wall clock budget, 0 = bounded by Iterations only
	Iterations     int           // Transitions per actor, 0 = bounded by Duration only
	Warmup         time.Duration // Records starting earlier are left out of the summary
	MaxConcurrency int           // Actors driven at once, 0 = all
	RateLimit      float64       // Transitions per second across all actors, 0 = unlimited
	BufferSize     int           // Event sink capacity
}

// DefaultConfig returns sensible defaults for a short run.
func DefaultConfig() *Config {
	return &Config{
		Duration:   time.Minute,
		BufferSize: events.DefaultBufferSize,
	}
}

// ApplyDefaults fills in default values for unset fields
func (c *Config) ApplyDefaults() {
	if c.BufferSize <= 0 {
		c.BufferSize = events.DefaultBufferSize
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Duration < 0 || c.Warmup < 0 {
		return errors.New("loadtest: durations must not be negative")
	}
	if c.Iterations < 0 {
		return errors.New("loadtest: iterations must not be negative")
	}
	if c.Duration == 0 && c.Iterations == 0 {
		return errors.New("loadtest: a duration or an iteration count is required")
	}
	if c.Duration > 0 && c.Warmup >= c.Duration {
		return fmt.Errorf("loadtest: warmup %s must be shorter than the run %s", c.Warmup, c.Duration)
	}
	if c.MaxConcurrency < 0 {
		return errors.New("loadtest: max concurrency must not be negative")
	}
	if c.RateLimit < 0 {
		return errors.New("loadtest: rate limit must not be negative")
	}
	return nil
}

// Observer is notified of progress while a run executes.
type Observer interface {
	ObserveTransition(action, result string, d time.Duration)
	ActorStarted()
	ActorStopped()
}

// Option configures a Runner.
type Option func(*Runner)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(r *Runner) { r.logger = logger }
}

// WithObserver reports every transition to o.
func WithObserver(o Observer) Option {
	return func(r *Runner) { r.observer = o }
}

// WithEventWriter exports every event record to w. The runner does not close
// w.
func WithEventWriter(w *events.Writer) Option {
	return func(r *Runner) { r.writer = w }
}

// WithCodeSource lets actors answer TOTP challenges for persons enrolled in
// MFA.
func WithCodeSource(codes directory.CodeSource) Option {
	return func(r *Runner) { r.codes = codes }
}

// Runner drives one goroutine per person until the budget is spent.
type Runner struct {
	config   *Config
	logger   *zap.Logger
	observer Observer
	writer   *events.Writer
	codes    directory.CodeSource
	limiter  *ratelimit.Limiter

	running atomic.Bool
}

// NewRunner creates a runner.
func NewRunner(config *Config, opts ...Option) (*Runner, error) {
	if config == nil {
		config = DefaultConfig()
	}
	cfg := *config
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	r := &Runner{
		config:  &cfg,
		logger:  zap.NewNop(),
		limiter: ratelimit.New(cfg.RateLimit, 1),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Run builds every actor, then drives them against connector. Every actor is
// built before any goroutine starts, so an invalid model fails the run
// without touching the directory. When the budget runs out actors stop
// requesting transitions, but calls already in flight are left to finish.
func (r *Runner) Run(ctx context.Context, st *state.State, connector directory.Connector) (*Summary, error) {
	if !r.running.CompareAndSwap(false, true) {
		return nil, errors.New("loadtest: run already in progress")
	}
	defer r.running.Store(false)

	actors, err := actor.BuildAll(st)
	if err != nil {
		return nil, err
	}

	var (
		runCtx context.Context
		cancel context.CancelFunc
	)
	if r.config.Duration > 0 {
		runCtx, cancel = context.WithTimeout(ctx, r.config.Duration)
	} else {
		runCtx, cancel = context.WithCancel(ctx)
	}
	defer cancel()

	start := time.Now()
	agg := newAggregator(uuid.NewString(), start, start.Add(r.config.Warmup), len(actors))
	r.logger.Info("run starting",
		zap.String("run_id", agg.runID),
		zap.Int("actors", len(actors)),
		zap.Duration("duration", r.config.Duration),
		zap.Int("iterations", r.config.Iterations),
		zap.Float64("rate_limit", r.limiter.Limit()))

	sink := events.NewSink(r.config.BufferSize)
	collectorDone := make(chan struct{})
	go r.collect(sink, agg, collectorDone)

	g, gctx := errgroup.WithContext(runCtx)
	if r.config.MaxConcurrency > 0 {
		g.SetLimit(r.config.MaxConcurrency)
	}
	for i := range actors {
		person := &st.Persons[i]
		a := actors[i]
		slot := uint64(i)
		g.Go(func() error {
			return r.drive(gctx, a, person, slot, connector, sink, agg)
		})
	}
	runErr := g.Wait()

	sink.Close()
	<-collectorDone

	summary := agg.summary(time.Now())
	r.logger.Info("run finished",
		zap.String("run_id", summary.RunID),
		zap.Int64("transitions", summary.TotalTransitions),
		zap.Float64("error_rate", summary.ErrorRate))

	if runErr != nil {
		return summary, runErr
	}
	return summary, nil
}

// connect opens the session for the person at slot. Connectors that support
// slots get the person's index so their per-session state does not depend on
// scheduling.
func connect(ctx context.Context, connector directory.Connector, slot uint64) (directory.Client, error) {
	if sc, ok := connector.(directory.SlotConnector); ok {
		return sc.ConnectSlot(ctx, slot)
	}
	return connector.Connect(ctx)
}

// drive runs one actor until the budget is spent. Only internal errors are
// returned; they stop the whole run.
func (r *Runner) drive(ctx context.Context, a transition.Actor, person *state.Person, slot uint64, connector directory.Connector, sink *events.Sink, agg *aggregator) error {
	if ctx.Err() != nil {
		return nil
	}

	client, err := connect(ctx, connector, slot)
	if err != nil {
		if ctx.Err() == nil {
			agg.connectFailed()
			r.logger.Warn("connect failed", zap.String("username", person.Username), zap.Error(err))
		}
		return nil
	}

	if r.observer != nil {
		r.observer.ActorStarted()
		defer r.observer.ActorStopped()
	}

	log := r.logger.With(zap.String("actor", person.Username))
	exec := transition.NewExecutor(client, log, transition.WithCodeSource(r.codes))

	var seq uint64
	for r.config.Iterations == 0 || seq < uint64(r.config.Iterations) {
		if ctx.Err() != nil {
			return nil
		}
		if err := r.limiter.Wait(ctx); err != nil {
			return nil
		}

		out, err := a.Transition(ctx, exec, person)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("actor %q: %w", person.Username, err)
		}

		err = sink.Publish(events.Entry{
			Actor:  person.Username,
			Seq:    seq,
			Action: out.Transition.Action.String(),
			Record: out.Record,
		})
		if err != nil {
			return err
		}
		seq++
	}
	return nil
}

// collect consumes the sink until it is closed.
func (r *Runner) collect(sink *events.Sink, agg *aggregator, done chan struct{}) {
	defer close(done)

	writer := r.writer
	for e := range sink.Entries() {
		agg.add(e)

		if r.observer != nil {
			result := string(transition.ResultOK)
			if e.Details.IsError() {
				result = string(transition.ResultError)
			}
			r.observer.ObserveTransition(e.Action, result, e.Duration)
		}

		if writer != nil {
			if err := writer.Write(e); err != nil {
				r.logger.Error("event export failed, disabling export", zap.Error(err))
				writer = nil
			}
		}
	}
}

// aggregator accumulates records. It is written by the collector goroutine
// only, except for connect failures.
type aggregator struct {
	runID     string
	start     time.Time
	warmupEnd time.Time
	actors    int

	mu              sync.Mutex
	connectFailures int64
	warmupSkipped   int64
	latencies       []time.Duration
	failures        int64
	perAction       map[string]*actionAgg
}

type actionAgg struct {
	latencies []time.Duration
	failures  int64
}

func newAggregator(runID string, start, warmupEnd time.Time, actors int) *aggregator {
	return &aggregator{
		runID:     runID,
		start:     start,
		warmupEnd: warmupEnd,
		actors:    actors,
		latencies: make([]time.Duration, 0, 10000),
		perAction: make(map[string]*actionAgg),
	}
}

func (a *aggregator) connectFailed() {
	a.mu.Lock()
	a.connectFailures++
	a.mu.Unlock()
}

func (a *aggregator) add(e events.Entry) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if e.Start.Before(a.warmupEnd) {
		a.warmupSkipped++
		return
	}

	a.latencies = append(a.latencies, e.Duration)
	pa, ok := a.perAction[e.Action]
	if !ok {
		pa = &actionAgg{}
		a.perAction[e.Action] = pa
	}
	pa.latencies = append(pa.latencies, e.Duration)

	if e.Details.IsError() {
		a.failures++
		pa.failures++
	}
}
