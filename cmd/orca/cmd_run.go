package main

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/FairForge/orca/internal/directory"
	"github.com/FairForge/orca/internal/events"
	"github.com/FairForge/orca/internal/loadtest"
	"github.com/FairForge/orca/internal/metrics"
	"github.com/FairForge/orca/internal/preflight"
	"github.com/FairForge/orca/internal/state"
)

// errSLAFailed makes the process exit non-zero without repeating the report.
var errSLAFailed = errors.New("run did not meet its objectives")

func newRunCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Provision the directory and drive every actor",
		Long: `Provision the directory from a state file, then drive one actor per
person until the duration or iteration budget is spent.

Budget and pacing default to the profile stored in the state; flags override
them. Objectives given with --sla-file, --max-error-rate, --max-p95 or
--default-sla are checked against the summary and fail the command when missed.

Examples:
  orca run --state state.json --duration 30s
  orca run --state state.json --iterations 100 --rate 200 --metrics-addr :9090
  orca run --state state.json --chaos-error-rate 0.05 --max-error-rate 10`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd)
		},
	}

	f := cmd.Flags()
	f.StringP("state", "s", "state.json", "State file to read")
	f.Duration("duration", 0, "Run duration (default from profile)")
	f.Int("iterations", 0, "Transitions per actor")
	f.Duration("warmup", 0, "Leave records from the first part of the run out of the summary")
	f.Float64("rate", 0, "Transitions per second across all actors, 0 = unlimited")
	f.Int("max-concurrency", 0, "Actors driven at once, 0 = all")
	f.Int("bcrypt-cost", 0, "Password hash cost of the in-memory directory")
	f.Bool("enroll-mfa", false, "Enrol every present person in TOTP during preflight; actors answer with generated codes")
	f.Float64("chaos-error-rate", 0, "Probability of failing a directory call (0.0-1.0)")
	f.Duration("chaos-latency-min", 0, "Minimum latency added to directory calls")
	f.Duration("chaos-latency-max", 0, "Maximum latency added to directory calls")
	f.Uint64("chaos-seed", 0, "Seed for fault injection, 0 = random")
	f.String("metrics-addr", "", "Serve Prometheus metrics on this address")
	f.String("events-out", "", "Write every event record as JSON lines (.gz to compress)")
	f.Float64("max-error-rate", 0, "Fail when the error rate exceeds this percentage")
	f.Duration("max-p95", 0, "Fail when the p95 latency exceeds this")
	f.Bool("default-sla", false, "Check the built-in directory objectives")
	f.String("sla-file", "", "Check the objectives in this YAML file")
	f.Bool("json", false, "Print the summary as JSON")
	return cmd
}

func (a *app) run(cmd *cobra.Command) error {
	ctx := cmd.Context()
	f := cmd.Flags()

	path, _ := f.GetString("state")
	st, err := state.ReadFromPath(path)
	if err != nil {
		return err
	}

	config, err := runConfig(cmd, st)
	if err != nil {
		return err
	}
	sla, err := runSLA(cmd)
	if err != nil {
		return err
	}

	dir, err := openDirectory(cmd, st)
	if err != nil {
		return err
	}

	enroll, _ := f.GetBool("enroll-mfa")
	if _, err := preflight.Apply(ctx, dir, st, preflight.Options{EnrollMFA: enroll}, a.log); err != nil {
		return err
	}

	var connector directory.Connector = dir
	chaosConfig := directory.ChaosConfig{}
	chaosConfig.ErrorRate, _ = f.GetFloat64("chaos-error-rate")
	chaosConfig.LatencyMin, _ = f.GetDuration("chaos-latency-min")
	chaosConfig.LatencyMax, _ = f.GetDuration("chaos-latency-max")
	chaosConfig.Seed, _ = f.GetUint64("chaos-seed")
	if chaosConfig.Enabled() {
		chaos, err := directory.NewChaos(dir, chaosConfig)
		if err != nil {
			return err
		}
		connector = chaos
		defer func() {
			s := chaos.Stats()
			a.log.Info("chaos injected",
				zap.Int64("calls", s.Calls),
				zap.Int64("failures", s.Injected),
				zap.Int64("delayed", s.Delayed))
		}()
	}

	opts := []loadtest.Option{loadtest.WithLogger(a.log)}
	if enroll {
		opts = append(opts, loadtest.WithCodeSource(dir))
	}

	if addr, _ := f.GetString("metrics-addr"); addr != "" {
		collector := metrics.NewCollector()
		server := metrics.NewServer(addr, collector, a.log)
		if err := server.Start(); err != nil {
			return err
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			defer cancel()
			if err := server.Shutdown(shutdownCtx); err != nil {
				a.log.Warn("metrics server shutdown", zap.Error(err))
			}
		}()
		opts = append(opts, loadtest.WithObserver(collector))
	}

	if out, _ := f.GetString("events-out"); out != "" {
		w, err := events.CreateFile(out)
		if err != nil {
			return err
		}
		defer func() {
			if err := w.Close(); err != nil {
				a.log.Warn("close event output", zap.String("path", out), zap.Error(err))
			}
		}()
		opts = append(opts, loadtest.WithEventWriter(w))
	}

	runner, err := loadtest.NewRunner(config, opts...)
	if err != nil {
		return err
	}
	summary, err := runner.Run(ctx, st, connector)
	if err != nil {
		return err
	}

	if jsonOut, _ := f.GetBool("json"); jsonOut {
		if err := writeJSON(cmd.OutOrStdout(), summary); err != nil {
			return err
		}
	} else {
		fmt.Fprint(cmd.OutOrStdout(), summary.Report())
	}

	if sla == nil {
		return nil
	}
	result := loadtest.NewSLAValidator(sla).Validate(summary)
	fmt.Fprint(cmd.ErrOrStderr(), result.Report())
	if !result.OverallPass {
		return errSLAFailed
	}
	return nil
}

// runConfig starts from the profile stored in the state and applies flags
// the user set explicitly.
func runConfig(cmd *cobra.Command, st *state.State) (*loadtest.Config, error) {
	f := cmd.Flags()
	config := &loadtest.Config{
		Duration:       st.Profile.TestTime,
		Warmup:         st.Profile.WarmupTime,
		MaxConcurrency: st.Profile.MaxConcurrency,
		RateLimit:      st.Profile.RateLimit,
	}

	var err error
	if f.Changed("duration") {
		config.Duration, err = f.GetDuration("duration")
	}
	if err == nil && f.Changed("iterations") {
		config.Iterations, err = f.GetInt("iterations")
	}
	if err == nil && f.Changed("warmup") {
		config.Warmup, err = f.GetDuration("warmup")
	}
	if err == nil && f.Changed("rate") {
		config.RateLimit, err = f.GetFloat64("rate")
	}
	if err == nil && f.Changed("max-concurrency") {
		config.MaxConcurrency, err = f.GetInt("max-concurrency")
	}
	if err != nil {
		return nil, err
	}
	return config, config.Validate()
}

// openDirectory connects to the directory named by the profile. Only the
// in-memory directory is available.
func openDirectory(cmd *cobra.Command, st *state.State) (*directory.Memory, error) {
	u, err := url.Parse(st.Profile.ControlURI)
	if err != nil {
		return nil, fmt.Errorf("parse control uri: %w", err)
	}
	if u.Scheme != "memory" {
		return nil, fmt.Errorf("unsupported control uri scheme %q", u.Scheme)
	}

	config := directory.DefaultMemoryConfig()
	if cmd.Flags().Changed("bcrypt-cost") {
		config.BcryptCost, _ = cmd.Flags().GetInt("bcrypt-cost")
	}
	return directory.NewMemory(config)
}

// runSLA picks the objectives to check, if any. A file takes precedence over
// the built-in SLA, which takes precedence over single-objective flags.
func runSLA(cmd *cobra.Command) (*loadtest.SLA, error) {
	f := cmd.Flags()
	if path, _ := f.GetString("sla-file"); path != "" {
		return loadtest.LoadSLA(path)
	}
	if useDefault, _ := f.GetBool("default-sla"); useDefault {
		return loadtest.DefaultDirectorySLA(), nil
	}

	var objectives []loadtest.SLO
	if f.Changed("max-error-rate") {
		v, _ := f.GetFloat64("max-error-rate")
		objectives = append(objectives, loadtest.NewErrorRateSLO("Error Rate", v, loadtest.PriorityCritical))
	}
	if f.Changed("max-p95") {
		v, _ := f.GetDuration("max-p95")
		ms := float64(v) / float64(time.Millisecond)
		objectives = append(objectives, loadtest.NewLatencySLO("P95 Latency", loadtest.MetricLatencyP95, ms, loadtest.PriorityHigh))
	}
	if len(objectives) == 0 {
		return nil, nil
	}
	return loadtest.NewSLA("command-line", "Objectives given on the command line", objectives...), nil
}
