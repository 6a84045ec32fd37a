// Package loadtest drives a simulated population against a directory and
// aggregates what happened.
//
// # Overview
//
// A Runner takes a generated simulation state, builds one actor per person
// and runs each actor on its own goroutine with its own directory session.
// Every executed transition produces an event record that flows through a
// shared sink to a single collector, which aggregates the run Summary and
// optionally exports records and feeds a metrics Observer.
//
// # Quick Start
//
//	st, _ := state.ReadFromPath("state.json")
//	runner, _ := loadtest.NewRunner(&loadtest.Config{
//	    Duration:  5 * time.Minute,
//	    Warmup:    30 * time.Second,
//	    RateLimit: 200,
//	}, loadtest.WithLogger(logger))
//
//	summary, err := runner.Run(ctx, st, dir)
//	fmt.Print(summary.Report())
//
// # Budget
//
// A run ends when Duration elapses, when every actor has executed Iterations
// transitions, or when ctx is cancelled, whichever comes first. Actors stop
// asking for new transitions at that point; a directory call already in flight
// completes and its record is kept.
//
// # SLA Gating
//
// An SLA is a list of objectives over a Summary: error rate, latency
// percentiles (overall or for one action) and throughput. SLAs are built in
// code or loaded from YAML with LoadSLA.
//
//	result := loadtest.NewSLAValidator(loadtest.DefaultDirectorySLA()).Validate(summary)
//	if !result.OverallPass {
//	    fmt.Print(result.Report())
//	}
package loadtest
