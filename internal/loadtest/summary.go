package loadtest

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/FairForge/orca/internal/transition"
)

// Latency is a latency distribution.
type Latency struct {
	Min time.Duration `json:"min"`
	Max time.Duration `json:"max"`
	Avg time.Duration `json:"avg"`
	P50 time.Duration `json:"p50"`
	P95 time.Duration `json:"p95"`
	P99 time.Duration `json:"p99"`
}

// ActionSummary aggregates the records of one action.
type ActionSummary struct {
	Count     int64   `json:"count"`
	Failures  int64   `json:"failures"`
	ErrorRate float64 `json:"error_rate"`
	Latency   Latency `json:"latency"`
}

// Summary aggregates a run. Records that started during warmup are counted in
// WarmupSkipped only.
type Summary struct {
	RunID             string                    `json:"run_id"`
	StartTime         time.Time                 `json:"start_time"`
	EndTime           time.Time                 `json:"end_time"`
	Actors            int                       `json:"actors"`
	TotalTransitions  int64                     `json:"total_transitions"`
	SuccessCount      int64                     `json:"success_count"`
	FailureCount      int64                     `json:"failure_count"`
	ConnectFailures   int64                     `json:"connect_failures"`
	WarmupSkipped     int64                     `json:"warmup_skipped"`
	ErrorRate         float64                   `json:"error_rate"`
	TransitionsPerSec float64                   `json:"transitions_per_sec"`
	Latency           Latency                   `json:"latency"`
	PerAction         map[string]*ActionSummary `json:"per_action"`
}

// Duration is the measured part of the run.
func (s *Summary) Duration() time.Duration {
	return s.EndTime.Sub(s.StartTime)
}

func (a *aggregator) summary(end time.Time) *Summary {
	a.mu.Lock()
	defer a.mu.Unlock()

	measuredFrom := a.warmupEnd
	if end.Before(measuredFrom) {
		measuredFrom = end
	}

	total := int64(len(a.latencies))
	s := &Summary{
		RunID:            a.runID,
		StartTime:        measuredFrom,
		EndTime:          end,
		Actors:           a.actors,
		TotalTransitions: total,
		SuccessCount:     total - a.failures,
		FailureCount:     a.failures,
		ConnectFailures:  a.connectFailures,
		WarmupSkipped:    a.warmupSkipped,
		Latency:          calculatePercentiles(a.latencies),
		PerAction:        make(map[string]*ActionSummary, len(a.perAction)),
	}

	if secs := end.Sub(measuredFrom).Seconds(); secs > 0 {
		s.TransitionsPerSec = float64(total) / secs
	}
	if total > 0 {
		s.ErrorRate = float64(a.failures) / float64(total)
	}

	for action, pa := range a.perAction {
		as := &ActionSummary{
			Count:    int64(len(pa.latencies)),
			Failures: pa.failures,
			Latency:  calculatePercentiles(pa.latencies),
		}
		if as.Count > 0 {
			as.ErrorRate = float64(as.Failures) / float64(as.Count)
		}
		s.PerAction[action] = as
	}
	return s
}

// calculatePercentiles computes latency statistics.
func calculatePercentiles(latencies []time.Duration) Latency {
	if len(latencies) == 0 {
		return Latency{}
	}

	sorted := slices.Clone(latencies)
	slices.Sort(sorted)

	var total time.Duration
	for _, l := range sorted {
		total += l
	}

	n := len(sorted)
	return Latency{
		Min: sorted[0],
		Max: sorted[n-1],
		Avg: total / time.Duration(n),
		P50: sorted[n*50/100],
		P95: sorted[n*95/100],
		P99: sorted[n*99/100],
	}
}

// Report renders the summary as a plain text table.
func (s *Summary) Report() string {
	var b strings.Builder

	fmt.Fprintf(&b, "Run %s\n", s.RunID)
	fmt.Fprintf(&b, "Actors: %d  Measured: %s  Warmup records skipped: %d\n",
		s.Actors, s.Duration().Round(time.Millisecond), s.WarmupSkipped)
	fmt.Fprintf(&b, "Transitions: %d  OK: %d  Failed: %d  Error rate: %.2f%%  Throughput: %.1f/s\n",
		s.TotalTransitions, s.SuccessCount, s.FailureCount, s.ErrorRate*100, s.TransitionsPerSec)
	if s.ConnectFailures > 0 {
		fmt.Fprintf(&b, "Connect failures: %d\n", s.ConnectFailures)
	}
	b.WriteString("\n")

	fmt.Fprintf(&b, "%-16s %8s %8s %10s %10s %10s %10s %10s\n",
		"action", "count", "failed", "min", "avg", "p50", "p95", "p99")
	for a := range transition.Actions() {
		as, ok := s.PerAction[a.String()]
		if !ok {
			continue
		}
		writeRow(&b, a.String(), as.Count, as.Failures, as.Latency)
	}
	writeRow(&b, "all", s.TotalTransitions, s.FailureCount, s.Latency)
	return b.String()
}

func writeRow(b *strings.Builder, name string, count, failed int64, l Latency) {
	fmt.Fprintf(b, "%-16s %8d %8d %10s %10s %10s %10s %10s\n",
		name, count, failed,
		round(l.Min), round(l.Avg), round(l.P50), round(l.P95), round(l.P99))
}

func round(d time.Duration) time.Duration {
	return d.Round(time.Microsecond)
}
