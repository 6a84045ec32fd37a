package loadtest

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"
	"text/tabwriter"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/FairForge/orca/internal/transition"
)

// SLA is a set of objectives a run must meet. It can be written by hand as
// YAML:
//
//	name: nightly
//	objectives:
//	  - name: login p95
//	    metric: latency_p95
//	    action: login
//	    target: 300
//	    priority: critical
type SLA struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description,omitempty"`
	Objectives  []SLO  `yaml:"objectives"`
}

// SLO is one measurable target.
type SLO struct {
	Name       string      `yaml:"name"`
	Metric     SLOMetric   `yaml:"metric"`
	Action     string      `yaml:"action,omitempty"` // "" = every action
	Target     float64     `yaml:"target"`
	Comparator Comparator  `yaml:"comparator,omitempty"`
	Priority   SLOPriority `yaml:"priority,omitempty"`
}

// SLOMetric identifies what an SLO measures.
type SLOMetric string

const (
	MetricLatencyP50  SLOMetric = "latency_p50"
	MetricLatencyP95  SLOMetric = "latency_p95"
	MetricLatencyP99  SLOMetric = "latency_p99"
	MetricLatencyMax  SLOMetric = "latency_max"
	MetricErrorRate   SLOMetric = "error_rate"
	MetricSuccessRate SLOMetric = "success_rate"
	MetricThroughput  SLOMetric = "throughput"
)

var metricUnits = map[SLOMetric]string{
	MetricLatencyP50:  "ms",
	MetricLatencyP95:  "ms",
	MetricLatencyP99:  "ms",
	MetricLatencyMax:  "ms",
	MetricErrorRate:   "%",
	MetricSuccessRate: "%",
	MetricThroughput:  "/s",
}

// Unit is the unit targets of m are expressed in.
func (m SLOMetric) Unit() string {
	return metricUnits[m]
}

// Comparator defines how an actual value is held against its target.
type Comparator string

const (
	ComparatorLessThan       Comparator = "<"
	ComparatorLessOrEqual    Comparator = "<="
	ComparatorGreaterThan    Comparator = ">"
	ComparatorGreaterOrEqual Comparator = ">="
)

// Holds reports whether actual satisfies the comparison with target. Unknown
// comparators never hold.
func (c Comparator) Holds(actual, target float64) bool {
	switch c {
	case ComparatorLessThan:
		return actual < target
	case ComparatorLessOrEqual:
		return actual <= target
	case ComparatorGreaterThan:
		return actual > target
	case ComparatorGreaterOrEqual:
		return actual >= target
	}
	return false
}

func (c Comparator) upperBound() bool {
	return c == ComparatorLessThan || c == ComparatorLessOrEqual
}

// SLOPriority indicates the importance of an SLO.
type SLOPriority string

const (
	PriorityCritical SLOPriority = "critical"
	PriorityHigh     SLOPriority = "high"
	PriorityMedium   SLOPriority = "medium"
	PriorityLow      SLOPriority = "low"
)

var priorities = []SLOPriority{PriorityCritical, PriorityHigh, PriorityMedium, PriorityLow}

// NewSLA builds an SLA from objectives.
func NewSLA(name, description string, objectives ...SLO) *SLA {
	return &SLA{Name: name, Description: description, Objectives: objectives}
}

// DefaultDirectorySLA returns objectives suitable for a directory serving
// interactive logins.
func DefaultDirectorySLA() *SLA {
	return NewSLA("directory-interactive", "Interactive authentication and self-service profile traffic",
		NewErrorRateSLO("Error Rate", 1, PriorityCritical),
		NewLatencySLO("P95 Latency", MetricLatencyP95, 250, PriorityHigh),
		NewLatencySLO("P99 Latency", MetricLatencyP99, 1000, PriorityCritical),
		SLO{
			Name:       "Login P95 Latency",
			Metric:     MetricLatencyP95,
			Action:     "login",
			Target:     500,
			Comparator: ComparatorLessOrEqual,
			Priority:   PriorityMedium,
		},
	)
}

// NewLatencySLO creates an upper bound on a latency metric, in milliseconds.
func NewLatencySLO(name string, metric SLOMetric, targetMs float64, priority SLOPriority) SLO {
	return SLO{Name: name, Metric: metric, Target: targetMs, Comparator: ComparatorLessOrEqual, Priority: priority}
}

// NewErrorRateSLO creates an upper bound on the error rate, in percent.
func NewErrorRateSLO(name string, targetPercent float64, priority SLOPriority) SLO {
	return SLO{Name: name, Metric: MetricErrorRate, Target: targetPercent, Comparator: ComparatorLessOrEqual, Priority: priority}
}

// NewThroughputSLO creates a lower bound on transitions per second.
func NewThroughputSLO(name string, targetPerSec float64, priority SLOPriority) SLO {
	return SLO{Name: name, Metric: MetricThroughput, Target: targetPerSec, Comparator: ComparatorGreaterOrEqual, Priority: priority}
}

// ApplyDefaults fills in default values for unset fields
func (s *SLA) ApplyDefaults() {
	for i := range s.Objectives {
		o := &s.Objectives[i]
		if o.Name == "" {
			o.Name = string(o.Metric)
			if o.Action != "" {
				o.Name += " " + o.Action
			}
		}
		if o.Comparator == "" {
			o.Comparator = ComparatorLessOrEqual
			if o.Metric == MetricThroughput || o.Metric == MetricSuccessRate {
				o.Comparator = ComparatorGreaterOrEqual
			}
		}
		if o.Priority == "" {
			o.Priority = PriorityMedium
		}
	}
}

// Validate checks if the SLA is valid
func (s *SLA) Validate() error {
	if len(s.Objectives) == 0 {
		return errors.New("sla: at least one objective is required")
	}
	for i, o := range s.Objectives {
		if _, ok := metricUnits[o.Metric]; !ok {
			return fmt.Errorf("sla: objective %d: unknown metric %q", i, o.Metric)
		}
		switch o.Comparator {
		case ComparatorLessThan, ComparatorLessOrEqual, ComparatorGreaterThan, ComparatorGreaterOrEqual:
		default:
			return fmt.Errorf("sla: objective %d: unknown comparator %q", i, o.Comparator)
		}
		if !slices.Contains(priorities, o.Priority) {
			return fmt.Errorf("sla: objective %d: unknown priority %q", i, o.Priority)
		}
		if o.Target < 0 {
			return fmt.Errorf("sla: objective %d: target must not be negative", i)
		}
		if o.Action != "" {
			if _, err := transition.ParseAction(o.Action); err != nil {
				return fmt.Errorf("sla: objective %d: %w", i, err)
			}
		}
	}
	return nil
}

// ParseSLA decodes a YAML SLA, applies defaults and validates it.
func ParseSLA(data []byte) (*SLA, error) {
	s := &SLA{}
	if err := yaml.Unmarshal(data, s); err != nil {
		return nil, fmt.Errorf("sla: decode: %w", err)
	}
	s.ApplyDefaults()
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// LoadSLA reads a YAML SLA from path.
func LoadSLA(path string) (*SLA, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("sla: read %s: %w", path, err)
	}
	return ParseSLA(data)
}

// SLAResult captures the result of validating against an SLA.
type SLAResult struct {
	SLA              *SLA
	Timestamp        time.Time
	Duration         time.Duration
	ObjectiveResults []SLOResult
	OverallPass      bool
	CriticalPass     bool
	Score            float64 // Percentage of objectives met
}

// SLOResult captures the result of a single SLO check.
type SLOResult struct {
	SLO         SLO
	ActualValue float64
	TargetMet   bool
	Margin      float64 // Distance to the target in the objective's unit, negative when missed
	Message     string
}

// SLAValidator validates run summaries against an SLA.
type SLAValidator struct {
	sla *SLA
}

// NewSLAValidator creates a validator for the given SLA.
func NewSLAValidator(sla *SLA) *SLAValidator {
	return &SLAValidator{sla: sla}
}

// Validate checks a summary against the SLA.
func (v *SLAValidator) Validate(summary *Summary) *SLAResult {
	result := &SLAResult{
		SLA:              v.sla,
		Timestamp:        time.Now(),
		Duration:         summary.Duration(),
		ObjectiveResults: make([]SLOResult, 0, len(v.sla.Objectives)),
		OverallPass:      true,
		CriticalPass:     true,
	}

	for _, slo := range v.sla.Objectives {
		res := check(slo, summary)
		result.ObjectiveResults = append(result.ObjectiveResults, res)
		if res.TargetMet {
			continue
		}
		result.OverallPass = false
		if slo.Priority == PriorityCritical {
			result.CriticalPass = false
		}
	}

	if n := len(result.ObjectiveResults); n > 0 {
		result.Score = float64(result.Passed()) / float64(n) * 100
	}
	return result
}

// measure extracts the value an objective is judged on, in the metric's unit.
func measure(slo SLO, summary *Summary) float64 {
	count, errorRate, latency := summary.TotalTransitions, summary.ErrorRate, summary.Latency
	if slo.Action != "" {
		as := summary.PerAction[slo.Action]
		if as == nil {
			as = &ActionSummary{}
		}
		count, errorRate, latency = as.Count, as.ErrorRate, as.Latency
	}

	switch slo.Metric {
	case MetricLatencyP50:
		return millis(latency.P50)
	case MetricLatencyP95:
		return millis(latency.P95)
	case MetricLatencyP99:
		return millis(latency.P99)
	case MetricLatencyMax:
		return millis(latency.Max)
	case MetricErrorRate:
		return errorRate * 100
	case MetricSuccessRate:
		if count == 0 {
			return 0
		}
		return (1 - errorRate) * 100
	case MetricThroughput:
		return summary.TransitionsPerSec
	}
	return 0
}

func check(slo SLO, summary *Summary) SLOResult {
	actual := measure(slo, summary)
	res := SLOResult{
		SLO:         slo,
		ActualValue: actual,
		TargetMet:   slo.Comparator.Holds(actual, slo.Target),
		Margin:      actual - slo.Target,
	}
	if slo.Comparator.upperBound() {
		res.Margin = slo.Target - actual
	}

	unit := slo.Metric.Unit()
	res.Message = fmt.Sprintf("%s: %.2f%s %s %.2f%s", slo.Name, actual, unit, slo.Comparator, slo.Target, unit)
	if !res.TargetMet {
		res.Message += fmt.Sprintf(" missed by %.2f%s", -res.Margin, unit)
	}
	return res
}

func millis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

// Passed counts the objectives that were met.
func (r *SLAResult) Passed() int {
	n := 0
	for _, res := range r.ObjectiveResults {
		if res.TargetMet {
			n++
		}
	}
	return n
}

// Failed returns the missed objectives, restricted to the given priorities
// when any are given.
func (r *SLAResult) Failed(only ...SLOPriority) []SLOResult {
	var failed []SLOResult
	for _, res := range r.ObjectiveResults {
		if res.TargetMet {
			continue
		}
		if len(only) > 0 && !slices.Contains(only, res.SLO.Priority) {
			continue
		}
		failed = append(failed, res)
	}
	return failed
}

// Report renders the result as a table, most important objectives first.
func (r *SLAResult) Report() string {
	var b strings.Builder

	status := "PASS"
	if !r.OverallPass {
		status = "FAIL"
	}
	fmt.Fprintf(&b, "SLA %s: %s (%d/%d objectives met, %.1f%%, measured %s)\n",
		r.SLA.Name, status, r.Passed(), len(r.ObjectiveResults), r.Score, r.Duration.Round(time.Millisecond))
	if !r.CriticalPass {
		b.WriteString("critical objectives missed\n")
	}
	b.WriteString("\n")

	tw := tabwriter.NewWriter(&b, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "PRIORITY\tOBJECTIVE\tACTUAL\tTARGET\tRESULT")
	for _, p := range priorities {
		for _, res := range r.ObjectiveResults {
			if res.SLO.Priority != p {
				continue
			}
			unit := res.SLO.Metric.Unit()
			outcome := "ok"
			if !res.TargetMet {
				outcome = "MISSED"
			}
			fmt.Fprintf(tw, "%s\t%s\t%.2f%s\t%s %.2f%s\t%s\n",
				p, res.SLO.Name, res.ActualValue, unit, res.SLO.Comparator, res.SLO.Target, unit, outcome)
		}
	}
	_ = tw.Flush()
	return b.String()
}
