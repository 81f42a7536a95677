package telemetry

import (
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// Labels represents a set of dimensional labels for metrics.
type Labels map[string]string

// String returns a canonical representation usable as a map key.
func (l Labels) String() string {
	if len(l) == 0 {
		return ""
	}
	keys := make([]string, 0, len(l))
	for k := range l {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	result := ""
	for i, k := range keys {
		if i > 0 {
			result += ","
		}
		result += fmt.Sprintf("%s=%s", k, l[k])
	}
	return result
}

// Counter is a monotonically increasing metric.
type Counter struct {
	name   string
	labels Labels
	value  atomic.Int64
}

// NewCounter creates a counter with the given name and labels.
func NewCounter(name string, labels Labels) *Counter {
	if labels == nil {
		labels = Labels{}
	}
	return &Counter{name: name, labels: labels}
}

// Inc increments the counter by 1.
func (c *Counter) Inc() {
	if c == nil {
		return
	}
	c.value.Add(1)
}

// Get returns the current value.
func (c *Counter) Get() int64 {
	if c == nil {
		return 0
	}
	return c.value.Load()
}

// Histogram samples durations and tracks count/sum.
type Histogram struct {
	name   string
	labels Labels
	sum    atomic.Int64 // nanoseconds
	count  atomic.Int64
}

// NewHistogram creates a histogram with the given name and labels.
func NewHistogram(name string, labels Labels) *Histogram {
	if labels == nil {
		labels = Labels{}
	}
	return &Histogram{name: name, labels: labels}
}

// ObserveDuration records one duration observation.
func (h *Histogram) ObserveDuration(d time.Duration) {
	if h == nil {
		return
	}
	h.sum.Add(int64(d))
	h.count.Add(1)
}

// Count returns the number of observations.
func (h *Histogram) Count() int64 {
	if h == nil {
		return 0
	}
	return h.count.Load()
}

// Mean returns the mean observed duration.
func (h *Histogram) Mean() time.Duration {
	if h == nil {
		return 0
	}
	n := h.count.Load()
	if n == 0 {
		return 0
	}
	return time.Duration(h.sum.Load() / n)
}

// MetricsRegistry manages counters and histograms.
type MetricsRegistry struct {
	mu         sync.Mutex
	counters   map[string]*Counter
	histograms map[string]*Histogram
}

// NewMetricsRegistry creates an empty metrics registry.
func NewMetricsRegistry() *MetricsRegistry {
	return &MetricsRegistry{
		counters:   make(map[string]*Counter),
		histograms: make(map[string]*Histogram),
	}
}

func makeKey(name string, labels Labels) string {
	if len(labels) == 0 {
		return name
	}
	return name + "{" + labels.String() + "}"
}

// Counter returns the counter registered under name+labels, creating it if needed.
func (r *MetricsRegistry) Counter(name string, labels Labels) *Counter {
	if r == nil {
		return NewCounter(name, labels)
	}
	key := makeKey(name, labels)
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.counters[key]; ok {
		return c
	}
	c := NewCounter(name, labels)
	r.counters[key] = c
	return c
}

// Histogram returns the histogram registered under name+labels, creating it if needed.
func (r *MetricsRegistry) Histogram(name string, labels Labels) *Histogram {
	if r == nil {
		return NewHistogram(name, labels)
	}
	key := makeKey(name, labels)
	r.mu.Lock()
	defer r.mu.Unlock()
	if h, ok := r.histograms[key]; ok {
		return h
	}
	h := NewHistogram(name, labels)
	r.histograms[key] = h
	return h
}

// DefaultMetrics is the process-wide metrics registry.
var DefaultMetrics = NewMetricsRegistry()

// Predefined metric names.
const (
	MetricRunsTotal            = "runs_total"
	MetricRunDurationSeconds   = "run_duration_seconds"
	MetricToolCallsTotal       = "tool_calls_total"
	MetricToolDurationSeconds  = "tool_duration_seconds"
	MetricPlannerRequestsTotal = "planner_requests_total"
	MetricApprovalsTotal       = "approvals_total"
)

// RecordToolCall records a tool invocation.
func RecordToolCall(toolName string) {
	DefaultMetrics.Counter(MetricToolCallsTotal, Labels{"tool_name": toolName}).Inc()
}

// RecordToolDuration records the duration of a tool execution.
func RecordToolDuration(toolName string, d time.Duration) {
	DefaultMetrics.Histogram(MetricToolDurationSeconds, Labels{"tool_name": toolName}).ObserveDuration(d)
}

// RecordPlannerRequest records one planner call.
func RecordPlannerRequest(model string) {
	DefaultMetrics.Counter(MetricPlannerRequestsTotal, Labels{"model": model}).Inc()
}

// RecordRun records one completed run and its duration.
func RecordRun(action string, d time.Duration) {
	DefaultMetrics.Counter(MetricRunsTotal, Labels{"action": action}).Inc()
	DefaultMetrics.Histogram(MetricRunDurationSeconds, nil).ObserveDuration(d)
}

// RecordApproval records one approval resolution by outcome.
func RecordApproval(status string) {
	DefaultMetrics.Counter(MetricApprovalsTotal, Labels{"status": status}).Inc()
}
