// internal/utils/metrics.go
package utils

import (
	"strconv"
	"sync"
	"sync/atomic"
	"time"
)

// MetricsCollector collects application metrics
type MetricsCollector struct {
	counters   map[string]*int64
	gauges     map[string]*int64
	histograms map[string]*Histogram

	mu sync.RWMutex
}

// Histogram metric (simple implementation tracking count, sum, min, max)
type Histogram struct {
	count int64
	sum   int64
	min   int64
	max   int64
	mu    sync.Mutex
}

// NewMetricsCollector creates an empty collector.
func NewMetricsCollector() *MetricsCollector {
	return &MetricsCollector{
		counters:   make(map[string]*int64),
		gauges:     make(map[string]*int64),
		histograms: make(map[string]*Histogram),
	}
}

// slot returns the value cell for name in set, creating it on first use.
// Read lock covers the fast path; the write lock re-checks before inserting.
func (m *MetricsCollector) slot(set map[string]*int64, name string) *int64 {
	m.mu.RLock()
	v, exists := set[name]
	m.mu.RUnlock()
	if exists {
		return v
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if v, exists = set[name]; !exists {
		v = new(int64)
		set[name] = v
	}
	return v
}

// IncrementCounter increments a counter metric
func (m *MetricsCollector) IncrementCounter(name string) {
	atomic.AddInt64(m.slot(m.counters, name), 1)
}

// AddCounter adds a value to a counter metric
func (m *MetricsCollector) AddCounter(name string, value int64) {
	atomic.AddInt64(m.slot(m.counters, name), value)
}

// IncGauge increments a gauge metric
func (m *MetricsCollector) IncGauge(name string) {
	atomic.AddInt64(m.slot(m.gauges, name), 1)
}

// DecGauge decrements a gauge metric
func (m *MetricsCollector) DecGauge(name string) {
	atomic.AddInt64(m.slot(m.gauges, name), -1)
}

// GetGauge gets the current value of a gauge
func (m *MetricsCollector) GetGauge(name string) int64 {
	m.mu.RLock()
	v, exists := m.gauges[name]
	m.mu.RUnlock()
	if !exists {
		return 0
	}
	return atomic.LoadInt64(v)
}

// GetCounterValue gets the current value of a counter
func (m *MetricsCollector) GetCounterValue(name string) int64 {
	m.mu.RLock()
	v, exists := m.counters[name]
	m.mu.RUnlock()
	if !exists {
		return 0
	}
	return atomic.LoadInt64(v)
}

// RecordHistogram records a value in a histogram
func (m *MetricsCollector) RecordHistogram(name string, value int64) {
	m.mu.RLock()
	histogram, exists := m.histograms[name]
	m.mu.RUnlock()

	if !exists {
		m.mu.Lock()
		histogram, exists = m.histograms[name]
		if !exists {
			histogram = &Histogram{min: value, max: value}
			m.histograms[name] = histogram
		}
		m.mu.Unlock()
	}

	histogram.mu.Lock()
	defer histogram.mu.Unlock()

	histogram.count++
	histogram.sum += value
	if value < histogram.min {
		histogram.min = value
	}
	if value > histogram.max {
		histogram.max = value
	}
}

// GetMetrics returns a snapshot of all metrics
func (m *MetricsCollector) GetMetrics() map[string]interface{} {
	m.mu.RLock()
	defer m.mu.RUnlock()

	counters := make(map[string]int64, len(m.counters))
	for name, v := range m.counters {
		counters[name] = atomic.LoadInt64(v)
	}

	gauges := make(map[string]int64, len(m.gauges))
	for name, v := range m.gauges {
		gauges[name] = atomic.LoadInt64(v)
	}

	histograms := make(map[string]map[string]int64, len(m.histograms))
	for name, histogram := range m.histograms {
		histogram.mu.Lock()
		histograms[name] = map[string]int64{
			"count": histogram.count,
			"sum":   histogram.sum,
			"min":   histogram.min,
			"max":   histogram.max,
		}
		histogram.mu.Unlock()
	}

	return map[string]interface{}{
		"counters":   counters,
		"gauges":     gauges,
		"histograms": histograms,
	}
}

// NotesMetrics records workflow level metrics for the notes pipeline.
type NotesMetrics struct {
	metrics *MetricsCollector
	logger  *Logger
}

// NewNotesMetrics creates a recorder on top of a collector.
func NewNotesMetrics(metrics *MetricsCollector, logger *Logger) *NotesMetrics {
	return &NotesMetrics{metrics: metrics, logger: logger}
}

// Collector exposes the underlying collector for snapshots.
func (nm *NotesMetrics) Collector() *MetricsCollector {
	return nm.metrics
}

// RecordAPIRequest records metrics for an HTTP request
func (nm *NotesMetrics) RecordAPIRequest(method string, statusCode int, duration time.Duration) {
	nm.metrics.IncrementCounter("api_requests_total")
	nm.metrics.IncrementCounter("api_requests_" + method)
	nm.metrics.IncrementCounter("api_responses_" + strconv.Itoa(statusCode/100) + "xx")
	nm.metrics.RecordHistogram("api_response_time_ms", duration.Milliseconds())
}

// RecordTranscriptFetch records one transcript fetch. outcome is "ok",
// "blocked" or "failed".
func (nm *NotesMetrics) RecordTranscriptFetch(outcome string, duration time.Duration) {
	nm.metrics.IncrementCounter("transcript_fetch_total")
	nm.metrics.IncrementCounter("transcript_fetch_" + outcome)
	nm.metrics.RecordHistogram("transcript_fetch_time_ms", duration.Milliseconds())
}

// RecordSummary records one summarization call.
func (nm *NotesMetrics) RecordSummary(provider, model string, tokensUsed int, duration time.Duration, failed bool) {
	nm.metrics.IncrementCounter("llm_requests_total")
	if failed {
		nm.metrics.IncrementCounter("llm_requests_failed")
	} else {
		nm.metrics.AddCounter("llm_tokens_total", int64(tokensUsed))
	}
	nm.metrics.RecordHistogram("llm_response_time_ms", duration.Milliseconds())

	nm.logger.Debug("LLM request completed", map[string]interface{}{
		"provider": provider,
		"model":    model,
		"tokens":   tokensUsed,
		"duration": duration.Milliseconds(),
		"failed":   failed,
	})
}

// RecordManualSubmission counts transcripts pasted by the user.
func (nm *NotesMetrics) RecordManualSubmission() {
	nm.metrics.IncrementCounter("manual_transcripts_total")
}

// TrackInFlight marks a notes run as started and returns the func that ends it.
func (nm *NotesMetrics) TrackInFlight() func() {
	nm.metrics.IncGauge("notes_in_flight")
	return func() { nm.metrics.DecGauge("notes_in_flight") }
}
