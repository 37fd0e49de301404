// Package metrics provides metrics implementations for memchat
package metrics

import (
	"sort"
	"strings"
	"sync"

	"github.com/memtensor/memchat/pkg/interfaces"
)

// NoOpMetrics is a no-operation metrics implementation
type NoOpMetrics struct{}

// Counter increments a counter metric
func (m *NoOpMetrics) Counter(name string, value float64, labels map[string]string) {}

// Gauge sets a gauge metric
func (m *NoOpMetrics) Gauge(name string, value float64, labels map[string]string) {}

// Histogram records a histogram metric
func (m *NoOpMetrics) Histogram(name string, value float64, labels map[string]string) {}

// Timer records timing metrics
func (m *NoOpMetrics) Timer(name string, duration float64, labels map[string]string) {}

// Summary aggregates observed values for histograms and timers
type Summary struct {
	Count int64   `json:"count"`
	Sum   float64 `json:"sum"`
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
}

// Snapshot is a point-in-time copy of all recorded series
type Snapshot struct {
	Counters   map[string]float64 `json:"counters"`
	Gauges     map[string]float64 `json:"gauges"`
	Histograms map[string]Summary `json:"histograms"`
}

// InMemoryMetrics keeps series in process memory, keyed by name and sorted labels
type InMemoryMetrics struct {
	mu         sync.RWMutex
	counters   map[string]float64
	gauges     map[string]float64
	histograms map[string]*Summary
}

// Counter increments a counter metric
func (m *InMemoryMetrics) Counter(name string, value float64, labels map[string]string) {
	key := seriesKey(name, labels)
	m.mu.Lock()
	m.counters[key] += value
	m.mu.Unlock()
}

// Gauge sets a gauge metric
func (m *InMemoryMetrics) Gauge(name string, value float64, labels map[string]string) {
	key := seriesKey(name, labels)
	m.mu.Lock()
	m.gauges[key] = value
	m.mu.Unlock()
}

// Histogram records a histogram metric
func (m *InMemoryMetrics) Histogram(name string, value float64, labels map[string]string) {
	key := seriesKey(name, labels)
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.histograms[key]
	if !ok {
		m.histograms[key] = &Summary{Count: 1, Sum: value, Min: value, Max: value}
		return
	}
	s.Count++
	s.Sum += value
	if value < s.Min {
		s.Min = value
	}
	if value > s.Max {
		s.Max = value
	}
}

// Timer records timing metrics in milliseconds
func (m *InMemoryMetrics) Timer(name string, duration float64, labels map[string]string) {
	m.Histogram(name, duration, labels)
}

// Snapshot returns a copy of all series
func (m *InMemoryMetrics) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	snap := Snapshot{
		Counters:   make(map[string]float64, len(m.counters)),
		Gauges:     make(map[string]float64, len(m.gauges)),
		Histograms: make(map[string]Summary, len(m.histograms)),
	}
	for k, v := range m.counters {
		snap.Counters[k] = v
	}
	for k, v := range m.gauges {
		snap.Gauges[k] = v
	}
	for k, v := range m.histograms {
		snap.Histograms[k] = *v
	}
	return snap
}

// seriesKey renders name{a="1",b="2"} with labels in key order
func seriesKey(name string, labels map[string]string) string {
	if len(labels) == 0 {
		return name
	}

	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"=\""+labels[k]+"\"")
	}
	return name + "{" + strings.Join(parts, ",") + "}"
}

var _ interfaces.Metrics = (*NoOpMetrics)(nil)
var _ interfaces.Metrics = (*InMemoryMetrics)(nil)

// NewNoOpMetrics creates a new no-op metrics implementation
func NewNoOpMetrics() interfaces.Metrics {
	return &NoOpMetrics{}
}

// NewInMemoryMetrics creates an in-memory metrics registry
func NewInMemoryMetrics() *InMemoryMetrics {
	return &InMemoryMetrics{
		counters:   make(map[string]float64),
		gauges:     make(map[string]float64),
		histograms: make(map[string]*Summary),
	}
}

// NewTestMetrics creates a metrics implementation for testing
func NewTestMetrics() *InMemoryMetrics {
	return NewInMemoryMetrics()
}
