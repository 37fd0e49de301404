package metrics

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/memtensor/memchat/pkg/interfaces"
)

func TestNoOpMetrics(t *testing.T) {
	t.Run("Interface Implementation", func(t *testing.T) {
		var _ interfaces.Metrics = &NoOpMetrics{}
	})

	t.Run("Calls Do Not Panic", func(t *testing.T) {
		metrics := NewNoOpMetrics()
		assert.NotPanics(t, func() {
			metrics.Counter("c", 1, map[string]string{"a": "b"})
			metrics.Gauge("g", 1, nil)
			metrics.Histogram("h", 1, nil)
			metrics.Timer("t", 1, nil)
		})
	})
}

func TestInMemoryMetrics(t *testing.T) {
	t.Run("Counter", func(t *testing.T) {
		metrics := NewInMemoryMetrics()
		metrics.Counter("chat_messages_sent_total", 1, nil)
		metrics.Counter("chat_messages_sent_total", 2, nil)

		snap := metrics.Snapshot()
		assert.Equal(t, 3.0, snap.Counters["chat_messages_sent_total"])
	})

	t.Run("Labels Are Sorted", func(t *testing.T) {
		metrics := NewInMemoryMetrics()
		metrics.Counter("http_requests_total", 1, map[string]string{"status": "200", "method": "GET"})
		metrics.Counter("http_requests_total", 1, map[string]string{"method": "GET", "status": "200"})

		snap := metrics.Snapshot()
		assert.Equal(t, 2.0, snap.Counters[`http_requests_total{method="GET",status="200"}`])
	})

	t.Run("Gauge", func(t *testing.T) {
		metrics := NewInMemoryMetrics()
		metrics.Gauge("open_conversations", 5, nil)
		metrics.Gauge("open_conversations", 3, nil)

		assert.Equal(t, 3.0, metrics.Snapshot().Gauges["open_conversations"])
	})

	t.Run("Histogram And Timer", func(t *testing.T) {
		metrics := NewInMemoryMetrics()
		metrics.Histogram("size", 10, nil)
		metrics.Histogram("size", 2, nil)
		metrics.Timer("size", 6, nil)

		s := metrics.Snapshot().Histograms["size"]
		assert.Equal(t, int64(3), s.Count)
		assert.Equal(t, 18.0, s.Sum)
		assert.Equal(t, 2.0, s.Min)
		assert.Equal(t, 10.0, s.Max)
	})

	t.Run("Snapshot Is A Copy", func(t *testing.T) {
		metrics := NewInMemoryMetrics()
		metrics.Counter("c", 1, nil)
		snap := metrics.Snapshot()
		metrics.Counter("c", 1, nil)

		assert.Equal(t, 1.0, snap.Counters["c"])
		assert.Equal(t, 2.0, metrics.Snapshot().Counters["c"])
	})

	t.Run("Concurrent Use", func(t *testing.T) {
		metrics := NewInMemoryMetrics()
		var wg sync.WaitGroup
		for i := 0; i < 50; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				metrics.Counter("c", 1, nil)
				metrics.Timer("t", 1, nil)
			}()
		}
		wg.Wait()

		snap := metrics.Snapshot()
		assert.Equal(t, 50.0, snap.Counters["c"])
		assert.Equal(t, int64(50), snap.Histograms["t"].Count)
	})
}
