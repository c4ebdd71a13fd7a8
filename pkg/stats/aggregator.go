// Package stats aggregates inference latency and throughput.
package stats

import (
	"math"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Summary is a point-in-time copy of the running statistics.
type Summary struct {
	TotalInferences      uint64    `json:"total_inferences"`
	TotalBatchInferences uint64    `json:"total_batch_inferences"`
	AvgLatencyMs         float64   `json:"avg_latency_ms"`
	MaxLatencyMs         float64   `json:"max_latency_ms"`
	MinLatencyMs         float64   `json:"min_latency_ms"`
	Timestamp            time.Time `json:"timestamp"`
}

type running struct {
	totalInferences      uint64
	totalBatchInferences uint64
	meanMs               float64
	maxMs                float64
	minMs                float64
}

// Aggregator keeps running latency statistics and mirrors them into
// Prometheus instruments on its own registry.
type Aggregator struct {
	mu    sync.RWMutex
	stats running
	now   func() time.Time

	registry  *prometheus.Registry
	requests  prometheus.Counter
	latency   prometheus.Histogram
	batchSize prometheus.Histogram
}

// AggregatorOption configures an Aggregator.
type AggregatorOption func(*Aggregator)

// WithSummaryClock overrides the time source used for Summary timestamps.
func WithSummaryClock(now func() time.Time) AggregatorOption {
	return func(a *Aggregator) {
		a.now = now
	}
}

// NewAggregator creates an Aggregator with fresh Prometheus instruments.
func NewAggregator(opts ...AggregatorOption) *Aggregator {
	a := &Aggregator{
		stats:    running{minMs: math.Inf(1)},
		now:      time.Now,
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "forge_total_requests",
			Help: "Total number of inference requests",
		}),
		latency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "forge_inference_latency_ms",
			Help:    "Inference latency in milliseconds",
			Buckets: prometheus.ExponentialBuckets(1, 2, 14),
		}),
		batchSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "forge_batch_size",
			Help:    "Batch processing size",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10),
		}),
	}
	for _, opt := range opts {
		opt(a)
	}
	a.registry.MustRegister(a.requests, a.latency, a.batchSize)
	return a
}

func toMillis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

// RecordInference accounts one completed inference.
func (a *Aggregator) RecordInference(latency time.Duration) {
	ms := toMillis(latency)

	a.mu.Lock()
	a.recordLocked(ms)
	a.mu.Unlock()

	a.requests.Inc()
	a.latency.Observe(ms)
}

// RecordBatchInference accounts one completed batch of batchSize items.
// The batch counter and the latency update are applied together.
func (a *Aggregator) RecordBatchInference(batchSize int, latency time.Duration) {
	ms := toMillis(latency)

	a.mu.Lock()
	a.stats.totalBatchInferences++
	a.recordLocked(ms)
	a.mu.Unlock()

	a.batchSize.Observe(float64(batchSize))
	a.requests.Inc()
	a.latency.Observe(ms)
}

func (a *Aggregator) recordLocked(ms float64) {
	s := &a.stats
	s.totalInferences++
	s.meanMs += (ms - s.meanMs) / float64(s.totalInferences)
	s.maxMs = math.Max(s.maxMs, ms)
	s.minMs = math.Min(s.minMs, ms)
}

// Summary returns a snapshot. MinLatencyMs is 0 before any sample.
func (a *Aggregator) Summary() Summary {
	a.mu.RLock()
	s := a.stats
	a.mu.RUnlock()

	minMs := s.minMs
	if s.totalInferences == 0 {
		minMs = 0
	}
	return Summary{
		TotalInferences:      s.totalInferences,
		TotalBatchInferences: s.totalBatchInferences,
		AvgLatencyMs:         s.meanMs,
		MaxLatencyMs:         s.maxMs,
		MinLatencyMs:         minMs,
		Timestamp:            a.now().UTC(),
	}
}

// Registry exposes the Prometheus registry holding the instruments.
func (a *Aggregator) Registry() *prometheus.Registry {
	return a.registry
}

// Handler serves the instruments in the Prometheus text format.
func (a *Aggregator) Handler() http.Handler {
	return promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{})
}
