package stats

import (
	"errors"
	"math"
	"slices"
	"sync"
	"time"
)

// ErrSessionFinished is returned when a finished Benchmark is used again.
var ErrSessionFinished = errors.New("benchmark session already finished")

// Result summarizes a finished benchmark session.
type Result struct {
	TotalRequests       int           `json:"total_requests"`
	TotalDuration       time.Duration `json:"total_duration"`
	AvgLatencyMs        float64       `json:"avg_latency_ms"`
	MinLatencyMs        float64       `json:"min_latency_ms"`
	MaxLatencyMs        float64       `json:"max_latency_ms"`
	ThroughputReqPerSec float64       `json:"throughput_req_per_sec"`
	P50LatencyMs        float64       `json:"p50_latency_ms"`
	P95LatencyMs        float64       `json:"p95_latency_ms"`
	P99LatencyMs        float64       `json:"p99_latency_ms"`
}

// BenchmarkOption configures a Benchmark.
type BenchmarkOption func(*Benchmark)

// WithBenchmarkClock overrides the time source used for elapsed time.
func WithBenchmarkClock(now func() time.Time) BenchmarkOption {
	return func(b *Benchmark) {
		b.now = now
	}
}

// Benchmark collects latency samples for a single session. Record may be
// called from several goroutines.
type Benchmark struct {
	mu        sync.Mutex
	latencies []float64
	start     time.Time
	started   bool
	finished  bool
	now       func() time.Time
}

// NewBenchmark creates an unstarted session.
func NewBenchmark(opts ...BenchmarkOption) *Benchmark {
	b := &Benchmark{now: time.Now}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Start begins (or restarts) the session timer.
func (b *Benchmark) Start() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.start = b.now()
	b.started = true
}

// Record appends one latency sample.
func (b *Benchmark) Record(latency time.Duration) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.finished {
		return ErrSessionFinished
	}
	b.latencies = append(b.latencies, toMillis(latency))
	return nil
}

// Len returns the number of samples recorded so far.
func (b *Benchmark) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.latencies)
}

// Finish closes the session and computes its result. It can be called once.
func (b *Benchmark) Finish() (Result, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.finished {
		return Result{}, ErrSessionFinished
	}
	b.finished = true

	var elapsed time.Duration
	if b.started {
		elapsed = b.now().Sub(b.start)
	}

	n := len(b.latencies)
	if n == 0 {
		return Result{TotalDuration: elapsed}, nil
	}

	samples := b.latencies
	b.latencies = nil
	slices.Sort(samples)

	var sum float64
	for _, v := range samples {
		sum += v
	}

	var throughput float64
	if secs := elapsed.Seconds(); secs > 0 {
		throughput = float64(n) / secs
	}

	return Result{
		TotalRequests:       n,
		TotalDuration:       elapsed,
		AvgLatencyMs:        sum / float64(n),
		MinLatencyMs:        samples[0],
		MaxLatencyMs:        samples[n-1],
		ThroughputReqPerSec: throughput,
		P50LatencyMs:        percentile(samples, 50),
		P95LatencyMs:        percentile(samples, 95),
		P99LatencyMs:        percentile(samples, 99),
	}, nil
}

// percentile returns sorted[ceil(p/100*n)-1], clamped to the valid range.
func percentile(sorted []float64, p float64) float64 {
	idx := int(math.Ceil(p/100*float64(len(sorted)))) - 1
	idx = max(0, min(idx, len(sorted)-1))
	return sorted[idx]
}
