package stats

import (
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunningMean(t *testing.T) {
	a := NewAggregator()

	for i, tc := range []struct {
		latency time.Duration
		mean    float64
	}{
		{10 * time.Millisecond, 10},
		{20 * time.Millisecond, 15},
		{30 * time.Millisecond, 20},
	} {
		a.RecordInference(tc.latency)
		s := a.Summary()
		assert.InDelta(t, tc.mean, s.AvgLatencyMs, 1e-9, "mean after sample %d", i+1)
	}

	s := a.Summary()
	assert.Equal(t, uint64(3), s.TotalInferences)
	assert.Equal(t, 10.0, s.MinLatencyMs)
	assert.Equal(t, 30.0, s.MaxLatencyMs)
}

func TestEmptySummaryReportsZeroMin(t *testing.T) {
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	a := NewAggregator(WithSummaryClock(func() time.Time { return fixed }))

	s := a.Summary()
	assert.Zero(t, s.TotalInferences)
	assert.Zero(t, s.MinLatencyMs)
	assert.Zero(t, s.MaxLatencyMs)
	assert.Zero(t, s.AvgLatencyMs)
	assert.Equal(t, fixed, s.Timestamp)
}

func TestBatchInference(t *testing.T) {
	a := NewAggregator()
	a.RecordInference(5 * time.Millisecond)
	a.RecordBatchInference(16, 15*time.Millisecond)

	s := a.Summary()
	assert.Equal(t, uint64(2), s.TotalInferences)
	assert.Equal(t, uint64(1), s.TotalBatchInferences)
	assert.InDelta(t, 10.0, s.AvgLatencyMs, 1e-9)
	assert.Equal(t, 5.0, s.MinLatencyMs)
	assert.Equal(t, 15.0, s.MaxLatencyMs)

	assert.Equal(t, 2.0, testutil.ToFloat64(a.requests))
	assert.Equal(t, 1, testutil.CollectAndCount(a.batchSize))
}

func TestRunningMeanStableForManySamples(t *testing.T) {
	a := NewAggregator()
	for range 1_000_000 {
		a.RecordInference(7 * time.Millisecond)
	}
	assert.InDelta(t, 7.0, a.Summary().AvgLatencyMs, 1e-9)
}

func TestConcurrentRecording(t *testing.T) {
	a := NewAggregator()

	var wg sync.WaitGroup
	for i := range 100 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if i%2 == 0 {
				a.RecordInference(10 * time.Millisecond)
			} else {
				a.RecordBatchInference(4, 10*time.Millisecond)
			}
			a.Summary()
		}()
	}
	wg.Wait()

	s := a.Summary()
	assert.Equal(t, uint64(100), s.TotalInferences)
	assert.Equal(t, uint64(50), s.TotalBatchInferences)
	assert.InDelta(t, 10.0, s.AvgLatencyMs, 1e-9)
}

func TestPrometheusHandler(t *testing.T) {
	a := NewAggregator()
	a.RecordInference(3 * time.Millisecond)

	w := httptest.NewRecorder()
	a.Handler().ServeHTTP(w, httptest.NewRequest("GET", "/metrics", nil))

	body := w.Body.String()
	assert.True(t, strings.Contains(body, "forge_total_requests 1"), body)
	assert.True(t, strings.Contains(body, "forge_inference_latency_ms_count 1"), body)
}

func TestBenchmarkPercentiles(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	now := start
	b := NewBenchmark(WithBenchmarkClock(func() time.Time { return now }))
	b.Start()

	for i := 1; i <= 100; i++ {
		require.NoError(t, b.Record(time.Duration(i)*time.Millisecond))
	}
	now = start.Add(4 * time.Second)

	res, err := b.Finish()
	require.NoError(t, err)
	assert.Equal(t, 100, res.TotalRequests)
	assert.Equal(t, 4*time.Second, res.TotalDuration)
	assert.Equal(t, 50.0, res.P50LatencyMs)
	assert.Equal(t, 95.0, res.P95LatencyMs)
	assert.Equal(t, 99.0, res.P99LatencyMs)
	assert.Equal(t, 1.0, res.MinLatencyMs)
	assert.Equal(t, 100.0, res.MaxLatencyMs)
	assert.InDelta(t, 50.5, res.AvgLatencyMs, 1e-9)
	assert.InDelta(t, 25.0, res.ThroughputReqPerSec, 1e-9)
}

func TestBenchmarkUnsortedInput(t *testing.T) {
	b := NewBenchmark()
	for _, ms := range []int{30, 10, 20} {
		require.NoError(t, b.Record(time.Duration(ms)*time.Millisecond))
	}

	res, err := b.Finish()
	require.NoError(t, err)
	assert.Equal(t, 10.0, res.MinLatencyMs)
	assert.Equal(t, 30.0, res.MaxLatencyMs)
	assert.Equal(t, 20.0, res.P50LatencyMs)
	assert.Equal(t, 30.0, res.P99LatencyMs)
	// Never started: no elapsed time, so no throughput.
	assert.Zero(t, res.ThroughputReqPerSec)
}

func TestBenchmarkZeroSamples(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	now := start
	b := NewBenchmark(WithBenchmarkClock(func() time.Time { return now }))
	b.Start()
	now = start.Add(2 * time.Second)

	res, err := b.Finish()
	require.NoError(t, err)
	assert.Equal(t, 2*time.Second, res.TotalDuration)
	assert.Zero(t, res.TotalRequests)
	assert.Zero(t, res.AvgLatencyMs)
	assert.Zero(t, res.MinLatencyMs)
	assert.Zero(t, res.MaxLatencyMs)
	assert.Zero(t, res.ThroughputReqPerSec)
	assert.Zero(t, res.P50LatencyMs)
	assert.Zero(t, res.P95LatencyMs)
	assert.Zero(t, res.P99LatencyMs)
}

func TestBenchmarkIsSingleUse(t *testing.T) {
	b := NewBenchmark()
	require.NoError(t, b.Record(time.Millisecond))

	_, err := b.Finish()
	require.NoError(t, err)

	assert.ErrorIs(t, b.Record(time.Millisecond), ErrSessionFinished)
	_, err = b.Finish()
	assert.ErrorIs(t, err, ErrSessionFinished)
}

func TestPercentileClamp(t *testing.T) {
	samples := []float64{1, 2, 3}
	assert.Equal(t, 1.0, percentile(samples, 0))
	assert.Equal(t, 3.0, percentile(samples, 100))
	assert.Equal(t, 3.0, percentile(samples, 150))
}
