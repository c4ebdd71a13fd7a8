package models

import "time"

// BenchmarkRecord is one stored benchmark run.
type BenchmarkRecord struct {
	ID                  string    `json:"id"`
	Model               string    `json:"model"`
	BatchSize           int       `json:"batch_size"`
	MaxConcurrent       int       `json:"max_concurrent"`
	TotalRequests       int       `json:"total_requests"`
	DurationMs          float64   `json:"duration_ms"`
	AvgLatencyMs        float64   `json:"avg_latency_ms"`
	MinLatencyMs        float64   `json:"min_latency_ms"`
	MaxLatencyMs        float64   `json:"max_latency_ms"`
	ThroughputReqPerSec float64   `json:"throughput_req_per_sec"`
	P50LatencyMs        float64   `json:"p50_latency_ms"`
	P95LatencyMs        float64   `json:"p95_latency_ms"`
	P99LatencyMs        float64   `json:"p99_latency_ms"`
	CreatedAt           time.Time `json:"created_at"`
}

// BenchmarkSummary aggregates stored runs per model.
type BenchmarkSummary struct {
	Model             string  `json:"model"`
	Runs              int     `json:"runs"`
	TotalRequests     int     `json:"total_requests"`
	AvgThroughput     float64 `json:"avg_throughput"`
	BestP99LatencyMs  float64 `json:"best_p99_latency_ms"`
	WorstP99LatencyMs float64 `json:"worst_p99_latency_ms"`
}
