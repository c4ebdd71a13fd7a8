package mcp

import (
	"fmt"
	"strings"

	"github.com/pario-ai/forge/pkg/cache"
	"github.com/pario-ai/forge/pkg/models"
	"github.com/pario-ai/forge/pkg/registry"
	"github.com/pario-ai/forge/pkg/stats"
)

// previewDims is how many embedding values a prediction shows.
const previewDims = 8

func formatPrediction(r models.InferenceResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Model:      %s\n", r.Model)
	fmt.Fprintf(&b, "Cached:     %t\n", r.Cached)
	fmt.Fprintf(&b, "Latency:    %.3f ms\n", r.LatencyMs)
	fmt.Fprintf(&b, "Dimensions: %d\n", len(r.Embedding))

	n := min(len(r.Embedding), previewDims)
	vals := make([]string, n)
	for i := range n {
		vals[i] = fmt.Sprintf("%.4f", r.Embedding[i])
	}
	suffix := ""
	if len(r.Embedding) > n {
		suffix = ", ..."
	}
	fmt.Fprintf(&b, "Embedding:  [%s%s]\n", strings.Join(vals, ", "), suffix)
	return b.String()
}

func formatModels(names []string, active string) string {
	if len(names) == 0 {
		return "No models registered."
	}
	var b strings.Builder
	for _, n := range names {
		marker := " "
		if n == active {
			marker = "*"
		}
		fmt.Fprintf(&b, "%s %s\n", marker, n)
	}
	return b.String()
}

func formatModelStats(all []registry.ModelStats) string {
	if len(all) == 0 {
		return "No models registered."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%-30s %-20s %12s\n", "Model", "Loaded", "Inferences")
	b.WriteString(strings.Repeat("-", 64) + "\n")
	for _, st := range all {
		fmt.Fprintf(&b, "%-30s %-20s %12d\n", st.Name, st.LoadTime.Format("2006-01-02 15:04:05"), st.InferenceCount)
	}
	return b.String()
}

func formatSummary(s stats.Summary) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Inferences:       %d\n", s.TotalInferences)
	fmt.Fprintf(&b, "Batch inferences: %d\n", s.TotalBatchInferences)
	fmt.Fprintf(&b, "Latency avg:      %.3f ms\n", s.AvgLatencyMs)
	fmt.Fprintf(&b, "Latency min/max:  %.3f / %.3f ms\n", s.MinLatencyMs, s.MaxLatencyMs)
	return b.String()
}

func formatCacheStats(s cache.Stats, maxEntries int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Entries:   %d / %d\n", s.Entries, maxEntries)
	fmt.Fprintf(&b, "Hits:      %d\n", s.Hits)
	fmt.Fprintf(&b, "Misses:    %d\n", s.Misses)
	if total := s.Hits + s.Misses; total > 0 {
		fmt.Fprintf(&b, "Hit rate:  %.1f%%\n", float64(s.Hits)/float64(total)*100)
	}
	fmt.Fprintf(&b, "Evictions: %d\n", s.Evictions)
	fmt.Fprintf(&b, "Expired:   %d\n", s.Expired)
	return b.String()
}

func formatRuns(runs []models.BenchmarkRecord) string {
	if len(runs) == 0 {
		return "No benchmark runs recorded."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%-20s %-25s %8s %10s %10s %10s\n", "Time", "Model", "Requests", "Req/s", "P95 ms", "P99 ms")
	b.WriteString(strings.Repeat("-", 88) + "\n")
	for _, r := range runs {
		fmt.Fprintf(&b, "%-20s %-25s %8d %10.1f %10.3f %10.3f\n",
			r.CreatedAt.Format("2006-01-02 15:04:05"), r.Model, r.TotalRequests,
			r.ThroughputReqPerSec, r.P95LatencyMs, r.P99LatencyMs)
	}
	return b.String()
}
