package mcp

import (
	"context"
	"encoding/json"
)

type predictArgs struct {
	Text  string `json:"text"`
	Model string `json:"model"`
}

type historyArgs struct {
	Model string `json:"model"`
	Limit int    `json:"limit"`
}

type handler func(ctx context.Context, s *Server, args json.RawMessage) CallResult

var handlers = map[string]handler{
	"forge_predict":       handlePredict,
	"forge_models":        handleModels,
	"forge_model_stats":   handleModelStats,
	"forge_metrics":       handleMetrics,
	"forge_cache_stats":   handleCacheStats,
	"forge_bench_history": handleBenchHistory,
}

var noArgs = map[string]any{"type": "object", "properties": map[string]any{}}

var tools = []Tool{
	{
		Name:        "forge_predict",
		Description: "Run inference on a text and return its embedding summary.",
		InputSchema: map[string]any{
			"type":     "object",
			"required": []string{"text"},
			"properties": map[string]any{
				"text":  map[string]any{"type": "string", "description": "Input text"},
				"model": map[string]any{"type": "string", "description": "Model to switch to first (optional)"},
			},
		},
	},
	{Name: "forge_models", Description: "List registered models and the active one.", InputSchema: noArgs},
	{Name: "forge_model_stats", Description: "Show load time and inference count per model.", InputSchema: noArgs},
	{Name: "forge_metrics", Description: "Show request counts and latency statistics.", InputSchema: noArgs},
	{Name: "forge_cache_stats", Description: "Show result cache occupancy, hits and evictions.", InputSchema: noArgs},
	{
		Name:        "forge_bench_history",
		Description: "List recorded benchmark runs, newest first.",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"model": map[string]any{"type": "string", "description": "Filter by model (optional)"},
				"limit": map[string]any{"type": "integer", "description": "Maximum runs (default 10)"},
			},
		},
	},
}

func handlePredict(ctx context.Context, s *Server, raw json.RawMessage) CallResult {
	var args predictArgs
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &args); err != nil {
			return errorResult("invalid arguments: " + err.Error())
		}
	}
	if args.Text == "" {
		return errorResult("text is required")
	}

	res, err := s.svc.Predict(ctx, args.Model, args.Text)
	if err != nil {
		return errorResult(err.Error())
	}
	return textResult(formatPrediction(res))
}

func handleModels(_ context.Context, s *Server, _ json.RawMessage) CallResult {
	active, _ := s.svc.Manager.Active()
	return textResult(formatModels(s.svc.Manager.List(), active))
}

func handleModelStats(_ context.Context, s *Server, _ json.RawMessage) CallResult {
	return textResult(formatModelStats(s.svc.Manager.Registry().AllStats()))
}

func handleMetrics(_ context.Context, s *Server, _ json.RawMessage) CallResult {
	return textResult(formatSummary(s.svc.Stats.Summary()))
}

func handleCacheStats(_ context.Context, s *Server, _ json.RawMessage) CallResult {
	if s.svc.Cache == nil {
		return textResult("Result cache is disabled.")
	}
	return textResult(formatCacheStats(s.svc.Cache.Stats(), s.svc.Cache.MaxEntries()))
}

func handleBenchHistory(ctx context.Context, s *Server, raw json.RawMessage) CallResult {
	if s.history == nil {
		return errorResult("benchmark history is not configured")
	}
	args := historyArgs{Limit: 10}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &args); err != nil {
			return errorResult("invalid arguments: " + err.Error())
		}
	}

	runs, err := s.history.List(ctx, args.Model, args.Limit)
	if err != nil {
		return errorResult(err.Error())
	}
	return textResult(formatRuns(runs))
}
