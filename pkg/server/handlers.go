package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"runtime"
	"time"

	"github.com/gorilla/mux"
	"k8s.io/klog/v2"

	"github.com/pario-ai/forge/pkg/dispatch"
	"github.com/pario-ai/forge/pkg/inference"
	"github.com/pario-ai/forge/pkg/loader"
	"github.com/pario-ai/forge/pkg/models"
	"github.com/pario-ai/forge/pkg/registry"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 4 << 20

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handlePredict(w http.ResponseWriter, r *http.Request) {
	var req models.PredictRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, models.PredictResponse{Error: "invalid request body"})
		return
	}

	res, err := s.svc.Predict(r.Context(), req.Model, req.Text)
	if err != nil {
		writeJSON(w, statusFor(err), models.PredictResponse{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, models.PredictResponse{Success: true, Result: &res})
}

func (s *Server) handlePredictBatch(w http.ResponseWriter, r *http.Request) {
	var req models.BatchPredictRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, models.BatchPredictResponse{Error: "invalid request body"})
		return
	}
	klog.V(2).InfoS("Batch prediction request received", "items", len(req.Texts))

	results, err := s.svc.PredictBatch(r.Context(), req.Model, req.Texts)
	if err != nil {
		writeJSON(w, statusFor(err), models.BatchPredictResponse{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, models.BatchPredictResponse{Success: true, Results: results})
}

func (s *Server) handleListModels(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"models": s.svc.Manager.List()})
}

func (s *Server) handleActiveModel(w http.ResponseWriter, r *http.Request) {
	name, ok := s.svc.Manager.Active()
	if !ok {
		writeJSON(w, http.StatusOK, map[string]any{
			"active_model": nil,
			"message":      "No active model",
		})
		return
	}
	resp := map[string]any{"active_model": name}
	if path, ok := s.svc.Manager.Path(name); ok {
		resp["path"] = path
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleActivateModel(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	if err := s.svc.Manager.Switch(r.Context(), name); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"success": false,
			"error":   err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Model switched to: " + name,
	})
}

func (s *Server) handleUnloadModel(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	if err := s.svc.Manager.Unload(name); err != nil {
		writeJSONError(w, http.StatusNotFound, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleModelStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"model_stats": s.svc.Manager.Registry().AllStats()})
}

func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"version": s.version,
		"uptime":  time.Since(s.started).Round(time.Second).String(),
		"device": map[string]any{
			"os":         runtime.GOOS,
			"arch":       runtime.GOARCH,
			"cpus":       runtime.NumCPU(),
			"goroutines": runtime.NumGoroutine(),
		},
		"config": map[string]any{
			"batch_size":     s.svc.Dispatcher.BatchSize(),
			"max_concurrent": s.svc.Dispatcher.MaxConcurrent(),
			"max_length":     s.cfg.Inference.MaxLength,
			"cache_enabled":  s.svc.Cache != nil,
		},
	})
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.svc.Stats.Summary())
}

func (s *Server) handleCacheStats(w http.ResponseWriter, r *http.Request) {
	if s.svc.Cache == nil {
		writeJSON(w, http.StatusOK, map[string]any{"enabled": false})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"enabled":     true,
		"max_entries": s.svc.Cache.MaxEntries(),
		"ttl":         s.svc.Cache.TTL().String(),
		"stats":       s.svc.Cache.Stats(),
	})
}

// handleClearCache empties the cache, or with ?expired=true drops only the
// expired entries and reports how many went.
func (s *Server) handleClearCache(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("expired") == "true" {
		removed := 0
		if s.svc.Cache != nil {
			removed = s.svc.Cache.PurgeExpired()
		}
		writeJSON(w, http.StatusOK, map[string]any{"removed": removed})
		return
	}
	if s.svc.Cache != nil {
		s.svc.Cache.Clear()
	}
	w.WriteHeader(http.StatusNoContent)
}

// statusFor maps service errors to HTTP status codes.
func statusFor(err error) int {
	var acqErr *dispatch.AcquisitionError
	switch {
	case errors.Is(err, inference.ErrEmptyBatch),
		errors.Is(err, inference.ErrNoActiveModel),
		errors.Is(err, inference.ErrSwitchFailed),
		errors.Is(err, registry.ErrNotRegistered),
		errors.Is(err, loader.ErrDownloadDisabled),
		errors.Is(err, loader.ErrInvalidModelName):
		return http.StatusBadRequest
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.As(err, &acqErr), errors.Is(err, dispatch.ErrPoolClosed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	return json.NewDecoder(r.Body).Decode(v)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		klog.ErrorS(err, "Failed to write response")
	}
}

func writeJSONError(w http.ResponseWriter, code int, message string) {
	writeJSON(w, code, models.ErrorResponse{Error: message, Code: code})
}
