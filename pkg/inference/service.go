// Package inference composes the registry, result cache, dispatcher and
// statistics aggregator around a compute backend.
package inference

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"k8s.io/klog/v2"

	"github.com/pario-ai/forge/pkg/cache"
	"github.com/pario-ai/forge/pkg/dispatch"
	"github.com/pario-ai/forge/pkg/engine"
	"github.com/pario-ai/forge/pkg/manager"
	"github.com/pario-ai/forge/pkg/models"
	"github.com/pario-ai/forge/pkg/stats"
)

var (
	// ErrEmptyBatch is returned for a batch request without inputs.
	ErrEmptyBatch = errors.New("empty batch")
	// ErrNoActiveModel is returned when no model is named and none is active.
	ErrNoActiveModel = errors.New("no active model")
	// ErrSwitchFailed wraps failures to load or activate a requested model.
	ErrSwitchFailed = errors.New("failed to switch model")
)

// Service runs predictions. Cache may be nil to disable result caching.
type Service struct {
	Manager      *manager.Manager
	Cache        *cache.Cache
	Dispatcher   *dispatch.Dispatcher
	Stats        *stats.Aggregator
	Backend      engine.Backend
	Preprocessor engine.Preprocessor
}

// resolveModel switches to the requested model, or falls back to the active one.
func (s *Service) resolveModel(ctx context.Context, requested string) (string, error) {
	if requested != "" {
		if err := s.Manager.Switch(ctx, requested); err != nil {
			return "", fmt.Errorf("%w %s: %w", ErrSwitchFailed, requested, err)
		}
		return requested, nil
	}
	name, ok := s.Manager.Active()
	if !ok {
		return "", ErrNoActiveModel
	}
	return name, nil
}

func (s *Service) cacheKey(model, text string) string {
	return cache.Key(model, text, "max_length="+strconv.Itoa(s.Preprocessor.MaxInputLength))
}

// infer serves one text, consulting the cache first.
func (s *Service) infer(ctx context.Context, model, text string) (models.InferenceResult, error) {
	start := time.Now()
	clean := s.Preprocessor.Apply(text)
	res := models.InferenceResult{Model: model, Text: text}

	var key string
	if s.Cache != nil {
		key = s.cacheKey(model, clean)
		if v, ok := s.Cache.Get(key); ok {
			s.Manager.Registry().IncrementInferenceCount(model)
			res.Embedding = v
			res.Cached = true
			res.LatencyMs = float64(time.Since(start)) / float64(time.Millisecond)
			return res, nil
		}
	}

	v, err := s.Backend.Infer(ctx, model, clean)
	if err != nil {
		return models.InferenceResult{}, err
	}
	if s.Cache != nil {
		s.Cache.Insert(key, v)
	}
	s.Manager.Registry().IncrementInferenceCount(model)

	res.Embedding = v
	res.LatencyMs = float64(time.Since(start)) / float64(time.Millisecond)
	return res, nil
}

// Predict serves a single text.
func (s *Service) Predict(ctx context.Context, model, text string) (models.InferenceResult, error) {
	start := time.Now()

	name, err := s.resolveModel(ctx, model)
	if err != nil {
		return models.InferenceResult{}, err
	}

	res, err := s.infer(ctx, name, text)
	if err != nil {
		klog.ErrorS(err, "Inference failed", "model", name)
		return models.InferenceResult{}, err
	}

	s.Stats.RecordInference(time.Since(start))
	return res, nil
}

// PredictBatch serves texts through the dispatcher. Results are in input
// order; any failing item fails the whole batch.
func (s *Service) PredictBatch(ctx context.Context, model string, texts []string) ([]models.InferenceResult, error) {
	if len(texts) == 0 {
		return nil, ErrEmptyBatch
	}
	start := time.Now()

	name, err := s.resolveModel(ctx, model)
	if err != nil {
		return nil, err
	}

	results, err := dispatch.Process(ctx, s.Dispatcher, texts, func(ctx context.Context, text string) (models.InferenceResult, error) {
		return s.infer(ctx, name, text)
	})
	if err != nil {
		klog.ErrorS(err, "Batch inference failed", "model", name, "items", len(texts))
		return nil, err
	}

	s.Stats.RecordBatchInference(len(results), time.Since(start))
	klog.V(2).InfoS("Batch inference completed", "model", name, "items", len(results))
	return results, nil
}
