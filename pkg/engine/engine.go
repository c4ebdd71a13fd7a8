// Package engine defines the compute backend the serving layer calls for
// each input, plus a preprocessing step and a development backend.
package engine

import (
	"context"
	"math"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// Backend runs one forward pass for text on the named model.
type Backend interface {
	Infer(ctx context.Context, model, text string) ([]float32, error)
}

// BackendFunc adapts a function to Backend.
type BackendFunc func(ctx context.Context, model, text string) ([]float32, error)

// Infer calls f.
func (f BackendFunc) Infer(ctx context.Context, model, text string) ([]float32, error) {
	return f(ctx, model, text)
}

// HashingBackend is a deterministic stand-in for a real model. It maps
// whitespace tokens into a fixed number of buckets with signed feature
// hashing and L2-normalizes the result.
type HashingBackend struct {
	Dimensions int
}

// NewHashingBackend creates a HashingBackend. Non-positive dims default to 64.
func NewHashingBackend(dims int) *HashingBackend {
	if dims <= 0 {
		dims = 64
	}
	return &HashingBackend{Dimensions: dims}
}

// Infer implements Backend.
func (h *HashingBackend) Infer(ctx context.Context, model, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	vec := make([]float32, h.Dimensions)
	for _, tok := range strings.Fields(text) {
		sum := xxhash.Sum64String(model + "\x00" + tok)
		idx := sum % uint64(h.Dimensions)
		if sum&(1<<63) != 0 {
			vec[idx]--
		} else {
			vec[idx]++
		}
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm > 0 {
		inv := float32(1 / math.Sqrt(norm))
		for i := range vec {
			vec[i] *= inv
		}
	}
	return vec, nil
}
