// Package registry tracks which models are loaded and which one is active.
package registry

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"k8s.io/klog/v2"
)

// ErrNotRegistered is matched by errors.Is for any NotRegisteredError.
var ErrNotRegistered = errors.New("model not registered")

// NotRegisteredError is returned when activating a model that was never registered.
type NotRegisteredError struct {
	Name string
}

func (e *NotRegisteredError) Error() string {
	return fmt.Sprintf("model not registered: %s", e.Name)
}

// Is reports whether target is ErrNotRegistered.
func (e *NotRegisteredError) Is(target error) bool {
	return target == ErrNotRegistered
}

// ModelStats is a read-only snapshot of one registered model.
type ModelStats struct {
	Name           string    `json:"name"`
	LoadTime       time.Time `json:"load_time"`
	InferenceCount uint64    `json:"inference_count"`
}

type modelEntry struct {
	name           string
	loadTime       time.Time
	inferenceCount uint64
}

// Option configures a Registry.
type Option func(*Registry)

// WithClock overrides the time source used for load timestamps.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) {
		r.now = now
	}
}

// Registry maps model names to entries and holds the active model name.
// The active name, when set, is always a key of the map.
type Registry struct {
	mu     sync.RWMutex
	models map[string]*modelEntry
	active string
	now    func() time.Time
}

// New creates an empty Registry.
func New(opts ...Option) *Registry {
	r := &Registry{
		models: map[string]*modelEntry{},
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register inserts or overwrites the entry for name. Re-registering resets
// the load time and the inference counter.
func (r *Registry) Register(name string) {
	r.mu.Lock()
	r.models[name] = &modelEntry{
		name:     name,
		loadTime: r.now().UTC(),
	}
	r.mu.Unlock()

	klog.InfoS("Model registered", "model", name)
}

// Unregister removes name. If it was active, no model is active afterwards.
func (r *Registry) Unregister(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.models[name]; !ok {
		return false
	}
	delete(r.models, name)
	if r.active == name {
		r.active = ""
	}
	return true
}

// IsRegistered reports whether name has an entry.
func (r *Registry) IsRegistered(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.models[name]
	return ok
}

// SetActive makes name the active model. The existence check and the
// update happen under the same write lock.
func (r *Registry) SetActive(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.models[name]; !ok {
		return &NotRegisteredError{Name: name}
	}
	r.active = name
	return nil
}

// Active returns the active model name, if any.
func (r *Registry) Active() (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.active, r.active != ""
}

// List returns the registered names in no particular order.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.models))
	for name := range r.models {
		names = append(names, name)
	}
	return names
}

// Len returns the number of registered models.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.models)
}

// IncrementInferenceCount bumps the counter for name. Unknown names are ignored.
func (r *Registry) IncrementInferenceCount(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if e, ok := r.models[name]; ok {
		e.inferenceCount++
	}
}

// Stats returns a snapshot for name.
func (r *Registry) Stats(name string) (ModelStats, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.models[name]
	if !ok {
		return ModelStats{}, false
	}
	return e.snapshot(), true
}

// AllStats returns snapshots of every registered model.
func (r *Registry) AllStats() []ModelStats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]ModelStats, 0, len(r.models))
	for _, e := range r.models {
		out = append(out, e.snapshot())
	}
	return out
}

func (e *modelEntry) snapshot() ModelStats {
	return ModelStats{
		Name:           e.name,
		LoadTime:       e.loadTime,
		InferenceCount: e.inferenceCount,
	}
}
