// Package manager loads models on demand and keeps the registry in step.
package manager

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/singleflight"
	"k8s.io/klog/v2"

	"github.com/pario-ai/forge/pkg/registry"
)

// ErrNoDefaultModel is returned by LoadDefault when none is configured.
var ErrNoDefaultModel = errors.New("no default model configured")

// LoadFunc resolves a model's artifacts and returns their location.
type LoadFunc func(ctx context.Context, name, cacheDir string, autoDownload bool) (string, error)

// Options configures a Manager.
type Options struct {
	DefaultModel string
	CacheDir     string
	AutoDownload bool
}

// Manager composes a registry with a model-loading collaborator.
type Manager struct {
	registry *registry.Registry
	load     LoadFunc
	opts     Options

	group singleflight.Group

	mu    sync.RWMutex
	paths map[string]string
}

// New creates a Manager.
func New(reg *registry.Registry, load LoadFunc, opts Options) *Manager {
	return &Manager{
		registry: reg,
		load:     load,
		opts:     opts,
		paths:    map[string]string{},
	}
}

// Registry returns the underlying registry.
func (m *Manager) Registry() *registry.Registry {
	return m.registry
}

// LoadDefault loads, registers and activates the configured default model.
func (m *Manager) LoadDefault(ctx context.Context) error {
	if m.opts.DefaultModel == "" {
		return ErrNoDefaultModel
	}
	klog.InfoS("Loading default model", "model", m.opts.DefaultModel)
	return m.Switch(ctx, m.opts.DefaultModel)
}

// Ensure loads and registers name unless it is already registered.
// Concurrent calls for the same name share one load. The shared load is
// detached from any single caller's cancellation; each caller stops waiting
// when its own ctx is done.
func (m *Manager) Ensure(ctx context.Context, name string) error {
	if m.registry.IsRegistered(name) {
		return nil
	}

	loadCtx := context.WithoutCancel(ctx)
	ch := m.group.DoChan(name, func() (any, error) {
		if m.registry.IsRegistered(name) {
			return nil, nil
		}
		path, err := m.load(loadCtx, name, m.opts.CacheDir, m.opts.AutoDownload)
		if err != nil {
			return nil, err
		}

		m.mu.Lock()
		m.paths[name] = path
		m.mu.Unlock()

		m.registry.Register(name)
		return nil, nil
	})

	select {
	case <-ctx.Done():
		return fmt.Errorf("load model %s: %w", name, ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return fmt.Errorf("load model %s: %w", name, res.Err)
		}
		return nil
	}
}

// Unload forgets name. Its artifacts stay on disk. If name was active, no
// model is active afterwards.
func (m *Manager) Unload(name string) error {
	if !m.registry.Unregister(name) {
		return &registry.NotRegisteredError{Name: name}
	}

	m.mu.Lock()
	delete(m.paths, name)
	m.mu.Unlock()

	klog.InfoS("Model unloaded", "model", name)
	return nil
}

// Switch makes name the active model, loading it first when needed.
func (m *Manager) Switch(ctx context.Context, name string) error {
	klog.V(2).InfoS("Switching model", "model", name)

	if err := m.Ensure(ctx, name); err != nil {
		return err
	}
	if err := m.registry.SetActive(name); err != nil {
		return err
	}

	klog.InfoS("Model switched", "model", name)
	return nil
}

// Active returns the active model name.
func (m *Manager) Active() (string, bool) {
	return m.registry.Active()
}

// List returns the registered model names.
func (m *Manager) List() []string {
	return m.registry.List()
}

// Path returns where the artifacts of name were found.
func (m *Manager) Path(name string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.paths[name]
	return p, ok
}
