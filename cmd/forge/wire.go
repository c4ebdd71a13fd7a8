package main

import (
	"context"
	"fmt"

	"github.com/pario-ai/forge/pkg/cache"
	"github.com/pario-ai/forge/pkg/config"
	"github.com/pario-ai/forge/pkg/dispatch"
	"github.com/pario-ai/forge/pkg/engine"
	"github.com/pario-ai/forge/pkg/inference"
	"github.com/pario-ai/forge/pkg/loader"
	"github.com/pario-ai/forge/pkg/manager"
	"github.com/pario-ai/forge/pkg/registry"
	"github.com/pario-ai/forge/pkg/stats"
)

// newService builds the inference service described by cfg and loads the
// default model. The caller must Close the returned dispatcher.
func newService(ctx context.Context, cfg *config.Config) (*inference.Service, error) {
	d, err := dispatch.New(cfg.Inference.BatchSize, cfg.Inference.MaxConcurrent)
	if err != nil {
		return nil, fmt.Errorf("init dispatcher: %w", err)
	}

	var c *cache.Cache
	if cfg.Cache.Enabled {
		c, err = cache.New(cfg.Cache.MaxEntries, cfg.Cache.TTL)
		if err != nil {
			d.Close()
			return nil, fmt.Errorf("init cache: %w", err)
		}
	}

	repos := make(map[string]string, len(cfg.Models.Available))
	for _, m := range cfg.Models.Available {
		repos[m.Name] = m.Repo
	}
	l := loader.New(loader.NewHubDownloader(cfg.Models.HubURL, repos))

	m := manager.New(registry.New(), l.Load, manager.Options{
		DefaultModel: cfg.Models.Default,
		CacheDir:     cfg.Models.CacheDir,
		AutoDownload: cfg.Models.AutoDownload,
	})
	if err := m.LoadDefault(ctx); err != nil {
		d.Close()
		return nil, fmt.Errorf("load default model: %w", err)
	}

	return &inference.Service{
		Manager:    m,
		Cache:      c,
		Dispatcher: d,
		Stats:      stats.NewAggregator(),
		Backend:    engine.NewHashingBackend(cfg.Inference.Dimensions),
		Preprocessor: engine.Preprocessor{
			Lowercase:          true,
			RemoveSpecialChars: true,
			MaxInputLength:     cfg.Inference.MaxLength,
		},
	}, nil
}
