package manager

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pario-ai/forge/pkg/registry"
)

func countingLoader(calls *atomic.Int32, fail map[string]error) LoadFunc {
	return func(ctx context.Context, name, cacheDir string, autoDownload bool) (string, error) {
		calls.Add(1)
		time.Sleep(5 * time.Millisecond)
		if err := fail[name]; err != nil {
			return "", err
		}
		return filepath.Join(cacheDir, name), nil
	}
}

func TestLoadDefault(t *testing.T) {
	var calls atomic.Int32
	reg := registry.New()
	m := New(reg, countingLoader(&calls, nil), Options{DefaultModel: "bert", CacheDir: "/models"})

	require.NoError(t, m.LoadDefault(context.Background()))

	active, ok := m.Active()
	assert.True(t, ok)
	assert.Equal(t, "bert", active)
	assert.True(t, reg.IsRegistered("bert"))

	path, ok := m.Path("bert")
	assert.True(t, ok)
	assert.Equal(t, filepath.Join("/models", "bert"), path)
}

func TestLoadDefaultUnset(t *testing.T) {
	var calls atomic.Int32
	m := New(registry.New(), countingLoader(&calls, nil), Options{})
	assert.ErrorIs(t, m.LoadDefault(context.Background()), ErrNoDefaultModel)
}

func TestSwitchLoadsOnlyUnknownModels(t *testing.T) {
	var calls atomic.Int32
	m := New(registry.New(), countingLoader(&calls, nil), Options{})
	ctx := context.Background()

	require.NoError(t, m.Switch(ctx, "a"))
	require.NoError(t, m.Switch(ctx, "b"))
	require.NoError(t, m.Switch(ctx, "a"))

	assert.Equal(t, int32(2), calls.Load())
	active, _ := m.Active()
	assert.Equal(t, "a", active)
	assert.ElementsMatch(t, []string{"a", "b"}, m.List())
}

func TestSwitchLoadFailureLeavesActiveUnchanged(t *testing.T) {
	var calls atomic.Int32
	boom := errors.New("missing artifacts")
	m := New(registry.New(), countingLoader(&calls, map[string]error{"bad": boom}), Options{})
	ctx := context.Background()

	require.NoError(t, m.Switch(ctx, "good"))
	err := m.Switch(ctx, "bad")
	assert.ErrorIs(t, err, boom)

	active, _ := m.Active()
	assert.Equal(t, "good", active)
	assert.False(t, m.Registry().IsRegistered("bad"))
}

func TestConcurrentSwitchLoadsOnce(t *testing.T) {
	var calls atomic.Int32
	m := New(registry.New(), countingLoader(&calls, nil), Options{})

	var wg sync.WaitGroup
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, m.Switch(context.Background(), "shared"))
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
}

func TestEnsureSurvivesFirstCallerCancel(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	var loadCtxErr atomic.Value

	load := func(ctx context.Context, name, cacheDir string, autoDownload bool) (string, error) {
		close(started)
		<-release
		if err := ctx.Err(); err != nil {
			loadCtxErr.Store(err)
			return "", err
		}
		return filepath.Join(cacheDir, name), nil
	}
	reg := registry.New()
	m := New(reg, load, Options{CacheDir: "/models"})

	firstCtx, cancel := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() { firstErr <- m.Switch(firstCtx, "bert") }()
	<-started

	secondErr := make(chan error, 1)
	go func() { secondErr <- m.Switch(context.Background(), "bert") }()

	cancel()
	assert.ErrorIs(t, <-firstErr, context.Canceled)

	close(release)
	require.NoError(t, <-secondErr)

	assert.Nil(t, loadCtxErr.Load())
	assert.True(t, reg.IsRegistered("bert"))
	active, _ := m.Active()
	assert.Equal(t, "bert", active)
}

func TestUnload(t *testing.T) {
	var calls atomic.Int32
	reg := registry.New()
	m := New(reg, countingLoader(&calls, nil), Options{DefaultModel: "bert", CacheDir: "/models"})
	require.NoError(t, m.LoadDefault(context.Background()))

	require.NoError(t, m.Unload("bert"))
	assert.False(t, reg.IsRegistered("bert"))
	_, ok := m.Active()
	assert.False(t, ok)
	_, ok = m.Path("bert")
	assert.False(t, ok)

	assert.ErrorIs(t, m.Unload("bert"), registry.ErrNotRegistered)

	// A later switch loads it again.
	require.NoError(t, m.Switch(context.Background(), "bert"))
	assert.Equal(t, int32(2), calls.Load())
}
