// Package loader resolves model artifacts in the local model cache
// directory, delegating retrieval to a Downloader when allowed.
package loader

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"k8s.io/klog/v2"
)

var (
	// ErrDownloadDisabled is returned when a model is absent locally and
	// auto-download is off.
	ErrDownloadDisabled = errors.New("model not found and auto_download is disabled")
	// ErrNoDownloader is returned when auto-download is on but no
	// Downloader was configured.
	ErrNoDownloader = errors.New("no downloader configured")
	// ErrMetadataNotFound is returned when a model directory has no config.json.
	ErrMetadataNotFound = errors.New("model config not found")
	// ErrInvalidModelName is returned for names that would resolve outside
	// the cache directory.
	ErrInvalidModelName = errors.New("invalid model name")
)

// ArtifactFiles lists the files a Downloader is expected to fetch.
var ArtifactFiles = []string{
	"config.json",
	"model.safetensors",
	"tokenizer.json",
	"tokenizer_config.json",
	"vocab.txt",
}

// Downloader fetches the artifacts of a model into dest.
type Downloader interface {
	Download(ctx context.Context, name, dest string) error
}

// Loader finds models under a cache directory.
type Loader struct {
	downloader Downloader
}

// New creates a Loader. d may be nil, in which case downloads fail with
// ErrNoDownloader.
func New(d Downloader) *Loader {
	return &Loader{downloader: d}
}

// Load returns the directory holding the artifacts of name.
func (l *Loader) Load(ctx context.Context, name, cacheDir string, autoDownload bool) (string, error) {
	if err := ValidateName(name); err != nil {
		return "", fmt.Errorf("load model %q: %w", name, err)
	}
	modelPath := filepath.Join(cacheDir, filepath.FromSlash(name))

	if info, err := os.Stat(modelPath); err == nil && info.IsDir() {
		klog.InfoS("Model found in cache", "model", name, "path", modelPath)
		return modelPath, nil
	}

	if !autoDownload {
		return "", fmt.Errorf("load model %s: %w", name, ErrDownloadDisabled)
	}
	if l.downloader == nil {
		return "", fmt.Errorf("load model %s: %w", name, ErrNoDownloader)
	}

	if err := os.MkdirAll(modelPath, 0o755); err != nil {
		return "", fmt.Errorf("create model dir: %w", err)
	}

	klog.InfoS("Downloading model", "model", name, "dest", modelPath)
	if err := l.downloader.Download(ctx, name, modelPath); err != nil {
		_ = os.RemoveAll(modelPath)
		return "", fmt.Errorf("download model %s: %w", name, err)
	}
	klog.InfoS("Model download completed", "model", name)
	return modelPath, nil
}

// ValidateName accepts slash-separated hub names such as "org/model" and
// rejects anything that is empty, absolute, or climbs out of the cache dir.
func ValidateName(name string) error {
	if name == "" || strings.ContainsRune(name, '\\') {
		return ErrInvalidModelName
	}
	for _, seg := range strings.Split(name, "/") {
		if seg == "" || seg == "." || seg == ".." {
			return ErrInvalidModelName
		}
	}
	if !filepath.IsLocal(filepath.FromSlash(name)) {
		return ErrInvalidModelName
	}
	return nil
}

// Metadata is the subset of a model's config.json the server reports.
type Metadata struct {
	ModelType         string `json:"model_type,omitempty"`
	HiddenSize        int    `json:"hidden_size,omitempty"`
	NumAttentionHeads int    `json:"num_attention_heads,omitempty"`
	NumHiddenLayers   int    `json:"num_hidden_layers,omitempty"`
}

// ReadMetadata parses config.json from a model directory.
func ReadMetadata(modelPath string) (Metadata, error) {
	data, err := os.ReadFile(filepath.Join(modelPath, "config.json"))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Metadata{}, ErrMetadataNotFound
		}
		return Metadata{}, fmt.Errorf("read model config: %w", err)
	}

	var md Metadata
	if err := json.Unmarshal(data, &md); err != nil {
		return Metadata{}, fmt.Errorf("parse model config: %w", err)
	}
	return md, nil
}
