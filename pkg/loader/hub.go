package loader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"k8s.io/klog/v2"
)

// DefaultHubURL is the model hub files are resolved against.
const DefaultHubURL = "https://huggingface.co"

// ErrNoArtifacts is returned when none of ArtifactFiles could be fetched.
var ErrNoArtifacts = errors.New("no model artifacts found")

// HubDownloader fetches ArtifactFiles over HTTP from a model hub laid out
// as {BaseURL}/{repo}/resolve/main/{file}. Missing files are skipped.
type HubDownloader struct {
	BaseURL string
	Client  *http.Client
	// Repos maps model names to hub repositories; unmapped names are used as is.
	Repos map[string]string
}

// NewHubDownloader creates a HubDownloader against baseURL.
func NewHubDownloader(baseURL string, repos map[string]string) *HubDownloader {
	if baseURL == "" {
		baseURL = DefaultHubURL
	}
	return &HubDownloader{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Client:  &http.Client{Timeout: 10 * time.Minute},
		Repos:   repos,
	}
}

// Download implements Downloader.
func (h *HubDownloader) Download(ctx context.Context, name, dest string) error {
	repo := name
	if r, ok := h.Repos[name]; ok && r != "" {
		repo = r
	}

	fetched := 0
	for _, file := range ArtifactFiles {
		ok, err := h.fetch(ctx, repo, file, filepath.Join(dest, file))
		if err != nil {
			return err
		}
		if !ok {
			klog.InfoS("Optional model file not found", "repo", repo, "file", file)
			continue
		}
		klog.V(2).InfoS("Downloaded model file", "repo", repo, "file", file)
		fetched++
	}

	if fetched == 0 {
		return fmt.Errorf("%w: %s", ErrNoArtifacts, repo)
	}
	return nil
}

// fetch reports false when the hub has no such file.
func (h *HubDownloader) fetch(ctx context.Context, repo, file, dest string) (bool, error) {
	url := fmt.Sprintf("%s/%s/resolve/main/%s", h.BaseURL, repo, file)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false, fmt.Errorf("create request: %w", err)
	}

	resp, err := h.Client.Do(req)
	if err != nil {
		return false, fmt.Errorf("fetch %s: %w", file, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return false, nil
	case resp.StatusCode != http.StatusOK:
		return false, fmt.Errorf("fetch %s: unexpected status %d", file, resp.StatusCode)
	}

	f, err := os.Create(dest)
	if err != nil {
		return false, fmt.Errorf("create %s: %w", file, err)
	}
	if _, err := io.Copy(f, resp.Body); err != nil {
		f.Close()
		return false, fmt.Errorf("write %s: %w", file, err)
	}
	return true, f.Close()
}
