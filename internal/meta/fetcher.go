package meta

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/renameio/v2"

	"tapedeck/internal/logging"
)

// Loader hands out manifests for recording identifiers.
type Loader interface {
	// Manifest returns the recording's manifest, from cache when possible.
	Manifest(ctx context.Context, identifier, date string) (*Manifest, error)
	// CachedManifest returns the manifest only if it is already on disk.
	CachedManifest(identifier, date string) (*Manifest, bool)
}

// Fetcher loads archive manifests from GET /metadata/<identifier> with a
// local write-through cache.
type Fetcher struct {
	baseURL    string
	cacheRoot  string
	httpClient *http.Client
	logger     *slog.Logger
}

var _ Loader = (*Fetcher)(nil)

// FetcherOption configures a Fetcher.
type FetcherOption func(*Fetcher)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) FetcherOption {
	return func(f *Fetcher) {
		if client != nil {
			f.httpClient = client
		}
	}
}

// WithLogger attaches a logger.
func WithLogger(logger *slog.Logger) FetcherOption {
	return func(f *Fetcher) {
		if logger != nil {
			f.logger = logging.NewComponentLogger(logger, "meta")
		}
	}
}

// NewFetcher creates a manifest fetcher caching under cacheRoot.
func NewFetcher(baseURL, cacheRoot string, opts ...FetcherOption) (*Fetcher, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, errors.New("metadata base url required")
	}
	if cacheRoot == "" {
		return nil, errors.New("metadata cache root required")
	}
	fetcher := &Fetcher{
		baseURL:    baseURL,
		cacheRoot:  cacheRoot,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     logging.NewNop(),
	}
	for _, opt := range opts {
		opt(fetcher)
	}
	return fetcher, nil
}

// CachePath returns the manifest cache location for a recording.
func (f *Fetcher) CachePath(identifier, date string) string {
	year, month := "0000", "0"
	if len(date) >= 7 {
		year = date[:4]
		month = strings.TrimPrefix(date[5:7], "0")
	}
	return filepath.Join(f.cacheRoot, year, month, identifier+".json")
}

// CachedManifest loads the cached manifest if present and well-formed.
func (f *Fetcher) CachedManifest(identifier, date string) (*Manifest, bool) {
	data, err := os.ReadFile(f.CachePath(identifier, date))
	if err != nil {
		return nil, false
	}
	var manifest Manifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		// A corrupt cache entry is refetched rather than trusted.
		return nil, false
	}
	return &manifest, true
}

// Manifest returns the recording's manifest, fetching and caching it when it
// is not already on disk.
func (f *Fetcher) Manifest(ctx context.Context, identifier, date string) (*Manifest, error) {
	if manifest, ok := f.CachedManifest(identifier, date); ok {
		return manifest, nil
	}

	requestURL := f.baseURL + "/metadata/" + identifier
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch manifest for %s: %w", identifier, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &ParseError{Identifier: identifier, Reason: fmt.Sprintf("metadata endpoint returned %d", resp.StatusCode)}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read manifest for %s: %w", identifier, err)
	}

	var manifest Manifest
	if err := json.Unmarshal(body, &manifest); err != nil {
		return nil, &ParseError{Identifier: identifier, Reason: "malformed manifest json"}
	}

	if err := f.writeCache(identifier, date, body); err != nil {
		// The manifest is still usable; cache misses just refetch.
		f.logger.Warn("failed to cache manifest",
			logging.String(logging.FieldIdentifier, identifier),
			logging.Error(err))
	}
	return &manifest, nil
}

func (f *Fetcher) writeCache(identifier, date string, body []byte) error {
	path := f.CachePath(identifier, date)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil && !errors.Is(err, fs.ErrExist) {
		return err
	}
	return renameio.WriteFile(path, body, 0o644)
}
