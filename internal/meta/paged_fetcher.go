package meta

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"tapedeck/internal/remote"
)

// PagedFetcher adapts the page-numbered show API to the Loader contract: a
// show's track listing is reshaped into the same Manifest form the archive
// endpoint produces, and cached identically.
type PagedFetcher struct {
	baseURL    string
	token      string
	cache      *Fetcher
	httpClient *http.Client
}

var _ Loader = (*PagedFetcher)(nil)

// NewPagedFetcher creates a manifest loader for a paged show endpoint,
// reusing fetcher's disk cache.
func NewPagedFetcher(baseURL, token string, cache *Fetcher) (*PagedFetcher, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, errors.New("paged base url required")
	}
	if cache == nil {
		return nil, errors.New("paged fetcher requires a cache fetcher")
	}
	return &PagedFetcher{
		baseURL:    baseURL,
		token:      strings.TrimSpace(token),
		cache:      cache,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}, nil
}

type pagedTrack struct {
	Title    string         `json:"title"`
	Position remote.FlexInt `json:"position"`
	Duration remote.FlexInt `json:"duration"`
	Set      string         `json:"set"`
	MP3      string         `json:"mp3"`
}

type pagedShowDetail struct {
	Data struct {
		Date      string       `json:"date"`
		VenueName string       `json:"venue_name"`
		Venue     struct {
			Location string `json:"location"`
		} `json:"venue"`
		Tracks []pagedTrack `json:"tracks"`
	} `json:"data"`
}

// CachedManifest delegates to the shared disk cache.
func (p *PagedFetcher) CachedManifest(identifier, date string) (*Manifest, bool) {
	return p.cache.CachedManifest(identifier, date)
}

// Manifest fetches the show for the recording's date and reshapes its track
// list into manifest files carrying direct MP3 URLs.
func (p *PagedFetcher) Manifest(ctx context.Context, identifier, date string) (*Manifest, error) {
	if manifest, ok := p.cache.CachedManifest(identifier, date); ok {
		return manifest, nil
	}

	requestURL := p.baseURL + "/api/v1/shows/" + date
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if p.token != "" {
		req.Header.Set("Authorization", "Bearer "+p.token)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch show %s: %w", date, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &ParseError{Identifier: identifier, Reason: fmt.Sprintf("show endpoint returned %d", resp.StatusCode)}
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read show %s: %w", date, err)
	}

	var detail pagedShowDetail
	if err := json.Unmarshal(body, &detail); err != nil {
		return nil, &ParseError{Identifier: identifier, Reason: "malformed show json"}
	}

	manifest := &Manifest{
		Metadata: Metadata{
			Venue:    remote.FlexString(detail.Data.VenueName),
			Coverage: remote.FlexString(detail.Data.Venue.Location),
		},
	}
	for _, track := range detail.Data.Tracks {
		manifest.Files = append(manifest.Files, File{
			Name:   track.Title,
			Source: "original",
			Format: "MP3",
			Title:  track.Title,
			Track:  remote.FlexString(fmt.Sprint(int(track.Position))),
			Size:   track.Duration,
			URL:    track.MP3,
		})
	}

	if encoded, err := json.Marshal(manifest); err == nil {
		_ = p.cache.writeCache(identifier, date, encoded)
	}
	return manifest, nil
}
