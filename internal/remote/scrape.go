package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"tapedeck/internal/logging"
)

const (
	scrapePath  = "/services/search/v1/scrape"
	scrapeCount = 10000

	// The scrape endpoint duplicates rows across cursor pages; letting the
	// cumulative count overshoot total by 25% absorbs that before we stop.
	overshootFactor = 1.25

	maxServerRetries = 5
)

var scrapeFields = []string{
	"identifier", "date", "avg_rating", "num_reviews", "num_favorites",
	"stars", "downloads", "files_count", "format", "collection", "source",
	"subject", "type", "addeddate",
}

// Server sort order is a hint only; callers must not rely on it.
var scrapeSorts = []string{"date asc", "avg_rating desc", "num_favorites desc", "downloads desc"}

// ScrapeClient paginates the archive's scrape endpoint with an opaque cursor.
type ScrapeClient struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger

	// backoffUnit scales the linear 502 backoff (unit, 2*unit, ...). The
	// production value is 5 seconds.
	backoffUnit time.Duration
}

var _ Searcher = (*ScrapeClient)(nil)

// ScrapeOption configures a ScrapeClient.
type ScrapeOption func(*ScrapeClient)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) ScrapeOption {
	return func(c *ScrapeClient) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithBackoffUnit overrides the 502 retry backoff unit.
func WithBackoffUnit(unit time.Duration) ScrapeOption {
	return func(c *ScrapeClient) {
		if unit > 0 {
			c.backoffUnit = unit
		}
	}
}

// WithLogger attaches a logger for pagination progress.
func WithLogger(logger *slog.Logger) ScrapeOption {
	return func(c *ScrapeClient) {
		if logger != nil {
			c.logger = logging.NewComponentLogger(logger, "remote")
		}
	}
}

// NewScrapeClient creates a client for the archive scrape endpoint.
func NewScrapeClient(baseURL string, opts ...ScrapeOption) (*ScrapeClient, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, errors.New("scrape base url required")
	}
	client := &ScrapeClient{
		baseURL:     baseURL,
		httpClient:  &http.Client{Timeout: 60 * time.Second},
		logger:      logging.NewNop(),
		backoffUnit: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(client)
	}
	return client, nil
}

type scrapeResponse struct {
	Total  int             `json:"total"`
	Count  int             `json:"count"`
	Cursor string          `json:"cursor"`
	Items  []Descriptor    `json:"items"`
	Error  json.RawMessage `json:"error"`
}

// GetAll walks the cursor chain until the cumulative row count reaches
// 1.25x the reported total or a chunk contributes no new identifiers.
func (c *ScrapeClient) GetAll(ctx context.Context, q Query) ([]Descriptor, error) {
	seen := make(map[string]Descriptor)
	cumulative := 0
	cursor := ""
	total := -1

	for {
		chunk, err := c.fetchChunk(ctx, q, cursor)
		if err != nil {
			return nil, err
		}
		if total < 0 {
			total = chunk.Total
			c.logger.Debug("scrape query started",
				logging.String(logging.FieldCollection, q.Collection),
				logging.Int("total", total))
		}
		cumulative += chunk.Count

		added := 0
		for _, d := range chunk.Items {
			if d.Identifier == "" {
				continue
			}
			if _, ok := seen[d.Identifier]; !ok {
				added++
			}
			seen[d.Identifier] = d
		}

		if added == 0 || chunk.Cursor == "" || float64(cumulative) >= overshootFactor*float64(total) {
			break
		}
		cursor = chunk.Cursor
	}

	descriptors := make([]Descriptor, 0, len(seen))
	for _, d := range seen {
		descriptors = append(descriptors, d)
	}
	c.logger.Debug("scrape query finished",
		logging.String(logging.FieldCollection, q.Collection),
		logging.Int("descriptors", len(descriptors)))
	return descriptors, nil
}

func (c *ScrapeClient) fetchChunk(ctx context.Context, q Query, cursor string) (*scrapeResponse, error) {
	endpoint, err := url.Parse(c.baseURL + scrapePath)
	if err != nil {
		return nil, fmt.Errorf("parse scrape url: %w", err)
	}

	params := url.Values{}
	params.Set("debug", "false")
	params.Set("xvar", "production")
	params.Set("total_only", "false")
	params.Set("count", fmt.Sprint(scrapeCount))
	params.Set("fields", strings.Join(scrapeFields, ","))
	params.Set("sorts", strings.Join(scrapeSorts, ","))
	params.Set("q", c.buildQuery(q))
	if cursor != "" {
		params.Set("cursor", cursor)
	}
	endpoint.RawQuery = params.Encode()

	body, err := c.doWithRetry(ctx, endpoint.String())
	if err != nil {
		return nil, err
	}

	var payload scrapeResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("decode scrape response: %w", err)
	}
	return &payload, nil
}

func (c *ScrapeClient) buildQuery(q Query) string {
	dateLo := q.DateLo
	if dateLo == "" {
		dateLo = "1880-01-01"
	}
	dateHi := q.DateHi
	if dateHi == "" {
		dateHi = time.Now().UTC().Format("2006-01-02")
	}
	query := fmt.Sprintf("collection:%s AND date:[%s TO %s]", q.Collection, dateLo, dateHi)
	if !q.AddedAfter.IsZero() {
		// The server indexes both fields; keeping the date window bounded
		// keeps the addeddate scan cheap.
		query += fmt.Sprintf(" AND addeddate:[%s TO %s]",
			q.AddedAfter.UTC().Format("2006-01-02T15:04:05Z"), dateHi)
	}
	return query
}

// doWithRetry issues a GET, retrying 502 responses up to five times with
// linear backoff and a failed transport once.
func (c *ScrapeClient) doWithRetry(ctx context.Context, requestURL string) ([]byte, error) {
	transportRetried := false
	serverTries := 0

	for {
		body, status, err := c.doOnce(ctx, requestURL)
		switch {
		case err != nil:
			if transportRetried || ctx.Err() != nil {
				return nil, &TransportError{Cause: err}
			}
			transportRetried = true
			continue
		case status == http.StatusBadGateway && serverTries < maxServerRetries:
			serverTries++
			c.logger.Warn("server returned 502, backing off",
				logging.Int("attempt", serverTries))
			if err := sleepCtx(ctx, time.Duration(serverTries)*c.backoffUnit); err != nil {
				return nil, err
			}
			continue
		case status != http.StatusOK:
			return nil, &StatusError{Status: status, URL: requestURL}
		default:
			return body, nil
		}
	}
}

func (c *ScrapeClient) doOnce(ctx context.Context, requestURL string) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("build request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, err
	}
	return body, resp.StatusCode, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
