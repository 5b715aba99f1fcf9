package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"tapedeck/internal/logging"
)

const (
	pagedPerPage = 300
	// A tighter page keeps incremental refreshes cheap.
	pagedPerPageIncremental = 50
)

// PagedClient walks a page-numbered show API behind a bearer token. The
// endpoint shares the Searcher contract but paginates by page/per_page and
// sorts by date descending, so an added-after bound lets the walk stop as
// soon as a page dips below it.
type PagedClient struct {
	baseURL    string
	token      string
	collection string
	httpClient *http.Client
	logger     *slog.Logger
}

var _ Searcher = (*PagedClient)(nil)

// PagedOption configures a PagedClient.
type PagedOption func(*PagedClient)

// WithPagedHTTPClient overrides the default HTTP client.
func WithPagedHTTPClient(client *http.Client) PagedOption {
	return func(c *PagedClient) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithPagedLogger attaches a logger.
func WithPagedLogger(logger *slog.Logger) PagedOption {
	return func(c *PagedClient) {
		if logger != nil {
			c.logger = logging.NewComponentLogger(logger, "remote")
		}
	}
}

// NewPagedClient creates a client for a page-numbered show endpoint.
func NewPagedClient(baseURL, token, collection string, opts ...PagedOption) (*PagedClient, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, errors.New("paged base url required")
	}
	if collection == "" {
		return nil, errors.New("paged collection required")
	}
	client := &PagedClient{
		baseURL:    baseURL,
		token:      strings.TrimSpace(token),
		collection: collection,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     logging.NewNop(),
	}
	for _, opt := range opts {
		opt(client)
	}
	return client, nil
}

type pagedShow struct {
	ID         int64  `json:"id"`
	Date       string `json:"date"`
	Duration   int64  `json:"duration"`
	Incomplete bool   `json:"incomplete"`
	SBD        bool   `json:"sbd"`
	VenueName  string `json:"venue_name"`
	Venue      struct {
		Location string `json:"location"`
	} `json:"venue"`
}

type pagedResponse struct {
	TotalEntries int         `json:"total_entries"`
	TotalPages   int         `json:"total_pages"`
	Page         int         `json:"page"`
	Data         []pagedShow `json:"data"`
}

// GetAll walks pages until the last one, or until a page falls entirely
// before the added-after bound.
func (c *PagedClient) GetAll(ctx context.Context, q Query) ([]Descriptor, error) {
	perPage := pagedPerPage
	addedBound := ""
	if !q.AddedAfter.IsZero() {
		perPage = pagedPerPageIncremental
		addedBound = q.AddedAfter.UTC().Format("2006-01-02")
	}

	seen := make(map[string]Descriptor)
	page := 1
	for {
		payload, err := c.fetchPage(ctx, page, perPage)
		if err != nil {
			return nil, err
		}
		for _, show := range payload.Data {
			d := c.describe(show)
			seen[d.Identifier] = d
		}

		if payload.Page >= payload.TotalPages || len(payload.Data) == 0 {
			break
		}
		if addedBound != "" && payload.Data[len(payload.Data)-1].Date <= addedBound {
			break
		}
		page = payload.Page + 1
	}

	descriptors := make([]Descriptor, 0, len(seen))
	for _, d := range seen {
		descriptors = append(descriptors, d)
	}
	c.logger.Debug("paged query finished",
		logging.String(logging.FieldCollection, c.collection),
		logging.Int("descriptors", len(descriptors)))
	return descriptors, nil
}

func (c *PagedClient) describe(show pagedShow) Descriptor {
	source := "audience"
	if show.SBD {
		source = "soundboard"
	}
	return Descriptor{
		Identifier: fmt.Sprintf("%s_%d", strings.ToLower(c.collection), show.ID),
		Date:       FlexString(show.Date),
		Collection: FlexStrings{c.collection},
		Source:     FlexString(source),
		Venue:      strings.TrimSpace(show.VenueName),
		Coverage:   strings.TrimSpace(show.Venue.Location),
		AddedDate:  FlexString(show.Date + "T00:00:00Z"),
	}
}

func (c *PagedClient) fetchPage(ctx context.Context, page, perPage int) (*pagedResponse, error) {
	endpoint, err := url.Parse(c.baseURL + "/api/v1/shows")
	if err != nil {
		return nil, fmt.Errorf("parse paged url: %w", err)
	}
	params := url.Values{}
	params.Set("sort_attr", "date")
	params.Set("sort_dir", "desc")
	params.Set("page", fmt.Sprint(page))
	params.Set("per_page", fmt.Sprint(perPage))
	endpoint.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &TransportError{Cause: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{Status: resp.StatusCode, URL: endpoint.String()}
	}

	var payload pagedResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode paged response: %w", err)
	}
	return &payload, nil
}
