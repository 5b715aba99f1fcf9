package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/renameio/v2"

	"tapedeck/internal/logging"
)

// collectionNamesFile caches the archive's known collection identifiers in
// the user's home directory.
const collectionNamesFile = ".tapedeck_collection_names.json"

type collectionItem struct {
	Identifier string `json:"identifier"`
}

type collectionNamesResponse struct {
	Total int              `json:"total"`
	Count int              `json:"count"`
	Items []collectionItem `json:"items"`
}

// CollectionNames returns the identifiers of every collection under the
// archive's etree umbrella, serving from the home-directory cache when
// present.
func (c *ScrapeClient) CollectionNames(ctx context.Context) ([]string, error) {
	cachePath, err := collectionNamesPath()
	if err != nil {
		return nil, err
	}

	if data, err := os.ReadFile(cachePath); err == nil {
		var payload collectionNamesResponse
		if err := json.Unmarshal(data, &payload); err == nil && len(payload.Items) > 0 {
			return collectionIdentifiers(payload), nil
		}
	} else if !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("read collection names cache: %w", err)
	}

	payload, err := c.fetchCollectionNames(ctx)
	if err != nil {
		return nil, err
	}

	encoded, err := json.MarshalIndent(payload, "", " ")
	if err != nil {
		return nil, fmt.Errorf("encode collection names: %w", err)
	}
	if err := renameio.WriteFile(cachePath, encoded, 0o644); err != nil {
		return nil, fmt.Errorf("cache collection names: %w", err)
	}
	return collectionIdentifiers(*payload), nil
}

func (c *ScrapeClient) fetchCollectionNames(ctx context.Context) (*collectionNamesResponse, error) {
	endpoint, err := url.Parse(c.baseURL + scrapePath)
	if err != nil {
		return nil, fmt.Errorf("parse scrape url: %w", err)
	}
	params := url.Values{}
	params.Set("debug", "false")
	params.Set("xvar", "production")
	params.Set("total_only", "false")
	params.Set("count", fmt.Sprint(scrapeCount))
	params.Set("fields", "identifier,item_count,collection_size,downloads,num_favorites")
	params.Set("q", "collection:etree AND mediatype:collection")
	endpoint.RawQuery = params.Encode()

	body, err := c.doWithRetry(ctx, endpoint.String())
	if err != nil {
		return nil, err
	}

	var payload collectionNamesResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("decode collection names: %w", err)
	}
	if payload.Count < payload.Total {
		c.logger.Warn("collection name list truncated",
			logging.Int("total", payload.Total),
			logging.Int("downloaded", payload.Count))
	}
	return &payload, nil
}

func collectionIdentifiers(payload collectionNamesResponse) []string {
	names := make([]string, 0, len(payload.Items))
	for _, item := range payload.Items {
		name := strings.TrimSpace(item.Identifier)
		if name != "" {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

func collectionNamesPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	return filepath.Join(home, collectionNamesFile), nil
}
