package daemon

import (
	"fmt"
	"log/slog"

	"tapedeck/internal/catalog"
	"tapedeck/internal/config"
	"tapedeck/internal/meta"
	"tapedeck/internal/remote"
	"tapedeck/internal/setbreaks"
	"tapedeck/internal/tape"
)

// NewCatalog wires one source per configured collection: scrape-backed
// collections share one client and manifest fetcher, paged collections get
// a client bound to their collection name.
func NewCatalog(cfg *config.Config, logger *slog.Logger) (*catalog.Catalog, error) {
	scrape, err := remote.NewScrapeClient(cfg.Archive.ScrapeURL, remote.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("scrape client: %w", err)
	}
	fetcher, err := meta.NewFetcher(cfg.Archive.ScrapeURL, cfg.Paths.MetadataDir, meta.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("manifest fetcher: %w", err)
	}

	sources := make([]catalog.Source, 0, len(cfg.Archive.Collections))
	for _, collection := range cfg.Archive.Collections {
		source := catalog.Source{
			Collection: collection,
			ShardDir:   cfg.ShardDir(collection),
			Yearly:     cfg.YearlyCollection(collection),
		}
		if cfg.PagedCollection(collection) {
			paged, err := remote.NewPagedClient(cfg.Archive.PagedURL, cfg.Archive.PagedToken, collection,
				remote.WithPagedLogger(logger))
			if err != nil {
				return nil, fmt.Errorf("paged client for %s: %w", collection, err)
			}
			pagedFetcher, err := meta.NewPagedFetcher(cfg.Archive.PagedURL, cfg.Archive.PagedToken, fetcher)
			if err != nil {
				return nil, fmt.Errorf("paged fetcher for %s: %w", collection, err)
			}
			source.Searcher = paged
			source.Loader = pagedFetcher
		} else {
			source.Searcher = scrape
			source.Loader = fetcher
		}
		sources = append(sources, source)
	}

	breaks, err := setbreaks.Load(cfg.Breaks.TablePath)
	if err != nil {
		return nil, fmt.Errorf("load break table: %w", err)
	}

	hour, minute := cfg.StartTime()
	opts := catalog.Options{
		StartHour:   hour,
		StartMinute: minute,
		Policy: tape.Policy{
			Lossless:            cfg.Playback.PlayLossless,
			FavoredTapers:       cfg.Playback.FavoredTapers,
			SimilarityThreshold: cfg.Breaks.SimilarityThreshold,
			AssetDir:            cfg.Paths.AssetDir,
		},
		Logger: logger,
	}
	if len(cfg.Archive.DateRange) == 2 {
		opts.YearLo = cfg.Archive.DateRange[0]
		opts.YearHi = cfg.Archive.DateRange[1]
	}
	return catalog.New(sources, breaks, opts), nil
}
