package remote

import (
	"context"
	"fmt"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"
)

// Query bounds a search: one collection, a performance-date window, and an
// optional added-after cursor for incremental refresh.
type Query struct {
	Collection string
	DateLo     string // YYYY-MM-DD, inclusive
	DateHi     string // YYYY-MM-DD, inclusive
	AddedAfter time.Time
}

// Searcher produces descriptor sets for a query, hiding pagination and
// transient failure.
type Searcher interface {
	// GetAll returns every descriptor matching the query, deduplicated on
	// identifier with last-write wins.
	GetAll(ctx context.Context, q Query) ([]Descriptor, error)
}

// GetAllYears fans a query out per year with bounded concurrency and merges
// the results with last-write-wins on identifier. Used for the initial bulk
// load; steady-state refresh issues single queries.
func GetAllYears(ctx context.Context, s Searcher, collection string, yearLo, yearHi, workers int) ([]Descriptor, error) {
	if yearHi < yearLo {
		yearLo, yearHi = yearHi, yearLo
	}
	if workers < 1 {
		workers = 1
	}

	years := make([]int, 0, yearHi-yearLo+1)
	for year := yearLo; year <= yearHi; year++ {
		years = append(years, year)
	}

	results := make([][]Descriptor, len(years))
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(workers)
	for i, year := range years {
		i, year := i, year
		group.Go(func() error {
			q := Query{
				Collection: collection,
				DateLo:     yearStart(year),
				DateHi:     yearEnd(year),
			}
			descriptors, err := s.GetAll(groupCtx, q)
			if err != nil {
				return err
			}
			results[i] = descriptors
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}

	merged := make(map[string]Descriptor)
	for _, chunk := range results {
		for _, d := range chunk {
			merged[d.Identifier] = d
		}
	}
	flat := make([]Descriptor, 0, len(merged))
	for _, d := range merged {
		flat = append(flat, d)
	}
	sort.Slice(flat, func(i, j int) bool { return flat[i].Identifier < flat[j].Identifier })
	return flat, nil
}

func yearStart(year int) string {
	return fmt.Sprintf("%04d-01-01", year)
}

func yearEnd(year int) string {
	return fmt.Sprintf("%04d-12-31", year)
}
