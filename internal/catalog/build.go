package catalog

import (
	"context"
	"fmt"
	"sort"
	"time"

	"tapedeck/internal/logging"
	"tapedeck/internal/remote"
	"tapedeck/internal/setbreaks"
	"tapedeck/internal/shards"
	"tapedeck/internal/tape"
)

// addedAfterSlack is subtracted from the shard's max addeddate when asking
// for newly indexed descriptors, tolerating clock skew on the remote side.
const addedAfterSlack = time.Hour

// Build populates the catalog from shards, fetching from the remote
// searchers when shards are missing or reload is set, then publishes a
// fresh snapshot. Safe to call concurrently with readers.
func (c *Catalog) Build(ctx context.Context, reload bool) error {
	byDate := make(map[string][]*tape.Tape)

	for _, source := range c.sources {
		descriptors, err := c.loadSource(ctx, source, reload)
		if err != nil {
			return fmt.Errorf("load collection %s: %w", source.Collection, err)
		}
		c.addTapes(byDate, source, descriptors)
	}

	snap := &snapshot{byDate: make(map[string][]*tape.Tape, len(byDate))}
	for date, group := range byDate {
		snap.byDate[date] = c.order(group)
		snap.dates = append(snap.dates, date)
	}
	sort.Strings(snap.dates)
	c.current.Store(snap)

	c.logger.Info("catalog built",
		logging.Int("dates", len(snap.dates)),
		logging.Bool("reload", reload))
	return nil
}

// Update fetches descriptors added since the shards' high-water mark,
// merges them, and rebuilds the snapshot. Returns the number of new
// descriptors across all collections.
func (c *Catalog) Update(ctx context.Context) (int, error) {
	total := 0
	for _, source := range c.sources {
		added, err := c.topUp(ctx, source)
		if err != nil {
			return total, fmt.Errorf("update collection %s: %w", source.Collection, err)
		}
		total += added
	}
	if err := c.Build(ctx, false); err != nil {
		return total, err
	}
	return total, nil
}

func (c *Catalog) loadSource(ctx context.Context, source Source, reload bool) ([]remote.Descriptor, error) {
	periodOf := shards.ByDecade
	if source.Yearly {
		periodOf = shards.ByYear
	}

	existing, err := shards.Periods(source.ShardDir)
	if err != nil {
		return nil, err
	}

	switch {
	case reload, len(existing) == 0:
		descriptors, err := remote.GetAllYears(ctx, source.Searcher, source.Collection, c.opts.YearLo, c.opts.YearHi, c.opts.Workers)
		if err != nil {
			return nil, err
		}
		if _, err := shards.Write(source.ShardDir, descriptors, periodOf); err != nil {
			return nil, err
		}
	case source.Yearly:
		// Year-bucketed shards can be filled in per missing year.
		if err := c.fetchMissingYears(ctx, source, existing); err != nil {
			return nil, err
		}
	}

	descriptors, _, err := shards.Read(source.ShardDir, c.acceptPeriod(source.Yearly))
	if err != nil {
		return nil, err
	}
	return descriptors, nil
}

func (c *Catalog) fetchMissingYears(ctx context.Context, source Source, existing []int) error {
	have := make(map[int]bool, len(existing))
	for _, year := range existing {
		have[year] = true
	}
	for year := c.opts.YearLo; year <= c.opts.YearHi; year++ {
		if have[year] {
			continue
		}
		descriptors, err := source.Searcher.GetAll(ctx, remote.Query{
			Collection: source.Collection,
			DateLo:     fmt.Sprintf("%04d-01-01", year),
			DateHi:     fmt.Sprintf("%04d-12-31", year),
		})
		if err != nil {
			return err
		}
		if len(descriptors) == 0 {
			continue
		}
		if _, err := shards.Write(source.ShardDir, descriptors, shards.ByYear); err != nil {
			return err
		}
		c.logger.Info("year shard fetched",
			logging.String(logging.FieldCollection, source.Collection),
			logging.Int("year", year),
			logging.Int("descriptors", len(descriptors)))
	}
	return nil
}

func (c *Catalog) topUp(ctx context.Context, source Source) (int, error) {
	periodOf := shards.ByDecade
	if source.Yearly {
		periodOf = shards.ByYear
	}

	_, maxAdded, err := shards.Read(source.ShardDir, nil)
	if err != nil {
		return 0, err
	}
	if maxAdded.IsZero() {
		return 0, nil
	}

	descriptors, err := source.Searcher.GetAll(ctx, remote.Query{
		Collection: source.Collection,
		AddedAfter: maxAdded.Add(-addedAfterSlack),
	})
	if err != nil {
		return 0, err
	}
	if len(descriptors) == 0 {
		return 0, nil
	}

	added, err := shards.Write(source.ShardDir, descriptors, periodOf)
	if err != nil {
		return 0, err
	}
	c.logger.Info("shards topped up",
		logging.String(logging.FieldCollection, source.Collection),
		logging.Int("added", added))
	return added, nil
}

func (c *Catalog) acceptPeriod(yearly bool) func(period int) bool {
	lo, hi := c.opts.YearLo, c.opts.YearHi
	if yearly {
		return func(period int) bool { return period >= lo && period <= hi }
	}
	return func(period int) bool { return period >= lo-lo%10 && period <= hi }
}

// addTapes filters a source's descriptors to its own collection tag and
// groups the resulting tapes by performance date. A shard may carry
// descriptors from sibling collections.
func (c *Catalog) addTapes(byDate map[string][]*tape.Tape, source Source, descriptors []remote.Descriptor) {
	for _, d := range descriptors {
		if !d.InCollection(source.Collection) {
			continue
		}
		date := d.PerformanceDate()
		if len(date) != 10 {
			continue
		}
		var info setbreaks.DateInfo
		if c.breaks != nil {
			info = c.breaks.DateInfo(source.Collection, date)
		}
		t := tape.New(d, source.Collection, source.Loader, info, c.opts.Policy, c.logger)
		byDate[date] = append(byDate[date], t)
	}
}

// order sorts a date's group: each collection bucket descending by score,
// then round-robin interleave in configured collection order.
func (c *Catalog) order(group []*tape.Tape) []*tape.Tape {
	if len(group) < 2 {
		return group
	}

	buckets := make(map[string][]*tape.Tape, len(c.sources))
	for _, t := range group {
		buckets[t.Artist] = append(buckets[t.Artist], t)
	}
	for _, bucket := range buckets {
		sort.SliceStable(bucket, func(i, j int) bool {
			si, sj := bucket[i].Score(), bucket[j].Score()
			if si != sj {
				return si > sj
			}
			return bucket[i].Identifier() < bucket[j].Identifier()
		})
	}

	ordered := make([][]*tape.Tape, 0, len(buckets))
	for _, source := range c.sources {
		if bucket, ok := buckets[source.Collection]; ok {
			ordered = append(ordered, bucket)
		}
	}

	out := make([]*tape.Tape, 0, len(group))
	for round := 0; len(out) < len(group); round++ {
		for _, bucket := range ordered {
			if round < len(bucket) {
				out = append(out, bucket[round])
			}
		}
	}
	return out
}
