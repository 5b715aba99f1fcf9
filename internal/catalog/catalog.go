package catalog

import (
	"context"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"tapedeck/internal/logging"
	"tapedeck/internal/meta"
	"tapedeck/internal/remote"
	"tapedeck/internal/setbreaks"
	"tapedeck/internal/tape"
)

// showWindow is how long a tape stays "on air" past its start time for
// point-in-time lookups.
const showWindow = 3 * time.Hour

// Source binds one configured collection to its remote searcher, manifest
// loader, and shard directory.
type Source struct {
	Collection string
	Searcher   remote.Searcher
	Loader     meta.Loader
	ShardDir   string

	// Yearly selects year-bucketed shards instead of decade buckets.
	Yearly bool
}

// Options tunes catalog construction.
type Options struct {
	// YearLo and YearHi bound the initial shard load. Zero values fall back
	// to 1965 and the current year.
	YearLo int
	YearHi int

	// StartHour and StartMinute give the show start time for dates the
	// break table does not cover.
	StartHour   int
	StartMinute int

	// Workers bounds concurrent per-year fetches during the initial load.
	Workers int

	Policy tape.Policy
	Logger *slog.Logger
}

type snapshot struct {
	dates  []string
	byDate map[string][]*tape.Tape
}

// Catalog is the queryable per-date tape index.
type Catalog struct {
	sources []Source
	breaks  *setbreaks.Table
	opts    Options
	logger  *slog.Logger

	current atomic.Pointer[snapshot]
}

// New creates an empty catalog; call Build to populate it.
func New(sources []Source, breaks *setbreaks.Table, opts Options) *Catalog {
	if opts.Logger == nil {
		opts.Logger = logging.NewNop()
	}
	if opts.YearLo == 0 {
		opts.YearLo = 1965
	}
	if opts.YearHi == 0 {
		opts.YearHi = time.Now().Year()
	}
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	c := &Catalog{
		sources: sources,
		breaks:  breaks,
		opts:    opts,
		logger:  logging.NewComponentLogger(opts.Logger, "catalog"),
	}
	c.current.Store(&snapshot{byDate: map[string][]*tape.Tape{}})
	return c
}

// Dates returns every date with at least one tape, ascending.
func (c *Catalog) Dates() []string {
	snap := c.current.Load()
	out := make([]string, len(snap.dates))
	copy(out, snap.dates)
	return out
}

// Tapes returns the ordered group for a date, best first.
func (c *Catalog) Tapes(date string) []*tape.Tape {
	snap := c.current.Load()
	group := snap.byDate[date]
	out := make([]*tape.Tape, len(group))
	copy(out, group)
	return out
}

// Best returns the top-ranked tape for a date, or nil.
func (c *Catalog) Best(date string) *tape.Tape {
	snap := c.current.Load()
	if group := snap.byDate[date]; len(group) > 0 {
		return group[0]
	}
	return nil
}

// Resort fetches tracks for the date's top three candidates so the
// title-completeness term contributes, re-scores, drops tapes found
// removed, and publishes the new order.
func (c *Catalog) Resort(ctx context.Context, date string) ([]*tape.Tape, error) {
	snap := c.current.Load()
	group := snap.byDate[date]
	if len(group) == 0 {
		return nil, nil
	}

	top := len(group)
	if top > 3 {
		top = 3
	}
	for _, t := range group[:top] {
		if _, err := t.Tracks(ctx); err != nil {
			if ctx.Err() != nil {
				return nil, err
			}
			c.logger.Warn("resort: tracks unavailable",
				logging.String(logging.FieldIdentifier, t.Identifier()),
				logging.Error(err))
		}
	}

	kept := make([]*tape.Tape, 0, len(group))
	for _, t := range group {
		if !t.Removed() {
			kept = append(kept, t)
		}
	}
	reordered := c.order(kept)
	c.replaceDate(date, reordered)
	return reordered, nil
}

// TapeAtTime resolves an instant to the tape that would be playing then:
// the best tape of the instant's date, if the instant falls inside the
// show window starting at the date's known or default start time.
func (c *Catalog) TapeAtTime(instant time.Time) *tape.Tape {
	date := instant.Format("2006-01-02")
	best := c.Best(date)
	if best == nil {
		return nil
	}

	hour, minute := c.opts.StartHour, c.opts.StartMinute
	if c.breaks != nil {
		if info := c.breaks.DateInfo(best.Artist, date); info.StartTime != nil {
			hour, minute = info.StartTime.Hour(), info.StartTime.Minute()
		}
	}
	start := time.Date(instant.Year(), instant.Month(), instant.Day(), hour, minute, 0, 0, instant.Location())
	if instant.Before(start) || !instant.Before(start.Add(showWindow)) {
		return nil
	}
	return best
}

// YearList returns every year with at least one date, ascending.
func (c *Catalog) YearList() []int {
	snap := c.current.Load()
	seen := map[int]bool{}
	var years []int
	for _, date := range snap.dates {
		if year := dateYear(date); year > 0 && !seen[year] {
			seen[year] = true
			years = append(years, year)
		}
	}
	sort.Ints(years)
	return years
}

// YearArtists groups the tapes between year and otherYear inclusive by the
// artist token embedded in their identifiers. otherYear 0 means the single
// year. Identifiers without an embedded token group under the tape's
// collection name.
func (c *Catalog) YearArtists(year, otherYear int) map[string][]*tape.Tape {
	if otherYear == 0 {
		otherYear = year
	}
	if otherYear < year {
		year, otherYear = otherYear, year
	}

	snap := c.current.Load()
	artists := make(map[string][]*tape.Tape)
	for _, date := range snap.dates {
		y := dateYear(date)
		if y < year || y > otherYear {
			continue
		}
		for _, t := range snap.byDate[date] {
			key := identifierArtist(t.Identifier())
			if key == "" {
				key = t.Artist
			}
			artists[key] = append(artists[key], t)
		}
	}
	return artists
}

// identifierArtist extracts the artist token from a dense-collection
// identifier such as 78_stormy-weather_frances-langford-ted-grouya_gbia0001.
// The token is the first two dash-separated words of the third underscore
// segment. Returns "" when the identifier has no such segment.
func identifierArtist(identifier string) string {
	segments := strings.Split(identifier, "_")
	if len(segments) < 3 {
		return ""
	}
	words := strings.Split(segments[2], "-")
	if len(words) > 2 {
		words = words[:2]
	}
	return strings.Join(words, " ")
}

func (c *Catalog) replaceDate(date string, group []*tape.Tape) {
	for {
		old := c.current.Load()
		next := &snapshot{
			dates:  old.dates,
			byDate: make(map[string][]*tape.Tape, len(old.byDate)),
		}
		for k, v := range old.byDate {
			next.byDate[k] = v
		}
		if len(group) == 0 {
			delete(next.byDate, date)
			next.dates = make([]string, 0, len(old.dates))
			for _, d := range old.dates {
				if d != date {
					next.dates = append(next.dates, d)
				}
			}
		} else {
			next.byDate[date] = group
		}
		if c.current.CompareAndSwap(old, next) {
			return
		}
	}
}

func dateYear(date string) int {
	if len(date) < 4 {
		return 0
	}
	year, err := strconv.Atoi(date[:4])
	if err != nil {
		return 0
	}
	return year
}
