package shards

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/renameio/v2"

	"tapedeck/internal/remote"
)

// ErrMissingShard reports a shard file that should exist for the requested
// window but does not.
var ErrMissingShard = errors.New("shard file missing")

// PeriodFunc buckets a descriptor into a shard period.
type PeriodFunc func(remote.Descriptor) int

// ByDecade buckets descriptors per decade; the default for general collections.
func ByDecade(d remote.Descriptor) int { return d.Decade() }

// ByYear buckets descriptors per year; used for dense historical collections.
func ByYear(d remote.Descriptor) int { return d.Year() }

// Write merges descriptors into the period shards under dir and reports how
// many identifiers are new. Shards whose content did not grow are left
// untouched so incremental refreshes do not mass-touch unchanged files.
func Write(dir string, descriptors []remote.Descriptor, periodOf PeriodFunc) (int, error) {
	if periodOf == nil {
		periodOf = ByDecade
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, fmt.Errorf("create shard directory: %w", err)
	}

	byPeriod := make(map[int][]remote.Descriptor)
	for _, d := range descriptors {
		if d.Identifier == "" || d.Year() == 0 {
			continue
		}
		period := periodOf(d)
		byPeriod[period] = append(byPeriod[period], d)
	}

	periods := make([]int, 0, len(byPeriod))
	for period := range byPeriod {
		periods = append(periods, period)
	}
	sort.Ints(periods)

	added := 0
	for _, period := range periods {
		n, err := mergePeriod(dir, period, byPeriod[period])
		if err != nil {
			return added, err
		}
		added += n
	}
	return added, nil
}

func mergePeriod(dir string, period int, incoming []remote.Descriptor) (int, error) {
	path := shardPath(dir, period)

	existing, err := readShardFile(path)
	if err != nil && !errors.Is(err, ErrMissingShard) {
		return 0, err
	}

	incomingIDs := make(map[string]struct{}, len(incoming))
	for _, d := range incoming {
		incomingIDs[d.Identifier] = struct{}{}
	}

	merged := make([]remote.Descriptor, 0, len(existing)+len(incoming))
	for _, d := range existing {
		if _, replaced := incomingIDs[d.Identifier]; !replaced {
			merged = append(merged, d)
		}
	}
	merged = append(merged, incoming...)

	added := len(merged) - len(existing)
	if added <= 0 {
		// Same identifier set; replacing field values alone does not justify
		// rewriting every shard on each incremental pass.
		return 0, nil
	}

	sort.Slice(merged, func(i, j int) bool {
		if merged[i].PerformanceDate() != merged[j].PerformanceDate() {
			return merged[i].PerformanceDate() < merged[j].PerformanceDate()
		}
		return merged[i].Identifier < merged[j].Identifier
	})

	encoded, err := json.MarshalIndent(merged, "", " ")
	if err != nil {
		return 0, fmt.Errorf("encode shard %d: %w", period, err)
	}
	if err := renameio.WriteFile(path, encoded, 0o644); err != nil {
		return 0, fmt.Errorf("write shard %d: %w", period, err)
	}
	return added, nil
}

// Read returns the union of every shard under dir whose period the filter
// accepts (nil accepts all), together with the maximum addeddate observed.
// A missing directory reads as empty.
func Read(dir string, accept func(period int) bool) ([]remote.Descriptor, time.Time, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, time.Time{}, nil
		}
		return nil, time.Time{}, fmt.Errorf("read shard directory: %w", err)
	}

	var all []remote.Descriptor
	var maxAdded time.Time
	for _, entry := range entries {
		period, ok := parseShardName(entry.Name())
		if !ok {
			continue
		}
		if accept != nil && !accept(period) {
			continue
		}
		descriptors, err := readShardFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, time.Time{}, err
		}
		for _, d := range descriptors {
			if t := d.AddedTime(); t.After(maxAdded) {
				maxAdded = t
			}
		}
		all = append(all, descriptors...)
	}
	return all, maxAdded, nil
}

// Periods lists the shard periods present under dir.
func Periods(dir string) ([]int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read shard directory: %w", err)
	}
	var periods []int
	for _, entry := range entries {
		if period, ok := parseShardName(entry.Name()); ok {
			periods = append(periods, period)
		}
	}
	sort.Ints(periods)
	return periods, nil
}

func readShardFile(path string) ([]remote.Descriptor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrMissingShard, path)
		}
		return nil, fmt.Errorf("read shard: %w", err)
	}
	var descriptors []remote.Descriptor
	if err := json.Unmarshal(data, &descriptors); err != nil {
		return nil, fmt.Errorf("decode shard %s: %w", path, err)
	}
	return descriptors, nil
}

func shardPath(dir string, period int) string {
	return filepath.Join(dir, fmt.Sprintf("ids_%d.json", period))
}

func parseShardName(name string) (int, bool) {
	if !strings.HasPrefix(name, "ids_") || !strings.HasSuffix(name, ".json") {
		return 0, false
	}
	period, err := strconv.Atoi(strings.TrimSuffix(strings.TrimPrefix(name, "ids_"), ".json"))
	if err != nil {
		return 0, false
	}
	return period, true
}
