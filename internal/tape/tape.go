package tape

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"tapedeck/internal/logging"
	"tapedeck/internal/meta"
	"tapedeck/internal/remote"
	"tapedeck/internal/setbreaks"
)

const archiveDownloadBase = "https://archive.org/download"

// Policy carries the process-wide playback knobs shared by every tape.
type Policy struct {
	Lossless            bool
	FavoredTapers       []string
	SimilarityThreshold float64
	AssetDir            string
	DownloadBase        string
}

func (p Policy) downloadBase() string {
	if p.DownloadBase != "" {
		return strings.TrimRight(p.DownloadBase, "/")
	}
	return archiveDownloadBase
}

// Tape is one playable recording. Construction is cheap; the track list is
// materialized through the loader on the first Tracks call.
type Tape struct {
	Descriptor remote.Descriptor
	Artist     string

	loader meta.Loader
	breaks setbreaks.DateInfo
	policy Policy
	logger *slog.Logger

	mu               sync.Mutex
	metaLoaded       bool
	removed          bool
	breaksInserted   bool
	tracks           []Track
	venue            string
	coverage         string
	locationBreakPos int // 1-based position of the venue-change track, 0 when none
}

// New builds a tape from a shard descriptor.
func New(descriptor remote.Descriptor, artist string, loader meta.Loader, breaks setbreaks.DateInfo, policy Policy, logger *slog.Logger) *Tape {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Tape{
		Descriptor: descriptor,
		Artist:     artist,
		loader:     loader,
		breaks:     breaks,
		policy:     policy,
		logger:     logger,
	}
}

// Identifier returns the archive identifier.
func (t *Tape) Identifier() string { return t.Descriptor.Identifier }

// Date returns the performance date (YYYY-MM-DD).
func (t *Tape) Date() string { return t.Descriptor.PerformanceDate() }

// StreamOnly reports whether playback is restricted to the lossy formats.
func (t *Tape) StreamOnly() bool { return t.Descriptor.StreamOnly() }

// MetaLoaded reports whether the track list has been materialized.
func (t *Tape) MetaLoaded() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.metaLoaded
}

// Removed reports whether the tape has been found unplayable.
func (t *Tape) Removed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.removed
}

func (t *Tape) markRemoved() {
	t.mu.Lock()
	t.removed = true
	t.mu.Unlock()
}

// Formats returns the format preference order for this tape. Stream-only
// tapes are held to the lossy subset regardless of policy.
func (t *Tape) Formats() []string {
	if t.StreamOnly() {
		return PlayableFormats(false)
	}
	return PlayableFormats(t.policy.Lossless)
}

// Tracks returns the ordered track list, fetching and parsing the manifest
// on first call. A manifest without files marks the tape removed and
// returns an empty list.
func (t *Tape) Tracks(ctx context.Context) ([]Track, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.metaLoaded {
		return t.tracks, nil
	}

	manifest, ok := t.loader.CachedManifest(t.Identifier(), t.Date())
	if !ok {
		var err error
		manifest, err = t.loader.Manifest(ctx, t.Identifier(), t.Date())
		if err != nil {
			var parseErr *meta.ParseError
			if errors.As(err, &parseErr) {
				t.removed = true
				t.metaLoaded = true
				t.logger.Warn("tape removed",
					logging.String(logging.FieldIdentifier, t.Identifier()),
					logging.String("reason", parseErr.Reason))
				return nil, nil
			}
			return nil, fmt.Errorf("load manifest for %s: %w", t.Identifier(), err)
		}
	}

	t.applyManifestLocked(manifest)
	return t.tracks, nil
}

// applyManifestLocked materializes tape state from a parsed manifest.
// Callers hold the tape mutex.
func (t *Tape) applyManifestLocked(manifest *meta.Manifest) {
	t.metaLoaded = true
	t.venue = strings.TrimSpace(string(manifest.Metadata.Venue))
	t.coverage = strings.TrimSpace(string(manifest.Metadata.Coverage))
	if !manifest.HasFiles() {
		t.removed = true
		return
	}
	t.tracks = buildTracks(manifest, t.Identifier(), t.Formats(), t.policy.downloadBase())
	if len(t.tracks) == 0 {
		t.removed = true
	}
	t.insertBreaksLocked()
}

// loadCachedLocked materializes the track list from an already cached
// manifest, never touching the network. No-op on a cache miss. Callers
// hold the tape mutex.
func (t *Tape) loadCachedLocked() {
	if t.metaLoaded {
		return
	}
	manifest, ok := t.loader.CachedManifest(t.Identifier(), t.Date())
	if !ok {
		return
	}
	t.applyManifestLocked(manifest)
}

// Venue returns the venue for a given 1-based track position. Dates with a
// mid-show venue change report the second location past the change track.
// Without break-table data it falls back to the manifest's venue and
// coverage fields, then the identifier.
func (t *Tape) Venue(position int) string {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.breaks.Location2 != nil && t.locationBreakPos > 0 && position > t.locationBreakPos {
		return t.breaks.Location2.String()
	}
	if t.breaks.Location.Venue != "" {
		return t.breaks.Location.String()
	}
	t.loadCachedLocked()
	switch {
	case t.venue != "" && t.coverage != "":
		return t.venue + ", " + t.coverage
	case t.venue != "":
		return t.venue
	case t.coverage != "":
		return t.coverage
	}
	return t.Identifier()
}

// buildTracks assembles the ordered track list from a manifest. Identity is
// the original-file name; alternate encodings merge into the same track.
func buildTracks(manifest *meta.Manifest, identifier string, preference []string, downloadBase string) []Track {
	originalTitles := make(map[string]string)
	for _, file := range manifest.Files {
		if file.Source != SourceOriginal {
			continue
		}
		title := strings.TrimSpace(file.Title)
		if title == "" || title == "unknown" {
			title = file.Name
		}
		originalTitles[file.Name] = title
	}

	var tracks []Track
	byOriginal := make(map[string]int)
	for _, file := range manifest.Files {
		if !playable(file.Format, preference) {
			continue
		}
		if strings.HasPrefix(file.Name, "_78") {
			continue
		}
		original := string(file.Original)
		if file.Source == SourceOriginal || original == "" {
			original = file.Name
		}
		url := file.URL
		if url == "" {
			url = downloadBase + "/" + identifier + "/" + file.Name
		}
		entry := FileEntry{Name: file.Name, Format: file.Format, Size: int64(file.Size), URL: url}

		if idx, ok := byOriginal[original]; ok {
			tracks[idx].addFile(entry, preference)
			continue
		}
		title := originalTitles[original]
		if title == "" {
			title = strings.TrimSpace(file.Title)
		}
		if title == "" {
			title = file.Name
		}
		source := SourceDerived
		if file.Source == SourceOriginal {
			source = SourceOriginal
		}
		tracks = append(tracks, Track{
			Position: len(tracks) + 1,
			Title:    NormalizeTitle(title),
			Source:   source,
			Original: original,
			Files:    []FileEntry{entry},
		})
		byOriginal[original] = len(tracks) - 1
	}
	return tracks
}
