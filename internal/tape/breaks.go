package tape

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"tapedeck/internal/textutil"
)

// Synthetic break track titles, one per break kind.
const (
	breakTitle    = "Set Break"
	encoreTitle   = "Encore Break"
	locationTitle = "Location Break"
)

// Silence asset lengths in seconds. The bundled files live in the asset
// directory as silence<length>.ogg. Encore breaks use the zero-length
// asset so playback continues immediately.
const (
	silenceLong   = 600
	silenceEncore = 0
)

// Setlist abbreviations common in uploader track titles.
var titleAbbreviations = map[string]string{
	"gdtrfb": "Goin' Down The Road Feeling Bad",
	"fotd":   "Friend Of The Devil",
	"eotw":   "Eyes Of The World",
}

// ExpandAbbreviations replaces whole-token setlist abbreviations in a title
// so they match the break table's full song names.
func ExpandAbbreviations(title string) string {
	fields := strings.Fields(title)
	for i, field := range fields {
		key := strings.ToLower(strings.Trim(field, ".,->"))
		if full, ok := titleAbbreviations[key]; ok {
			fields[i] = full
		}
	}
	return strings.Join(fields, " ")
}

func silenceAsset(assetDir string, length int) string {
	name := fmt.Sprintf("silence%d.ogg", length)
	return "file://" + filepath.Join(assetDir, name)
}

type breakPoint struct {
	position int // 1-based track position the break goes before
	length   int // silence length in seconds
	title    string
}

// InsertBreaks splices synthetic set-break tracks into the track list.
// Invoked automatically after the first Tracks call; safe to call again.
func (t *Tape) InsertBreaks() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.metaLoaded || t.removed {
		return
	}
	t.insertBreaksLocked()
}

func (t *Tape) insertBreaksLocked() {
	if t.breaksInserted {
		return
	}
	t.breaksInserted = true
	if len(t.tracks) == 0 {
		return
	}

	points := t.computeBreaks()
	if len(points) == 0 {
		return
	}

	// Splice highest position first so earlier insertions do not shift
	// later ones.
	sort.Slice(points, func(i, j int) bool { return points[i].position > points[j].position })
	for _, point := range points {
		synthetic := Track{
			Title:  point.title,
			Source: SourceOriginal,
			Break:  true,
			Files: []FileEntry{{
				Name:   fmt.Sprintf("silence%d.ogg", point.length),
				Format: "Ogg Vorbis",
				URL:    silenceAsset(t.policy.AssetDir, point.length),
			}},
		}
		idx := point.position - 1
		t.tracks = append(t.tracks[:idx], append([]Track{synthetic}, t.tracks[idx:]...)...)
	}
	for i := range t.tracks {
		t.tracks[i].Position = i + 1
	}
	if loc := t.findLocationBreak(); loc > 0 {
		t.locationBreakPos = loc
	}
}

// computeBreaks resolves the date's marker songs to track positions. Each
// marker matches the closest track title above the similarity threshold;
// repeats resolve to the last occurrence.
func (t *Tape) computeBreaks() []breakPoint {
	titles := make([]string, len(t.tracks))
	for i, track := range t.tracks {
		titles[i] = ExpandAbbreviations(track.Title)
	}

	threshold := t.policy.SimilarityThreshold
	seen := make(map[int]bool)
	var points []breakPoint

	add := func(markers []string, length int, title string) {
		for _, marker := range markers {
			idx, _ := textutil.BestMatch(marker, titles, threshold)
			if idx < 0 {
				continue
			}
			position := idx + 1
			if seen[position] {
				continue
			}
			// Already a break in front of this song.
			if textutil.Matches(titles[idx], breakTitle, threshold) {
				continue
			}
			if idx > 0 && textutil.Matches(titles[idx-1], breakTitle, threshold) {
				continue
			}
			seen[position] = true
			points = append(points, breakPoint{position: position, length: length, title: title})
		}
	}

	add(t.breaks.LongBreaks, silenceLong, breakTitle)
	add(t.breaks.ShortBreaks, silenceEncore, encoreTitle)
	add(t.breaks.LocationBreak, silenceLong, locationTitle)
	return points
}

// findLocationBreak returns the 1-based position of the synthetic break in
// front of the venue-change song, or 0 when the date has one venue.
func (t *Tape) findLocationBreak() int {
	if t.breaks.Location2 == nil || len(t.breaks.LocationBreak) == 0 {
		return 0
	}
	titles := make([]string, len(t.tracks))
	for i, track := range t.tracks {
		titles[i] = ExpandAbbreviations(track.Title)
	}
	threshold := t.policy.SimilarityThreshold
	best := 0
	for _, marker := range t.breaks.LocationBreak {
		if idx, _ := textutil.BestMatch(marker, titles, threshold); idx >= 0 && idx+1 > best {
			best = idx + 1
		}
	}
	return best
}
