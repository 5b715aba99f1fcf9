package tape

import (
	"regexp"
	"sort"
	"strings"
)

// Track source tags.
const (
	SourceOriginal = "original"
	SourceDerived  = "derived"
)

// FileEntry is one encoded file of a track, remote or local.
type FileEntry struct {
	Name   string `json:"name"`
	Format string `json:"format"`
	Size   int64  `json:"size"`
	URL    string `json:"url"`
}

// Track is an ordered entry in a tape. Derived entries reference the
// canonical original by name; at most one original exists per track.
type Track struct {
	Position int         `json:"position"` // 1-based
	Title    string      `json:"title"`
	Source   string      `json:"source"`
	Original string      `json:"original"`
	Files    []FileEntry `json:"files"`
	Break    bool        `json:"break,omitempty"`
}

// BestFile returns the file whose format ranks highest in the preference
// order.
func (t Track) BestFile(preference []string) (FileEntry, bool) {
	if len(t.Files) == 0 {
		return FileEntry{}, false
	}
	best := t.Files[0]
	bestRank := formatRank(best.Format, preference)
	for _, file := range t.Files[1:] {
		if rank := formatRank(file.Format, preference); rank < bestRank {
			best = file
			bestRank = rank
		}
	}
	return best, true
}

func (t *Track) addFile(entry FileEntry, preference []string) {
	for _, existing := range t.Files {
		if existing.Name == entry.Name && existing.Format == entry.Format {
			return
		}
	}
	t.Files = append(t.Files, entry)
	sort.SliceStable(t.Files, func(i, j int) bool {
		return formatRank(t.Files[i].Format, preference) < formatRank(t.Files[j].Format, preference)
	})
}

var (
	// Leading identifier-like prefixes, e.g. "gd77-05-08t02" or "aud_1977.05.08 d1".
	titlePrefixPattern = regexp.MustCompile(`^[a-zA-Z]{2,5}_*\d{2}(?:\d{2})?[-.]\d{2}[-.]\d{2}[ ]*([td]\d*)*`)
	titleSuffixPattern = regexp.MustCompile(`(\.flac)|(\.mp3)|(\.ogg)$`)
)

// NormalizeTitle strips identifier-style prefixes and audio extensions from
// a track title.
func NormalizeTitle(title string) string {
	title = titlePrefixPattern.ReplaceAllString(title, "")
	title = titleSuffixPattern.ReplaceAllString(title, "")
	return strings.TrimSpace(title)
}

// knownTitle reports whether a title counts toward the title fraction: not
// the literal "unknown" and at least five alphabetic characters.
func knownTitle(title string) bool {
	if title == "" || title == "unknown" {
		return false
	}
	letters := 0
	for _, r := range strings.ToLower(title) {
		if r >= 'a' && r <= 'z' {
			letters++
		}
	}
	return letters > 4
}
