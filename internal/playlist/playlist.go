// Package playlist projects a tape into the flat URL list the media-player
// adapter consumes.
package playlist

import (
	"context"
	"fmt"

	"tapedeck/internal/tape"
)

// Entry is one playable item: the best-format URL for one track.
type Entry struct {
	Position int
	Title    string
	Format   string
	URL      string
	Break    bool
}

// Project returns one entry per track, choosing the file whose format
// ranks highest in the tape's active preference order. Synthetic break
// tracks pass their local file URLs through unchanged.
func Project(ctx context.Context, t *tape.Tape) ([]Entry, error) {
	tracks, err := t.Tracks(ctx)
	if err != nil {
		return nil, fmt.Errorf("project %s: %w", t.Identifier(), err)
	}

	preference := t.Formats()
	entries := make([]Entry, 0, len(tracks))
	for _, track := range tracks {
		file, ok := track.BestFile(preference)
		if !ok {
			continue
		}
		entries = append(entries, Entry{
			Position: track.Position,
			Title:    track.Title,
			Format:   file.Format,
			URL:      file.URL,
			Break:    track.Break,
		})
	}
	return entries, nil
}

// URLs returns just the ordered URL list.
func URLs(ctx context.Context, t *tape.Tape) ([]string, error) {
	entries, err := Project(ctx, t)
	if err != nil {
		return nil, err
	}
	urls := make([]string, len(entries))
	for i, entry := range entries {
		urls[i] = entry.URL
	}
	return urls, nil
}
