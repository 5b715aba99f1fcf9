package tape

import (
	"context"
	"math"
	"testing"

	"tapedeck/internal/meta"
	"tapedeck/internal/remote"
	"tapedeck/internal/setbreaks"
)

type stubLoader struct {
	manifest *meta.Manifest
	cached   *meta.Manifest
	err      error
	calls    int
}

func (s *stubLoader) Manifest(_ context.Context, identifier, _ string) (*meta.Manifest, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.manifest, nil
}

func (s *stubLoader) CachedManifest(string, string) (*meta.Manifest, bool) {
	if s.cached != nil {
		return s.cached, true
	}
	return nil, false
}

func showManifest() *meta.Manifest {
	return &meta.Manifest{
		Files: []meta.File{
			{Name: "gd77-05-08t01.flac", Source: "original", Format: "Flac", Title: "Minglewood Blues"},
			{Name: "gd77-05-08t01.mp3", Source: "derived", Format: "VBR MP3", Original: "gd77-05-08t01.flac"},
			{Name: "gd77-05-08t02.flac", Source: "original", Format: "Flac", Title: "Scarlet Begonias"},
			{Name: "gd77-05-08t03.flac", Source: "original", Format: "Flac", Title: "Morning Dew"},
			{Name: "gd77-05-08.txt", Source: "original", Format: "Text", Title: "info"},
			{Name: "_78_old_take.flac", Source: "original", Format: "Flac", Title: "stray take"},
		},
		Metadata: meta.Metadata{Venue: "Barton Hall"},
	}
}

func testPolicy() Policy {
	return Policy{Lossless: true, SimilarityThreshold: 0.6, AssetDir: "/opt/tapedeck/assets"}
}

func TestTracksMaterializesOnce(t *testing.T) {
	loader := &stubLoader{manifest: showManifest()}
	tp := New(remote.Descriptor{Identifier: "gd1977-05-08.sbd", Date: "1977-05-08"},
		"GratefulDead", loader, setbreaks.DateInfo{}, testPolicy(), nil)

	tracks, err := tp.Tracks(context.Background())
	if err != nil {
		t.Fatalf("Tracks: %v", err)
	}
	if len(tracks) != 3 {
		t.Fatalf("got %d tracks, want 3", len(tracks))
	}
	if tracks[0].Title != "Minglewood Blues" {
		t.Errorf("first title = %q", tracks[0].Title)
	}
	if len(tracks[0].Files) != 2 || tracks[0].Files[0].Format != "Flac" {
		t.Errorf("alternate encodings not merged by preference: %+v", tracks[0].Files)
	}
	if got := tracks[1].Files[0].URL; got != "https://archive.org/download/gd1977-05-08.sbd/gd77-05-08t02.flac" {
		t.Errorf("download URL = %q", got)
	}

	if _, err := tp.Tracks(context.Background()); err != nil {
		t.Fatalf("second Tracks: %v", err)
	}
	if loader.calls != 1 {
		t.Errorf("loader called %d times, want 1", loader.calls)
	}
}

func TestTracksEmptyManifestMarksRemoved(t *testing.T) {
	loader := &stubLoader{manifest: &meta.Manifest{}}
	tp := New(remote.Descriptor{Identifier: "gd1980-01-01.aud", Date: "1980-01-01"},
		"GratefulDead", loader, setbreaks.DateInfo{}, testPolicy(), nil)

	tracks, err := tp.Tracks(context.Background())
	if err != nil {
		t.Fatalf("Tracks: %v", err)
	}
	if len(tracks) != 0 {
		t.Errorf("got %d tracks, want 0", len(tracks))
	}
	if !tp.Removed() {
		t.Error("tape not marked removed")
	}
	if got := tp.Score(); got != -1 {
		t.Errorf("removed score = %v, want -1", got)
	}
}

func TestTracksParseErrorMarksRemoved(t *testing.T) {
	loader := &stubLoader{err: &meta.ParseError{Identifier: "gd1980-01-01.aud", Reason: "status 404"}}
	tp := New(remote.Descriptor{Identifier: "gd1980-01-01.aud", Date: "1980-01-01"},
		"GratefulDead", loader, setbreaks.DateInfo{}, testPolicy(), nil)

	if _, err := tp.Tracks(context.Background()); err != nil {
		t.Fatalf("Tracks: %v", err)
	}
	if !tp.Removed() {
		t.Error("tape not marked removed")
	}
}

func TestStreamOnlyRestrictsFormats(t *testing.T) {
	tp := New(remote.Descriptor{Identifier: "gd1990", Collection: remote.FlexStrings{"stream_only"}},
		"GratefulDead", &stubLoader{}, setbreaks.DateInfo{}, testPolicy(), nil)
	formats := tp.Formats()
	for _, f := range formats {
		if f == "Flac" || f == "Shorten" {
			t.Fatalf("stream-only tape offers lossless format %q", f)
		}
	}
}

func TestScore(t *testing.T) {
	policy := testPolicy()
	policy.FavoredTapers = []string{"miller"}

	base := remote.Descriptor{Identifier: "gd1977-05-08.sbd.hicks", Date: "1977-05-08"}

	t.Run("unloaded baseline", func(t *testing.T) {
		tp := New(base, "GratefulDead", &stubLoader{}, setbreaks.DateInfo{}, policy, nil)
		if got := tp.Score(); math.Abs(got-3) > 1e-9 {
			t.Errorf("score = %v, want 3", got)
		}
	})

	t.Run("favored taper", func(t *testing.T) {
		desc := base
		desc.Identifier = "gd1977-05-08.sbd.miller"
		tp := New(desc, "GratefulDead", &stubLoader{}, setbreaks.DateInfo{}, policy, nil)
		if got := tp.Score(); math.Abs(got-6) > 1e-9 {
			t.Errorf("score = %v, want 6", got)
		}
	})

	t.Run("downloads and reviews", func(t *testing.T) {
		desc := base
		desc.Downloads = 99
		desc.AvgRating = 4.5
		desc.NumReviews = 16
		tp := New(desc, "GratefulDead", &stubLoader{}, setbreaks.DateInfo{}, policy, nil)
		want := 3 + math.Log(100) + 0.5*(4.5-2.0/4.0)
		if got := tp.Score(); math.Abs(got-want) > 1e-9 {
			t.Errorf("score = %v, want %v", got, want)
		}
	})

	t.Run("loaded tracks contribute", func(t *testing.T) {
		tp := New(base, "GratefulDead", &stubLoader{manifest: showManifest()}, setbreaks.DateInfo{}, policy, nil)
		if _, err := tp.Tracks(context.Background()); err != nil {
			t.Fatalf("Tracks: %v", err)
		}
		// All 3 titles known: fraction = 4/4, tracks term = 3/4.
		want := 3 + 3*(1.0-1.0) + 3.0/4
		if got := tp.Score(); math.Abs(got-want) > 1e-9 {
			t.Errorf("score = %v, want %v", got, want)
		}
	})

	t.Run("cached manifest contributes without fetching", func(t *testing.T) {
		loader := &stubLoader{cached: showManifest()}
		tp := New(base, "GratefulDead", loader, setbreaks.DateInfo{}, policy, nil)
		want := 3 + 3*(1.0-1.0) + 3.0/4
		if got := tp.Score(); math.Abs(got-want) > 1e-9 {
			t.Errorf("score = %v, want %v", got, want)
		}
		if loader.calls != 0 {
			t.Errorf("score fetched the manifest (%d calls)", loader.calls)
		}
	})
}

func TestVenueFallsBackToManifest(t *testing.T) {
	tp := New(remote.Descriptor{Identifier: "gd1977-05-08.sbd", Date: "1977-05-08"},
		"GratefulDead", &stubLoader{manifest: showManifest()}, setbreaks.DateInfo{}, testPolicy(), nil)
	if _, err := tp.Tracks(context.Background()); err != nil {
		t.Fatalf("Tracks: %v", err)
	}
	if got := tp.Venue(1); got != "Barton Hall" {
		t.Errorf("Venue(1) = %q", got)
	}
}

func TestVenueJoinsCoverageFromCachedManifest(t *testing.T) {
	manifest := showManifest()
	manifest.Metadata.Coverage = "Ithaca, NY"
	loader := &stubLoader{cached: manifest}
	tp := New(remote.Descriptor{Identifier: "gd1977-05-08.sbd", Date: "1977-05-08"},
		"GratefulDead", loader, setbreaks.DateInfo{}, testPolicy(), nil)

	// No Tracks call: the cached manifest alone supplies venue and coverage.
	if got := tp.Venue(1); got != "Barton Hall, Ithaca, NY" {
		t.Errorf("Venue(1) = %q", got)
	}
	if loader.calls != 0 {
		t.Errorf("venue fetched the manifest (%d calls)", loader.calls)
	}
}

func TestVenueFallsBackToIdentifier(t *testing.T) {
	tp := New(remote.Descriptor{Identifier: "gd1966-01-08.aud", Date: "1966-01-08"},
		"GratefulDead", &stubLoader{}, setbreaks.DateInfo{}, testPolicy(), nil)
	if got := tp.Venue(1); got != "gd1966-01-08.aud" {
		t.Errorf("Venue(1) = %q", got)
	}
}
