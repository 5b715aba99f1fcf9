package catalog

import (
	"context"
	"testing"
	"time"

	"tapedeck/internal/meta"
	"tapedeck/internal/remote"
	"tapedeck/internal/setbreaks"
	"tapedeck/internal/tape"
)

type stubSearcher struct {
	descriptors []remote.Descriptor
	calls       []remote.Query
}

func (s *stubSearcher) GetAll(_ context.Context, q remote.Query) ([]remote.Descriptor, error) {
	s.calls = append(s.calls, q)
	var out []remote.Descriptor
	for _, d := range s.descriptors {
		date := d.PerformanceDate()
		if q.DateLo != "" && date < q.DateLo {
			continue
		}
		if q.DateHi != "" && date > q.DateHi {
			continue
		}
		if !q.AddedAfter.IsZero() && !d.AddedTime().After(q.AddedAfter) {
			continue
		}
		out = append(out, d)
	}
	return out, nil
}

type stubLoader struct {
	manifests map[string]*meta.Manifest
}

func (s *stubLoader) Manifest(_ context.Context, identifier, _ string) (*meta.Manifest, error) {
	if m, ok := s.manifests[identifier]; ok {
		return m, nil
	}
	return nil, &meta.ParseError{Identifier: identifier, Reason: "not found"}
}

func (s *stubLoader) CachedManifest(string, string) (*meta.Manifest, bool) { return nil, false }

func descriptor(id, collection, date string, downloads int, rating float64, reviews int, extra ...string) remote.Descriptor {
	tags := append(remote.FlexStrings{collection}, extra...)
	return remote.Descriptor{
		Identifier: id,
		Collection: tags,
		Date:       remote.FlexString(date),
		Downloads:  remote.FlexInt(downloads),
		AvgRating:  remote.FlexFloat(rating),
		NumReviews: remote.FlexInt(reviews),
		AddedDate:  "2020-01-01T00:00:00Z",
	}
}

func buildCatalog(t *testing.T, sources []Source, opts Options) *Catalog {
	t.Helper()
	if opts.YearLo == 0 {
		opts.YearLo = 1965
	}
	if opts.YearHi == 0 {
		opts.YearHi = 2000
	}
	if opts.StartHour == 0 {
		opts.StartHour = 19
	}
	c := New(sources, nil, opts)
	if err := c.Build(context.Background(), false); err != nil {
		t.Fatalf("Build: %v", err)
	}
	return c
}

func TestBestPrefersStreamOnly(t *testing.T) {
	searcher := &stubSearcher{descriptors: []remote.Descriptor{
		descriptor("x-sbd", "GratefulDead", "1977-05-08", 1000, 4.8, 50, "stream_only"),
		descriptor("x-aud1", "GratefulDead", "1977-05-08", 500, 4.6, 20),
		descriptor("x-aud2", "GratefulDead", "1977-05-08", 200, 4.9, 5),
	}}
	c := buildCatalog(t, []Source{{
		Collection: "GratefulDead",
		Searcher:   searcher,
		Loader:     &stubLoader{},
		ShardDir:   t.TempDir() + "/GratefulDead_ids",
		Yearly:     false,
	}}, Options{})

	best := c.Best("1977-05-08")
	if best == nil || best.Identifier() != "x-sbd" {
		t.Fatalf("best = %v, want x-sbd", best)
	}
	if got := c.Dates(); len(got) != 1 || got[0] != "1977-05-08" {
		t.Errorf("dates = %v", got)
	}
}

func TestInterleaveRespectsCollectionOrder(t *testing.T) {
	searcherA := &stubSearcher{descriptors: []remote.Descriptor{
		descriptor("a1", "A", "1995-06-01", 900, 0, 0),
		descriptor("a2", "A", "1995-06-01", 100, 0, 0),
	}}
	searcherB := &stubSearcher{descriptors: []remote.Descriptor{
		descriptor("b1", "B", "1995-06-01", 800, 0, 0),
		descriptor("b2", "B", "1995-06-01", 300, 0, 0),
		descriptor("b3", "B", "1995-06-01", 50, 0, 0),
	}}
	dir := t.TempDir()
	c := buildCatalog(t, []Source{
		{Collection: "A", Searcher: searcherA, Loader: &stubLoader{}, ShardDir: dir + "/A_ids"},
		{Collection: "B", Searcher: searcherB, Loader: &stubLoader{}, ShardDir: dir + "/B_ids"},
	}, Options{})

	group := c.Tapes("1995-06-01")
	want := []string{"a1", "b1", "a2", "b2", "b3"}
	if len(group) != len(want) {
		t.Fatalf("got %d tapes, want %d", len(group), len(want))
	}
	for i, id := range want {
		if group[i].Identifier() != id {
			t.Errorf("position %d = %s, want %s", i, group[i].Identifier(), id)
		}
	}
}

func TestResortFlipsOnTitleFraction(t *testing.T) {
	// y-titled trails y-blank slightly on downloads but has a fully titled
	// manifest; resort flips the order once the title term contributes.
	titled := &meta.Manifest{Files: []meta.File{
		{Name: "t01.flac", Source: "original", Format: "Flac", Title: "Scarlet Begonias"},
		{Name: "t02.flac", Source: "original", Format: "Flac", Title: "Fire On The Mountain"},
		{Name: "t03.flac", Source: "original", Format: "Flac", Title: "Estimated Prophet"},
		{Name: "t04.flac", Source: "original", Format: "Flac", Title: "Morning Dew"},
	}}
	blank := &meta.Manifest{Files: []meta.File{
		{Name: "t01.flac", Source: "original", Format: "Flac", Title: "unknown"},
		{Name: "t02.flac", Source: "original", Format: "Flac", Title: "unknown"},
		{Name: "t03.flac", Source: "original", Format: "Flac", Title: "unknown"},
		{Name: "t04.flac", Source: "original", Format: "Flac", Title: "unknown"},
	}}
	searcher := &stubSearcher{descriptors: []remote.Descriptor{
		descriptor("y-blank", "GratefulDead", "1978-04-16", 110, 0, 0),
		descriptor("y-titled", "GratefulDead", "1978-04-16", 100, 0, 0),
	}}
	c := buildCatalog(t, []Source{{
		Collection: "GratefulDead",
		Searcher:   searcher,
		Loader:     &stubLoader{manifests: map[string]*meta.Manifest{"y-blank": blank, "y-titled": titled}},
		ShardDir:   t.TempDir() + "/GratefulDead_ids",
	}}, Options{})

	if best := c.Best("1978-04-16"); best.Identifier() != "y-blank" {
		t.Fatalf("pre-resort best = %s", best.Identifier())
	}
	group, err := c.Resort(context.Background(), "1978-04-16")
	if err != nil {
		t.Fatalf("Resort: %v", err)
	}
	if len(group) != 2 || group[0].Identifier() != "y-titled" {
		t.Fatalf("post-resort order = %v", identifiers(group))
	}
	if best := c.Best("1978-04-16"); best.Identifier() != "y-titled" {
		t.Errorf("snapshot not updated, best = %s", best.Identifier())
	}
}

func TestResortDropsRemoved(t *testing.T) {
	searcher := &stubSearcher{descriptors: []remote.Descriptor{
		descriptor("gone", "GratefulDead", "1980-05-01", 1000, 0, 0),
		descriptor("kept", "GratefulDead", "1980-05-01", 10, 0, 0),
	}}
	kept := &meta.Manifest{Files: []meta.File{
		{Name: "t01.flac", Source: "original", Format: "Flac", Title: "Althea"},
	}}
	c := buildCatalog(t, []Source{{
		Collection: "GratefulDead",
		Searcher:   searcher,
		Loader:     &stubLoader{manifests: map[string]*meta.Manifest{"kept": kept}},
		ShardDir:   t.TempDir() + "/GratefulDead_ids",
	}}, Options{})

	group, err := c.Resort(context.Background(), "1980-05-01")
	if err != nil {
		t.Fatalf("Resort: %v", err)
	}
	if len(group) != 1 || group[0].Identifier() != "kept" {
		t.Fatalf("post-resort group = %v", identifiers(group))
	}
}

func TestTapeAtTime(t *testing.T) {
	searcher := &stubSearcher{descriptors: []remote.Descriptor{
		descriptor("x-sbd", "GratefulDead", "1977-05-08", 1000, 4.8, 50),
	}}
	c := buildCatalog(t, []Source{{
		Collection: "GratefulDead",
		Searcher:   searcher,
		Loader:     &stubLoader{},
		ShardDir:   t.TempDir() + "/GratefulDead_ids",
	}}, Options{StartHour: 19})

	inside := time.Date(1977, 5, 8, 20, 30, 0, 0, time.UTC)
	if got := c.TapeAtTime(inside); got == nil || got.Identifier() != "x-sbd" {
		t.Errorf("TapeAtTime(20:30) = %v", got)
	}
	late := time.Date(1977, 5, 8, 23, 30, 0, 0, time.UTC)
	if got := c.TapeAtTime(late); got != nil {
		t.Errorf("TapeAtTime(23:30) = %s, want nil", got.Identifier())
	}
	early := time.Date(1977, 5, 8, 18, 0, 0, 0, time.UTC)
	if got := c.TapeAtTime(early); got != nil {
		t.Errorf("TapeAtTime(18:00) = %s, want nil", got.Identifier())
	}
	otherDay := time.Date(1977, 5, 9, 20, 0, 0, 0, time.UTC)
	if got := c.TapeAtTime(otherDay); got != nil {
		t.Errorf("TapeAtTime(next day) = %s, want nil", got.Identifier())
	}
}

func TestTapeAtTimeUsesTableStartTime(t *testing.T) {
	table, err := setbreaks.Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	searcher := &stubSearcher{descriptors: []remote.Descriptor{
		descriptor("x-sbd", "GratefulDead", "1977-05-08", 1000, 4.8, 50),
	}}
	c := New([]Source{{
		Collection: "GratefulDead",
		Searcher:   searcher,
		Loader:     &stubLoader{},
		ShardDir:   t.TempDir() + "/GratefulDead_ids",
	}}, table, Options{YearLo: 1965, YearHi: 2000, StartHour: 12})
	if err := c.Build(context.Background(), false); err != nil {
		t.Fatalf("Build: %v", err)
	}

	// The bundled table starts 1977-05-08 at 19:00, overriding the 12:00
	// default.
	noon := time.Date(1977, 5, 8, 12, 30, 0, 0, time.UTC)
	if got := c.TapeAtTime(noon); got != nil {
		t.Errorf("TapeAtTime(12:30) = %s, want nil", got.Identifier())
	}
	evening := time.Date(1977, 5, 8, 19, 30, 0, 0, time.UTC)
	if got := c.TapeAtTime(evening); got == nil {
		t.Error("TapeAtTime(19:30) = nil")
	}
}

func TestYearQueries(t *testing.T) {
	dir := t.TempDir()
	searcherA := &stubSearcher{descriptors: []remote.Descriptor{
		descriptor("a77", "A", "1977-05-08", 10, 0, 0),
		descriptor("a80", "A", "1980-05-01", 10, 0, 0),
	}}
	searcherB := &stubSearcher{descriptors: []remote.Descriptor{
		descriptor("b80", "B", "1980-06-12", 10, 0, 0),
	}}
	c := buildCatalog(t, []Source{
		{Collection: "A", Searcher: searcherA, Loader: &stubLoader{}, ShardDir: dir + "/A_ids"},
		{Collection: "B", Searcher: searcherB, Loader: &stubLoader{}, ShardDir: dir + "/B_ids"},
	}, Options{})

	years := c.YearList()
	if len(years) != 2 || years[0] != 1977 || years[1] != 1980 {
		t.Errorf("YearList = %v", years)
	}
	if got := c.YearArtists(1977, 0); len(got) != 1 || len(got["A"]) != 1 {
		t.Errorf("YearArtists(1977) = %v", got)
	}
	if got := c.YearArtists(1977, 1980); len(got) != 2 || len(got["A"]) != 2 || len(got["B"]) != 1 {
		t.Errorf("YearArtists(1977,1980) = %v", got)
	}
}

func TestRebuildFromShardsKeepsOrdering(t *testing.T) {
	dir := t.TempDir()
	// Equal scores on every tape so ordering rests on the identifier
	// tiebreak alone.
	descriptors := []remote.Descriptor{
		descriptor("gd77-e", "GratefulDead", "1977-05-08", 100, 4.5, 10),
		descriptor("gd77-a", "GratefulDead", "1977-05-08", 100, 4.5, 10),
		descriptor("gd77-c", "GratefulDead", "1977-05-08", 100, 4.5, 10),
		descriptor("gd78-b", "GratefulDead", "1978-04-16", 100, 4.5, 10),
	}
	sources := func(s remote.Searcher) []Source {
		return []Source{{
			Collection: "GratefulDead",
			Searcher:   s,
			Loader:     &stubLoader{},
			ShardDir:   dir + "/GratefulDead_ids",
		}}
	}

	first := buildCatalog(t, sources(&stubSearcher{descriptors: descriptors}), Options{})
	// The second catalog reads the shards the first one wrote; its
	// searcher must stay untouched.
	idle := &stubSearcher{}
	second := buildCatalog(t, sources(idle), Options{})
	if len(idle.calls) != 0 {
		t.Fatalf("second build searched remotely: %v", idle.calls)
	}

	firstDates, secondDates := first.Dates(), second.Dates()
	if len(firstDates) != 2 || len(firstDates) != len(secondDates) {
		t.Fatalf("dates = %v vs %v", firstDates, secondDates)
	}
	for _, date := range firstDates {
		a, b := first.Tapes(date), second.Tapes(date)
		if len(a) != len(b) {
			t.Fatalf("%s: %d tapes vs %d", date, len(a), len(b))
		}
		for i := range a {
			if a[i].Identifier() != b[i].Identifier() {
				t.Errorf("%s[%d]: %s vs %s", date, i, a[i].Identifier(), b[i].Identifier())
			}
		}
	}
}

func TestYearArtistsGroupsByIdentifierToken(t *testing.T) {
	dir := t.TempDir()
	searcher := &stubSearcher{descriptors: []remote.Descriptor{
		descriptor("78_stormy-weather_frances-langford-ted-grouya_gbia0001", "georgeblood", "1942-03-01", 5, 0, 0),
		descriptor("78_you-made-me-love-you_frances-langford-orch_gbia0002", "georgeblood", "1942-07-15", 5, 0, 0),
		descriptor("78_in-the-mood_glenn-miller_gbia0003", "georgeblood", "1942-09-09", 5, 0, 0),
	}}
	c := buildCatalog(t, []Source{{
		Collection: "georgeblood",
		Searcher:   searcher,
		Loader:     &stubLoader{},
		ShardDir:   dir + "/georgeblood_ids",
		Yearly:     true,
	}}, Options{YearLo: 1940, YearHi: 1945})

	got := c.YearArtists(1942, 0)
	if len(got) != 2 {
		t.Fatalf("artist groups = %v", got)
	}
	if len(got["frances langford"]) != 2 {
		t.Errorf("frances langford tapes = %d, want 2", len(got["frances langford"]))
	}
	if len(got["glenn miller"]) != 1 {
		t.Errorf("glenn miller tapes = %d, want 1", len(got["glenn miller"]))
	}
}

func TestSiblingCollectionFiltered(t *testing.T) {
	searcher := &stubSearcher{descriptors: []remote.Descriptor{
		descriptor("ours", "GratefulDead", "1977-05-08", 10, 0, 0),
		descriptor("theirs", "PhilLeshAndFriends", "1977-05-08", 10, 0, 0),
	}}
	c := buildCatalog(t, []Source{{
		Collection: "GratefulDead",
		Searcher:   searcher,
		Loader:     &stubLoader{},
		ShardDir:   t.TempDir() + "/GratefulDead_ids",
	}}, Options{})

	group := c.Tapes("1977-05-08")
	if len(group) != 1 || group[0].Identifier() != "ours" {
		t.Errorf("group = %v", identifiers(group))
	}
}

func identifiers(group []*tape.Tape) []string {
	out := make([]string, len(group))
	for i, t := range group {
		out[i] = t.Identifier()
	}
	return out
}
