package meta

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
)

const showDetailJSON = `{
	"data": {
		"date": "1997-11-22",
		"venue_name": "Hampton Coliseum",
		"venue": {"location": "Hampton, VA"},
		"tracks": [
			{"title": "Mike's Song", "position": 1, "duration": 720, "set": "1", "mp3": "https://cdn.example.org/mikes.mp3"},
			{"title": "Weekapaug Groove", "position": 2, "duration": 540, "set": "1", "mp3": "https://cdn.example.org/weekapaug.mp3"}
		]
	}
}`

func TestPagedManifestReshapesShow(t *testing.T) {
	var requests atomic.Int32
	var auth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		auth = r.Header.Get("Authorization")
		if r.URL.Path != "/api/v1/shows/1997-11-22" {
			t.Errorf("path = %q", r.URL.Path)
		}
		w.Write([]byte(showDetailJSON))
	}))
	defer server.Close()

	cache, err := NewFetcher("https://example.org", t.TempDir())
	if err != nil {
		t.Fatalf("NewFetcher: %v", err)
	}
	fetcher, err := NewPagedFetcher(server.URL, "secret-token", cache)
	if err != nil {
		t.Fatalf("NewPagedFetcher: %v", err)
	}

	manifest, err := fetcher.Manifest(context.Background(), "phish_42", "1997-11-22")
	if err != nil {
		t.Fatalf("Manifest: %v", err)
	}
	if auth != "Bearer secret-token" {
		t.Errorf("authorization = %q", auth)
	}
	if len(manifest.Files) != 2 {
		t.Fatalf("files = %d, want 2", len(manifest.Files))
	}
	first := manifest.Files[0]
	if first.Title != "Mike's Song" || first.Format != "MP3" {
		t.Errorf("file = %+v", first)
	}
	if first.URL != "https://cdn.example.org/mikes.mp3" {
		t.Errorf("url = %q", first.URL)
	}
	if got := string(manifest.Metadata.Venue); got != "Hampton Coliseum" {
		t.Errorf("venue = %q", got)
	}

	// The reshaped manifest lands in the shared cache; a second load does not
	// hit the network.
	if _, err := fetcher.Manifest(context.Background(), "phish_42", "1997-11-22"); err != nil {
		t.Fatalf("cached Manifest: %v", err)
	}
	if got := requests.Load(); got != 1 {
		t.Errorf("requests = %d, want 1", got)
	}
	if _, ok := cache.CachedManifest("phish_42", "1997-11-22"); !ok {
		t.Error("manifest missing from shared cache")
	}
}

func TestPagedManifestServerErrorIsParseError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	cache, err := NewFetcher("https://example.org", t.TempDir())
	if err != nil {
		t.Fatalf("NewFetcher: %v", err)
	}
	fetcher, err := NewPagedFetcher(server.URL, "", cache)
	if err != nil {
		t.Fatalf("NewPagedFetcher: %v", err)
	}
	var parseErr *ParseError
	if _, err := fetcher.Manifest(context.Background(), "phish_42", "1997-11-22"); !errors.As(err, &parseErr) {
		t.Fatalf("err = %v, want ParseError", err)
	}
}
