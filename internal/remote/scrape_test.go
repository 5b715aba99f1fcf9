package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func scrapeItem(identifier, date string) map[string]any {
	return map[string]any{
		"identifier": identifier,
		"date":       date + "T00:00:00Z",
		"collection": []string{"GratefulDead", "etree"},
		"downloads":  100,
		"addeddate":  "2020-01-01T00:00:00Z",
	}
}

func writeChunk(t *testing.T, w http.ResponseWriter, total int, cursor string, items ...map[string]any) {
	t.Helper()
	payload := map[string]any{
		"total":  total,
		"count":  len(items),
		"cursor": cursor,
		"items":  items,
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		t.Errorf("encode chunk: %v", err)
	}
}

func identifiers(descriptors []Descriptor) []string {
	ids := make([]string, 0, len(descriptors))
	for _, d := range descriptors {
		ids = append(ids, d.Identifier)
	}
	sort.Strings(ids)
	return ids
}

func TestGetAllFollowsCursor(t *testing.T) {
	var cursors []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cursor := r.URL.Query().Get("cursor")
		cursors = append(cursors, cursor)
		switch cursor {
		case "":
			writeChunk(t, w, 3, "next-1",
				scrapeItem("gd1977-05-08", "1977-05-08"),
				scrapeItem("gd1977-05-09", "1977-05-09"))
		case "next-1":
			writeChunk(t, w, 3, "",
				scrapeItem("gd1977-05-09", "1977-05-09"),
				scrapeItem("gd1977-05-22", "1977-05-22"))
		default:
			t.Errorf("unexpected cursor %q", cursor)
		}
	}))
	defer server.Close()

	client, err := NewScrapeClient(server.URL)
	if err != nil {
		t.Fatalf("NewScrapeClient: %v", err)
	}
	descriptors, err := client.GetAll(context.Background(), Query{Collection: "GratefulDead"})
	if err != nil {
		t.Fatalf("GetAll: %v", err)
	}

	want := []string{"gd1977-05-08", "gd1977-05-09", "gd1977-05-22"}
	got := identifiers(descriptors)
	if len(got) != len(want) {
		t.Fatalf("identifiers = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("identifiers[%d] = %q, want %q", i, got[i], want[i])
		}
	}
	if len(cursors) != 2 || cursors[1] != "next-1" {
		t.Errorf("cursors seen = %v", cursors)
	}
}

func TestGetAllStopsWhenNothingNew(t *testing.T) {
	var requests atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		// Same rows forever; the walk must stop after the repeat chunk.
		writeChunk(t, w, 100, "again", scrapeItem("gd1977-05-08", "1977-05-08"))
	}))
	defer server.Close()

	client, err := NewScrapeClient(server.URL)
	if err != nil {
		t.Fatalf("NewScrapeClient: %v", err)
	}
	descriptors, err := client.GetAll(context.Background(), Query{Collection: "GratefulDead"})
	if err != nil {
		t.Fatalf("GetAll: %v", err)
	}
	if len(descriptors) != 1 {
		t.Errorf("descriptors = %d, want 1", len(descriptors))
	}
	if got := requests.Load(); got != 2 {
		t.Errorf("requests = %d, want 2", got)
	}
}

func TestGetAllStopsAtOvershoot(t *testing.T) {
	// Total is 4 and every chunk carries 2 new rows, so the cumulative count
	// crosses 1.25x total on the third chunk.
	var requests atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := requests.Add(1)
		writeChunk(t, w, 4, fmt.Sprintf("next-%d", n),
			scrapeItem(fmt.Sprintf("gd-a%d", n), "1977-05-08"),
			scrapeItem(fmt.Sprintf("gd-b%d", n), "1977-05-09"))
	}))
	defer server.Close()

	client, err := NewScrapeClient(server.URL)
	if err != nil {
		t.Fatalf("NewScrapeClient: %v", err)
	}
	if _, err := client.GetAll(context.Background(), Query{Collection: "GratefulDead"}); err != nil {
		t.Fatalf("GetAll: %v", err)
	}
	if got := requests.Load(); got != 3 {
		t.Errorf("requests = %d, want 3", got)
	}
}

func TestGetAllRetriesBadGateway(t *testing.T) {
	var requests atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if requests.Add(1) <= 2 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		writeChunk(t, w, 1, "", scrapeItem("gd1977-05-08", "1977-05-08"))
	}))
	defer server.Close()

	client, err := NewScrapeClient(server.URL, WithBackoffUnit(time.Millisecond))
	if err != nil {
		t.Fatalf("NewScrapeClient: %v", err)
	}
	descriptors, err := client.GetAll(context.Background(), Query{Collection: "GratefulDead"})
	if err != nil {
		t.Fatalf("GetAll: %v", err)
	}
	if len(descriptors) != 1 {
		t.Errorf("descriptors = %d, want 1", len(descriptors))
	}
	if got := requests.Load(); got != 3 {
		t.Errorf("requests = %d, want 3", got)
	}
}

func TestGetAllSurfacesStatusError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client, err := NewScrapeClient(server.URL)
	if err != nil {
		t.Fatalf("NewScrapeClient: %v", err)
	}
	_, err = client.GetAll(context.Background(), Query{Collection: "GratefulDead"})
	var statusErr *StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("err = %v, want StatusError", err)
	}
	if statusErr.Status != http.StatusServiceUnavailable {
		t.Errorf("status = %d", statusErr.Status)
	}
}

func TestGetAllWrapsTransportFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close()

	client, err := NewScrapeClient(server.URL)
	if err != nil {
		t.Fatalf("NewScrapeClient: %v", err)
	}
	_, err = client.GetAll(context.Background(), Query{Collection: "GratefulDead"})
	var transportErr *TransportError
	if !errors.As(err, &transportErr) {
		t.Fatalf("err = %v, want TransportError", err)
	}
}

func TestBuildQuery(t *testing.T) {
	client, err := NewScrapeClient("https://example.org")
	if err != nil {
		t.Fatalf("NewScrapeClient: %v", err)
	}

	q := Query{Collection: "GratefulDead", DateLo: "1977-01-01", DateHi: "1977-12-31"}
	got := client.buildQuery(q)
	want := "collection:GratefulDead AND date:[1977-01-01 TO 1977-12-31]"
	if got != want {
		t.Errorf("buildQuery = %q, want %q", got, want)
	}

	q.AddedAfter = time.Date(2023, 6, 1, 12, 30, 0, 0, time.UTC)
	got = client.buildQuery(q)
	if !strings.Contains(got, "addeddate:[2023-06-01T12:30:00Z TO 1977-12-31]") {
		t.Errorf("buildQuery = %q, missing addeddate clause", got)
	}

	// Missing bounds default to the archive's earliest plausible date.
	got = client.buildQuery(Query{Collection: "GratefulDead"})
	if !strings.Contains(got, "date:[1880-01-01 TO ") {
		t.Errorf("buildQuery = %q, missing default date window", got)
	}
}
