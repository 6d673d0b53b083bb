package tle

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

var testLogger = slog.New(slog.NewJSONHandler(io.Discard, nil))

// TestFetcherBodyLimit verifies that responses exceeding the 50 MB limit
// return an error instead of consuming unbounded memory.
func TestFetcherBodyLimit(t *testing.T) {
	// Server streams zeroes indefinitely until the client stops reading.
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusOK)
		// Write in 1 MB chunks to exceed the 50 MB limit.
		chunk := strings.Repeat("A", 1024*1024)
		for i := 0; i < 52; i++ {
			if _, err := w.Write([]byte(chunk)); err != nil {
				return // Client closed connection.
			}
		}
	}))
	defer server.Close()

	fetcher := NewFetcher(server.URL, testLogger)
	_, err := fetcher.Fetch(context.Background())
	if err == nil {
		t.Fatal("expected error for oversized response, got nil")
	}
	if !strings.Contains(err.Error(), "byte limit") {
		t.Errorf("expected body limit error, got: %v", err)
	}
}

// TestFetcherSuccess verifies normal fetch operation.
func TestFetcherSuccess(t *testing.T) {
	body := threeLine(issName, issLine1, issLine2)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(body))
	}))
	defer server.Close()

	fetcher := NewFetcher(server.URL, testLogger)
	data, err := fetcher.Fetch(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(data) != body {
		t.Errorf("body mismatch: got %d bytes, want %d", len(data), len(body))
	}
}

// TestFetcherHTTPError verifies error handling for non-200 responses.
func TestFetcherHTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	fetcher := NewFetcher(server.URL, testLogger)
	_, err := fetcher.Fetch(context.Background())
	if err == nil {
		t.Fatal("expected error for 500 response, got nil")
	}
}

// TestFetcherExtraURLs verifies that extra URLs are fetched and concatenated.
func TestFetcherExtraURLs(t *testing.T) {
	noaa := threeLine(noaaName, noaaLine1, noaaLine2)
	// No trailing newline; Fetch must still separate the bodies.
	iss := strings.TrimSuffix(threeLine(issName, issLine1, issLine2), "\n")

	primary := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(iss))
	}))
	defer primary.Close()

	extra := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(noaa))
	}))
	defer extra.Close()

	fetcher := NewFetcher(primary.URL, testLogger, extra.URL)
	data, err := fetcher.Fetch(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Parse and verify both satellites are present.
	entries, err := Parse(strings.NewReader(string(data)), testLogger)
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}

	ids := map[int]bool{}
	for _, e := range entries {
		ids[e.NORADID] = true
	}
	if !ids[33591] {
		t.Error("missing NOAA 19 (33591)")
	}
	if !ids[25544] {
		t.Error("missing ISS (25544)")
	}
}

// TestFetcherExtraURLFailure verifies that a failing extra URL doesn't break the primary fetch.
func TestFetcherExtraURLFailure(t *testing.T) {
	noaa := threeLine(noaaName, noaaLine1, noaaLine2)

	primary := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(noaa))
	}))
	defer primary.Close()

	failing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer failing.Close()

	fetcher := NewFetcher(primary.URL, testLogger, failing.URL)
	data, err := fetcher.Fetch(context.Background())
	if err != nil {
		t.Fatalf("primary fetch should succeed even when extra fails: %v", err)
	}

	entries, err := Parse(strings.NewReader(string(data)), testLogger)
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry (primary only), got %d", len(entries))
	}
	if entries[0].NORADID != 33591 {
		t.Errorf("expected NORAD 33591, got %d", entries[0].NORADID)
	}
}

// TestFetcherLoad verifies that Load parses the fetched body into a dataset.
func TestFetcherLoad(t *testing.T) {
	body := threeLine(issName, issLine1, issLine2) + threeLine(noaaName, noaaLine1, noaaLine2)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(body))
	}))
	defer server.Close()

	ds, err := NewFetcher(server.URL, testLogger).Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if ds.Source != server.URL {
		t.Errorf("source = %q, want %q", ds.Source, server.URL)
	}
	if len(ds.Satellites) != 2 {
		t.Fatalf("got %d satellites, want 2", len(ds.Satellites))
	}
	// NOAA 19's epoch (day 74) precedes the ISS one (day 138).
	if !ds.EpochRange.Min.Equal(ds.Satellites[1].Epoch) || !ds.EpochRange.Max.Equal(ds.Satellites[0].Epoch) {
		t.Errorf("epoch range = %+v", ds.EpochRange)
	}
}

// TestFetcherLoadNothingValid verifies that a body without usable records is an error.
func TestFetcherLoadNothingValid(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html>rate limited</html>\n"))
	}))
	defer server.Close()

	if _, err := NewFetcher(server.URL, testLogger).Load(context.Background()); err == nil {
		t.Fatal("expected error for a body with no element sets")
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stations.tle")
	if err := os.WriteFile(path, []byte(threeLine(issName, issLine1, issLine2)), 0o644); err != nil {
		t.Fatal(err)
	}
	modTime := time.Date(2025, 5, 18, 12, 0, 0, 0, time.UTC)
	if err := os.Chtimes(path, modTime, modTime); err != nil {
		t.Fatal(err)
	}

	ds, err := LoadFile(path, testLogger)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if ds.Source != "file://"+path {
		t.Errorf("source = %q", ds.Source)
	}
	if !ds.FetchedAt.Equal(modTime) {
		t.Errorf("fetched at = %v, want file mod time %v", ds.FetchedAt, modTime)
	}
	if len(ds.Satellites) != 1 || ds.Satellites[0].NORADID != 25544 {
		t.Errorf("satellites = %+v", ds.Satellites)
	}

	if _, err := LoadFile(filepath.Join(t.TempDir(), "missing.tle"), testLogger); err == nil {
		t.Error("expected error for a missing file")
	}
}

func TestFetcherLoadWithArchive(t *testing.T) {
	up := true
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !up {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(threeLine(issName, issLine1, issLine2)))
	}))
	defer server.Close()

	archive := NewArchive(t.TempDir(), 3)
	fetcher := NewFetcher(server.URL, testLogger)

	// Empty archive and a dead source: nothing to fall back to.
	up = false
	if _, err := fetcher.LoadWithArchive(context.Background(), archive); err == nil {
		t.Fatal("expected error with no source and an empty archive")
	}

	up = true
	ds, err := fetcher.LoadWithArchive(context.Background(), archive)
	if err != nil {
		t.Fatalf("LoadWithArchive: %v", err)
	}
	if ds.Source != server.URL || len(ds.Satellites) != 1 {
		t.Errorf("fetched dataset = %+v", ds)
	}
	if _, _, err := archive.Latest(); err != nil {
		t.Fatalf("fetched body not archived: %v", err)
	}

	up = false
	ds, err = fetcher.LoadWithArchive(context.Background(), archive)
	if err != nil {
		t.Fatalf("LoadWithArchive fallback: %v", err)
	}
	if !strings.HasPrefix(ds.Source, "archive://") {
		t.Errorf("fallback source = %q, want archive", ds.Source)
	}
	if len(ds.Satellites) != 1 || ds.Satellites[0].NORADID != 25544 {
		t.Errorf("fallback satellites = %+v", ds.Satellites)
	}
}
