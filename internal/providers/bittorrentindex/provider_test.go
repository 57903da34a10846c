package bittorrentindex

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

const fixture = `[
	{"id":"1","name":"Example Film 2020 ITA 1080p","info_hash":"ABCDEF1234567890ABCDEF1234567890ABCDEF12","size":"2147483648","seeders":"120"},
	{"id":"2","name":"Broken Row","info_hash":"nothex","size":"10","seeders":"1"},
	{"id":"3","name":"Example Film 2020 ITA 720p","info_hash":"1111111111111111111111111111111111111111","size":"n/a","seeders":"x"}
]`

func TestSearchMapsRecords(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query().Get("q")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(fixture))
	}))
	defer srv.Close()

	provider := NewProvider(Config{Endpoint: srv.URL + "/q.php", Client: srv.Client()})
	records, err := provider.Search(context.Background(), "Example Film ITA", 2020)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if gotQuery != "Example Film ITA 2020" {
		t.Fatalf("unexpected query %q", gotQuery)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	first := records[0]
	if first.DeclaredSize != "2147483648" || first.Seeders != 120 || first.Source != "piratebay" {
		t.Fatalf("unexpected record %+v", first)
	}
	if !strings.HasPrefix(first.MagnetURI, "magnet:?xt=urn:btih:abcdef1234567890abcdef1234567890abcdef12") {
		t.Fatalf("unexpected magnet %q", first.MagnetURI)
	}
	if records[1].DeclaredSize != "" {
		t.Fatalf("non-numeric size should be dropped, got %q", records[1].DeclaredSize)
	}
}

func TestSearchEmptyPlaceholder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"id":"0","name":"No results returned","info_hash":"0000000000000000000000000000000000000000","size":"0","seeders":"0"}]`))
	}))
	defer srv.Close()

	records, err := NewProvider(Config{Endpoint: srv.URL, Client: srv.Client()}).Search(context.Background(), "nothing", 0)
	if err != nil || len(records) != 0 {
		t.Fatalf("expected no records, got %d err=%v", len(records), err)
	}
}

func TestSearchHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "blocked", http.StatusForbidden)
	}))
	defer srv.Close()

	_, err := NewProvider(Config{Endpoint: srv.URL, Client: srv.Client()}).Search(context.Background(), "x", 0)
	if err == nil || !strings.Contains(err.Error(), "403") {
		t.Fatalf("expected HTTP 403 error, got %v", err)
	}
}

func TestParseAPIItemsRejectsGarbage(t *testing.T) {
	if _, err := parseAPIItems([]byte("<html>")); err == nil {
		t.Fatalf("expected error for non-JSON payload")
	}
	items, err := parseAPIItems([]byte(`{"error":"none"}`))
	if err != nil || len(items) != 0 {
		t.Fatalf("object payload should map to empty list, got %v %v", items, err)
	}
}
