package x1337

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

const listingHTML = `
<table class="table-list">
  <tr><th>name</th><th>se</th><th>size</th></tr>
  <tr>
    <td class="coll-1 name"><a href="/sub/42/0/" class="icon"></a><a href="/torrent/1/example-ita/">Example Film 2020 ITA 1080p</a></td>
    <td class="coll-2 seeds">310</td>
    <td class="coll-4 size mob-uploader">2.1 GB<span class="seeds">310</span></td>
  </tr>
  <tr>
    <td class="coll-1 name"><a href="/torrent/2/example-eng/">Example Film 2020 720p</a></td>
    <td class="coll-2 seeds">12</td>
    <td class="coll-4 size">900 MB</td>
  </tr>
  <tr>
    <td class="coll-1 name"><a href="/torrent/3/no-magnet/">Example Film Broken</a></td>
  </tr>
</table>`

func detailHTML(hash string) string {
	return fmt.Sprintf(`<ul><li><strong>Total size</strong> <span>2.1 GB</span></li></ul>
<a href="magnet:?xt=urn:btih:%s&amp;dn=Example">Magnet Download</a>`, hash)
}

func newMirror(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasPrefix(r.URL.Path, "/search/"):
			_, _ = w.Write([]byte(listingHTML))
		case r.URL.Path == "/torrent/1/example-ita/":
			_, _ = w.Write([]byte(detailHTML("ABCDEF1234567890ABCDEF1234567890ABCDEF12")))
		case r.URL.Path == "/torrent/2/example-eng/":
			_, _ = w.Write([]byte(detailHTML("1111111111111111111111111111111111111111")))
		default:
			_, _ = w.Write([]byte("<html>nothing here</html>"))
		}
	}))
}

func TestSearchFallsThroughMirrors(t *testing.T) {
	dead := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer dead.Close()
	live := newMirror(t)
	defer live.Close()

	provider := NewProvider(Config{Endpoints: dead.URL + "," + live.URL, Client: live.Client()})
	records, err := provider.Search(context.Background(), "Example Film", 2020)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d: %+v", len(records), records)
	}
	first := records[0]
	if first.Title != "Example Film 2020 ITA 1080p" || first.DeclaredSize != "2.1 GB" || first.Seeders != 310 {
		t.Fatalf("unexpected first record %+v", first)
	}
	if !strings.Contains(first.MagnetURI, "&dn=Example") {
		t.Fatalf("magnet should be unescaped, got %q", first.MagnetURI)
	}
	if records[1].DeclaredSize != "900 MB" {
		t.Fatalf("unexpected second size %q", records[1].DeclaredSize)
	}
}

func TestSearchAllMirrorsDown(t *testing.T) {
	dead := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "cloudflare", http.StatusForbidden)
	}))
	defer dead.Close()

	_, err := NewProvider(Config{Endpoints: dead.URL, Client: dead.Client()}).Search(context.Background(), "x", 0)
	if err == nil || !strings.Contains(err.Error(), "403") {
		t.Fatalf("expected 403 error, got %v", err)
	}
}

func TestParseListingSkipsHeaderAndDuplicates(t *testing.T) {
	entries := parseListing(listingHTML + listingHTML)
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}
	if entries[2].Size != "" || entries[2].Seeders != 0 {
		t.Fatalf("row without cells should carry zero values, got %+v", entries[2])
	}
}

func TestParseEndpoints(t *testing.T) {
	endpoints := parseEndpoints("https://a.example/, https://b.example, https://a.example")
	if len(endpoints) != 2 || endpoints[0] != "https://a.example" {
		t.Fatalf("unexpected endpoints %v", endpoints)
	}
	if len(parseEndpoints("")) != 3 {
		t.Fatalf("expected default mirrors")
	}
}
