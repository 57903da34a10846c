package tmdb

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"torrentstream/resolverservice/internal/domain"
)

const findJSON = `{
  "movie_results": [{"id": 129, "title": "La città incantata", "original_title": "千と千尋の神隠し", "release_date": "2001-07-20"}],
  "tv_results": [{"id": 1399, "name": "Il Trono di Spade", "original_name": "Game of Thrones", "first_air_date": "2011-04-17"}]
}`

func newTMDB(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(Config{
		APIKey:  "key",
		BaseURL: srv.URL,
		Client:  srv.Client(),
	})
}

func TestResolveMovieAndSeries(t *testing.T) {
	var gotPath, gotLang, gotSource string
	client := newTMDB(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotLang = r.URL.Query().Get("language")
		gotSource = r.URL.Query().Get("external_source")
		_, _ = w.Write([]byte(findJSON))
	})

	movie, err := client.Resolve(context.Background(), domain.MediaRef{Type: domain.MediaTypeMovie, IMDbID: "tt0245429"})
	if err != nil {
		t.Fatalf("Resolve movie: %v", err)
	}
	if gotPath != "/find/tt0245429" || gotLang != "it-IT" || gotSource != "imdb_id" {
		t.Fatalf("unexpected request path=%q lang=%q source=%q", gotPath, gotLang, gotSource)
	}
	if movie.Title != "La città incantata" || movie.OriginalTitle != "千と千尋の神隠し" || movie.Year != 2001 {
		t.Fatalf("unexpected movie query %+v", movie)
	}

	series, err := client.Resolve(context.Background(), domain.MediaRef{Type: domain.MediaTypeSeries, IMDbID: "tt0944947", Season: 1, Episode: 1})
	if err != nil {
		t.Fatalf("Resolve series: %v", err)
	}
	if series.Title != "Il Trono di Spade" || series.OriginalTitle != "Game of Thrones" || series.Year != 2011 {
		t.Fatalf("unexpected series query %+v", series)
	}
}

func TestResolveUnknownIsNotFound(t *testing.T) {
	client := newTMDB(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"movie_results":[],"tv_results":[]}`))
	})
	_, err := client.Resolve(context.Background(), domain.MediaRef{Type: domain.MediaTypeMovie, IMDbID: "tt0000001"})
	if !errors.Is(err, domain.ErrMediaNotFound) {
		t.Fatalf("expected ErrMediaNotFound, got %v", err)
	}
}

func TestResolveAttemptsOnce(t *testing.T) {
	cases := []struct {
		name    string
		handler func(w http.ResponseWriter, r *http.Request)
	}{
		{"http error", func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, `{"status_message":"Invalid API key"}`, http.StatusUnauthorized)
		}},
		{"dropped connection", func(w http.ResponseWriter, r *http.Request) {
			hijacker, ok := w.(http.Hijacker)
			if !ok {
				t.Errorf("response writer cannot hijack")
				return
			}
			conn, _, err := hijacker.Hijack()
			if err != nil {
				t.Errorf("hijack: %v", err)
				return
			}
			_ = conn.Close()
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var calls atomic.Int32
			client := newTMDB(t, func(w http.ResponseWriter, r *http.Request) {
				calls.Add(1)
				tc.handler(w, r)
			})
			_, err := client.Resolve(context.Background(), domain.MediaRef{Type: domain.MediaTypeMovie, IMDbID: "tt1"})
			if err == nil || errors.Is(err, domain.ErrMediaNotFound) {
				t.Fatalf("expected lookup error, got %v", err)
			}
			if got := calls.Load(); got != 1 {
				t.Fatalf("metadata lookup attempted %d times, want 1", got)
			}
		})
	}
}

func TestResolveRequiresKey(t *testing.T) {
	_, err := NewClient(Config{}).Resolve(context.Background(), domain.MediaRef{Type: domain.MediaTypeMovie, IMDbID: "tt1"})
	if !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
}

func TestToQueryDropsRedundantOriginalTitle(t *testing.T) {
	q := findResult{Title: "Inception", OriginalTitle: "inception", ReleaseDate: "2010"}.toQuery()
	if q.OriginalTitle != "" || q.Year != 2010 {
		t.Fatalf("unexpected query %+v", q)
	}
}
