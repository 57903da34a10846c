package domain

import (
	"errors"
	"testing"
)

func TestParseMediaRef(t *testing.T) {
	tests := []struct {
		name      string
		mediaType MediaType
		id        string
		want      MediaRef
		wantErr   bool
	}{
		{name: "movie", mediaType: MediaTypeMovie, id: "tt0111161", want: MediaRef{Type: MediaTypeMovie, IMDbID: "tt0111161"}},
		{name: "episode", mediaType: MediaTypeSeries, id: "tt0944947:2:5", want: MediaRef{Type: MediaTypeSeries, IMDbID: "tt0944947", Season: 2, Episode: 5}},
		{name: "movie with suffix", mediaType: MediaTypeMovie, id: "tt0111161:1:1", wantErr: true},
		{name: "series without episode", mediaType: MediaTypeSeries, id: "tt0944947", wantErr: true},
		{name: "zero episode", mediaType: MediaTypeSeries, id: "tt0944947:1:0", wantErr: true},
		{name: "not imdb", mediaType: MediaTypeMovie, id: "kitsu:123", wantErr: true},
		{name: "empty", mediaType: MediaTypeMovie, id: "", wantErr: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ParseMediaRef(tc.mediaType, tc.id)
			if tc.wantErr {
				if !errors.Is(err, ErrInvalidMediaID) {
					t.Fatalf("expected ErrInvalidMediaID, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseMediaRef: %v", err)
			}
			if got != tc.want {
				t.Fatalf("got %+v, want %+v", got, tc.want)
			}
		})
	}
}

func TestParseMediaType(t *testing.T) {
	if got, ok := ParseMediaType(" Series "); !ok || got != MediaTypeSeries {
		t.Fatalf("expected series, got %q %v", got, ok)
	}
	if _, ok := ParseMediaType("channel"); ok {
		t.Fatalf("expected channel to be rejected")
	}
}
