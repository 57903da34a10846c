package domain

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

type MediaType string

const (
	MediaTypeMovie  MediaType = "movie"
	MediaTypeSeries MediaType = "series"
)

var ErrInvalidMediaID = errors.New("invalid media id")

// MediaQuery is the resolved metadata for one request. Season and Episode
// are zero for movies.
type MediaQuery struct {
	Title         string `json:"title"`
	OriginalTitle string `json:"originalTitle,omitempty"`
	Year          int    `json:"year,omitempty"`
	IsSeries      bool   `json:"isSeries,omitempty"`
	Season        int    `json:"season,omitempty"`
	Episode       int    `json:"episode,omitempty"`
}

// MediaRef is a parsed media identifier: "tt0944947" for movies,
// "tt0944947:1:2" for series episodes.
type MediaRef struct {
	Type    MediaType
	IMDbID  string
	Season  int
	Episode int
}

func ParseMediaType(raw string) (MediaType, bool) {
	switch MediaType(strings.ToLower(strings.TrimSpace(raw))) {
	case MediaTypeMovie:
		return MediaTypeMovie, true
	case MediaTypeSeries:
		return MediaTypeSeries, true
	default:
		return "", false
	}
}

func ParseMediaRef(mediaType MediaType, mediaID string) (MediaRef, error) {
	parts := strings.Split(strings.TrimSpace(mediaID), ":")
	imdbID := strings.ToLower(parts[0])
	if !isIMDbID(imdbID) {
		return MediaRef{}, fmt.Errorf("%w: %q", ErrInvalidMediaID, mediaID)
	}
	ref := MediaRef{Type: mediaType, IMDbID: imdbID}

	switch mediaType {
	case MediaTypeMovie:
		if len(parts) != 1 {
			return MediaRef{}, fmt.Errorf("%w: movie id carries episode suffix", ErrInvalidMediaID)
		}
	case MediaTypeSeries:
		if len(parts) != 3 {
			return MediaRef{}, fmt.Errorf("%w: series id must be imdb:season:episode", ErrInvalidMediaID)
		}
		season, err := strconv.Atoi(parts[1])
		if err != nil || season < 0 {
			return MediaRef{}, fmt.Errorf("%w: bad season %q", ErrInvalidMediaID, parts[1])
		}
		episode, err := strconv.Atoi(parts[2])
		if err != nil || episode <= 0 {
			return MediaRef{}, fmt.Errorf("%w: bad episode %q", ErrInvalidMediaID, parts[2])
		}
		ref.Season = season
		ref.Episode = episode
	default:
		return MediaRef{}, fmt.Errorf("%w: unknown media type %q", ErrInvalidMediaID, mediaType)
	}
	return ref, nil
}

func isIMDbID(value string) bool {
	if len(value) < 3 || !strings.HasPrefix(value, "tt") {
		return false
	}
	for _, r := range value[2:] {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// ErrMediaNotFound is returned by metadata resolvers when the catalog has no
// entry for the id.
var ErrMediaNotFound = errors.New("media not found")
