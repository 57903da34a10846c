package tmdb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"torrentstream/resolverservice/internal/domain"
	"torrentstream/resolverservice/internal/search"
)

const (
	defaultBaseURL  = "https://api.themoviedb.org/3"
	defaultLanguage = "it-IT"
	redisCacheKey   = "resolver:tmdb:"
)

var ErrNotConfigured = errors.New("tmdb: api key not configured")

// Client resolves IMDb ids to localized titles through TMDB's find
// endpoint. Lookups are cached in Redis when a client is supplied.
type Client struct {
	apiKey   string
	baseURL  string
	language string
	http     *http.Client
	redis    redis.UniversalClient
	cacheTTL time.Duration
}

var _ search.MetadataResolver = (*Client)(nil)

type Config struct {
	APIKey   string
	BaseURL  string
	Language string
	Client   *http.Client
	Redis    redis.UniversalClient
	CacheTTL time.Duration
}

type findResult struct {
	ID            int    `json:"id"`
	Title         string `json:"title,omitempty"`
	OriginalTitle string `json:"original_title,omitempty"`
	Name          string `json:"name,omitempty"`
	OriginalName  string `json:"original_name,omitempty"`
	ReleaseDate   string `json:"release_date,omitempty"`
	FirstAirDate  string `json:"first_air_date,omitempty"`
}

type findResponse struct {
	MovieResults []findResult `json:"movie_results"`
	TVResults    []findResult `json:"tv_results"`
}

func NewClient(cfg Config) *Client {
	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	language := strings.TrimSpace(cfg.Language)
	if language == "" {
		language = defaultLanguage
	}
	httpClient := cfg.Client
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	cacheTTL := cfg.CacheTTL
	if cacheTTL <= 0 {
		cacheTTL = 7 * 24 * time.Hour
	}
	return &Client{
		apiKey:   strings.TrimSpace(cfg.APIKey),
		baseURL:  strings.TrimRight(baseURL, "/"),
		language: language,
		http:     httpClient,
		redis:    cfg.Redis,
		cacheTTL: cacheTTL,
	}
}

func (c *Client) Enabled() bool {
	return c.apiKey != ""
}

// Resolve maps a media reference to its search titles and year. An id TMDB
// does not know, or knows under the other media type, is ErrMediaNotFound.
// The lookup is attempted once.
func (c *Client) Resolve(ctx context.Context, ref domain.MediaRef) (domain.MediaQuery, error) {
	if !c.Enabled() {
		return domain.MediaQuery{}, ErrNotConfigured
	}
	cacheKey := redisCacheKey + "find:" + strings.ToLower(ref.IMDbID) + ":" + string(ref.Type) + ":" + c.language

	if c.redis != nil {
		if data, err := c.redis.Get(ctx, cacheKey).Bytes(); err == nil {
			var cached domain.MediaQuery
			if json.Unmarshal(data, &cached) == nil {
				return cached, nil
			}
		}
	}

	response, err := c.find(ctx, ref.IMDbID)
	if err != nil {
		return domain.MediaQuery{}, err
	}

	results := response.MovieResults
	if ref.Type == domain.MediaTypeSeries {
		results = response.TVResults
	}
	if len(results) == 0 {
		return domain.MediaQuery{}, fmt.Errorf("tmdb %s %s: %w", ref.Type, ref.IMDbID, domain.ErrMediaNotFound)
	}
	query := results[0].toQuery()

	if c.redis != nil {
		if data, err := json.Marshal(query); err == nil {
			_ = c.redis.Set(ctx, cacheKey, data, c.cacheTTL).Err()
		}
	}
	return query, nil
}

func (c *Client) find(ctx context.Context, imdbID string) (findResponse, error) {
	params := url.Values{
		"api_key":         {c.apiKey},
		"external_source": {"imdb_id"},
		"language":        {c.language},
	}
	reqURL := c.baseURL + "/find/" + url.PathEscape(imdbID) + "?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return findResponse{}, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return findResponse{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return findResponse{}, nil
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return findResponse{}, fmt.Errorf("tmdb HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var response findResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 512*1024)).Decode(&response); err != nil {
		return findResponse{}, fmt.Errorf("decode tmdb response: %w", err)
	}
	return response, nil
}

func (r findResult) toQuery() domain.MediaQuery {
	title, original, date := r.Title, r.OriginalTitle, r.ReleaseDate
	if title == "" {
		title, original, date = r.Name, r.OriginalName, r.FirstAirDate
	}
	title = strings.TrimSpace(title)
	original = strings.TrimSpace(original)
	if strings.EqualFold(title, original) {
		original = ""
	}
	year := 0
	if len(date) >= 4 {
		year, _ = strconv.Atoi(date[:4])
	}
	return domain.MediaQuery{Title: title, OriginalTitle: original, Year: year}
}
