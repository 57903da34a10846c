package app

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	HTTPAddr  string
	LogLevel  string
	LogFormat string
	UserAgent string

	ProviderTimeout   time.Duration
	RequestDeadline   time.Duration
	SearchConcurrency int
	SearchSpacing     time.Duration
	UnlockConcurrency int
	UnlockSpacing     time.Duration
	UnlockItemTimeout time.Duration
	FallbackThreshold int
	RankLimit         int
	DisabledProviders []string

	CacheSuccessTTL time.Duration
	CacheEmptyTTL   time.Duration
	CacheMaxEntries int
	CacheDisabled   bool
	RedisURL        string

	TMDBAPIKey   string
	TMDBBaseURL  string
	TMDBLanguage string
	TMDBCacheTTL time.Duration

	DebridAPIKey      string
	RealDebridBaseURL string

	PirateBayEndpoint string
	X1337Endpoints    string
	CorsaroEndpoint   string
	TorznabEndpoint   string
	TorznabAPIKey     string
	TorrentioEndpoint string
	TorrentioOptions  string

	RateLimitRPS   float64
	RateLimitBurst int

	OTLPEndpoint    string
	TraceSampleRate float64
}

func LoadConfig() Config {
	return Config{
		HTTPAddr:  getEnv("HTTP_ADDR", ":8090"),
		LogLevel:  strings.ToLower(getEnv("LOG_LEVEL", "info")),
		LogFormat: strings.ToLower(getEnv("LOG_FORMAT", "text")),
		UserAgent: getEnv("USER_AGENT", "torrent-stream-resolver/1.0"),

		ProviderTimeout:   getEnvDuration("PROVIDER_TIMEOUT_SECONDS", 8*time.Second, time.Second),
		RequestDeadline:   getEnvDuration("REQUEST_DEADLINE_SECONDS", 25*time.Second, time.Second),
		SearchConcurrency: getEnvInt("SEARCH_CONCURRENCY", 5, 1),
		SearchSpacing:     getEnvDuration("SEARCH_SPACING_MS", 200*time.Millisecond, time.Millisecond),
		UnlockConcurrency: getEnvInt("UNLOCK_CONCURRENCY", 1, 1),
		UnlockSpacing:     getEnvDuration("UNLOCK_SPACING_MS", 160*time.Millisecond, time.Millisecond),
		UnlockItemTimeout: getEnvDuration("UNLOCK_ITEM_TIMEOUT_SECONDS", 20*time.Second, time.Second),
		FallbackThreshold: getEnvInt("FALLBACK_THRESHOLD", 4, 0),
		RankLimit:         getEnvInt("RANK_LIMIT", 20, 1),
		DisabledProviders: parseCSV(os.Getenv("DISABLED_PROVIDERS")),

		CacheSuccessTTL: getEnvDuration("CACHE_SUCCESS_TTL_SECONDS", time.Hour, time.Second),
		CacheEmptyTTL:   getEnvDuration("CACHE_EMPTY_TTL_SECONDS", 5*time.Minute, time.Second),
		CacheMaxEntries: getEnvInt("CACHE_MAX_ENTRIES", 2000, 1),
		CacheDisabled:   getEnvBool("CACHE_DISABLED", false),
		RedisURL:        getEnv("REDIS_URL", ""),

		TMDBAPIKey:   strings.TrimSpace(os.Getenv("TMDB_API_KEY")),
		TMDBBaseURL:  getEnv("TMDB_BASE_URL", ""),
		TMDBLanguage: getEnv("TMDB_LANGUAGE", "it-IT"),
		TMDBCacheTTL: getEnvDuration("TMDB_CACHE_TTL_DAYS", 7*24*time.Hour, 24*time.Hour),

		DebridAPIKey:      strings.TrimSpace(os.Getenv("DEBRID_API_KEY")),
		RealDebridBaseURL: getEnv("REALDEBRID_BASE_URL", ""),

		PirateBayEndpoint: getEnv("BITTORRENT_INDEX_ENDPOINT", ""),
		X1337Endpoints:    getEnv("X1337_ENDPOINTS", ""),
		CorsaroEndpoint:   getEnv("CORSARO_ENDPOINT", ""),
		TorznabEndpoint:   getEnv("TORZNAB_ENDPOINT", ""),
		TorznabAPIKey:     strings.TrimSpace(os.Getenv("TORZNAB_API_KEY")),
		TorrentioEndpoint: getEnv("TORRENTIO_ENDPOINT", ""),
		TorrentioOptions:  getEnv("TORRENTIO_OPTIONS", ""),

		RateLimitRPS:   getEnvFloat("RATE_LIMIT_RPS", 0),
		RateLimitBurst: getEnvInt("RATE_LIMIT_BURST", 0, 1),

		OTLPEndpoint:    getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		TraceSampleRate: getEnvFloat("OTEL_TRACES_SAMPLER_ARG", 1),
	}
}

func getEnv(key, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}

// getEnvInt falls back when the value is unparsable or below lowest.
func getEnvInt(key string, fallback, lowest int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil || parsed < lowest {
		return fallback
	}
	return parsed
}

func getEnvFloat(key string, fallback float64) float64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(raw, 64)
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}

// getEnvDuration reads a positive count of unit ("8" with time.Second) or a
// Go duration string ("750ms").
func getEnvDuration(key string, fallback, unit time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	if count, err := strconv.Atoi(raw); err == nil {
		if count <= 0 {
			return fallback
		}
		return time.Duration(count) * unit
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}

func getEnvBool(key string, fallback bool) bool {
	raw := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if raw == "" {
		return fallback
	}
	switch raw {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func parseCSV(raw string) []string {
	var out []string
	seen := make(map[string]struct{})
	for _, part := range strings.Split(raw, ",") {
		value := strings.ToLower(strings.TrimSpace(part))
		if value == "" {
			continue
		}
		if _, ok := seen[value]; ok {
			continue
		}
		seen[value] = struct{}{}
		out = append(out, value)
	}
	return out
}
