package app

import (
	"reflect"
	"testing"
	"time"
)

func TestLoadConfigDefaults(t *testing.T) {
	for _, key := range []string{
		"HTTP_ADDR", "LOG_LEVEL", "PROVIDER_TIMEOUT_SECONDS", "REQUEST_DEADLINE_SECONDS",
		"SEARCH_CONCURRENCY", "SEARCH_SPACING_MS", "UNLOCK_CONCURRENCY", "UNLOCK_SPACING_MS",
		"UNLOCK_ITEM_TIMEOUT_SECONDS", "FALLBACK_THRESHOLD", "RANK_LIMIT", "TMDB_LANGUAGE",
		"CACHE_SUCCESS_TTL_SECONDS", "CACHE_EMPTY_TTL_SECONDS", "DISABLED_PROVIDERS",
	} {
		t.Setenv(key, "")
	}

	cfg := LoadConfig()
	if cfg.HTTPAddr != ":8090" || cfg.LogLevel != "info" {
		t.Fatalf("unexpected basics: %+v", cfg)
	}
	if cfg.ProviderTimeout != 8*time.Second || cfg.RequestDeadline != 25*time.Second {
		t.Fatalf("unexpected timeouts: provider=%s deadline=%s", cfg.ProviderTimeout, cfg.RequestDeadline)
	}
	if cfg.SearchConcurrency != 5 || cfg.SearchSpacing != 200*time.Millisecond {
		t.Fatalf("unexpected search scheduler: %d %s", cfg.SearchConcurrency, cfg.SearchSpacing)
	}
	if cfg.UnlockConcurrency != 1 || cfg.UnlockSpacing != 160*time.Millisecond || cfg.UnlockItemTimeout != 20*time.Second {
		t.Fatalf("unexpected unlock scheduler: %d %s %s", cfg.UnlockConcurrency, cfg.UnlockSpacing, cfg.UnlockItemTimeout)
	}
	if cfg.FallbackThreshold != 4 || cfg.RankLimit != 20 {
		t.Fatalf("unexpected pipeline limits: %d %d", cfg.FallbackThreshold, cfg.RankLimit)
	}
	if cfg.CacheSuccessTTL != time.Hour || cfg.CacheEmptyTTL != 5*time.Minute {
		t.Fatalf("unexpected cache ttls: %s %s", cfg.CacheSuccessTTL, cfg.CacheEmptyTTL)
	}
	if cfg.TMDBLanguage != "it-IT" {
		t.Fatalf("unexpected tmdb language: %q", cfg.TMDBLanguage)
	}
	if cfg.DisabledProviders != nil {
		t.Fatalf("expected no disabled providers, got %v", cfg.DisabledProviders)
	}
}

func TestLoadConfigOverridesAndBounds(t *testing.T) {
	t.Setenv("SEARCH_CONCURRENCY", "0")
	t.Setenv("SEARCH_SPACING_MS", "350")
	t.Setenv("UNLOCK_ITEM_TIMEOUT_SECONDS", "1m30s")
	t.Setenv("FALLBACK_THRESHOLD", "0")
	t.Setenv("RANK_LIMIT", "-3")
	t.Setenv("REQUEST_DEADLINE_SECONDS", "abc")
	t.Setenv("RATE_LIMIT_RPS", "12.5")
	t.Setenv("CACHE_DISABLED", "yes")
	t.Setenv("DISABLED_PROVIDERS", " 1337x, TPB,,1337x ")

	cfg := LoadConfig()
	if cfg.SearchConcurrency != 5 {
		t.Fatalf("concurrency below bound should fall back, got %d", cfg.SearchConcurrency)
	}
	if cfg.SearchSpacing != 350*time.Millisecond {
		t.Fatalf("unexpected spacing: %s", cfg.SearchSpacing)
	}
	if cfg.UnlockItemTimeout != 90*time.Second {
		t.Fatalf("duration string not honoured: %s", cfg.UnlockItemTimeout)
	}
	if cfg.FallbackThreshold != 0 {
		t.Fatalf("zero threshold is valid, got %d", cfg.FallbackThreshold)
	}
	if cfg.RankLimit != 20 || cfg.RequestDeadline != 25*time.Second {
		t.Fatalf("invalid values should fall back: rank=%d deadline=%s", cfg.RankLimit, cfg.RequestDeadline)
	}
	if cfg.RateLimitRPS != 12.5 || !cfg.CacheDisabled {
		t.Fatalf("unexpected overrides: rps=%v cacheDisabled=%v", cfg.RateLimitRPS, cfg.CacheDisabled)
	}
	if want := []string{"1337x", "tpb"}; !reflect.DeepEqual(cfg.DisabledProviders, want) {
		t.Fatalf("disabled providers = %v, want %v", cfg.DisabledProviders, want)
	}
}
