package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	apihttp "torrentstream/resolverservice/internal/api/http"
	"torrentstream/resolverservice/internal/app"
	"torrentstream/resolverservice/internal/debrid"
	"torrentstream/resolverservice/internal/metrics"
	"torrentstream/resolverservice/internal/providers/bittorrentindex"
	"torrentstream/resolverservice/internal/providers/corsaro"
	"torrentstream/resolverservice/internal/providers/tmdb"
	"torrentstream/resolverservice/internal/providers/torrentio"
	"torrentstream/resolverservice/internal/providers/torznab"
	"torrentstream/resolverservice/internal/providers/x1337"
	"torrentstream/resolverservice/internal/scheduler"
	"torrentstream/resolverservice/internal/search"
	"torrentstream/resolverservice/internal/telemetry"
)

const serviceName = "stream-resolver"

func main() {
	cfg := app.LoadConfig()
	logger := newLogger(cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)
	metrics.Register(prometheus.DefaultRegisterer)

	shutdownTracer, err := telemetry.Init(context.Background(), telemetry.Options{
		ServiceName: serviceName,
		Endpoint:    cfg.OTLPEndpoint,
		SampleRatio: cfg.TraceSampleRate,
	})
	if err != nil {
		logger.Warn("otel init failed", slog.String("error", err.Error()))
	}
	defer func() {
		if shutdownTracer != nil {
			_ = shutdownTracer(context.Background())
		}
	}()

	logger.Info("configuration loaded",
		slog.String("service", serviceName),
		slog.String("http_addr", cfg.HTTPAddr),
		slog.String("log_level", cfg.LogLevel),
		slog.String("log_format", cfg.LogFormat),
		slog.Duration("provider_timeout", cfg.ProviderTimeout),
		slog.Duration("request_deadline", cfg.RequestDeadline),
		slog.Int("search_concurrency", cfg.SearchConcurrency),
		slog.Int("unlock_concurrency", cfg.UnlockConcurrency),
		slog.Int("fallback_threshold", cfg.FallbackThreshold),
		slog.Any("disabled_providers", cfg.DisabledProviders),
		slog.Bool("has_redis", cfg.RedisURL != ""),
		slog.Bool("has_tmdb_key", cfg.TMDBAPIKey != ""),
		slog.Bool("has_debrid_key", cfg.DebridAPIKey != ""),
		slog.Bool("has_torznab", cfg.TorznabEndpoint != ""),
	)

	redisClient := buildRedisClient(cfg, logger)
	if redisClient != nil {
		defer redisClient.Close()
	}

	searchSched := scheduler.New(scheduler.Config{
		Name:        "search",
		Concurrency: cfg.SearchConcurrency,
		Spacing:     cfg.SearchSpacing,
		ItemTimeout: cfg.ProviderTimeout,
	}, logger)
	unlockSched := scheduler.New(scheduler.Config{
		Name:        "unlock",
		Concurrency: cfg.UnlockConcurrency,
		Spacing:     cfg.UnlockSpacing,
		ItemTimeout: cfg.UnlockItemTimeout,
	}, logger)

	adapters := []search.SourceAdapter{
		bittorrentindex.NewProvider(bittorrentindex.Config{
			Endpoint:  cfg.PirateBayEndpoint,
			UserAgent: cfg.UserAgent,
			Client:    newTracedClient(cfg.ProviderTimeout),
		}),
		x1337.NewProvider(x1337.Config{
			Endpoints: cfg.X1337Endpoints,
			UserAgent: cfg.UserAgent,
			Client:    newTracedClient(cfg.ProviderTimeout),
		}),
		corsaro.NewProvider(corsaro.Config{
			Endpoint:  cfg.CorsaroEndpoint,
			UserAgent: cfg.UserAgent,
			Client:    newTracedClient(cfg.ProviderTimeout),
		}),
		torznab.NewProvider(torznab.Config{
			Name:      "torznab",
			Label:     "Torznab",
			Endpoint:  cfg.TorznabEndpoint,
			APIKey:    cfg.TorznabAPIKey,
			UserAgent: cfg.UserAgent,
			Client:    newTracedClient(cfg.ProviderTimeout),
		}),
	}

	metadata := tmdb.NewClient(tmdb.Config{
		APIKey:   cfg.TMDBAPIKey,
		BaseURL:  cfg.TMDBBaseURL,
		Language: cfg.TMDBLanguage,
		Client:   newTracedClient(10 * time.Second),
		Redis:    redisClient,
		CacheTTL: cfg.TMDBCacheTTL,
	})
	if !metadata.Enabled() {
		logger.Warn("tmdb api key not configured, every request will resolve as not found")
	}

	cacheOpts := []search.CacheOption{
		search.WithCacheTTLs(cfg.CacheSuccessTTL, cfg.CacheEmptyTTL),
		search.WithCacheMaxEntries(cfg.CacheMaxEntries),
		search.WithCacheDisabled(cfg.CacheDisabled),
		search.WithCacheLogger(logger),
	}
	if redisClient != nil {
		cacheOpts = append(cacheOpts, search.WithCacheBackend(search.NewRedisCacheBackend(redisClient)))
	}

	service := search.NewService(
		metadata,
		adapters,
		searchSched,
		debrid.NewResolver(unlockSched, logger),
		search.WithAggregator(torrentio.New(torrentio.Config{
			Endpoint:  cfg.TorrentioEndpoint,
			Options:   cfg.TorrentioOptions,
			UserAgent: cfg.UserAgent,
			Client:    newTracedClient(cfg.ProviderTimeout),
		})),
		search.WithResultCache(search.NewResultCache(cacheOpts...)),
		search.WithDebridFactory(debrid.NewFactory(newTracedClient(cfg.UnlockItemTimeout), cfg.RealDebridBaseURL, cfg.DebridAPIKey)),
		search.WithRequestDeadline(cfg.RequestDeadline),
		search.WithFallbackThreshold(cfg.FallbackThreshold),
		search.WithRankLimit(cfg.RankLimit),
		search.WithDisabledProviders(cfg.DisabledProviders),
		search.WithLogger(logger),
	)

	handler := apihttp.NewServer(service,
		apihttp.WithLogger(logger),
		apihttp.WithRateLimit(cfg.RateLimitRPS, cfg.RateLimitBurst),
	).Handler()
	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      cfg.RequestDeadline + 10*time.Second,
		IdleTimeout:       60 * time.Second,
	}

	rootCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	logger.Info("stream resolver started", slog.String("addr", cfg.HTTPAddr))

	select {
	case <-rootCtx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("shutdown error", slog.String("error", err.Error()))
	}
	logger.Info("stream resolver stopped")
}

func newTracedClient(timeout time.Duration) *http.Client {
	return &http.Client{Timeout: timeout, Transport: otelhttp.NewTransport(http.DefaultTransport)}
}

// buildRedisClient returns nil when REDIS_URL is unset, invalid or
// unreachable; the cache then stays in memory only.
func buildRedisClient(cfg app.Config, logger *slog.Logger) redis.UniversalClient {
	redisURL := strings.TrimSpace(cfg.RedisURL)
	if redisURL == "" {
		return nil
	}
	redisOpts, err := redis.ParseURL(redisURL)
	if err != nil {
		logger.Warn("invalid redis url, using in-memory cache only", slog.String("error", err.Error()))
		return nil
	}
	client := redis.NewClient(redisOpts)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn("redis not reachable, using in-memory cache only", slog.String("error", err.Error()))
		_ = client.Close()
		return nil
	}
	logger.Info("redis connected", slog.String("addr", redisOpts.Addr))
	return client
}

func newLogger(levelRaw, formatRaw string) *slog.Logger {
	level := parseLogLevel(levelRaw)
	options := &slog.HandlerOptions{Level: level}
	format := strings.ToLower(strings.TrimSpace(formatRaw))
	if format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, options))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, options))
}

func parseLogLevel(raw string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
