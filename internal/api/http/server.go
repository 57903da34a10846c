package apihttp

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"torrentstream/resolverservice/internal/domain"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

type StreamService interface {
	ResolveStreams(ctx context.Context, mediaType domain.MediaType, mediaID string, cfg domain.UserConfig) domain.StreamResponse
	Providers() []domain.ProviderInfo
	ProviderDiagnostics() []domain.ProviderDiagnostics
}

type Server struct {
	streams   StreamService
	logger    *slog.Logger
	manifest  Manifest
	rateRPS   float64
	rateBurst int
}

type ServerOption func(*Server)

const (
	defaultRateRPS   = 50
	defaultRateBurst = 100
)

func WithLogger(logger *slog.Logger) ServerOption {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithRateLimit overrides the global token bucket. Non-positive values keep
// the defaults.
func WithRateLimit(rps float64, burst int) ServerOption {
	return func(s *Server) {
		if rps > 0 {
			s.rateRPS = rps
		}
		if burst > 0 {
			s.rateBurst = burst
		}
	}
}

func WithManifest(manifest Manifest) ServerOption {
	return func(s *Server) {
		s.manifest = manifest
	}
}

func NewServer(streams StreamService, options ...ServerOption) *Server {
	server := &Server{
		streams:   streams,
		logger:    slog.Default(),
		manifest:  DefaultManifest(),
		rateRPS:   defaultRateRPS,
		rateBurst: defaultRateBurst,
	}
	for _, option := range options {
		if option != nil {
			option(server)
		}
	}
	if server.logger == nil {
		server.logger = slog.Default()
	}
	return server
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /manifest.json", s.handleManifest)
	mux.HandleFunc("GET /{config}/manifest.json", s.handleManifest)
	mux.HandleFunc("GET /stream/{type}/{id}", s.handleStreams)
	mux.HandleFunc("GET /{config}/stream/{type}/{id}", s.handleStreams)
	mux.HandleFunc("GET /providers", s.handleProviders)
	mux.HandleFunc("GET /providers/health", s.handleProvidersHealth)

	traced := otelhttp.NewHandler(loggingMiddleware(s.logger, requestIDMiddleware(corsMiddleware(mux))), "stream-resolver",
		otelhttp.WithFilter(func(r *http.Request) bool {
			p := r.URL.Path
			return p != "/metrics" && p != "/health"
		}),
	)
	return recoveryMiddleware(s.logger, rateLimitMiddleware(s.rateRPS, s.rateBurst, metricsMiddleware(traced)))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC(),
	})
}

func (s *Server) handleManifest(w http.ResponseWriter, r *http.Request) {
	if raw := r.PathValue("config"); raw != "" {
		if _, err := domain.ParseUserConfig(raw); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_config", err.Error())
			return
		}
	}
	writeJSON(w, http.StatusOK, s.manifest)
}

func (s *Server) handleStreams(w http.ResponseWriter, r *http.Request) {
	if s.streams == nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "stream service is not configured")
		return
	}

	cfg, err := domain.ParseUserConfig(r.PathValue("config"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_config", err.Error())
		return
	}

	mediaType, ok := domain.ParseMediaType(r.PathValue("type"))
	if !ok {
		writeError(w, http.StatusNotFound, "not_found", "unsupported media type")
		return
	}
	mediaID, ok := strings.CutSuffix(r.PathValue("id"), ".json")
	if !ok || strings.TrimSpace(mediaID) == "" {
		writeError(w, http.StatusNotFound, "not_found", "unknown stream route")
		return
	}

	response := s.streams.ResolveStreams(r.Context(), mediaType, mediaID, cfg)
	if response.CacheHintSeconds > 0 {
		w.Header().Set("Cache-Control", "max-age="+strconv.Itoa(response.CacheHintSeconds))
	}
	writeJSON(w, http.StatusOK, renderStreams(response))
}

func (s *Server) handleProviders(w http.ResponseWriter, _ *http.Request) {
	if s.streams == nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "stream service is not configured")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"items": s.streams.Providers(),
	})
}

func (s *Server) handleProvidersHealth(w http.ResponseWriter, _ *http.Request) {
	if s.streams == nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "stream service is not configured")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"checkedAt": time.Now().UTC(),
		"items":     s.streams.ProviderDiagnostics(),
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]any{
		"error": map[string]string{
			"code":    code,
			"message": message,
		},
	})
}
