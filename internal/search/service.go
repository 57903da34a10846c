package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"torrentstream/resolverservice/internal/debrid"
	"torrentstream/resolverservice/internal/domain"
	"torrentstream/resolverservice/internal/metrics"
	"torrentstream/resolverservice/internal/scheduler"
	"torrentstream/resolverservice/internal/telemetry"
)

const (
	defaultRequestDeadline   = 25 * time.Second
	defaultFallbackThreshold = 4
)

type Service struct {
	adapters          adapterRegistry
	aggregator        Aggregator
	metadata          MetadataResolver
	searchSched       *scheduler.Scheduler
	unlock            UnlockResolver
	debrid            DebridFactory
	cache             *ResultCache
	group             singleflight.Group
	deadline          time.Duration
	fallbackThreshold int
	rankLimit         int
	disabledNames     []string
	logger            *slog.Logger
	tracer            trace.Tracer
	now               func() time.Time
	health            *healthLedger
}

type ServiceOption func(*Service)

func WithAggregator(aggregator Aggregator) ServiceOption {
	return func(s *Service) {
		s.aggregator = aggregator
	}
}

func WithResultCache(cache *ResultCache) ServiceOption {
	return func(s *Service) {
		if cache != nil {
			s.cache = cache
		}
	}
}

func WithRequestDeadline(deadline time.Duration) ServiceOption {
	return func(s *Service) {
		if deadline > 0 {
			s.deadline = deadline
		}
	}
}

// WithFallbackThreshold sets the unique-candidate count at or below which
// the aggregator is consulted.
func WithFallbackThreshold(n int) ServiceOption {
	return func(s *Service) {
		if n >= 0 {
			s.fallbackThreshold = n
		}
	}
}

func WithRankLimit(n int) ServiceOption {
	return func(s *Service) {
		if n > 0 {
			s.rankLimit = n
		}
	}
}

func WithDebridFactory(factory DebridFactory) ServiceOption {
	return func(s *Service) {
		s.debrid = factory
	}
}

// WithDisabledProviders switches adapters off by name or alias.
func WithDisabledProviders(names []string) ServiceOption {
	return func(s *Service) {
		s.disabledNames = append(s.disabledNames, names...)
	}
}

func WithLogger(logger *slog.Logger) ServiceOption {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func NewService(metadata MetadataResolver, adapters []SourceAdapter, searchSched *scheduler.Scheduler, unlock UnlockResolver, opts ...ServiceOption) *Service {
	svc := &Service{
		adapters:          newAdapterRegistry(adapters),
		metadata:          metadata,
		searchSched:       searchSched,
		unlock:            unlock,
		deadline:          defaultRequestDeadline,
		fallbackThreshold: defaultFallbackThreshold,
		rankLimit:         defaultRankLimit,
		logger:            slog.Default(),
		tracer:            telemetry.Tracer(),
		now:               time.Now,
		health:            newHealthLedger(),
	}
	for _, opt := range opts {
		opt(svc)
	}
	if svc.cache == nil {
		svc.cache = NewResultCache(WithCacheLogger(svc.logger))
	}
	if svc.searchSched == nil {
		svc.searchSched = scheduler.New(scheduler.Config{Name: "search"}, svc.logger)
	}
	if unknown := svc.adapters.disable(svc.disabledNames); len(unknown) > 0 {
		svc.logger.Warn("unknown providers in disable list", slog.Any("names", unknown))
	}
	return svc
}

// ResolveStreams turns a media id into playable streams. It never fails:
// problems surface as the response status and an empty stream list.
// Concurrent calls for the same key share one pipeline run.
func (s *Service) ResolveStreams(ctx context.Context, mediaType domain.MediaType, mediaID string, cfg domain.UserConfig) domain.StreamResponse {
	ref, err := domain.ParseMediaRef(mediaType, mediaID)
	if err != nil {
		metrics.ResolveRequestsTotal.WithLabelValues(string(mediaType), string(domain.StreamStatusNotFound)).Inc()
		return s.withHint(domain.StreamResponse{
			Status:  domain.StreamStatusNotFound,
			Message: err.Error(),
		})
	}

	key := CacheKey(cfg.Fingerprint(), mediaType, mediaID, 0)
	if cached, ok := s.cache.Get(ctx, key); ok {
		return cached
	}

	ch := s.group.DoChan(key, func() (any, error) {
		flightCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.deadline)
		defer cancel()

		if cached, ok := s.cache.Get(flightCtx, key); ok {
			return cached, nil
		}
		response := s.withHint(s.runPipeline(flightCtx, ref, cfg))
		s.cache.Set(flightCtx, key, response)
		metrics.ResolveRequestsTotal.WithLabelValues(string(mediaType), string(response.Status)).Inc()
		return response, nil
	})

	select {
	case <-ctx.Done():
		return s.withHint(domain.StreamResponse{
			Status:  domain.StreamStatusPartial,
			Message: "request cancelled",
		})
	case result := <-ch:
		response, _ := result.Val.(domain.StreamResponse)
		return response.Clone()
	}
}

func (s *Service) withHint(response domain.StreamResponse) domain.StreamResponse {
	if response.Streams == nil {
		response.Streams = []domain.StreamRecord{}
	}
	response.CacheHintSeconds = int(s.cache.TTLFor(response.Status).Seconds())
	return response
}

func (s *Service) runPipeline(ctx context.Context, ref domain.MediaRef, cfg domain.UserConfig) domain.StreamResponse {
	ctx, span := s.tracer.Start(ctx, "resolver.resolve",
		trace.WithAttributes(
			attribute.String("media.type", string(ref.Type)),
			attribute.String("media.imdb_id", ref.IMDbID),
		),
	)
	defer span.End()

	startedAt := s.now()
	logger := s.logger.With(
		slog.String("media_type", string(ref.Type)),
		slog.String("imdb_id", ref.IMDbID),
	)

	query, err := s.resolveMetadata(ctx, ref)
	if err != nil {
		status := domain.StreamStatusNotFound
		if ctx.Err() != nil {
			status = domain.StreamStatusPartial
		}
		logger.Info("metadata lookup failed", slog.String("status", string(status)), slog.String("error", err.Error()))
		return domain.StreamResponse{Status: status, Message: metadataMessage(err)}
	}

	terms := ExpandQueries(query, cfg.LocalLanguageOnly)
	opts := normalizeOptionsFor(query, cfg, s.adapters.localSources())

	records := s.fanOut(ctx, terms, query.Year)
	unique, stats := Normalize(records, opts)

	fallbackUsed := false
	if len(unique) <= s.fallbackThreshold && s.aggregator != nil && ctx.Err() == nil {
		fallback := s.consultAggregator(ctx, ref, query)
		if len(fallback) > 0 {
			fallbackUsed = true
			records = append(records, fallback...)
			unique, stats = Normalize(records, opts)
		}
	}

	ranked := Rank(unique, s.rankLimit)
	streams := s.unlockRanked(ctx, ranked, cfg)

	status := domain.StreamStatusOK
	message := ""
	switch {
	case ctx.Err() != nil:
		status = domain.StreamStatusPartial
		message = "deadline reached before all sources answered"
	case len(streams) == 0:
		status = domain.StreamStatusNoResults
	}

	span.SetAttributes(
		attribute.Int("resolver.terms", len(terms)),
		attribute.Int("resolver.candidates", len(records)),
		attribute.Int("resolver.unique", len(unique)),
		attribute.Int("resolver.streams", len(streams)),
		attribute.String("resolver.status", string(status)),
	)
	logger.Info("streams resolved",
		slog.Int("terms", len(terms)),
		slog.Int("candidates", len(records)),
		slog.Int("unique", len(unique)),
		slog.Int("dropped", stats.Dropped()),
		slog.Int("ranked", len(ranked)),
		slog.Int("streams", len(streams)),
		slog.Bool("fallback", fallbackUsed),
		slog.String("status", string(status)),
		slog.Int64("elapsed_ms", s.now().Sub(startedAt).Milliseconds()),
	)
	return domain.StreamResponse{Streams: streams, Status: status, Message: message}
}

func (s *Service) resolveMetadata(ctx context.Context, ref domain.MediaRef) (domain.MediaQuery, error) {
	if s.metadata == nil {
		return domain.MediaQuery{}, errors.New("metadata resolver not configured")
	}
	ctx, span := s.tracer.Start(ctx, "resolver.metadata")
	defer span.End()

	query, err := s.metadata.Resolve(ctx, ref)
	if err != nil {
		span.RecordError(err)
		return domain.MediaQuery{}, err
	}
	if strings.TrimSpace(query.Title) == "" && strings.TrimSpace(query.OriginalTitle) == "" {
		return domain.MediaQuery{}, domain.ErrMediaNotFound
	}
	query.IsSeries = ref.Type == domain.MediaTypeSeries
	if query.IsSeries {
		query.Season = ref.Season
		query.Episode = ref.Episode
	}
	return query, nil
}

func metadataMessage(err error) string {
	switch {
	case errors.Is(err, domain.ErrMediaNotFound):
		return "media not found"
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return "metadata lookup timed out"
	default:
		return fmt.Sprintf("metadata lookup failed: %v", err)
	}
}

// fanOut queues one task per (term, adapter) pair, term-major, on the
// search scheduler.
func (s *Service) fanOut(ctx context.Context, terms []string, year int) []domain.CandidateRecord {
	ctx, span := s.tracer.Start(ctx, "resolver.search")
	defer span.End()

	adapters := s.adapters.enabled()
	tasks := make([]scheduler.Task[domain.CandidateRecord], 0, len(terms)*len(adapters))
	for _, term := range terms {
		for _, adapter := range adapters {
			term, adapter := term, adapter
			tasks = append(tasks, func(ctx context.Context) ([]domain.CandidateRecord, error) {
				started := s.now()
				records, err := adapter.Search(ctx, term, year)
				s.health.observe(callObservation{
					source:  adapter.Name(),
					kind:    sourceKindIndex,
					term:    term,
					records: len(records),
					err:     err,
					latency: s.now().Sub(started),
					at:      s.now(),
				})
				if err != nil {
					return nil, err
				}
				for i := range records {
					if records[i].Source == "" {
						records[i].Source = adapter.Name()
					}
				}
				return records, nil
			})
		}
	}
	span.SetAttributes(attribute.Int("resolver.tasks", len(tasks)))
	return scheduler.Run(ctx, s.searchSched, tasks)
}

// consultAggregator makes the single fallback call. Its failure is an empty
// contribution.
func (s *Service) consultAggregator(ctx context.Context, ref domain.MediaRef, query domain.MediaQuery) []domain.CandidateRecord {
	ctx, span := s.tracer.Start(ctx, "resolver.fallback")
	defer span.End()

	mediaID := ref.IMDbID
	if ref.Type == domain.MediaTypeSeries {
		mediaID = fmt.Sprintf("%s:%d:%d", ref.IMDbID, ref.Season, ref.Episode)
	}
	started := s.now()
	records, err := s.aggregator.Search(ctx, AggregatorRequest{
		MediaID:   mediaID,
		MediaType: ref.Type,
		IMDbID:    ref.IMDbID,
		Term:      query.Title,
	})
	s.health.observe(callObservation{
		source:  s.aggregator.Name(),
		kind:    sourceKindAggregator,
		term:    mediaID,
		records: len(records),
		err:     err,
		latency: s.now().Sub(started),
		at:      s.now(),
	})
	if err != nil {
		span.RecordError(err)
		metrics.FallbackInvocationsTotal.WithLabelValues("error").Inc()
		s.logger.Warn("fallback aggregator failed",
			slog.String("aggregator", s.aggregator.Name()),
			slog.String("error", err.Error()),
		)
		return nil
	}
	metrics.FallbackInvocationsTotal.WithLabelValues("ok").Inc()
	for i := range records {
		if records[i].Source == "" {
			records[i].Source = s.aggregator.Name()
		}
	}
	return records
}

func (s *Service) unlockRanked(ctx context.Context, ranked []RankedCandidate, cfg domain.UserConfig) []domain.StreamRecord {
	if len(ranked) == 0 || s.unlock == nil {
		return []domain.StreamRecord{}
	}
	ctx, span := s.tracer.Start(ctx, "resolver.unlock")
	defer span.End()

	var provider debrid.Provider
	if s.debrid != nil {
		provider = s.debrid.ForKey(cfg.DebridAPIKey)
	}
	candidates := make([]debrid.Candidate, 0, len(ranked))
	for _, item := range ranked {
		candidates = append(candidates, debrid.Candidate{
			Title:     item.Title,
			MagnetURI: item.MagnetURI,
			InfoHash:  item.InfoHash,
			SizeBytes: item.SizeBytes,
			Source:    item.Source,
		})
	}
	streams := s.unlock.Resolve(ctx, provider, candidates, cfg.ShowUnresolved)
	if streams == nil {
		streams = []domain.StreamRecord{}
	}
	return streams
}
