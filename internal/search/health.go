package search

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"torrentstream/resolverservice/internal/domain"
	"torrentstream/resolverservice/internal/metrics"
)

const (
	sourceKindIndex      = "index"
	sourceKindAggregator = "aggregator"
)

type callOutcome string

const (
	outcomeOK      callOutcome = "ok"
	outcomeEmpty   callOutcome = "empty"
	outcomeTimeout callOutcome = "timeout"
	outcomeError   callOutcome = "error"
)

// classifyCall maps one adapter or aggregator call to an outcome. A call that
// answered with nothing is counted apart from one that answered.
func classifyCall(records int, err error) callOutcome {
	switch {
	case err == nil && records == 0:
		return outcomeEmpty
	case err == nil:
		return outcomeOK
	case errors.Is(err, context.DeadlineExceeded):
		return outcomeTimeout
	}
	message := strings.ToLower(err.Error())
	if strings.Contains(message, "timeout") || strings.Contains(message, "deadline exceeded") {
		return outcomeTimeout
	}
	return outcomeError
}

type callObservation struct {
	source  string
	kind    string
	term    string
	records int
	err     error
	latency time.Duration
	at      time.Time
}

type sourceStats struct {
	kind        string
	outcomes    map[callOutcome]int64
	lastOutcome callOutcome
	streak      int
	lastError   string
	lastTerm    string
	lastRecords int
	lastLatency time.Duration
	lastOK      time.Time
	lastFailed  time.Time
}

func (st *sourceStats) total() int64 {
	var n int64
	for _, count := range st.outcomes {
		n += count
	}
	return n
}

func (st *sourceStats) failures() int64 {
	return st.outcomes[outcomeError] + st.outcomes[outcomeTimeout]
}

// healthLedger keeps per-source call statistics for /providers/health. It
// only observes; nothing consults it before calling a source.
type healthLedger struct {
	mu    sync.Mutex
	stats map[string]*sourceStats
}

func newHealthLedger() *healthLedger {
	return &healthLedger{stats: make(map[string]*sourceStats)}
}

func (l *healthLedger) observe(obs callObservation) callOutcome {
	name := sourceKey(obs.source)
	outcome := classifyCall(obs.records, obs.err)
	if name == "" {
		return outcome
	}

	metrics.ProviderRequestsTotal.WithLabelValues(name, string(outcome)).Inc()
	if obs.latency > 0 {
		metrics.ProviderRequestDuration.WithLabelValues(name).Observe(obs.latency.Seconds())
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	st := l.stats[name]
	if st == nil {
		st = &sourceStats{outcomes: make(map[callOutcome]int64)}
		l.stats[name] = st
	}
	st.kind = obs.kind
	st.outcomes[outcome]++
	st.lastOutcome = outcome
	st.lastTerm = strings.TrimSpace(obs.term)
	st.lastRecords = obs.records
	if obs.latency > 0 {
		st.lastLatency = obs.latency
	}

	switch outcome {
	case outcomeOK, outcomeEmpty:
		st.streak = 0
		st.lastError = ""
		st.lastOK = obs.at
	default:
		st.streak++
		st.lastError = obs.err.Error()
		st.lastFailed = obs.at
	}
	return outcome
}

// fill copies the statistics for item.Name into item. Sources never called
// are left with zero counters.
func (l *healthLedger) fill(item *domain.ProviderDiagnostics) {
	l.mu.Lock()
	defer l.mu.Unlock()
	st := l.stats[item.Name]
	if st == nil {
		return
	}
	if item.Kind == "" {
		item.Kind = st.kind
	}
	item.LastOutcome = string(st.lastOutcome)
	item.ConsecutiveFailures = st.streak
	item.LastError = st.lastError
	item.LastTerm = st.lastTerm
	item.LastRecords = st.lastRecords
	item.LastLatencyMS = st.lastLatency.Milliseconds()
	item.LastTimeout = st.lastOutcome == outcomeTimeout
	item.TotalRequests = st.total()
	item.TotalFailures = st.failures()
	item.TimeoutCount = st.outcomes[outcomeTimeout]
	item.EmptyCount = st.outcomes[outcomeEmpty]
	if !st.lastOK.IsZero() {
		ts := st.lastOK
		item.LastSuccessAt = &ts
	}
	if !st.lastFailed.IsZero() {
		ts := st.lastFailed
		item.LastFailureAt = &ts
	}
}

func (s *Service) ProviderDiagnostics() []domain.ProviderDiagnostics {
	infos := s.Providers()
	items := make([]domain.ProviderDiagnostics, 0, len(infos))
	for _, info := range infos {
		item := domain.ProviderDiagnostics{
			Name:      info.Name,
			Label:     info.Label,
			Kind:      info.Kind,
			Enabled:   info.Enabled,
			LocalOnly: info.LocalOnly,
		}
		s.health.fill(&item)
		items = append(items, item)
	}
	return items
}
