package debrid

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"torrentstream/resolverservice/internal/domain"
	"torrentstream/resolverservice/internal/metrics"
	"torrentstream/resolverservice/internal/scheduler"
)

// MinPlayableSize is the smallest unlocked file considered a real video.
const MinPlayableSize int64 = 150 * 1024 * 1024

var archiveExtensions = []string{".rar", ".zip"}

// State tracks one candidate through resolution. Failed is terminal.
type State string

const (
	StateRequested      State = "requested"
	StateAdded          State = "added"
	StateSelectingFiles State = "selecting_files"
	StateDownloaded     State = "downloaded"
	StateUnlocked       State = "unlocked"
	StateFailed         State = "failed"
)

type Candidate struct {
	Title     string
	MagnetURI string
	InfoHash  string
	SizeBytes int64
	Source    string
}

type Outcome struct {
	State State
	// FailedAt is the last state reached before failing.
	FailedAt State
	Link     UnlockedLink
	Err      error
}

type Resolver struct {
	sched  *scheduler.Scheduler
	logger *slog.Logger
}

func NewResolver(sched *scheduler.Scheduler, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{sched: sched, logger: logger}
}

// Resolve unlocks candidates one scheduled task each, queued in the given
// order. With a nil provider every candidate is returned as pending. Failed
// candidates become pending only when showUnresolved is set; unlocked links
// that fail playable validation are always dropped.
func (r *Resolver) Resolve(ctx context.Context, provider Provider, candidates []Candidate, showUnresolved bool) []domain.StreamRecord {
	if len(candidates) == 0 {
		return []domain.StreamRecord{}
	}
	if provider == nil {
		out := make([]domain.StreamRecord, 0, len(candidates))
		for _, c := range candidates {
			out = append(out, pendingStream(c))
		}
		return out
	}

	tasks := make([]scheduler.Task[domain.StreamRecord], 0, len(candidates))
	for _, c := range candidates {
		c := c
		tasks = append(tasks, func(ctx context.Context) ([]domain.StreamRecord, error) {
			outcome := ResolveCandidate(ctx, provider, c.MagnetURI)
			metrics.UnlockOutcomesTotal.WithLabelValues(provider.Name(), string(outcome.State)).Inc()

			if outcome.State != StateUnlocked {
				r.logger.Debug("unlock failed",
					slog.String("provider", provider.Name()),
					slog.String("info_hash", c.InfoHash),
					slog.String("failed_at", string(outcome.FailedAt)),
					slog.String("error", errString(outcome.Err)),
				)
				if showUnresolved {
					return []domain.StreamRecord{pendingStream(c)}, nil
				}
				return nil, nil
			}

			if reason := rejectUnlocked(outcome.Link); reason != "" {
				r.logger.Debug("unlocked link discarded",
					slog.String("info_hash", c.InfoHash),
					slog.String("filename", outcome.Link.Filename),
					slog.String("reason", reason),
				)
				return nil, nil
			}
			return []domain.StreamRecord{{
				DisplayTitle: c.Title,
				SizeBytes:    outcome.Link.SizeBytes,
				URL:          outcome.Link.URL,
				Source:       c.Source,
				InfoHash:     c.InfoHash,
				Filename:     outcome.Link.Filename,
			}}, nil
		})
	}
	return scheduler.Run(ctx, r.sched, tasks)
}

// ResolveCandidate drives a single magnet through submit, optional file
// selection, status and unlock. Any error fails the candidate; nothing is
// retried.
func ResolveCandidate(ctx context.Context, provider Provider, magnet string) Outcome {
	state := StateRequested
	fail := func(err error) Outcome {
		return Outcome{State: StateFailed, FailedAt: state, Err: err}
	}

	torrentID, err := provider.Submit(ctx, magnet)
	if err != nil {
		return fail(err)
	}
	state = StateAdded

	status, err := provider.Status(ctx, torrentID)
	if err != nil {
		return fail(err)
	}
	if status.State == TorrentWaitingFiles {
		state = StateSelectingFiles
		if err := provider.SelectFiles(ctx, torrentID, "all"); err != nil {
			return fail(err)
		}
		status, err = provider.Status(ctx, torrentID)
		if err != nil {
			return fail(err)
		}
	}
	if status.State != TorrentDownloaded || len(status.Links) == 0 {
		return fail(fmt.Errorf("%w: state %s with %d links", ErrNotReady, status.State, len(status.Links)))
	}
	state = StateDownloaded

	link, err := provider.Unlock(ctx, status.Links[0])
	if err != nil {
		return fail(err)
	}
	if link.SizeBytes <= 0 {
		link.SizeBytes = largestSelected(status.Files)
	}
	return Outcome{State: StateUnlocked, Link: link}
}

func rejectUnlocked(link UnlockedLink) string {
	name := strings.ToLower(strings.TrimSpace(link.Filename))
	for _, ext := range archiveExtensions {
		if strings.HasSuffix(name, ext) {
			return "archive"
		}
	}
	if link.SizeBytes < MinPlayableSize {
		return "undersized"
	}
	return ""
}

func largestSelected(files []TorrentFile) int64 {
	var largest int64
	for _, f := range files {
		if f.Selected && f.Bytes > largest {
			largest = f.Bytes
		}
	}
	return largest
}

func pendingStream(c Candidate) domain.StreamRecord {
	return domain.StreamRecord{
		DisplayTitle: c.Title,
		SizeBytes:    c.SizeBytes,
		URL:          c.MagnetURI,
		IsPending:    true,
		Source:       c.Source,
		InfoHash:     c.InfoHash,
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
