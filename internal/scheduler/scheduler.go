// Package scheduler runs batches of independent I/O tasks under a shared
// concurrency cap and a minimum spacing between task starts.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"torrentstream/resolverservice/internal/metrics"
)

const (
	DefaultSearchConcurrency = 5
	DefaultSearchSpacing     = 200 * time.Millisecond
	DefaultUnlockConcurrency = 1
	DefaultUnlockSpacing     = 160 * time.Millisecond
)

var errTaskPanic = errors.New("task panicked")

type Config struct {
	Name        string
	Concurrency int
	Spacing     time.Duration
	// ItemTimeout bounds a single task. Zero leaves only the caller's context.
	ItemTimeout time.Duration
}

// Scheduler is safe for concurrent use. Every Run shares the same slots and
// pacing, so one instance bounds all callers of a given dependency.
type Scheduler struct {
	name        string
	sem         *semaphore.Weighted
	pacer       *rate.Limiter
	itemTimeout time.Duration
	logger      *slog.Logger
}

// Task is one unit of work. An error means the task contributes nothing.
type Task[T any] func(ctx context.Context) ([]T, error)

func New(cfg Config, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}
	limit := rate.Inf
	if cfg.Spacing > 0 {
		limit = rate.Every(cfg.Spacing)
	}
	name := cfg.Name
	if name == "" {
		name = "default"
	}
	return &Scheduler{
		name:        name,
		sem:         semaphore.NewWeighted(int64(concurrency)),
		pacer:       rate.NewLimiter(limit, 1),
		itemTimeout: cfg.ItemTimeout,
		logger:      logger.With(slog.String("scheduler", name)),
	}
}

func (s *Scheduler) Name() string {
	return s.name
}

// Run starts tasks in input order, waiting for a free slot and the pacing
// interval before each start, and returns once every started task has
// settled. Failed, panicking and timed-out tasks contribute nothing. A task
// still running when its timeout or ctx fires is abandoned: its slot is
// released and anything it returns later is dropped. Results are flattened
// in task order.
func Run[T any](ctx context.Context, s *Scheduler, tasks []Task[T]) []T {
	if len(tasks) == 0 {
		return nil
	}

	slots := make([][]T, len(tasks))
	var wg sync.WaitGroup

	for i, task := range tasks {
		queued := time.Now()
		if err := s.sem.Acquire(ctx, 1); err != nil {
			s.skip(len(tasks) - i)
			break
		}
		if err := s.pacer.Wait(ctx); err != nil {
			s.sem.Release(1)
			s.skip(len(tasks) - i)
			break
		}
		metrics.SchedulerQueueWait.WithLabelValues(s.name).Observe(time.Since(queued).Seconds())

		wg.Add(1)
		go func(i int, task Task[T]) {
			defer wg.Done()
			defer s.sem.Release(1)
			slots[i] = runTask(ctx, s, i, task)
		}(i, task)
	}
	wg.Wait()

	total := 0
	for _, items := range slots {
		total += len(items)
	}
	out := make([]T, 0, total)
	for _, items := range slots {
		out = append(out, items...)
	}
	return out
}

type taskResult[T any] struct {
	items []T
	err   error
}

func runTask[T any](ctx context.Context, s *Scheduler, index int, task Task[T]) []T {
	var (
		taskCtx context.Context
		cancel  context.CancelFunc
	)
	if s.itemTimeout > 0 {
		taskCtx, cancel = context.WithTimeout(ctx, s.itemTimeout)
	} else {
		taskCtx, cancel = context.WithCancel(ctx)
	}
	defer cancel()

	done := make(chan taskResult[T], 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- taskResult[T]{err: fmt.Errorf("%w: %v", errTaskPanic, r)}
			}
		}()
		items, err := task(taskCtx)
		done <- taskResult[T]{items: items, err: err}
	}()

	select {
	case res := <-done:
		if res.err != nil {
			outcome := "error"
			switch {
			case errors.Is(res.err, errTaskPanic):
				outcome = "panic"
			case errors.Is(res.err, context.DeadlineExceeded):
				outcome = "timeout"
			}
			s.record(outcome)
			s.logger.Debug("task failed", slog.Int("task", index), slog.String("error", res.err.Error()))
			return nil
		}
		s.record("ok")
		return res.items
	case <-taskCtx.Done():
		s.record("timeout")
		s.logger.Debug("task abandoned", slog.Int("task", index), slog.String("error", taskCtx.Err().Error()))
		return nil
	}
}

func (s *Scheduler) record(outcome string) {
	metrics.SchedulerTasksTotal.WithLabelValues(s.name, outcome).Inc()
}

func (s *Scheduler) skip(n int) {
	if n <= 0 {
		return
	}
	metrics.SchedulerTasksTotal.WithLabelValues(s.name, "skipped").Add(float64(n))
	s.logger.Debug("tasks skipped after cancellation", slog.Int("count", n))
}
