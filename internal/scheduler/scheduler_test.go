package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestRunIsolatesFailingAndHangingTasks(t *testing.T) {
	s := New(Config{Name: "test", Concurrency: 5, ItemTimeout: 100 * time.Millisecond}, nil)

	tasks := []Task[string]{
		func(ctx context.Context) ([]string, error) { return []string{"a1", "a2"}, nil },
		func(ctx context.Context) ([]string, error) { return nil, errors.New("boom") },
		func(ctx context.Context) ([]string, error) {
			block := make(chan struct{})
			<-block // ignores ctx on purpose
			return []string{"never"}, nil
		},
		func(ctx context.Context) ([]string, error) { panic("adapter bug") },
		func(ctx context.Context) ([]string, error) { return []string{"b1"}, nil },
	}

	start := time.Now()
	got := Run(context.Background(), s, tasks)
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Fatalf("Run did not abandon hung task, took %s", elapsed)
	}
	want := []string{"a1", "a2", "b1"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v (task order)", got, want)
		}
	}
}

func TestRunRespectsConcurrencyLimit(t *testing.T) {
	s := New(Config{Name: "test", Concurrency: 2}, nil)

	var inFlight, peak atomic.Int32
	tasks := make([]Task[int], 8)
	for i := range tasks {
		i := i
		tasks[i] = func(ctx context.Context) ([]int, error) {
			n := inFlight.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(20 * time.Millisecond)
			inFlight.Add(-1)
			return []int{i}, nil
		}
	}

	got := Run(context.Background(), s, tasks)
	if len(got) != 8 {
		t.Fatalf("expected 8 results, got %d", len(got))
	}
	if p := peak.Load(); p > 2 {
		t.Fatalf("peak concurrency %d exceeds limit 2", p)
	}
}

func TestRunSpacesStartsInInputOrder(t *testing.T) {
	spacing := 40 * time.Millisecond
	s := New(Config{Name: "test", Concurrency: 1, Spacing: spacing}, nil)

	var mu sync.Mutex
	var order []int
	var starts []time.Time
	tasks := make([]Task[int], 4)
	for i := range tasks {
		i := i
		tasks[i] = func(ctx context.Context) ([]int, error) {
			mu.Lock()
			order = append(order, i)
			starts = append(starts, time.Now())
			mu.Unlock()
			return nil, nil
		}
	}

	Run(context.Background(), s, tasks)

	for i, v := range order {
		if v != i {
			t.Fatalf("start order %v is not input order", order)
		}
	}
	for i := 1; i < len(starts); i++ {
		if gap := starts[i].Sub(starts[i-1]); gap < spacing-5*time.Millisecond {
			t.Fatalf("start gap %s below spacing %s", gap, spacing)
		}
	}
}

func TestRunReturnsOnContextDeadline(t *testing.T) {
	s := New(Config{Name: "test", Concurrency: 1, Spacing: 10 * time.Millisecond}, nil)

	tasks := make([]Task[int], 5)
	for i := range tasks {
		tasks[i] = func(ctx context.Context) ([]int, error) {
			select {}
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	got := Run(ctx, s, tasks)
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("Run blocked past the deadline: %s", elapsed)
	}
	if len(got) != 0 {
		t.Fatalf("expected no results, got %v", got)
	}

	// The slot held by the abandoned task must be free again.
	ok := Run(context.Background(), s, []Task[int]{func(context.Context) ([]int, error) { return []int{1}, nil }})
	if len(ok) != 1 {
		t.Fatalf("scheduler unusable after abandonment: %v", ok)
	}
}

func TestSchedulersDoNotShareLimits(t *testing.T) {
	strict := New(Config{Name: "unlock", Concurrency: 1}, nil)
	broad := New(Config{Name: "search", Concurrency: 5}, nil)

	release := make(chan struct{})
	strictDone := make(chan struct{})
	go func() {
		Run(context.Background(), strict, []Task[int]{func(context.Context) ([]int, error) {
			<-release
			return nil, nil
		}})
		close(strictDone)
	}()

	done := make(chan []int, 1)
	go func() {
		done <- Run(context.Background(), broad, []Task[int]{func(context.Context) ([]int, error) { return []int{7}, nil }})
	}()

	select {
	case got := <-done:
		if len(got) != 1 {
			t.Fatalf("unexpected result %v", got)
		}
	case <-time.After(time.Second):
		t.Fatalf("search scheduler blocked by saturated unlock scheduler")
	}
	close(release)
	<-strictDone
}

func TestRunEmpty(t *testing.T) {
	s := New(Config{}, nil)
	if got := Run[int](context.Background(), s, nil); got != nil {
		t.Fatalf("expected nil for no tasks, got %v", got)
	}
	if s.Name() != "default" {
		t.Fatalf("unexpected default name %q", s.Name())
	}
}
