package concurrency

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestRunBoundsInFlight(t *testing.T) {
	var inFlight, peak atomic.Int32

	tasks := make([]Task[int], 10)
	for i := range tasks {
		tasks[i] = func(ctx context.Context) (int, error) {
			n := inFlight.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			// Later tasks finish first so completion order differs from input order.
			time.Sleep(time.Duration(10-i) * 2 * time.Millisecond)
			inFlight.Add(-1)
			return i * i, nil
		}
	}

	results, err := Run(context.Background(), tasks, 3)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := peak.Load(); got > 3 {
		t.Errorf("peak in-flight = %d, want <= 3", got)
	}
	if len(results) != 10 {
		t.Fatalf("len(results) = %d, want 10", len(results))
	}
	for i, r := range results {
		if r != i*i {
			t.Errorf("results[%d] = %d, want %d", i, r, i*i)
		}
	}
}

func TestRunSequentialWithLimitOne(t *testing.T) {
	var order []int
	tasks := make([]Task[struct{}], 5)
	for i := range tasks {
		tasks[i] = func(ctx context.Context) (struct{}, error) {
			order = append(order, i)
			return struct{}{}, nil
		}
	}

	if _, err := Run(context.Background(), tasks, 1); err != nil {
		t.Fatalf("Run: %v", err)
	}
	for i, v := range order {
		if v != i {
			t.Fatalf("order = %v, want ascending", order)
		}
	}
}

func TestRunLimitAboveTaskCount(t *testing.T) {
	var inFlight, peak atomic.Int32
	release := make(chan struct{})

	tasks := make([]Task[int], 4)
	for i := range tasks {
		tasks[i] = func(ctx context.Context) (int, error) {
			n := inFlight.Add(1)
			if n > peak.Load() {
				peak.Store(n)
			}
			<-release
			return i, nil
		}
	}

	done := make(chan error, 1)
	go func() {
		_, err := Run(context.Background(), tasks, 100)
		done <- err
	}()

	deadline := time.After(2 * time.Second)
	for inFlight.Load() < 4 {
		select {
		case <-deadline:
			t.Fatalf("only %d tasks started concurrently, want 4", inFlight.Load())
		default:
			time.Sleep(time.Millisecond)
		}
	}
	close(release)
	if err := <-done; err != nil {
		t.Fatalf("Run: %v", err)
	}
}

func TestRunPropagatesFirstError(t *testing.T) {
	boom := errors.New("boom")
	var finished atomic.Int32

	tasks := []Task[int]{
		func(ctx context.Context) (int, error) {
			time.Sleep(20 * time.Millisecond)
			finished.Add(1)
			return 1, nil
		},
		func(ctx context.Context) (int, error) {
			return 0, boom
		},
	}

	_, err := Run(context.Background(), tasks, 2)
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want boom", err)
	}
	if finished.Load() != 1 {
		t.Error("started task was not allowed to complete")
	}
}

func TestRunDoesNotCancelStartedTasks(t *testing.T) {
	tasks := []Task[int]{
		func(ctx context.Context) (int, error) {
			time.Sleep(20 * time.Millisecond)
			if ctx.Err() != nil {
				t.Error("task context was cancelled by a sibling failure")
			}
			return 1, nil
		},
		func(ctx context.Context) (int, error) {
			return 0, errors.New("fail")
		},
	}
	if _, err := Run(context.Background(), tasks, 2); err == nil {
		t.Fatal("expected error")
	}
}

func TestRunSkipsQueuedTasksAfterFailure(t *testing.T) {
	boom := errors.New("boom")
	var ran atomic.Int32

	tasks := []Task[int]{
		func(ctx context.Context) (int, error) {
			return 0, boom
		},
		func(ctx context.Context) (int, error) {
			ran.Add(1)
			return 2, nil
		},
		func(ctx context.Context) (int, error) {
			ran.Add(1)
			return 3, nil
		},
	}

	if _, err := Run(context.Background(), tasks, 1); !errors.Is(err, boom) {
		t.Fatalf("err = %v, want boom", err)
	}
	if n := ran.Load(); n != 0 {
		t.Fatalf("%d tasks ran after the failure, want 0", n)
	}
}

func TestRunCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var ran atomic.Int32
	tasks := []Task[int]{
		func(ctx context.Context) (int, error) {
			ran.Add(1)
			return 1, nil
		},
	}
	if _, err := Run(ctx, tasks, 1); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if ran.Load() != 0 {
		t.Fatal("task ran on a cancelled context")
	}
}

func TestRunRejectsZeroLimit(t *testing.T) {
	if _, err := Run[int](context.Background(), nil, 0); err == nil {
		t.Fatal("expected error for limit 0")
	}
}

func TestRunEmpty(t *testing.T) {
	results, err := Run[int](context.Background(), nil, 3)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(results) != 0 {
		t.Fatalf("len(results) = %d, want 0", len(results))
	}
}
