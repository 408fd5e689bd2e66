package database

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestPingWithRetry(t *testing.T) {
	calls := 0
	ping := func(context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("connection refused")
		}
		return nil
	}

	if err := pingWithRetry(context.Background(), ping, 5, time.Millisecond); err != nil {
		t.Fatalf("pingWithRetry: %v", err)
	}
	if calls != 3 {
		t.Fatalf("calls = %d, want 3", calls)
	}
}

func TestPingWithRetryGivesUp(t *testing.T) {
	calls := 0
	down := errors.New("down")
	err := pingWithRetry(context.Background(), func(context.Context) error {
		calls++
		return down
	}, 3, time.Millisecond)
	if !errors.Is(err, down) || calls != 3 {
		t.Fatalf("err = %v after %d calls", err, calls)
	}
}

func TestPingWithRetryHonoursCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := pingWithRetry(ctx, func(context.Context) error { return errors.New("down") }, 5, time.Hour)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}
