package ocr

import (
	"context"
	"errors"
	"testing"
	"time"
)

// scriptedFetcher returns results[i] on the i-th call and repeats the last one.
type scriptedFetcher struct {
	results []*JobResults
	calls   int
}

func (f *scriptedFetcher) GetJobResults(_ context.Context, _ string) (*JobResults, error) {
	i := min(f.calls, len(f.results)-1)
	f.calls++
	return f.results[i], nil
}

type fakeClock struct {
	now    time.Time
	sleeps int
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Sleep(_ context.Context, d time.Duration) error {
	c.sleeps++
	c.now = c.now.Add(d)
	return nil
}

func newTestPoller(f ResultFetcher, clock *fakeClock, timeout, interval time.Duration) *Poller {
	return NewPoller(f, Options{
		Timeout:  timeout,
		Interval: interval,
		now:      clock.Now,
		sleep:    clock.Sleep,
	})
}

func pending(status JobStatus, files ...FileResult) *JobResults {
	return &JobResults{Job: Job{ID: "job-1", Status: status}, Files: files}
}

func TestWaitForResultReturnsOnAttemptM(t *testing.T) {
	const m = 4
	var script []*JobResults
	for i := 1; i < m; i++ {
		script = append(script, pending(JobProcessing, FileResult{SourceDriveID: "d", SourceItemID: "i", Status: JobProcessing}))
	}
	script = append(script, pending(JobDone, FileResult{
		SourceDriveID:      "d",
		SourceItemID:       "i",
		Status:             JobDone,
		Text:               "hola",
		SearchableArtifact: &Artifact{DriveID: "d2", ItemID: "i2"},
	}))

	f := &scriptedFetcher{results: script}
	clock := &fakeClock{now: time.Unix(0, 0)}
	p := newTestPoller(f, clock, time.Minute, time.Second)

	got, err := p.WaitForResult(context.Background(), "job-1", "d", "i")
	if err != nil {
		t.Fatalf("WaitForResult: %v", err)
	}
	if got.Text != "hola" || got.SearchableArtifact.ItemID != "i2" {
		t.Fatalf("result = %+v", got)
	}
	if f.calls != m {
		t.Fatalf("returned after %d polls, want %d", f.calls, m)
	}
	if clock.sleeps != m-1 {
		t.Fatalf("slept %d times, want %d", clock.sleeps, m-1)
	}
}

func TestWaitForResultTimesOutAfterDeadline(t *testing.T) {
	f := &scriptedFetcher{results: []*JobResults{pending(JobProcessing)}}
	start := time.Unix(0, 0)
	clock := &fakeClock{now: start}
	timeout, interval := 10*time.Second, 3*time.Second
	p := newTestPoller(f, clock, timeout, interval)

	_, err := p.WaitForResult(context.Background(), "job-1", "d", "i")
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("err = %v, want ErrTimeout", err)
	}
	if elapsed := clock.now.Sub(start); elapsed <= timeout {
		t.Fatalf("gave up after %v, before the %v deadline", elapsed, timeout)
	}
	// polls at 0s, 3s, 6s, 9s and 12s; only the last is past the deadline
	if f.calls != 5 {
		t.Fatalf("polls = %d, want 5", f.calls)
	}
}

func TestWaitForResultDoneWithoutTextKeepsWaiting(t *testing.T) {
	f := &scriptedFetcher{results: []*JobResults{
		pending(JobDone, FileResult{SourceDriveID: "d", SourceItemID: "i", Status: JobDone}),
	}}
	clock := &fakeClock{now: time.Unix(0, 0)}
	p := newTestPoller(f, clock, 5*time.Second, time.Second)

	if _, err := p.WaitForResult(context.Background(), "job-1", "d", "i"); !errors.Is(err, ErrTimeout) {
		t.Fatalf("err = %v, want ErrTimeout", err)
	}
}

func TestWaitForResultFailsImmediatelyOnError(t *testing.T) {
	cases := map[string]*JobResults{
		"job error":  pending(JobError),
		"file error": pending(JobProcessing, FileResult{SourceDriveID: "d", SourceItemID: "i", Status: JobError}),
	}
	for name, res := range cases {
		t.Run(name, func(t *testing.T) {
			f := &scriptedFetcher{results: []*JobResults{res}}
			clock := &fakeClock{now: time.Unix(0, 0)}
			p := newTestPoller(f, clock, time.Hour, time.Second)

			_, err := p.WaitForResult(context.Background(), "job-1", "d", "i")
			if !errors.Is(err, ErrJobFailed) {
				t.Fatalf("err = %v, want ErrJobFailed", err)
			}
			if clock.sleeps != 0 {
				t.Fatalf("slept %d times before failing", clock.sleeps)
			}
		})
	}
}

func TestWaitForResultToleratesMissingFile(t *testing.T) {
	f := &scriptedFetcher{results: []*JobResults{
		pending(JobProcessing),
		pending(JobProcessing, FileResult{SourceDriveID: "other", SourceItemID: "x", Status: JobDone, Text: "no"}),
		pending(JobDone, FileResult{SourceDriveID: "d", SourceItemID: "i", Status: JobDone, Text: "sí"}),
	}}
	clock := &fakeClock{now: time.Unix(0, 0)}
	p := newTestPoller(f, clock, time.Minute, time.Second)

	got, err := p.WaitForResult(context.Background(), "job-1", "d", "i")
	if err != nil {
		t.Fatalf("WaitForResult: %v", err)
	}
	if got.Text != "sí" {
		t.Fatalf("text = %q, want the matching file's text", got.Text)
	}
}

func TestWaitForResultHonoursCancellation(t *testing.T) {
	f := &scriptedFetcher{results: []*JobResults{pending(JobProcessing)}}
	p := NewPoller(f, Options{Timeout: time.Hour, Interval: time.Hour})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := p.WaitForResult(ctx, "job-1", "d", "i"); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

func TestSleepContext(t *testing.T) {
	if err := sleepContext(context.Background(), time.Millisecond); err != nil {
		t.Fatalf("sleepContext: %v", err)
	}
}
