package ocr

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

var (
	ErrJobFailed = errors.New("OCR job failed")
	ErrTimeout   = errors.New("timed out waiting for OCR job")
)

// ResultFetcher is the part of Client the poller needs.
type ResultFetcher interface {
	GetJobResults(ctx context.Context, jobID string) (*JobResults, error)
}

type Options struct {
	Timeout  time.Duration
	Interval time.Duration
	Logger   *slog.Logger

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// Poller waits for a single file of an OCR job to be recognised.
type Poller struct {
	fetcher ResultFetcher
	opts    Options
}

func NewPoller(fetcher ResultFetcher, opts Options) *Poller {
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Minute
	}
	if opts.Interval <= 0 {
		opts.Interval = 10 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.now == nil {
		opts.now = time.Now
	}
	if opts.sleep == nil {
		opts.sleep = sleepContext
	}
	return &Poller{fetcher: fetcher, opts: opts}
}

// WaitForResult polls the job until the file identified by driveID and itemID
// has text. An error status on the job or the file fails immediately; otherwise
// the wait ends with ErrTimeout once the deadline has passed.
func (p *Poller) WaitForResult(ctx context.Context, jobID, driveID, itemID string) (*FileResult, error) {
	deadline := p.opts.now().Add(p.opts.Timeout)

	for attempt := 1; ; attempt++ {
		results, err := p.fetcher.GetJobResults(ctx, jobID)
		if err != nil {
			return nil, err
		}

		file, ok := results.File(driveID, itemID)
		if !ok {
			p.opts.Logger.Warn("OCR job does not list file yet",
				"job_id", jobID, "drive_id", driveID, "item_id", itemID, "attempt", attempt)
		}

		if results.Status == JobError || (ok && file.Status == JobError) {
			return nil, fmt.Errorf("%w: job %s, item %s", ErrJobFailed, jobID, itemID)
		}

		if results.Status == JobDone && ok && file.Text != "" {
			return file, nil
		}

		if p.opts.now().After(deadline) {
			return nil, fmt.Errorf("%w: job %s, item %s", ErrTimeout, jobID, itemID)
		}

		if err := p.opts.sleep(ctx, p.opts.Interval); err != nil {
			return nil, err
		}
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
