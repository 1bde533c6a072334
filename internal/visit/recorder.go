package visit

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"shortlink/internal/domain"
	"shortlink/internal/metrics"
	"shortlink/internal/repository"
)

// Request is the request metadata captured for a visit.
type Request struct {
	IPAddress string
	UserAgent string
	Referer   string
}

// Recorder classifies visits and appends click events. Recording is a side
// effect of an already-decided redirect: its failures are reported to the
// caller or logged, never retried.
type Recorder struct {
	clicks  repository.ClickRepository
	locator Locator
	logger  *slog.Logger
	timeout time.Duration
	now     func() time.Time

	inflight sync.WaitGroup
}

// RecorderOption configures a Recorder.
type RecorderOption func(*Recorder)

// WithLocator replaces the geolocation stub.
func WithLocator(l Locator) RecorderOption {
	return func(r *Recorder) { r.locator = l }
}

// WithTimeout bounds background recordings. Zero disables the bound.
func WithTimeout(d time.Duration) RecorderOption {
	return func(r *Recorder) { r.timeout = d }
}

// WithClock overrides the clock used to stamp clicks.
func WithClock(now func() time.Time) RecorderOption {
	return func(r *Recorder) { r.now = now }
}

// NewRecorder creates a recorder writing to clicks.
func NewRecorder(clicks repository.ClickRepository, logger *slog.Logger, opts ...RecorderOption) *Recorder {
	r := &Recorder{
		clicks:  clicks,
		locator: StubLocator{},
		logger:  logger,
		timeout: 5 * time.Second,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Build classifies the request and returns the click event without
// persisting it.
func (r *Recorder) Build(linkID string, req Request) *domain.Click {
	c := Classify(req.UserAgent)
	loc := r.locator.Locate(req.IPAddress)

	click := domain.NewClick(linkID, req.IPAddress, req.UserAgent, req.Referer).
		WithClassification(c.Device, c.Browser, c.OS).
		WithGeolocation(loc.Country, loc.City)
	click.ClickedAt = r.now().UTC()
	return click
}

// Record classifies and persists one click event.
// The returned error wraps domain.ErrStore on persistence failure.
func (r *Recorder) Record(ctx context.Context, linkID string, req Request) (*domain.Click, error) {
	click := r.Build(linkID, req)
	if err := r.clicks.Create(ctx, click); err != nil {
		metrics.RecordClickFailed()
		return nil, fmt.Errorf("%w: %w", domain.ErrStore, err)
	}
	metrics.RecordClickRecorded()
	return click, nil
}

// RecordAsync records in the background and returns immediately. The
// recording is detached from ctx cancellation, so a visitor disconnecting
// after the redirect does not abort it, but it is bounded by the recorder
// timeout. Failures are logged.
func (r *Recorder) RecordAsync(ctx context.Context, link *domain.Link, req Request) {
	bg := context.WithoutCancel(ctx)
	var cancel context.CancelFunc = func() {}
	if r.timeout > 0 {
		bg, cancel = context.WithTimeout(bg, r.timeout)
	}

	linkID, shortCode := link.ID, link.ShortCode

	r.inflight.Add(1)
	go func() {
		defer r.inflight.Done()
		defer cancel()

		if _, err := r.Record(bg, linkID, req); err != nil {
			r.logger.Error("Failed to record click",
				"short_code", shortCode,
				"link_id", linkID,
				"error", err,
			)
		}
	}()
}

// Wait blocks until all background recordings finish or ctx is done.
func (r *Recorder) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		r.inflight.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
