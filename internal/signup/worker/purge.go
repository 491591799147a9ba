package worker

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// Purger removes lapsed registrations older than retention.
type Purger interface {
	PurgeExpired(ctx context.Context, retention time.Duration) (int, error)
}

const (
	defaultInterval  = 10 * time.Minute
	defaultRetention = 24 * time.Hour
)

// PurgeWorker periodically purges registrations until its context ends.
type PurgeWorker struct {
	purger    Purger
	interval  time.Duration
	retention time.Duration
	logger    *slog.Logger
}

type Option func(*PurgeWorker)

func WithInterval(d time.Duration) Option {
	return func(w *PurgeWorker) {
		if d > 0 {
			w.interval = d
		}
	}
}

func WithRetention(d time.Duration) Option {
	return func(w *PurgeWorker) {
		if d >= 0 {
			w.retention = d
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(w *PurgeWorker) {
		if logger != nil {
			w.logger = logger
		}
	}
}

func NewPurgeWorker(purger Purger, opts ...Option) *PurgeWorker {
	w := &PurgeWorker{
		purger:    purger,
		interval:  defaultInterval,
		retention: defaultRetention,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run purges once per interval. A failed pass is logged and retried on the
// next tick; Run only returns when ctx is done, and then returns nil.
func (w *PurgeWorker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.logger.InfoContext(ctx, "registration purge worker started",
		"interval", w.interval,
		"retention", w.retention,
	)
	for {
		select {
		case <-ticker.C:
			w.RunOnce(ctx)
		case <-ctx.Done():
			w.logger.InfoContext(ctx, "registration purge worker stopped")
			return nil
		}
	}
}

// RunOnce performs a single purge pass.
func (w *PurgeWorker) RunOnce(ctx context.Context) int {
	n, err := w.purger.PurgeExpired(ctx, w.retention)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			w.logger.ErrorContext(ctx, "registration purge failed", "error", err)
		}
		return 0
	}
	return n
}
