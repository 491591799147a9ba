package notify

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"selfsignup/pkg/platform/circuit"
)

// Failover delivers through primary and switches to secondary when primary
// fails. After repeated failures the breaker opens and primary is skipped,
// except for one probe per probeInterval; enough successful probes close it.
type Failover struct {
	primary   Notifier
	secondary Notifier
	breaker   *circuit.Breaker
	logger    *slog.Logger

	probeInterval time.Duration
	clock         func() time.Time

	mu        sync.Mutex
	lastProbe time.Time
}

type FailoverOption func(*Failover)

func WithBreaker(b *circuit.Breaker) FailoverOption {
	return func(f *Failover) {
		if b != nil {
			f.breaker = b
		}
	}
}

func WithProbeInterval(d time.Duration) FailoverOption {
	return func(f *Failover) {
		if d > 0 {
			f.probeInterval = d
		}
	}
}

func WithFailoverClock(clock func() time.Time) FailoverOption {
	return func(f *Failover) {
		f.clock = clock
	}
}

func NewFailover(primary, secondary Notifier, logger *slog.Logger, opts ...FailoverOption) *Failover {
	if logger == nil {
		logger = slog.Default()
	}
	f := &Failover{
		primary:       primary,
		secondary:     secondary,
		breaker:       circuit.New("notify"),
		logger:        logger,
		probeInterval: 30 * time.Second,
		clock:         time.Now,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func (f *Failover) Notify(ctx context.Context, n Notification) error {
	if f.breaker.IsOpen() && !f.probeDue() {
		return f.secondary.Notify(ctx, n)
	}

	err := f.primary.Notify(ctx, n)
	if err == nil {
		if _, change := f.breaker.RecordSuccess(); change.Closed {
			f.logger.InfoContext(ctx, "notification primary recovered", "breaker", f.breaker.Name())
		}
		return nil
	}
	if errors.Is(err, context.Canceled) {
		return err
	}

	if _, change := f.breaker.RecordFailure(); change.Opened {
		f.logger.WarnContext(ctx, "notification primary degraded, using fallback",
			"breaker", f.breaker.Name(),
			"error", err,
		)
	}
	if ferr := f.secondary.Notify(ctx, n); ferr != nil {
		return errors.Join(err, ferr)
	}
	return nil
}

func (f *Failover) probeDue() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	now := f.clock()
	if now.Sub(f.lastProbe) < f.probeInterval {
		return false
	}
	f.lastProbe = now
	return true
}
