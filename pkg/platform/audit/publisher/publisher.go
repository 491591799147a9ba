// Package publisher writes audit events synchronously to an audit.Store.
//
// Emit blocks until the store accepts the event and returns its error; the
// caller decides whether an unrecorded event fails the operation.
package publisher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	audit "selfsignup/pkg/platform/audit"
)

// Metrics counts audit writes by category.
type Metrics struct {
	Emitted         *prometheus.CounterVec
	PersistFailures prometheus.Counter
	PersistDuration prometheus.Histogram
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Emitted: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "selfsignup_audit_events_emitted_total",
			Help: "Audit events persisted by category",
		}, []string{"category"}),
		PersistFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "selfsignup_audit_persist_failures_total",
			Help: "Audit events the store rejected",
		}),
		PersistDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "selfsignup_audit_persist_duration_seconds",
			Help:    "Time to persist one audit event",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

// Publisher emits audit events.
type Publisher struct {
	store   audit.Store
	logger  *slog.Logger
	metrics *Metrics
	clock   func() time.Time
}

type Option func(*Publisher)

func WithLogger(logger *slog.Logger) Option {
	return func(p *Publisher) {
		p.logger = logger
	}
}

func WithMetrics(m *Metrics) Option {
	return func(p *Publisher) {
		p.metrics = m
	}
}

func WithClock(clock func() time.Time) Option {
	return func(p *Publisher) {
		p.clock = clock
	}
}

func New(store audit.Store, opts ...Option) *Publisher {
	p := &Publisher{
		store: store,
		clock: time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Emit validates and persists event, stamping the time when unset.
func (p *Publisher) Emit(ctx context.Context, event audit.Event) error {
	if event.UserID == uuid.Nil {
		return errors.New("audit event requires a user id")
	}
	if event.Action == "" {
		return errors.New("audit event requires an action")
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = p.clock()
	}

	start := time.Now()
	if err := p.store.Append(ctx, event); err != nil {
		if p.metrics != nil {
			p.metrics.PersistFailures.Inc()
		}
		if p.logger != nil {
			p.logger.ErrorContext(ctx, "audit persistence failed",
				"action", string(event.Action),
				"user_id", event.UserID.String(),
				"error", err,
			)
		}
		return fmt.Errorf("persist audit event: %w", err)
	}

	if p.metrics != nil {
		p.metrics.PersistDuration.Observe(time.Since(start).Seconds())
		p.metrics.Emitted.WithLabelValues(string(event.Action.Category())).Inc()
	}
	return nil
}
