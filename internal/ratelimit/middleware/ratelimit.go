package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"selfsignup/internal/ratelimit/models"
	"selfsignup/pkg/platform/circuit"
	"selfsignup/pkg/platform/httputil"
	"selfsignup/pkg/requestcontext"
)

// BucketStore admits or rejects one request for a key.
type BucketStore interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (*models.RateLimitResult, error)
}

// Metrics counts rejected requests and degraded checks.
type Metrics struct {
	Rejected *prometheus.CounterVec
	Degraded prometheus.Counter
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Rejected: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "selfsignup_ratelimit_rejected_total",
			Help: "Requests rejected by the per-IP limiter",
		}, []string{"class"}),
		Degraded: factory.NewCounter(prometheus.CounterOpts{
			Name: "selfsignup_ratelimit_degraded_total",
			Help: "Checks served by the in-process fallback",
		}),
	}
}

// Middleware limits requests per client IP and endpoint class. When the
// primary store keeps failing, the breaker opens and checks go to the
// in-process fallback until the primary recovers.
type Middleware struct {
	primary  BucketStore
	fallback BucketStore
	breaker  *circuit.Breaker
	limits   map[models.EndpointClass]models.Limit
	logger   *slog.Logger
	metrics  *Metrics
	disabled bool
}

type Option func(*Middleware)

// WithDisabled turns every check into a pass-through.
func WithDisabled(disabled bool) Option {
	return func(m *Middleware) {
		m.disabled = disabled
	}
}

func WithFallback(store BucketStore) Option {
	return func(m *Middleware) {
		m.fallback = store
	}
}

func WithMetrics(metrics *Metrics) Option {
	return func(m *Middleware) {
		m.metrics = metrics
	}
}

func WithBreaker(b *circuit.Breaker) Option {
	return func(m *Middleware) {
		if b != nil {
			m.breaker = b
		}
	}
}

// WithLimit sets the limit for a class. Classes without a limit are not
// limited.
func WithLimit(class models.EndpointClass, limit models.Limit) Option {
	return func(m *Middleware) {
		if limit.Requests > 0 && limit.Window > 0 {
			m.limits[class] = limit
		}
	}
}

func New(primary BucketStore, logger *slog.Logger, opts ...Option) *Middleware {
	m := &Middleware{
		primary: primary,
		breaker: circuit.New("ratelimit"),
		limits:  make(map[models.EndpointClass]models.Limit),
		logger:  logger,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.disabled {
		logger.Info("rate limiting disabled")
	}
	return m
}

// RateLimit limits the wrapped route under class. It must run after the
// middleware that records the client IP.
func (m *Middleware) RateLimit(class models.EndpointClass) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		limit, ok := m.limits[class]
		if m.disabled || !ok {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			key := models.NewIPKey(class, requestcontext.ClientIP(ctx))

			result, err := m.check(ctx, key, limit)
			if err != nil {
				// Fail open.
				m.logger.ErrorContext(ctx, "failed to check rate limit", "class", string(class), "error", err)
				next.ServeHTTP(w, r)
				return
			}

			addRateLimitHeaders(w, result)
			if !result.Allowed {
				if m.metrics != nil {
					m.metrics.Rejected.WithLabelValues(string(class)).Inc()
				}
				writeRateLimitExceeded(w, result)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (m *Middleware) check(ctx context.Context, key string, limit models.Limit) (*models.RateLimitResult, error) {
	if m.fallback != nil && m.breaker.IsOpen() {
		return m.probe(ctx, key, limit)
	}

	result, err := m.primary.Allow(ctx, key, limit.Requests, limit.Window)
	if err == nil {
		m.breaker.RecordSuccess()
		return result, nil
	}
	if m.fallback == nil {
		return nil, err
	}
	if _, change := m.breaker.RecordFailure(); change.Opened {
		m.logger.WarnContext(ctx, "rate limit store degraded, using in-process fallback", "error", err)
	}
	return m.degraded(ctx, key, limit)
}

// probe tries the primary while open so enough successes close the breaker.
// The fallback decides the request until then.
func (m *Middleware) probe(ctx context.Context, key string, limit models.Limit) (*models.RateLimitResult, error) {
	if _, err := m.primary.Allow(ctx, key, limit.Requests, limit.Window); err != nil {
		m.breaker.RecordFailure()
	} else if _, change := m.breaker.RecordSuccess(); change.Closed {
		m.logger.InfoContext(ctx, "rate limit store recovered")
	}
	return m.degraded(ctx, key, limit)
}

func (m *Middleware) degraded(ctx context.Context, key string, limit models.Limit) (*models.RateLimitResult, error) {
	if m.metrics != nil {
		m.metrics.Degraded.Inc()
	}
	return m.fallback.Allow(ctx, key, limit.Requests, limit.Window)
}

func addRateLimitHeaders(w http.ResponseWriter, result *models.RateLimitResult) {
	if result == nil {
		return
	}
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(result.Limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt.Unix(), 10))
}

func writeRateLimitExceeded(w http.ResponseWriter, result *models.RateLimitResult) {
	w.Header().Set("Retry-After", strconv.Itoa(result.RetryAfter))
	httputil.WriteError(w, http.StatusTooManyRequests, httputil.ErrorBody{
		Error:            "rate_limit_exceeded",
		ErrorDescription: "Too many requests from this IP address. Please try again later.",
	})
}
