package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	identity "selfsignup/internal/identity/models"
	"selfsignup/internal/signup/metrics"
	"selfsignup/internal/signup/models"
	"selfsignup/internal/signup/notify"
	dErrors "selfsignup/pkg/domain-errors"
	audit "selfsignup/pkg/platform/audit"
	"selfsignup/pkg/requestcontext"
)

// RegistrationStore persists pending registrations. Implementations must make
// ConsumeCode and ReissueCode atomic per registration.
type RegistrationStore interface {
	Create(ctx context.Context, reg *models.PendingRegistration) error
	FindByPrincipal(ctx context.Context, key models.PrincipalKey) (*models.PendingRegistration, error)
	ConsumeCode(ctx context.Context, code string, now time.Time, finalize func(context.Context, *models.PendingRegistration) error) (*models.PendingRegistration, error)
	ReissueCode(ctx context.Context, key models.PrincipalKey, code models.ConfirmationCode) (*models.PendingRegistration, error)
	Delete(ctx context.Context, id uuid.UUID) error
	DeleteExpired(ctx context.Context, before time.Time) ([]*models.PendingRegistration, error)
}

// IdentityStore owns user accounts.
type IdentityStore interface {
	CreatePending(ctx context.Context, acc identity.NewAccount) (*identity.User, error)
	Activate(ctx context.Context, id uuid.UUID) error
	Delete(ctx context.Context, id uuid.UUID) error
	DeletePending(ctx context.Context, id uuid.UUID) error
}

type Notifier interface {
	Notify(ctx context.Context, n notify.Notification) error
}

// Auditor records lifecycle events to the audit trail.
type Auditor interface {
	Emit(ctx context.Context, event audit.Event) error
}

const (
	defaultCodeTTL          = 24 * time.Hour
	defaultOperationTimeout = 5 * time.Second
	defaultDomain           = "PRIMARY"

	// compensation runs detached from the caller's context, bounded by this.
	rollbackTimeout = 5 * time.Second
)

// Service is the self sign-up workflow engine: it creates pending
// registrations, confirms them with single-use codes and reissues codes.
type Service struct {
	registrations RegistrationStore
	identities    IdentityStore
	notifier      Notifier

	logger  *slog.Logger
	metrics *metrics.Metrics
	tracer  trace.Tracer
	auditor Auditor

	clock            func() time.Time
	newCode          func() string
	codeTTL          time.Duration
	operationTimeout time.Duration
	defaultChannel   models.Channel
	defaultDomain    string
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithAuditor persists lifecycle events in addition to the audit log line.
func WithAuditor(a Auditor) Option {
	return func(s *Service) {
		s.auditor = a
	}
}

// WithClock pins the engine's notion of now. Without it the request time
// from requestcontext is used.
func WithClock(clock func() time.Time) Option {
	return func(s *Service) {
		s.clock = clock
	}
}

func WithCodeTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.codeTTL = ttl
		}
	}
}

// WithOperationTimeout bounds store and notifier calls when the caller did
// not set a deadline.
func WithOperationTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.operationTimeout = d
		}
	}
}

func WithDefaultChannel(ch models.Channel) Option {
	return func(s *Service) {
		if ch != "" {
			s.defaultChannel = ch
		}
	}
}

func WithDefaultDomain(domain string) Option {
	return func(s *Service) {
		if domain != "" {
			s.defaultDomain = domain
		}
	}
}

// WithCodeGenerator replaces the confirmation code source.
func WithCodeGenerator(gen func() string) Option {
	return func(s *Service) {
		if gen != nil {
			s.newCode = gen
		}
	}
}

func New(registrations RegistrationStore, identities IdentityStore, notifier Notifier, opts ...Option) *Service {
	s := &Service{
		registrations:    registrations,
		identities:       identities,
		notifier:         notifier,
		logger:           slog.Default(),
		tracer:           otel.Tracer("selfsignup/internal/signup/service"),
		newCode:          uuid.NewString,
		codeTTL:          defaultCodeTTL,
		operationTimeout: defaultOperationTimeout,
		defaultChannel:   models.ChannelNone,
		defaultDomain:    defaultDomain,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) now(ctx context.Context) time.Time {
	if s.clock != nil {
		return s.clock()
	}
	return requestcontext.Now(ctx)
}

func (s *Service) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.operationTimeout)
}

func (s *Service) domainOrDefault(domain string) string {
	if domain == "" {
		return s.defaultDomain
	}
	return domain
}

// begin starts a span and the latency clock for op. The returned func ends
// both and records err on the span.
func (s *Service) begin(ctx context.Context, op string) (context.Context, func(err error)) {
	start := time.Now()
	ctx, span := s.tracer.Start(ctx, "signup."+op)
	return ctx, func(err error) {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, outcome(err))
		}
		span.End()
		s.metrics.ObserveOperation(op, time.Since(start))
	}
}

// outcome labels err for metrics: the domain code, or "ok".
func outcome(err error) string {
	if err == nil {
		return "ok"
	}
	if code, ok := dErrors.CodeOf(err); ok {
		return string(code)
	}
	return string(dErrors.CodeInternal)
}

func response(reg *models.PendingRegistration) *models.NotificationResponse {
	resp := &models.NotificationResponse{
		UserID:    reg.UserID,
		Recipient: reg.Recipient,
		Channel:   reg.Channel,
		Status:    reg.Status,
		ExpiresAt: reg.Code.ExpiresAt,
	}
	// Only externally managed delivery gets the code back.
	if reg.Channel == models.ChannelNone {
		resp.Code = reg.Code.Value
	}
	return resp
}

func (s *Service) dispatch(ctx context.Context, reg *models.PendingRegistration, tmpl notify.Template, props []models.Property) error {
	if reg.Channel == models.ChannelNone {
		return nil
	}
	err := s.notifier.Notify(ctx, notify.Notification{
		Template:   tmpl,
		Channel:    reg.Channel,
		Recipient:  reg.Recipient,
		Code:       reg.Code.Value,
		ExpiresAt:  reg.Code.ExpiresAt,
		UserID:     reg.UserID,
		Domain:     reg.Domain,
		Principal:  reg.Principal.Value,
		Properties: props,
	})
	if err != nil {
		s.metrics.IncNotificationFailure(string(reg.Channel))
		s.logger.ErrorContext(ctx, "confirmation code dispatch failed",
			"user_id", reg.UserID.String(),
			"channel", reg.Channel,
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
		return dErrors.Wrap(err, dErrors.CodeRegistrationFailed, "failed to send confirmation code")
	}
	return nil
}

// logAudit writes the audit log line and hands the event to the auditor. An
// auditor failure is logged and does not fail the operation.
func (s *Service) logAudit(ctx context.Context, event audit.Event) {
	event.RequestID = requestcontext.RequestID(ctx)
	event.IP = requestcontext.ClientIP(ctx)
	if event.Timestamp.IsZero() {
		event.Timestamp = s.now(ctx)
	}

	args := []any{
		"user_id", event.UserID.String(),
		"domain", event.Domain,
		"event", string(event.Action),
		"log_type", "audit",
	}
	if event.Channel != "" {
		args = append(args, "channel", event.Channel)
	}
	if event.RequestID != "" {
		args = append(args, "request_id", event.RequestID)
	}
	if s.logger != nil {
		s.logger.InfoContext(ctx, string(event.Action), args...)
	}

	if s.auditor == nil {
		return
	}
	if err := s.auditor.Emit(ctx, event); err != nil && s.logger != nil {
		s.logger.WarnContext(ctx, "audit event not recorded",
			"event", string(event.Action),
			"user_id", event.UserID.String(),
			"error", err,
		)
	}
}
