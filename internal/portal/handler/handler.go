package handler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"selfsignup/internal/platform/metrics"
	"selfsignup/internal/platform/middleware"
	"selfsignup/internal/portal"
	ratelimit "selfsignup/internal/ratelimit/models"
	"selfsignup/internal/signup/models"
	"selfsignup/pkg/attrs"
	"selfsignup/pkg/platform/httputil"
	"selfsignup/pkg/platform/middleware/admin"
	"selfsignup/pkg/platform/middleware/metadata"
	"selfsignup/pkg/platform/middleware/requesttime"
)

// Portal is the self sign-up surface the handler exposes.
type Portal interface {
	RegisterUser(ctx context.Context, claims, credentials attrs.Map, domain string, properties attrs.Map) (*models.NotificationResponse, error)
	ConfirmUserSelfSignUp(ctx context.Context, code string) error
	ResendConfirmationCode(ctx context.Context, claims attrs.Map, domain string, properties attrs.Map) (*models.NotificationResponse, error)
	ResendConfirmationCodeByID(ctx context.Context, userID string, properties attrs.Map) (*models.NotificationResponse, error)
}

// RateLimiter wraps a route with the limit for its endpoint class.
type RateLimiter interface {
	RateLimit(class ratelimit.EndpointClass) func(http.Handler) http.Handler
}

// Purger runs an on-demand purge for operators.
type Purger interface {
	PurgeExpired(ctx context.Context, retention time.Duration) (int, error)
}

// Handler serves the self sign-up endpoints.
type Handler struct {
	portal         Portal
	logger         *slog.Logger
	metrics        *metrics.Metrics
	requestTimeout time.Duration
	limiter        RateLimiter

	purger     Purger
	adminToken string
	retention  time.Duration
}

type Option func(*Handler)

func WithMetrics(m *metrics.Metrics) Option {
	return func(h *Handler) {
		h.metrics = m
	}
}

func WithRequestTimeout(d time.Duration) Option {
	return func(h *Handler) {
		if d > 0 {
			h.requestTimeout = d
		}
	}
}

func WithRateLimiter(l RateLimiter) Option {
	return func(h *Handler) {
		h.limiter = l
	}
}

// WithAdmin enables POST /admin/signup/purge behind the admin token.
func WithAdmin(token string, purger Purger, retention time.Duration) Option {
	return func(h *Handler) {
		h.adminToken = token
		h.purger = purger
		h.retention = retention
	}
}

// New creates a new sign-up Handler.
func New(p Portal, logger *slog.Logger, opts ...Option) *Handler {
	h := &Handler{
		portal:         p,
		logger:         logger,
		requestTimeout: 30 * time.Second,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Register registers the sign-up routes with the chi router.
func (h *Handler) Register(r chi.Router) {
	signupRouter := chi.NewRouter()
	signupRouter.Use(middleware.Recovery(h.logger))
	signupRouter.Use(middleware.RequestID)
	signupRouter.Use(metadata.ClientMetadata)
	signupRouter.Use(requesttime.Middleware)
	signupRouter.Use(middleware.Logger(h.logger))
	signupRouter.Use(middleware.Timeout(h.requestTimeout))
	signupRouter.Use(middleware.ContentTypeJSON)
	signupRouter.Use(middleware.LatencyMiddleware(h.metrics))

	signupRouter.With(h.limit(ratelimit.ClassRegister)).Post("/signup/register", h.handleRegister)
	signupRouter.With(h.limit(ratelimit.ClassConfirm)).Post("/signup/confirm", h.handleConfirm)
	signupRouter.With(h.limit(ratelimit.ClassResend)).Post("/signup/resend", h.handleResend)
	signupRouter.With(h.limit(ratelimit.ClassResend)).Post("/signup/users/{userID}/resend", h.handleResendByID)

	if h.purger != nil {
		signupRouter.With(admin.RequireAdminToken(h.adminToken, h.logger)).
			Post("/admin/signup/purge", h.handlePurge)
	}

	r.Mount("/", signupRouter)
}

func (h *Handler) limit(class ratelimit.EndpointClass) func(http.Handler) http.Handler {
	if h.limiter == nil {
		return func(next http.Handler) http.Handler { return next }
	}
	return h.limiter.RateLimit(class)
}

type registerRequest struct {
	Claims      attrs.Map `json:"claims"`
	Credentials attrs.Map `json:"credentials"`
	Domain      string    `json:"domain"`
	Properties  attrs.Map `json:"properties"`
}

type confirmRequest struct {
	Code string `json:"code"`
}

type resendRequest struct {
	Claims     attrs.Map `json:"claims"`
	Domain     string    `json:"domain"`
	Properties attrs.Map `json:"properties"`
}

type resendByIDRequest struct {
	Properties attrs.Map `json:"properties"`
}

type purgeResponse struct {
	Purged int `json:"purged"`
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req registerRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		h.badRequest(w, r, err)
		return
	}
	defer req.Credentials.Wipe()

	resp, err := h.portal.RegisterUser(ctx, req.Claims, req.Credentials, req.Domain, req.Properties)
	if err != nil {
		h.writePortalError(w, err, false)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, resp)
}

func (h *Handler) handleConfirm(w http.ResponseWriter, r *http.Request) {
	var req confirmRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		h.badRequest(w, r, err)
		return
	}

	if err := h.portal.ConfirmUserSelfSignUp(r.Context(), req.Code); err != nil {
		h.writePortalError(w, err, true)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleResend(w http.ResponseWriter, r *http.Request) {
	var req resendRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		h.badRequest(w, r, err)
		return
	}

	resp, err := h.portal.ResendConfirmationCode(r.Context(), req.Claims, req.Domain, req.Properties)
	if err != nil {
		h.writePortalError(w, err, false)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleResendByID(w http.ResponseWriter, r *http.Request) {
	var req resendByIDRequest
	// The body is optional here.
	if err := httputil.DecodeJSON(r, &req); err != nil && !errors.Is(err, io.EOF) {
		h.badRequest(w, r, err)
		return
	}

	resp, err := h.portal.ResendConfirmationCodeByID(r.Context(), chi.URLParam(r, "userID"), req.Properties)
	if err != nil {
		h.writePortalError(w, err, false)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

func (h *Handler) handlePurge(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	n, err := h.purger.PurgeExpired(ctx, h.retention)
	if err != nil {
		h.logger.ErrorContext(ctx, "on-demand purge failed",
			"request_id", middleware.GetRequestID(ctx),
			"error", err,
		)
		httputil.WriteError(w, http.StatusInternalServerError, httputil.ErrorBody{ErrorDescription: "purge failed"})
		return
	}
	httputil.WriteJSON(w, http.StatusOK, purgeResponse{Purged: n})
}

func (h *Handler) badRequest(w http.ResponseWriter, r *http.Request, err error) {
	ctx := r.Context()
	h.logger.WarnContext(ctx, "invalid sign-up request body",
		"path", r.URL.Path,
		"request_id", middleware.GetRequestID(ctx),
		"error", err.Error(),
	)
	httputil.WriteError(w, http.StatusBadRequest, httputil.ErrorBody{ErrorDescription: "invalid request body"})
}

// writePortalError maps the portal's outward error onto the envelope. The
// portal has already logged it.
func (h *Handler) writePortalError(w http.ResponseWriter, err error, confirm bool) {
	var pe *portal.Error
	if !errors.As(err, &pe) {
		httputil.WriteError(w, http.StatusInternalServerError, httputil.ErrorBody{})
		return
	}
	status := http.StatusInternalServerError
	if pe.ClientFault() {
		status = http.StatusBadRequest
	}
	httputil.WriteError(w, status, httputil.ErrorBody{
		ErrorDescription: pe.Message,
		ErrorCode:        pe.Code,
		ResendAvailable:  confirm && pe.Expired(),
	})
}
