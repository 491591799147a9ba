package notify

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"selfsignup/internal/signup/models"
	"selfsignup/pkg/platform/sentinel"
)

// Template names the message a notification renders.
type Template string

const (
	TemplateAccountConfirmation       Template = "AccountConfirmation"
	TemplateResendAccountConfirmation Template = "ResendAccountConfirmation"
)

// Notification carries everything a channel needs to deliver a confirmation
// code out of band.
type Notification struct {
	Template   Template
	Channel    models.Channel
	Recipient  string
	Code       string
	ExpiresAt  time.Time
	UserID     uuid.UUID
	Domain     string
	Principal  string
	Properties []models.Property
}

// Notifier delivers a notification on one channel.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, n Notification) error

func (f NotifierFunc) Notify(ctx context.Context, n Notification) error {
	return f(ctx, n)
}

// Router dispatches notifications to channel-specific notifiers. NONE is
// always a no-op: the caller received the code and delivers it itself.
type Router struct {
	notifiers map[models.Channel]Notifier
	fallback  Notifier
	logger    *slog.Logger
}

// NewRouter creates a channel router with an optional fallback notifier.
func NewRouter(logger *slog.Logger, fallback Notifier) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{
		notifiers: make(map[models.Channel]Notifier),
		fallback:  fallback,
		logger:    logger,
	}
}

// Register adds a notifier for a channel.
func (r *Router) Register(ch models.Channel, n Notifier) {
	r.notifiers[ch] = n
}

func (r *Router) Notify(ctx context.Context, n Notification) error {
	if n.Channel == models.ChannelNone {
		return nil
	}
	notifier, ok := r.notifiers[n.Channel]
	if !ok {
		notifier = r.fallback
	}
	if notifier == nil {
		r.logger.WarnContext(ctx, "no notifier for channel",
			"channel", n.Channel,
			"user_id", n.UserID.String(),
		)
		return fmt.Errorf("no notifier for channel %s: %w", n.Channel, sentinel.ErrUnavailable)
	}
	return notifier.Notify(ctx, n)
}
