// Package portal is the caller-facing surface of self sign-up. It converts raw
// attribute maps into workflow requests and collapses every internal failure
// into one *Error.
package portal

import (
	"context"
	"log/slog"

	"selfsignup/internal/signup/models"
	"selfsignup/internal/signup/service"
	"selfsignup/pkg/attrs"
	dErrors "selfsignup/pkg/domain-errors"
	"selfsignup/pkg/requestcontext"
)

// Workflow is the sign-up engine behind the portal.
type Workflow interface {
	Register(ctx context.Context, req service.RegisterRequest) (*models.NotificationResponse, error)
	Confirm(ctx context.Context, code string) error
	Resend(ctx context.Context, claim models.Claim, domain string, properties []models.Property) (*models.NotificationResponse, error)
}

// ClaimResolver finds the canonical claim and domain of an account.
type ClaimResolver interface {
	ResolvePrimaryClaim(ctx context.Context, userID string) (models.Claim, string, error)
}

type Client struct {
	workflow Workflow
	resolver ClaimResolver
	logger   *slog.Logger
}

type Option func(*Client)

func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

func NewClient(workflow Workflow, resolver ClaimResolver, opts ...Option) *Client {
	c := &Client{workflow: workflow, resolver: resolver, logger: slog.Default()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// RegisterUser starts a self sign-up. The credentials map is wiped before
// RegisterUser returns.
func (c *Client) RegisterUser(ctx context.Context, claims, credentials attrs.Map, domain string, properties attrs.Map) (*models.NotificationResponse, error) {
	defer credentials.Wipe()
	if properties == nil {
		properties = attrs.Map{}
	}

	in, err := models.Normalize(claims, credentials, properties)
	if err != nil {
		return nil, c.translate(ctx, "register", err, msgRegister)
	}
	resp, err := c.workflow.Register(ctx, service.RegisterRequest{
		Claims:      in.Claims,
		Credentials: in.Credentials,
		Domain:      domain,
		Properties:  in.Properties,
	})
	if err != nil {
		return nil, c.translate(ctx, "register", err, msgRegister)
	}
	return resp, nil
}

// ConfirmUserSelfSignUp consumes a confirmation code. Invalid and expired
// codes come back with CodeInvalidConfirmation and CodeExpiredConfirmation.
func (c *Client) ConfirmUserSelfSignUp(ctx context.Context, code string) error {
	if err := c.workflow.Confirm(ctx, code); err != nil {
		return c.translate(ctx, "confirm", err, msgConfirm)
	}
	return nil
}

// ResendConfirmationCode reissues the code of the registration identified by
// the first claim in claims. Any further claims are ignored.
func (c *Client) ResendConfirmationCode(ctx context.Context, claims attrs.Map, domain string, properties attrs.Map) (*models.NotificationResponse, error) {
	list, err := models.NormalizeClaims(claims)
	if err != nil {
		return nil, c.translate(ctx, "resend", err, msgResend)
	}
	if len(list) == 0 {
		return nil, c.translate(ctx, "resend", dErrors.New(dErrors.CodeInvalidArgument, "a claim is required"), msgResend)
	}
	return c.resend(ctx, list[0], domain, models.NormalizeProperties(properties))
}

// ResendConfirmationCodeByID reissues the code for the account with userID,
// resolving its canonical claim first.
func (c *Client) ResendConfirmationCodeByID(ctx context.Context, userID string, properties attrs.Map) (*models.NotificationResponse, error) {
	claim, domain, err := c.resolver.ResolvePrimaryClaim(ctx, userID)
	if err != nil {
		return nil, c.translate(ctx, "resend", err, msgResend)
	}
	return c.resend(ctx, claim, domain, models.NormalizeProperties(properties))
}

func (c *Client) resend(ctx context.Context, claim models.Claim, domain string, props []models.Property) (*models.NotificationResponse, error) {
	resp, err := c.workflow.Resend(ctx, claim, domain, props)
	if err != nil {
		return nil, c.translate(ctx, "resend", err, msgResend)
	}
	return resp, nil
}

// translate logs err with its full detail and returns the outward error.
// Server-caused failures log at error level, client-caused ones at debug.
func (c *Client) translate(ctx context.Context, op string, err error, fallback string) *Error {
	kind, ok := dErrors.CodeOf(err)
	if !ok {
		kind = dErrors.CodeInternal
	}
	out := NewError(kind, messageFor(kind, fallback))

	args := []any{
		"operation", op,
		"kind", string(kind),
		"error", err,
	}
	if requestID := requestcontext.RequestID(ctx); requestID != "" {
		args = append(args, "request_id", requestID)
	}
	if out.ClientFault() {
		c.logger.DebugContext(ctx, "self sign-up request refused", args...)
	} else {
		c.logger.ErrorContext(ctx, "self sign-up request failed", args...)
	}
	return out
}
