package models

import (
	"strings"
	"time"

	"github.com/google/uuid"

	dErrors "selfsignup/pkg/domain-errors"
)

// Channel is how a user receives the confirmation code.
type Channel string

const (
	ChannelEmail Channel = "EMAIL"
	ChannelSMS   Channel = "SMS"
	// ChannelNone means delivery is managed by the caller: the code is
	// returned in the NotificationResponse instead of being sent.
	ChannelNone Channel = "NONE"
)

// ParseChannel accepts channel names case-insensitively.
func ParseChannel(s string) (Channel, error) {
	switch c := Channel(strings.ToUpper(strings.TrimSpace(s))); c {
	case ChannelEmail, ChannelSMS, ChannelNone:
		return c, nil
	}
	return "", dErrors.New(dErrors.CodeInvalidArgument, "unsupported notification channel: "+s)
}

// RecipientClaim is the claim that holds the address for the channel.
func (c Channel) RecipientClaim() string {
	switch c {
	case ChannelEmail:
		return EmailClaim
	case ChannelSMS:
		return MobileClaim
	}
	return ""
}

// NotificationResponse is handed back after registration or resend.
type NotificationResponse struct {
	UserID    uuid.UUID `json:"user_id"`
	Recipient string    `json:"recipient"`
	Channel   Channel   `json:"notification_channel"`
	Code      string    `json:"code,omitempty"`
	Status    Status    `json:"status"`
	ExpiresAt time.Time `json:"expires_at"`
}
