package models

import (
	"fmt"
	"time"
)

// EndpointClass groups routes that share a limit.
type EndpointClass string

const (
	ClassRegister EndpointClass = "register"
	ClassConfirm  EndpointClass = "confirm"
	ClassResend   EndpointClass = "resend"
)

// Limit allows Requests per sliding Window.
type Limit struct {
	Requests int
	Window   time.Duration
}

// RateLimitResult is the outcome of one check.
type RateLimitResult struct {
	Allowed    bool      `json:"allowed"`
	Limit      int       `json:"limit"`
	Remaining  int       `json:"remaining"`
	ResetAt    time.Time `json:"reset_at"`
	RetryAfter int       `json:"retry_after,omitempty"` // seconds, only set when not allowed
}

// NewIPKey builds the bucket key for a client IP on an endpoint class.
func NewIPKey(class EndpointClass, ip string) string {
	return fmt.Sprintf("ratelimit:%s:ip:%s", class, ip)
}

func retryAfter(resetAt, now time.Time) int {
	secs := int(resetAt.Sub(now).Round(time.Second) / time.Second)
	if secs < 1 {
		return 1
	}
	return secs
}

// Denied builds the result for a rejected request.
func Denied(limit int, resetAt, now time.Time) *RateLimitResult {
	return &RateLimitResult{
		Allowed:    false,
		Limit:      limit,
		Remaining:  0,
		ResetAt:    resetAt,
		RetryAfter: retryAfter(resetAt, now),
	}
}
