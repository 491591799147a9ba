package ratelimit

import (
	"context"
	"fmt"
	"strconv"

	"github.com/cucumber/godog"
)

// TestContext interface defines the methods needed from the main test context
type TestContext interface {
	POST(path string, body interface{}, headers map[string]string) error
	GetResponseField(field string) (interface{}, error)
	GetLastResponseStatus() int
	GetLastResponseHeader(key string) string
}

// RegisterSteps registers rate-limiting step definitions
func RegisterSteps(ctx *godog.ScenarioContext, tc TestContext) {
	steps := &ratelimitSteps{tc: tc}

	ctx.Step(`^I am calling from IP "([^"]*)"$`, steps.callingFromIP)
	ctx.Step(`^I confirm code "([^"]*)" (\d+) times$`, steps.confirmNTimes)
	ctx.Step(`^the last response should be rate limited$`, steps.lastResponseRateLimited)
	ctx.Step(`^the response should carry a Retry-After header$`, steps.retryAfterPresent)
}

type ratelimitSteps struct {
	tc        TestContext
	currentIP string
}

func (s *ratelimitSteps) callingFromIP(ctx context.Context, ip string) error {
	s.currentIP = ip
	return nil
}

func (s *ratelimitSteps) confirmNTimes(ctx context.Context, code string, times int) error {
	headers := map[string]string{}
	if s.currentIP != "" {
		headers["X-Forwarded-For"] = s.currentIP
	}
	for i := 0; i < times; i++ {
		if err := s.tc.POST("/signup/confirm", map[string]string{"code": code}, headers); err != nil {
			return err
		}
	}
	return nil
}

func (s *ratelimitSteps) lastResponseRateLimited(ctx context.Context) error {
	if got := s.tc.GetLastResponseStatus(); got != 429 {
		return fmt.Errorf("expected 429, got %d", got)
	}
	errCode, err := s.tc.GetResponseField("error")
	if err != nil {
		return err
	}
	if errCode != "rate_limit_exceeded" {
		return fmt.Errorf("expected rate_limit_exceeded, got %v", errCode)
	}
	return nil
}

func (s *ratelimitSteps) retryAfterPresent(ctx context.Context) error {
	v := s.tc.GetLastResponseHeader("Retry-After")
	if n, err := strconv.Atoi(v); err != nil || n < 1 {
		return fmt.Errorf("expected a positive Retry-After, got %q", v)
	}
	return nil
}
