package e2e

import (
	"context"
	"os"
	"testing"

	"github.com/cucumber/godog"
)

// TestFeatures runs the feature files against a running server. Start the
// server with the memory store and point SIGNUP_E2E_URL at it.
func TestFeatures(t *testing.T) {
	baseURL := os.Getenv("SIGNUP_E2E_URL")
	if baseURL == "" {
		t.Skip("SIGNUP_E2E_URL not set")
	}
	tc := NewTestContext(baseURL, os.Getenv("SIGNUP_E2E_ADMIN_TOKEN"))

	suite := godog.TestSuite{
		Name: "selfsignup",
		ScenarioInitializer: func(sc *godog.ScenarioContext) {
			sc.Before(func(ctx context.Context, _ *godog.Scenario) (context.Context, error) {
				tc.Reset()
				return ctx, nil
			})
			RegisterSteps(sc, tc)
		},
		Options: &godog.Options{
			Format:   "pretty",
			Paths:    []string{"features"},
			Tags:     os.Getenv("SIGNUP_E2E_TAGS"),
			TestingT: t,
		},
	}
	if suite.Run() != 0 {
		t.Fatal("feature run failed")
	}
}
