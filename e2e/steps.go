package e2e

import (
	"github.com/cucumber/godog"

	"selfsignup/e2e/steps/common"
	"selfsignup/e2e/steps/ratelimit"
	"selfsignup/e2e/steps/signup"
)

// RegisterSteps registers all step definitions from modular packages
func RegisterSteps(ctx *godog.ScenarioContext, tc *TestContext) {
	// Register common steps (background, generic requests, assertions)
	common.RegisterSteps(ctx, tc)

	// Register sign-up steps
	signup.RegisterSteps(ctx, tc)

	ratelimit.RegisterSteps(ctx, tc)
}
