package signup

import (
	"context"
	"errors"
	"fmt"

	"github.com/cucumber/godog"
)

const (
	usernameClaim = "http://wso2.org/claims/username"
	emailClaim    = "http://wso2.org/claims/emailaddress"
)

// TestContext interface defines the methods needed from the main test context
type TestContext interface {
	POST(path string, body interface{}, headers map[string]string) error
	GetResponseField(field string) (interface{}, error)
	GetAdminToken() string
	Unique(name string) string
	GetCode() string
	SetCode(code string)
	GetUserID() string
	SetUserID(id string)
}

// RegisterSteps registers registration, confirmation and resend steps
func RegisterSteps(ctx *godog.ScenarioContext, tc TestContext) {
	steps := &signupSteps{tc: tc}

	ctx.Step(`^I register user "([^"]*)" with email "([^"]*)"$`, steps.registerUser)
	ctx.Step(`^I register user "([^"]*)" without credentials$`, steps.registerWithoutCredentials)
	ctx.Step(`^I save the confirmation code$`, steps.saveCode)
	ctx.Step(`^I confirm the saved code$`, steps.confirmSavedCode)
	ctx.Step(`^I confirm code "([^"]*)"$`, steps.confirmCode)
	ctx.Step(`^I request a new code for the saved user$`, steps.resendForSavedUser)
	ctx.Step(`^I request a new code for username "([^"]*)"$`, steps.resendForUsername)
	ctx.Step(`^I purge abandoned registrations$`, steps.purge)
}

type signupSteps struct {
	tc TestContext
}

func (s *signupSteps) registerUser(ctx context.Context, username, email string) error {
	body := map[string]interface{}{
		"claims": map[string]string{
			usernameClaim: s.tc.Unique(username),
			emailClaim:    email,
		},
		"credentials": map[string]string{"password": "e2e-Passw0rd!"},
	}
	return s.tc.POST("/signup/register", body, nil)
}

func (s *signupSteps) registerWithoutCredentials(ctx context.Context, username string) error {
	body := map[string]interface{}{
		"claims":      map[string]string{usernameClaim: s.tc.Unique(username)},
		"credentials": map[string]string{},
	}
	return s.tc.POST("/signup/register", body, nil)
}

func (s *signupSteps) saveCode(ctx context.Context) error {
	code, err := s.tc.GetResponseField("code")
	if err != nil {
		return err
	}
	str, ok := code.(string)
	if !ok || str == "" {
		return errors.New("response carries no confirmation code; run the server with SIGNUP_DEFAULT_CHANNEL=NONE")
	}
	s.tc.SetCode(str)

	userID, err := s.tc.GetResponseField("user_id")
	if err != nil {
		return err
	}
	s.tc.SetUserID(fmt.Sprint(userID))
	return nil
}

func (s *signupSteps) confirmSavedCode(ctx context.Context) error {
	return s.confirmCode(ctx, s.tc.GetCode())
}

func (s *signupSteps) confirmCode(ctx context.Context, code string) error {
	return s.tc.POST("/signup/confirm", map[string]string{"code": code}, nil)
}

func (s *signupSteps) resendForSavedUser(ctx context.Context) error {
	if s.tc.GetUserID() == "" {
		return errors.New("no saved user")
	}
	return s.tc.POST("/signup/users/"+s.tc.GetUserID()+"/resend", nil, nil)
}

func (s *signupSteps) resendForUsername(ctx context.Context, username string) error {
	body := map[string]interface{}{
		"claims": map[string]string{usernameClaim: s.tc.Unique(username)},
	}
	return s.tc.POST("/signup/resend", body, nil)
}

func (s *signupSteps) purge(ctx context.Context) error {
	if s.tc.GetAdminToken() == "" {
		return godog.ErrPending
	}
	return s.tc.POST("/admin/signup/purge", nil, map[string]string{"X-Admin-Token": s.tc.GetAdminToken()})
}
