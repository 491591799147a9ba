package handler

//go:generate mockgen -source=handler.go -destination=mocks/mocks.go -package=mocks Portal,Purger

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"selfsignup/internal/portal"
	"selfsignup/internal/portal/handler/mocks"
	ratelimit "selfsignup/internal/ratelimit/models"
	"selfsignup/internal/signup/models"
	"selfsignup/pkg/attrs"
	dErrors "selfsignup/pkg/domain-errors"
	"selfsignup/pkg/platform/middleware/admin"
	"selfsignup/pkg/testutil"
)

type SignupHandlerSuite struct {
	suite.Suite
	ctrl   *gomock.Controller
	portal *mocks.MockPortal
	purger *mocks.MockPurger
	router chi.Router
}

func TestSignupHandlerSuite(t *testing.T) {
	suite.Run(t, new(SignupHandlerSuite))
}

func (s *SignupHandlerSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.portal = mocks.NewMockPortal(s.ctrl)
	s.purger = mocks.NewMockPurger(s.ctrl)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	h := New(s.portal, logger, WithAdmin("op-token", s.purger, time.Hour))
	s.router = chi.NewRouter()
	h.Register(s.router)
}

func (s *SignupHandlerSuite) TearDownTest() {
	s.ctrl.Finish()
}

func (s *SignupHandlerSuite) do(req *http.Request) (int, map[string]any) {
	rr := testutil.DoRequest(s.router, req)
	if rr.Body.Len() == 0 {
		return rr.Code, nil
	}
	return rr.Code, testutil.UnmarshalErrorResponse(s.T(), rr)
}

func (s *SignupHandlerSuite) TestRegister() {
	s.Run("201 with the notification response", func() {
		userID := uuid.New()
		s.portal.EXPECT().RegisterUser(gomock.Any(),
			attrs.FromPairs("givenname", "dinali", "lastname", "silva"),
			gomock.Any(), "PRIMARY", attrs.Map{}).
			Return(&models.NotificationResponse{UserID: userID, Status: models.StatusPending, Channel: models.ChannelNone, Code: "c-1"}, nil)

		status, body := s.do(testutil.NewJSONRequest(s.T(), http.MethodPost, "/signup/register",
			`{"claims":{"givenname":"dinali","lastname":"silva"},"credentials":{"password":"x"},"domain":"PRIMARY","properties":{}}`))
		s.Equal(http.StatusCreated, status)
		s.Equal(userID.String(), body["user_id"])
		s.Equal("PENDING", body["status"])
		s.Equal("c-1", body["code"])
	})

	s.Run("unknown fields are rejected", func() {
		status, body := s.do(testutil.NewJSONRequest(s.T(), http.MethodPost, "/signup/register", `{"claims":{},"extra":true}`))
		s.Equal(http.StatusBadRequest, status)
		s.Equal("bad_request", body["error"])
	})

	s.Run("non-string claim values are rejected", func() {
		status, _ := s.do(testutil.NewJSONRequest(s.T(), http.MethodPost, "/signup/register", `{"claims":{"age":42}}`))
		s.Equal(http.StatusBadRequest, status)
	})

	s.Run("form bodies are refused", func() {
		req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/signup/register", "claims=x")
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		status, body := s.do(req)
		s.Equal(http.StatusUnsupportedMediaType, status)
		s.Equal("unsupported_media_type", body["error"])
	})

	s.Run("server failure is 500 without detail", func() {
		s.portal.EXPECT().RegisterUser(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
			Return(nil, portal.NewError(dErrors.CodeRegistrationFailed, "Error occurred during user self sign-up."))

		status, body := s.do(testutil.NewJSONRequest(s.T(), http.MethodPost, "/signup/register",
			`{"claims":{"email":"a@b.com"},"credentials":{"password":"x"}}`))
		s.Equal(http.StatusInternalServerError, status)
		s.Equal("internal_error", body["error"])
		s.Equal("Error occurred during user self sign-up.", body["error_description"])
		s.NotContains(body, "error_code")
	})
}

func (s *SignupHandlerSuite) TestConfirm() {
	s.Run("204 on success", func() {
		s.portal.EXPECT().ConfirmUserSelfSignUp(gomock.Any(), "abc").Return(nil)
		status, _ := s.do(testutil.NewJSONRequest(s.T(), http.MethodPost, "/signup/confirm", map[string]string{"code": "abc"}))
		s.Equal(http.StatusNoContent, status)
	})

	s.Run("invalid code carries 18001", func() {
		s.portal.EXPECT().ConfirmUserSelfSignUp(gomock.Any(), "abc").
			Return(portal.NewError(dErrors.CodeInvalidCode, "Error occurred during self sign-up user confirmation."))
		status, body := s.do(testutil.NewJSONRequest(s.T(), http.MethodPost, "/signup/confirm", map[string]string{"code": "abc"}))
		s.Equal(http.StatusBadRequest, status)
		s.Equal("18001", body["error_code"])
		s.NotContains(body, "resend_available")
	})

	s.Run("expired code carries 18002 and offers a resend", func() {
		s.portal.EXPECT().ConfirmUserSelfSignUp(gomock.Any(), "abc").
			Return(portal.NewError(dErrors.CodeExpiredCode, "Error occurred during self sign-up user confirmation."))
		status, body := s.do(testutil.NewJSONRequest(s.T(), http.MethodPost, "/signup/confirm", map[string]string{"code": "abc"}))
		s.Equal(http.StatusBadRequest, status)
		s.Equal("18002", body["error_code"])
		s.Equal(true, body["resend_available"])
	})

	s.Run("non-portal errors are 500", func() {
		s.portal.EXPECT().ConfirmUserSelfSignUp(gomock.Any(), "abc").Return(errors.New("boom"))
		status, _ := s.do(testutil.NewJSONRequest(s.T(), http.MethodPost, "/signup/confirm", map[string]string{"code": "abc"}))
		s.Equal(http.StatusInternalServerError, status)
	})
}

func (s *SignupHandlerSuite) TestResend() {
	s.Run("by claims", func() {
		s.portal.EXPECT().ResendConfirmationCode(gomock.Any(),
			attrs.FromPairs(models.UsernameClaim, "alice"), "PRIMARY", attrs.FromPairs("callback", "https://app/done")).
			Return(&models.NotificationResponse{Status: models.StatusPending}, nil)

		status, _ := s.do(testutil.NewJSONRequest(s.T(), http.MethodPost, "/signup/resend",
			`{"claims":{"http://wso2.org/claims/username":"alice"},"domain":"PRIMARY","properties":{"callback":"https://app/done"}}`))
		s.Equal(http.StatusOK, status)
	})

	s.Run("by id without a body", func() {
		id := uuid.NewString()
		s.portal.EXPECT().ResendConfirmationCodeByID(gomock.Any(), id, attrs.Map(nil)).
			Return(&models.NotificationResponse{Status: models.StatusPending}, nil)

		status, _ := s.do(testutil.NewJSONRequest(s.T(), http.MethodPost, "/signup/users/"+id+"/resend", nil))
		s.Equal(http.StatusOK, status)
	})

	s.Run("unknown user is a client error", func() {
		s.portal.EXPECT().ResendConfirmationCodeByID(gomock.Any(), "nobody", gomock.Any()).
			Return(nil, portal.NewError(dErrors.CodeUserNotFound, "User could not be found."))

		status, body := s.do(testutil.NewJSONRequest(s.T(), http.MethodPost, "/signup/users/nobody/resend", `{"properties":{}}`))
		s.Equal(http.StatusBadRequest, status)
		s.Equal("User could not be found.", body["error_description"])
	})
}

func (s *SignupHandlerSuite) TestPurge() {
	s.Run("requires the admin token", func() {
		status, _ := s.do(testutil.NewJSONRequest(s.T(), http.MethodPost, "/admin/signup/purge", nil))
		s.Equal(http.StatusUnauthorized, status)
	})

	s.Run("reports the purged count", func() {
		s.purger.EXPECT().PurgeExpired(gomock.Any(), time.Hour).Return(4, nil)
		req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/admin/signup/purge", nil)
		req.Header.Set(admin.HeaderAdminToken, "op-token")

		status, body := s.do(req)
		s.Equal(http.StatusOK, status)
		s.Equal(float64(4), body["purged"])
	})
}

type denyAll struct{ classes []ratelimit.EndpointClass }

func (d *denyAll) RateLimit(class ratelimit.EndpointClass) func(http.Handler) http.Handler {
	d.classes = append(d.classes, class)
	return func(http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusTooManyRequests)
		})
	}
}

func TestRateLimitedRoutes(t *testing.T) {
	ctrl := gomock.NewController(t)
	limiter := &denyAll{}
	router := chi.NewRouter()
	New(mocks.NewMockPortal(ctrl), slog.New(slog.NewTextHandler(io.Discard, nil)), WithRateLimiter(limiter)).Register(router)

	for _, path := range []string{"/signup/register", "/signup/confirm", "/signup/resend", "/signup/users/u-1/resend"} {
		rr := testutil.DoRequest(router, testutil.NewJSONRequest(t, http.MethodPost, path, `{}`))
		testutil.AssertStatus(t, rr, http.StatusTooManyRequests)
	}
	if len(limiter.classes) != 4 {
		t.Fatalf("expected every sign-up route to be limited, got %v", limiter.classes)
	}
}

func TestConfirmExpiredCodeFlow(t *testing.T) {
	ctrl := gomock.NewController(t)
	p := mocks.NewMockPortal(ctrl)
	h := New(p, slog.New(slog.NewTextHandler(io.Discard, nil)))
	router := chi.NewRouter()
	h.Register(router)

	testutil.Given(t, "a code that has expired", func(t *testing.T) {
		p.EXPECT().ConfirmUserSelfSignUp(gomock.Any(), "stale").
			Return(portal.NewError(dErrors.CodeExpiredCode, "Error occurred during self sign-up user confirmation."))
		p.EXPECT().ResendConfirmationCodeByID(gomock.Any(), "u-1", gomock.Any()).
			Return(&models.NotificationResponse{Status: models.StatusPending}, nil)

		testutil.When(t, "the user confirms it", func(t *testing.T) {
			rr := testutil.DoRequest(router, testutil.NewJSONRequest(t, http.MethodPost, "/signup/confirm", `{"code":"stale"}`))

			testutil.Then(t, "a resend is offered", func(t *testing.T) {
				testutil.AssertStatus(t, rr, http.StatusBadRequest)
				body := testutil.UnmarshalErrorResponse(t, rr)
				if body["resend_available"] != true {
					t.Fatalf("expected resend_available, got %v", body)
				}
			})
		})

		testutil.When(t, "the user asks for a new code", func(t *testing.T) {
			rr := testutil.DoRequest(router, testutil.NewJSONRequest(t, http.MethodPost, "/signup/users/u-1/resend", `{}`))

			testutil.Then(t, "the code is reissued", func(t *testing.T) {
				testutil.AssertStatus(t, rr, http.StatusOK)
			})
		})
	})

	// The purge route is not mounted without WithAdmin.
	rr := testutil.DoRequest(router, testutil.NewJSONRequest(t, http.MethodPost, "/admin/signup/purge", nil))
	testutil.AssertStatus(t, rr, http.StatusNotFound)
}
