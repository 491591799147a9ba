package lookup

//go:generate mockgen -source=lookup.go -destination=mocks/mocks.go -package=mocks UserStore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"
	"golang.org/x/crypto/bcrypt"

	"selfsignup/internal/identity/lookup/mocks"
	"selfsignup/internal/identity/models"
	"selfsignup/internal/identity/secrets"
	"selfsignup/internal/identity/store"
	signup "selfsignup/internal/signup/models"
	dErrors "selfsignup/pkg/domain-errors"
)

type LookupSuite struct {
	suite.Suite
	users   *store.InMemoryStore
	adapter *Adapter
}

func TestLookupSuite(t *testing.T) {
	suite.Run(t, new(LookupSuite))
}

func (s *LookupSuite) SetupTest() {
	s.users = store.NewInMemory([]string{"PRIMARY", "PARTNERS"}, store.WithHasher(secrets.NewHasher(bcrypt.MinCost)))
	s.adapter = New(s.users)
}

func (s *LookupSuite) createUser(domain string, claims ...signup.Claim) *models.User {
	user, err := s.users.CreatePending(context.Background(), models.NewAccount{
		Domain:      domain,
		Username:    uuid.NewString(),
		Claims:      claims,
		Credentials: []signup.Credential{signup.NewCredential("password", []byte("pw"))},
	})
	s.Require().NoError(err)
	return user
}

func (s *LookupSuite) TestResolvesUsernameClaimAndDomain() {
	user := s.createUser("PARTNERS",
		signup.NewClaim(signup.EmailClaim, "dinali@example.com"),
		signup.NewClaim(signup.UsernameClaim, "dinali"))

	claim, domain, err := s.adapter.ResolvePrimaryClaim(context.Background(), user.ID.String())
	s.Require().NoError(err)
	s.Equal(signup.NewClaim(signup.UsernameClaim, "dinali"), claim)
	s.Equal("PARTNERS", domain)
}

func (s *LookupSuite) TestMissingClaimIsNotUserNotFound() {
	user := s.createUser("PRIMARY", signup.NewClaim(signup.EmailClaim, "nouser@example.com"))

	_, _, err := s.adapter.ResolvePrimaryClaim(context.Background(), user.ID.String())
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeClaimMissing))
	s.False(dErrors.HasCode(err, dErrors.CodeUserNotFound))
}

func (s *LookupSuite) TestUnknownUser() {
	s.Run("well-formed id", func() {
		_, _, err := s.adapter.ResolvePrimaryClaim(context.Background(), uuid.NewString())
		s.True(dErrors.HasCode(err, dErrors.CodeUserNotFound))
	})
	s.Run("malformed id", func() {
		_, _, err := s.adapter.ResolvePrimaryClaim(context.Background(), "not-a-uuid")
		s.True(dErrors.HasCode(err, dErrors.CodeUserNotFound))
	})
}

func (s *LookupSuite) TestCustomClaim() {
	user := s.createUser("PRIMARY", signup.NewClaim(signup.EmailClaim, "x@example.com"))
	adapter := New(s.users, WithClaim(signup.EmailClaim))

	claim, _, err := adapter.ResolvePrimaryClaim(context.Background(), user.ID.String())
	s.Require().NoError(err)
	s.Equal("x@example.com", claim.Value)
}

func (s *LookupSuite) TestStoreFailures() {
	id := uuid.New()

	s.Run("user load error is lookup_failed", func() {
		ctrl := gomock.NewController(s.T())
		users := mocks.NewMockUserStore(ctrl)
		users.EXPECT().GetUser(gomock.Any(), id).Return(nil, errors.New("connection reset"))

		_, _, err := New(users).ResolvePrimaryClaim(context.Background(), id.String())
		s.True(dErrors.HasCode(err, dErrors.CodeLookupFailed))
	})

	s.Run("claim load error is lookup_failed", func() {
		ctrl := gomock.NewController(s.T())
		users := mocks.NewMockUserStore(ctrl)
		users.EXPECT().GetUser(gomock.Any(), id).Return(&models.User{ID: id, Domain: "PRIMARY"}, nil)
		users.EXPECT().GetClaims(gomock.Any(), id, signup.UsernameClaim).Return(nil, errors.New("timeout"))

		_, _, err := New(users).ResolvePrimaryClaim(context.Background(), id.String())
		s.True(dErrors.HasCode(err, dErrors.CodeLookupFailed))
	})

	s.Run("slow store is bounded by the timeout", func() {
		ctrl := gomock.NewController(s.T())
		users := mocks.NewMockUserStore(ctrl)
		users.EXPECT().GetUser(gomock.Any(), id).DoAndReturn(func(ctx context.Context, _ uuid.UUID) (*models.User, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		})

		start := time.Now()
		_, _, err := New(users, WithTimeout(20*time.Millisecond)).ResolvePrimaryClaim(context.Background(), id.String())
		s.True(dErrors.HasCode(err, dErrors.CodeLookupFailed))
		s.Less(time.Since(start), 2*time.Second)
	})
}
