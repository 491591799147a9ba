package registration

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"selfsignup/internal/signup/models"
	"selfsignup/pkg/platform/sentinel"
)

type registrationStore interface {
	Create(ctx context.Context, reg *models.PendingRegistration) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.PendingRegistration, error)
	FindByPrincipal(ctx context.Context, key models.PrincipalKey) (*models.PendingRegistration, error)
	ConsumeCode(ctx context.Context, code string, now time.Time, finalize func(context.Context, *models.PendingRegistration) error) (*models.PendingRegistration, error)
	ReissueCode(ctx context.Context, key models.PrincipalKey, code models.ConfirmationCode) (*models.PendingRegistration, error)
	Delete(ctx context.Context, id uuid.UUID) error
	DeleteExpired(ctx context.Context, before time.Time) ([]*models.PendingRegistration, error)
}

var (
	_ registrationStore = (*InMemoryStore)(nil)
	_ registrationStore = (*RedisStore)(nil)
	_ registrationStore = (*PostgresStore)(nil)
)

// storeContractSuite holds the behaviour every backend must share. Backend
// suites embed it and set newStore.
type storeContractSuite struct {
	suite.Suite
	newStore func() registrationStore
	store    registrationStore
	now      time.Time
}

func (s *storeContractSuite) SetupTest() {
	s.store = s.newStore()
	s.now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
}

func (s *storeContractSuite) newRegistration(principal string) *models.PendingRegistration {
	return &models.PendingRegistration{
		ID:        uuid.New(),
		UserID:    uuid.New(),
		Domain:    "PRIMARY",
		Principal: models.NewClaim(models.UsernameClaim, principal),
		Claims: []models.Claim{
			models.NewClaim(models.UsernameClaim, principal),
			models.NewClaim(models.EmailClaim, principal+"@example.com"),
		},
		Properties: []models.Property{{Key: models.PropertyCallback, Value: "https://app.example.com/done"}},
		Channel:    models.ChannelEmail,
		Recipient:  principal + "@example.com",
		Status:     models.StatusPending,
		Code:       models.NewConfirmationCode(uuid.NewString(), s.now, time.Hour),
		CreatedAt:  s.now,
		UpdatedAt:  s.now,
	}
}

func (s *storeContractSuite) TestCreate() {
	ctx := context.Background()

	s.Run("stored registration is found by id and principal", func() {
		reg := s.newRegistration("alice")
		s.Require().NoError(s.store.Create(ctx, reg))

		byID, err := s.store.FindByID(ctx, reg.ID)
		s.Require().NoError(err)
		s.Equal(reg.Code.Value, byID.Code.Value)
		s.Equal(reg.Claims, byID.Claims)
		s.Equal(reg.Properties, byID.Properties)

		byPrincipal, err := s.store.FindByPrincipal(ctx, reg.Key())
		s.Require().NoError(err)
		s.Equal(reg.ID, byPrincipal.ID)
		s.Equal(models.StatusPending, byPrincipal.Status)
	})

	s.Run("live registration for the same principal conflicts", func() {
		first := s.newRegistration("bob")
		s.Require().NoError(s.store.Create(ctx, first))

		err := s.store.Create(ctx, s.newRegistration("bob"))
		s.Require().ErrorIs(err, sentinel.ErrConflict)
	})

	s.Run("same principal in another domain is independent", func() {
		s.Require().NoError(s.store.Create(ctx, s.newRegistration("carol")))
		other := s.newRegistration("carol")
		other.Domain = "SECONDARY"
		s.Require().NoError(s.store.Create(ctx, other))
	})

	s.Run("unknown principal is not found", func() {
		_, err := s.store.FindByPrincipal(ctx, models.PrincipalKey{Domain: "PRIMARY", Value: "nobody"})
		s.Require().ErrorIs(err, sentinel.ErrNotFound)
	})
}

func (s *storeContractSuite) TestConsumeCode() {
	ctx := context.Background()

	s.Run("valid code confirms once and runs finalize", func() {
		reg := s.newRegistration("dave")
		s.Require().NoError(s.store.Create(ctx, reg))

		var finalized *models.PendingRegistration
		confirmed, err := s.store.ConsumeCode(ctx, reg.Code.Value, s.now.Add(time.Minute),
			func(_ context.Context, r *models.PendingRegistration) error {
				finalized = r
				return nil
			})
		s.Require().NoError(err)
		s.Equal(models.StatusConfirmed, confirmed.Status)
		s.Empty(confirmed.Code.Value)
		s.Require().NotNil(confirmed.ConfirmedAt)
		s.Require().NotNil(finalized)
		s.Equal(reg.UserID, finalized.UserID)

		_, err = s.store.ConsumeCode(ctx, reg.Code.Value, s.now.Add(2*time.Minute), nil)
		s.Require().ErrorIs(err, sentinel.ErrNotFound)
	})

	s.Run("unknown code is not found", func() {
		_, err := s.store.ConsumeCode(ctx, "no-such-code", s.now, nil)
		s.Require().ErrorIs(err, sentinel.ErrNotFound)
	})

	s.Run("expired code marks the registration expired and keeps failing", func() {
		reg := s.newRegistration("erin")
		s.Require().NoError(s.store.Create(ctx, reg))
		late := reg.Code.ExpiresAt.Add(time.Second)

		_, err := s.store.ConsumeCode(ctx, reg.Code.Value, late, nil)
		s.Require().ErrorIs(err, sentinel.ErrExpired)

		stored, err := s.store.FindByID(ctx, reg.ID)
		s.Require().NoError(err)
		s.Equal(models.StatusExpired, stored.Status)

		_, err = s.store.ConsumeCode(ctx, reg.Code.Value, late.Add(time.Hour), nil)
		s.Require().ErrorIs(err, sentinel.ErrExpired)
	})

	s.Run("code at exactly its expiry instant is still valid", func() {
		reg := s.newRegistration("frank")
		s.Require().NoError(s.store.Create(ctx, reg))

		_, err := s.store.ConsumeCode(ctx, reg.Code.Value, reg.Code.ExpiresAt, nil)
		s.Require().NoError(err)
	})

	s.Run("finalize failure leaves the registration pending", func() {
		reg := s.newRegistration("grace")
		s.Require().NoError(s.store.Create(ctx, reg))
		boom := errors.New("activation failed")

		_, err := s.store.ConsumeCode(ctx, reg.Code.Value, s.now, func(context.Context, *models.PendingRegistration) error {
			return boom
		})
		s.Require().ErrorIs(err, boom)

		stored, err := s.store.FindByID(ctx, reg.ID)
		s.Require().NoError(err)
		s.Equal(models.StatusPending, stored.Status)

		_, err = s.store.ConsumeCode(ctx, reg.Code.Value, s.now, nil)
		s.Require().NoError(err)
	})
}

func (s *storeContractSuite) TestConcurrentConfirm() {
	ctx := context.Background()
	reg := s.newRegistration("heidi")
	s.Require().NoError(s.store.Create(ctx, reg))

	const goroutines = 20
	var wg sync.WaitGroup
	var successes, notFound atomic.Int32
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.store.ConsumeCode(ctx, reg.Code.Value, s.now, nil)
			switch {
			case err == nil:
				successes.Add(1)
			case errors.Is(err, sentinel.ErrNotFound):
				notFound.Add(1)
			}
		}()
	}
	wg.Wait()

	s.Equal(int32(1), successes.Load())
	s.Equal(int32(goroutines-1), notFound.Load())
}

// A resend that lands while the account is being activated must not leave
// an active account behind a pending registration.
func (s *storeContractSuite) TestReissueDuringFinalize() {
	ctx := context.Background()
	reg := s.newRegistration("trent")
	s.Require().NoError(s.store.Create(ctx, reg))
	fresh := models.NewConfirmationCode(uuid.NewString(), s.now, time.Hour)

	var activations atomic.Int32
	var reissueErr error
	reissued := make(chan struct{})
	confirmed, err := s.store.ConsumeCode(ctx, reg.Code.Value, s.now, func(context.Context, *models.PendingRegistration) error {
		if activations.Add(1) == 1 {
			go func() {
				defer close(reissued)
				_, reissueErr = s.store.ReissueCode(ctx, reg.Key(), fresh)
			}()
			select {
			case <-reissued:
			case <-time.After(200 * time.Millisecond):
			}
		}
		return nil
	})
	<-reissued

	s.Require().NoError(err)
	s.Equal(int32(1), activations.Load())
	s.Equal(models.StatusConfirmed, confirmed.Status)
	if reissueErr != nil {
		s.ErrorIs(reissueErr, sentinel.ErrInvalidState)
	}

	stored, err := s.store.FindByID(ctx, reg.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusConfirmed, stored.Status)
	s.Empty(stored.Code.Value)

	_, err = s.store.ConsumeCode(ctx, fresh.Value, s.now, nil)
	s.Require().ErrorIs(err, sentinel.ErrNotFound)
}

func (s *storeContractSuite) TestConcurrentReissueLeavesOneLiveCode() {
	ctx := context.Background()
	reg := s.newRegistration("uma")
	s.Require().NoError(s.store.Create(ctx, reg))

	const goroutines = 16
	var wg sync.WaitGroup
	var mu sync.Mutex
	issued := make([]string, 0, goroutines)
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			code := models.NewConfirmationCode(uuid.NewString(), s.now, time.Hour)
			if _, err := s.store.ReissueCode(ctx, reg.Key(), code); err == nil {
				mu.Lock()
				issued = append(issued, code.Value)
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	s.Require().NotEmpty(issued)

	stored, err := s.store.FindByID(ctx, reg.ID)
	s.Require().NoError(err)
	s.Contains(issued, stored.Code.Value)

	for _, code := range append(issued, reg.Code.Value) {
		if code == stored.Code.Value {
			continue
		}
		_, err := s.store.ConsumeCode(ctx, code, s.now, nil)
		s.Require().ErrorIs(err, sentinel.ErrNotFound, "superseded code %s still resolves", code)
	}
	_, err = s.store.ConsumeCode(ctx, stored.Code.Value, s.now, nil)
	s.Require().NoError(err)
}

func (s *storeContractSuite) TestReissueCode() {
	ctx := context.Background()

	s.Run("new code replaces the old one", func() {
		reg := s.newRegistration("ivan")
		s.Require().NoError(s.store.Create(ctx, reg))

		fresh := models.NewConfirmationCode(uuid.NewString(), s.now.Add(time.Minute), time.Hour)
		updated, err := s.store.ReissueCode(ctx, reg.Key(), fresh)
		s.Require().NoError(err)
		s.Equal(fresh.Value, updated.Code.Value)
		s.Equal(models.StatusPending, updated.Status)

		_, err = s.store.ConsumeCode(ctx, reg.Code.Value, s.now.Add(2*time.Minute), nil)
		s.Require().ErrorIs(err, sentinel.ErrNotFound)

		_, err = s.store.ConsumeCode(ctx, fresh.Value, s.now.Add(2*time.Minute), nil)
		s.Require().NoError(err)
	})

	s.Run("expired registration is re-armed", func() {
		reg := s.newRegistration("judy")
		s.Require().NoError(s.store.Create(ctx, reg))
		late := reg.Code.ExpiresAt.Add(time.Minute)
		_, err := s.store.ConsumeCode(ctx, reg.Code.Value, late, nil)
		s.Require().ErrorIs(err, sentinel.ErrExpired)

		fresh := models.NewConfirmationCode(uuid.NewString(), late, time.Hour)
		updated, err := s.store.ReissueCode(ctx, reg.Key(), fresh)
		s.Require().NoError(err)
		s.Equal(models.StatusPending, updated.Status)

		_, err = s.store.ConsumeCode(ctx, fresh.Value, late.Add(time.Minute), nil)
		s.Require().NoError(err)
	})

	s.Run("confirmed registration cannot be reissued", func() {
		reg := s.newRegistration("ken")
		s.Require().NoError(s.store.Create(ctx, reg))
		_, err := s.store.ConsumeCode(ctx, reg.Code.Value, s.now, nil)
		s.Require().NoError(err)

		_, err = s.store.ReissueCode(ctx, reg.Key(), models.NewConfirmationCode(uuid.NewString(), s.now, time.Hour))
		s.Require().ErrorIs(err, sentinel.ErrInvalidState)
	})

	s.Run("unknown principal is not found", func() {
		_, err := s.store.ReissueCode(ctx, models.PrincipalKey{Domain: "PRIMARY", Value: "ghost"},
			models.NewConfirmationCode(uuid.NewString(), s.now, time.Hour))
		s.Require().ErrorIs(err, sentinel.ErrNotFound)
	})
}

func (s *storeContractSuite) TestDelete() {
	ctx := context.Background()
	reg := s.newRegistration("leo")
	s.Require().NoError(s.store.Create(ctx, reg))

	s.Require().NoError(s.store.Delete(ctx, reg.ID))

	_, err := s.store.FindByPrincipal(ctx, reg.Key())
	s.Require().ErrorIs(err, sentinel.ErrNotFound)
	_, err = s.store.ConsumeCode(ctx, reg.Code.Value, s.now, nil)
	s.Require().ErrorIs(err, sentinel.ErrNotFound)
	s.Require().ErrorIs(s.store.Delete(ctx, reg.ID), sentinel.ErrNotFound)

	s.Require().NoError(s.store.Create(ctx, s.newRegistration("leo")))
}

func (s *storeContractSuite) TestDeleteExpired() {
	ctx := context.Background()

	live := s.newRegistration("mallory")
	lapsed := s.newRegistration("nick")
	lapsed.Code = models.NewConfirmationCode(uuid.NewString(), s.now.Add(-3*time.Hour), time.Hour)
	done := s.newRegistration("olivia")
	for _, r := range []*models.PendingRegistration{live, lapsed, done} {
		s.Require().NoError(s.store.Create(ctx, r))
	}
	_, err := s.store.ConsumeCode(ctx, done.Code.Value, s.now.Add(-30*time.Minute), nil)
	s.Require().NoError(err)

	removed, err := s.store.DeleteExpired(ctx, s.now)
	s.Require().NoError(err)

	ids := make([]uuid.UUID, 0, len(removed))
	for _, r := range removed {
		ids = append(ids, r.ID)
	}
	s.ElementsMatch([]uuid.UUID{lapsed.ID, done.ID}, ids)

	_, err = s.store.FindByID(ctx, live.ID)
	s.Require().NoError(err)
	_, err = s.store.FindByID(ctx, lapsed.ID)
	s.Require().ErrorIs(err, sentinel.ErrNotFound)
}

func (s *storeContractSuite) TestConfirmedPrincipalCanRegisterAgain() {
	ctx := context.Background()
	first := s.newRegistration("peggy")
	s.Require().NoError(s.store.Create(ctx, first))
	_, err := s.store.ConsumeCode(ctx, first.Code.Value, s.now, nil)
	s.Require().NoError(err)

	second := s.newRegistration("peggy")
	s.Require().NoError(s.store.Create(ctx, second))

	found, err := s.store.FindByPrincipal(ctx, second.Key())
	s.Require().NoError(err)
	s.Equal(second.ID, found.ID)
}
