package registration

import (
	"context"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"selfsignup/internal/signup/models"
	"selfsignup/pkg/platform/sentinel"
)

var columnNames = []string{
	"id", "user_id", "domain", "principal_uri", "principal_value", "claims", "properties",
	"channel", "recipient", "status", "code", "code_issued_at", "code_expires_at",
	"created_at", "updated_at", "confirmed_at",
}

func registrationRow(t *testing.T, reg *models.PendingRegistration) []driver.Value {
	t.Helper()
	claims, err := json.Marshal(reg.Claims)
	require.NoError(t, err)
	props, err := json.Marshal(reg.Properties)
	require.NoError(t, err)
	var code driver.Value
	if reg.Code.Value != "" {
		code = reg.Code.Value
	}
	var confirmedAt driver.Value
	if reg.ConfirmedAt != nil {
		confirmedAt = *reg.ConfirmedAt
	}
	return []driver.Value{
		reg.ID.String(), reg.UserID.String(), reg.Domain, reg.Principal.Name, reg.Principal.Value,
		claims, props, string(reg.Channel), reg.Recipient, string(reg.Status),
		code, reg.Code.IssuedAt, reg.Code.ExpiresAt, reg.CreatedAt, reg.UpdatedAt, confirmedAt,
	}
}

func newMockStore(t *testing.T) (*PostgresStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewPostgres(db), mock
}

func sampleRegistration(now time.Time) *models.PendingRegistration {
	return &models.PendingRegistration{
		ID:         uuid.New(),
		UserID:     uuid.New(),
		Domain:     "PRIMARY",
		Principal:  models.NewClaim(models.UsernameClaim, "tess"),
		Claims:     []models.Claim{models.NewClaim(models.UsernameClaim, "tess")},
		Properties: []models.Property{},
		Channel:    models.ChannelNone,
		Recipient:  "tess",
		Status:     models.StatusPending,
		Code:       models.NewConfirmationCode("code-1", now, time.Hour),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

func TestPostgresCreateMapsUniqueViolation(t *testing.T) {
	store, mock := newMockStore(t)
	reg := sampleRegistration(time.Now())

	mock.ExpectExec("INSERT INTO signup_registrations").
		WillReturnError(&pq.Error{Code: uniqueViolation})

	err := store.Create(context.Background(), reg)
	require.ErrorIs(t, err, sentinel.ErrConflict)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresConsumeCode(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("confirms inside one transaction", func(t *testing.T) {
		store, mock := newMockStore(t)
		reg := sampleRegistration(now)

		mock.ExpectBegin()
		mock.ExpectQuery("FROM signup_registrations WHERE code = (.+) FOR UPDATE").
			WithArgs("code-1").
			WillReturnRows(sqlmock.NewRows(columnNames).AddRow(registrationRow(t, reg)...))
		mock.ExpectExec("UPDATE signup_registrations").
			WithArgs(sqlmock.AnyArg(), "CONFIRMED", sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		finalized := false
		got, err := store.ConsumeCode(context.Background(), "code-1", now, func(context.Context, *models.PendingRegistration) error {
			finalized = true
			return nil
		})
		require.NoError(t, err)
		assert.True(t, finalized)
		assert.Equal(t, models.StatusConfirmed, got.Status)
		assert.Equal(t, reg.ID, got.ID)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("expired code commits the EXPIRED status and reports expiry", func(t *testing.T) {
		store, mock := newMockStore(t)
		reg := sampleRegistration(now.Add(-2 * time.Hour))

		mock.ExpectBegin()
		mock.ExpectQuery("FROM signup_registrations WHERE code").
			WillReturnRows(sqlmock.NewRows(columnNames).AddRow(registrationRow(t, reg)...))
		mock.ExpectExec("UPDATE signup_registrations SET status").
			WithArgs(sqlmock.AnyArg(), "EXPIRED", sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		got, err := store.ConsumeCode(context.Background(), "code-1", now, nil)
		require.ErrorIs(t, err, sentinel.ErrExpired)
		assert.Equal(t, models.StatusExpired, got.Status)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unknown code rolls back", func(t *testing.T) {
		store, mock := newMockStore(t)

		mock.ExpectBegin()
		mock.ExpectQuery("FROM signup_registrations WHERE code").
			WillReturnRows(sqlmock.NewRows(columnNames))
		mock.ExpectRollback()

		_, err := store.ConsumeCode(context.Background(), "nope", now, nil)
		require.ErrorIs(t, err, sentinel.ErrNotFound)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("finalize failure rolls back", func(t *testing.T) {
		store, mock := newMockStore(t)
		reg := sampleRegistration(now)
		boom := errors.New("activate failed")

		mock.ExpectBegin()
		mock.ExpectQuery("FROM signup_registrations WHERE code").
			WillReturnRows(sqlmock.NewRows(columnNames).AddRow(registrationRow(t, reg)...))
		mock.ExpectRollback()

		_, err := store.ConsumeCode(context.Background(), "code-1", now, func(context.Context, *models.PendingRegistration) error {
			return boom
		})
		require.ErrorIs(t, err, boom)
		require.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestPostgresReissueRejectsConfirmed(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now().UTC().Truncate(time.Second)
	reg := sampleRegistration(now)
	reg.MarkConfirmed(now)

	mock.ExpectBegin()
	mock.ExpectQuery("FOR UPDATE").
		WithArgs("PRIMARY", "tess").
		WillReturnRows(sqlmock.NewRows(columnNames).AddRow(registrationRow(t, reg)...))
	mock.ExpectRollback()

	_, err := store.ReissueCode(context.Background(), reg.Key(), models.NewConfirmationCode("code-2", now, time.Hour))
	require.ErrorIs(t, err, sentinel.ErrInvalidState)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresDelete(t *testing.T) {
	store, mock := newMockStore(t)
	id := uuid.New()

	mock.ExpectExec("DELETE FROM signup_registrations WHERE id").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := store.Delete(context.Background(), id)
	require.ErrorIs(t, err, sentinel.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresDeleteExpiredReturnsRemovedRows(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	lapsed := sampleRegistration(now.Add(-48 * time.Hour))
	lapsed.Status = models.StatusExpired

	mock.ExpectQuery("DELETE FROM signup_registrations (.+) RETURNING").
		WithArgs(now).
		WillReturnRows(sqlmock.NewRows(columnNames).AddRow(registrationRow(t, lapsed)...))

	removed, err := store.DeleteExpired(context.Background(), now)
	require.NoError(t, err)
	require.Len(t, removed, 1)
	assert.Equal(t, lapsed.ID, removed[0].ID)
	assert.Equal(t, models.StatusExpired, removed[0].Status)
	assert.Equal(t, models.RootDialect, removed[0].Principal.Dialect)
	require.NoError(t, mock.ExpectationsWereMet())
}
