package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	audit "selfsignup/pkg/platform/audit"
)

func TestAppend(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	now := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	userID := uuid.New()
	mock.ExpectExec("INSERT INTO signup_audit_events").
		WithArgs(sqlmock.AnyArg(), now, userID, "PRIMARY", "signup_confirmed", "compliance", "EMAIL", "req-1", "", "").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err = New(db).Append(context.Background(), audit.Event{
		Timestamp: now, UserID: userID, Domain: "PRIMARY",
		Action: audit.ActionConfirmed, Channel: "EMAIL", RequestID: "req-1",
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAppendFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("INSERT INTO signup_audit_events").WillReturnError(errors.New("conn reset"))

	err = New(db).Append(context.Background(), audit.Event{UserID: uuid.New(), Action: audit.ActionConfirmed})
	require.ErrorContains(t, err, "insert audit event")
}

func TestListByUser(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	now := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	userID := uuid.New()
	rows := sqlmock.NewRows([]string{"occurred_at", "user_id", "domain", "action", "channel", "request_id", "actor_id", "ip"}).
		AddRow(now, userID.String(), "PRIMARY", "signup_registered", "NONE", "req-1", "", "10.0.0.1").
		AddRow(now.Add(time.Minute), userID.String(), "PRIMARY", "signup_confirmed", "NONE", "req-2", "", "10.0.0.1")
	mock.ExpectQuery("SELECT occurred_at, user_id").WithArgs(userID).WillReturnRows(rows)

	events, err := New(db).ListByUser(context.Background(), userID)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, audit.ActionConfirmed, events[1].Action)
	assert.Equal(t, "10.0.0.1", events[0].IP)
	require.NoError(t, mock.ExpectationsWereMet())
}
