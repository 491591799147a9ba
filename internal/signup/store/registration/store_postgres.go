package registration

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"selfsignup/internal/signup/models"
	"selfsignup/pkg/platform/sentinel"
	txcontext "selfsignup/pkg/platform/tx"
)

const uniqueViolation = "23505"

const registrationColumns = `id, user_id, domain, principal_uri, principal_value, claims, properties,
	channel, recipient, status, code, code_issued_at, code_expires_at, created_at, updated_at, confirmed_at`

// PostgresStore persists registrations in PostgreSQL. Transitions take a row
// lock with SELECT ... FOR UPDATE; the confirm finalizer runs inside the same
// transaction, so stores that honour txcontext join it.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed registration store.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Create(ctx context.Context, reg *models.PendingRegistration) error {
	claims, err := json.Marshal(reg.Claims)
	if err != nil {
		return fmt.Errorf("encode claims: %w", err)
	}
	props, err := json.Marshal(reg.Properties)
	if err != nil {
		return fmt.Errorf("encode properties: %w", err)
	}

	query := `
		INSERT INTO signup_registrations (` + registrationColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	`
	_, err = txcontext.Or(ctx, s.db).ExecContext(ctx, query,
		reg.ID, reg.UserID, reg.Domain, reg.Principal.Name, reg.Principal.Value,
		claims, props, string(reg.Channel), reg.Recipient, string(reg.Status),
		nullableCode(reg.Code.Value), reg.Code.IssuedAt, reg.Code.ExpiresAt,
		reg.CreatedAt, reg.UpdatedAt, reg.ConfirmedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return fmt.Errorf("registration exists for principal: %w", sentinel.ErrConflict)
		}
		return fmt.Errorf("insert registration: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, id uuid.UUID) (*models.PendingRegistration, error) {
	row := txcontext.Or(ctx, s.db).QueryRowContext(ctx,
		`SELECT `+registrationColumns+` FROM signup_registrations WHERE id = $1`, id)
	return scanRegistration(row)
}

// FindByPrincipal prefers the unfinished registration over confirmed history.
func (s *PostgresStore) FindByPrincipal(ctx context.Context, key models.PrincipalKey) (*models.PendingRegistration, error) {
	row := txcontext.Or(ctx, s.db).QueryRowContext(ctx, `
		SELECT `+registrationColumns+` FROM signup_registrations
		WHERE domain = $1 AND principal_value = $2
		ORDER BY (status = 'CONFIRMED'), created_at DESC
		LIMIT 1`, key.Domain, key.Value)
	return scanRegistration(row)
}

func (s *PostgresStore) ConsumeCode(
	ctx context.Context,
	code string,
	now time.Time,
	finalize func(context.Context, *models.PendingRegistration) error,
) (*models.PendingRegistration, error) {
	var result *models.PendingRegistration
	var outcome error

	err := txcontext.Run(ctx, s.db, func(ctx context.Context, tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx,
			`SELECT `+registrationColumns+` FROM signup_registrations WHERE code = $1 FOR UPDATE`, code)
		rec, err := scanRegistration(row)
		if err != nil {
			return err
		}

		if err := rec.ValidateForConfirm(code, now); err != nil {
			result, outcome = rec, err
			if !errors.Is(err, sentinel.ErrExpired) || rec.Status != models.StatusPending {
				return nil
			}
			rec.MarkExpired(now)
			_, err = tx.ExecContext(ctx,
				`UPDATE signup_registrations SET status = $2, updated_at = $3 WHERE id = $1`,
				rec.ID, string(rec.Status), rec.UpdatedAt)
			if err != nil {
				return fmt.Errorf("mark registration expired: %w", err)
			}
			return nil
		}

		if finalize != nil {
			if err := finalize(ctx, rec.Clone()); err != nil {
				return err
			}
		}

		rec.MarkConfirmed(now)
		_, err = tx.ExecContext(ctx, `
			UPDATE signup_registrations
			SET status = $2, code = NULL, confirmed_at = $3, updated_at = $3
			WHERE id = $1`, rec.ID, string(rec.Status), now)
		if err != nil {
			return fmt.Errorf("confirm registration: %w", err)
		}
		result = rec
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, outcome
}

func (s *PostgresStore) ReissueCode(ctx context.Context, key models.PrincipalKey, code models.ConfirmationCode) (*models.PendingRegistration, error) {
	var result *models.PendingRegistration
	err := txcontext.Run(ctx, s.db, func(ctx context.Context, tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx, `
			SELECT `+registrationColumns+` FROM signup_registrations
			WHERE domain = $1 AND principal_value = $2
			ORDER BY (status = 'CONFIRMED'), created_at DESC
			LIMIT 1
			FOR UPDATE`, key.Domain, key.Value)
		rec, err := scanRegistration(row)
		if err != nil {
			return err
		}
		if err := rec.Reissue(code); err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `
			UPDATE signup_registrations
			SET status = $2, code = $3, code_issued_at = $4, code_expires_at = $5, updated_at = $6
			WHERE id = $1`,
			rec.ID, string(rec.Status), rec.Code.Value, rec.Code.IssuedAt, rec.Code.ExpiresAt, rec.UpdatedAt)
		if err != nil {
			var pqErr *pq.Error
			if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
				return fmt.Errorf("confirmation code collision: %w", sentinel.ErrConflict)
			}
			return fmt.Errorf("reissue code: %w", err)
		}
		result = rec
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *PostgresStore) Delete(ctx context.Context, id uuid.UUID) error {
	res, err := txcontext.Or(ctx, s.db).ExecContext(ctx, `DELETE FROM signup_registrations WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete registration: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete registration: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("registration not found: %w", sentinel.ErrNotFound)
	}
	return nil
}

func (s *PostgresStore) DeleteExpired(ctx context.Context, before time.Time) ([]*models.PendingRegistration, error) {
	rows, err := txcontext.Or(ctx, s.db).QueryContext(ctx, `
		DELETE FROM signup_registrations
		WHERE (status = 'CONFIRMED' AND confirmed_at < $1)
		   OR (status <> 'CONFIRMED' AND code_expires_at < $1)
		RETURNING `+registrationColumns, before)
	if err != nil {
		return nil, fmt.Errorf("delete expired registrations: %w", err)
	}
	defer rows.Close()

	removed := make([]*models.PendingRegistration, 0)
	for rows.Next() {
		rec, err := scanRegistration(rows)
		if err != nil {
			return nil, err
		}
		removed = append(removed, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate expired registrations: %w", err)
	}
	return removed, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRegistration(row rowScanner) (*models.PendingRegistration, error) {
	var (
		rec         models.PendingRegistration
		claims      []byte
		props       []byte
		channel     string
		status      string
		code        sql.NullString
		confirmedAt sql.NullTime
	)
	err := row.Scan(
		&rec.ID, &rec.UserID, &rec.Domain, &rec.Principal.Name, &rec.Principal.Value,
		&claims, &props, &channel, &rec.Recipient, &status,
		&code, &rec.Code.IssuedAt, &rec.Code.ExpiresAt,
		&rec.CreatedAt, &rec.UpdatedAt, &confirmedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("registration not found: %w", sentinel.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("scan registration: %w", err)
	}
	if err := json.Unmarshal(claims, &rec.Claims); err != nil {
		return nil, fmt.Errorf("decode claims: %w", err)
	}
	if err := json.Unmarshal(props, &rec.Properties); err != nil {
		return nil, fmt.Errorf("decode properties: %w", err)
	}
	rec.Principal.Dialect = models.RootDialect
	rec.Channel = models.Channel(channel)
	rec.Status = models.Status(status)
	if code.Valid {
		rec.Code.Value = code.String
	} else {
		rec.Code = models.ConfirmationCode{}
	}
	if confirmedAt.Valid {
		t := confirmedAt.Time
		rec.ConfirmedAt = &t
	}
	return &rec, nil
}

func nullableCode(code string) sql.NullString {
	return sql.NullString{String: code, Valid: code != ""}
}
