package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"selfsignup/internal/identity/models"
	"selfsignup/internal/identity/secrets"
	signup "selfsignup/internal/signup/models"
	"selfsignup/pkg/platform/sentinel"
	txcontext "selfsignup/pkg/platform/tx"
)

const uniqueViolation = "23505"

// PostgresStore keeps accounts in identity_users with their claims and
// credential hashes in side tables. Writes join a transaction carried by ctx,
// which lets activation commit together with the registration it confirms.
type PostgresStore struct {
	db      *sql.DB
	domains map[string]struct{}
	opts    options
}

func NewPostgres(db *sql.DB, domains []string, opts ...Option) *PostgresStore {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	s := &PostgresStore{db: db, domains: make(map[string]struct{}, len(domains)), opts: o}
	for _, d := range domains {
		s.domains[d] = struct{}{}
	}
	return s
}

func (s *PostgresStore) CreatePending(ctx context.Context, acc models.NewAccount) (*models.User, error) {
	if _, ok := s.domains[acc.Domain]; !ok {
		return nil, fmt.Errorf("domain %q: %w", acc.Domain, ErrUnknownDomain)
	}
	hashes, err := hashCredentials(s.opts.hasher, acc.Credentials)
	if err != nil {
		return nil, err
	}

	now := s.opts.clock()
	user := &models.User{
		ID:        uuid.New(),
		Domain:    acc.Domain,
		Username:  acc.Username,
		Status:    models.AccountPending,
		Claims:    acc.Claims,
		CreatedAt: now,
		UpdatedAt: now,
	}

	err = txcontext.Run(ctx, s.db, func(ctx context.Context, tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO identity_users (id, domain, username, status, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			user.ID, user.Domain, user.Username, string(user.Status), user.CreatedAt, user.UpdatedAt)
		if err != nil {
			var pqErr *pq.Error
			if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
				return fmt.Errorf("username taken in domain %q: %w", acc.Domain, sentinel.ErrConflict)
			}
			return fmt.Errorf("insert user: %w", err)
		}
		for i, c := range acc.Claims {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO identity_claims (user_id, position, claim_uri, value) VALUES ($1, $2, $3, $4)`,
				user.ID, i, c.Name, c.Value); err != nil {
				return fmt.Errorf("insert claim %s: %w", c.Name, err)
			}
		}
		for kind, hash := range hashes {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO identity_credentials (user_id, type, hash) VALUES ($1, $2, $3)`,
				user.ID, kind, hash); err != nil {
				return fmt.Errorf("insert credential: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return user, nil
}

func (s *PostgresStore) Activate(ctx context.Context, id uuid.UUID) error {
	res, err := txcontext.Or(ctx, s.db).ExecContext(ctx,
		`UPDATE identity_users SET status = $2, updated_at = $3 WHERE id = $1`,
		id, string(models.AccountActive), s.opts.clock())
	if err != nil {
		return fmt.Errorf("activate user: %w", err)
	}
	return requireRow(res, id)
}

func (s *PostgresStore) Delete(ctx context.Context, id uuid.UUID) error {
	res, err := txcontext.Or(ctx, s.db).ExecContext(ctx, `DELETE FROM identity_users WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	return requireRow(res, id)
}

// DeletePending removes the account only while its status is still
// pending. Active accounts yield sentinel.ErrInvalidState.
func (s *PostgresStore) DeletePending(ctx context.Context, id uuid.UUID) error {
	res, err := txcontext.Or(ctx, s.db).ExecContext(ctx,
		`DELETE FROM identity_users WHERE id = $1 AND status = $2`, id, string(models.AccountPending))
	if err != nil {
		return fmt.Errorf("delete pending user: %w", err)
	}
	if err := requireRow(res, id); err == nil || !errors.Is(err, sentinel.ErrNotFound) {
		return err
	}
	user, err := s.getUserRow(ctx, id)
	if err != nil {
		return err
	}
	return fmt.Errorf("user %s is %s: %w", id, user.Status, sentinel.ErrInvalidState)
}

func (s *PostgresStore) GetUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	user, err := s.getUserRow(ctx, id)
	if err != nil {
		return nil, err
	}
	user.Claims, err = s.queryClaims(ctx, id, nil)
	if err != nil {
		return nil, err
	}
	return user, nil
}

func (s *PostgresStore) GetClaims(ctx context.Context, id uuid.UUID, uris ...string) ([]signup.Claim, error) {
	if _, err := s.getUserRow(ctx, id); err != nil {
		return nil, err
	}
	return s.queryClaims(ctx, id, uris)
}

func (s *PostgresStore) authenticate(ctx context.Context, domain, username string, cred signup.Credential) (*models.User, error) {
	var (
		id     uuid.UUID
		status string
		hash   []byte
	)
	err := txcontext.Or(ctx, s.db).QueryRowContext(ctx, `
		SELECT u.id, u.status, c.hash
		FROM identity_users u
		JOIN identity_credentials c ON c.user_id = u.id AND c.type = $3
		WHERE u.domain = $1 AND u.username = $2`, domain, username, cred.Type).Scan(&id, &status, &hash)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("user %q: %w", username, sentinel.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load credential: %w", err)
	}
	if models.AccountStatus(status) == models.AccountPending {
		return nil, fmt.Errorf("account pending confirmation: %w", sentinel.ErrInvalidState)
	}
	match, err := secrets.Verify(cred.Secret(), hash)
	if err != nil {
		return nil, err
	}
	if !match {
		return nil, fmt.Errorf("credential mismatch: %w", sentinel.ErrNotFound)
	}
	return s.GetUser(ctx, id)
}

func (s *PostgresStore) getUserRow(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var (
		user   models.User
		status string
	)
	err := txcontext.Or(ctx, s.db).QueryRowContext(ctx, `
		SELECT id, domain, username, status, created_at, updated_at
		FROM identity_users WHERE id = $1`, id).
		Scan(&user.ID, &user.Domain, &user.Username, &status, &user.CreatedAt, &user.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("user %s: %w", id, sentinel.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load user: %w", err)
	}
	user.Status = models.AccountStatus(status)
	return &user, nil
}

func (s *PostgresStore) queryClaims(ctx context.Context, id uuid.UUID, uris []string) ([]signup.Claim, error) {
	query := `SELECT claim_uri, value FROM identity_claims WHERE user_id = $1`
	args := []any{id}
	if len(uris) > 0 {
		query += ` AND claim_uri = ANY($2)`
		args = append(args, pq.Array(uris))
	}
	query += ` ORDER BY position`

	rows, err := txcontext.Or(ctx, s.db).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query claims: %w", err)
	}
	defer rows.Close()

	claims := make([]signup.Claim, 0)
	for rows.Next() {
		var name, value string
		if err := rows.Scan(&name, &value); err != nil {
			return nil, fmt.Errorf("scan claim: %w", err)
		}
		claims = append(claims, signup.NewClaim(name, value))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate claims: %w", err)
	}
	return claims, nil
}

func requireRow(res sql.Result, id uuid.UUID) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("user %s: %w", id, sentinel.ErrNotFound)
	}
	return nil
}
