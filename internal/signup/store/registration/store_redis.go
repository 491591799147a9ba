package registration

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"selfsignup/internal/signup/models"
	"selfsignup/pkg/platform/sentinel"
)

const (
	registrationKeyPrefix = "signup:reg:"
	codeKeyPrefix         = "signup:code:"
	principalKeyPrefix    = "signup:principal:"
	// Sorted set of registration ids scored by the unix time after which the
	// record becomes purgeable (code expiry, or confirmation time).
	expiryIndexKey = "signup:expiry"

	// maxTxAttempts bounds optimistic retries when a watched key changes
	// under us.
	maxTxAttempts = 5
)

// RedisStore is a Redis-backed registration store for multi-instance
// deployments. Every transition is a WATCH/MULTI compare-and-swap on the
// registration key, so concurrent confirm and resend calls on the same
// registration serialize without a process-local lock.
type RedisStore struct {
	client *redis.Client
}

// NewRedis constructs a RedisStore over an already configured client. The
// client lifecycle is managed by the caller.
func NewRedis(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func registrationKey(id uuid.UUID) string { return registrationKeyPrefix + id.String() }
func codeKey(code string) string          { return codeKeyPrefix + code }
func principalKey(key models.PrincipalKey) string {
	return principalKeyPrefix + key.Domain + ":" + key.Value
}

func (s *RedisStore) Create(ctx context.Context, reg *models.PendingRegistration) error {
	pk := principalKey(reg.Key())
	ck := codeKey(reg.Code.Value)
	payload, err := json.Marshal(reg)
	if err != nil {
		return fmt.Errorf("encode registration: %w", err)
	}

	txf := func(tx *redis.Tx) error {
		var replaced *models.PendingRegistration
		existingID, err := tx.Get(ctx, pk).Result()
		switch {
		case errors.Is(err, redis.Nil):
		case err != nil:
			return fmt.Errorf("lookup principal: %w", err)
		default:
			id, parseErr := uuid.Parse(existingID)
			if parseErr != nil {
				return fmt.Errorf("corrupt principal index %s: %w", pk, parseErr)
			}
			existing, getErr := s.load(ctx, tx, id)
			if getErr != nil && !errors.Is(getErr, sentinel.ErrNotFound) {
				return getErr
			}
			if existing != nil && existing.Status != models.StatusConfirmed {
				return fmt.Errorf("registration pending for principal: %w", sentinel.ErrConflict)
			}
			replaced = existing
		}

		taken, err := tx.Exists(ctx, ck).Result()
		if err != nil {
			return fmt.Errorf("lookup code: %w", err)
		}
		if taken > 0 {
			return fmt.Errorf("confirmation code collision: %w", sentinel.ErrConflict)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			if replaced != nil {
				pipe.Del(ctx, registrationKey(replaced.ID))
				pipe.ZRem(ctx, expiryIndexKey, replaced.ID.String())
			}
			pipe.Set(ctx, registrationKey(reg.ID), payload, 0)
			pipe.Set(ctx, ck, reg.ID.String(), 0)
			pipe.Set(ctx, pk, reg.ID.String(), 0)
			pipe.ZAdd(ctx, expiryIndexKey, redis.Z{Score: purgeScore(reg), Member: reg.ID.String()})
			return nil
		})
		return err
	}

	err = s.client.Watch(ctx, txf, pk, ck)
	if errors.Is(err, redis.TxFailedErr) {
		// Someone else wrote the principal or code between our read and exec.
		return fmt.Errorf("concurrent registration for principal: %w", sentinel.ErrConflict)
	}
	return err
}

func (s *RedisStore) FindByID(ctx context.Context, id uuid.UUID) (*models.PendingRegistration, error) {
	return s.load(ctx, s.client, id)
}

func (s *RedisStore) FindByPrincipal(ctx context.Context, key models.PrincipalKey) (*models.PendingRegistration, error) {
	id, err := s.resolve(ctx, s.client, principalKey(key))
	if err != nil {
		return nil, err
	}
	return s.load(ctx, s.client, id)
}

// ConsumeCode confirms the registration bound to code. finalize runs while
// the registration and code keys are watched; a failed finalize leaves the
// record untouched. Once finalize has succeeded the confirmation is settled
// even if a concurrent resend or delete beats the first write.
func (s *RedisStore) ConsumeCode(
	ctx context.Context,
	code string,
	now time.Time,
	finalize func(context.Context, *models.PendingRegistration) error,
) (*models.PendingRegistration, error) {
	ck := codeKey(code)
	for attempt := 0; attempt < maxTxAttempts; attempt++ {
		id, err := s.resolve(ctx, s.client, ck)
		if err != nil {
			return nil, err
		}
		rk := registrationKey(id)

		var result, finalized *models.PendingRegistration
		var outcome error
		txf := func(tx *redis.Tx) error {
			rec, err := s.load(ctx, tx, id)
			if err != nil {
				return err
			}
			if err := rec.ValidateForConfirm(code, now); err != nil {
				outcome = err
				result = rec
				if !errors.Is(err, sentinel.ErrExpired) || rec.Status != models.StatusPending {
					return nil
				}
				rec.MarkExpired(now)
				return s.write(ctx, tx, func(pipe redis.Pipeliner) error {
					return setRecord(ctx, pipe, rec)
				})
			}

			if finalize != nil {
				if err := finalize(ctx, rec.Clone()); err != nil {
					return err
				}
			}
			finalized = rec.Clone()

			rec.MarkConfirmed(now)
			result = rec
			return s.write(ctx, tx, func(pipe redis.Pipeliner) error {
				if err := setRecord(ctx, pipe, rec); err != nil {
					return err
				}
				pipe.Del(ctx, ck)
				pipe.ZAdd(ctx, expiryIndexKey, redis.Z{Score: purgeScore(rec), Member: rec.ID.String()})
				return nil
			})
		}

		err = s.client.Watch(ctx, txf, rk, ck)
		if errors.Is(err, redis.TxFailedErr) {
			if finalized != nil {
				return s.settleConfirmed(ctx, finalized, ck, now)
			}
			continue
		}
		if err != nil {
			return nil, err
		}
		return result, outcome
	}
	return nil, fmt.Errorf("consume code: too much contention: %w", sentinel.ErrUnavailable)
}

// settleConfirmed moves a registration whose finalize already ran to
// CONFIRMED, retiring whatever code it holds by now. A record deleted in the
// meantime is reported as confirmed from the finalized snapshot; one already
// confirmed by another caller yields sentinel.ErrNotFound.
func (s *RedisStore) settleConfirmed(ctx context.Context, finalized *models.PendingRegistration, ck string, now time.Time) (*models.PendingRegistration, error) {
	rk := registrationKey(finalized.ID)
	for attempt := 0; attempt < maxTxAttempts; attempt++ {
		var result *models.PendingRegistration
		txf := func(tx *redis.Tx) error {
			rec, err := s.load(ctx, tx, finalized.ID)
			if errors.Is(err, sentinel.ErrNotFound) {
				result = finalized.Clone()
				result.MarkConfirmed(now)
				return nil
			}
			if err != nil {
				return err
			}
			if rec.Status == models.StatusConfirmed {
				return fmt.Errorf("registration already confirmed: %w", sentinel.ErrNotFound)
			}
			live := rec.Code.Value
			rec.MarkConfirmed(now)
			result = rec
			return s.write(ctx, tx, func(pipe redis.Pipeliner) error {
				if err := setRecord(ctx, pipe, rec); err != nil {
					return err
				}
				pipe.Del(ctx, ck)
				if live != "" {
					pipe.Del(ctx, codeKey(live))
				}
				pipe.ZAdd(ctx, expiryIndexKey, redis.Z{Score: purgeScore(rec), Member: rec.ID.String()})
				return nil
			})
		}
		err := s.client.Watch(ctx, txf, rk)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return result, nil
	}
	return nil, fmt.Errorf("settle confirmation: too much contention: %w", sentinel.ErrUnavailable)
}

func (s *RedisStore) ReissueCode(ctx context.Context, key models.PrincipalKey, code models.ConfirmationCode) (*models.PendingRegistration, error) {
	pk := principalKey(key)
	newCK := codeKey(code.Value)
	for attempt := 0; attempt < maxTxAttempts; attempt++ {
		id, err := s.resolve(ctx, s.client, pk)
		if err != nil {
			return nil, err
		}
		rk := registrationKey(id)

		var result *models.PendingRegistration
		txf := func(tx *redis.Tx) error {
			rec, err := s.load(ctx, tx, id)
			if err != nil {
				return err
			}
			oldCode := rec.Code.Value
			if err := rec.Reissue(code); err != nil {
				return err
			}
			taken, err := tx.Exists(ctx, newCK).Result()
			if err != nil {
				return fmt.Errorf("lookup code: %w", err)
			}
			if taken > 0 {
				return fmt.Errorf("confirmation code collision: %w", sentinel.ErrConflict)
			}
			result = rec
			return s.write(ctx, tx, func(pipe redis.Pipeliner) error {
				if err := setRecord(ctx, pipe, rec); err != nil {
					return err
				}
				if oldCode != "" {
					pipe.Del(ctx, codeKey(oldCode))
				}
				pipe.Set(ctx, newCK, rec.ID.String(), 0)
				pipe.ZAdd(ctx, expiryIndexKey, redis.Z{Score: purgeScore(rec), Member: rec.ID.String()})
				return nil
			})
		}

		err = s.client.Watch(ctx, txf, rk, pk, newCK)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return result, nil
	}
	return nil, fmt.Errorf("reissue code: too much contention: %w", sentinel.ErrUnavailable)
}

func (s *RedisStore) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := s.remove(ctx, id, func(*models.PendingRegistration) bool { return true })
	return err
}

func (s *RedisStore) DeleteExpired(ctx context.Context, before time.Time) ([]*models.PendingRegistration, error) {
	members, err := s.client.ZRangeByScore(ctx, expiryIndexKey, &redis.ZRangeBy{
		Min: "-inf",
		Max: fmt.Sprintf("(%d", before.Unix()),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("scan expiry index: %w", err)
	}

	removed := make([]*models.PendingRegistration, 0, len(members))
	for _, member := range members {
		id, err := uuid.Parse(member)
		if err != nil {
			s.client.ZRem(ctx, expiryIndexKey, member)
			continue
		}
		rec, err := s.remove(ctx, id, func(r *models.PendingRegistration) bool { return Purgeable(r, before) })
		switch {
		case errors.Is(err, sentinel.ErrNotFound):
			s.client.ZRem(ctx, expiryIndexKey, member)
		case err != nil:
			return removed, err
		case rec != nil:
			removed = append(removed, rec)
		}
	}
	return removed, nil
}

// remove deletes the registration and its index entries when match accepts
// the current record. It returns the removed record, or nil when match
// declined.
func (s *RedisStore) remove(ctx context.Context, id uuid.UUID, match func(*models.PendingRegistration) bool) (*models.PendingRegistration, error) {
	rk := registrationKey(id)
	for attempt := 0; attempt < maxTxAttempts; attempt++ {
		var removed *models.PendingRegistration
		txf := func(tx *redis.Tx) error {
			rec, err := s.load(ctx, tx, id)
			if err != nil {
				return err
			}
			if !match(rec) {
				return nil
			}
			pk := principalKey(rec.Key())
			owner, err := tx.Get(ctx, pk).Result()
			if err != nil && !errors.Is(err, redis.Nil) {
				return fmt.Errorf("lookup principal: %w", err)
			}
			removed = rec
			return s.write(ctx, tx, func(pipe redis.Pipeliner) error {
				pipe.Del(ctx, rk)
				if rec.Code.Value != "" {
					pipe.Del(ctx, codeKey(rec.Code.Value))
				}
				if owner == id.String() {
					pipe.Del(ctx, pk)
				}
				pipe.ZRem(ctx, expiryIndexKey, id.String())
				return nil
			})
		}
		err := s.client.Watch(ctx, txf, rk)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return removed, err
	}
	return nil, fmt.Errorf("delete registration: too much contention: %w", sentinel.ErrUnavailable)
}

// reader is satisfied by both *redis.Client and *redis.Tx.
type reader interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func (s *RedisStore) write(ctx context.Context, tx *redis.Tx, fn func(redis.Pipeliner) error) error {
	_, err := tx.TxPipelined(ctx, fn)
	return err
}

func (s *RedisStore) resolve(ctx context.Context, c reader, key string) (uuid.UUID, error) {
	raw, err := c.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return uuid.Nil, fmt.Errorf("registration not found: %w", sentinel.ErrNotFound)
	}
	if err != nil {
		return uuid.Nil, fmt.Errorf("resolve %s: %w", key, err)
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("corrupt index %s: %w", key, err)
	}
	return id, nil
}

func (s *RedisStore) load(ctx context.Context, c reader, id uuid.UUID) (*models.PendingRegistration, error) {
	raw, err := c.Get(ctx, registrationKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("registration not found: %w", sentinel.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load registration: %w", err)
	}
	var rec models.PendingRegistration
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("decode registration %s: %w", id, err)
	}
	return &rec, nil
}

func setRecord(ctx context.Context, pipe redis.Pipeliner, rec *models.PendingRegistration) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode registration: %w", err)
	}
	pipe.Set(ctx, registrationKey(rec.ID), payload, 0)
	return nil
}

func purgeScore(rec *models.PendingRegistration) float64 {
	if rec.Status == models.StatusConfirmed && rec.ConfirmedAt != nil {
		return float64(rec.ConfirmedAt.Unix())
	}
	return float64(rec.Code.ExpiresAt.Unix())
}
