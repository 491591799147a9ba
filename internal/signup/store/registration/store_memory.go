package registration

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"github.com/google/uuid"

	"selfsignup/internal/signup/models"
	"selfsignup/pkg/platform/sentinel"
)

// Error Contract:
// All store methods follow this error pattern:
// - Return sentinel.ErrNotFound when the code, principal or id is unknown
// - Return sentinel.ErrExpired (with the expired record) when a code is past its TTL
// - Return sentinel.ErrConflict when a live registration already holds the principal
// - Return sentinel.ErrInvalidState for transitions the record's status forbids
// - Return wrapped errors with context for infrastructure failures

// numShards bounds how many registrations can be mutated at the same time.
// Registrations hashing to different shards never wait on each other.
const numShards = 128

// InMemoryStore keeps registrations in memory for tests and single-node setups.
//
// Published records are immutable: a mutation clones the current record under
// its shard lock, edits the clone and swaps it in under mu. mu only guards the
// maps, so lookups never wait on another registration's transition.
type InMemoryStore struct {
	mu          sync.RWMutex
	records     map[uuid.UUID]*models.PendingRegistration
	byCode      map[string]uuid.UUID
	byPrincipal map[models.PrincipalKey]uuid.UUID

	shards [numShards]sync.Mutex
}

// NewInMemory constructs an empty store.
func NewInMemory() *InMemoryStore {
	return &InMemoryStore{
		records:     make(map[uuid.UUID]*models.PendingRegistration),
		byCode:      make(map[string]uuid.UUID),
		byPrincipal: make(map[models.PrincipalKey]uuid.UUID),
	}
}

func (s *InMemoryStore) Create(ctx context.Context, reg *models.PendingRegistration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if existingID, ok := s.byPrincipal[reg.Key()]; ok {
		existing := s.records[existingID]
		if existing != nil && existing.Status != models.StatusConfirmed {
			return fmt.Errorf("registration pending for principal: %w", sentinel.ErrConflict)
		}
		s.removeLocked(existingID)
	}
	if _, ok := s.byCode[reg.Code.Value]; ok {
		return fmt.Errorf("confirmation code collision: %w", sentinel.ErrConflict)
	}

	rec := reg.Clone()
	s.records[rec.ID] = rec
	s.byCode[rec.Code.Value] = rec.ID
	s.byPrincipal[rec.Key()] = rec.ID
	return nil
}

func (s *InMemoryStore) FindByID(ctx context.Context, id uuid.UUID) (*models.PendingRegistration, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if rec, ok := s.records[id]; ok {
		return rec.Clone(), nil
	}
	return nil, fmt.Errorf("registration not found: %w", sentinel.ErrNotFound)
}

func (s *InMemoryStore) FindByPrincipal(ctx context.Context, key models.PrincipalKey) (*models.PendingRegistration, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if id, ok := s.byPrincipal[key]; ok {
		return s.records[id].Clone(), nil
	}
	return nil, fmt.Errorf("registration not found: %w", sentinel.ErrNotFound)
}

// ConsumeCode confirms the registration bound to code. finalize runs inside
// the registration's exclusive section before the transition is published;
// if it fails nothing changes and the code stays live.
func (s *InMemoryStore) ConsumeCode(
	ctx context.Context,
	code string,
	now time.Time,
	finalize func(context.Context, *models.PendingRegistration) error,
) (*models.PendingRegistration, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	id, ok := s.byCode[code]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("confirmation code not found: %w", sentinel.ErrNotFound)
	}

	unlock := s.lockShard(id)
	defer unlock()

	s.mu.RLock()
	cur := s.records[id]
	s.mu.RUnlock()
	if cur == nil {
		return nil, fmt.Errorf("confirmation code not found: %w", sentinel.ErrNotFound)
	}

	rec := cur.Clone()
	if err := rec.ValidateForConfirm(code, now); err != nil {
		if errors.Is(err, sentinel.ErrExpired) && rec.Status == models.StatusPending {
			rec.MarkExpired(now)
			s.mu.Lock()
			s.records[id] = rec
			s.mu.Unlock()
		}
		return rec.Clone(), err
	}

	if finalize != nil {
		if err := finalize(ctx, rec.Clone()); err != nil {
			return nil, err
		}
	}

	rec.MarkConfirmed(now)
	s.mu.Lock()
	s.records[id] = rec
	delete(s.byCode, code)
	s.mu.Unlock()
	return rec.Clone(), nil
}

// ReissueCode binds a fresh code to the registration held by key. The
// previous code stops resolving in the same step.
func (s *InMemoryStore) ReissueCode(ctx context.Context, key models.PrincipalKey, code models.ConfirmationCode) (*models.PendingRegistration, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	id, ok := s.byPrincipal[key]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("registration not found: %w", sentinel.ErrNotFound)
	}

	unlock := s.lockShard(id)
	defer unlock()

	s.mu.RLock()
	cur := s.records[id]
	s.mu.RUnlock()
	if cur == nil {
		return nil, fmt.Errorf("registration not found: %w", sentinel.ErrNotFound)
	}

	rec := cur.Clone()
	if err := rec.Reissue(code); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, taken := s.byCode[code.Value]; taken {
		return nil, fmt.Errorf("confirmation code collision: %w", sentinel.ErrConflict)
	}
	s.records[id] = rec
	if cur.Code.Value != "" {
		delete(s.byCode, cur.Code.Value)
	}
	s.byCode[code.Value] = id
	return rec.Clone(), nil
}

func (s *InMemoryStore) Delete(ctx context.Context, id uuid.UUID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	unlock := s.lockShard(id)
	defer unlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[id]; !ok {
		return fmt.Errorf("registration not found: %w", sentinel.ErrNotFound)
	}
	s.removeLocked(id)
	return nil
}

// DeleteExpired removes registrations that finished (confirmed) or lapsed
// (code expired) before the cutoff and returns what was removed.
func (s *InMemoryStore) DeleteExpired(ctx context.Context, before time.Time) ([]*models.PendingRegistration, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	candidates := make([]uuid.UUID, 0)
	for id, rec := range s.records {
		if Purgeable(rec, before) {
			candidates = append(candidates, id)
		}
	}
	s.mu.RUnlock()

	removed := make([]*models.PendingRegistration, 0, len(candidates))
	for _, id := range candidates {
		unlock := s.lockShard(id)
		s.mu.Lock()
		if rec, ok := s.records[id]; ok && Purgeable(rec, before) {
			s.removeLocked(id)
			removed = append(removed, rec.Clone())
		}
		s.mu.Unlock()
		unlock()
	}
	return removed, nil
}

// Purgeable reports whether rec may be dropped at cutoff.
func Purgeable(rec *models.PendingRegistration, before time.Time) bool {
	if rec.Status == models.StatusConfirmed {
		return rec.ConfirmedAt != nil && rec.ConfirmedAt.Before(before)
	}
	return rec.Code.ExpiresAt.Before(before)
}

func (s *InMemoryStore) removeLocked(id uuid.UUID) {
	rec, ok := s.records[id]
	if !ok {
		return
	}
	delete(s.records, id)
	if rec.Code.Value != "" && s.byCode[rec.Code.Value] == id {
		delete(s.byCode, rec.Code.Value)
	}
	if s.byPrincipal[rec.Key()] == id {
		delete(s.byPrincipal, rec.Key())
	}
}

func (s *InMemoryStore) lockShard(id uuid.UUID) func() {
	h := fnv.New32a()
	_, _ = h.Write(id[:])
	m := &s.shards[h.Sum32()%numShards]
	m.Lock()
	return m.Unlock
}
