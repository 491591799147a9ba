package store

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/google/uuid"

	"selfsignup/internal/identity/models"
	"selfsignup/internal/identity/secrets"
	signup "selfsignup/internal/signup/models"
	"selfsignup/pkg/platform/sentinel"
)

type account struct {
	user   models.User
	hashes map[string][]byte
}

type nameKey struct {
	domain   string
	username string
}

// InMemoryStore is an in-process user store serving a fixed set of domains.
type InMemoryStore struct {
	mu      sync.RWMutex
	domains map[string]struct{}
	users   map[uuid.UUID]*account
	byName  map[nameKey]uuid.UUID
	opts    options
}

// NewInMemory serves the given domains.
func NewInMemory(domains []string, opts ...Option) *InMemoryStore {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	s := &InMemoryStore{
		domains: make(map[string]struct{}, len(domains)),
		users:   make(map[uuid.UUID]*account),
		byName:  make(map[nameKey]uuid.UUID),
		opts:    o,
	}
	for _, d := range domains {
		s.domains[d] = struct{}{}
	}
	return s
}

// CreatePending hashes the credentials and stores a PENDING account.
func (s *InMemoryStore) CreatePending(ctx context.Context, acc models.NewAccount) (*models.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if _, ok := s.domains[acc.Domain]; !ok {
		return nil, fmt.Errorf("domain %q: %w", acc.Domain, ErrUnknownDomain)
	}
	hashes, err := hashCredentials(s.opts.hasher, acc.Credentials)
	if err != nil {
		return nil, err
	}

	now := s.opts.clock()
	user := models.User{
		ID:        uuid.New(),
		Domain:    acc.Domain,
		Username:  acc.Username,
		Status:    models.AccountPending,
		Claims:    slices.Clone(acc.Claims),
		CreatedAt: now,
		UpdatedAt: now,
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	key := nameKey{domain: acc.Domain, username: acc.Username}
	if _, taken := s.byName[key]; taken {
		return nil, fmt.Errorf("username taken in domain %q: %w", acc.Domain, sentinel.ErrConflict)
	}
	s.users[user.ID] = &account{user: user, hashes: hashes}
	s.byName[key] = user.ID
	return cloneUser(&user), nil
}

// Activate clears the pending marker. Activating an active account is a no-op.
func (s *InMemoryStore) Activate(ctx context.Context, id uuid.UUID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	acc, ok := s.users[id]
	if !ok {
		return fmt.Errorf("user %s: %w", id, sentinel.ErrNotFound)
	}
	if acc.user.Status != models.AccountActive {
		acc.user.Status = models.AccountActive
		acc.user.UpdatedAt = s.opts.clock()
	}
	return nil
}

func (s *InMemoryStore) Delete(ctx context.Context, id uuid.UUID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	acc, ok := s.users[id]
	if !ok {
		return fmt.Errorf("user %s: %w", id, sentinel.ErrNotFound)
	}
	delete(s.users, id)
	delete(s.byName, nameKey{domain: acc.user.Domain, username: acc.user.Username})
	return nil
}

// DeletePending removes the account only while it still awaits
// confirmation. Active accounts yield sentinel.ErrInvalidState.
func (s *InMemoryStore) DeletePending(ctx context.Context, id uuid.UUID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	acc, ok := s.users[id]
	if !ok {
		return fmt.Errorf("user %s: %w", id, sentinel.ErrNotFound)
	}
	if !acc.user.IsPending() {
		return fmt.Errorf("user %s is %s: %w", id, acc.user.Status, sentinel.ErrInvalidState)
	}
	delete(s.users, id)
	delete(s.byName, nameKey{domain: acc.user.Domain, username: acc.user.Username})
	return nil
}

func (s *InMemoryStore) GetUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	acc, ok := s.users[id]
	if !ok {
		return nil, fmt.Errorf("user %s: %w", id, sentinel.ErrNotFound)
	}
	return cloneUser(&acc.user), nil
}

// GetClaims returns the user's claims restricted to uris (all when empty),
// in the order they were registered.
func (s *InMemoryStore) GetClaims(ctx context.Context, id uuid.UUID, uris ...string) ([]signup.Claim, error) {
	user, err := s.GetUser(ctx, id)
	if err != nil {
		return nil, err
	}
	return filterClaims(user.Claims, uris), nil
}

// authenticate checks a credential for an active account.
func (s *InMemoryStore) authenticate(ctx context.Context, domain, username string, cred signup.Credential) (*models.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	id, ok := s.byName[nameKey{domain: domain, username: username}]
	var acc account
	if ok {
		acc = *s.users[id]
	}
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("user %q: %w", username, sentinel.ErrNotFound)
	}
	if acc.user.IsPending() {
		return nil, fmt.Errorf("account pending confirmation: %w", sentinel.ErrInvalidState)
	}
	hash, ok := acc.hashes[cred.Type]
	if !ok {
		return nil, fmt.Errorf("no %s credential: %w", cred.Type, sentinel.ErrNotFound)
	}
	match, err := secrets.Verify(cred.Secret(), hash)
	if err != nil {
		return nil, err
	}
	if !match {
		return nil, fmt.Errorf("credential mismatch: %w", sentinel.ErrNotFound)
	}
	return cloneUser(&acc.user), nil
}

func cloneUser(u *models.User) *models.User {
	c := *u
	c.Claims = slices.Clone(u.Claims)
	return &c
}
