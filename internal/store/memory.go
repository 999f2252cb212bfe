package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"secure.share/emergency/internal/models"
)

// Compile-time interface check
var _ Backend = (*MemoryStore)(nil)

type MemoryStore struct {
	mu      sync.RWMutex
	rows    map[string]*models.EmergencyAccess
	pairs   map[pair]string
	users   map[string]*models.User
	byEmail map[string]string
	now     func() time.Time
}

type pair struct {
	grantor string
	grantee string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		rows:    make(map[string]*models.EmergencyAccess),
		pairs:   make(map[pair]string),
		users:   make(map[string]*models.User),
		byEmail: make(map[string]string),
		now:     time.Now,
	}
}

func (s *MemoryStore) Create(ctx context.Context, access *models.EmergencyAccess) error {
	if err := validateNew(access); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := pair{access.GrantorID, access.GranteeID}
	if _, ok := s.pairs[key]; ok {
		return ErrConflict
	}
	if _, ok := s.rows[access.ID]; ok {
		return ErrConflict
	}

	s.rows[access.ID] = access.Clone()
	s.pairs[key] = access.ID
	return nil
}

func (s *MemoryStore) FindByID(ctx context.Context, id string) (*models.EmergencyAccess, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row, ok := s.rows[id]
	if !ok {
		return nil, ErrNotFound
	}
	return row.Clone(), nil
}

func (s *MemoryStore) FindByPair(ctx context.Context, grantorID, granteeID string) (*models.EmergencyAccess, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.pairs[pair{grantorID, granteeID}]
	if !ok {
		return nil, ErrNotFound
	}
	return s.rows[id].Clone(), nil
}

func (s *MemoryStore) ListByGrantor(ctx context.Context, grantorID string) ([]*models.EmergencyAccess, error) {
	return s.list(func(row *models.EmergencyAccess) bool { return row.GrantorID == grantorID }), nil
}

func (s *MemoryStore) ListByGrantee(ctx context.Context, granteeID string) ([]*models.EmergencyAccess, error) {
	return s.list(func(row *models.EmergencyAccess) bool { return row.GranteeID == granteeID }), nil
}

func (s *MemoryStore) list(match func(*models.EmergencyAccess) bool) []*models.EmergencyAccess {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*models.EmergencyAccess, 0)
	for _, row := range s.rows {
		if match(row) {
			out = append(out, row.Clone())
		}
	}
	sortByCreated(out)
	return out
}

func (s *MemoryStore) Update(ctx context.Context, id string, expected models.Status, patch models.Patch) (*models.EmergencyAccess, error) {
	if err := validatePatch(patch); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	row, ok := s.rows[id]
	if !ok {
		return nil, ErrNotFound
	}
	if row.Status != expected {
		return nil, ErrStatusChanged
	}

	patch.Apply(row, s.now().UTC())
	return row.Clone(), nil
}

func (s *MemoryStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	row, ok := s.rows[id]
	if !ok {
		return ErrNotFound
	}
	delete(s.pairs, pair{row.GrantorID, row.GranteeID})
	delete(s.rows, id)
	return nil
}

func (s *MemoryStore) FindUserByID(ctx context.Context, id string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	c := *u
	return &c, nil
}

func (s *MemoryStore) FindUserByEmail(ctx context.Context, email string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byEmail[normalizeEmail(email)]
	if !ok {
		return nil, ErrNotFound
	}
	c := *s.users[id]
	return &c, nil
}

func (s *MemoryStore) PutUser(ctx context.Context, user *models.User) error {
	if user == nil || user.ID == "" || user.Email == "" {
		return ErrInvalid
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if prev, ok := s.users[user.ID]; ok {
		delete(s.byEmail, normalizeEmail(prev.Email))
	}
	c := *user
	s.users[user.ID] = &c
	s.byEmail[normalizeEmail(user.Email)] = user.ID
	return nil
}

func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.rows = make(map[string]*models.EmergencyAccess)
	s.pairs = make(map[pair]string)
	return nil
}

// Helpers

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func sortByCreated(rows []*models.EmergencyAccess) {
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].CreatedAt.Equal(rows[j].CreatedAt) {
			return rows[i].ID < rows[j].ID
		}
		return rows[i].CreatedAt.Before(rows[j].CreatedAt)
	})
}
