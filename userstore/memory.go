package userstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/vitadrop/vitaauth"
)

// MemoryStore keeps users in process memory. It returns copies, so callers
// never share state with the store.
type MemoryStore struct {
	mu      sync.RWMutex
	byID    map[string]vitaauth.User
	byEmail map[string]string
	now     func() time.Time
	newID   func() string
}

func NewMemoryStore(opts ...Option) *MemoryStore {
	o := buildOptions(opts)
	return &MemoryStore{
		byID:    make(map[string]vitaauth.User),
		byEmail: make(map[string]string),
		now:     o.now,
		newID:   o.newID,
	}
}

func (s *MemoryStore) GetUserByEmail(_ context.Context, email string) (vitaauth.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byEmail[vitaauth.NormalizeEmail(email)]
	if !ok {
		return vitaauth.User{}, vitaauth.ErrUserNotFound
	}
	return s.byID[id], nil
}

func (s *MemoryStore) GetUserByID(_ context.Context, userID string) (vitaauth.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.byID[userID]
	if !ok {
		return vitaauth.User{}, vitaauth.ErrUserNotFound
	}
	return u, nil
}

func (s *MemoryStore) CreateUser(_ context.Context, in vitaauth.CreateUserInput) (vitaauth.User, error) {
	u := newUser(in, s.newID(), s.now().UTC())

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byEmail[u.Email]; exists {
		return vitaauth.User{}, vitaauth.ErrAccountExists
	}
	s.byID[u.ID] = u
	s.byEmail[u.Email] = u.ID
	return u, nil
}

func (s *MemoryStore) UpdatePasswordHash(_ context.Context, userID, hash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.byID[userID]
	if !ok {
		return vitaauth.ErrUserNotFound
	}
	u.PasswordHash = hash
	u.UpdatedAt = s.now().UTC()
	s.byID[userID] = u
	return nil
}

func (s *MemoryStore) UpdateProfile(_ context.Context, userID string, patch vitaauth.ProfilePatch) (vitaauth.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.byID[userID]
	if !ok {
		return vitaauth.User{}, vitaauth.ErrUserNotFound
	}
	applyPatch(&u, patch, s.now().UTC())
	s.byID[userID] = u
	return u, nil
}

// ListUsers returns every user ordered by creation time.
func (s *MemoryStore) ListUsers(_ context.Context) ([]vitaauth.User, error) {
	s.mu.RLock()
	users := make([]vitaauth.User, 0, len(s.byID))
	for _, u := range s.byID {
		users = append(users, u)
	}
	s.mu.RUnlock()

	sort.Slice(users, func(i, j int) bool {
		if users[i].CreatedAt.Equal(users[j].CreatedAt) {
			return users[i].ID < users[j].ID
		}
		return users[i].CreatedAt.Before(users[j].CreatedAt)
	})
	return users, nil
}

// SetStatus changes a user's account status. It exists for administration
// and tests; no HTTP route exposes it.
func (s *MemoryStore) SetStatus(userID string, status vitaauth.AccountStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.byID[userID]
	if !ok {
		return vitaauth.ErrUserNotFound
	}
	u.Status = status
	u.UpdatedAt = s.now().UTC()
	s.byID[userID] = u
	return nil
}

// SetRole changes a user's role. Like SetStatus it has no HTTP route.
func (s *MemoryStore) SetRole(userID string, role vitaauth.Role) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.byID[userID]
	if !ok {
		return vitaauth.ErrUserNotFound
	}
	u.Role = role
	u.UpdatedAt = s.now().UTC()
	s.byID[userID] = u
	return nil
}

// Delete removes a user. Refresh records are not touched; the engine
// rejects refreshes of a missing user and deletes the record then.
func (s *MemoryStore) Delete(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if u, ok := s.byID[userID]; ok {
		delete(s.byEmail, u.Email)
		delete(s.byID, userID)
	}
}

var _ vitaauth.UserProvider = (*MemoryStore)(nil)
