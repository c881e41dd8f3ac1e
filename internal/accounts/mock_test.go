package accounts_test

import (
	"context"
	"sync"
	"time"

	"github.com/finboard/finboard/internal/accounts"
	"github.com/finboard/finboard/internal/shared"
)

type memRepo struct {
	mu     sync.Mutex
	users  map[int64]accounts.User
	nextID int64
}

func newMemRepo() *memRepo {
	return &memRepo{users: make(map[int64]accounts.User)}
}

func (m *memRepo) Create(ctx context.Context, u accounts.User) (accounts.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.users {
		if existing.Username == u.Username {
			return accounts.User{}, shared.ErrDuplicate
		}
	}
	m.nextID++
	u.ID = m.nextID
	u.DateJoined = time.Now()
	m.users[u.ID] = u
	return u, nil
}

func (m *memRepo) ByID(ctx context.Context, id int64) (accounts.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return accounts.User{}, accounts.ErrNotFound
	}
	return u, nil
}

func (m *memRepo) ByUsername(ctx context.Context, username string) (accounts.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Username == username {
			return u, nil
		}
	}
	return accounts.User{}, accounts.ErrNotFound
}

func (m *memRepo) UpdateProfile(ctx context.Context, id int64, in accounts.ProfileInput) (accounts.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return accounts.User{}, accounts.ErrNotFound
	}
	u.FirstName, u.LastName, u.Email = in.FirstName, in.LastName, in.Email
	m.users[id] = u
	return u, nil
}

func (m *memRepo) UpdatePassword(ctx context.Context, id int64, hash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return accounts.ErrNotFound
	}
	u.PasswordHash = hash
	m.users[id] = u
	return nil
}

func (m *memRepo) Delete(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[id]; !ok {
		return accounts.ErrNotFound
	}
	delete(m.users, id)
	return nil
}
