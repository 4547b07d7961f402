package repository

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/spec-kit/auction-house/internal/domain"
)

type memoryUserRepository struct {
	mu      sync.RWMutex
	byID    map[string]*domain.Identity
	byEmail map[string]string
	now     func() time.Time
}

// NewMemoryUserRepository returns a process-local implementation used when no
// database is configured. Email uniqueness is enforced under a single lock.
func NewMemoryUserRepository() UserRepository {
	return &memoryUserRepository{
		byID:    make(map[string]*domain.Identity),
		byEmail: make(map[string]string),
		now:     time.Now,
	}
}

func (r *memoryUserRepository) Create(_ context.Context, user *domain.Identity) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byEmail[user.Email]; exists {
		return ErrDuplicateEmail
	}

	now := r.now().UTC()
	user.ID = uuid.NewString()
	user.CreatedAt = now
	user.UpdatedAt = now

	stored := *user
	r.byID[stored.ID] = &stored
	r.byEmail[stored.Email] = stored.ID
	return nil
}

func (r *memoryUserRepository) GetByID(_ context.Context, id string) (*domain.Identity, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	user, ok := r.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	clone := *user
	return &clone, nil
}

func (r *memoryUserRepository) GetByEmail(ctx context.Context, email string) (*domain.Identity, error) {
	r.mu.RLock()
	id, ok := r.byEmail[email]
	r.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	return r.GetByID(ctx, id)
}

func (r *memoryUserRepository) UpdatePassword(_ context.Context, id, passwordHash string) error {
	return r.update(id, func(user *domain.Identity) {
		user.PasswordHash = passwordHash
	})
}

func (r *memoryUserRepository) UpdateRole(_ context.Context, id string, role domain.Role) error {
	return r.update(id, func(user *domain.Identity) {
		user.Role = role
	})
}

func (r *memoryUserRepository) List(_ context.Context) ([]*domain.Identity, error) {
	return r.collect(func(*domain.Identity) bool { return true }), nil
}

func (r *memoryUserRepository) Search(_ context.Context, query string) ([]*domain.Identity, error) {
	query = strings.TrimSpace(query)
	return r.collect(func(user *domain.Identity) bool {
		return strings.Contains(user.Username, query) || strings.Contains(user.Email, query)
	}), nil
}

func (r *memoryUserRepository) update(id string, mutate func(*domain.Identity)) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	user, ok := r.byID[id]
	if !ok {
		return ErrNotFound
	}
	mutate(user)
	user.UpdatedAt = r.now().UTC()
	return nil
}

func (r *memoryUserRepository) collect(match func(*domain.Identity) bool) []*domain.Identity {
	r.mu.RLock()
	defer r.mu.RUnlock()

	users := make([]*domain.Identity, 0, len(r.byID))
	for _, user := range r.byID {
		if match(user) {
			clone := *user
			users = append(users, &clone)
		}
	}
	sort.Slice(users, func(i, j int) bool {
		if users[i].CreatedAt.Equal(users[j].CreatedAt) {
			return users[i].ID < users[j].ID
		}
		return users[i].CreatedAt.Before(users[j].CreatedAt)
	})
	return users
}
