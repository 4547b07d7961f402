package service

import (
	"context"

	"github.com/spec-kit/auction-house/internal/auth"
	"github.com/spec-kit/auction-house/internal/domain"
	"github.com/spec-kit/auction-house/internal/repository"
)

// CredentialStore is the persistence collaborator consulted by the auth flows.
// Lookups return repository.ErrNotFound when the identity is absent and
// CreateIdentity returns repository.ErrDuplicateEmail on a uniqueness conflict.
type CredentialStore interface {
	FindByEmail(ctx context.Context, email string) (*domain.Identity, error)
	FindByID(ctx context.Context, id string) (*domain.Identity, error)
	VerifyPassword(identity *domain.Identity, plaintext string) bool
	CreateIdentity(ctx context.Context, username, email, passwordHash string, role domain.Role) (*domain.Identity, error)
	UpdatePasswordHash(ctx context.Context, id, passwordHash string) error
}

type credentialStore struct {
	users repository.UserRepository
}

// NewCredentialStore adapts a user repository to the CredentialStore contract.
func NewCredentialStore(users repository.UserRepository) CredentialStore {
	return &credentialStore{users: users}
}

func (s *credentialStore) FindByEmail(ctx context.Context, email string) (*domain.Identity, error) {
	return s.users.GetByEmail(ctx, email)
}

func (s *credentialStore) FindByID(ctx context.Context, id string) (*domain.Identity, error) {
	return s.users.GetByID(ctx, id)
}

func (s *credentialStore) VerifyPassword(identity *domain.Identity, plaintext string) bool {
	if identity == nil || identity.PasswordHash == "" {
		return false
	}
	return auth.ComparePassword(identity.PasswordHash, plaintext) == nil
}

func (s *credentialStore) CreateIdentity(ctx context.Context, username, email, passwordHash string, role domain.Role) (*domain.Identity, error) {
	identity := &domain.Identity{
		Username:     username,
		Email:        email,
		PasswordHash: passwordHash,
		Role:         role,
	}
	if err := s.users.Create(ctx, identity); err != nil {
		return nil, err
	}
	return identity, nil
}

func (s *credentialStore) UpdatePasswordHash(ctx context.Context, id, passwordHash string) error {
	return s.users.UpdatePassword(ctx, id, passwordHash)
}
