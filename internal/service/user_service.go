package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/auction-house/internal/auth"
	"github.com/spec-kit/auction-house/internal/domain"
	"github.com/spec-kit/auction-house/internal/events"
	"github.com/spec-kit/auction-house/internal/repository"
)

// UserService exposes administrative user operations. Every call requires
// claims satisfying AdminPolicy.
type UserService struct {
	users      repository.UserRepository
	dispatcher events.Dispatcher
	logger     *zap.Logger
	now        func() time.Time
}

// NewUserService constructs the service.
func NewUserService(users repository.UserRepository, dispatcher events.Dispatcher, logger *zap.Logger) *UserService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &UserService{users: users, dispatcher: dispatcher, logger: logger, now: time.Now}
}

// ListUsers returns every identity.
func (s *UserService) ListUsers(ctx context.Context, actor auth.Claims) ([]domain.PublicUser, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	users, err := s.users.List(ctx)
	if err != nil {
		return nil, storeFailure(err)
	}
	return publicUsers(users), nil
}

// SearchUsers matches query against usernames and emails. No match is ErrNotFound.
func (s *UserService) SearchUsers(ctx context.Context, actor auth.Claims, query string) ([]domain.PublicUser, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, invalidField("query", "is required")
	}

	users, err := s.users.Search(ctx, query)
	if err != nil {
		return nil, storeFailure(err)
	}
	if len(users) == 0 {
		return nil, ErrNotFound
	}
	return publicUsers(users), nil
}

// ChangeRole assigns a new role. Tokens already issued keep the old role
// claim until they expire.
func (s *UserService) ChangeRole(ctx context.Context, actor auth.Claims, id, rawRole string) (domain.PublicUser, error) {
	if err := requireAdmin(actor); err != nil {
		return domain.PublicUser{}, err
	}
	role, err := domain.ParseRole(rawRole)
	if err != nil {
		return domain.PublicUser{}, invalidField("role", err.Error())
	}

	user, err := s.users.GetByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return domain.PublicUser{}, ErrNotFound
	}
	if err != nil {
		return domain.PublicUser{}, storeFailure(err)
	}

	if user.Role != role {
		if err := s.users.UpdateRole(ctx, id, role); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return domain.PublicUser{}, ErrNotFound
			}
			return domain.PublicUser{}, storeFailure(err)
		}
		publishEvent(ctx, s.dispatcher, s.logger, events.Event{
			ID:        uuid.NewString(),
			Type:      events.EventRoleChanged,
			SubjectID: user.ID,
			Email:     user.Email,
			Timestamp: s.now().UTC(),
			Payload: events.RoleChangedPayload{
				OldRole:   user.Role,
				NewRole:   role,
				ChangedBy: actor.SubjectID,
			},
		})
		user.Role = role
	}
	return user.Public(), nil
}

func requireAdmin(actor auth.Claims) error {
	if auth.Authorize(&actor, auth.PolicyAdmin) == auth.Deny {
		return ErrPolicyDenied
	}
	return nil
}

func publicUsers(users []*domain.Identity) []domain.PublicUser {
	out := make([]domain.PublicUser, 0, len(users))
	for _, u := range users {
		out = append(out, u.Public())
	}
	return out
}
