package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	"golang.org/x/crypto/bcrypt"

	"github.com/spec-kit/auction-house/internal/auth"
	"github.com/spec-kit/auction-house/internal/config"
	"github.com/spec-kit/auction-house/internal/domain"
	"github.com/spec-kit/auction-house/internal/events"
	"github.com/spec-kit/auction-house/internal/repository"
)

var testAuthConfig = config.AuthConfig{
	JWTSecret:        "service-test-secret",
	TokenTTLHours:    24,
	BcryptCost:       bcrypt.MinCost,
	LoginMaxFailures: 3,
}

type authFixture struct {
	svc        *AuthService
	users      repository.UserRepository
	dispatcher events.Dispatcher
	logs       *observer.ObservedLogs
}

func newAuthFixture(t *testing.T, mutate ...func(*AuthDependencies)) *authFixture {
	t.Helper()

	core, logs := observer.New(zap.DebugLevel)
	logger := zap.New(core)
	users := repository.NewMemoryUserRepository()
	dispatcher := events.NewInMemoryDispatcher()
	NewAuditService(dispatcher, logger).RegisterHandlers()

	deps := AuthDependencies{
		Store:      NewCredentialStore(users),
		Dispatcher: dispatcher,
		Logger:     logger,
	}
	for _, m := range mutate {
		m(&deps)
	}

	svc, err := NewAuthService(testAuthConfig, deps)
	require.NoError(t, err)
	return &authFixture{svc: svc, users: users, dispatcher: dispatcher, logs: logs}
}

func auditedTypes(logs *observer.ObservedLogs) []string {
	var types []string
	for _, entry := range logs.FilterMessage("auth event").All() {
		types = append(types, entry.ContextMap()["event_type"].(string))
	}
	return types
}

func TestNewAuthService_RequiresStoreAndSecret(t *testing.T) {
	_, err := NewAuthService(testAuthConfig, AuthDependencies{})
	assert.Error(t, err)

	cfg := testAuthConfig
	cfg.JWTSecret = ""
	_, err = NewAuthService(cfg, AuthDependencies{Store: NewCredentialStore(repository.NewMemoryUserRepository())})
	assert.Error(t, err)
}

func TestAuthService_Scenario(t *testing.T) {
	ctx := context.Background()
	f := newAuthFixture(t)

	registered, err := f.svc.Register(ctx, "alice", "alice@x.com", "Secret1!")
	require.NoError(t, err)
	assert.Equal(t, domain.RoleUser, registered.User.Role)
	assert.Equal(t, "alice", registered.User.Username)
	require.NotEmpty(t, registered.User.ID)

	claims, err := f.svc.Authenticate(registered.Token)
	require.NoError(t, err)
	assert.Equal(t, auth.Claims{SubjectID: registered.User.ID, Role: domain.RoleUser}, claims)

	_, err = f.svc.Register(ctx, "alice-again", "alice@x.com", "Secret1!")
	assert.ErrorIs(t, err, ErrDuplicateEmail)

	_, err = f.svc.Login(ctx, "alice@x.com", "WrongPass")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	session, err := f.svc.Login(ctx, "alice@x.com", "Secret1!")
	require.NoError(t, err)
	require.NotEmpty(t, session.Token)

	claims, err = f.svc.Authenticate(session.Token)
	require.NoError(t, err)
	assert.Equal(t, auth.Deny, f.svc.Authorize(&claims, "AdminPolicy"))
	assert.Equal(t, auth.Allow, f.svc.Authorize(&claims, "UserPolicy"))
	assert.Equal(t, auth.Deny, f.svc.Authorize(&claims, "ArtistPolicy"))
	assert.Equal(t, auth.Deny, f.svc.Authorize(nil, "UserPolicy"))

	assert.Equal(t, []string{
		string(events.EventIdentityRegistered),
		string(events.EventLoginFailed),
		string(events.EventLoginSucceeded),
	}, auditedTypes(f.logs))
}

func TestAuthService_RegisterDuplicateNeverCreatesSecondRecord(t *testing.T) {
	ctx := context.Background()
	f := newAuthFixture(t)

	_, err := f.svc.Register(ctx, "alice", "alice@x.com", "Secret1!")
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err := f.svc.Register(ctx, fmt.Sprintf("dup%d", i), "alice@x.com", "Other1!x")
		assert.ErrorIs(t, err, ErrDuplicateEmail)
	}

	users, err := f.users.List(ctx)
	require.NoError(t, err)
	assert.Len(t, users, 1)
}

func TestAuthService_RegisterEmailMatchIsCaseSensitive(t *testing.T) {
	ctx := context.Background()
	f := newAuthFixture(t)

	_, err := f.svc.Register(ctx, "alice", "alice@x.com", "Secret1!")
	require.NoError(t, err)
	_, err = f.svc.Register(ctx, "Alice", "Alice@x.com", "Secret1!")
	assert.NoError(t, err)
}

func TestAuthService_ConcurrentRegistrationSameEmail(t *testing.T) {
	ctx := context.Background()
	f := newAuthFixture(t)

	const workers = 16
	results := make(chan error, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := f.svc.Register(ctx, fmt.Sprintf("racer%d", i), "race@x.com", "Secret1!")
			results <- err
		}(i)
	}
	wg.Wait()
	close(results)

	succeeded := 0
	for err := range results {
		if err == nil {
			succeeded++
			continue
		}
		assert.ErrorIs(t, err, ErrDuplicateEmail)
	}
	assert.Equal(t, 1, succeeded)
}

func TestAuthService_RegisterValidation(t *testing.T) {
	f := newAuthFixture(t)

	tests := []struct {
		name     string
		username string
		email    string
		password string
		field    string
	}{
		{"missing_username", " ", "a@x.com", "Secret1!", "username"},
		{"missing_email", "alice", "", "Secret1!", "email"},
		{"bad_email", "alice", "not-an-email", "Secret1!", "email"},
		{"display_name_email", "alice", "Alice <a@x.com>", "Secret1!", "email"},
		{"weak_password", "alice", "a@x.com", "secret", "password"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Register(context.Background(), tt.username, tt.email, tt.password)
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.field, verr.Field)
		})
	}
}

func TestAuthService_LoginFailuresAreIndistinguishable(t *testing.T) {
	ctx := context.Background()
	f := newAuthFixture(t)

	_, err := f.svc.Register(ctx, "alice", "alice@x.com", "Secret1!")
	require.NoError(t, err)

	session, wrongPass := f.svc.Login(ctx, "alice@x.com", "WrongPass")
	assert.Nil(t, session)
	_, unknown := f.svc.Login(ctx, "nobody@x.com", "Secret1!")

	assert.ErrorIs(t, wrongPass, ErrInvalidCredentials)
	assert.ErrorIs(t, unknown, ErrInvalidCredentials)
	assert.Equal(t, wrongPass.Error(), unknown.Error())
}

func TestAuthService_ValidateSession(t *testing.T) {
	ctx := context.Background()
	f := newAuthFixture(t)

	registered, err := f.svc.Register(ctx, "alice", "alice@x.com", "Secret1!")
	require.NoError(t, err)
	claims, err := f.svc.Authenticate(registered.Token)
	require.NoError(t, err)

	user, err := f.svc.ValidateSession(ctx, claims)
	require.NoError(t, err)
	assert.Equal(t, registered.User, user)

	_, err = f.svc.ValidateSession(ctx, auth.Claims{SubjectID: "ghost", Role: domain.RoleUser})
	assert.ErrorIs(t, err, ErrSubjectMissing)

	_, err = f.svc.ValidateSession(ctx, auth.Claims{})
	assert.ErrorIs(t, err, ErrSubjectMissing)
}

func TestAuthService_RoleChangeDoesNotRewriteIssuedTokens(t *testing.T) {
	ctx := context.Background()
	f := newAuthFixture(t)

	registered, err := f.svc.Register(ctx, "alice", "alice@x.com", "Secret1!")
	require.NoError(t, err)
	require.NoError(t, f.users.UpdateRole(ctx, registered.User.ID, domain.RoleArtist))

	claims, err := f.svc.Authenticate(registered.Token)
	require.NoError(t, err)
	assert.Equal(t, domain.RoleUser, claims.Role)

	fresh, err := f.svc.ValidateSession(ctx, claims)
	require.NoError(t, err)
	assert.Equal(t, domain.RoleArtist, fresh.Role)

	session, err := f.svc.Login(ctx, "alice@x.com", "Secret1!")
	require.NoError(t, err)
	claims, err = f.svc.Authenticate(session.Token)
	require.NoError(t, err)
	assert.Equal(t, domain.RoleArtist, claims.Role)
}

func TestAuthService_TokensExpireAfterTTL(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, time.June, 1, 12, 0, 0, 0, time.UTC)
	var mu sync.Mutex
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}
	f := newAuthFixture(t, func(d *AuthDependencies) { d.Clock = clock })

	registered, err := f.svc.Register(ctx, "alice", "alice@x.com", "Secret1!")
	require.NoError(t, err)
	assert.True(t, now.Add(24*time.Hour).Equal(registered.ExpiresAt))

	mu.Lock()
	now = now.Add(24*time.Hour - time.Second)
	mu.Unlock()
	_, err = f.svc.Authenticate(registered.Token)
	assert.NoError(t, err)

	mu.Lock()
	now = now.Add(time.Second)
	mu.Unlock()
	_, err = f.svc.Authenticate(registered.Token)
	assert.ErrorIs(t, err, ErrTokenInvalid)
}

func TestAuthService_ChangePassword(t *testing.T) {
	ctx := context.Background()
	f := newAuthFixture(t)

	registered, err := f.svc.Register(ctx, "alice", "alice@x.com", "Secret1!")
	require.NoError(t, err)
	claims := auth.Claims{SubjectID: registered.User.ID, Role: registered.User.Role}

	err = f.svc.ChangePassword(ctx, claims, "WrongPass", "N3w-Secret")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	var verr *ValidationError
	err = f.svc.ChangePassword(ctx, claims, "Secret1!", "weak")
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "new_password", verr.Field)

	require.NoError(t, f.svc.ChangePassword(ctx, claims, "Secret1!", "N3w-Secret"))

	_, err = f.svc.Login(ctx, "alice@x.com", "Secret1!")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = f.svc.Login(ctx, "alice@x.com", "N3w-Secret")
	assert.NoError(t, err)

	err = f.svc.ChangePassword(ctx, auth.Claims{SubjectID: "ghost"}, "Secret1!", "N3w-Secret")
	assert.ErrorIs(t, err, ErrSubjectMissing)
}

func TestAuthService_EnsureAdmin(t *testing.T) {
	ctx := context.Background()
	f := newAuthFixture(t)

	created, err := f.svc.EnsureAdmin(ctx, "root", "admin@x.com", "AdminPassword123!")
	require.NoError(t, err)
	assert.True(t, created)

	created, err = f.svc.EnsureAdmin(ctx, "root", "admin@x.com", "AdminPassword123!")
	require.NoError(t, err)
	assert.False(t, created)

	session, err := f.svc.Login(ctx, "admin@x.com", "AdminPassword123!")
	require.NoError(t, err)
	assert.Equal(t, domain.RoleAdmin, session.User.Role)

	claims, err := f.svc.Authenticate(session.Token)
	require.NoError(t, err)
	assert.Equal(t, auth.Allow, f.svc.Authorize(&claims, "AdminPolicy"))
	assert.Equal(t, auth.Deny, f.svc.Authorize(&claims, "ArtistPolicy"))
}

func TestAuthService_EnsureAdminKeepsExistingRole(t *testing.T) {
	ctx := context.Background()
	f := newAuthFixture(t)

	_, err := f.svc.Register(ctx, "alice", "alice@x.com", "Secret1!")
	require.NoError(t, err)

	created, err := f.svc.EnsureAdmin(ctx, "root", "alice@x.com", "AdminPassword123!")
	require.NoError(t, err)
	assert.False(t, created)

	user, err := f.users.GetByEmail(ctx, "alice@x.com")
	require.NoError(t, err)
	assert.Equal(t, domain.RoleUser, user.Role)
}

func TestAuthService_LoginThrottling(t *testing.T) {
	ctx := context.Background()
	f, mr := throttledFixture(t)

	_, err := f.svc.Register(ctx, "alice", "alice@x.com", "Secret1!")
	require.NoError(t, err)

	_, err = f.svc.Login(ctx, "alice@x.com", "WrongPass")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = f.svc.Login(ctx, "alice@x.com", "Secret1!")
	require.NoError(t, err, "success resets the counter")

	for i := 0; i < int(testAuthConfig.LoginMaxFailures); i++ {
		_, err = f.svc.Login(ctx, "alice@x.com", "WrongPass")
		assert.ErrorIs(t, err, ErrInvalidCredentials)
	}

	_, err = f.svc.Login(ctx, "alice@x.com", "Secret1!")
	assert.ErrorIs(t, err, ErrTooManyAttempts)

	mr.FastForward(2 * time.Minute)
	_, err = f.svc.Login(ctx, "alice@x.com", "Secret1!")
	assert.NoError(t, err)
}

func throttledFixture(t *testing.T) (*authFixture, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	f := newAuthFixture(t, func(d *AuthDependencies) {
		d.LoginAttempts = repository.NewLoginAttemptRepository(client, time.Minute)
	})
	return f, mr
}

func TestAuthService_ConcurrentLoginsCannotExceedLimit(t *testing.T) {
	ctx := context.Background()
	f, _ := throttledFixture(t)

	_, err := f.svc.Register(ctx, "alice", "alice@x.com", "Secret1!")
	require.NoError(t, err)

	const workers = 50
	results := make(chan error, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.Login(ctx, "alice@x.com", "WrongPass")
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	var checked, throttled int
	for err := range results {
		switch {
		case errors.Is(err, ErrInvalidCredentials):
			checked++
		case errors.Is(err, ErrTooManyAttempts):
			throttled++
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, int(testAuthConfig.LoginMaxFailures), checked)
	assert.Equal(t, workers-checked, throttled)

	failed := f.logs.FilterMessage("auth event").FilterField(zap.String("event_type", string(events.EventLoginFailed)))
	assert.Equal(t, checked, failed.Len())
}

func TestAuthService_ChangePasswordSharesLoginLimit(t *testing.T) {
	ctx := context.Background()
	f, _ := throttledFixture(t)

	registered, err := f.svc.Register(ctx, "alice", "alice@x.com", "Secret1!")
	require.NoError(t, err)
	claims := auth.Claims{SubjectID: registered.User.ID, Role: registered.User.Role}

	for i := 0; i < int(testAuthConfig.LoginMaxFailures); i++ {
		err = f.svc.ChangePassword(ctx, claims, "WrongPass", "N3w-Secret")
		assert.ErrorIs(t, err, ErrInvalidCredentials)
	}

	err = f.svc.ChangePassword(ctx, claims, "Secret1!", "N3w-Secret")
	assert.ErrorIs(t, err, ErrTooManyAttempts)
	_, err = f.svc.Login(ctx, "alice@x.com", "Secret1!")
	assert.ErrorIs(t, err, ErrTooManyAttempts)
}

func TestAuthService_ChangePasswordClearsAttemptsOnSuccess(t *testing.T) {
	ctx := context.Background()
	f, mr := throttledFixture(t)

	registered, err := f.svc.Register(ctx, "alice", "alice@x.com", "Secret1!")
	require.NoError(t, err)
	claims := auth.Claims{SubjectID: registered.User.ID, Role: registered.User.Role}

	_, err = f.svc.Login(ctx, "alice@x.com", "WrongPass")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	require.NoError(t, f.svc.ChangePassword(ctx, claims, "Secret1!", "N3w-Secret"))
	assert.False(t, mr.Exists("auth:login_failures:alice@x.com"))
}

func TestAuthService_LoginThrottleStoreDown(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })

	f := newAuthFixture(t, func(d *AuthDependencies) {
		d.LoginAttempts = repository.NewLoginAttemptRepository(client, time.Minute)
	})
	_, err := f.svc.Register(ctx, "alice", "alice@x.com", "Secret1!")
	require.NoError(t, err)

	mr.Close()
	_, err = f.svc.Login(ctx, "alice@x.com", "Secret1!")
	assert.ErrorIs(t, err, ErrStoreUnavailable)
}

type failingStore struct {
	err error
}

func (s failingStore) FindByEmail(context.Context, string) (*domain.Identity, error) {
	return nil, s.err
}

func (s failingStore) FindByID(context.Context, string) (*domain.Identity, error) {
	return nil, s.err
}

func (s failingStore) VerifyPassword(*domain.Identity, string) bool { return false }

func (s failingStore) CreateIdentity(context.Context, string, string, string, domain.Role) (*domain.Identity, error) {
	return nil, s.err
}

func (s failingStore) UpdatePasswordHash(context.Context, string, string) error { return s.err }

func TestAuthService_StoreFailuresPropagate(t *testing.T) {
	ctx := context.Background()
	cause := errors.New("connection refused")
	f := newAuthFixture(t, func(d *AuthDependencies) { d.Store = failingStore{err: cause} })

	_, err := f.svc.Register(ctx, "alice", "alice@x.com", "Secret1!")
	assert.ErrorIs(t, err, ErrStoreUnavailable)
	assert.ErrorIs(t, err, cause)

	_, err = f.svc.Login(ctx, "alice@x.com", "Secret1!")
	assert.ErrorIs(t, err, ErrStoreUnavailable)
	assert.NotErrorIs(t, err, ErrInvalidCredentials)

	_, err = f.svc.ValidateSession(ctx, auth.Claims{SubjectID: "x", Role: domain.RoleUser})
	assert.ErrorIs(t, err, ErrStoreUnavailable)

	_, err = f.svc.EnsureAdmin(ctx, "root", "admin@x.com", "AdminPassword123!")
	assert.ErrorIs(t, err, ErrStoreUnavailable)
}

func TestAuthService_AuthenticateNeedsNoStore(t *testing.T) {
	ctx := context.Background()
	healthy := newAuthFixture(t)
	registered, err := healthy.svc.Register(ctx, "alice", "alice@x.com", "Secret1!")
	require.NoError(t, err)

	broken := newAuthFixture(t, func(d *AuthDependencies) { d.Store = failingStore{err: errors.New("down")} })

	claims, err := broken.svc.Authenticate(registered.Token)
	require.NoError(t, err)
	assert.Equal(t, registered.User.ID, claims.SubjectID)
}
