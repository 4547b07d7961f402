package service

import (
	"context"
	"errors"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/auction-house/internal/auth"
	"github.com/spec-kit/auction-house/internal/config"
	"github.com/spec-kit/auction-house/internal/domain"
	"github.com/spec-kit/auction-house/internal/events"
	"github.com/spec-kit/auction-house/internal/repository"
)

const maxUsernameLength = 64

// Session is returned by successful registration and login.
type Session struct {
	Token     string
	ExpiresAt time.Time
	User      domain.PublicUser
}

// AuthService coordinates registration, login and session validation.
type AuthService struct {
	store       CredentialStore
	attempts    repository.LoginAttemptRepository
	dispatcher  events.Dispatcher
	logger      *zap.Logger
	tokenMgr    *auth.TokenManager
	now         func() time.Time
	bcryptCost  int
	maxFailures int64
	dummyHash   string
}

// AuthDependencies encapsulates collaborators for the auth service.
// LoginAttempts, Dispatcher, Logger and Clock are optional.
type AuthDependencies struct {
	Store         CredentialStore
	LoginAttempts repository.LoginAttemptRepository
	Dispatcher    events.Dispatcher
	Logger        *zap.Logger
	Clock         func() time.Time
}

// NewAuthService builds the service.
func NewAuthService(cfg config.AuthConfig, deps AuthDependencies) (*AuthService, error) {
	if deps.Store == nil {
		return nil, errors.New("credential store required")
	}
	now := deps.Clock
	if now == nil {
		now = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	tokenMgr, err := auth.NewTokenManager(cfg.JWTSecret, cfg.TokenTTL(), auth.WithClock(now))
	if err != nil {
		return nil, err
	}

	// Compared against when the email is unknown so both failure paths cost one bcrypt.
	dummyHash, err := auth.HashPassword(uuid.NewString(), cfg.BcryptCost)
	if err != nil {
		return nil, err
	}

	maxFailures := int64(cfg.LoginMaxFailures)
	if maxFailures <= 0 {
		maxFailures = 5
	}

	return &AuthService{
		store:       deps.Store,
		attempts:    deps.LoginAttempts,
		dispatcher:  deps.Dispatcher,
		logger:      logger,
		tokenMgr:    tokenMgr,
		now:         now,
		bcryptCost:  cfg.BcryptCost,
		maxFailures: maxFailures,
		dummyHash:   dummyHash,
	}, nil
}

// Register creates a new account with the User role and signs it in.
func (s *AuthService) Register(ctx context.Context, username, email, password string) (*Session, error) {
	username = strings.TrimSpace(username)
	email = strings.TrimSpace(email)
	if err := validateRegistration(username, email, password); err != nil {
		return nil, err
	}

	if _, err := s.store.FindByEmail(ctx, email); err == nil {
		return nil, ErrDuplicateEmail
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, storeFailure(err)
	}

	hash, err := auth.HashPassword(password, s.bcryptCost)
	if err != nil {
		return nil, err
	}

	identity, err := s.store.CreateIdentity(ctx, username, email, hash, domain.RoleUser)
	if errors.Is(err, repository.ErrDuplicateEmail) {
		return nil, ErrDuplicateEmail
	}
	if err != nil {
		return nil, storeFailure(err)
	}

	session, err := s.issue(identity)
	if err != nil {
		return nil, err
	}
	s.publish(ctx, events.EventIdentityRegistered, identity.ID, identity.Email, nil)
	return session, nil
}

// Login authenticates by email and password. Unknown email and wrong password
// produce the same ErrInvalidCredentials.
func (s *AuthService) Login(ctx context.Context, email, password string) (*Session, error) {
	email = strings.TrimSpace(email)

	attempt, err := s.reserveAttempt(ctx, email)
	if err != nil {
		return nil, err
	}

	identity, err := s.store.FindByEmail(ctx, email)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, storeFailure(err)
	}
	if identity == nil {
		s.store.VerifyPassword(&domain.Identity{PasswordHash: s.dummyHash}, password)
		s.credentialsRejected(ctx, "", email, "unknown_email", attempt)
		return nil, ErrInvalidCredentials
	}
	if !s.store.VerifyPassword(identity, password) {
		s.credentialsRejected(ctx, identity.ID, email, "wrong_password", attempt)
		return nil, ErrInvalidCredentials
	}

	if err := s.clearAttempts(ctx, email); err != nil {
		return nil, err
	}

	session, err := s.issue(identity)
	if err != nil {
		return nil, err
	}
	s.publish(ctx, events.EventLoginSucceeded, identity.ID, identity.Email, nil)
	return session, nil
}

// Authenticate validates a bearer token. It never consults the store.
func (s *AuthService) Authenticate(token string) (auth.Claims, error) {
	return s.tokenMgr.Validate(token)
}

// Authorize evaluates a named policy against already validated claims.
// Unknown policy names deny.
func (s *AuthService) Authorize(claims *auth.Claims, policyName string) auth.Decision {
	return auth.Authorize(claims, auth.Policy(policyName))
}

// ValidateSession re-reads the identity behind the claims for a fresh view.
func (s *AuthService) ValidateSession(ctx context.Context, claims auth.Claims) (domain.PublicUser, error) {
	if claims.SubjectID == "" {
		return domain.PublicUser{}, ErrSubjectMissing
	}
	identity, err := s.store.FindByID(ctx, claims.SubjectID)
	if errors.Is(err, repository.ErrNotFound) {
		return domain.PublicUser{}, ErrSubjectMissing
	}
	if err != nil {
		return domain.PublicUser{}, storeFailure(err)
	}
	return identity.Public(), nil
}

// ChangePassword verifies the current password before storing the new hash.
// Wrong guesses count against the same per-email limit as login. Tokens
// issued before the change stay valid until they expire.
func (s *AuthService) ChangePassword(ctx context.Context, claims auth.Claims, currentPassword, newPassword string) error {
	if currentPassword == "" {
		return invalidField("current_password", "is required")
	}
	if err := auth.ValidatePassword(newPassword); err != nil {
		return invalidField("new_password", err.Error())
	}

	identity, err := s.store.FindByID(ctx, claims.SubjectID)
	if errors.Is(err, repository.ErrNotFound) {
		return ErrSubjectMissing
	}
	if err != nil {
		return storeFailure(err)
	}
	attempt, err := s.reserveAttempt(ctx, identity.Email)
	if err != nil {
		return err
	}
	if !s.store.VerifyPassword(identity, currentPassword) {
		s.credentialsRejected(ctx, identity.ID, identity.Email, "wrong_current_password", attempt)
		return ErrInvalidCredentials
	}
	if err := s.clearAttempts(ctx, identity.Email); err != nil {
		return err
	}

	hash, err := auth.HashPassword(newPassword, s.bcryptCost)
	if err != nil {
		return err
	}
	if err := s.store.UpdatePasswordHash(ctx, identity.ID, hash); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrSubjectMissing
		}
		return storeFailure(err)
	}

	s.publish(ctx, events.EventPasswordChanged, identity.ID, identity.Email, nil)
	return nil
}

// EnsureAdmin creates an administrator account when none exists for email.
// An existing account keeps its role.
func (s *AuthService) EnsureAdmin(ctx context.Context, username, email, password string) (bool, error) {
	email = strings.TrimSpace(email)
	if _, err := s.store.FindByEmail(ctx, email); err == nil {
		return false, nil
	} else if !errors.Is(err, repository.ErrNotFound) {
		return false, storeFailure(err)
	}

	username = strings.TrimSpace(username)
	if username == "" {
		username = email
	}
	if err := validateRegistration(username, email, password); err != nil {
		return false, err
	}

	hash, err := auth.HashPassword(password, s.bcryptCost)
	if err != nil {
		return false, err
	}
	identity, err := s.store.CreateIdentity(ctx, username, email, hash, domain.RoleAdmin)
	if errors.Is(err, repository.ErrDuplicateEmail) {
		return false, nil
	}
	if err != nil {
		return false, storeFailure(err)
	}

	s.publish(ctx, events.EventIdentityRegistered, identity.ID, identity.Email, nil)
	return true, nil
}

// TokenManager exposes the underlying token manager.
func (s *AuthService) TokenManager() *auth.TokenManager {
	return s.tokenMgr
}

func (s *AuthService) issue(identity *domain.Identity) (*Session, error) {
	token, exp, err := s.tokenMgr.Issue(identity)
	if err != nil {
		return nil, err
	}
	return &Session{Token: token, ExpiresAt: exp, User: identity.Public()}, nil
}

// reserveAttempt counts a credential check against email before the password
// is compared. Once the count passes the limit no comparison happens.
func (s *AuthService) reserveAttempt(ctx context.Context, email string) (int64, error) {
	if s.attempts == nil {
		return 0, nil
	}
	attempt, err := s.attempts.Reserve(ctx, email)
	if err != nil {
		return 0, storeFailure(err)
	}
	if attempt > s.maxFailures {
		s.publish(ctx, events.EventLoginThrottled, "", email, events.LoginFailedPayload{Reason: "throttled", Failures: attempt - 1})
		return attempt, ErrTooManyAttempts
	}
	return attempt, nil
}

func (s *AuthService) clearAttempts(ctx context.Context, email string) error {
	if s.attempts == nil {
		return nil
	}
	if err := s.attempts.Reset(ctx, email); err != nil {
		return storeFailure(err)
	}
	return nil
}

func (s *AuthService) credentialsRejected(ctx context.Context, subjectID, email, reason string, attempt int64) {
	s.publish(ctx, events.EventLoginFailed, subjectID, email, events.LoginFailedPayload{Reason: reason, Failures: attempt})
}

func (s *AuthService) publish(ctx context.Context, eventType events.EventType, subjectID, email string, payload interface{}) {
	publishEvent(ctx, s.dispatcher, s.logger, events.Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		SubjectID: subjectID,
		Email:     email,
		Timestamp: s.now().UTC(),
		Payload:   payload,
	})
}

func publishEvent(ctx context.Context, dispatcher events.Dispatcher, logger *zap.Logger, event events.Event) {
	if dispatcher == nil {
		return
	}
	if err := dispatcher.Publish(ctx, event); err != nil {
		logger.Warn("event handlers failed", zap.String("event_type", string(event.Type)), zap.Error(err))
	}
}

func validateRegistration(username, email, password string) error {
	if username == "" {
		return invalidField("username", "is required")
	}
	if len(username) > maxUsernameLength {
		return invalidField("username", "is too long")
	}
	if email == "" {
		return invalidField("email", "is required")
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return invalidField("email", "is not a valid address")
	}
	if err := auth.ValidatePassword(password); err != nil {
		return invalidField("password", err.Error())
	}
	return nil
}
