package auth

import (
	"errors"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/spec-kit/auction-house/internal/domain"
)

// DefaultTokenTTL is the validity window of an access token.
const DefaultTokenTTL = 24 * time.Hour

// ErrTokenInvalid covers every token rejection: malformed, forged, wrong algorithm or expired.
var ErrTokenInvalid = errors.New("invalid token")

var signingMethod = jwt.SigningMethodHS256

// Claims is the verified identity assertion carried by a token.
type Claims struct {
	SubjectID string
	Role      domain.Role
}

// tokenClaims describes the JWT payload on the wire.
type tokenClaims struct {
	Role domain.Role `json:"role"`
	jwt.RegisteredClaims
}

// TokenManager handles issuing and validating JWT tokens.
type TokenManager struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// TokenOption customizes a TokenManager.
type TokenOption func(*TokenManager)

// WithClock overrides the time source used for issuing and expiry checks.
func WithClock(now func() time.Time) TokenOption {
	return func(tm *TokenManager) {
		if now != nil {
			tm.now = now
		}
	}
}

// NewTokenManager builds a new manager around a symmetric signing secret.
func NewTokenManager(secret string, ttl time.Duration, opts ...TokenOption) (*TokenManager, error) {
	if secret == "" {
		return nil, errors.New("token secret must not be empty")
	}
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	tm := &TokenManager{secret: []byte(secret), ttl: ttl, now: time.Now}
	for _, opt := range opts {
		opt(tm)
	}
	return tm, nil
}

// Issue builds and signs a token for the identity.
func (tm *TokenManager) Issue(identity *domain.Identity) (string, time.Time, error) {
	if identity == nil || identity.ID == "" {
		return "", time.Time{}, errors.New("identity id required")
	}
	if !identity.Role.Valid() {
		return "", time.Time{}, errors.New("identity role invalid")
	}

	issuedAt := tm.now()
	claims := &tokenClaims{
		Role: identity.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   identity.ID,
			ExpiresAt: jwt.NewNumericDate(issuedAt.Add(tm.ttl)),
			IssuedAt:  jwt.NewNumericDate(issuedAt),
		},
	}

	token := jwt.NewWithClaims(signingMethod, claims)
	tokenString, err := token.SignedString(tm.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return tokenString, claims.ExpiresAt.Time, nil
}

// Validate verifies signature, algorithm and expiry and returns the embedded claims.
func (tm *TokenManager) Validate(tokenStr string) (Claims, error) {
	parsed, err := jwt.ParseWithClaims(tokenStr, &tokenClaims{}, tm.keyFunc,
		jwt.WithValidMethods([]string{signingMethod.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(tm.now),
	)
	if err != nil || !parsed.Valid {
		return Claims{}, ErrTokenInvalid
	}

	claims, ok := parsed.Claims.(*tokenClaims)
	if !ok || claims.Subject == "" || !claims.Role.Valid() {
		return Claims{}, ErrTokenInvalid
	}
	return Claims{SubjectID: claims.Subject, Role: claims.Role}, nil
}

// TTL returns the configured validity window.
func (tm *TokenManager) TTL() time.Duration {
	return tm.ttl
}

func (tm *TokenManager) keyFunc(token *jwt.Token) (interface{}, error) {
	if token.Method != signingMethod {
		return nil, errors.New("unexpected signing method")
	}
	return tm.secret, nil
}
