package auth

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/auction-house/internal/domain"
	apperrors "github.com/spec-kit/auction-house/pkg/util/errorutil"
)

// Policy names an authorization rule evaluated against Claims.
type Policy string

const (
	PolicyUser   Policy = "UserPolicy"
	PolicyArtist Policy = "ArtistPolicy"
	PolicyAdmin  Policy = "AdminPolicy"
)

// Decision is the outcome of a policy evaluation.
type Decision bool

const (
	Deny  Decision = false
	Allow Decision = true
)

func (d Decision) String() string {
	if d {
		return "allow"
	}
	return "deny"
}

var rolePolicies = map[domain.Role]Policy{
	domain.RoleUser:   PolicyUser,
	domain.RoleArtist: PolicyArtist,
	domain.RoleAdmin:  PolicyAdmin,
}

var policyRoles = map[Policy]domain.Role{
	PolicyUser:   domain.RoleUser,
	PolicyArtist: domain.RoleArtist,
	PolicyAdmin:  domain.RoleAdmin,
}

// PolicyForRole returns the policy granted to holders of role.
func PolicyForRole(role domain.Role) (Policy, bool) {
	p, ok := rolePolicies[role]
	return p, ok
}

// RoleForPolicy returns the single role a policy admits.
func RoleForPolicy(policy Policy) (domain.Role, bool) {
	r, ok := policyRoles[policy]
	return r, ok
}

// Authorize allows only when the claims' role exactly matches the policy's role.
// Roles are not hierarchical: an Admin does not satisfy ArtistPolicy.
func Authorize(claims *Claims, policy Policy) Decision {
	if claims == nil {
		return Deny
	}
	required, ok := policyRoles[policy]
	if !ok {
		return Deny
	}
	if claims.Role != required {
		return Deny
	}
	return Allow
}

// RequirePolicy rejects callers whose claims do not satisfy policy.
// Must run after Authenticate.
func RequirePolicy(policy Policy) fiber.Handler {
	return func(c *fiber.Ctx) error {
		claims, ok := ClaimsFromContext(c)
		if !ok {
			return apperrors.NewUnauthorized("authentication required")
		}
		if Authorize(&claims, policy) == Deny {
			return apperrors.NewForbidden("insufficient role")
		}
		return c.Next()
	}
}

// RequireAuthenticated ensures claims were attached by Authenticate.
func RequireAuthenticated() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if _, ok := ClaimsFromContext(c); !ok {
			return apperrors.NewUnauthorized("authentication required")
		}
		return c.Next()
	}
}
