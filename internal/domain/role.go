package domain

import "fmt"

// Role enumerates the privilege levels an identity can hold.
type Role string

const (
	RoleUser   Role = "User"
	RoleArtist Role = "Artist"
	RoleAdmin  Role = "Admin"
)

// Roles lists every known role.
var Roles = []Role{RoleUser, RoleArtist, RoleAdmin}

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleArtist, RoleAdmin:
		return true
	}
	return false
}

// ParseRole converts a raw value into a Role using exact matching.
func ParseRole(raw string) (Role, error) {
	role := Role(raw)
	if !role.Valid() {
		return "", fmt.Errorf("unknown role %q", raw)
	}
	return role, nil
}
