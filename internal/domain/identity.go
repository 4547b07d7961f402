package domain

import "time"

// Identity is a stored account with credentials and exactly one role.
type Identity struct {
	ID           string
	Username     string
	Email        string
	PasswordHash string
	Role         Role
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// PublicUser is the identity view safe to return to clients.
type PublicUser struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
	Role     Role   `json:"role"`
}

// Public strips credential material from the identity.
func (i *Identity) Public() PublicUser {
	return PublicUser{
		ID:       i.ID,
		Username: i.Username,
		Email:    i.Email,
		Role:     i.Role,
	}
}
