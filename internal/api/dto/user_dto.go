package dto

// RoleChangeRequest payload for assigning a role.
type RoleChangeRequest struct {
	Role string `json:"role"`
}
