package events

import (
	"time"

	"github.com/spec-kit/auction-house/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventIdentityRegistered EventType = "identity_registered"
	EventLoginSucceeded     EventType = "login_succeeded"
	EventLoginFailed        EventType = "login_failed"
	EventLoginThrottled     EventType = "login_throttled"
	EventPasswordChanged    EventType = "password_changed"
	EventRoleChanged        EventType = "role_changed"
)

// AllEventTypes lists every event the auth services emit.
var AllEventTypes = []EventType{
	EventIdentityRegistered,
	EventLoginSucceeded,
	EventLoginFailed,
	EventLoginThrottled,
	EventPasswordChanged,
	EventRoleChanged,
}

// Event represents an auth event emitted by services.
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	SubjectID string      `json:"subject_id,omitempty"`
	Email     string      `json:"email,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload,omitempty"`
}

// LoginFailedPayload records why a login was refused. Never sent to clients.
type LoginFailedPayload struct {
	Reason   string `json:"reason"`
	Failures int64  `json:"failures,omitempty"`
}

// RoleChangedPayload payload.
type RoleChangedPayload struct {
	OldRole   domain.Role `json:"old_role"`
	NewRole   domain.Role `json:"new_role"`
	ChangedBy string      `json:"changed_by"`
}
