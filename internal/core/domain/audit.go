package domain

import "time"

// AuditAction names an identity event recorded on the audit trail.
type AuditAction string

const (
	AuditRegistered      AuditAction = "registered"
	AuditLoggedIn        AuditAction = "logged_in"
	AuditPasswordChanged AuditAction = "password_changed"
	AuditProfileUpdated  AuditAction = "profile_updated"
	AuditRoleChanged     AuditAction = "role_changed"
	AuditDeactivated     AuditAction = "deactivated"
	AuditRestored        AuditAction = "restored"
)

// AuditEvent is an append-only record of an identity action.
// ActorID is the principal who performed the action, which may differ
// from UserID when an admin acts on another account.
type AuditEvent struct {
	UserID    string      `bson:"user_id"`
	Action    AuditAction `bson:"action"`
	ActorID   string      `bson:"actor_id,omitempty"`
	Timestamp time.Time   `bson:"timestamp"`
}
