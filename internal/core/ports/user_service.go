package ports

import (
	"context"
	"time"

	"github.com/inkwell/content-platform/internal/core/domain"
)

// UserView is the externally visible projection of a user record.
// The password hash and refresh token are stripped before a user ever
// crosses the service boundary outward.
type UserView struct {
	ID        string      `json:"id"`
	Username  string      `json:"username"`
	Email     string      `json:"email"`
	Role      domain.Role `json:"role"`
	Title     string      `json:"title,omitempty"`
	IsActive  bool        `json:"is_active"`
	DeletedAt *time.Time  `json:"deleted_at,omitempty"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}

// RegisterInput carries all data needed to create a new account.
// The password arrives in plain text and is hashed by the service.
type RegisterInput struct {
	Username string
	Email    string
	Password string
	Role     domain.Role
	Title    string
}

// ListUsersInput carries all parameters for the user list endpoint.
type ListUsersInput struct {
	Page   int
	Limit  int
	Search string
	Role   domain.Role // optional
}

// ListUsersResult is one page of users plus paging totals.
type ListUsersResult struct {
	Users      []UserView `json:"users"`
	Total      int64      `json:"total"`
	Page       int        `json:"page"`
	Limit      int        `json:"limit"`
	TotalPages int        `json:"total_pages"`
}

// UserService defines the identity use cases. Every call is a fresh
// read against the repository; the service holds no state of its own.
type UserService interface {
	Register(ctx context.Context, input RegisterInput) (*UserView, error)
	GetUser(ctx context.Context, id string) (*UserView, error)
	List(ctx context.Context, input ListUsersInput) (*ListUsersResult, error)
	// UpdateProfile applies patch to the account. Only the account owner
	// or an admin may call it; only an admin may change the role.
	UpdateProfile(ctx context.Context, id string, principal domain.Principal, patch UserPatch) (*UserView, error)
	// ChangePassword returns (false, nil) when the current password does
	// not match, letting the caller choose the client-facing message.
	ChangePassword(ctx context.Context, id string, principal domain.Principal, currentPassword, newPassword string) (bool, error)
	// Remove soft-deletes the account. Admin only.
	Remove(ctx context.Context, id string, principal domain.Principal) error
	// Restore reactivates a soft-deleted account. Admin only.
	Restore(ctx context.Context, id string, principal domain.Principal) (*UserView, error)
	// BulkUpdateRole assigns role to every listed account and returns
	// the modified count. Admin only.
	BulkUpdateRole(ctx context.Context, principal domain.Principal, ids []string, role domain.Role) (int64, error)
	// StatsByRole returns the count of users grouped by role. Admin only.
	StatsByRole(ctx context.Context, principal domain.Principal) ([]RoleCount, error)
}
