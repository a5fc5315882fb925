package ports

import (
	"context"

	"github.com/inkwell/content-platform/internal/core/domain"
)

// ListUsersFilter carries all query parameters for listing users.
// Page and Limit are 1-based; capping Limit is the validation layer's
// job, not the repository's.
type ListUsersFilter struct {
	Search string      // optional: case-insensitive substring on username or email
	Role   domain.Role // optional: filter to a single role
	Page   int
	Limit  int
}

// UserPatch holds the fields a partial update may change. Nil pointers
// leave the stored value untouched.
type UserPatch struct {
	Username *string
	Email    *string
	Title    *string
	Role     *domain.Role
}

// RoleCount is one bucket of the by-role aggregation.
type RoleCount struct {
	Role  domain.Role `bson:"role" json:"role"`
	Count int64       `bson:"count" json:"count"`
}

// UserRepository defines persistence operations for user records.
//
// Lookups return (nil, nil) when no record matches so the caller
// decides whether absence is exceptional. Uniqueness of username and
// email is guaranteed by storage-level unique indexes; Create and
// Update surface violations as domain.ErrUsernameTaken or
// domain.ErrEmailTaken.
type UserRepository interface {
	Create(ctx context.Context, user *domain.User) (*domain.User, error)
	FindByID(ctx context.Context, id string) (*domain.User, error)
	FindByUsername(ctx context.Context, username string) (*domain.User, error)
	FindByEmail(ctx context.Context, email string) (*domain.User, error)
	// FindByRole returns the first user holding the given role.
	FindByRole(ctx context.Context, role domain.Role) (*domain.User, error)
	FindByRefreshToken(ctx context.Context, token string) (*domain.User, error)

	// Update merges patch into the record and returns the updated
	// record, or (nil, nil) when the id does not resolve.
	Update(ctx context.Context, id string, patch UserPatch) (*domain.User, error)
	// UpdateRefreshToken overwrites the stored refresh token wholesale.
	// An empty token clears it.
	UpdateRefreshToken(ctx context.Context, id string, token string) error
	// ChangePassword verifies currentPlain against the stored hash and,
	// on a match, replaces it with the hash of newPlain. A mismatch is
	// reported as (false, nil); a missing id as domain.ErrUserNotFound.
	ChangePassword(ctx context.Context, id, currentPlain, newPlain string) (bool, error)

	SoftDelete(ctx context.Context, id string) (*domain.User, error)
	Restore(ctx context.Context, id string) (*domain.User, error)

	EmailExists(ctx context.Context, email string) (bool, error)
	UsernameExists(ctx context.Context, username string) (bool, error)

	// List returns a page of users ordered by creation time descending,
	// plus the total count matching the filter. Soft-deleted users are
	// included.
	List(ctx context.Context, filter ListUsersFilter) ([]*domain.User, int64, error)
	// BulkUpdateRole sets role on every matching id in one batch and
	// returns the number of records actually modified. Unknown ids are
	// silently skipped.
	BulkUpdateRole(ctx context.Context, ids []string, role domain.Role) (int64, error)
	StatsByRole(ctx context.Context) ([]RoleCount, error)
}
