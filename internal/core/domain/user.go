package domain

import (
	"errors"
	"time"
)

// Role classifies what a user is allowed to do on the platform.
type Role string

const (
	RoleAdmin  Role = "admin"
	RoleAuthor Role = "author"
	RoleReader Role = "reader"
)

// Valid reports whether r is one of the enumerated roles.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleAuthor, RoleReader:
		return true
	}
	return false
}

var ErrUserNotFound = errors.New("user not found")
var ErrUsernameTaken = errors.New("username already exists")
var ErrEmailTaken = errors.New("email already exists")
var ErrForbidden = errors.New("access forbidden")
var ErrInvalidCredentials = errors.New("invalid credentials")
var ErrInvalidRole = errors.New("invalid role")
var ErrTooManyAttempts = errors.New("too many login attempts")

// User is the persisted account record. PasswordHash and RefreshToken
// never appear in API responses.
type User struct {
	ID           string     `json:"id"`
	Username     string     `json:"username"`
	Email        string     `json:"email"`
	PasswordHash string     `json:"-"`
	Role         Role       `json:"role"`
	Title        string     `json:"title,omitempty"`
	IsActive     bool       `json:"is_active"`
	DeletedAt    *time.Time `json:"deleted_at,omitempty"`
	RefreshToken string     `json:"-"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// Principal identifies the authenticated caller for authorization
// decisions. It carries only the fields the rules branch on.
type Principal struct {
	ID   string
	Role Role
}

// CanManage reports whether p may act on the account with the given id:
// the owner of the account, or any admin.
func (p Principal) CanManage(userID string) bool {
	return p.ID == userID || p.Role == RoleAdmin
}
