package service

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/inkwell/content-platform/internal/core/domain"
	"github.com/inkwell/content-platform/internal/core/ports"
	"github.com/inkwell/content-platform/internal/pkg/password"
)

// AuditRecorder accepts audit events fire-and-forget. Implemented by
// the queue dispatcher; recording must never block a request.
type AuditRecorder interface {
	Record(event domain.AuditEvent)
}

// UserService implements the identity use cases over a UserRepository.
// It holds no state; every call is a fresh read.
type UserService struct {
	repo   ports.UserRepository
	hasher *password.Hasher
	audit  AuditRecorder
	log    zerolog.Logger
}

func NewUserService(repo ports.UserRepository, hasher *password.Hasher, audit AuditRecorder, log zerolog.Logger) *UserService {
	return &UserService{repo: repo, hasher: hasher, audit: audit, log: log}
}

// Register creates a new account after checking username and email
// availability. The pre-checks run in parallel and are advisory only;
// the unique indexes on the users collection close the race, so a
// concurrent duplicate still surfaces as a conflict from Create.
func (s *UserService) Register(ctx context.Context, input ports.RegisterInput) (*ports.UserView, error) {
	if !input.Role.Valid() {
		return nil, domain.ErrInvalidRole
	}

	g, gctx := errgroup.WithContext(ctx)
	var emailTaken, usernameTaken bool
	g.Go(func() error {
		var err error
		emailTaken, err = s.repo.EmailExists(gctx, input.Email)
		return err
	})
	g.Go(func() error {
		var err error
		usernameTaken, err = s.repo.UsernameExists(gctx, input.Username)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("register: %w", err)
	}
	if emailTaken {
		return nil, domain.ErrEmailTaken
	}
	if usernameTaken {
		return nil, domain.ErrUsernameTaken
	}

	hash, err := s.hasher.Hash(input.Password)
	if err != nil {
		return nil, fmt.Errorf("register: hash password: %w", err)
	}

	created, err := s.repo.Create(ctx, &domain.User{
		Username:     input.Username,
		Email:        input.Email,
		PasswordHash: hash,
		Role:         input.Role,
		Title:        input.Title,
		IsActive:     true,
	})
	if err != nil {
		return nil, err
	}

	s.audit.Record(domain.AuditEvent{UserID: created.ID, Action: domain.AuditRegistered, ActorID: created.ID, Timestamp: time.Now().UTC()})
	s.log.Info().Str("user_id", created.ID).Str("role", string(created.Role)).Msg("user registered")

	return toView(created), nil
}

// GetUser returns the view of a single account.
func (s *UserService) GetUser(ctx context.Context, id string) (*ports.UserView, error) {
	user, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, domain.ErrUserNotFound
	}
	return toView(user), nil
}

// List returns a page of users newest-first. A role filter goes
// through the same paginated path as the unfiltered case; soft-deleted
// users are included.
func (s *UserService) List(ctx context.Context, input ports.ListUsersInput) (*ports.ListUsersResult, error) {
	page := input.Page
	if page < 1 {
		page = 1
	}
	limit := input.Limit
	if limit < 1 {
		limit = 10
	}

	users, total, err := s.repo.List(ctx, ports.ListUsersFilter{
		Search: input.Search,
		Role:   input.Role,
		Page:   page,
		Limit:  limit,
	})
	if err != nil {
		return nil, err
	}

	views := make([]ports.UserView, 0, len(users))
	for _, u := range users {
		views = append(views, *toView(u))
	}

	totalPages := int((total + int64(limit) - 1) / int64(limit))
	return &ports.ListUsersResult{
		Users:      views,
		Total:      total,
		Page:       page,
		Limit:      limit,
		TotalPages: totalPages,
	}, nil
}

// UpdateProfile applies patch to the account. The owner or an admin
// may call it; role changes are reserved to admins. When username or
// email actually change, availability is re-checked before the write;
// the unique indexes still arbitrate concurrent claims.
func (s *UserService) UpdateProfile(ctx context.Context, id string, principal domain.Principal, patch ports.UserPatch) (*ports.UserView, error) {
	if !principal.CanManage(id) {
		return nil, domain.ErrForbidden
	}
	if patch.Role != nil {
		if principal.Role != domain.RoleAdmin {
			return nil, domain.ErrForbidden
		}
		if !patch.Role.Valid() {
			return nil, domain.ErrInvalidRole
		}
	}

	current, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if current == nil {
		return nil, domain.ErrUserNotFound
	}

	if patch.Email != nil && *patch.Email != current.Email {
		taken, err := s.repo.EmailExists(ctx, *patch.Email)
		if err != nil {
			return nil, fmt.Errorf("update profile: %w", err)
		}
		if taken {
			return nil, domain.ErrEmailTaken
		}
	}
	if patch.Username != nil && *patch.Username != current.Username {
		taken, err := s.repo.UsernameExists(ctx, *patch.Username)
		if err != nil {
			return nil, fmt.Errorf("update profile: %w", err)
		}
		if taken {
			return nil, domain.ErrUsernameTaken
		}
	}

	updated, err := s.repo.Update(ctx, id, patch)
	if err != nil {
		return nil, err
	}
	if updated == nil {
		return nil, domain.ErrUserNotFound
	}

	action := domain.AuditProfileUpdated
	if patch.Role != nil {
		action = domain.AuditRoleChanged
	}
	s.audit.Record(domain.AuditEvent{UserID: id, Action: action, ActorID: principal.ID, Timestamp: time.Now().UTC()})

	return toView(updated), nil
}

// ChangePassword verifies the current password and replaces the stored
// hash. A wrong current password is reported as (false, nil), an
// expected outcome rather than a failure.
func (s *UserService) ChangePassword(ctx context.Context, id string, principal domain.Principal, currentPassword, newPassword string) (bool, error) {
	if !principal.CanManage(id) {
		return false, domain.ErrForbidden
	}

	ok, err := s.repo.ChangePassword(ctx, id, currentPassword, newPassword)
	if err != nil {
		return false, err
	}
	if ok {
		s.audit.Record(domain.AuditEvent{UserID: id, Action: domain.AuditPasswordChanged, ActorID: principal.ID, Timestamp: time.Now().UTC()})
		s.log.Info().Str("user_id", id).Msg("password changed")
	}
	return ok, nil
}

// Remove soft-deletes the account. Delete is soft only; the record
// stays in storage with is_active false and deleted_at set.
func (s *UserService) Remove(ctx context.Context, id string, principal domain.Principal) error {
	if principal.Role != domain.RoleAdmin {
		return domain.ErrForbidden
	}

	if _, err := s.repo.SoftDelete(ctx, id); err != nil {
		return err
	}

	s.audit.Record(domain.AuditEvent{UserID: id, Action: domain.AuditDeactivated, ActorID: principal.ID, Timestamp: time.Now().UTC()})
	s.log.Info().Str("user_id", id).Str("actor_id", principal.ID).Msg("user deactivated")
	return nil
}

// Restore reactivates a soft-deleted account.
func (s *UserService) Restore(ctx context.Context, id string, principal domain.Principal) (*ports.UserView, error) {
	if principal.Role != domain.RoleAdmin {
		return nil, domain.ErrForbidden
	}

	user, err := s.repo.Restore(ctx, id)
	if err != nil {
		return nil, err
	}

	s.audit.Record(domain.AuditEvent{UserID: id, Action: domain.AuditRestored, ActorID: principal.ID, Timestamp: time.Now().UTC()})
	return toView(user), nil
}

// BulkUpdateRole assigns role to every listed account in one batch.
// Unknown ids are skipped, not errors; the returned count reflects
// records actually modified.
func (s *UserService) BulkUpdateRole(ctx context.Context, principal domain.Principal, ids []string, role domain.Role) (int64, error) {
	if principal.Role != domain.RoleAdmin {
		return 0, domain.ErrForbidden
	}
	if !role.Valid() {
		return 0, domain.ErrInvalidRole
	}

	modified, err := s.repo.BulkUpdateRole(ctx, ids, role)
	if err != nil {
		return 0, err
	}

	now := time.Now().UTC()
	for _, id := range ids {
		s.audit.Record(domain.AuditEvent{UserID: id, Action: domain.AuditRoleChanged, ActorID: principal.ID, Timestamp: now})
	}
	s.log.Info().Int("requested", len(ids)).Int64("modified", modified).Str("role", string(role)).Msg("bulk role update")
	return modified, nil
}

// StatsByRole returns the count of users grouped by role.
func (s *UserService) StatsByRole(ctx context.Context, principal domain.Principal) ([]ports.RoleCount, error) {
	if principal.Role != domain.RoleAdmin {
		return nil, domain.ErrForbidden
	}
	return s.repo.StatsByRole(ctx)
}

// toView strips the password hash and refresh token from a user record.
func toView(u *domain.User) *ports.UserView {
	return &ports.UserView{
		ID:        u.ID,
		Username:  u.Username,
		Email:     u.Email,
		Role:      u.Role,
		Title:     u.Title,
		IsActive:  u.IsActive,
		DeletedAt: u.DeletedAt,
		CreatedAt: u.CreatedAt,
		UpdatedAt: u.UpdatedAt,
	}
}
