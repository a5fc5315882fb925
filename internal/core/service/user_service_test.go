package service

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/inkwell/content-platform/internal/core/domain"
	"github.com/inkwell/content-platform/internal/core/ports"
	"github.com/inkwell/content-platform/internal/pkg/password"
)

// stubUserRepo is an in-memory UserRepository. It enforces username
// and email uniqueness the way the real unique indexes do.
type stubUserRepo struct {
	mu     sync.Mutex
	seq    int
	users  map[string]*domain.User
	hasher *password.Hasher
}

func newStubUserRepo(hasher *password.Hasher) *stubUserRepo {
	return &stubUserRepo{users: make(map[string]*domain.User), hasher: hasher}
}

func cloneUser(u *domain.User) *domain.User {
	if u == nil {
		return nil
	}
	clone := *u
	if u.DeletedAt != nil {
		ts := *u.DeletedAt
		clone.DeletedAt = &ts
	}
	return &clone
}

func (r *stubUserRepo) Create(_ context.Context, user *domain.User) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, u := range r.users {
		if u.Username == user.Username {
			return nil, domain.ErrUsernameTaken
		}
		if u.Email == user.Email {
			return nil, domain.ErrEmailTaken
		}
	}

	r.seq++
	stored := cloneUser(user)
	stored.ID = strconv.Itoa(r.seq)
	// Stagger creation times so newest-first ordering is deterministic.
	stored.CreatedAt = time.Unix(0, 0).Add(time.Duration(r.seq) * time.Second)
	stored.UpdatedAt = stored.CreatedAt
	r.users[stored.ID] = stored
	return cloneUser(stored), nil
}

func (r *stubUserRepo) FindByID(_ context.Context, id string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return cloneUser(r.users[id]), nil
}

func (r *stubUserRepo) findWhere(match func(*domain.User) bool) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if match(u) {
			return cloneUser(u), nil
		}
	}
	return nil, nil
}

func (r *stubUserRepo) FindByUsername(_ context.Context, username string) (*domain.User, error) {
	return r.findWhere(func(u *domain.User) bool { return u.Username == username })
}

func (r *stubUserRepo) FindByEmail(_ context.Context, email string) (*domain.User, error) {
	return r.findWhere(func(u *domain.User) bool { return u.Email == email })
}

func (r *stubUserRepo) FindByRole(_ context.Context, role domain.Role) (*domain.User, error) {
	return r.findWhere(func(u *domain.User) bool { return u.Role == role })
}

func (r *stubUserRepo) FindByRefreshToken(_ context.Context, token string) (*domain.User, error) {
	if token == "" {
		return nil, nil
	}
	return r.findWhere(func(u *domain.User) bool { return u.RefreshToken == token })
}

func (r *stubUserRepo) Update(_ context.Context, id string, patch ports.UserPatch) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.users[id]
	if !ok {
		return nil, nil
	}
	if patch.Username != nil {
		u.Username = *patch.Username
	}
	if patch.Email != nil {
		u.Email = *patch.Email
	}
	if patch.Title != nil {
		u.Title = *patch.Title
	}
	if patch.Role != nil {
		u.Role = *patch.Role
	}
	u.UpdatedAt = time.Now().UTC()
	return cloneUser(u), nil
}

func (r *stubUserRepo) UpdateRefreshToken(_ context.Context, id string, token string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.users[id]
	if !ok {
		return domain.ErrUserNotFound
	}
	u.RefreshToken = token
	return nil
}

func (r *stubUserRepo) ChangePassword(_ context.Context, id, currentPlain, newPlain string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.users[id]
	if !ok {
		return false, domain.ErrUserNotFound
	}
	if !r.hasher.Verify(currentPlain, u.PasswordHash) {
		return false, nil
	}
	hash, err := r.hasher.Hash(newPlain)
	if err != nil {
		return false, err
	}
	u.PasswordHash = hash
	u.UpdatedAt = time.Now().UTC()
	return true, nil
}

func (r *stubUserRepo) SoftDelete(_ context.Context, id string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.users[id]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	now := time.Now().UTC()
	u.IsActive = false
	u.DeletedAt = &now
	u.UpdatedAt = now
	return cloneUser(u), nil
}

func (r *stubUserRepo) Restore(_ context.Context, id string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.users[id]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	u.IsActive = true
	u.DeletedAt = nil
	u.UpdatedAt = time.Now().UTC()
	return cloneUser(u), nil
}

func (r *stubUserRepo) EmailExists(_ context.Context, email string) (bool, error) {
	u, _ := r.FindByEmail(context.Background(), email)
	return u != nil, nil
}

func (r *stubUserRepo) UsernameExists(_ context.Context, username string) (bool, error) {
	u, _ := r.FindByUsername(context.Background(), username)
	return u != nil, nil
}

func (r *stubUserRepo) List(_ context.Context, filter ports.ListUsersFilter) ([]*domain.User, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var matched []*domain.User
	for _, u := range r.users {
		if filter.Role != "" && u.Role != filter.Role {
			continue
		}
		if filter.Search != "" {
			s := strings.ToLower(filter.Search)
			if !strings.Contains(strings.ToLower(u.Username), s) &&
				!strings.Contains(strings.ToLower(u.Email), s) {
				continue
			}
		}
		matched = append(matched, cloneUser(u))
	}

	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	total := int64(len(matched))
	start := (filter.Page - 1) * filter.Limit
	if start > len(matched) {
		start = len(matched)
	}
	end := start + filter.Limit
	if end > len(matched) {
		end = len(matched)
	}
	return matched[start:end], total, nil
}

func (r *stubUserRepo) BulkUpdateRole(_ context.Context, ids []string, role domain.Role) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var modified int64
	for _, id := range ids {
		if u, ok := r.users[id]; ok {
			if u.Role != role {
				u.Role = role
				modified++
			}
		}
	}
	return modified, nil
}

func (r *stubUserRepo) StatsByRole(_ context.Context) ([]ports.RoleCount, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	counts := make(map[domain.Role]int64)
	for _, u := range r.users {
		counts[u.Role]++
	}
	stats := make([]ports.RoleCount, 0, len(counts))
	for role, n := range counts {
		stats = append(stats, ports.RoleCount{Role: role, Count: n})
	}
	return stats, nil
}

// recordSink captures audit events for assertions.
type recordSink struct {
	mu     sync.Mutex
	events []domain.AuditEvent
}

func (s *recordSink) Record(e domain.AuditEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
}

func (s *recordSink) actions() []domain.AuditAction {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.AuditAction, 0, len(s.events))
	for _, e := range s.events {
		out = append(out, e.Action)
	}
	return out
}

func newTestUserService() (*UserService, *stubUserRepo, *recordSink) {
	hasher := password.NewHasher(4)
	repo := newStubUserRepo(hasher)
	sink := &recordSink{}
	return NewUserService(repo, hasher, sink, zerolog.Nop()), repo, sink
}

func mustRegister(t *testing.T, svc *UserService, username, email string, role domain.Role) *ports.UserView {
	t.Helper()
	view, err := svc.Register(context.Background(), ports.RegisterInput{
		Username: username,
		Email:    email,
		Password: "hunter2hunter2",
		Role:     role,
	})
	if err != nil {
		t.Fatalf("register %s failed: %v", username, err)
	}
	return view
}

func TestUserService_Register_Success(t *testing.T) {
	svc, repo, sink := newTestUserService()

	view := mustRegister(t, svc, "alice", "alice@example.com", domain.RoleAuthor)
	if view.ID == "" {
		t.Fatalf("expected assigned id")
	}
	if view.Role != domain.RoleAuthor || !view.IsActive {
		t.Fatalf("unexpected view: %+v", view)
	}

	stored, _ := repo.FindByID(context.Background(), view.ID)
	if stored.PasswordHash == "hunter2hunter2" || stored.PasswordHash == "" {
		t.Fatalf("password was not hashed")
	}
	if !repo.hasher.Verify("hunter2hunter2", stored.PasswordHash) {
		t.Fatalf("stored hash does not match password")
	}

	actions := sink.actions()
	if len(actions) != 1 || actions[0] != domain.AuditRegistered {
		t.Fatalf("expected registered audit event, got %v", actions)
	}
}

func TestUserService_Register_Conflicts(t *testing.T) {
	svc, _, _ := newTestUserService()
	mustRegister(t, svc, "alice", "alice@example.com", domain.RoleReader)

	_, err := svc.Register(context.Background(), ports.RegisterInput{
		Username: "alice", Email: "other@example.com", Password: "password123", Role: domain.RoleReader,
	})
	if err != domain.ErrUsernameTaken {
		t.Fatalf("expected ErrUsernameTaken, got %v", err)
	}

	_, err = svc.Register(context.Background(), ports.RegisterInput{
		Username: "alice2", Email: "alice@example.com", Password: "password123", Role: domain.RoleReader,
	})
	if err != domain.ErrEmailTaken {
		t.Fatalf("expected ErrEmailTaken, got %v", err)
	}
}

func TestUserService_Register_ConcurrentDuplicate(t *testing.T) {
	svc, _, _ := newTestUserService()

	results := make(chan error, 2)
	for i := 0; i < 2; i++ {
		email := fmt.Sprintf("race%d@example.com", i)
		go func() {
			_, err := svc.Register(context.Background(), ports.RegisterInput{
				Username: "racer", Email: email, Password: "password123", Role: domain.RoleReader,
			})
			results <- err
		}()
	}

	var successes, conflicts int
	for i := 0; i < 2; i++ {
		switch err := <-results; err {
		case nil:
			successes++
		case domain.ErrUsernameTaken:
			conflicts++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if successes != 1 || conflicts != 1 {
		t.Fatalf("expected exactly one success and one conflict, got %d/%d", successes, conflicts)
	}
}

func TestUserService_Register_InvalidRole(t *testing.T) {
	svc, _, _ := newTestUserService()

	_, err := svc.Register(context.Background(), ports.RegisterInput{
		Username: "bob", Email: "bob@example.com", Password: "password123", Role: "superuser",
	})
	if err != domain.ErrInvalidRole {
		t.Fatalf("expected ErrInvalidRole, got %v", err)
	}
}

func TestUserService_GetUser_NotFound(t *testing.T) {
	svc, _, _ := newTestUserService()

	if _, err := svc.GetUser(context.Background(), "missing"); err != domain.ErrUserNotFound {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}

func TestUserService_UpdateProfile_Authorization(t *testing.T) {
	svc, _, _ := newTestUserService()
	owner := mustRegister(t, svc, "carol", "carol@example.com", domain.RoleAuthor)
	other := mustRegister(t, svc, "dave", "dave@example.com", domain.RoleAuthor)

	title := "Editor"
	// A non-admin acting on another account is always forbidden,
	// regardless of the payload.
	_, err := svc.UpdateProfile(context.Background(), owner.ID,
		domain.Principal{ID: other.ID, Role: domain.RoleAuthor}, ports.UserPatch{Title: &title})
	if err != domain.ErrForbidden {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}

	// The owner may update their own profile.
	view, err := svc.UpdateProfile(context.Background(), owner.ID,
		domain.Principal{ID: owner.ID, Role: domain.RoleAuthor}, ports.UserPatch{Title: &title})
	if err != nil {
		t.Fatalf("owner update failed: %v", err)
	}
	if view.Title != "Editor" {
		t.Fatalf("title not updated: %+v", view)
	}

	// An admin may update anyone.
	if _, err := svc.UpdateProfile(context.Background(), owner.ID,
		domain.Principal{ID: "0", Role: domain.RoleAdmin}, ports.UserPatch{Title: &title}); err != nil {
		t.Fatalf("admin update failed: %v", err)
	}
}

func TestUserService_UpdateProfile_RoleChangeRequiresAdmin(t *testing.T) {
	svc, _, _ := newTestUserService()
	owner := mustRegister(t, svc, "erin", "erin@example.com", domain.RoleReader)

	role := domain.RoleAuthor
	_, err := svc.UpdateProfile(context.Background(), owner.ID,
		domain.Principal{ID: owner.ID, Role: domain.RoleReader}, ports.UserPatch{Role: &role})
	if err != domain.ErrForbidden {
		t.Fatalf("expected ErrForbidden for self role change, got %v", err)
	}

	view, err := svc.UpdateProfile(context.Background(), owner.ID,
		domain.Principal{ID: "0", Role: domain.RoleAdmin}, ports.UserPatch{Role: &role})
	if err != nil {
		t.Fatalf("admin role change failed: %v", err)
	}
	if view.Role != domain.RoleAuthor {
		t.Fatalf("role not updated: %+v", view)
	}
}

func TestUserService_UpdateProfile_EmailConflict(t *testing.T) {
	svc, _, _ := newTestUserService()
	a := mustRegister(t, svc, "frank", "frank@example.com", domain.RoleReader)
	mustRegister(t, svc, "grace", "grace@example.com", domain.RoleReader)

	taken := "grace@example.com"
	_, err := svc.UpdateProfile(context.Background(), a.ID,
		domain.Principal{ID: a.ID, Role: domain.RoleReader}, ports.UserPatch{Email: &taken})
	if err != domain.ErrEmailTaken {
		t.Fatalf("expected ErrEmailTaken, got %v", err)
	}

	// Re-submitting the current value is not a conflict.
	same := "frank@example.com"
	if _, err := svc.UpdateProfile(context.Background(), a.ID,
		domain.Principal{ID: a.ID, Role: domain.RoleReader}, ports.UserPatch{Email: &same}); err != nil {
		t.Fatalf("no-op email update failed: %v", err)
	}
}

func TestUserService_ChangePassword(t *testing.T) {
	svc, repo, _ := newTestUserService()
	user := mustRegister(t, svc, "heidi", "heidi@example.com", domain.RoleAuthor)
	self := domain.Principal{ID: user.ID, Role: domain.RoleAuthor}

	before, _ := repo.FindByID(context.Background(), user.ID)

	// Wrong current password: false, stored hash untouched.
	ok, err := svc.ChangePassword(context.Background(), user.ID, self, "wrong-current", "newpassword1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatalf("expected false for wrong current password")
	}
	after, _ := repo.FindByID(context.Background(), user.ID)
	if after.PasswordHash != before.PasswordHash {
		t.Fatalf("hash changed on failed password change")
	}

	// Correct current password: the old one stops working, the new one works.
	ok, err = svc.ChangePassword(context.Background(), user.ID, self, "hunter2hunter2", "newpassword1")
	if err != nil || !ok {
		t.Fatalf("change password failed: ok=%v err=%v", ok, err)
	}
	after, _ = repo.FindByID(context.Background(), user.ID)
	if repo.hasher.Verify("hunter2hunter2", after.PasswordHash) {
		t.Fatalf("old password still authenticates")
	}
	if !repo.hasher.Verify("newpassword1", after.PasswordHash) {
		t.Fatalf("new password does not authenticate")
	}
}

func TestUserService_ChangePassword_Forbidden(t *testing.T) {
	svc, _, _ := newTestUserService()
	user := mustRegister(t, svc, "ivan", "ivan@example.com", domain.RoleReader)

	_, err := svc.ChangePassword(context.Background(), user.ID,
		domain.Principal{ID: "someone-else", Role: domain.RoleReader}, "hunter2hunter2", "newpassword1")
	if err != domain.ErrForbidden {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
}

func TestUserService_RemoveAndRestore(t *testing.T) {
	svc, repo, _ := newTestUserService()
	user := mustRegister(t, svc, "judy", "judy@example.com", domain.RoleReader)
	admin := domain.Principal{ID: "0", Role: domain.RoleAdmin}

	if err := svc.Remove(context.Background(), user.ID,
		domain.Principal{ID: user.ID, Role: domain.RoleReader}); err != domain.ErrForbidden {
		t.Fatalf("expected ErrForbidden for non-admin delete, got %v", err)
	}

	if err := svc.Remove(context.Background(), user.ID, admin); err != nil {
		t.Fatalf("admin remove failed: %v", err)
	}
	stored, _ := repo.FindByID(context.Background(), user.ID)
	if stored.IsActive || stored.DeletedAt == nil {
		t.Fatalf("expected inactive with deleted_at set, got %+v", stored)
	}

	view, err := svc.Restore(context.Background(), user.ID, admin)
	if err != nil {
		t.Fatalf("restore failed: %v", err)
	}
	if !view.IsActive || view.DeletedAt != nil {
		t.Fatalf("expected active with deleted_at cleared, got %+v", view)
	}

	if err := svc.Remove(context.Background(), "missing", admin); err != domain.ErrUserNotFound {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}

func TestUserService_List_Pagination(t *testing.T) {
	svc, _, _ := newTestUserService()
	for i := 0; i < 25; i++ {
		mustRegister(t, svc,
			fmt.Sprintf("user%02d", i),
			fmt.Sprintf("user%02d@example.com", i),
			domain.RoleReader)
	}

	result, err := svc.List(context.Background(), ports.ListUsersInput{Page: 1, Limit: 10})
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(result.Users) != 10 {
		t.Fatalf("expected 10 users, got %d", len(result.Users))
	}
	if result.Total != 25 || result.TotalPages != 3 {
		t.Fatalf("expected total=25 totalPages=3, got total=%d totalPages=%d", result.Total, result.TotalPages)
	}
	// Newest first: the last registered user leads the page.
	if result.Users[0].Username != "user24" {
		t.Fatalf("expected newest-first ordering, got %s first", result.Users[0].Username)
	}

	last, err := svc.List(context.Background(), ports.ListUsersInput{Page: 3, Limit: 10})
	if err != nil {
		t.Fatalf("list page 3 failed: %v", err)
	}
	if len(last.Users) != 5 {
		t.Fatalf("expected 5 users on last page, got %d", len(last.Users))
	}
}

func TestUserService_List_RoleFilterIsPaginated(t *testing.T) {
	svc, _, _ := newTestUserService()
	for i := 0; i < 5; i++ {
		mustRegister(t, svc,
			fmt.Sprintf("author%d", i),
			fmt.Sprintf("author%d@example.com", i),
			domain.RoleAuthor)
	}
	mustRegister(t, svc, "reader0", "reader0@example.com", domain.RoleReader)

	result, err := svc.List(context.Background(), ports.ListUsersInput{Page: 1, Limit: 2, Role: domain.RoleAuthor})
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(result.Users) != 2 || result.Total != 5 || result.TotalPages != 3 {
		t.Fatalf("role filter not paginated: %+v", result)
	}
	for _, u := range result.Users {
		if u.Role != domain.RoleAuthor {
			t.Fatalf("unexpected role in filtered page: %s", u.Role)
		}
	}
}

func TestUserService_List_Search(t *testing.T) {
	svc, _, _ := newTestUserService()
	mustRegister(t, svc, "kenji", "kenji@example.com", domain.RoleReader)
	mustRegister(t, svc, "laura", "laura@corp.example.com", domain.RoleReader)

	result, err := svc.List(context.Background(), ports.ListUsersInput{Page: 1, Limit: 10, Search: "CORP"})
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(result.Users) != 1 || result.Users[0].Username != "laura" {
		t.Fatalf("case-insensitive search failed: %+v", result.Users)
	}
}

func TestUserService_BulkUpdateRole(t *testing.T) {
	svc, _, _ := newTestUserService()
	a := mustRegister(t, svc, "mike", "mike@example.com", domain.RoleReader)
	b := mustRegister(t, svc, "nina", "nina@example.com", domain.RoleReader)
	admin := domain.Principal{ID: "0", Role: domain.RoleAdmin}

	ids := []string{a.ID, b.ID, "no-such-id"}
	if _, err := svc.BulkUpdateRole(context.Background(), domain.Principal{ID: a.ID, Role: domain.RoleAuthor}, ids, domain.RoleAuthor); err != domain.ErrForbidden {
		t.Fatalf("expected ErrForbidden for non-admin, got %v", err)
	}

	modified, err := svc.BulkUpdateRole(context.Background(), admin, ids, domain.RoleAuthor)
	if err != nil {
		t.Fatalf("bulk update failed: %v", err)
	}
	if modified != 2 {
		t.Fatalf("expected modified=2, got %d", modified)
	}

	if _, err := svc.BulkUpdateRole(context.Background(), admin, ids, "czar"); err != domain.ErrInvalidRole {
		t.Fatalf("expected ErrInvalidRole, got %v", err)
	}
}

func TestUserService_StatsByRole(t *testing.T) {
	svc, _, _ := newTestUserService()
	mustRegister(t, svc, "olga", "olga@example.com", domain.RoleAdmin)
	mustRegister(t, svc, "pete", "pete@example.com", domain.RoleReader)
	mustRegister(t, svc, "quinn", "quinn@example.com", domain.RoleReader)

	if _, err := svc.StatsByRole(context.Background(), domain.Principal{ID: "9", Role: domain.RoleReader}); err != domain.ErrForbidden {
		t.Fatalf("expected ErrForbidden for non-admin, got %v", err)
	}

	stats, err := svc.StatsByRole(context.Background(), domain.Principal{ID: "1", Role: domain.RoleAdmin})
	if err != nil {
		t.Fatalf("stats failed: %v", err)
	}
	counts := make(map[domain.Role]int64)
	for _, rc := range stats {
		counts[rc.Role] = rc.Count
	}
	if counts[domain.RoleAdmin] != 1 || counts[domain.RoleReader] != 2 {
		t.Fatalf("unexpected counts: %v", counts)
	}
}
