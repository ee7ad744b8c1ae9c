package store

import (
	"testing"

	"github.com/parlorhq/parlor/internal/database"
	"github.com/parlorhq/parlor/internal/model"
)

func setupUserTestDB(t *testing.T) *UserStore {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewUserStore(db)
}

func TestUserCreate(t *testing.T) {
	us := setupUserTestDB(t)

	u, err := us.Create("alice@example.com", "alice", "hash")
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	if u.Email != "alice@example.com" || u.Username != "alice" {
		t.Errorf("user = %+v", u)
	}
	if u.Role != model.RoleMember {
		t.Errorf("role = %q, want member default", u.Role)
	}
	if u.Verified() {
		t.Error("new user must start unverified")
	}
}

func TestUserUniqueConstraints(t *testing.T) {
	us := setupUserTestDB(t)

	us.Create("alice@example.com", "alice", "hash")

	if _, err := us.Create("alice@example.com", "alice2", "hash"); err == nil {
		t.Error("expected duplicate email to fail")
	}
	if _, err := us.Create("alice2@example.com", "alice", "hash"); err == nil {
		t.Error("expected duplicate username to fail")
	}
}

func TestUserGetByEmailNotFound(t *testing.T) {
	us := setupUserTestDB(t)

	u, err := us.GetByEmail("nobody@example.com")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if u != nil {
		t.Error("expected nil for unknown email")
	}
}

func TestUserVerifyAndSuspend(t *testing.T) {
	us := setupUserTestDB(t)

	u, _ := us.Create("alice@example.com", "alice", "hash")

	if err := us.MarkVerified(u.ID); err != nil {
		t.Fatalf("mark verified: %v", err)
	}
	u, _ = us.GetByID(u.ID)
	if !u.Verified() {
		t.Error("expected verified")
	}

	if err := us.SetSuspended(u.ID, true); err != nil {
		t.Fatalf("suspend: %v", err)
	}
	u, _ = us.GetByID(u.ID)
	if !u.Suspended() {
		t.Error("expected suspended")
	}

	us.SetSuspended(u.ID, false)
	u, _ = us.GetByID(u.ID)
	if u.Suspended() {
		t.Error("expected reinstated")
	}
}

func TestUserPermissions(t *testing.T) {
	us := setupUserTestDB(t)

	memberPerms, err := us.Permissions(model.RoleMember)
	if err != nil {
		t.Fatalf("permissions: %v", err)
	}
	if _, ok := memberPerms[model.PermCreatePost]; !ok {
		t.Error("member should hold create_post")
	}
	if _, ok := memberPerms[model.PermModerateContent]; ok {
		t.Error("member should not hold moderate_content")
	}

	adminPerms, _ := us.Permissions(model.RoleAdmin)
	for _, p := range []string{model.PermCreatePost, model.PermModerateContent, model.PermManageUsers, model.PermManageBanners, model.PermManageBackups} {
		if _, ok := adminPerms[p]; !ok {
			t.Errorf("admin missing %s", p)
		}
	}
}

func TestUserSetRole(t *testing.T) {
	us := setupUserTestDB(t)

	u, _ := us.Create("alice@example.com", "alice", "hash")
	if err := us.SetRole(u.ID, model.RoleModerator); err != nil {
		t.Fatalf("set role: %v", err)
	}
	u, _ = us.GetByID(u.ID)
	if u.Role != model.RoleModerator {
		t.Errorf("role = %q, want moderator", u.Role)
	}
}
