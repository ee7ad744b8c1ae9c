package model

import "time"

// Role name constants. Every user has exactly one role; capabilities are
// resolved through the role_permissions table, never by comparing role names
// in handlers.
const (
	RoleMember    = "member"
	RoleModerator = "moderator"
	RoleAdmin     = "admin"
)

// Permission name constants.
const (
	PermCreatePost      = "create_post"
	PermModerateContent = "moderate_content"
	PermManageUsers     = "manage_users"
	PermManageBanners   = "manage_banners"
	PermManageBackups   = "manage_backups"
)

type User struct {
	ID           int64      `json:"id"`
	Email        string     `json:"email"`
	Username     string     `json:"username"`
	PasswordHash string     `json:"-"`
	Role         string     `json:"role"`
	VerifiedAt   *time.Time `json:"verified_at,omitempty"`
	SuspendedAt  *time.Time `json:"suspended_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// Verified reports whether the user has confirmed their email address.
func (u *User) Verified() bool {
	return u.VerifiedAt != nil
}

// Suspended reports whether the user is currently suspended.
func (u *User) Suspended() bool {
	return u.SuspendedAt != nil
}
