package domain

import "time"

// UserRole enumerates actor roles.
type UserRole string

const (
	RoleStudent    UserRole = "STUDENT"
	RoleAdmin      UserRole = "ADMIN"
	RoleSuperAdmin UserRole = "SUPERADMIN"
)

// IsStaff reports whether the role may handle appeals.
func (r UserRole) IsStaff() bool {
	return r == RoleAdmin || r == RoleSuperAdmin
}

// DefaultLanguage is used when a user has no language set.
const DefaultLanguage = "en"

// User is anyone talking to the bot: students and staff alike. ID is the
// chat platform user id.
type User struct {
	ID           int64
	DisplayName  string
	Email        *string
	PasswordHash *string
	Role         UserRole
	Language     string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// PreferredLanguage returns Language or DefaultLanguage.
func (u *User) PreferredLanguage() string {
	if u == nil || u.Language == "" {
		return DefaultLanguage
	}
	return u.Language
}
