package domain

import "time"

// Actor is the authenticated user performing an operation.
type Actor struct {
	ID   int64
	Name string
	Role UserRole
}

// IsStaff reports whether the actor may act on other users' appeals.
func (a Actor) IsStaff() bool {
	return a.Role.IsStaff()
}

// ActorFromUser builds an Actor from a stored user.
func ActorFromUser(u *User) Actor {
	return Actor{ID: u.ID, Name: u.DisplayName, Role: u.Role}
}

// Token represents issued access token metadata.
type Token struct {
	ID        string
	UserID    int64
	Role      UserRole
	ExpiresAt time.Time
	IssuedAt  time.Time
}
