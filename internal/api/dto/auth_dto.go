package dto

import "time"

// LoginRequest payload for staff login.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// AuthResponse standard response for auth endpoints.
type AuthResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	UserID    int64     `json:"user_id"`
	Role      string    `json:"role"`
}

// StaffAccessRequest sets a user's role and optional web credentials.
type StaffAccessRequest struct {
	Role     string `json:"role"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// UserResponse is a user profile without credentials.
type UserResponse struct {
	ID          int64     `json:"id"`
	DisplayName string    `json:"display_name"`
	Email       *string   `json:"email"`
	Role        string    `json:"role"`
	Language    string    `json:"language"`
	CreatedAt   time.Time `json:"created_at"`
}
