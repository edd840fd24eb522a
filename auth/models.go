package auth

import "time"

// User is the domain representation of a registered account. It mirrors the
// users table and carries no JSON annotations so different presentation
// layers can shape it as they need.
type User struct {
	ID           string
	Email        string
	FirstName    string
	LastName     string
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// RegisterRequest contains account registration data supplied by callers.
type RegisterRequest struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
}

// LoginRequest contains login credentials.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Identity is the resolved caller passed to downstream services. Every
// state-changing operation receives one explicitly; nothing reads the
// authenticated user from ambient state.
type Identity struct {
	UserID string
	Email  string
}
