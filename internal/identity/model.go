package identity

import (
	"errors"
	"time"
)

// Role grants access to a route group.
type Role string

const (
	RoleUser  Role = "USER"
	RoleAdmin Role = "ADMIN"
)

var (
	ErrUserExists         = errors.New("username already exists")
	ErrUserNotFound       = errors.New("user not found")
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrInvalidUser        = errors.New("invalid user")
)

// User is an account that owns cards or administers them.
type User struct {
	ID           string
	Username     string
	PasswordHash []byte
	Roles        []Role
	TokenVersion int
	CreatedAt    time.Time
}

// HasRole reports whether the user carries role.
func (u User) HasRole(role Role) bool {
	for _, r := range u.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// RoleNames returns the roles as plain strings.
func (u User) RoleNames() []string {
	out := make([]string, 0, len(u.Roles))
	for _, r := range u.Roles {
		out = append(out, string(r))
	}
	return out
}
