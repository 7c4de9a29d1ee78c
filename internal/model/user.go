// Package model defines the data structures used throughout the application.
package model

import "time"

// Role is the closed set of access levels a user account can hold.
//
// The role is stored as plain text in the database and transmitted as-is in
// JSON. Keeping it a string type (rather than an int enum) means the wire
// format, the stored format, and the Go value are all the same thing — no
// translation tables to keep in sync.
type Role string

const (
	RolePatient     Role = "patient"
	RoleProvider    Role = "provider"
	RoleCoordinator Role = "coordinator"
	RoleAdmin       Role = "admin"
)

// Valid reports whether r is one of the four known roles.
// Anything else (including the empty string) is rejected at registration.
func (r Role) Valid() bool {
	switch r {
	case RolePatient, RoleProvider, RoleCoordinator, RoleAdmin:
		return true
	}
	return false
}

// User represents a registered account: a patient, provider, coordinator,
// or administrator.
//
// WHY PasswordHash WITH json:"-"?
// The hash lives on the struct because the repository reads it in one query
// with the rest of the row, and the login path needs it for the bcrypt
// comparison. The `json:"-"` tag guarantees it can never leak into a
// response body, no matter which handler serializes the user.
//
// IsActive is the soft-delete flag. Accounts are never hard-deleted —
// deactivation is the terminal state, and the authentication middleware
// rejects inactive accounts even when their tokens are still valid.
type User struct {
	ID           string    `json:"id"        db:"id"`
	Email        string    `json:"email"     db:"email"` // unique across all accounts
	Name         string    `json:"name"      db:"name"`
	Role         Role      `json:"role"      db:"role"`
	PasswordHash string    `json:"-"         db:"password_hash"`
	IsActive     bool      `json:"isActive"  db:"is_active"`
	CreatedAt    time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt    time.Time `json:"updatedAt" db:"updated_at"`
}
