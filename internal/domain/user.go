package domain

import "time"

// UserRole describes what a user does inside an organization.
type UserRole string

const (
	UserRoleCustomer UserRole = "customer"
	UserRoleAgent    UserRole = "agent"
	UserRoleAdmin    UserRole = "admin"
)

// Valid reports whether the role is one of the known roles.
func (r UserRole) Valid() bool {
	switch r {
	case UserRoleCustomer, UserRoleAgent, UserRoleAdmin:
		return true
	}
	return false
}

// User belongs to exactly one organization.
type User struct {
	ID           string
	OrgID        string
	Email        string
	Role         UserRole
	PasswordHash string
	CreatedAt    time.Time
}
