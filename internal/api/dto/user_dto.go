package dto

import (
	"time"

	"github.com/spec-kit/helpdesk-service/internal/domain"
)

// UserLoginRequest payload for login.
type UserLoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// AuthResponse standard response for auth endpoints.
type AuthResponse struct {
	Token     string       `json:"token"`
	ExpiresAt time.Time    `json:"expires_at"`
	User      UserResponse `json:"user"`
}

// UserResponse hides credentials.
type UserResponse struct {
	ID    string          `json:"id"`
	OrgID string          `json:"org_id"`
	Email string          `json:"email"`
	Role  domain.UserRole `json:"role"`
}

// NewUserResponse maps a user to its wire form.
func NewUserResponse(u *domain.User) UserResponse {
	return UserResponse{ID: u.ID, OrgID: u.OrgID, Email: u.Email, Role: u.Role}
}

// OrganizationResponse representation.
type OrganizationResponse struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Slug      string    `json:"slug"`
	CreatedAt time.Time `json:"created_at"`
}

// NewOrganizationResponse maps an organization to its wire form.
func NewOrganizationResponse(o *domain.Organization) OrganizationResponse {
	return OrganizationResponse{ID: o.ID, Name: o.Name, Slug: o.Slug, CreatedAt: o.CreatedAt}
}
