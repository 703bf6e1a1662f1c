package auth

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/helpdesk-service/internal/domain"
	apperrors "github.com/spec-kit/helpdesk-service/pkg/util/errorutil"
)

// Capability is an action a role may perform.
type Capability string

const (
	CapTicketRead   Capability = "ticket:read"
	CapTicketCreate Capability = "ticket:create"
	CapTicketUpdate Capability = "ticket:update"
	CapCommentWrite Capability = "comment:write"
)

var roleCapabilities = map[domain.UserRole][]Capability{
	domain.UserRoleCustomer: {CapTicketRead, CapTicketCreate, CapCommentWrite},
	domain.UserRoleAgent:    {CapTicketRead, CapTicketCreate, CapTicketUpdate, CapCommentWrite},
	domain.UserRoleAdmin:    {CapTicketRead, CapTicketCreate, CapTicketUpdate, CapCommentWrite},
}

// Can reports whether role grants capability.
func Can(role domain.UserRole, capability Capability) bool {
	for _, granted := range roleCapabilities[role] {
		if granted == capability {
			return true
		}
	}
	return false
}

// RequireOrgMember ensures the caller belongs to the organization named by
// the route parameter. Other tenants get 404 so existence does not leak.
func RequireOrgMember(param string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		principal, ok := PrincipalFromContext(c)
		if !ok {
			return apperrors.NewUnauthorized("authentication required")
		}
		if principal.User.OrgID != c.Params(param) {
			return apperrors.NewNotFound("organization", nil)
		}
		return c.Next()
	}
}

// RequireCapability ensures the caller's role grants capability.
func RequireCapability(capability Capability) fiber.Handler {
	return func(c *fiber.Ctx) error {
		principal, ok := PrincipalFromContext(c)
		if !ok {
			return apperrors.NewUnauthorized("authentication required")
		}
		if !Can(principal.User.Role, capability) {
			return apperrors.NewForbidden("insufficient role")
		}
		return c.Next()
	}
}
