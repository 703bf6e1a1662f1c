package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/helpdesk-service/internal/api/dto"
	"github.com/spec-kit/helpdesk-service/internal/service"
)

// OrganizationsHandler serves tenant metadata.
type OrganizationsHandler struct {
	service *service.OrganizationService
}

// NewOrganizationsHandler constructs handler.
func NewOrganizationsHandler(orgService *service.OrganizationService) *OrganizationsHandler {
	return &OrganizationsHandler{service: orgService}
}

// Get handles GET /api/v1/orgs/:orgId.
func (h *OrganizationsHandler) Get(c *fiber.Ctx) error {
	org, err := h.service.GetOrganization(c.UserContext(), c.Params("orgId"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewOrganizationResponse(org)})
}
