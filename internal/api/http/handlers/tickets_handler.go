package handlers

import (
	"errors"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/helpdesk-service/internal/api/dto"
	"github.com/spec-kit/helpdesk-service/internal/auth"
	"github.com/spec-kit/helpdesk-service/internal/domain"
	"github.com/spec-kit/helpdesk-service/internal/service"
	apperrors "github.com/spec-kit/helpdesk-service/pkg/util/errorutil"
)

// TicketsHandler manages ticket and comment endpoints scoped to an organization.
type TicketsHandler struct {
	service *service.TicketService
}

// NewTicketsHandler constructs handler.
func NewTicketsHandler(ticketService *service.TicketService) *TicketsHandler {
	return &TicketsHandler{service: ticketService}
}

// ListTickets GET /api/v1/orgs/:orgId/tickets.
func (h *TicketsHandler) ListTickets(c *fiber.Ctx) error {
	query, err := parseTicketListQuery(c)
	if err != nil {
		return err
	}
	page, err := h.service.ListTickets(c.UserContext(), query)
	if err != nil {
		return err
	}
	items := make([]dto.TicketResponse, 0, len(page.Data))
	for i := range page.Data {
		items = append(items, dto.NewTicketResponse(&page.Data[i]))
	}
	return c.JSON(dto.TicketListResponse{Data: items, HasMore: page.HasMore, NextCursor: page.NextCursor})
}

// CreateTicket POST /api/v1/orgs/:orgId/tickets.
func (h *TicketsHandler) CreateTicket(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}
	var req dto.CreateTicketRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewInvalidInput("invalid payload", nil)
	}
	ticket, err := h.service.CreateTicket(c.UserContext(), c.Params("orgId"), principal.User.ID, service.TicketCreateInput{
		Title:      req.Title,
		Content:    req.Content,
		Priority:   req.Priority,
		AssigneeID: req.AssigneeID,
	})
	if err != nil {
		return err
	}
	setETag(c, ticket.Version)
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"data": dto.NewTicketResponse(ticket)})
}

// GetTicket GET /api/v1/orgs/:orgId/tickets/:ticketId.
func (h *TicketsHandler) GetTicket(c *fiber.Ctx) error {
	ticket, err := h.service.GetTicket(c.UserContext(), c.Params("orgId"), c.Params("ticketId"))
	if err != nil {
		return err
	}
	setETag(c, ticket.Version)
	return c.JSON(fiber.Map{"data": dto.NewTicketResponse(ticket)})
}

// UpdateTicket PATCH /api/v1/orgs/:orgId/tickets/:ticketId.
// The expected version comes from the body, or from If-Match when absent.
func (h *TicketsHandler) UpdateTicket(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}
	var req dto.UpdateTicketRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewInvalidInput("invalid payload", nil)
	}
	version, err := expectedVersion(c, req.Version)
	if err != nil {
		return err
	}

	actorID := principal.User.ID
	ticket, err := h.service.UpdateTicket(c.UserContext(), service.TicketUpdateInput{
		OrgID:           c.Params("orgId"),
		TicketID:        c.Params("ticketId"),
		ExpectedVersion: version,
		Patch:           req.Patch(),
		ActorID:         &actorID,
	})
	if err != nil {
		var conflict *service.VersionConflictError
		if errors.As(err, &conflict) {
			return apperrors.NewVersionConflict("ticket was modified by another request", map[string]any{
				"expected_version": conflict.Expected,
				"current_version":  conflict.Current.Version,
				"current":          dto.NewTicketResponse(conflict.Current),
			})
		}
		return err
	}
	setETag(c, ticket.Version)
	return c.JSON(fiber.Map{"data": dto.NewTicketResponse(ticket)})
}

// AddComment POST /api/v1/orgs/:orgId/tickets/:ticketId/comments.
func (h *TicketsHandler) AddComment(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}
	var req dto.CreateCommentRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewInvalidInput("invalid payload", nil)
	}
	comment, err := h.service.AddComment(c.UserContext(), c.Params("orgId"), c.Params("ticketId"), principal.User.ID, req.Body)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"data": dto.NewCommentResponse(comment)})
}

// ListComments GET /api/v1/orgs/:orgId/tickets/:ticketId/comments.
func (h *TicketsHandler) ListComments(c *fiber.Ctx) error {
	comments, err := h.service.ListComments(c.UserContext(), c.Params("orgId"), c.Params("ticketId"))
	if err != nil {
		return err
	}
	items := make([]dto.CommentResponse, 0, len(comments))
	for i := range comments {
		items = append(items, dto.NewCommentResponse(&comments[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

func parseTicketListQuery(c *fiber.Ctx) (service.TicketListQuery, error) {
	query := service.TicketListQuery{
		OrgID:  c.Params("orgId"),
		Cursor: c.Query("cursor"),
		Order:  domain.SortOrder(strings.ToLower(c.Query("order"))),
	}
	if raw := c.Query("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil {
			return query, apperrors.NewInvalidInput("limit must be an integer", map[string]any{"field": "limit"})
		}
		query.Limit = &limit
	}
	for _, part := range splitCSV(c.Query("status")) {
		query.Statuses = append(query.Statuses, domain.TicketStatus(part))
	}
	for _, part := range splitCSV(c.Query("priority")) {
		query.Priorities = append(query.Priorities, domain.TicketPriority(part))
	}
	if assignee := strings.TrimSpace(c.Query("assignee_id")); assignee != "" {
		query.AssigneeID = &assignee
	}
	return query, nil
}

func splitCSV(val string) []string {
	if val == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(val, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func expectedVersion(c *fiber.Ctx, fromBody *int) (int, error) {
	if fromBody != nil {
		return *fromBody, nil
	}
	raw := strings.TrimSpace(c.Get(fiber.HeaderIfMatch))
	if raw == "" {
		return 0, apperrors.NewInvalidInput("version is required", map[string]any{"field": "version"})
	}
	raw = strings.Trim(strings.TrimPrefix(raw, "W/"), `"`)
	version, err := strconv.Atoi(raw)
	if err != nil {
		return 0, apperrors.NewInvalidInput("If-Match must carry a ticket version", map[string]any{"field": "version"})
	}
	return version, nil
}

func setETag(c *fiber.Ctx, version int) {
	c.Set(fiber.HeaderETag, strconv.Quote(strconv.Itoa(version)))
}
