package dto

import (
	"encoding/json"
	"time"

	"github.com/spec-kit/helpdesk-service/internal/domain"
)

// OptionalString distinguishes an absent JSON field from an explicit null.
type OptionalString struct {
	Set   bool
	Value *string
}

// UnmarshalJSON records that the field was present.
func (o *OptionalString) UnmarshalJSON(data []byte) error {
	o.Set = true
	if string(data) == "null" {
		o.Value = nil
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	o.Value = &s
	return nil
}

// CreateTicketRequest payload.
type CreateTicketRequest struct {
	Title      string                `json:"title"`
	Content    *string               `json:"content"`
	Priority   domain.TicketPriority `json:"priority"`
	AssigneeID *string               `json:"assignee_id"`
}

// UpdateTicketRequest payload. Version is the version the client last saw.
type UpdateTicketRequest struct {
	Version    *int                   `json:"version"`
	Status     *domain.TicketStatus   `json:"status"`
	Priority   *domain.TicketPriority `json:"priority"`
	Title      *string                `json:"title"`
	Content    OptionalString         `json:"content"`
	AssigneeID OptionalString         `json:"assignee_id"`
}

// Patch converts the request into a domain patch.
func (r UpdateTicketRequest) Patch() domain.TicketPatch {
	return domain.TicketPatch{
		Status:   r.Status,
		Priority: r.Priority,
		Title:    r.Title,
		Content:  domain.NullableString{Set: r.Content.Set, Value: r.Content.Value},
		Assignee: domain.NullableString{Set: r.AssigneeID.Set, Value: r.AssigneeID.Value},
	}
}

// TicketResponse representation.
type TicketResponse struct {
	ID         string                `json:"id"`
	OrgID      string                `json:"org_id"`
	ReporterID string                `json:"reporter_id"`
	AssigneeID *string               `json:"assignee_id"`
	Title      string                `json:"title"`
	Content    *string               `json:"content"`
	Status     domain.TicketStatus   `json:"status"`
	Priority   domain.TicketPriority `json:"priority"`
	Version    int                   `json:"version"`
	CreatedAt  time.Time             `json:"created_at"`
	UpdatedAt  time.Time             `json:"updated_at"`
}

// NewTicketResponse maps a ticket to its wire form.
func NewTicketResponse(t *domain.Ticket) TicketResponse {
	return TicketResponse{
		ID:         t.ID,
		OrgID:      t.OrgID,
		ReporterID: t.ReporterID,
		AssigneeID: t.AssigneeID,
		Title:      t.Title,
		Content:    t.Content,
		Status:     t.Status,
		Priority:   t.Priority,
		Version:    t.Version,
		CreatedAt:  t.CreatedAt,
		UpdatedAt:  t.UpdatedAt,
	}
}

// TicketListResponse is one page of tickets.
type TicketListResponse struct {
	Data       []TicketResponse `json:"data"`
	HasMore    bool             `json:"has_more"`
	NextCursor *string          `json:"next_cursor"`
}

// CreateCommentRequest payload.
type CreateCommentRequest struct {
	Body string `json:"body"`
}

// CommentResponse representation.
type CommentResponse struct {
	ID        string    `json:"id"`
	TicketID  string    `json:"ticket_id"`
	AuthorID  string    `json:"author_id"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
}

// NewCommentResponse maps a comment to its wire form.
func NewCommentResponse(c *domain.Comment) CommentResponse {
	return CommentResponse{
		ID:        c.ID,
		TicketID:  c.TicketID,
		AuthorID:  c.AuthorID,
		Body:      c.Body,
		CreatedAt: c.CreatedAt,
	}
}
