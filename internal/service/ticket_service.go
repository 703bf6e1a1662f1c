package service

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-service/internal/domain"
	"github.com/spec-kit/helpdesk-service/internal/events"
	"github.com/spec-kit/helpdesk-service/internal/pagination"
	"github.com/spec-kit/helpdesk-service/internal/repository"
	apperrors "github.com/spec-kit/helpdesk-service/pkg/util/errorutil"
)

// TicketService coordinates ticket workflows. It keeps no mutable state of
// its own; concurrent writers are serialized by the store.
type TicketService struct {
	tickets    repository.TicketRepository
	comments   repository.CommentRepository
	users      repository.UserRepository
	cursors    *pagination.Codec
	limits     pagination.Limits
	dispatcher events.Dispatcher
	eventWait  time.Duration
	logger     *zap.Logger
}

// TicketDependencies bundles collaborators for ticket service.
type TicketDependencies struct {
	TicketRepo  repository.TicketRepository
	CommentRepo repository.CommentRepository
	UserRepo    repository.UserRepository
	Cursors     *pagination.Codec
	Limits      pagination.Limits
	Dispatcher  events.Dispatcher
	// EventTimeout bounds event fan-out after a committed write.
	// Zero means DefaultEventTimeout.
	EventTimeout time.Duration
	Logger       *zap.Logger
}

// TicketListQuery describes one page request.
type TicketListQuery struct {
	OrgID      string
	Limit      *int
	Cursor     string
	Order      domain.SortOrder
	Statuses   []domain.TicketStatus
	Priorities []domain.TicketPriority
	AssigneeID *string
}

// TicketPage is a window of tickets plus the token for the next window.
// NextCursor is set exactly when HasMore is true.
type TicketPage struct {
	Data       []domain.Ticket
	HasMore    bool
	NextCursor *string
}

// TicketCreateInput describes ticket creation payload.
type TicketCreateInput struct {
	Title      string
	Content    *string
	Priority   domain.TicketPriority
	AssigneeID *string
}

// TicketUpdateInput describes a versioned ticket mutation.
type TicketUpdateInput struct {
	OrgID           string
	TicketID        string
	ExpectedVersion int
	Patch           domain.TicketPatch
	ActorID         *string
}

// VersionConflictError reports that the ticket moved past ExpectedVersion.
// Current is the ticket as it is now stored, for the caller to merge and retry.
type VersionConflictError struct {
	Expected int
	Current  *domain.Ticket
}

func (e *VersionConflictError) Error() string {
	return fmt.Sprintf("ticket %s: expected version %d, current version %d",
		e.Current.ID, e.Expected, e.Current.Version)
}

func (e *VersionConflictError) Unwrap() error {
	return apperrors.NewVersionConflict("ticket was modified by another request", map[string]any{
		"expected_version": e.Expected,
		"current_version":  e.Current.Version,
	})
}

// DefaultEventTimeout caps how long a write waits on its event subscribers.
const DefaultEventTimeout = 2 * time.Second

// NewTicketService constructs the service.
func NewTicketService(deps TicketDependencies) *TicketService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	eventWait := deps.EventTimeout
	if eventWait <= 0 {
		eventWait = DefaultEventTimeout
	}
	return &TicketService{
		tickets:    deps.TicketRepo,
		comments:   deps.CommentRepo,
		users:      deps.UserRepo,
		cursors:    deps.Cursors,
		limits:     deps.Limits,
		dispatcher: deps.Dispatcher,
		eventWait:  eventWait,
		logger:     logger,
	}
}

// ListTickets returns a keyset-paginated window of an organization's tickets.
func (s *TicketService) ListTickets(ctx context.Context, q TicketListQuery) (*TicketPage, error) {
	if err := requireID("org_id", q.OrgID); err != nil {
		return nil, err
	}
	limit, err := s.limits.Resolve(q.Limit)
	if err != nil {
		return nil, apperrors.NewInvalidInput(err.Error(), map[string]any{"field": "limit"})
	}
	order := q.Order
	if order == "" {
		order = domain.SortNewestFirst
	}
	if !order.Valid() {
		return nil, apperrors.NewInvalidInput("order must be asc or desc", map[string]any{"field": "order"})
	}
	for _, status := range q.Statuses {
		if !status.Valid() {
			return nil, invalidEnum("status", string(status))
		}
	}
	for _, priority := range q.Priorities {
		if !priority.Valid() {
			return nil, invalidEnum("priority", string(priority))
		}
	}
	if q.AssigneeID != nil {
		if err := requireID("assignee_id", *q.AssigneeID); err != nil {
			return nil, err
		}
	}

	var after *repository.Position
	if q.Cursor != "" {
		cur, err := s.cursors.Decode(q.Cursor)
		if err != nil {
			return nil, apperrors.NewInvalidInput("malformed cursor", map[string]any{"field": "cursor"})
		}
		if cur.Order != order {
			return nil, apperrors.NewInvalidInput("cursor was issued for a different order", map[string]any{"field": "cursor"})
		}
		after = &repository.Position{CreatedAt: cur.CreatedAt, ID: cur.ID}
	}

	rows, err := s.tickets.ListPage(ctx, repository.TicketPageQuery{
		Filter: repository.TicketFilter{
			OrgID:      q.OrgID,
			Statuses:   q.Statuses,
			Priorities: q.Priorities,
			AssigneeID: q.AssigneeID,
		},
		Order: order,
		After: after,
		Limit: limit + 1,
	})
	if err != nil {
		return nil, storeError(err)
	}

	page := &TicketPage{Data: rows}
	if len(rows) > limit {
		page.Data = rows[:limit]
		page.HasMore = true
		last := page.Data[limit-1]
		token, err := s.cursors.Encode(pagination.Cursor{CreatedAt: last.CreatedAt, ID: last.ID, Order: order})
		if err != nil {
			return nil, apperrors.NewInternalError(err)
		}
		page.NextCursor = &token
	}
	return page, nil
}

// UpdateTicket applies a patch if the ticket is still at ExpectedVersion.
// The version check and bump happen in one conditional write; a miss is then
// classified as not found or as a conflict carrying the current ticket.
func (s *TicketService) UpdateTicket(ctx context.Context, in TicketUpdateInput) (*domain.Ticket, error) {
	if err := requireID("org_id", in.OrgID); err != nil {
		return nil, err
	}
	if err := requireID("ticket_id", in.TicketID); err != nil {
		return nil, err
	}
	if in.ExpectedVersion < domain.InitialTicketVersion || in.ExpectedVersion > math.MaxInt32 {
		return nil, apperrors.NewInvalidInput("version must be a positive 32-bit integer", map[string]any{"field": "version"})
	}
	patch, err := s.normalizePatch(ctx, in.OrgID, in.Patch)
	if err != nil {
		return nil, err
	}

	updated, err := s.tickets.UpdateIfVersion(ctx, in.OrgID, in.TicketID, in.ExpectedVersion, patch)
	if err == nil {
		s.publishEvent(ctx, events.Event{
			Type:     events.EventTicketUpdated,
			OrgID:    updated.OrgID,
			TicketID: updated.ID,
			ActorID:  in.ActorID,
			Payload: events.TicketUpdatedPayload{
				Version:  updated.Version,
				Changed:  changedFields(patch),
				Status:   updated.Status,
				Priority: updated.Priority,
				Assignee: updated.AssigneeID,
			},
		})
		return updated, nil
	}
	if !repository.IsNotFound(err) {
		return nil, storeError(err)
	}

	current, err := s.tickets.GetByID(ctx, in.OrgID, in.TicketID)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, apperrors.NewNotFound("ticket", map[string]any{"ticket_id": in.TicketID})
		}
		return nil, storeError(err)
	}
	return nil, &VersionConflictError{Expected: in.ExpectedVersion, Current: current}
}

// CreateTicket files a ticket on behalf of reporterID.
func (s *TicketService) CreateTicket(ctx context.Context, orgID, reporterID string, input TicketCreateInput) (*domain.Ticket, error) {
	if err := requireID("org_id", orgID); err != nil {
		return nil, err
	}
	if err := s.requireMember(ctx, orgID, reporterID, "reporter_id"); err != nil {
		return nil, err
	}
	title := strings.TrimSpace(input.Title)
	if title == "" {
		return nil, apperrors.NewInvalidInput("title required", map[string]any{"field": "title"})
	}
	priority := input.Priority
	if priority == "" {
		priority = domain.TicketPriorityMedium
	}
	if !priority.Valid() {
		return nil, invalidEnum("priority", string(priority))
	}
	if input.AssigneeID != nil {
		if err := s.requireMember(ctx, orgID, *input.AssigneeID, "assignee_id"); err != nil {
			return nil, err
		}
	}

	ticket := &domain.Ticket{
		OrgID:      orgID,
		ReporterID: reporterID,
		AssigneeID: input.AssigneeID,
		Title:      title,
		Content:    input.Content,
		Status:     domain.TicketStatusOpen,
		Priority:   priority,
	}
	if err := s.tickets.Create(ctx, ticket); err != nil {
		return nil, storeError(err)
	}
	s.publishEvent(ctx, events.Event{
		Type:     events.EventTicketCreated,
		OrgID:    orgID,
		TicketID: ticket.ID,
		ActorID:  &reporterID,
		Payload: events.TicketCreatedPayload{
			ReporterID: reporterID,
			AssigneeID: ticket.AssigneeID,
			Priority:   ticket.Priority,
			Title:      ticket.Title,
		},
	})
	return ticket, nil
}

// GetTicket fetches a ticket within its organization.
func (s *TicketService) GetTicket(ctx context.Context, orgID, ticketID string) (*domain.Ticket, error) {
	if err := requireID("org_id", orgID); err != nil {
		return nil, err
	}
	if err := requireID("ticket_id", ticketID); err != nil {
		return nil, err
	}
	ticket, err := s.tickets.GetByID(ctx, orgID, ticketID)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, apperrors.NewNotFound("ticket", map[string]any{"ticket_id": ticketID})
		}
		return nil, storeError(err)
	}
	return ticket, nil
}

// AddComment appends an immutable comment to a ticket.
func (s *TicketService) AddComment(ctx context.Context, orgID, ticketID, authorID, body string) (*domain.Comment, error) {
	ticket, err := s.GetTicket(ctx, orgID, ticketID)
	if err != nil {
		return nil, err
	}
	if err := s.requireMember(ctx, orgID, authorID, "author_id"); err != nil {
		return nil, err
	}
	body = strings.TrimSpace(body)
	if body == "" {
		return nil, apperrors.NewInvalidInput("body required", map[string]any{"field": "body"})
	}

	comment := &domain.Comment{TicketID: ticket.ID, AuthorID: authorID, Body: body}
	if err := s.comments.Create(ctx, comment); err != nil {
		return nil, storeError(err)
	}
	s.publishEvent(ctx, events.Event{
		Type:     events.EventCommentAdded,
		OrgID:    orgID,
		TicketID: ticket.ID,
		ActorID:  &authorID,
		Payload: events.CommentAddedPayload{
			CommentID:   comment.ID,
			AuthorID:    authorID,
			BodyPreview: stringPreview(comment.Body, 120),
		},
	})
	return comment, nil
}

// ListComments returns a ticket's comments oldest first.
func (s *TicketService) ListComments(ctx context.Context, orgID, ticketID string) ([]domain.Comment, error) {
	ticket, err := s.GetTicket(ctx, orgID, ticketID)
	if err != nil {
		return nil, err
	}
	comments, err := s.comments.ListByTicket(ctx, ticket.ID)
	if err != nil {
		return nil, storeError(err)
	}
	return comments, nil
}

// normalizePatch validates a patch without touching the ticket row, so a
// rejected patch never consumes a version.
func (s *TicketService) normalizePatch(ctx context.Context, orgID string, patch domain.TicketPatch) (domain.TicketPatch, error) {
	if patch.IsEmpty() {
		return patch, apperrors.NewInvalidInput("patch must change at least one field", nil)
	}
	if patch.Status != nil && !patch.Status.Valid() {
		return patch, invalidEnum("status", string(*patch.Status))
	}
	if patch.Priority != nil && !patch.Priority.Valid() {
		return patch, invalidEnum("priority", string(*patch.Priority))
	}
	if patch.Title != nil {
		title := strings.TrimSpace(*patch.Title)
		if title == "" {
			return patch, apperrors.NewInvalidInput("title must not be blank", map[string]any{"field": "title"})
		}
		patch.Title = &title
	}
	if patch.Assignee.Set && patch.Assignee.Value != nil {
		if err := s.requireMember(ctx, orgID, *patch.Assignee.Value, "assignee_id"); err != nil {
			return patch, err
		}
	}
	return patch, nil
}

// requireMember checks that userID names a user of orgID. A user of another
// organization is reported exactly like an unknown one.
func (s *TicketService) requireMember(ctx context.Context, orgID, userID, field string) error {
	if err := requireID(field, userID); err != nil {
		return err
	}
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if repository.IsNotFound(err) {
			return apperrors.NewInvalidInput(field+" does not belong to organization", map[string]any{"field": field})
		}
		return storeError(err)
	}
	if user.OrgID != orgID {
		return apperrors.NewInvalidInput(field+" does not belong to organization", map[string]any{"field": field})
	}
	return nil
}

func (s *TicketService) publishEvent(ctx context.Context, event events.Event) {
	if s.dispatcher == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	// The write is committed; fan-out ignores request cancellation but is bounded.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.eventWait)
	defer cancel()
	if err := s.dispatcher.Publish(ctx, event); err != nil {
		s.logger.Warn("event delivery failed",
			zap.String("event_type", string(event.Type)),
			zap.String("ticket_id", event.TicketID),
			zap.Error(err))
	}
}

func requireID(field, value string) error {
	if value == "" {
		return apperrors.NewInvalidInput(field+" required", map[string]any{"field": field})
	}
	if _, err := uuid.Parse(value); err != nil {
		return apperrors.NewInvalidInput(field+" must be a UUID", map[string]any{"field": field})
	}
	return nil
}

func invalidEnum(field, value string) error {
	return apperrors.NewInvalidInput(fmt.Sprintf("invalid %s %q", field, value), map[string]any{"field": field})
}

// storeError classifies a repository failure. Values the store refused are
// the caller's fault; everything else means the store could not serve us.
func storeError(err error) error {
	if repository.IsRejectedInput(err) {
		return apperrors.NewInvalidInput("request rejected by store", nil)
	}
	return apperrors.NewStoreUnavailable(err)
}

func changedFields(patch domain.TicketPatch) []string {
	var changed []string
	if patch.Status != nil {
		changed = append(changed, "status")
	}
	if patch.Priority != nil {
		changed = append(changed, "priority")
	}
	if patch.Title != nil {
		changed = append(changed, "title")
	}
	if patch.Content.Set {
		changed = append(changed, "content")
	}
	if patch.Assignee.Set {
		changed = append(changed, "assignee_id")
	}
	return changed
}

func stringPreview(body string, max int) string {
	body = strings.TrimSpace(body)
	if utf8.RuneCountInString(body) <= max {
		return body
	}
	runes := []rune(body)
	if max <= 3 {
		return string(runes[:max])
	}
	return string(runes[:max-3]) + "..."
}
