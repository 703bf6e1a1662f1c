package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/helpdesk-service/internal/domain"
)

// TicketFilter narrows a listing. OrgID is mandatory; the rest are ANDed.
type TicketFilter struct {
	OrgID      string
	Statuses   []domain.TicketStatus
	Priorities []domain.TicketPriority
	AssigneeID *string
}

// Position is a (created_at, id) keyset position.
type Position struct {
	CreatedAt time.Time
	ID        string
}

// TicketPageQuery selects up to Limit tickets strictly after After in Order.
type TicketPageQuery struct {
	Filter TicketFilter
	Order  domain.SortOrder
	After  *Position
	Limit  int
}

// TicketRepository encapsulates ticket persistence.
type TicketRepository interface {
	Create(ctx context.Context, ticket *domain.Ticket) error
	GetByID(ctx context.Context, orgID, id string) (*domain.Ticket, error)
	ListPage(ctx context.Context, query TicketPageQuery) ([]domain.Ticket, error)
	// UpdateIfVersion applies patch and bumps the version in one statement,
	// matching only when the row's version equals expectedVersion. It returns
	// pgx.ErrNoRows when nothing matched.
	UpdateIfVersion(ctx context.Context, orgID, id string, expectedVersion int, patch domain.TicketPatch) (*domain.Ticket, error)
}

type ticketRepository struct {
	pool *pgxpool.Pool
}

// NewTicketRepository instantiates repository.
func NewTicketRepository(pool *pgxpool.Pool) TicketRepository {
	return &ticketRepository{pool: pool}
}

const ticketColumns = `id, org_id, reporter_id, assignee_id, title, content, status, priority, version, created_at, updated_at`

func (r *ticketRepository) Create(ctx context.Context, ticket *domain.Ticket) error {
	const query = `
        INSERT INTO tickets (org_id, reporter_id, assignee_id, title, content, status, priority)
        VALUES ($1,$2,$3,$4,$5,$6,$7)
        RETURNING id, version, created_at, updated_at`
	return r.pool.QueryRow(ctx, query,
		ticket.OrgID,
		ticket.ReporterID,
		ticket.AssigneeID,
		ticket.Title,
		ticket.Content,
		ticket.Status,
		ticket.Priority,
	).Scan(&ticket.ID, &ticket.Version, &ticket.CreatedAt, &ticket.UpdatedAt)
}

func (r *ticketRepository) GetByID(ctx context.Context, orgID, id string) (*domain.Ticket, error) {
	const query = `SELECT ` + ticketColumns + ` FROM tickets WHERE id=$1 AND org_id=$2`
	return scanTicket(r.pool.QueryRow(ctx, query, id, orgID))
}

func (r *ticketRepository) UpdateIfVersion(ctx context.Context, orgID, id string, expectedVersion int, patch domain.TicketPatch) (*domain.Ticket, error) {
	const query = `
        UPDATE tickets SET
            status = COALESCE($4, status),
            priority = COALESCE($5, priority),
            title = COALESCE($6, title),
            content = CASE WHEN $7::boolean THEN $8::text ELSE content END,
            assignee_id = CASE WHEN $9::boolean THEN $10::uuid ELSE assignee_id END,
            version = version + 1,
            updated_at = NOW()
        WHERE id=$1 AND org_id=$2 AND version=$3
        RETURNING ` + ticketColumns
	return scanTicket(r.pool.QueryRow(ctx, query,
		id,
		orgID,
		expectedVersion,
		patch.Status,
		patch.Priority,
		patch.Title,
		patch.Content.Set,
		patch.Content.Value,
		patch.Assignee.Set,
		patch.Assignee.Value,
	))
}

func (r *ticketRepository) ListPage(ctx context.Context, q TicketPageQuery) ([]domain.Ticket, error) {
	query, args := buildTicketPageQuery(q)
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTickets(rows)
}

// buildTicketPageQuery renders the keyset SELECT for q with its positional args.
func buildTicketPageQuery(q TicketPageQuery) (string, []any) {
	clauses, args := ticketFilterClauses(q.Filter)

	direction, comparator := "DESC", "<"
	if q.Order == domain.SortOldestFirst {
		direction, comparator = "ASC", ">"
	}
	if q.After != nil {
		args = append(args, q.After.CreatedAt, q.After.ID)
		clauses = append(clauses, fmt.Sprintf("(created_at, id) %s ($%d, $%d::uuid)", comparator, len(args)-1, len(args)))
	}
	args = append(args, q.Limit)

	query := fmt.Sprintf(`SELECT %s FROM tickets WHERE %s ORDER BY created_at %s, id %s LIMIT $%d`,
		ticketColumns, strings.Join(clauses, " AND "), direction, direction, len(args))
	return query, args
}

func ticketFilterClauses(filter TicketFilter) ([]string, []any) {
	args := []any{filter.OrgID}
	clauses := []string{"org_id=$1"}

	if filter.AssigneeID != nil {
		args = append(args, *filter.AssigneeID)
		clauses = append(clauses, fmt.Sprintf("assignee_id=$%d", len(args)))
	}
	if len(filter.Statuses) > 0 {
		placeholders := make([]string, len(filter.Statuses))
		for i, status := range filter.Statuses {
			args = append(args, status)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		clauses = append(clauses, fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ",")))
	}
	if len(filter.Priorities) > 0 {
		placeholders := make([]string, len(filter.Priorities))
		for i, pr := range filter.Priorities {
			args = append(args, pr)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		clauses = append(clauses, fmt.Sprintf("priority IN (%s)", strings.Join(placeholders, ",")))
	}
	return clauses, args
}

func scanTicket(row pgx.Row) (*domain.Ticket, error) {
	var ticket domain.Ticket
	if err := row.Scan(
		&ticket.ID,
		&ticket.OrgID,
		&ticket.ReporterID,
		&ticket.AssigneeID,
		&ticket.Title,
		&ticket.Content,
		&ticket.Status,
		&ticket.Priority,
		&ticket.Version,
		&ticket.CreatedAt,
		&ticket.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &ticket, nil
}

func scanTickets(rows pgx.Rows) ([]domain.Ticket, error) {
	result := []domain.Ticket{}
	for rows.Next() {
		ticket, err := scanTicket(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *ticket)
	}
	return result, rows.Err()
}
