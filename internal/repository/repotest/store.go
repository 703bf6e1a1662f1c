// Package repotest provides an in-memory implementation of the repository
// interfaces for tests. Writes to a ticket are serialized by a single mutex,
// which gives the same single-row compare-and-set behaviour the Postgres
// UPDATE ... WHERE version = $n statement relies on.
package repotest

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/helpdesk-service/internal/domain"
	"github.com/spec-kit/helpdesk-service/internal/repository"
)

// Store holds every table in memory.
type Store struct {
	mu       sync.Mutex
	now      func() time.Time
	failWith error

	orgs     map[string]domain.Organization
	users    map[string]domain.User
	tickets  map[string]domain.Ticket
	comments []domain.Comment
}

// NewStore returns an empty store using the wall clock.
func NewStore() *Store {
	return &Store{
		now:     time.Now,
		orgs:    map[string]domain.Organization{},
		users:   map[string]domain.User{},
		tickets: map[string]domain.Ticket{},
	}
}

// SetClock replaces the clock used for created_at and updated_at.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// FailWith makes every subsequent call return err. Pass nil to recover.
func (s *Store) FailWith(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failWith = err
}

// AddOrganization seeds a tenant.
func (s *Store) AddOrganization(name, slug string) domain.Organization {
	s.mu.Lock()
	defer s.mu.Unlock()
	org := domain.Organization{ID: uuid.NewString(), Name: name, Slug: slug, CreatedAt: s.stamp()}
	s.orgs[org.ID] = org
	return org
}

// AddUser seeds a member of orgID.
func (s *Store) AddUser(orgID, email string, role domain.UserRole, passwordHash string) domain.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	user := domain.User{
		ID:           uuid.NewString(),
		OrgID:        orgID,
		Email:        email,
		Role:         role,
		PasswordHash: passwordHash,
		CreatedAt:    s.stamp(),
	}
	s.users[user.ID] = user
	return user
}

// PutTicket stores t as-is, filling in an id and version when missing.
func (s *Store) PutTicket(t domain.Ticket) domain.Ticket {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.Version == 0 {
		t.Version = domain.InitialTicketVersion
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = s.stamp()
	}
	if t.UpdatedAt.IsZero() {
		t.UpdatedAt = t.CreatedAt
	}
	s.tickets[t.ID] = t
	return t
}

// Ticket returns the stored row regardless of organization.
func (s *Store) Ticket(id string) (domain.Ticket, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tickets[id]
	return t, ok
}

// Organizations exposes the store as a repository.OrganizationRepository.
func (s *Store) Organizations() repository.OrganizationRepository { return orgRepo{s} }

// Users exposes the store as a repository.UserRepository.
func (s *Store) Users() repository.UserRepository { return userRepo{s} }

// Tickets exposes the store as a repository.TicketRepository.
func (s *Store) Tickets() repository.TicketRepository { return ticketRepo{s} }

// Comments exposes the store as a repository.CommentRepository.
func (s *Store) Comments() repository.CommentRepository { return commentRepo{s} }

func (s *Store) stamp() time.Time {
	return s.now().UTC().Truncate(time.Microsecond)
}

func (s *Store) begin(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	if s.failWith != nil {
		err := s.failWith
		s.mu.Unlock()
		return err
	}
	return nil
}

type orgRepo struct{ s *Store }

func (r orgRepo) GetByID(ctx context.Context, id string) (*domain.Organization, error) {
	if err := r.s.begin(ctx); err != nil {
		return nil, err
	}
	defer r.s.mu.Unlock()
	org, ok := r.s.orgs[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return &org, nil
}

type userRepo struct{ s *Store }

func (r userRepo) GetByID(ctx context.Context, id string) (*domain.User, error) {
	if err := r.s.begin(ctx); err != nil {
		return nil, err
	}
	defer r.s.mu.Unlock()
	user, ok := r.s.users[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return &user, nil
}

func (r userRepo) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	if err := r.s.begin(ctx); err != nil {
		return nil, err
	}
	defer r.s.mu.Unlock()
	for _, user := range r.s.users {
		if user.Email == email {
			u := user
			return &u, nil
		}
	}
	return nil, pgx.ErrNoRows
}

type ticketRepo struct{ s *Store }

func (r ticketRepo) Create(ctx context.Context, ticket *domain.Ticket) error {
	if err := r.s.begin(ctx); err != nil {
		return err
	}
	defer r.s.mu.Unlock()
	ticket.ID = uuid.NewString()
	ticket.Version = domain.InitialTicketVersion
	ticket.CreatedAt = r.s.stamp()
	ticket.UpdatedAt = ticket.CreatedAt
	r.s.tickets[ticket.ID] = cloneTicket(*ticket)
	return nil
}

func (r ticketRepo) GetByID(ctx context.Context, orgID, id string) (*domain.Ticket, error) {
	if err := r.s.begin(ctx); err != nil {
		return nil, err
	}
	defer r.s.mu.Unlock()
	t, ok := r.s.tickets[id]
	if !ok || t.OrgID != orgID {
		return nil, pgx.ErrNoRows
	}
	t = cloneTicket(t)
	return &t, nil
}

func (r ticketRepo) UpdateIfVersion(ctx context.Context, orgID, id string, expectedVersion int, patch domain.TicketPatch) (*domain.Ticket, error) {
	if err := r.s.begin(ctx); err != nil {
		return nil, err
	}
	defer r.s.mu.Unlock()
	t, ok := r.s.tickets[id]
	if !ok || t.OrgID != orgID || t.Version != expectedVersion {
		return nil, pgx.ErrNoRows
	}
	patch.Apply(&t)
	t.Version++
	t.UpdatedAt = r.s.stamp()
	t = cloneTicket(t)
	r.s.tickets[id] = t
	out := cloneTicket(t)
	return &out, nil
}

func (r ticketRepo) ListPage(ctx context.Context, q repository.TicketPageQuery) ([]domain.Ticket, error) {
	if err := r.s.begin(ctx); err != nil {
		return nil, err
	}
	defer r.s.mu.Unlock()

	desc := q.Order != domain.SortOldestFirst
	matched := []domain.Ticket{}
	for _, t := range r.s.tickets {
		if !matchesFilter(t, q.Filter) {
			continue
		}
		if q.After != nil {
			cmp := comparePosition(t, *q.After)
			if desc && cmp >= 0 || !desc && cmp <= 0 {
				continue
			}
		}
		matched = append(matched, cloneTicket(t))
	}
	sort.Slice(matched, func(i, j int) bool {
		cmp := comparePosition(matched[i], repository.Position{CreatedAt: matched[j].CreatedAt, ID: matched[j].ID})
		if desc {
			return cmp > 0
		}
		return cmp < 0
	})
	if len(matched) > q.Limit {
		matched = matched[:q.Limit]
	}
	return matched, nil
}

type commentRepo struct{ s *Store }

func (r commentRepo) Create(ctx context.Context, comment *domain.Comment) error {
	if err := r.s.begin(ctx); err != nil {
		return err
	}
	defer r.s.mu.Unlock()
	comment.ID = uuid.NewString()
	comment.CreatedAt = r.s.stamp()
	r.s.comments = append(r.s.comments, *comment)
	return nil
}

func (r commentRepo) ListByTicket(ctx context.Context, ticketID string) ([]domain.Comment, error) {
	if err := r.s.begin(ctx); err != nil {
		return nil, err
	}
	defer r.s.mu.Unlock()
	result := []domain.Comment{}
	for _, c := range r.s.comments {
		if c.TicketID == ticketID {
			result = append(result, c)
		}
	}
	sort.SliceStable(result, func(i, j int) bool {
		if result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].ID < result[j].ID
		}
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result, nil
}

func matchesFilter(t domain.Ticket, f repository.TicketFilter) bool {
	if t.OrgID != f.OrgID {
		return false
	}
	if f.AssigneeID != nil && (t.AssigneeID == nil || *t.AssigneeID != *f.AssigneeID) {
		return false
	}
	if len(f.Statuses) > 0 && !slices.Contains(f.Statuses, t.Status) {
		return false
	}
	if len(f.Priorities) > 0 && !slices.Contains(f.Priorities, t.Priority) {
		return false
	}
	return true
}

// comparePosition orders t against p by (created_at, id).
func comparePosition(t domain.Ticket, p repository.Position) int {
	switch {
	case t.CreatedAt.Before(p.CreatedAt):
		return -1
	case t.CreatedAt.After(p.CreatedAt):
		return 1
	case t.ID < p.ID:
		return -1
	case t.ID > p.ID:
		return 1
	}
	return 0
}

func cloneTicket(t domain.Ticket) domain.Ticket {
	if t.AssigneeID != nil {
		v := *t.AssigneeID
		t.AssigneeID = &v
	}
	if t.Content != nil {
		v := *t.Content
		t.Content = &v
	}
	return t
}
