package domain

import "time"

// TicketStatus enumerates lifecycle states for tickets.
type TicketStatus string

const (
	TicketStatusOpen       TicketStatus = "open"
	TicketStatusInProgress TicketStatus = "in_progress"
	TicketStatusResolved   TicketStatus = "resolved"
	TicketStatusClosed     TicketStatus = "closed"
)

// Valid reports whether the status is a known lifecycle state.
func (s TicketStatus) Valid() bool {
	switch s {
	case TicketStatusOpen, TicketStatusInProgress, TicketStatusResolved, TicketStatusClosed:
		return true
	}
	return false
}

// TicketPriority enumerates urgency levels.
type TicketPriority string

const (
	TicketPriorityLow    TicketPriority = "low"
	TicketPriorityMedium TicketPriority = "medium"
	TicketPriorityHigh   TicketPriority = "high"
)

// Valid reports whether the priority is a known level.
func (p TicketPriority) Valid() bool {
	switch p {
	case TicketPriorityLow, TicketPriorityMedium, TicketPriorityHigh:
		return true
	}
	return false
}

// InitialTicketVersion is the version every ticket is created with.
const InitialTicketVersion = 1

// Ticket is the aggregate for support requests.
type Ticket struct {
	ID         string
	OrgID      string
	ReporterID string
	AssigneeID *string
	Title      string
	Content    *string
	Status     TicketStatus
	Priority   TicketPriority
	Version    int
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// NullableString is a patch field that can be left alone, set, or cleared.
// Set with a nil Value clears the column.
type NullableString struct {
	Set   bool
	Value *string
}

// TicketPatch lists the fields a ticket update may change.
type TicketPatch struct {
	Status   *TicketStatus
	Priority *TicketPriority
	Title    *string
	Content  NullableString
	Assignee NullableString
}

// IsEmpty reports whether the patch changes nothing.
func (p TicketPatch) IsEmpty() bool {
	return p.Status == nil && p.Priority == nil && p.Title == nil && !p.Content.Set && !p.Assignee.Set
}

// Apply copies the patched fields onto t.
func (p TicketPatch) Apply(t *Ticket) {
	if p.Status != nil {
		t.Status = *p.Status
	}
	if p.Priority != nil {
		t.Priority = *p.Priority
	}
	if p.Title != nil {
		t.Title = *p.Title
	}
	if p.Content.Set {
		t.Content = p.Content.Value
	}
	if p.Assignee.Set {
		t.AssigneeID = p.Assignee.Value
	}
}

// SortOrder is the direction tickets are listed in.
type SortOrder string

const (
	SortNewestFirst SortOrder = "desc"
	SortOldestFirst SortOrder = "asc"
)

// Valid reports whether the order is supported.
func (o SortOrder) Valid() bool {
	return o == SortNewestFirst || o == SortOldestFirst
}
