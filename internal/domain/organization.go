package domain

import "time"

// Organization is the tenant boundary that owns users and tickets.
type Organization struct {
	ID        string
	Name      string
	Slug      string
	CreatedAt time.Time
}
