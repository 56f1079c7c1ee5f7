// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"
	"errors"

	"github.com/severalx/site/internal/domain"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("not found")

// Repository defines the interface for persisting leads and members.
type Repository interface {
	// SaveLead stores a contact form submission, assigning ID and CreatedAt if unset.
	SaveLead(ctx context.Context, lead *domain.Lead) error

	// ListLeads returns the most recent leads first.
	ListLeads(ctx context.Context, limit int) ([]*domain.Lead, error)

	// UpsertMember creates or updates a member keyed by email.
	UpsertMember(ctx context.Context, member *domain.Member) error

	// GetMemberByEmail returns ErrNotFound when no member has that email.
	GetMemberByEmail(ctx context.Context, email string) (*domain.Member, error)

	// Ping verifies database connectivity and returns an error if the database is unreachable.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}
