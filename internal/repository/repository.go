package repository

import (
	"context"
	"errors"

	"shortlink/internal/domain"
)

// Store-level sentinels. Implementations wrap driver errors but always map
// these two conditions so callers can use errors.Is.
var (
	// ErrNotFound is returned when no row matches the lookup.
	ErrNotFound = errors.New("record not found")

	// ErrDuplicateShortCode is returned by LinkRepository.Create when the
	// UNIQUE constraint on short_code rejects the insert. This is the
	// authoritative collision signal for short-code allocation.
	ErrDuplicateShortCode = errors.New("short code already exists")
)

// LinkRepository defines the data access the engine needs for links.
// Implementations must enforce uniqueness of short codes at the storage layer.
type LinkRepository interface {
	// Create inserts a new link and assigns its ID.
	// Returns ErrDuplicateShortCode if the short code is taken.
	Create(ctx context.Context, link *domain.Link) error

	// GetByShortCode loads a link (active or not) with its derived click count.
	GetByShortCode(ctx context.Context, shortCode string) (*domain.Link, error)

	// ExistsShortCode is the optimistic pre-check used by the allocator.
	ExistsShortCode(ctx context.Context, shortCode string) (bool, error)

	// SetActive flips the owner-controlled activation flag.
	SetActive(ctx context.Context, shortCode string, active bool) error

	// Ping verifies the store is reachable.
	Ping(ctx context.Context) error
}

// ClickRepository defines append-only access to click events.
type ClickRepository interface {
	// Create inserts a click event and assigns its ID.
	Create(ctx context.Context, click *domain.Click) error

	// GetByLinkID returns clicks for a link, newest first.
	GetByLinkID(ctx context.Context, linkID string, limit, offset int) ([]*domain.Click, error)

	// CountByLinkID returns the number of clicks recorded for a link.
	CountByLinkID(ctx context.Context, linkID string) (int64, error)
}
