package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"shortlink/internal/domain"
	"shortlink/internal/metrics"
	"shortlink/internal/repository"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// linkRepository is the PostgreSQL implementation of repository.LinkRepository
type linkRepository struct {
	db *pgxpool.Pool
}

// NewLinkRepository creates a new PostgreSQL link repository
func NewLinkRepository(db *pgxpool.Pool) repository.LinkRepository {
	return &linkRepository{db: db}
}

// Create inserts a new link. The UNIQUE constraint on short_code is the
// authoritative collision check; a violation is reported as
// repository.ErrDuplicateShortCode.
func (r *linkRepository) Create(ctx context.Context, link *domain.Link) (err error) {
	start := time.Now()
	defer func() { metrics.ObserveQuery("link_create", start, err) }()

	query := `
		INSERT INTO links (
			id, short_code, original_url, is_active, expires_at,
			password, click_limit, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9
		)
	`

	id := link.ID
	if id == "" {
		id = uuid.NewString()
	}

	_, err = r.db.Exec(
		ctx,
		query,
		id,
		link.ShortCode,
		link.OriginalURL,
		link.IsActive,
		link.ExpiresAt, // Can be nil (NULL in database)
		link.Password,
		link.ClickLimit,
		link.CreatedAt,
		link.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("failed to create link %s: %w", link.ShortCode, repository.ErrDuplicateShortCode)
		}
		return fmt.Errorf("failed to create link: %w", err)
	}

	link.ID = id
	return nil
}

// GetByShortCode retrieves a link by its short code, with the click count
// derived from the clicks table.
func (r *linkRepository) GetByShortCode(ctx context.Context, shortCode string) (*domain.Link, error) {
	start := time.Now()

	query := `
		SELECT l.id, l.short_code, l.original_url, l.is_active, l.expires_at,
		       l.password, l.click_limit, l.created_at, l.updated_at,
		       (SELECT COUNT(*) FROM clicks c WHERE c.link_id = l.id)
		FROM links l
		WHERE l.short_code = $1
	`

	link := &domain.Link{}
	err := r.db.QueryRow(ctx, query, shortCode).Scan(
		&link.ID,
		&link.ShortCode,
		&link.OriginalURL,
		&link.IsActive,
		&link.ExpiresAt,
		&link.Password,
		&link.ClickLimit,
		&link.CreatedAt,
		&link.UpdatedAt,
		&link.ClickCount,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			metrics.ObserveQuery("link_get", start, nil)
			return nil, fmt.Errorf("link %s: %w", shortCode, repository.ErrNotFound)
		}
		metrics.ObserveQuery("link_get", start, err)
		return nil, fmt.Errorf("failed to get link: %w", err)
	}

	metrics.ObserveQuery("link_get", start, nil)
	return link, nil
}

// ExistsShortCode checks if a short code already exists
func (r *linkRepository) ExistsShortCode(ctx context.Context, shortCode string) (exists bool, err error) {
	start := time.Now()
	defer func() { metrics.ObserveQuery("link_exists", start, err) }()

	query := `SELECT EXISTS(SELECT 1 FROM links WHERE short_code = $1)`

	if err = r.db.QueryRow(ctx, query, shortCode).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check short code existence: %w", err)
	}

	return exists, nil
}

// SetActive updates the activation flag.
func (r *linkRepository) SetActive(ctx context.Context, shortCode string, active bool) (err error) {
	start := time.Now()
	defer func() { metrics.ObserveQuery("link_set_active", start, err) }()

	query := `UPDATE links SET is_active = $1, updated_at = NOW() WHERE short_code = $2`

	result, err := r.db.Exec(ctx, query, active, shortCode)
	if err != nil {
		return fmt.Errorf("failed to update link: %w", err)
	}

	if result.RowsAffected() == 0 {
		return fmt.Errorf("link %s: %w", shortCode, repository.ErrNotFound)
	}

	return nil
}

// Ping verifies the pool can reach the database.
func (r *linkRepository) Ping(ctx context.Context) error {
	return r.db.Ping(ctx)
}
