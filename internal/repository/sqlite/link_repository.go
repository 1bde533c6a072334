package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"shortlink/internal/domain"
	"shortlink/internal/metrics"
	"shortlink/internal/repository"

	"github.com/google/uuid"
)

// LinkRepository implements repository.LinkRepository on SQLite.
type LinkRepository struct {
	db *sql.DB
}

// NewLinkRepository creates a new SQLite-backed link repository
func NewLinkRepository(db *sql.DB) *LinkRepository {
	return &LinkRepository{db: db}
}

// Ensure LinkRepository implements repository.LinkRepository at compile time
var _ repository.LinkRepository = (*LinkRepository)(nil)

// Create inserts a new link; a UNIQUE violation on short_code is reported as
// repository.ErrDuplicateShortCode.
func (r *LinkRepository) Create(ctx context.Context, link *domain.Link) (err error) {
	start := time.Now()
	defer func() { metrics.ObserveQuery("link_create", start, err) }()

	query := `
		INSERT INTO links (
			id, short_code, original_url, is_active, expires_at,
			password, click_limit, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	id := link.ID
	if id == "" {
		id = uuid.NewString()
	}

	var password sql.NullString
	if link.Password != nil {
		password = sql.NullString{String: *link.Password, Valid: true}
	}
	var clickLimit sql.NullInt64
	if link.ClickLimit != nil {
		clickLimit = sql.NullInt64{Int64: *link.ClickLimit, Valid: true}
	}

	_, err = r.db.ExecContext(ctx, query,
		id,
		link.ShortCode,
		link.OriginalURL,
		link.IsActive,
		nullUnix(link.ExpiresAt),
		password,
		clickLimit,
		toUnix(link.CreatedAt),
		toUnix(link.UpdatedAt),
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

// GetByShortCode retrieves a link with its derived click count.
func (r *LinkRepository) GetByShortCode(ctx context.Context, shortCode string) (*domain.Link, error) {
	start := time.Now()

	query := `
		SELECT l.id, l.short_code, l.original_url, l.is_active, l.expires_at,
		       l.password, l.click_limit, l.created_at, l.updated_at,
		       (SELECT COUNT(*) FROM clicks c WHERE c.link_id = l.id)
		FROM links l
		WHERE l.short_code = ?
	`

	var (
		link       domain.Link
		expiresAt  sql.NullInt64
		password   sql.NullString
		clickLimit sql.NullInt64
		createdAt  int64
		updatedAt  int64
	)
	err := r.db.QueryRowContext(ctx, query, shortCode).Scan(
		&link.ID,
		&link.ShortCode,
		&link.OriginalURL,
		&link.IsActive,
		&expiresAt,
		&password,
		&clickLimit,
		&createdAt,
		&updatedAt,
		&link.ClickCount,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			metrics.ObserveQuery("link_get", start, nil)
			return nil, fmt.Errorf("link %s: %w", shortCode, repository.ErrNotFound)
		}
		metrics.ObserveQuery("link_get", start, err)
		return nil, fmt.Errorf("failed to get link: %w", err)
	}
	metrics.ObserveQuery("link_get", start, nil)

	if expiresAt.Valid {
		t := fromUnix(expiresAt.Int64)
		link.ExpiresAt = &t
	}
	if password.Valid {
		link.Password = &password.String
	}
	if clickLimit.Valid {
		link.ClickLimit = &clickLimit.Int64
	}
	link.CreatedAt = fromUnix(createdAt)
	link.UpdatedAt = fromUnix(updatedAt)

	return &link, nil
}

// ExistsShortCode checks if a short code already exists
func (r *LinkRepository) ExistsShortCode(ctx context.Context, shortCode string) (exists bool, err error) {
	start := time.Now()
	defer func() { metrics.ObserveQuery("link_exists", start, err) }()

	query := `SELECT EXISTS(SELECT 1 FROM links WHERE short_code = ?)`

	if err = r.db.QueryRowContext(ctx, query, shortCode).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check short code existence: %w", err)
	}
	return exists, nil
}

// SetActive updates the activation flag.
func (r *LinkRepository) SetActive(ctx context.Context, shortCode string, active bool) (err error) {
	start := time.Now()
	defer func() { metrics.ObserveQuery("link_set_active", start, err) }()

	query := `UPDATE links SET is_active = ?, updated_at = ? WHERE short_code = ?`

	result, err := r.db.ExecContext(ctx, query, active, toUnix(time.Now()), shortCode)
	if err != nil {
		return fmt.Errorf("failed to update link: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("link %s: %w", shortCode, repository.ErrNotFound)
	}
	return nil
}

// Ping verifies the database handle is usable.
func (r *LinkRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}
