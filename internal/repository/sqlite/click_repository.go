package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"shortlink/internal/domain"
	"shortlink/internal/metrics"
	"shortlink/internal/repository"

	"github.com/google/uuid"
)

// ClickRepository implements repository.ClickRepository on SQLite.
type ClickRepository struct {
	db *sql.DB
}

// NewClickRepository creates a new SQLite-backed click repository
func NewClickRepository(db *sql.DB) *ClickRepository {
	return &ClickRepository{db: db}
}

var _ repository.ClickRepository = (*ClickRepository)(nil)

// Create appends a click event.
func (r *ClickRepository) Create(ctx context.Context, click *domain.Click) (err error) {
	start := time.Now()
	defer func() { metrics.ObserveQuery("click_create", start, err) }()

	query := `
		INSERT INTO clicks (
			id, link_id, clicked_at, ip_address, user_agent, referer,
			device, browser, os, country, city
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	id := uuid.NewString()
	_, err = r.db.ExecContext(ctx, query,
		id,
		click.LinkID,
		toUnix(click.ClickedAt),
		click.IPAddress,
		click.UserAgent,
		click.Referer,
		click.Device,
		click.Browser,
		click.OS,
		click.Country,
		click.City,
	)
	if err != nil {
		return fmt.Errorf("failed to create click event: %w", err)
	}

	click.ID = id
	return nil
}

// GetByLinkID retrieves clicks for a link with pagination, newest first.
func (r *ClickRepository) GetByLinkID(ctx context.Context, linkID string, limit, offset int) (clicks []*domain.Click, err error) {
	start := time.Now()
	defer func() { metrics.ObserveQuery("click_list", start, err) }()

	query := `
		SELECT id, link_id, clicked_at, ip_address, user_agent, referer,
		       device, browser, os, country, city
		FROM clicks
		WHERE link_id = ?
		ORDER BY clicked_at DESC
		LIMIT ? OFFSET ?
	`

	rows, err := r.db.QueryContext(ctx, query, linkID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to get clicks: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		click, scanErr := scanClick(rows)
		if scanErr != nil {
			err = scanErr
			return nil, err
		}
		clicks = append(clicks, click)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating clicks: %w", err)
	}
	return clicks, nil
}

// CountByLinkID returns the total number of clicks for a link
func (r *ClickRepository) CountByLinkID(ctx context.Context, linkID string) (count int64, err error) {
	start := time.Now()
	defer func() { metrics.ObserveQuery("click_count", start, err) }()

	query := `SELECT COUNT(*) FROM clicks WHERE link_id = ?`

	if err = r.db.QueryRowContext(ctx, query, linkID).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to get click count: %w", err)
	}
	return count, nil
}

func scanClick(rows *sql.Rows) (*domain.Click, error) {
	var (
		click     domain.Click
		clickedAt int64
	)
	err := rows.Scan(
		&click.ID,
		&click.LinkID,
		&clickedAt,
		&click.IPAddress,
		&click.UserAgent,
		&click.Referer,
		&click.Device,
		&click.Browser,
		&click.OS,
		&click.Country,
		&click.City,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to scan click: %w", err)
	}
	click.ClickedAt = fromUnix(clickedAt)
	return &click, nil
}
