package postgres

import (
	"context"
	"fmt"
	"time"

	"shortlink/internal/domain"
	"shortlink/internal/metrics"
	"shortlink/internal/repository"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// clickRepository is the PostgreSQL implementation for analytics
type clickRepository struct {
	db *pgxpool.Pool
}

// NewClickRepository creates a new PostgreSQL click repository
func NewClickRepository(db *pgxpool.Pool) repository.ClickRepository {
	return &clickRepository{db: db}
}

// Create appends a click event. Concurrent inserts for the same link do not
// contend on any shared row.
func (r *clickRepository) Create(ctx context.Context, click *domain.Click) (err error) {
	start := time.Now()
	defer func() { metrics.ObserveQuery("click_create", start, err) }()

	query := `
		INSERT INTO clicks (
			id, link_id, clicked_at, ip_address, user_agent, referer,
			device, browser, os, country, city
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11
		)
	`

	id := uuid.NewString()
	_, err = r.db.Exec(
		ctx,
		query,
		id,
		click.LinkID,
		click.ClickedAt,
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

// GetByLinkID retrieves clicks for a specific link with pagination
func (r *clickRepository) GetByLinkID(ctx context.Context, linkID string, limit, offset int) (clicks []*domain.Click, err error) {
	start := time.Now()
	defer func() { metrics.ObserveQuery("click_list", start, err) }()

	query := `
		SELECT id, link_id, clicked_at, ip_address, user_agent, referer,
		       device, browser, os, country, city
		FROM clicks
		WHERE link_id = $1
		ORDER BY clicked_at DESC
		LIMIT $2 OFFSET $3
	`

	rows, err := r.db.Query(ctx, query, linkID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to get clicks: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		click := &domain.Click{}
		err = rows.Scan(
			&click.ID,
			&click.LinkID,
			&click.ClickedAt,
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
		clicks = append(clicks, click)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating clicks: %w", err)
	}

	return clicks, nil
}

// CountByLinkID returns the total number of clicks for a link
func (r *clickRepository) CountByLinkID(ctx context.Context, linkID string) (count int64, err error) {
	start := time.Now()
	defer func() { metrics.ObserveQuery("click_count", start, err) }()

	query := `SELECT COUNT(*) FROM clicks WHERE link_id = $1`

	if err = r.db.QueryRow(ctx, query, linkID).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to get click count: %w", err)
	}

	return count, nil
}
