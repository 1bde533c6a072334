package service

import (
	"context"
	"errors"
	"fmt"

	"shortlink/internal/domain"
	"shortlink/internal/repository"

	"github.com/samber/lo"
)

// recentClickLimit caps the number of click events returned by GetStats.
const recentClickLimit = 100

// Stats is the owner-facing analytics view of a link.
type Stats struct {
	Link         *domain.Link
	TotalClicks  int64
	RecentClicks []*domain.Click
	Devices      map[string]int
	Browsers     map[string]int
	OS           map[string]int
	Countries    map[string]int
}

// GetStats returns the link, its click count and breakdowns computed over the
// most recent clicks.
func (s *LinkService) GetStats(ctx context.Context, shortCode string) (*Stats, error) {
	link, err := s.links.GetByShortCode(ctx, shortCode)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("%w: %w", domain.ErrStore, err)
	}

	clicks, err := s.clicks.GetByLinkID(ctx, link.ID, recentClickLimit, 0)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrStore, err)
	}

	return &Stats{
		Link:         link,
		TotalClicks:  link.ClickCount,
		RecentClicks: clicks,
		Devices:      lo.CountValuesBy(clicks, func(c *domain.Click) string { return orUnknown(c.Device) }),
		Browsers:     lo.CountValuesBy(clicks, func(c *domain.Click) string { return orUnknown(c.Browser) }),
		OS:           lo.CountValuesBy(clicks, func(c *domain.Click) string { return orUnknown(c.OS) }),
		Countries:    lo.CountValuesBy(clicks, func(c *domain.Click) string { return orUnknown(c.Country) }),
	}, nil
}

func orUnknown(s string) string {
	if s == "" {
		return "Unknown"
	}
	return s
}
