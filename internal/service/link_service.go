package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"shortlink/internal/access"
	"shortlink/internal/domain"
	"shortlink/internal/metrics"
	"shortlink/internal/repository"
	"shortlink/internal/shortcode"
	"shortlink/internal/visit"
	"shortlink/pkg/validator"
)

// Entry points reported in access metrics.
const (
	entryRedirect = "redirect"
	entryVerify   = "verify"
)

// Cache interface for link caching. SetLink must not replace an entry whose
// UpdatedAt is newer than the link being written.
type Cache interface {
	GetLink(ctx context.Context, shortCode string) (*domain.Link, error)
	SetLink(ctx context.Context, link *domain.Link) error
	DeleteLink(ctx context.Context, shortCode string) error
}

// CreateLinkInput is the validated input for CreateLink.
type CreateLinkInput struct {
	OriginalURL string
	Password    string     // Empty means no password
	ClickLimit  *int64     // Nil means unlimited
	ExpiresAt   *time.Time // Nil means never
}

// LinkService orchestrates link creation and resolution. It holds no mutable
// state of its own between calls; the store is the only shared resource.
type LinkService struct {
	links     repository.LinkRepository
	clicks    repository.ClickRepository
	cache     Cache
	allocator *shortcode.Allocator
	recorder  *visit.Recorder
	logger    *slog.Logger
	now       func() time.Time
}

// Option configures a LinkService.
type Option func(*LinkService)

// WithClock overrides the clock used for evaluation and validation.
func WithClock(now func() time.Time) Option {
	return func(s *LinkService) { s.now = now }
}

// WithCache enables the read-through link cache.
func WithCache(c Cache) Option {
	return func(s *LinkService) {
		if c != nil {
			s.cache = c
		}
	}
}

// NewLinkService creates a new link service
func NewLinkService(
	links repository.LinkRepository,
	clicks repository.ClickRepository,
	allocator *shortcode.Allocator,
	recorder *visit.Recorder,
	logger *slog.Logger,
	opts ...Option,
) *LinkService {
	s := &LinkService{
		links:     links,
		clicks:    clicks,
		cache:     noopCache{},
		allocator: allocator,
		recorder:  recorder,
		logger:    logger,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateLink validates the input, allocates a unique short code and
// persists the link. The allocator retries on store uniqueness violations.
func (s *LinkService) CreateLink(ctx context.Context, in CreateLinkInput) (*domain.Link, error) {
	now := s.now()
	if err := validateCreate(in, now); err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrValidation, err)
	}

	link := domain.NewLink(strings.TrimSpace(in.OriginalURL), "")
	link.WithPassword(in.Password)
	if in.ClickLimit != nil {
		link.WithClickLimit(*in.ClickLimit)
	}
	if in.ExpiresAt != nil {
		link.WithExpiresAt(*in.ExpiresAt)
	}

	_, err := s.allocator.Claim(ctx, func(ctx context.Context, code string) error {
		link.ShortCode = code
		return s.links.Create(ctx, link)
	})
	if err != nil {
		if errors.Is(err, domain.ErrAllocationExhausted) || errors.Is(err, context.Canceled) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", domain.ErrStore, err)
	}

	metrics.RecordLinkCreated()
	s.logger.Info("Link created", "short_code", link.ShortCode, "link_id", link.ID)

	if err := s.cache.SetLink(ctx, link); err != nil {
		s.logger.Warn("Failed to cache link", "short_code", link.ShortCode, "error", err)
	}

	return link, nil
}

func validateCreate(in CreateLinkInput, now time.Time) error {
	if err := validator.ValidateURL(in.OriginalURL); err != nil {
		return err
	}
	if err := validator.ValidateClickLimit(in.ClickLimit); err != nil {
		return err
	}
	if err := validator.ValidateExpiresAt(in.ExpiresAt, now); err != nil {
		return err
	}
	return validator.ValidatePassword(in.Password)
}

// Resolve handles a visit to a short code with no password supplied.
// On Allow the click is recorded in the background and the outcome returned
// immediately; the redirect never waits on the recording. The error is
// non-nil only when the link could not be loaded.
func (s *LinkService) Resolve(ctx context.Context, shortCode string, req visit.Request) (access.Outcome, error) {
	link, err := s.loadLink(ctx, shortCode)
	if err != nil {
		return access.Outcome{}, err
	}

	outcome := access.Evaluate(link, s.now(), nil)
	metrics.RecordAccessOutcome(entryRedirect, outcome.Decision.String())

	if outcome.Allowed() {
		s.recorder.RecordAsync(ctx, link, req)
	} else {
		s.logger.Debug("Access denied", "short_code", shortCode, "decision", outcome.Decision.String())
	}

	return outcome, nil
}

// VerifyPassword re-runs the full evaluation with the supplied password, so
// a link that expired or hit its limit since the challenge was shown is still
// rejected. On Allow the click is recorded before returning; a recording
// failure is logged and does not change the outcome.
func (s *LinkService) VerifyPassword(ctx context.Context, shortCode, password string, req visit.Request) (access.Outcome, error) {
	link, err := s.loadLink(ctx, shortCode)
	if err != nil {
		return access.Outcome{}, err
	}

	outcome := access.Evaluate(link, s.now(), &password)
	metrics.RecordAccessOutcome(entryVerify, outcome.Decision.String())

	if !outcome.Allowed() {
		s.logger.Debug("Password verification denied", "short_code", shortCode, "decision", outcome.Decision.String())
		return outcome, nil
	}

	if _, err := s.recorder.Record(ctx, link.ID, req); err != nil {
		s.logger.Error("Failed to record click", "short_code", shortCode, "link_id", link.ID, "error", err)
	}

	return outcome, nil
}

// SetActive toggles a link's activation flag and returns the updated link.
func (s *LinkService) SetActive(ctx context.Context, shortCode string, active bool) (*domain.Link, error) {
	if err := s.links.SetActive(ctx, shortCode, active); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("%w: %w", domain.ErrStore, err)
	}

	link, err := s.links.GetByShortCode(ctx, shortCode)
	if err != nil {
		s.invalidate(ctx, shortCode)
		return nil, fmt.Errorf("%w: %w", domain.ErrStore, err)
	}

	// Refresh, not delete: a concurrent loadLink holding the old row cannot
	// replace a newer cached version.
	if err := s.cache.SetLink(ctx, link); err != nil {
		s.logger.Warn("Failed to refresh cached link", "short_code", shortCode, "error", err)
		s.invalidate(ctx, shortCode)
	}

	s.logger.Info("Link activation changed", "short_code", shortCode, "is_active", active)
	return link, nil
}

// loadLink returns the link with a fresh click count, or (nil, nil) when the
// short code does not exist. Cached entries never carry a click count, so
// the count is always read from the store.
func (s *LinkService) loadLink(ctx context.Context, shortCode string) (*domain.Link, error) {
	cached, err := s.cache.GetLink(ctx, shortCode)
	if err != nil {
		s.logger.Warn("Cache lookup failed", "short_code", shortCode, "error", err)
	}
	if err == nil && cached != nil {
		count, err := s.clicks.CountByLinkID(ctx, cached.ID)
		if err != nil {
			s.logger.Error("Failed to count clicks", "short_code", shortCode, "error", err)
			return nil, fmt.Errorf("%w: %w", domain.ErrStore, err)
		}
		link := cached.Clone()
		link.ClickCount = count
		return link, nil
	}

	link, err := s.links.GetByShortCode(ctx, shortCode)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil
		}
		s.logger.Error("Failed to load link", "short_code", shortCode, "error", err)
		return nil, fmt.Errorf("%w: %w", domain.ErrStore, err)
	}

	if err := s.cache.SetLink(ctx, link); err != nil {
		s.logger.Warn("Failed to cache link", "short_code", shortCode, "error", err)
	}

	return link, nil
}

func (s *LinkService) invalidate(ctx context.Context, shortCode string) {
	if err := s.cache.DeleteLink(ctx, shortCode); err != nil {
		s.logger.Warn("Failed to invalidate cached link", "short_code", shortCode, "error", err)
	}
}

// noopCache is used when no cache is configured.
type noopCache struct{}

func (noopCache) GetLink(context.Context, string) (*domain.Link, error) { return nil, nil }
func (noopCache) SetLink(context.Context, *domain.Link) error          { return nil }
func (noopCache) DeleteLink(context.Context, string) error             { return nil }
