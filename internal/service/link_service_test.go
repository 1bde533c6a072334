package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"shortlink/internal/access"
	"shortlink/internal/domain"
	"shortlink/internal/repository"
	"shortlink/internal/shortcode"
	"shortlink/internal/visit"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// ==================== MOCKS ====================

// MockLinkRepository is a mock implementation of LinkRepository
type MockLinkRepository struct {
	mock.Mock
}

func (m *MockLinkRepository) Create(ctx context.Context, link *domain.Link) error {
	args := m.Called(ctx, link)
	return args.Error(0)
}

func (m *MockLinkRepository) GetByShortCode(ctx context.Context, shortCode string) (*domain.Link, error) {
	args := m.Called(ctx, shortCode)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Link), args.Error(1)
}

func (m *MockLinkRepository) ExistsShortCode(ctx context.Context, shortCode string) (bool, error) {
	args := m.Called(ctx, shortCode)
	return args.Bool(0), args.Error(1)
}

func (m *MockLinkRepository) SetActive(ctx context.Context, shortCode string, active bool) error {
	args := m.Called(ctx, shortCode, active)
	return args.Error(0)
}

func (m *MockLinkRepository) Ping(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// MockClickRepository is a mock implementation of ClickRepository
type MockClickRepository struct {
	mock.Mock
}

func (m *MockClickRepository) Create(ctx context.Context, click *domain.Click) error {
	args := m.Called(ctx, click)
	return args.Error(0)
}

func (m *MockClickRepository) GetByLinkID(ctx context.Context, linkID string, limit, offset int) ([]*domain.Click, error) {
	args := m.Called(ctx, linkID, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Click), args.Error(1)
}

func (m *MockClickRepository) CountByLinkID(ctx context.Context, linkID string) (int64, error) {
	args := m.Called(ctx, linkID)
	return args.Get(0).(int64), args.Error(1)
}

// MockCache is a mock implementation of Cache
type MockCache struct {
	mock.Mock
}

func (m *MockCache) GetLink(ctx context.Context, shortCode string) (*domain.Link, error) {
	args := m.Called(ctx, shortCode)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Link), args.Error(1)
}

func (m *MockCache) SetLink(ctx context.Context, link *domain.Link) error {
	args := m.Called(ctx, link)
	return args.Error(0)
}

func (m *MockCache) DeleteLink(ctx context.Context, shortCode string) error {
	args := m.Called(ctx, shortCode)
	return args.Error(0)
}

// ==================== HELPER FUNCTIONS ====================

var testNow = time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

type fixture struct {
	service  *LinkService
	links    *MockLinkRepository
	clicks   *MockClickRepository
	cache    *MockCache
	recorder *visit.Recorder
}

func setupService(opts ...shortcode.Option) *fixture {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	links := new(MockLinkRepository)
	clicks := new(MockClickRepository)
	cache := new(MockCache)
	recorder := visit.NewRecorder(clicks, logger)
	allocator := shortcode.NewAllocator(links, opts...)

	svc := NewLinkService(links, clicks, allocator, recorder, logger,
		WithCache(cache),
		WithClock(func() time.Time { return testNow }),
	)
	return &fixture{service: svc, links: links, clicks: clicks, cache: cache, recorder: recorder}
}

func fixedCodes(codes ...string) shortcode.Option {
	i := 0
	return shortcode.WithGenerator(func() (string, error) {
		code := codes[i%len(codes)]
		i++
		return code, nil
	})
}

func activeLink() *domain.Link {
	return &domain.Link{
		ID:          "link-1",
		ShortCode:   "abc123",
		OriginalURL: "https://example.com",
		IsActive:    true,
	}
}

func int64Ptr(n int64) *int64 { return &n }

// ==================== CREATE ====================

func TestCreateLink_Success(t *testing.T) {
	ctx := context.Background()
	f := setupService(fixedCodes("abc123"))

	f.links.On("ExistsShortCode", ctx, "abc123").Return(false, nil)
	f.links.On("Create", ctx, mock.AnythingOfType("*domain.Link")).Return(nil)
	f.cache.On("SetLink", ctx, mock.AnythingOfType("*domain.Link")).Return(nil)

	expiresAt := testNow.Add(24 * time.Hour)
	link, err := f.service.CreateLink(ctx, CreateLinkInput{
		OriginalURL: "  https://example.com  ",
		Password:    "abc",
		ClickLimit:  int64Ptr(10),
		ExpiresAt:   &expiresAt,
	})

	require.NoError(t, err)
	assert.Equal(t, "abc123", link.ShortCode)
	assert.Equal(t, "https://example.com", link.OriginalURL)
	assert.True(t, link.IsActive)
	assert.True(t, link.HasPassword())
	assert.Equal(t, int64(10), *link.ClickLimit)
	assert.True(t, expiresAt.Equal(*link.ExpiresAt))
	f.links.AssertExpectations(t)
	f.cache.AssertExpectations(t)
}

func TestCreateLink_ValidationErrors(t *testing.T) {
	past := testNow.Add(-time.Hour)

	tests := []struct {
		name  string
		input CreateLinkInput
	}{
		{"empty url", CreateLinkInput{}},
		{"relative url", CreateLinkInput{OriginalURL: "/path"}},
		{"zero click limit", CreateLinkInput{OriginalURL: "https://example.com", ClickLimit: int64Ptr(0)}},
		{"negative click limit", CreateLinkInput{OriginalURL: "https://example.com", ClickLimit: int64Ptr(-1)}},
		{"expiry in the past", CreateLinkInput{OriginalURL: "https://example.com", ExpiresAt: &past}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := setupService()

			link, err := f.service.CreateLink(context.Background(), tt.input)

			assert.Nil(t, link)
			assert.ErrorIs(t, err, domain.ErrValidation)
			f.links.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
		})
	}
}

func TestCreateLink_RetriesOnUniqueViolation(t *testing.T) {
	ctx := context.Background()
	f := setupService(fixedCodes("race01", "free01"))

	f.links.On("ExistsShortCode", ctx, mock.Anything).Return(false, nil)
	f.links.On("Create", ctx, mock.MatchedBy(func(l *domain.Link) bool { return l.ShortCode == "race01" })).
		Return(repository.ErrDuplicateShortCode).Once()
	f.links.On("Create", ctx, mock.MatchedBy(func(l *domain.Link) bool { return l.ShortCode == "free01" })).
		Return(nil).Once()
	f.cache.On("SetLink", ctx, mock.Anything).Return(nil)

	link, err := f.service.CreateLink(ctx, CreateLinkInput{OriginalURL: "https://example.com"})

	require.NoError(t, err)
	assert.Equal(t, "free01", link.ShortCode)
	f.links.AssertNumberOfCalls(t, "Create", 2)
}

func TestCreateLink_AllocationExhausted(t *testing.T) {
	ctx := context.Background()
	f := setupService(fixedCodes("taken0"))

	f.links.On("ExistsShortCode", ctx, "taken0").Return(true, nil)

	link, err := f.service.CreateLink(ctx, CreateLinkInput{OriginalURL: "https://example.com"})

	assert.Nil(t, link)
	assert.ErrorIs(t, err, domain.ErrAllocationExhausted)
	f.links.AssertNumberOfCalls(t, "ExistsShortCode", shortcode.DefaultMaxAttempts)
	f.links.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestCreateLink_StoreFailure(t *testing.T) {
	ctx := context.Background()
	f := setupService(fixedCodes("abc123"))

	f.links.On("ExistsShortCode", ctx, "abc123").Return(false, nil)
	f.links.On("Create", ctx, mock.Anything).Return(errors.New("connection refused"))

	_, err := f.service.CreateLink(ctx, CreateLinkInput{OriginalURL: "https://example.com"})

	assert.ErrorIs(t, err, domain.ErrStore)
}

func TestCreateLink_CacheFailureIsNotFatal(t *testing.T) {
	ctx := context.Background()
	f := setupService(fixedCodes("abc123"))

	f.links.On("ExistsShortCode", ctx, "abc123").Return(false, nil)
	f.links.On("Create", ctx, mock.Anything).Return(nil)
	f.cache.On("SetLink", ctx, mock.Anything).Return(errors.New("redis down"))

	link, err := f.service.CreateLink(ctx, CreateLinkInput{OriginalURL: "https://example.com"})

	require.NoError(t, err)
	assert.Equal(t, "abc123", link.ShortCode)
}

// ==================== RESOLVE ====================

func TestResolve_CacheMiss_AllowsAndRecords(t *testing.T) {
	ctx := context.Background()
	f := setupService()
	link := activeLink()

	f.cache.On("GetLink", ctx, "abc123").Return(nil, nil)
	f.links.On("GetByShortCode", ctx, "abc123").Return(link, nil)
	f.cache.On("SetLink", ctx, link).Return(nil)
	f.clicks.On("Create", mock.Anything, mock.MatchedBy(func(c *domain.Click) bool {
		return c.LinkID == "link-1" && c.Browser == "Firefox"
	})).Return(nil)

	outcome, err := f.service.Resolve(ctx, "abc123", visit.Request{
		IPAddress: "203.0.113.9",
		UserAgent: "Mozilla/5.0 (X11; Linux x86_64) Firefox/121.0",
	})
	require.NoError(t, err)
	require.NoError(t, f.recorder.Wait(ctx))

	assert.Equal(t, access.Outcome{Decision: access.Allow, Target: "https://example.com"}, outcome)
	f.clicks.AssertNumberOfCalls(t, "Create", 1)
	f.cache.AssertExpectations(t)
}

func TestResolve_CacheHit_ReadsFreshCount(t *testing.T) {
	ctx := context.Background()
	f := setupService()
	cached := activeLink().WithClickLimit(3)

	f.cache.On("GetLink", ctx, "abc123").Return(cached, nil)
	f.clicks.On("CountByLinkID", ctx, "link-1").Return(int64(3), nil)

	outcome, err := f.service.Resolve(ctx, "abc123", visit.Request{})

	require.NoError(t, err)
	assert.Equal(t, access.DenyClickLimitReached, outcome.Decision)
	assert.Zero(t, cached.ClickCount, "cached entry must not be mutated")
	f.links.AssertNotCalled(t, "GetByShortCode", mock.Anything, mock.Anything)
	f.clicks.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestResolve_CacheErrorFallsBackToStore(t *testing.T) {
	ctx := context.Background()
	f := setupService()
	link := activeLink()
	link.IsActive = false

	f.cache.On("GetLink", ctx, "abc123").Return(nil, errors.New("redis down"))
	f.links.On("GetByShortCode", ctx, "abc123").Return(link, nil)
	f.cache.On("SetLink", ctx, link).Return(errors.New("redis down"))

	outcome, err := f.service.Resolve(ctx, "abc123", visit.Request{})

	require.NoError(t, err)
	assert.Equal(t, access.DenyInactive, outcome.Decision)
}

func TestResolve_NotFound(t *testing.T) {
	ctx := context.Background()
	f := setupService()

	f.cache.On("GetLink", ctx, "nope00").Return(nil, nil)
	f.links.On("GetByShortCode", ctx, "nope00").Return(nil, repository.ErrNotFound)

	outcome, err := f.service.Resolve(ctx, "nope00", visit.Request{})

	require.NoError(t, err)
	assert.Equal(t, access.DenyNotFound, outcome.Decision)
}

func TestResolve_StoreFailureIsFatal(t *testing.T) {
	ctx := context.Background()
	f := setupService()

	f.cache.On("GetLink", ctx, "abc123").Return(nil, nil)
	f.links.On("GetByShortCode", ctx, "abc123").Return(nil, errors.New("connection refused"))

	_, err := f.service.Resolve(ctx, "abc123", visit.Request{})

	assert.ErrorIs(t, err, domain.ErrStore)
}

func TestResolve_PasswordRequiredRecordsNothing(t *testing.T) {
	ctx := context.Background()
	f := setupService()
	link := activeLink().WithPassword("abc")

	f.cache.On("GetLink", ctx, "abc123").Return(nil, nil)
	f.links.On("GetByShortCode", ctx, "abc123").Return(link, nil)
	f.cache.On("SetLink", ctx, link).Return(nil)

	outcome, err := f.service.Resolve(ctx, "abc123", visit.Request{})
	require.NoError(t, err)
	require.NoError(t, f.recorder.Wait(ctx))

	assert.Equal(t, access.DenyPasswordRequired, outcome.Decision)
	assert.Empty(t, outcome.Target)
	f.clicks.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestResolve_RecordingFailureDoesNotChangeOutcome(t *testing.T) {
	ctx := context.Background()
	f := setupService()
	link := activeLink()

	f.cache.On("GetLink", ctx, "abc123").Return(nil, nil)
	f.links.On("GetByShortCode", ctx, "abc123").Return(link, nil)
	f.cache.On("SetLink", ctx, link).Return(nil)
	f.clicks.On("Create", mock.Anything, mock.Anything).Return(errors.New("disk full"))

	outcome, err := f.service.Resolve(ctx, "abc123", visit.Request{})
	require.NoError(t, err)
	require.NoError(t, f.recorder.Wait(ctx))

	assert.True(t, outcome.Allowed())
}

// ==================== VERIFY PASSWORD ====================

func TestVerifyPassword_Correct(t *testing.T) {
	ctx := context.Background()
	f := setupService()
	link := activeLink().WithPassword("abc")

	f.cache.On("GetLink", ctx, "abc123").Return(nil, nil)
	f.links.On("GetByShortCode", ctx, "abc123").Return(link, nil)
	f.cache.On("SetLink", ctx, link).Return(nil)
	f.clicks.On("Create", ctx, mock.AnythingOfType("*domain.Click")).Return(nil)

	outcome, err := f.service.VerifyPassword(ctx, "abc123", "abc", visit.Request{})

	require.NoError(t, err)
	assert.Equal(t, access.Outcome{Decision: access.Allow, Target: "https://example.com"}, outcome)
	f.clicks.AssertNumberOfCalls(t, "Create", 1)
}

func TestVerifyPassword_Incorrect(t *testing.T) {
	ctx := context.Background()
	f := setupService()
	link := activeLink().WithPassword("abc")

	f.cache.On("GetLink", ctx, "abc123").Return(nil, nil)
	f.links.On("GetByShortCode", ctx, "abc123").Return(link, nil)
	f.cache.On("SetLink", ctx, link).Return(nil)

	outcome, err := f.service.VerifyPassword(ctx, "abc123", "xyz", visit.Request{})

	require.NoError(t, err)
	assert.Equal(t, access.DenyPasswordIncorrect, outcome.Decision)
	assert.Empty(t, outcome.Target)
	f.clicks.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestVerifyPassword_ExpiredSinceChallenge(t *testing.T) {
	ctx := context.Background()
	f := setupService()
	link := activeLink().WithPassword("abc").WithExpiresAt(testNow.Add(-time.Second))

	f.cache.On("GetLink", ctx, "abc123").Return(nil, nil)
	f.links.On("GetByShortCode", ctx, "abc123").Return(link, nil)
	f.cache.On("SetLink", ctx, link).Return(nil)

	outcome, err := f.service.VerifyPassword(ctx, "abc123", "abc", visit.Request{})

	require.NoError(t, err)
	assert.Equal(t, access.DenyExpired, outcome.Decision)
	f.clicks.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestVerifyPassword_RecordingFailureStillAllows(t *testing.T) {
	ctx := context.Background()
	f := setupService()
	link := activeLink().WithPassword("abc")

	f.cache.On("GetLink", ctx, "abc123").Return(nil, nil)
	f.links.On("GetByShortCode", ctx, "abc123").Return(link, nil)
	f.cache.On("SetLink", ctx, link).Return(nil)
	f.clicks.On("Create", ctx, mock.Anything).Return(errors.New("disk full"))

	outcome, err := f.service.VerifyPassword(ctx, "abc123", "abc", visit.Request{})

	require.NoError(t, err)
	assert.True(t, outcome.Allowed())
}

// ==================== SET ACTIVE ====================

func TestSetActive_RefreshesCache(t *testing.T) {
	ctx := context.Background()
	f := setupService()
	link := activeLink()
	link.IsActive = false

	f.links.On("SetActive", ctx, "abc123", false).Return(nil)
	f.links.On("GetByShortCode", ctx, "abc123").Return(link, nil)
	f.cache.On("SetLink", ctx, link).Return(nil)

	got, err := f.service.SetActive(ctx, "abc123", false)

	require.NoError(t, err)
	assert.False(t, got.IsActive)
	f.cache.AssertExpectations(t)
	f.cache.AssertNotCalled(t, "DeleteLink", mock.Anything, mock.Anything)
}

func TestSetActive_CacheWriteFailureInvalidates(t *testing.T) {
	ctx := context.Background()
	f := setupService()
	link := activeLink()

	f.links.On("SetActive", ctx, "abc123", true).Return(nil)
	f.links.On("GetByShortCode", ctx, "abc123").Return(link, nil)
	f.cache.On("SetLink", ctx, link).Return(errors.New("redis down"))
	f.cache.On("DeleteLink", ctx, "abc123").Return(nil)

	got, err := f.service.SetActive(ctx, "abc123", true)

	require.NoError(t, err)
	assert.True(t, got.IsActive)
	f.cache.AssertExpectations(t)
}

func TestSetActive_ReloadFailureInvalidates(t *testing.T) {
	ctx := context.Background()
	f := setupService()

	f.links.On("SetActive", ctx, "abc123", false).Return(nil)
	f.links.On("GetByShortCode", ctx, "abc123").Return(nil, errors.New("connection reset"))
	f.cache.On("DeleteLink", ctx, "abc123").Return(nil)

	_, err := f.service.SetActive(ctx, "abc123", false)

	assert.ErrorIs(t, err, domain.ErrStore)
	f.cache.AssertExpectations(t)
}

func TestSetActive_NotFound(t *testing.T) {
	ctx := context.Background()
	f := setupService()

	f.links.On("SetActive", ctx, "nope00", true).Return(repository.ErrNotFound)

	_, err := f.service.SetActive(ctx, "nope00", true)

	assert.ErrorIs(t, err, domain.ErrNotFound)
	f.cache.AssertNotCalled(t, "SetLink", mock.Anything, mock.Anything)
	f.cache.AssertNotCalled(t, "DeleteLink", mock.Anything, mock.Anything)
}

// versionedCache keeps the newest UpdatedAt per code, as the Redis cache does.
type versionedCache struct {
	mu    sync.Mutex
	links map[string]*domain.Link
}

func newVersionedCache() *versionedCache {
	return &versionedCache{links: make(map[string]*domain.Link)}
}

func (c *versionedCache) GetLink(_ context.Context, shortCode string) (*domain.Link, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if l, ok := c.links[shortCode]; ok {
		return l.Clone(), nil
	}
	return nil, nil
}

func (c *versionedCache) SetLink(_ context.Context, link *domain.Link) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cur, ok := c.links[link.ShortCode]; ok && cur.UpdatedAt.After(link.UpdatedAt) {
		return nil
	}
	c.links[link.ShortCode] = link.Clone()
	return nil
}

func (c *versionedCache) DeleteLink(_ context.Context, shortCode string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.links, shortCode)
	return nil
}

func TestSetActive_StaleLoadCannotRecacheActiveLink(t *testing.T) {
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	links := new(MockLinkRepository)
	clicks := new(MockClickRepository)
	cache := newVersionedCache()
	recorder := visit.NewRecorder(clicks, logger)
	svc := NewLinkService(links, clicks, shortcode.NewAllocator(links), recorder, logger,
		WithCache(cache),
		WithClock(func() time.Time { return testNow }),
	)

	stale := activeLink()
	stale.UpdatedAt = testNow.Add(-time.Hour)
	fresh := activeLink()
	fresh.IsActive = false
	fresh.UpdatedAt = testNow

	// The visitor's load reads the row, then the owner deactivates the link
	// before the visitor writes what it read back into the cache.
	links.On("GetByShortCode", ctx, "abc123").Return(stale, nil).Once().Run(func(mock.Arguments) {
		_, err := svc.SetActive(ctx, "abc123", false)
		require.NoError(t, err)
	})
	links.On("SetActive", ctx, "abc123", false).Return(nil).Once()
	links.On("GetByShortCode", ctx, "abc123").Return(fresh, nil).Once()
	clicks.On("Create", mock.Anything, mock.Anything).Return(nil).Maybe()
	clicks.On("CountByLinkID", ctx, "link-1").Return(int64(0), nil)

	inFlight, err := svc.Resolve(ctx, "abc123", visit.Request{})
	require.NoError(t, err)
	require.NoError(t, recorder.Wait(ctx))
	assert.Equal(t, access.Allow, inFlight.Decision)

	cached, err := cache.GetLink(ctx, "abc123")
	require.NoError(t, err)
	require.NotNil(t, cached)
	assert.False(t, cached.IsActive)

	next, err := svc.Resolve(ctx, "abc123", visit.Request{})
	require.NoError(t, err)
	assert.Equal(t, access.DenyInactive, next.Decision)
	links.AssertExpectations(t)
}

// ==================== STATS ====================

func TestGetStats_Breakdowns(t *testing.T) {
	ctx := context.Background()
	f := setupService()
	link := activeLink()
	link.ClickCount = 3

	clicks := []*domain.Click{
		{LinkID: "link-1", Device: "Mobile", Browser: "Safari", OS: "iOS", Country: "Local"},
		{LinkID: "link-1", Device: "Desktop", Browser: "Chrome", OS: "Windows"},
		{LinkID: "link-1", Device: "Mobile", Browser: "Chrome", OS: "Linux"},
	}
	f.links.On("GetByShortCode", ctx, "abc123").Return(link, nil)
	f.clicks.On("GetByLinkID", ctx, "link-1", recentClickLimit, 0).Return(clicks, nil)

	stats, err := f.service.GetStats(ctx, "abc123")

	require.NoError(t, err)
	assert.Equal(t, int64(3), stats.TotalClicks)
	assert.Len(t, stats.RecentClicks, 3)
	assert.Equal(t, map[string]int{"Mobile": 2, "Desktop": 1}, stats.Devices)
	assert.Equal(t, map[string]int{"Safari": 1, "Chrome": 2}, stats.Browsers)
	assert.Equal(t, map[string]int{"Local": 1, "Unknown": 2}, stats.Countries)
}

func TestGetStats_NotFound(t *testing.T) {
	ctx := context.Background()
	f := setupService()

	f.links.On("GetByShortCode", ctx, "nope00").Return(nil, repository.ErrNotFound)

	_, err := f.service.GetStats(ctx, "nope00")

	assert.ErrorIs(t, err, domain.ErrNotFound)
}
