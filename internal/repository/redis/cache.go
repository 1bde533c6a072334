package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"shortlink/internal/domain"
	"shortlink/internal/metrics"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "link:"

// Cache is a read-through cache of link records keyed by short code.
// The click count is never cached: it changes on every visit and is always
// read from the store.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewCache creates a new Redis cache
func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	return &Cache{
		client: client,
		ttl:    ttl,
	}
}

// cachedLink is the JSON shape stored in Redis.
type cachedLink struct {
	ID          string     `json:"id"`
	ShortCode   string     `json:"short_code"`
	OriginalURL string     `json:"original_url"`
	IsActive    bool       `json:"is_active"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	Password    *string    `json:"password,omitempty"`
	ClickLimit  *int64     `json:"click_limit,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	Version     int64      `json:"version"` // UpdatedAt in Unix microseconds
}

// setIfNotOlder stores ARGV[1] unless the entry already cached under KEYS[1]
// has a higher version. ARGV[2] is the new version, ARGV[3] the TTL in ms (0 keeps
// the entry until evicted).
var setIfNotOlder = redis.NewScript(`
	local current = redis.call('GET', KEYS[1])
	if current then
		local ok, doc = pcall(cjson.decode, current)
		if ok and type(doc) == 'table' and tonumber(doc.version) and tonumber(doc.version) > tonumber(ARGV[2]) then
			return 0
		end
	end
	if tonumber(ARGV[3]) > 0 then
		redis.call('SET', KEYS[1], ARGV[1], 'PX', ARGV[3])
	else
		redis.call('SET', KEYS[1], ARGV[1])
	end
	return 1
`)

func toCached(l *domain.Link) cachedLink {
	return cachedLink{
		ID:          l.ID,
		ShortCode:   l.ShortCode,
		OriginalURL: l.OriginalURL,
		IsActive:    l.IsActive,
		ExpiresAt:   l.ExpiresAt,
		Password:    l.Password,
		ClickLimit:  l.ClickLimit,
		CreatedAt:   l.CreatedAt,
		UpdatedAt:   l.UpdatedAt,
		Version:     l.UpdatedAt.UnixMicro(),
	}
}

func (c cachedLink) toDomain() *domain.Link {
	return &domain.Link{
		ID:          c.ID,
		ShortCode:   c.ShortCode,
		OriginalURL: c.OriginalURL,
		IsActive:    c.IsActive,
		ExpiresAt:   c.ExpiresAt,
		Password:    c.Password,
		ClickLimit:  c.ClickLimit,
		CreatedAt:   c.CreatedAt,
		UpdatedAt:   c.UpdatedAt,
	}
}

func key(shortCode string) string {
	return keyPrefix + shortCode
}

// GetLink retrieves a link from cache.
// Returns (nil, nil) on a cache miss.
func (c *Cache) GetLink(ctx context.Context, shortCode string) (*domain.Link, error) {
	start := time.Now()
	defer metrics.ObserveCache("get", start)

	data, err := c.client.Get(ctx, key(shortCode)).Bytes()
	if errors.Is(err, redis.Nil) {
		metrics.RecordCacheMiss()
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get error: %w", err)
	}

	metrics.RecordCacheHit()

	var cl cachedLink
	if err := json.Unmarshal(data, &cl); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cached link: %w", err)
	}

	return cl.toDomain(), nil
}

// SetLink stores a link in cache unless a newer version of it is already
// cached, so a reader that loaded the row before an update cannot overwrite
// the entry written after it.
func (c *Cache) SetLink(ctx context.Context, link *domain.Link) error {
	start := time.Now()
	defer metrics.ObserveCache("set", start)

	entry := toCached(link)
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal link: %w", err)
	}

	if err := setIfNotOlder.Run(ctx, c.client, []string{key(link.ShortCode)}, data, entry.Version, c.ttl.Milliseconds()).Err(); err != nil {
		return fmt.Errorf("redis set error: %w", err)
	}

	return nil
}

// DeleteLink removes a link from cache
// Used when the link is updated
func (c *Cache) DeleteLink(ctx context.Context, shortCode string) error {
	start := time.Now()
	defer metrics.ObserveCache("delete", start)

	if err := c.client.Del(ctx, key(shortCode)).Err(); err != nil {
		return fmt.Errorf("redis delete error: %w", err)
	}

	return nil
}

// Clear removes all cached links
func (c *Cache) Clear(ctx context.Context) error {
	iter := c.client.Scan(ctx, 0, keyPrefix+"*", 0).Iterator()

	keys := []string{}
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}

	if err := iter.Err(); err != nil {
		return fmt.Errorf("redis scan error: %w", err)
	}

	if len(keys) > 0 {
		if err := c.client.Del(ctx, keys...).Err(); err != nil {
			return fmt.Errorf("redis delete error: %w", err)
		}
	}

	return nil
}

// InitRedis creates a new Redis client
func InitRedis(addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,

		PoolSize:     10,
		MinIdleConns: 2,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return client, nil
}
