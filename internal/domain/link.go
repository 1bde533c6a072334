package domain

import (
	"time"
)

// Link represents one shortened URL together with its access-control metadata.
// ShortCode, OriginalURL and ID never change after creation.
type Link struct {
	ID          string     // UUID assigned at creation
	ShortCode   string     // Unique URL-safe token (e.g., "k3x9a0")
	OriginalURL string     // Absolute target URL
	IsActive    bool       // Owner-controlled switch
	ExpiresAt   *time.Time // Optional expiry (pointer = nullable)
	Password    *string    // Optional plaintext shared secret
	ClickLimit  *int64     // Optional ceiling on recorded clicks
	ClickCount  int64      // Derived from the clicks table, never stored on the row
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// NewLink creates an active link with no constraints.
func NewLink(originalURL, shortCode string) *Link {
	now := time.Now().UTC()
	return &Link{
		ShortCode:   shortCode,
		OriginalURL: originalURL,
		IsActive:    true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// IsExpired reports whether the link's expiry is strictly before now.
// A link without an expiry never expires.
func (l *Link) IsExpired(now time.Time) bool {
	if l.ExpiresAt == nil {
		return false
	}
	return now.After(*l.ExpiresAt)
}

// IsExhausted reports whether the click limit has been reached.
func (l *Link) IsExhausted() bool {
	if l.ClickLimit == nil {
		return false
	}
	return l.ClickCount >= *l.ClickLimit
}

// HasPassword reports whether visitors must supply a password.
func (l *Link) HasPassword() bool {
	return l.Password != nil && *l.Password != ""
}

// WithPassword sets the shared secret. An empty string clears it.
func (l *Link) WithPassword(password string) *Link {
	if password == "" {
		l.Password = nil
		return l
	}
	l.Password = &password
	return l
}

// WithClickLimit sets the click ceiling.
func (l *Link) WithClickLimit(limit int64) *Link {
	l.ClickLimit = &limit
	return l
}

// WithExpiresAt sets an absolute expiry.
func (l *Link) WithExpiresAt(expiresAt time.Time) *Link {
	t := expiresAt.UTC()
	l.ExpiresAt = &t
	return l
}

// Clone returns a copy that shares no pointers with l.
func (l *Link) Clone() *Link {
	c := *l
	if l.ExpiresAt != nil {
		t := *l.ExpiresAt
		c.ExpiresAt = &t
	}
	if l.Password != nil {
		p := *l.Password
		c.Password = &p
	}
	if l.ClickLimit != nil {
		n := *l.ClickLimit
		c.ClickLimit = &n
	}
	return &c
}
