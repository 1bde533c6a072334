package domain

import "time"

// Click represents a single recorded visit. Clicks are append-only:
// one row per allowed visit, never updated or deleted.
type Click struct {
	ID        string    // UUID
	LinkID    string    // Owning link (many-to-one)
	ClickedAt time.Time // Server time of recording
	IPAddress string
	UserAgent string
	Referer   string
	Device    string // Mobile, Tablet or Desktop
	Browser   string
	OS        string
	Country   string // Empty when unknown
	City      string // Empty when unknown
}

// NewClick creates a click event stamped with the current time.
func NewClick(linkID, ipAddress, userAgent, referer string) *Click {
	return &Click{
		LinkID:    linkID,
		ClickedAt: time.Now().UTC(),
		IPAddress: ipAddress,
		UserAgent: userAgent,
		Referer:   referer,
	}
}

// WithClassification attaches the user-agent classification.
func (c *Click) WithClassification(device, browser, os string) *Click {
	c.Device = device
	c.Browser = browser
	c.OS = os
	return c
}

// WithGeolocation adds geolocation data to the click event
func (c *Click) WithGeolocation(country, city string) *Click {
	c.Country = country
	c.City = city
	return c
}
