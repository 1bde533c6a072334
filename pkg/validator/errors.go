package validator

import "errors"

var (
	ErrEmptyURL            = errors.New("URL cannot be empty")
	ErrInvalidURL          = errors.New("invalid URL format")
	ErrInvalidScheme       = errors.New("URL must use http or https scheme")
	ErrInvalidHost         = errors.New("URL must have a valid host")
	ErrInvalidClickLimit   = errors.New("click limit must be a positive integer")
	ErrExpiryInPast        = errors.New("expiry must be in the future")
	ErrPasswordTooLong     = errors.New("password must be at most 128 characters")
	ErrInvalidShortCodeLen = errors.New("short code must be 1-32 characters")
	ErrInvalidShortCode    = errors.New("short code must be alphanumeric with optional hyphens and underscores")
)
