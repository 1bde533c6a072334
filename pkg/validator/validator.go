package validator

import (
	"net/url"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	maxPasswordLength  = 128
	maxShortCodeLength = 32
)

// ValidateURL checks that urlStr is an absolute http(s) URL with a host
func ValidateURL(urlStr string) error {
	urlStr = strings.TrimSpace(urlStr)

	if urlStr == "" {
		return ErrEmptyURL
	}

	parsedURL, err := url.Parse(urlStr)
	if err != nil {
		return ErrInvalidURL
	}

	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return ErrInvalidScheme
	}

	if parsedURL.Host == "" || parsedURL.Hostname() == "" {
		return ErrInvalidHost
	}

	return nil
}

// ValidateClickLimit accepts an absent limit or a positive one.
func ValidateClickLimit(limit *int64) error {
	if limit != nil && *limit <= 0 {
		return ErrInvalidClickLimit
	}
	return nil
}

// ValidateExpiresAt accepts an absent expiry or one strictly after now.
func ValidateExpiresAt(expiresAt *time.Time, now time.Time) error {
	if expiresAt != nil && !expiresAt.After(now) {
		return ErrExpiryInPast
	}
	return nil
}

// ValidatePassword bounds the length of an optional link password.
func ValidatePassword(password string) error {
	if utf8.RuneCountInString(password) > maxPasswordLength {
		return ErrPasswordTooLong
	}
	return nil
}

// ValidateShortCode checks the shape of a short code taken from a path.
func ValidateShortCode(code string) error {
	if len(code) < 1 || len(code) > maxShortCodeLength {
		return ErrInvalidShortCodeLen
	}

	for _, char := range code {
		if !isAlphanumeric(char) && char != '-' && char != '_' {
			return ErrInvalidShortCode
		}
	}

	return nil
}

func isAlphanumeric(char rune) bool {
	return (char >= 'a' && char <= 'z') ||
		(char >= 'A' && char <= 'Z') ||
		(char >= '0' && char <= '9')
}
