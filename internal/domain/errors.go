package domain

import "errors"

// Denials returned by the access evaluator. These are expected outcomes,
// surfaced to callers verbatim and never retried.
var (
	ErrNotFound          = errors.New("URL not found")
	ErrInactive          = errors.New("URL is inactive")
	ErrExpired           = errors.New("URL has expired")
	ErrClickLimitReached = errors.New("URL has reached its click limit")
	ErrPasswordRequired  = errors.New("password required")
	ErrPasswordIncorrect = errors.New("invalid password")
)

// Failures outside the evaluator.
var (
	ErrValidation          = errors.New("validation failed")
	ErrAllocationExhausted = errors.New("could not allocate a unique short code")
	ErrStore               = errors.New("store unavailable")
)
