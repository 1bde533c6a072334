// Package access decides whether a visit to a short link may be redirected.
//
// Evaluate is a pure function of the link, the clock and the supplied
// password. It performs no I/O and may be called any number of times for the
// same visit, for example once to decide whether to show the password form
// and again after the visitor submits it.
package access

import (
	"crypto/subtle"
	"time"

	"shortlink/internal/domain"
)

// Decision is the kind of outcome produced by Evaluate.
type Decision int

const (
	Allow Decision = iota
	DenyNotFound
	DenyInactive
	DenyExpired
	DenyClickLimitReached
	DenyPasswordRequired
	DenyPasswordIncorrect
)

var decisionNames = map[Decision]string{
	Allow:                 "allow",
	DenyNotFound:          "not_found",
	DenyInactive:          "inactive",
	DenyExpired:           "expired",
	DenyClickLimitReached: "click_limit_reached",
	DenyPasswordRequired:  "password_required",
	DenyPasswordIncorrect: "password_incorrect",
}

// String returns a stable snake_case name, used as a metrics label.
func (d Decision) String() string {
	if name, ok := decisionNames[d]; ok {
		return name
	}
	return "unknown"
}

// Outcome is the evaluator's decision. Target is set only when Decision is Allow.
type Outcome struct {
	Decision Decision
	Target   string
}

// Allowed reports whether the visit may proceed.
func (o Outcome) Allowed() bool {
	return o.Decision == Allow
}

// Err maps a denial to its domain sentinel. It returns nil for Allow.
func (o Outcome) Err() error {
	switch o.Decision {
	case Allow:
		return nil
	case DenyNotFound:
		return domain.ErrNotFound
	case DenyInactive:
		return domain.ErrInactive
	case DenyExpired:
		return domain.ErrExpired
	case DenyClickLimitReached:
		return domain.ErrClickLimitReached
	case DenyPasswordRequired:
		return domain.ErrPasswordRequired
	case DenyPasswordIncorrect:
		return domain.ErrPasswordIncorrect
	default:
		return domain.ErrNotFound
	}
}

// Evaluate runs the access checks in their fixed order; the first match wins:
//
//  1. link absent          -> DenyNotFound
//  2. link inactive        -> DenyInactive
//  3. now after expiresAt  -> DenyExpired
//  4. clicks >= clickLimit -> DenyClickLimitReached
//  5. password set:
//     no password supplied -> DenyPasswordRequired
//     mismatch             -> DenyPasswordIncorrect
//  6. otherwise            -> Allow(originalURL)
//
// A nil password means "not supplied". Password comparison is an exact
// string match against the stored plaintext.
func Evaluate(link *domain.Link, now time.Time, password *string) Outcome {
	if link == nil {
		return Outcome{Decision: DenyNotFound}
	}
	if !link.IsActive {
		return Outcome{Decision: DenyInactive}
	}
	if link.IsExpired(now) {
		return Outcome{Decision: DenyExpired}
	}
	if link.IsExhausted() {
		return Outcome{Decision: DenyClickLimitReached}
	}
	if link.HasPassword() {
		if password == nil {
			return Outcome{Decision: DenyPasswordRequired}
		}
		if !passwordsEqual(*password, *link.Password) {
			return Outcome{Decision: DenyPasswordIncorrect}
		}
	}
	return Outcome{Decision: Allow, Target: link.OriginalURL}
}

func passwordsEqual(supplied, stored string) bool {
	return subtle.ConstantTimeCompare([]byte(supplied), []byte(stored)) == 1
}
