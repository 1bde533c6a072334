package shortcode

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"shortlink/internal/domain"
	"shortlink/internal/metrics"
	"shortlink/internal/repository"
)

const (
	// Alphabet is the base-36 character set codes are drawn from.
	Alphabet = "0123456789abcdefghijklmnopqrstuvwxyz"

	DefaultLength      = 6
	DefaultMaxAttempts = 5
)

// DefaultReserved are the first path segments the router serves itself.
var DefaultReserved = []string{"api", "health", "metrics"}

// Generator produces a candidate short code.
type Generator func() (string, error)

// Checker is the optimistic existence pre-check.
type Checker interface {
	ExistsShortCode(ctx context.Context, shortCode string) (bool, error)
}

// InsertFunc persists a record under the given code. It must return an error
// wrapping repository.ErrDuplicateShortCode when the store's uniqueness
// constraint rejects the code.
type InsertFunc func(ctx context.Context, shortCode string) error

// Allocator hands out collision-free short codes without a central sequence.
// A candidate is generated, pre-checked against the store, and then inserted;
// a uniqueness violation on insert counts as a collision just like a failed
// pre-check. Both consume the same attempt budget.
type Allocator struct {
	checker     Checker
	generate    Generator
	maxAttempts int
	reserved    map[string]struct{}
	logger      *slog.Logger
}

// Option configures an Allocator.
type Option func(*Allocator)

// WithGenerator replaces the random generator.
func WithGenerator(g Generator) Option {
	return func(a *Allocator) { a.generate = g }
}

// WithMaxAttempts sets the attempt budget. Values below 1 are ignored.
func WithMaxAttempts(n int) Option {
	return func(a *Allocator) {
		if n > 0 {
			a.maxAttempts = n
		}
	}
}

// WithLength sets the length of randomly generated codes.
func WithLength(n int) Option {
	return func(a *Allocator) {
		if n > 0 {
			a.generate = RandomGenerator(n)
		}
	}
}

// WithReserved replaces the set of codes that are never handed out.
// Matching ignores case.
func WithReserved(codes ...string) Option {
	return func(a *Allocator) { a.reserved = reservedSet(codes) }
}

func reservedSet(codes []string) map[string]struct{} {
	set := make(map[string]struct{}, len(codes))
	for _, c := range codes {
		set[strings.ToLower(c)] = struct{}{}
	}
	return set
}

// WithLogger sets the logger used for collision diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(a *Allocator) { a.logger = l }
}

// NewAllocator creates an allocator with a 6-character base-36 generator
// and a budget of 5 attempts.
func NewAllocator(checker Checker, opts ...Option) *Allocator {
	a := &Allocator{
		checker:     checker,
		generate:    RandomGenerator(DefaultLength),
		maxAttempts: DefaultMaxAttempts,
		reserved:    reservedSet(DefaultReserved),
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Allocate returns a code that was free at the time of the check.
// It does not reserve the code; use Claim when the caller inserts.
func (a *Allocator) Allocate(ctx context.Context) (string, error) {
	return a.Claim(ctx, nil)
}

// Claim generates codes until insert succeeds, retrying on reserved codes,
// pre-check hits and uniqueness violations reported by insert. A nil insert makes Claim
// behave like Allocate. Any other insert or store error aborts immediately.
func (a *Allocator) Claim(ctx context.Context, insert InsertFunc) (string, error) {
	for attempt := 1; attempt <= a.maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		code, err := a.generate()
		if err != nil {
			return "", fmt.Errorf("failed to generate short code: %w", err)
		}
		metrics.RecordAllocationAttempt()

		if _, ok := a.reserved[strings.ToLower(code)]; ok {
			metrics.RecordAllocationCollision("reserved")
			a.logger.Debug("short code collision", "short_code", code, "attempt", attempt, "stage", "reserved")
			continue
		}

		exists, err := a.checker.ExistsShortCode(ctx, code)
		if err != nil {
			return "", fmt.Errorf("failed to check short code existence: %w", err)
		}
		if exists {
			metrics.RecordAllocationCollision("precheck")
			a.logger.Debug("short code collision", "short_code", code, "attempt", attempt, "stage", "precheck")
			continue
		}

		if insert == nil {
			return code, nil
		}

		err = insert(ctx, code)
		if errors.Is(err, repository.ErrDuplicateShortCode) {
			metrics.RecordAllocationCollision("insert")
			a.logger.Debug("short code collision", "short_code", code, "attempt", attempt, "stage", "insert")
			continue
		}
		if err != nil {
			return "", err
		}
		return code, nil
	}

	return "", fmt.Errorf("%w after %d attempts", domain.ErrAllocationExhausted, a.maxAttempts)
}

// RandomGenerator returns a Generator producing n characters drawn uniformly
// from Alphabet using crypto/rand.
func RandomGenerator(n int) Generator {
	return func() (string, error) {
		return Random(n)
	}
}

// Random returns a random base-36 string of length n.
func Random(n int) (string, error) {
	// 252 is the largest multiple of 36 that fits in a byte; rejecting bytes
	// at or above it keeps the distribution uniform.
	const limit = 252

	out := make([]byte, 0, n)
	buf := make([]byte, n*2)
	for len(out) < n {
		if _, err := rand.Read(buf); err != nil {
			return "", err
		}
		for _, b := range buf {
			if b >= limit {
				continue
			}
			out = append(out, Alphabet[b%36])
			if len(out) == n {
				break
			}
		}
	}
	return string(out), nil
}
