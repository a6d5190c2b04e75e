package tokenstore

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when no live record exists for the owner.
	ErrNotFound = errors.New("refresh record not found")
	// ErrMismatch is returned by Rotate when the presented token is not the stored one.
	ErrMismatch = errors.New("refresh record mismatch")
	// ErrUnavailable wraps every infrastructure failure of a backend.
	ErrUnavailable = errors.New("token store unavailable")
	// ErrCorrupt is returned when a stored record cannot be decoded.
	ErrCorrupt = errors.New("refresh record corrupt")
	// ErrExpiryNotInFuture is returned by Put and Rotate for an expiry at or before now.
	ErrExpiryNotInFuture = errors.New("refresh record expiry is not in the future")
)

// Record is the persisted form of an issued refresh token.
type Record struct {
	OwnerID   string
	TokenHash [32]byte
	CreatedAt time.Time
	ExpiresAt time.Time
}

// Expired reports whether the record is past its absolute expiry at now.
func (r *Record) Expired(now time.Time) bool {
	return !now.Before(r.ExpiresAt)
}

// Matches reports whether token hashes to the stored digest.
func (r *Record) Matches(token string) bool {
	h := HashToken(token)
	return subtle.ConstantTimeCompare(h[:], r.TokenHash[:]) == 1
}

// HashToken returns the digest stored in place of a refresh token.
func HashToken(token string) [32]byte {
	return sha256.Sum256([]byte(token))
}

// Store is implemented by every refresh-record backend.
type Store interface {
	// Put creates or replaces the record for owner.
	Put(ctx context.Context, owner, token string, expiresAt time.Time) error
	// Get returns the live record for owner or ErrNotFound.
	Get(ctx context.Context, owner string) (*Record, error)
	// Delete removes the record for owner. Deleting a missing record succeeds.
	Delete(ctx context.Context, owner string) error
	// Rotate replaces the record only when presented matches the live stored token.
	Rotate(ctx context.Context, owner, presented, next string, expiresAt time.Time) error
}

// Sweeper is implemented by backends that need expired records removed
// explicitly. Redis evicts on its own and does not implement it.
type Sweeper interface {
	Sweep(ctx context.Context) (int64, error)
}

// Option configures a backend.
type Option func(*options)

type options struct {
	now func() time.Time
}

// WithClock overrides the clock used for expiry checks.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// RunSweeper calls s.Sweep every interval until ctx is done. Sweep errors are
// reported through warn and do not stop the loop. It returns nil on
// cancellation so it can run under an errgroup.
func RunSweeper(ctx context.Context, s Sweeper, interval time.Duration, warn func(string, ...any)) error {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := s.Sweep(ctx); err != nil && warn != nil && ctx.Err() == nil {
				warn("tokenstore: sweep failed: %v", err)
			}
		}
	}
}
