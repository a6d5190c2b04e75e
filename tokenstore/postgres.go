package tokenstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/vitadrop/vitaauth/internal/dbx"
)

// PostgresStore keeps records in the refresh_tokens table, one row per owner.
type PostgresStore struct {
	db  dbx.DBTX
	now func() time.Time
}

// NewPostgresStore returns a store over db, which may be a *sql.DB or *sql.Tx.
func NewPostgresStore(db dbx.DBTX, opts ...Option) *PostgresStore {
	o := buildOptions(opts)
	return &PostgresStore{db: db, now: o.now}
}

func (s *PostgresStore) Put(ctx context.Context, owner, token string, expiresAt time.Time) error {
	now := s.now()
	if !expiresAt.After(now) {
		return ErrExpiryNotInFuture
	}

	hash := HashToken(token)
	query := `
		INSERT INTO refresh_tokens (owner_id, token_hash, created_at, expires_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (owner_id) DO UPDATE
		SET token_hash = EXCLUDED.token_hash,
		    created_at = EXCLUDED.created_at,
		    expires_at = EXCLUDED.expires_at
	`
	if _, err := s.db.ExecContext(ctx, query, owner, hash[:], now.UTC(), expiresAt.UTC()); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, owner string) (*Record, error) {
	query := `
		SELECT owner_id, token_hash, created_at, expires_at
		FROM refresh_tokens
		WHERE owner_id = $1
	`
	var (
		rec  Record
		hash []byte
	)
	err := s.db.QueryRowContext(ctx, query, owner).Scan(&rec.OwnerID, &hash, &rec.CreatedAt, &rec.ExpiresAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if len(hash) != len(rec.TokenHash) {
		return nil, fmt.Errorf("%w: token hash length %d", ErrCorrupt, len(hash))
	}
	copy(rec.TokenHash[:], hash)

	if rec.Expired(s.now()) {
		return nil, ErrNotFound
	}
	return &rec, nil
}

func (s *PostgresStore) Delete(ctx context.Context, owner string) error {
	query := `
		DELETE FROM refresh_tokens
		WHERE owner_id = $1
	`
	if _, err := s.db.ExecContext(ctx, query, owner); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// Rotate is a single conditional UPDATE. When no row changes, a follow-up
// read decides between ErrNotFound and ErrMismatch.
func (s *PostgresStore) Rotate(ctx context.Context, owner, presented, next string, expiresAt time.Time) error {
	now := s.now()
	if !expiresAt.After(now) {
		return ErrExpiryNotInFuture
	}

	presentedHash := HashToken(presented)
	nextHash := HashToken(next)
	query := `
		UPDATE refresh_tokens
		SET token_hash = $3, created_at = $4, expires_at = $5
		WHERE owner_id = $1 AND token_hash = $2 AND expires_at > $4
	`
	res, err := s.db.ExecContext(ctx, query, owner, presentedHash[:], nextHash[:], now.UTC(), expiresAt.UTC())
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if n == 1 {
		return nil
	}

	if _, err := s.Get(ctx, owner); err != nil {
		return err
	}
	return ErrMismatch
}

// Sweep deletes every expired row.
func (s *PostgresStore) Sweep(ctx context.Context) (int64, error) {
	query := `
		DELETE FROM refresh_tokens
		WHERE expires_at <= $1
	`
	res, err := s.db.ExecContext(ctx, query, s.now().UTC())
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return n, nil
}
