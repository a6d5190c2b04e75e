package tokenstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	rotateStatusNotFound int64 = 0
	rotateStatusExpired  int64 = 1
	rotateStatusMismatch int64 = 2
	rotateStatusRotated  int64 = 3
	rotateStatusCorrupt  int64 = 4
)

const rotateRecordScript = `
local function read_be64(s, i)
  local n = 0
  for k = 0, 7 do
    local b = string.byte(s, i + k)
    if not b then
      return nil
    end
    n = n * 256 + b
  end
  return n
end

local data = redis.call("GET", KEYS[1])
if not data then
  return 0
end

if string.byte(data, 1) ~= 1 then
  return 4
end

local owner_len = string.byte(data, 2)
if not owner_len then
  return 4
end

local hash_at = 3 + owner_len
if #data ~= hash_at + 32 + 16 - 1 then
  return 4
end

local expires_at = read_be64(data, hash_at + 32 + 8)
if not expires_at then
  return 4
end

if expires_at <= tonumber(ARGV[3]) then
  redis.call("DEL", KEYS[1])
  return 1
end

if string.sub(data, hash_at, hash_at + 31) ~= ARGV[1] then
  return 2
end

redis.call("SET", KEYS[1], ARGV[2], "PX", ARGV[4])
return 3
`

var rotateRecordLua = redis.NewScript(rotateRecordScript)

// RedisStore keeps one key per owner. Keys carry a PX expiry equal to the
// record's absolute expiry, so Redis evicts them passively.
type RedisStore struct {
	redis  redis.UniversalClient
	prefix string
	now    func() time.Time
}

// NewRedisStore returns a store writing keys under prefix.
func NewRedisStore(rdb redis.UniversalClient, prefix string, opts ...Option) *RedisStore {
	if prefix == "" {
		prefix = "vrt"
	}
	o := buildOptions(opts)
	return &RedisStore{redis: rdb, prefix: prefix, now: o.now}
}

func (s *RedisStore) key(owner string) string {
	return s.prefix + ":" + owner
}

// Put creates or replaces the record for owner.
//
//	Performance: 1 Redis SET.
func (s *RedisStore) Put(ctx context.Context, owner, token string, expiresAt time.Time) error {
	now := s.now()
	ttl := expiresAt.Sub(now)
	if ttl <= 0 {
		return ErrExpiryNotInFuture
	}

	data, err := encodeRecord(&Record{
		OwnerID:   owner,
		TokenHash: HashToken(token),
		CreatedAt: now,
		ExpiresAt: expiresAt,
	})
	if err != nil {
		return err
	}

	if err := s.redis.Set(ctx, s.key(owner), data, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// Get returns the live record for owner.
//
//	Performance: 1 Redis GET.
func (s *RedisStore) Get(ctx context.Context, owner string) (*Record, error) {
	data, err := s.redis.Get(ctx, s.key(owner)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	rec, err := decodeRecord(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if rec.OwnerID != owner {
		return nil, fmt.Errorf("%w: owner mismatch", ErrCorrupt)
	}
	if rec.Expired(s.now()) {
		return nil, ErrNotFound
	}
	return rec, nil
}

// Delete removes the record for owner.
func (s *RedisStore) Delete(ctx context.Context, owner string) error {
	if err := s.redis.Del(ctx, s.key(owner)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// Rotate swaps the stored digest for next in one Lua call. An expired record
// is deleted and reported as ErrNotFound.
//
//	Performance: 1 Redis EVALSHA.
func (s *RedisStore) Rotate(ctx context.Context, owner, presented, next string, expiresAt time.Time) error {
	now := s.now()
	ttl := expiresAt.Sub(now)
	if ttl <= 0 {
		return ErrExpiryNotInFuture
	}

	data, err := encodeRecord(&Record{
		OwnerID:   owner,
		TokenHash: HashToken(next),
		CreatedAt: now,
		ExpiresAt: expiresAt,
	})
	if err != nil {
		return err
	}

	presentedHash := HashToken(presented)
	status, err := rotateRecordLua.Run(
		ctx,
		s.redis,
		[]string{s.key(owner)},
		presentedHash[:],
		data,
		now.UnixMilli(),
		ttl.Milliseconds(),
	).Int64()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	switch status {
	case rotateStatusRotated:
		return nil
	case rotateStatusNotFound, rotateStatusExpired:
		return ErrNotFound
	case rotateStatusMismatch:
		return ErrMismatch
	case rotateStatusCorrupt:
		return ErrCorrupt
	default:
		return fmt.Errorf("%w: unexpected rotate status %d", ErrUnavailable, status)
	}
}
