// Package redisstore implements the revocation ledger on Redis.
//
// Records are written as individual keys whose TTL matches the record's
// natural expiry, so Redis performs the cleaner's purge implicitly. Subject
// markers keep only the most recent cutoff per subject via a compare-and-set
// Lua script.
package redisstore

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/solvrn/tokengate/revocation"
)

const (
	tokenKeyPart   = ":t:"
	subjectKeyPart = ":s:"
	useKeyPart     = ":u:"
)

// setSubjectMarkerScript stores the marker cutoff only when it moves forward,
// so concurrent logout-all calls cannot regress an already-written cutoff.
// When the cutoff stands, the key's TTL is still extended if the new expiry
// outlives the current one; a marker's life can only grow, never shrink.
const setSubjectMarkerScript = `
local cur = redis.call("GET", KEYS[1])
if not cur or tonumber(cur) < tonumber(ARGV[1]) then
  redis.call("SET", KEYS[1], ARGV[1], "PX", ARGV[2])
else
  local ttl = redis.call("PTTL", KEYS[1])
  if ttl >= 0 and ttl < tonumber(ARGV[2]) then
    redis.call("PEXPIRE", KEYS[1], ARGV[2])
  end
end
return 1
`

var setSubjectMarkerLua = redis.NewScript(setSubjectMarkerScript)

// Store is a Redis-backed revocation.Store. Safe for concurrent use.
type Store struct {
	redis  redis.UniversalClient
	prefix string
}

var _ revocation.Store = (*Store)(nil)

// New creates a Store using the given client. prefix namespaces every key,
// e.g. "tg" yields keys like "tg:t:<id>".
func New(client redis.UniversalClient, prefix string) *Store {
	if prefix == "" {
		prefix = "tg"
	}
	return &Store{redis: client, prefix: prefix}
}

func (s *Store) tokenKey(id string) string {
	return s.prefix + tokenKeyPart + id
}

func (s *Store) subjectKey(subject string) string {
	return s.prefix + subjectKeyPart + subject
}

func (s *Store) useKey(id string) string {
	return s.prefix + useKeyPart + id
}

// RecordRevocation writes rec as a single atomic SET (token scope) or a
// forward-only marker update (subject scope). Records whose natural expiry
// has already passed are skipped: the token can no longer authenticate, and
// a key with non-positive TTL would be rejected by Redis.
func (s *Store) RecordRevocation(ctx context.Context, rec revocation.Record) error {
	if err := rec.Validate(); err != nil {
		return err
	}

	ttl := time.Until(rec.NaturalExpiresAt)
	if ttl <= 0 {
		return nil
	}

	switch rec.Scope {
	case revocation.ScopeToken:
		if err := s.redis.Set(ctx, s.tokenKey(rec.ID), rec.RevokedAt.UnixNano(), ttl).Err(); err != nil {
			return fmt.Errorf("%w: %v", revocation.ErrUnavailable, err)
		}
	case revocation.ScopeSubject:
		err := setSubjectMarkerLua.Run(
			ctx,
			s.redis,
			[]string{s.subjectKey(rec.Subject)},
			rec.RevokedAt.UnixNano(),
			ttl.Milliseconds(),
		).Err()
		if err != nil {
			return fmt.Errorf("%w: %v", revocation.ErrUnavailable, err)
		}
	}
	return nil
}

// IsTokenRevoked checks key existence; a purged (expired) key reads as not
// revoked, which is safe because the token itself has expired by then.
func (s *Store) IsTokenRevoked(ctx context.Context, id string) (bool, error) {
	n, err := s.redis.Exists(ctx, s.tokenKey(id)).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", revocation.ErrUnavailable, err)
	}
	return n > 0, nil
}

// IsSubjectRevokedSince compares the stored cutoff against issuedAt.
func (s *Store) IsSubjectRevokedSince(ctx context.Context, subject string, issuedAt time.Time) (bool, error) {
	val, err := s.redis.Get(ctx, s.subjectKey(subject)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, fmt.Errorf("%w: %v", revocation.ErrUnavailable, err)
	}

	cutoff, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return false, fmt.Errorf("%w: corrupt subject marker: %v", revocation.ErrUnavailable, err)
	}
	return cutoff >= issuedAt.UnixNano(), nil
}

// PurgeExpired is a no-op: every key carries a TTL bound to its record's
// natural expiry, so Redis reclaims entries on its own schedule.
func (s *Store) PurgeExpired(ctx context.Context, _ time.Time) (int, error) {
	if err := s.redis.Ping(ctx).Err(); err != nil {
		return 0, fmt.Errorf("%w: %v", revocation.ErrUnavailable, err)
	}
	return 0, nil
}

// IncrementRefreshUse bumps the exchange counter for id, setting the TTL on
// first increment only.
func (s *Store) IncrementRefreshUse(ctx context.Context, id string, ttl time.Duration) (int64, error) {
	key := s.useKey(id)
	count, err := s.redis.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", revocation.ErrUnavailable, err)
	}
	if count == 1 && ttl > 0 {
		if err := s.redis.PExpire(ctx, key, ttl).Err(); err != nil {
			return 0, fmt.Errorf("%w: %v", revocation.ErrUnavailable, err)
		}
	}
	return count, nil
}

// Ping returns a point-in-time availability check and latency.
func (s *Store) Ping(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	if err := s.redis.Ping(ctx).Err(); err != nil {
		return time.Since(start), fmt.Errorf("%w: %v", revocation.ErrUnavailable, err)
	}
	return time.Since(start), nil
}
