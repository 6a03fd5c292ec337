package codes

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	ErrCodeNotFound         = errors.New("verification code not found")
	ErrCodeExpired          = errors.New("verification code expired")
	ErrCodeMismatch         = errors.New("verification code mismatch")
	ErrCodeRedisUnavailable = errors.New("verification code redis unavailable")
)

// issueScript supersedes the active record for (target, channel) and creates
// the replacement in one atomic step, so two concurrent issues can never
// leave two unused records behind. The used flag lives at byte offset 1 of
// the record blob; supersession rewrites that single byte and keeps the
// record for audit.
const issueScript = `
local seq_key = KEYS[1]
local active_key = KEYS[2]
local issued_key = KEYS[3]
local blob = ARGV[1]
local retention_ms = tonumber(ARGV[2])
local now_ms = tonumber(ARGV[3])
local rec_prefix = ARGV[4]

local prev = redis.call("GET", active_key)
if prev then
  local prev_key = rec_prefix .. prev
  local data = redis.call("GET", prev_key)
  if data and string.byte(data, 2) == 0 then
    local updated = string.sub(data, 1, 1) .. string.char(1) .. string.sub(data, 3)
    local ttl = redis.call("PTTL", prev_key)
    if ttl > 0 then
      redis.call("SET", prev_key, updated, "PX", ttl)
    else
      redis.call("SET", prev_key, updated)
    end
  end
end

local id = redis.call("INCR", seq_key)
local rec_key = rec_prefix .. id
if retention_ms > 0 then
  redis.call("SET", rec_key, blob, "PX", retention_ms)
  redis.call("SET", active_key, id, "PX", retention_ms)
else
  redis.call("SET", rec_key, blob)
  redis.call("SET", active_key, id)
end

redis.call("ZADD", issued_key, now_ms, id)
if retention_ms > 0 then
  redis.call("ZREMRANGEBYSCORE", issued_key, "-inf", now_ms - retention_ms)
  redis.call("PEXPIRE", issued_key, retention_ms)
end

return id
`

var issueLua = redis.NewScript(issueScript)

// Store persists verification code records in Redis. One active (unused)
// record per (target, channel) is tracked by a pointer key; the issuance
// timeline feeds the rate limiter.
type Store struct {
	redis     redis.UniversalClient
	prefix    string
	retention time.Duration
}

// NewStore creates a code [Store] backed by the given Redis client. prefix
// sets the key namespace; retention bounds how long used and stale records
// stay around for audit (zero keeps them forever).
func NewStore(redisClient redis.UniversalClient, prefix string, retention time.Duration) *Store {
	if prefix == "" {
		prefix = "oa"
	}
	return &Store{
		redis:     redisClient,
		prefix:    prefix,
		retention: retention,
	}
}

func (s *Store) seqKey() string {
	return s.prefix + ":vc:seq"
}

func (s *Store) recordKeyPrefix() string {
	return s.prefix + ":vc:rec:"
}

func (s *Store) recordKey(id string) string {
	return s.recordKeyPrefix() + id
}

func (s *Store) activeKey(target, channel string) string {
	return s.prefix + ":vc:active:" + channel + ":" + target
}

// IssuedKey returns the sorted-set key holding issuance timestamps for one
// (target, channel) pair. The rate limiter counts against it.
func IssuedKey(prefix, target, channel string) string {
	if prefix == "" {
		prefix = "oa"
	}
	return prefix + ":vc:issued:" + channel + ":" + target
}

// Preload registers the issue script with the server so the first request
// does not pay the EVAL upload. Safe to call more than once.
func (s *Store) Preload(ctx context.Context) error {
	if err := issueLua.Load(ctx, s.redis).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrCodeRedisUnavailable, err)
	}
	return nil
}

// Issue atomically supersedes any active record for (target, channel),
// stores a fresh one, and records the issuance on the timeline. Returns the
// new record id and the record itself (the caller delivers the code).
func (s *Store) Issue(ctx context.Context, target, channel string, digits int) (int64, *Record, error) {
	record, err := NewRecord(target, channel, digits)
	if err != nil {
		return 0, nil, err
	}

	blob, err := encodeCodeRecord(record)
	if err != nil {
		return 0, nil, err
	}

	id, err := issueLua.Run(ctx, s.redis,
		[]string{s.seqKey(), s.activeKey(target, channel), IssuedKey(s.prefix, target, channel)},
		blob,
		s.retention.Milliseconds(),
		time.Now().UnixMilli(),
		s.recordKeyPrefix(),
	).Int64()
	if err != nil {
		return 0, nil, fmt.Errorf("%w: %v", ErrCodeRedisUnavailable, err)
	}

	return id, record, nil
}

// Validate loads the active record for (target, channel) and checks the
// provided code inside a WATCH transaction. On success the record is marked
// used and the active pointer cleared; expiry and mismatch leave the record
// untouched so a later issue can still supersede it.
func (s *Store) Validate(ctx context.Context, target, channel, provided string, codeTTL time.Duration) (*Record, error) {
	const maxRetries = 4
	activeKey := s.activeKey(target, channel)

	for i := 0; i < maxRetries; i++ {
		var matched *Record

		err := s.redis.Watch(ctx, func(tx *redis.Tx) error {
			idStr, err := tx.Get(ctx, activeKey).Result()
			if err != nil {
				return err
			}
			if _, err := strconv.ParseInt(idStr, 10, 64); err != nil {
				return ErrCodeNotFound
			}
			recordKey := s.recordKey(idStr)

			data, err := tx.Get(ctx, recordKey).Bytes()
			if err != nil {
				if errors.Is(err, redis.Nil) {
					// Record aged out of retention; drop the stale pointer.
					_, delErr := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
						pipe.Del(ctx, activeKey)
						return nil
					})
					if delErr != nil {
						return delErr
					}
					return ErrCodeNotFound
				}
				return err
			}

			record, err := decodeCodeRecord(data)
			if err != nil {
				return err
			}

			if record.used {
				_, delErr := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
					pipe.Del(ctx, activeKey)
					return nil
				})
				if delErr != nil {
					return delErr
				}
				return ErrCodeNotFound
			}

			if time.Now().After(record.ExpiresAt(codeTTL)) {
				return ErrCodeExpired
			}

			if len(record.code) != len(provided) ||
				subtle.ConstantTimeCompare([]byte(record.code), []byte(provided)) != 1 {
				return ErrCodeMismatch
			}

			record.used = true
			updated, err := encodeCodeRecord(record)
			if err != nil {
				return err
			}

			ttl, err := tx.PTTL(ctx, recordKey).Result()
			if err != nil {
				return err
			}

			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				if ttl > 0 {
					pipe.Set(ctx, recordKey, updated, ttl)
				} else {
					pipe.Set(ctx, recordKey, updated, 0)
				}
				pipe.Del(ctx, activeKey)
				return nil
			})
			if err != nil {
				return err
			}

			matched = record
			return nil
		}, activeKey)

		if err == redis.TxFailedErr {
			continue
		}
		if err != nil {
			switch {
			case errors.Is(err, redis.Nil):
				return nil, ErrCodeNotFound
			case errors.Is(err, ErrCodeNotFound), errors.Is(err, ErrCodeExpired), errors.Is(err, ErrCodeMismatch):
				return nil, err
			default:
				return nil, fmt.Errorf("%w: %v", ErrCodeRedisUnavailable, err)
			}
		}

		return matched, nil
	}

	return nil, ErrCodeNotFound
}

// GetRecord loads one stored record by id, used or not. Intended for audit
// tooling; the authentication path never reads records directly.
func (s *Store) GetRecord(ctx context.Context, id int64) (*Record, error) {
	data, err := s.redis.Get(ctx, s.recordKey(strconv.FormatInt(id, 10))).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrCodeNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrCodeRedisUnavailable, err)
	}
	return decodeCodeRecord(data)
}
