package tokens

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	ErrTokenNotFound         = errors.New("token record not found")
	ErrTokenExpired          = errors.New("token record expired")
	ErrRefreshReused         = errors.New("refresh token record already consumed")
	ErrRefreshMismatch       = errors.New("refresh token record mismatch")
	ErrSessionNotFound       = errors.New("session not found")
	ErrTokenRedisUnavailable = errors.New("token redis unavailable")
)

// Pair carries the two records of one freshly created session.
type Pair struct {
	Access  *Record
	Refresh *Record
}

// Store persists access and refresh token records in Redis. Record keys
// carry a TTL equal to the token's lifetime; a per-user hash indexes the
// live pair of each device.
type Store struct {
	redis  redis.UniversalClient
	prefix string
}

// NewStore creates a token [Store] backed by the given Redis client.
func NewStore(redisClient redis.UniversalClient, prefix string) *Store {
	if prefix == "" {
		prefix = "oa"
	}
	return &Store{
		redis:  redisClient,
		prefix: prefix,
	}
}

func (s *Store) seqKey() string {
	return s.prefix + ":tk:seq"
}

func (s *Store) accessKey(id int64) string {
	return s.prefix + ":tk:acc:" + strconv.FormatInt(id, 10)
}

func (s *Store) refreshKey(id int64) string {
	return s.prefix + ":tk:ref:" + strconv.FormatInt(id, 10)
}

func (s *Store) sessionsKey(userID int64) string {
	return s.prefix + ":tk:sess:" + strconv.FormatInt(userID, 10)
}

// nextIDs reserves two record ids from the shared sequence. Reserved ids are
// never reused, so an abandoned reservation only leaves a gap.
func (s *Store) nextIDs(ctx context.Context) (int64, int64, error) {
	hi, err := s.redis.IncrBy(ctx, s.seqKey(), 2).Result()
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %v", ErrTokenRedisUnavailable, err)
	}
	return hi - 1, hi, nil
}

func (s *Store) buildPair(accessID, refreshID, userID int64, deviceID, userAgent, ip string, accessTTL, refreshTTL time.Duration) *Pair {
	now := time.Now()
	return &Pair{
		Access: &Record{
			ID:        accessID,
			UserID:    userID,
			Type:      TypeAccess,
			DeviceID:  deviceID,
			UserAgent: userAgent,
			IP:        ip,
			CreatedAt: now.UnixMilli(),
			ExpiresAt: now.Add(accessTTL).UnixMilli(),
		},
		Refresh: &Record{
			ID:        refreshID,
			UserID:    userID,
			Type:      TypeRefresh,
			DeviceID:  deviceID,
			UserAgent: userAgent,
			IP:        ip,
			CreatedAt: now.UnixMilli(),
			ExpiresAt: now.Add(refreshTTL).UnixMilli(),
		},
	}
}

func (s *Store) writePair(ctx context.Context, pipe redis.Pipeliner, pair *Pair) error {
	accessBlob, err := encodeTokenRecord(pair.Access)
	if err != nil {
		return err
	}
	refreshBlob, err := encodeTokenRecord(pair.Refresh)
	if err != nil {
		return err
	}

	now := time.Now().UnixMilli()
	pipe.Set(ctx, s.accessKey(pair.Access.ID), accessBlob, time.Duration(pair.Access.ExpiresAt-now)*time.Millisecond)
	pipe.Set(ctx, s.refreshKey(pair.Refresh.ID), refreshBlob, time.Duration(pair.Refresh.ExpiresAt-now)*time.Millisecond)
	pipe.HSet(ctx, s.sessionsKey(pair.Access.UserID), pair.Access.DeviceID, encodeSessionEntry(sessionEntry{
		AccessID:  pair.Access.ID,
		RefreshID: pair.Refresh.ID,
		CreatedAt: pair.Access.CreatedAt,
	}))
	return nil
}

// IssuePair creates a new access+refresh pair for (userID, deviceID) inside
// one transaction. A previous session on the same device is replaced: its
// records are deleted in the same transaction, so a device never holds two
// live pairs.
func (s *Store) IssuePair(ctx context.Context, userID int64, deviceID, userAgent, ip string, accessTTL, refreshTTL time.Duration) (*Pair, error) {
	accessID, refreshID, err := s.nextIDs(ctx)
	if err != nil {
		return nil, err
	}

	const maxRetries = 4
	sessKey := s.sessionsKey(userID)

	for i := 0; i < maxRetries; i++ {
		pair := s.buildPair(accessID, refreshID, userID, deviceID, userAgent, ip, accessTTL, refreshTTL)

		err := s.redis.Watch(ctx, func(tx *redis.Tx) error {
			var previous *sessionEntry
			raw, err := tx.HGet(ctx, sessKey, deviceID).Bytes()
			switch {
			case err == nil:
				entry, decodeErr := decodeSessionEntry(raw)
				if decodeErr != nil {
					return decodeErr
				}
				previous = &entry
			case errors.Is(err, redis.Nil):
				// First session on this device.
			default:
				return err
			}

			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				if previous != nil {
					pipe.Del(ctx, s.accessKey(previous.AccessID), s.refreshKey(previous.RefreshID))
				}
				return s.writePair(ctx, pipe, pair)
			})
			return err
		}, sessKey)

		if err == redis.TxFailedErr {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrTokenRedisUnavailable, err)
		}

		return pair, nil
	}

	return nil, fmt.Errorf("%w: transaction contention", ErrTokenRedisUnavailable)
}

// GetAccess loads a live access record by id. A missing record means the
// session was revoked, regardless of what any signed string claims.
func (s *Store) GetAccess(ctx context.Context, id int64) (*Record, error) {
	data, err := s.redis.Get(ctx, s.accessKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrTokenNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrTokenRedisUnavailable, err)
	}

	record, err := decodeTokenRecord(data)
	if err != nil {
		return nil, err
	}
	if record.Expired(time.Now()) {
		return nil, ErrTokenExpired
	}

	return record, nil
}

// Rotate consumes the refresh record identified by the verified claims and
// issues a replacement pair in one transaction. Exactly one of two
// concurrent rotations of the same token succeeds; the loser observes the
// deleted record and gets [ErrRefreshReused], which the engine escalates to
// full-user revocation.
func (s *Store) Rotate(ctx context.Context, refreshID, userID int64, deviceID, userAgent, ip string, accessTTL, refreshTTL time.Duration) (*Pair, error) {
	newAccessID, newRefreshID, err := s.nextIDs(ctx)
	if err != nil {
		return nil, err
	}

	const maxRetries = 4
	refKey := s.refreshKey(refreshID)
	sessKey := s.sessionsKey(userID)

	for i := 0; i < maxRetries; i++ {
		pair := s.buildPair(newAccessID, newRefreshID, userID, deviceID, userAgent, ip, accessTTL, refreshTTL)

		err := s.redis.Watch(ctx, func(tx *redis.Tx) error {
			data, err := tx.Get(ctx, refKey).Bytes()
			if err != nil {
				if errors.Is(err, redis.Nil) {
					return ErrRefreshReused
				}
				return err
			}

			record, err := decodeTokenRecord(data)
			if err != nil {
				return err
			}
			if record.Type != TypeRefresh || record.UserID != userID || record.DeviceID != deviceID {
				return ErrRefreshMismatch
			}
			if record.Expired(time.Now()) {
				_, delErr := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
					pipe.Del(ctx, refKey)
					pipe.HDel(ctx, sessKey, deviceID)
					return nil
				})
				if delErr != nil {
					return delErr
				}
				return ErrTokenExpired
			}

			var oldAccessID int64
			raw, err := tx.HGet(ctx, sessKey, deviceID).Bytes()
			if err == nil {
				if entry, decodeErr := decodeSessionEntry(raw); decodeErr == nil && entry.RefreshID == refreshID {
					oldAccessID = entry.AccessID
				}
			} else if !errors.Is(err, redis.Nil) {
				return err
			}

			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Del(ctx, refKey)
				if oldAccessID != 0 {
					pipe.Del(ctx, s.accessKey(oldAccessID))
				}
				return s.writePair(ctx, pipe, pair)
			})
			return err
		}, refKey, sessKey)

		if err == redis.TxFailedErr {
			continue
		}
		if err != nil {
			switch {
			case errors.Is(err, ErrRefreshReused), errors.Is(err, ErrRefreshMismatch), errors.Is(err, ErrTokenExpired):
				return nil, err
			default:
				return nil, fmt.Errorf("%w: %v", ErrTokenRedisUnavailable, err)
			}
		}

		return pair, nil
	}

	return nil, fmt.Errorf("%w: transaction contention", ErrTokenRedisUnavailable)
}

// RevokeAllForUser deletes every session of the user: all token records plus
// the device index. Called on logout-all and on refresh reuse detection.
func (s *Store) RevokeAllForUser(ctx context.Context, userID int64) (int, error) {
	sessKey := s.sessionsKey(userID)

	entries, err := s.redis.HGetAll(ctx, sessKey).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrTokenRedisUnavailable, err)
	}

	keys := []string{sessKey}
	for _, raw := range entries {
		entry, decodeErr := decodeSessionEntry([]byte(raw))
		if decodeErr != nil {
			continue
		}
		keys = append(keys, s.accessKey(entry.AccessID), s.refreshKey(entry.RefreshID))
	}

	if err := s.redis.Del(ctx, keys...).Err(); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrTokenRedisUnavailable, err)
	}

	return len(entries), nil
}

// RevokeSession deletes one session of the user, addressed either by device
// id or by token id (access or refresh). Returns [ErrSessionNotFound] when
// nothing matches.
func (s *Store) RevokeSession(ctx context.Context, userID int64, deviceID string, tokenID int64) error {
	sessKey := s.sessionsKey(userID)

	entries, err := s.redis.HGetAll(ctx, sessKey).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTokenRedisUnavailable, err)
	}

	for device, raw := range entries {
		entry, decodeErr := decodeSessionEntry([]byte(raw))
		if decodeErr != nil {
			continue
		}
		if device != deviceID && entry.AccessID != tokenID && entry.RefreshID != tokenID {
			continue
		}

		_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, s.accessKey(entry.AccessID), s.refreshKey(entry.RefreshID))
			pipe.HDel(ctx, sessKey, device)
			return nil
		})
		if err != nil {
			return fmt.Errorf("%w: %v", ErrTokenRedisUnavailable, err)
		}
		return nil
	}

	return ErrSessionNotFound
}

// RevokeOthers deletes every session of the user except the one bound to
// currentDeviceID. Idempotent: a second call finds nothing to delete.
func (s *Store) RevokeOthers(ctx context.Context, userID int64, currentDeviceID string) (int, error) {
	sessKey := s.sessionsKey(userID)

	entries, err := s.redis.HGetAll(ctx, sessKey).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrTokenRedisUnavailable, err)
	}

	var keys []string
	var fields []string
	for device, raw := range entries {
		if device == currentDeviceID {
			continue
		}
		entry, decodeErr := decodeSessionEntry([]byte(raw))
		if decodeErr != nil {
			continue
		}
		keys = append(keys, s.accessKey(entry.AccessID), s.refreshKey(entry.RefreshID))
		fields = append(fields, device)
	}

	if len(fields) == 0 {
		return 0, nil
	}

	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, keys...)
		pipe.HDel(ctx, sessKey, fields...)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrTokenRedisUnavailable, err)
	}

	return len(fields), nil
}

// ListSessions returns one record per live device session, newest first.
// A session is alive as long as its refresh record exists: an expired access
// record only means the session is between refreshes, so such sessions are
// listed from the refresh record instead. An index entry is pruned only when
// both records are gone; pruning on a missing access record alone would make
// the still-rotatable refresh record invisible to the revocation paths.
func (s *Store) ListSessions(ctx context.Context, userID int64) ([]*Record, error) {
	sessKey := s.sessionsKey(userID)

	entries, err := s.redis.HGetAll(ctx, sessKey).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTokenRedisUnavailable, err)
	}

	records := make([]*Record, 0, len(entries))
	var stale []string

	for device, raw := range entries {
		entry, decodeErr := decodeSessionEntry([]byte(raw))
		if decodeErr != nil {
			stale = append(stale, device)
			continue
		}

		data, err := s.redis.Get(ctx, s.accessKey(entry.AccessID)).Bytes()
		if errors.Is(err, redis.Nil) {
			data, err = s.redis.Get(ctx, s.refreshKey(entry.RefreshID)).Bytes()
			if errors.Is(err, redis.Nil) {
				stale = append(stale, device)
				continue
			}
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrTokenRedisUnavailable, err)
		}

		record, decodeErr := decodeTokenRecord(data)
		if decodeErr != nil {
			stale = append(stale, device)
			continue
		}
		records = append(records, record)
	}

	if len(stale) > 0 {
		// Best-effort index cleanup; listing stays correct without it.
		_ = s.redis.HDel(ctx, sessKey, stale...).Err()
	}

	sort.Slice(records, func(i, j int) bool {
		if records[i].CreatedAt != records[j].CreatedAt {
			return records[i].CreatedAt > records[j].CreatedAt
		}
		return records[i].ID > records[j].ID
	})

	return records, nil
}
