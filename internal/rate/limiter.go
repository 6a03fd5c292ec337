package rate

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/MrEthical07/otpAuth/internal/codes"
	"github.com/redis/go-redis/v9"
)

// ErrRateLimited is returned when the caller has exhausted its budget.
var ErrRateLimited = errors.New("rate limited")

// ErrRedisUnavailable is returned on any store failure. Callers fail closed:
// an unavailable limiter denies, it never waves requests through.
var ErrRedisUnavailable = errors.New("rate limiter redis unavailable")

// Config holds rate limiter tuning parameters.
type Config struct {
	Limit               int           // issuance budget per (target, channel) per Period
	Period              time.Duration // trailing window
	ThrottleValidation  bool
	MaxValidateAttempts int // validation budget per (target, channel) per Period
}

// Limiter bounds code issuance and validation per (target, channel) using
// the shared Redis store, so the budget holds across server instances.
type Limiter struct {
	redis  redis.UniversalClient
	prefix string
	config Config
}

// New creates a rate [Limiter] backed by the given Redis client.
func New(redisClient redis.UniversalClient, prefix string, cfg Config) *Limiter {
	if prefix == "" {
		prefix = "oa"
	}
	return &Limiter{
		redis:  redisClient,
		prefix: prefix,
		config: cfg,
	}
}

// Allow reports whether another code may be issued for (target, channel).
// It counts issuance events on the timeline the code store writes, within
// the trailing window. Read-only: recording the event is the issuer's job,
// which keeps the check free of side effects when the request is denied.
func (l *Limiter) Allow(ctx context.Context, target, channel string) error {
	now := time.Now().UnixMilli()
	since := now - l.config.Period.Milliseconds()

	count, err := l.redis.ZCount(ctx,
		codes.IssuedKey(l.prefix, target, channel),
		strconv.FormatInt(since, 10),
		"+inf",
	).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	if count >= int64(l.config.Limit) {
		return ErrRateLimited
	}

	return nil
}

// CheckValidate enforces the validation-attempt budget for (target, channel).
// The six-digit code space is small enough to brute-force inside the validity
// window, so validation is throttled independently of issuance.
func (l *Limiter) CheckValidate(ctx context.Context, target, channel string) error {
	if !l.config.ThrottleValidation {
		return nil
	}

	count, err := l.incrementWithTTL(ctx, l.validateKey(target, channel), l.config.Period)
	if err != nil {
		return err
	}
	if count > int64(l.config.MaxValidateAttempts) {
		return ErrRateLimited
	}

	return nil
}

func (l *Limiter) validateKey(target, channel string) string {
	return l.prefix + ":vc:vrl:" + channel + ":" + target
}

func (l *Limiter) incrementWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	count, err := l.redis.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	// Fixed-window semantics: set TTL only for the first hit in the window.
	if count == 1 {
		if err := l.redis.Expire(ctx, key, ttl).Err(); err != nil {
			return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
	}

	return count, nil
}
