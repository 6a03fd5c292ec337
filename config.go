package otpAuth

import (
	"errors"
	"time"
)

// Config defines a public type used by otpAuth APIs.
//
// Config instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Config struct {
	Codes     CodesConfig
	RateLimit RateLimitConfig
	JWT       JWTConfig
	Store     StoreConfig
	Audit     AuditConfig
	Metrics   MetricsConfig
}

/*
====================================
CODES CONFIG
====================================
*/

// CodesConfig defines a public type used by otpAuth APIs.
//
// CodesConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type CodesConfig struct {
	Digits       int           // fixed at 6 for wire compatibility
	CodeTTL      time.Duration // validity window from creation
	RetentionTTL time.Duration // how long used/expired records stay for audit
}

/*
====================================
RATE LIMIT CONFIG
====================================
*/

// RateLimitConfig defines a public type used by otpAuth APIs.
//
// RateLimitConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type RateLimitConfig struct {
	Limit               int           // max code issues per (target, channel) per Period
	Period              time.Duration // trailing window for issuance counting
	ThrottleValidation  bool          // also rate-limit validation attempts
	MaxValidateAttempts int           // validation attempts per Period when throttled
}

/*
====================================
JWT CONFIG
====================================
*/

// JWTConfig defines a public type used by otpAuth APIs.
//
// JWTConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type JWTConfig struct {
	Secret     []byte // HS256 process-wide signing key
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	Issuer     string
	Leeway     time.Duration
}

/*
====================================
STORE CONFIG
====================================
*/

// StoreConfig defines a public type used by otpAuth APIs.
//
// StoreConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type StoreConfig struct {
	RedisPrefix string
	OpTimeout   time.Duration // per-call bound on store I/O
}

// AuditConfig defines a public type used by otpAuth APIs.
//
// AuditConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig defines a public type used by otpAuth APIs.
//
// MetricsConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type MetricsConfig struct {
	Enabled bool
}

// DefaultConfig returns the baseline configuration: 6-digit codes valid for
// 5 minutes, 4 issues per 60 seconds, 15-minute access tokens, 30-day
// refresh tokens, validation throttling on.
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	return Config{
		Codes: CodesConfig{
			Digits:       6,
			CodeTTL:      5 * time.Minute,
			RetentionTTL: 30 * 24 * time.Hour,
		},
		RateLimit: RateLimitConfig{
			Limit:               4,
			Period:              60 * time.Second,
			ThrottleValidation:  true,
			MaxValidateAttempts: 10,
		},
		JWT: JWTConfig{
			AccessTTL:  15 * time.Minute,
			RefreshTTL: 30 * 24 * time.Hour,
		},
		Store: StoreConfig{
			RedisPrefix: "oa",
			OpTimeout:   3 * time.Second,
		},
		Audit: AuditConfig{
			Enabled:    true,
			BufferSize: 256,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
	}
}

// Validate describes the validate operation and its observable behavior.
//
// Validate may return an error when input validation, dependency calls, or security checks fail.
// Validate does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (c *Config) Validate() error {
	if c.Codes.Digits != 6 {
		return errors.New("Codes.Digits must be 6")
	}
	if c.Codes.CodeTTL <= 0 {
		return errors.New("Codes.CodeTTL must be positive")
	}
	if c.Codes.RetentionTTL > 0 && c.Codes.RetentionTTL < c.Codes.CodeTTL {
		return errors.New("Codes.RetentionTTL must cover CodeTTL")
	}
	if c.RateLimit.Limit <= 0 {
		return errors.New("RateLimit.Limit must be positive")
	}
	if c.RateLimit.Period <= 0 {
		return errors.New("RateLimit.Period must be positive")
	}
	if c.RateLimit.ThrottleValidation && c.RateLimit.MaxValidateAttempts <= 0 {
		return errors.New("RateLimit.MaxValidateAttempts must be positive when validation throttling is enabled")
	}
	if len(c.JWT.Secret) < 32 {
		return errors.New("JWT.Secret must be at least 32 bytes")
	}
	if c.JWT.AccessTTL <= 0 || c.JWT.RefreshTTL <= 0 {
		return errors.New("JWT TTLs must be positive")
	}
	if c.JWT.RefreshTTL <= c.JWT.AccessTTL {
		return errors.New("JWT.RefreshTTL must exceed AccessTTL")
	}
	if c.JWT.Leeway < 0 || c.JWT.Leeway > 2*time.Minute {
		return errors.New("JWT.Leeway out of range")
	}
	if c.Store.RedisPrefix == "" {
		return errors.New("Store.RedisPrefix must be set")
	}
	if c.Store.OpTimeout <= 0 {
		return errors.New("Store.OpTimeout must be positive")
	}
	return nil
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.JWT.Secret = cloneBytes(cfg.JWT.Secret)
	return out
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
