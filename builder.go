package otpAuth

import (
	"errors"

	"github.com/redis/go-redis/v9"

	"github.com/MrEthical07/otpAuth/delivery"
	"github.com/MrEthical07/otpAuth/internal/codes"
	"github.com/MrEthical07/otpAuth/internal/rate"
	"github.com/MrEthical07/otpAuth/internal/tokens"
	"github.com/MrEthical07/otpAuth/jwt"
)

// Builder defines a public type used by otpAuth APIs.
//
// Builder instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Builder struct {
	config Config
	redis  redis.UniversalClient

	userProvider UserProvider
	emailSender  delivery.Sender
	smsSender    delivery.Sender
	auditSink    AuditSink

	built bool
}

// New describes the new operation and its observable behavior.
//
// New may return an error when input validation, dependency calls, or security checks fail.
// New does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

// WithConfig describes the withconfig operation and its observable behavior.
//
// WithConfig may return an error when input validation, dependency calls, or security checks fail.
// WithConfig does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis describes the withredis operation and its observable behavior.
//
// WithRedis may return an error when input validation, dependency calls, or security checks fail.
// WithRedis does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithUserProvider describes the withuserprovider operation and its observable behavior.
//
// WithUserProvider may return an error when input validation, dependency calls, or security checks fail.
// WithUserProvider does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithUserProvider(up UserProvider) *Builder {
	b.userProvider = up
	return b
}

// WithEmailSender describes the withemailsender operation and its observable behavior.
//
// WithEmailSender may return an error when input validation, dependency calls, or security checks fail.
// WithEmailSender does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithEmailSender(sender delivery.Sender) *Builder {
	b.emailSender = sender
	return b
}

// WithSMSSender describes the withsmssender operation and its observable behavior.
//
// WithSMSSender may return an error when input validation, dependency calls, or security checks fail.
// WithSMSSender does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithSMSSender(sender delivery.Sender) *Builder {
	b.smsSender = sender
	return b
}

// WithAuditSink describes the withauditsink operation and its observable behavior.
//
// WithAuditSink may return an error when input validation, dependency calls, or security checks fail.
// WithAuditSink does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithMetricsEnabled describes the withmetricsenabled operation and its observable behavior.
//
// WithMetricsEnabled may return an error when input validation, dependency calls, or security checks fail.
// WithMetricsEnabled does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// Build describes the build operation and its observable behavior.
//
// Build may return an error when input validation, dependency calls, or security checks fail.
// Build does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)

	if b.redis == nil {
		return nil, errors.New("redis client required")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if b.userProvider == nil {
		return nil, errors.New("user provider required")
	}

	if b.emailSender == nil && b.smsSender == nil {
		return nil, errors.New("at least one delivery sender required")
	}

	jm, err := jwt.NewManager(jwt.Config{
		Secret: cloneBytes(cfg.JWT.Secret),
		Issuer: cfg.JWT.Issuer,
		Leeway: cfg.JWT.Leeway,
	})
	if err != nil {
		return nil, err
	}

	engine := &Engine{
		config:       cfg,
		redis:        b.redis,
		userProvider: b.userProvider,
		emailSender:  b.emailSender,
		smsSender:    b.smsSender,
		jwtManager:   jm,
	}

	engine.codeStore = codes.NewStore(b.redis, cfg.Store.RedisPrefix, cfg.Codes.RetentionTTL)
	engine.tokenStore = tokens.NewStore(b.redis, cfg.Store.RedisPrefix)
	engine.rateLimiter = rate.New(b.redis, cfg.Store.RedisPrefix, rate.Config{
		Limit:               cfg.RateLimit.Limit,
		Period:              cfg.RateLimit.Period,
		ThrottleValidation:  cfg.RateLimit.ThrottleValidation,
		MaxValidateAttempts: cfg.RateLimit.MaxValidateAttempts,
	})
	engine.audit = newAuditDispatcher(cfg.Audit, b.auditSink)
	engine.metrics = NewMetrics(cfg.Metrics)

	b.built = true

	return engine, nil
}
