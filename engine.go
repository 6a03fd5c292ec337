package otpAuth

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/redis/go-redis/v9"

	"github.com/MrEthical07/otpAuth/delivery"
	"github.com/MrEthical07/otpAuth/internal/codes"
	"github.com/MrEthical07/otpAuth/internal/rate"
	"github.com/MrEthical07/otpAuth/internal/tokens"
	"github.com/MrEthical07/otpAuth/jwt"
)

// Engine is the passwordless authentication core. It issues and validates
// one-time codes, mints device-scoped access/refresh token pairs, and manages
// the live sessions of each user. Construct one with [New] and share it; all
// methods are safe for concurrent use.
//
// Engine instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Engine struct {
	config Config

	redis        redis.UniversalClient
	codeStore    *codes.Store
	tokenStore   *tokens.Store
	rateLimiter  *rate.Limiter
	jwtManager   *jwt.Manager
	userProvider UserProvider

	emailSender delivery.Sender
	smsSender   delivery.Sender

	audit   *auditDispatcher
	metrics *Metrics

	initialized atomic.Bool
}

// schemaEnsurer is implemented by audit sinks that need one-time storage
// setup, such as the Postgres archive sink.
type schemaEnsurer interface {
	EnsureSchema(ctx context.Context) error
}

// Initialize prepares the engine's backing services: it pings Redis, preloads
// the issuance script, and runs schema setup on the audit sink when the sink
// supports it. Idempotent; call it once at startup before serving requests.
//
// Initialize may return an error when input validation, dependency calls, or security checks fail.
func (e *Engine) Initialize(ctx context.Context) error {
	ctx, cancel := e.opContext(ctx)
	defer cancel()

	if err := e.redis.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if err := e.codeStore.Preload(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	if e.audit != nil {
		if ensurer, ok := e.audit.sink.(schemaEnsurer); ok {
			if err := ensurer.EnsureSchema(ctx); err != nil {
				return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
			}
		}
	}

	e.initialized.Store(true)
	return nil
}

// Close flushes and stops the audit dispatcher. The Redis client is owned by
// the caller and stays open.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	e.audit.Close()
}

// Config returns a copy of the engine's effective configuration.
func (e *Engine) Config() Config {
	return cloneConfig(e.config)
}

// MetricsSnapshot returns a point-in-time copy of the engine's counters.
//
// MetricsSnapshot does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	return e.metrics.Snapshot()
}

// AuditDropped reports how many audit events were discarded because the
// dispatch buffer was full.
func (e *Engine) AuditDropped() uint64 {
	return e.audit.Dropped()
}

func (e *Engine) metricInc(id MetricID) {
	e.metrics.Inc(id)
}

// opContext bounds one store round trip. Callers that already carry a
// deadline keep the tighter of the two.
func (e *Engine) opContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithTimeout(ctx, e.config.Store.OpTimeout)
}

func (e *Engine) ready() error {
	if e == nil || !e.initialized.Load() {
		return ErrEngineNotReady
	}
	return nil
}
