package otpAuth

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"

	"github.com/MrEthical07/otpAuth/internal/tokens"
	"github.com/MrEthical07/otpAuth/jwt"
)

// Refresh rotates a refresh token: the presented token is consumed and a new
// access/refresh pair for the same user and device is returned. The caller
// must present the device identifier its session is bound to; a token whose
// claims name a different device fails as invalid. Each refresh token
// rotates at most once. Presenting an already-consumed token is treated as
// credential theft: every session of the user is revoked and the call fails
// with [ErrRefreshReuse].
//
// Refresh may return an error when input validation, dependency calls, or security checks fail.
// Refresh does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) Refresh(ctx context.Context, refreshToken, deviceID string) (TokenPair, error) {
	if err := e.ready(); err != nil {
		return TokenPair{}, err
	}
	if deviceID == "" {
		return TokenPair{}, ErrInvalidDevice
	}

	claims, err := e.jwtManager.Parse(refreshToken, jwt.TypeRefresh)
	if err != nil {
		e.metricInc(MetricRefreshFailure)
		if errors.Is(err, jwt.ErrTokenExpired) {
			return TokenPair{}, ErrTokenExpired
		}
		e.emitAudit(ctx, auditEventRefreshInvalid, false, 0, "", "", "", ErrTokenInvalid, nil)
		return TokenPair{}, ErrTokenInvalid
	}

	if claims.DeviceID != deviceID {
		e.metricInc(MetricRefreshFailure)
		e.emitAudit(ctx, auditEventRefreshInvalid, false, claims.UserID, "", "", deviceID, ErrTokenInvalid, nil)
		return TokenPair{}, ErrTokenInvalid
	}

	opCtx, cancel := e.opContext(ctx)
	defer cancel()

	pair, err := e.tokenStore.Rotate(opCtx, claims.ID, claims.UserID, claims.DeviceID,
		userAgentFromContext(ctx), clientIPFromContext(ctx),
		e.config.JWT.AccessTTL, e.config.JWT.RefreshTTL)
	if err != nil {
		switch {
		case errors.Is(err, tokens.ErrRefreshReused):
			return TokenPair{}, e.handleRefreshReuse(ctx, claims)
		case errors.Is(err, tokens.ErrRefreshMismatch):
			e.metricInc(MetricRefreshFailure)
			e.emitAudit(ctx, auditEventRefreshInvalid, false, claims.UserID, "", "", claims.DeviceID, ErrTokenInvalid, nil)
			return TokenPair{}, ErrTokenInvalid
		case errors.Is(err, tokens.ErrTokenExpired):
			e.metricInc(MetricRefreshFailure)
			return TokenPair{}, ErrTokenExpired
		default:
			e.metricInc(MetricStoreUnavailable)
			return TokenPair{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
	}

	signed, err := e.signPair(pair)
	if err != nil {
		return TokenPair{}, err
	}

	e.metricInc(MetricRefreshSuccess)
	e.emitAudit(ctx, auditEventRefreshSuccess, true, claims.UserID, "", "", claims.DeviceID, nil, nil)

	return signed, nil
}

// handleRefreshReuse escalates a consumed-token replay. The signature was
// valid, so someone holds a token that was already rotated; the stolen copy
// and the legitimate one are indistinguishable, so every session dies.
func (e *Engine) handleRefreshReuse(ctx context.Context, claims *jwt.Claims) error {
	e.metricInc(MetricRefreshReuseDetected)

	opCtx, cancel := e.opContext(ctx)
	defer cancel()

	revoked, err := e.tokenStore.RevokeAllForUser(opCtx, claims.UserID)
	if err != nil {
		// Revocation must not be silently skipped; surface the outage and let
		// the caller retry. The reused token itself is already gone.
		log.Printf("otpAuth: revoke-all after refresh reuse failed for user %d: %v", claims.UserID, err)
		e.metricInc(MetricStoreUnavailable)
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	e.emitAudit(ctx, auditEventRefreshReuse, false, claims.UserID, "", "", claims.DeviceID, ErrRefreshReuse, func() map[string]string {
		return map[string]string{"sessions_revoked": strconv.Itoa(revoked)}
	})

	return ErrRefreshReuse
}
