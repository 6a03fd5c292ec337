package otpAuth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/otpAuth/internal/tokens"
	"github.com/MrEthical07/otpAuth/jwt"
)

// AccessIdentity is the authenticated result of [Engine.VerifyAccess].
type AccessIdentity struct {
	UserID    int64
	DeviceID  string
	TokenID   int64
	ExpiresAt time.Time
}

// VerifyAccess authenticates an access token. The signature check alone is
// not sufficient: the backing record must still exist, so a revoked session
// fails here no matter how long the signed string remains within its expiry.
// Failures map to [ErrTokenInvalid], [ErrTokenExpired], or [ErrTokenRevoked].
//
// VerifyAccess may return an error when input validation, dependency calls, or security checks fail.
// VerifyAccess does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) VerifyAccess(ctx context.Context, accessToken string) (AccessIdentity, error) {
	if err := e.ready(); err != nil {
		return AccessIdentity{}, err
	}

	claims, err := e.jwtManager.Parse(accessToken, jwt.TypeAccess)
	if err != nil {
		e.metricInc(MetricAccessRejected)
		if errors.Is(err, jwt.ErrTokenExpired) {
			return AccessIdentity{}, ErrTokenExpired
		}
		return AccessIdentity{}, ErrTokenInvalid
	}

	opCtx, cancel := e.opContext(ctx)
	defer cancel()

	record, err := e.tokenStore.GetAccess(opCtx, claims.ID)
	if err != nil {
		switch {
		case errors.Is(err, tokens.ErrTokenNotFound):
			e.metricInc(MetricAccessRejected)
			e.emitAudit(ctx, auditEventAccessRejected, false, claims.UserID, "", "", claims.DeviceID, ErrTokenRevoked, nil)
			return AccessIdentity{}, ErrTokenRevoked
		case errors.Is(err, tokens.ErrTokenExpired):
			e.metricInc(MetricAccessRejected)
			return AccessIdentity{}, ErrTokenExpired
		default:
			e.metricInc(MetricStoreUnavailable)
			return AccessIdentity{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
	}

	if record.UserID != claims.UserID || record.Type != tokens.TypeAccess {
		e.metricInc(MetricAccessRejected)
		e.emitAudit(ctx, auditEventAccessRejected, false, claims.UserID, "", "", claims.DeviceID, ErrTokenInvalid, nil)
		return AccessIdentity{}, ErrTokenInvalid
	}

	e.metricInc(MetricAccessVerified)

	return AccessIdentity{
		UserID:    record.UserID,
		DeviceID:  record.DeviceID,
		TokenID:   record.ID,
		ExpiresAt: time.UnixMilli(record.ExpiresAt),
	}, nil
}
