package otpAuth

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/MrEthical07/otpAuth/internal/tokens"
)

// ListDevices returns the user's live device sessions, newest first. Each
// entry reflects the access-token record currently bound to that device.
//
// ListDevices may return an error when input validation, dependency calls, or security checks fail.
// ListDevices does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) ListDevices(ctx context.Context, userID int64) ([]DeviceSession, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if userID <= 0 {
		return nil, ErrUserNotFound
	}

	opCtx, cancel := e.opContext(ctx)
	defer cancel()

	records, err := e.tokenStore.ListSessions(opCtx, userID)
	if err != nil {
		e.metricInc(MetricStoreUnavailable)
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	sessions := make([]DeviceSession, 0, len(records))
	for _, record := range records {
		sessions = append(sessions, DeviceSession{
			TokenID:   record.ID,
			DeviceID:  record.DeviceID,
			UserAgent: record.UserAgent,
			IPAddress: record.IP,
			CreatedAt: time.UnixMilli(record.CreatedAt),
			ExpiresAt: time.UnixMilli(record.ExpiresAt),
		})
	}

	return sessions, nil
}

// RevokeDevice kills one session of the user, addressed by device identifier
// or by a token id rendered as a decimal string. Both the access and refresh
// records die together. Returns [ErrSessionNotFound] when nothing matches.
//
// RevokeDevice may return an error when input validation, dependency calls, or security checks fail.
// RevokeDevice does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) RevokeDevice(ctx context.Context, userID int64, device string) error {
	if err := e.ready(); err != nil {
		return err
	}
	if userID <= 0 {
		return ErrUserNotFound
	}
	if device == "" {
		return ErrInvalidDevice
	}

	// A device identifier that happens to be numeric also matches by token id.
	tokenID, _ := strconv.ParseInt(device, 10, 64)

	opCtx, cancel := e.opContext(ctx)
	defer cancel()

	if err := e.tokenStore.RevokeSession(opCtx, userID, device, tokenID); err != nil {
		if errors.Is(err, tokens.ErrSessionNotFound) {
			return ErrSessionNotFound
		}
		e.metricInc(MetricStoreUnavailable)
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	e.metricInc(MetricSessionRevoked)
	e.emitAudit(ctx, auditEventSessionRevoked, true, userID, "", "", device, nil, nil)

	return nil
}

// LogoutOthers kills every session of the user except the one bound to
// currentDeviceID and reports how many died. Idempotent: a repeat call finds
// nothing left to revoke and returns zero.
//
// LogoutOthers may return an error when input validation, dependency calls, or security checks fail.
// LogoutOthers does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) LogoutOthers(ctx context.Context, userID int64, currentDeviceID string) (int, error) {
	if err := e.ready(); err != nil {
		return 0, err
	}
	if userID <= 0 {
		return 0, ErrUserNotFound
	}
	if currentDeviceID == "" {
		return 0, ErrInvalidDevice
	}

	opCtx, cancel := e.opContext(ctx)
	defer cancel()

	revoked, err := e.tokenStore.RevokeOthers(opCtx, userID, currentDeviceID)
	if err != nil {
		e.metricInc(MetricStoreUnavailable)
		return 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	if revoked > 0 {
		e.metricInc(MetricLogoutOthers)
	}
	e.emitAudit(ctx, auditEventLogoutOthers, true, userID, "", "", currentDeviceID, nil, func() map[string]string {
		return map[string]string{"sessions_revoked": strconv.Itoa(revoked)}
	})

	return revoked, nil
}

// Logout ends the session the access token belongs to. The token must still
// verify; a revoked or expired session cannot log out again.
//
// Logout may return an error when input validation, dependency calls, or security checks fail.
// Logout does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) Logout(ctx context.Context, accessToken string) error {
	identity, err := e.VerifyAccess(ctx, accessToken)
	if err != nil {
		return err
	}

	opCtx, cancel := e.opContext(ctx)
	defer cancel()

	if err := e.tokenStore.RevokeSession(opCtx, identity.UserID, identity.DeviceID, identity.TokenID); err != nil {
		if errors.Is(err, tokens.ErrSessionNotFound) {
			return ErrSessionNotFound
		}
		e.metricInc(MetricStoreUnavailable)
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	e.metricInc(MetricSessionRevoked)
	e.emitAudit(ctx, auditEventLogoutSession, true, identity.UserID, "", "", identity.DeviceID, nil, nil)

	return nil
}

// LogoutAll kills every session of the user and reports how many died.
//
// LogoutAll may return an error when input validation, dependency calls, or security checks fail.
// LogoutAll does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) LogoutAll(ctx context.Context, userID int64) (int, error) {
	if err := e.ready(); err != nil {
		return 0, err
	}
	if userID <= 0 {
		return 0, ErrUserNotFound
	}

	opCtx, cancel := e.opContext(ctx)
	defer cancel()

	revoked, err := e.tokenStore.RevokeAllForUser(opCtx, userID)
	if err != nil {
		e.metricInc(MetricStoreUnavailable)
		return 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	if revoked > 0 {
		e.metricInc(MetricSessionRevoked)
	}
	e.emitAudit(ctx, auditEventLogoutAll, true, userID, "", "", "", nil, func() map[string]string {
		return map[string]string{"sessions_revoked": strconv.Itoa(revoked)}
	})

	return revoked, nil
}
