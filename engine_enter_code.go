package otpAuth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/MrEthical07/otpAuth/internal/codes"
	"github.com/MrEthical07/otpAuth/internal/rate"
	"github.com/MrEthical07/otpAuth/internal/tokens"
	"github.com/MrEthical07/otpAuth/jwt"
)

const maxDeviceIDLength = 128

// EnterCode validates a one-time code and, on success, opens a device-scoped
// session: the code is consumed, the target is resolved to a user through the
// [UserProvider], and a signed access/refresh pair is issued for deviceID.
// An empty deviceID gets a generated identifier, returned on the pair.
//
// A missing, expired, or mismatched code uniformly fails with
// [ErrInvalidCredentials]; callers cannot distinguish the three cases.
//
// EnterCode may return an error when input validation, dependency calls, or security checks fail.
// EnterCode does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) EnterCode(ctx context.Context, target string, channel Channel, code, deviceID string) (TokenPair, error) {
	if err := e.ready(); err != nil {
		return TokenPair{}, err
	}

	target, err := normalizeTarget(target, channel)
	if err != nil {
		return TokenPair{}, err
	}
	if err := validateCodeShape(code, e.config.Codes.Digits); err != nil {
		return TokenPair{}, err
	}
	deviceID, err = normalizeDeviceID(deviceID)
	if err != nil {
		return TokenPair{}, err
	}

	opCtx, cancel := e.opContext(ctx)
	defer cancel()

	if err := e.rateLimiter.CheckValidate(opCtx, target, string(channel)); err != nil {
		if errors.Is(err, rate.ErrRateLimited) {
			e.metricInc(MetricValidateRateLimited)
			e.emitAudit(ctx, auditEventCodeRateLimited, false, 0, target, channel, deviceID, ErrRateLimited, nil)
			return TokenPair{}, ErrRateLimited
		}
		e.metricInc(MetricStoreUnavailable)
		return TokenPair{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	if _, err := e.codeStore.Validate(opCtx, target, string(channel), code, e.config.Codes.CodeTTL); err != nil {
		switch {
		case errors.Is(err, codes.ErrCodeNotFound),
			errors.Is(err, codes.ErrCodeExpired),
			errors.Is(err, codes.ErrCodeMismatch):
			e.metricInc(MetricCodeRejected)
			e.emitAudit(ctx, auditEventCodeRejected, false, 0, target, channel, deviceID, ErrInvalidCredentials, nil)
			return TokenPair{}, ErrInvalidCredentials
		default:
			e.metricInc(MetricStoreUnavailable)
			return TokenPair{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
	}

	e.metricInc(MetricCodeValidated)

	user, err := e.userProvider.ResolveUser(ctx, target, channel)
	if err != nil || user.UserID <= 0 {
		// The code was genuine but consumed; the caller retries from the top.
		e.emitAudit(ctx, auditEventCodeRejected, false, 0, target, channel, deviceID, ErrUserNotFound, nil)
		return TokenPair{}, ErrInvalidCredentials
	}

	pair, err := e.tokenStore.IssuePair(opCtx, user.UserID, deviceID,
		userAgentFromContext(ctx), clientIPFromContext(ctx),
		e.config.JWT.AccessTTL, e.config.JWT.RefreshTTL)
	if err != nil {
		e.metricInc(MetricStoreUnavailable)
		return TokenPair{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	signed, err := e.signPair(pair)
	if err != nil {
		return TokenPair{}, err
	}

	e.metricInc(MetricSessionCreated)
	e.emitAudit(ctx, auditEventCodeAccepted, true, user.UserID, target, channel, deviceID, nil, nil)
	e.emitAudit(ctx, auditEventSessionCreated, true, user.UserID, target, channel, deviceID, nil, nil)

	return signed, nil
}

// signPair derives the wire token strings from one freshly written record
// pair. The records are already persisted; a signing failure here is a
// programming error, not a security event.
func (e *Engine) signPair(pair *tokens.Pair) (TokenPair, error) {
	accessToken, err := e.jwtManager.Sign(pair.Access.ID, pair.Access.UserID, pair.Access.DeviceID,
		jwt.TypeAccess, time.UnixMilli(pair.Access.ExpiresAt))
	if err != nil {
		return TokenPair{}, fmt.Errorf("sign access token: %w", err)
	}

	refreshToken, err := e.jwtManager.Sign(pair.Refresh.ID, pair.Refresh.UserID, pair.Refresh.DeviceID,
		jwt.TypeRefresh, time.UnixMilli(pair.Refresh.ExpiresAt))
	if err != nil {
		return TokenPair{}, fmt.Errorf("sign refresh token: %w", err)
	}

	return TokenPair{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		DeviceID:     pair.Access.DeviceID,
	}, nil
}

func validateCodeShape(code string, digits int) error {
	if len(code) != digits {
		return ErrInvalidCode
	}
	for _, r := range code {
		if r < '0' || r > '9' {
			return ErrInvalidCode
		}
	}
	return nil
}

func normalizeDeviceID(deviceID string) (string, error) {
	deviceID = strings.TrimSpace(deviceID)
	if deviceID == "" {
		return uuid.NewString(), nil
	}
	if len(deviceID) > maxDeviceIDLength {
		return "", ErrInvalidDevice
	}
	for _, r := range deviceID {
		if r < 0x21 || r > 0x7e {
			return "", ErrInvalidDevice
		}
	}
	return deviceID, nil
}
