package otpAuth

import "errors"

var (
	// ErrRateLimited is an exported constant or variable used by the authentication engine.
	ErrRateLimited = errors.New("code requests rate limited")
	// ErrInvalidCredentials is an exported constant or variable used by the authentication engine.
	ErrInvalidCredentials = errors.New("invalid or expired code")
	// ErrInvalidTarget is an exported constant or variable used by the authentication engine.
	ErrInvalidTarget = errors.New("invalid contact target")
	// ErrInvalidChannel is an exported constant or variable used by the authentication engine.
	ErrInvalidChannel = errors.New("invalid delivery channel")
	// ErrInvalidCode is an exported constant or variable used by the authentication engine.
	ErrInvalidCode = errors.New("code must be six digits")
	// ErrInvalidDevice is an exported constant or variable used by the authentication engine.
	ErrInvalidDevice = errors.New("invalid device identifier")
	// ErrTokenInvalid is an exported constant or variable used by the authentication engine.
	ErrTokenInvalid = errors.New("invalid token")
	// ErrTokenExpired is an exported constant or variable used by the authentication engine.
	ErrTokenExpired = errors.New("token expired")
	// ErrTokenRevoked is an exported constant or variable used by the authentication engine.
	ErrTokenRevoked = errors.New("token revoked")
	// ErrRefreshReuse is an exported constant or variable used by the authentication engine.
	ErrRefreshReuse = errors.New("refresh token reuse detected")
	// ErrSessionNotFound is an exported constant or variable used by the authentication engine.
	ErrSessionNotFound = errors.New("session not found")
	// ErrUserNotFound is an exported constant or variable used by the authentication engine.
	ErrUserNotFound = errors.New("user not found")
	// ErrStoreUnavailable is an exported constant or variable used by the authentication engine.
	ErrStoreUnavailable = errors.New("backing store unavailable")
	// ErrDeliveryFailed is an exported constant or variable used by the authentication engine.
	ErrDeliveryFailed = errors.New("code delivery failed")
	// ErrEngineNotReady is an exported constant or variable used by the authentication engine.
	ErrEngineNotReady = errors.New("engine not initialized")
)
