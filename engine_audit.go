package otpAuth

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

const (
	auditEventCodeRequested      = "code_requested"
	auditEventCodeRateLimited    = "code_rate_limited"
	auditEventCodeDeliveryFailed = "code_delivery_failed"
	auditEventCodeAccepted       = "code_accepted"
	auditEventCodeRejected       = "code_rejected"
	auditEventSessionCreated     = "session_created"
	auditEventRefreshSuccess     = "refresh_success"
	auditEventRefreshInvalid     = "refresh_invalid"
	auditEventRefreshReuse       = "refresh_reuse_detected"
	auditEventAccessRejected     = "access_rejected"
	auditEventLogoutSession      = "logout_session"
	auditEventLogoutOthers       = "logout_others"
	auditEventLogoutAll          = "logout_all"
	auditEventSessionRevoked     = "session_revoked"
)

// AuditErrorCode defines a public type used by otpAuth APIs.
//
// AuditErrorCode instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type AuditErrorCode string

const (
	auditErrRateLimited        AuditErrorCode = "rate_limited"
	auditErrInvalidCredentials AuditErrorCode = "invalid_credentials"
	auditErrInvalidToken       AuditErrorCode = "invalid_token"
	auditErrTokenExpired       AuditErrorCode = "token_expired"
	auditErrTokenRevoked       AuditErrorCode = "token_revoked"
	auditErrRefreshReuse       AuditErrorCode = "refresh_reuse"
	auditErrSessionNotFound    AuditErrorCode = "session_not_found"
	auditErrDeliveryFailed     AuditErrorCode = "delivery_failed"
	auditErrUnavailable        AuditErrorCode = "backend_unavailable"
	auditErrInternal           AuditErrorCode = "internal_error"
)

func auditErrorCode(err error) AuditErrorCode {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrRateLimited):
		return auditErrRateLimited
	case errors.Is(err, ErrInvalidCredentials), errors.Is(err, ErrUserNotFound):
		return auditErrInvalidCredentials
	case errors.Is(err, ErrRefreshReuse):
		return auditErrRefreshReuse
	case errors.Is(err, ErrTokenExpired):
		return auditErrTokenExpired
	case errors.Is(err, ErrTokenRevoked):
		return auditErrTokenRevoked
	case errors.Is(err, ErrTokenInvalid):
		return auditErrInvalidToken
	case errors.Is(err, ErrSessionNotFound):
		return auditErrSessionNotFound
	case errors.Is(err, ErrDeliveryFailed):
		return auditErrDeliveryFailed
	case errors.Is(err, ErrStoreUnavailable):
		return auditErrUnavailable
	default:
		return auditErrInternal
	}
}

func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	userID int64,
	target string,
	channel Channel,
	deviceID string,
	err error,
	metadataBuilder func() map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}

	event := AuditEvent{
		EventID:   uuid.NewString(),
		Timestamp: time.Now().UTC(),
		EventType: eventType,
		UserID:    userID,
		Target:    target,
		Channel:   string(channel),
		DeviceID:  deviceID,
		IP:        clientIPFromContext(ctx),
		Success:   success,
		Metadata:  metadata,
	}
	if code := auditErrorCode(err); code != "" {
		event.Error = string(code)
	}

	e.audit.Emit(ctx, event)
}
