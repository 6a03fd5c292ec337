package otpAuth

import (
	"context"
	"io"
	"time"

	internalaudit "github.com/MrEthical07/otpAuth/internal/audit"
)

// Channel identifies the delivery medium for a one-time code.
type Channel string

const (
	// ChannelEmail is an exported constant or variable used by the authentication engine.
	ChannelEmail Channel = "email"
	// ChannelPhone is an exported constant or variable used by the authentication engine.
	ChannelPhone Channel = "phone"
)

// Valid reports whether the channel is one of the supported delivery media.
func (c Channel) Valid() bool {
	return c == ChannelEmail || c == ChannelPhone
}

// UserRecord is the read-only account view resolved by [UserProvider].
// The engine never mutates user state; UserID is the only field it relies on.
type UserRecord struct {
	UserID int64
	Target string
}

// UserProvider is the interface callers must implement to integrate otpAuth
// with their user database. ResolveUser maps a verified contact target to the
// owning user. It is called only after a code has been validated, so a
// provider error never leaks target existence to unauthenticated callers.
type UserProvider interface {
	ResolveUser(ctx context.Context, target string, channel Channel) (UserRecord, error)
}

// TokenPair is returned by [Engine.EnterCode] and [Engine.Refresh]. It holds
// the signed access and refresh token strings for one device session, plus
// the device identifier the session is bound to (generated when the caller
// supplied none).
type TokenPair struct {
	AccessToken  string
	RefreshToken string
	DeviceID     string
}

// DeviceSession is one entry of [Engine.ListDevices]: the live access-token
// record for a device, newest first.
type DeviceSession struct {
	TokenID   int64
	DeviceID  string
	UserAgent string
	IPAddress string
	CreatedAt time.Time
	ExpiresAt time.Time
}

// AuditEvent is a structured audit record emitted by the engine.
type AuditEvent = internalaudit.Event

// AuditSink receives [AuditEvent] values from the engine’s audit dispatcher.
type AuditSink = internalaudit.Sink

// NoOpSink is an [AuditSink] that silently discards all events.
type NoOpSink = internalaudit.NoOpSink

// ChannelSink is a buffered channel-based [AuditSink].
type ChannelSink = internalaudit.ChannelSink

// JSONWriterSink is an [AuditSink] that writes JSON-encoded events to an
// [io.Writer].
type JSONWriterSink = internalaudit.JSONWriterSink

// NewChannelSink creates a [ChannelSink] with the given buffer capacity.
func NewChannelSink(buffer int) *ChannelSink {
	return internalaudit.NewChannelSink(buffer)
}

// NewJSONWriterSink creates a [JSONWriterSink] that writes to w.
func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return internalaudit.NewJSONWriterSink(w)
}
