// Package delivery sends one-time codes to users over email and SMS.
//
// The authentication engine treats delivery as a pluggable boundary: it hands
// a target and a code to a [Sender] and only cares whether the send worked.
// Production deployments wire [EmailSender] and [SMSSender]; tests and local
// development use [DryRunSender].
package delivery

import "context"

// Sender delivers one code to one target. Implementations must be safe for
// concurrent use.
type Sender interface {
	Send(ctx context.Context, target, code string) error
}

// SenderFunc adapts a plain function to the [Sender] interface.
type SenderFunc func(ctx context.Context, target, code string) error

// Send describes the send operation and its observable behavior.
func (f SenderFunc) Send(ctx context.Context, target, code string) error {
	return f(ctx, target, code)
}
