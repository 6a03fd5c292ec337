package delivery

import (
	"context"
	"log"
)

// DryRunSender logs codes instead of delivering them. For local development
// and demos only; never wire it in production.
type DryRunSender struct {
	// Label prefixes the log line, typically the channel name.
	Label string
}

// Send describes the send operation and its observable behavior.
func (s DryRunSender) Send(_ context.Context, target, code string) error {
	label := s.Label
	if label == "" {
		label = "dry-run"
	}
	log.Printf("[%s] code for %s: %s", label, target, code)
	return nil
}
