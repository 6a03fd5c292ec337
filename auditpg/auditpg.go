// Package auditpg archives audit events in PostgreSQL.
//
// The engine's Redis records age out under retention TTLs; the Postgres sink
// is the long-term archive for compliance review. Wire a [Sink] through
// Builder.WithAuditSink and call Engine.Initialize to create the table.
package auditpg

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"

	_ "github.com/lib/pq"

	internalaudit "github.com/MrEthical07/otpAuth/internal/audit"
)

const createTableStmt = `
CREATE TABLE IF NOT EXISTS auth_audit_events (
    event_id   TEXT PRIMARY KEY,
    occurred   TIMESTAMPTZ NOT NULL,
    event_type TEXT NOT NULL,
    user_id    BIGINT NOT NULL DEFAULT 0,
    target     TEXT NOT NULL DEFAULT '',
    channel    TEXT NOT NULL DEFAULT '',
    device_id  TEXT NOT NULL DEFAULT '',
    ip         TEXT NOT NULL DEFAULT '',
    success    BOOLEAN NOT NULL,
    error_code TEXT NOT NULL DEFAULT '',
    metadata   JSONB
);
CREATE INDEX IF NOT EXISTS auth_audit_events_user_idx
    ON auth_audit_events (user_id, occurred DESC);
`

const insertStmt = `
INSERT INTO auth_audit_events
    (event_id, occurred, event_type, user_id, target, channel, device_id, ip, success, error_code, metadata)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
ON CONFLICT (event_id) DO NOTHING
`

// Sink persists audit events through database/sql. It satisfies the engine's
// audit sink contract; writes happen on the dispatcher goroutine, so a slow
// database never blocks an authentication call.
type Sink struct {
	db *sql.DB
}

// New creates a [Sink] on an existing database handle. The handle is owned by
// the caller.
func New(db *sql.DB) (*Sink, error) {
	if db == nil {
		return nil, errors.New("auditpg: database handle required")
	}
	return &Sink{db: db}, nil
}

// Open creates a [Sink] with its own connection pool from a lib/pq DSN.
func Open(dsn string) (*Sink, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("auditpg: open: %w", err)
	}
	return &Sink{db: db}, nil
}

// EnsureSchema creates the archive table and index when missing. Idempotent;
// the engine calls it during Initialize.
func (s *Sink) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, createTableStmt); err != nil {
		return fmt.Errorf("auditpg: ensure schema: %w", err)
	}
	return nil
}

// Emit describes the emit operation and its observable behavior.
//
// Emit does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (s *Sink) Emit(ctx context.Context, event internalaudit.Event) {
	var metadata []byte
	if len(event.Metadata) > 0 {
		metadata, _ = json.Marshal(event.Metadata)
	}

	_, err := s.db.ExecContext(ctx, insertStmt,
		event.EventID,
		event.Timestamp,
		event.EventType,
		event.UserID,
		event.Target,
		event.Channel,
		event.DeviceID,
		event.IP,
		event.Success,
		event.Error,
		nullableJSON(metadata),
	)
	if err != nil {
		// Archiving is best effort; the event already passed through the
		// in-process sinks.
		log.Printf("auditpg: insert event %s failed: %v", event.EventID, err)
	}
}

// Close releases the connection pool. Only call it when the Sink was created
// with [Open].
func (s *Sink) Close() error {
	return s.db.Close()
}

func nullableJSON(data []byte) interface{} {
	if len(data) == 0 {
		return nil
	}
	return data
}
