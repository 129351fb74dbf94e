// Package audit implements the append-only audit ledger, the system of
// record for "what happened". The durable insert is the commit point;
// fan-out to live subscribers is best-effort and never fails the call.
// No update or delete operation exists, by design.
package audit

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/neurorail/core/pkg/contracts"
	"github.com/neurorail/core/pkg/events"
	"github.com/neurorail/core/pkg/fault"
	"github.com/neurorail/core/pkg/store"
)

// Log is the audit ledger.
type Log struct {
	store     *store.Store
	publisher events.Publisher
	window    time.Duration
	logger    *slog.Logger
}

// NewLog creates a ledger. publisher may be events.NopPublisher{} when no
// distribution channel is configured; window bounds the rolling
// recent-error count in Stats.
func NewLog(s *store.Store, publisher events.Publisher, window time.Duration) *Log {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	return &Log{
		store:     s,
		publisher: publisher,
		window:    window,
		logger:    slog.Default().With("component", "audit"),
	}
}

// Record appends one event. The entity ids on the event are recorded as
// given: referential integrity against the identity registry is advisory,
// so collaborators may log against entities this core did not mint.
func (l *Log) Record(ctx context.Context, e *contracts.AuditEvent) (*contracts.AuditEvent, error) {
	if e.EventType == "" {
		return nil, fault.InvalidInput("event_type is required")
	}
	if e.Severity == "" {
		e.Severity = contracts.SeverityInfo
	}
	if !e.Severity.Valid() {
		return nil, fault.InvalidInput("unknown severity %q", e.Severity)
	}
	if e.AuditID == "" {
		e.AuditID = uuid.NewString()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}

	if err := l.store.InsertAuditEvent(ctx, e); err != nil {
		return nil, err
	}

	// The durable row exists; fan-out failures must not surface.
	if err := l.publisher.Publish(ctx, e); err != nil {
		l.logger.Warn("audit fan-out failed", "audit_id", e.AuditID, "error", err)
	}
	return e, nil
}

// Query returns matching events newest first plus the total match count.
func (l *Log) Query(ctx context.Context, f contracts.AuditFilter) ([]*contracts.AuditEvent, int64, error) {
	return l.store.QueryAuditEvents(ctx, f)
}

// Stats aggregates the ledger's contents.
func (l *Log) Stats(ctx context.Context) (*contracts.AuditStats, error) {
	return l.store.AuditStats(ctx, l.window)
}
