package contracts

import "time"

// Severity levels for audit events.
type Severity string

const (
	SeverityDebug    Severity = "debug"
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityError    Severity = "error"
	SeverityCritical Severity = "critical"
)

// Valid reports whether s is a known severity level.
func (s Severity) Valid() bool {
	switch s {
	case SeverityDebug, SeverityInfo, SeverityWarning, SeverityError, SeverityCritical:
		return true
	}
	return false
}

// AuditEvent is one immutable entry in the append-only audit ledger. The
// trace-chain ids are loose references: they are recorded as given and not
// checked against the identity registry.
type AuditEvent struct {
	AuditID       string         `json:"audit_id"`
	Timestamp     time.Time      `json:"timestamp"`
	MissionID     string         `json:"mission_id,omitempty"`
	PlanID        string         `json:"plan_id,omitempty"`
	JobID         string         `json:"job_id,omitempty"`
	AttemptID     string         `json:"attempt_id,omitempty"`
	EventType     string         `json:"event_type"`
	EventCategory string         `json:"event_category,omitempty"`
	Severity      Severity       `json:"severity"`
	Message       string         `json:"message"`
	Details       map[string]any `json:"details,omitempty"`
}

// AuditFilter selects audit events. Zero-valued fields do not filter.
type AuditFilter struct {
	MissionID string
	PlanID    string
	JobID     string
	AttemptID string
	EventType string
	Category  string
	Severity  Severity
	Since     time.Time
	Until     time.Time
	Limit     int
	Offset    int
}

// AuditStats aggregates the ledger's contents.
type AuditStats struct {
	TotalEvents      int64            `json:"total_events"`
	BySeverity       map[string]int64 `json:"by_severity"`
	ByCategory       map[string]int64 `json:"by_category"`
	RecentErrors     int64            `json:"recent_errors"`
	RecentWindowSecs int64            `json:"recent_window_seconds"`
}
