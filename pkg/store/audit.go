package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"github.com/neurorail/core/pkg/contracts"
	"github.com/neurorail/core/pkg/fault"
)

// InsertAuditEvent appends one immutable event row. This is the durable
// commit point for the audit log; no update or delete exists.
func (s *Store) InsertAuditEvent(ctx context.Context, e *contracts.AuditEvent) error {
	details, _ := json.Marshal(e.Details)
	_, err := s.db.ExecContext(ctx, s.rebind(
		`INSERT INTO audit_events (audit_id, ts, mission_id, plan_id, job_id, attempt_id, event_type, event_category, severity, message, details)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		e.AuditID, formatTime(e.Timestamp),
		nullable(e.MissionID), nullable(e.PlanID), nullable(e.JobID), nullable(e.AttemptID),
		e.EventType, nullable(e.EventCategory), string(e.Severity), e.Message, string(details))
	if isUniqueViolation(err) {
		return fault.Conflict("audit event %s already exists", e.AuditID)
	}
	if err != nil {
		return fault.StoreUnavailable(err)
	}
	return nil
}

// QueryAuditEvents returns events matching the filter, newest first,
// together with the total count of matches before pagination.
func (s *Store) QueryAuditEvents(ctx context.Context, f contracts.AuditFilter) ([]*contracts.AuditEvent, int64, error) {
	where, args := buildAuditWhere(f)

	var total int64
	countQuery := "SELECT COUNT(*) FROM audit_events" + where
	if err := s.db.QueryRowContext(ctx, s.rebind(countQuery), args...).Scan(&total); err != nil {
		return nil, 0, fault.StoreUnavailable(err)
	}

	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT audit_id, ts, mission_id, plan_id, job_id, attempt_id, event_type, event_category, severity, message, details
		 FROM audit_events` + where + ` ORDER BY ts DESC LIMIT ? OFFSET ?`
	args = append(args, limit, f.Offset)

	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, 0, fault.StoreUnavailable(err)
	}
	defer func() { _ = rows.Close() }()

	var out []*contracts.AuditEvent
	for rows.Next() {
		e, err := scanAuditEvent(rows)
		if err != nil {
			return nil, 0, fault.StoreUnavailable(err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fault.StoreUnavailable(err)
	}
	return out, total, nil
}

func buildAuditWhere(f contracts.AuditFilter) (string, []any) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, arg any) {
		conds = append(conds, cond)
		args = append(args, arg)
	}
	if f.MissionID != "" {
		add("mission_id = ?", f.MissionID)
	}
	if f.PlanID != "" {
		add("plan_id = ?", f.PlanID)
	}
	if f.JobID != "" {
		add("job_id = ?", f.JobID)
	}
	if f.AttemptID != "" {
		add("attempt_id = ?", f.AttemptID)
	}
	if f.EventType != "" {
		add("event_type = ?", f.EventType)
	}
	if f.Category != "" {
		add("event_category = ?", f.Category)
	}
	if f.Severity != "" {
		add("severity = ?", string(f.Severity))
	}
	if !f.Since.IsZero() {
		add("ts >= ?", formatTime(f.Since))
	}
	if !f.Until.IsZero() {
		add("ts <= ?", formatTime(f.Until))
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func scanAuditEvent(rows *sql.Rows) (*contracts.AuditEvent, error) {
	var (
		e           contracts.AuditEvent
		ts          string
		missionID   sql.NullString
		planID      sql.NullString
		jobID       sql.NullString
		attemptID   sql.NullString
		category    sql.NullString
		severity    string
		detailsJSON sql.NullString
	)
	if err := rows.Scan(&e.AuditID, &ts, &missionID, &planID, &jobID, &attemptID,
		&e.EventType, &category, &severity, &e.Message, &detailsJSON); err != nil {
		return nil, err
	}
	e.Timestamp = parseTime(ts)
	e.MissionID = missionID.String
	e.PlanID = planID.String
	e.JobID = jobID.String
	e.AttemptID = attemptID.String
	e.EventCategory = category.String
	e.Severity = contracts.Severity(severity)
	if detailsJSON.Valid && detailsJSON.String != "" {
		_ = json.Unmarshal([]byte(detailsJSON.String), &e.Details)
	}
	return &e, nil
}

// AuditStats aggregates the ledger: total, by severity, by category, and
// a rolling error count over the given window.
func (s *Store) AuditStats(ctx context.Context, window time.Duration) (*contracts.AuditStats, error) {
	stats := &contracts.AuditStats{
		BySeverity:       make(map[string]int64),
		ByCategory:       make(map[string]int64),
		RecentWindowSecs: int64(window.Seconds()),
	}

	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM audit_events`).Scan(&stats.TotalEvents); err != nil {
		return nil, fault.StoreUnavailable(err)
	}

	rows, err := s.db.QueryContext(ctx, `SELECT severity, COUNT(*) FROM audit_events GROUP BY severity`)
	if err != nil {
		return nil, fault.StoreUnavailable(err)
	}
	if err := scanCounts(rows, stats.BySeverity); err != nil {
		return nil, err
	}

	rows, err = s.db.QueryContext(ctx,
		`SELECT COALESCE(event_category, ''), COUNT(*) FROM audit_events GROUP BY event_category`)
	if err != nil {
		return nil, fault.StoreUnavailable(err)
	}
	if err := scanCounts(rows, stats.ByCategory); err != nil {
		return nil, err
	}

	cutoff := formatTime(time.Now().Add(-window))
	if err := s.db.QueryRowContext(ctx, s.rebind(
		`SELECT COUNT(*) FROM audit_events WHERE severity IN ('error', 'critical') AND ts >= ?`),
		cutoff).Scan(&stats.RecentErrors); err != nil {
		return nil, fault.StoreUnavailable(err)
	}
	return stats, nil
}

// ErrorCountsByCategory returns error/critical event counts grouped by
// category inside the window. Used by the telemetry snapshot.
func (s *Store) ErrorCountsByCategory(ctx context.Context, window time.Duration) (map[string]int64, error) {
	cutoff := formatTime(time.Now().Add(-window))
	rows, err := s.db.QueryContext(ctx, s.rebind(
		`SELECT COALESCE(event_category, ''), COUNT(*) FROM audit_events
		 WHERE severity IN ('error', 'critical') AND ts >= ?
		 GROUP BY event_category`), cutoff)
	if err != nil {
		return nil, fault.StoreUnavailable(err)
	}
	out := make(map[string]int64)
	if err := scanCounts(rows, out); err != nil {
		return nil, err
	}
	return out, nil
}

func scanCounts(rows *sql.Rows, dest map[string]int64) error {
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		var (
			key   string
			count int64
		)
		if err := rows.Scan(&key, &count); err != nil {
			return fault.StoreUnavailable(err)
		}
		dest[key] = count
	}
	if err := rows.Err(); err != nil {
		return fault.StoreUnavailable(err)
	}
	return nil
}
