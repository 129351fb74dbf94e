package store

import "context"

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS missions (
		id TEXT PRIMARY KEY,
		parent_mission_id TEXT,
		tags TEXT,
		created_at TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS plans (
		id TEXT PRIMARY KEY,
		mission_id TEXT NOT NULL,
		plan_type TEXT NOT NULL,
		created_at TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS jobs (
		id TEXT PRIMARY KEY,
		plan_id TEXT NOT NULL,
		job_type TEXT NOT NULL,
		tags TEXT,
		created_at TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS attempts (
		id TEXT PRIMARY KEY,
		job_id TEXT NOT NULL,
		attempt_number INTEGER NOT NULL,
		retry_reason TEXT,
		created_at TEXT NOT NULL,
		UNIQUE (job_id, attempt_number)
	)`,
	`CREATE TABLE IF NOT EXISTS resources (
		uuid TEXT PRIMARY KEY,
		attempt_id TEXT NOT NULL,
		resource_type TEXT NOT NULL,
		metadata TEXT,
		created_at TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_resources_attempt ON resources (attempt_id)`,
	`CREATE TABLE IF NOT EXISTS entity_states (
		entity_type TEXT NOT NULL,
		entity_id TEXT NOT NULL,
		state TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		PRIMARY KEY (entity_type, entity_id)
	)`,
	`CREATE TABLE IF NOT EXISTS state_transitions (
		transition_id TEXT PRIMARY KEY,
		ts TEXT NOT NULL,
		entity_type TEXT NOT NULL,
		entity_id TEXT NOT NULL,
		from_state TEXT,
		to_state TEXT NOT NULL,
		transition_type TEXT,
		metadata TEXT
	)`,
	`CREATE INDEX IF NOT EXISTS idx_transitions_entity ON state_transitions (entity_type, entity_id, ts)`,
	`CREATE TABLE IF NOT EXISTS audit_events (
		audit_id TEXT PRIMARY KEY,
		ts TEXT NOT NULL,
		mission_id TEXT,
		plan_id TEXT,
		job_id TEXT,
		attempt_id TEXT,
		event_type TEXT NOT NULL,
		event_category TEXT,
		severity TEXT NOT NULL,
		message TEXT NOT NULL,
		details TEXT
	)`,
	`CREATE INDEX IF NOT EXISTS idx_audit_ts ON audit_events (ts)`,
	`CREATE INDEX IF NOT EXISTS idx_audit_mission ON audit_events (mission_id)`,
	`CREATE TABLE IF NOT EXISTS mode_decisions (
		decision_id TEXT PRIMARY KEY,
		ts TEXT NOT NULL,
		job_type TEXT NOT NULL,
		mode TEXT NOT NULL,
		reason TEXT,
		matched_rules TEXT,
		context TEXT
	)`,
}

// Migrate applies the schema. Statements are idempotent.
func (s *Store) Migrate(ctx context.Context) error {
	for _, stmt := range migrations {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
