package store

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/neurorail/core/pkg/contracts"
	"github.com/neurorail/core/pkg/fault"
)

// InsertMission persists a mission row.
func (s *Store) InsertMission(ctx context.Context, m *contracts.Mission) error {
	tags, _ := json.Marshal(m.Tags)
	_, err := s.db.ExecContext(ctx, s.rebind(
		`INSERT INTO missions (id, parent_mission_id, tags, created_at) VALUES (?, ?, ?, ?)`),
		m.ID, nullable(m.ParentMissionID), string(tags), formatTime(m.CreatedAt))
	if isUniqueViolation(err) {
		return fault.Conflict("mission %s already exists", m.ID)
	}
	if err != nil {
		return fault.StoreUnavailable(err)
	}
	return nil
}

// GetMission loads a mission by id.
func (s *Store) GetMission(ctx context.Context, id string) (*contracts.Mission, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(
		`SELECT id, parent_mission_id, tags, created_at FROM missions WHERE id = ?`), id)
	var (
		m        contracts.Mission
		parent   sql.NullString
		tagsJSON sql.NullString
		created  string
	)
	if err := row.Scan(&m.ID, &parent, &tagsJSON, &created); err != nil {
		if err == sql.ErrNoRows {
			return nil, fault.NotFound("mission %s not found", id)
		}
		return nil, fault.StoreUnavailable(err)
	}
	m.ParentMissionID = parent.String
	m.CreatedAt = parseTime(created)
	if tagsJSON.Valid && tagsJSON.String != "" {
		_ = json.Unmarshal([]byte(tagsJSON.String), &m.Tags)
	}
	return &m, nil
}

// InsertPlan persists a plan row.
func (s *Store) InsertPlan(ctx context.Context, p *contracts.Plan) error {
	_, err := s.db.ExecContext(ctx, s.rebind(
		`INSERT INTO plans (id, mission_id, plan_type, created_at) VALUES (?, ?, ?, ?)`),
		p.ID, p.MissionID, p.PlanType, formatTime(p.CreatedAt))
	if isUniqueViolation(err) {
		return fault.Conflict("plan %s already exists", p.ID)
	}
	if err != nil {
		return fault.StoreUnavailable(err)
	}
	return nil
}

// GetPlan loads a plan by id.
func (s *Store) GetPlan(ctx context.Context, id string) (*contracts.Plan, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(
		`SELECT id, mission_id, plan_type, created_at FROM plans WHERE id = ?`), id)
	var (
		p       contracts.Plan
		created string
	)
	if err := row.Scan(&p.ID, &p.MissionID, &p.PlanType, &created); err != nil {
		if err == sql.ErrNoRows {
			return nil, fault.NotFound("plan %s not found", id)
		}
		return nil, fault.StoreUnavailable(err)
	}
	p.CreatedAt = parseTime(created)
	return &p, nil
}

// InsertJob persists a job row.
func (s *Store) InsertJob(ctx context.Context, j *contracts.Job) error {
	tags, _ := json.Marshal(j.Tags)
	_, err := s.db.ExecContext(ctx, s.rebind(
		`INSERT INTO jobs (id, plan_id, job_type, tags, created_at) VALUES (?, ?, ?, ?, ?)`),
		j.ID, j.PlanID, j.JobType, string(tags), formatTime(j.CreatedAt))
	if isUniqueViolation(err) {
		return fault.Conflict("job %s already exists", j.ID)
	}
	if err != nil {
		return fault.StoreUnavailable(err)
	}
	return nil
}

// GetJob loads a job by id.
func (s *Store) GetJob(ctx context.Context, id string) (*contracts.Job, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(
		`SELECT id, plan_id, job_type, tags, created_at FROM jobs WHERE id = ?`), id)
	var (
		j        contracts.Job
		tagsJSON sql.NullString
		created  string
	)
	if err := row.Scan(&j.ID, &j.PlanID, &j.JobType, &tagsJSON, &created); err != nil {
		if err == sql.ErrNoRows {
			return nil, fault.NotFound("job %s not found", id)
		}
		return nil, fault.StoreUnavailable(err)
	}
	j.CreatedAt = parseTime(created)
	if tagsJSON.Valid && tagsJSON.String != "" {
		_ = json.Unmarshal([]byte(tagsJSON.String), &j.Tags)
	}
	return &j, nil
}

// InsertAttempt persists an attempt row, allocating the next attempt
// number for the job atomically. Two concurrent retries race on the
// UNIQUE (job_id, attempt_number) constraint; the loser re-reads the
// sequence and tries again. The assigned number is written back into a.
func (s *Store) InsertAttempt(ctx context.Context, a *contracts.Attempt) error {
	const maxRetries = 5
	for i := 0; i < maxRetries; i++ {
		err := s.insertAttemptOnce(ctx, a)
		if err == nil {
			return nil
		}
		if fault.IsCode(err, fault.CodeConflict) && !isAttemptIDConflict(err) {
			continue
		}
		return err
	}
	return fault.Conflict("attempt number allocation for job %s kept colliding", a.JobID)
}

func (s *Store) insertAttemptOnce(ctx context.Context, a *contracts.Attempt) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fault.StoreUnavailable(err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, s.rebind(
		`INSERT INTO attempts (id, job_id, attempt_number, retry_reason, created_at)
		 VALUES (?, ?, (SELECT COALESCE(MAX(attempt_number), 0) + 1 FROM attempts WHERE job_id = ?), ?, ?)`),
		a.ID, a.JobID, a.JobID, nullable(a.RetryReason), formatTime(a.CreatedAt))
	if isUniqueViolation(err) {
		// Either the caller-supplied id collides (permanent) or the
		// allocated number lost a race (retried by the caller above).
		// The check runs outside the aborted transaction.
		_ = tx.Rollback()
		var exists int
		if scanErr := s.db.QueryRowContext(ctx, s.rebind(
			`SELECT COUNT(*) FROM attempts WHERE id = ?`), a.ID).Scan(&exists); scanErr == nil && exists > 0 {
			return fault.Conflict("attempt %s already exists", a.ID).WithDetail("conflict_on", "id")
		}
		return fault.Conflict("attempt number collision for job %s", a.JobID)
	}
	if err != nil {
		return fault.StoreUnavailable(err)
	}

	row := tx.QueryRowContext(ctx, s.rebind(`SELECT attempt_number FROM attempts WHERE id = ?`), a.ID)
	if err := row.Scan(&a.AttemptNumber); err != nil {
		return fault.StoreUnavailable(err)
	}
	if err := tx.Commit(); err != nil {
		return fault.StoreUnavailable(err)
	}
	return nil
}

func isAttemptIDConflict(err error) bool {
	fe := fault.FromError(err)
	return fe.Details["conflict_on"] == "id"
}

// GetAttempt loads an attempt by id.
func (s *Store) GetAttempt(ctx context.Context, id string) (*contracts.Attempt, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(
		`SELECT id, job_id, attempt_number, retry_reason, created_at FROM attempts WHERE id = ?`), id)
	var (
		a       contracts.Attempt
		reason  sql.NullString
		created string
	)
	if err := row.Scan(&a.ID, &a.JobID, &a.AttemptNumber, &reason, &created); err != nil {
		if err == sql.ErrNoRows {
			return nil, fault.NotFound("attempt %s not found", id)
		}
		return nil, fault.StoreUnavailable(err)
	}
	a.RetryReason = reason.String
	a.CreatedAt = parseTime(created)
	return &a, nil
}

// InsertResource persists a resource row.
func (s *Store) InsertResource(ctx context.Context, r *contracts.Resource) error {
	meta, _ := json.Marshal(r.Metadata)
	_, err := s.db.ExecContext(ctx, s.rebind(
		`INSERT INTO resources (uuid, attempt_id, resource_type, metadata, created_at) VALUES (?, ?, ?, ?, ?)`),
		r.UUID, r.AttemptID, r.ResourceType, string(meta), formatTime(r.CreatedAt))
	if isUniqueViolation(err) {
		return fault.Conflict("resource %s already exists", r.UUID)
	}
	if err != nil {
		return fault.StoreUnavailable(err)
	}
	return nil
}

// GetResource loads a resource by uuid.
func (s *Store) GetResource(ctx context.Context, id string) (*contracts.Resource, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(
		`SELECT uuid, attempt_id, resource_type, metadata, created_at FROM resources WHERE uuid = ?`), id)
	r, err := scanResource(row)
	if err == sql.ErrNoRows {
		return nil, fault.NotFound("resource %s not found", id)
	}
	if err != nil {
		return nil, fault.StoreUnavailable(err)
	}
	return r, nil
}

// ListResourcesByAttempt returns every resource recorded under an attempt.
func (s *Store) ListResourcesByAttempt(ctx context.Context, attemptID string) ([]*contracts.Resource, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(
		`SELECT uuid, attempt_id, resource_type, metadata, created_at FROM resources
		 WHERE attempt_id = ? ORDER BY created_at`), attemptID)
	if err != nil {
		return nil, fault.StoreUnavailable(err)
	}
	defer func() { _ = rows.Close() }()

	var out []*contracts.Resource
	for rows.Next() {
		r, err := scanResource(rows)
		if err != nil {
			return nil, fault.StoreUnavailable(err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fault.StoreUnavailable(err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanResource(row rowScanner) (*contracts.Resource, error) {
	var (
		r        contracts.Resource
		metaJSON sql.NullString
		created  string
	)
	if err := row.Scan(&r.UUID, &r.AttemptID, &r.ResourceType, &metaJSON, &created); err != nil {
		return nil, err
	}
	r.CreatedAt = parseTime(created)
	if metaJSON.Valid && metaJSON.String != "" {
		_ = json.Unmarshal([]byte(metaJSON.String), &r.Metadata)
	}
	return &r, nil
}

// HasEntity reports whether a registered row exists for the entity.
func (s *Store) HasEntity(ctx context.Context, t contracts.EntityType, id string) (bool, error) {
	var table, column string
	switch t {
	case contracts.EntityMission:
		table, column = "missions", "id"
	case contracts.EntityPlan:
		table, column = "plans", "id"
	case contracts.EntityJob:
		table, column = "jobs", "id"
	case contracts.EntityAttempt:
		table, column = "attempts", "id"
	case contracts.EntityResource:
		table, column = "resources", "uuid"
	default:
		return false, fault.InvalidInput("unknown entity type %q", t)
	}
	var count int
	if err := s.db.QueryRowContext(ctx, s.rebind(
		`SELECT COUNT(*) FROM `+table+` WHERE `+column+` = ?`), id).Scan(&count); err != nil {
		return false, fault.StoreUnavailable(err)
	}
	return count > 0, nil
}

// CountEntities returns the row count per entity type in one batched
// query.
func (s *Store) CountEntities(ctx context.Context) (map[contracts.EntityType]int64, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT 'mission', COUNT(*) FROM missions
		 UNION ALL SELECT 'plan', COUNT(*) FROM plans
		 UNION ALL SELECT 'job', COUNT(*) FROM jobs
		 UNION ALL SELECT 'attempt', COUNT(*) FROM attempts
		 UNION ALL SELECT 'resource', COUNT(*) FROM resources`)
	if err != nil {
		return nil, fault.StoreUnavailable(err)
	}
	defer func() { _ = rows.Close() }()

	counts := make(map[contracts.EntityType]int64, 5)
	for rows.Next() {
		var (
			kind  string
			count int64
		)
		if err := rows.Scan(&kind, &count); err != nil {
			return nil, fault.StoreUnavailable(err)
		}
		counts[contracts.EntityType(kind)] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fault.StoreUnavailable(err)
	}
	return counts, nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
