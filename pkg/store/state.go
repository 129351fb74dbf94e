package store

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/neurorail/core/pkg/contracts"
	"github.com/neurorail/core/pkg/fault"
)

// ApplyTransition commits a validated state transition: the denormalized
// current-state record and the immutable transition row are written in
// one transaction. The current-state write is conditional on the expected
// prior state, so a concurrent transition on the same entity loses the
// race here with a conflict instead of silently overwriting.
func (s *Store) ApplyTransition(ctx context.Context, tr *contracts.StateTransition) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fault.StoreUnavailable(err)
	}
	defer func() { _ = tx.Rollback() }()

	updated := formatTime(tr.Timestamp)
	if tr.FromState == "" {
		_, err = tx.ExecContext(ctx, s.rebind(
			`INSERT INTO entity_states (entity_type, entity_id, state, updated_at) VALUES (?, ?, ?, ?)`),
			string(tr.EntityType), tr.EntityID, tr.ToState, updated)
		if isUniqueViolation(err) {
			return fault.Conflict("entity %s %s already initialized", tr.EntityType, tr.EntityID)
		}
		if err != nil {
			return fault.StoreUnavailable(err)
		}
	} else {
		res, err := tx.ExecContext(ctx, s.rebind(
			`UPDATE entity_states SET state = ?, updated_at = ?
			 WHERE entity_type = ? AND entity_id = ? AND state = ?`),
			tr.ToState, updated, string(tr.EntityType), tr.EntityID, tr.FromState)
		if err != nil {
			return fault.StoreUnavailable(err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fault.StoreUnavailable(err)
		}
		if n == 0 {
			return fault.Conflict("concurrent transition on %s %s: state is no longer %q",
				tr.EntityType, tr.EntityID, tr.FromState)
		}
	}

	meta, _ := json.Marshal(tr.Metadata)
	_, err = tx.ExecContext(ctx, s.rebind(
		`INSERT INTO state_transitions (transition_id, ts, entity_type, entity_id, from_state, to_state, transition_type, metadata)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`),
		tr.TransitionID, formatTime(tr.Timestamp), string(tr.EntityType), tr.EntityID,
		nullable(tr.FromState), tr.ToState, nullable(tr.TransitionType), string(meta))
	if err != nil {
		return fault.StoreUnavailable(err)
	}
	if err := tx.Commit(); err != nil {
		return fault.StoreUnavailable(err)
	}
	return nil
}

// GetEntityState returns the denormalized current-state record, or nil if
// the entity has no recorded state yet.
func (s *Store) GetEntityState(ctx context.Context, entityType contracts.EntityType, entityID string) (*contracts.EntityState, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(
		`SELECT state, updated_at FROM entity_states WHERE entity_type = ? AND entity_id = ?`),
		string(entityType), entityID)
	var (
		state   string
		updated string
	)
	if err := row.Scan(&state, &updated); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fault.StoreUnavailable(err)
	}
	return &contracts.EntityState{
		EntityType: entityType,
		EntityID:   entityID,
		State:      state,
		UpdatedAt:  parseTime(updated),
	}, nil
}

// TransitionHistory returns an entity's transitions, oldest first.
func (s *Store) TransitionHistory(ctx context.Context, entityType contracts.EntityType, entityID string, limit int) ([]*contracts.StateTransition, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, s.rebind(
		`SELECT transition_id, ts, entity_type, entity_id, from_state, to_state, transition_type, metadata
		 FROM state_transitions WHERE entity_type = ? AND entity_id = ?
		 ORDER BY ts LIMIT ?`),
		string(entityType), entityID, limit)
	if err != nil {
		return nil, fault.StoreUnavailable(err)
	}
	defer func() { _ = rows.Close() }()

	var out []*contracts.StateTransition
	for rows.Next() {
		var (
			tr       contracts.StateTransition
			ts       string
			etype    string
			from     sql.NullString
			trType   sql.NullString
			metaJSON sql.NullString
		)
		if err := rows.Scan(&tr.TransitionID, &ts, &etype, &tr.EntityID, &from, &tr.ToState, &trType, &metaJSON); err != nil {
			return nil, fault.StoreUnavailable(err)
		}
		tr.Timestamp = parseTime(ts)
		tr.EntityType = contracts.EntityType(etype)
		tr.FromState = from.String
		tr.TransitionType = trType.String
		if metaJSON.Valid && metaJSON.String != "" {
			_ = json.Unmarshal([]byte(metaJSON.String), &tr.Metadata)
		}
		out = append(out, &tr)
	}
	if err := rows.Err(); err != nil {
		return nil, fault.StoreUnavailable(err)
	}
	return out, nil
}

// StateCounts returns the number of entities per (entity_type, state) in
// one batched query. Used by the telemetry snapshot.
func (s *Store) StateCounts(ctx context.Context) (map[contracts.EntityType]map[string]int64, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT entity_type, state, COUNT(*) FROM entity_states GROUP BY entity_type, state`)
	if err != nil {
		return nil, fault.StoreUnavailable(err)
	}
	defer func() { _ = rows.Close() }()

	out := make(map[contracts.EntityType]map[string]int64)
	for rows.Next() {
		var (
			etype string
			state string
			count int64
		)
		if err := rows.Scan(&etype, &state, &count); err != nil {
			return nil, fault.StoreUnavailable(err)
		}
		t := contracts.EntityType(etype)
		if out[t] == nil {
			out[t] = make(map[string]int64)
		}
		out[t][state] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fault.StoreUnavailable(err)
	}
	return out, nil
}
