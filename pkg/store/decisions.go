package store

import (
	"context"
	"encoding/json"

	"github.com/neurorail/core/pkg/contracts"
	"github.com/neurorail/core/pkg/fault"
)

// InsertDecision persists a governor decision for audit and statistics.
func (s *Store) InsertDecision(ctx context.Context, d *contracts.ModeDecision, decisionContext map[string]any) error {
	matched, _ := json.Marshal(d.MatchedRules)
	dctx, _ := json.Marshal(decisionContext)
	_, err := s.db.ExecContext(ctx, s.rebind(
		`INSERT INTO mode_decisions (decision_id, ts, job_type, mode, reason, matched_rules, context)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`),
		d.DecisionID, formatTime(d.Timestamp), d.JobType, string(d.Mode), d.Reason, string(matched), string(dctx))
	if isUniqueViolation(err) {
		return fault.Conflict("decision %s already exists", d.DecisionID)
	}
	if err != nil {
		return fault.StoreUnavailable(err)
	}
	return nil
}
