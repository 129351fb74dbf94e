package contracts

import "time"

// ExecutionMode is the governance mode selected for a job execution.
type ExecutionMode string

const (
	// ModeDirect lets the execution proceed without additional supervision.
	ModeDirect ExecutionMode = "direct"
	// ModeRail routes the execution through the stricter governance path.
	ModeRail ExecutionMode = "rail"
)

// ModeDecision records the outcome of a governor evaluation. It carries no
// entity state side effects; it only informs the caller how stringently to
// supervise the subsequent execution.
type ModeDecision struct {
	DecisionID   string        `json:"decision_id"`
	Timestamp    time.Time     `json:"timestamp"`
	JobType      string        `json:"job_type"`
	Mode         ExecutionMode `json:"mode"`
	Reason       string        `json:"reason"`
	MatchedRules []string      `json:"matched_rules"`
}
