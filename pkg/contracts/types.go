// Package contracts defines the shared data types exchanged between the
// trace core's subsystems: entities, trace chains, state transitions,
// audit events, and governance decisions.
package contracts

import "time"

// EntityType discriminates the hierarchical entity kinds.
type EntityType string

const (
	EntityMission  EntityType = "mission"
	EntityPlan     EntityType = "plan"
	EntityJob      EntityType = "job"
	EntityAttempt  EntityType = "attempt"
	EntityResource EntityType = "resource"
)

// Valid reports whether t names a known entity type.
func (t EntityType) Valid() bool {
	switch t {
	case EntityMission, EntityPlan, EntityJob, EntityAttempt, EntityResource:
		return true
	}
	return false
}

// IDPrefix returns the type-discriminating identifier prefix for t.
func (t EntityType) IDPrefix() string {
	switch t {
	case EntityMission:
		return "m_"
	case EntityPlan:
		return "p_"
	case EntityJob:
		return "j_"
	case EntityAttempt:
		return "a_"
	case EntityResource:
		return "r_"
	}
	return ""
}

// Mission is the root of a trace hierarchy. Missions may nest via
// ParentMissionID, forming a self-referential tree.
type Mission struct {
	ID              string            `json:"id"`
	ParentMissionID string            `json:"parent_mission_id,omitempty"`
	Tags            map[string]string `json:"tags,omitempty"`
	CreatedAt       time.Time         `json:"created_at"`
}

// Plan belongs to exactly one mission and is immutable after creation.
type Plan struct {
	ID        string    `json:"id"`
	MissionID string    `json:"mission_id"`
	PlanType  string    `json:"plan_type"`
	CreatedAt time.Time `json:"created_at"`
}

// Job belongs to exactly one plan.
type Job struct {
	ID        string            `json:"id"`
	PlanID    string            `json:"plan_id"`
	JobType   string            `json:"job_type"`
	Tags      map[string]string `json:"tags,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}

// Attempt is a single execution of a job. Retries create new attempts
// with a strictly increasing 1-based AttemptNumber; prior attempts are
// never mutated.
type Attempt struct {
	ID            string    `json:"id"`
	JobID         string    `json:"job_id"`
	AttemptNumber int       `json:"attempt_number"`
	RetryReason   string    `json:"retry_reason,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// Resource is an append-only side artifact produced during an attempt.
type Resource struct {
	UUID         string         `json:"uuid"`
	AttemptID    string         `json:"attempt_id"`
	ResourceType string         `json:"resource_type"`
	Metadata     map[string]any `json:"metadata,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
}

// TraceChain is the full mission→plan→job→attempt→resource hierarchy
// reachable from a given entity. Ancestors the starting point does not
// have are nil.
type TraceChain struct {
	Mission   *Mission    `json:"mission"`
	Plan      *Plan       `json:"plan"`
	Job       *Job        `json:"job"`
	Attempt   *Attempt    `json:"attempt"`
	Resources []*Resource `json:"resources,omitempty"`
}

// StateTransition is one immutable row in an entity's transition history.
// FromState is empty for the initial transition out of the not-yet-created
// pseudo-state.
type StateTransition struct {
	TransitionID   string         `json:"transition_id"`
	Timestamp      time.Time      `json:"timestamp"`
	EntityType     EntityType     `json:"entity_type"`
	EntityID       string         `json:"entity_id"`
	FromState      string         `json:"from_state,omitempty"`
	ToState        string         `json:"to_state"`
	TransitionType string         `json:"transition_type,omitempty"`
	Metadata       map[string]any `json:"metadata,omitempty"`
}

// EntityState is the denormalized current-state record kept in sync with
// the transition history.
type EntityState struct {
	EntityType EntityType `json:"entity_type"`
	EntityID   string     `json:"entity_id"`
	State      string     `json:"state"`
	UpdatedAt  time.Time  `json:"updated_at"`
}
