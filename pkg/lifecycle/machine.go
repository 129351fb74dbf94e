// Package lifecycle owns the finite state machines for missions, jobs,
// and attempts. It is the single point of truth for "is this move
// legal"; no other component mutates entity state.
package lifecycle

import "github.com/neurorail/core/pkg/contracts"

// Mission states.
const (
	MissionPending   = "PENDING"
	MissionPlanning  = "PLANNING"
	MissionPlanned   = "PLANNED"
	MissionExecuting = "EXECUTING"
	MissionCompleted = "COMPLETED"
	MissionFailed    = "FAILED"
	MissionTimeout   = "TIMEOUT"
	MissionCancelled = "CANCELLED"
)

// Job states.
const (
	JobPending   = "PENDING"
	JobQueued    = "QUEUED"
	JobRunning   = "RUNNING"
	JobCompleted = "COMPLETED"
	JobFailed    = "FAILED"
	JobTimeout   = "TIMEOUT"
	JobCancelled = "CANCELLED"
)

// Attempt states. TIMEOUT and ORPHAN_KILLED are reserved for a later
// phase; they are legal targets but nothing in this core triggers them.
const (
	AttemptPending      = "PENDING"
	AttemptRunning      = "RUNNING"
	AttemptSucceeded    = "SUCCEEDED"
	AttemptFailed       = "FAILED"
	AttemptTimeout      = "TIMEOUT"
	AttemptOrphanKilled = "ORPHAN_KILLED"
)

// initialState is the pseudo-state of an entity before its first
// transition. Stored as the empty FromState.
const initialState = ""

// machine maps a current state to the set of allowed next states. States
// absent from the map are terminal.
type machine map[string][]string

var machines = map[contracts.EntityType]machine{
	contracts.EntityMission: {
		initialState:     {MissionPending},
		MissionPending:   {MissionPlanning, MissionCancelled},
		MissionPlanning:  {MissionPlanned, MissionCancelled},
		MissionPlanned:   {MissionExecuting, MissionCancelled},
		MissionExecuting: {MissionCompleted, MissionFailed, MissionTimeout, MissionCancelled},
	},
	contracts.EntityJob: {
		initialState: {JobPending},
		JobPending:   {JobQueued, JobCancelled},
		JobQueued:    {JobRunning, JobCancelled},
		JobRunning:   {JobCompleted, JobFailed, JobTimeout, JobCancelled, JobQueued},
	},
	contracts.EntityAttempt: {
		initialState:   {AttemptPending},
		AttemptPending: {AttemptRunning},
		AttemptRunning: {AttemptSucceeded, AttemptFailed, AttemptTimeout, AttemptOrphanKilled},
	},
}

// HasMachine reports whether the entity type is state-machine driven.
// Plans are immutable after creation and resources are append-only;
// neither carries a machine.
func HasMachine(t contracts.EntityType) bool {
	_, ok := machines[t]
	return ok
}

// AllowedNext returns the set of legal targets from current. An empty
// result means current is terminal (or unknown).
func AllowedNext(t contracts.EntityType, current string) []string {
	m, ok := machines[t]
	if !ok {
		return nil
	}
	return m[current]
}

// IsTerminal reports whether state has no outgoing transitions for the
// given entity type.
func IsTerminal(t contracts.EntityType, state string) bool {
	if state == initialState {
		return false
	}
	m, ok := machines[t]
	if !ok {
		return false
	}
	_, hasOutgoing := m[state]
	return !hasOutgoing
}

// States returns every state reachable in the machine for t, in no
// particular order.
func States(t contracts.EntityType) []string {
	m, ok := machines[t]
	if !ok {
		return nil
	}
	seen := make(map[string]bool)
	var out []string
	for from, targets := range m {
		if from != initialState && !seen[from] {
			seen[from] = true
			out = append(out, from)
		}
		for _, to := range targets {
			if !seen[to] {
				seen[to] = true
				out = append(out, to)
			}
		}
	}
	return out
}
