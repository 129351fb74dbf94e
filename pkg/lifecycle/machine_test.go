package lifecycle

import (
	"slices"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"

	"github.com/neurorail/core/pkg/contracts"
)

var machineTypes = []contracts.EntityType{
	contracts.EntityMission, contracts.EntityJob, contracts.EntityAttempt,
}

func TestPlansAndResourcesHaveNoMachine(t *testing.T) {
	assert.False(t, HasMachine(contracts.EntityPlan))
	assert.False(t, HasMachine(contracts.EntityResource))
	for _, mt := range machineTypes {
		assert.True(t, HasMachine(mt))
	}
}

func TestEveryStateIsReachableFromInitial(t *testing.T) {
	for _, mt := range machineTypes {
		reachable := map[string]bool{}
		queue := []string{initialState}
		for len(queue) > 0 {
			current := queue[0]
			queue = queue[1:]
			for _, next := range AllowedNext(mt, current) {
				if !reachable[next] {
					reachable[next] = true
					queue = append(queue, next)
				}
			}
		}
		for _, state := range States(mt) {
			assert.True(t, reachable[state], "%s state %s unreachable", mt, state)
		}
	}
}

func TestTransitionTargetsAreDeclaredStates(t *testing.T) {
	for _, mt := range machineTypes {
		declared := States(mt)
		for _, from := range append(States(mt), initialState) {
			for _, to := range AllowedNext(mt, from) {
				assert.Contains(t, declared, to, "%s: %q -> %q targets an undeclared state", mt, from, to)
			}
		}
	}
}

func TestTerminalStatesPerType(t *testing.T) {
	assert.True(t, IsTerminal(contracts.EntityMission, MissionCompleted))
	assert.True(t, IsTerminal(contracts.EntityMission, MissionCancelled))
	assert.False(t, IsTerminal(contracts.EntityMission, MissionExecuting))
	assert.True(t, IsTerminal(contracts.EntityAttempt, AttemptOrphanKilled))
	assert.False(t, IsTerminal(contracts.EntityJob, JobRunning))
	assert.False(t, IsTerminal(contracts.EntityJob, initialState))
}

func TestTerminalStatesHaveNoOutgoingTransitions(t *testing.T) {
	properties := gopter.NewProperties(nil)

	for _, mt := range machineTypes {
		mt := mt
		states := States(mt)
		properties.Property(string(mt)+" terminal states reject every target", prop.ForAll(
			func(from, to string) bool {
				if !IsTerminal(mt, from) {
					return true
				}
				return !slices.Contains(AllowedNext(mt, from), to)
			},
			gen.OneConstOf(toAny(states)...),
			gen.OneConstOf(toAny(states)...),
		))
	}

	properties.TestingRun(t)
}

func toAny(states []string) []any {
	out := make([]any, len(states))
	for i, s := range states {
		out[i] = s
	}
	return out
}
