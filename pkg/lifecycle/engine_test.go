package lifecycle

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neurorail/core/pkg/cache"
	"github.com/neurorail/core/pkg/contracts"
	"github.com/neurorail/core/pkg/fault"
	"github.com/neurorail/core/pkg/store"
)

func newTestEngine(t *testing.T) (*Engine, *store.Store) {
	t.Helper()
	dsn := "file:" + filepath.Join(t.TempDir(), "test.db") + "?_pragma=busy_timeout(5000)"
	s, err := store.Open(dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	require.NoError(t, s.Migrate(context.Background()))
	return NewEngine(s, cache.NewMemoryCache(), time.Hour), s
}

func registerMission(t *testing.T, s *store.Store, id string) {
	t.Helper()
	require.NoError(t, s.InsertMission(context.Background(),
		&contracts.Mission{ID: id, CreatedAt: time.Now().UTC()}))
}

func registerJob(t *testing.T, s *store.Store, id string) {
	t.Helper()
	require.NoError(t, s.InsertJob(context.Background(),
		&contracts.Job{ID: id, PlanID: "p_seed", JobType: "transform", CreatedAt: time.Now().UTC()}))
}

func registerAttempt(t *testing.T, s *store.Store, id string) {
	t.Helper()
	require.NoError(t, s.InsertAttempt(context.Background(),
		&contracts.Attempt{ID: id, JobID: "j_seed", CreatedAt: time.Now().UTC()}))
}

func TestMissionLifecycleScenario(t *testing.T) {
	e, s := newTestEngine(t)
	ctx := context.Background()
	registerMission(t, s, "m_1")

	// PENDING out of the initial pseudo-state.
	_, err := e.Transition(ctx, contracts.EntityMission, "m_1", MissionPending, nil)
	require.NoError(t, err)

	_, err = e.Transition(ctx, contracts.EntityMission, "m_1", MissionPlanning, nil)
	require.NoError(t, err)

	// Jumping straight to COMPLETED from PLANNING is not in the allowed set.
	_, err = e.Transition(ctx, contracts.EntityMission, "m_1", MissionCompleted, nil)
	require.Error(t, err)
	fe := fault.FromError(err)
	assert.Equal(t, fault.CodeInvalidTransition, fe.Code)
	assert.Equal(t, MissionPlanning, fe.Details["current_state"])
	assert.Equal(t, MissionCompleted, fe.Details["attempted_state"])

	for _, target := range []string{MissionPlanned, MissionExecuting, MissionCompleted} {
		_, err = e.Transition(ctx, contracts.EntityMission, "m_1", target, nil)
		require.NoError(t, err)
	}

	history, err := e.History(ctx, contracts.EntityMission, "m_1", 20)
	require.NoError(t, err)
	require.Len(t, history, 5)
	want := []string{MissionPending, MissionPlanning, MissionPlanned, MissionExecuting, MissionCompleted}
	for i, tr := range history {
		assert.Equal(t, want[i], tr.ToState)
	}
	// The failed transition produced no row.
	for _, tr := range history {
		if tr.FromState == MissionPlanning {
			assert.Equal(t, MissionPlanned, tr.ToState)
		}
	}
}

func TestTerminalStateRejectsAllTargets(t *testing.T) {
	e, s := newTestEngine(t)
	ctx := context.Background()
	registerAttempt(t, s, "a_1")

	for _, target := range []string{AttemptPending, AttemptRunning, AttemptFailed} {
		_, err := e.Transition(ctx, contracts.EntityAttempt, "a_1", target, nil)
		require.NoError(t, err)
	}

	// a_1 is now FAILED, a terminal state.
	before, err := e.History(ctx, contracts.EntityAttempt, "a_1", 20)
	require.NoError(t, err)

	for _, target := range States(contracts.EntityAttempt) {
		_, err := e.Transition(ctx, contracts.EntityAttempt, "a_1", target, nil)
		assert.True(t, fault.IsCode(err, fault.CodeInvalidTransition), "terminal -> %s must fail", target)
	}

	after, err := e.History(ctx, contracts.EntityAttempt, "a_1", 20)
	require.NoError(t, err)
	assert.Len(t, after, len(before))
}

func TestTransitionUnknownEntityTypeRejected(t *testing.T) {
	e, _ := newTestEngine(t)

	_, err := e.Transition(context.Background(), contracts.EntityPlan, "p_1", "ANYTHING", nil)
	assert.True(t, fault.IsCode(err, fault.CodeInvalidInput))

	_, err = e.Transition(context.Background(), contracts.EntityType("widget"), "w_1", "ANYTHING", nil)
	assert.True(t, fault.IsCode(err, fault.CodeInvalidInput))
}

func TestTransitionUnregisteredEntityRejected(t *testing.T) {
	e, s := newTestEngine(t)
	ctx := context.Background()

	_, err := e.Transition(ctx, contracts.EntityMission, "m_ghost", MissionPending, nil)
	assert.True(t, fault.IsCode(err, fault.CodeNotFound))

	// No state row was created for the unknown id.
	state, err := s.GetEntityState(ctx, contracts.EntityMission, "m_ghost")
	require.NoError(t, err)
	assert.Nil(t, state)

	// Registering the id makes the same transition legal.
	registerMission(t, s, "m_ghost")
	_, err = e.Transition(ctx, contracts.EntityMission, "m_ghost", MissionPending, nil)
	require.NoError(t, err)
}

func TestCurrentStateCacheFallsBackToStore(t *testing.T) {
	dsn := "file:" + filepath.Join(t.TempDir(), "test.db") + "?_pragma=busy_timeout(5000)"
	s, err := store.Open(dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	require.NoError(t, s.Migrate(context.Background()))

	registerJob(t, s, "j_1")
	writer := NewEngine(s, cache.NewMemoryCache(), time.Hour)
	_, err = writer.Transition(context.Background(), contracts.EntityJob, "j_1", JobPending, nil)
	require.NoError(t, err)

	// A reader with a cold cache resolves from the durable store.
	reader := NewEngine(s, cache.NewMemoryCache(), time.Hour)
	state, err := reader.CurrentState(context.Background(), contracts.EntityJob, "j_1")
	require.NoError(t, err)
	assert.Equal(t, JobPending, state.State)
}

func TestCurrentStateUnknownEntity(t *testing.T) {
	e, _ := newTestEngine(t)

	_, err := e.CurrentState(context.Background(), contracts.EntityJob, "j_missing")
	assert.True(t, fault.IsCode(err, fault.CodeNotFound))
}

func TestStaleCacheLosesRaceAtStore(t *testing.T) {
	dsn := "file:" + filepath.Join(t.TempDir(), "test.db") + "?_pragma=busy_timeout(5000)"
	s, err := store.Open(dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	require.NoError(t, s.Migrate(context.Background()))
	ctx := context.Background()

	registerMission(t, s, "m_1")
	a := NewEngine(s, cache.NewMemoryCache(), time.Hour)
	b := NewEngine(s, cache.NewMemoryCache(), time.Hour)

	_, err = a.Transition(ctx, contracts.EntityMission, "m_1", MissionPending, nil)
	require.NoError(t, err)

	// Both engines see PENDING; a moves first, b's write is built on a
	// stale read and must lose at the store.
	_, err = b.CurrentState(ctx, contracts.EntityMission, "m_1")
	require.NoError(t, err)
	_, err = a.Transition(ctx, contracts.EntityMission, "m_1", MissionPlanning, nil)
	require.NoError(t, err)

	_, err = b.Transition(ctx, contracts.EntityMission, "m_1", MissionCancelled, nil)
	require.Error(t, err)
	assert.True(t, fault.IsCode(err, fault.CodeConflict))
}

type recordingObserver struct {
	calls []string
}

func (r *recordingObserver) OnTransition(t contracts.EntityType, from, to string) {
	r.calls = append(r.calls, string(t)+":"+from+"->"+to)
}

func TestObserverNotifiedAfterCommit(t *testing.T) {
	dsn := "file:" + filepath.Join(t.TempDir(), "test.db") + "?_pragma=busy_timeout(5000)"
	s, err := store.Open(dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	require.NoError(t, s.Migrate(context.Background()))

	registerJob(t, s, "j_1")
	obs := &recordingObserver{}
	e := NewEngine(s, cache.NewMemoryCache(), time.Hour, obs)

	_, err = e.Transition(context.Background(), contracts.EntityJob, "j_1", JobPending, nil)
	require.NoError(t, err)
	_, err = e.Transition(context.Background(), contracts.EntityJob, "j_1", JobCancelled, nil)
	require.NoError(t, err)

	assert.Equal(t, []string{"job:->PENDING", "job:PENDING->CANCELLED"}, obs.calls)

	// Rejected transitions notify nobody.
	_, _ = e.Transition(context.Background(), contracts.EntityJob, "j_1", JobRunning, nil)
	assert.Len(t, obs.calls, 2)
}
