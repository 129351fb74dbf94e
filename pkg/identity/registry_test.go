package identity

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
	"github.com/neurorail/core/pkg/lifecycle"
	"github.com/neurorail/core/pkg/store"
)

func newTestRegistry(t *testing.T) (*Registry, *lifecycle.Engine) {
	t.Helper()
	dsn := "file:" + filepath.Join(t.TempDir(), "test.db") + "?_pragma=busy_timeout(5000)"
	s, err := store.Open(dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	require.NoError(t, s.Migrate(context.Background()))

	engine := lifecycle.NewEngine(s, cache.NewMemoryCache(), time.Hour)
	return New(s, cache.NewMemoryCache(), engine, time.Hour), engine
}

func buildHierarchy(t *testing.T, r *Registry) (*contracts.Mission, *contracts.Plan, *contracts.Job, *contracts.Attempt) {
	t.Helper()
	ctx := context.Background()
	m, err := r.CreateMission(ctx, CreateMissionRequest{Tags: map[string]string{"env": "test"}})
	require.NoError(t, err)
	p, err := r.CreatePlan(ctx, CreatePlanRequest{MissionID: m.ID, PlanType: "sequential"})
	require.NoError(t, err)
	j, err := r.CreateJob(ctx, CreateJobRequest{PlanID: p.ID, JobType: "transform"})
	require.NoError(t, err)
	a, err := r.CreateAttempt(ctx, CreateAttemptRequest{JobID: j.ID})
	require.NoError(t, err)
	return m, p, j, a
}

func TestCreateMissionMintsPrefixedID(t *testing.T) {
	r, engine := newTestRegistry(t)

	m, err := r.CreateMission(context.Background(), CreateMissionRequest{})
	require.NoError(t, err)
	assert.Contains(t, m.ID, "m_")
	assert.False(t, m.CreatedAt.IsZero())

	// Creation recorded the initial PENDING state.
	state, err := engine.CurrentState(context.Background(), contracts.EntityMission, m.ID)
	require.NoError(t, err)
	assert.Equal(t, lifecycle.MissionPending, state.State)
}

func TestCreateMissionRejectsForeignPrefix(t *testing.T) {
	r, _ := newTestRegistry(t)

	_, err := r.CreateMission(context.Background(), CreateMissionRequest{ID: "j_wrong"})
	assert.True(t, fault.IsCode(err, fault.CodeInvalidInput))
}

func TestNestedMissionRequiresParent(t *testing.T) {
	r, _ := newTestRegistry(t)
	ctx := context.Background()

	_, err := r.CreateMission(ctx, CreateMissionRequest{ParentMissionID: "m_missing"})
	assert.True(t, fault.IsCode(err, fault.CodeNotFound))

	parent, err := r.CreateMission(ctx, CreateMissionRequest{})
	require.NoError(t, err)
	child, err := r.CreateMission(ctx, CreateMissionRequest{ParentMissionID: parent.ID})
	require.NoError(t, err)
	assert.Equal(t, parent.ID, child.ParentMissionID)
}

func TestCreatePlanUnknownMission(t *testing.T) {
	r, _ := newTestRegistry(t)

	_, err := r.CreatePlan(context.Background(), CreatePlanRequest{MissionID: "m_missing", PlanType: "x"})
	assert.True(t, fault.IsCode(err, fault.CodeNotFound))
}

func TestAttemptNumbersIncrease(t *testing.T) {
	r, _ := newTestRegistry(t)
	_, _, j, a1 := buildHierarchy(t, r)
	assert.Equal(t, 1, a1.AttemptNumber)

	a2, err := r.CreateAttempt(context.Background(), CreateAttemptRequest{JobID: j.ID, RetryReason: "flaky"})
	require.NoError(t, err)
	assert.Equal(t, 2, a2.AttemptNumber)
	assert.Equal(t, "flaky", a2.RetryReason)
}

func TestCreateResourceUnderAttempt(t *testing.T) {
	r, _ := newTestRegistry(t)
	_, _, _, a := buildHierarchy(t, r)

	res, err := r.CreateResource(context.Background(), CreateResourceRequest{
		AttemptID:    a.ID,
		ResourceType: "artifact",
		Metadata:     map[string]any{"path": "/tmp/out"},
	})
	require.NoError(t, err)
	assert.Contains(t, res.UUID, "r_")

	_, err = r.CreateResource(context.Background(), CreateResourceRequest{AttemptID: "a_missing", ResourceType: "artifact"})
	assert.True(t, fault.IsCode(err, fault.CodeNotFound))
}

func TestTraceChainFromFreshAttempt(t *testing.T) {
	r, _ := newTestRegistry(t)
	m, p, j, a := buildHierarchy(t, r)

	chain, err := r.TraceChain(context.Background(), contracts.EntityAttempt, a.ID)
	require.NoError(t, err)
	require.NotNil(t, chain.Mission)
	require.NotNil(t, chain.Plan)
	require.NotNil(t, chain.Job)
	require.NotNil(t, chain.Attempt)
	assert.Equal(t, m.ID, chain.Mission.ID)
	assert.Equal(t, p.ID, chain.Plan.ID)
	assert.Equal(t, j.ID, chain.Job.ID)
	assert.Equal(t, a.ID, chain.Attempt.ID)
}

func TestTraceChainFromResourceIncludesResources(t *testing.T) {
	r, _ := newTestRegistry(t)
	_, _, _, a := buildHierarchy(t, r)
	res, err := r.CreateResource(context.Background(), CreateResourceRequest{
		AttemptID: a.ID, ResourceType: "artifact",
	})
	require.NoError(t, err)

	chain, err := r.TraceChain(context.Background(), contracts.EntityResource, res.UUID)
	require.NoError(t, err)
	require.NotNil(t, chain.Attempt)
	require.Len(t, chain.Resources, 1)
	assert.Equal(t, res.UUID, chain.Resources[0].UUID)
}

func TestTraceChainUnknownEntityNotFound(t *testing.T) {
	r, _ := newTestRegistry(t)

	_, err := r.TraceChain(context.Background(), contracts.EntityAttempt, "a_missing")
	assert.True(t, fault.IsCode(err, fault.CodeNotFound))

	_, err = r.TraceChain(context.Background(), contracts.EntityType("widget"), "w_1")
	assert.True(t, fault.IsCode(err, fault.CodeInvalidInput))
}

func TestTraceChainFromMissionHasNilDescendants(t *testing.T) {
	r, _ := newTestRegistry(t)
	m, err := r.CreateMission(context.Background(), CreateMissionRequest{})
	require.NoError(t, err)

	chain, err := r.TraceChain(context.Background(), contracts.EntityMission, m.ID)
	require.NoError(t, err)
	assert.NotNil(t, chain.Mission)
	assert.Nil(t, chain.Plan)
	assert.Nil(t, chain.Job)
	assert.Nil(t, chain.Attempt)
}

func TestGetResolvesThroughCacheAfterCreate(t *testing.T) {
	dsn := "file:" + filepath.Join(t.TempDir(), "test.db") + "?_pragma=busy_timeout(5000)"
	s, err := store.Open(dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	require.NoError(t, s.Migrate(context.Background()))

	shared := cache.NewMemoryCache()
	writer := New(s, shared, nil, time.Hour)
	m, err := writer.CreateMission(context.Background(), CreateMissionRequest{})
	require.NoError(t, err)

	// A reader sharing the cache resolves without touching the store.
	require.NoError(t, s.Close())
	reader := New(s, shared, nil, time.Hour)
	got, err := reader.GetMission(context.Background(), m.ID)
	require.NoError(t, err)
	assert.Equal(t, m.ID, got.ID)
}
