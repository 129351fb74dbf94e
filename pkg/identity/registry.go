// Package identity implements the identity registry: it mints durable,
// hierarchical entity identities, resolves them, and reconstructs the
// full trace chain for any entity.
//
// Reads probe the hot cache first and fall back to the durable store;
// writes hit the durable store first and then populate the cache
// best-effort. A cache failure never fails a creation.
package identity

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/neurorail/core/pkg/cache"
	"github.com/neurorail/core/pkg/contracts"
	"github.com/neurorail/core/pkg/fault"
	"github.com/neurorail/core/pkg/store"
)

// Lifecycle is the slice of the lifecycle engine the registry needs to
// record an entity's initial state.
type Lifecycle interface {
	Transition(ctx context.Context, entityType contracts.EntityType, entityID, target string, metadata map[string]any) (*contracts.StateTransition, error)
}

// Registry issues and resolves entity identities.
type Registry struct {
	store     *store.Store
	cache     cache.Cache
	lifecycle Lifecycle
	ttl       time.Duration
	logger    *slog.Logger
}

// New creates a registry. lifecycle may be nil in tests that do not
// exercise initial-state recording.
func New(s *store.Store, c cache.Cache, lc Lifecycle, ttl time.Duration) *Registry {
	return &Registry{
		store:     s,
		cache:     c,
		lifecycle: lc,
		ttl:       ttl,
		logger:    slog.Default().With("component", "identity"),
	}
}

// CreateMissionRequest carries the caller-controlled mission attributes.
type CreateMissionRequest struct {
	ID              string            `json:"id,omitempty"`
	ParentMissionID string            `json:"parent_mission_id,omitempty"`
	Tags            map[string]string `json:"tags,omitempty"`
}

// CreateMission mints a mission, optionally nested under a parent.
func (r *Registry) CreateMission(ctx context.Context, req CreateMissionRequest) (*contracts.Mission, error) {
	id, err := resolveID(req.ID, contracts.EntityMission)
	if err != nil {
		return nil, err
	}
	if req.ParentMissionID != "" {
		if _, err := r.GetMission(ctx, req.ParentMissionID); err != nil {
			return nil, err
		}
	}
	m := &contracts.Mission{
		ID:              id,
		ParentMissionID: req.ParentMissionID,
		Tags:            req.Tags,
		CreatedAt:       time.Now().UTC(),
	}
	if err := r.store.InsertMission(ctx, m); err != nil {
		return nil, err
	}
	r.initState(ctx, contracts.EntityMission, m.ID)
	r.putCache(ctx, cache.EntityKey(string(contracts.EntityMission), m.ID), m)
	return m, nil
}

// CreatePlanRequest carries the caller-controlled plan attributes.
type CreatePlanRequest struct {
	ID        string `json:"id,omitempty"`
	MissionID string `json:"mission_id"`
	PlanType  string `json:"plan_type"`
}

// CreatePlan mints a plan under an existing mission. Plans are immutable
// after creation and carry no state machine of their own.
func (r *Registry) CreatePlan(ctx context.Context, req CreatePlanRequest) (*contracts.Plan, error) {
	id, err := resolveID(req.ID, contracts.EntityPlan)
	if err != nil {
		return nil, err
	}
	if req.MissionID == "" {
		return nil, fault.InvalidInput("mission_id is required")
	}
	if _, err := r.GetMission(ctx, req.MissionID); err != nil {
		return nil, err
	}
	p := &contracts.Plan{
		ID:        id,
		MissionID: req.MissionID,
		PlanType:  req.PlanType,
		CreatedAt: time.Now().UTC(),
	}
	if err := r.store.InsertPlan(ctx, p); err != nil {
		return nil, err
	}
	r.putCache(ctx, cache.EntityKey(string(contracts.EntityPlan), p.ID), p)
	return p, nil
}

// CreateJobRequest carries the caller-controlled job attributes.
type CreateJobRequest struct {
	ID      string            `json:"id,omitempty"`
	PlanID  string            `json:"plan_id"`
	JobType string            `json:"job_type"`
	Tags    map[string]string `json:"tags,omitempty"`
}

// CreateJob mints a job under an existing plan.
func (r *Registry) CreateJob(ctx context.Context, req CreateJobRequest) (*contracts.Job, error) {
	id, err := resolveID(req.ID, contracts.EntityJob)
	if err != nil {
		return nil, err
	}
	if req.PlanID == "" {
		return nil, fault.InvalidInput("plan_id is required")
	}
	if _, err := r.GetPlan(ctx, req.PlanID); err != nil {
		return nil, err
	}
	j := &contracts.Job{
		ID:        id,
		PlanID:    req.PlanID,
		JobType:   req.JobType,
		Tags:      req.Tags,
		CreatedAt: time.Now().UTC(),
	}
	if err := r.store.InsertJob(ctx, j); err != nil {
		return nil, err
	}
	r.initState(ctx, contracts.EntityJob, j.ID)
	r.putCache(ctx, cache.EntityKey(string(contracts.EntityJob), j.ID), j)
	return j, nil
}

// CreateAttemptRequest carries the caller-controlled attempt attributes.
// The attempt number is never caller-controlled; the store allocates it.
type CreateAttemptRequest struct {
	ID          string `json:"id,omitempty"`
	JobID       string `json:"job_id"`
	RetryReason string `json:"retry_reason,omitempty"`
}

// CreateAttempt mints an attempt under an existing job, allocating the
// next attempt number atomically so concurrent retries never collide.
func (r *Registry) CreateAttempt(ctx context.Context, req CreateAttemptRequest) (*contracts.Attempt, error) {
	id, err := resolveID(req.ID, contracts.EntityAttempt)
	if err != nil {
		return nil, err
	}
	if req.JobID == "" {
		return nil, fault.InvalidInput("job_id is required")
	}
	if _, err := r.GetJob(ctx, req.JobID); err != nil {
		return nil, err
	}
	a := &contracts.Attempt{
		ID:          id,
		JobID:       req.JobID,
		RetryReason: req.RetryReason,
		CreatedAt:   time.Now().UTC(),
	}
	if err := r.store.InsertAttempt(ctx, a); err != nil {
		return nil, err
	}
	r.initState(ctx, contracts.EntityAttempt, a.ID)
	r.putCache(ctx, cache.EntityKey(string(contracts.EntityAttempt), a.ID), a)
	return a, nil
}

// CreateResourceRequest carries the caller-controlled resource attributes.
type CreateResourceRequest struct {
	UUID         string         `json:"uuid,omitempty"`
	AttemptID    string         `json:"attempt_id"`
	ResourceType string         `json:"resource_type"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

// CreateResource records a side artifact produced during an attempt.
func (r *Registry) CreateResource(ctx context.Context, req CreateResourceRequest) (*contracts.Resource, error) {
	id, err := resolveID(req.UUID, contracts.EntityResource)
	if err != nil {
		return nil, err
	}
	if req.AttemptID == "" {
		return nil, fault.InvalidInput("attempt_id is required")
	}
	if _, err := r.GetAttempt(ctx, req.AttemptID); err != nil {
		return nil, err
	}
	res := &contracts.Resource{
		UUID:         id,
		AttemptID:    req.AttemptID,
		ResourceType: req.ResourceType,
		Metadata:     req.Metadata,
		CreatedAt:    time.Now().UTC(),
	}
	if err := r.store.InsertResource(ctx, res); err != nil {
		return nil, err
	}
	r.putCache(ctx, cache.EntityKey(string(contracts.EntityResource), res.UUID), res)
	return res, nil
}

// resolveID validates a caller-supplied id or mints a fresh one.
func resolveID(supplied string, t contracts.EntityType) (string, error) {
	if supplied == "" {
		return t.IDPrefix() + uuid.NewString(), nil
	}
	if !strings.HasPrefix(supplied, t.IDPrefix()) {
		return "", fault.InvalidInput("%s id must carry the %q prefix, got %q", t, t.IDPrefix(), supplied)
	}
	return supplied, nil
}

// initState records the entity's initial PENDING state through the
// lifecycle engine. A failure here is surfaced in logs only: the entity
// row is already durable and the first explicit transition will
// initialize the state record.
func (r *Registry) initState(ctx context.Context, t contracts.EntityType, id string) {
	if r.lifecycle == nil {
		return
	}
	if _, err := r.lifecycle.Transition(ctx, t, id, "PENDING", map[string]any{"trigger": "create"}); err != nil {
		r.logger.Warn("initial state recording failed", "entity_type", t, "entity_id", id, "error", err)
	}
}

func (r *Registry) putCache(ctx context.Context, key string, v any) {
	if r.cache == nil {
		return
	}
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	if err := r.cache.Set(ctx, key, string(data), r.ttl); err != nil {
		r.logger.Warn("cache population failed", "key", key, "error", err)
	}
}

// probeCache attempts a cache read into dest, reporting a hit. Errors are
// logged and treated as misses.
func (r *Registry) probeCache(ctx context.Context, key string, dest any) bool {
	if r.cache == nil {
		return false
	}
	val, ok, err := r.cache.Get(ctx, key)
	if err != nil {
		r.logger.Warn("cache probe failed", "key", key, "error", err)
		return false
	}
	if !ok {
		return false
	}
	if err := json.Unmarshal([]byte(val), dest); err != nil {
		_ = r.cache.Delete(ctx, key)
		return false
	}
	return true
}
