package identity

import (
	"context"
	"errors"

	"github.com/neurorail/core/pkg/cache"
	"github.com/neurorail/core/pkg/contracts"
	"github.com/neurorail/core/pkg/fault"
)

// GetMission resolves a mission, cache first.
func (r *Registry) GetMission(ctx context.Context, id string) (*contracts.Mission, error) {
	key := cache.EntityKey(string(contracts.EntityMission), id)
	var cached contracts.Mission
	if r.probeCache(ctx, key, &cached) {
		return &cached, nil
	}
	m, err := r.store.GetMission(ctx, id)
	if err != nil {
		return nil, err
	}
	r.putCache(ctx, key, m)
	return m, nil
}

// GetPlan resolves a plan, cache first.
func (r *Registry) GetPlan(ctx context.Context, id string) (*contracts.Plan, error) {
	key := cache.EntityKey(string(contracts.EntityPlan), id)
	var cached contracts.Plan
	if r.probeCache(ctx, key, &cached) {
		return &cached, nil
	}
	p, err := r.store.GetPlan(ctx, id)
	if err != nil {
		return nil, err
	}
	r.putCache(ctx, key, p)
	return p, nil
}

// GetJob resolves a job, cache first.
func (r *Registry) GetJob(ctx context.Context, id string) (*contracts.Job, error) {
	key := cache.EntityKey(string(contracts.EntityJob), id)
	var cached contracts.Job
	if r.probeCache(ctx, key, &cached) {
		return &cached, nil
	}
	j, err := r.store.GetJob(ctx, id)
	if err != nil {
		return nil, err
	}
	r.putCache(ctx, key, j)
	return j, nil
}

// GetAttempt resolves an attempt, cache first.
func (r *Registry) GetAttempt(ctx context.Context, id string) (*contracts.Attempt, error) {
	key := cache.EntityKey(string(contracts.EntityAttempt), id)
	var cached contracts.Attempt
	if r.probeCache(ctx, key, &cached) {
		return &cached, nil
	}
	a, err := r.store.GetAttempt(ctx, id)
	if err != nil {
		return nil, err
	}
	r.putCache(ctx, key, a)
	return a, nil
}

// GetResource resolves a resource, cache first.
func (r *Registry) GetResource(ctx context.Context, id string) (*contracts.Resource, error) {
	key := cache.EntityKey(string(contracts.EntityResource), id)
	var cached contracts.Resource
	if r.probeCache(ctx, key, &cached) {
		return &cached, nil
	}
	res, err := r.store.GetResource(ctx, id)
	if err != nil {
		return nil, err
	}
	r.putCache(ctx, key, res)
	return res, nil
}

// Exists reports whether an entity of the given type and id resolves.
func (r *Registry) Exists(ctx context.Context, t contracts.EntityType, id string) error {
	var err error
	switch t {
	case contracts.EntityMission:
		_, err = r.GetMission(ctx, id)
	case contracts.EntityPlan:
		_, err = r.GetPlan(ctx, id)
	case contracts.EntityJob:
		_, err = r.GetJob(ctx, id)
	case contracts.EntityAttempt:
		_, err = r.GetAttempt(ctx, id)
	case contracts.EntityResource:
		_, err = r.GetResource(ctx, id)
	default:
		return fault.InvalidInput("unknown entity type %q", t)
	}
	return err
}

// TraceChain reconstructs the full hierarchy reachable from the given
// entity by walking parent references. Ancestors that fail to resolve are
// left nil rather than failing the whole chain; the starting entity
// itself must exist.
func (r *Registry) TraceChain(ctx context.Context, t contracts.EntityType, id string) (*contracts.TraceChain, error) {
	chain := &contracts.TraceChain{}

	switch t {
	case contracts.EntityResource:
		res, err := r.GetResource(ctx, id)
		if err != nil {
			return nil, err
		}
		r.fillFromAttempt(ctx, chain, res.AttemptID)
	case contracts.EntityAttempt:
		a, err := r.GetAttempt(ctx, id)
		if err != nil {
			return nil, err
		}
		chain.Attempt = a
		r.fillFromJob(ctx, chain, a.JobID)
		r.fillResources(ctx, chain, a.ID)
	case contracts.EntityJob:
		j, err := r.GetJob(ctx, id)
		if err != nil {
			return nil, err
		}
		chain.Job = j
		r.fillFromPlan(ctx, chain, j.PlanID)
	case contracts.EntityPlan:
		p, err := r.GetPlan(ctx, id)
		if err != nil {
			return nil, err
		}
		chain.Plan = p
		r.fillMission(ctx, chain, p.MissionID)
	case contracts.EntityMission:
		m, err := r.GetMission(ctx, id)
		if err != nil {
			return nil, err
		}
		chain.Mission = m
	default:
		return nil, fault.InvalidInput("unknown entity type %q", t)
	}
	return chain, nil
}

func (r *Registry) fillFromAttempt(ctx context.Context, chain *contracts.TraceChain, attemptID string) {
	a, err := r.GetAttempt(ctx, attemptID)
	if err != nil {
		r.logDangling(contracts.EntityAttempt, attemptID, err)
		return
	}
	chain.Attempt = a
	r.fillFromJob(ctx, chain, a.JobID)
	r.fillResources(ctx, chain, a.ID)
}

func (r *Registry) fillFromJob(ctx context.Context, chain *contracts.TraceChain, jobID string) {
	j, err := r.GetJob(ctx, jobID)
	if err != nil {
		r.logDangling(contracts.EntityJob, jobID, err)
		return
	}
	chain.Job = j
	r.fillFromPlan(ctx, chain, j.PlanID)
}

func (r *Registry) fillFromPlan(ctx context.Context, chain *contracts.TraceChain, planID string) {
	p, err := r.GetPlan(ctx, planID)
	if err != nil {
		r.logDangling(contracts.EntityPlan, planID, err)
		return
	}
	chain.Plan = p
	r.fillMission(ctx, chain, p.MissionID)
}

func (r *Registry) fillMission(ctx context.Context, chain *contracts.TraceChain, missionID string) {
	m, err := r.GetMission(ctx, missionID)
	if err != nil {
		r.logDangling(contracts.EntityMission, missionID, err)
		return
	}
	chain.Mission = m
}

func (r *Registry) fillResources(ctx context.Context, chain *contracts.TraceChain, attemptID string) {
	resources, err := r.store.ListResourcesByAttempt(ctx, attemptID)
	if err != nil {
		r.logger.Warn("resource listing failed", "attempt_id", attemptID, "error", err)
		return
	}
	chain.Resources = resources
}

func (r *Registry) logDangling(t contracts.EntityType, id string, err error) {
	var fe *fault.Error
	if errors.As(err, &fe) && fe.Code == fault.CodeNotFound {
		r.logger.Warn("dangling parent reference", "entity_type", t, "entity_id", id)
		return
	}
	r.logger.Warn("ancestor resolution failed", "entity_type", t, "entity_id", id, "error", err)
}
