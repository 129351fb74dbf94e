package lifecycle

import (
	"context"
	"encoding/json"
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/neurorail/core/pkg/cache"
	"github.com/neurorail/core/pkg/contracts"
	"github.com/neurorail/core/pkg/fault"
	"github.com/neurorail/core/pkg/store"
)

// Observer is notified after a transition commits. Used by the telemetry
// aggregator to maintain active-entity gauges. Observers must not fail
// the transition; they are invoked after the durable write.
type Observer interface {
	OnTransition(entityType contracts.EntityType, fromState, toState string)
}

// Engine validates and records lifecycle state transitions.
type Engine struct {
	store     *store.Store
	cache     cache.Cache
	ttl       time.Duration
	observers []Observer
	logger    *slog.Logger
}

// NewEngine creates a lifecycle engine.
func NewEngine(s *store.Store, c cache.Cache, ttl time.Duration, observers ...Observer) *Engine {
	return &Engine{
		store:     s,
		cache:     c,
		ttl:       ttl,
		observers: observers,
		logger:    slog.Default().With("component", "lifecycle"),
	}
}

// Transition validates target against the entity's machine and, if legal,
// commits the new current state and the transition row in one durable
// write. The durable store's conditional write is the serialization
// point: a concurrent transition on the same entity fails with a
// conflict rather than silently overwriting.
func (e *Engine) Transition(ctx context.Context, t contracts.EntityType, entityID, target string, metadata map[string]any) (*contracts.StateTransition, error) {
	if !HasMachine(t) {
		return nil, fault.InvalidInput("entity type %q is not state-machine driven", t)
	}

	current, err := e.currentState(ctx, t, entityID)
	if err != nil {
		return nil, err
	}
	// The initial transition only applies to entities the registry minted;
	// otherwise any caller could create state rows for arbitrary ids.
	if current == initialState {
		ok, err := e.store.HasEntity(ctx, t, entityID)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fault.NotFound("%s %s is not registered", t, entityID)
		}
	}
	if !slices.Contains(AllowedNext(t, current), target) {
		return nil, fault.InvalidTransition(string(t), entityID, displayState(current), target)
	}

	tr := &contracts.StateTransition{
		TransitionID:   uuid.NewString(),
		Timestamp:      time.Now().UTC(),
		EntityType:     t,
		EntityID:       entityID,
		FromState:      current,
		ToState:        target,
		TransitionType: transitionType(current),
		Metadata:       metadata,
	}
	if err := e.store.ApplyTransition(ctx, tr); err != nil {
		return nil, err
	}

	e.cacheState(ctx, &contracts.EntityState{
		EntityType: t,
		EntityID:   entityID,
		State:      target,
		UpdatedAt:  tr.Timestamp,
	})
	for _, obs := range e.observers {
		obs.OnTransition(t, current, target)
	}
	return tr, nil
}

// CurrentState returns the denormalized current-state record, or NotFound
// if the entity has never transitioned.
func (e *Engine) CurrentState(ctx context.Context, t contracts.EntityType, entityID string) (*contracts.EntityState, error) {
	key := cache.StateKey(string(t), entityID)
	if e.cache != nil {
		if val, ok, err := e.cache.Get(ctx, key); err == nil && ok {
			var cached contracts.EntityState
			if json.Unmarshal([]byte(val), &cached) == nil {
				return &cached, nil
			}
		} else if err != nil {
			e.logger.Warn("state cache probe failed", "key", key, "error", err)
		}
	}
	state, err := e.store.GetEntityState(ctx, t, entityID)
	if err != nil {
		return nil, err
	}
	if state == nil {
		return nil, fault.NotFound("no recorded state for %s %s", t, entityID)
	}
	e.cacheState(ctx, state)
	return state, nil
}

// History returns the entity's ordered transition history, oldest first.
func (e *Engine) History(ctx context.Context, t contracts.EntityType, entityID string, limit int) ([]*contracts.StateTransition, error) {
	if !HasMachine(t) {
		return nil, fault.InvalidInput("entity type %q is not state-machine driven", t)
	}
	return e.store.TransitionHistory(ctx, t, entityID, limit)
}

// currentState reads the validation input, cache first. Staleness is
// tolerable: the store's conditional write rejects any transition built
// on a stale read.
func (e *Engine) currentState(ctx context.Context, t contracts.EntityType, entityID string) (string, error) {
	key := cache.StateKey(string(t), entityID)
	if e.cache != nil {
		if val, ok, err := e.cache.Get(ctx, key); err == nil && ok {
			var cached contracts.EntityState
			if json.Unmarshal([]byte(val), &cached) == nil {
				return cached.State, nil
			}
		}
	}
	state, err := e.store.GetEntityState(ctx, t, entityID)
	if err != nil {
		return "", err
	}
	if state == nil {
		return initialState, nil
	}
	return state.State, nil
}

func (e *Engine) cacheState(ctx context.Context, state *contracts.EntityState) {
	if e.cache == nil {
		return
	}
	data, err := json.Marshal(state)
	if err != nil {
		return
	}
	key := cache.StateKey(string(state.EntityType), state.EntityID)
	if err := e.cache.Set(ctx, key, string(data), e.ttl); err != nil {
		e.logger.Warn("state cache population failed", "key", key, "error", err)
	}
}

func transitionType(from string) string {
	if from == initialState {
		return "create"
	}
	return "state_change"
}

func displayState(state string) string {
	if state == initialState {
		return "null"
	}
	return state
}
