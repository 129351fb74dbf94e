package api

import (
	"net/http"
	"strconv"

	"github.com/neurorail/core/pkg/contracts"
	"github.com/neurorail/core/pkg/fault"
)

type transitionRequest struct {
	EntityID string         `json:"entity_id"`
	Target   string         `json:"target"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

func (s *Server) handleTransition(w http.ResponseWriter, r *http.Request) {
	t := contracts.EntityType(r.PathValue("entity_type"))
	if !t.Valid() {
		writeFault(w, fault.InvalidInput("unknown entity type %q", string(t)))
		return
	}
	var req transitionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeFault(w, err)
		return
	}
	if req.EntityID == "" || req.Target == "" {
		writeFault(w, fault.InvalidInput("entity_id and target are required"))
		return
	}
	tr, err := s.lifecycle.Transition(r.Context(), t, req.EntityID, req.Target, req.Metadata)
	if err != nil {
		writeFault(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tr)
}

func (s *Server) handleCurrentState(w http.ResponseWriter, r *http.Request) {
	t, id, err := pathEntity(r)
	if err != nil {
		writeFault(w, err)
		return
	}
	state, err := s.lifecycle.CurrentState(r.Context(), t, id)
	if err != nil {
		writeFault(w, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	t, id, err := pathEntity(r)
	if err != nil {
		writeFault(w, err)
		return
	}
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil || limit < 0 {
			writeFault(w, fault.InvalidInput("limit must be a non-negative integer"))
			return
		}
	}
	history, err := s.lifecycle.History(r.Context(), t, id, limit)
	if err != nil {
		writeFault(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"entity_type": t,
		"entity_id":   id,
		"transitions": history,
	})
}
