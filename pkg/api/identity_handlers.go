package api

import (
	"net/http"

	"github.com/neurorail/core/pkg/contracts"
	"github.com/neurorail/core/pkg/fault"
	"github.com/neurorail/core/pkg/identity"
)

func (s *Server) handleCreateMission(w http.ResponseWriter, r *http.Request) {
	var req identity.CreateMissionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeFault(w, err)
		return
	}
	m, err := s.registry.CreateMission(r.Context(), req)
	if err != nil {
		writeFault(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, m)
}

func (s *Server) handleCreatePlan(w http.ResponseWriter, r *http.Request) {
	var req identity.CreatePlanRequest
	if err := decodeJSON(r, &req); err != nil {
		writeFault(w, err)
		return
	}
	p, err := s.registry.CreatePlan(r.Context(), req)
	if err != nil {
		writeFault(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func (s *Server) handleCreateJob(w http.ResponseWriter, r *http.Request) {
	var req identity.CreateJobRequest
	if err := decodeJSON(r, &req); err != nil {
		writeFault(w, err)
		return
	}
	j, err := s.registry.CreateJob(r.Context(), req)
	if err != nil {
		writeFault(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, j)
}

func (s *Server) handleCreateAttempt(w http.ResponseWriter, r *http.Request) {
	var req identity.CreateAttemptRequest
	if err := decodeJSON(r, &req); err != nil {
		writeFault(w, err)
		return
	}
	a, err := s.registry.CreateAttempt(r.Context(), req)
	if err != nil {
		writeFault(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, a)
}

func (s *Server) handleCreateResource(w http.ResponseWriter, r *http.Request) {
	var req identity.CreateResourceRequest
	if err := decodeJSON(r, &req); err != nil {
		writeFault(w, err)
		return
	}
	res, err := s.registry.CreateResource(r.Context(), req)
	if err != nil {
		writeFault(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (s *Server) handleTraceChain(w http.ResponseWriter, r *http.Request) {
	t, id, err := pathEntity(r)
	if err != nil {
		writeFault(w, err)
		return
	}
	chain, err := s.registry.TraceChain(r.Context(), t, id)
	if err != nil {
		writeFault(w, err)
		return
	}
	writeJSON(w, http.StatusOK, chain)
}

func (s *Server) handleGetEntity(w http.ResponseWriter, r *http.Request) {
	t, id, err := pathEntity(r)
	if err != nil {
		writeFault(w, err)
		return
	}
	var (
		entity any
		getErr error
	)
	switch t {
	case contracts.EntityMission:
		entity, getErr = s.registry.GetMission(r.Context(), id)
	case contracts.EntityPlan:
		entity, getErr = s.registry.GetPlan(r.Context(), id)
	case contracts.EntityJob:
		entity, getErr = s.registry.GetJob(r.Context(), id)
	case contracts.EntityAttempt:
		entity, getErr = s.registry.GetAttempt(r.Context(), id)
	case contracts.EntityResource:
		entity, getErr = s.registry.GetResource(r.Context(), id)
	}
	if getErr != nil {
		writeFault(w, getErr)
		return
	}
	writeJSON(w, http.StatusOK, entity)
}

// pathEntity extracts and validates the {entity_type}/{entity_id} pair.
func pathEntity(r *http.Request) (contracts.EntityType, string, error) {
	t := contracts.EntityType(r.PathValue("entity_type"))
	if !t.Valid() {
		return "", "", fault.InvalidInput("unknown entity type %q", string(t))
	}
	id := r.PathValue("entity_id")
	if id == "" {
		return "", "", fault.InvalidInput("entity_id is required")
	}
	return t, id, nil
}
