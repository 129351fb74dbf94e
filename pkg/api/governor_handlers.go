package api

import (
	"net/http"
)

type decideRequest struct {
	JobType string         `json:"job_type"`
	Context map[string]any `json:"context,omitempty"`
}

func (s *Server) handleDecide(w http.ResponseWriter, r *http.Request) {
	var req decideRequest
	if err := decodeJSON(r, &req); err != nil {
		writeFault(w, err)
		return
	}
	decision, err := s.governor.Decide(r.Context(), req.JobType, req.Context)
	if err != nil {
		writeFault(w, err)
		return
	}
	writeJSON(w, http.StatusOK, decision)
}

func (s *Server) handleRules(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"rules": s.governor.Rules(),
	})
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	snap, err := s.telemetry.ComputeSnapshot(r.Context())
	if err != nil {
		writeFault(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}
