package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/neurorail/core/pkg/contracts"
	"github.com/neurorail/core/pkg/fault"
)

func (s *Server) handleAuditLog(w http.ResponseWriter, r *http.Request) {
	var e contracts.AuditEvent
	if err := decodeJSON(r, &e); err != nil {
		writeFault(w, err)
		return
	}
	recorded, err := s.audit.Record(r.Context(), &e)
	if err != nil {
		writeFault(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, recorded)
}

func (s *Server) handleAuditEvents(w http.ResponseWriter, r *http.Request) {
	f, err := auditFilterFromQuery(r)
	if err != nil {
		writeFault(w, err)
		return
	}
	events, total, err := s.audit.Query(r.Context(), f)
	if err != nil {
		writeFault(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"events": events,
		"total":  total,
		"limit":  f.Limit,
		"offset": f.Offset,
	})
}

func (s *Server) handleAuditStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.audit.Stats(r.Context())
	if err != nil {
		writeFault(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func auditFilterFromQuery(r *http.Request) (contracts.AuditFilter, error) {
	q := r.URL.Query()
	f := contracts.AuditFilter{
		MissionID: q.Get("mission_id"),
		PlanID:    q.Get("plan_id"),
		JobID:     q.Get("job_id"),
		AttemptID: q.Get("attempt_id"),
		EventType: q.Get("event_type"),
		Category:  q.Get("category"),
	}
	if sev := q.Get("severity"); sev != "" {
		severity := contracts.Severity(sev)
		if !severity.Valid() {
			return f, fault.InvalidInput("unknown severity %q", sev)
		}
		f.Severity = severity
	}
	for _, param := range []struct {
		name string
		dest *time.Time
	}{
		{"since", &f.Since},
		{"until", &f.Until},
	} {
		if raw := q.Get(param.name); raw != "" {
			ts, err := time.Parse(time.RFC3339, raw)
			if err != nil {
				return f, fault.InvalidInput("%s must be RFC3339, got %q", param.name, raw)
			}
			*param.dest = ts
		}
	}
	for _, param := range []struct {
		name string
		dest *int
	}{
		{"limit", &f.Limit},
		{"offset", &f.Offset},
	} {
		if raw := q.Get(param.name); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n < 0 {
				return f, fault.InvalidInput("%s must be a non-negative integer", param.name)
			}
			*param.dest = n
		}
	}
	return f, nil
}
