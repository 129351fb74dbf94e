// Package executor wraps a unit of work with the attempt lifecycle,
// audit logging, and telemetry recording. The three concerns are invoked
// sequentially but independently: a failure in one never rolls back or
// hides the others, and an attempt is never left in RUNNING.
package executor

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/neurorail/core/pkg/audit"
	"github.com/neurorail/core/pkg/contracts"
	"github.com/neurorail/core/pkg/fault"
	"github.com/neurorail/core/pkg/lifecycle"
)

// UnitOfWork is the caller-supplied payload. It receives the job
// parameters and returns an opaque result. No timeout is enforced here;
// callers bound the work through ctx if they need to.
type UnitOfWork func(ctx context.Context, params map[string]any) (any, error)

// Resolver is the slice of the identity registry the wrapper needs to
// verify parent references.
type Resolver interface {
	Exists(ctx context.Context, t contracts.EntityType, id string) error
}

// Transitioner is the slice of the lifecycle engine the wrapper drives.
type Transitioner interface {
	Transition(ctx context.Context, t contracts.EntityType, entityID, target string, metadata map[string]any) (*contracts.StateTransition, error)
}

// Recorder is the slice of the telemetry aggregator the wrapper feeds.
type Recorder interface {
	RecordExecution(ctx context.Context, entityID string, success bool, durationMs float64, errorType, errorCategory string)
}

// Request describes one execution.
type Request struct {
	AttemptID     string         `json:"attempt_id"`
	MissionID     string         `json:"mission_id,omitempty"`
	JobID         string         `json:"job_id,omitempty"`
	ParentContext string         `json:"parent_context,omitempty"`
	JobParameters map[string]any `json:"job_parameters,omitempty"`
}

// Result is the outcome of a completed execution.
type Result struct {
	AttemptID  string  `json:"attempt_id"`
	State      string  `json:"state"`
	Output     any     `json:"output,omitempty"`
	DurationMs float64 `json:"duration_ms"`
}

// Wrapper orchestrates executions.
type Wrapper struct {
	resolver  Resolver
	lifecycle Transitioner
	audit     *audit.Log
	telemetry Recorder
	logger    *slog.Logger
}

// New creates a wrapper. telemetry may be nil.
func New(resolver Resolver, lc Transitioner, log *audit.Log, telemetry Recorder) *Wrapper {
	return &Wrapper{
		resolver:  resolver,
		lifecycle: lc,
		audit:     log,
		telemetry: telemetry,
		logger:    slog.Default().With("component", "executor"),
	}
}

// Execute runs work under the attempt named by req. The attempt must be
// in PENDING; it ends in SUCCEEDED or FAILED. On work failure the
// returned error carries the execution-failed code wrapping the work's
// own error.
func (w *Wrapper) Execute(ctx context.Context, req Request, work UnitOfWork) (*Result, error) {
	if req.AttemptID == "" {
		return nil, fault.InvalidInput("attempt_id is required")
	}
	if work == nil {
		return nil, fault.InvalidInput("unit of work is required")
	}

	if req.ParentContext != "" {
		t, err := entityTypeForID(req.ParentContext)
		if err != nil {
			return nil, err
		}
		if err := w.resolver.Exists(ctx, t, req.ParentContext); err != nil {
			return nil, err
		}
	}

	if _, err := w.lifecycle.Transition(ctx, contracts.EntityAttempt, req.AttemptID,
		lifecycle.AttemptRunning, map[string]any{"trigger": "execute"}); err != nil {
		return nil, err
	}

	w.recordAudit(ctx, req, "execution_start", "", contracts.SeverityInfo, "execution started", nil)

	started := time.Now()
	output, workErr := invoke(ctx, work, req.JobParameters)
	durationMs := float64(time.Since(started)) / float64(time.Millisecond)

	if workErr != nil {
		w.finishAttempt(ctx, req, lifecycle.AttemptFailed)
		fe := fault.FromError(workErr)
		w.recordAudit(ctx, req, "execution_failed", string(fe.Category), contracts.SeverityError, workErr.Error(), map[string]any{
			"error_type":     fmt.Sprintf("%T", workErr),
			"error_code":     fe.Code,
			"error_category": string(fe.Category),
			"duration_ms":    durationMs,
		})
		w.recordTelemetry(ctx, req.AttemptID, false, durationMs, fmt.Sprintf("%T", workErr), string(fe.Category))
		return nil, fault.New(fault.CodeExecutionFailed, fe.Category, fe.Retriable,
			"execution of attempt %s failed", req.AttemptID).WithCause(workErr)
	}

	w.finishAttempt(ctx, req, lifecycle.AttemptSucceeded)
	w.recordAudit(ctx, req, "execution_success", "", contracts.SeverityInfo, "execution succeeded", map[string]any{
		"duration_ms": durationMs,
	})
	w.recordTelemetry(ctx, req.AttemptID, true, durationMs, "", "")

	return &Result{
		AttemptID:  req.AttemptID,
		State:      lifecycle.AttemptSucceeded,
		Output:     output,
		DurationMs: durationMs,
	}, nil
}

// invoke shields the wrapper from a panicking unit of work so the
// attempt still reaches a terminal state.
func invoke(ctx context.Context, work UnitOfWork, params map[string]any) (output any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("unit of work panicked: %v", r)
		}
	}()
	return work(ctx, params)
}

// finishAttempt records the terminal state. The work's outcome is already
// determined at this point, so a transition failure is logged rather than
// allowed to replace it.
func (w *Wrapper) finishAttempt(ctx context.Context, req Request, target string) {
	if _, err := w.lifecycle.Transition(ctx, contracts.EntityAttempt, req.AttemptID, target, nil); err != nil {
		w.logger.Error("terminal transition failed",
			"attempt_id", req.AttemptID, "target", target, "error", err)
	}
}

// recordAudit writes one ledger event. category carries the fault
// category on failure events so the error-rate breakdown can group them;
// info events leave it empty.
func (w *Wrapper) recordAudit(ctx context.Context, req Request, eventType, category string, severity contracts.Severity, message string, details map[string]any) {
	if w.audit == nil {
		return
	}
	_, err := w.audit.Record(ctx, &contracts.AuditEvent{
		MissionID:     req.MissionID,
		JobID:         req.JobID,
		AttemptID:     req.AttemptID,
		EventType:     eventType,
		EventCategory: category,
		Severity:      severity,
		Message:       message,
		Details:       details,
	})
	if err != nil {
		w.logger.Warn("audit recording failed",
			"attempt_id", req.AttemptID, "event_type", eventType, "error", err)
	}
}

func (w *Wrapper) recordTelemetry(ctx context.Context, attemptID string, success bool, durationMs float64, errorType, errorCategory string) {
	if w.telemetry == nil {
		return
	}
	w.telemetry.RecordExecution(ctx, attemptID, success, durationMs, errorType, errorCategory)
}

func entityTypeForID(id string) (contracts.EntityType, error) {
	for _, t := range []contracts.EntityType{
		contracts.EntityMission, contracts.EntityPlan, contracts.EntityJob,
		contracts.EntityAttempt, contracts.EntityResource,
	} {
		if strings.HasPrefix(id, t.IDPrefix()) {
			return t, nil
		}
	}
	return "", fault.InvalidInput("id %q carries no known entity prefix", id)
}
