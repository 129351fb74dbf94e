package telemetry

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/neurorail/core/pkg/contracts"
	"github.com/neurorail/core/pkg/lifecycle"
	"github.com/neurorail/core/pkg/store"
)

// Snapshot is a point-in-time view of the system: entity counts, active
// executions, error breakdown, and the raw in-process metric values.
type Snapshot struct {
	Timestamp    time.Time                                 `json:"timestamp"`
	EntityCounts map[contracts.EntityType]int64            `json:"entity_counts"`
	StateCounts  map[contracts.EntityType]map[string]int64 `json:"state_counts"`
	Active       ActiveExecutions                          `json:"active_executions"`
	ErrorCounts  map[string]int64                          `json:"error_counts_by_category"`
	Raw          RawMetrics                                `json:"raw_metrics"`
}

// ActiveExecutions counts work currently in flight, derived from the
// denormalized current-state records.
type ActiveExecutions struct {
	RunningAttempts int64 `json:"running_attempts"`
	QueuedJobs      int64 `json:"queued_jobs"`
}

// RawMetrics mirrors the instrument values accumulated since process
// start, for callers that want the numbers without scraping /metrics.
type RawMetrics struct {
	ExecutionsSucceeded int64 `json:"executions_succeeded"`
	ExecutionsFailed    int64 `json:"executions_failed"`
	ActiveMissions      int64 `json:"active_missions"`
	ActiveJobs          int64 `json:"active_jobs"`
	ActiveAttempts      int64 `json:"active_attempts"`
	TotalExecutionMs    int64 `json:"total_execution_ms"`
}

// Aggregator owns the metric instruments and answers snapshot reads.
// Instrument updates are in-process only; snapshots are computed from a
// handful of batched store queries so the cost stays bounded no matter
// how many series exist.
type Aggregator struct {
	store  *store.Store
	window time.Duration
	logger *slog.Logger

	attemptsTotal metric.Int64Counter
	execDuration  metric.Float64Histogram
	activeGauges  map[contracts.EntityType]metric.Int64UpDownCounter

	succeeded atomic.Int64
	failed    atomic.Int64
	totalMs   atomic.Int64
	active    map[contracts.EntityType]*atomic.Int64
}

// NewAggregator registers the instruments with meter. window bounds the
// error-rate breakdown in snapshots.
func NewAggregator(meter metric.Meter, s *store.Store, window time.Duration) (*Aggregator, error) {
	a := &Aggregator{
		store:        s,
		window:       window,
		logger:       slog.Default().With("component", "telemetry"),
		activeGauges: make(map[contracts.EntityType]metric.Int64UpDownCounter),
		active: map[contracts.EntityType]*atomic.Int64{
			contracts.EntityMission: {},
			contracts.EntityJob:     {},
			contracts.EntityAttempt: {},
		},
	}
	var err error

	a.attemptsTotal, err = meter.Int64Counter(
		"nrcore_attempts_total",
		metric.WithDescription("Completed execution attempts by terminal status"),
		metric.WithUnit("{attempt}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create attempts_total: %w", err)
	}

	a.execDuration, err = meter.Float64Histogram(
		"nrcore_execution_duration_seconds",
		metric.WithDescription("Attempt execution duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("create execution_duration: %w", err)
	}

	for _, t := range []contracts.EntityType{contracts.EntityMission, contracts.EntityJob, contracts.EntityAttempt} {
		gauge, err := meter.Int64UpDownCounter(
			fmt.Sprintf("nrcore_active_%ss", t),
			metric.WithDescription(fmt.Sprintf("Entities of type %s not yet in a terminal state", t)),
			metric.WithUnit(fmt.Sprintf("{%s}", t)),
		)
		if err != nil {
			return nil, fmt.Errorf("create active_%ss: %w", t, err)
		}
		a.activeGauges[t] = gauge
	}
	return a, nil
}

// RecordExecution updates the execution series. errorType and
// errorCategory are empty on success.
func (a *Aggregator) RecordExecution(ctx context.Context, entityID string, success bool, durationMs float64, errorType, errorCategory string) {
	status := "succeeded"
	if success {
		a.succeeded.Add(1)
	} else {
		status = "failed"
		a.failed.Add(1)
	}
	a.totalMs.Add(int64(durationMs))

	attrs := []attribute.KeyValue{
		attribute.String("entity_type", string(contracts.EntityAttempt)),
		attribute.String("status", status),
	}
	if errorCategory != "" {
		attrs = append(attrs, attribute.String("error_category", errorCategory))
	}
	if errorType != "" {
		attrs = append(attrs, attribute.String("error_type", errorType))
	}
	a.attemptsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	a.execDuration.Record(ctx, durationMs/1000.0, metric.WithAttributes(
		attribute.String("status", status),
	))
	a.logger.Debug("execution recorded",
		"entity_id", entityID, "status", status, "duration_ms", durationMs)
}

// OnTransition maintains the active-entity gauges. Entering the machine
// raises the gauge, reaching a terminal state lowers it.
func (a *Aggregator) OnTransition(t contracts.EntityType, fromState, toState string) {
	counter, ok := a.active[t]
	if !ok {
		return
	}
	ctx := context.Background()
	if fromState == "" {
		counter.Add(1)
		a.activeGauges[t].Add(ctx, 1)
	}
	if lifecycle.IsTerminal(t, toState) {
		counter.Add(-1)
		a.activeGauges[t].Add(ctx, -1)
	}
}

// ComputeSnapshot assembles one consistent view from batched store reads
// plus the in-process mirrors.
func (a *Aggregator) ComputeSnapshot(ctx context.Context) (*Snapshot, error) {
	entityCounts, err := a.store.CountEntities(ctx)
	if err != nil {
		return nil, err
	}
	stateCounts, err := a.store.StateCounts(ctx)
	if err != nil {
		return nil, err
	}
	errorCounts, err := a.store.ErrorCountsByCategory(ctx, a.window)
	if err != nil {
		return nil, err
	}

	return &Snapshot{
		Timestamp:    time.Now().UTC(),
		EntityCounts: entityCounts,
		StateCounts:  stateCounts,
		Active: ActiveExecutions{
			RunningAttempts: stateCounts[contracts.EntityAttempt][lifecycle.AttemptRunning],
			QueuedJobs:      stateCounts[contracts.EntityJob][lifecycle.JobQueued],
		},
		ErrorCounts: errorCounts,
		Raw: RawMetrics{
			ExecutionsSucceeded: a.succeeded.Load(),
			ExecutionsFailed:    a.failed.Load(),
			ActiveMissions:      a.active[contracts.EntityMission].Load(),
			ActiveJobs:          a.active[contracts.EntityJob].Load(),
			ActiveAttempts:      a.active[contracts.EntityAttempt].Load(),
			TotalExecutionMs:    a.totalMs.Load(),
		},
	}, nil
}
