package audit

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neurorail/core/pkg/contracts"
	"github.com/neurorail/core/pkg/fault"
	"github.com/neurorail/core/pkg/store"
)

type capturingPublisher struct {
	mu       sync.Mutex
	payloads []any
	fail     bool
}

func (p *capturingPublisher) Publish(_ context.Context, payload any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail {
		return errors.New("channel down")
	}
	p.payloads = append(p.payloads, payload)
	return nil
}

func newTestLog(t *testing.T, pub *capturingPublisher) *Log {
	t.Helper()
	dsn := "file:" + filepath.Join(t.TempDir(), "test.db") + "?_pragma=busy_timeout(5000)"
	s, err := store.Open(dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	require.NoError(t, s.Migrate(context.Background()))
	return NewLog(s, pub, time.Hour)
}

func TestRecordFillsDefaultsAndForwards(t *testing.T) {
	pub := &capturingPublisher{}
	l := newTestLog(t, pub)

	e, err := l.Record(context.Background(), &contracts.AuditEvent{
		EventType: "execution_start",
		MissionID: "m_1",
		Message:   "started",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, e.AuditID)
	assert.False(t, e.Timestamp.IsZero())
	assert.Equal(t, contracts.SeverityInfo, e.Severity)
	assert.Len(t, pub.payloads, 1)
}

func TestRecordSurvivesFanOutFailure(t *testing.T) {
	pub := &capturingPublisher{fail: true}
	l := newTestLog(t, pub)

	e, err := l.Record(context.Background(), &contracts.AuditEvent{
		EventType: "execution_failed",
		Severity:  contracts.SeverityError,
		Message:   "boom",
	})
	require.NoError(t, err)

	// The durable row exists despite the dead channel.
	got, total, err := l.Query(context.Background(), contracts.AuditFilter{EventType: "execution_failed"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, got, 1)
	assert.Equal(t, e.AuditID, got[0].AuditID)
}

func TestRecordRejectsMissingEventType(t *testing.T) {
	l := newTestLog(t, &capturingPublisher{})

	_, err := l.Record(context.Background(), &contracts.AuditEvent{Message: "no type"})
	assert.True(t, fault.IsCode(err, fault.CodeInvalidInput))
}

func TestRecordRejectsUnknownSeverity(t *testing.T) {
	l := newTestLog(t, &capturingPublisher{})

	_, err := l.Record(context.Background(), &contracts.AuditEvent{
		EventType: "x", Severity: contracts.Severity("fatal"),
	})
	assert.True(t, fault.IsCode(err, fault.CodeInvalidInput))
}

func TestQueryAfterNRecordsReturnsExactlyN(t *testing.T) {
	l := newTestLog(t, &capturingPublisher{})
	ctx := context.Background()

	severities := []contracts.Severity{
		contracts.SeverityDebug, contracts.SeverityInfo, contracts.SeverityWarning,
		contracts.SeverityError, contracts.SeverityCritical,
	}
	for _, sev := range severities {
		_, err := l.Record(ctx, &contracts.AuditEvent{
			EventType: "distinct", Severity: sev, Message: string(sev),
		})
		require.NoError(t, err)
	}

	events, total, err := l.Query(ctx, contracts.AuditFilter{EventType: "distinct"})
	require.NoError(t, err)
	assert.Equal(t, int64(len(severities)), total)
	assert.Len(t, events, len(severities))

	stats, err := l.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(len(severities)), stats.TotalEvents)
}
