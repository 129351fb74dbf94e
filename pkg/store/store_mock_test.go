package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neurorail/core/pkg/contracts"
	"github.com/neurorail/core/pkg/fault"
)

func testTransition() *contracts.StateTransition {
	return &contracts.StateTransition{
		TransitionID: uuid.NewString(),
		Timestamp:    time.Now(),
		EntityType:   contracts.EntityMission,
		EntityID:     "m_1",
		ToState:      "PENDING",
	}
}

func TestGetMissionStoreUnavailable(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	mock.ExpectQuery("SELECT id, parent_mission_id").WillReturnError(errors.New("connection reset"))

	s := NewWithDB(db, "sqlite")
	_, err = s.GetMission(context.Background(), "m_1")
	assert.True(t, fault.IsCode(err, fault.CodeStoreUnavailable))
	assert.True(t, fault.FromError(err).Retriable)
}

func TestApplyTransitionRollsBackOnTransitionInsertFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO entity_states").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO state_transitions").WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	s := NewWithDB(db, "sqlite")
	tr := testTransition()
	err = s.ApplyTransition(context.Background(), tr)
	assert.True(t, fault.IsCode(err, fault.CodeStoreUnavailable))
	assert.NoError(t, mock.ExpectationsWereMet())
}
