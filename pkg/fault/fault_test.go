package fault

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInvalidTransitionCarriesDiagnostics(t *testing.T) {
	err := InvalidTransition("mission", "m_1", "COMPLETED", "EXECUTING")

	assert.Equal(t, CodeInvalidTransition, err.Code)
	assert.Equal(t, CategorySystem, err.Category)
	assert.False(t, err.Retriable)
	assert.Equal(t, "COMPLETED", err.Details["current_state"])
	assert.Equal(t, "EXECUTING", err.Details["attempted_state"])
}

func TestFromErrorUnwrapsChain(t *testing.T) {
	base := NotFound("mission %s not found", "m_1")
	wrapped := fmt.Errorf("loading chain: %w", base)

	got := FromError(wrapped)
	require.Equal(t, CodeNotFound, got.Code)
	assert.True(t, IsCode(wrapped, CodeNotFound))
}

func TestFromErrorForeignErrorBecomesInternal(t *testing.T) {
	got := FromError(errors.New("boom"))
	assert.Equal(t, CodeInternal, got.Code)
	assert.Equal(t, CategorySystem, got.Category)
	assert.ErrorContains(t, got, "boom")
}

func TestStoreUnavailableIsRetriableMechanical(t *testing.T) {
	err := StoreUnavailable(errors.New("connection refused"))
	assert.Equal(t, CategoryMechanical, err.Category)
	assert.True(t, err.Retriable)
}
