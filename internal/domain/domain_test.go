package domain

import (
	"errors"
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStageRanksAreUniqueAndOrdered(t *testing.T) {
	stages := Stages()
	require.Len(t, stages, 11)

	for i, s := range stages {
		assert.Equal(t, i, s.Rank(), "rank of %s", s)
		assert.True(t, s.Valid())
	}
	assert.Equal(t, StageNewJob, stages[0])
	assert.Equal(t, StageCancelled, stages[len(stages)-1])
}

func TestStageUnknownRank(t *testing.T) {
	assert.Equal(t, -1, Stage("SHIPPING").Rank())
	assert.False(t, Stage("").Valid())

	_, err := ParseStage("nope")
	assert.Error(t, err)

	s, err := ParseStage("PAID")
	require.NoError(t, err)
	assert.Equal(t, StagePaid, s)
}

func TestStageIsCostFinal(t *testing.T) {
	final := map[Stage]bool{
		StageCompleted: true,
		StageInvoiced:  true,
		StagePaid:      true,
	}
	for _, s := range Stages() {
		assert.Equal(t, final[s], s.IsCostFinal(), "stage %s", s)
	}
}

func TestParseEventType(t *testing.T) {
	for _, et := range EventTypes() {
		got, err := ParseEventType(string(et))
		require.NoError(t, err)
		assert.Equal(t, et, got)
	}

	_, err := ParseEventType("PROOF_LOST")
	assert.Error(t, err)
}

func TestClampConfidence(t *testing.T) {
	tests := []struct {
		in   float64
		want float64
	}{
		{-0.5, 0},
		{0, 0},
		{0.7, 0.7},
		{1, 1},
		{3, 1},
		{math.NaN(), 0},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%v", tt.in), func(t *testing.T) {
			assert.Equal(t, tt.want, ClampConfidence(tt.in))
		})
	}
}

func TestQualityChecksPending(t *testing.T) {
	q := QualityChecks{Artwork: QCPending, Data: QCComplete, Proof: QCPending, Vendor: QCNotRequired}
	assert.Equal(t, []string{"artwork", "proof"}, q.Pending())
	assert.Empty(t, QualityChecks{}.Pending())
}

func TestFieldErrorWrapsInvalidInput(t *testing.T) {
	err := fmt.Errorf("create event: %w", Missing("messageId"))

	assert.True(t, errors.Is(err, ErrInvalidInput))
	var fe *FieldError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, "messageId", fe.Field)
	assert.Equal(t, "messageId: is required", fe.Error())
}

func TestIsNotFound(t *testing.T) {
	assert.True(t, IsNotFound(fmt.Errorf("x: %w", ErrThreadNotFound)))
	assert.True(t, IsNotFound(ErrJobNotFound))
	assert.True(t, IsNotFound(ErrEventNotFound))
	assert.False(t, IsNotFound(ErrStageConflict))
}
