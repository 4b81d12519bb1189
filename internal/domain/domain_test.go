package domain

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to SessionStatus
		want     bool
	}{
		{StatusNotStarted, StatusInProgress, true},
		{StatusInProgress, StatusCompleted, true},
		{StatusCompleted, StatusReportGenerating, true},
		{StatusReportGenerating, StatusReportReady, true},
		{StatusReportReady, StatusReportGenerating, true},
		{StatusError, StatusReportGenerating, true},
		{StatusInProgress, StatusError, true},
		{StatusReportGenerating, StatusError, true},
		{StatusError, StatusError, false},
		{StatusNotStarted, StatusError, true},
		{StatusCompleted, StatusError, true},
		{StatusReportReady, StatusError, false},
		{StatusReportGenerating, StatusReportGenerating, false},
		{StatusInProgress, StatusReportReady, false},
		{StatusNotStarted, StatusCompleted, false},
		{StatusCompleted, StatusInProgress, false},
		{StatusReportReady, StatusCompleted, false},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%s->%s", tt.from, tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, CanTransition(tt.from, tt.to))
		})
	}
}

func TestComputeProgress(t *testing.T) {
	assert.Equal(t, 0, ComputeProgress(0, 4))
	assert.Equal(t, 25, ComputeProgress(1, 4))
	assert.Equal(t, 33, ComputeProgress(1, 3))
	assert.Equal(t, 67, ComputeProgress(2, 3))
	assert.Equal(t, 100, ComputeProgress(4, 4))
	assert.Equal(t, 150, ComputeProgress(6, 4))
	assert.Equal(t, 0, ComputeProgress(3, 0))
}

func TestMarkCompletedIsIdempotent(t *testing.T) {
	first := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	later := first.Add(time.Hour)

	rec := ResearchMethodRecord{Method: MethodAIExploration, Status: MethodInProgress, Progress: 40}
	once := rec.MarkCompleted(first)
	twice := once.MarkCompleted(later)

	require.NotNil(t, twice.CompletedAt)
	assert.Equal(t, first, *twice.CompletedAt)
	assert.Equal(t, MethodCompleted, twice.Status)
	assert.Equal(t, 100, twice.Progress)
	assert.Equal(t, 1, twice.ArtifactsCount)
}

func TestKindOf(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", NotFoundError("start", ErrItemNotFound))
	assert.Equal(t, KindNotFound, KindOf(err))
	assert.True(t, KindOf(err).IsClient())
	assert.True(t, errors.Is(err, ErrItemNotFound))

	assert.Equal(t, KindUnknown, KindOf(errors.New("plain")))
	assert.False(t, KindPersistence.IsClient())
	assert.Nil(t, ClientError("noop", nil))
}

func TestCountAnswers(t *testing.T) {
	msgs := []*ExplorationMessage{
		{Type: MessageSystemIntro},
		{Type: MessageAIQuestion},
		{Type: MessageUserAnswer},
		{Type: MessageAIFeedback},
		{Type: MessageUserAnswer},
	}
	assert.Equal(t, 2, CountAnswers(msgs))
}
