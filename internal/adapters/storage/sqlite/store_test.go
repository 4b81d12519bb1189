package sqlite

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PabloGalante/brandlab/internal/domain"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(context.Background(), filepath.Join(t.TempDir(), "brandlab.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

var ref = domain.ItemRef{Kind: "persona", ID: "p1", ScopeID: "s1"}

func testSession(id string) *domain.ExplorationSession {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return &domain.ExplorationSession{
		ID:             domain.SessionID(id),
		ItemID:         ref.ID,
		ItemType:       ref.Kind,
		ScopeID:        ref.ScopeID,
		Backend:        domain.BackendMock,
		ModelID:        "mock-1",
		Dimensions: []domain.DimensionQuestion{
			{Key: "demographics", Title: "Demographics", Question: "Who are they?"},
			{Key: "goals", Title: "Goals", Question: "What do they want?"},
			{Key: "frustrations", Title: "Frustrations", Question: "What gets in the way?"},
			{Key: "behaviors", Title: "Behaviors", Question: "How do they work?"},
		},
		Status:         domain.StatusInProgress,
		TotalQuestions: 4,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

func testMessage(sessionID string, idx int, typ domain.MessageType, md *domain.MessageMetadata) *domain.ExplorationMessage {
	return &domain.ExplorationMessage{
		ID:         domain.MessageID(fmt.Sprintf("%s-%d", sessionID, idx)),
		SessionID:  domain.SessionID(sessionID),
		Type:       typ,
		Content:    "content",
		OrderIndex: idx,
		Metadata:   md,
		CreatedAt:  time.Date(2026, 3, 1, 12, 0, idx, 0, time.UTC),
	}
}

func TestOpenIsRepeatable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "brandlab.db")
	first, err := Open(context.Background(), path)
	require.NoError(t, err)
	require.NoError(t, first.Close())

	second, err := Open(context.Background(), path)
	require.NoError(t, err)
	require.NoError(t, second.Close())

	_, err = Open(context.Background(), " ")
	assert.Error(t, err)
}

func TestSessionRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)
	sess := testSession("s-1")

	intro := testMessage("s-1", 0, domain.MessageSystemIntro, nil)
	question := testMessage("s-1", 1, domain.MessageAIQuestion, &domain.MessageMetadata{DimensionKey: "demographics"})
	require.NoError(t, store.CreateSession(ctx, sess, []*domain.ExplorationMessage{intro, question}))

	sess.AnsweredQuestions = 1
	sess.Progress = 25
	sess.CurrentDimensionIndex = 1
	require.NoError(t, store.SaveTurn(ctx, sess, []*domain.ExplorationMessage{
		testMessage("s-1", 2, domain.MessageUserAnswer, &domain.MessageMetadata{DimensionKey: "demographics"}),
		testMessage("s-1", 3, domain.MessageAIFeedback, &domain.MessageMetadata{DimensionKey: "demographics", Fallback: true}),
	}))

	got, err := store.GetSession(ctx, sess.ID)
	require.NoError(t, err)
	if diff := cmp.Diff(sess, got); diff != "" {
		t.Errorf("session mismatch (-want +got):\n%s", diff)
	}

	msgs, err := store.ListMessages(ctx, sess.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 4)
	if diff := cmp.Diff(question, msgs[1]); diff != "" {
		t.Errorf("message mismatch (-want +got):\n%s", diff)
	}
	assert.True(t, msgs[3].Metadata.Fallback)
	assert.Nil(t, msgs[0].Metadata)
}

func TestSaveTurnRejectsOrderConflicts(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)
	sess := testSession("s-1")
	require.NoError(t, store.CreateSession(ctx, sess, []*domain.ExplorationMessage{testMessage("s-1", 0, domain.MessageSystemIntro, nil)}))

	sess.AnsweredQuestions = 3
	err := store.SaveTurn(ctx, sess, []*domain.ExplorationMessage{testMessage("s-1", 0, domain.MessageUserAnswer, nil)})
	require.ErrorIs(t, err, domain.ErrOrderConflict)

	err = store.SaveTurn(ctx, sess, []*domain.ExplorationMessage{
		testMessage("s-1", 1, domain.MessageUserAnswer, nil),
		testMessage("s-1", 5, domain.MessageAIFeedback, nil),
	})
	require.ErrorIs(t, err, domain.ErrOrderConflict)

	// rolled back: neither messages nor counters changed
	msgs, err := store.ListMessages(ctx, sess.ID)
	require.NoError(t, err)
	assert.Len(t, msgs, 1)
	got, err := store.GetSession(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, got.AnsweredQuestions)
}

func TestReportAndLockPersist(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)
	sess := testSession("s-1")
	require.NoError(t, store.CreateSession(ctx, sess, nil))

	sess.Status = domain.StatusReportReady
	sess.Locked = true
	sess.Report = &domain.InsightReport{
		ExecutiveSummary:        "summary",
		Findings:                []domain.Finding{{Key: "goals", Title: "G", Description: "D"}},
		Recommendations:         []domain.Recommendation{{Number: 1, Title: "R", Priority: domain.PriorityHigh}},
		FieldSuggestions:        []domain.FieldSuggestion{{Field: "tagline", SuggestedValue: "new", Status: domain.SuggestionPending}},
		ResearchBoostPercentage: 15,
		CompletedAt:             time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC),
	}
	require.NoError(t, store.UpdateSession(ctx, sess))

	got, err := store.GetSession(ctx, sess.ID)
	require.NoError(t, err)
	if diff := cmp.Diff(sess.Report, got.Report); diff != "" {
		t.Errorf("report mismatch (-want +got):\n%s", diff)
	}
	assert.True(t, got.Locked)

	_, err = store.FindActiveSession(ctx, ref)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestFindActiveSessionNewestFirst(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	older := testSession("older")
	require.NoError(t, store.CreateSession(ctx, older, nil))
	newer := testSession("newer")
	newer.CreatedAt = older.CreatedAt.Add(time.Minute)
	require.NoError(t, store.CreateSession(ctx, newer, nil))

	got, err := store.FindActiveSession(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, domain.SessionID("newer"), got.ID)
}

func TestNotFound(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	_, err := store.GetSession(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = store.ListMessages(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.ErrorIs(t, store.UpdateSession(ctx, testSession("missing")), domain.ErrNotFound)
	_, err = store.GetItem(ctx, ref)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.ErrorIs(t, store.SetValidationCoverage(ctx, ref, 10), domain.ErrNotFound)
}

func TestItems(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	require.NoError(t, store.PutItem(ctx, &domain.Item{
		ID: ref.ID, ScopeID: ref.ScopeID, Kind: ref.Kind, Name: "Olivia",
		Fields: map[string]any{"tagline": "t", "goals": []string{"a", "b"}},
	}))
	require.NoError(t, store.SetValidationCoverage(ctx, ref, 40))

	item, err := store.GetItem(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, "Olivia", item.Name)
	assert.Equal(t, 40, item.ValidationCoverage)
	assert.Equal(t, "t", item.Fields["tagline"])
	assert.Equal(t, []any{"a", "b"}, item.Fields["goals"])
}

func TestCompleteMethod(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)
	for _, m := range []domain.ResearchMethod{domain.MethodAIExploration, domain.MethodWorkshop} {
		require.NoError(t, store.PutMethodRecord(ctx, domain.ResearchMethodRecord{Item: ref, Method: m, Status: domain.MethodNotStarted}))
	}

	first := time.Date(2026, 3, 3, 10, 0, 0, 0, time.UTC)
	recs, err := store.CompleteMethod(ctx, ref, domain.MethodAIExploration, first)
	require.NoError(t, err)
	require.Len(t, recs, 2)

	recs, err = store.CompleteMethod(ctx, ref, domain.MethodAIExploration, first.Add(time.Hour))
	require.NoError(t, err)

	stored, err := store.ListMethodRecords(ctx, ref)
	require.NoError(t, err)
	if diff := cmp.Diff(recs, stored); diff != "" {
		t.Errorf("records mismatch (-want +got):\n%s", diff)
	}
	ai := stored[0]
	assert.Equal(t, domain.MethodAIExploration, ai.Method)
	assert.Equal(t, domain.MethodCompleted, ai.Status)
	assert.Equal(t, 100, ai.Progress)
	assert.Equal(t, 1, ai.ArtifactsCount)
	require.NotNil(t, ai.CompletedAt)
	assert.True(t, first.Equal(*ai.CompletedAt))

	recs, err = store.CompleteMethod(ctx, ref, domain.MethodQuestionnaire, first)
	require.NoError(t, err)
	assert.Len(t, recs, 3)
}
