package memory_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PabloGalante/brandlab/internal/adapters/storage/memory"
	"github.com/PabloGalante/brandlab/internal/domain"
)

func newSession(id string, ref domain.ItemRef) *domain.ExplorationSession {
	return &domain.ExplorationSession{
		ID:        domain.SessionID(id),
		ItemID:    ref.ID,
		ItemType:  ref.Kind,
		ScopeID:   ref.ScopeID,
		Status:    domain.StatusInProgress,
		CreatedAt: time.Now(),
	}
}

func msg(sessionID string, idx int, typ domain.MessageType) *domain.ExplorationMessage {
	return &domain.ExplorationMessage{
		ID:         domain.MessageID(sessionID + "-" + string(rune('a'+idx))),
		SessionID:  domain.SessionID(sessionID),
		Type:       typ,
		Content:    "text",
		OrderIndex: idx,
	}
}

func TestExplorationStoreTurns(t *testing.T) {
	ctx := context.Background()
	store := memory.NewExplorationStore()
	ref := domain.ItemRef{Kind: "persona", ID: "p1", ScopeID: "s1"}
	sess := newSession("s-1", ref)

	require.NoError(t, store.CreateSession(ctx, sess, []*domain.ExplorationMessage{
		msg("s-1", 0, domain.MessageSystemIntro),
		msg("s-1", 1, domain.MessageAIQuestion),
	}))

	sess.AnsweredQuestions = 1
	require.NoError(t, store.SaveTurn(ctx, sess, []*domain.ExplorationMessage{
		msg("s-1", 2, domain.MessageUserAnswer),
		msg("s-1", 3, domain.MessageAIFeedback),
	}))

	msgs, err := store.ListMessages(ctx, sess.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 4)
	for i, m := range msgs {
		assert.Equal(t, i, m.OrderIndex)
	}

	got, err := store.GetSession(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.AnsweredQuestions)
}

func TestExplorationStoreRejectsOrderGaps(t *testing.T) {
	ctx := context.Background()
	store := memory.NewExplorationStore()
	ref := domain.ItemRef{Kind: "persona", ID: "p1", ScopeID: "s1"}
	sess := newSession("s-1", ref)
	require.NoError(t, store.CreateSession(ctx, sess, []*domain.ExplorationMessage{msg("s-1", 0, domain.MessageSystemIntro)}))

	sess.AnsweredQuestions = 5
	err := store.SaveTurn(ctx, sess, []*domain.ExplorationMessage{
		msg("s-1", 1, domain.MessageUserAnswer),
		msg("s-1", 3, domain.MessageAIFeedback),
	})
	require.ErrorIs(t, err, domain.ErrOrderConflict)

	// nothing from the failed turn landed
	msgs, err := store.ListMessages(ctx, sess.ID)
	require.NoError(t, err)
	assert.Len(t, msgs, 1)
	got, err := store.GetSession(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, got.AnsweredQuestions)
}

func TestExplorationStoreFindActiveSession(t *testing.T) {
	ctx := context.Background()
	store := memory.NewExplorationStore()
	ref := domain.ItemRef{Kind: "persona", ID: "p1", ScopeID: "s1"}

	_, err := store.FindActiveSession(ctx, ref)
	require.True(t, errors.Is(err, domain.ErrNotFound))

	locked := newSession("old", ref)
	locked.Locked = true
	require.NoError(t, store.CreateSession(ctx, locked, nil))
	_, err = store.FindActiveSession(ctx, ref)
	require.ErrorIs(t, err, domain.ErrNotFound)

	require.NoError(t, store.CreateSession(ctx, newSession("new", ref), nil))
	got, err := store.FindActiveSession(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, domain.SessionID("new"), got.ID)

	other := ref
	other.ScopeID = "s2"
	_, err = store.FindActiveSession(ctx, other)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestExplorationStoreReturnsCopies(t *testing.T) {
	ctx := context.Background()
	store := memory.NewExplorationStore()
	sess := newSession("s-1", domain.ItemRef{Kind: "persona", ID: "p1"})
	require.NoError(t, store.CreateSession(ctx, sess, nil))

	sess.Status = domain.StatusError
	got, err := store.GetSession(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusInProgress, got.Status)
}

func TestItemStoreNotFound(t *testing.T) {
	_, err := memory.NewItemStore().GetItem(context.Background(), domain.ItemRef{Kind: "persona", ID: "x"})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
