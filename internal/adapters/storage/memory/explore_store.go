package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/PabloGalante/brandlab/internal/domain"
)

// ExplorationStore is an in-memory implementation of domain.ExplorationStore.
// It is NOT persistent and is only suitable for development / local mode.
type ExplorationStore struct {
	mu       sync.RWMutex
	sessions map[domain.SessionID]*domain.ExplorationSession
	messages map[domain.SessionID][]*domain.ExplorationMessage
	// order of creation, newest last
	created []domain.SessionID
}

func NewExplorationStore() *ExplorationStore {
	return &ExplorationStore{
		sessions: make(map[domain.SessionID]*domain.ExplorationSession),
		messages: make(map[domain.SessionID][]*domain.ExplorationMessage),
	}
}

func (s *ExplorationStore) CreateSession(_ context.Context, session *domain.ExplorationSession, msgs []*domain.ExplorationMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.sessions[session.ID]; exists {
		return fmt.Errorf("session %s already exists", session.ID)
	}
	if err := checkOrder(nil, msgs); err != nil {
		return err
	}

	s.sessions[session.ID] = session.Clone()
	s.messages[session.ID] = copyMessages(msgs)
	s.created = append(s.created, session.ID)
	return nil
}

func (s *ExplorationStore) SaveTurn(_ context.Context, session *domain.ExplorationSession, msgs []*domain.ExplorationMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.sessions[session.ID]; !exists {
		return fmt.Errorf("session %s: %w", session.ID, domain.ErrNotFound)
	}
	existing := s.messages[session.ID]
	if err := checkOrder(existing, msgs); err != nil {
		return err
	}

	s.sessions[session.ID] = session.Clone()
	s.messages[session.ID] = append(existing, copyMessages(msgs)...)
	return nil
}

func (s *ExplorationStore) UpdateSession(_ context.Context, session *domain.ExplorationSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.sessions[session.ID]; !exists {
		return fmt.Errorf("session %s: %w", session.ID, domain.ErrNotFound)
	}
	s.sessions[session.ID] = session.Clone()
	return nil
}

func (s *ExplorationStore) GetSession(_ context.Context, id domain.SessionID) (*domain.ExplorationSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[id]
	if !ok {
		return nil, fmt.Errorf("session %s: %w", id, domain.ErrNotFound)
	}
	return sess.Clone(), nil
}

func (s *ExplorationStore) FindActiveSession(_ context.Context, ref domain.ItemRef) (*domain.ExplorationSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for i := len(s.created) - 1; i >= 0; i-- {
		sess := s.sessions[s.created[i]]
		if sess.Locked {
			continue
		}
		if sess.ItemType == ref.Kind && sess.ItemID == ref.ID && sess.ScopeID == ref.ScopeID {
			return sess.Clone(), nil
		}
	}
	return nil, fmt.Errorf("active session for %s/%s: %w", ref.Kind, ref.ID, domain.ErrNotFound)
}

func (s *ExplorationStore) ListMessages(_ context.Context, sessionID domain.SessionID) ([]*domain.ExplorationMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.sessions[sessionID]; !ok {
		return nil, fmt.Errorf("session %s: %w", sessionID, domain.ErrNotFound)
	}
	return copyMessages(s.messages[sessionID]), nil
}

// checkOrder verifies msgs continue existing with contiguous order indexes.
func checkOrder(existing, msgs []*domain.ExplorationMessage) error {
	next := len(existing)
	for _, m := range msgs {
		if m.OrderIndex != next {
			return fmt.Errorf("message %s has order index %d, want %d: %w", m.ID, m.OrderIndex, next, domain.ErrOrderConflict)
		}
		next++
	}
	return nil
}

func copyMessages(msgs []*domain.ExplorationMessage) []*domain.ExplorationMessage {
	out := make([]*domain.ExplorationMessage, 0, len(msgs))
	for _, m := range msgs {
		c := *m
		if m.Metadata != nil {
			md := *m.Metadata
			c.Metadata = &md
		}
		out = append(out, &c)
	}
	return out
}
