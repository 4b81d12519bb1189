package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/PabloGalante/brandlab/internal/domain"
)

// ItemStore keeps items in memory, keyed by kind, id and scope.
type ItemStore struct {
	mu    sync.RWMutex
	items map[domain.ItemRef]*domain.Item
	now   func() time.Time
}

func NewItemStore() *ItemStore {
	return &ItemStore{
		items: make(map[domain.ItemRef]*domain.Item),
		now:   time.Now,
	}
}

// PutItem inserts or replaces an item.
func (s *ItemStore) PutItem(_ context.Context, item *domain.Item) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ref := domain.ItemRef{Kind: item.Kind, ID: item.ID, ScopeID: item.ScopeID}
	s.items[ref] = cloneItem(item)
	return nil
}

func (s *ItemStore) GetItem(_ context.Context, ref domain.ItemRef) (*domain.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	item, ok := s.items[ref]
	if !ok {
		return nil, fmt.Errorf("item %s/%s: %w", ref.Kind, ref.ID, domain.ErrNotFound)
	}
	return cloneItem(item), nil
}

func (s *ItemStore) SetValidationCoverage(_ context.Context, ref domain.ItemRef, coverage int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, ok := s.items[ref]
	if !ok {
		return fmt.Errorf("item %s/%s: %w", ref.Kind, ref.ID, domain.ErrNotFound)
	}
	item.ValidationCoverage = coverage
	item.UpdatedAt = s.now().UTC()
	return nil
}

func cloneItem(item *domain.Item) *domain.Item {
	c := *item
	c.Fields = make(map[string]any, len(item.Fields))
	for k, v := range item.Fields {
		if list, ok := v.([]string); ok {
			v = append([]string(nil), list...)
		}
		c.Fields[k] = v
	}
	return &c
}
