package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/PabloGalante/brandlab/internal/domain"
)

type methodKey struct {
	item   domain.ItemRef
	method domain.ResearchMethod
}

// ResearchStore is an in-memory implementation of domain.ResearchStore.
type ResearchStore struct {
	mu      sync.Mutex
	records map[methodKey]domain.ResearchMethodRecord
}

func NewResearchStore() *ResearchStore {
	return &ResearchStore{
		records: make(map[methodKey]domain.ResearchMethodRecord),
	}
}

func (s *ResearchStore) PutMethodRecord(_ context.Context, rec domain.ResearchMethodRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records[methodKey{rec.Item, rec.Method}] = rec
	return nil
}

func (s *ResearchStore) ListMethodRecords(_ context.Context, ref domain.ItemRef) ([]domain.ResearchMethodRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.listLocked(ref), nil
}

func (s *ResearchStore) CompleteMethod(_ context.Context, ref domain.ItemRef, method domain.ResearchMethod, at domain.Timestamp) ([]domain.ResearchMethodRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := methodKey{ref, method}
	rec, ok := s.records[key]
	if !ok {
		rec = domain.ResearchMethodRecord{Item: ref, Method: method}
	}
	s.records[key] = rec.MarkCompleted(at)

	return s.listLocked(ref), nil
}

func (s *ResearchStore) listLocked(ref domain.ItemRef) []domain.ResearchMethodRecord {
	var out []domain.ResearchMethodRecord
	for k, rec := range s.records {
		if k.item == ref {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Method < out[j].Method })
	return out
}
