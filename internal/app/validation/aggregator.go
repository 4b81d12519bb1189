package validation

import (
	"context"
	"fmt"
	"time"

	"github.com/PabloGalante/brandlab/internal/domain"
	"github.com/PabloGalante/brandlab/internal/keylock"
	"github.com/PabloGalante/brandlab/internal/observability"
)

// Aggregator records method completions and keeps the cached coverage on
// the item in step with the persisted method records.
type Aggregator struct {
	research domain.ResearchStore
	items    domain.ItemStore
	now      func() time.Time
	locks    *keylock.Map
}

func NewAggregator(research domain.ResearchStore, items domain.ItemStore) *Aggregator {
	return &Aggregator{
		research: research,
		items:    items,
		now:      time.Now,
		locks:    keylock.New(),
	}
}

// CompleteMethod marks method COMPLETED for the item, recomputes coverage
// from the records read back in the same store transaction and writes the
// result once. Completing an already completed method returns the same value.
func (a *Aggregator) CompleteMethod(ctx context.Context, ref domain.ItemRef, method domain.ResearchMethod, weights domain.MethodWeights) (int, error) {
	release, err := a.locks.Acquire(ctx, ref.Key())
	if err != nil {
		return 0, err
	}
	defer release()

	log := observability.LoggerFromContext(ctx).With(
		"item_id", ref.ID,
		"item_type", ref.Kind,
		"method", method,
	)

	records, err := a.research.CompleteMethod(ctx, ref, method, a.now().UTC())
	if err != nil {
		log.Error("failed to complete research method", "error", err)
		return 0, domain.PersistenceError("complete research method", err)
	}

	coverage := Coverage(records, weights)
	if err := a.items.SetValidationCoverage(ctx, ref, coverage); err != nil {
		log.Error("failed to store coverage", "error", err)
		return 0, domain.PersistenceError("store coverage", err)
	}

	log.Info("research method completed", "coverage", coverage, "records", len(records))
	return coverage, nil
}

// Recompute rebuilds the cached coverage from the stored records.
func (a *Aggregator) Recompute(ctx context.Context, ref domain.ItemRef, weights domain.MethodWeights) (int, error) {
	release, err := a.locks.Acquire(ctx, ref.Key())
	if err != nil {
		return 0, err
	}
	defer release()

	records, err := a.research.ListMethodRecords(ctx, ref)
	if err != nil {
		return 0, domain.PersistenceError("list research methods", err)
	}
	coverage := Coverage(records, weights)
	if err := a.items.SetValidationCoverage(ctx, ref, coverage); err != nil {
		return 0, domain.PersistenceError("store coverage", fmt.Errorf("item %s: %w", ref.ID, err))
	}
	return coverage, nil
}
