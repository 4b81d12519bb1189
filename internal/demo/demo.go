// Package demo holds the sample items loaded in local mode.
package demo

import (
	"context"
	"errors"
	"fmt"

	"github.com/PabloGalante/brandlab/internal/domain"
)

const Scope domain.ScopeID = "demo"

type ItemWriter interface {
	GetItem(ctx context.Context, ref domain.ItemRef) (*domain.Item, error)
	PutItem(ctx context.Context, item *domain.Item) error
}

type RecordWriter interface {
	PutMethodRecord(ctx context.Context, rec domain.ResearchMethodRecord) error
}

// Items returns the sample persona and brand assets.
func Items() []*domain.Item {
	return []*domain.Item{
		{
			ID:      "persona-ops-lead",
			ScopeID: Scope,
			Kind:    "persona",
			Name:    "Olivia, Operations Lead",
			Fields: map[string]any{
				"name":         "Olivia",
				"tagline":      "Keeps a 40-person logistics team on schedule",
				"demographics": "34, Rotterdam, mid-size freight forwarder",
				"goals":        []string{"Fewer manual handoffs", "Predictable weekly planning"},
				"frustrations": []string{"Spreadsheets that drift out of date"},
				"behaviors":    []string{"Checks dashboards before 8am"},
			},
		},
		{
			ID:      "asset-positioning",
			ScopeID: Scope,
			Kind:    "brand-asset",
			Name:    "Positioning statement",
			Fields: map[string]any{
				"category":    "positioning",
				"description": "How we describe the product to first-time buyers.",
				"content":     "The planning tool for teams that outgrew spreadsheets.",
			},
		},
		{
			ID:      "asset-golden-circle",
			ScopeID: Scope,
			Kind:    "brand-asset",
			Name:    "Golden circle",
			Fields: map[string]any{
				"category":    "golden-circle",
				"description": "Why, how and what of the company.",
			},
		},
	}
}

// Seed loads Items with a NOT_STARTED record for every method weights
// reports as applicable to the item's kind. Items already present are left
// alone so a persistent store keeps its progress across restarts.
func Seed(ctx context.Context, items ItemWriter, records RecordWriter, weights func(domain.ItemKind) domain.MethodWeights) error {
	for _, item := range Items() {
		ref := domain.ItemRef{Kind: item.Kind, ID: item.ID, ScopeID: item.ScopeID}
		_, err := items.GetItem(ctx, ref)
		if err == nil {
			continue
		}
		if !errors.Is(err, domain.ErrNotFound) {
			return fmt.Errorf("checking item %s: %w", item.ID, err)
		}
		if err := items.PutItem(ctx, item); err != nil {
			return fmt.Errorf("seeding item %s: %w", item.ID, err)
		}
		for method := range weights(item.Kind) {
			rec := domain.ResearchMethodRecord{Item: ref, Method: method, Status: domain.MethodNotStarted}
			if err := records.PutMethodRecord(ctx, rec); err != nil {
				return fmt.Errorf("seeding %s for %s: %w", method, item.ID, err)
			}
		}
	}
	return nil
}
