package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/PabloGalante/brandlab/internal/adapters/llm"
	firestorestore "github.com/PabloGalante/brandlab/internal/adapters/storage/firestore"
	memstore "github.com/PabloGalante/brandlab/internal/adapters/storage/memory"
	sqlitestore "github.com/PabloGalante/brandlab/internal/adapters/storage/sqlite"
	"github.com/PabloGalante/brandlab/internal/app/exploration"
	"github.com/PabloGalante/brandlab/internal/app/insight"
	"github.com/PabloGalante/brandlab/internal/app/itemtype"
	"github.com/PabloGalante/brandlab/internal/app/validation"
	"github.com/PabloGalante/brandlab/internal/config"
	"github.com/PabloGalante/brandlab/internal/demo"
	"github.com/PabloGalante/brandlab/internal/domain"
)

// stores groups the three persistence ports of one backend.
type stores struct {
	explorations domain.ExplorationStore
	items        interface {
		domain.ItemStore
		demo.ItemWriter
	}
	research domain.ResearchStore
	close    func() error
}

type application struct {
	svc      *exploration.Service
	registry *itemtype.Registry
	stores   stores
}

// Close waits for background reports and releases the stores.
func (a *application) Close() error {
	a.svc.Wait()
	return a.stores.close()
}

func openStores(ctx context.Context, cfg *config.Config, log *slog.Logger) (stores, error) {
	switch cfg.StorageBackend {
	case config.StorageFirestore:
		log.Info("using firestore storage", "project", cfg.GCPProjectID)
		st, err := firestorestore.NewStore(ctx, cfg.GCPProjectID)
		if err != nil {
			return stores{}, err
		}
		// 1 store, implements every port
		return stores{explorations: st, items: st, research: st, close: st.Close}, nil

	case config.StorageSQLite:
		log.Info("using sqlite storage", "path", cfg.SQLitePath)
		st, err := sqlitestore.Open(ctx, cfg.SQLitePath)
		if err != nil {
			return stores{}, err
		}
		return stores{explorations: st, items: st, research: st, close: st.Close}, nil

	default:
		log.Info("using in-memory storage")
		return stores{
			explorations: memstore.NewExplorationStore(),
			items:        memstore.NewItemStore(),
			research:     memstore.NewResearchStore(),
			close:        func() error { return nil },
		}, nil
	}
}

// newProviders builds the configured backend first so it becomes the
// gateway default. The mock is always available.
func newProviders(ctx context.Context, cfg *config.Config) ([]llm.Provider, error) {
	var primary llm.Provider
	switch cfg.LLMBackend {
	case string(domain.BackendGemini):
		g, err := llm.NewGeminiClient(ctx, llm.GeminiConfig{
			APIKey:    cfg.GeminiAPIKey,
			ProjectID: cfg.GCPProjectID,
			Location:  cfg.GCPLocation,
			Model:     cfg.ModelName,
		})
		if err != nil {
			return nil, err
		}
		primary = g
	case string(domain.BackendOpenAI):
		primary = llm.NewOpenAIClient(llm.OpenAIConfig{APIKey: cfg.OpenAIAPIKey, Model: cfg.ModelName, MaxRetries: 2})
	case string(domain.BackendAnthropic):
		primary = llm.NewAnthropicClient(llm.AnthropicConfig{APIKey: cfg.AnthropicAPIKey, Model: cfg.ModelName, MaxRetries: 2})
	case string(domain.BackendMock):
		return []llm.Provider{llm.NewMockLLM()}, nil
	default:
		return nil, fmt.Errorf("unsupported llm backend %q", cfg.LLMBackend)
	}
	return []llm.Provider{primary, llm.NewMockLLM()}, nil
}

func newApplication(ctx context.Context, cfg *config.Config, log *slog.Logger) (*application, error) {
	st, err := openStores(ctx, cfg, log)
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}

	providers, err := newProviders(ctx, cfg)
	if err != nil {
		_ = st.close()
		return nil, fmt.Errorf("init llm: %w", err)
	}
	gateway := llm.NewGateway(cfg.LLMTimeout, providers...)
	log.Info("llm gateway ready", "backend", gateway.DefaultBackend(), "model", cfg.ModelName)

	registry, err := itemtype.NewDefaultRegistry(itemtype.Deps{
		Items:       st.items,
		Synthesizer: insight.NewSynthesizer(gateway),
		Research:    validation.NewAggregator(st.research, st.items),
	})
	if err != nil {
		_ = st.close()
		return nil, fmt.Errorf("load item kinds: %w", err)
	}

	if cfg.SeedDemoData {
		if err := demo.Seed(ctx, st.items, st.research, registry.Weights); err != nil {
			_ = st.close()
			return nil, fmt.Errorf("seed demo data: %w", err)
		}
		log.Info("demo data seeded", "scope", demo.Scope, "items", len(demo.Items()))
	}

	svc := exploration.NewService(registry, st.explorations, gateway, exploration.Options{
		Backend:       gateway.DefaultBackend(),
		Model:         cfg.ModelName,
		ReportTimeout: cfg.ReportTimeout,
	})
	return &application{svc: svc, registry: registry, stores: st}, nil
}
