// Package itemtype maps item-kind strings to the configuration the
// exploration state machine needs to interview about an item.
package itemtype

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/PabloGalante/brandlab/internal/domain"
)

// Config is everything that varies between item kinds.
type Config interface {
	Kind() domain.ItemKind
	Label() string
	// FetchItem returns a nil item and nil error when the item does not exist
	// in the scope.
	FetchItem(ctx context.Context, itemID domain.ItemID, scopeID domain.ScopeID) (*domain.Item, error)
	// Dimensions is ordered and never empty. It may depend on the item.
	Dimensions(item *domain.Item) []domain.DimensionQuestion
	BuildItemContext(item *domain.Item) string
	BuildIntro(item *domain.Item) string
	GenerateInsights(ctx context.Context, item *domain.Item, session *domain.ExplorationSession, msgs []*domain.ExplorationMessage) (*domain.InsightReport, error)
}

// ResearchMethodUpdater is implemented by kinds that fold a finished
// exploration into the item's validation coverage.
type ResearchMethodUpdater interface {
	UpdateResearchMethod(ctx context.Context, itemID domain.ItemID, scopeID domain.ScopeID) (int, error)
}

type Registry struct {
	mu      sync.RWMutex
	configs map[domain.ItemKind]Config
}

func NewRegistry() *Registry {
	return &Registry{configs: make(map[domain.ItemKind]Config)}
}

// Register adds a kind. Registering the same kind twice is an error.
func (r *Registry) Register(c Config) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.configs[c.Kind()]; exists {
		return fmt.Errorf("item kind %q already registered", c.Kind())
	}
	r.configs[c.Kind()] = c
	return nil
}

// Lookup returns the config for kind or a client error.
func (r *Registry) Lookup(kind domain.ItemKind) (Config, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.configs[kind]
	if !ok {
		return nil, domain.ClientError("lookup item kind", fmt.Errorf("%q: %w", kind, domain.ErrUnknownItemKind))
	}
	return c, nil
}

// Kinds returns every registered config sorted by kind.
func (r *Registry) Kinds() []Config {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Config, 0, len(r.configs))
	for _, c := range r.configs {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Kind() < out[j].Kind() })
	return out
}

// Weights returns the research method weights of kind, or nil.
func (r *Registry) Weights(kind domain.ItemKind) domain.MethodWeights {
	c, err := r.Lookup(kind)
	if err != nil {
		return nil
	}
	if w, ok := c.(interface{ MethodWeights() domain.MethodWeights }); ok {
		return w.MethodWeights()
	}
	return nil
}

// Fields returns the field mapping of a config, if it exposes one.
func Fields(c Config) []domain.FieldSpec {
	if f, ok := c.(interface{ FieldMapping() []domain.FieldSpec }); ok {
		return f.FieldMapping()
	}
	return nil
}

// Deps are the collaborators of the built-in kinds.
type Deps struct {
	Items       domain.ItemStore
	Synthesizer Synthesizer
	// Research is optional; without it kinds have no validation hook.
	Research MethodCompleter
}

// NewDefaultRegistry registers the embedded kinds.
func NewDefaultRegistry(deps Deps) (*Registry, error) {
	defs, err := LoadDefinitions(builtinKinds, "kinds")
	if err != nil {
		return nil, err
	}
	r := NewRegistry()
	for _, def := range defs {
		if err := r.RegisterDefinition(def, deps); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// RegisterDefinition builds a config from def and registers it.
func (r *Registry) RegisterDefinition(def *Definition, deps Deps) error {
	kc, err := newKindConfig(def, deps.Items, deps.Synthesizer)
	if err != nil {
		return err
	}
	var c Config = kc
	if _, weighted := def.Weights[domain.MethodAIExploration]; weighted && deps.Research != nil {
		c = &researchKind{kindConfig: kc, completer: deps.Research}
	}
	return r.Register(c)
}
