package itemtype

import (
	"bytes"
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"strings"
	"text/template"

	"go.yaml.in/yaml/v3"

	"github.com/PabloGalante/brandlab/internal/app/insight"
	"github.com/PabloGalante/brandlab/internal/domain"
)

//go:embed kinds/*.yaml
var builtinKinds embed.FS

// Definition is the YAML description of an item kind.
type Definition struct {
	Kind          domain.ItemKind            `yaml:"kind"`
	Label         string                     `yaml:"label"`
	ResearchBoost int                        `yaml:"researchBoost"`
	Intro         string                     `yaml:"intro"`
	Weights       domain.MethodWeights       `yaml:"weights"`
	Fields        []domain.FieldSpec         `yaml:"fields"`
	Dimensions    []domain.DimensionQuestion `yaml:"dimensions"`

	// VariantField names the item field whose value selects an alternative
	// dimension set from Variants.
	VariantField string                                `yaml:"variantField"`
	Variants     map[string][]domain.DimensionQuestion `yaml:"variants"`
}

func (d *Definition) validate() error {
	if d.Kind == "" {
		return errors.New("kind is required")
	}
	if len(d.Dimensions) == 0 {
		return fmt.Errorf("kind %s: at least one dimension is required", d.Kind)
	}
	for name, dims := range d.Variants {
		if len(dims) == 0 {
			return fmt.Errorf("kind %s: variant %q has no dimensions", d.Kind, name)
		}
	}
	if d.Label == "" {
		d.Label = string(d.Kind)
	}
	return nil
}

// ParseDefinition decodes one kind definition.
func ParseDefinition(data []byte) (*Definition, error) {
	var def Definition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("parsing kind definition: %w", err)
	}
	if err := def.validate(); err != nil {
		return nil, err
	}
	return &def, nil
}

// LoadDefinitions reads every *.yaml file under dir of fsys, sorted by name.
func LoadDefinitions(fsys fs.FS, dir string) ([]*Definition, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("reading kind definitions: %w", err)
	}
	var defs []*Definition
	for _, e := range entries {
		if e.IsDir() || path.Ext(e.Name()) != ".yaml" {
			continue
		}
		data, err := fs.ReadFile(fsys, path.Join(dir, e.Name()))
		if err != nil {
			return nil, err
		}
		def, err := ParseDefinition(data)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", e.Name(), err)
		}
		defs = append(defs, def)
	}
	return defs, nil
}

// Synthesizer produces the insight report for a session.
type Synthesizer interface {
	Synthesize(ctx context.Context, in insight.Input) (*domain.InsightReport, error)
}

// MethodCompleter records a completed research method and returns coverage.
type MethodCompleter interface {
	CompleteMethod(ctx context.Context, ref domain.ItemRef, method domain.ResearchMethod, weights domain.MethodWeights) (int, error)
}

// kindConfig is a Config driven entirely by a Definition.
type kindConfig struct {
	def   *Definition
	intro *template.Template
	items domain.ItemStore
	synth Synthesizer
}

func newKindConfig(def *Definition, items domain.ItemStore, synth Synthesizer) (*kindConfig, error) {
	intro, err := template.New(string(def.Kind)).Parse(def.Intro)
	if err != nil {
		return nil, fmt.Errorf("kind %s: parsing intro: %w", def.Kind, err)
	}
	return &kindConfig{def: def, intro: intro, items: items, synth: synth}, nil
}

func (k *kindConfig) Kind() domain.ItemKind { return k.def.Kind }

func (k *kindConfig) Label() string { return k.def.Label }

// FieldMapping returns the fields a report may suggest changes for.
func (k *kindConfig) FieldMapping() []domain.FieldSpec { return k.def.Fields }

func (k *kindConfig) MethodWeights() domain.MethodWeights { return k.def.Weights }

func (k *kindConfig) FetchItem(ctx context.Context, itemID domain.ItemID, scopeID domain.ScopeID) (*domain.Item, error) {
	item, err := k.items.GetItem(ctx, domain.ItemRef{Kind: k.def.Kind, ID: itemID, ScopeID: scopeID})
	if errors.Is(err, domain.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return item, nil
}

// Dimensions picks the variant named by the item's variant field, if any.
func (k *kindConfig) Dimensions(item *domain.Item) []domain.DimensionQuestion {
	dims := k.def.Dimensions
	if item != nil && k.def.VariantField != "" {
		sel := strings.ToLower(textValue(item.Fields[k.def.VariantField]))
		if v, ok := k.def.Variants[sel]; ok {
			dims = v
		}
	}
	return append([]domain.DimensionQuestion(nil), dims...)
}

func (k *kindConfig) BuildItemContext(item *domain.Item) string {
	return buildBrief(k.def.Label, item, k.def.Fields)
}

func (k *kindConfig) BuildIntro(item *domain.Item) string {
	dims := k.Dimensions(item)
	titles := make([]string, len(dims))
	for i, d := range dims {
		titles[i] = d.Title
	}

	var buf bytes.Buffer
	err := k.intro.Execute(&buf, struct {
		Name   string
		Label  string
		Count  int
		Titles string
	}{item.Name, k.def.Label, len(dims), strings.Join(titles, ", ")})
	if err != nil || strings.TrimSpace(buf.String()) == "" {
		return fmt.Sprintf("Let's explore %s across %d dimensions.", item.Name, len(dims))
	}
	return strings.TrimSpace(buf.String())
}

func (k *kindConfig) GenerateInsights(ctx context.Context, item *domain.Item, session *domain.ExplorationSession, msgs []*domain.ExplorationMessage) (*domain.InsightReport, error) {
	current := make(map[string]string, len(k.def.Fields))
	for _, f := range k.def.Fields {
		current[f.Key] = FieldValue(item.Fields[f.Key], f.Type)
	}
	dims := session.Dimensions
	if len(dims) == 0 {
		dims = k.Dimensions(item)
	}
	return k.synth.Synthesize(ctx, insight.Input{
		Kind:          k.def.Kind,
		KindLabel:     k.def.Label,
		ItemName:      item.Name,
		ItemContext:   k.BuildItemContext(item),
		Dimensions:    dims,
		Messages:      msgs,
		Fields:        k.def.Fields,
		CurrentValues: current,
		ResearchBoost: k.def.ResearchBoost,
		Backend:       session.Backend,
		Model:         session.ModelID,
	})
}

// researchKind adds the post-completion validation hook to a kind that
// weighs AI exploration.
type researchKind struct {
	*kindConfig
	completer MethodCompleter
}

func (r *researchKind) UpdateResearchMethod(ctx context.Context, itemID domain.ItemID, scopeID domain.ScopeID) (int, error) {
	ref := domain.ItemRef{Kind: r.def.Kind, ID: itemID, ScopeID: scopeID}
	return r.completer.CompleteMethod(ctx, ref, domain.MethodAIExploration, r.def.Weights)
}
