package itemtype

import (
	"context"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PabloGalante/brandlab/internal/adapters/storage/memory"
	"github.com/PabloGalante/brandlab/internal/app/insight"
	"github.com/PabloGalante/brandlab/internal/domain"
)

type recordingSynth struct {
	in insight.Input
}

func (r *recordingSynth) Synthesize(_ context.Context, in insight.Input) (*domain.InsightReport, error) {
	r.in = in
	return &domain.InsightReport{ExecutiveSummary: "ok"}, nil
}

type countingCompleter struct {
	calls   int
	ref     domain.ItemRef
	method  domain.ResearchMethod
	weights domain.MethodWeights
}

func (c *countingCompleter) CompleteMethod(_ context.Context, ref domain.ItemRef, m domain.ResearchMethod, w domain.MethodWeights) (int, error) {
	c.calls++
	c.ref, c.method, c.weights = ref, m, w
	return 15, nil
}

func newRegistry(t *testing.T, deps Deps) *Registry {
	t.Helper()
	if deps.Items == nil {
		deps.Items = memory.NewItemStore()
	}
	r, err := NewDefaultRegistry(deps)
	require.NoError(t, err)
	return r
}

func TestDefaultRegistryKinds(t *testing.T) {
	r := newRegistry(t, Deps{})

	var kinds []domain.ItemKind
	for _, c := range r.Kinds() {
		kinds = append(kinds, c.Kind())
		assert.NotEmpty(t, c.Dimensions(nil))
	}
	assert.Equal(t, []domain.ItemKind{"brand-asset", "persona"}, kinds)

	persona, err := r.Lookup("persona")
	require.NoError(t, err)
	dims := persona.Dimensions(nil)
	require.Len(t, dims, 4)
	assert.Equal(t, "demographics", dims[0].Key)
	for _, d := range dims {
		assert.NotEmpty(t, d.Question, d.Key)
	}

	w := r.Weights("persona")
	assert.InDelta(t, 0.15, w[domain.MethodAIExploration], 1e-9)
	var sum float64
	for _, v := range w {
		sum += v
	}
	assert.InDelta(t, 1.0, sum, 1e-9)
	assert.InDelta(t, 0.25, r.Weights("brand-asset")[domain.MethodAIExploration], 1e-9)
}

func TestLookupUnknownKind(t *testing.T) {
	_, err := newRegistry(t, Deps{}).Lookup("logo")
	require.ErrorIs(t, err, domain.ErrUnknownItemKind)
	assert.Equal(t, domain.KindClient, domain.KindOf(err))
}

func TestRegisterDuplicate(t *testing.T) {
	r := newRegistry(t, Deps{})
	def, err := ParseDefinition([]byte("kind: persona\ndimensions:\n  - key: a\n    title: A\n    question: Q?\n"))
	require.NoError(t, err)
	assert.Error(t, r.RegisterDefinition(def, Deps{}))
}

func TestParseDefinitionRequiresDimensions(t *testing.T) {
	_, err := ParseDefinition([]byte("kind: empty\n"))
	assert.Error(t, err)
	_, err = ParseDefinition([]byte("label: nameless\n"))
	assert.Error(t, err)
}

func TestFetchItemAbsentIsNil(t *testing.T) {
	ctx := context.Background()
	items := memory.NewItemStore()
	require.NoError(t, items.PutItem(ctx, &domain.Item{ID: "p1", ScopeID: "s1", Kind: "persona", Name: "Olivia"}))
	c, err := newRegistry(t, Deps{Items: items}).Lookup("persona")
	require.NoError(t, err)

	item, err := c.FetchItem(ctx, "p1", "s1")
	require.NoError(t, err)
	require.NotNil(t, item)

	item, err = c.FetchItem(ctx, "p1", "other-scope")
	require.NoError(t, err)
	assert.Nil(t, item)
}

func TestBrandAssetVariantDimensions(t *testing.T) {
	c, err := newRegistry(t, Deps{}).Lookup("brand-asset")
	require.NoError(t, err)

	item := &domain.Item{Name: "Golden circle", Fields: map[string]any{"category": "Golden-Circle"}}
	dims := c.Dimensions(item)
	require.Len(t, dims, 3)
	assert.Equal(t, []string{"why", "how", "what"}, []string{dims[0].Key, dims[1].Key, dims[2].Key})

	assert.Len(t, c.Dimensions(&domain.Item{Fields: map[string]any{"category": "positioning"}}), 4)

	intro := c.BuildIntro(item)
	assert.Contains(t, intro, "Golden circle")
	assert.Contains(t, intro, "3 dimensions")
}

func TestBuildItemContextIsBounded(t *testing.T) {
	c, err := newRegistry(t, Deps{}).Lookup("persona")
	require.NoError(t, err)

	goals := make([]any, 9)
	for i := range goals {
		goals[i] = "goal"
	}
	item := &domain.Item{
		Name: "Olivia",
		Fields: map[string]any{
			"tagline":      strings.Repeat("x", 1000),
			"goals":        goals,
			"demographics": "34, Rotterdam",
			"unmapped":     "never shown",
		},
	}

	brief := c.BuildItemContext(item)
	assert.Equal(t, brief, c.BuildItemContext(item))
	assert.True(t, strings.HasPrefix(brief, "Persona: Olivia\n"))
	assert.Equal(t, maxListEntries, strings.Count(brief, "- goal\n"))
	assert.Contains(t, brief, "(4 more)")
	assert.NotContains(t, brief, "never shown")
	assert.Less(t, strings.Index(brief, "Tagline"), strings.Index(brief, "Demographics"))

	item.Fields["quote"] = strings.Repeat("y", 5000)
	item.Fields["demographics"] = strings.Repeat("z", 5000)
	assert.LessOrEqual(t, utf8.RuneCountInString(c.BuildItemContext(item)), maxBriefRunes)
}

func TestGenerateInsightsPassesMappingAndCurrentValues(t *testing.T) {
	synth := &recordingSynth{}
	c, err := newRegistry(t, Deps{Synthesizer: synth}).Lookup("persona")
	require.NoError(t, err)

	item := &domain.Item{Name: "Olivia", Fields: map[string]any{"goals": []string{"a", "b"}, "tagline": "t"}}
	session := &domain.ExplorationSession{Backend: domain.BackendMock, ModelID: "mock-1"}
	_, err = c.GenerateInsights(context.Background(), item, session, nil)
	require.NoError(t, err)

	assert.Equal(t, 15, synth.in.ResearchBoost)
	assert.Equal(t, "a\nb", synth.in.CurrentValues["goals"])
	assert.Equal(t, "t", synth.in.CurrentValues["tagline"])
	assert.Len(t, synth.in.Fields, 7)
	assert.Equal(t, domain.BackendMock, synth.in.Backend)
}

func TestResearchHook(t *testing.T) {
	r := newRegistry(t, Deps{})
	c, err := r.Lookup("persona")
	require.NoError(t, err)
	_, ok := c.(ResearchMethodUpdater)
	assert.False(t, ok, "no completer configured")

	completer := &countingCompleter{}
	r = newRegistry(t, Deps{Research: completer})
	c, err = r.Lookup("persona")
	require.NoError(t, err)
	u, ok := c.(ResearchMethodUpdater)
	require.True(t, ok)

	coverage, err := u.UpdateResearchMethod(context.Background(), "p1", "s1")
	require.NoError(t, err)
	assert.Equal(t, 15, coverage)
	assert.Equal(t, domain.ItemRef{Kind: "persona", ID: "p1", ScopeID: "s1"}, completer.ref)
	assert.Equal(t, domain.MethodAIExploration, completer.method)
	assert.Len(t, completer.weights, 4)
	assert.Len(t, Fields(c), 7)
}
