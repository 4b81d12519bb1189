package llm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PabloGalante/brandlab/internal/domain"
)

type stubProvider struct {
	backend domain.Backend
	fn      func(ctx context.Context, req domain.LLMRequest) (string, error)
	last    domain.LLMRequest
}

func (s *stubProvider) Backend() domain.Backend { return s.backend }

func (s *stubProvider) Generate(ctx context.Context, req domain.LLMRequest) (string, error) {
	s.last = req
	return s.fn(ctx, req)
}

func TestGatewayCallTrimsText(t *testing.T) {
	p := &stubProvider{backend: domain.BackendMock, fn: func(context.Context, domain.LLMRequest) (string, error) {
		return "  What drives them?\n", nil
	}}
	g := NewGateway(time.Second, p)

	got := g.Call(context.Background(), domain.LLMRequest{Backend: domain.BackendMock})
	assert.Equal(t, "What drives them?", got)
}

func TestGatewayCallAbsorbsFailures(t *testing.T) {
	tests := []struct {
		name string
		fn   func(ctx context.Context, req domain.LLMRequest) (string, error)
	}{
		{
			name: "error",
			fn: func(context.Context, domain.LLMRequest) (string, error) {
				return "", errors.New("rate limited")
			},
		},
		{
			name: "blank",
			fn: func(context.Context, domain.LLMRequest) (string, error) {
				return "   ", nil
			},
		},
		{
			name: "panic",
			fn: func(context.Context, domain.LLMRequest) (string, error) {
				panic("boom")
			},
		},
		{
			name: "timeout",
			fn: func(ctx context.Context, _ domain.LLMRequest) (string, error) {
				<-ctx.Done()
				return "late", ctx.Err()
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := NewGateway(10*time.Millisecond, &stubProvider{backend: domain.BackendOpenAI, fn: tt.fn})
			assert.Equal(t, "", g.Call(context.Background(), domain.LLMRequest{Backend: domain.BackendOpenAI}))
		})
	}
}

func TestGatewayUnknownBackend(t *testing.T) {
	g := NewGateway(time.Second, NewMockLLM())
	assert.Equal(t, "", g.Call(context.Background(), domain.LLMRequest{Backend: domain.BackendAnthropic}))
}

func TestGatewayDefaultBackend(t *testing.T) {
	p := &stubProvider{backend: domain.BackendGemini, fn: func(context.Context, domain.LLMRequest) (string, error) {
		return "ok", nil
	}}
	g := NewGateway(time.Second, p, NewMockLLM())
	require.Equal(t, domain.BackendGemini, g.DefaultBackend())

	assert.Equal(t, "ok", g.Call(context.Background(), domain.LLMRequest{Purpose: "question"}))
	assert.Equal(t, domain.BackendGemini, p.last.Backend)
}

func TestNormalizeTurns(t *testing.T) {
	got := normalizeTurns([]domain.Turn{
		{Role: domain.RoleAssistant, Content: "Q1"},
		{Role: domain.RoleAssistant, Content: "  "},
		{Role: domain.RoleUser, Content: "A1"},
		{Role: "", Content: "A1 more"},
		{Role: domain.RoleAssistant, Content: "Q2"},
	})
	want := []domain.Turn{
		{Role: domain.RoleUser, Content: openingTurn},
		{Role: domain.RoleAssistant, Content: "Q1"},
		{Role: domain.RoleUser, Content: "A1\n\nA1 more"},
		{Role: domain.RoleAssistant, Content: "Q2"},
	}
	assert.Equal(t, want, got)

	assert.Equal(t, []domain.Turn{{Role: domain.RoleUser, Content: openingTurn}}, normalizeTurns(nil))
}

func TestMockLLMQuestionUsesQuotedDimension(t *testing.T) {
	m := NewMockLLM()
	got, err := m.Generate(context.Background(), domain.LLMRequest{
		Purpose: "question",
		Turns:   []domain.Turn{{Role: domain.RoleUser, Content: `Ask exactly one question about the "Pain Points" dimension.`}},
	})
	require.NoError(t, err)
	assert.Contains(t, got, "pain points")
}
