package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/PabloGalante/brandlab/internal/domain"
)

// MockLLM is a deterministic backend for local mode and demos.
type MockLLM struct{}

func NewMockLLM() *MockLLM {
	return &MockLLM{}
}

func (m *MockLLM) Backend() domain.Backend { return domain.BackendMock }

func (m *MockLLM) Generate(_ context.Context, req domain.LLMRequest) (string, error) {
	last := ""
	if n := len(req.Turns); n > 0 {
		last = req.Turns[n-1].Content
	}

	switch req.Purpose {
	case "question":
		if title := quoted(last); title != "" {
			return fmt.Sprintf("Thinking about %s, what feels most true today, and what evidence do you have for it?", strings.ToLower(title)), nil
		}
		return "", nil
	case "feedback":
		return "Thanks, that adds useful texture. Let's keep building on it.", nil
	case "report":
		return `{"executiveSummary":"Mock synthesis of the exploration transcript.","findings":[],"recommendations":[{"title":"Validate with real users","description":"Run a short interview round to confirm the answers captured here.","priority":"high"}],"fieldSuggestions":[]}`, nil
	default:
		return "", nil
	}
}

// quoted returns the first double-quoted substring of s.
func quoted(s string) string {
	start := strings.IndexByte(s, '"')
	if start < 0 {
		return ""
	}
	end := strings.IndexByte(s[start+1:], '"')
	if end < 0 {
		return ""
	}
	return s[start+1 : start+1+end]
}
