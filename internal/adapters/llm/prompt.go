package llm

import (
	"strings"

	"github.com/PabloGalante/brandlab/internal/domain"
)

// openingTurn is inserted when a conversation would otherwise start with
// an assistant turn; Gemini and Anthropic require a user turn first.
const openingTurn = "Let's begin."

// normalizeTurns drops empty turns, merges consecutive turns of the same role
// and guarantees the list starts with a user turn.
func normalizeTurns(turns []domain.Turn) []domain.Turn {
	out := make([]domain.Turn, 0, len(turns)+1)
	for _, t := range turns {
		content := strings.TrimSpace(t.Content)
		if content == "" {
			continue
		}
		role := t.Role
		if role != domain.RoleAssistant {
			role = domain.RoleUser
		}
		if n := len(out); n > 0 && out[n-1].Role == role {
			out[n-1].Content += "\n\n" + content
			continue
		}
		out = append(out, domain.Turn{Role: role, Content: content})
	}

	if len(out) == 0 || out[0].Role != domain.RoleUser {
		out = append([]domain.Turn{{Role: domain.RoleUser, Content: openingTurn}}, out...)
	}
	return out
}

func modelOrDefault(model, def string) string {
	if strings.TrimSpace(model) == "" {
		return def
	}
	return model
}
