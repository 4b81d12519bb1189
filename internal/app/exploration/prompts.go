package exploration

import (
	"fmt"
	"strings"

	"github.com/PabloGalante/brandlab/internal/domain"
)

const (
	questionTemperature = 0.7
	questionMaxTokens   = 300
	feedbackTemperature = 0.6
	feedbackMaxTokens   = 150

	fallbackFeedback      = "Thank you, that is a helpful perspective. Let's keep building on it."
	fallbackBonusFeedback = "Thanks for the extra detail. It will be part of the final report."
)

// turnContext is what every prompt of one session is grounded on.
type turnContext struct {
	session    *domain.ExplorationSession
	label      string
	itemName   string
	brief      string
	dimensions []domain.DimensionQuestion
}

func (tc turnContext) systemPrompt() string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are a brand strategist interviewing an operator about the %s %q.\n", tc.label, tc.itemName)
	b.WriteString("You explore one analytical dimension at a time and build on what the operator already said.\n\n")
	b.WriteString("Item brief:\n")
	b.WriteString(tc.brief)
	b.WriteString("\n\nDimensions of this interview:\n")
	for i, d := range tc.dimensions {
		fmt.Fprintf(&b, "%d. %s (%s)\n", i+1, d.Title, d.Key)
	}
	b.WriteString("\nWhen asked for a question, reply with exactly one open question of at most 40 words and nothing else.")
	return b.String()
}

// replay turns the prior questions and answers into alternating turns.
func replay(msgs []*domain.ExplorationMessage) []domain.Turn {
	var turns []domain.Turn
	for _, m := range msgs {
		switch m.Type {
		case domain.MessageAIQuestion:
			turns = append(turns, domain.Turn{Role: domain.RoleAssistant, Content: m.Content})
		case domain.MessageUserAnswer:
			turns = append(turns, domain.Turn{Role: domain.RoleUser, Content: m.Content})
		}
	}
	return turns
}

func (tc turnContext) questionRequest(history []*domain.ExplorationMessage, dim domain.DimensionQuestion) domain.LLMRequest {
	turns := replay(history)
	turns = append(turns, domain.Turn{
		Role: domain.RoleUser,
		Content: fmt.Sprintf("Ask exactly one question about the %q dimension. It covers: %s",
			dim.Title, dim.Question),
	})
	return domain.LLMRequest{
		Backend:         tc.session.Backend,
		Model:           tc.session.ModelID,
		SystemPrompt:    tc.systemPrompt(),
		Turns:           turns,
		Temperature:     questionTemperature,
		MaxOutputTokens: questionMaxTokens,
		Purpose:         "question",
	}
}

func (tc turnContext) feedbackRequest(dim domain.DimensionQuestion, question, answer string) domain.LLMRequest {
	system := fmt.Sprintf("You are an encouraging brand strategist interviewing an operator about the %s %q. "+
		"React to the operator's latest answer in one or two sentences. Refer to something specific they said. "+
		"Do not ask a question and do not summarize the interview.", tc.label, tc.itemName)

	return domain.LLMRequest{
		Backend:      tc.session.Backend,
		Model:        tc.session.ModelID,
		SystemPrompt: system,
		Turns: []domain.Turn{{
			Role:    domain.RoleUser,
			Content: fmt.Sprintf("Dimension %q.\nQuestion: %s\nAnswer: %s", dim.Title, question, answer),
		}},
		Temperature:     feedbackTemperature,
		MaxOutputTokens: feedbackMaxTokens,
		Purpose:         "feedback",
	}
}

// lastQuestion returns the newest AI_QUESTION, or nil.
func lastQuestion(msgs []*domain.ExplorationMessage) *domain.ExplorationMessage {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Type == domain.MessageAIQuestion {
			return msgs[i]
		}
	}
	return nil
}
