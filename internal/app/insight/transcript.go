package insight

import "github.com/PabloGalante/brandlab/internal/domain"

// Pair is one answered question of the transcript.
type Pair struct {
	DimensionKey string
	Question     string
	Answer       string
	// FollowUps holds answers given after the last scripted question.
	FollowUps []string
}

// Pairs rebuilds the Q&A transcript from ordered messages. Each AI_QUESTION
// is matched with the next USER_ANSWER; a trailing unanswered question is
// skipped and answers with no pending question are attached to the last pair.
func Pairs(msgs []*domain.ExplorationMessage) []Pair {
	var (
		pairs   []Pair
		pending *domain.ExplorationMessage
	)
	for _, m := range msgs {
		switch m.Type {
		case domain.MessageAIQuestion:
			pending = m
		case domain.MessageUserAnswer:
			if pending != nil {
				pairs = append(pairs, Pair{
					DimensionKey: pending.DimensionKey(),
					Question:     pending.Content,
					Answer:       m.Content,
				})
				pending = nil
				continue
			}
			if n := len(pairs); n > 0 {
				pairs[n-1].FollowUps = append(pairs[n-1].FollowUps, m.Content)
			}
		}
	}
	return pairs
}
