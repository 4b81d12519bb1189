package domain

import "context"

// Turn is one role-tagged conversational turn sent to a language model.
type Turn struct {
	Role    Role
	Content string
}

// LLMRequest is the backend-independent shape of a model call.
type LLMRequest struct {
	Backend         Backend
	Model           string
	SystemPrompt    string
	Turns           []Turn
	Temperature     float64
	MaxOutputTokens int
	// Purpose labels the call in logs and traces ("question", "feedback", "report").
	Purpose string
}

// LLMGateway calls a language model. It never fails: an empty string
// means the call produced nothing usable and the caller must fall back.
type LLMGateway interface {
	Call(ctx context.Context, req LLMRequest) string
}

// SessionStore defines session persistence.
type SessionStore interface {
	GetSession(ctx context.Context, id SessionID) (*ExplorationSession, error)
	// FindActiveSession returns the newest unlocked session for the item, or ErrNotFound.
	FindActiveSession(ctx context.Context, ref ItemRef) (*ExplorationSession, error)
	UpdateSession(ctx context.Context, session *ExplorationSession) error
}

// MessageStore defines transcript persistence.
type MessageStore interface {
	ListMessages(ctx context.Context, sessionID SessionID) ([]*ExplorationMessage, error)
}

// ExplorationStore persists sessions and their transcripts. CreateSession and
// SaveTurn are atomic: either every message and the session write land, or none.
// Messages must carry the next contiguous order indexes, else ErrOrderConflict.
type ExplorationStore interface {
	SessionStore
	MessageStore
	CreateSession(ctx context.Context, session *ExplorationSession, msgs []*ExplorationMessage) error
	SaveTurn(ctx context.Context, session *ExplorationSession, msgs []*ExplorationMessage) error
}

// ItemStore loads items and caches their validation coverage.
type ItemStore interface {
	// GetItem returns ErrNotFound when the item does not exist in the scope.
	GetItem(ctx context.Context, ref ItemRef) (*Item, error)
	SetValidationCoverage(ctx context.Context, ref ItemRef, coverage int) error
}

// ResearchStore persists per-item research method records.
type ResearchStore interface {
	ListMethodRecords(ctx context.Context, ref ItemRef) ([]ResearchMethodRecord, error)
	PutMethodRecord(ctx context.Context, rec ResearchMethodRecord) error
	// CompleteMethod marks the method COMPLETED and returns every record of the
	// item read in the same transaction.
	CompleteMethod(ctx context.Context, ref ItemRef, method ResearchMethod, at Timestamp) ([]ResearchMethodRecord, error)
}
