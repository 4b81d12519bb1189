package domain

import "time"

type SessionID string
type MessageID string
type ItemID string
type ScopeID string

// ItemKind names a category of explorable item ("persona", "brand-asset").
type ItemKind string

type MessageType string

const (
	MessageSystemIntro MessageType = "SYSTEM_INTRO"
	MessageAIQuestion  MessageType = "AI_QUESTION"
	MessageUserAnswer  MessageType = "USER_ANSWER"
	MessageAIFeedback  MessageType = "AI_FEEDBACK"
)

// Backend identifies an LLM provider family.
type Backend string

const (
	BackendGemini    Backend = "gemini"
	BackendOpenAI    Backend = "openai"
	BackendAnthropic Backend = "anthropic"
	BackendMock      Backend = "mock"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type Timestamp = time.Time
