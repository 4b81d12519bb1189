package domain

import "math"

// SessionStatus is the lifecycle state of an exploration session.
type SessionStatus string

const (
	StatusNotStarted       SessionStatus = "NOT_STARTED"
	StatusInProgress       SessionStatus = "IN_PROGRESS"
	StatusCompleted        SessionStatus = "COMPLETED"
	StatusReportGenerating SessionStatus = "REPORT_GENERATING"
	StatusReportReady      SessionStatus = "REPORT_READY"
	StatusError            SessionStatus = "ERROR"
)

// transitions lists the allowed forward moves. ERROR is handled separately.
var transitions = map[SessionStatus][]SessionStatus{
	StatusNotStarted:       {StatusInProgress},
	StatusInProgress:       {StatusCompleted},
	StatusCompleted:        {StatusReportGenerating},
	StatusReportGenerating: {StatusReportReady},
	// regenerate
	StatusReportReady: {StatusReportGenerating},
	// retry after a failed synthesis
	StatusError: {StatusReportGenerating},
}

// failable lists the statuses a failure may interrupt. REPORT_READY and
// ERROR are terminal; a regeneration that fails does so from
// REPORT_GENERATING. NOT_STARTED only exists before the first write, so in
// practice synthesis is the one path that records ERROR.
var failable = map[SessionStatus]bool{
	StatusNotStarted:       true,
	StatusInProgress:       true,
	StatusCompleted:        true,
	StatusReportGenerating: true,
}

// CanTransition reports whether a session may move from one status to another.
func CanTransition(from, to SessionStatus) bool {
	if to == StatusError {
		return failable[from]
	}
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// ExplorationSession is one guided interview about one item.
// Counters are derived from the message log and rewritten on every turn.
type ExplorationSession struct {
	ID       SessionID
	ItemID   ItemID
	ItemType ItemKind
	ScopeID  ScopeID

	// Backend and model are pinned when the session starts.
	Backend Backend
	ModelID string

	// Dimensions are the questions chosen at start. Later edits to the
	// item (a changed variant field) do not reshape a running session.
	Dimensions []DimensionQuestion

	Status                SessionStatus
	AnsweredQuestions     int
	TotalQuestions        int
	CurrentDimensionIndex int
	Progress              int

	Locked    bool
	Report    *InsightReport
	LastError string

	CreatedAt Timestamp
	UpdatedAt Timestamp
}

// Exhausted reports whether every scripted dimension has been asked and answered.
func (s *ExplorationSession) Exhausted() bool {
	return s.CurrentDimensionIndex >= s.TotalQuestions
}

// Clone returns a copy that can be mutated without touching the stored value.
func (s *ExplorationSession) Clone() *ExplorationSession {
	if s == nil {
		return nil
	}
	c := *s
	c.Dimensions = append([]DimensionQuestion(nil), s.Dimensions...)
	if s.Report != nil {
		r := s.Report.Clone()
		c.Report = r
	}
	return &c
}

// ComputeProgress returns round(answered/total*100). It is not capped at 100.
func ComputeProgress(answered, total int) int {
	if total <= 0 || answered <= 0 {
		return 0
	}
	return int(math.Round(float64(answered) / float64(total) * 100))
}

// MessageMetadata is the optional structured part of a transcript message.
type MessageMetadata struct {
	DimensionKey string `json:"dimensionKey,omitempty"`
	Bonus        bool   `json:"bonus,omitempty"`
	Fallback     bool   `json:"fallback,omitempty"`
}

// ExplorationMessage is one immutable entry of a session transcript.
type ExplorationMessage struct {
	ID         MessageID
	SessionID  SessionID
	Type       MessageType
	Content    string
	OrderIndex int
	Metadata   *MessageMetadata
	CreatedAt  Timestamp
}

// DimensionKey returns the metadata dimension key or "".
func (m *ExplorationMessage) DimensionKey() string {
	if m == nil || m.Metadata == nil {
		return ""
	}
	return m.Metadata.DimensionKey
}

// CountAnswers counts USER_ANSWER messages, the source of truth for progress.
func CountAnswers(msgs []*ExplorationMessage) int {
	n := 0
	for _, m := range msgs {
		if m.Type == MessageUserAnswer {
			n++
		}
	}
	return n
}
