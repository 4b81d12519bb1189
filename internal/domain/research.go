package domain

// ResearchMethod is one way an item can be validated.
type ResearchMethod string

const (
	MethodAIExploration ResearchMethod = "AI_EXPLORATION"
	MethodWorkshop      ResearchMethod = "WORKSHOP"
	MethodInterviews    ResearchMethod = "INTERVIEWS"
	MethodQuestionnaire ResearchMethod = "QUESTIONNAIRE"
)

// ResearchMethods lists every method in display order.
var ResearchMethods = []ResearchMethod{MethodAIExploration, MethodWorkshop, MethodInterviews, MethodQuestionnaire}

type MethodStatus string

const (
	MethodNotStarted MethodStatus = "NOT_STARTED"
	MethodInProgress MethodStatus = "IN_PROGRESS"
	MethodCompleted  MethodStatus = "COMPLETED"
)

// ResearchMethodRecord tracks one method's state for one item.
type ResearchMethodRecord struct {
	Item           ItemRef
	Method         ResearchMethod
	Status         MethodStatus
	Progress       int
	CompletedAt    *Timestamp
	ArtifactsCount int
}

// MethodWeights maps each applicable method to its share of coverage.
type MethodWeights map[ResearchMethod]float64

// MarkCompleted returns the record moved to COMPLETED. Re-completing keeps the
// first completion time, so applying it twice yields the same record.
func (r ResearchMethodRecord) MarkCompleted(at Timestamp) ResearchMethodRecord {
	r.Status = MethodCompleted
	r.Progress = 100
	if r.CompletedAt == nil {
		t := at
		r.CompletedAt = &t
	}
	if r.ArtifactsCount < 1 {
		r.ArtifactsCount = 1
	}
	return r
}
