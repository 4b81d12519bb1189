package domain

type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

type SuggestionStatus string

const (
	SuggestionPending   SuggestionStatus = "pending"
	SuggestionApplied   SuggestionStatus = "applied"
	SuggestionDismissed SuggestionStatus = "dismissed"
)

type Finding struct {
	Key         string `json:"key"`
	Title       string `json:"title"`
	Description string `json:"description"`
}

type Recommendation struct {
	Number      int      `json:"number"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Priority    Priority `json:"priority"`
}

type FieldSuggestion struct {
	Field          string           `json:"field"`
	Label          string           `json:"label"`
	CurrentValue   string           `json:"currentValue"`
	SuggestedValue string           `json:"suggestedValue"`
	Reason         string           `json:"reason"`
	Status         SuggestionStatus `json:"status"`
}

// InsightReport is the synthesized output of a completed session.
type InsightReport struct {
	ExecutiveSummary        string            `json:"executiveSummary"`
	Findings                []Finding         `json:"findings"`
	Recommendations         []Recommendation  `json:"recommendations"`
	FieldSuggestions        []FieldSuggestion `json:"fieldSuggestions"`
	ResearchBoostPercentage int               `json:"researchBoostPercentage"`
	CompletedAt             Timestamp         `json:"completedAt"`
}

func (r *InsightReport) Clone() *InsightReport {
	if r == nil {
		return nil
	}
	c := *r
	c.Findings = append([]Finding(nil), r.Findings...)
	c.Recommendations = append([]Recommendation(nil), r.Recommendations...)
	c.FieldSuggestions = append([]FieldSuggestion(nil), r.FieldSuggestions...)
	return &c
}
