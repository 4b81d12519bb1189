// Package insight turns an exploration transcript into an InsightReport.
package insight

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/PabloGalante/brandlab/internal/domain"
	"github.com/PabloGalante/brandlab/internal/observability"
)

const (
	reportTemperature = 0.4
	reportMaxTokens   = 4096

	missingFinding = "No distinct insight was captured for this dimension."
)

// Input is everything the synthesis needs about one completed session.
type Input struct {
	Kind        domain.ItemKind
	KindLabel   string
	ItemName    string
	ItemContext string
	Dimensions  []domain.DimensionQuestion
	Messages    []*domain.ExplorationMessage

	// Fields is the kind's field mapping; suggestions outside it are dropped.
	Fields        []domain.FieldSpec
	CurrentValues map[string]string

	ResearchBoost int

	Backend domain.Backend
	Model   string
}

type Synthesizer struct {
	llm domain.LLMGateway
	now func() time.Time
}

func NewSynthesizer(llm domain.LLMGateway) *Synthesizer {
	return &Synthesizer{llm: llm, now: time.Now}
}

// Synthesize makes one model call and normalizes its JSON answer. There is
// no scripted fallback for a whole report: an empty or unreadable answer is
// a synthesis failure.
func (s *Synthesizer) Synthesize(ctx context.Context, in Input) (*domain.InsightReport, error) {
	const op = "synthesize insights"

	log := observability.LoggerFromContext(ctx).With(
		"item_type", in.Kind,
		"item_name", in.ItemName,
	)

	pairs := Pairs(in.Messages)
	if len(pairs) == 0 {
		return nil, domain.SynthesisError(op, fmt.Errorf("transcript has no answered questions: %w", domain.ErrSynthesisFailed))
	}

	prompt, err := renderPrompt(in, pairs)
	if err != nil {
		return nil, domain.SynthesisError(op, err)
	}

	raw := s.llm.Call(ctx, domain.LLMRequest{
		Backend:         in.Backend,
		Model:           in.Model,
		SystemPrompt:    systemPrompt,
		Turns:           []domain.Turn{{Role: domain.RoleUser, Content: prompt}},
		Temperature:     reportTemperature,
		MaxOutputTokens: reportMaxTokens,
		Purpose:         "report",
	})
	if raw == "" {
		log.Error("report generation returned no text")
		return nil, domain.SynthesisError(op, fmt.Errorf("empty model response: %w", domain.ErrSynthesisFailed))
	}

	doc, ok := extractJSON(raw)
	if !ok {
		log.Error("report generation returned invalid JSON", "chars", len(raw))
		return nil, domain.SynthesisError(op, fmt.Errorf("response is not a JSON object: %w", domain.ErrSynthesisFailed))
	}

	summary := strings.TrimSpace(doc.Get("executiveSummary").String())
	if summary == "" {
		return nil, domain.SynthesisError(op, fmt.Errorf("response has no executive summary: %w", domain.ErrSynthesisFailed))
	}

	report := &domain.InsightReport{
		ExecutiveSummary:        summary,
		Findings:                findings(doc, in.Dimensions),
		Recommendations:         recommendations(doc),
		FieldSuggestions:        suggestions(doc, in.Fields, in.CurrentValues),
		ResearchBoostPercentage: in.ResearchBoost,
		CompletedAt:             s.now().UTC(),
	}

	log.Info("insight report synthesized",
		"findings", len(report.Findings),
		"recommendations", len(report.Recommendations),
		"field_suggestions", len(report.FieldSuggestions),
	)
	return report, nil
}

// extractJSON locates the outermost JSON object in raw, which may be wrapped
// in code fences or surrounded by prose.
func extractJSON(raw string) (gjson.Result, bool) {
	start := strings.IndexByte(raw, '{')
	end := strings.LastIndexByte(raw, '}')
	if start < 0 || end <= start {
		return gjson.Result{}, false
	}
	body := raw[start : end+1]
	if !gjson.Valid(body) {
		return gjson.Result{}, false
	}
	res := gjson.Parse(body)
	return res, res.IsObject()
}

// findings returns exactly one finding per dimension, in dimension order.
func findings(doc gjson.Result, dims []domain.DimensionQuestion) []domain.Finding {
	byKey := make(map[string]gjson.Result)
	doc.Get("findings").ForEach(func(_, f gjson.Result) bool {
		key := strings.TrimSpace(f.Get("key").String())
		if _, dup := byKey[key]; key != "" && !dup {
			byKey[key] = f
		}
		return true
	})

	out := make([]domain.Finding, 0, len(dims))
	for _, d := range dims {
		f := domain.Finding{Key: d.Key, Title: d.Title, Description: missingFinding}
		if r, ok := byKey[d.Key]; ok {
			if t := strings.TrimSpace(r.Get("title").String()); t != "" {
				f.Title = t
			}
			if desc := strings.TrimSpace(r.Get("description").String()); desc != "" {
				f.Description = desc
			}
		}
		out = append(out, f)
	}
	return out
}

func recommendations(doc gjson.Result) []domain.Recommendation {
	var out []domain.Recommendation
	doc.Get("recommendations").ForEach(func(_, r gjson.Result) bool {
		title := strings.TrimSpace(r.Get("title").String())
		if title == "" {
			return true
		}
		out = append(out, domain.Recommendation{
			Number:      len(out) + 1,
			Title:       title,
			Description: strings.TrimSpace(r.Get("description").String()),
			Priority:    priority(r.Get("priority").String()),
		})
		return true
	})
	return out
}

func priority(s string) domain.Priority {
	switch p := domain.Priority(strings.ToLower(strings.TrimSpace(s))); p {
	case domain.PriorityHigh, domain.PriorityMedium, domain.PriorityLow:
		return p
	default:
		return domain.PriorityMedium
	}
}

// suggestions keeps one pending suggestion per mapped field, dropping
// unknown fields and suggestions equal to the current value.
func suggestions(doc gjson.Result, fields []domain.FieldSpec, current map[string]string) []domain.FieldSuggestion {
	var out []domain.FieldSuggestion
	seen := make(map[string]bool)
	doc.Get("fieldSuggestions").ForEach(func(_, s gjson.Result) bool {
		key := strings.TrimSpace(s.Get("field").String())
		spec, ok := fieldSpec(fields, key)
		if !ok || seen[key] {
			return true
		}

		suggested := suggestedValue(s.Get("suggestedValue"))
		if suggested == "" || suggested == current[key] {
			return true
		}
		seen[key] = true
		out = append(out, domain.FieldSuggestion{
			Field:          key,
			Label:          spec.Label,
			CurrentValue:   current[key],
			SuggestedValue: suggested,
			Reason:         strings.TrimSpace(s.Get("reason").String()),
			Status:         domain.SuggestionPending,
		})
		return true
	})
	return out
}

func suggestedValue(v gjson.Result) string {
	if !v.IsArray() {
		return strings.TrimSpace(v.String())
	}
	var lines []string
	for _, e := range v.Array() {
		if s := strings.TrimSpace(e.String()); s != "" {
			lines = append(lines, s)
		}
	}
	return strings.Join(lines, "\n")
}
