package insight

import (
	"bytes"
	"fmt"
	"text/template"

	"github.com/PabloGalante/brandlab/internal/domain"
)

const systemPrompt = `You are a senior brand strategist. You turn interview transcripts into concise, evidence-based insight reports. You only use what the operator said; you never invent facts. You always answer with a single JSON object and nothing else.`

var reportPromptTmpl = template.Must(template.New("report").Funcs(template.FuncMap{
	"inc": func(i int) int { return i + 1 },
}).Parse(`Synthesize the exploration interview below about the {{.KindLabel}} "{{.ItemName}}".

Item brief:
{{.ItemContext}}

Dimensions explored (in order):
{{range .Dimensions}}- {{.Key}}: {{.Title}}
{{end}}
Transcript:
{{range $i, $p := .Pairs}}[{{$p.DimensionKey}}] Q{{inc $i}}: {{$p.Question}}
A{{inc $i}}: {{$p.Answer}}
{{range $p.FollowUps}}Follow-up: {{.}}
{{end}}{{end}}
Fields you may suggest changes for (key, type, current value):
{{range .Fields}}- {{.Key}} ({{.Type}}): {{.Current}}
{{end}}
Respond with a JSON object of this shape:
{"executiveSummary": "2-3 sentences",
 "findings": [{"key": "<dimension key>", "title": "...", "description": "..."}],
 "recommendations": [{"title": "...", "description": "...", "priority": "high|medium|low"}],
 "fieldSuggestions": [{"field": "<field key>", "suggestedValue": "...", "reason": "..."}]}

Write exactly one finding per dimension, using the dimension keys above. Only suggest fields from the list; for list fields put one entry per line. Omit suggestions that would not change the current value.
`))

type promptField struct {
	Key     string
	Type    domain.FieldType
	Current string
}

type promptData struct {
	KindLabel   string
	ItemName    string
	ItemContext string
	Dimensions  []domain.DimensionQuestion
	Pairs       []Pair
	Fields      []promptField
}

func renderPrompt(in Input, pairs []Pair) (string, error) {
	data := promptData{
		KindLabel:   in.KindLabel,
		ItemName:    in.ItemName,
		ItemContext: in.ItemContext,
		Dimensions:  in.Dimensions,
		Pairs:       pairs,
	}
	for _, f := range in.Fields {
		cur := in.CurrentValues[f.Key]
		if cur == "" {
			cur = "(empty)"
		}
		data.Fields = append(data.Fields, promptField{Key: f.Key, Type: f.Type, Current: cur})
	}

	var buf bytes.Buffer
	if err := reportPromptTmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("rendering report prompt: %w", err)
	}
	return buf.String(), nil
}

func fieldSpec(fields []domain.FieldSpec, key string) (domain.FieldSpec, bool) {
	for _, f := range fields {
		if f.Key == key {
			return f, true
		}
	}
	return domain.FieldSpec{}, false
}
