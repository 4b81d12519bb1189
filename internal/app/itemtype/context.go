package itemtype

import (
	"fmt"
	"strings"

	"github.com/PabloGalante/brandlab/internal/domain"
)

// Bounds on the item brief so every prompt of a session costs about the same.
const (
	maxListEntries = 5
	maxValueRunes  = 400
	maxBriefRunes  = 3000
)

// buildBrief renders mapped fields in mapping order. Empty fields are skipped.
func buildBrief(label string, item *domain.Item, fields []domain.FieldSpec) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %s\n", capitalize(label), truncate(item.Name, maxValueRunes))

	for _, f := range fields {
		v, ok := item.Fields[f.Key]
		if !ok {
			continue
		}
		if f.Type == domain.FieldList {
			entries := listValue(v)
			if len(entries) == 0 {
				continue
			}
			fmt.Fprintf(&b, "%s:\n", f.Label)
			for i, e := range entries {
				if i == maxListEntries {
					fmt.Fprintf(&b, "- (%d more)\n", len(entries)-maxListEntries)
					break
				}
				fmt.Fprintf(&b, "- %s\n", truncate(e, maxValueRunes))
			}
			continue
		}
		if s := textValue(v); s != "" {
			fmt.Fprintf(&b, "%s: %s\n", f.Label, truncate(s, maxValueRunes))
		}
	}
	return truncate(strings.TrimRight(b.String(), "\n"), maxBriefRunes)
}

// FieldValue formats a stored field the way suggestions compare against it:
// list entries one per line.
func FieldValue(v any, typ domain.FieldType) string {
	if typ == domain.FieldList {
		return strings.Join(listValue(v), "\n")
	}
	return textValue(v)
}

func textValue(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	case []string, []any:
		return strings.Join(listValue(t), "; ")
	default:
		return strings.TrimSpace(fmt.Sprint(t))
	}
}

// listValue accepts []string, []any (decoded JSON) or a newline separated string.
func listValue(v any) []string {
	var raw []string
	switch t := v.(type) {
	case []string:
		raw = t
	case []any:
		for _, e := range t {
			raw = append(raw, fmt.Sprint(e))
		}
	case string:
		raw = strings.Split(t, "\n")
	case nil:
	default:
		raw = []string{fmt.Sprint(t)}
	}

	out := make([]string, 0, len(raw))
	for _, e := range raw {
		if e = strings.TrimSpace(e); e != "" {
			out = append(out, e)
		}
	}
	return out
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-1]) + "…"
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	r := []rune(s)
	return strings.ToUpper(string(r[0])) + string(r[1:])
}
