package messaging

import (
	"regexp"
	"strings"
)

// FieldSource resolves lead fields for {{lead.*}} placeholders.
type FieldSource interface {
	Text(field string) string
}

var placeholderPattern = regexp.MustCompile(`\{\{\s*(?:(lead|param)\.)?([A-Za-z0-9_]+)\s*\}\}`)

// Render substitutes {{lead.field}} from lead and {{param.key}} (or bare
// {{key}}) from params. Unknown placeholders render empty.
func Render(text string, lead FieldSource, params map[string]string) string {
	if !strings.Contains(text, "{{") {
		return text
	}
	return placeholderPattern.ReplaceAllStringFunc(text, func(match string) string {
		parts := placeholderPattern.FindStringSubmatch(match)
		scope, name := parts[1], parts[2]
		if scope == "lead" {
			if lead == nil {
				return ""
			}
			return lead.Text(name)
		}
		return params[name]
	})
}

// RenderParams renders every param value against lead.
func RenderParams(params map[string]string, lead FieldSource) map[string]string {
	out := make(map[string]string, len(params))
	for k, v := range params {
		out[k] = Render(v, lead, nil)
	}
	return out
}
