package services

import (
	"fmt"
	"regexp"
)

var placeholderRegex = regexp.MustCompile(`\{\{\s*([a-zA-Z0-9_.]+)\s*\}\}`)

// RenderTemplate replaces {{key}} placeholders with params[key]. Unknown keys
// are left untouched. It satisfies ParamReplacer.
func RenderTemplate(template string, params map[string]any) string {
	if template == "" || len(params) == 0 {
		return template
	}

	return placeholderRegex.ReplaceAllStringFunc(template, func(match string) string {
		submatch := placeholderRegex.FindStringSubmatch(match)
		if len(submatch) != 2 {
			return match
		}
		key := submatch[1]
		if value, ok := params[key]; ok {
			return stringify(value)
		}
		return match
	})
}

// stringify avoids the exponent form fmt uses for large float64 values
// decoded from JSON numbers.
func stringify(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		if v == float64(int64(v)) {
			return fmt.Sprintf("%d", int64(v))
		}
		return fmt.Sprint(v)
	default:
		return fmt.Sprint(v)
	}
}
