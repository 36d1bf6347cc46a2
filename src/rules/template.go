package rules

import (
	"regexp"
)

var placeholderPattern = regexp.MustCompile(`\{\{\s*([A-Za-z_][A-Za-z0-9_.]*)\s*\}\}`)

// Render substitutes {{field}} placeholders with values from fields. Unknown
// placeholders are kept verbatim and their names returned, each once, in the
// order they first appear.
func Render(template string, fields FieldMap) (string, []string) {
	var unknown []string
	seen := map[string]bool{}
	out := placeholderPattern.ReplaceAllStringFunc(template, func(match string) string {
		name := placeholderPattern.FindStringSubmatch(match)[1]
		v, ok := fields.Lookup(name)
		if !ok {
			if !seen[name] {
				seen[name] = true
				unknown = append(unknown, name)
			}
			return match
		}
		return stringify(v)
	})
	return out, unknown
}

// Placeholders lists the field names a template refers to.
func Placeholders(template string) []string {
	var names []string
	for _, m := range placeholderPattern.FindAllStringSubmatch(template, -1) {
		names = append(names, m[1])
	}
	return names
}
