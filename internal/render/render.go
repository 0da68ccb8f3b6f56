// Package render substitutes {{token}} placeholders in subject and
// body templates with per-recipient values.
package render

import (
	"regexp"
	"strings"

	"github.com/mailkite/mailkite/internal/models"
)

// tokenPattern matches a {{token}} span: any run of characters other
// than '}' between double braces.
var tokenPattern = regexp.MustCompile(`\{\{([^}]+)\}\}`)

// Render replaces every occurrence of every bound token in template
// with its value. Unbound tokens are left verbatim in the output:
// mismatches between template and recipient data are a validation
// concern upstream, not a render error.
func Render(template string, vars map[string]string) string {
	if template == "" {
		return template
	}

	return tokenPattern.ReplaceAllStringFunc(template, func(match string) string {
		name := match[2 : len(match)-2]
		if value, ok := vars[name]; ok {
			return value
		}
		return match
	})
}

// Tokens returns the distinct token identifiers appearing in
// template, trimmed of surrounding whitespace, in order of first
// appearance.
func Tokens(template string) []string {
	matches := tokenPattern.FindAllStringSubmatch(template, -1)
	if len(matches) == 0 {
		return nil
	}

	seen := make(map[string]bool, len(matches))
	tokens := make([]string, 0, len(matches))
	for _, m := range matches {
		name := strings.TrimSpace(m[1])
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		tokens = append(tokens, name)
	}
	return tokens
}

// Bindings builds the substitution map for a recipient: the built-in
// name and email bindings plus one per custom field. Custom fields
// cannot shadow the built-ins.
func Bindings(r models.Recipient) map[string]string {
	vars := make(map[string]string, len(r.CustomFields)+2)
	for k, v := range r.CustomFields {
		vars[k] = v
	}
	vars["name"] = r.Name
	vars["email"] = r.Email
	return vars
}
