// Package template implements the variable substitution used by legacy
// plaintext connection URL templates and init-command templates.
package template

import (
	"regexp"
	"strings"
)

// Renderer substitutes variables into a template string. The storage layer
// consumes this at its boundary; callers may supply their own implementation.
type Renderer interface {
	Render(tmpl string, vars map[string]string) string
}

var placeholderRe = regexp.MustCompile(`\{\{\s*([A-Za-z0-9_.-]+)\s*\}\}`)

// MapRenderer replaces {{name}} placeholders from a variable map. Unknown
// placeholders are left untouched so misconfigured templates stay visible.
type MapRenderer struct{}

func (MapRenderer) Render(tmpl string, vars map[string]string) string {
	if !strings.Contains(tmpl, "{{") {
		return tmpl
	}
	return placeholderRe.ReplaceAllStringFunc(tmpl, func(m string) string {
		name := placeholderRe.FindStringSubmatch(m)[1]
		if v, ok := vars[name]; ok {
			return v
		}
		return m
	})
}
