// Package template renders campaign message bodies with per-recipient
// variable substitution using the Liquid template language.
package template

import (
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/osteele/liquid"
)

// Engine handles Liquid template rendering with parsed-template caching.
//
// Substitution follows dispatch semantics: a variable referenced in the
// template but absent from the recipient's variable map is left in the
// output as its literal placeholder, never an error and never an empty
// string. The recipient still gets a message; an unresolved placeholder is
// visible in delivery review instead of silently dropping text.
type Engine struct {
	engine *liquid.Engine
	cache  sync.Map // map[string]*liquid.Template
}

// NewEngine creates a template engine with the dispatch filter set.
func NewEngine() *Engine {
	e := &Engine{engine: liquid.NewEngine()}
	e.registerFilters()
	return e
}

// registerFilters adds the filters useful for short text messages.
func (e *Engine) registerFilters() {
	// Fallback value: {{ first_name | default: "there" }}
	e.engine.RegisterFilter("default", func(value interface{}, defaultVal string) interface{} {
		if value == nil {
			return defaultVal
		}
		s := fmt.Sprintf("%v", value)
		if s == "" || s == "<nil>" {
			return defaultVal
		}
		return value
	})

	// Capitalize first letter: {{ name | capitalize }}
	e.engine.RegisterFilter("capitalize", func(s string) string {
		if len(s) == 0 {
			return s
		}
		return strings.ToUpper(string(s[0])) + strings.ToLower(s[1:])
	})

	// Truncate with ellipsis: {{ note | truncate: 60 }}
	e.engine.RegisterFilter("truncate", func(s string, length int) string {
		if len(s) <= length {
			return s
		}
		if length <= 3 {
			return s[:length]
		}
		return s[:length-3] + "..."
	})

	// Mask a phone number for display: {{ phone | mask_phone }}
	e.engine.RegisterFilter("mask_phone", func(s string) string {
		if len(s) <= 4 {
			return "****"
		}
		return strings.Repeat("*", len(s)-4) + s[len(s)-4:]
	})
}

// Parse compiles a template body and returns any syntax error. Used to
// validate templates at creation time, before a campaign depends on them.
func (e *Engine) Parse(body string) error {
	_, err := e.engine.ParseString(body)
	return err
}

// Render substitutes variables into the template body. The cacheKey (usually
// the template id) enables parsed-template reuse across a batch; pass ""
// to skip caching.
func (e *Engine) Render(cacheKey, body string, variables map[string]string) (string, error) {
	ctx := bindings(body, variables)

	if cacheKey != "" {
		if cached, ok := e.cache.Load(cacheKey); ok {
			return cached.(*liquid.Template).RenderString(ctx)
		}
	}

	tpl, err := e.engine.ParseString(body)
	if err != nil {
		return "", fmt.Errorf("parse template: %w", err)
	}
	if cacheKey != "" {
		e.cache.Store(cacheKey, tpl)
	}
	return tpl.RenderString(ctx)
}

// ClearCache removes all cached templates. Called when a template body is
// updated so stale parses don't outlive the edit. Safe to call while other
// goroutines render.
func (e *Engine) ClearCache() {
	e.cache.Range(func(key, _ interface{}) bool {
		e.cache.Delete(key)
		return true
	})
}

// varPattern matches {{ var }} and {{ var | filter }} references.
var varPattern = regexp.MustCompile(`\{\{\s*([a-zA-Z_][a-zA-Z0-9_]*)\s*(?:\||\}\})`)

// bindings builds the Liquid render context. Variables referenced in the
// body but missing from the recipient map are bound to their own literal
// placeholder so they survive rendering untouched.
func bindings(body string, variables map[string]string) map[string]interface{} {
	ctx := make(map[string]interface{}, len(variables))
	for k, v := range variables {
		ctx[k] = v
	}
	for _, match := range varPattern.FindAllStringSubmatch(body, -1) {
		name := match[1]
		if _, ok := ctx[name]; !ok {
			ctx[name] = "{{" + name + "}}"
		}
	}
	return ctx
}

// Variables returns the distinct variable names referenced in a body, in
// first-appearance order. Used by the API to preview required variables.
func Variables(body string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, match := range varPattern.FindAllStringSubmatch(body, -1) {
		if !seen[match[1]] {
			seen[match[1]] = true
			out = append(out, match[1])
		}
	}
	return out
}
