package configstore

import (
	"fmt"
	"math"
	"slices"

	"github.com/dioniDR/ai-forge/internal/ai"
)

// Settings is the typed view of the keys the chat path reads.
type Settings struct {
	AppName         string
	DefaultProvider string
	DefaultModel    string
	SystemPrompt    string
	Temperature     float64
	MaxTokens       int
	Stream          bool
	// Options is passed through to providers, which apply their own allow-list.
	Options map[string]any
}

// Settings reads the typed view. Missing or mistyped keys take zero values,
// except temperature which falls back to ai.DefaultTemperature and stream
// which defaults to true.
func (s *Store) Settings() Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := Settings{
		Temperature: ai.DefaultTemperature,
		Stream:      true,
		Options:     map[string]any{},
	}
	out.AppName, _ = s.doc["app_name"].(string)
	out.DefaultProvider, _ = s.doc["default_provider"].(string)
	out.DefaultModel, _ = s.doc["default_model"].(string)
	out.SystemPrompt, _ = s.doc["system_prompt"].(string)
	if t, ok := Float(s.doc["temperature"]); ok {
		out.Temperature = t
	}
	if n, ok := Int(s.doc["max_tokens"]); ok {
		out.MaxTokens = n
	}
	if b, ok := s.doc["stream"].(bool); ok {
		out.Stream = b
	}
	if m, ok := s.doc["options"].(map[string]any); ok {
		out.Options = cloneMap(m)
	}
	return out
}

// Float accepts any JSON or Go numeric value.
func Float(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	default:
		return 0, false
	}
}

// Int accepts integral numbers, including whole floats decoded from JSON.
func Int(v any) (int, bool) {
	f, ok := Float(v)
	if !ok || f != math.Trunc(f) {
		return 0, false
	}
	return int(f), true
}

var requiredKeys = []string{"default_provider", "default_model", "system_prompt"}

// Report is the outcome of Validate.
type Report struct {
	Valid    bool     `json:"valid"`
	Issues   []string `json:"issues"`
	Warnings []string `json:"warnings"`
}

// Validate checks required keys and the types of the well-known ones. It never
// mutates the document.
func (s *Store) Validate() Report {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r := Report{Issues: []string{}, Warnings: []string{}}
	for _, k := range requiredKeys {
		if !truthy(s.doc[k]) {
			r.Issues = append(r.Issues, "Missing required key: "+k)
		}
	}

	checks := []struct {
		key  string
		want string
		ok   func(any) bool
	}{
		{"temperature", "number", func(v any) bool { _, ok := Float(v); return ok }},
		{"max_tokens", "integer", func(v any) bool { _, ok := Int(v); return ok }},
		{"stream", "boolean", func(v any) bool { _, ok := v.(bool); return ok }},
	}
	for _, c := range checks {
		v, present := s.doc[c.key]
		if !present || v == nil || c.ok(v) {
			continue
		}
		r.Warnings = append(r.Warnings, fmt.Sprintf("Key '%s' should be %s, got %s", c.key, c.want, typeName(v)))
	}
	r.Valid = len(r.Issues) == 0
	return r
}

func truthy(v any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case string:
		return x != ""
	case bool:
		return x
	case map[string]any:
		return len(x) > 0
	case []any:
		return len(x) > 0
	}
	if f, ok := Float(v); ok {
		return f != 0
	}
	return true
}

func typeName(v any) string {
	switch v.(type) {
	case string:
		return "string"
	case bool:
		return "boolean"
	case map[string]any:
		return "object"
	case []any:
		return "array"
	}
	if _, ok := Float(v); ok {
		return "number"
	}
	return fmt.Sprintf("%T", v)
}

func cloneMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch x := v.(type) {
	case map[string]any:
		return cloneMap(x)
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = cloneValue(e)
		}
		return out
	case []string:
		return slices.Clone(x)
	default:
		return v
	}
}
