// Package schema implements the intent-tracing schema transformer (C3) and
// tool-argument validation (C10b).
package schema

const (
	// IntentProperty is the name of the synthetic field injected into every
	// tool's parameter schema when intent tracing is enabled.
	IntentProperty = "_intent"

	// IntentDescription is the description attached to the injected
	// property, instructing the model to supply a one-line justification.
	IntentDescription = "A short, one-line justification for why this tool call is being made."
)

// WithIntent returns a deep copy of params with an _intent string property
// added to properties and to required (creating either as needed). The
// original params is never mutated, satisfying §4.3's requirement that the
// transformed schema share no mutable substructure with the original.
//
// When intentTracing is false, WithIntent returns params unchanged (identity
// per §4.3's "disabled" case) — callers should simply skip calling it rather
// than pass false, but the zero-cost identity path is kept here too so a
// caller toggling a stored bool doesn't need an extra branch.
func WithIntent(params map[string]any, intentTracing bool) map[string]any {
	if !intentTracing || params == nil {
		return params
	}
	out := deepClone(params).(map[string]any)

	properties, _ := out["properties"].(map[string]any)
	if properties == nil {
		properties = make(map[string]any)
	}
	properties[IntentProperty] = map[string]any{
		"type":        "string",
		"description": IntentDescription,
	}
	out["properties"] = properties

	required := toStringSlice(out["required"])
	if !containsString(required, IntentProperty) {
		required = append(required, IntentProperty)
	}
	out["required"] = required

	return out
}

// deepClone recursively clones JSON-shaped values (map[string]any,
// []any, and scalars). JSON Schema trees produced by encoding/json or
// hand-built literals are always one of these shapes.
func deepClone(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, e := range val {
			out[k] = deepClone(e)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, e := range val {
			out[i] = deepClone(e)
		}
		return out
	default:
		return val
	}
}

func toStringSlice(v any) []string {
	switch val := v.(type) {
	case []string:
		out := make([]string, len(val))
		copy(out, val)
		return out
	case []any:
		out := make([]string, 0, len(val))
		for _, e := range val {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

func containsString(ss []string, s string) bool {
	for _, v := range ss {
		if v == s {
			return true
		}
	}
	return false
}
