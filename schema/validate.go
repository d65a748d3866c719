package schema

import (
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// Validate compiles params as a JSON Schema and validates args against it.
// It is called by the scheduler (C4) against the tool's post-intent-strip
// parameter schema before Execute is invoked; a non-nil error becomes a
// validation-failed tool result and Execute is never called.
func Validate(params map[string]any, args json.RawMessage) error {
	if params == nil {
		return nil
	}
	compiler := jsonschema.NewCompiler()
	const resourceName = "params.json"
	if err := compiler.AddResource(resourceName, params); err != nil {
		return fmt.Errorf("compile schema: %w", err)
	}
	compiled, err := compiler.Compile(resourceName)
	if err != nil {
		return fmt.Errorf("compile schema: %w", err)
	}

	var decoded any
	if len(args) == 0 {
		decoded = map[string]any{}
	} else if err := json.Unmarshal(args, &decoded); err != nil {
		return fmt.Errorf("decode arguments: %w", err)
	}
	if err := compiled.Validate(decoded); err != nil {
		return fmt.Errorf("validate arguments: %w", err)
	}
	return nil
}
