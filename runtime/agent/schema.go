package agent

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"flowgrid/runtime"
)

// BuildParamsSchema renders a module's declared parameter descriptors as a
// JSON Schema object. Schemas are derived from registration-time ParamSpecs,
// never parsed from signature text.
func BuildParamsSchema(params []runtime.ParamSpec) json.RawMessage {
	properties := make(map[string]any, len(params))
	required := make([]string, 0, len(params))
	for _, p := range params {
		prop := map[string]any{"type": p.Type}
		if p.Description != "" {
			prop["description"] = p.Description
		}
		properties[p.Name] = prop
		if p.Required {
			required = append(required, p.Name)
		}
	}

	schema := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}

	raw, err := json.Marshal(schema)
	if err != nil {
		// Building from plain maps of strings; marshalling cannot fail.
		panic(fmt.Sprintf("marshal params schema: %v", err))
	}
	return raw
}

// ValidateArgs checks model-supplied arguments against a tool's parameter
// schema before invocation. Invalid arguments become tool-error results, not
// invocations.
func ValidateArgs(schema, args json.RawMessage) error {
	if len(args) == 0 {
		args = json.RawMessage(`{}`)
	}
	result, err := gojsonschema.Validate(
		gojsonschema.NewBytesLoader(schema),
		gojsonschema.NewBytesLoader(args),
	)
	if err != nil {
		return fmt.Errorf("invalid tool arguments: %w", err)
	}
	if !result.Valid() {
		details := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			details = append(details, desc.String())
		}
		return fmt.Errorf("tool arguments failed schema validation: %s", strings.Join(details, "; "))
	}
	return nil
}
