package protocol

import (
	"encoding/json"

	"github.com/kamitools/kami/pkg/types"
)

// BuildInputSchema projects a tool's argument descriptors into the JSON
// Schema object advertised through tools/list:
//
//	{type: "object", properties: {...}, required: [...]}
//
// with "required" omitted when no argument demands it.
func BuildInputSchema(arguments []types.ToolArgument) json.RawMessage {
	properties := make(map[string]any, len(arguments))
	var required []string

	for _, arg := range arguments {
		prop := map[string]any{
			"type":        arg.Type,
			"description": arg.Description,
		}
		if arg.Default != nil {
			prop["default"] = *arg.Default
		}
		properties[arg.Name] = prop
		if arg.Required {
			required = append(required, arg.Name)
		}
	}

	schema := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}

	// Marshalling a map of JSON-safe values cannot fail.
	payload, _ := json.Marshal(schema)
	return payload
}
