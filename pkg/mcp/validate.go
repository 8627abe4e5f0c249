package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/kamitools/kami/pkg/protocol"
	"github.com/kamitools/kami/pkg/types"
)

// validateArguments checks a tools/call arguments object against the
// schema synthesised from the tool's argument descriptors — the same
// schema tools/list advertises, so a client that honours the listing
// always passes.
func (h *Handler) validateArguments(ctx context.Context, id types.ToolID, arguments json.RawMessage) error {
	tool, err := h.repository.FindByID(ctx, id)
	if err != nil || tool == nil {
		// Let the resolver produce its richer not-found diagnostics.
		return nil
	}
	if len(tool.Manifest.Arguments) == 0 {
		return nil
	}

	schemaJSON := protocol.BuildInputSchema(tool.Manifest.Arguments)
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("kami://input-schema", bytes.NewReader(schemaJSON)); err != nil {
		return nil
	}
	schema, err := compiler.Compile("kami://input-schema")
	if err != nil {
		return nil
	}

	if len(arguments) == 0 {
		arguments = json.RawMessage("{}")
	}
	var decoded any
	if err := json.Unmarshal(arguments, &decoded); err != nil {
		return fmt.Errorf("arguments are not valid JSON: %w", err)
	}
	if err := schema.Validate(decoded); err != nil {
		return fmt.Errorf("arguments do not match the tool's input schema: %v", err)
	}
	return nil
}
