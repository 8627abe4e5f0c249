// Package mcp routes JSON-RPC requests to the MCP methods this server
// implements: initialize, notifications/initialized, tools/list, and
// tools/call. The handler is transport-agnostic; stdio and HTTP framing
// live in pkg/transport.
package mcp

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/kamitools/kami/pkg/protocol"
	"github.com/kamitools/kami/pkg/registry"
	"github.com/kamitools/kami/pkg/runtime"
	"github.com/kamitools/kami/pkg/types"
)

// Runtime is the execution surface the handler needs; satisfied by
// *runtime.Orchestrator and by test doubles.
type Runtime interface {
	Execute(ctx context.Context, id types.ToolID, input string) (runtime.ExecutionResult, error)
}

// Handler dispatches MCP methods.
type Handler struct {
	runtime    Runtime
	repository registry.ToolRepository
	version    string
	validate   bool
}

// HandlerOption configures optional handler behaviour.
type HandlerOption func(*Handler)

// WithArgumentValidation rejects tools/call arguments that do not match
// the tool's advertised input schema, instead of passing them through.
func WithArgumentValidation() HandlerOption {
	return func(h *Handler) { h.validate = true }
}

// NewHandler creates a handler for the given runtime and catalog.
// version is the server's own semver, advertised in initialize.
func NewHandler(rt Runtime, repository registry.ToolRepository, version string, opts ...HandlerOption) *Handler {
	h := &Handler{runtime: rt, repository: repository, version: version}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Dispatch routes one request to its method handler.
func (h *Handler) Dispatch(ctx context.Context, req protocol.Request) protocol.Output {
	if err := req.Validate(); err != nil {
		return protocol.Fail(protocol.Error(req.ID, protocol.CodeInvalidRequest, err.Error()))
	}

	switch req.Method {
	case protocol.MethodInitialize:
		return h.handleInitialize(req)
	case protocol.MethodToolsList:
		return h.handleToolsList(ctx, req)
	case protocol.MethodToolsCall:
		return h.handleToolsCall(ctx, req)
	default:
		return protocol.Fail(protocol.Error(req.ID, protocol.CodeMethodNotFound, "method not found: "+req.Method))
	}
}

// HandleNotification accepts a notification silently. Unknown
// notifications are logged and dropped; notifications never produce a
// response on any transport.
func (h *Handler) HandleNotification(notif protocol.Notification) {
	switch notif.Method {
	case protocol.MethodInitialized:
		slog.Debug("client initialized")
	default:
		slog.Debug("ignoring notification", "method", notif.Method)
	}
}

func (h *Handler) handleInitialize(req protocol.Request) protocol.Output {
	if len(req.Params) > 0 {
		var params protocol.InitializeParams
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return protocol.Fail(protocol.Error(req.ID, protocol.CodeInvalidParams,
				"invalid initialize params: "+err.Error()))
		}
	}

	result := protocol.InitializeResult{
		ProtocolVersion: protocol.ProtocolVersion,
		Capabilities:    protocol.ServerCapabilities{Tools: &protocol.ToolsCapability{}},
		ServerInfo:      protocol.ServerInfo{Name: protocol.ServerName, Version: h.version},
	}
	return success(req.ID, result)
}

func (h *Handler) handleToolsList(ctx context.Context, req protocol.Request) protocol.Output {
	tools, err := h.repository.FindAll(ctx, registry.EnabledTools())
	if err != nil {
		return protocol.Fail(protocol.Error(req.ID, protocol.CodeInternalError, "catalog error: "+err.Error()))
	}

	definitions := make([]protocol.ToolDefinition, 0, len(tools))
	for _, tool := range tools {
		definitions = append(definitions, protocol.ToolDefinition{
			Name:        tool.Manifest.ID.String(),
			Description: tool.Manifest.Description,
			InputSchema: protocol.BuildInputSchema(tool.Manifest.Arguments),
		})
	}

	return success(req.ID, protocol.ToolsListResult{Tools: definitions})
}

func (h *Handler) handleToolsCall(ctx context.Context, req protocol.Request) protocol.Output {
	if len(req.Params) == 0 {
		return protocol.Fail(protocol.Error(req.ID, protocol.CodeInvalidParams, "tools/call requires params"))
	}
	var params protocol.ToolsCallParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return protocol.Fail(protocol.Error(req.ID, protocol.CodeInvalidParams,
			"invalid tools/call params: "+err.Error()))
	}

	toolID, err := types.ParseToolID(params.Name)
	if err != nil {
		return protocol.Fail(protocol.Error(req.ID, protocol.CodeInvalidParams,
			"invalid tool name: "+err.Error()))
	}

	input := "{}"
	if len(params.Arguments) > 0 {
		input = string(params.Arguments)
	}

	if h.validate {
		if verr := h.validateArguments(ctx, toolID, params.Arguments); verr != nil {
			return protocol.Fail(protocol.Error(req.ID, protocol.CodeInvalidParams, verr.Error()))
		}
	}

	slog.Debug("executing tool via MCP", "tool", toolID)

	// Runtime errors become a successful JSON-RPC response with an
	// error-shaped result, per the MCP convention; only protocol-level
	// problems surface as JSON-RPC errors.
	result, err := h.runtime.Execute(ctx, toolID, input)
	content, isError := result.Content, !result.Success
	if err != nil {
		content, isError = err.Error(), true
	}

	return success(req.ID, protocol.ToolsCallResult{
		Content: []protocol.ToolContent{protocol.TextContent(content)},
		IsError: isError,
	})
}

func success(id protocol.RequestID, result any) protocol.Output {
	resp, err := protocol.Success(id, result)
	if err != nil {
		return protocol.Fail(protocol.Error(id, protocol.CodeInternalError, err.Error()))
	}
	return protocol.OK(resp)
}
