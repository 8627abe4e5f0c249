package stdio

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/kamitools/kami/pkg/mcp"
	"github.com/kamitools/kami/pkg/protocol"
)

// Server runs the MCP loop over a Transport: requests (messages with an
// id) are dispatched and answered; notifications are handled silently;
// malformed JSON is answered with a parse error.
type Server struct {
	transport *Transport
	handler   *mcp.Handler
}

// NewServer creates a server over the given transport and handler.
func NewServer(transport *Transport, handler *mcp.Handler) *Server {
	return &Server{transport: transport, handler: handler}
}

// Run processes messages until EOF or ctx cancellation.
func (s *Server) Run(ctx context.Context) error {
	slog.Info("MCP server listening on stdio")

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		line, err := s.transport.ReadLine()
		if err != nil {
			return err
		}
		if line == nil {
			slog.Info("stdin closed, shutting down")
			return nil
		}
		if *line == "" {
			continue
		}

		if output, respond := s.handleLine(ctx, *line); respond {
			payload, err := json.Marshal(output)
			if err != nil {
				slog.Error("failed to serialise response", "error", err)
				continue
			}
			if err := s.transport.WriteLine(string(payload)); err != nil {
				return err
			}
		}
	}
}

// handleLine classifies one message. The second return reports whether a
// response line must be written: notifications stay silent.
func (s *Server) handleLine(ctx context.Context, line string) (protocol.Output, bool) {
	var probe struct {
		ID json.RawMessage `json:"id"`
	}
	if err := json.Unmarshal([]byte(line), &probe); err != nil {
		slog.Warn("failed to parse JSON-RPC message", "error", err)
		return protocol.Fail(protocol.Error(protocol.RequestID{}, protocol.CodeParseError,
			"parse error: "+err.Error())), true
	}

	if len(probe.ID) == 0 || string(probe.ID) == "null" {
		var notif protocol.Notification
		if err := json.Unmarshal([]byte(line), &notif); err != nil {
			slog.Warn("malformed notification dropped", "error", err)
			return protocol.Output{}, false
		}
		slog.Debug("received notification", "method", notif.Method)
		s.handler.HandleNotification(notif)
		return protocol.Output{}, false
	}

	var req protocol.Request
	if err := json.Unmarshal([]byte(line), &req); err != nil {
		return protocol.Fail(protocol.Error(protocol.RequestID{}, protocol.CodeInvalidRequest,
			"invalid request: "+err.Error())), true
	}

	slog.Debug("received request", "method", req.Method, "id", req.ID)
	return s.handler.Dispatch(ctx, req), true
}
