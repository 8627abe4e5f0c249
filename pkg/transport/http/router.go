package http

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/kamitools/kami/pkg/mcp"
	"github.com/kamitools/kami/pkg/protocol"
)

// RouterConfig configures the HTTP surface.
type RouterConfig struct {
	// Auth guards POST /mcp; nil disables authentication.
	Auth Authenticator
	// RateLimiter guards POST /mcp per client IP; nil disables it.
	RateLimiter *ClientRateLimiter
}

// NewRouter builds the mux: POST /mcp is the sole business endpoint,
// GET /health and GET /health/ready are static probes.
func NewRouter(handler *mcp.Handler, cfg RouterConfig) http.Handler {
	mux := http.NewServeMux()

	var mcpHandler http.Handler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handleMCP(w, r, handler, cfg.Auth)
	})
	if cfg.RateLimiter != nil {
		mcpHandler = cfg.RateLimiter.Middleware(mcpHandler)
	}
	mux.Handle("POST /mcp", mcpHandler)

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "service": "kami"})
	})
	mux.HandleFunc("GET /health/ready", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready", "service": "kami"})
	})

	return mux
}

func handleMCP(w http.ResponseWriter, r *http.Request, handler *mcp.Handler, auth Authenticator) {
	if auth != nil {
		if err := auth.Authenticate(r); err != nil {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
			return
		}
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, 4<<20))
	if err != nil {
		writeRPCError(w, protocol.CodeInternalError, "failed to read body")
		return
	}

	var probe struct {
		ID json.RawMessage `json:"id"`
	}
	if err := json.Unmarshal(body, &probe); err != nil {
		// Parse errors ride an HTTP 200 with a null-id JSON-RPC error.
		writeRPCError(w, protocol.CodeParseError, "Parse error")
		return
	}

	if len(probe.ID) == 0 || string(probe.ID) == "null" {
		var notif protocol.Notification
		if err := json.Unmarshal(body, &notif); err == nil {
			slog.Debug("received notification", "method", notif.Method)
			handler.HandleNotification(notif)
		}
		w.WriteHeader(http.StatusNoContent)
		return
	}

	var req protocol.Request
	if err := json.Unmarshal(body, &req); err != nil {
		writeRPCError(w, protocol.CodeInvalidRequest, "Invalid request: "+err.Error())
		return
	}

	output := handler.Dispatch(r.Context(), req)
	payload, err := json.Marshal(output)
	if err != nil {
		writeRPCError(w, protocol.CodeInternalError, err.Error())
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(payload)
}

// writeRPCError emits a JSON-RPC error body with a null id. Transport
// status stays 200: the JSON-RPC layer, not HTTP, reports the failure.
func writeRPCError(w http.ResponseWriter, code int, message string) {
	writeJSON(w, http.StatusOK, map[string]any{
		"jsonrpc": protocol.Version,
		"id":      nil,
		"error":   map[string]any{"code": code, "message": message},
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
