// Package rpc is the MCP front-end: one POST /mcp endpoint that accepts
// both a JSON-RPC 2.0 envelope and a legacy {tool, arguments} envelope,
// dispatches to the five Gateway tools, and never generates its own
// correlation id — it only ever reads the one the HTTP middleware minted.
package rpc

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/onlyfeng/engram-gateway/internal/correlation"
	"github.com/onlyfeng/engram-gateway/internal/gateway"
	"github.com/onlyfeng/engram-gateway/internal/httpserver"
	"github.com/onlyfeng/engram-gateway/internal/redact"
)

// Server is the RPC front-end.
type Server struct {
	gw         *gateway.Gateway
	logger     *slog.Logger
	errBuilder ErrorBuilder
	version    string
}

// NewServer builds an RPC front-end over gw. version is echoed in
// initialize's serverInfo.
func NewServer(gw *gateway.Gateway, logger *slog.Logger, version string) *Server {
	return &Server{
		gw:         gw,
		logger:     logger,
		errBuilder: NewErrorBuilder(true),
		version:    version,
	}
}

// Mount wires POST/OPTIONS /mcp onto r.
func (s *Server) Mount(r interface {
	Post(pattern string, h http.HandlerFunc)
	Options(pattern string, h http.HandlerFunc)
}) {
	r.Post("/mcp", s.handlePost)
	r.Options("/mcp", s.handleOptions)
}

// handleOptions answers the CORS preflight per SPEC_FULL.md §4.1. Header
// names are logged, never values.
func (s *Server) handleOptions(w http.ResponseWriter, r *http.Request) {
	requested := r.Header.Get("Access-Control-Request-Headers")
	allowed := "Content-Type, Authorization, X-Correlation-ID, X-Request-Id"
	if requested != "" {
		allowed = requested + ", X-Correlation-ID, X-Request-Id"
	}
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", allowed)
	w.Header().Set("Access-Control-Expose-Headers", "X-Correlation-ID")
	s.logger.Debug("cors preflight", "path", "/mcp")
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handlePost(w http.ResponseWriter, r *http.Request) {
	correlationID := correlation.FromContext(r.Context())

	w.Header().Set("X-Correlation-ID", correlationID)
	w.Header().Set("Access-Control-Expose-Headers", "X-Correlation-ID")
	w.Header().Set("Content-Type", "application/json")

	body, err := decodeBody(r)
	if err != nil {
		s.writeJSONRPCError(w, nil, s.errBuilder.Build(CodeParseError, CategoryProtocol, ReasonParseError, redact.String(err.Error()), correlationID, false, nil))
		return
	}

	if body.IsJSONRPC() {
		s.handleJSONRPC(w, r, correlationID, body)
		return
	}
	s.handleLegacy(w, r, correlationID, body)
}

func decodeBody(r *http.Request) (Request, error) {
	var req Request
	if err := httpserver.Decode(r, &req); err != nil {
		return Request{}, err
	}
	return req, nil
}

func (s *Server) handleJSONRPC(w http.ResponseWriter, r *http.Request, correlationID string, req Request) {
	switch req.Method {
	case "initialize":
		s.writeJSONRPCResult(w, req.ID, map[string]any{
			"protocolVersion": "2024-11-05",
			"capabilities":    map[string]any{"tools": map[string]any{}},
			"serverInfo":      map[string]any{"name": "engram-gateway", "version": s.version},
		})
	case "ping":
		s.writeJSONRPCResult(w, req.ID, map[string]any{})
	case "tools/list":
		s.writeJSONRPCResult(w, req.ID, map[string]any{"tools": descriptors()})
	case "tools/call":
		s.handleToolsCall(w, r, req, correlationID)
	default:
		s.writeJSONRPCError(w, req.ID, s.errBuilder.Build(CodeMethodNotFound, CategoryProtocol, ReasonMethodNotFound, "unknown method: "+redact.String(req.Method), correlationID, false, nil))
	}
}

func (s *Server) handleToolsCall(w http.ResponseWriter, r *http.Request, req Request, correlationID string) {
	var params ToolCallParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		s.writeJSONRPCError(w, req.ID, s.errBuilder.Build(CodeInvalidParams, CategoryValidation, ReasonMissingRequiredParam, "invalid tools/call params", correlationID, false, nil))
		return
	}

	t, ok := lookupTool(params.Name)
	if !ok {
		s.writeJSONRPCError(w, req.ID, s.errBuilder.Build(CodeInvalidParams, CategoryValidation, ReasonUnknownTool, "unknown tool: "+redact.String(params.Name), correlationID, false, nil))
		return
	}

	result, err := t.handler(r.Context(), s.gw, correlationID, params.Arguments)
	if err != nil {
		s.writeJSONRPCError(w, req.ID, s.errorFor(err, correlationID))
		return
	}

	text, err := json.Marshal(result)
	if err != nil {
		s.writeJSONRPCError(w, req.ID, s.errBuilder.Build(CodeInternalError, CategoryInternal, ReasonUnhandledException, "encoding tool result", correlationID, false, nil))
		return
	}

	s.writeJSONRPCResult(w, req.ID, ToolCallResult{Content: []ToolCallContent{{Type: "text", Text: string(text)}}})
}

func (s *Server) handleLegacy(w http.ResponseWriter, r *http.Request, correlationID string, req Request) {
	if req.Tool == "" {
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(LegacyResponse{OK: false, Error: "missing tool field", CorrelationID: correlationID})
		return
	}

	t, ok := lookupTool(req.Tool)
	if !ok {
		_ = json.NewEncoder(w).Encode(LegacyResponse{OK: false, Error: "unknown tool: " + redact.String(req.Tool), CorrelationID: correlationID})
		return
	}

	result, err := t.handler(r.Context(), s.gw, correlationID, req.Arguments)
	if err != nil {
		_ = json.NewEncoder(w).Encode(LegacyResponse{OK: false, Error: redact.String(err.Error()), CorrelationID: correlationID})
		return
	}

	_ = json.NewEncoder(w).Encode(LegacyResponse{OK: true, Result: result, CorrelationID: correlationID})
}

// errorFor classifies a handler error into the closed reason vocabulary.
func (s *Server) errorFor(err error, correlationID string) *RPCError {
	if missing, ok := err.(*gateway.MissingParamError); ok {
		return s.errBuilder.Build(CodeInvalidParams, CategoryValidation, ReasonMissingRequiredParam, missing.Error(), correlationID, false, nil)
	}
	if decodeErr, ok := err.(*DecodeError); ok {
		return s.errBuilder.Build(CodeInvalidParams, CategoryValidation, ReasonMissingRequiredParam, redact.String(decodeErr.Error()), correlationID, false, nil)
	}
	if validationErr, ok := err.(*ValidationFailedError); ok {
		details := make(map[string]any, len(validationErr.Fields))
		for _, f := range validationErr.Fields {
			details[f.Field] = f.Message
		}
		return s.errBuilder.Build(CodeInvalidParams, CategoryValidation, ReasonMissingRequiredParam, redact.String(validationErr.Error()), correlationID, false, details)
	}
	s.logger.Error("unhandled tool error", "error", err, "correlation_id", correlationID)
	return s.errBuilder.Build(CodeInternalError, CategoryInternal, ReasonUnhandledException, "internal error", correlationID, true, nil)
}

func (s *Server) writeJSONRPCResult(w http.ResponseWriter, id json.RawMessage, result any) {
	_ = json.NewEncoder(w).Encode(Response{JSONRPC: "2.0", ID: id, Result: result})
}

func (s *Server) writeJSONRPCError(w http.ResponseWriter, id json.RawMessage, rpcErr *RPCError) {
	_ = json.NewEncoder(w).Encode(ErrorResponse{JSONRPC: "2.0", ID: id, Error: rpcErr})
}
