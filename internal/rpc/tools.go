package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/onlyfeng/engram-gateway/internal/gateway"
	"github.com/onlyfeng/engram-gateway/internal/httpserver"
)

// toolHandler decodes raw JSON arguments, dispatches to the Gateway, and
// returns the handler's response as a JSON-serializable value.
type toolHandler func(ctx context.Context, gw *gateway.Gateway, correlationID string, raw json.RawMessage) (any, error)

// decodeArgs unmarshals raw tool arguments into dst and runs struct-tag
// validation over the result, so a tool never reaches the Gateway with a
// field validator.v10 already flagged as missing.
func decodeArgs(raw json.RawMessage, dst any) error {
	if err := json.Unmarshal(raw, dst); err != nil {
		return &DecodeError{Err: err}
	}
	if errs := httpserver.Validate(dst); len(errs) > 0 {
		return &ValidationFailedError{Fields: errs}
	}
	return nil
}

// ValidationFailedError wraps the struct-tag validation failures for a
// tool's decoded arguments.
type ValidationFailedError struct{ Fields []httpserver.ValidationError }

func (e *ValidationFailedError) Error() string {
	msgs := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		msgs = append(msgs, f.Field+": "+f.Message)
	}
	return "validation failed: " + strings.Join(msgs, "; ")
}

type tool struct {
	descriptor ToolDescriptor
	handler    toolHandler
}

// registry is the closed set of tools this deployment serves. The five
// listed here are mandatory; a deployment-specific build can append more
// before calling NewServer.
var registry = []tool{
	{
		descriptor: ToolDescriptor{
			Name:        "memory_store",
			Description: "Write a memory, subject to governance policy and evidence validation.",
			InputSchema: map[string]any{
				"type":     "object",
				"required": []string{"payload_md"},
				"properties": map[string]any{
					"payload_md":    map[string]any{"type": "string"},
					"target_space":  map[string]any{"type": "string"},
					"meta_json":     map[string]any{"type": "object"},
					"kind":          map[string]any{"type": "string"},
					"evidence_refs": map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
					"evidence":      map[string]any{"type": "array", "items": map[string]any{"type": "object"}},
					"actor_user_id": map[string]any{"type": "string"},
					"item_id":       map[string]any{"type": "string"},
					"is_bulk":       map[string]any{"type": "boolean"},
				},
			},
		},
		handler: func(ctx context.Context, gw *gateway.Gateway, correlationID string, raw json.RawMessage) (any, error) {
			var req gateway.StoreRequest
			if err := decodeArgs(raw, &req); err != nil {
				return nil, err
			}
			resp, err := gw.MemoryStore(ctx, correlationID, req)
			if err != nil {
				return nil, err
			}
			return resp, nil
		},
	},
	{
		descriptor: ToolDescriptor{
			Name:        "memory_query",
			Description: "Search for memories, falling back to a degraded local search if the primary provider is unavailable.",
			InputSchema: map[string]any{
				"type":     "object",
				"required": []string{"query"},
				"properties": map[string]any{
					"query":   map[string]any{"type": "string"},
					"user_id": map[string]any{"type": "string"},
					"top_k":   map[string]any{"type": "integer"},
					"spaces":  map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
					"filters": map[string]any{"type": "object"},
				},
			},
		},
		handler: func(ctx context.Context, gw *gateway.Gateway, correlationID string, raw json.RawMessage) (any, error) {
			var req gateway.QueryRequest
			if err := decodeArgs(raw, &req); err != nil {
				return nil, err
			}
			resp, err := gw.MemoryQuery(ctx, correlationID, req)
			if err != nil {
				return nil, err
			}
			return resp, nil
		},
	},
	{
		descriptor: ToolDescriptor{
			Name:        "governance_update",
			Description: "Update a project's governance settings (admin-key gated).",
			InputSchema: map[string]any{
				"type":     "object",
				"required": []string{},
				"properties": map[string]any{
					"admin_key":          map[string]any{"type": "string"},
					"team_write_enabled": map[string]any{"type": "boolean"},
					"policy_json":        map[string]any{"type": "object"},
					"actor_user_id":      map[string]any{"type": "string"},
				},
			},
		},
		handler: func(ctx context.Context, gw *gateway.Gateway, correlationID string, raw json.RawMessage) (any, error) {
			var req gateway.GovernanceUpdateRequest
			if err := json.Unmarshal(raw, &req); err != nil {
				return nil, &DecodeError{Err: err}
			}
			resp, err := gw.GovernanceUpdate(ctx, correlationID, req)
			if err != nil {
				return nil, err
			}
			return resp, nil
		},
	},
	{
		descriptor: ToolDescriptor{
			Name:        "evidence_upload",
			Description: "Upload evidence content to the artifact store and get back a reference.",
			InputSchema: map[string]any{
				"type":     "object",
				"required": []string{"content", "content_type"},
				"properties": map[string]any{
					"content":       map[string]any{"type": "string"},
					"content_type":  map[string]any{"type": "string"},
					"title":         map[string]any{"type": "string"},
					"actor_user_id": map[string]any{"type": "string"},
					"project_key":   map[string]any{"type": "string"},
					"item_id":       map[string]any{"type": "string"},
				},
			},
		},
		handler: func(ctx context.Context, gw *gateway.Gateway, correlationID string, raw json.RawMessage) (any, error) {
			var req gateway.EvidenceUploadRequest
			if err := decodeArgs(raw, &req); err != nil {
				return nil, err
			}
			resp, err := gw.EvidenceUpload(ctx, correlationID, req)
			if err != nil {
				return nil, err
			}
			return resp, nil
		},
	},
	{
		descriptor: ToolDescriptor{
			Name:        "reliability_report",
			Description: "Read aggregate outbox and audit health.",
			InputSchema: map[string]any{
				"type":     "object",
				"required": []string{},
				"properties": map[string]any{
					"post_digest": map[string]any{"type": "boolean"},
				},
			},
		},
		handler: func(ctx context.Context, gw *gateway.Gateway, correlationID string, raw json.RawMessage) (any, error) {
			var req gateway.ReliabilityReportRequest
			if len(raw) > 0 {
				if err := json.Unmarshal(raw, &req); err != nil {
					return nil, &DecodeError{Err: err}
				}
			}
			resp, err := gw.ReliabilityReport(ctx, correlationID, req)
			if err != nil {
				return nil, err
			}
			return resp, nil
		},
	},
}

// DecodeError wraps a failure to unmarshal tool arguments.
type DecodeError struct{ Err error }

func (e *DecodeError) Error() string { return fmt.Sprintf("decoding tool arguments: %v", e.Err) }
func (e *DecodeError) Unwrap() error { return e.Err }

func lookupTool(name string) (tool, bool) {
	for _, t := range registry {
		if t.descriptor.Name == name {
			return t, true
		}
	}
	return tool{}, false
}

func descriptors() []ToolDescriptor {
	out := make([]ToolDescriptor, 0, len(registry))
	for _, t := range registry {
		out = append(out, t.descriptor)
	}
	return out
}
