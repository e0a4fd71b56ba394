package rpc_test

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/onlyfeng/engram-gateway/internal/gateway"
	"github.com/onlyfeng/engram-gateway/internal/httpserver"
	"github.com/onlyfeng/engram-gateway/internal/logbook"
	"github.com/onlyfeng/engram-gateway/internal/openmemory"
	"github.com/onlyfeng/engram-gateway/internal/rpc"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	lb := logbook.NewFake()
	om := &openmemory.Fake{}
	om.ConfigureStoreSuccess("mem-rpc-1")

	gw := gateway.New(gateway.Deps{
		Config: gateway.Config{
			ProjectKey:       "default",
			DefaultTeamSpace: "team:default",
		},
		Logbook:    lb,
		OpenMemory: om,
	})

	r := chi.NewRouter()
	r.Use(httpserver.Correlation)

	rpcSrv := rpc.NewServer(gw, discardLogger(), "test")
	rpcSrv.Mount(r)

	return httptest.NewServer(r)
}

func postJSON(t *testing.T, url string, body any) (*http.Response, map[string]any) {
	t.Helper()
	b, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshaling request: %v", err)
	}
	resp, err := http.Post(url+"/mcp", "application/json", bytes.NewReader(b))
	if err != nil {
		t.Fatalf("posting request: %v", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("reading response: %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("decoding response %q: %v", raw, err)
	}
	return resp, decoded
}

func TestMCP_InitializeHandshake(t *testing.T) {
	srv := newTestServer(t)
	defer srv.Close()

	_, body := postJSON(t, srv.URL, map[string]any{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  "initialize",
	})
	result, ok := body["result"].(map[string]any)
	if !ok {
		t.Fatalf("expected a result object, got %+v", body)
	}
	if result["protocolVersion"] != "2024-11-05" {
		t.Fatalf("unexpected protocol version: %+v", result)
	}
}

func TestMCP_ToolsListIncludesAllFiveTools(t *testing.T) {
	srv := newTestServer(t)
	defer srv.Close()

	_, body := postJSON(t, srv.URL, map[string]any{
		"jsonrpc": "2.0",
		"id":      2,
		"method":  "tools/list",
	})
	result := body["result"].(map[string]any)
	tools := result["tools"].([]any)
	if len(tools) != 5 {
		t.Fatalf("expected 5 tools, got %d: %+v", len(tools), tools)
	}
}

func TestMCP_ToolsCallMemoryStore(t *testing.T) {
	srv := newTestServer(t)
	defer srv.Close()

	_, body := postJSON(t, srv.URL, map[string]any{
		"jsonrpc": "2.0",
		"id":      3,
		"method":  "tools/call",
		"params": map[string]any{
			"name":      "memory_store",
			"arguments": map[string]any{"payload_md": "hello from a test"},
		},
	})
	result, ok := body["result"].(map[string]any)
	if !ok {
		t.Fatalf("expected a result, got %+v", body)
	}
	content := result["content"].([]any)[0].(map[string]any)
	var inner map[string]any
	if err := json.Unmarshal([]byte(content["text"].(string)), &inner); err != nil {
		t.Fatalf("decoding tool result text: %v", err)
	}
	if inner["memory_id"] != "mem-rpc-1" {
		t.Fatalf("expected memory_id mem-rpc-1, got %+v", inner)
	}
}

func TestMCP_UnknownMethodReturnsMethodNotFound(t *testing.T) {
	srv := newTestServer(t)
	defer srv.Close()

	_, body := postJSON(t, srv.URL, map[string]any{
		"jsonrpc": "2.0",
		"id":      4,
		"method":  "not/a/real/method",
	})
	errObj, ok := body["error"].(map[string]any)
	if !ok {
		t.Fatalf("expected an error object, got %+v", body)
	}
	if int(errObj["code"].(float64)) != rpc.CodeMethodNotFound {
		t.Fatalf("expected METHOD_NOT_FOUND code, got %+v", errObj)
	}
}

func TestMCP_LegacyEnvelopeDispatch(t *testing.T) {
	srv := newTestServer(t)
	defer srv.Close()

	_, body := postJSON(t, srv.URL, map[string]any{
		"tool":      "memory_store",
		"arguments": map[string]any{"payload_md": "legacy envelope payload"},
	})
	if body["ok"] != true {
		t.Fatalf("expected ok=true, got %+v", body)
	}
}

func TestMCP_CORSPreflight(t *testing.T) {
	srv := newTestServer(t)
	defer srv.Close()

	req, err := http.NewRequest(http.MethodOptions, srv.URL+"/mcp", nil)
	if err != nil {
		t.Fatalf("building request: %v", err)
	}
	req.Header.Set("Access-Control-Request-Headers", "X-Custom-Header")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("preflight request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", resp.StatusCode)
	}
	if resp.Header.Get("Access-Control-Allow-Origin") != "*" {
		t.Fatalf("expected wildcard CORS origin, got %q", resp.Header.Get("Access-Control-Allow-Origin"))
	}
}
