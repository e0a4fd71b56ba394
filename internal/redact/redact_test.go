package redact_test

import (
	"strings"
	"testing"

	"github.com/onlyfeng/engram-gateway/internal/redact"
)

func TestString_RedactsBearerToken(t *testing.T) {
	out := redact.String("Authorization failed for Bearer abc123.def456")
	if strings.Contains(out, "abc123") {
		t.Fatalf("expected bearer token to be redacted, got %q", out)
	}
}

func TestString_RedactsAPIKey(t *testing.T) {
	out := redact.String("leaked key sk-abcdefghijklmnopqrstuvwx in error message")
	if strings.Contains(out, "sk-abcdefghijklmnopqrstuvwx") {
		t.Fatalf("expected api key to be redacted, got %q", out)
	}
}

func TestString_LeavesOrdinaryTextUnchanged(t *testing.T) {
	in := "unknown tool: frobnicate"
	if out := redact.String(in); out != in {
		t.Fatalf("expected ordinary text to pass through unchanged, got %q", out)
	}
}

func TestHeaders_CopiesNamesOnly(t *testing.T) {
	names := []string{"Authorization", "X-Correlation-ID"}
	out := redact.Headers(names)
	if len(out) != len(names) {
		t.Fatalf("expected %d names, got %d", len(names), len(out))
	}
	out[0] = "mutated"
	if names[0] == "mutated" {
		t.Fatal("expected Headers to return a copy, not alias the input slice")
	}
}
