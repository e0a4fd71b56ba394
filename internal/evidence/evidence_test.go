package evidence_test

import (
	"testing"

	"github.com/onlyfeng/engram-gateway/internal/evidence"
)

func TestValidate_CompatModeAcceptsAnything(t *testing.T) {
	err := evidence.Validate([]evidence.Item{{}}, "compat")
	if err != nil {
		t.Fatalf("expected compat mode to accept anything, got %v", err)
	}
}

func TestValidate_StrictModeRejectsMissingSHA(t *testing.T) {
	err := evidence.Validate([]evidence.Item{{URI: "memory://attachments/1/" + validSHA()}}, "strict")
	if err == nil {
		t.Fatal("expected a validation error for the missing sha256")
	}
}

func TestValidate_StrictModeAcceptsWellFormedAttachment(t *testing.T) {
	sha := validSHA()
	err := evidence.Validate([]evidence.Item{{SHA256: sha, URI: "memory://attachments/1/" + sha}}, "strict")
	if err != nil {
		t.Fatalf("expected a well-formed attachment to pass, got %v", err)
	}
}

func TestValidate_StrictModeAcceptsArtifactKeyWithoutURI(t *testing.T) {
	err := evidence.Validate([]evidence.Item{{SHA256: validSHA(), Artifact: "artifact:" + validSHA()}}, "strict")
	if err != nil {
		t.Fatalf("expected an artifact-key reference to pass, got %v", err)
	}
}

func TestValidate_StrictModeRejectsMalformedURI(t *testing.T) {
	err := evidence.Validate([]evidence.Item{{SHA256: validSHA(), URI: "https://example.com/file"}}, "strict")
	if err == nil {
		t.Fatal("expected a malformed uri to be rejected in strict mode")
	}
}

func validSHA() string {
	return "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
}
