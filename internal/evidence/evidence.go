// Package evidence validates the evidence refs attached to a memory_store
// request. Behavior is gated by the project's evidence_mode: compat
// accepts anything, strict enforces sha256 + URI well-formedness.
package evidence

import (
	"fmt"
	"regexp"
	"strings"
)

var sha256Pattern = regexp.MustCompile(`^[a-f0-9]{64}$`)
var attachmentURIPattern = regexp.MustCompile(`^memory://attachments/(\d+)/([a-f0-9]{64})$`)

// ValidationError reports which evidence element failed and why.
type ValidationError struct {
	Index  int
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("EVIDENCE_VALIDATION_FAILED:index=%d:%s", e.Index, e.Reason)
}

// Item is one element of the evidence array.
type Item struct {
	SHA256      string `json:"sha256,omitempty"`
	Artifact    string `json:"artifact,omitempty"`
	URI         string `json:"uri,omitempty"`
	ArtifactURI string `json:"artifact_uri,omitempty"`
}

// Validate applies the evidence_mode rule. Legacy evidence_refs strings are
// not passed here — the caller carries them through unconditionally as
// evidence_refs_json.refs (SPEC_FULL.md §4.3).
func Validate(items []Item, evidenceMode string) error {
	if !strings.EqualFold(evidenceMode, "strict") {
		return nil
	}

	for i, item := range items {
		if !sha256Pattern.MatchString(strings.ToLower(item.SHA256)) {
			return &ValidationError{Index: i, Reason: "sha256 missing or malformed"}
		}

		uri := item.URI
		if uri == "" {
			uri = item.ArtifactURI
		}

		switch {
		case item.Artifact != "":
			// an artifact key reference is always well-formed
		case uri != "":
			if !attachmentURIPattern.MatchString(uri) {
				return &ValidationError{Index: i, Reason: "uri is not a well-formed memory:// attachment reference"}
			}
		default:
			return &ValidationError{Index: i, Reason: "neither artifact nor uri reference present"}
		}
	}

	return nil
}
