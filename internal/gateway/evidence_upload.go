package gateway

import "context"

// EvidenceUploadRequest is evidence_upload's public input.
type EvidenceUploadRequest struct {
	Content     string `json:"content" validate:"required"`
	ContentType string `json:"content_type" validate:"required"`
	Title       string `json:"title,omitempty"`
	ActorUserID string `json:"actor_user_id,omitempty"`
	ProjectKey  string `json:"project_key,omitempty"`
	ItemID      string `json:"item_id,omitempty"`
}

// EvidenceRef is the stored artifact's reference, attached to a subsequent
// memory_store call's evidence array.
type EvidenceRef struct {
	URI         string `json:"uri"`
	SHA256      string `json:"sha256"`
	Size        int64  `json:"size"`
	ContentType string `json:"content_type"`
}

// EvidenceUploadResponse is evidence_upload's output. Failures are
// reported as a business-level ok=false response, never a JSON-RPC
// protocol error.
type EvidenceUploadResponse struct {
	OK            bool         `json:"ok"`
	Evidence      *EvidenceRef `json:"evidence,omitempty"`
	Message       string       `json:"message,omitempty"`
	CorrelationID string       `json:"correlation_id"`
}

// EvidenceUpload stores content in the artifact store and returns its
// content-addressed reference, per SPEC_FULL.md §4.7.
func (g *Gateway) EvidenceUpload(ctx context.Context, correlationID string, req EvidenceUploadRequest) (EvidenceUploadResponse, error) {
	if req.Content == "" {
		return EvidenceUploadResponse{}, &MissingParamError{Field: "content"}
	}
	if req.ContentType == "" {
		return EvidenceUploadResponse{}, &MissingParamError{Field: "content_type"}
	}

	artifact, err := g.deps.ArtifactStore.Put(ctx, req.ContentType, []byte(req.Content))
	if err != nil {
		return EvidenceUploadResponse{OK: false, Message: err.Error(), CorrelationID: correlationID}, nil
	}

	return EvidenceUploadResponse{
		OK: true,
		Evidence: &EvidenceRef{
			URI:         artifact.URI,
			SHA256:      artifact.SHA256,
			Size:        artifact.Size,
			ContentType: artifact.ContentType,
		},
		CorrelationID: correlationID,
	}, nil
}
