package gateway

import (
	"context"

	"github.com/onlyfeng/engram-gateway/internal/logbook"
)

// GovernanceUpdateRequest is governance_update's public input. Only
// non-nil/non-empty fields are applied; the rest of a project's settings
// are left untouched (partial-update semantics).
type GovernanceUpdateRequest struct {
	AdminKey         string         `json:"admin_key,omitempty"`
	TeamWriteEnabled *bool          `json:"team_write_enabled,omitempty"`
	PolicyJSON       map[string]any `json:"policy_json,omitempty"`
	ActorUserID      string         `json:"actor_user_id,omitempty"`
}

// GovernanceUpdateResponse is governance_update's output.
type GovernanceUpdateResponse struct {
	OK               bool           `json:"ok"`
	Action           string         `json:"action"`
	TeamWriteEnabled bool           `json:"team_write_enabled,omitempty"`
	PolicyJSON       map[string]any `json:"policy_json,omitempty"`
	Message          string         `json:"message,omitempty"`
	CorrelationID    string         `json:"correlation_id"`
}

// GovernanceUpdate applies a partial settings change, gated by the
// deployment's optional admin key, per SPEC_FULL.md §4.5.
func (g *Gateway) GovernanceUpdate(ctx context.Context, correlationID string, req GovernanceUpdateRequest) (GovernanceUpdateResponse, error) {
	if g.deps.Config.GovernanceAdminKey != "" && req.AdminKey != g.deps.Config.GovernanceAdminKey {
		return GovernanceUpdateResponse{OK: false, Action: "reject", Message: "admin_key_mismatch", CorrelationID: correlationID}, nil
	}

	settings, err := g.deps.Logbook.UpsertSettings(ctx, g.deps.Config.ProjectKey, req.TeamWriteEnabled, req.PolicyJSON, req.ActorUserID)
	if err != nil {
		return GovernanceUpdateResponse{OK: false, Action: "error", Message: err.Error(), CorrelationID: correlationID}, nil
	}

	var actorUserID *string
	if req.ActorUserID != "" {
		actorUserID = &req.ActorUserID
	}
	if _, err := g.deps.Logbook.WriteAudit(ctx, correlationID, actorUserID, g.deps.Config.ProjectKey, "allow", "governance_update", "", "success", logbook.EvidenceEnvelope{
		Source:        "gateway",
		CorrelationID: correlationID,
	}); err != nil {
		g.deps.Logger.Warn("writing governance_update audit failed", "error", err, "correlation_id", correlationID)
	}

	return GovernanceUpdateResponse{
		OK:               true,
		Action:           "allow",
		TeamWriteEnabled: settings.TeamWriteEnabled,
		PolicyJSON:       settings.PolicyJSON,
		CorrelationID:    correlationID,
	}, nil
}
