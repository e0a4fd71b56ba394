package gateway

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/onlyfeng/engram-gateway/internal/evidence"
	"github.com/onlyfeng/engram-gateway/internal/logbook"
	"github.com/onlyfeng/engram-gateway/internal/openmemory"
	"github.com/onlyfeng/engram-gateway/internal/policy"
)

// MissingParamError signals a required field was absent — the RPC
// front-end maps this to INVALID_PARAMS / MISSING_REQUIRED_PARAM.
type MissingParamError struct{ Field string }

func (e *MissingParamError) Error() string { return fmt.Sprintf("missing required param: %s", e.Field) }

// StoreRequest is memory_store's public input.
type StoreRequest struct {
	PayloadMD     string          `json:"payload_md" validate:"required"`
	TargetSpace   string          `json:"target_space,omitempty"`
	MetaJSON      map[string]any  `json:"meta_json,omitempty"`
	Kind          string          `json:"kind,omitempty"`
	EvidenceRefs  []string        `json:"evidence_refs,omitempty"`
	Evidence      []evidence.Item `json:"evidence,omitempty"`
	ActorUserID   string          `json:"actor_user_id,omitempty"`
	ItemID        string          `json:"item_id,omitempty"`
	IsBulk        bool            `json:"is_bulk,omitempty"`
}

// StoreResponse is memory_store's output.
type StoreResponse struct {
	OK           bool   `json:"ok"`
	Action       string `json:"action"` // allow | redirect | deferred | reject | error
	MemoryID     string `json:"memory_id,omitempty"`
	OutboxID     *int64 `json:"outbox_id,omitempty"`
	SpaceWritten string `json:"space_written,omitempty"`
	Message      string `json:"message,omitempty"`
	CorrelationID string `json:"correlation_id"`
}

func payloadSHA256(payload string) string {
	sum := sha256.Sum256([]byte(payload))
	return hex.EncodeToString(sum[:])
}

// MemoryStore orchestrates dedup, policy, the two-phase audit protocol, the
// OpenMemory call, and outbox-on-failure, per SPEC_FULL.md §4.4.
func (g *Gateway) MemoryStore(ctx context.Context, correlationID string, req StoreRequest) (StoreResponse, error) {
	if req.PayloadMD == "" {
		return StoreResponse{}, &MissingParamError{Field: "payload_md"}
	}

	// Step 1: resolve target space.
	targetSpace := req.TargetSpace
	if targetSpace == "" {
		targetSpace = g.deps.Config.DefaultTeamSpace
	}

	// Step 2: payload hash.
	payloadSHA := payloadSHA256(req.PayloadMD)

	envelope := func(extra func(*logbook.EvidenceEnvelope)) logbook.EvidenceEnvelope {
		env := logbook.EvidenceEnvelope{
			Source:        "gateway",
			CorrelationID: correlationID,
			PayloadSHA:    payloadSHA,
		}
		if extra != nil {
			extra(&env)
		}
		return env
	}

	// Step 3: actor validation.
	var actorUserID *string
	if req.ActorUserID != "" {
		exists, err := g.deps.Logbook.CheckUserExists(ctx, req.ActorUserID)
		if err != nil {
			return StoreResponse{Action: "error", Message: err.Error(), CorrelationID: correlationID}, nil
		}
		if !exists {
			switch g.deps.Config.UnknownActorPolicy {
			case "reject":
				if _, err := g.deps.Logbook.WriteAudit(ctx, correlationID, nil, targetSpace, "reject", "actor_unknown:reject", payloadSHA, "rejected", envelope(nil)); err != nil {
					return StoreResponse{Action: "error", Message: err.Error(), CorrelationID: correlationID}, nil
				}
				return StoreResponse{OK: false, Action: "reject", Message: "actor_unknown", CorrelationID: correlationID}, nil
			case "auto_create":
				if err := g.deps.Logbook.EnsureUser(ctx, req.ActorUserID, req.ActorUserID); err != nil {
					return StoreResponse{Action: "error", Message: err.Error(), CorrelationID: correlationID}, nil
				}
				actorUserID = &req.ActorUserID
				if _, err := g.deps.Logbook.WriteAudit(ctx, correlationID, actorUserID, targetSpace, "allow", "actor_autocreated", payloadSHA, "success", envelope(nil)); err != nil {
					return StoreResponse{Action: "error", Message: err.Error(), CorrelationID: correlationID}, nil
				}
			default: // degrade
				targetSpace = g.deps.Config.PrivateSpacePrefix + "unknown"
				if _, err := g.deps.Logbook.WriteAudit(ctx, correlationID, nil, targetSpace, "redirect", "actor_unknown:degrade", payloadSHA, "redirected", envelope(nil)); err != nil {
					return StoreResponse{Action: "error", Message: err.Error(), CorrelationID: correlationID}, nil
				}
			}
		} else {
			actorUserID = &req.ActorUserID
		}
	}

	// Step 4: dedup check.
	if dedup, err := g.deps.Logbook.CheckDedup(ctx, targetSpace, payloadSHA); err != nil {
		return StoreResponse{Action: "error", Message: err.Error(), CorrelationID: correlationID}, nil
	} else if dedup != nil {
		memoryID, _ := dedup.MemoryID()
		env := envelope(func(e *logbook.EvidenceEnvelope) {
			e.MemoryID = memoryID
			e.OriginalOutboxID = &dedup.OutboxID
		})
		if _, err := g.deps.Logbook.WriteAudit(ctx, correlationID, actorUserID, targetSpace, "allow", "dedup_hit", payloadSHA, "success", env); err != nil {
			return StoreResponse{Action: "error", Message: err.Error(), CorrelationID: correlationID}, nil
		}
		return StoreResponse{OK: true, Action: "allow", MemoryID: memoryID, SpaceWritten: targetSpace, CorrelationID: correlationID}, nil
	}

	// Step 5: load settings.
	settings, err := g.deps.Logbook.GetOrCreateSettings(ctx, g.deps.Config.ProjectKey)
	if err != nil {
		return StoreResponse{Action: "error", Message: err.Error(), CorrelationID: correlationID}, nil
	}

	// Step 6: evidence validation.
	evidenceMode := settings.EvidenceMode()
	if g.deps.Config.StrictModeEnforceValidateRefs {
		evidenceMode = "strict"
	}
	if g.deps.Config.ValidateEvidenceRefs {
		if err := evidence.Validate(req.Evidence, evidenceMode); err != nil {
			if _, wErr := g.deps.Logbook.WriteAudit(ctx, correlationID, actorUserID, targetSpace, "reject", err.Error(), payloadSHA, "rejected", envelope(nil)); wErr != nil {
				return StoreResponse{Action: "error", Message: wErr.Error(), CorrelationID: correlationID}, nil
			}
			return StoreResponse{OK: false, Action: "reject", Message: err.Error(), CorrelationID: correlationID}, nil
		}
	}

	// Step 7: policy decision.
	actor := ""
	if actorUserID != nil {
		actor = *actorUserID
	}
	decision := policy.Evaluate(actor, targetSpace, policy.Settings{TeamWriteEnabled: settings.TeamWriteEnabled}, policy.Config{PrivateSpacePrefix: g.deps.Config.PrivateSpacePrefix})
	if decision.Action == policy.Reject {
		if _, err := g.deps.Logbook.WriteAudit(ctx, correlationID, actorUserID, targetSpace, "reject", decision.Reason, payloadSHA, "rejected", envelope(nil)); err != nil {
			return StoreResponse{Action: "error", Message: err.Error(), CorrelationID: correlationID}, nil
		}
		return StoreResponse{OK: false, Action: "reject", Message: decision.Reason, CorrelationID: correlationID}, nil
	}

	refs := req.EvidenceRefs
	pendingEnv := envelope(func(e *logbook.EvidenceEnvelope) {
		e.IntendedAction = string(decision.Action)
		e.Refs = refs
	})

	// Step 8: phase 1 — pending audit.
	if _, err := g.deps.Logbook.WritePendingAudit(ctx, correlationID, actorUserID, decision.FinalSpace, string(decision.Action), decision.Reason, payloadSHA, pendingEnv); err != nil {
		return StoreResponse{Action: "error", Message: fmt.Sprintf("writing pending audit: %v", err), CorrelationID: correlationID}, nil
	}

	// Step 9: call OpenMemory.
	result, callErr := g.deps.OpenMemory.Store(ctx, req.PayloadMD, decision.FinalSpace, actor, nil, req.MetaJSON)

	// Step 10: phase 2 — finalize.
	if callErr == nil && result != nil && result.Success {
		finalEnv := envelope(func(e *logbook.EvidenceEnvelope) {
			e.IntendedAction = string(decision.Action)
			e.MemoryID = result.MemoryID
			e.Refs = refs
		})
		if err := g.deps.Logbook.FinalizeAudit(ctx, correlationID, "success", "", finalEnv); err != nil {
			return StoreResponse{Action: "error", Message: fmt.Sprintf("finalizing audit: %v", err), CorrelationID: correlationID}, nil
		}
		return StoreResponse{OK: true, Action: string(decision.Action), MemoryID: result.MemoryID, SpaceWritten: decision.FinalSpace, CorrelationID: correlationID}, nil
	}

	if isOpenMemoryFailure(callErr) {
		outboxID, err := g.deps.Logbook.EnqueueOutbox(ctx, req.PayloadMD, decision.FinalSpace, payloadSHA)
		if err != nil {
			return StoreResponse{Action: "error", Message: fmt.Sprintf("enqueuing outbox: %v", err), CorrelationID: correlationID}, nil
		}
		finalEnv := envelope(func(e *logbook.EvidenceEnvelope) {
			e.OutboxID = &outboxID
			e.IntendedAction = string(decision.Action)
			e.Refs = refs
		})
		if err := g.deps.Logbook.FinalizeAudit(ctx, correlationID, "redirected", fmt.Sprintf(":outbox:%d", outboxID), finalEnv); err != nil {
			return StoreResponse{Action: "error", Message: fmt.Sprintf("finalizing audit: %v", err), CorrelationID: correlationID}, nil
		}
		return StoreResponse{OK: false, Action: "deferred", OutboxID: &outboxID, CorrelationID: correlationID}, nil
	}

	return StoreResponse{Action: "error", Message: callErr.Error(), CorrelationID: correlationID}, nil
}

func isOpenMemoryFailure(err error) bool {
	if err == nil {
		return false
	}
	switch err.(type) {
	case *openmemory.ConnectionError, *openmemory.APIError, *openmemory.GenericError:
		return true
	default:
		return false
	}
}
