package logbook

import (
	"context"
	"fmt"
)

// WritePendingAudit is phase 1 of the two-phase audit protocol: it inserts
// a `pending` row before the OpenMemory call is made. I2 requires a second
// write under the same correlation id to update rather than insert, so this
// is an upsert keyed on the (unique) correlation_id.
func (p *PG) WritePendingAudit(ctx context.Context, correlationID string, actorUserID *string, targetSpace, action, reason, payloadSHA string, evidence EvidenceEnvelope) (int64, error) {
	evidenceRaw, err := marshalJSON(evidence)
	if err != nil {
		return 0, err
	}

	var auditID int64
	row := p.pool.QueryRow(ctx, `
		INSERT INTO write_audit
			(correlation_id, actor_user_id, target_space, action, reason, payload_sha, evidence_refs_json, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, 'pending')
		ON CONFLICT (correlation_id) DO UPDATE
		SET target_space = excluded.target_space,
		    action = excluded.action,
		    reason = excluded.reason,
		    payload_sha = excluded.payload_sha,
		    evidence_refs_json = excluded.evidence_refs_json,
		    status = 'pending',
		    updated_at = now()
		RETURNING audit_id
	`, correlationID, actorUserID, targetSpace, action, reason, payloadSHA, evidenceRaw)
	if err := row.Scan(&auditID); err != nil {
		return 0, wrapErr(err)
	}
	return auditID, nil
}

// FinalizeAudit is phase 2: it transitions a pending row to its terminal
// status. reasonSuffix, when non-empty, is appended to the existing reason
// (e.g. ":outbox:42"). It must affect exactly one row; per §5, anything
// else is fatal to the request.
func (p *PG) FinalizeAudit(ctx context.Context, correlationID, status, reasonSuffix string, evidence EvidenceEnvelope) error {
	evidenceRaw, err := marshalJSON(evidence)
	if err != nil {
		return err
	}

	tag, execErr := p.pool.Exec(ctx, `
		UPDATE write_audit
		SET status = $2,
		    reason = reason || $3,
		    evidence_refs_json = $4,
		    updated_at = now()
		WHERE correlation_id = $1 AND status = 'pending'
	`, correlationID, status, reasonSuffix, evidenceRaw)
	if execErr != nil {
		return wrapErr(execErr)
	}
	if tag.RowsAffected() != 1 {
		return &ValidationError{Msg: fmt.Sprintf("finalize_audit: expected to affect 1 row for correlation_id=%s, affected %d", correlationID, tag.RowsAffected())}
	}
	return nil
}

// WriteAudit writes a row already in its terminal status — the single-phase
// path for policy/evidence/actor rejects and informational decisions that
// never pass through `pending`.
func (p *PG) WriteAudit(ctx context.Context, correlationID string, actorUserID *string, targetSpace, action, reason, payloadSHA, status string, evidence EvidenceEnvelope) (int64, error) {
	evidenceRaw, err := marshalJSON(evidence)
	if err != nil {
		return 0, err
	}

	var auditID int64
	row := p.pool.QueryRow(ctx, `
		INSERT INTO write_audit
			(correlation_id, actor_user_id, target_space, action, reason, payload_sha, evidence_refs_json, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (correlation_id) DO UPDATE
		SET target_space = excluded.target_space,
		    action = excluded.action,
		    reason = excluded.reason,
		    payload_sha = excluded.payload_sha,
		    evidence_refs_json = excluded.evidence_refs_json,
		    status = excluded.status,
		    updated_at = now()
		RETURNING audit_id
	`, correlationID, actorUserID, targetSpace, action, reason, payloadSHA, evidenceRaw, status)
	if err := row.Scan(&auditID); err != nil {
		return 0, wrapErr(err)
	}
	return auditID, nil
}
