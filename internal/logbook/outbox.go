package logbook

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

type pgconnCommandTag = pgconn.CommandTag

// CheckDedup implements I6: a prior successfully-sent outbox row for the
// same (target_space, payload_sha) is a dedup hit for future stores.
func (p *PG) CheckDedup(ctx context.Context, targetSpace, payloadSHA string) (*OutboxRow, error) {
	row := p.pool.QueryRow(ctx, `
		SELECT outbox_id, target_space, payload_md, payload_sha, status, retry_count,
		       next_attempt_at, locked_by, locked_at, lease_seconds, last_error, created_at, updated_at
		FROM outbox_memory
		WHERE target_space = $1 AND payload_sha = $2 AND status = 'sent'
		LIMIT 1
	`, targetSpace, payloadSHA)

	o, err := scanOutboxRow(row)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, wrapErr(err)
	}
	return o, nil
}

// EnqueueOutbox inserts a pending deferred write.
func (p *PG) EnqueueOutbox(ctx context.Context, payloadMD, targetSpace, payloadSHA string) (int64, error) {
	var outboxID int64
	row := p.pool.QueryRow(ctx, `
		INSERT INTO outbox_memory (target_space, payload_md, payload_sha, status, retry_count)
		VALUES ($1, $2, $3, 'pending', 0)
		RETURNING outbox_id
	`, targetSpace, payloadMD, payloadSHA)
	if err := row.Scan(&outboxID); err != nil {
		return 0, wrapErr(err)
	}
	return outboxID, nil
}

// ClaimOutbox implements the lease claim from SPEC_FULL.md §4.9: a single
// UPDATE ... WHERE outbox_id IN (SELECT ... FOR UPDATE SKIP LOCKED)
// RETURNING, so the claim commits immediately instead of holding a
// long-lived transaction across the OpenMemory call (unlike
// claim_pending in the original Python Logbook, which returns the live
// connection to the caller — SPEC_FULL.md's short-lived-lease design
// is authoritative here).
func (p *PG) ClaimOutbox(ctx context.Context, workerID string, limit, leaseSeconds int) ([]OutboxRow, error) {
	rows, err := p.pool.Query(ctx, `
		UPDATE outbox_memory
		   SET locked_by = $1,
		       locked_at = now(),
		       lease_seconds = $2,
		       updated_at = now()
		 WHERE outbox_id IN (
		   SELECT outbox_id FROM outbox_memory
		    WHERE status = 'pending'
		      AND next_attempt_at <= now()
		      AND (locked_at IS NULL OR locked_at < now() - (lease_seconds * interval '1 second'))
		    ORDER BY next_attempt_at, created_at
		    LIMIT $3
		    FOR UPDATE SKIP LOCKED)
		 RETURNING outbox_id, target_space, payload_md, payload_sha, status, retry_count,
		           next_attempt_at, locked_by, locked_at, lease_seconds, last_error, created_at, updated_at
	`, workerID, leaseSeconds, limit)
	if err != nil {
		return nil, wrapErr(err)
	}
	defer rows.Close()

	var out []OutboxRow
	for rows.Next() {
		o, err := scanOutboxRow(rows)
		if err != nil {
			return nil, wrapErr(err)
		}
		out = append(out, *o)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapErr(err)
	}
	return out, nil
}

// AckSent implements I7: only a row this worker holds, still pending, may
// be acked. last_error carries "memory_id=<id>" so CheckDedup can recover
// the prior memory id without a separate column.
func (p *PG) AckSent(ctx context.Context, outboxID int64, workerID, memoryID string) (bool, error) {
	tag, err := p.pool.Exec(ctx, `
		UPDATE outbox_memory
		SET status = 'sent', locked_by = NULL, locked_at = NULL,
		    last_error = $3, updated_at = now()
		WHERE outbox_id = $1 AND locked_by = $2 AND status = 'pending'
	`, outboxID, workerID, fmt.Sprintf("memory_id=%s", memoryID))
	if err != nil {
		return false, wrapErr(err)
	}
	return tag.RowsAffected() == 1, nil
}

// FailRetry increments retry_count and schedules the next attempt at the
// caller-supplied nextAttemptAt (the worker computes it with capped
// exponential backoff: now() + base * 2^retry_count).
func (p *PG) FailRetry(ctx context.Context, outboxID int64, workerID, errMsg string, nextAttemptAt time.Time) (bool, error) {
	tag, err := p.pool.Exec(ctx, `
		UPDATE outbox_memory
		SET retry_count = retry_count + 1,
		    next_attempt_at = $4,
		    last_error = $3,
		    locked_by = NULL, locked_at = NULL,
		    updated_at = now()
		WHERE outbox_id = $1 AND locked_by = $2 AND status = 'pending'
	`, outboxID, workerID, errMsg, nextAttemptAt)
	if err != nil {
		return false, wrapErr(err)
	}
	return tag.RowsAffected() == 1, nil
}

// MarkDead moves a row to its terminal dead-letter state.
func (p *PG) MarkDead(ctx context.Context, outboxID int64, workerID, errMsg string) (bool, error) {
	tag, err := p.pool.Exec(ctx, `
		UPDATE outbox_memory
		SET status = 'dead', last_error = $3, locked_by = NULL, locked_at = NULL, updated_at = now()
		WHERE outbox_id = $1 AND locked_by = $2 AND status = 'pending'
	`, outboxID, workerID, errMsg)
	if err != nil {
		return false, wrapErr(err)
	}
	return tag.RowsAffected() == 1, nil
}

// RenewLease extends a long-running claim's lease midway through
// processing, guarding against a call that can outlive lease_seconds.
func (p *PG) RenewLease(ctx context.Context, outboxID int64, workerID string) (bool, error) {
	tag, err := p.pool.Exec(ctx, `
		UPDATE outbox_memory
		SET locked_at = now(), updated_at = now()
		WHERE outbox_id = $1 AND locked_by = $2 AND status = 'pending'
	`, outboxID, workerID)
	if err != nil {
		return false, wrapErr(err)
	}
	return tag.RowsAffected() == 1, nil
}

// ResetDeadOutbox clears retry state on dead-lettered rows so the worker
// picks them up again. outboxID nil resets every dead row.
func (p *PG) ResetDeadOutbox(ctx context.Context, outboxID *int64) (int, error) {
	const base = `UPDATE outbox_memory
		SET status = 'pending', retry_count = 0, last_error = NULL, next_attempt_at = now()
		WHERE status = 'dead'`

	var (
		tag pgconnCommandTag
		err error
	)
	if outboxID != nil {
		tag, err = p.pool.Exec(ctx, base+" AND outbox_id = $1", *outboxID)
	} else {
		tag, err = p.pool.Exec(ctx, base)
	}
	if err != nil {
		return 0, wrapErr(err)
	}
	return int(tag.RowsAffected()), nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOutboxRow(row rowScanner) (*OutboxRow, error) {
	var o OutboxRow
	var lastError *string
	if err := row.Scan(
		&o.OutboxID, &o.TargetSpace, &o.PayloadMD, &o.PayloadSHA, &o.Status, &o.RetryCount,
		&o.NextAttemptAt, &o.LockedBy, &o.LockedAt, &o.LeaseSeconds, &lastError, &o.CreatedAt, &o.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if lastError != nil {
		o.LastError = *lastError
	}
	return &o, nil
}
