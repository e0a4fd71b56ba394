package logbook

import (
	"context"
	"time"
)

func secondsToDuration(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

// GetReliabilityReport aggregates outbox and audit health for the
// reliability_report tool. Pure read; no mutation.
func (p *PG) GetReliabilityReport(ctx context.Context) (*ReliabilityReport, error) {
	rep := &ReliabilityReport{
		OutboxByStatus: map[string]int{},
		AuditByAction:  map[string]int{},
		AuditByReason:  map[string]int{},
	}

	rows, err := p.pool.Query(ctx, `SELECT status, count(*) FROM outbox_memory GROUP BY status`)
	if err != nil {
		return nil, wrapErr(err)
	}
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			rows.Close()
			return nil, wrapErr(err)
		}
		rep.OutboxByStatus[status] = n
		rep.OutboxTotal += n
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, wrapErr(err)
	}

	row := p.pool.QueryRow(ctx, `SELECT COALESCE(avg(retry_count), 0) FROM outbox_memory`)
	if err := row.Scan(&rep.OutboxAvgRetryCount); err != nil {
		return nil, wrapErr(err)
	}

	row = p.pool.QueryRow(ctx, `
		SELECT COALESCE(extract(epoch FROM now() - min(created_at)), 0)
		FROM outbox_memory WHERE status = 'pending'
	`)
	var oldestSeconds float64
	if err := row.Scan(&oldestSeconds); err != nil {
		return nil, wrapErr(err)
	}
	rep.OutboxOldestPendingAge = secondsToDuration(oldestSeconds)

	rows, err = p.pool.Query(ctx, `SELECT action, count(*) FROM write_audit GROUP BY action`)
	if err != nil {
		return nil, wrapErr(err)
	}
	for rows.Next() {
		var action string
		var n int
		if err := rows.Scan(&action, &n); err != nil {
			rows.Close()
			return nil, wrapErr(err)
		}
		rep.AuditByAction[action] = n
		rep.AuditTotal += n
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, wrapErr(err)
	}

	row = p.pool.QueryRow(ctx, `SELECT count(*) FROM write_audit WHERE created_at >= now() - interval '24 hours'`)
	if err := row.Scan(&rep.AuditRecent24h); err != nil {
		return nil, wrapErr(err)
	}

	rows, err = p.pool.Query(ctx, `
		SELECT CASE
			WHEN reason LIKE 'policy:%' THEN 'policy'
			WHEN reason LIKE '%openmemory_write_failed%' OR reason LIKE '%:outbox:%' THEN 'openmemory_write_failed'
			WHEN reason = 'outbox_flush_success' THEN 'outbox_flush_success'
			WHEN reason = 'dedup_hit' THEN 'dedup_hit'
			ELSE 'other'
		END AS bucket, count(*)
		FROM write_audit
		GROUP BY bucket
	`)
	if err != nil {
		return nil, wrapErr(err)
	}
	for rows.Next() {
		var bucket string
		var n int
		if err := rows.Scan(&bucket, &n); err != nil {
			rows.Close()
			return nil, wrapErr(err)
		}
		rep.AuditByReason[bucket] = n
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, wrapErr(err)
	}

	rep.GeneratedAt = time.Now().UTC()
	return rep, nil
}
