package gateway

import (
	"context"
	"fmt"
)

// ReliabilityReportRequest is reliability_report's public input. It takes
// no parameters beyond the envelope but accepts a flag to control the
// optional Slack digest, since posting to Slack is a side effect callers
// may not want on every poll.
type ReliabilityReportRequest struct {
	PostDigest bool `json:"post_digest,omitempty"`
}

// ReliabilityReportResponse mirrors logbook.ReliabilityReport over the
// wire.
type ReliabilityReportResponse struct {
	OK                     bool           `json:"ok"`
	OutboxTotal            int            `json:"outbox_total"`
	OutboxByStatus         map[string]int `json:"outbox_by_status"`
	OutboxAvgRetryCount    float64        `json:"outbox_avg_retry_count"`
	OutboxOldestPendingAge float64        `json:"outbox_oldest_pending_age_seconds"`
	AuditTotal             int            `json:"audit_total"`
	AuditByAction          map[string]int `json:"audit_by_action"`
	AuditRecent24h         int            `json:"audit_recent_24h"`
	AuditByReason          map[string]int `json:"audit_by_reason"`
	GeneratedAt            string         `json:"generated_at"`
	CorrelationID          string         `json:"correlation_id"`
}

// ReliabilityReport is a pure read over logbook aggregates, with an
// optional Slack digest post, per SPEC_FULL.md §4.8.
func (g *Gateway) ReliabilityReport(ctx context.Context, correlationID string, req ReliabilityReportRequest) (ReliabilityReportResponse, error) {
	report, err := g.deps.Logbook.GetReliabilityReport(ctx)
	if err != nil {
		return ReliabilityReportResponse{OK: false, CorrelationID: correlationID}, err
	}

	resp := ReliabilityReportResponse{
		OK:                     true,
		OutboxTotal:            report.OutboxTotal,
		OutboxByStatus:         report.OutboxByStatus,
		OutboxAvgRetryCount:    report.OutboxAvgRetryCount,
		OutboxOldestPendingAge: report.OutboxOldestPendingAge.Seconds(),
		AuditTotal:             report.AuditTotal,
		AuditByAction:          report.AuditByAction,
		AuditRecent24h:         report.AuditRecent24h,
		AuditByReason:          report.AuditByReason,
		GeneratedAt:            report.GeneratedAt.Format("2006-01-02T15:04:05Z07:00"),
		CorrelationID:          correlationID,
	}

	if req.PostDigest && g.deps.Slack.IsEnabled() {
		digest := fmt.Sprintf(
			"reliability_report: outbox_total=%d dead=%d pending=%d audit_recent_24h=%d avg_retry=%.2f",
			report.OutboxTotal,
			report.OutboxByStatus["dead"],
			report.OutboxByStatus["pending"],
			report.AuditRecent24h,
			report.OutboxAvgRetryCount,
		)
		if err := g.deps.Slack.PostDigest(ctx, digest); err != nil {
			g.deps.Logger.Warn("posting reliability digest to slack failed", "error", err, "correlation_id", correlationID)
		}
	}

	return resp, nil
}
