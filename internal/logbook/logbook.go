// Package logbook is the Logbook port: the Gateway's only access point to
// Postgres. It owns settings, write_audit, outbox_memory, users, and the
// read-only knowledge_candidate table.
package logbook

import (
	"context"
	"strings"
	"time"
)

// Settings is a project's governance configuration. Upsert-only; concurrent
// first-time initialization is safe via INSERT ... ON CONFLICT DO NOTHING.
type Settings struct {
	ProjectKey       string
	TeamWriteEnabled bool
	PolicyJSON       map[string]any
	UpdatedBy        string
	UpdatedAt        time.Time
}

// EvidenceMode reads policy_json.evidence_mode, defaulting to "compat".
func (s *Settings) EvidenceMode() string {
	if s == nil || s.PolicyJSON == nil {
		return "compat"
	}
	if v, ok := s.PolicyJSON["evidence_mode"].(string); ok && v != "" {
		return v
	}
	return "compat"
}

// EvidenceEnvelope is evidence_refs_json: the tagged sub-object every audit
// row carries. Known fields live at the top level so the database can
// filter on them directly; everything else nests under GatewayEvent/Extra.
type EvidenceEnvelope struct {
	Source           string         `json:"source"`
	CorrelationID    string         `json:"correlation_id"`
	PayloadSHA       string         `json:"payload_sha"`
	OutboxID         *int64         `json:"outbox_id,omitempty"`
	OriginalOutboxID *int64         `json:"original_outbox_id,omitempty"`
	IntendedAction   string         `json:"intended_action,omitempty"`
	MemoryID         string         `json:"memory_id,omitempty"`
	Refs             []string       `json:"refs,omitempty"`
	GatewayEvent     map[string]any `json:"gateway_event,omitempty"`
	Extra            map[string]any `json:"extra,omitempty"`
}

// AuditRow is one write_audit row.
type AuditRow struct {
	AuditID       int64
	CorrelationID string
	ActorUserID   *string
	TargetSpace   string
	Action        string
	Reason        string
	PayloadSHA    string
	EvidenceRefs  EvidenceEnvelope
	Status        string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// OutboxRow is one outbox_memory row.
type OutboxRow struct {
	OutboxID      int64
	TargetSpace   string
	PayloadMD     string
	PayloadSHA    string
	Status        string
	RetryCount    int
	NextAttemptAt time.Time
	LockedBy      *string
	LockedAt      *time.Time
	LeaseSeconds  int
	LastError     string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// MemoryID parses the "memory_id=<id>" convention the worker writes into
// LastError on ack, used by dedup lookups (I6).
func (o OutboxRow) MemoryID() (string, bool) {
	const prefix = "memory_id="
	if strings.HasPrefix(o.LastError, prefix) {
		return strings.TrimPrefix(o.LastError, prefix), true
	}
	return "", false
}

// KnowledgeCandidate is a read-only fallback search target.
type KnowledgeCandidate struct {
	CandidateID      int64
	Title            string
	ContentMD        string
	Kind             string
	Confidence       float64
	EvidenceRefsJSON map[string]any
	CreatedAt        time.Time
}

// ReliabilityReport is the aggregate read served by reliability_report.
type ReliabilityReport struct {
	OutboxTotal            int
	OutboxByStatus         map[string]int
	OutboxAvgRetryCount    float64
	OutboxOldestPendingAge time.Duration
	AuditTotal             int
	AuditByAction          map[string]int
	AuditRecent24h         int
	AuditByReason          map[string]int
	GeneratedAt            time.Time
}

// Port is everything the memory_store/memory_query handlers and the
// outbox worker need from Postgres. A fake implementation backs unit
// tests; *PG backs production wiring.
type Port interface {
	GetOrCreateSettings(ctx context.Context, projectKey string) (*Settings, error)
	UpsertSettings(ctx context.Context, projectKey string, teamWriteEnabled *bool, policyJSON map[string]any, updatedBy string) (*Settings, error)

	CheckUserExists(ctx context.Context, userID string) (bool, error)
	EnsureUser(ctx context.Context, userID, displayName string) error

	CheckDedup(ctx context.Context, targetSpace, payloadSHA string) (*OutboxRow, error)

	WritePendingAudit(ctx context.Context, correlationID string, actorUserID *string, targetSpace, action, reason, payloadSHA string, evidence EvidenceEnvelope) (int64, error)
	FinalizeAudit(ctx context.Context, correlationID, status, reasonSuffix string, evidence EvidenceEnvelope) error
	WriteAudit(ctx context.Context, correlationID string, actorUserID *string, targetSpace, action, reason, payloadSHA, status string, evidence EvidenceEnvelope) (int64, error)

	EnqueueOutbox(ctx context.Context, payloadMD, targetSpace, payloadSHA string) (int64, error)
	ClaimOutbox(ctx context.Context, workerID string, limit, leaseSeconds int) ([]OutboxRow, error)
	AckSent(ctx context.Context, outboxID int64, workerID, memoryID string) (bool, error)
	FailRetry(ctx context.Context, outboxID int64, workerID, errMsg string, nextAttemptAt time.Time) (bool, error)
	MarkDead(ctx context.Context, outboxID int64, workerID, errMsg string) (bool, error)
	RenewLease(ctx context.Context, outboxID int64, workerID string) (bool, error)
	ResetDeadOutbox(ctx context.Context, outboxID *int64) (int, error)

	QueryKnowledgeCandidates(ctx context.Context, keyword string, topK int, spaceFilter string) ([]KnowledgeCandidate, error)
	GetReliabilityReport(ctx context.Context) (*ReliabilityReport, error)
}

// DbConnectionError wraps a failure to reach Postgres at all.
type DbConnectionError struct{ Err error }

func (e *DbConnectionError) Error() string { return "logbook: connection error: " + e.Err.Error() }
func (e *DbConnectionError) Unwrap() error { return e.Err }

// QueryError wraps a failed query/statement.
type QueryError struct{ Err error }

func (e *QueryError) Error() string { return "logbook: query error: " + e.Err.Error() }
func (e *QueryError) Unwrap() error { return e.Err }

// ValidationError wraps a request that violates a Logbook-level invariant.
type ValidationError struct{ Msg string }

func (e *ValidationError) Error() string { return "logbook: validation error: " + e.Msg }
