package logbook

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// Fake is an in-memory Port implementation for handler-level tests,
// mirroring openmemory.Fake's scriptable-builder pattern: tests seed
// state through the Seed*/Configure* helpers rather than through a query
// language, since there is no SQL layer to fake around.
type Fake struct {
	mu sync.Mutex

	settings map[string]*Settings
	users    map[string]string // userID -> displayName
	audits   []*AuditRow
	outbox   []*OutboxRow
	nextAuditID  int64
	nextOutboxID int64

	candidates []KnowledgeCandidate

	dedupErr           error
	settingsErr        error
	userCheckErr       error
	claimErr           error
	reliabilityErr     error
	candidatesErr      error
}

// NewFake builds an empty Fake.
func NewFake() *Fake {
	return &Fake{
		settings: make(map[string]*Settings),
		users:    make(map[string]string),
	}
}

// SeedUser pre-registers userID as known, as if EnsureUser had run.
func (f *Fake) SeedUser(userID, displayName string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.users[userID] = displayName
}

// SeedCandidates seeds the knowledge_candidate fallback table.
func (f *Fake) SeedCandidates(c ...KnowledgeCandidate) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.candidates = append(f.candidates, c...)
}

// ConfigureDedupError makes CheckDedup fail, simulating a database outage.
func (f *Fake) ConfigureDedupError(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dedupErr = err
}

// Audits returns a snapshot of every audit row written so far, oldest first.
func (f *Fake) Audits() []*AuditRow {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*AuditRow, len(f.audits))
	copy(out, f.audits)
	return out
}

// OutboxRows returns a snapshot of the outbox table.
func (f *Fake) OutboxRows() []*OutboxRow {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*OutboxRow, len(f.outbox))
	copy(out, f.outbox)
	return out
}

func (f *Fake) GetOrCreateSettings(ctx context.Context, projectKey string) (*Settings, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.settingsErr != nil {
		return nil, f.settingsErr
	}
	if s, ok := f.settings[projectKey]; ok {
		cp := *s
		return &cp, nil
	}
	s := &Settings{ProjectKey: projectKey, TeamWriteEnabled: true, PolicyJSON: map[string]any{}, UpdatedAt: time.Now()}
	f.settings[projectKey] = s
	cp := *s
	return &cp, nil
}

func (f *Fake) UpsertSettings(ctx context.Context, projectKey string, teamWriteEnabled *bool, policyJSON map[string]any, updatedBy string) (*Settings, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.settings[projectKey]
	if !ok {
		s = &Settings{ProjectKey: projectKey, TeamWriteEnabled: true, PolicyJSON: map[string]any{}}
		f.settings[projectKey] = s
	}
	if teamWriteEnabled != nil {
		s.TeamWriteEnabled = *teamWriteEnabled
	}
	if policyJSON != nil {
		s.PolicyJSON = policyJSON
	}
	s.UpdatedBy = updatedBy
	s.UpdatedAt = time.Now()
	cp := *s
	return &cp, nil
}

func (f *Fake) CheckUserExists(ctx context.Context, userID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.userCheckErr != nil {
		return false, f.userCheckErr
	}
	_, ok := f.users[userID]
	return ok, nil
}

func (f *Fake) EnsureUser(ctx context.Context, userID, displayName string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.users[userID] = displayName
	return nil
}

func (f *Fake) CheckDedup(ctx context.Context, targetSpace, payloadSHA string) (*OutboxRow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.dedupErr != nil {
		return nil, f.dedupErr
	}
	for _, row := range f.outbox {
		if row.TargetSpace == targetSpace && row.PayloadSHA == payloadSHA && row.Status == "sent" {
			cp := *row
			return &cp, nil
		}
	}
	return nil, nil
}

func (f *Fake) WritePendingAudit(ctx context.Context, correlationID string, actorUserID *string, targetSpace, action, reason, payloadSHA string, evidence EvidenceEnvelope) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if row := f.findAuditByCorrelation(correlationID); row != nil {
		row.ActorUserID = actorUserID
		row.TargetSpace = targetSpace
		row.Action = action
		row.Reason = reason
		row.PayloadSHA = payloadSHA
		row.EvidenceRefs = evidence
		row.Status = "pending"
		row.UpdatedAt = time.Now()
		return row.AuditID, nil
	}
	f.nextAuditID++
	id := f.nextAuditID
	f.audits = append(f.audits, &AuditRow{
		AuditID:       id,
		CorrelationID: correlationID,
		ActorUserID:   actorUserID,
		TargetSpace:   targetSpace,
		Action:        action,
		Reason:        reason,
		PayloadSHA:    payloadSHA,
		EvidenceRefs:  evidence,
		Status:        "pending",
		CreatedAt:     time.Now(),
		UpdatedAt:     time.Now(),
	})
	return id, nil
}

func (f *Fake) FinalizeAudit(ctx context.Context, correlationID, status, reasonSuffix string, evidence EvidenceEnvelope) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, row := range f.audits {
		if row.CorrelationID == correlationID && row.Status == "pending" {
			row.Status = status
			if reasonSuffix != "" {
				row.Reason = row.Reason + reasonSuffix
			}
			row.EvidenceRefs = evidence
			row.UpdatedAt = time.Now()
			return nil
		}
	}
	return &ValidationError{Msg: fmt.Sprintf("no pending audit for correlation_id %s", correlationID)}
}

func (f *Fake) WriteAudit(ctx context.Context, correlationID string, actorUserID *string, targetSpace, action, reason, payloadSHA, status string, evidence EvidenceEnvelope) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if row := f.findAuditByCorrelation(correlationID); row != nil {
		row.ActorUserID = actorUserID
		row.TargetSpace = targetSpace
		row.Action = action
		row.Reason = reason
		row.PayloadSHA = payloadSHA
		row.EvidenceRefs = evidence
		row.Status = status
		row.UpdatedAt = time.Now()
		return row.AuditID, nil
	}
	f.nextAuditID++
	id := f.nextAuditID
	f.audits = append(f.audits, &AuditRow{
		AuditID:       id,
		CorrelationID: correlationID,
		ActorUserID:   actorUserID,
		TargetSpace:   targetSpace,
		Action:        action,
		Reason:        reason,
		PayloadSHA:    payloadSHA,
		EvidenceRefs:  evidence,
		Status:        status,
		CreatedAt:     time.Now(),
		UpdatedAt:     time.Now(),
	})
	return id, nil
}

func (f *Fake) EnqueueOutbox(ctx context.Context, payloadMD, targetSpace, payloadSHA string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextOutboxID++
	id := f.nextOutboxID
	f.outbox = append(f.outbox, &OutboxRow{
		OutboxID:      id,
		TargetSpace:   targetSpace,
		PayloadMD:     payloadMD,
		PayloadSHA:    payloadSHA,
		Status:        "pending",
		NextAttemptAt: time.Now(),
		CreatedAt:     time.Now(),
		UpdatedAt:     time.Now(),
	})
	return id, nil
}

func (f *Fake) ClaimOutbox(ctx context.Context, workerID string, limit, leaseSeconds int) ([]OutboxRow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.claimErr != nil {
		return nil, f.claimErr
	}

	now := time.Now()
	var claimed []OutboxRow
	for _, row := range f.outbox {
		if len(claimed) >= limit {
			break
		}
		if row.Status != "pending" {
			continue
		}
		if row.NextAttemptAt.After(now) {
			continue
		}
		wid := workerID
		lockedAt := now
		row.LockedBy = &wid
		row.LockedAt = &lockedAt
		row.LeaseSeconds = leaseSeconds
		row.UpdatedAt = now
		claimed = append(claimed, *row)
	}
	sort.Slice(claimed, func(i, j int) bool { return claimed[i].OutboxID < claimed[j].OutboxID })
	return claimed, nil
}

func (f *Fake) AckSent(ctx context.Context, outboxID int64, workerID, memoryID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	row := f.findOutbox(outboxID)
	if row == nil || row.LockedBy == nil || *row.LockedBy != workerID {
		return false, nil
	}
	row.Status = "sent"
	row.LastError = "memory_id=" + memoryID
	row.UpdatedAt = time.Now()
	return true, nil
}

func (f *Fake) FailRetry(ctx context.Context, outboxID int64, workerID, errMsg string, nextAttemptAt time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	row := f.findOutbox(outboxID)
	if row == nil || row.LockedBy == nil || *row.LockedBy != workerID {
		return false, nil
	}
	row.Status = "pending"
	row.RetryCount++
	row.NextAttemptAt = nextAttemptAt
	row.LastError = errMsg
	row.LockedBy = nil
	row.LockedAt = nil
	row.UpdatedAt = time.Now()
	return true, nil
}

func (f *Fake) MarkDead(ctx context.Context, outboxID int64, workerID, errMsg string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	row := f.findOutbox(outboxID)
	if row == nil || row.LockedBy == nil || *row.LockedBy != workerID {
		return false, nil
	}
	row.Status = "dead"
	row.LastError = errMsg
	row.UpdatedAt = time.Now()
	return true, nil
}

func (f *Fake) RenewLease(ctx context.Context, outboxID int64, workerID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	row := f.findOutbox(outboxID)
	if row == nil || row.LockedBy == nil || *row.LockedBy != workerID {
		return false, nil
	}
	now := time.Now()
	row.LockedAt = &now
	return true, nil
}

func (f *Fake) ResetDeadOutbox(ctx context.Context, outboxID *int64) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, row := range f.outbox {
		if row.Status != "dead" {
			continue
		}
		if outboxID != nil && row.OutboxID != *outboxID {
			continue
		}
		row.Status = "pending"
		row.RetryCount = 0
		row.NextAttemptAt = time.Now()
		row.LockedBy = nil
		row.LockedAt = nil
		row.UpdatedAt = time.Now()
		n++
	}
	return n, nil
}

func (f *Fake) QueryKnowledgeCandidates(ctx context.Context, keyword string, topK int, spaceFilter string) ([]KnowledgeCandidate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.candidatesErr != nil {
		return nil, f.candidatesErr
	}
	out := make([]KnowledgeCandidate, 0, topK)
	for _, c := range f.candidates {
		if len(out) >= topK {
			break
		}
		out = append(out, c)
	}
	return out, nil
}

func (f *Fake) GetReliabilityReport(ctx context.Context) (*ReliabilityReport, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.reliabilityErr != nil {
		return nil, f.reliabilityErr
	}

	byStatus := map[string]int{}
	var retrySum int
	var oldestPending time.Time
	now := time.Now()
	for _, row := range f.outbox {
		byStatus[row.Status]++
		retrySum += row.RetryCount
		if row.Status == "pending" && (oldestPending.IsZero() || row.CreatedAt.Before(oldestPending)) {
			oldestPending = row.CreatedAt
		}
	}
	avgRetry := 0.0
	if len(f.outbox) > 0 {
		avgRetry = float64(retrySum) / float64(len(f.outbox))
	}
	var oldestAge time.Duration
	if !oldestPending.IsZero() {
		oldestAge = now.Sub(oldestPending)
	}

	byAction := map[string]int{}
	byReason := map[string]int{}
	recent := 0
	cutoff := now.Add(-24 * time.Hour)
	for _, row := range f.audits {
		byAction[row.Action]++
		byReason[row.Reason]++
		if row.CreatedAt.After(cutoff) {
			recent++
		}
	}

	return &ReliabilityReport{
		OutboxTotal:            len(f.outbox),
		OutboxByStatus:         byStatus,
		OutboxAvgRetryCount:    avgRetry,
		OutboxOldestPendingAge: oldestAge,
		AuditTotal:             len(f.audits),
		AuditByAction:          byAction,
		AuditRecent24h:         recent,
		AuditByReason:          byReason,
		GeneratedAt:            now,
	}, nil
}

// findAuditByCorrelation mirrors PG's ON CONFLICT (correlation_id) upsert:
// a second write under the same correlation id updates the existing row
// rather than appending a duplicate.
func (f *Fake) findAuditByCorrelation(correlationID string) *AuditRow {
	for _, row := range f.audits {
		if row.CorrelationID == correlationID {
			return row
		}
	}
	return nil
}

func (f *Fake) findOutbox(outboxID int64) *OutboxRow {
	for _, row := range f.outbox {
		if row.OutboxID == outboxID {
			return row
		}
	}
	return nil
}

var _ Port = (*Fake)(nil)
