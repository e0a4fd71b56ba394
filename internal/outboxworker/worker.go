// Package outboxworker drains outbox_memory: rows a two-phase memory_store
// deferred because OpenMemory was unreachable at request time.
package outboxworker

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/onlyfeng/engram-gateway/internal/logbook"
	"github.com/onlyfeng/engram-gateway/internal/openmemory"
	"github.com/onlyfeng/engram-gateway/internal/telemetry"
)

// Config holds the worker's tunables, per SPEC_FULL.md §4.9.
type Config struct {
	WorkerID           string
	BatchSize          int
	MaxRetries         int
	BaseBackoffSeconds int
	LeaseSeconds       int
	PollInterval       time.Duration
}

// Worker claims and processes outbox rows.
type Worker struct {
	cfg        Config
	logbook    logbook.Port
	openMemory openmemory.Interface
	logger     *slog.Logger
}

// New builds a Worker.
func New(cfg Config, lb logbook.Port, om openmemory.Interface, logger *slog.Logger) *Worker {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 20
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 5
	}
	if cfg.BaseBackoffSeconds <= 0 {
		cfg.BaseBackoffSeconds = 60
	}
	if cfg.LeaseSeconds <= 0 {
		cfg.LeaseSeconds = 120
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Second
	}
	return &Worker{cfg: cfg, logbook: lb, openMemory: om, logger: logger}
}

// RunOnce claims and processes a single batch, returning how many rows it
// claimed. Run's loop body calls it once per tick.
func (w *Worker) RunOnce(ctx context.Context) (int, error) {
	rows, err := w.logbook.ClaimOutbox(ctx, w.cfg.WorkerID, w.cfg.BatchSize, w.cfg.LeaseSeconds)
	if err != nil {
		return 0, fmt.Errorf("claiming outbox batch: %w", err)
	}

	telemetry.OutboxDepth.Set(float64(len(rows)))

	for _, row := range rows {
		w.process(ctx, row)
	}
	return len(rows), nil
}

// Run loops, claiming and processing batches until ctx is cancelled. It
// claims one batch on every cfg.PollInterval tick, whether or not the
// previous batch was empty, mirroring a ticker-driven background engine:
// poll, process, wait, repeat.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Info("outbox worker started", "worker_id", w.cfg.WorkerID, "poll_interval", w.cfg.PollInterval)

	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("outbox worker stopped", "worker_id", w.cfg.WorkerID)
			return nil
		case <-ticker.C:
			n, err := w.RunOnce(ctx)
			if err != nil {
				w.logger.Error("outbox worker batch failed", "worker_id", w.cfg.WorkerID, "error", err)
				continue
			}
			if n > 0 {
				w.logger.Info("outbox worker processed batch", "worker_id", w.cfg.WorkerID, "count", n)
			}
		}
	}
}

func (w *Worker) process(ctx context.Context, row logbook.OutboxRow) {
	start := time.Now()
	outcome := "error"
	defer func() {
		telemetry.OutboxProcessedTotal.WithLabelValues(outcome).Inc()
		telemetry.OutboxProcessDuration.Observe(time.Since(start).Seconds())
	}()

	if w.cfg.LeaseSeconds > 1 {
		// Renew the lease midway through, guarding against a call that
		// outlives lease_seconds.
		half := time.Duration(w.cfg.LeaseSeconds/2) * time.Second
		timer := time.AfterFunc(half, func() {
			if _, err := w.logbook.RenewLease(ctx, row.OutboxID, w.cfg.WorkerID); err != nil {
				w.logger.Warn("renewing outbox lease failed", "outbox_id", row.OutboxID, "error", err)
			}
		})
		defer timer.Stop()
	}

	result, err := w.openMemory.Store(ctx, row.PayloadMD, row.TargetSpace, "", nil, nil)

	if err == nil && result != nil && result.Success {
		ok, ackErr := w.logbook.AckSent(ctx, row.OutboxID, w.cfg.WorkerID, result.MemoryID)
		if ackErr != nil {
			w.logger.Error("acking outbox row failed", "outbox_id", row.OutboxID, "error", ackErr)
			return
		}
		if !ok {
			w.logger.Warn("outbox ack affected zero rows, claim stolen or stale", "outbox_id", row.OutboxID)
			return
		}
		w.writeFlushAudit(ctx, row, result.MemoryID)
		outcome = "sent"
		return
	}

	if apiErr, isAPI := err.(*openmemory.APIError); isAPI && apiErr.StatusCode >= 400 && apiErr.StatusCode < 500 {
		// Permanent failure — the request itself was rejected downstream.
		if _, dErr := w.logbook.MarkDead(ctx, row.OutboxID, w.cfg.WorkerID, apiErr.Error()); dErr != nil {
			w.logger.Error("dead-lettering outbox row failed", "outbox_id", row.OutboxID, "error", dErr)
		}
		outcome = "dead"
		return
	}

	errMsg := "openmemory returned an unsuccessful result"
	if err != nil {
		errMsg = err.Error()
	}

	if row.RetryCount+1 >= w.cfg.MaxRetries {
		if _, dErr := w.logbook.MarkDead(ctx, row.OutboxID, w.cfg.WorkerID, errMsg); dErr != nil {
			w.logger.Error("dead-lettering outbox row failed", "outbox_id", row.OutboxID, "error", dErr)
		}
		outcome = "dead"
		return
	}

	backoff := backoffDuration(w.cfg.BaseBackoffSeconds, row.RetryCount)
	if _, rErr := w.logbook.FailRetry(ctx, row.OutboxID, w.cfg.WorkerID, errMsg, time.Now().Add(backoff)); rErr != nil {
		w.logger.Error("scheduling outbox retry failed", "outbox_id", row.OutboxID, "error", rErr)
		return
	}
	outcome = "retry"
}

// backoffDuration implements next_attempt_at = now() + base * 2^retry_count,
// capped so a long-dead row doesn't schedule itself decades out.
func backoffDuration(baseSeconds, retryCount int) time.Duration {
	const capSeconds = 6 * 60 * 60
	seconds := float64(baseSeconds) * math.Pow(2, float64(retryCount))
	if seconds > capSeconds {
		seconds = capSeconds
	}
	return time.Duration(seconds) * time.Second
}

// writeFlushAudit records a successful outbox flush under a fresh
// worker-minted correlation id — linked to the originating request only
// via the shared outbox_id, per SPEC_FULL.md §4.9.
func (w *Worker) writeFlushAudit(ctx context.Context, row logbook.OutboxRow, memoryID string) {
	workerCorrelationID := newWorkerCorrelationID()
	env := logbook.EvidenceEnvelope{
		Source:        "outbox_worker",
		CorrelationID: workerCorrelationID,
		PayloadSHA:    row.PayloadSHA,
		OutboxID:      &row.OutboxID,
		MemoryID:      memoryID,
		Extra: map[string]any{
			"correlation_id": workerCorrelationID,
			"attempt_id":     "attempt-" + randomHex(8),
		},
	}
	if _, err := w.logbook.WriteAudit(ctx, workerCorrelationID, nil, row.TargetSpace, "allow", "outbox_flush_success", row.PayloadSHA, "success", env); err != nil {
		w.logger.Error("writing outbox flush audit failed", "outbox_id", row.OutboxID, "error", err)
	}
}

func newWorkerCorrelationID() string {
	return "corr-" + randomHex(8)
}

func randomHex(n int) string {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		panic(fmt.Errorf("outboxworker: reading random bytes: %w", err))
	}
	return hex.EncodeToString(b)
}
