package outboxworker_test

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/onlyfeng/engram-gateway/internal/logbook"
	"github.com/onlyfeng/engram-gateway/internal/openmemory"
	"github.com/onlyfeng/engram-gateway/internal/outboxworker"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestWorker(lb logbook.Port, om openmemory.Interface) *outboxworker.Worker {
	return outboxworker.New(outboxworker.Config{
		WorkerID:           "worker-test",
		BatchSize:          10,
		MaxRetries:         3,
		BaseBackoffSeconds: 1,
		LeaseSeconds:       30,
	}, lb, om, testLogger())
}

func TestRunOnce_AcksOnSuccess(t *testing.T) {
	lb := logbook.NewFake()
	om := &openmemory.Fake{}
	om.ConfigureStoreSuccess("mem-99")

	id, err := lb.EnqueueOutbox(context.Background(), "payload", "team:default", "deadbeef")
	if err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}

	w := newTestWorker(lb, om)
	n, err := w.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected to process 1 row, got %d", n)
	}

	rows := lb.OutboxRows()
	if len(rows) != 1 || rows[0].OutboxID != id {
		t.Fatalf("unexpected rows: %+v", rows)
	}
	if rows[0].Status != "sent" {
		t.Fatalf("expected sent status, got %q", rows[0].Status)
	}

	audits := lb.Audits()
	if len(audits) != 1 || audits[0].Reason != "outbox_flush_success" {
		t.Fatalf("expected one outbox_flush_success audit, got %+v", audits)
	}
	if audits[0].CorrelationID == "" {
		t.Fatal("expected the worker to mint its own correlation id")
	}
}

func TestRunOnce_DeadLettersOn4xx(t *testing.T) {
	lb := logbook.NewFake()
	om := &openmemory.Fake{}
	om.ConfigureStoreAPIError(422, "invalid content")

	if _, err := lb.EnqueueOutbox(context.Background(), "payload", "team:default", "cafebabe"); err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}

	w := newTestWorker(lb, om)
	if _, err := w.RunOnce(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	rows := lb.OutboxRows()
	if len(rows) != 1 || rows[0].Status != "dead" {
		t.Fatalf("expected the row to be dead-lettered immediately on a 4xx, got %+v", rows)
	}
}

func TestRunOnce_RetriesOnTransportErrorUntilMaxRetries(t *testing.T) {
	lb := logbook.NewFake()
	om := &openmemory.Fake{}
	om.ConfigureStoreConnectionError("timeout")

	if _, err := lb.EnqueueOutbox(context.Background(), "payload", "team:default", "f00dcafe"); err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}

	w := newTestWorker(lb, om)
	for i := 0; i < 3; i++ {
		rows := lb.OutboxRows()
		for _, r := range rows {
			r.NextAttemptAt = time.Now()
		}
		if _, err := w.RunOnce(context.Background()); err != nil {
			t.Fatalf("unexpected error on iteration %d: %v", i, err)
		}
	}

	rows := lb.OutboxRows()
	if len(rows) != 1 || rows[0].Status != "dead" {
		t.Fatalf("expected the row to be dead-lettered after exhausting retries, got %+v", rows)
	}
	if rows[0].RetryCount < 2 {
		t.Fatalf("expected retry_count to have incremented, got %d", rows[0].RetryCount)
	}
}
