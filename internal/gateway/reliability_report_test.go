package gateway_test

import (
	"context"
	"testing"

	"github.com/onlyfeng/engram-gateway/internal/gateway"
	"github.com/onlyfeng/engram-gateway/internal/logbook"
	"github.com/onlyfeng/engram-gateway/internal/notify"
	"github.com/onlyfeng/engram-gateway/internal/openmemory"
)

func TestReliabilityReport_AggregatesOutboxAndAudit(t *testing.T) {
	lb := logbook.NewFake()
	om := &openmemory.Fake{}
	om.ConfigureStoreConnectionError("down")

	gw := gateway.New(gateway.Deps{
		Config:     baseConfig(),
		Logbook:    lb,
		OpenMemory: om,
		Slack:      notify.NewSlackNotifier("", ""),
	})

	if _, err := gw.MemoryStore(context.Background(), "corr-0000000000000040", gateway.StoreRequest{PayloadMD: "will be deferred"}); err != nil {
		t.Fatalf("seeding a deferred store failed: %v", err)
	}

	resp, err := gw.ReliabilityReport(context.Background(), "corr-0000000000000041", gateway.ReliabilityReportRequest{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !resp.OK {
		t.Fatalf("expected ok report, got %+v", resp)
	}
	if resp.OutboxByStatus["pending"] != 1 {
		t.Fatalf("expected 1 pending outbox row, got %+v", resp.OutboxByStatus)
	}
}

func TestReliabilityReport_PostDigestNoopWhenSlackDisabled(t *testing.T) {
	lb := logbook.NewFake()
	om := &openmemory.Fake{}
	gw := gateway.New(gateway.Deps{
		Config:     baseConfig(),
		Logbook:    lb,
		OpenMemory: om,
		Slack:      notify.NewSlackNotifier("", ""),
	})

	resp, err := gw.ReliabilityReport(context.Background(), "corr-0000000000000042", gateway.ReliabilityReportRequest{PostDigest: true})
	if err != nil {
		t.Fatalf("unexpected error posting digest with slack disabled: %v", err)
	}
	if !resp.OK {
		t.Fatalf("expected ok=true, got %+v", resp)
	}
}
