package gateway_test

import (
	"context"
	"testing"

	"github.com/onlyfeng/engram-gateway/internal/gateway"
	"github.com/onlyfeng/engram-gateway/internal/logbook"
	"github.com/onlyfeng/engram-gateway/internal/openmemory"
)

func newTestGateway(lb logbook.Port, om openmemory.Interface, cfg gateway.Config) *gateway.Gateway {
	return gateway.New(gateway.Deps{
		Config:     cfg,
		Logbook:    lb,
		OpenMemory: om,
		Logger:     nil,
	})
}

func baseConfig() gateway.Config {
	return gateway.Config{
		ProjectKey:         "default",
		DefaultTeamSpace:   "team:default",
		PrivateSpacePrefix: "private:",
		UnknownActorPolicy: "degrade",
	}
}

func TestMemoryStore_AllowsTeamWrite(t *testing.T) {
	lb := logbook.NewFake()
	om := &openmemory.Fake{}
	om.ConfigureStoreSuccess("mem-1")

	gw := newTestGateway(lb, om, baseConfig())

	resp, err := gw.MemoryStore(context.Background(), "corr-0000000000000001", gateway.StoreRequest{
		PayloadMD: "hello world",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !resp.OK || resp.Action != "allow" {
		t.Fatalf("expected allow, got %+v", resp)
	}
	if resp.MemoryID != "mem-1" {
		t.Fatalf("expected memory id mem-1, got %q", resp.MemoryID)
	}
	if om.StoreCalls() != 1 {
		t.Fatalf("expected exactly 1 store call, got %d", om.StoreCalls())
	}
}

func TestMemoryStore_DeferredOnOpenMemoryOutage(t *testing.T) {
	lb := logbook.NewFake()
	om := &openmemory.Fake{}
	om.ConfigureStoreConnectionError("dial tcp: connection refused")

	gw := newTestGateway(lb, om, baseConfig())

	resp, err := gw.MemoryStore(context.Background(), "corr-0000000000000002", gateway.StoreRequest{
		PayloadMD: "deferred payload",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Action != "deferred" || resp.OutboxID == nil {
		t.Fatalf("expected deferred with an outbox id, got %+v", resp)
	}

	rows := lb.OutboxRows()
	if len(rows) != 1 {
		t.Fatalf("expected 1 outbox row, got %d", len(rows))
	}
	if rows[0].Status != "pending" {
		t.Fatalf("expected pending outbox row, got status %q", rows[0].Status)
	}
}

func TestMemoryStore_DedupHitSkipsSecondStore(t *testing.T) {
	lb := logbook.NewFake()
	om := &openmemory.Fake{}
	om.ConfigureStoreSuccess("mem-dedup")

	gw := newTestGateway(lb, om, baseConfig())
	req := gateway.StoreRequest{PayloadMD: "same content every time"}

	first, err := gw.MemoryStore(context.Background(), "corr-0000000000000003", req)
	if err != nil || !first.OK {
		t.Fatalf("first store failed: %+v err=%v", first, err)
	}

	second, err := gw.MemoryStore(context.Background(), "corr-0000000000000004", req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if second.Action != "allow" {
		t.Fatalf("expected dedup hit to still report allow, got %+v", second)
	}
	if om.StoreCalls() != 1 {
		t.Fatalf("dedup hit must not call Store again, calls=%d", om.StoreCalls())
	}
}

func TestMemoryStore_UnknownActorRejectPolicy(t *testing.T) {
	lb := logbook.NewFake()
	om := &openmemory.Fake{}
	om.ConfigureStoreSuccess("mem-2")

	cfg := baseConfig()
	cfg.UnknownActorPolicy = "reject"
	gw := newTestGateway(lb, om, cfg)

	resp, err := gw.MemoryStore(context.Background(), "corr-0000000000000005", gateway.StoreRequest{
		PayloadMD:   "payload",
		ActorUserID: "nobody",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.OK || resp.Action != "reject" {
		t.Fatalf("expected reject, got %+v", resp)
	}
	if om.StoreCalls() != 0 {
		t.Fatalf("reject path must never call Store, calls=%d", om.StoreCalls())
	}
}

func TestMemoryStore_MissingPayloadIsProtocolError(t *testing.T) {
	lb := logbook.NewFake()
	om := &openmemory.Fake{}
	gw := newTestGateway(lb, om, baseConfig())

	_, err := gw.MemoryStore(context.Background(), "corr-0000000000000006", gateway.StoreRequest{})
	if err == nil {
		t.Fatal("expected MissingParamError")
	}
	if _, ok := err.(*gateway.MissingParamError); !ok {
		t.Fatalf("expected *gateway.MissingParamError, got %T", err)
	}
}

func TestMemoryStore_TeamWriteDisabledRedirectsToPrivateSpace(t *testing.T) {
	lb := logbook.NewFake()
	om := &openmemory.Fake{}
	om.ConfigureStoreSuccess("mem-3")

	cfg := baseConfig()
	gw := newTestGateway(lb, om, cfg)

	lb.SeedUser("alice", "Alice")
	if _, err := lb.UpsertSettings(context.Background(), cfg.ProjectKey, boolPtr(false), nil, "test"); err != nil {
		t.Fatalf("seeding settings failed: %v", err)
	}

	resp, err := gw.MemoryStore(context.Background(), "corr-0000000000000007", gateway.StoreRequest{
		PayloadMD:   "payload",
		TargetSpace: "team:default",
		ActorUserID: "alice",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Action != "redirect" || resp.SpaceWritten != "private:alice" {
		t.Fatalf("expected redirect to private:alice, got %+v", resp)
	}
}

func boolPtr(b bool) *bool { return &b }
