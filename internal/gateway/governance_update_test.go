package gateway_test

import (
	"context"
	"testing"

	"github.com/onlyfeng/engram-gateway/internal/gateway"
	"github.com/onlyfeng/engram-gateway/internal/logbook"
	"github.com/onlyfeng/engram-gateway/internal/openmemory"
)

func TestGovernanceUpdate_NoAdminKeyConfiguredAllowsAnyone(t *testing.T) {
	lb := logbook.NewFake()
	om := &openmemory.Fake{}
	gw := newTestGateway(lb, om, baseConfig())

	resp, err := gw.GovernanceUpdate(context.Background(), "corr-0000000000000020", gateway.GovernanceUpdateRequest{
		TeamWriteEnabled: boolPtr(false),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !resp.OK || resp.TeamWriteEnabled {
		t.Fatalf("expected team_write_enabled to flip to false, got %+v", resp)
	}
}

func TestGovernanceUpdate_RejectsOnAdminKeyMismatch(t *testing.T) {
	lb := logbook.NewFake()
	om := &openmemory.Fake{}
	cfg := baseConfig()
	cfg.GovernanceAdminKey = "s3cret"
	gw := newTestGateway(lb, om, cfg)

	resp, err := gw.GovernanceUpdate(context.Background(), "corr-0000000000000021", gateway.GovernanceUpdateRequest{
		AdminKey:         "wrong",
		TeamWriteEnabled: boolPtr(false),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.OK || resp.Action != "reject" {
		t.Fatalf("expected reject on admin key mismatch, got %+v", resp)
	}
}

func TestGovernanceUpdate_AcceptsMatchingAdminKey(t *testing.T) {
	lb := logbook.NewFake()
	om := &openmemory.Fake{}
	cfg := baseConfig()
	cfg.GovernanceAdminKey = "s3cret"
	gw := newTestGateway(lb, om, cfg)

	resp, err := gw.GovernanceUpdate(context.Background(), "corr-0000000000000022", gateway.GovernanceUpdateRequest{
		AdminKey:         "s3cret",
		TeamWriteEnabled: boolPtr(true),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !resp.OK || !resp.TeamWriteEnabled {
		t.Fatalf("expected allow, got %+v", resp)
	}
}
