package gateway_test

import (
	"context"
	"testing"

	"github.com/onlyfeng/engram-gateway/internal/gateway"
	"github.com/onlyfeng/engram-gateway/internal/logbook"
	"github.com/onlyfeng/engram-gateway/internal/openmemory"
)

func TestMemoryQuery_PrimarySuccess(t *testing.T) {
	lb := logbook.NewFake()
	om := &openmemory.Fake{}
	om.ConfigureSearchSuccess([]openmemory.SearchHit{
		{ID: "m1", Content: "incident retro", Kind: "note"},
	})
	gw := newTestGateway(lb, om, baseConfig())

	resp, err := gw.MemoryQuery(context.Background(), "corr-0000000000000010", gateway.QueryRequest{Query: "incident"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !resp.OK || resp.Degraded {
		t.Fatalf("expected a non-degraded success, got %+v", resp)
	}
	if len(resp.Results) != 1 || resp.Results[0].Source != "openmemory" {
		t.Fatalf("expected one openmemory-sourced hit, got %+v", resp.Results)
	}
}

func TestMemoryQuery_FallsBackToLogbookOnOutage(t *testing.T) {
	lb := logbook.NewFake()
	lb.SeedCandidates(logbook.KnowledgeCandidate{CandidateID: 7, Title: "runbook", ContentMD: "restart the pager", Kind: "runbook", Confidence: 0.9})

	om := &openmemory.Fake{}
	om.ConfigureSearchConnectionError("connection refused")
	gw := newTestGateway(lb, om, baseConfig())

	resp, err := gw.MemoryQuery(context.Background(), "corr-0000000000000011", gateway.QueryRequest{Query: "pager"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !resp.OK || !resp.Degraded {
		t.Fatalf("expected a degraded-but-ok response, got %+v", resp)
	}
	if len(resp.Results) != 1 || resp.Results[0].ID != "kc_7" || resp.Results[0].Source != "logbook_fallback" {
		t.Fatalf("expected fallback hit kc_7, got %+v", resp.Results)
	}
}

func TestMemoryQuery_MissingQueryIsProtocolError(t *testing.T) {
	lb := logbook.NewFake()
	om := &openmemory.Fake{}
	gw := newTestGateway(lb, om, baseConfig())

	_, err := gw.MemoryQuery(context.Background(), "corr-0000000000000012", gateway.QueryRequest{})
	if _, ok := err.(*gateway.MissingParamError); !ok {
		t.Fatalf("expected *gateway.MissingParamError, got %v", err)
	}
}
