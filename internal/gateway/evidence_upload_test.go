package gateway_test

import (
	"context"
	"testing"

	"github.com/onlyfeng/engram-gateway/internal/artifactstore"
	"github.com/onlyfeng/engram-gateway/internal/gateway"
	"github.com/onlyfeng/engram-gateway/internal/logbook"
	"github.com/onlyfeng/engram-gateway/internal/openmemory"
)

func newTestGatewayWithArtifacts(t *testing.T, lb logbook.Port, om openmemory.Interface, cfg gateway.Config) *gateway.Gateway {
	t.Helper()
	store, err := artifactstore.NewLocalStore(t.TempDir())
	if err != nil {
		t.Fatalf("creating artifact store: %v", err)
	}
	return gateway.New(gateway.Deps{
		Config:        cfg,
		Logbook:       lb,
		OpenMemory:    om,
		ArtifactStore: store,
	})
}

func TestEvidenceUpload_StoresAndReturnsReference(t *testing.T) {
	lb := logbook.NewFake()
	om := &openmemory.Fake{}
	gw := newTestGatewayWithArtifacts(t, lb, om, baseConfig())

	resp, err := gw.EvidenceUpload(context.Background(), "corr-0000000000000030", gateway.EvidenceUploadRequest{
		Content:     "screenshot bytes",
		ContentType: "image/png",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !resp.OK || resp.Evidence == nil {
		t.Fatalf("expected a stored evidence ref, got %+v", resp)
	}
	if resp.Evidence.ContentType != "image/png" {
		t.Fatalf("expected content type to round-trip, got %q", resp.Evidence.ContentType)
	}
}

func TestEvidenceUpload_MissingFieldsAreProtocolErrors(t *testing.T) {
	lb := logbook.NewFake()
	om := &openmemory.Fake{}
	gw := newTestGatewayWithArtifacts(t, lb, om, baseConfig())

	if _, err := gw.EvidenceUpload(context.Background(), "corr-1", gateway.EvidenceUploadRequest{ContentType: "text/plain"}); err == nil {
		t.Fatal("expected missing content param error")
	}
	if _, err := gw.EvidenceUpload(context.Background(), "corr-2", gateway.EvidenceUploadRequest{Content: "x"}); err == nil {
		t.Fatal("expected missing content_type param error")
	}
}
