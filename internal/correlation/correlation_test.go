package correlation_test

import (
	"context"
	"testing"

	"github.com/onlyfeng/engram-gateway/internal/correlation"
)

func TestNew_MatchesFormat(t *testing.T) {
	id := correlation.New()
	if !correlation.Format.MatchString(id) {
		t.Fatalf("generated id %q does not match expected format", id)
	}
}

func TestNew_IsUniquePerCall(t *testing.T) {
	if correlation.New() == correlation.New() {
		t.Fatal("expected two consecutive calls to produce distinct ids")
	}
}

func TestContext_RoundTrips(t *testing.T) {
	id := correlation.New()
	ctx := correlation.NewContext(context.Background(), id)
	if got := correlation.FromContext(ctx); got != id {
		t.Fatalf("expected %q, got %q", id, got)
	}
}

func TestFromContext_EmptyWhenAbsent(t *testing.T) {
	if got := correlation.FromContext(context.Background()); got != "" {
		t.Fatalf("expected empty string for a context with no correlation id, got %q", got)
	}
}

func TestBuilder_StrictPanicsWithoutID(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected a strict builder to panic when given no id")
		}
	}()
	correlation.Builder{Strict: true}.For("")
}

func TestBuilder_StrictPassesThroughExistingID(t *testing.T) {
	b := correlation.Builder{Strict: true}
	if got := b.For("corr-aaaaaaaaaaaaaaaa"); got != "corr-aaaaaaaaaaaaaaaa" {
		t.Fatalf("expected the supplied id to pass through unchanged, got %q", got)
	}
}

func TestBuilder_NonStrictMintsWhenEmpty(t *testing.T) {
	b := correlation.Builder{Strict: false}
	if got := b.For(""); !correlation.Format.MatchString(got) {
		t.Fatalf("expected a minted id matching the format, got %q", got)
	}
}
