package policy_test

import (
	"testing"

	"github.com/onlyfeng/engram-gateway/internal/policy"
)

func TestEvaluate_TeamWriteDisabledRedirectsToPrivate(t *testing.T) {
	d := policy.Evaluate("alice", "team:default", policy.Settings{TeamWriteEnabled: false}, policy.Config{PrivateSpacePrefix: "private:"})
	if d.Action != policy.Redirect || d.FinalSpace != "private:alice" {
		t.Fatalf("expected redirect to private:alice, got %+v", d)
	}
}

func TestEvaluate_TeamWriteEnabledAllowsTeamSpace(t *testing.T) {
	d := policy.Evaluate("alice", "team:default", policy.Settings{TeamWriteEnabled: true}, policy.Config{PrivateSpacePrefix: "private:"})
	if d.Action != policy.Allow || d.FinalSpace != "team:default" {
		t.Fatalf("expected allow of team:default, got %+v", d)
	}
}

func TestEvaluate_PrivateSpaceAlwaysAllowed(t *testing.T) {
	d := policy.Evaluate("bob", "private:bob", policy.Settings{TeamWriteEnabled: false}, policy.Config{PrivateSpacePrefix: "private:"})
	if d.Action != policy.Allow {
		t.Fatalf("expected private space to always be allowed, got %+v", d)
	}
}

func TestEvaluate_KnownSharedSpaceAllowed(t *testing.T) {
	d := policy.Evaluate("bob", "org:shared", policy.Settings{}, policy.Config{})
	if d.Action != policy.Allow || d.FinalSpace != "org:shared" {
		t.Fatalf("expected org:shared allowed, got %+v", d)
	}
}

func TestEvaluate_UnknownSpaceRejected(t *testing.T) {
	d := policy.Evaluate("bob", "scratch:bob", policy.Settings{}, policy.Config{})
	if d.Action != policy.Reject {
		t.Fatalf("expected reject for an unrecognized space type, got %+v", d)
	}
}

func TestEvaluate_DefaultsPrivatePrefixWhenUnconfigured(t *testing.T) {
	d := policy.Evaluate("carol", "team:default", policy.Settings{TeamWriteEnabled: false}, policy.Config{})
	if d.FinalSpace != "private:carol" {
		t.Fatalf("expected default private: prefix, got %+v", d)
	}
}
