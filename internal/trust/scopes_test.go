package trust

import (
	"context"
	"testing"
)

func TestNormalizeScopes(t *testing.T) {
	got := NormalizeScopes([]string{" Agents:Read ", "agents:read", "", "billing:write"})
	if len(got) != 2 || got[0] != "agents:read" || got[1] != "billing:write" {
		t.Fatalf("unexpected normalization: %v", got)
	}
	if NormalizeScopes(nil) != nil {
		t.Fatalf("expected nil for empty input")
	}
}

func TestScopeSubset(t *testing.T) {
	cases := []struct {
		name      string
		requested []string
		granted   []string
		want      bool
	}{
		{"exact", []string{"agents:read"}, []string{"agents:read"}, true},
		{"wildcard resource", []string{"agents:read", "agents:write"}, []string{"agents:*"}, true},
		{"global wildcard", []string{"billing:refund"}, []string{"*"}, true},
		{"exceeds grant", []string{"agents:write"}, []string{"agents:read"}, false},
		{"wildcard does not cross resource", []string{"billing:read"}, []string{"agents:*"}, false},
		{"empty request", nil, []string{"agents:read"}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ScopeSubset(tc.requested, tc.granted); got != tc.want {
				t.Fatalf("ScopeSubset(%v, %v) = %v, want %v", tc.requested, tc.granted, got, tc.want)
			}
		})
	}
}

func TestScopeSatisfies(t *testing.T) {
	if !ScopeSatisfies([]string{"agents:*"}, []string{"agents:read", "workflows:run"}) {
		t.Fatalf("wildcard actor scope should satisfy agents:read")
	}
	if ScopeSatisfies([]string{"agents:read"}, []string{"workflows:run"}) {
		t.Fatalf("unrelated scope should not satisfy")
	}
	if !ScopeSatisfies([]string{"agents:read"}, nil) {
		t.Fatalf("endpoints without scope requirements admit any actor")
	}
}

func TestActorContextRoundTrip(t *testing.T) {
	ctx := context.Background()
	if _, ok := ActorFromContext(ctx); ok {
		t.Fatalf("expected no actor on fresh context")
	}
	actor := ActorContext{OrgID: "org-1", ActorID: "key-1", Method: MethodAPIKey, Tier: TierPro}
	ctx = ContextWithActor(ctx, actor)
	got, ok := ActorFromContext(ctx)
	if !ok || got.OrgID != "org-1" || got.Method != MethodAPIKey {
		t.Fatalf("unexpected actor: %+v ok=%v", got, ok)
	}
}

func TestParseTier(t *testing.T) {
	if ParseTier(" pro ") != TierPro {
		t.Fatalf("expected PRO")
	}
	if ParseTier("unknown") != TierFree {
		t.Fatalf("unknown tiers default to FREE")
	}
}

func TestIsAuthFailure(t *testing.T) {
	if !IsAuthFailure(ErrRevokedCredential) {
		t.Fatalf("revoked credential is an auth failure")
	}
	if IsAuthFailure(ErrRateLimitExceeded) {
		t.Fatalf("rate limiting is not an auth failure")
	}
}
