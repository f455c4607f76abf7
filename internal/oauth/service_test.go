package oauth

import (
	"context"
	"errors"
	"testing"
	"time"

	"trustgate.io/internal/trust"
)

type memStore struct {
	clients map[string]*Client
	tokens  map[string]*Token
}

func newMemStore() *memStore {
	return &memStore{clients: map[string]*Client{}, tokens: map[string]*Token{}}
}

func (m *memStore) CreateClient(_ context.Context, c *Client) error {
	cp := *c
	m.clients[c.ID] = &cp
	return nil
}

func (m *memStore) FindClient(_ context.Context, id string) (*Client, error) {
	if c, ok := m.clients[id]; ok {
		cp := *c
		return &cp, nil
	}
	return nil, trust.ErrNotFound
}

func (m *memStore) ListClientsByOrg(_ context.Context, orgID string) ([]*Client, error) {
	var res []*Client
	for _, c := range m.clients {
		if c.OrgID == orgID {
			cp := *c
			res = append(res, &cp)
		}
	}
	return res, nil
}

func (m *memStore) MarkClientRevoked(_ context.Context, id string, at time.Time) error {
	c, ok := m.clients[id]
	if !ok || !c.Active {
		return trust.ErrNotFound
	}
	c.Active = false
	c.RevokedAt = &at
	return nil
}

func (m *memStore) CreateToken(_ context.Context, t *Token) error {
	cp := *t
	m.tokens[t.JTI] = &cp
	return nil
}

func (m *memStore) FindToken(_ context.Context, jti string) (*Token, error) {
	if t, ok := m.tokens[jti]; ok {
		cp := *t
		return &cp, nil
	}
	return nil, trust.ErrNotFound
}

func (m *memStore) MarkTokenRevoked(_ context.Context, jti string) error {
	t, ok := m.tokens[jti]
	if !ok {
		return trust.ErrNotFound
	}
	t.Revoked = true
	return nil
}

func (m *memStore) MarkTokensRevokedByClient(_ context.Context, clientID string) error {
	for _, t := range m.tokens {
		if t.ClientID == clientID {
			t.Revoked = true
		}
	}
	return nil
}

func newTestService(t *testing.T, store Store, opts ...Option) *Service {
	t.Helper()
	svc, err := NewService(store, "test-signing-secret", opts...)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return svc
}

func register(t *testing.T, svc *Service, scopes []string) (*Client, string) {
	t.Helper()
	client, secret, err := svc.RegisterClient(context.Background(), "org-1", scopes, trust.TierPro)
	if err != nil {
		t.Fatalf("RegisterClient: %v", err)
	}
	return client, secret
}

func TestIssueAndVerifyToken(t *testing.T) {
	svc := newTestService(t, newMemStore())
	client, secret := register(t, svc, []string{"agents:read", "agents:write"})

	signed, token, err := svc.IssueToken(context.Background(), client.ID, secret, []string{"agents:read"})
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}
	if len(token.Scopes) != 1 || token.Scopes[0] != "agents:read" {
		t.Fatalf("unexpected granted scopes: %v", token.Scopes)
	}

	actor, err := svc.VerifyToken(context.Background(), signed)
	if err != nil {
		t.Fatalf("VerifyToken: %v", err)
	}
	if actor.ActorID != client.ID || actor.OrgID != "org-1" {
		t.Fatalf("unexpected actor: %+v", actor)
	}
	if actor.Method != trust.MethodOAuth || actor.Tier != trust.TierPro {
		t.Fatalf("unexpected method/tier: %+v", actor)
	}
}

func TestIssueTokenScopeNotGranted(t *testing.T) {
	svc := newTestService(t, newMemStore())
	client, secret := register(t, svc, []string{"agents:read"})

	_, _, err := svc.IssueToken(context.Background(), client.ID, secret, []string{"agents:write"})
	if !errors.Is(err, trust.ErrScopeNotGranted) {
		t.Fatalf("expected ErrScopeNotGranted, got %v", err)
	}
}

func TestIssueTokenEmptyScopeGrantsAllAllowed(t *testing.T) {
	svc := newTestService(t, newMemStore())
	client, secret := register(t, svc, []string{"agents:read", "workflows:run"})

	_, token, err := svc.IssueToken(context.Background(), client.ID, secret, nil)
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}
	if !trust.ScopeSubset(token.Scopes, client.Scopes) || len(token.Scopes) != 2 {
		t.Fatalf("expected full allowed set, got %v", token.Scopes)
	}
}

func TestIssueTokenWrongSecret(t *testing.T) {
	svc := newTestService(t, newMemStore())
	client, _ := register(t, svc, []string{"agents:read"})

	_, _, err := svc.IssueToken(context.Background(), client.ID, "wrong", nil)
	if !errors.Is(err, trust.ErrInvalidCredential) {
		t.Fatalf("expected ErrInvalidCredential, got %v", err)
	}
}

func TestVerifyTokenExpired(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	svc := newTestService(t, newMemStore(), WithClock(func() time.Time { return clock() }), WithTokenTTL(time.Minute))
	client, secret := register(t, svc, []string{"agents:read"})

	signed, _, err := svc.IssueToken(context.Background(), client.ID, secret, nil)
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}

	now = now.Add(2 * time.Minute)
	if _, err := svc.VerifyToken(context.Background(), signed); !errors.Is(err, trust.ErrTokenExpired) {
		t.Fatalf("expected ErrTokenExpired, got %v", err)
	}
}

func TestVerifyTokenRevoked(t *testing.T) {
	svc := newTestService(t, newMemStore())
	client, secret := register(t, svc, []string{"agents:read"})

	signed, token, err := svc.IssueToken(context.Background(), client.ID, secret, nil)
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}
	if err := svc.RevokeToken(context.Background(), token.JTI); err != nil {
		t.Fatalf("RevokeToken: %v", err)
	}

	if _, err := svc.VerifyToken(context.Background(), signed); !errors.Is(err, trust.ErrTokenRevoked) {
		t.Fatalf("expected ErrTokenRevoked, got %v", err)
	}
}

func TestRevokeClientCascades(t *testing.T) {
	store := newMemStore()
	svc := newTestService(t, store)
	client, secret := register(t, svc, []string{"agents:read"})

	signed, _, err := svc.IssueToken(context.Background(), client.ID, secret, nil)
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}
	if err := svc.RevokeClient(context.Background(), client.ID); err != nil {
		t.Fatalf("RevokeClient: %v", err)
	}

	if _, err := svc.VerifyToken(context.Background(), signed); !errors.Is(err, trust.ErrTokenRevoked) {
		t.Fatalf("expected cascaded revocation, got %v", err)
	}
	if _, _, err := svc.IssueToken(context.Background(), client.ID, secret, nil); !errors.Is(err, trust.ErrRevokedCredential) {
		t.Fatalf("expected ErrRevokedCredential for revoked client, got %v", err)
	}
}

func TestVerifyTokenTampered(t *testing.T) {
	svc := newTestService(t, newMemStore())
	client, secret := register(t, svc, []string{"agents:read"})

	signed, _, err := svc.IssueToken(context.Background(), client.ID, secret, nil)
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}
	tampered := signed[:len(signed)-2] + "xx"
	if _, err := svc.VerifyToken(context.Background(), tampered); !errors.Is(err, trust.ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestVerifyTokenUnknownJTI(t *testing.T) {
	store := newMemStore()
	svc := newTestService(t, store)
	client, secret := register(t, svc, []string{"agents:read"})

	signed, token, err := svc.IssueToken(context.Background(), client.ID, secret, nil)
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}
	// Signature is valid but the gateway has no record of the token.
	delete(store.tokens, token.JTI)
	if _, err := svc.VerifyToken(context.Background(), signed); !errors.Is(err, trust.ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}
