package signature

import (
	"context"
	"errors"
	"strconv"
	"testing"
	"time"

	"trustgate.io/internal/trust"
)

type memStore map[string]*SigningKey

func (m memStore) FindSigningKey(_ context.Context, keyID string) (*SigningKey, error) {
	if k, ok := m[keyID]; ok {
		cp := *k
		return &cp, nil
	}
	return nil, trust.ErrNotFound
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestVerifyValidSignature(t *testing.T) {
	now := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)
	store := memStore{"sig-1": {ID: "sig-1", OrgID: "org-1", Secret: "shared-secret", Tier: trust.TierFree, Active: true}}
	v := NewVerifier(store, WithClock(fixedClock(now)))

	ts := strconv.FormatInt(now.Unix(), 10)
	body := []byte(`{"action":"ping"}`)
	req := Request{
		Method:    "POST",
		Path:      "/v1/agents",
		Body:      body,
		KeyID:     "sig-1",
		Timestamp: ts,
		Signature: Sign([]byte("shared-secret"), "POST", "/v1/agents", body, ts),
	}

	actor, err := v.Verify(context.Background(), req)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if actor.OrgID != "org-1" || actor.ActorID != "legacy-hmac:sig-1" {
		t.Fatalf("unexpected actor: %+v", actor)
	}
	if len(actor.Scopes) != 1 || actor.Scopes[0] != "*" {
		t.Fatalf("legacy auth grants wildcard scope, got %v", actor.Scopes)
	}
}

func TestVerifySingleByteDifference(t *testing.T) {
	now := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)
	store := memStore{"sig-1": {ID: "sig-1", OrgID: "org-1", Secret: "shared-secret", Active: true}}
	v := NewVerifier(store, WithClock(fixedClock(now)))

	ts := strconv.FormatInt(now.Unix(), 10)
	good := Sign([]byte("shared-secret"), "POST", "/v1/agents", []byte("body"), ts)
	alteredBody := Sign([]byte("shared-secret"), "POST", "/v1/agents", []byte("bodY"), ts)
	if good == alteredBody {
		t.Fatalf("one-byte body change must alter the signature")
	}

	req := Request{Method: "POST", Path: "/v1/agents", Body: []byte("body"), KeyID: "sig-1", Timestamp: ts, Signature: alteredBody}
	if _, err := v.Verify(context.Background(), req); !errors.Is(err, trust.ErrInvalidCredential) {
		t.Fatalf("expected ErrInvalidCredential, got %v", err)
	}
}

func TestVerifyStaleTimestamp(t *testing.T) {
	now := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)
	store := memStore{"sig-1": {ID: "sig-1", OrgID: "org-1", Secret: "shared-secret", Active: true}}
	v := NewVerifier(store, WithClock(fixedClock(now)))

	stale := now.Add(-6 * time.Minute)
	ts := strconv.FormatInt(stale.Unix(), 10)
	// Signature itself is correct; age alone must reject it.
	req := Request{
		Method:    "GET",
		Path:      "/v1/info",
		KeyID:     "sig-1",
		Timestamp: ts,
		Signature: Sign([]byte("shared-secret"), "GET", "/v1/info", nil, ts),
	}
	if _, err := v.Verify(context.Background(), req); !errors.Is(err, trust.ErrStaleTimestamp) {
		t.Fatalf("expected ErrStaleTimestamp, got %v", err)
	}

	// Future drift is rejected symmetrically.
	future := strconv.FormatInt(now.Add(6*time.Minute).Unix(), 10)
	req.Timestamp = future
	req.Signature = Sign([]byte("shared-secret"), "GET", "/v1/info", nil, future)
	if _, err := v.Verify(context.Background(), req); !errors.Is(err, trust.ErrStaleTimestamp) {
		t.Fatalf("expected ErrStaleTimestamp for future timestamp, got %v", err)
	}
}

func TestVerifyUnknownOrInactiveKey(t *testing.T) {
	now := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)
	store := memStore{"sig-off": {ID: "sig-off", OrgID: "org-1", Secret: "s", Active: false}}
	v := NewVerifier(store, WithClock(fixedClock(now)))
	ts := strconv.FormatInt(now.Unix(), 10)

	req := Request{Method: "GET", Path: "/", KeyID: "nope", Timestamp: ts, Signature: "00"}
	if _, err := v.Verify(context.Background(), req); !errors.Is(err, trust.ErrInvalidCredential) {
		t.Fatalf("expected ErrInvalidCredential, got %v", err)
	}

	req.KeyID = "sig-off"
	req.Signature = Sign([]byte("s"), "GET", "/", nil, ts)
	if _, err := v.Verify(context.Background(), req); !errors.Is(err, trust.ErrRevokedCredential) {
		t.Fatalf("expected ErrRevokedCredential, got %v", err)
	}
}

func TestVerifyBadTimestampFormat(t *testing.T) {
	v := NewVerifier(memStore{}, WithClock(fixedClock(time.Now())))
	req := Request{Method: "GET", Path: "/", KeyID: "k", Timestamp: "yesterday", Signature: "00"}
	if _, err := v.Verify(context.Background(), req); !errors.Is(err, trust.ErrInvalidCredential) {
		t.Fatalf("expected ErrInvalidCredential, got %v", err)
	}
}
