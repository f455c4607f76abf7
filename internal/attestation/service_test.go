package attestation

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"trustgate.io/internal/trust"
)

type memStore struct {
	byID   map[string]*Attestation
	byPair map[string]*Attestation
}

func newMemStore() *memStore {
	return &memStore{byID: map[string]*Attestation{}, byPair: map[string]*Attestation{}}
}

func pairKey(attester, subject string) string { return attester + "|" + subject }

func (m *memStore) Upsert(_ context.Context, a *Attestation) error {
	if prev, ok := m.byPair[pairKey(a.AttesterOrg, a.SubjectID)]; ok {
		delete(m.byID, prev.ID)
	}
	cp := *a
	m.byID[a.ID] = &cp
	m.byPair[pairKey(a.AttesterOrg, a.SubjectID)] = &cp
	return nil
}

func (m *memStore) Find(_ context.Context, id string) (*Attestation, error) {
	if a, ok := m.byID[id]; ok {
		cp := *a
		return &cp, nil
	}
	return nil, trust.ErrNotFound
}

func (m *memStore) ListBySubject(_ context.Context, subjectID string) ([]*Attestation, error) {
	var res []*Attestation
	for _, a := range m.byID {
		if a.SubjectID == subjectID {
			cp := *a
			res = append(res, &cp)
		}
	}
	return res, nil
}

func (m *memStore) ListByAttester(_ context.Context, attesterOrg string) ([]*Attestation, error) {
	var res []*Attestation
	for _, a := range m.byID {
		if a.AttesterOrg == attesterOrg {
			cp := *a
			res = append(res, &cp)
		}
	}
	return res, nil
}

func (m *memStore) MarkRevoked(_ context.Context, id string) error {
	a, ok := m.byID[id]
	if !ok {
		return trust.ErrNotFound
	}
	a.Revoked = true
	m.byPair[pairKey(a.AttesterOrg, a.SubjectID)] = a
	return nil
}

func TestCreateValidation(t *testing.T) {
	svc := NewService(newMemStore())
	ctx := context.Background()

	if _, err := svc.Create(ctx, "org-1", "org-1", 0.5, "", ""); !errors.Is(err, trust.ErrInvalidInput) {
		t.Fatalf("self-attestation must be rejected, got %v", err)
	}
	if _, err := svc.Create(ctx, "org-1", "org-2", 1.5, "", ""); !errors.Is(err, trust.ErrInvalidInput) {
		t.Fatalf("weight above 1 must be rejected, got %v", err)
	}
	if _, err := svc.Create(ctx, "org-1", "org-2", -0.1, "", ""); !errors.Is(err, trust.ErrInvalidInput) {
		t.Fatalf("negative weight must be rejected, got %v", err)
	}
	if _, err := svc.Create(ctx, "org-1", "org-2", math.NaN(), "", ""); !errors.Is(err, trust.ErrInvalidInput) {
		t.Fatalf("NaN weight must be rejected, got %v", err)
	}
	if _, err := svc.Create(ctx, "org-1", "org-2", 1.0, "solid partner", ""); err != nil {
		t.Fatalf("boundary weight 1.0 is valid: %v", err)
	}
}

func TestLatestAttestationSupersedes(t *testing.T) {
	store := newMemStore()
	svc := NewService(store)
	ctx := context.Background()

	if _, err := svc.Create(ctx, "org-1", "org-2", 0.9, "", ""); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := svc.Create(ctx, "org-1", "org-2", 0.2, "revised opinion", ""); err != nil {
		t.Fatalf("Create: %v", err)
	}

	list, err := svc.ListBySubject(ctx, "org-2")
	if err != nil {
		t.Fatalf("ListBySubject: %v", err)
	}
	if len(list) != 1 || list[0].Weight != 0.2 {
		t.Fatalf("expected single superseding attestation with weight 0.2, got %+v", list)
	}
}

func TestRevokeOnlyByAttester(t *testing.T) {
	svc := NewService(newMemStore())
	ctx := context.Background()

	a, err := svc.Create(ctx, "org-1", "org-2", 0.7, "", "")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := svc.Revoke(ctx, a.ID, "org-3"); !errors.Is(err, trust.ErrNotAttester) {
		t.Fatalf("expected ErrNotAttester, got %v", err)
	}
	if err := svc.Revoke(ctx, a.ID, "org-1"); err != nil {
		t.Fatalf("Revoke by attester: %v", err)
	}
}

func TestEffectiveWeightDecay(t *testing.T) {
	created := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	a := &Attestation{Weight: 0.8, CreatedAt: created}

	fresh := EffectiveWeight(a, created)
	if math.Abs(fresh-0.8) > 1e-9 {
		t.Fatalf("fresh attestation keeps full weight, got %f", fresh)
	}

	atHalfLife := EffectiveWeight(a, created.Add(DecayHalfLife))
	if math.Abs(atHalfLife-0.4) > 1e-9 {
		t.Fatalf("expected half weight at 90 days, got %f", atHalfLife)
	}

	// Monotonic non-increasing with age.
	prev := fresh
	for days := 1; days <= 720; days *= 2 {
		w := EffectiveWeight(a, created.Add(time.Duration(days)*24*time.Hour))
		if w > prev {
			t.Fatalf("decay must be monotonic non-increasing, %f > %f at %d days", w, prev, days)
		}
		prev = w
	}

	// Negligible far beyond the half-life window.
	distant := EffectiveWeight(a, created.Add(10*DecayHalfLife))
	if distant > 0.001 {
		t.Fatalf("expected negligible contribution after 10 half-lives, got %f", distant)
	}
	if distant < 0 {
		t.Fatalf("contribution must never be negative")
	}
}

func TestEffectiveWeightRevokedIsZero(t *testing.T) {
	a := &Attestation{Weight: 1.0, CreatedAt: time.Now(), Revoked: true}
	if w := EffectiveWeight(a, time.Now()); w != 0 {
		t.Fatalf("revoked attestation must contribute exactly zero, got %f", w)
	}
}

func TestSubjectScoreCap(t *testing.T) {
	now := time.Now().UTC()
	var list []*Attestation
	for i := 0; i < 5; i++ {
		list = append(list, &Attestation{Weight: 1.0, CreatedAt: now})
	}
	if got := SubjectScore(list, now); got != 100 {
		t.Fatalf("score must be capped at 100, got %f", got)
	}
	if got := SubjectScore(nil, now); got != 0 {
		t.Fatalf("no attestations scores zero, got %f", got)
	}
}
