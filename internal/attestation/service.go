package attestation

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"trustgate.io/internal/ids"
	"trustgate.io/internal/trust"
)

// DecayHalfLife is the age at which an attestation's contribution halves.
const DecayHalfLife = 90 * 24 * time.Hour

// Attestation is a weighted, decaying vouch from one organization for
// another organization or agent.
type Attestation struct {
	ID          string
	AttesterOrg string
	SubjectID   string
	Weight      float64
	Statement   string
	EvidenceRef string
	CreatedAt   time.Time
	Revoked     bool
}

// Store describes attestation persistence. Upsert replaces any prior
// attestation for the same (attester, subject) pair: the latest vouch
// supersedes earlier ones.
type Store interface {
	Upsert(ctx context.Context, a *Attestation) error
	Find(ctx context.Context, id string) (*Attestation, error)
	ListBySubject(ctx context.Context, subjectID string) ([]*Attestation, error)
	ListByAttester(ctx context.Context, attesterOrg string) ([]*Attestation, error)
	MarkRevoked(ctx context.Context, id string) error
}

// Service validates and records attestations and computes their decayed
// contribution for the reputation engine.
type Service struct {
	store Store
	now   func() time.Time
}

// Option configures Service behavior.
type Option func(*Service)

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) Option {
	return func(s *Service) {
		if fn != nil {
			s.now = fn
		}
	}
}

// NewService constructs the attestation service.
func NewService(store Store, opts ...Option) *Service {
	s := &Service{store: store, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create records a vouch. Self-attestation is rejected, as are weights
// outside [0,1].
func (s *Service) Create(ctx context.Context, attesterOrg, subjectID string, weight float64, statement, evidenceRef string) (*Attestation, error) {
	attesterOrg = strings.TrimSpace(attesterOrg)
	subjectID = strings.TrimSpace(subjectID)
	if attesterOrg == "" || subjectID == "" {
		return nil, fmt.Errorf("%w: attester and subject are required", trust.ErrInvalidInput)
	}
	if attesterOrg == subjectID {
		return nil, fmt.Errorf("%w: an organization cannot attest to itself", trust.ErrInvalidInput)
	}
	if math.IsNaN(weight) || weight < 0 || weight > 1 {
		return nil, fmt.Errorf("%w: weight must be within [0,1]", trust.ErrInvalidInput)
	}

	a := &Attestation{
		ID:          ids.New(),
		AttesterOrg: attesterOrg,
		SubjectID:   subjectID,
		Weight:      weight,
		Statement:   strings.TrimSpace(statement),
		EvidenceRef: strings.TrimSpace(evidenceRef),
		CreatedAt:   s.now().UTC(),
	}
	if err := s.store.Upsert(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}

// Revoke withdraws a vouch. Only the original attester may revoke.
func (s *Service) Revoke(ctx context.Context, attestationID, requestingOrg string) error {
	a, err := s.store.Find(ctx, strings.TrimSpace(attestationID))
	if err != nil {
		return err
	}
	if a.AttesterOrg != strings.TrimSpace(requestingOrg) {
		return trust.ErrNotAttester
	}
	return s.store.MarkRevoked(ctx, a.ID)
}

// ListBySubject returns all attestations pointing at a subject.
func (s *Service) ListBySubject(ctx context.Context, subjectID string) ([]*Attestation, error) {
	return s.store.ListBySubject(ctx, strings.TrimSpace(subjectID))
}

// ListByAttester returns all attestations an organization has made.
func (s *Service) ListByAttester(ctx context.Context, attesterOrg string) ([]*Attestation, error) {
	return s.store.ListByAttester(ctx, strings.TrimSpace(attesterOrg))
}

// EffectiveWeight applies exponential decay with a 90-day half-life.
// Revoked attestations contribute exactly zero; contributions are never
// negative.
func EffectiveWeight(a *Attestation, now time.Time) float64 {
	if a == nil || a.Revoked {
		return 0
	}
	age := now.Sub(a.CreatedAt)
	if age < 0 {
		age = 0
	}
	halfLives := age.Hours() / DecayHalfLife.Hours()
	return a.Weight * math.Pow(0.5, halfLives)
}

// SubjectScore sums decayed weights for a subject, scaled to [0,100] and
// capped at 100. This is the attestation component consumed by the
// reputation engine.
func SubjectScore(attestations []*Attestation, now time.Time) float64 {
	var sum float64
	for _, a := range attestations {
		sum += EffectiveWeight(a, now)
	}
	score := sum * 100
	if score > 100 {
		score = 100
	}
	return score
}
