package reputation

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"trustgate.io/internal/attestation"
	"trustgate.io/internal/obs"
	"trustgate.io/internal/trust"
)

// Component weights per the trust model. Each sub-score is normalized to
// [0,100] before weighting.
const (
	weightCommerce    = 0.4
	weightHygiene     = 0.3
	weightAttestation = 0.2
	weightLongevity   = 0.1

	commerceWindow = 30 * 24 * time.Hour
	// Longevity saturates around one year of account age.
	longevitySaturationDays = 365
)

// Snapshot is the cached, periodically recomputed trust score for one
// subject. Stale snapshots keep serving between runs.
type Snapshot struct {
	SubjectType trust.SubjectType
	SubjectID   string
	Score       float64
	Commerce    float64
	Hygiene     float64
	Attestation float64
	Longevity   float64
	ComputedAt  time.Time
}

// Subject is a scoring candidate discovered from recent activity.
type Subject struct {
	ID        string
	Type      trust.SubjectType
	CreatedAt time.Time
}

// ActivityStats aggregates a subject's commerce and hygiene signals over
// a trailing window.
type ActivityStats struct {
	Transactions     int64
	SuccessfulTx     int64
	TransactionValue int64
	Requests         int64
	RequestErrors    int64
	UptimePct        float64
}

// SnapshotStore persists committed snapshots. Upsert overwrites the
// subject's previous snapshot atomically; readers always see the last
// fully committed row.
type SnapshotStore interface {
	Upsert(ctx context.Context, snap *Snapshot) error
	Find(ctx context.Context, subjectID string) (*Snapshot, error)
}

// ActivityStore supplies scoring inputs.
type ActivityStore interface {
	ListActiveSubjects(ctx context.Context, since time.Time) ([]Subject, error)
	ActivityStats(ctx context.Context, subjectID string, since time.Time) (ActivityStats, error)
}

// AttestationSource supplies the vouches pointing at a subject.
type AttestationSource interface {
	ListBySubject(ctx context.Context, subjectID string) ([]*attestation.Attestation, error)
}

// Engine recomputes reputation snapshots in batch.
type Engine struct {
	snapshots    SnapshotStore
	activity     ActivityStore
	attestations AttestationSource
	now          func() time.Time

	// Guards against overlapping runs: a run that would overlap a slow
	// prior run is skipped, never interleaved.
	running atomic.Bool
}

// Option configures Engine behavior.
type Option func(*Engine)

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) Option {
	return func(e *Engine) {
		if fn != nil {
			e.now = fn
		}
	}
}

// NewEngine constructs the batch engine.
func NewEngine(snapshots SnapshotStore, activity ActivityStore, attestations AttestationSource, opts ...Option) *Engine {
	e := &Engine{
		snapshots:    snapshots,
		activity:     activity,
		attestations: attestations,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ErrRunInProgress signals that a batch run was skipped because a prior
// run is still executing.
var ErrRunInProgress = fmt.Errorf("reputation: run already in progress")

// Run recomputes one snapshot per subject with recent activity. A failed
// subject is logged and skipped; the run continues, and the subject's
// previous snapshot keeps serving until the next interval.
func (e *Engine) Run(ctx context.Context) (int, error) {
	if !e.running.CompareAndSwap(false, true) {
		return 0, ErrRunInProgress
	}
	defer e.running.Store(false)

	start := e.now().UTC()
	subjects, err := e.activity.ListActiveSubjects(ctx, start.Add(-commerceWindow))
	if err != nil {
		return 0, fmt.Errorf("%w: %v", trust.ErrStoreUnavailable, err)
	}

	scored := 0
	for _, subject := range subjects {
		if err := ctx.Err(); err != nil {
			return scored, err
		}
		snap, err := e.computeSnapshot(ctx, subject, start)
		if err != nil {
			obs.LogRequest(map[string]any{
				"ts":      time.Now().UTC().Format(time.RFC3339Nano),
				"level":   "error",
				"msg":     "reputation: subject scoring failed",
				"subject": subject.ID,
				"error":   err.Error(),
			})
			continue
		}
		if err := e.snapshots.Upsert(ctx, snap); err != nil {
			obs.LogRequest(map[string]any{
				"ts":      time.Now().UTC().Format(time.RFC3339Nano),
				"level":   "error",
				"msg":     "reputation: snapshot commit failed",
				"subject": subject.ID,
				"error":   err.Error(),
			})
			continue
		}
		scored++
	}

	obs.ObserveReputationRun(time.Since(start), scored)
	return scored, nil
}

// Start runs the engine on a fixed interval until ctx ends. Failures are
// retried on the next tick; stale snapshots keep serving in between.
func (e *Engine) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := e.Run(ctx); err != nil && err != ErrRunInProgress {
				obs.LogRequest(map[string]any{
					"ts":    time.Now().UTC().Format(time.RFC3339Nano),
					"level": "error",
					"msg":   "reputation: batch run failed",
					"error": err.Error(),
				})
			}
		}
	}
}

func (e *Engine) computeSnapshot(ctx context.Context, subject Subject, now time.Time) (*Snapshot, error) {
	stats, err := e.activity.ActivityStats(ctx, subject.ID, now.Add(-commerceWindow))
	if err != nil {
		return nil, err
	}
	vouches, err := e.attestations.ListBySubject(ctx, subject.ID)
	if err != nil {
		return nil, err
	}

	commerce := commerceScore(stats)
	hygiene := hygieneScore(stats)
	attest := attestation.SubjectScore(vouches, now)
	longevity := longevityScore(subject.CreatedAt, now)

	score := weightCommerce*commerce +
		weightHygiene*hygiene +
		weightAttestation*attest +
		weightLongevity*longevity

	return &Snapshot{
		SubjectType: subject.Type,
		SubjectID:   subject.ID,
		Score:       clamp(score),
		Commerce:    commerce,
		Hygiene:     hygiene,
		Attestation: attest,
		Longevity:   longevity,
		ComputedAt:  now,
	}, nil
}

// commerceScore blends transaction success rate (60%) with saturating
// volume (25%) and value (15%) terms.
func commerceScore(stats ActivityStats) float64 {
	if stats.Transactions == 0 {
		return 0
	}
	successRate := float64(stats.SuccessfulTx) / float64(stats.Transactions)
	volume := float64(stats.Transactions) / (float64(stats.Transactions) + 100)
	value := float64(stats.TransactionValue) / (float64(stats.TransactionValue) + 100_000)
	return clamp(successRate*60 + volume*25 + value*15)
}

// hygieneScore blends request error rate (70%) with reported uptime (30%).
func hygieneScore(stats ActivityStats) float64 {
	errorRate := 0.0
	if stats.Requests > 0 {
		errorRate = float64(stats.RequestErrors) / float64(stats.Requests)
	}
	uptime := stats.UptimePct
	if uptime <= 0 {
		uptime = 100
	}
	return clamp((1-errorRate)*70 + uptime/100*30)
}

// longevityScore saturates toward 100 as account age approaches a year
// and beyond.
func longevityScore(createdAt, now time.Time) float64 {
	ageDays := now.Sub(createdAt).Hours() / 24
	if ageDays < 0 {
		ageDays = 0
	}
	return clamp(100 * ageDays / (ageDays + longevitySaturationDays))
}

func clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
