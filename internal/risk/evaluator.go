package risk

import (
	"context"
	"time"

	"trustgate.io/internal/trust"
)

// Risk term weights.
const (
	weightReputation = 0.6
	weightEvents     = 0.25
	weightAnomaly    = 0.15

	// EventWindow bounds how long a risk event stays relevant.
	EventWindow = 7 * 24 * time.Hour
)

// Severity base weights for recent risk events.
const (
	weightHighSeverity   = 25.0
	weightMediumSeverity = 10.0
	weightLowSeverity    = 3.0
)

// Bucket is the per-request risk classification.
type Bucket string

const (
	BucketLow    Bucket = "low"
	BucketMedium Bucket = "medium"
	BucketHigh   Bucket = "high"
)

// Multiplier scales the rate limiter's base quota for this bucket.
func (b Bucket) Multiplier() float64 {
	switch b {
	case BucketLow:
		return 1.2
	case BucketHigh:
		return 0.5
	default:
		return 1.0
	}
}

// Assessment is the evaluator's verdict for one request.
type Assessment struct {
	Score        float64
	Bucket       Bucket
	Reputation   float64
	EventScore   float64
	AnomalyScore float64
}

// ScoreReader serves cached reputation scores; it must never trigger
// synchronous recomputation.
type ScoreReader interface {
	CachedScore(ctx context.Context, subjectID string) float64
}

// EventStore persists append-only risk events.
type EventStore interface {
	Append(ctx context.Context, event trust.RiskEvent) error
	ListRecent(ctx context.Context, subjectID string, since time.Time) ([]trust.RiskEvent, error)
}

// AnomalyScorer reports authentication anomaly signals for an actor.
type AnomalyScorer interface {
	Score(ctx context.Context, actorID string) float64
}

// Evaluator computes the per-request risk score. All reads are bounded
// single lookups against caches or indexed stores.
type Evaluator struct {
	reputation ScoreReader
	events     EventStore
	anomalies  AnomalyScorer
	now        func() time.Time
}

// Option configures Evaluator behavior.
type Option func(*Evaluator)

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) Option {
	return func(e *Evaluator) {
		if fn != nil {
			e.now = fn
		}
	}
}

// NewEvaluator constructs the evaluator. anomalies may be nil, in which
// case the anomaly term contributes zero.
func NewEvaluator(reputation ScoreReader, events EventStore, anomalies AnomalyScorer, opts ...Option) *Evaluator {
	e := &Evaluator{
		reputation: reputation,
		events:     events,
		anomalies:  anomalies,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Evaluate scores the request's organization. A failed event lookup
// degrades that term to zero rather than failing the request.
func (e *Evaluator) Evaluate(ctx context.Context, actor trust.ActorContext) Assessment {
	now := e.now().UTC()

	rep := e.reputation.CachedScore(ctx, actor.OrgID)

	var eventScore float64
	if e.events != nil {
		events, err := e.events.ListRecent(ctx, actor.OrgID, now.Add(-EventWindow))
		if err == nil {
			eventScore = scoreEvents(events, now)
		}
	}

	var anomalyScore float64
	if e.anomalies != nil {
		anomalyScore = clamp(e.anomalies.Score(ctx, actor.ActorID))
	}

	score := weightReputation*(100-rep) + weightEvents*eventScore + weightAnomaly*anomalyScore
	score = clamp(score)

	return Assessment{
		Score:        score,
		Bucket:       bucketFor(score),
		Reputation:   rep,
		EventScore:   eventScore,
		AnomalyScore: anomalyScore,
	}
}

// Record appends a system-generated risk event.
func (e *Evaluator) Record(ctx context.Context, event trust.RiskEvent) error {
	if e.events == nil {
		return nil
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = e.now().UTC()
	}
	return e.events.Append(ctx, event)
}

// bucketFor maps risk to buckets via its reputation-equivalent
// (100 - risk): Low >= 70, Medium 40..69, High < 40.
func bucketFor(score float64) Bucket {
	equivalent := 100 - score
	switch {
	case equivalent >= 70:
		return BucketLow
	case equivalent >= 40:
		return BucketMedium
	default:
		return BucketHigh
	}
}

// scoreEvents weights events by severity with linear decay by age over
// the trailing window, clamped to [0,100].
func scoreEvents(events []trust.RiskEvent, now time.Time) float64 {
	var sum float64
	for _, evt := range events {
		age := now.Sub(evt.OccurredAt)
		if age < 0 || age > EventWindow {
			continue
		}
		freshness := 1 - age.Seconds()/EventWindow.Seconds()
		sum += severityWeight(evt.Severity) * freshness
	}
	return clamp(sum)
}

func severityWeight(s trust.Severity) float64 {
	switch s {
	case trust.SeverityHigh:
		return weightHighSeverity
	case trust.SeverityMedium:
		return weightMediumSeverity
	default:
		return weightLowSeverity
	}
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
