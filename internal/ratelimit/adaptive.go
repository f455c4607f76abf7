package ratelimit

import (
	"context"
	"math"

	"trustgate.io/internal/risk"
	"trustgate.io/internal/trust"
)

// Window is the quota window every tier shares.
const Window = 60 // seconds

// Base per-window quotas by credential tier.
var tierQuotas = map[trust.Tier]int{
	trust.TierFree:       60,
	trust.TierPro:        600,
	trust.TierEnterprise: 6000,
	trust.TierInternal:   60000,
}

// BaseQuota returns the tier's per-window request allowance.
func BaseQuota(tier trust.Tier) int {
	if q, ok := tierQuotas[tier]; ok {
		return q
	}
	return tierQuotas[trust.TierFree]
}

// EffectiveQuota scales a tier's base quota by the caller's current risk
// bucket. The result never drops below one request per window so a
// high-risk actor is slowed, not silently locked out.
func EffectiveQuota(tier trust.Tier, bucket risk.Bucket) int {
	quota := int(math.Floor(float64(BaseQuota(tier)) * bucket.Multiplier()))
	if quota < 1 {
		quota = 1
	}
	return quota
}

// Adaptive combines a windowed counter with tier quotas and per-request
// risk assessments.
type Adaptive struct {
	limiter Limiter
	keyBy   func(trust.ActorContext) string
}

// NewAdaptive builds an adaptive limiter keyed by actor identity.
func NewAdaptive(limiter Limiter, opts ...AdaptiveOption) *Adaptive {
	a := &Adaptive{
		limiter: limiter,
		keyBy:   KeyByActor,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// AdaptiveOption customizes an Adaptive limiter.
type AdaptiveOption func(*Adaptive)

// WithKeyFunc overrides how counter keys are derived from the actor.
func WithKeyFunc(fn func(trust.ActorContext) string) AdaptiveOption {
	return func(a *Adaptive) { a.keyBy = fn }
}

// KeyByActor isolates counters per credential.
func KeyByActor(actor trust.ActorContext) string {
	return "actor:" + actor.ActorID
}

// KeyByOrg pools all of an organization's credentials into one counter.
func KeyByOrg(actor trust.ActorContext) string {
	return "org:" + actor.OrgID
}

// Check counts one request against the actor's effective quota.
func (a *Adaptive) Check(ctx context.Context, actor trust.ActorContext, bucket risk.Bucket) Decision {
	return a.limiter.Allow(ctx, a.keyBy(actor), EffectiveQuota(actor.Tier, bucket))
}
