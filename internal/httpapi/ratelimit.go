package httpapi

import (
	"math"
	"net/http"
	"strconv"
	"time"

	"trustgate.io/internal/events"
	"trustgate.io/internal/obs"
	"trustgate.io/internal/risk"
	"trustgate.io/internal/trust"
)

// withRateLimit applies the per-actor adaptive quota after
// authentication. Unauthenticated paths pass through; the per-IP bucket
// upstream already covers them.
func (a *API) withRateLimit(next http.Handler) http.Handler {
	if a.limiter == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor, ok := trust.ActorFromContext(r.Context())
		if !ok {
			next.ServeHTTP(w, r)
			return
		}

		bucket := risk.BucketMedium
		if a.risk != nil {
			assessment := a.risk.Evaluate(r.Context(), actor)
			bucket = assessment.Bucket
			obs.CountRiskBucket(string(bucket))
		}

		decision := a.limiter.Check(r.Context(), actor, bucket)
		now := time.Now().UTC()
		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(decision.Limit))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(decision.Remaining))
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(decision.ResetAt.Unix(), 10))

		if !decision.Allowed {
			obs.CountRateLimitDecision("throttled")
			retryAfter := int(math.Ceil(decision.RetryAfter(now).Seconds()))
			if retryAfter < 1 {
				retryAfter = 1
			}
			w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
			a.recordThrottle(r, actor, decision.Count)
			writeError(w, r, http.StatusTooManyRequests, trust.ErrRateLimitExceeded.Error())
			return
		}
		obs.CountRateLimitDecision("allowed")
		next.ServeHTTP(w, r)
	})
}

// recordThrottle turns sustained throttling into a risk signal. The
// first rejections in a window are normal backpressure; repeated ones
// past the quota mark a burst worth remembering.
func (a *API) recordThrottle(r *http.Request, actor trust.ActorContext, count int) {
	if a.stream != nil {
		a.stream.Publish(events.Event{
			Kind:      events.KindRateLimited,
			SubjectID: actor.ActorID,
			OrgID:     actor.OrgID,
		})
	}
	if a.risk == nil {
		return
	}
	if count%burstEventEvery != 0 {
		return
	}
	_ = a.risk.Record(r.Context(), trust.RiskEvent{
		SubjectID:  actor.OrgID,
		Severity:   trust.SeverityLow,
		Category:   "rate_limit_burst",
		OccurredAt: time.Now().UTC(),
	})
}

// burstEventEvery spaces out risk events so a hot loop hitting 429s does
// not flood the event store.
const burstEventEvery = 50
