package risk

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	anomalyTTL       = 10 * time.Minute
	anomalyOpTimeout = 2 * time.Second

	failureWeight = 10.0
	churnWeight   = 15.0
)

// RedisAnomalyTracker keeps short-lived per-actor counters for failed
// verifications and source-address churn. All cross-request state lives
// in Redis; the tracker itself holds nothing mutable.
type RedisAnomalyTracker struct {
	client *redis.Client
	prefix string
}

// NewRedisAnomalyTracker constructs the tracker.
func NewRedisAnomalyTracker(client *redis.Client) *RedisAnomalyTracker {
	return &RedisAnomalyTracker{client: client, prefix: "anomaly:"}
}

// RecordFailure notes one failed verification attempt for the actor from
// the given source address. Errors are swallowed: anomaly tracking is a
// best-effort signal, never a request blocker.
func (t *RedisAnomalyTracker) RecordFailure(ctx context.Context, actorID, sourceAddr string) {
	if t == nil || t.client == nil || actorID == "" {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, anomalyOpTimeout)
	defer cancel()

	pipe := t.client.Pipeline()
	failKey := t.prefix + "fail:" + actorID
	pipe.Incr(ctx, failKey)
	pipe.Expire(ctx, failKey, anomalyTTL)
	if sourceAddr != "" {
		addrKey := t.prefix + "addr:" + actorID
		pipe.SAdd(ctx, addrKey, sourceAddr)
		pipe.Expire(ctx, addrKey, anomalyTTL)
	}
	_, _ = pipe.Exec(ctx)
}

// RecordSource notes the source address of a successful request, feeding
// the churn signal without the failure counter.
func (t *RedisAnomalyTracker) RecordSource(ctx context.Context, actorID, sourceAddr string) {
	if t == nil || t.client == nil || actorID == "" || sourceAddr == "" {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, anomalyOpTimeout)
	defer cancel()

	pipe := t.client.Pipeline()
	addrKey := t.prefix + "addr:" + actorID
	pipe.SAdd(ctx, addrKey, sourceAddr)
	pipe.Expire(ctx, addrKey, anomalyTTL)
	_, _ = pipe.Exec(ctx)
}

// Score combines recent failures and address churn into [0,100]. An
// unreachable store scores zero: the term degrades instead of guessing.
func (t *RedisAnomalyTracker) Score(ctx context.Context, actorID string) float64 {
	if t == nil || t.client == nil || actorID == "" {
		return 0
	}
	ctx, cancel := context.WithTimeout(ctx, anomalyOpTimeout)
	defer cancel()

	failures, err := t.client.Get(ctx, t.prefix+"fail:"+actorID).Int64()
	if err != nil && err != redis.Nil {
		return 0
	}
	addrs, err := t.client.SCard(ctx, t.prefix+"addr:"+actorID).Result()
	if err != nil && err != redis.Nil {
		return 0
	}

	churn := float64(addrs) - 1
	if churn < 0 {
		churn = 0
	}
	return clamp(float64(failures)*failureWeight + churn*churnWeight)
}
