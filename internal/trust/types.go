package trust

import (
	"context"
	"strings"
	"time"
)

// Tier is a rate-limit class assigned to a credential.
type Tier string

const (
	TierFree       Tier = "FREE"
	TierPro        Tier = "PRO"
	TierEnterprise Tier = "ENTERPRISE"
	TierInternal   Tier = "INTERNAL"
)

// ParseTier normalizes a stored tier value, defaulting to FREE.
func ParseTier(raw string) Tier {
	switch Tier(strings.ToUpper(strings.TrimSpace(raw))) {
	case TierPro:
		return TierPro
	case TierEnterprise:
		return TierEnterprise
	case TierInternal:
		return TierInternal
	default:
		return TierFree
	}
}

// AuthMethod identifies which credential scheme authenticated a request.
type AuthMethod string

const (
	MethodAPIKey    AuthMethod = "api_key"
	MethodOAuth     AuthMethod = "oauth_token"
	MethodSignature AuthMethod = "legacy_hmac"
)

// ActorContext is the request-scoped identity produced by the resolver.
// It lives only for the duration of one request.
type ActorContext struct {
	OrgID   string
	ActorID string
	Method  AuthMethod
	Scopes  []string
	Tier    Tier
}

// SubjectType distinguishes reputation subjects.
type SubjectType string

const (
	SubjectOrganization SubjectType = "organization"
	SubjectAgent        SubjectType = "agent"
)

// Severity grades a risk event.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// RiskEvent is an append-only record contributing to risk scoring for a
// trailing window before aging out of relevance.
type RiskEvent struct {
	ID         string
	SubjectID  string
	Severity   Severity
	Category   string
	OccurredAt time.Time
}

type actorContextKey struct{}

// ContextWithActor attaches the authenticated actor to the request context.
func ContextWithActor(ctx context.Context, actor ActorContext) context.Context {
	return context.WithValue(ctx, actorContextKey{}, &actor)
}

// ActorFromContext extracts the authenticated actor, if any.
func ActorFromContext(ctx context.Context) (ActorContext, bool) {
	if ctx == nil {
		return ActorContext{}, false
	}
	v, ok := ctx.Value(actorContextKey{}).(*ActorContext)
	if !ok || v == nil {
		return ActorContext{}, false
	}
	return *v, true
}
