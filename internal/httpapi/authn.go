package httpapi

import (
	"context"
	"net/http"

	"trustgate.io/internal/audit"
	"trustgate.io/internal/events"
	"trustgate.io/internal/obs"
	"trustgate.io/internal/trust"
)

// AnomalyRecorder receives authentication outcomes for the risk
// evaluator's counters.
type AnomalyRecorder interface {
	RecordFailure(ctx context.Context, actorID, sourceAddr string)
	RecordSource(ctx context.Context, actorID, sourceAddr string)
}

var publicPaths = []string{
	"/v1/oauth/token",
	"/metrics",
	"/healthz",
	"/readyz",
	"/v1/info",
	"/",
}

func isPublicPath(path string) bool {
	for _, p := range publicPaths {
		if path == p {
			return true
		}
	}
	return false
}

// withAuth resolves the caller's credentials and attaches the actor to
// the request context. Every failure is answered with the same generic
// 401; the specific cause goes to the audit log and anomaly counters
// only.
func (a *API) withAuth(next http.Handler) http.Handler {
	if a.resolver == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions || isPublicPath(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		actor, method, err := a.resolver.Resolve(r)
		if err != nil {
			a.recordAuthFailure(r, method, err)
			writeError(w, r, http.StatusUnauthorized, "authentication failed")
			return
		}

		obs.CountAuthAttempt(string(method), "success")
		if a.anomaly != nil {
			a.anomaly.RecordSource(r.Context(), actor.ActorID, clientIP(r))
		}

		next.ServeHTTP(w, r.WithContext(trust.ContextWithActor(r.Context(), actor)))
	})
}

func (a *API) recordAuthFailure(r *http.Request, method trust.AuthMethod, cause error) {
	obs.CountAuthAttempt(string(method), "failure")
	audit.LogAuthFailure(r.Context(), method, cause, map[string]any{
		"path":   r.URL.Path,
		"remote": clientIP(r),
	})
	if a.anomaly != nil {
		// Unauthenticated failures carry no actor identity; the source
		// address is the subject.
		a.anomaly.RecordFailure(r.Context(), "ip:"+clientIP(r), clientIP(r))
	}
	if a.stream != nil {
		a.stream.Publish(events.Event{
			Kind: events.KindAuthFailure,
			Detail: map[string]string{
				"method": string(method),
				"path":   r.URL.Path,
			},
		})
	}
}

// requireScopes gates a handler on the actor's resolved scope set.
func (a *API) requireScopes(w http.ResponseWriter, r *http.Request, required ...string) (trust.ActorContext, bool) {
	actor, ok := trust.ActorFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return trust.ActorContext{}, false
	}
	if !trust.ScopeSatisfies(actor.Scopes, required) {
		writeError(w, r, http.StatusForbidden, trust.ErrInsufficientScope.Error())
		return trust.ActorContext{}, false
	}
	return actor, true
}
