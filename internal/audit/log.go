package audit

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"trustgate.io/internal/obs"
	"trustgate.io/internal/trust"
)

type ctxKey string

const requestIDKey ctxKey = "audit_request_id"

// WithRequestID attaches the request identifier to the context for audit logging.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, requestID)
}

// RequestIDFromContext extracts the request id from context if present.
func RequestIDFromContext(ctx context.Context) string {
	return requestIDFromContext(ctx)
}

// requestIDFromContext extracts the audit request id from context if present.
func requestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(requestIDKey).(string); ok {
		return v
	}
	return ""
}

// LogEvent writes an audit log entry enriched with request and actor context.
// Authentication failures are recorded here with their specific error kind;
// the HTTP response stays generic.
func LogEvent(ctx context.Context, event string, fields map[string]any) error {
	event = strings.TrimSpace(event)
	if event == "" {
		return errors.New("event name is required")
	}
	entry := map[string]any{
		"ts":    time.Now().UTC().Format(time.RFC3339Nano),
		"type":  "audit",
		"event": event,
	}
	if rid := requestIDFromContext(ctx); rid != "" {
		entry["request_id"] = rid
	}
	if actor, ok := trust.ActorFromContext(ctx); ok {
		entry["actor_id"] = actor.ActorID
		entry["org_id"] = actor.OrgID
		entry["auth_method"] = string(actor.Method)
	}
	if len(fields) > 0 {
		copyFields := make(map[string]any, len(fields))
		for k, v := range fields {
			copyFields[k] = v
		}
		entry["fields"] = copyFields
	} else {
		entry["fields"] = map[string]any{}
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	obs.Logger().Println(string(data))
	return nil
}

// LogAuthFailure records the precise cause of a masked authentication
// failure for operators.
func LogAuthFailure(ctx context.Context, method trust.AuthMethod, cause error, fields map[string]any) {
	merged := map[string]any{
		"method": string(method),
	}
	if cause != nil {
		merged["cause"] = cause.Error()
	}
	for k, v := range fields {
		merged[k] = v
	}
	_ = LogEvent(ctx, "auth.failure", merged)
}
