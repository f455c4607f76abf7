package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"trustgate.io/internal/obs"
	"trustgate.io/internal/trust"
)

func captureLog(t *testing.T) *bytes.Buffer {
	t.Helper()
	logger := obs.Logger()
	orig := logger.Writer()
	var buf bytes.Buffer
	logger.SetOutput(&buf)
	t.Cleanup(func() { logger.SetOutput(orig) })
	return &buf
}

func TestLogEventIncludesActorAndRequestID(t *testing.T) {
	buf := captureLog(t)

	ctx := WithRequestID(context.Background(), "req-123")
	ctx = trust.ContextWithActor(ctx, trust.ActorContext{
		OrgID:   "org-9",
		ActorID: "key-5",
		Method:  trust.MethodAPIKey,
	})

	if err := LogEvent(ctx, "apikey.revoke", map[string]any{"key_id": "key-5"}); err != nil {
		t.Fatalf("LogEvent: %v", err)
	}

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("decode audit entry: %v", err)
	}
	if entry["event"] != "apikey.revoke" {
		t.Fatalf("unexpected event: %v", entry["event"])
	}
	if entry["request_id"] != "req-123" {
		t.Fatalf("missing request id: %v", entry)
	}
	if entry["actor_id"] != "key-5" || entry["org_id"] != "org-9" {
		t.Fatalf("missing actor fields: %v", entry)
	}
}

func TestLogEventRequiresName(t *testing.T) {
	if err := LogEvent(context.Background(), "  ", nil); err == nil {
		t.Fatalf("expected error for empty event name")
	}
}

func TestLogAuthFailureRecordsCause(t *testing.T) {
	buf := captureLog(t)

	LogAuthFailure(context.Background(), trust.MethodOAuth, trust.ErrTokenExpired, map[string]any{"jti": "abc"})

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("decode audit entry: %v", err)
	}
	fields, _ := entry["fields"].(map[string]any)
	if fields["cause"] != trust.ErrTokenExpired.Error() {
		t.Fatalf("expected specific cause in audit log, got %v", fields)
	}
	if fields["jti"] != "abc" {
		t.Fatalf("expected extra fields preserved, got %v", fields)
	}
}
