package signature

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"trustgate.io/internal/trust"
)

const defaultDriftTolerance = 300 * time.Second

// SigningKey is a shared-secret record for the legacy signature scheme.
type SigningKey struct {
	ID     string
	OrgID  string
	Secret string
	Tier   trust.Tier
	Active bool
}

// Store resolves key ids to shared secrets.
type Store interface {
	FindSigningKey(ctx context.Context, keyID string) (*SigningKey, error)
}

// Request carries the caller-supplied pieces of a signed legacy request.
type Request struct {
	Method    string
	Path      string
	Body      []byte
	KeyID     string
	Timestamp string
	Signature string
}

// Verifier recomputes legacy HMAC-SHA256 request signatures.
type Verifier struct {
	store Store
	drift time.Duration
	now   func() time.Time
}

// Option configures Verifier behavior.
type Option func(*Verifier)

// WithDriftTolerance overrides the accepted timestamp drift.
func WithDriftTolerance(d time.Duration) Option {
	return func(v *Verifier) {
		if d > 0 {
			v.drift = d
		}
	}
}

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) Option {
	return func(v *Verifier) {
		if fn != nil {
			v.now = fn
		}
	}
}

// NewVerifier constructs the verifier.
func NewVerifier(store Store, opts ...Option) *Verifier {
	v := &Verifier{
		store: store,
		drift: defaultDriftTolerance,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Verify checks the timestamp drift, recomputes the HMAC over the
// canonical string and compares in constant time. Success grants the
// wildcard scope: this scheme predates the scope model.
func (v *Verifier) Verify(ctx context.Context, req Request) (trust.ActorContext, error) {
	ts, err := strconv.ParseInt(strings.TrimSpace(req.Timestamp), 10, 64)
	if err != nil {
		return trust.ActorContext{}, trust.ErrInvalidCredential
	}
	drift := v.now().UTC().Sub(time.Unix(ts, 0).UTC())
	if drift < 0 {
		drift = -drift
	}
	if drift > v.drift {
		return trust.ActorContext{}, trust.ErrStaleTimestamp
	}

	key, err := v.store.FindSigningKey(ctx, strings.TrimSpace(req.KeyID))
	if err != nil {
		if errors.Is(err, trust.ErrNotFound) {
			return trust.ActorContext{}, trust.ErrInvalidCredential
		}
		return trust.ActorContext{}, fmt.Errorf("%w: %v", trust.ErrStoreUnavailable, err)
	}
	if !key.Active {
		return trust.ActorContext{}, trust.ErrRevokedCredential
	}

	expected := Sign([]byte(key.Secret), req.Method, req.Path, req.Body, req.Timestamp)
	if subtle.ConstantTimeCompare([]byte(expected), []byte(strings.TrimSpace(req.Signature))) != 1 {
		return trust.ActorContext{}, trust.ErrInvalidCredential
	}

	return trust.ActorContext{
		OrgID:   key.OrgID,
		ActorID: "legacy-hmac:" + key.ID,
		Method:  trust.MethodSignature,
		Scopes:  []string{"*"},
		Tier:    key.Tier,
	}, nil
}

// Sign computes the hex HMAC-SHA256 over the canonical string
// METHOD\nPATH\nBODY\nTIMESTAMP. Exported for clients and tests.
func Sign(secret []byte, method, path string, body []byte, timestamp string) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(strings.ToUpper(method)))
	mac.Write([]byte("\n"))
	mac.Write([]byte(path))
	mac.Write([]byte("\n"))
	mac.Write(body)
	mac.Write([]byte("\n"))
	mac.Write([]byte(timestamp))
	return hex.EncodeToString(mac.Sum(nil))
}
