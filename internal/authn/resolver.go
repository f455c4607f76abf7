package authn

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"strings"

	"trustgate.io/internal/signature"
	"trustgate.io/internal/trust"
)

// Request-path headers consumed by the resolver.
const (
	HeaderAPIKey        = "X-Api-Key"
	HeaderAuthorization = "Authorization"
	HeaderSignature     = "X-Signature"
	HeaderTimestamp     = "X-Timestamp"
	HeaderKeyID         = "X-Key-Id"

	bearerPrefix = "Bearer "
)

// KeyVerifier verifies a raw scoped API key.
type KeyVerifier interface {
	Verify(ctx context.Context, rawKey string) (trust.ActorContext, error)
}

// TokenVerifier verifies a signed bearer token.
type TokenVerifier interface {
	VerifyToken(ctx context.Context, raw string) (trust.ActorContext, error)
}

// SignatureVerifier verifies a legacy HMAC-signed request.
type SignatureVerifier interface {
	Verify(ctx context.Context, req signature.Request) (trust.ActorContext, error)
}

// Resolver dispatches to the first applicable authentication method in
// priority order: API key, bearer token, legacy signature. Exactly one
// method is attempted per request.
type Resolver struct {
	keys       KeyVerifier
	tokens     TokenVerifier
	signatures SignatureVerifier
}

// NewResolver constructs the resolver. Any verifier may be nil; a
// request presenting that verifier's header set is then rejected
// outright rather than handed to the next scheme.
func NewResolver(keys KeyVerifier, tokens TokenVerifier, signatures SignatureVerifier) *Resolver {
	return &Resolver{keys: keys, tokens: tokens, signatures: signatures}
}

// Resolve authenticates the request. The returned method names the
// scheme that was attempted even when verification fails, so callers can
// audit and count precisely. Requests carrying none of the recognized
// headers fail with ErrUnauthenticated.
func (r *Resolver) Resolve(req *http.Request) (trust.ActorContext, trust.AuthMethod, error) {
	ctx := req.Context()

	if raw := strings.TrimSpace(req.Header.Get(HeaderAPIKey)); raw != "" {
		if r.keys == nil {
			return trust.ActorContext{}, trust.MethodAPIKey, trust.ErrUnauthenticated
		}
		actor, err := r.keys.Verify(ctx, raw)
		return actor, trust.MethodAPIKey, err
	}

	if header := strings.TrimSpace(req.Header.Get(HeaderAuthorization)); header != "" {
		if r.tokens == nil {
			return trust.ActorContext{}, trust.MethodOAuth, trust.ErrUnauthenticated
		}
		token, err := extractBearerToken(header)
		if err != nil {
			return trust.ActorContext{}, trust.MethodOAuth, trust.ErrInvalidToken
		}
		actor, err := r.tokens.VerifyToken(ctx, token)
		return actor, trust.MethodOAuth, err
	}

	if hasSignatureHeaders(req) {
		if r.signatures == nil {
			return trust.ActorContext{}, trust.MethodSignature, trust.ErrUnauthenticated
		}
		body, err := readAndRestoreBody(req)
		if err != nil {
			return trust.ActorContext{}, trust.MethodSignature, trust.ErrInvalidCredential
		}
		actor, err := r.signatures.Verify(ctx, signature.Request{
			Method:    req.Method,
			Path:      req.URL.Path,
			Body:      body,
			KeyID:     req.Header.Get(HeaderKeyID),
			Timestamp: req.Header.Get(HeaderTimestamp),
			Signature: req.Header.Get(HeaderSignature),
		})
		return actor, trust.MethodSignature, err
	}

	return trust.ActorContext{}, "", trust.ErrUnauthenticated
}

// RequireScopes gates an endpoint on the actor's resolved scope set.
func RequireScopes(actor trust.ActorContext, required ...string) error {
	if !trust.ScopeSatisfies(actor.Scopes, required) {
		return trust.ErrInsufficientScope
	}
	return nil
}

func extractBearerToken(header string) (string, error) {
	if !strings.HasPrefix(strings.ToLower(header), strings.ToLower(bearerPrefix)) {
		return "", errors.New("invalid authorization scheme")
	}
	token := strings.TrimSpace(header[len(bearerPrefix):])
	if token == "" {
		return "", errors.New("missing bearer token")
	}
	return token, nil
}

func hasSignatureHeaders(req *http.Request) bool {
	return req.Header.Get(HeaderSignature) != "" &&
		req.Header.Get(HeaderTimestamp) != "" &&
		req.Header.Get(HeaderKeyID) != ""
}

// readAndRestoreBody drains the body for signing and puts a replayable
// copy back so downstream handlers still see it.
func readAndRestoreBody(req *http.Request) ([]byte, error) {
	if req.Body == nil {
		return nil, nil
	}
	body, err := io.ReadAll(io.LimitReader(req.Body, 1<<20))
	if err != nil {
		return nil, err
	}
	_ = req.Body.Close()
	req.Body = io.NopCloser(bytes.NewReader(body))
	return body, nil
}
