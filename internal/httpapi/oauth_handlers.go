package httpapi

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"trustgate.io/internal/audit"
	"trustgate.io/internal/events"
	"trustgate.io/internal/oauth"
	"trustgate.io/internal/trust"
)

type clientResponse struct {
	ID        string     `json:"id"`
	OrgID     string     `json:"org_id"`
	Scopes    []string   `json:"scopes"`
	Tier      string     `json:"tier"`
	Active    bool       `json:"active"`
	CreatedAt time.Time  `json:"created_at"`
	RevokedAt *time.Time `json:"revoked_at,omitempty"`
}

type createClientRequest struct {
	Scopes []string `json:"scopes"`
	Tier   string   `json:"tier"`
}

type createClientResponse struct {
	clientResponse
	ClientSecret string `json:"client_secret"`
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
	Scope       string `json:"scope"`
}

// oauthError is the RFC 6749 error envelope used by the token endpoint.
type oauthError struct {
	Code        string `json:"error"`
	Description string `json:"error_description,omitempty"`
}

func clientToResponse(c *oauth.Client) clientResponse {
	return clientResponse{
		ID:        c.ID,
		OrgID:     c.OrgID,
		Scopes:    c.Scopes,
		Tier:      string(c.Tier),
		Active:    c.Active,
		CreatedAt: c.CreatedAt,
		RevokedAt: c.RevokedAt,
	}
}

func (a *API) handleOrgClients(w http.ResponseWriter, r *http.Request, orgID string) {
	actor, ok := a.requireScopes(w, r, "clients:manage")
	if !ok {
		return
	}
	if !actorOwnsOrg(actor, orgID) {
		writeError(w, r, http.StatusForbidden, trust.ErrInsufficientScope.Error())
		return
	}

	switch r.Method {
	case http.MethodPost:
		a.createClient(w, r, orgID)
	case http.MethodGet:
		a.listClients(w, r, orgID)
	default:
		methodNotAllowed(w, r, http.MethodPost, http.MethodGet)
	}
}

func (a *API) createClient(w http.ResponseWriter, r *http.Request, orgID string) {
	var req createClientRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if len(req.Scopes) == 0 {
		writeError(w, r, http.StatusBadRequest, "scopes are required")
		return
	}

	client, secret, err := a.oauth.RegisterClient(r.Context(), orgID, req.Scopes, trust.ParseTier(req.Tier))
	if err != nil {
		handleTrustError(w, r, err)
		return
	}

	_ = audit.LogEvent(r.Context(), "oauth.client.create", map[string]any{
		"client_id":  client.ID,
		"client_org": orgID,
	})

	// The raw secret appears in this response and nowhere else.
	writeJSON(w, http.StatusCreated, createClientResponse{
		clientResponse: clientToResponse(client),
		ClientSecret:   secret,
	})
}

func (a *API) listClients(w http.ResponseWriter, r *http.Request, orgID string) {
	clients, err := a.oauth.ListClients(r.Context(), orgID)
	if err != nil {
		handleTrustError(w, r, err)
		return
	}
	items := make([]clientResponse, 0, len(clients))
	for _, c := range clients {
		items = append(items, clientToResponse(c))
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

// handleClientResource routes /v1/clients/{clientID}.
func (a *API) handleClientResource(w http.ResponseWriter, r *http.Request) {
	clientID := strings.TrimPrefix(r.URL.Path, "/v1/clients/")
	if clientID == "" || strings.Contains(clientID, "/") {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	if r.Method != http.MethodDelete {
		methodNotAllowed(w, r, http.MethodDelete)
		return
	}
	actor, ok := a.requireScopes(w, r, "clients:manage")
	if !ok {
		return
	}

	client, err := a.oauth.GetClient(r.Context(), clientID)
	if err != nil {
		handleTrustError(w, r, err)
		return
	}
	if !actorOwnsOrg(actor, client.OrgID) {
		writeError(w, r, http.StatusForbidden, trust.ErrInsufficientScope.Error())
		return
	}

	if err := a.oauth.RevokeClient(r.Context(), clientID); err != nil {
		handleTrustError(w, r, err)
		return
	}

	_ = audit.LogEvent(r.Context(), "oauth.client.revoke", map[string]any{
		"client_id": clientID,
	})
	w.WriteHeader(http.StatusNoContent)
}

// handleTokenIssue is the client-credentials token endpoint. It is the
// one path that authenticates by form parameters, so it bypasses the
// resolver and speaks the OAuth error vocabulary.
func (a *API) handleTokenIssue(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	if err := r.ParseForm(); err != nil {
		writeOAuthError(w, http.StatusBadRequest, "invalid_request", "malformed form body")
		return
	}

	if grant := r.PostFormValue("grant_type"); grant != "client_credentials" {
		writeOAuthError(w, http.StatusBadRequest, "unsupported_grant_type", "only client_credentials is supported")
		return
	}
	clientID := strings.TrimSpace(r.PostFormValue("client_id"))
	clientSecret := r.PostFormValue("client_secret")
	if clientID == "" || clientSecret == "" {
		writeOAuthError(w, http.StatusBadRequest, "invalid_request", "client_id and client_secret are required")
		return
	}
	var requested []string
	if raw := strings.TrimSpace(r.PostFormValue("scope")); raw != "" {
		requested = strings.Fields(raw)
	}

	signed, token, err := a.oauth.IssueToken(r.Context(), clientID, clientSecret, requested)
	if err != nil {
		switch {
		case errors.Is(err, trust.ErrScopeNotGranted):
			a.auditTokenFailure(r, clientID, err)
			writeOAuthError(w, http.StatusBadRequest, "invalid_scope", "requested scope exceeds the client's allowance")
		case trust.IsAuthFailure(err), errors.Is(err, trust.ErrNotFound):
			a.auditTokenFailure(r, clientID, err)
			writeOAuthError(w, http.StatusUnauthorized, "invalid_client", "client authentication failed")
		case errors.Is(err, trust.ErrStoreUnavailable):
			writeOAuthError(w, http.StatusServiceUnavailable, "temporarily_unavailable", "dependency unavailable")
		default:
			writeOAuthError(w, http.StatusInternalServerError, "server_error", "")
		}
		return
	}

	_ = audit.LogEvent(r.Context(), "oauth.token.issued", map[string]any{
		"client_id": clientID,
		"jti":       token.JTI,
		"scopes":    token.Scopes,
	})

	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusOK, tokenResponse{
		AccessToken: signed,
		TokenType:   "Bearer",
		ExpiresIn:   int(a.oauth.TTL().Seconds()),
		Scope:       strings.Join(token.Scopes, " "),
	})
}

func (a *API) auditTokenFailure(r *http.Request, clientID string, cause error) {
	_ = audit.LogEvent(r.Context(), "oauth.token.denied", map[string]any{
		"client_id": clientID,
		"cause":     cause.Error(),
		"remote":    clientIP(r),
	})
	if a.anomaly != nil {
		a.anomaly.RecordFailure(r.Context(), clientID, clientIP(r))
	}
}

// handleTokenResource routes /v1/oauth/tokens/{jti}.
func (a *API) handleTokenResource(w http.ResponseWriter, r *http.Request) {
	jti := strings.TrimPrefix(r.URL.Path, "/v1/oauth/tokens/")
	if jti == "" || strings.Contains(jti, "/") {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	if r.Method != http.MethodDelete {
		methodNotAllowed(w, r, http.MethodDelete)
		return
	}
	actor, ok := a.requireScopes(w, r, "clients:manage")
	if !ok {
		return
	}

	token, err := a.oauth.GetToken(r.Context(), jti)
	if err != nil {
		handleTrustError(w, r, err)
		return
	}
	if !actorOwnsOrg(actor, token.OrgID) {
		writeError(w, r, http.StatusForbidden, "organization mismatch")
		return
	}

	if err := a.oauth.RevokeToken(r.Context(), jti); err != nil {
		handleTrustError(w, r, err)
		return
	}

	_ = audit.LogEvent(r.Context(), "oauth.token.revoke", map[string]any{
		"jti": jti,
	})
	if a.stream != nil {
		a.stream.Publish(events.Event{Kind: events.KindTokenRevoked, SubjectID: jti})
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeOAuthError(w http.ResponseWriter, code int, oauthCode, description string) {
	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, code, oauthError{Code: oauthCode, Description: description})
}
