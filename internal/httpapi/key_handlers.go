package httpapi

import (
	"net/http"
	"strings"
	"time"

	"trustgate.io/internal/apikey"
	"trustgate.io/internal/audit"
	"trustgate.io/internal/events"
	"trustgate.io/internal/trust"
)

type createKeyRequest struct {
	Scopes []string `json:"scopes"`
	Tier   string   `json:"tier"`
}

type keyResponse struct {
	ID        string     `json:"id"`
	OrgID     string     `json:"org_id"`
	Prefix    string     `json:"prefix"`
	Scopes    []string   `json:"scopes"`
	Tier      string     `json:"tier"`
	Active    bool       `json:"active"`
	CreatedAt time.Time  `json:"created_at"`
	RevokedAt *time.Time `json:"revoked_at,omitempty"`
}

type createKeyResponse struct {
	keyResponse
	Key string `json:"key"`
}

func keyToResponse(k *apikey.Key) keyResponse {
	return keyResponse{
		ID:        k.ID,
		OrgID:     k.OrgID,
		Prefix:    k.Prefix,
		Scopes:    k.Scopes,
		Tier:      string(k.Tier),
		Active:    k.Active,
		CreatedAt: k.CreatedAt,
		RevokedAt: k.RevokedAt,
	}
}

// handleOrgResource routes /v1/orgs/{orgID}/keys and
// /v1/orgs/{orgID}/clients.
func (a *API) handleOrgResource(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/v1/orgs/")
	orgID, resource, ok := strings.Cut(rest, "/")
	if !ok || orgID == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	switch resource {
	case "keys":
		a.handleOrgKeys(w, r, orgID)
	case "clients":
		a.handleOrgClients(w, r, orgID)
	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
	}
}

func (a *API) handleOrgKeys(w http.ResponseWriter, r *http.Request, orgID string) {
	actor, ok := a.requireScopes(w, r, "keys:manage")
	if !ok {
		return
	}
	if !actorOwnsOrg(actor, orgID) {
		writeError(w, r, http.StatusForbidden, trust.ErrInsufficientScope.Error())
		return
	}

	switch r.Method {
	case http.MethodPost:
		a.createKey(w, r, orgID)
	case http.MethodGet:
		a.listKeys(w, r, orgID)
	default:
		methodNotAllowed(w, r, http.MethodPost, http.MethodGet)
	}
}

func (a *API) createKey(w http.ResponseWriter, r *http.Request, orgID string) {
	var req createKeyRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if len(req.Scopes) == 0 {
		writeError(w, r, http.StatusBadRequest, "scopes are required")
		return
	}

	key, raw, err := a.keys.Create(r.Context(), orgID, req.Scopes, trust.ParseTier(req.Tier))
	if err != nil {
		handleTrustError(w, r, err)
		return
	}

	_ = audit.LogEvent(r.Context(), "apikey.create", map[string]any{
		"key_id":     key.ID,
		"key_org":    orgID,
		"key_prefix": key.Prefix,
	})

	// The raw key appears in this response and nowhere else.
	writeJSON(w, http.StatusCreated, createKeyResponse{
		keyResponse: keyToResponse(key),
		Key:         raw,
	})
}

func (a *API) listKeys(w http.ResponseWriter, r *http.Request, orgID string) {
	keys, err := a.keys.List(r.Context(), orgID)
	if err != nil {
		handleTrustError(w, r, err)
		return
	}
	items := make([]keyResponse, 0, len(keys))
	for _, k := range keys {
		items = append(items, keyToResponse(k))
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

// handleKeyResource routes /v1/keys/{keyID}.
func (a *API) handleKeyResource(w http.ResponseWriter, r *http.Request) {
	keyID := strings.TrimPrefix(r.URL.Path, "/v1/keys/")
	if keyID == "" || strings.Contains(keyID, "/") {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	if r.Method != http.MethodDelete {
		methodNotAllowed(w, r, http.MethodDelete)
		return
	}
	actor, ok := a.requireScopes(w, r, "keys:manage")
	if !ok {
		return
	}

	key, err := a.keys.Get(r.Context(), keyID)
	if err != nil {
		handleTrustError(w, r, err)
		return
	}
	if !actorOwnsOrg(actor, key.OrgID) {
		writeError(w, r, http.StatusForbidden, trust.ErrInsufficientScope.Error())
		return
	}

	if err := a.keys.Revoke(r.Context(), keyID); err != nil {
		handleTrustError(w, r, err)
		return
	}

	_ = audit.LogEvent(r.Context(), "apikey.revoke", map[string]any{
		"key_id": keyID,
	})
	if a.stream != nil {
		a.stream.Publish(events.Event{Kind: events.KindKeyRevoked, SubjectID: keyID})
	}
	w.WriteHeader(http.StatusNoContent)
}

// actorOwnsOrg allows an actor to manage its own organization's
// credentials; cross-org management needs an admin grant.
func actorOwnsOrg(actor trust.ActorContext, orgID string) bool {
	if actor.OrgID == orgID {
		return true
	}
	return trust.ScopeSatisfies(actor.Scopes, []string{"admin:orgs"})
}
