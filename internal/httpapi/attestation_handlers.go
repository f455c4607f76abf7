package httpapi

import (
	"net/http"
	"strings"
	"time"

	"trustgate.io/internal/attestation"
	"trustgate.io/internal/audit"
	"trustgate.io/internal/events"
)

type createAttestationRequest struct {
	SubjectID   string  `json:"subject_id"`
	Weight      float64 `json:"weight"`
	Statement   string  `json:"statement"`
	EvidenceRef string  `json:"evidence_ref"`
}

type attestationResponse struct {
	ID          string    `json:"id"`
	AttesterOrg string    `json:"attester_org"`
	SubjectID   string    `json:"subject_id"`
	Weight      float64   `json:"weight"`
	Statement   string    `json:"statement,omitempty"`
	EvidenceRef string    `json:"evidence_ref,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	Revoked     bool      `json:"revoked"`
}

func attestationToResponse(at *attestation.Attestation) attestationResponse {
	return attestationResponse{
		ID:          at.ID,
		AttesterOrg: at.AttesterOrg,
		SubjectID:   at.SubjectID,
		Weight:      at.Weight,
		Statement:   at.Statement,
		EvidenceRef: at.EvidenceRef,
		CreatedAt:   at.CreatedAt,
		Revoked:     at.Revoked,
	}
}

func (a *API) handleAttestationsCollection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		a.createAttestation(w, r)
	case http.MethodGet:
		a.listAttestations(w, r)
	default:
		methodNotAllowed(w, r, http.MethodPost, http.MethodGet)
	}
}

// createAttestation records a vouch from the authenticated actor's
// organization. The attester is always taken from the actor, never from
// the body, so one org cannot speak for another.
func (a *API) createAttestation(w http.ResponseWriter, r *http.Request) {
	actor, ok := a.requireScopes(w, r, "attest:write")
	if !ok {
		return
	}

	var req createAttestationRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	at, err := a.attest.Create(r.Context(), actor.OrgID, req.SubjectID, req.Weight, req.Statement, req.EvidenceRef)
	if err != nil {
		handleTrustError(w, r, err)
		return
	}

	_ = audit.LogEvent(r.Context(), "attestation.create", map[string]any{
		"attestation_id": at.ID,
		"subject_id":     at.SubjectID,
	})
	if a.stream != nil {
		a.stream.Publish(events.Event{
			Kind:      events.KindAttestation,
			SubjectID: at.SubjectID,
			OrgID:     actor.OrgID,
		})
	}

	writeJSON(w, http.StatusCreated, attestationToResponse(at))
}

func (a *API) listAttestations(w http.ResponseWriter, r *http.Request) {
	actor, ok := a.requireScopes(w, r, "attest:read")
	if !ok {
		return
	}

	var (
		items []*attestation.Attestation
		err   error
	)
	if subject := strings.TrimSpace(r.URL.Query().Get("subject_id")); subject != "" {
		items, err = a.attest.ListBySubject(r.Context(), subject)
	} else {
		items, err = a.attest.ListByAttester(r.Context(), actor.OrgID)
	}
	if err != nil {
		handleTrustError(w, r, err)
		return
	}

	resp := make([]attestationResponse, 0, len(items))
	for _, at := range items {
		resp = append(resp, attestationToResponse(at))
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": resp})
}

// handleAttestationResource routes /v1/attestations/{id}.
func (a *API) handleAttestationResource(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/v1/attestations/")
	if id == "" || strings.Contains(id, "/") {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	if r.Method != http.MethodDelete {
		methodNotAllowed(w, r, http.MethodDelete)
		return
	}
	actor, ok := a.requireScopes(w, r, "attest:write")
	if !ok {
		return
	}

	if err := a.attest.Revoke(r.Context(), id, actor.OrgID); err != nil {
		handleTrustError(w, r, err)
		return
	}

	_ = audit.LogEvent(r.Context(), "attestation.revoke", map[string]any{
		"attestation_id": id,
	})
	w.WriteHeader(http.StatusNoContent)
}
