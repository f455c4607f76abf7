package httpapi

import (
	"net/http"
	"strings"
	"time"

	"trustgate.io/internal/reputation"
	"trustgate.io/internal/trust"
)

type reputationResponse struct {
	SubjectID string    `json:"subject_id"`
	Band      string    `json:"band"`
	AsOf      time.Time `json:"as_of"`
}

type reputationBreakdownResponse struct {
	SubjectID   string    `json:"subject_id"`
	Score       float64   `json:"score"`
	Band        string    `json:"band"`
	Commerce    float64   `json:"commerce"`
	Hygiene     float64   `json:"hygiene"`
	Attestation float64   `json:"attestation"`
	Longevity   float64   `json:"longevity"`
	ComputedAt  time.Time `json:"computed_at"`
}

// handleReputation routes /v1/reputation/{subjectID} and
// /v1/reputation/{subjectID}/breakdown.
func (a *API) handleReputation(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}

	rest := strings.TrimPrefix(r.URL.Path, "/v1/reputation/")
	subjectID, suffix, hasSuffix := strings.Cut(rest, "/")
	if subjectID == "" || (hasSuffix && suffix != "breakdown") {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}

	if hasSuffix {
		a.reputationBreakdown(w, r, subjectID)
		return
	}
	a.reputationBand(w, r, subjectID)
}

// reputationBand exposes only the coarse band. The raw score stays
// private to the subject and its operators.
func (a *API) reputationBand(w http.ResponseWriter, r *http.Request, subjectID string) {
	if _, ok := a.requireScopes(w, r, "reputation:read"); !ok {
		return
	}

	score := a.repu.CachedScore(r.Context(), subjectID)
	writeJSON(w, http.StatusOK, reputationResponse{
		SubjectID: subjectID,
		Band:      reputation.Band(score),
		AsOf:      time.Now().UTC(),
	})
}

func (a *API) reputationBreakdown(w http.ResponseWriter, r *http.Request, subjectID string) {
	actor, ok := a.requireScopes(w, r, "reputation:read")
	if !ok {
		return
	}
	if actor.OrgID != subjectID && !trust.ScopeSatisfies(actor.Scopes, []string{"admin:reputation"}) {
		writeError(w, r, http.StatusForbidden, trust.ErrInsufficientScope.Error())
		return
	}

	snap, err := a.repu.Snapshot(r.Context(), subjectID)
	if err != nil {
		handleTrustError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, reputationBreakdownResponse{
		SubjectID:   snap.SubjectID,
		Score:       snap.Score,
		Band:        reputation.Band(snap.Score),
		Commerce:    snap.Commerce,
		Hygiene:     snap.Hygiene,
		Attestation: snap.Attestation,
		Longevity:   snap.Longevity,
		ComputedAt:  snap.ComputedAt,
	})
}
