package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"brandkit/internal/abandon"
	"brandkit/internal/domain"
)

type wizardActivityRequest struct {
	BrandID string `json:"brand_id"`
	UserID  string `json:"user_id"`
	Step    string `json:"step"`
}

// WizardActivity records a wizard step transition. Every call resets the
// inactivity clock the abandonment scan works from.
func (a *App) WizardActivity(w http.ResponseWriter, r *http.Request) {
	var req wizardActivityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	if req.BrandID == "" || req.UserID == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "brand_id and user_id required")
		return
	}
	if domain.StepIndex(req.Step) < 0 {
		a.error(w, http.StatusBadRequest, "bad_request", "unknown wizard step")
		return
	}
	if err := a.Sessions.Touch(r.Context(), req.BrandID, req.UserID, req.Step); err != nil {
		a.Logger.Error().Err(err).Str("brand_id", req.BrandID).Msg("session touch failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to record activity")
		return
	}
	a.json(w, http.StatusOK, map[string]string{"brand_id": req.BrandID, "step": req.Step})
}

// WizardResume validates a resume link's token and reopens the session at
// the step it was abandoned on.
func (a *App) WizardResume(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "token required")
		return
	}
	claims, err := abandon.VerifyResumeToken(a.ResumeSecret, token)
	switch {
	case errors.Is(err, domain.ErrTokenExpired):
		a.error(w, http.StatusGone, "token_expired", "this resume link has expired")
		return
	case err != nil:
		a.error(w, http.StatusUnauthorized, "token_invalid", "invalid resume link")
		return
	}
	if err := a.Sessions.Touch(r.Context(), claims.BrandID, claims.UserID, claims.Step); err != nil {
		a.Logger.Error().Err(err).Str("brand_id", claims.BrandID).Msg("session touch failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to reopen session")
		return
	}
	a.json(w, http.StatusOK, map[string]string{
		"brand_id": claims.BrandID,
		"user_id":  claims.UserID,
		"step":     claims.Step,
	})
}
