package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mailkite/mailkite/internal/models"
)

// EmailConfigRequest is the body for POST /api/v1/config/email
type EmailConfigRequest struct {
	SenderEmail string `json:"sender_email"`
	AppPassword string `json:"app_password"`
	// Verify makes the handler authenticate against the real relay
	// before accepting the credential.
	Verify bool `json:"verify,omitempty"`
}

// EmailConfigResponse is the public shape of a sender identity
type EmailConfigResponse struct {
	ID          string `json:"id"`
	SenderEmail string `json:"sender_email"`
}

// handleEmailConfigAdd handles POST /api/v1/config/email
func (s *Server) handleEmailConfigAdd(w http.ResponseWriter, r *http.Request) {
	var req EmailConfigRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if req.SenderEmail == "" || req.AppPassword == "" {
		s.sendError(w, http.StatusBadRequest, "sender_email and app_password are required")
		return
	}

	if req.Verify {
		if err := s.dialer.Verify(r.Context(), req.SenderEmail, req.AppPassword); err != nil {
			s.logger.Warn("credential verification failed", "sender", req.SenderEmail, "error", err)
			s.sendError(w, http.StatusUnprocessableEntity, "Credential verification failed")
			return
		}
	}

	sealed, err := s.box.Seal(req.AppPassword)
	if err != nil {
		s.logger.Error("credential seal failed", "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to add email config")
		return
	}

	cfg := &models.EmailConfig{
		UserID:         userID(r),
		SenderEmail:    req.SenderEmail,
		SealedPassword: sealed,
	}
	if err := s.configs.Upsert(cfg); err != nil {
		s.logger.Error("email config upsert failed", "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to add email config")
		return
	}

	s.logger.Info("email config added", "user_id", cfg.UserID, "sender", cfg.SenderEmail)
	s.sendJSON(w, http.StatusOK, EmailConfigResponse{ID: cfg.ID, SenderEmail: cfg.SenderEmail})
}

// handleEmailConfigList handles GET /api/v1/config/email
func (s *Server) handleEmailConfigList(w http.ResponseWriter, r *http.Request) {
	configs, err := s.configs.ListByUser(userID(r))
	if err != nil {
		s.logger.Error("email config list failed", "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to fetch email configs")
		return
	}

	resp := make([]EmailConfigResponse, len(configs))
	for i, c := range configs {
		resp[i] = EmailConfigResponse{ID: c.ID, SenderEmail: c.SenderEmail}
	}
	s.sendJSON(w, http.StatusOK, resp)
}

// handleEmailConfigDelete handles DELETE /api/v1/config/email/{id}
func (s *Server) handleEmailConfigDelete(w http.ResponseWriter, r *http.Request) {
	if err := s.configs.Delete(userID(r), chi.URLParam(r, "id")); err != nil {
		s.logger.Error("email config delete failed", "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to delete email config")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
