package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/mailkite/mailkite/internal/dispatch"
	"github.com/mailkite/mailkite/internal/models"
)

// CampaignRequest is the body for POST /api/v1/campaigns. Recipients
// come either inline or from a staged upload, not both.
type CampaignRequest struct {
	SenderEmail string             `json:"sender_email"`
	FromName    string             `json:"from_name,omitempty"`
	Subject     string             `json:"subject"`
	Body        string             `json:"body"`
	Recipients  []models.Recipient `json:"recipients,omitempty"`
	UploadID    string             `json:"upload_id,omitempty"`
}

// CampaignListResponse is the response for GET /api/v1/campaigns
type CampaignListResponse struct {
	Campaigns []models.Campaign `json:"campaigns"`
	Total     int               `json:"total"`
}

// SendResponse is the response for POST /api/v1/campaigns/{id}/send
type SendResponse struct {
	Message string            `json:"message"`
	Summary *dispatch.Summary `json:"summary"`
}

// handleCampaignCreate handles POST /api/v1/campaigns
func (s *Server) handleCampaignCreate(w http.ResponseWriter, r *http.Request) {
	var req CampaignRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if req.Subject == "" || req.Body == "" || req.SenderEmail == "" {
		s.sendError(w, http.StatusBadRequest, "subject, body and sender_email are required")
		return
	}

	recipients := req.Recipients
	if req.UploadID != "" {
		if len(recipients) > 0 {
			s.sendError(w, http.StatusBadRequest, "recipients and upload_id are mutually exclusive")
			return
		}
		upload, err := s.uploads.Get(req.UploadID)
		if err != nil {
			s.logger.Error("upload lookup failed", "error", err)
			s.sendError(w, http.StatusInternalServerError, "Failed to load upload")
			return
		}
		if upload == nil || upload.UserID != userID(r) {
			s.sendError(w, http.StatusNotFound, "Upload not found")
			return
		}
		recipients = upload.Recipients
	}

	if len(recipients) == 0 {
		s.sendError(w, http.StatusBadRequest, "at least one recipient is required")
		return
	}

	// Sender address must match a configured credential before the
	// campaign is accepted.
	cfg, err := s.configs.Get(userID(r), req.SenderEmail)
	if err != nil {
		s.logger.Error("sender config lookup failed", "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to create campaign")
		return
	}
	if cfg == nil {
		s.sendError(w, http.StatusUnprocessableEntity, "No email config for sender address")
		return
	}

	campaign := &models.Campaign{
		SenderID:    userID(r),
		SenderEmail: req.SenderEmail,
		FromName:    req.FromName,
		Subject:     req.Subject,
		Body:        req.Body,
		Recipients:  recipients,
	}
	if err := s.campaigns.Create(campaign); err != nil {
		s.logger.Error("campaign create failed", "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to store campaign")
		return
	}

	// The staged upload is consumed by the campaign.
	if req.UploadID != "" {
		if err := s.uploads.Delete(req.UploadID); err != nil {
			s.logger.Error("upload delete failed", "upload_id", req.UploadID, "error", err)
		}
	}

	s.logger.Info("campaign created",
		"campaign_id", campaign.ID,
		"sender", campaign.SenderEmail,
		"recipients", len(campaign.Recipients),
	)
	s.sendJSON(w, http.StatusCreated, campaign)
}

// handleCampaignList handles GET /api/v1/campaigns
func (s *Server) handleCampaignList(w http.ResponseWriter, r *http.Request) {
	filter := models.CampaignListFilter{
		SenderID: userID(r),
		Status:   r.URL.Query().Get("status"),
	}
	filter.Limit, _ = strconv.Atoi(r.URL.Query().Get("limit"))
	filter.Offset, _ = strconv.Atoi(r.URL.Query().Get("offset"))

	campaigns, total, err := s.campaigns.List(filter)
	if err != nil {
		s.logger.Error("campaign list failed", "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to fetch campaigns")
		return
	}

	s.sendJSON(w, http.StatusOK, CampaignListResponse{Campaigns: campaigns, Total: total})
}

// handleCampaignGet handles GET /api/v1/campaigns/{id}
func (s *Server) handleCampaignGet(w http.ResponseWriter, r *http.Request) {
	campaign, err := s.campaigns.GetByID(chi.URLParam(r, "id"))
	if err != nil {
		s.logger.Error("campaign lookup failed", "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to fetch campaign")
		return
	}
	if campaign == nil || campaign.SenderID != userID(r) {
		s.sendError(w, http.StatusNotFound, "Campaign not found")
		return
	}

	s.sendJSON(w, http.StatusOK, campaign)
}

// handleCampaignSend handles POST /api/v1/campaigns/{id}/send. The
// call is synchronous: it returns once every recipient attempt has
// settled.
func (s *Server) handleCampaignSend(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	campaign, err := s.campaigns.GetByID(id)
	if err != nil {
		s.logger.Error("campaign lookup failed", "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to fetch campaign")
		return
	}
	if campaign == nil || campaign.SenderID != userID(r) {
		s.sendError(w, http.StatusNotFound, "Campaign not found")
		return
	}

	summary, err := s.dispatcher.Dispatch(r.Context(), id)
	if err != nil {
		switch {
		case errors.Is(err, dispatch.ErrNotFound):
			s.sendError(w, http.StatusNotFound, "Campaign not found")
		case errors.Is(err, dispatch.ErrNoSenderConfig):
			s.sendError(w, http.StatusUnprocessableEntity, "No email config for sender address")
		case errors.Is(err, dispatch.ErrAlreadyRunning):
			s.sendError(w, http.StatusConflict, "Campaign dispatch already in progress")
		default:
			s.logger.Error("dispatch failed", "campaign_id", id, "error", err)
			s.sendError(w, http.StatusInternalServerError, "Failed to send bulk emails")
		}
		return
	}

	s.sendJSON(w, http.StatusOK, SendResponse{Message: summary.String(), Summary: summary})
}
