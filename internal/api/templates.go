package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/mailkite/mailkite/internal/models"
	"github.com/mailkite/mailkite/internal/render"
)

// TemplateRequest is the body for template create/update
type TemplateRequest struct {
	Name        string `json:"name"`
	Category    string `json:"category"`
	Description string `json:"description"`
	Subject     string `json:"subject"`
	Body        string `json:"body"`
}

// TemplateResponse adds the extracted token list to a template
type TemplateResponse struct {
	models.Template
	Variables []string `json:"variables"`
}

// TemplateListResponse is the response for GET /api/v1/templates
type TemplateListResponse struct {
	Templates []models.Template `json:"templates"`
	Total     int               `json:"total"`
}

func templateResponse(t *models.Template) TemplateResponse {
	tokens := render.Tokens(t.Subject)
	for _, tok := range render.Tokens(t.Body) {
		found := false
		for _, existing := range tokens {
			if existing == tok {
				found = true
				break
			}
		}
		if !found {
			tokens = append(tokens, tok)
		}
	}
	return TemplateResponse{Template: *t, Variables: tokens}
}

// handleTemplateCreate handles POST /api/v1/templates
func (s *Server) handleTemplateCreate(w http.ResponseWriter, r *http.Request) {
	var req TemplateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if req.Name == "" || req.Subject == "" || req.Body == "" {
		s.sendError(w, http.StatusBadRequest, "name, subject and body are required")
		return
	}

	t := &models.Template{
		UserID:      userID(r),
		Name:        req.Name,
		Category:    req.Category,
		Description: req.Description,
		Subject:     req.Subject,
		Body:        req.Body,
	}
	if err := s.templates.Create(t); err != nil {
		s.logger.Error("template create failed", "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to save template")
		return
	}

	s.sendJSON(w, http.StatusCreated, templateResponse(t))
}

// handleTemplateList handles GET /api/v1/templates
func (s *Server) handleTemplateList(w http.ResponseWriter, r *http.Request) {
	filter := models.TemplateListFilter{
		UserID: userID(r),
		Search: r.URL.Query().Get("search"),
	}
	filter.Limit, _ = strconv.Atoi(r.URL.Query().Get("limit"))
	filter.Offset, _ = strconv.Atoi(r.URL.Query().Get("offset"))

	templates, total, err := s.templates.List(filter)
	if err != nil {
		s.logger.Error("template list failed", "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to fetch templates")
		return
	}

	s.sendJSON(w, http.StatusOK, TemplateListResponse{Templates: templates, Total: total})
}

// handleTemplateListByCategory handles GET /api/v1/templates/category/{category}
func (s *Server) handleTemplateListByCategory(w http.ResponseWriter, r *http.Request) {
	filter := models.TemplateListFilter{
		UserID:   userID(r),
		Category: chi.URLParam(r, "category"),
	}

	templates, total, err := s.templates.List(filter)
	if err != nil {
		s.logger.Error("template list failed", "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to fetch templates")
		return
	}
	if total == 0 {
		s.sendError(w, http.StatusNotFound, "No templates found in this category")
		return
	}

	s.sendJSON(w, http.StatusOK, TemplateListResponse{Templates: templates, Total: total})
}

// handleTemplateGet handles GET /api/v1/templates/{id}
func (s *Server) handleTemplateGet(w http.ResponseWriter, r *http.Request) {
	t, err := s.templates.GetByID(userID(r), chi.URLParam(r, "id"))
	if err != nil {
		s.logger.Error("template lookup failed", "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to fetch template")
		return
	}
	if t == nil {
		s.sendError(w, http.StatusNotFound, "Template not found")
		return
	}

	s.sendJSON(w, http.StatusOK, templateResponse(t))
}

// handleTemplateUpdate handles PUT /api/v1/templates/{id}
func (s *Server) handleTemplateUpdate(w http.ResponseWriter, r *http.Request) {
	t, err := s.templates.GetByID(userID(r), chi.URLParam(r, "id"))
	if err != nil {
		s.logger.Error("template lookup failed", "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to fetch template")
		return
	}
	if t == nil {
		s.sendError(w, http.StatusNotFound, "Template not found")
		return
	}

	var req TemplateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if req.Name != "" {
		t.Name = req.Name
	}
	if req.Category != "" {
		t.Category = req.Category
	}
	if req.Description != "" {
		t.Description = req.Description
	}
	if req.Subject != "" {
		t.Subject = req.Subject
	}
	if req.Body != "" {
		t.Body = req.Body
	}

	if err := s.templates.Update(t); err != nil {
		s.logger.Error("template update failed", "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to update template")
		return
	}

	s.sendJSON(w, http.StatusOK, templateResponse(t))
}

// handleTemplateDelete handles DELETE /api/v1/templates/{id}
func (s *Server) handleTemplateDelete(w http.ResponseWriter, r *http.Request) {
	t, err := s.templates.GetByID(userID(r), chi.URLParam(r, "id"))
	if err != nil {
		s.logger.Error("template lookup failed", "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to fetch template")
		return
	}
	if t == nil {
		s.sendError(w, http.StatusNotFound, "Template not found")
		return
	}

	if err := s.templates.Delete(userID(r), t.ID); err != nil {
		s.logger.Error("template delete failed", "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to delete template")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
