package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mailkite/mailkite/internal/models"
	"github.com/mailkite/mailkite/internal/uploads"
)

const maxUploadBytes = 16 << 20 // 16 MiB

// UploadResponse summarizes a staged CSV upload
type UploadResponse struct {
	ID        string             `json:"id"`
	FileName  string             `json:"file_name"`
	Fields    []string           `json:"fields"`
	TotalRows int                `json:"total_rows"`
	Preview   []models.Recipient `json:"preview"`
	Errors    []string           `json:"errors,omitempty"`
}

func uploadResponse(u *uploads.Upload, previewRows int) UploadResponse {
	preview := u.Recipients
	if len(preview) > previewRows {
		preview = preview[:previewRows]
	}
	return UploadResponse{
		ID:        u.ID,
		FileName:  u.FileName,
		Fields:    u.Fields,
		TotalRows: len(u.Recipients),
		Preview:   preview,
		Errors:    u.Errors,
	}
}

// handleUploadCreate handles POST /api/v1/uploads (multipart form,
// field "file")
func (s *Server) handleUploadCreate(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		s.sendError(w, http.StatusBadRequest, "Invalid multipart form")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		s.sendError(w, http.StatusBadRequest, "No file uploaded")
		return
	}
	defer file.Close()

	upload, err := uploads.ParseCSV(file)
	if err != nil {
		s.sendError(w, http.StatusBadRequest, err.Error())
		return
	}

	upload.UserID = userID(r)
	upload.FileName = header.Filename
	if err := s.uploads.Save(upload); err != nil {
		s.logger.Error("upload save failed", "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to store upload")
		return
	}

	s.logger.Info("csv uploaded",
		"upload_id", upload.ID,
		"user_id", upload.UserID,
		"rows", len(upload.Recipients),
		"rejected", len(upload.Errors),
	)
	s.sendJSON(w, http.StatusCreated, uploadResponse(upload, 5))
}

// handleUploadPreview handles GET /api/v1/uploads/{id}/preview
func (s *Server) handleUploadPreview(w http.ResponseWriter, r *http.Request) {
	upload, err := s.getOwnedUpload(w, r)
	if upload == nil || err != nil {
		return
	}
	s.sendJSON(w, http.StatusOK, uploadResponse(upload, 10))
}

// handleUploadDelete handles DELETE /api/v1/uploads/{id}
func (s *Server) handleUploadDelete(w http.ResponseWriter, r *http.Request) {
	upload, err := s.getOwnedUpload(w, r)
	if upload == nil || err != nil {
		return
	}

	if err := s.uploads.Delete(upload.ID); err != nil {
		s.logger.Error("upload delete failed", "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to delete upload")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ValidateRequest is the body for POST /api/v1/validate
type ValidateRequest struct {
	Subject  string   `json:"subject"`
	Body     string   `json:"body"`
	UploadID string   `json:"upload_id,omitempty"`
	Fields   []string `json:"fields,omitempty"`
}

// handleValidate handles POST /api/v1/validate: reports which template
// tokens are not covered by the CSV columns.
func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	var req ValidateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	fields := req.Fields
	if req.UploadID != "" {
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
		fields = upload.Fields
	}

	s.sendJSON(w, http.StatusOK, uploads.ValidateTemplate(req.Subject, req.Body, fields))
}

// getOwnedUpload loads the upload from the URL and enforces ownership.
// A nil return means the response has already been written.
func (s *Server) getOwnedUpload(w http.ResponseWriter, r *http.Request) (*uploads.Upload, error) {
	upload, err := s.uploads.Get(chi.URLParam(r, "id"))
	if err != nil {
		s.logger.Error("upload lookup failed", "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to load upload")
		return nil, err
	}
	if upload == nil || upload.UserID != userID(r) {
		s.sendError(w, http.StatusNotFound, "Upload not found")
		return nil, nil
	}
	return upload, nil
}
