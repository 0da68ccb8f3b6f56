package api

import (
	"encoding/json"
	"net/http"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/mailkite/mailkite/internal/models"
)

// RegisterRequest is the body for POST /api/v1/auth/register
type RegisterRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginRequest is the body for POST /api/v1/auth/login
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// UserResponse is the public shape of a user
type UserResponse struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// handleRegister handles POST /api/v1/auth/register
func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if req.Email == "" || req.Password == "" || req.Name == "" {
		s.sendError(w, http.StatusBadRequest, "name, email and password are required")
		return
	}

	existing, err := s.users.GetByEmail(req.Email)
	if err != nil {
		s.logger.Error("user lookup failed", "error", err)
		s.sendError(w, http.StatusInternalServerError, "Registration failed")
		return
	}
	if existing != nil {
		s.sendError(w, http.StatusConflict, "Email is already registered")
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		s.logger.Error("password hash failed", "error", err)
		s.sendError(w, http.StatusInternalServerError, "Registration failed")
		return
	}

	user := &models.User{
		Name:         req.Name,
		Email:        req.Email,
		PasswordHash: string(hash),
	}
	if err := s.users.Create(user); err != nil {
		s.logger.Error("user create failed", "error", err)
		s.sendError(w, http.StatusInternalServerError, "Registration failed")
		return
	}

	s.logger.Info("user registered", "user_id", user.ID, "email", user.Email)
	s.sendJSON(w, http.StatusCreated, UserResponse{ID: user.ID, Name: user.Name, Email: user.Email})
}

// handleLogin handles POST /api/v1/auth/login
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	user, err := s.users.GetByEmail(req.Email)
	if err != nil {
		s.logger.Error("user lookup failed", "error", err)
		s.sendError(w, http.StatusInternalServerError, "Login failed")
		return
	}
	if user == nil {
		s.sendError(w, http.StatusUnauthorized, "Invalid email or password")
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		s.sendError(w, http.StatusUnauthorized, "Invalid email or password")
		return
	}

	session, err := s.users.CreateSession(user.ID, s.cfg.Auth.SessionTTL)
	if err != nil {
		s.logger.Error("session create failed", "error", err)
		s.sendError(w, http.StatusInternalServerError, "Login failed")
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     "session",
		Value:    session.ID,
		Path:     "/",
		Expires:  session.ExpiresAt,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	s.sendJSON(w, http.StatusOK, UserResponse{ID: user.ID, Name: user.Name, Email: user.Email})
}

// handleLogout handles POST /api/v1/auth/logout
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie("session"); err == nil {
		if err := s.users.DeleteSession(cookie.Value); err != nil {
			s.logger.Error("session delete failed", "error", err)
		}
	}

	http.SetCookie(w, &http.Cookie{
		Name:     "session",
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		HttpOnly: true,
	})

	w.WriteHeader(http.StatusNoContent)
}
