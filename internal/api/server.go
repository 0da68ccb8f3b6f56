package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/mailkite/mailkite/internal/config"
	"github.com/mailkite/mailkite/internal/dispatch"
	"github.com/mailkite/mailkite/internal/mailer"
	"github.com/mailkite/mailkite/internal/metrics"
	"github.com/mailkite/mailkite/internal/repository"
	"github.com/mailkite/mailkite/internal/secrets"
	"github.com/mailkite/mailkite/internal/uploads"
)

// Server is the HTTP API server
type Server struct {
	router     *chi.Mux
	httpServer *http.Server
	cfg        *config.Config
	logger     *slog.Logger

	users      *repository.UserRepository
	templates  *repository.TemplateRepository
	campaigns  *repository.CampaignRepository
	configs    *repository.EmailConfigRepository
	uploads    *uploads.Store
	box        *secrets.Box
	dialer     *mailer.SMTPDialer
	dispatcher *dispatch.Dispatcher
	metrics    *metrics.Metrics
}

// NewServer creates a new API server wired to its collaborators.
func NewServer(
	cfg *config.Config,
	logger *slog.Logger,
	users *repository.UserRepository,
	templates *repository.TemplateRepository,
	campaigns *repository.CampaignRepository,
	configs *repository.EmailConfigRepository,
	uploadStore *uploads.Store,
	box *secrets.Box,
	dialer *mailer.SMTPDialer,
	dispatcher *dispatch.Dispatcher,
	m *metrics.Metrics,
) *Server {
	s := &Server{
		router:     chi.NewRouter(),
		cfg:        cfg,
		logger:     logger.With("component", "api"),
		users:      users,
		templates:  templates,
		campaigns:  campaigns,
		configs:    configs,
		uploads:    uploadStore,
		box:        box,
		dialer:     dialer,
		dispatcher: dispatcher,
		metrics:    m,
	}

	s.setupRoutes()
	return s
}

// setupRoutes configures the HTTP routes
func (s *Server) setupRoutes() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.loggingMiddleware)
	s.router.Use(middleware.Recoverer)

	// Public endpoints
	s.router.Get("/health", s.handleHealth)
	s.router.Handle("/metrics", s.metrics.Handler())
	s.router.Post("/api/v1/auth/register", s.handleRegister)
	s.router.Post("/api/v1/auth/login", s.handleLogin)

	// Authenticated API
	s.router.Route("/api/v1", func(r chi.Router) {
		r.Use(s.authMiddleware)

		r.Post("/auth/logout", s.handleLogout)

		r.Get("/templates", s.handleTemplateList)
		r.Post("/templates", s.handleTemplateCreate)
		r.Get("/templates/{id}", s.handleTemplateGet)
		r.Put("/templates/{id}", s.handleTemplateUpdate)
		r.Delete("/templates/{id}", s.handleTemplateDelete)
		r.Get("/templates/category/{category}", s.handleTemplateListByCategory)

		r.Get("/config/email", s.handleEmailConfigList)
		r.Post("/config/email", s.handleEmailConfigAdd)
		r.Delete("/config/email/{id}", s.handleEmailConfigDelete)

		r.Post("/uploads", s.handleUploadCreate)
		r.Get("/uploads/{id}/preview", s.handleUploadPreview)
		r.Delete("/uploads/{id}", s.handleUploadDelete)
		r.Post("/validate", s.handleValidate)

		r.Get("/campaigns", s.handleCampaignList)
		r.Post("/campaigns", s.handleCampaignCreate)
		r.Get("/campaigns/{id}", s.handleCampaignGet)
		r.Post("/campaigns/{id}/send", s.handleCampaignSend)
	})
}

// Run starts the HTTP server and blocks until ctx is cancelled or the
// listener fails. Expired sessions and stale uploads are cleaned in
// the background while the server runs.
func (s *Server) Run(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:         s.cfg.Server.ListenAddr,
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go s.cleanupLoop(ctx)

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting HTTP API server", "addr", s.cfg.Server.ListenAddr)
		errCh <- s.httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("shutdown error", "error", err)
		}
		return nil
	}
}

func (s *Server) cleanupLoop(ctx context.Context) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n, err := s.users.DeleteExpiredSessions(); err != nil {
				s.logger.Error("session cleanup failed", "error", err)
			} else if n > 0 {
				s.logger.Debug("expired sessions removed", "count", n)
			}
			if n, err := s.uploads.Cleanup(s.cfg.Uploads.MaxAge); err != nil {
				s.logger.Error("upload cleanup failed", "error", err)
			} else if n > 0 {
				s.logger.Debug("stale uploads removed", "count", n)
			}
		}
	}
}

// Router exposes the handler for tests.
func (s *Server) Router() http.Handler {
	return s.router
}
