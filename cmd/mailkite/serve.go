package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/mailkite/mailkite/internal/api"
	"github.com/mailkite/mailkite/internal/config"
	"github.com/mailkite/mailkite/internal/db"
	"github.com/mailkite/mailkite/internal/dispatch"
	"github.com/mailkite/mailkite/internal/mailer"
	"github.com/mailkite/mailkite/internal/metrics"
	"github.com/mailkite/mailkite/internal/repository"
	"github.com/mailkite/mailkite/internal/secrets"
	"github.com/mailkite/mailkite/internal/uploads"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the API server",
	RunE:  runServe,
}

var configFile string

func init() {
	serveCmd.Flags().StringVarP(&configFile, "config", "c", "/etc/mailkite/config.yaml", "Path to configuration file")
}

func runServe(cmd *cobra.Command, args []string) error {
	// Optional .env for local development; missing file is fine
	_ = godotenv.Load()

	cfg, err := config.Load(configFile)
	if err != nil {
		return err
	}

	logger := newLogger(cfg)
	slog.SetDefault(logger)

	database, err := db.New(cfg.Database.Path)
	if err != nil {
		return err
	}
	defer database.Close()

	if err := database.Migrate(); err != nil {
		return err
	}

	uploadStore, err := uploads.NewStore(cfg.Uploads.Path)
	if err != nil {
		return err
	}
	defer uploadStore.Close()

	box, err := secrets.NewBox(cfg.EncryptionKey())
	if err != nil {
		return err
	}

	m := metrics.New()
	dialer := mailer.NewDialer(cfg.SMTP, logger)

	users := repository.NewUserRepository(database.DB)
	templates := repository.NewTemplateRepository(database.DB)
	campaigns := repository.NewCampaignRepository(database.DB)
	configs := repository.NewEmailConfigRepository(database.DB)

	dispatcher := dispatch.New(campaigns, configs, box, dialer, m, logger, cfg.Dispatch.Concurrency)

	srv := api.NewServer(cfg, logger, users, templates, campaigns, configs, uploadStore, box, dialer, dispatcher, m)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigCh
		logger.Info("shutting down...")
		cancel()
	}()

	return srv.Run(ctx)
}

func newLogger(cfg *config.Config) *slog.Logger {
	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: parseLogLevel(cfg.Logging.Level)}
	if cfg.Logging.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	return slog.New(handler)
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
