// api/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"aurelienallenic/api/aggregator"
	"aurelienallenic/api/config"
	"aurelienallenic/api/database"
	"aurelienallenic/api/filestore"
	"aurelienallenic/api/handlers"
	"aurelienallenic/api/logger"
	"aurelienallenic/api/mailer"
	"aurelienallenic/api/metrics"
	"aurelienallenic/api/middleware"
	"aurelienallenic/api/oauth"
	"aurelienallenic/api/recaptcha"
	"aurelienallenic/api/session"
	"aurelienallenic/api/store"
	"aurelienallenic/api/utils"
	"aurelienallenic/api/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := run(cfg, log); err != nil {
		log.WithError(err).Fatal("server stopped")
	}
	log.Info("Server exiting.")
}

func run(cfg *config.Config, log *logrus.Logger) error {
	ctx := context.Background()

	// --- Connection pools ---
	pg, err := database.NewPostgresDB(ctx, cfg.Database, log)
	if err != nil {
		return fmt.Errorf("failed to initialize PostgreSQL: %w", err)
	}
	defer pg.Close()

	if cfg.Database.AutoMigrate {
		if err := database.Migrate(pg.DB, database.MigrateUp); err != nil {
			return err
		}
		log.Info("Database migrations applied")
	}

	rdb, err := database.NewRedis(ctx, cfg.Redis.URL, log)
	if err != nil {
		return fmt.Errorf("failed to initialize Redis: %w", err)
	}
	defer rdb.Close()

	checks := []aggregator.HealthChecker{pg}
	var events store.EventStore = store.NewAnalyticsStore(pg.DB)
	if cfg.Analytics.EventBackend == config.EventBackendClickHouse {
		ch, err := database.NewClickHouseDB(ctx, cfg.ClickHouse, log)
		if err != nil {
			return fmt.Errorf("failed to initialize ClickHouse: %w", err)
		}
		defer ch.Close()
		if err := ch.EnsureSchema(ctx); err != nil {
			return err
		}
		events = store.NewClickHouseEventStore(ch.Conn)
		checks = append(checks, ch)
	}

	// --- Stores and services ---
	summaries := store.NewSummaryStore(pg.DB)
	users := store.NewUserStore(pg.DB)
	cvs := store.NewCVStore(pg.DB)
	messages := store.NewMessageStore(pg.DB)

	collector := metrics.New()
	agg := aggregator.New(events, summaries, log,
		aggregator.WithHealthChecks(checks...),
		aggregator.WithRecorder(collector),
	)

	queue := worker.NewQueue(cfg.Worker.Workers, cfg.Worker.QueueSize, cfg.Worker.TaskTimeout, log, collector)

	enc, err := utils.NewEncryptor(cfg.EncryptionSecret())
	if err != nil {
		return err
	}

	sessions := session.NewStore(rdb.Client, cfg.Session.Secret, cfg.Session.TTL)
	cookie := middleware.SessionCookie{
		Name:   cfg.Session.CookieName,
		TTL:    cfg.Session.TTL,
		Secure: cfg.IsProduction(),
	}

	var google oauth.Provider
	if cfg.GoogleEnabled() {
		p, err := oauth.NewGoogleProvider(ctx, cfg.Google.ClientID, cfg.Google.ClientSecret, cfg.GoogleCallbackURL())
		if err != nil {
			log.WithError(err).Warn("Google sign-in disabled: provider discovery failed")
		} else {
			google = p
		}
	}

	var files filestore.FileStore
	if cfg.Storage.S3Bucket != "" {
		s3Store, err := filestore.NewS3Store(ctx, cfg.Storage)
		if err != nil {
			return fmt.Errorf("failed to initialize object storage: %w", err)
		}
		files = s3Store
	} else {
		log.Warn("S3_BUCKET not set: CV uploads are disabled")
	}

	siteURL := cfg.Mail.SiteURL
	if siteURL == "" {
		siteURL = cfg.Server.FrontendURL
	}
	composer := mailer.Composer{
		SiteName:    cfg.Mail.SiteName,
		SiteURL:     siteURL,
		SenderEmail: cfg.Mail.SenderEmail,
		AdminEmail:  cfg.Mail.AdminEmail,
	}
	brevo := mailer.NewBrevoClient(cfg.Mail.BrevoAPIKey, cfg.Mail.BaseURL, 15*time.Second)
	verifier := recaptcha.NewVerifier(cfg.Recaptcha.SecretKey, cfg.Recaptcha.VerifyURL, cfg.Recaptcha.Action, cfg.Recaptcha.MinScore, 5*time.Second)

	if cfg.Analytics.CronSecret == "" {
		log.Warn("CRON_SECRET not set: scheduled aggregation endpoints will fail")
	}

	// --- Router ---
	router := handlers.NewRouter(handlers.Dependencies{
		Log:            log,
		Metrics:        collector,
		Redis:          rdb.Client,
		Sessions:       sessions,
		Cookie:         cookie,
		AllowedOrigins: cfg.CORSOrigins(),
		TrustedProxies: cfg.Security.TrustedProxies,
		CronSecret:     cfg.Analytics.CronSecret,
		GlobalLimit: middleware.RateLimitConfig{
			Limit:     cfg.Security.GlobalRateLimit,
			Window:    cfg.Security.GlobalRateWindow,
			KeyPrefix: "ratelimit:global:",
			Message:   "Too many requests, please try again later.",
		},
		LoginLimit: middleware.RateLimitConfig{
			Limit:     cfg.Security.LoginRateLimit,
			Window:    cfg.Security.LoginRateWindow,
			KeyPrefix: "ratelimit:login:",
			Message:   "Too many login attempts, please try again later.",
		},
		Analytics: handlers.NewAnalyticsHandlers(events, summaries, agg, collector, cfg.Analytics.Salt, log),
		Auth:      handlers.NewAuthHandlers(users, sessions, cookie, google, cfg.Server.FrontendURL, log),
		Contact:   handlers.NewContactHandlers(brevo, composer, verifier, queue, enc, messages, log),
		Messages:  handlers.NewMessageHandlers(messages, enc, log),
		CV:        handlers.NewCVHandlers(cvs, files, cfg.Storage.CVPrefix, log),
		Health:    handlers.NewHealthHandlers(map[string]handlers.Pinger{"postgres": pg, "redis": rdb}, log),
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.WithField("port", cfg.Server.Port).Info("API server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-quit:
		log.WithField("signal", sig.String()).Info("Shutting down server...")
	case err := <-errCh:
		return fmt.Errorf("API server failed: %w", err)
	}

	// HTTP first so no new tasks arrive, then the queue, then the pools via defer.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("Server forced to shutdown")
	}
	if err := queue.Shutdown(cfg.Server.ShutdownTimeout); err != nil {
		log.WithError(err).Warn("Background tasks did not finish")
	}
	return nil
}
