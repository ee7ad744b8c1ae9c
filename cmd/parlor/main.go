package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/parlorhq/parlor/internal/backup"
	"github.com/parlorhq/parlor/internal/database"
	"github.com/parlorhq/parlor/internal/email"
	"github.com/parlorhq/parlor/internal/logging"
	"github.com/parlorhq/parlor/internal/push"
	"github.com/parlorhq/parlor/internal/server"
)

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func main() {
	godotenv.Load()

	logger := logging.Setup(envOr("PARLOR_LOG_LEVEL", "info"), os.Getenv("PARLOR_LOG_FORMAT"))

	port := envOr("PARLOR_PORT", "8080")
	dbPath := envOr("PARLOR_DB_PATH", "parlor.db")
	baseURL := envOr("PARLOR_BASE_URL", "http://localhost:"+port)

	db, err := database.Open(dbPath)
	if err != nil {
		logger.Error("open database", "path", dbPath, "error", err)
		os.Exit(1)
	}
	defer db.Close()

	emailClient := email.NewClient(
		os.Getenv("PARLOR_POSTMARK_TOKEN"),
		envOr("PARLOR_EMAIL_FROM", "noreply@parlor.app"),
		baseURL,
	)

	cfg := server.Config{
		BaseURL:   baseURL,
		JWTSecret: os.Getenv("PARLOR_JWT_SECRET"),
		WSOrigins: []string{envOr("PARLOR_WS_ORIGIN", "localhost:"+port)},
		Push: push.Config{
			VAPIDPublicKey:  os.Getenv("PARLOR_VAPID_PUBLIC_KEY"),
			VAPIDPrivateKey: os.Getenv("PARLOR_VAPID_PRIVATE_KEY"),
		},
		Backup: backup.Config{
			S3: backup.S3Config{
				Endpoint:  os.Getenv("PARLOR_S3_ENDPOINT"),
				Bucket:    os.Getenv("PARLOR_S3_BUCKET"),
				Region:    envOr("PARLOR_S3_REGION", "auto"),
				AccessKey: os.Getenv("PARLOR_S3_ACCESS_KEY"),
				SecretKey: os.Getenv("PARLOR_S3_SECRET_KEY"),
			},
			DBPath:        dbPath,
			Passphrase:    os.Getenv("PARLOR_BACKUP_PASSPHRASE"),
			ScheduleHour:  envInt("PARLOR_BACKUP_SCHEDULE_HOUR", 3),
			RetentionDays: envInt("PARLOR_BACKUP_RETENTION_DAYS", 30),
		},
	}

	srv := server.New(db, emailClient, cfg, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if srv.BackupManager().Enabled() {
		srv.BackupManager().Start(ctx)
		defer srv.BackupManager().Stop()
	}
	go cleanupLoop(ctx, srv, logger)

	httpServer := &http.Server{
		Addr:         ":" + port,
		Handler:      srv.Router(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logger.Info("parlor listening", "port", port, "base_url", baseURL)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}
}

// cleanupLoop hourly expires sessions, verification codes, and kv entries.
func cleanupLoop(ctx context.Context, srv *server.Server, logger *slog.Logger) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := srv.SessionStore().DeleteExpired(); err != nil {
				logger.Error("cleanup sessions", "error", err)
			}
			if _, err := srv.VerificationStore().DeleteExpired(); err != nil {
				logger.Error("cleanup verification codes", "error", err)
			}
			if err := srv.KV().Cleanup(); err != nil {
				logger.Error("cleanup kv entries", "error", err)
			}
		}
	}
}
