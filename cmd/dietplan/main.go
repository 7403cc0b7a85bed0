package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/fx006/diet-train-app/api"
	"github.com/fx006/diet-train-app/audit"
	"github.com/fx006/diet-train-app/config"
	"github.com/fx006/diet-train-app/planimport"
	"github.com/fx006/diet-train-app/shield"
	"github.com/fx006/diet-train-app/store"
)

func main() {
	// A missing .env is normal outside development.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level(cfg.LogLevel)}))
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	st, err := store.Open(cfg.DBPath)
	if err != nil {
		slog.Error("store", "error", err)
		os.Exit(1)
	}
	defer st.Close()

	im, err := planimport.New(planimport.Config{
		UploadDir:   cfg.UploadDir,
		MaxFileSize: cfg.MaxFileBytes(),
		DefaultKind: cfg.Kind(),
		Logger:      logger,
	}, st)
	if err != nil {
		slog.Error("importer", "error", err)
		os.Exit(1)
	}

	var rl shield.RateLimitConfig
	if cfg.RateLimit.Enabled {
		rl = shield.RateLimitConfig{
			MaxRequests: cfg.RateLimit.MaxRequests,
			Window:      time.Duration(cfg.RateLimit.WindowSeconds) * time.Second,
		}
	}
	var opts []api.Option
	if cfg.Audit.Enabled {
		al := audit.New(st.DB())
		defer al.Close()
		al.StartCleanup(ctx.Done(), time.Hour, cfg.AuditRetention())
		opts = append(opts, api.WithAudit(al))
	}
	srv := api.New(im, st, rl, opts...)
	srv.Limiter().StartGC(ctx.Done(), 5*time.Minute)

	httpSrv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		slog.Info("server starting", "addr", cfg.Listen, "db", cfg.DBPath, "max_file_mb", cfg.MaxFileMB)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown", "error", err)
	}
	slog.Info("server stopped")
}

func level(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
