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

	"github.com/punchamoorthee/protocol6713/internal/api"
	"github.com/punchamoorthee/protocol6713/internal/config"
	"github.com/punchamoorthee/protocol6713/internal/logging"
	"github.com/punchamoorthee/protocol6713/internal/service"
	"github.com/punchamoorthee/protocol6713/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config", "error", err)
		os.Exit(1)
	}
	logger := logging.Default(cfg.LogLevel, "talent-api")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := store.Open(ctx, cfg.DBDriver, cfg.DBSource)
	if err != nil {
		logger.Error("unable to open store", "driver", cfg.DBDriver, "error", err)
		os.Exit(1)
	}
	defer st.Close()

	// Initialize Layers
	svc := service.New(st, service.WithLogger(logger))
	handler := api.NewHandler(st, svc, logger, cfg.WebhookSecret)

	if cfg.WebhookSecret == "" {
		logger.Warn("WEBHOOK_SECRET unset, registration and purchase hooks are disabled")
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", "port", cfg.Port, "env", cfg.Env, "driver", cfg.DBDriver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			logger.Error("server failed", "error", err)
			os.Exit(1)
		}
	case <-ctx.Done():
	}

	logger.Info("shutting down", "timeout", cfg.ShutdownTimeout)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
	}
}
