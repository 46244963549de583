package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.temporal.io/sdk/client"
	"go.uber.org/zap"

	"dev/bravebird/ui-verify/pkg/api"
	"dev/bravebird/ui-verify/pkg/config"
	"dev/bravebird/ui-verify/pkg/database"
)

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	logger.Info("Starting UI verification API server")

	cfg := config.Load()

	// Initialize database
	var store api.RunStore
	db, err := database.New(cfg.MySQLDSN)
	if err != nil {
		logger.Warn("Failed to connect to database, running without run history", zap.Error(err))
	} else {
		defer db.Close()
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		err = db.Migrate(ctx)
		cancel()
		if err != nil {
			logger.Fatal("Failed to migrate database", zap.Error(err))
		}
		store = db
	}

	// Scenarios and scripts are still served without Temporal
	var temporalClient client.Client
	tc, err := client.Dial(client.Options{
		HostPort: cfg.TemporalHost,
	})
	if err != nil {
		logger.Warn("Failed to create Temporal client, runs are disabled",
			zap.String("host", cfg.TemporalHost), zap.Error(err))
	} else {
		defer tc.Close()
		temporalClient = tc
	}

	handlers := api.NewHandlers(store, temporalClient, cfg, logger)

	// WriteTimeout stays zero so run streams are not cut off
	server := &http.Server{
		Addr:        ":" + cfg.Port,
		Handler:     api.NewRouter(handlers),
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.Info("API server listening", zap.String("port", cfg.Port))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server")

	// Graceful shutdown
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
		return
	}

	logger.Info("Server stopped")
}
