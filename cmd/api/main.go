package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "fp-innova/docs" // This is for Swagger
	"fp-innova/internal/config"
	"fp-innova/internal/database"
	"fp-innova/internal/logger"
	"fp-innova/internal/server"
)

// @title FP Innova API
// @version 1.0
// @description Backend API for FP Innova innovation grant calls at vocational training centers
// @termsOfService http://swagger.io/terms/

// @contact.name API Support
// @contact.email soporte@fpinnova.es

// @license.name MIT
// @license.url https://opensource.org/licenses/MIT

// @host localhost:3000
// @BasePath /api

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and JWT token. Browsers use the session cookie instead.

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	// Setup structured logger
	logger.Setup(logger.Config{
		Level: cfg.Log.Level,
	})

	slog.Info("Starting application",
		"name", cfg.App.Name,
		"version", cfg.App.Version,
		"env", cfg.App.Env,
		"log_level", cfg.Log.Level,
	)

	if err := run(cfg); err != nil {
		slog.Error("Application failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Server stopped")
}

func run(cfg *config.Config) error {
	startupCtx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	// Initialize database
	db, err := database.New(&cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			slog.Error("Failed to close database connection", "error", err)
		}
	}()
	slog.Info("Database connection established")

	// Run migrations
	if err := database.NewMigrationExecutor(db.DB).RunMigrations(startupCtx, cfg.Database.MigrationsPath); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	cipher, err := server.NewCipher(startupCtx, cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize secret encryption: %w", err)
	}

	srv, err := server.New(startupCtx, cfg, server.Deps{DB: db, Cipher: cipher})
	if err != nil {
		return err
	}
	defer srv.Close()

	if cfg.Admin.Email != "" {
		if err := srv.Services.Auth.EnsureAdmin(startupCtx, cfg.Admin.Email, cfg.Admin.Password, cfg.Admin.Name); err != nil {
			return fmt.Errorf("failed to create initial admin: %w", err)
		}
	}

	srv.Scheduler.Start()
	defer srv.Scheduler.Stop()

	addr := fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port)
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      srv.Handler,
		ReadTimeout:  cfg.Server.TimeoutRead,
		WriteTimeout: cfg.Server.TimeoutWrite,
		IdleTimeout:  cfg.Server.TimeoutIdle,
	}

	serverErr := make(chan error, 1)
	go func() {
		slog.Info("Server starting", "address", addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// Wait for interrupt signal to gracefully shut down the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-serverErr:
		return fmt.Errorf("server failed to start: %w", err)
	case <-quit:
	}

	slog.Info("Server shutting down...")

	// Graceful shutdown with timeout
	ctx, cancelShutdown := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelShutdown()

	if err := httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	return nil
}
