// Command server runs the Insho API.
//
// main stays minimal: read the config, build the logger, open the
// database, pick the nutrition source, then hand everything to
// internal/server. All logic lives in internal/.
package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/insho/insho-api/internal/config"
	"github.com/insho/insho-api/internal/nutrition"
	"github.com/insho/insho-api/internal/repository/sqlstore"
	"github.com/insho/insho-api/internal/server"
)

func main() {
	// === 1. CONFIGURATION ===
	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// === 2. LOGGING ===
	// Text for humans in development, JSON for log shippers elsewhere.
	opts := &slog.HandlerOptions{Level: cfg.LogLevel}
	var h slog.Handler = slog.NewJSONHandler(os.Stdout, opts)
	if cfg.IsDevelopment() {
		h = slog.NewTextHandler(os.Stdout, opts)
	}
	logger := slog.New(h)
	slog.SetDefault(logger)

	// === 3. DATABASE ===
	// Opening also runs pending migrations.
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	db, err := sqlstore.New(ctx, cfg.DatabaseURL, logger)
	cancel()
	if err != nil {
		logger.Error("failed to open database", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// === 4. SERVER ===
	srv, err := server.New(cfg, db, nutrition.New(cfg, logger), logger)
	if err != nil {
		db.Close()
		logger.Error("failed to create server", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Start blocks until SIGINT/SIGTERM and closes the database on return.
	if err := srv.Start(); err != nil {
		logger.Error("server error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
