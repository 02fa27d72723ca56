// Command migrate initializes or verifies the storage schema. With -check it
// only verifies: a behind schema is reported with its pending migration names
// and the process exits non-zero. Without it, pending migrations are applied.
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"os"

	"answergrid.ai/core/common/id"
	"answergrid.ai/core/common/logger"
	"answergrid.ai/core/common/otel"
	"answergrid.ai/core/core/config"
	"answergrid.ai/core/core/db"
)

func main() {
	check := flag.Bool("check", false, "verify the schema without applying migrations")
	flag.Parse()

	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		slog.ErrorContext(ctx, "failed to load config", "error", err)
		os.Exit(1)
	}

	logger.Setup(cfg)

	if cfg.OTel.Enabled() {
		telemetry, err := otel.Setup(ctx, cfg.OTel)
		if err != nil {
			slog.ErrorContext(ctx, "failed to set up telemetry", "error", err)
			os.Exit(1)
		}
		defer telemetry.Shutdown(ctx)
	}

	if err := id.Init(cfg.SnowNode); err != nil {
		slog.ErrorContext(ctx, "failed to initialize id generator", "error", err)
		os.Exit(1)
	}

	slog.InfoContext(ctx, "migrate starting", "env", cfg.Env, "backend", cfg.Backend, "check", *check)

	database, err := open(ctx, cfg, *check)
	if err != nil {
		if errors.Is(err, db.ErrConfiguration) {
			// Verify-only construction names the pending migrations.
			slog.ErrorContext(ctx, "schema is behind", "error", err)
		} else {
			slog.ErrorContext(ctx, "failed to open database", "error", err)
		}
		os.Exit(1)
	}
	defer database.Close()

	slog.InfoContext(ctx, "schema is current")
}

// open verifies or applies the schema as a side effect of construction. The
// embedded engine always applies; -check against it is only meaningful for a
// pre-existing file, which construction then brings current.
func open(ctx context.Context, cfg config.Config, check bool) (*db.DB, error) {
	if cfg.Backend == "sqlite" {
		return db.NewSQLite(ctx, cfg.SQLite.Path)
	}

	dbCfg := cfg.DB
	dbCfg.VerifyOnly = check
	return db.NewPostgres(ctx, dbCfg)
}
