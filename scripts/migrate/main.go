// Package main imports a legacy SQLite audit trail into the ledger's Postgres
// database as unchained rows. Run `ledger-cli db backfill` afterwards to
// assign seq and hash in original created_at order.
//
// Usage:
//
//	SQLITE_PATH=/path/to/audit.sqlite DATABASE_URL=postgres://... go run ./scripts/migrate
package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/jackc/pgx/v5"
	_ "modernc.org/sqlite"
)

// config holds environment-driven import settings.
type config struct {
	SQLitePath  string
	DatabaseURL string
	Table       string
	DryRun      bool
}

// report holds the final import summary.
type report struct {
	Source        string
	Target        string
	RowsRead      int
	RowsSkipped   int
	RowsInserted  int
	Unchained     int
	Organizations int
	Duration      time.Duration
	DryRun        bool
	Err           error
}

func main() {
	cfg := loadConfig()
	if cfg.DatabaseURL == "" && !cfg.DryRun {
		slog.Error("DATABASE_URL is required")
		os.Exit(1)
	}

	slog.Info("starting legacy import",
		"sqlite", cfg.SQLitePath,
		"table", cfg.Table,
		"dry_run", cfg.DryRun,
	)

	start := time.Now()
	r, err := runImport(context.Background(), cfg)
	r.Duration = time.Since(start)
	if err != nil {
		r.Err = err
		slog.Error("import failed", "error", err)
	}
	printReport(os.Stdout, &r)
	if err != nil {
		os.Exit(1)
	}
}

// loadConfig reads configuration from environment variables.
func loadConfig() config {
	return config{
		SQLitePath:  envOr("SQLITE_PATH", "audit.sqlite"),
		DatabaseURL: envOr("DATABASE_URL", ""),
		Table:       envOr("LEGACY_TABLE", "audit_logs"),
		DryRun:      os.Getenv("DRY_RUN") == "true" || os.Getenv("DRY_RUN") == "1",
	}
}

// runImport reads every legacy row and inserts the ones not yet imported in a
// single transaction.
func runImport(ctx context.Context, cfg config) (report, error) {
	r := report{
		Source: cfg.SQLitePath,
		Target: sanitizeURL(cfg.DatabaseURL),
		DryRun: cfg.DryRun,
	}

	lite, err := sql.Open("sqlite", cfg.SQLitePath+"?mode=ro")
	if err != nil {
		return r, fmt.Errorf("open sqlite: %w", err)
	}
	defer lite.Close()

	rows, err := readLegacy(ctx, lite, cfg.Table)
	if err != nil {
		return r, fmt.Errorf("read legacy rows: %w", err)
	}
	r.RowsRead = len(rows)
	r.Organizations = countOrganizations(rows)
	slog.Info("read legacy rows from sqlite", "count", r.RowsRead, "organizations", r.Organizations)

	if cfg.DryRun {
		slog.Info("dry run, skipping PostgreSQL writes")
		return r, nil
	}

	conn, err := pgx.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return r, fmt.Errorf("connect postgres: %w", err)
	}
	defer conn.Close(ctx)

	tx, err := conn.Begin(ctx)
	if err != nil {
		return r, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // best-effort rollback after commit.

	imported, err := importedLegacyIDs(ctx, tx)
	if err != nil {
		return r, fmt.Errorf("load imported ids: %w", err)
	}

	pending := make([]legacyRow, 0, len(rows))
	for _, row := range rows {
		if imported[row.LegacyID] {
			r.RowsSkipped++
			continue
		}
		pending = append(pending, row)
	}

	inserted, err := insertLegacy(ctx, tx, pending)
	if err != nil {
		return r, fmt.Errorf("insert legacy rows: %w", err)
	}
	r.RowsInserted = inserted

	if err := tx.QueryRow(ctx, `SELECT count(*) FROM ledger_entries WHERE hash IS NULL`).Scan(&r.Unchained); err != nil {
		return r, fmt.Errorf("count unchained rows: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return r, fmt.Errorf("commit: %w", err)
	}

	slog.Info("legacy import committed", "inserted", r.RowsInserted, "skipped", r.RowsSkipped)

	return r, nil
}
