package db

import (
	"context"
	"fmt"
	"strings"

	"github.com/persistorai/ledger/internal/db/migrations"
	"github.com/persistorai/ledger/internal/dbpool"
)

// SchemaVersion returns the number of embedded SQL migrations, which equals
// the schema version a fully migrated database reports. /ready compares it
// with the database's goose version.
func SchemaVersion() int {
	entries, err := migrations.FS.ReadDir(".")
	if err != nil {
		return 0
	}

	count := 0
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") {
			count++
		}
	}

	return count
}

// AppliedVersion returns the highest migration version goose has applied.
func AppliedVersion(ctx context.Context, pool *dbpool.Pool) (int64, error) {
	var v int64

	err := pool.QueryRow(ctx, "SELECT COALESCE(MAX(version_id), 0) FROM goose_db_version WHERE is_applied").Scan(&v)
	if err != nil {
		return 0, fmt.Errorf("reading schema version: %w", err)
	}

	return v, nil
}
