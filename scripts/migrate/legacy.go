package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
)

// legacyRow is one audit record from the pre-ledger SQLite store.
type legacyRow struct {
	LegacyID       string
	OrganizationID string
	ActorID        string
	ActorRole      string
	EventName      string
	TargetType     string
	TargetID       string
	Metadata       map[string]any
	CreatedAt      time.Time
}

// legacyIDKey marks imported rows so reruns skip them.
const legacyIDKey = "legacy_id"

var tableName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// readLegacy reads every row of table ordered by created_at, id. Rows missing
// an organization, event or target type are skipped with a warning.
func readLegacy(ctx context.Context, db *sql.DB, table string) ([]legacyRow, error) {
	if !tableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name: %q", table)
	}

	//nolint:gosec // table is validated above.
	q := fmt.Sprintf(`SELECT id, organization_id, actor_id, actor_role, event_name,
		target_type, target_id, metadata, created_at
		FROM %s ORDER BY created_at, id`, table)

	rows, err := db.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []legacyRow
	for rows.Next() {
		var id, created string
		var org, actorID, actorRole, event, targetType, targetID, meta sql.NullString
		if err := rows.Scan(&id, &org, &actorID, &actorRole, &event, &targetType, &targetID, &meta, &created); err != nil {
			return nil, fmt.Errorf("scan legacy row: %w", err)
		}

		if org.String == "" || event.String == "" || targetType.String == "" {
			slog.Warn("skipping incomplete legacy row", "id", id)
			continue
		}

		row := legacyRow{
			LegacyID:       id,
			OrganizationID: org.String,
			ActorID:        actorID.String,
			ActorRole:      actorRole.String,
			EventName:      event.String,
			TargetType:     targetType.String,
			TargetID:       targetID.String,
			Metadata:       parseMetadata(meta),
			CreatedAt:      parseTime(created),
		}
		row.Metadata[legacyIDKey] = id
		out = append(out, row)
	}

	return out, rows.Err()
}

// importedLegacyIDs returns the legacy ids already present in ledger_entries.
func importedLegacyIDs(ctx context.Context, tx pgx.Tx) (map[string]bool, error) {
	rows, err := tx.Query(ctx,
		`SELECT metadata->>'legacy_id' FROM ledger_entries WHERE metadata ? 'legacy_id'`)
	if err != nil {
		return nil, err
	}

	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		seen[id] = true
	}
	return seen, nil
}

// insertLegacy writes rows without seq, prev_hash or hash. Classification is
// left empty and assigned by the backfill.
func insertLegacy(ctx context.Context, tx pgx.Tx, rows []legacyRow) (int, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	n, err := tx.CopyFrom(ctx,
		pgx.Identifier{"ledger_entries"},
		[]string{"organization_id", "actor_id", "actor_role", "event_name", "target_type", "target_id", "metadata", "created_at"},
		pgx.CopyFromSlice(len(rows), func(i int) ([]any, error) {
			r := rows[i]
			meta, err := json.Marshal(r.Metadata)
			if err != nil {
				return nil, fmt.Errorf("encode metadata for %s: %w", r.LegacyID, err)
			}
			return []any{r.OrganizationID, r.ActorID, r.ActorRole, r.EventName, r.TargetType, r.TargetID, string(meta), r.CreatedAt}, nil
		}),
	)
	if err != nil {
		return 0, err
	}

	return int(n), nil
}

func countOrganizations(rows []legacyRow) int {
	orgs := make(map[string]struct{})
	for _, r := range rows {
		orgs[r.OrganizationID] = struct{}{}
	}
	return len(orgs)
}
