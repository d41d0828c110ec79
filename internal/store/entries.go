package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/persistorai/ledger/internal/models"
)

const defaultListLimit = 100

// entryColumns lists the columns selected for ledger entry queries.
const entryColumns = `id, seq, organization_id, actor_id, actor_role, event_name,
	target_type, target_id, category, severity, outcome, metadata,
	created_at, prev_hash, hash`

// scanEntry scans a single row into a models.Entry. Legacy rows have NULL
// seq and hash.
func scanEntry(scan func(dest ...any) error) (*models.Entry, error) {
	var e models.Entry
	var seq *int64
	var hash *string
	var meta []byte

	err := scan(
		&e.ID,
		&seq,
		&e.OrganizationID,
		&e.ActorID,
		&e.ActorRole,
		&e.EventName,
		&e.TargetType,
		&e.TargetID,
		&e.Category,
		&e.Severity,
		&e.Outcome,
		&meta,
		&e.CreatedAt,
		&e.PrevHash,
		&hash,
	)
	if err != nil {
		return nil, err
	}

	if seq != nil {
		e.Seq = *seq
	}

	if hash != nil {
		e.Hash = *hash
	}

	e.CreatedAt = e.CreatedAt.UTC()

	e.Metadata, err = decodeMetadata(meta)
	if err != nil {
		return nil, err
	}

	return &e, nil
}

// decodeMetadata keeps numbers as json.Number so large integers survive
// the round trip exactly.
func decodeMetadata(raw []byte) (map[string]any, error) {
	meta := map[string]any{}
	if len(raw) == 0 {
		return meta, nil
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	if err := dec.Decode(&meta); err != nil {
		return nil, fmt.Errorf("unmarshalling entry metadata: %w", err)
	}

	return meta, nil
}

// queryEntries executes a query and scans every row.
func queryEntries(ctx context.Context, q querier, query string, args ...any) ([]models.Entry, error) {
	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying ledger entries: %w", err)
	}
	defer rows.Close()

	entries := make([]models.Entry, 0)
	for rows.Next() {
		e, err := scanEntry(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scanning ledger entry: %w", err)
		}
		entries = append(entries, *e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating ledger entries: %w", err)
	}

	return entries, nil
}

// queryEntry returns the single row a query selects, or nil.
func queryEntry(ctx context.Context, q querier, query string, args ...any) (*models.Entry, error) {
	entries, err := queryEntries(ctx, q, query, args...)
	if err != nil || len(entries) == 0 {
		return nil, err
	}

	return &entries[0], nil
}

// buildEntryFilter builds the WHERE clause and args for ListEntries.
// $1 is always the organization.
func buildEntryFilter(orgID string, opts models.ListOpts) (where string, args []any, nextArg int) {
	conditions := []string{"organization_id = $1"}
	args = []any{orgID}
	argIdx := 2

	add := func(cond string, v any) {
		conditions = append(conditions, cond+" $"+strconv.Itoa(argIdx))
		args = append(args, v)
		argIdx++
	}

	if opts.Category != "" {
		add("category =", opts.Category)
	}
	if opts.Severity != "" {
		add("severity =", opts.Severity)
	}
	if opts.Outcome != "" {
		add("outcome =", opts.Outcome)
	}
	if opts.TargetType != "" {
		add("target_type =", opts.TargetType)
	}
	if opts.TargetID != "" {
		add("target_id =", opts.TargetID)
	}
	if opts.Since != nil {
		add("created_at >=", *opts.Since)
	}
	if opts.Until != nil {
		add("created_at <", *opts.Until)
	}

	return "WHERE " + strings.Join(conditions, " AND "), args, argIdx
}

// entryOrder returns the ORDER BY clause for a listing. Unchained legacy
// rows sort before chained ones in ascending order.
func entryOrder(opts models.ListOpts) string {
	if opts.Descending() {
		return "ORDER BY seq DESC NULLS LAST, id DESC"
	}

	return "ORDER BY seq ASC NULLS FIRST, id ASC"
}

// ListEntries implements ledger.Store.
func (s *Store) ListEntries(ctx context.Context, orgID string, opts models.ListOpts) ([]models.Entry, bool, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	tx, err := s.beginReadTx(ctx)
	if err != nil {
		return nil, false, err
	}
	defer tx.Rollback(ctx) //nolint:errcheck // best-effort rollback on early return.

	where, args, argIdx := buildEntryFilter(orgID, opts)

	limit := opts.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}

	query := fmt.Sprintf("SELECT %s FROM ledger_entries %s %s LIMIT $%d OFFSET $%d",
		entryColumns, where, entryOrder(opts), argIdx, argIdx+1)
	args = append(args, limit+1, opts.Offset)

	entries, err := queryEntries(ctx, tx, query, args...)
	if err != nil {
		return nil, false, err
	}

	hasMore := len(entries) > limit
	if hasMore {
		entries = entries[:limit]
	}

	return entries, hasMore, nil
}

// EntryBefore implements ledger.ChainReader.
func (s *Store) EntryBefore(ctx context.Context, orgID string, seq int64) (*models.Entry, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	return queryEntry(ctx, s.Pool, `SELECT `+entryColumns+` FROM ledger_entries
		WHERE organization_id = $1 AND hash IS NOT NULL AND seq < $2
		ORDER BY seq DESC LIMIT 1`, orgID, seq)
}

// ChainPage implements ledger.ChainReader.
func (s *Store) ChainPage(ctx context.Context, orgID string, afterSeq, toSeq int64, limit int) ([]models.Entry, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	return queryEntries(ctx, s.Pool, `SELECT `+entryColumns+` FROM ledger_entries
		WHERE organization_id = $1 AND hash IS NOT NULL AND seq > $2
		  AND ($3::bigint <= 0 OR seq <= $3::bigint)
		ORDER BY seq ASC LIMIT $4`, orgID, afterSeq, toSeq, limit)
}

// ScanWindow implements ledger.WindowReader.
func (s *Store) ScanWindow(ctx context.Context, firstSeq, lastSeq int64, fn func(seq int64, hash string) error) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	return scanWindow(ctx, s.Pool, firstSeq, lastSeq, fn)
}

func scanWindow(ctx context.Context, q querier, firstSeq, lastSeq int64, fn func(seq int64, hash string) error) error {
	rows, err := q.Query(ctx, `SELECT seq, hash FROM ledger_entries
		WHERE hash IS NOT NULL AND seq BETWEEN $1 AND $2
		ORDER BY seq ASC`, firstSeq, lastSeq)
	if err != nil {
		return fmt.Errorf("querying anchor window: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var seq int64
		var hash string

		if err := rows.Scan(&seq, &hash); err != nil {
			return fmt.Errorf("scanning anchor window: %w", err)
		}

		if err := fn(seq, hash); err != nil {
			return err
		}
	}

	return rows.Err()
}
