package store

import (
	"context"
	"fmt"

	"github.com/persistorai/ledger/internal/models"
)

const defaultRootLimit = 100

// rootColumns lists the columns selected for root queries.
const rootColumns = `id, first_seq, last_seq, root_hash, prev_root_hash, entry_count, created_at`

func scanRoot(scan func(dest ...any) error) (*models.Root, error) {
	var r models.Root
	var prev *string

	if err := scan(&r.ID, &r.FirstSeq, &r.LastSeq, &r.RootHash, &prev, &r.EntryCount, &r.CreatedAt); err != nil {
		return nil, err
	}

	if prev != nil {
		r.PrevRootHash = *prev
	}

	r.CreatedAt = r.CreatedAt.UTC()

	return &r, nil
}

// queryRoot returns the single root a query selects, or nil.
func queryRoot(ctx context.Context, q querier, query string, args ...any) (*models.Root, error) {
	r, err := scanRoot(q.QueryRow(ctx, query, args...).Scan)
	if noRows(err) {
		return nil, nil
	}

	if err != nil {
		return nil, fmt.Errorf("querying ledger root: %w", err)
	}

	return r, nil
}

// ListRoots implements ledger.RootStore. Zero bounds are open.
func (s *Store) ListRoots(ctx context.Context, rng models.RootRange) ([]models.Root, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	limit := rng.Limit
	if limit <= 0 {
		limit = defaultRootLimit
	}

	rows, err := s.Pool.Query(ctx, `SELECT `+rootColumns+` FROM ledger_roots
		WHERE ($1::bigint <= 0 OR last_seq >= $1::bigint)
		  AND ($2::bigint <= 0 OR first_seq <= $2::bigint)
		ORDER BY first_seq ASC LIMIT $3`, rng.FromSeq, rng.ToSeq, limit)
	if err != nil {
		return nil, fmt.Errorf("querying ledger roots: %w", err)
	}
	defer rows.Close()

	roots := make([]models.Root, 0)
	for rows.Next() {
		r, err := scanRoot(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scanning ledger root: %w", err)
		}
		roots = append(roots, *r)
	}

	return roots, rows.Err()
}

// GetRoot implements ledger.RootStore.
func (s *Store) GetRoot(ctx context.Context, id int64) (*models.Root, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	r, err := queryRoot(ctx, s.Pool, `SELECT `+rootColumns+` FROM ledger_roots WHERE id = $1`, id)
	if err != nil {
		return nil, err
	}

	if r == nil {
		return nil, models.ErrRootNotFound
	}

	return r, nil
}

// RootEndingAt implements ledger.RootStore.
func (s *Store) RootEndingAt(ctx context.Context, lastSeq int64) (*models.Root, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	return queryRoot(ctx, s.Pool, `SELECT `+rootColumns+` FROM ledger_roots WHERE last_seq = $1`, lastSeq)
}
