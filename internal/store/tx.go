package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/persistorai/ledger/internal/domain"
	"github.com/persistorai/ledger/internal/ledger"
	"github.com/persistorai/ledger/internal/models"
)

// Tx is one PostgreSQL transaction. It serves domain units of work,
// checkpoints and the backfill.
type Tx struct {
	tx       pgx.Tx
	obs      ledger.Observer
	backfill bool
}

func (t *Tx) advisoryLock(ctx context.Context, class int32, key string) error {
	if _, err := t.tx.Exec(ctx, "SELECT pg_advisory_xact_lock($1, hashtext($2))", class, key); err != nil {
		return fmt.Errorf("acquiring advisory lock %d: %w", class, err)
	}

	return nil
}

// NextSeq implements ledger.Sequencer. nextval is never rolled back, so a
// failed transaction leaves a gap.
func (t *Tx) NextSeq(ctx context.Context) (int64, error) {
	var seq int64
	if err := t.tx.QueryRow(ctx, "SELECT nextval('ledger_seq')").Scan(&seq); err != nil {
		return 0, fmt.Errorf("%w: %w", models.ErrSequenceAllocation, err)
	}

	return seq, nil
}

// LockChain implements ledger.Tx.
func (t *Tx) LockChain(ctx context.Context, orgID string) error {
	return t.advisoryLock(ctx, lockClassChain, orgID)
}

// LatestEntry implements ledger.Tx. Under READ COMMITTED the query runs
// after LockChain returns and so sees the previous holder's committed tail.
func (t *Tx) LatestEntry(ctx context.Context, orgID string) (*models.Entry, error) {
	return queryEntry(ctx, t.tx, `SELECT `+entryColumns+` FROM ledger_entries
		WHERE organization_id = $1 AND hash IS NOT NULL
		ORDER BY seq DESC LIMIT 1`, orgID)
}

// InsertEntry implements ledger.Tx.
func (t *Tx) InsertEntry(ctx context.Context, e *models.Entry) error {
	meta, err := json.Marshal(e.Metadata)
	if err != nil {
		return fmt.Errorf("marshaling entry metadata: %w", err)
	}

	err = t.tx.QueryRow(ctx, `
		INSERT INTO ledger_entries (seq, organization_id, actor_id, actor_role, event_name,
			target_type, target_id, category, severity, outcome, metadata, created_at, prev_hash, hash)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING id`,
		e.Seq, e.OrganizationID, e.ActorID, e.ActorRole, e.EventName,
		e.TargetType, e.TargetID, e.Category, e.Severity, e.Outcome, meta, e.CreatedAt, e.PrevHash, e.Hash,
	).Scan(&e.ID)
	if err != nil {
		return fmt.Errorf("inserting ledger entry: %w", mapPgError(err))
	}

	return nil
}

func (t *Tx) entryForUpdate(ctx context.Context, id int64) (*models.Entry, error) {
	e, err := queryEntry(ctx, t.tx, `SELECT `+entryColumns+` FROM ledger_entries WHERE id = $1 FOR UPDATE`, id)
	if err != nil {
		return nil, err
	}

	if e == nil {
		return nil, fmt.Errorf("ledger entry %d: %w", id, models.ErrNotFound)
	}

	return e, nil
}

// UpdateEntry writes chain and classification fields onto the row with
// e.ID. The guard trigger enforces the same rule as CheckWrite.
func (t *Tx) UpdateEntry(ctx context.Context, e *models.Entry) error {
	stored, err := t.entryForUpdate(ctx, e.ID)
	if err != nil {
		return err
	}

	if err := ledger.CheckWrite(ledger.WriteUpdate, stored, t.backfill); err != nil {
		return err
	}

	meta, err := json.Marshal(e.Metadata)
	if err != nil {
		return fmt.Errorf("marshaling entry metadata: %w", err)
	}

	_, err = t.tx.Exec(ctx, `
		UPDATE ledger_entries
		SET seq = $2, prev_hash = $3, hash = $4, category = $5, severity = $6,
			outcome = $7, metadata = $8, created_at = $9
		WHERE id = $1`,
		e.ID, e.Seq, e.PrevHash, e.Hash, e.Category, e.Severity, e.Outcome, meta, e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("updating ledger entry %d: %w", e.ID, mapPgError(err))
	}

	return nil
}

// DeleteEntry removes the entry with id, which the guard always refuses.
func (t *Tx) DeleteEntry(ctx context.Context, id int64) error {
	stored, err := t.entryForUpdate(ctx, id)
	if err != nil {
		return err
	}

	if err := ledger.CheckWrite(ledger.WriteDelete, stored, t.backfill); err != nil {
		return err
	}

	if _, err := t.tx.Exec(ctx, "DELETE FROM ledger_entries WHERE id = $1", id); err != nil {
		return fmt.Errorf("deleting ledger entry %d: %w", id, mapPgError(err))
	}

	return nil
}

// LegacyEntries implements ledger.BackfillTx.
func (t *Tx) LegacyEntries(ctx context.Context) ([]models.Entry, error) {
	return queryEntries(ctx, t.tx, `SELECT `+entryColumns+` FROM ledger_entries
		WHERE hash IS NULL ORDER BY created_at ASC, id ASC FOR UPDATE`)
}

// LockAnchor implements ledger.AnchorTx.
func (t *Tx) LockAnchor(ctx context.Context) error {
	return t.advisoryLock(ctx, lockClassAnchor, "")
}

// LatestRoot implements ledger.AnchorTx.
func (t *Tx) LatestRoot(ctx context.Context) (*models.Root, error) {
	return queryRoot(ctx, t.tx, `SELECT `+rootColumns+` FROM ledger_roots ORDER BY last_seq DESC LIMIT 1`)
}

// MaxSettledSeq implements ledger.AnchorTx.
func (t *Tx) MaxSettledSeq(ctx context.Context, cutoff time.Time) (int64, error) {
	var highest int64

	err := t.tx.QueryRow(ctx, `SELECT COALESCE(MAX(seq), 0) FROM ledger_entries
		WHERE hash IS NOT NULL AND created_at <= $1`, cutoff).Scan(&highest)
	if err != nil {
		return 0, fmt.Errorf("reading settled seq: %w", err)
	}

	return highest, nil
}

// InsertRoot implements ledger.AnchorTx.
func (t *Tx) InsertRoot(ctx context.Context, r *models.Root) error {
	var prev *string
	if r.PrevRootHash != "" {
		prev = &r.PrevRootHash
	}

	err := t.tx.QueryRow(ctx, `
		INSERT INTO ledger_roots (first_seq, last_seq, root_hash, prev_root_hash, entry_count, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`,
		r.FirstSeq, r.LastSeq, r.RootHash, prev, r.EntryCount, r.CreatedAt,
	).Scan(&r.ID)
	if err != nil {
		return fmt.Errorf("inserting ledger root: %w", mapPgError(err))
	}

	return nil
}

// ScanWindow implements ledger.WindowReader inside the checkpoint transaction.
func (t *Tx) ScanWindow(ctx context.Context, firstSeq, lastSeq int64, fn func(seq int64, hash string) error) error {
	return scanWindow(ctx, t.tx, firstSeq, lastSeq, fn)
}

// noRows reports whether a QueryRow found nothing.
func noRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

var (
	_ domain.UnitOfWork = (*Tx)(nil)
	_ ledger.AnchorTx   = (*Tx)(nil)
	_ ledger.BackfillTx = (*Tx)(nil)
)
