// Package store is the PostgreSQL backend for the audit ledger and the
// entities it watches.
//
// Store serves reads straight from the pool and opens the three kinds of
// transaction the ledger needs: domain units of work, checkpoints and the
// backfill. Serialization uses transaction-scoped advisory locks so nothing
// outlives a rolled-back transaction.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/sirupsen/logrus"

	"github.com/persistorai/ledger/internal/dbpool"
	"github.com/persistorai/ledger/internal/domain"
	"github.com/persistorai/ledger/internal/ledger"
	"github.com/persistorai/ledger/internal/models"
)

const defaultQueryTimeout = 30 * time.Second

// Advisory lock classes. The second key is hashtext of the organization for
// chain locks and zero otherwise.
const (
	lockClassChain    int32 = 4201
	lockClassAnchor   int32 = 4202
	lockClassBackfill int32 = 4203
)

// immutableSQLState is raised by the ledger_entries guard trigger.
const immutableSQLState = "LD001"

// Base contains shared dependencies for the store.
type Base struct {
	Pool *dbpool.Pool
	Log  *logrus.Logger
}

// querier is satisfied by both the pool and a pgx.Tx.
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// withTimeout creates a context with the default query timeout.
func withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, defaultQueryTimeout)
}

// beginTx starts a read-write transaction.
func (b *Base) beginTx(ctx context.Context) (pgx.Tx, error) {
	tx, err := b.Pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}

	return tx, nil
}

// beginReadTx starts a read-only transaction.
func (b *Base) beginReadTx(ctx context.Context) (pgx.Tx, error) {
	tx, err := b.Pool.BeginTx(ctx, pgx.TxOptions{AccessMode: pgx.ReadOnly})
	if err != nil {
		return nil, fmt.Errorf("beginning read transaction: %w", err)
	}

	return tx, nil
}

// mapPgError translates database errors the ledger has a sentinel for.
func mapPgError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == immutableSQLState {
		return fmt.Errorf("%w: %s", models.ErrImmutableRecord, pgErr.Message)
	}

	return err
}

// Store implements ledger.Store and runs domain units of work.
type Store struct {
	Base
}

// New creates a Store.
func New(base Base) *Store {
	if base.Log == nil {
		base.Log = logrus.StandardLogger()
	}

	return &Store{Base: base}
}

// WithinTx implements ledger.Runner for domain units of work. fn's error, or
// a failed commit, rolls back the business rows and their entries together.
func (s *Store) WithinTx(ctx context.Context, obs ledger.Observer, fn func(ctx context.Context, tx domain.UnitOfWork) error) error {
	return s.withinTx(ctx, obs, false, func(ctx context.Context, tx *Tx) error {
		return fn(ctx, tx)
	})
}

// WithinAnchorTx implements ledger.RootStore.
func (s *Store) WithinAnchorTx(ctx context.Context, fn func(ctx context.Context, tx ledger.AnchorTx) error) error {
	return s.withinTx(ctx, nil, false, func(ctx context.Context, tx *Tx) error {
		return fn(ctx, tx)
	})
}

// WithinBackfillTx implements ledger.Store. It enables the guard trigger's
// backfill exception for this transaction only.
func (s *Store) WithinBackfillTx(ctx context.Context, fn func(ctx context.Context, tx ledger.BackfillTx) error) error {
	return s.withinTx(ctx, nil, true, func(ctx context.Context, tx *Tx) error {
		if err := tx.advisoryLock(ctx, lockClassBackfill, ""); err != nil {
			return err
		}

		// Checkpoints wait for the backfill: it holds reserved seqs open far
		// longer than any append.
		if err := tx.LockAnchor(ctx); err != nil {
			return err
		}

		if _, err := tx.tx.Exec(ctx, "SELECT set_config('ledger.backfill', 'on', true)"); err != nil {
			return fmt.Errorf("enabling backfill mode: %w", err)
		}

		return fn(ctx, tx)
	})
}

func (s *Store) withinTx(ctx context.Context, obs ledger.Observer, backfill bool, fn func(ctx context.Context, tx *Tx) error) error {
	pgTx, err := s.beginTx(ctx)
	if err != nil {
		return err
	}
	defer pgTx.Rollback(ctx) //nolint:errcheck // no-op after commit.

	if obs == nil {
		obs = noopObserver{}
	}

	t := &Tx{tx: pgTx, obs: obs, backfill: backfill}
	if err := fn(ctx, t); err != nil {
		return err
	}

	if err := pgTx.Commit(ctx); err != nil {
		return fmt.Errorf("committing transaction: %w", mapPgError(err))
	}

	return nil
}

// UpdateEntry attempts to overwrite a persisted entry in its own
// transaction. Outside backfill the guard refuses it.
func (s *Store) UpdateEntry(ctx context.Context, e *models.Entry) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	return s.withinTx(ctx, nil, false, func(ctx context.Context, tx *Tx) error {
		return tx.UpdateEntry(ctx, e)
	})
}

// DeleteEntry attempts to remove a persisted entry in its own transaction.
func (s *Store) DeleteEntry(ctx context.Context, id int64) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	return s.withinTx(ctx, nil, false, func(ctx context.Context, tx *Tx) error {
		return tx.DeleteEntry(ctx, id)
	})
}

type noopObserver struct{}

func (noopObserver) Observe(context.Context, models.Mutation) error { return nil }

var (
	_ ledger.Store                     = (*Store)(nil)
	_ ledger.Runner[domain.UnitOfWork] = (*Store)(nil)
)
