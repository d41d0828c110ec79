package memstore

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/persistorai/ledger/internal/domain"
	"github.com/persistorai/ledger/internal/ledger"
	"github.com/persistorai/ledger/internal/models"
)

// Lock key prefixes.
const (
	lockChain    = "chain:"
	lockAnchor   = "anchor"
	lockBackfill = "backfill"
)

// staged holds a transaction's pending writes to one table. A nil value
// marks a delete.
type staged[T any] map[string]*T

// lookup resolves id against the staged writes first, then committed rows.
func lookup[T any](committed map[string]*T, st staged[T], id string) *T {
	if v, ok := st[id]; ok {
		return v
	}

	return committed[id]
}

func apply[T any](committed map[string]*T, st staged[T]) {
	for id, v := range st {
		if v == nil {
			delete(committed, id)
			continue
		}
		committed[id] = v
	}
}

// Tx is one in-memory transaction. Reads see committed state plus the
// transaction's own writes; nothing is visible to others until commit.
type Tx struct {
	s        *Store
	obs      ledger.Observer
	held     map[string]chan struct{}
	backfill bool

	inserted []*models.Entry
	updated  map[int64]*models.Entry
	roots    []*models.Root
	jobs     staged[models.Job]
	controls staged[models.HazardControl]
	evidence staged[models.Evidence]
	exports  staged[models.Export]
}

type noopObserver struct{}

func (noopObserver) Observe(context.Context, models.Mutation) error { return nil }

func (s *Store) begin(obs ledger.Observer) *Tx {
	if obs == nil {
		obs = noopObserver{}
	}

	return &Tx{
		s:        s,
		obs:      obs,
		held:     make(map[string]chan struct{}),
		updated:  make(map[int64]*models.Entry),
		jobs:     make(staged[models.Job]),
		controls: make(staged[models.HazardControl]),
		evidence: make(staged[models.Evidence]),
		exports:  make(staged[models.Export]),
	}
}

// WithinTx implements ledger.Runner for domain units of work.
func (s *Store) WithinTx(ctx context.Context, obs ledger.Observer, fn func(ctx context.Context, tx domain.UnitOfWork) error) error {
	return s.withinTx(ctx, obs, func(ctx context.Context, tx *Tx) error {
		return fn(ctx, tx)
	})
}

func (s *Store) withinTx(ctx context.Context, obs ledger.Observer, fn func(ctx context.Context, tx *Tx) error) error {
	t := s.begin(obs)
	defer t.release()

	if err := fn(ctx, t); err != nil {
		return err
	}

	t.commit()

	return nil
}

// WithinAnchorTx implements ledger.RootStore.
func (s *Store) WithinAnchorTx(ctx context.Context, fn func(ctx context.Context, tx ledger.AnchorTx) error) error {
	return s.withinTx(ctx, nil, func(ctx context.Context, tx *Tx) error {
		return fn(ctx, tx)
	})
}

// WithinBackfillTx implements ledger.Store. Only one backfill runs at a time.
func (s *Store) WithinBackfillTx(ctx context.Context, fn func(ctx context.Context, tx ledger.BackfillTx) error) error {
	return s.withinTx(ctx, nil, func(ctx context.Context, tx *Tx) error {
		if err := tx.lock(ctx, lockBackfill); err != nil {
			return err
		}

		if err := tx.lock(ctx, lockAnchor); err != nil {
			return err
		}

		tx.backfill = true

		return fn(ctx, tx)
	})
}

func (t *Tx) lock(ctx context.Context, key string) error {
	if _, ok := t.held[key]; ok {
		return nil
	}

	ch := t.s.locks.get(key)
	select {
	case ch <- struct{}{}:
		t.held[key] = ch
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for lock %s: %w", key, ctx.Err())
	}
}

func (t *Tx) release() {
	for key, ch := range t.held {
		<-ch
		delete(t.held, key)
	}
}

func (t *Tx) commit() {
	s := t.s

	s.mu.Lock()
	defer s.mu.Unlock()

	for i, e := range s.entries {
		if u, ok := t.updated[e.ID]; ok {
			s.entries[i] = u
		}
	}

	s.entries = append(s.entries, t.inserted...)
	s.roots = append(s.roots, t.roots...)

	apply(s.jobs, t.jobs)
	apply(s.controls, t.controls)
	apply(s.evidence, t.evidence)
	apply(s.exports, t.exports)
}

// entryView returns committed entries overlaid with this transaction's writes.
// Callers must hold s.mu for reading.
func (t *Tx) entryView() []*models.Entry {
	view := make([]*models.Entry, 0, len(t.s.entries)+len(t.inserted))
	for _, e := range t.s.entries {
		if u, ok := t.updated[e.ID]; ok {
			view = append(view, u)
			continue
		}
		view = append(view, e)
	}

	return append(view, t.inserted...)
}

func (t *Tx) findEntry(id int64) *models.Entry {
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()

	for _, e := range t.entryView() {
		if e.ID == id {
			return e
		}
	}

	return nil
}

// NextSeq implements ledger.Sequencer. Numbers are never handed back.
func (t *Tx) NextSeq(_ context.Context) (int64, error) {
	return t.s.seq.Add(1), nil
}

// LockChain implements ledger.Tx.
func (t *Tx) LockChain(ctx context.Context, orgID string) error {
	return t.lock(ctx, lockChain+orgID)
}

// LatestEntry implements ledger.Tx.
func (t *Tx) LatestEntry(_ context.Context, orgID string) (*models.Entry, error) {
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()

	var best *models.Entry
	for _, e := range t.entryView() {
		if e.OrganizationID != orgID || !e.Chained() {
			continue
		}

		if best == nil || e.Seq > best.Seq {
			best = e
		}
	}

	if best == nil {
		return nil, nil
	}

	return best.Clone(), nil
}

// InsertEntry implements ledger.Tx.
func (t *Tx) InsertEntry(_ context.Context, e *models.Entry) error {
	e.ID = t.s.nextID.Add(1)
	t.inserted = append(t.inserted, e.Clone())

	return nil
}

// UpdateEntry overwrites the entry with e.ID, subject to the immutability guard.
func (t *Tx) UpdateEntry(_ context.Context, e *models.Entry) error {
	stored := t.findEntry(e.ID)
	if stored == nil {
		return fmt.Errorf("ledger entry %d: %w", e.ID, models.ErrNotFound)
	}

	if err := ledger.CheckWrite(ledger.WriteUpdate, stored, t.backfill); err != nil {
		return err
	}

	t.updated[e.ID] = e.Clone()

	return nil
}

// DeleteEntry removes the entry with id, subject to the immutability guard.
func (t *Tx) DeleteEntry(_ context.Context, id int64) error {
	stored := t.findEntry(id)
	if stored == nil {
		return fmt.Errorf("ledger entry %d: %w", id, models.ErrNotFound)
	}

	return ledger.CheckWrite(ledger.WriteDelete, stored, t.backfill)
}

// LegacyEntries implements ledger.BackfillTx.
func (t *Tx) LegacyEntries(_ context.Context) ([]models.Entry, error) {
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()

	legacy := make([]models.Entry, 0)
	for _, e := range t.entryView() {
		if !e.Chained() {
			legacy = append(legacy, *e.Clone())
		}
	}

	sort.Slice(legacy, func(i, j int) bool {
		if !legacy[i].CreatedAt.Equal(legacy[j].CreatedAt) {
			return legacy[i].CreatedAt.Before(legacy[j].CreatedAt)
		}

		return legacy[i].ID < legacy[j].ID
	})

	return legacy, nil
}

// LockAnchor implements ledger.AnchorTx.
func (t *Tx) LockAnchor(ctx context.Context) error {
	return t.lock(ctx, lockAnchor)
}

// LatestRoot implements ledger.AnchorTx.
func (t *Tx) LatestRoot(_ context.Context) (*models.Root, error) {
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()

	if n := len(t.s.roots); n > 0 {
		r := *t.s.roots[n-1]
		return &r, nil
	}

	return nil, nil
}

// MaxSettledSeq implements ledger.AnchorTx.
func (t *Tx) MaxSettledSeq(_ context.Context, cutoff time.Time) (int64, error) {
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()

	var highest int64
	for _, e := range t.s.entries {
		if e.Chained() && !e.CreatedAt.After(cutoff) && e.Seq > highest {
			highest = e.Seq
		}
	}

	return highest, nil
}

// InsertRoot implements ledger.AnchorTx.
func (t *Tx) InsertRoot(_ context.Context, r *models.Root) error {
	t.s.mu.RLock()
	r.ID = int64(len(t.s.roots) + len(t.roots) + 1)
	t.s.mu.RUnlock()

	c := *r
	t.roots = append(t.roots, &c)

	return nil
}

// ScanWindow implements ledger.WindowReader over committed entries.
func (t *Tx) ScanWindow(ctx context.Context, firstSeq, lastSeq int64, fn func(seq int64, hash string) error) error {
	return t.s.ScanWindow(ctx, firstSeq, lastSeq, fn)
}

var (
	_ domain.UnitOfWork = (*Tx)(nil)
	_ ledger.AnchorTx   = (*Tx)(nil)
	_ ledger.BackfillTx = (*Tx)(nil)
)
