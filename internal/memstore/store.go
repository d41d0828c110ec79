// Package memstore is an in-memory ledger backend for tests and local
// development. It keeps the transactional behaviour the ledger depends on:
// per-organization tail locks held until commit, a global sequence that is
// not rolled back, staged writes that become visible only on commit, and the
// immutability guard on every entry write path.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/persistorai/ledger/internal/domain"
	"github.com/persistorai/ledger/internal/ledger"
	"github.com/persistorai/ledger/internal/models"
)

const defaultRootLimit = 100

// Options configures a Store.
type Options struct {
	// StartSeq is the first sequence number handed out. Zero means 1.
	StartSeq int64
}

// Store is an in-memory ledger and domain entity store.
type Store struct {
	mu sync.RWMutex

	seq    atomic.Int64
	nextID atomic.Int64
	locks  keyLocks

	entries  []*models.Entry
	roots    []*models.Root
	jobs     map[string]*models.Job
	controls map[string]*models.HazardControl
	evidence map[string]*models.Evidence
	exports  map[string]*models.Export
}

// New creates an empty Store.
func New(opts Options) *Store {
	s := &Store{
		locks:    keyLocks{locks: make(map[string]chan struct{})},
		jobs:     make(map[string]*models.Job),
		controls: make(map[string]*models.HazardControl),
		evidence: make(map[string]*models.Evidence),
		exports:  make(map[string]*models.Export),
	}

	if opts.StartSeq > 1 {
		s.seq.Store(opts.StartSeq - 1)
	}

	return s
}

// keyLocks hands out one context-aware mutex per key.
type keyLocks struct {
	mu    sync.Mutex
	locks map[string]chan struct{}
}

func (k *keyLocks) get(key string) chan struct{} {
	k.mu.Lock()
	defer k.mu.Unlock()

	ch, ok := k.locks[key]
	if !ok {
		ch = make(chan struct{}, 1)
		k.locks[key] = ch
	}

	return ch
}

// EntryBefore implements ledger.ChainReader.
func (s *Store) EntryBefore(_ context.Context, orgID string, seq int64) (*models.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var best *models.Entry
	for _, e := range s.entries {
		if e.OrganizationID != orgID || !e.Chained() || e.Seq >= seq {
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

// ChainPage implements ledger.ChainReader.
func (s *Store) ChainPage(_ context.Context, orgID string, afterSeq, toSeq int64, limit int) ([]models.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	page := make([]models.Entry, 0)
	for _, e := range sortedBySeq(s.entries) {
		if e.OrganizationID != orgID || !e.Chained() || e.Seq <= afterSeq {
			continue
		}

		if toSeq > 0 && e.Seq > toSeq {
			break
		}

		page = append(page, *e.Clone())
		if len(page) == limit {
			break
		}
	}

	return page, nil
}

// ListEntries implements ledger.Store. Unchained legacy rows sort before
// chained ones, by id.
func (s *Store) ListEntries(_ context.Context, orgID string, opts models.ListOpts) ([]models.Entry, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matched := make([]*models.Entry, 0)
	for _, e := range sortedBySeq(s.entries) {
		if e.OrganizationID == orgID && matches(e, opts) {
			matched = append(matched, e)
		}
	}

	if opts.Descending() {
		for i, j := 0, len(matched)-1; i < j; i, j = i+1, j-1 {
			matched[i], matched[j] = matched[j], matched[i]
		}
	}

	if opts.Offset >= len(matched) {
		return []models.Entry{}, false, nil
	}

	matched = matched[opts.Offset:]

	hasMore := false
	if opts.Limit > 0 && len(matched) > opts.Limit {
		matched = matched[:opts.Limit]
		hasMore = true
	}

	out := make([]models.Entry, len(matched))
	for i, e := range matched {
		out[i] = *e.Clone()
	}

	return out, hasMore, nil
}

func matches(e *models.Entry, opts models.ListOpts) bool {
	switch {
	case opts.Category != "" && e.Category != opts.Category,
		opts.Severity != "" && e.Severity != opts.Severity,
		opts.Outcome != "" && e.Outcome != opts.Outcome,
		opts.TargetType != "" && e.TargetType != opts.TargetType,
		opts.TargetID != "" && e.TargetID != opts.TargetID,
		opts.Since != nil && e.CreatedAt.Before(*opts.Since),
		opts.Until != nil && !e.CreatedAt.Before(*opts.Until):
		return false
	}

	return true
}

// ScanWindow implements ledger.WindowReader.
func (s *Store) ScanWindow(_ context.Context, firstSeq, lastSeq int64, fn func(seq int64, hash string) error) error {
	s.mu.RLock()
	window := windowOf(s.entries, firstSeq, lastSeq)
	s.mu.RUnlock()

	for _, e := range window {
		if err := fn(e.Seq, e.Hash); err != nil {
			return err
		}
	}

	return nil
}

// ListRoots implements ledger.RootStore.
func (s *Store) ListRoots(_ context.Context, rng models.RootRange) ([]models.Root, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	limit := rng.Limit
	if limit <= 0 {
		limit = defaultRootLimit
	}

	out := make([]models.Root, 0)
	for _, r := range s.roots {
		if rng.FromSeq > 0 && r.LastSeq < rng.FromSeq {
			continue
		}

		if rng.ToSeq > 0 && r.FirstSeq > rng.ToSeq {
			continue
		}

		out = append(out, *r)
		if len(out) == limit {
			break
		}
	}

	return out, nil
}

// GetRoot implements ledger.RootStore.
func (s *Store) GetRoot(_ context.Context, id int64) (*models.Root, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, r := range s.roots {
		if r.ID == id {
			c := *r
			return &c, nil
		}
	}

	return nil, models.ErrRootNotFound
}

// RootEndingAt implements ledger.RootStore.
func (s *Store) RootEndingAt(_ context.Context, lastSeq int64) (*models.Root, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, r := range s.roots {
		if r.LastSeq == lastSeq {
			c := *r
			return &c, nil
		}
	}

	return nil, nil
}

// UpdateEntry attempts to overwrite a persisted entry in its own
// transaction. Outside backfill this always fails the immutability guard.
func (s *Store) UpdateEntry(ctx context.Context, e *models.Entry) error {
	return s.withinTx(ctx, nil, func(ctx context.Context, tx *Tx) error {
		return tx.UpdateEntry(ctx, e)
	})
}

// DeleteEntry attempts to delete a persisted entry in its own transaction.
// It always fails the immutability guard.
func (s *Store) DeleteEntry(ctx context.Context, id int64) error {
	return s.withinTx(ctx, nil, func(ctx context.Context, tx *Tx) error {
		return tx.DeleteEntry(ctx, id)
	})
}

// SeedLegacy stores an unchained row as if written before chaining existed.
// Its seq, prev_hash and hash are cleared.
func (s *Store) SeedLegacy(e models.Entry) *models.Entry {
	c := e.Clone()
	c.ID = s.nextID.Add(1)
	c.Seq = 0
	c.PrevHash = nil
	c.Hash = ""

	s.mu.Lock()
	s.entries = append(s.entries, c)
	s.mu.Unlock()

	return c.Clone()
}

// Corrupt edits the committed entry at seq in place, bypassing the
// immutability guard. It exists for tamper-detection tests.
func (s *Store) Corrupt(seq int64, fn func(e *models.Entry)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, e := range s.entries {
		if e.Seq == seq && e.Chained() {
			fn(e)
			return nil
		}
	}

	return fmt.Errorf("seq %d: %w", seq, models.ErrNotFound)
}

// Entries returns every committed entry ordered by seq, legacy rows first.
func (s *Store) Entries() []models.Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.Entry, 0, len(s.entries))
	for _, e := range sortedBySeq(s.entries) {
		out = append(out, *e.Clone())
	}

	return out
}

// sortedBySeq returns entries ordered by seq with unchained rows first by id.
func sortedBySeq(entries []*models.Entry) []*models.Entry {
	out := make([]*models.Entry, len(entries))
	copy(out, entries)

	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Chained() != b.Chained() {
			return !a.Chained()
		}

		if a.Seq != b.Seq {
			return a.Seq < b.Seq
		}

		return a.ID < b.ID
	})

	return out
}

func windowOf(entries []*models.Entry, firstSeq, lastSeq int64) []*models.Entry {
	out := make([]*models.Entry, 0)
	for _, e := range sortedBySeq(entries) {
		if e.Chained() && e.Seq >= firstSeq && e.Seq <= lastSeq {
			out = append(out, e)
		}
	}

	return out
}

var (
	_ ledger.Store                     = (*Store)(nil)
	_ ledger.Runner[domain.UnitOfWork] = (*Store)(nil)
)
