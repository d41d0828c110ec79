package ledger

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/persistorai/ledger/internal/metrics"
	"github.com/persistorai/ledger/internal/models"
)

// DefaultAnchorSettle is how old an entry must be before a root may cover it.
// Sequence numbers are reserved before commit, so a fresh maximum can sit
// above numbers still held by open transactions.
const DefaultAnchorSettle = 30 * time.Second

// WindowReader streams the chained entries of a global sequence window,
// across all organizations, ascending by seq.
type WindowReader interface {
	ScanWindow(ctx context.Context, firstSeq, lastSeq int64, fn func(seq int64, hash string) error) error
}

// AnchorTx is a checkpoint transaction.
type AnchorTx interface {
	WindowReader

	// LockAnchor serializes checkpoints. Appends never take this lock.
	LockAnchor(ctx context.Context) error
	LatestRoot(ctx context.Context) (*models.Root, error)

	// MaxSettledSeq returns the highest seq of an entry created at or before
	// cutoff, or 0.
	MaxSettledSeq(ctx context.Context, cutoff time.Time) (int64, error)
	InsertRoot(ctx context.Context, r *models.Root) error
}

// RootStore reads committed roots.
type RootStore interface {
	WindowReader
	ListRoots(ctx context.Context, rng models.RootRange) ([]models.Root, error)
	GetRoot(ctx context.Context, id int64) (*models.Root, error)

	// RootEndingAt returns the root whose LastSeq is lastSeq, or nil.
	RootEndingAt(ctx context.Context, lastSeq int64) (*models.Root, error)
	WithinAnchorTx(ctx context.Context, fn func(ctx context.Context, tx AnchorTx) error) error
}

// RootVerification is the outcome of recomputing a stored root.
type RootVerification struct {
	Root       *models.Root `json:"root"`
	OK         bool         `json:"ok"`
	Reason     string       `json:"reason,omitempty"`
	Recomputed string       `json:"recomputed_hash"`
	EntryCount int64        `json:"entry_count"`
}

// rootHasher accumulates a window digest:
// sha256(prev_root_hash "\n" {seq ":" hash "\n"}... salt).
type rootHasher struct {
	h     hash.Hash
	count int64
}

func newRootHasher(prevRootHash string) *rootHasher {
	h := sha256.New()
	h.Write([]byte(prevRootHash))
	h.Write([]byte{'\n'})

	return &rootHasher{h: h}
}

func (r *rootHasher) add(seq int64, entryHash string) error {
	r.h.Write(strconv.AppendInt(nil, seq, 10))
	r.h.Write([]byte{':'})
	r.h.Write([]byte(entryHash))
	r.h.Write([]byte{'\n'})
	r.count++

	return nil
}

func (r *rootHasher) sum() string {
	r.h.Write([]byte(HashSalt))
	return hex.EncodeToString(r.h.Sum(nil))
}

// Anchorer creates and checks roots.
type Anchorer struct {
	store  RootStore
	settle time.Duration
	log    *logrus.Logger
	now    func() time.Time
}

// NewAnchorer creates an Anchorer. settle <= 0 selects DefaultAnchorSettle.
func NewAnchorer(store RootStore, settle time.Duration, log *logrus.Logger, now func() time.Time) *Anchorer {
	if settle <= 0 {
		settle = DefaultAnchorSettle
	}

	if now == nil {
		now = time.Now
	}

	return &Anchorer{store: store, settle: settle, log: log, now: now}
}

// Checkpoint covers every settled entry since the latest root with a new
// root. When nothing new has settled it writes nothing and returns the latest
// root (nil on an empty ledger) with created false.
func (a *Anchorer) Checkpoint(ctx context.Context) (root *models.Root, created bool, err error) {
	err = a.store.WithinAnchorTx(ctx, func(ctx context.Context, tx AnchorTx) error {
		if err := tx.LockAnchor(ctx); err != nil {
			return fmt.Errorf("locking anchor: %w", err)
		}

		prev, err := tx.LatestRoot(ctx)
		if err != nil {
			return fmt.Errorf("reading latest root: %w", err)
		}

		first, prevHash := int64(1), ""
		if prev != nil {
			first, prevHash = prev.LastSeq+1, prev.RootHash
		}

		now := a.now()

		last, err := tx.MaxSettledSeq(ctx, now.Add(-a.settle))
		if err != nil {
			return fmt.Errorf("reading settled seq: %w", err)
		}

		if last < first {
			root = prev
			return nil
		}

		h := newRootHasher(prevHash)
		if err := tx.ScanWindow(ctx, first, last, h.add); err != nil {
			return fmt.Errorf("scanning window %d-%d: %w", first, last, err)
		}

		root = &models.Root{
			FirstSeq:     first,
			LastSeq:      last,
			RootHash:     h.sum(),
			PrevRootHash: prevHash,
			EntryCount:   h.count,
			CreatedAt:    NormalizeTime(now),
		}

		if err := tx.InsertRoot(ctx, root); err != nil {
			return fmt.Errorf("inserting root: %w", err)
		}

		created = true

		return nil
	})
	if err != nil {
		metrics.Checkpoints.WithLabelValues("error").Inc()
		return nil, false, err
	}

	if !created {
		metrics.Checkpoints.WithLabelValues("noop").Inc()
		return root, false, nil
	}

	metrics.Checkpoints.WithLabelValues("created").Inc()
	metrics.LastAnchoredSeq.Set(float64(root.LastSeq))

	a.log.WithFields(logrus.Fields{
		"root_id":     root.ID,
		"first_seq":   root.FirstSeq,
		"last_seq":    root.LastSeq,
		"entry_count": root.EntryCount,
	}).Info("ledger.checkpoint")

	return root, true, nil
}

// VerifyRoot recomputes a stored root from the entries it covers and checks
// its link to the preceding root.
func (a *Anchorer) VerifyRoot(ctx context.Context, id int64) (*RootVerification, error) {
	root, err := a.store.GetRoot(ctx, id)
	if err != nil {
		return nil, err
	}

	res := &RootVerification{Root: root, OK: true}

	if root.FirstSeq > 1 {
		pred, err := a.store.RootEndingAt(ctx, root.FirstSeq-1)
		if err != nil {
			return nil, fmt.Errorf("reading preceding root: %w", err)
		}

		switch {
		case pred == nil:
			res.OK, res.Reason = false, "no root ends at the preceding seq"
		case pred.RootHash != root.PrevRootHash:
			res.OK, res.Reason = false, "prev_root_hash does not match the preceding root"
		}
	} else if root.PrevRootHash != "" {
		res.OK, res.Reason = false, "first root carries a prev_root_hash"
	}

	h := newRootHasher(root.PrevRootHash)
	if err := a.store.ScanWindow(ctx, root.FirstSeq, root.LastSeq, h.add); err != nil {
		return nil, fmt.Errorf("scanning window %d-%d: %w", root.FirstSeq, root.LastSeq, err)
	}

	res.Recomputed = h.sum()
	res.EntryCount = h.count

	if res.OK && (res.Recomputed != root.RootHash || res.EntryCount != root.EntryCount) {
		res.OK, res.Reason = false, "root_hash does not match the covered entries"
	}

	if !res.OK {
		a.log.WithFields(logrus.Fields{
			"root_id": root.ID,
			"reason":  res.Reason,
		}).Error("ledger.root_mismatch")
	}

	return res, nil
}

// Roots lists roots overlapping rng, ascending by first_seq.
func (a *Anchorer) Roots(ctx context.Context, rng models.RootRange) ([]models.Root, error) {
	if rng.FromSeq > 0 && rng.ToSeq > 0 && rng.FromSeq > rng.ToSeq {
		return nil, models.ErrInvalidSeqRange
	}

	return a.store.ListRoots(ctx, rng)
}
