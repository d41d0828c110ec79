package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/persistorai/ledger/internal/metrics"
	"github.com/persistorai/ledger/internal/models"
)

// Sequencer hands out strictly increasing global sequence numbers. Numbers
// reserved by aborted transactions are not reused.
type Sequencer interface {
	NextSeq(ctx context.Context) (int64, error)
}

// Tx is the slice of a backend transaction the entry writer needs. All calls
// on one Tx happen inside a single storage transaction.
type Tx interface {
	Sequencer

	// LockChain blocks until the caller holds the organization's tail lock.
	// The lock is released when the transaction ends.
	LockChain(ctx context.Context, orgID string) error

	// LatestEntry returns the organization's chained entry with the highest
	// seq, or nil when the organization has none.
	LatestEntry(ctx context.Context, orgID string) (*models.Entry, error)

	// InsertEntry persists a fully chained entry and sets its ID.
	InsertEntry(ctx context.Context, e *models.Entry) error
}

// Writer appends entries to per-organization chains.
type Writer struct {
	log *logrus.Logger
	now func() time.Time
}

// NewWriter creates a Writer. A nil clock means time.Now.
func NewWriter(log *logrus.Logger, now func() time.Time) *Writer {
	if now == nil {
		now = time.Now
	}

	return &Writer{log: log, now: now}
}

// Append writes one entry inside tx. Concurrent appends for the same
// organization serialize on the tail lock; other organizations proceed in
// parallel. Any error leaves nothing written and must abort tx.
func (w *Writer) Append(ctx context.Context, tx Tx, d models.Draft, path string) (*models.Entry, error) {
	if err := d.Validate(); err != nil {
		return nil, err
	}

	meta, err := NormalizeMetadata(d.Metadata)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", models.ErrHashComputation, err)
	}

	start := time.Now()

	if err := tx.LockChain(ctx, d.OrganizationID); err != nil {
		return nil, fmt.Errorf("locking chain: %w", err)
	}

	tail, err := tx.LatestEntry(ctx, d.OrganizationID)
	if err != nil {
		return nil, fmt.Errorf("reading chain tail: %w", err)
	}

	seq, err := tx.NextSeq(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", models.ErrSequenceAllocation, err)
	}

	classify(&d)

	e := &models.Entry{
		Seq:            seq,
		OrganizationID: d.OrganizationID,
		ActorID:        d.ActorID,
		ActorRole:      d.ActorRole,
		EventName:      d.EventName,
		TargetType:     d.TargetType,
		TargetID:       d.TargetID,
		Category:       d.Category,
		Severity:       d.Severity,
		Outcome:        d.Outcome,
		Metadata:       meta,
		CreatedAt:      NormalizeTime(w.now()),
	}

	if tail != nil {
		prev := tail.Hash
		e.PrevHash = &prev
	}

	e.Hash, err = ComputeHash(e.PrevHash, HashInputOf(e))
	if err != nil {
		return nil, err
	}

	if err := tx.InsertEntry(ctx, e); err != nil {
		return nil, fmt.Errorf("inserting entry: %w", err)
	}

	metrics.AppendDuration.Observe(time.Since(start).Seconds())
	metrics.EntriesAppended.WithLabelValues(path).Inc()

	w.log.WithFields(logrus.Fields{
		"organization_id": e.OrganizationID,
		"seq":             e.Seq,
		"event_name":      e.EventName,
		"path":            path,
	}).Debug("ledger.append")

	return e, nil
}
