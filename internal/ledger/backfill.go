package ledger

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/persistorai/ledger/internal/metrics"
	"github.com/persistorai/ledger/internal/models"
)

// BackfillTx is the elevated transaction in which legacy rows receive their
// chain fields. Backends enable the backfill exception to the immutability
// guard only inside it.
type BackfillTx interface {
	Tx

	// LegacyEntries returns every unchained row ordered by created_at, id.
	LegacyEntries(ctx context.Context) ([]models.Entry, error)

	// UpdateEntry writes chain and classification fields onto the row with
	// e.ID, subject to CheckWrite in backfill mode.
	UpdateEntry(ctx context.Context, e *models.Entry) error
}

// BackfillReport summarizes a backfill run.
type BackfillReport struct {
	Entries       int   `json:"entries"`
	Organizations int   `json:"organizations"`
	FirstSeq      int64 `json:"first_seq,omitempty"`
	LastSeq       int64 `json:"last_seq,omitempty"`
}

// backfill chains legacy rows onto their organizations' existing tails in
// original created_at order. It runs as one transaction: either every legacy
// row is chained or none is.
func (l *Ledger) backfill(ctx context.Context, tx BackfillTx) (*BackfillReport, error) {
	legacy, err := tx.LegacyEntries(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading legacy entries: %w", err)
	}

	report := &BackfillReport{}
	orgs := make(map[string]struct{})

	for i := range legacy {
		e := &legacy[i]

		if err := l.chainLegacy(ctx, tx, e); err != nil {
			return nil, fmt.Errorf("backfilling entry %d: %w", e.ID, err)
		}

		orgs[e.OrganizationID] = struct{}{}
		report.Entries++
		if report.FirstSeq == 0 {
			report.FirstSeq = e.Seq
		}
		report.LastSeq = e.Seq
	}

	report.Organizations = len(orgs)

	return report, nil
}

func (l *Ledger) chainLegacy(ctx context.Context, tx BackfillTx, e *models.Entry) error {
	if err := tx.LockChain(ctx, e.OrganizationID); err != nil {
		return fmt.Errorf("locking chain: %w", err)
	}

	tail, err := tx.LatestEntry(ctx, e.OrganizationID)
	if err != nil {
		return fmt.Errorf("reading chain tail: %w", err)
	}

	seq, err := tx.NextSeq(ctx)
	if err != nil {
		return fmt.Errorf("%w: %w", models.ErrSequenceAllocation, err)
	}

	meta, err := NormalizeMetadata(e.Metadata)
	if err != nil {
		return fmt.Errorf("%w: %w", models.ErrHashComputation, err)
	}

	c := Classify(e.EventName)
	if e.Category == "" {
		e.Category = c.Category
	}

	if e.Severity == "" {
		e.Severity = c.Severity
	}

	if e.Outcome == "" {
		e.Outcome = c.Outcome
	}

	e.Seq = seq
	e.Metadata = meta
	e.CreatedAt = NormalizeTime(e.CreatedAt)
	e.PrevHash = nil

	if tail != nil {
		prev := tail.Hash
		e.PrevHash = &prev
	}

	e.Hash, err = ComputeHash(e.PrevHash, HashInputOf(e))
	if err != nil {
		return err
	}

	if err := tx.UpdateEntry(ctx, e); err != nil {
		return err
	}

	metrics.EntriesAppended.WithLabelValues(metrics.PathBackfill).Inc()

	l.log.WithFields(logrus.Fields{
		"entry_id":        e.ID,
		"organization_id": e.OrganizationID,
		"seq":             e.Seq,
	}).Debug("ledger.backfill_entry")

	return nil
}
