package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/persistorai/ledger/internal/metrics"
	"github.com/persistorai/ledger/internal/models"
)

// DefaultPageSize is the number of entries the verifier reads per round trip.
const DefaultPageSize = 500

// Mismatch reasons reported by the verifier.
const (
	ReasonPrevHashMismatch = "prev_hash does not match the preceding entry"
	ReasonHashMismatch     = "stored hash does not match recomputed hash"
)

// ChainReader reads one organization's committed chain.
type ChainReader interface {
	// EntryBefore returns the organization's chained entry with the highest
	// seq below seq, or nil.
	EntryBefore(ctx context.Context, orgID string, seq int64) (*models.Entry, error)

	// ChainPage returns up to limit chained entries with afterSeq < seq and,
	// when toSeq > 0, seq <= toSeq, ascending by seq.
	ChainPage(ctx context.Context, orgID string, afterSeq, toSeq int64, limit int) ([]models.Entry, error)
}

// Verifier recomputes an organization's chain and reports the first break.
type Verifier struct {
	reader   ChainReader
	pageSize int
	log      *logrus.Logger
	now      func() time.Time
}

// NewVerifier creates a Verifier. pageSize <= 0 selects DefaultPageSize.
func NewVerifier(reader ChainReader, pageSize int, log *logrus.Logger) *Verifier {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}

	return &Verifier{reader: reader, pageSize: pageSize, log: log, now: time.Now}
}

// Verify walks the organization's entries with seq in [fromSeq, toSeq]
// ascending. Nil bounds are open. The walk is seeded with the stored hash of
// the entry just before fromSeq, so a range check trusts everything before it.
// A broken chain is a result, not an error.
func (v *Verifier) Verify(ctx context.Context, orgID string, fromSeq, toSeq *int64) (*models.VerificationResult, error) {
	if orgID == "" {
		return nil, models.ErrMissingOrganization
	}

	if fromSeq != nil && toSeq != nil && *fromSeq > *toSeq {
		return nil, models.ErrInvalidSeqRange
	}

	res := &models.VerificationResult{OrganizationID: orgID, OK: true}

	var prev *string
	after := int64(0)

	if fromSeq != nil && *fromSeq > 1 {
		after = *fromSeq - 1

		before, err := v.reader.EntryBefore(ctx, orgID, *fromSeq)
		if err != nil {
			return nil, fmt.Errorf("reading entry before seq %d: %w", *fromSeq, err)
		}

		if before != nil {
			h := before.Hash
			prev = &h
		}
	}

	upper := int64(0)
	if toSeq != nil {
		upper = *toSeq
	}

	for {
		page, err := v.reader.ChainPage(ctx, orgID, after, upper, v.pageSize)
		if err != nil {
			return nil, fmt.Errorf("reading chain page after seq %d: %w", after, err)
		}

		for i := range page {
			e := &page[i]

			if reason, err := checkLink(prev, e); err != nil {
				return nil, err
			} else if reason != "" {
				v.fail(res, e.Seq, reason)
				return res, nil
			}

			h := e.Hash
			prev = &h
			after = e.Seq
			res.EntriesChecked++
			res.LastSeq = e.Seq
		}

		if len(page) < v.pageSize {
			break
		}
	}

	res.VerifiedAt = v.now().UTC()
	metrics.Verifications.WithLabelValues("ok").Inc()

	return res, nil
}

// checkLink returns a non-empty reason when e does not follow prev.
func checkLink(prev *string, e *models.Entry) (string, error) {
	if !samePrev(prev, e.PrevHash) {
		return ReasonPrevHashMismatch, nil
	}

	want, err := ComputeHash(prev, HashInputOf(e))
	if err != nil {
		return "", fmt.Errorf("recomputing seq %d: %w", e.Seq, err)
	}

	if want != e.Hash {
		return ReasonHashMismatch, nil
	}

	return "", nil
}

func (v *Verifier) fail(res *models.VerificationResult, seq int64, reason string) {
	res.OK = false
	res.BrokenAtSeq = &seq
	res.Reason = reason
	res.VerifiedAt = v.now().UTC()

	metrics.Verifications.WithLabelValues("broken").Inc()

	v.log.WithFields(logrus.Fields{
		"organization_id": res.OrganizationID,
		"seq":             seq,
		"reason":          reason,
	}).Error("ledger.chain_broken")
}

func samePrev(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}

	return *a == *b
}
