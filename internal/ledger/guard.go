package ledger

import (
	"fmt"

	"github.com/persistorai/ledger/internal/models"
)

// WriteOp is a modification attempted against a persisted entry.
type WriteOp string

// Guarded write operations.
const (
	WriteUpdate WriteOp = "update"
	WriteDelete WriteOp = "delete"
)

// CheckWrite decides whether op may touch target. Persisted entries are
// immutable; the single exception is the backfill procedure assigning chain
// fields to a legacy row that has none. Deletes are never allowed.
//
// Every backend write path that can reach an existing entry calls CheckWrite
// first. The Postgres schema enforces the same rule with a trigger.
func CheckWrite(op WriteOp, target *models.Entry, backfill bool) error {
	if target == nil {
		return nil
	}

	if backfill && op == WriteUpdate && !target.Chained() {
		return nil
	}

	return fmt.Errorf("%s of ledger entry %d (seq %d): %w", op, target.ID, target.Seq, models.ErrImmutableRecord)
}
