package models

import (
	"errors"
	"fmt"
)

// Sentinel errors for validation.
var (
	ErrMissingOrganization = errors.New("organization_id is required")
	ErrMissingEventName    = errors.New("event_name is required")
	ErrMissingTargetType   = errors.New("target_type is required")
	ErrMissingTitle        = errors.New("title is required")
	ErrMissingDescription  = errors.New("description is required")
	ErrMissingFileName     = errors.New("file_name is required")
	ErrMissingFileHash     = errors.New("sha256 is required")
	ErrInvalidFileHash     = errors.New("sha256 must be 64 hex characters")
	ErrMissingReason       = errors.New("reason is required")
	ErrMissingAssignee     = errors.New("assigned_to is required")
	ErrInvalidSeqRange     = errors.New("from_seq must not exceed to_seq")
)

// Sentinel errors for entity lookups.
var (
	ErrNotFound         = errors.New("not found")
	ErrJobNotFound      = fmt.Errorf("job %w", ErrNotFound)
	ErrControlNotFound  = fmt.Errorf("control %w", ErrNotFound)
	ErrEvidenceNotFound = fmt.Errorf("evidence %w", ErrNotFound)
	ErrExportNotFound   = fmt.Errorf("export %w", ErrNotFound)
	ErrRootNotFound     = fmt.Errorf("root %w", ErrNotFound)
)

// ErrInvalidTransition indicates a status change the entity's lifecycle does not allow.
var ErrInvalidTransition = errors.New("invalid status transition")

// ErrImmutableRecord is returned for any update or delete of a persisted ledger
// entry outside the backfill procedure.
var ErrImmutableRecord = errors.New("immutable record violation: ledger entries cannot be modified")

// ErrSequenceAllocation wraps failures to reserve a global sequence number.
var ErrSequenceAllocation = errors.New("sequence allocation failure")

// ErrHashComputation wraps failures to canonicalize or digest an entry.
var ErrHashComputation = errors.New("hash computation failure")

// ChainBrokenError reports the first sequence number at which an organization's
// chain fails verification.
type ChainBrokenError struct {
	OrganizationID string
	Seq            int64
	Reason         string
}

// Error implements the error interface.
func (e *ChainBrokenError) Error() string {
	return fmt.Sprintf("chain broken at seq %d for organization %s: %s", e.Seq, e.OrganizationID, e.Reason)
}

// BlockedError reports a mutation refused by a safety rule. The refusal itself
// is recorded in the ledger before the error is returned.
type BlockedError struct {
	EventName string
	Reason    string
}

// Error implements the error interface.
func (e *BlockedError) Error() string {
	return fmt.Sprintf("%s: %s", e.EventName, e.Reason)
}

// ErrFieldTooLong returns an error indicating a field exceeds its maximum length.
func ErrFieldTooLong(field string, maxLen int) error {
	return fmt.Errorf("%s exceeds maximum length of %d", field, maxLen)
}

// ErrInvalidValue returns an error indicating a field holds an unsupported value.
func ErrInvalidValue(field, value string) error {
	return fmt.Errorf("%s has unsupported value %q", field, value)
}
