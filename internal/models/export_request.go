package models

import (
	"encoding/hex"
	"time"
)

// Export kinds.
const (
	ExportProofPack = "proof_pack"
	ExportCSV       = "csv"
	ExportJSON      = "json"
)

// Export statuses.
const (
	ExportQueued    = "queued"
	ExportCompleted = "completed"
	ExportFailed    = "failed"
)

// Export is a request to render job records (and ledger roots) into a
// downloadable artifact. Rendering happens elsewhere; only its lifecycle is tracked here.
type Export struct {
	ID             string     `json:"id"`
	OrganizationID string     `json:"organization_id"`
	JobID          string     `json:"job_id"`
	Kind           string     `json:"kind"`
	Status         string     `json:"status"`
	FileHash       string     `json:"file_hash,omitempty"`
	FailureReason  string     `json:"failure_reason,omitempty"`
	RequestedBy    string     `json:"requested_by,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
}

// Snapshot returns the export fields as a mutation snapshot.
func (e *Export) Snapshot() map[string]any {
	return map[string]any{
		"id":             e.ID,
		"job_id":         e.JobID,
		"kind":           e.Kind,
		"status":         e.Status,
		"file_hash":      e.FileHash,
		"failure_reason": e.FailureReason,
		"requested_by":   e.RequestedBy,
		"completed_at":   snapshotTime(e.CompletedAt),
	}
}

// RequestExportRequest is the payload for requesting an export.
type RequestExportRequest struct {
	Kind string `json:"kind"`
}

// Validate checks that the export kind is supported.
func (r *RequestExportRequest) Validate() error {
	if r.Kind == "" {
		r.Kind = ExportProofPack
	}

	return validateOneOf("kind", r.Kind, ExportProofPack, ExportCSV, ExportJSON)
}

// CompleteExportRequest is the payload for marking an export as rendered.
type CompleteExportRequest struct {
	FileHash string `json:"file_hash"`
}

// Validate checks the rendered artifact hash.
func (r *CompleteExportRequest) Validate() error {
	if r.FileHash == "" {
		return ErrMissingFileHash
	}

	if b, err := hex.DecodeString(r.FileHash); err != nil || len(b) != 32 {
		return ErrInvalidFileHash
	}

	return nil
}

// FailExportRequest is the payload for marking an export as failed.
type FailExportRequest struct {
	Reason string `json:"reason"`
}

// Validate checks that a failure carries its reason.
func (r *FailExportRequest) Validate() error {
	return validateReason(r.Reason)
}
