package models

import (
	"encoding/hex"
	"time"
)

// Evidence is an uploaded file attesting that work or a control was performed.
// Once sealed its hash is frozen and recorded in the ledger.
type Evidence struct {
	ID             string     `json:"id"`
	OrganizationID string     `json:"organization_id"`
	JobID          string     `json:"job_id"`
	FileName       string     `json:"file_name"`
	SHA256         string     `json:"sha256"`
	SizeBytes      int64      `json:"size_bytes"`
	UploadedBy     string     `json:"uploaded_by,omitempty"`
	SealedBy       string     `json:"sealed_by,omitempty"`
	SealedAt       *time.Time `json:"sealed_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

// Snapshot returns the evidence fields as a mutation snapshot.
func (e *Evidence) Snapshot() map[string]any {
	return map[string]any{
		"id":          e.ID,
		"job_id":      e.JobID,
		"file_name":   e.FileName,
		"sha256":      e.SHA256,
		"size_bytes":  e.SizeBytes,
		"uploaded_by": e.UploadedBy,
		"sealed_by":   e.SealedBy,
		"sealed_at":   snapshotTime(e.SealedAt),
	}
}

// Sealed reports whether the evidence has been sealed.
func (e *Evidence) Sealed() bool {
	return e.SealedAt != nil
}

// UploadEvidenceRequest is the payload for registering uploaded evidence.
type UploadEvidenceRequest struct {
	FileName  string `json:"file_name"`
	SHA256    string `json:"sha256"`
	SizeBytes int64  `json:"size_bytes"`
}

// Validate checks that required fields are present and well formed.
func (r *UploadEvidenceRequest) Validate() error {
	if r.FileName == "" {
		return ErrMissingFileName
	}

	if len(r.FileName) > 500 {
		return ErrFieldTooLong("file_name", 500)
	}

	if r.SHA256 == "" {
		return ErrMissingFileHash
	}

	if b, err := hex.DecodeString(r.SHA256); err != nil || len(b) != 32 {
		return ErrInvalidFileHash
	}

	return nil
}
