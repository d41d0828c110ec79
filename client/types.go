package client

import "time"

// Entry is one hash-linked ledger record as returned by the API.
type Entry struct {
	ID             int64          `json:"id"`
	Seq            int64          `json:"seq"`
	OrganizationID string         `json:"organization_id"`
	ActorID        string         `json:"actor_id,omitempty"`
	ActorRole      string         `json:"actor_role,omitempty"`
	EventName      string         `json:"event_name"`
	TargetType     string         `json:"target_type"`
	TargetID       string         `json:"target_id,omitempty"`
	Category       string         `json:"category"`
	Severity       string         `json:"severity"`
	Outcome        string         `json:"outcome"`
	Metadata       map[string]any `json:"metadata"`
	CreatedAt      time.Time      `json:"created_at"`
	PrevHash       *string        `json:"prev_hash"`
	Hash           string         `json:"hash"`
}

// AppendRequest is the payload for writing an explicit entry. The server
// takes the organization from the path and the actor from request headers.
type AppendRequest struct {
	EventName  string         `json:"event_name"`
	TargetType string         `json:"target_type"`
	TargetID   string         `json:"target_id,omitempty"`
	Category   string         `json:"category,omitempty"`
	Severity   string         `json:"severity,omitempty"`
	Outcome    string         `json:"outcome,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// ListOptions filters an organization's entries.
type ListOptions struct {
	Category   string
	Severity   string
	Outcome    string
	TargetType string
	TargetID   string
	Since      *time.Time
	Until      *time.Time
	Order      string
	Limit      int
	Offset     int
}

// VerificationResult is the outcome of walking one organization's chain.
type VerificationResult struct {
	OrganizationID string    `json:"organization_id"`
	OK             bool      `json:"ok"`
	BrokenAtSeq    *int64    `json:"broken_at_seq"`
	Reason         string    `json:"reason,omitempty"`
	EntriesChecked int       `json:"entries_checked"`
	LastSeq        int64     `json:"last_seq,omitempty"`
	VerifiedAt     time.Time `json:"verified_at"`
}

// Root is a checkpoint over the global sequence window [FirstSeq, LastSeq].
type Root struct {
	ID           int64     `json:"id"`
	FirstSeq     int64     `json:"first_seq"`
	LastSeq      int64     `json:"last_seq"`
	RootHash     string    `json:"root_hash"`
	PrevRootHash string    `json:"prev_root_hash,omitempty"`
	EntryCount   int64     `json:"entry_count"`
	CreatedAt    time.Time `json:"created_at"`
}

// CheckpointResult reports whether a new root was created. Root is the latest
// root either way and is nil on an empty ledger.
type CheckpointResult struct {
	Created bool  `json:"created"`
	Root    *Root `json:"root"`
}

// RootVerification is the outcome of recomputing a root from its window.
type RootVerification struct {
	Root       *Root  `json:"root"`
	OK         bool   `json:"ok"`
	Reason     string `json:"reason,omitempty"`
	Recomputed string `json:"recomputed_hash"`
	EntryCount int64  `json:"entry_count"`
}

// HealthResponse is returned by the liveness endpoint.
type HealthResponse struct {
	Status        string  `json:"status"`
	Version       string  `json:"version"`
	UptimeSeconds float64 `json:"uptime_seconds"`
}

// ReadinessResponse is returned by the readiness endpoint.
type ReadinessResponse struct {
	Status        string            `json:"status"`
	Checks        map[string]string `json:"checks"`
	SchemaVersion int64             `json:"schema_version"`
}
