// Package models defines data types for the audit ledger and the entities it watches.
package models

import (
	"time"
)

// Entry categories.
const (
	CategoryOperations = "operations"
	CategoryGovernance = "governance"
	CategoryAccess     = "access"
)

// Entry severities.
const (
	SeverityInfo     = "info"
	SeverityMaterial = "material"
	SeverityCritical = "critical"
)

// Entry outcomes.
const (
	OutcomeAllowed = "allowed"
	OutcomeBlocked = "blocked"
)

// Entry is one immutable, hash-linked ledger record.
//
// Seq is global across organizations; PrevHash points at the previous entry of
// the same organization and is nil for an organization's first entry.
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

// Chained reports whether the entry has been assigned its chain fields.
// Only legacy rows awaiting backfill are unchained.
func (e *Entry) Chained() bool {
	return e.Hash != ""
}

// Clone returns a copy of e that shares no mutable state with it.
func (e *Entry) Clone() *Entry {
	c := *e
	if e.PrevHash != nil {
		p := *e.PrevHash
		c.PrevHash = &p
	}
	c.Metadata = cloneMap(e.Metadata)

	return &c
}

// Draft is the caller-supplied part of an entry. Chain fields are assigned by the writer.
type Draft struct {
	OrganizationID string         `json:"organization_id"`
	ActorID        string         `json:"actor_id,omitempty"`
	ActorRole      string         `json:"actor_role,omitempty"`
	EventName      string         `json:"event_name"`
	TargetType     string         `json:"target_type"`
	TargetID       string         `json:"target_id,omitempty"`
	Category       string         `json:"category,omitempty"`
	Severity       string         `json:"severity,omitempty"`
	Outcome        string         `json:"outcome,omitempty"`
	Metadata       map[string]any `json:"metadata,omitempty"`
}

// Validate checks that required fields are present and within limits.
func (d *Draft) Validate() error {
	if d.OrganizationID == "" {
		return ErrMissingOrganization
	}

	if d.EventName == "" {
		return ErrMissingEventName
	}

	if len(d.EventName) > 200 {
		return ErrFieldTooLong("event_name", 200)
	}

	if d.TargetType == "" {
		return ErrMissingTargetType
	}

	if len(d.TargetType) > 100 {
		return ErrFieldTooLong("target_type", 100)
	}

	if len(d.TargetID) > 255 {
		return ErrFieldTooLong("target_id", 255)
	}

	if err := validateOneOf("category", d.Category, CategoryOperations, CategoryGovernance, CategoryAccess); err != nil {
		return err
	}

	if err := validateOneOf("severity", d.Severity, SeverityInfo, SeverityMaterial, SeverityCritical); err != nil {
		return err
	}

	return validateOneOf("outcome", d.Outcome, OutcomeAllowed, OutcomeBlocked)
}

// Root is a checkpoint over the inclusive global sequence window [FirstSeq, LastSeq].
type Root struct {
	ID           int64     `json:"id"`
	FirstSeq     int64     `json:"first_seq"`
	LastSeq      int64     `json:"last_seq"`
	RootHash     string    `json:"root_hash"`
	PrevRootHash string    `json:"prev_root_hash,omitempty"`
	EntryCount   int64     `json:"entry_count"`
	CreatedAt    time.Time `json:"created_at"`
}

// RootRange selects roots overlapping a sequence range. Zero bounds are open.
type RootRange struct {
	FromSeq int64
	ToSeq   int64
	Limit   int
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

// Err returns a *ChainBrokenError when verification failed, nil otherwise.
func (r *VerificationResult) Err() error {
	if r.OK || r.BrokenAtSeq == nil {
		return nil
	}

	return &ChainBrokenError{OrganizationID: r.OrganizationID, Seq: *r.BrokenAtSeq, Reason: r.Reason}
}

// Sort orders for listing entries.
const (
	OrderAsc  = "asc"
	OrderDesc = "desc"
)

// ListOpts holds filters for listing an organization's entries.
type ListOpts struct {
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

// Descending reports whether entries should be returned newest first.
func (o ListOpts) Descending() bool {
	return o.Order == OrderDesc
}

func validateOneOf(field, value string, allowed ...string) error {
	if value == "" {
		return nil
	}

	for _, a := range allowed {
		if value == a {
			return nil
		}
	}

	return ErrInvalidValue(field, value)
}

func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}

	out := make(map[string]any, len(m))
	for k, v := range m {
		if nested, ok := v.(map[string]any); ok {
			out[k] = cloneMap(nested)
			continue
		}
		out[k] = v
	}

	return out
}
