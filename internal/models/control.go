package models

import "time"

// Hazard control statuses.
const (
	ControlPending   = "pending"
	ControlCompleted = "completed"
	ControlWaived    = "waived"
)

// HazardControl is a mitigation that must be completed or waived before its job can close.
type HazardControl struct {
	ID             string     `json:"id"`
	OrganizationID string     `json:"organization_id"`
	JobID          string     `json:"job_id"`
	Description    string     `json:"description"`
	Status         string     `json:"status"`
	CompletedBy    string     `json:"completed_by,omitempty"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// Snapshot returns the control's fields as a mutation snapshot.
func (c *HazardControl) Snapshot() map[string]any {
	return map[string]any{
		"id":           c.ID,
		"job_id":       c.JobID,
		"description":  c.Description,
		"status":       c.Status,
		"completed_by": c.CompletedBy,
		"completed_at": snapshotTime(c.CompletedAt),
	}
}

// Open reports whether the control still blocks its job from completing.
func (c *HazardControl) Open() bool {
	return c.Status == ControlPending
}

// AddControlRequest is the payload for adding a hazard control to a job.
type AddControlRequest struct {
	Description string `json:"description"`
}

// Validate checks that required fields are present and within limits.
func (r *AddControlRequest) Validate() error {
	if r.Description == "" {
		return ErrMissingDescription
	}

	if len(r.Description) > 2000 {
		return ErrFieldTooLong("description", 2000)
	}

	return nil
}

// WaiveControlRequest is the payload for waiving a hazard control.
type WaiveControlRequest struct {
	Reason string `json:"reason"`
}

// Validate checks that a waiver carries its justification.
func (r *WaiveControlRequest) Validate() error {
	return validateReason(r.Reason)
}
