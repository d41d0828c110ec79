package models

import "time"

// Job statuses.
const (
	JobPlanned    = "planned"
	JobInProgress = "in_progress"
	JobOnHold     = "on_hold"
	JobCompleted  = "completed"
	JobCancelled  = "cancelled"
)

var jobTransitions = map[string][]string{
	JobPlanned:    {JobInProgress, JobCancelled},
	JobInProgress: {JobOnHold, JobCompleted, JobCancelled},
	JobOnHold:     {JobInProgress, JobCancelled},
}

// Job is a unit of field work whose hazard controls and evidence are tracked.
type Job struct {
	ID             string    `json:"id"`
	OrganizationID string    `json:"organization_id"`
	Title          string    `json:"title"`
	Status         string    `json:"status"`
	AssignedTo     string    `json:"assigned_to,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Snapshot returns the job's fields as a mutation snapshot.
func (j *Job) Snapshot() map[string]any {
	return map[string]any{
		"id":          j.ID,
		"title":       j.Title,
		"status":      j.Status,
		"assigned_to": j.AssignedTo,
	}
}

// CanTransition reports whether the job may move to status.
func (j *Job) CanTransition(status string) bool {
	for _, s := range jobTransitions[j.Status] {
		if s == status {
			return true
		}
	}

	return false
}

// CreateJobRequest is the payload for creating a job.
type CreateJobRequest struct {
	Title      string `json:"title"`
	AssignedTo string `json:"assigned_to,omitempty"`
}

// Validate checks that required fields are present and within limits.
func (r *CreateJobRequest) Validate() error {
	if r.Title == "" {
		return ErrMissingTitle
	}

	if len(r.Title) > 500 {
		return ErrFieldTooLong("title", 500)
	}

	if len(r.AssignedTo) > 255 {
		return ErrFieldTooLong("assigned_to", 255)
	}

	return nil
}

// UpdateJobStatusRequest is the payload for moving a job through its lifecycle.
type UpdateJobStatusRequest struct {
	Status string `json:"status"`
}

// Validate checks that the target status is a known job status.
func (r *UpdateJobStatusRequest) Validate() error {
	if r.Status == "" {
		return ErrInvalidValue("status", "")
	}

	return validateOneOf("status", r.Status, JobPlanned, JobInProgress, JobOnHold, JobCompleted, JobCancelled)
}

// AssignJobRequest is the payload for reassigning a job.
type AssignJobRequest struct {
	AssignedTo string `json:"assigned_to"`
}

// Validate checks the assignee.
func (r *AssignJobRequest) Validate() error {
	if r.AssignedTo == "" {
		return ErrMissingAssignee
	}

	if len(r.AssignedTo) > 255 {
		return ErrFieldTooLong("assigned_to", 255)
	}

	return nil
}

func validateReason(reason string) error {
	if reason == "" {
		return ErrMissingReason
	}

	if len(reason) > 2000 {
		return ErrFieldTooLong("reason", 2000)
	}

	return nil
}
