package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/persistorai/ledger/internal/domain"
	"github.com/persistorai/ledger/internal/ledger"
	"github.com/persistorai/ledger/internal/models"
)

// Compile-time check: *JobService must satisfy domain.JobService.
var _ domain.JobService = (*JobService)(nil)

// JobService manages jobs. Creation and status changes are logged
// explicitly; reassignment and deletion rely on the auto-logger.
type JobService struct {
	base
}

// NewJobService creates a JobService.
func NewJobService(d Deps) *JobService {
	return &JobService{base: newBase(d)}
}

// CreateJob creates a planned job.
func (s *JobService) CreateJob(
	ctx context.Context, actor ledger.Actor, orgID string, req models.CreateJobRequest,
) (*models.Job, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	now := s.timestamp()
	job := &models.Job{
		ID:             uuid.NewString(),
		OrganizationID: orgID,
		Title:          req.Title,
		Status:         models.JobPlanned,
		AssignedTo:     req.AssignedTo,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	err := s.run(ctx, actor, func(ctx context.Context, sess *ledger.Session, tx domain.UnitOfWork) error {
		if err := logExplicit(ctx, sess, models.Draft{
			OrganizationID: orgID,
			EventName:      "job.created",
			TargetType:     models.EntityJob,
			TargetID:       job.ID,
			Metadata:       map[string]any{"title": job.Title, "assigned_to": job.AssignedTo},
		}); err != nil {
			return err
		}

		return tx.InsertJob(ctx, job)
	})
	if err != nil {
		return nil, err
	}

	return job, nil
}

// UpdateJobStatus moves a job through its lifecycle. Completing a job with
// pending hazard controls is refused; the refusal is committed to the ledger
// as job.completion_blocked and a *models.BlockedError is returned.
func (s *JobService) UpdateJobStatus(
	ctx context.Context, actor ledger.Actor, orgID, jobID, status string,
) (*models.Job, error) {
	var (
		job     *models.Job
		blocked *models.BlockedError
	)

	err := s.run(ctx, actor, func(ctx context.Context, sess *ledger.Session, tx domain.UnitOfWork) error {
		var err error

		job, err = tx.GetJobForUpdate(ctx, orgID, jobID)
		if err != nil {
			return err
		}

		if !job.CanTransition(status) {
			return fmt.Errorf("%w: job %s cannot move from %s to %s", models.ErrInvalidTransition, jobID, job.Status, status)
		}

		if status == models.JobCompleted {
			pending, err := pendingControls(ctx, tx, orgID, jobID)
			if err != nil {
				return err
			}

			if len(pending) > 0 {
				blocked = &models.BlockedError{
					EventName: "job.completion_blocked",
					Reason:    fmt.Sprintf("%d hazard control(s) still pending", len(pending)),
				}

				_, err := sess.Append(ctx, models.Draft{
					OrganizationID: orgID,
					EventName:      blocked.EventName,
					TargetType:     models.EntityJob,
					TargetID:       jobID,
					Severity:       models.SeverityCritical,
					Outcome:        models.OutcomeBlocked,
					Metadata: map[string]any{
						"status":           job.Status,
						"requested_status": status,
						"pending_controls": pending,
					},
				})

				return err
			}
		}

		event := "job.status_changed"
		if status == models.JobCompleted {
			event = "job.completed"
		}

		from := job.Status
		job.Status = status
		job.UpdatedAt = s.timestamp()

		if err := logExplicit(ctx, sess, models.Draft{
			OrganizationID: orgID,
			EventName:      event,
			TargetType:     models.EntityJob,
			TargetID:       jobID,
			Metadata:       map[string]any{"from": from, "to": status},
		}); err != nil {
			return err
		}

		return tx.UpdateJob(ctx, job)
	})
	if err != nil {
		return nil, err
	}

	if blocked != nil {
		s.log.WithFields(logrus.Fields{
			"organization_id": orgID,
			"job_id":          jobID,
			"actor_id":        actor.ID,
		}).Warn("job.completion_blocked")

		return nil, blocked
	}

	return job, nil
}

// AssignJob reassigns a job. Assigning the current assignee is a no-op.
func (s *JobService) AssignJob(
	ctx context.Context, actor ledger.Actor, orgID, jobID, assignee string,
) (*models.Job, error) {
	if assignee == "" {
		return nil, models.ErrMissingAssignee
	}

	var job *models.Job

	err := s.run(ctx, actor, func(ctx context.Context, _ *ledger.Session, tx domain.UnitOfWork) error {
		var err error

		job, err = tx.GetJobForUpdate(ctx, orgID, jobID)
		if err != nil {
			return err
		}

		if job.AssignedTo == assignee {
			return nil
		}

		job.AssignedTo = assignee
		job.UpdatedAt = s.timestamp()

		return tx.UpdateJob(ctx, job)
	})
	if err != nil {
		return nil, err
	}

	return job, nil
}

// DeleteJob removes a job and its hazard controls. Jobs with evidence or
// exports are records in their own right and cannot be deleted.
func (s *JobService) DeleteJob(ctx context.Context, actor ledger.Actor, orgID, jobID string) error {
	return s.run(ctx, actor, func(ctx context.Context, _ *ledger.Session, tx domain.UnitOfWork) error {
		if _, err := tx.GetJobForUpdate(ctx, orgID, jobID); err != nil {
			return err
		}

		n, err := tx.CountJobRecords(ctx, orgID, jobID)
		if err != nil {
			return err
		}

		if n > 0 {
			return fmt.Errorf("%w: job %s has %d evidence or export record(s)", models.ErrInvalidTransition, jobID, n)
		}

		controls, err := tx.ListControls(ctx, orgID, jobID)
		if err != nil {
			return err
		}

		for i := range controls {
			if err := tx.DeleteControl(ctx, orgID, controls[i].ID); err != nil {
				return err
			}
		}

		return tx.DeleteJob(ctx, orgID, jobID)
	})
}

// pendingControls returns the ids of the job's controls that are neither
// completed nor waived.
func pendingControls(ctx context.Context, tx domain.UnitOfWork, orgID, jobID string) ([]string, error) {
	controls, err := tx.ListControls(ctx, orgID, jobID)
	if err != nil {
		return nil, err
	}

	pending := make([]string, 0)
	for i := range controls {
		if controls[i].Open() {
			pending = append(pending, controls[i].ID)
		}
	}

	return pending, nil
}
