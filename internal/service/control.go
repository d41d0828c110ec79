package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/persistorai/ledger/internal/domain"
	"github.com/persistorai/ledger/internal/ledger"
	"github.com/persistorai/ledger/internal/models"
)

var _ domain.ControlService = (*ControlService)(nil)

// ControlService manages hazard controls.
type ControlService struct {
	base
}

// NewControlService creates a ControlService.
func NewControlService(d Deps) *ControlService {
	return &ControlService{base: newBase(d)}
}

// AddControl attaches a pending control to an open job.
func (s *ControlService) AddControl(
	ctx context.Context, actor ledger.Actor, orgID, jobID string, req models.AddControlRequest,
) (*models.HazardControl, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	var control *models.HazardControl

	err := s.run(ctx, actor, func(ctx context.Context, _ *ledger.Session, tx domain.UnitOfWork) error {
		job, err := tx.GetJobForUpdate(ctx, orgID, jobID)
		if err != nil {
			return err
		}

		if job.Status == models.JobCompleted || job.Status == models.JobCancelled {
			return fmt.Errorf("%w: job %s is %s", models.ErrInvalidTransition, jobID, job.Status)
		}

		now := s.timestamp()
		control = &models.HazardControl{
			ID:             uuid.NewString(),
			OrganizationID: orgID,
			JobID:          jobID,
			Description:    req.Description,
			Status:         models.ControlPending,
			CreatedAt:      now,
			UpdatedAt:      now,
		}

		return tx.InsertControl(ctx, control)
	})
	if err != nil {
		return nil, err
	}

	return control, nil
}

// CompleteControl marks a pending control completed by the actor.
func (s *ControlService) CompleteControl(
	ctx context.Context, actor ledger.Actor, orgID, controlID string,
) (*models.HazardControl, error) {
	var control *models.HazardControl

	err := s.run(ctx, actor, func(ctx context.Context, sess *ledger.Session, tx domain.UnitOfWork) error {
		var err error

		control, err = s.openControl(ctx, tx, orgID, controlID)
		if err != nil {
			return err
		}

		now := s.timestamp()
		control.Status = models.ControlCompleted
		control.CompletedBy = actor.ID
		control.CompletedAt = &now
		control.UpdatedAt = now

		if err := logExplicit(ctx, sess, models.Draft{
			OrganizationID: orgID,
			EventName:      "control.completed",
			TargetType:     models.EntityControl,
			TargetID:       controlID,
			Metadata:       map[string]any{"job_id": control.JobID, "description": control.Description},
		}); err != nil {
			return err
		}

		return tx.UpdateControl(ctx, control)
	})
	if err != nil {
		return nil, err
	}

	return control, nil
}

// WaiveControl releases a pending control without completing it. The
// waiver reason lives only in the ledger entry.
func (s *ControlService) WaiveControl(
	ctx context.Context, actor ledger.Actor, orgID, controlID string, req models.WaiveControlRequest,
) (*models.HazardControl, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	var control *models.HazardControl

	err := s.run(ctx, actor, func(ctx context.Context, sess *ledger.Session, tx domain.UnitOfWork) error {
		var err error

		control, err = s.openControl(ctx, tx, orgID, controlID)
		if err != nil {
			return err
		}

		control.Status = models.ControlWaived
		control.UpdatedAt = s.timestamp()

		if err := logExplicit(ctx, sess, models.Draft{
			OrganizationID: orgID,
			EventName:      "control.waived",
			TargetType:     models.EntityControl,
			TargetID:       controlID,
			Severity:       models.SeverityMaterial,
			Metadata: map[string]any{
				"job_id":      control.JobID,
				"description": control.Description,
				"reason":      req.Reason,
			},
		}); err != nil {
			return err
		}

		return tx.UpdateControl(ctx, control)
	})
	if err != nil {
		return nil, err
	}

	return control, nil
}

// RemoveControl deletes a control that is still pending.
func (s *ControlService) RemoveControl(ctx context.Context, actor ledger.Actor, orgID, controlID string) error {
	return s.run(ctx, actor, func(ctx context.Context, _ *ledger.Session, tx domain.UnitOfWork) error {
		if _, err := s.openControl(ctx, tx, orgID, controlID); err != nil {
			return err
		}

		return tx.DeleteControl(ctx, orgID, controlID)
	})
}

func (s *ControlService) openControl(
	ctx context.Context, tx domain.UnitOfWork, orgID, controlID string,
) (*models.HazardControl, error) {
	control, err := tx.GetControlForUpdate(ctx, orgID, controlID)
	if err != nil {
		return nil, err
	}

	if !control.Open() {
		return nil, fmt.Errorf("%w: control %s is %s", models.ErrInvalidTransition, controlID, control.Status)
	}

	return control, nil
}
