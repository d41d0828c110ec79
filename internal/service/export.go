package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/persistorai/ledger/internal/domain"
	"github.com/persistorai/ledger/internal/ledger"
	"github.com/persistorai/ledger/internal/models"
)

var _ domain.ExportService = (*ExportService)(nil)

// ExportService tracks export requests. Rendering happens in an external
// worker that reports back through CompleteExport or FailExport.
type ExportService struct {
	base
}

// NewExportService creates an ExportService.
func NewExportService(d Deps) *ExportService {
	return &ExportService{base: newBase(d)}
}

// RequestExport queues an export of a job's records.
func (s *ExportService) RequestExport(
	ctx context.Context, actor ledger.Actor, orgID, jobID string, req models.RequestExportRequest,
) (*models.Export, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	var exp *models.Export

	err := s.run(ctx, actor, func(ctx context.Context, sess *ledger.Session, tx domain.UnitOfWork) error {
		if _, err := tx.GetJobForUpdate(ctx, orgID, jobID); err != nil {
			return err
		}

		exp = &models.Export{
			ID:             uuid.NewString(),
			OrganizationID: orgID,
			JobID:          jobID,
			Kind:           req.Kind,
			Status:         models.ExportQueued,
			RequestedBy:    actor.ID,
			CreatedAt:      s.timestamp(),
		}

		if err := logExplicit(ctx, sess, models.Draft{
			OrganizationID: orgID,
			EventName:      "export.requested",
			TargetType:     models.EntityExport,
			TargetID:       exp.ID,
			Metadata:       map[string]any{"job_id": jobID, "kind": exp.Kind},
		}); err != nil {
			return err
		}

		return tx.InsertExport(ctx, exp)
	})
	if err != nil {
		return nil, err
	}

	return exp, nil
}

// CompleteExport records the hash of the rendered artifact.
func (s *ExportService) CompleteExport(
	ctx context.Context, actor ledger.Actor, orgID, exportID string, req models.CompleteExportRequest,
) (*models.Export, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	return s.finish(ctx, actor, orgID, exportID, func(e *models.Export) {
		e.Status = models.ExportCompleted
		e.FileHash = strings.ToLower(req.FileHash)
	})
}

// FailExport records why rendering failed.
func (s *ExportService) FailExport(
	ctx context.Context, actor ledger.Actor, orgID, exportID string, req models.FailExportRequest,
) (*models.Export, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	return s.finish(ctx, actor, orgID, exportID, func(e *models.Export) {
		e.Status = models.ExportFailed
		e.FailureReason = req.Reason
	})
}

// finish moves a queued export to its terminal state. The auto-logger
// writes the entry.
func (s *ExportService) finish(
	ctx context.Context, actor ledger.Actor, orgID, exportID string, apply func(e *models.Export),
) (*models.Export, error) {
	var exp *models.Export

	err := s.run(ctx, actor, func(ctx context.Context, _ *ledger.Session, tx domain.UnitOfWork) error {
		var err error

		exp, err = tx.GetExportForUpdate(ctx, orgID, exportID)
		if err != nil {
			return err
		}

		if exp.Status != models.ExportQueued {
			return fmt.Errorf("%w: export %s is %s", models.ErrInvalidTransition, exportID, exp.Status)
		}

		apply(exp)
		now := s.timestamp()
		exp.CompletedAt = &now

		return tx.UpdateExport(ctx, exp)
	})
	if err != nil {
		return nil, err
	}

	return exp, nil
}
