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

var _ domain.EvidenceService = (*EvidenceService)(nil)

// EvidenceService registers and seals evidence. Both operations log
// explicitly so the file hash lands in the entry metadata.
type EvidenceService struct {
	base
}

// NewEvidenceService creates an EvidenceService.
func NewEvidenceService(d Deps) *EvidenceService {
	return &EvidenceService{base: newBase(d)}
}

// UploadEvidence records an uploaded file against a job.
func (s *EvidenceService) UploadEvidence(
	ctx context.Context, actor ledger.Actor, orgID, jobID string, req models.UploadEvidenceRequest,
) (*models.Evidence, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	var ev *models.Evidence

	err := s.run(ctx, actor, func(ctx context.Context, sess *ledger.Session, tx domain.UnitOfWork) error {
		if _, err := tx.GetJobForUpdate(ctx, orgID, jobID); err != nil {
			return err
		}

		ev = &models.Evidence{
			ID:             uuid.NewString(),
			OrganizationID: orgID,
			JobID:          jobID,
			FileName:       req.FileName,
			SHA256:         strings.ToLower(req.SHA256),
			SizeBytes:      req.SizeBytes,
			UploadedBy:     actor.ID,
			CreatedAt:      s.timestamp(),
		}

		if err := logExplicit(ctx, sess, models.Draft{
			OrganizationID: orgID,
			EventName:      "evidence.uploaded",
			TargetType:     models.EntityEvidence,
			TargetID:       ev.ID,
			Metadata: map[string]any{
				"job_id":     jobID,
				"file_name":  ev.FileName,
				"sha256":     ev.SHA256,
				"size_bytes": ev.SizeBytes,
			},
		}); err != nil {
			return err
		}

		return tx.InsertEvidence(ctx, ev)
	})
	if err != nil {
		return nil, err
	}

	return ev, nil
}

// SealEvidence freezes evidence. Sealing twice is refused.
func (s *EvidenceService) SealEvidence(
	ctx context.Context, actor ledger.Actor, orgID, evidenceID string,
) (*models.Evidence, error) {
	var ev *models.Evidence

	err := s.run(ctx, actor, func(ctx context.Context, sess *ledger.Session, tx domain.UnitOfWork) error {
		var err error

		ev, err = tx.GetEvidenceForUpdate(ctx, orgID, evidenceID)
		if err != nil {
			return err
		}

		if ev.Sealed() {
			return fmt.Errorf("%w: evidence %s is already sealed", models.ErrInvalidTransition, evidenceID)
		}

		now := s.timestamp()
		ev.SealedAt = &now
		ev.SealedBy = actor.ID

		if err := logExplicit(ctx, sess, models.Draft{
			OrganizationID: orgID,
			EventName:      "evidence.sealed",
			TargetType:     models.EntityEvidence,
			TargetID:       evidenceID,
			Metadata:       map[string]any{"job_id": ev.JobID, "sha256": ev.SHA256},
		}); err != nil {
			return err
		}

		return tx.UpdateEvidence(ctx, ev)
	})
	if err != nil {
		return nil, err
	}

	return ev, nil
}
