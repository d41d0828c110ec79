// Package domain defines the canonical service and transaction interfaces
// shared across layers (REST, services, backends). Consumers should depend on
// these interfaces rather than re-declaring equivalent ones.
package domain

import (
	"context"

	"github.com/persistorai/ledger/internal/ledger"
	"github.com/persistorai/ledger/internal/models"
)

// UnitOfWork is one backend transaction spanning the ledger and the watched
// entities. Every write method reports its mutation to the transaction's
// ledger.Observer after the row changes.
type UnitOfWork interface {
	ledger.Tx
	JobWriter
	ControlWriter
	EvidenceWriter
	ExportWriter
}

// JobWriter reads and writes jobs inside a UnitOfWork.
type JobWriter interface {
	// GetJobForUpdate loads a job and locks its row until the transaction ends.
	GetJobForUpdate(ctx context.Context, orgID, jobID string) (*models.Job, error)
	InsertJob(ctx context.Context, j *models.Job) error
	UpdateJob(ctx context.Context, j *models.Job) error
	DeleteJob(ctx context.Context, orgID, jobID string) error

	// CountJobRecords counts the evidence and exports attached to a job.
	CountJobRecords(ctx context.Context, orgID, jobID string) (int, error)
}

// ControlWriter reads and writes hazard controls inside a UnitOfWork.
type ControlWriter interface {
	GetControlForUpdate(ctx context.Context, orgID, controlID string) (*models.HazardControl, error)
	ListControls(ctx context.Context, orgID, jobID string) ([]models.HazardControl, error)
	InsertControl(ctx context.Context, c *models.HazardControl) error
	UpdateControl(ctx context.Context, c *models.HazardControl) error
	DeleteControl(ctx context.Context, orgID, controlID string) error
}

// EvidenceWriter reads and writes evidence inside a UnitOfWork.
type EvidenceWriter interface {
	GetEvidenceForUpdate(ctx context.Context, orgID, evidenceID string) (*models.Evidence, error)
	InsertEvidence(ctx context.Context, e *models.Evidence) error
	UpdateEvidence(ctx context.Context, e *models.Evidence) error
}

// ExportWriter reads and writes export requests inside a UnitOfWork.
type ExportWriter interface {
	GetExportForUpdate(ctx context.Context, orgID, exportID string) (*models.Export, error)
	InsertExport(ctx context.Context, e *models.Export) error
	UpdateExport(ctx context.Context, e *models.Export) error
}

// LedgerService defines ledger operations exposed to callers.
type LedgerService interface {
	Append(ctx context.Context, actor ledger.Actor, d models.Draft) (*models.Entry, error)
	List(ctx context.Context, orgID string, opts models.ListOpts) ([]models.Entry, bool, error)
	Verify(ctx context.Context, orgID string, fromSeq, toSeq *int64) (*models.VerificationResult, error)
	IntegrityStatus(ctx context.Context, orgID string) (*models.VerificationResult, error)
	Checkpoint(ctx context.Context) (*models.Root, bool, error)
	Roots(ctx context.Context, rng models.RootRange) ([]models.Root, error)
	VerifyRoot(ctx context.Context, id int64) (*ledger.RootVerification, error)
}

// JobService defines job operations.
type JobService interface {
	CreateJob(ctx context.Context, actor ledger.Actor, orgID string, req models.CreateJobRequest) (*models.Job, error)
	UpdateJobStatus(ctx context.Context, actor ledger.Actor, orgID, jobID, status string) (*models.Job, error)
	AssignJob(ctx context.Context, actor ledger.Actor, orgID, jobID, assignee string) (*models.Job, error)
	DeleteJob(ctx context.Context, actor ledger.Actor, orgID, jobID string) error
}

// ControlService defines hazard control operations.
type ControlService interface {
	AddControl(ctx context.Context, actor ledger.Actor, orgID, jobID string, req models.AddControlRequest) (*models.HazardControl, error)
	CompleteControl(ctx context.Context, actor ledger.Actor, orgID, controlID string) (*models.HazardControl, error)
	WaiveControl(ctx context.Context, actor ledger.Actor, orgID, controlID string, req models.WaiveControlRequest) (*models.HazardControl, error)
	RemoveControl(ctx context.Context, actor ledger.Actor, orgID, controlID string) error
}

// EvidenceService defines evidence operations.
type EvidenceService interface {
	UploadEvidence(ctx context.Context, actor ledger.Actor, orgID, jobID string, req models.UploadEvidenceRequest) (*models.Evidence, error)
	SealEvidence(ctx context.Context, actor ledger.Actor, orgID, evidenceID string) (*models.Evidence, error)
}

// ExportService defines export request operations.
type ExportService interface {
	RequestExport(ctx context.Context, actor ledger.Actor, orgID, jobID string, req models.RequestExportRequest) (*models.Export, error)
	CompleteExport(ctx context.Context, actor ledger.Actor, orgID, exportID string, req models.CompleteExportRequest) (*models.Export, error)
	FailExport(ctx context.Context, actor ledger.Actor, orgID, exportID string, req models.FailExportRequest) (*models.Export, error)
}
