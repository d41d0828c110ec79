package store

import (
	"context"
	"fmt"

	"github.com/persistorai/ledger/internal/models"
)

// Each writer reports its mutation to the observer after the statement
// succeeds, inside the same transaction.

const jobColumns = `id, organization_id, title, status, assigned_to, created_at, updated_at`

func scanJob(scan func(dest ...any) error) (*models.Job, error) {
	var j models.Job
	if err := scan(&j.ID, &j.OrganizationID, &j.Title, &j.Status, &j.AssignedTo, &j.CreatedAt, &j.UpdatedAt); err != nil {
		return nil, err
	}

	return &j, nil
}

// GetJobForUpdate implements domain.JobWriter.
func (t *Tx) GetJobForUpdate(ctx context.Context, orgID, jobID string) (*models.Job, error) {
	j, err := scanJob(t.tx.QueryRow(ctx, `SELECT `+jobColumns+` FROM jobs
		WHERE organization_id = $1 AND id = $2 FOR UPDATE`, orgID, jobID).Scan)
	if noRows(err) {
		return nil, models.ErrJobNotFound
	}

	if err != nil {
		return nil, fmt.Errorf("loading job: %w", err)
	}

	return j, nil
}

// InsertJob implements domain.JobWriter.
func (t *Tx) InsertJob(ctx context.Context, j *models.Job) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO jobs (id, organization_id, title, status, assigned_to, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		j.ID, j.OrganizationID, j.Title, j.Status, j.AssignedTo, j.CreatedAt, j.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting job: %w", err)
	}

	return t.obs.Observe(ctx, models.NewInsert(models.EntityJob, j.OrganizationID, j.ID, j.Snapshot()))
}

// UpdateJob implements domain.JobWriter. The old snapshot comes from the
// row as it stood before the statement.
func (t *Tx) UpdateJob(ctx context.Context, j *models.Job) error {
	old, err := t.GetJobForUpdate(ctx, j.OrganizationID, j.ID)
	if err != nil {
		return err
	}

	_, err = t.tx.Exec(ctx, `
		UPDATE jobs SET title = $3, status = $4, assigned_to = $5, updated_at = $6
		WHERE organization_id = $1 AND id = $2`,
		j.OrganizationID, j.ID, j.Title, j.Status, j.AssignedTo, j.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("updating job: %w", err)
	}

	return t.obs.Observe(ctx, models.NewUpdate(models.EntityJob, j.OrganizationID, j.ID, old.Snapshot(), j.Snapshot()))
}

// DeleteJob implements domain.JobWriter.
func (t *Tx) DeleteJob(ctx context.Context, orgID, jobID string) error {
	old, err := scanJob(t.tx.QueryRow(ctx, `DELETE FROM jobs WHERE organization_id = $1 AND id = $2
		RETURNING `+jobColumns, orgID, jobID).Scan)
	if noRows(err) {
		return models.ErrJobNotFound
	}

	if err != nil {
		return fmt.Errorf("deleting job: %w", err)
	}

	return t.obs.Observe(ctx, models.NewDelete(models.EntityJob, orgID, jobID, old.Snapshot()))
}

// CountJobRecords implements domain.JobWriter.
func (t *Tx) CountJobRecords(ctx context.Context, orgID, jobID string) (int, error) {
	var n int

	err := t.tx.QueryRow(ctx, `SELECT
		(SELECT COUNT(*) FROM evidence WHERE organization_id = $1 AND job_id = $2) +
		(SELECT COUNT(*) FROM export_requests WHERE organization_id = $1 AND job_id = $2)`,
		orgID, jobID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting job records: %w", err)
	}

	return n, nil
}

const controlColumns = `id, organization_id, job_id, description, status, completed_by, completed_at, created_at, updated_at`

func scanControl(scan func(dest ...any) error) (*models.HazardControl, error) {
	var c models.HazardControl

	err := scan(&c.ID, &c.OrganizationID, &c.JobID, &c.Description, &c.Status,
		&c.CompletedBy, &c.CompletedAt, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}

	return &c, nil
}

// GetControlForUpdate implements domain.ControlWriter.
func (t *Tx) GetControlForUpdate(ctx context.Context, orgID, controlID string) (*models.HazardControl, error) {
	c, err := scanControl(t.tx.QueryRow(ctx, `SELECT `+controlColumns+` FROM hazard_controls
		WHERE organization_id = $1 AND id = $2 FOR UPDATE`, orgID, controlID).Scan)
	if noRows(err) {
		return nil, models.ErrControlNotFound
	}

	if err != nil {
		return nil, fmt.Errorf("loading control: %w", err)
	}

	return c, nil
}

// ListControls implements domain.ControlWriter.
func (t *Tx) ListControls(ctx context.Context, orgID, jobID string) ([]models.HazardControl, error) {
	rows, err := t.tx.Query(ctx, `SELECT `+controlColumns+` FROM hazard_controls
		WHERE organization_id = $1 AND job_id = $2
		ORDER BY created_at ASC, id ASC`, orgID, jobID)
	if err != nil {
		return nil, fmt.Errorf("listing controls: %w", err)
	}
	defer rows.Close()

	controls := make([]models.HazardControl, 0)
	for rows.Next() {
		c, err := scanControl(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scanning control: %w", err)
		}
		controls = append(controls, *c)
	}

	return controls, rows.Err()
}

// InsertControl implements domain.ControlWriter.
func (t *Tx) InsertControl(ctx context.Context, c *models.HazardControl) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO hazard_controls (id, organization_id, job_id, description, status,
			completed_by, completed_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		c.ID, c.OrganizationID, c.JobID, c.Description, c.Status,
		c.CompletedBy, c.CompletedAt, c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting control: %w", err)
	}

	return t.obs.Observe(ctx, models.NewInsert(models.EntityControl, c.OrganizationID, c.ID, c.Snapshot()))
}

// UpdateControl implements domain.ControlWriter.
func (t *Tx) UpdateControl(ctx context.Context, c *models.HazardControl) error {
	old, err := t.GetControlForUpdate(ctx, c.OrganizationID, c.ID)
	if err != nil {
		return err
	}

	_, err = t.tx.Exec(ctx, `
		UPDATE hazard_controls
		SET description = $3, status = $4, completed_by = $5, completed_at = $6, updated_at = $7
		WHERE organization_id = $1 AND id = $2`,
		c.OrganizationID, c.ID, c.Description, c.Status, c.CompletedBy, c.CompletedAt, c.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("updating control: %w", err)
	}

	return t.obs.Observe(ctx, models.NewUpdate(models.EntityControl, c.OrganizationID, c.ID, old.Snapshot(), c.Snapshot()))
}

// DeleteControl implements domain.ControlWriter.
func (t *Tx) DeleteControl(ctx context.Context, orgID, controlID string) error {
	old, err := scanControl(t.tx.QueryRow(ctx, `DELETE FROM hazard_controls WHERE organization_id = $1 AND id = $2
		RETURNING `+controlColumns, orgID, controlID).Scan)
	if noRows(err) {
		return models.ErrControlNotFound
	}

	if err != nil {
		return fmt.Errorf("deleting control: %w", err)
	}

	return t.obs.Observe(ctx, models.NewDelete(models.EntityControl, orgID, controlID, old.Snapshot()))
}

const evidenceColumns = `id, organization_id, job_id, file_name, sha256, size_bytes,
	uploaded_by, sealed_by, sealed_at, created_at`

func scanEvidence(scan func(dest ...any) error) (*models.Evidence, error) {
	var e models.Evidence

	err := scan(&e.ID, &e.OrganizationID, &e.JobID, &e.FileName, &e.SHA256, &e.SizeBytes,
		&e.UploadedBy, &e.SealedBy, &e.SealedAt, &e.CreatedAt)
	if err != nil {
		return nil, err
	}

	return &e, nil
}

// GetEvidenceForUpdate implements domain.EvidenceWriter.
func (t *Tx) GetEvidenceForUpdate(ctx context.Context, orgID, evidenceID string) (*models.Evidence, error) {
	e, err := scanEvidence(t.tx.QueryRow(ctx, `SELECT `+evidenceColumns+` FROM evidence
		WHERE organization_id = $1 AND id = $2 FOR UPDATE`, orgID, evidenceID).Scan)
	if noRows(err) {
		return nil, models.ErrEvidenceNotFound
	}

	if err != nil {
		return nil, fmt.Errorf("loading evidence: %w", err)
	}

	return e, nil
}

// InsertEvidence implements domain.EvidenceWriter.
func (t *Tx) InsertEvidence(ctx context.Context, e *models.Evidence) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO evidence (id, organization_id, job_id, file_name, sha256, size_bytes,
			uploaded_by, sealed_by, sealed_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		e.ID, e.OrganizationID, e.JobID, e.FileName, e.SHA256, e.SizeBytes,
		e.UploadedBy, e.SealedBy, e.SealedAt, e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting evidence: %w", err)
	}

	return t.obs.Observe(ctx, models.NewInsert(models.EntityEvidence, e.OrganizationID, e.ID, e.Snapshot()))
}

// UpdateEvidence implements domain.EvidenceWriter.
func (t *Tx) UpdateEvidence(ctx context.Context, e *models.Evidence) error {
	old, err := t.GetEvidenceForUpdate(ctx, e.OrganizationID, e.ID)
	if err != nil {
		return err
	}

	_, err = t.tx.Exec(ctx, `
		UPDATE evidence SET file_name = $3, sha256 = $4, size_bytes = $5, sealed_by = $6, sealed_at = $7
		WHERE organization_id = $1 AND id = $2`,
		e.OrganizationID, e.ID, e.FileName, e.SHA256, e.SizeBytes, e.SealedBy, e.SealedAt,
	)
	if err != nil {
		return fmt.Errorf("updating evidence: %w", err)
	}

	return t.obs.Observe(ctx, models.NewUpdate(models.EntityEvidence, e.OrganizationID, e.ID, old.Snapshot(), e.Snapshot()))
}

const exportColumns = `id, organization_id, job_id, kind, status, file_hash, failure_reason,
	requested_by, created_at, completed_at`

func scanExport(scan func(dest ...any) error) (*models.Export, error) {
	var e models.Export

	err := scan(&e.ID, &e.OrganizationID, &e.JobID, &e.Kind, &e.Status, &e.FileHash,
		&e.FailureReason, &e.RequestedBy, &e.CreatedAt, &e.CompletedAt)
	if err != nil {
		return nil, err
	}

	return &e, nil
}

// GetExportForUpdate implements domain.ExportWriter.
func (t *Tx) GetExportForUpdate(ctx context.Context, orgID, exportID string) (*models.Export, error) {
	e, err := scanExport(t.tx.QueryRow(ctx, `SELECT `+exportColumns+` FROM export_requests
		WHERE organization_id = $1 AND id = $2 FOR UPDATE`, orgID, exportID).Scan)
	if noRows(err) {
		return nil, models.ErrExportNotFound
	}

	if err != nil {
		return nil, fmt.Errorf("loading export: %w", err)
	}

	return e, nil
}

// InsertExport implements domain.ExportWriter.
func (t *Tx) InsertExport(ctx context.Context, e *models.Export) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO export_requests (id, organization_id, job_id, kind, status, file_hash,
			failure_reason, requested_by, created_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		e.ID, e.OrganizationID, e.JobID, e.Kind, e.Status, e.FileHash,
		e.FailureReason, e.RequestedBy, e.CreatedAt, e.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting export: %w", err)
	}

	return t.obs.Observe(ctx, models.NewInsert(models.EntityExport, e.OrganizationID, e.ID, e.Snapshot()))
}

// UpdateExport implements domain.ExportWriter.
func (t *Tx) UpdateExport(ctx context.Context, e *models.Export) error {
	old, err := t.GetExportForUpdate(ctx, e.OrganizationID, e.ID)
	if err != nil {
		return err
	}

	_, err = t.tx.Exec(ctx, `
		UPDATE export_requests SET status = $3, file_hash = $4, failure_reason = $5, completed_at = $6
		WHERE organization_id = $1 AND id = $2`,
		e.OrganizationID, e.ID, e.Status, e.FileHash, e.FailureReason, e.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("updating export: %w", err)
	}

	return t.obs.Observe(ctx, models.NewUpdate(models.EntityExport, e.OrganizationID, e.ID, old.Snapshot(), e.Snapshot()))
}
