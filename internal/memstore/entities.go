package memstore

import (
	"context"
	"fmt"
	"sort"

	"github.com/persistorai/ledger/internal/models"
)

// Row lock key prefixes for GetXForUpdate.
const (
	lockJob      = "job:"
	lockControl  = "control:"
	lockEvidence = "evidence:"
	lockExport   = "export:"
)

func getForUpdate[T any](
	ctx context.Context, t *Tx, key string, committed map[string]*T, st staged[T], id string,
	orgOf func(*T) string, orgID string, notFound error,
) (*T, error) {
	if err := t.lock(ctx, key+id); err != nil {
		return nil, err
	}

	t.s.mu.RLock()
	v := lookup(committed, st, id)
	t.s.mu.RUnlock()

	if v == nil || orgOf(v) != orgID {
		return nil, notFound
	}

	c := *v

	return &c, nil
}

func current[T any](t *Tx, committed map[string]*T, st staged[T], id string) *T {
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()

	return lookup(committed, st, id)
}

// GetJobForUpdate implements domain.JobWriter.
func (t *Tx) GetJobForUpdate(ctx context.Context, orgID, jobID string) (*models.Job, error) {
	return getForUpdate(ctx, t, lockJob, t.s.jobs, t.jobs, jobID,
		func(j *models.Job) string { return j.OrganizationID }, orgID, models.ErrJobNotFound)
}

// InsertJob implements domain.JobWriter.
func (t *Tx) InsertJob(ctx context.Context, j *models.Job) error {
	if current(t, t.s.jobs, t.jobs, j.ID) != nil {
		return fmt.Errorf("job %s already exists", j.ID)
	}

	c := *j
	t.jobs[j.ID] = &c

	return t.obs.Observe(ctx, models.NewInsert(models.EntityJob, j.OrganizationID, j.ID, j.Snapshot()))
}

// UpdateJob implements domain.JobWriter.
func (t *Tx) UpdateJob(ctx context.Context, j *models.Job) error {
	old := current(t, t.s.jobs, t.jobs, j.ID)
	if old == nil || old.OrganizationID != j.OrganizationID {
		return models.ErrJobNotFound
	}

	c := *j
	t.jobs[j.ID] = &c

	return t.obs.Observe(ctx, models.NewUpdate(models.EntityJob, j.OrganizationID, j.ID, old.Snapshot(), j.Snapshot()))
}

// DeleteJob implements domain.JobWriter.
func (t *Tx) DeleteJob(ctx context.Context, orgID, jobID string) error {
	old := current(t, t.s.jobs, t.jobs, jobID)
	if old == nil || old.OrganizationID != orgID {
		return models.ErrJobNotFound
	}

	t.jobs[jobID] = nil

	return t.obs.Observe(ctx, models.NewDelete(models.EntityJob, orgID, jobID, old.Snapshot()))
}

// CountJobRecords implements domain.JobWriter.
func (t *Tx) CountJobRecords(_ context.Context, orgID, jobID string) (int, error) {
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()

	n := 0
	for id := range union(t.s.evidence, t.evidence) {
		if e := lookup(t.s.evidence, t.evidence, id); e != nil && e.OrganizationID == orgID && e.JobID == jobID {
			n++
		}
	}

	for id := range union(t.s.exports, t.exports) {
		if e := lookup(t.s.exports, t.exports, id); e != nil && e.OrganizationID == orgID && e.JobID == jobID {
			n++
		}
	}

	return n, nil
}

// GetControlForUpdate implements domain.ControlWriter.
func (t *Tx) GetControlForUpdate(ctx context.Context, orgID, controlID string) (*models.HazardControl, error) {
	return getForUpdate(ctx, t, lockControl, t.s.controls, t.controls, controlID,
		func(c *models.HazardControl) string { return c.OrganizationID }, orgID, models.ErrControlNotFound)
}

// ListControls implements domain.ControlWriter.
func (t *Tx) ListControls(_ context.Context, orgID, jobID string) ([]models.HazardControl, error) {
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()

	out := make([]models.HazardControl, 0)
	for id := range union(t.s.controls, t.controls) {
		c := lookup(t.s.controls, t.controls, id)
		if c != nil && c.OrganizationID == orgID && c.JobID == jobID {
			out = append(out, *c)
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}

		return out[i].ID < out[j].ID
	})

	return out, nil
}

// InsertControl implements domain.ControlWriter.
func (t *Tx) InsertControl(ctx context.Context, c *models.HazardControl) error {
	if current(t, t.s.controls, t.controls, c.ID) != nil {
		return fmt.Errorf("control %s already exists", c.ID)
	}

	v := *c
	t.controls[c.ID] = &v

	return t.obs.Observe(ctx, models.NewInsert(models.EntityControl, c.OrganizationID, c.ID, c.Snapshot()))
}

// UpdateControl implements domain.ControlWriter.
func (t *Tx) UpdateControl(ctx context.Context, c *models.HazardControl) error {
	old := current(t, t.s.controls, t.controls, c.ID)
	if old == nil || old.OrganizationID != c.OrganizationID {
		return models.ErrControlNotFound
	}

	v := *c
	t.controls[c.ID] = &v

	return t.obs.Observe(ctx, models.NewUpdate(models.EntityControl, c.OrganizationID, c.ID, old.Snapshot(), c.Snapshot()))
}

// DeleteControl implements domain.ControlWriter.
func (t *Tx) DeleteControl(ctx context.Context, orgID, controlID string) error {
	old := current(t, t.s.controls, t.controls, controlID)
	if old == nil || old.OrganizationID != orgID {
		return models.ErrControlNotFound
	}

	t.controls[controlID] = nil

	return t.obs.Observe(ctx, models.NewDelete(models.EntityControl, orgID, controlID, old.Snapshot()))
}

// GetEvidenceForUpdate implements domain.EvidenceWriter.
func (t *Tx) GetEvidenceForUpdate(ctx context.Context, orgID, evidenceID string) (*models.Evidence, error) {
	return getForUpdate(ctx, t, lockEvidence, t.s.evidence, t.evidence, evidenceID,
		func(e *models.Evidence) string { return e.OrganizationID }, orgID, models.ErrEvidenceNotFound)
}

// InsertEvidence implements domain.EvidenceWriter.
func (t *Tx) InsertEvidence(ctx context.Context, e *models.Evidence) error {
	if current(t, t.s.evidence, t.evidence, e.ID) != nil {
		return fmt.Errorf("evidence %s already exists", e.ID)
	}

	v := *e
	t.evidence[e.ID] = &v

	return t.obs.Observe(ctx, models.NewInsert(models.EntityEvidence, e.OrganizationID, e.ID, e.Snapshot()))
}

// UpdateEvidence implements domain.EvidenceWriter.
func (t *Tx) UpdateEvidence(ctx context.Context, e *models.Evidence) error {
	old := current(t, t.s.evidence, t.evidence, e.ID)
	if old == nil || old.OrganizationID != e.OrganizationID {
		return models.ErrEvidenceNotFound
	}

	v := *e
	t.evidence[e.ID] = &v

	return t.obs.Observe(ctx, models.NewUpdate(models.EntityEvidence, e.OrganizationID, e.ID, old.Snapshot(), e.Snapshot()))
}

// GetExportForUpdate implements domain.ExportWriter.
func (t *Tx) GetExportForUpdate(ctx context.Context, orgID, exportID string) (*models.Export, error) {
	return getForUpdate(ctx, t, lockExport, t.s.exports, t.exports, exportID,
		func(e *models.Export) string { return e.OrganizationID }, orgID, models.ErrExportNotFound)
}

// InsertExport implements domain.ExportWriter.
func (t *Tx) InsertExport(ctx context.Context, e *models.Export) error {
	if current(t, t.s.exports, t.exports, e.ID) != nil {
		return fmt.Errorf("export %s already exists", e.ID)
	}

	v := *e
	t.exports[e.ID] = &v

	return t.obs.Observe(ctx, models.NewInsert(models.EntityExport, e.OrganizationID, e.ID, e.Snapshot()))
}

// UpdateExport implements domain.ExportWriter.
func (t *Tx) UpdateExport(ctx context.Context, e *models.Export) error {
	old := current(t, t.s.exports, t.exports, e.ID)
	if old == nil || old.OrganizationID != e.OrganizationID {
		return models.ErrExportNotFound
	}

	v := *e
	t.exports[e.ID] = &v

	return t.obs.Observe(ctx, models.NewUpdate(models.EntityExport, e.OrganizationID, e.ID, old.Snapshot(), e.Snapshot()))
}

// union returns the ids present in committed or staged.
func union[T any](committed map[string]*T, st staged[T]) map[string]struct{} {
	ids := make(map[string]struct{}, len(committed)+len(st))
	for id := range committed {
		ids[id] = struct{}{}
	}

	for id := range st {
		ids[id] = struct{}{}
	}

	return ids
}

// Job returns the committed job with id, for tests.
func (s *Store) Job(id string) (*models.Job, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	j, ok := s.jobs[id]
	if !ok {
		return nil, false
	}

	c := *j

	return &c, true
}
