package api_test

import (
	"context"

	"github.com/persistorai/ledger/internal/ledger"
	"github.com/persistorai/ledger/internal/models"
)

// mockLedger implements api.LedgerService for testing.
type mockLedger struct {
	appendFn     func(ctx context.Context, actor ledger.Actor, d models.Draft) (*models.Entry, error)
	listFn       func(ctx context.Context, orgID string, opts models.ListOpts) ([]models.Entry, bool, error)
	verifyFn     func(ctx context.Context, orgID string, fromSeq, toSeq *int64) (*models.VerificationResult, error)
	integrityFn  func(ctx context.Context, orgID string) (*models.VerificationResult, error)
	checkpointFn func(ctx context.Context) (*models.Root, bool, error)
	rootsFn      func(ctx context.Context, rng models.RootRange) ([]models.Root, error)
	verifyRootFn func(ctx context.Context, id int64) (*ledger.RootVerification, error)
}

func (m *mockLedger) Append(ctx context.Context, actor ledger.Actor, d models.Draft) (*models.Entry, error) {
	return m.appendFn(ctx, actor, d)
}

func (m *mockLedger) List(ctx context.Context, orgID string, opts models.ListOpts) ([]models.Entry, bool, error) {
	return m.listFn(ctx, orgID, opts)
}

func (m *mockLedger) Verify(ctx context.Context, orgID string, fromSeq, toSeq *int64) (*models.VerificationResult, error) {
	return m.verifyFn(ctx, orgID, fromSeq, toSeq)
}

func (m *mockLedger) IntegrityStatus(ctx context.Context, orgID string) (*models.VerificationResult, error) {
	return m.integrityFn(ctx, orgID)
}

func (m *mockLedger) Checkpoint(ctx context.Context) (*models.Root, bool, error) {
	return m.checkpointFn(ctx)
}

func (m *mockLedger) Roots(ctx context.Context, rng models.RootRange) ([]models.Root, error) {
	return m.rootsFn(ctx, rng)
}

func (m *mockLedger) VerifyRoot(ctx context.Context, id int64) (*ledger.RootVerification, error) {
	return m.verifyRootFn(ctx, id)
}

// mockJobs implements api.JobService for testing.
type mockJobs struct {
	createFn func(ctx context.Context, actor ledger.Actor, orgID string, req models.CreateJobRequest) (*models.Job, error)
	statusFn func(ctx context.Context, actor ledger.Actor, orgID, jobID, status string) (*models.Job, error)
	assignFn func(ctx context.Context, actor ledger.Actor, orgID, jobID, assignee string) (*models.Job, error)
	deleteFn func(ctx context.Context, actor ledger.Actor, orgID, jobID string) error
}

func (m *mockJobs) CreateJob(ctx context.Context, actor ledger.Actor, orgID string, req models.CreateJobRequest) (*models.Job, error) {
	return m.createFn(ctx, actor, orgID, req)
}

func (m *mockJobs) UpdateJobStatus(ctx context.Context, actor ledger.Actor, orgID, jobID, status string) (*models.Job, error) {
	return m.statusFn(ctx, actor, orgID, jobID, status)
}

func (m *mockJobs) AssignJob(ctx context.Context, actor ledger.Actor, orgID, jobID, assignee string) (*models.Job, error) {
	return m.assignFn(ctx, actor, orgID, jobID, assignee)
}

func (m *mockJobs) DeleteJob(ctx context.Context, actor ledger.Actor, orgID, jobID string) error {
	return m.deleteFn(ctx, actor, orgID, jobID)
}

// mockDB implements api.Database for testing.
type mockDB struct {
	err error
}

func (m *mockDB) HealthCheck(context.Context) error { return m.err }

func (m *mockDB) Stats() (total, idle int32) { return 4, 3 }
