package models_test

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/persistorai/ledger/internal/models"
)

func ptr[T any](v T) *T { return &v }

func assertNoError(t *testing.T, err error) {
	t.Helper()

	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
}

func assertErrorContains(t *testing.T, err error, want string) {
	t.Helper()

	if err == nil {
		t.Fatalf("expected error containing %q, got nil", want)
	}

	if !strings.Contains(err.Error(), want) {
		t.Errorf("expected error containing %q, got %q", want, err.Error())
	}
}

const validHash = "9f86d081884c7d659a2feaa0c55ad015a3bf4f1b2b0b822cd15d6c15b0f00a08"

func TestDraft_Validate(t *testing.T) {
	valid := models.Draft{OrganizationID: "org-a", EventName: "job.created", TargetType: "job"}

	tests := []struct {
		name    string
		mutate  func(d *models.Draft)
		wantErr string
	}{
		{name: "valid", mutate: func(*models.Draft) {}},
		{name: "valid with enums", mutate: func(d *models.Draft) {
			d.Category, d.Severity, d.Outcome = models.CategoryGovernance, models.SeverityCritical, models.OutcomeBlocked
		}},
		{name: "missing organization", mutate: func(d *models.Draft) { d.OrganizationID = "" }, wantErr: "organization_id is required"},
		{name: "missing event", mutate: func(d *models.Draft) { d.EventName = "" }, wantErr: "event_name is required"},
		{name: "event too long", mutate: func(d *models.Draft) { d.EventName = strings.Repeat("e", 201) }, wantErr: "event_name exceeds"},
		{name: "missing target type", mutate: func(d *models.Draft) { d.TargetType = "" }, wantErr: "target_type is required"},
		{name: "target id too long", mutate: func(d *models.Draft) { d.TargetID = strings.Repeat("t", 256) }, wantErr: "target_id exceeds"},
		{name: "unknown category", mutate: func(d *models.Draft) { d.Category = "misc" }, wantErr: `category has unsupported value "misc"`},
		{name: "unknown severity", mutate: func(d *models.Draft) { d.Severity = "dire" }, wantErr: "severity has unsupported value"},
		{name: "unknown outcome", mutate: func(d *models.Draft) { d.Outcome = "maybe" }, wantErr: "outcome has unsupported value"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			d := valid
			tc.mutate(&d)

			err := d.Validate()
			if tc.wantErr == "" {
				assertNoError(t, err)
				return
			}
			assertErrorContains(t, err, tc.wantErr)
		})
	}
}

func TestEntry_CloneIsDeep(t *testing.T) {
	e := &models.Entry{
		Seq:      3,
		PrevHash: ptr(validHash),
		Hash:     validHash,
		Metadata: map[string]any{"nested": map[string]any{"k": "v"}},
	}

	c := e.Clone()
	*c.PrevHash = "changed"
	c.Metadata["nested"].(map[string]any)["k"] = "changed"

	if *e.PrevHash != validHash {
		t.Fatal("clone shares prev_hash")
	}

	if e.Metadata["nested"].(map[string]any)["k"] != "v" {
		t.Fatal("clone shares nested metadata")
	}

	if !c.Chained() || (&models.Entry{}).Chained() {
		t.Fatal("Chained should follow the hash")
	}
}

func TestVerificationResult_Err(t *testing.T) {
	ok := models.VerificationResult{OrganizationID: "org-a", OK: true}
	if ok.Err() != nil {
		t.Fatal("passing result should have no error")
	}

	broken := models.VerificationResult{OrganizationID: "org-a", BrokenAtSeq: ptr(int64(7)), Reason: "hash mismatch"}

	var chainErr *models.ChainBrokenError
	if !errors.As(broken.Err(), &chainErr) || chainErr.Seq != 7 {
		t.Fatalf("expected ChainBrokenError at 7, got %v", broken.Err())
	}

	assertErrorContains(t, broken.Err(), "chain broken at seq 7 for organization org-a")
}

func TestJob_CanTransition(t *testing.T) {
	tests := []struct {
		from, to string
		want     bool
	}{
		{models.JobPlanned, models.JobInProgress, true},
		{models.JobPlanned, models.JobCompleted, false},
		{models.JobInProgress, models.JobOnHold, true},
		{models.JobInProgress, models.JobCompleted, true},
		{models.JobOnHold, models.JobInProgress, true},
		{models.JobOnHold, models.JobCompleted, false},
		{models.JobCompleted, models.JobInProgress, false},
		{models.JobCancelled, models.JobPlanned, false},
	}

	for _, tc := range tests {
		j := models.Job{Status: tc.from}
		if got := j.CanTransition(tc.to); got != tc.want {
			t.Errorf("%s -> %s = %v, want %v", tc.from, tc.to, got, tc.want)
		}
	}
}

func TestRequests_Validate(t *testing.T) {
	tests := []struct {
		name    string
		req     interface{ Validate() error }
		wantErr string
	}{
		{name: "job", req: &models.CreateJobRequest{Title: "Pole replacement"}},
		{name: "job missing title", req: &models.CreateJobRequest{}, wantErr: "title is required"},
		{name: "status", req: &models.UpdateJobStatusRequest{Status: models.JobOnHold}},
		{name: "status unknown", req: &models.UpdateJobStatusRequest{Status: "done"}, wantErr: "status has unsupported value"},
		{name: "status empty", req: &models.UpdateJobStatusRequest{}, wantErr: "status has unsupported value"},
		{name: "assign missing", req: &models.AssignJobRequest{}, wantErr: "assigned_to is required"},
		{name: "control missing description", req: &models.AddControlRequest{}, wantErr: "description is required"},
		{name: "waive missing reason", req: &models.WaiveControlRequest{}, wantErr: "reason is required"},
		{name: "waive reason too long", req: &models.WaiveControlRequest{Reason: strings.Repeat("r", 2001)}, wantErr: "reason exceeds"},
		{name: "evidence", req: &models.UploadEvidenceRequest{FileName: "photo.jpg", SHA256: validHash}},
		{name: "evidence missing hash", req: &models.UploadEvidenceRequest{FileName: "photo.jpg"}, wantErr: "sha256 is required"},
		{name: "evidence short hash", req: &models.UploadEvidenceRequest{FileName: "photo.jpg", SHA256: "abcd"}, wantErr: "64 hex"},
		{name: "export unknown kind", req: &models.RequestExportRequest{Kind: "pdf"}, wantErr: "kind has unsupported value"},
		{name: "export complete bad hash", req: &models.CompleteExportRequest{FileHash: strings.Repeat("z", 64)}, wantErr: "64 hex"},
		{name: "export fail missing reason", req: &models.FailExportRequest{}, wantErr: "reason is required"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.req.Validate()
			if tc.wantErr == "" {
				assertNoError(t, err)
				return
			}
			assertErrorContains(t, err, tc.wantErr)
		})
	}
}

func TestRequestExportRequest_DefaultsKind(t *testing.T) {
	r := models.RequestExportRequest{}
	assertNoError(t, r.Validate())

	if r.Kind != models.ExportProofPack {
		t.Fatalf("kind = %q, want %q", r.Kind, models.ExportProofPack)
	}
}

func TestMutation_Changed(t *testing.T) {
	completed := time.Date(2026, 4, 2, 9, 30, 0, 0, time.UTC)
	before := (&models.HazardControl{ID: "c1", Status: models.ControlPending}).Snapshot()
	after := (&models.HazardControl{ID: "c1", Status: models.ControlCompleted, CompletedAt: &completed}).Snapshot()

	m := models.NewUpdate(models.EntityControl, "org-a", "c1", before, after)
	if !m.Changed("status") || !m.Changed("completed_at") || m.Changed("description") {
		t.Fatalf("unexpected change set for %+v", m)
	}

	if after["completed_at"] != "2026-04-02T09:30:00Z" {
		t.Fatalf("completed_at snapshot = %v", after["completed_at"])
	}

	ins := models.NewInsert(models.EntityControl, "org-a", "c1", after)
	if ins.Changed("status") {
		t.Fatal("inserts report no field changes")
	}

	del := models.NewDelete(models.EntityControl, "org-a", "c1", before)
	if del.Current()["status"] != models.ControlPending {
		t.Fatal("delete should expose the old snapshot")
	}
}
