package api_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/persistorai/ledger/internal/api"
	"github.com/persistorai/ledger/internal/ledger"
	"github.com/persistorai/ledger/internal/models"
)

func ledgerRouter(l *mockLedger, jobs *mockJobs) http.Handler {
	return api.NewRouter(context.Background(), &api.RouterDeps{
		Log:    testLogger(),
		Ledger: l,
		Jobs:   jobs,
	})
}

func TestAppend_UsesPathOrganizationAndHeaderActor(t *testing.T) {
	var gotActor ledger.Actor
	var gotDraft models.Draft

	l := &mockLedger{appendFn: func(_ context.Context, actor ledger.Actor, d models.Draft) (*models.Entry, error) {
		gotActor, gotDraft = actor, d
		return &models.Entry{ID: 1, Seq: 7, OrganizationID: d.OrganizationID, EventName: d.EventName, Hash: "h"}, nil
	}}

	body := `{"organization_id":"org-b","actor_id":"mallory","event_name":"access.role_granted","target_type":"user","target_id":"u-9"}`
	w := doRequest(ledgerRouter(l, nil), http.MethodPost, "/api/v1/orgs/"+testOrg+"/ledger", body)

	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}

	if gotDraft.OrganizationID != testOrg || gotDraft.ActorID != "" {
		t.Fatalf("draft = %+v", gotDraft)
	}

	if gotActor.ID != testActor || gotActor.Role != testRole {
		t.Fatalf("actor = %+v", gotActor)
	}

	if entry := decode[models.Entry](t, w); entry.Seq != 7 {
		t.Fatalf("entry = %+v", entry)
	}
}

func TestAppend_KeepsMetadataNumbersExact(t *testing.T) {
	var gotDraft models.Draft

	l := &mockLedger{appendFn: func(_ context.Context, _ ledger.Actor, d models.Draft) (*models.Entry, error) {
		gotDraft = d
		return &models.Entry{ID: 1, Seq: 1, OrganizationID: d.OrganizationID, EventName: d.EventName, Hash: "h"}, nil
	}}

	body := `{"event_name":"evidence.uploaded","target_type":"evidence","metadata":{"size_bytes":9007199254740993,"ratio":0.25}}`
	w := doRequest(ledgerRouter(l, nil), http.MethodPost, "/api/v1/orgs/"+testOrg+"/ledger", body)

	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}

	if got := gotDraft.Metadata["size_bytes"]; got != json.Number("9007199254740993") {
		t.Fatalf("size_bytes = %#v, want exact json.Number", got)
	}

	if got := gotDraft.Metadata["ratio"]; got != json.Number("0.25") {
		t.Fatalf("ratio = %#v", got)
	}
}

func TestAppend_RejectsInvalidDraft(t *testing.T) {
	l := &mockLedger{appendFn: func(context.Context, ledger.Actor, models.Draft) (*models.Entry, error) {
		t.Fatal("append must not be called")
		return nil, nil
	}}

	w := doRequest(ledgerRouter(l, nil), http.MethodPost, "/api/v1/orgs/"+testOrg+"/ledger", `{"target_type":"user"}`)
	assertError(t, w, http.StatusBadRequest, api.ErrCodeValidationError)

	w = doRequest(ledgerRouter(l, nil), http.MethodPost, "/api/v1/orgs/"+testOrg+"/ledger", `{"event_name":"x","target_type":"user","severity":"dire"}`)
	assertError(t, w, http.StatusBadRequest, api.ErrCodeValidationError)
}

func TestAppend_ErrorMapping(t *testing.T) {
	tests := []struct {
		err    error
		status int
		code   string
	}{
		{err: fmt.Errorf("update: %w", models.ErrImmutableRecord), status: http.StatusConflict, code: api.ErrCodeImmutableRecord},
		{err: fmt.Errorf("%w: nope", models.ErrInvalidTransition), status: http.StatusConflict, code: api.ErrCodeInvalidTransition},
		{err: models.ErrJobNotFound, status: http.StatusNotFound, code: api.ErrCodeNotFound},
		{err: &models.BlockedError{EventName: "job.completion_blocked", Reason: "pending"}, status: http.StatusUnprocessableEntity, code: api.ErrCodeBlocked},
		{err: fmt.Errorf("nextval: %w", models.ErrSequenceAllocation), status: http.StatusInternalServerError, code: api.ErrCodeInternalError},
	}

	for _, tc := range tests {
		t.Run(tc.code, func(t *testing.T) {
			l := &mockLedger{appendFn: func(context.Context, ledger.Actor, models.Draft) (*models.Entry, error) {
				return nil, tc.err
			}}

			w := doRequest(ledgerRouter(l, nil), http.MethodPost, "/api/v1/orgs/"+testOrg+"/ledger", `{"event_name":"x","target_type":"y"}`)
			assertError(t, w, tc.status, tc.code)
		})
	}
}

func TestList_PassesFilters(t *testing.T) {
	var got models.ListOpts

	l := &mockLedger{listFn: func(_ context.Context, orgID string, opts models.ListOpts) ([]models.Entry, bool, error) {
		if orgID != testOrg {
			t.Errorf("org = %q", orgID)
		}
		got = opts
		return []models.Entry{{Seq: 3}}, true, nil
	}}

	path := "/api/v1/orgs/" + testOrg + "/ledger?severity=critical&target_type=job&order=desc&limit=5000&offset=20&since=2026-03-01T00:00:00Z"
	w := doRequest(ledgerRouter(l, nil), http.MethodGet, path, "")

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}

	if got.Severity != models.SeverityCritical || got.TargetType != "job" || !got.Descending() || got.Limit != 1000 || got.Offset != 20 {
		t.Fatalf("opts = %+v", got)
	}

	if got.Since == nil || !got.Since.Equal(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("since = %v", got.Since)
	}

	body := decode[struct {
		Entries []models.Entry `json:"entries"`
		HasMore bool           `json:"has_more"`
	}](t, w)
	if len(body.Entries) != 1 || !body.HasMore {
		t.Fatalf("body = %+v", body)
	}
}

func TestList_BadQuery(t *testing.T) {
	l := &mockLedger{}

	for _, q := range []string{"order=sideways", "since=yesterday"} {
		w := doRequest(ledgerRouter(l, nil), http.MethodGet, "/api/v1/orgs/"+testOrg+"/ledger?"+q, "")
		assertError(t, w, http.StatusBadRequest, api.ErrCodeInvalidRequest)
	}
}

func TestVerify(t *testing.T) {
	broken := int64(12)

	l := &mockLedger{verifyFn: func(_ context.Context, _ string, from, to *int64) (*models.VerificationResult, error) {
		if from == nil || *from != 10 || to != nil {
			t.Errorf("range = %v..%v", from, to)
		}
		return &models.VerificationResult{OrganizationID: testOrg, BrokenAtSeq: &broken, Reason: "hash mismatch"}, nil
	}}

	w := doRequest(ledgerRouter(l, nil), http.MethodGet, "/api/v1/orgs/"+testOrg+"/ledger/verify?from_seq=10", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}

	res := decode[models.VerificationResult](t, w)
	if res.OK || res.BrokenAtSeq == nil || *res.BrokenAtSeq != 12 {
		t.Fatalf("result = %+v", res)
	}

	w = doRequest(ledgerRouter(l, nil), http.MethodGet, "/api/v1/orgs/"+testOrg+"/ledger/verify?from_seq=9&to_seq=3", "")
	assertError(t, w, http.StatusBadRequest, api.ErrCodeValidationError)

	w = doRequest(ledgerRouter(l, nil), http.MethodGet, "/api/v1/orgs/"+testOrg+"/ledger/verify?to_seq=-1", "")
	assertError(t, w, http.StatusBadRequest, api.ErrCodeInvalidRequest)
}

func TestCheckpoint(t *testing.T) {
	for _, created := range []bool{true, false} {
		l := &mockLedger{checkpointFn: func(context.Context) (*models.Root, bool, error) {
			return &models.Root{ID: 3, FirstSeq: 11, LastSeq: 20, RootHash: "r"}, created, nil
		}}

		w := doRequest(ledgerRouter(l, nil), http.MethodPost, "/api/v1/ledger/checkpoints", "")

		want := http.StatusOK
		if created {
			want = http.StatusCreated
		}

		if w.Code != want {
			t.Fatalf("created=%v: status = %d, want %d", created, w.Code, want)
		}

		body := decode[struct {
			Created bool         `json:"created"`
			Root    *models.Root `json:"root"`
		}](t, w)
		if body.Created != created || body.Root == nil || body.Root.LastSeq != 20 {
			t.Fatalf("body = %+v", body)
		}
	}
}

func TestVerifyRoot(t *testing.T) {
	l := &mockLedger{verifyRootFn: func(_ context.Context, id int64) (*ledger.RootVerification, error) {
		if id == 404 {
			return nil, models.ErrRootNotFound
		}
		return &ledger.RootVerification{Root: &models.Root{ID: id}, OK: true}, nil
	}}

	w := doRequest(ledgerRouter(l, nil), http.MethodGet, "/api/v1/ledger/roots/7/verify", "")
	if w.Code != http.StatusOK || !decode[ledger.RootVerification](t, w).OK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}

	w = doRequest(ledgerRouter(l, nil), http.MethodGet, "/api/v1/ledger/roots/404/verify", "")
	assertError(t, w, http.StatusNotFound, api.ErrCodeNotFound)

	w = doRequest(ledgerRouter(l, nil), http.MethodGet, "/api/v1/ledger/roots/abc/verify", "")
	assertError(t, w, http.StatusBadRequest, api.ErrCodeInvalidRequest)
}

func TestUpdateJobStatus_Blocked(t *testing.T) {
	jobs := &mockJobs{statusFn: func(_ context.Context, _ ledger.Actor, _, _, status string) (*models.Job, error) {
		if status != models.JobCompleted {
			t.Errorf("status = %q", status)
		}
		return nil, &models.BlockedError{EventName: "job.completion_blocked", Reason: "1 hazard control(s) still pending"}
	}}

	w := doRequest(ledgerRouter(nil, jobs), http.MethodPatch, "/api/v1/orgs/"+testOrg+"/jobs/j-1/status", `{"status":"completed"}`)
	assertError(t, w, http.StatusUnprocessableEntity, api.ErrCodeBlocked)

	w = doRequest(ledgerRouter(nil, jobs), http.MethodPatch, "/api/v1/orgs/"+testOrg+"/jobs/j-1/status", `{"status":"finished"}`)
	assertError(t, w, http.StatusBadRequest, api.ErrCodeValidationError)
}

func TestDeleteJob_Conflict(t *testing.T) {
	jobs := &mockJobs{deleteFn: func(context.Context, ledger.Actor, string, string) error {
		return errors.Join(models.ErrInvalidTransition, errors.New("job has evidence"))
	}}

	w := doRequest(ledgerRouter(nil, jobs), http.MethodDelete, "/api/v1/orgs/"+testOrg+"/jobs/j-1", "")
	assertError(t, w, http.StatusConflict, api.ErrCodeInvalidTransition)
}
