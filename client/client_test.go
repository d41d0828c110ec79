package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

// newTestServer creates a test server that routes to the given handler map.
// Keys are "METHOD /path", values are handler funcs.
func newTestServer(t *testing.T, routes map[string]http.HandlerFunc) (*httptest.Server, *Client) {
	t.Helper()
	mux := http.NewServeMux()
	for pattern, handler := range routes {
		mux.HandleFunc(pattern, handler)
	}
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	c := New(srv.URL, WithActor("user-1", "auditor"))
	return srv, c
}

func jsonResponse(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func TestHealth(t *testing.T) {
	_, c := newTestServer(t, map[string]http.HandlerFunc{
		"GET /health": func(w http.ResponseWriter, _ *http.Request) {
			jsonResponse(w, 200, HealthResponse{Status: "ok", Version: "1.2.0"})
		},
	})
	resp, err := c.Health(context.Background())
	if err != nil {
		t.Fatalf("Health() error: %v", err)
	}
	if resp.Status != "ok" || resp.Version != "1.2.0" {
		t.Errorf("got %+v", resp)
	}
}

func TestReady_NotReadyIsAPIError(t *testing.T) {
	_, c := newTestServer(t, map[string]http.HandlerFunc{
		"GET /ready": func(w http.ResponseWriter, _ *http.Request) {
			jsonResponse(w, 503, map[string]any{"status": "not_ready", "checks": map[string]string{"database": "error"}})
		},
	})
	_, err := c.Ready(context.Background())
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != 503 {
		t.Fatalf("expected 503 APIError, got %v", err)
	}
}

func TestAppend_SendsActorHeaders(t *testing.T) {
	_, c := newTestServer(t, map[string]http.HandlerFunc{
		"POST /api/v1/orgs/org-1/ledger": func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get(ActorIDHeader) != "user-1" || r.Header.Get(ActorRoleHeader) != "auditor" {
				t.Errorf("actor headers = %q/%q", r.Header.Get(ActorIDHeader), r.Header.Get(ActorRoleHeader))
			}
			var req AppendRequest
			json.NewDecoder(r.Body).Decode(&req) //nolint:errcheck
			jsonResponse(w, 201, Entry{ID: 1, Seq: 7, OrganizationID: "org-1", EventName: req.EventName, Hash: "abc"})
		},
	})
	entry, err := c.Ledger.Append(context.Background(), "org-1", AppendRequest{
		EventName:  "policy.acknowledged",
		TargetType: "policy",
		Metadata:   map[string]any{"version": 3},
	})
	if err != nil {
		t.Fatalf("Append() error: %v", err)
	}
	if entry.Seq != 7 || entry.EventName != "policy.acknowledged" {
		t.Errorf("got %+v", entry)
	}
}

func TestList_EncodesFilters(t *testing.T) {
	_, c := newTestServer(t, map[string]http.HandlerFunc{
		"GET /api/v1/orgs/org-1/ledger": func(w http.ResponseWriter, r *http.Request) {
			q := r.URL.Query()
			if q.Get("severity") != "critical" || q.Get("order") != "desc" || q.Get("limit") != "5" {
				t.Errorf("unexpected query: %s", r.URL.RawQuery)
			}
			if q.Has("category") {
				t.Errorf("empty filter should be omitted: %s", r.URL.RawQuery)
			}
			jsonResponse(w, 200, map[string]any{"entries": []Entry{{Seq: 9}, {Seq: 8}}, "has_more": true})
		},
	})
	entries, more, err := c.Ledger.List(context.Background(), "org-1", &ListOptions{Severity: "critical", Order: "desc", Limit: 5})
	if err != nil {
		t.Fatalf("List() error: %v", err)
	}
	if len(entries) != 2 || !more {
		t.Errorf("got %d entries, has_more=%v", len(entries), more)
	}
}

func TestVerify_BrokenChainIsNotAnError(t *testing.T) {
	_, c := newTestServer(t, map[string]http.HandlerFunc{
		"GET /api/v1/orgs/org-1/ledger/verify": func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Query().Get("from_seq") != "3" {
				t.Errorf("from_seq = %q", r.URL.Query().Get("from_seq"))
			}
			jsonResponse(w, 200, map[string]any{"organization_id": "org-1", "ok": false, "broken_at_seq": 4, "reason": "hash_mismatch"})
		},
	})
	from := int64(3)
	res, err := c.Ledger.Verify(context.Background(), "org-1", &from, nil)
	if err != nil {
		t.Fatalf("Verify() error: %v", err)
	}
	if res.OK || res.BrokenAtSeq == nil || *res.BrokenAtSeq != 4 {
		t.Errorf("got %+v", res)
	}
}

func TestMetadataNumbersDecodeExactly(t *testing.T) {
	_, c := newTestServer(t, map[string]http.HandlerFunc{
		"GET /api/v1/orgs/org-1/ledger": func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"entries":[{"seq":1,"metadata":{"amount":9007199254740993}}],"has_more":false}`)) //nolint:errcheck
		},
	})
	entries, _, err := c.Ledger.List(context.Background(), "org-1", nil)
	if err != nil {
		t.Fatalf("List() error: %v", err)
	}
	if got := entries[0].Metadata["amount"]; got != json.Number("9007199254740993") {
		t.Errorf("amount = %#v", got)
	}
}

func TestCheckpointAndRoots(t *testing.T) {
	_, c := newTestServer(t, map[string]http.HandlerFunc{
		"POST /api/v1/ledger/checkpoints": func(w http.ResponseWriter, _ *http.Request) {
			jsonResponse(w, 201, CheckpointResult{Created: true, Root: &Root{ID: 2, FirstSeq: 11, LastSeq: 20}})
		},
		"GET /api/v1/ledger/roots": func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Query().Get("from_seq") != "11" {
				t.Errorf("from_seq = %q", r.URL.Query().Get("from_seq"))
			}
			jsonResponse(w, 200, map[string]any{"roots": []Root{{ID: 2, FirstSeq: 11, LastSeq: 20}}})
		},
		"GET /api/v1/ledger/roots/2/verify": func(w http.ResponseWriter, _ *http.Request) {
			jsonResponse(w, 200, RootVerification{OK: true, EntryCount: 10})
		},
	})
	ctx := context.Background()

	cp, err := c.Anchors.Checkpoint(ctx)
	if err != nil || !cp.Created || cp.Root.LastSeq != 20 {
		t.Fatalf("Checkpoint() = %+v, %v", cp, err)
	}

	roots, err := c.Anchors.List(ctx, 11, 0, 0)
	if err != nil || len(roots) != 1 {
		t.Fatalf("List() = %v, %v", roots, err)
	}

	v, err := c.Anchors.Verify(ctx, 2)
	if err != nil || !v.OK || v.EntryCount != 10 {
		t.Fatalf("Verify() = %+v, %v", v, err)
	}
}

func TestAPIErrorHelpers(t *testing.T) {
	_, c := newTestServer(t, map[string]http.HandlerFunc{
		"GET /api/v1/orgs/missing/integrity": func(w http.ResponseWriter, _ *http.Request) {
			jsonResponse(w, 404, map[string]string{"code": "not_found", "message": "not found", "request_id": "r-1"})
		},
		"POST /api/v1/orgs/org-1/ledger": func(w http.ResponseWriter, _ *http.Request) {
			jsonResponse(w, 422, map[string]string{"code": "blocked", "message": "pending controls"})
		},
		"GET /api/v1/orgs/org-1/integrity": func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(502)
			w.Write([]byte("bad gateway")) //nolint:errcheck
		},
	})
	ctx := context.Background()

	_, err := c.Ledger.Integrity(ctx, "missing")
	if !IsNotFound(err) || IsConflict(err) {
		t.Errorf("expected not found, got %v", err)
	}

	_, err = c.Ledger.Append(ctx, "org-1", AppendRequest{EventName: "x", TargetType: "y"})
	if !IsBlocked(err) {
		t.Errorf("expected blocked, got %v", err)
	}

	_, err = c.Ledger.Integrity(ctx, "org-1")
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Code != "unknown" || apiErr.Message != "bad gateway" {
		t.Errorf("expected raw fallback, got %v", err)
	}
}
