package ledger

import (
	"testing"

	"github.com/persistorai/ledger/internal/models"
)

func jobSnap(status, assignee string) map[string]any {
	return map[string]any{"id": "job-1", "title": "Trench", "status": status, "assigned_to": assignee}
}

func TestDefaultRules_JobShapes(t *testing.T) {
	r := DefaultRegistry()

	tests := []struct {
		name string
		m    models.Mutation
		want string
	}{
		{"insert", models.NewInsert(models.EntityJob, "org", "job-1", jobSnap("planned", "")), "job.created"},
		{"completed", models.NewUpdate(models.EntityJob, "org", "job-1", jobSnap("in_progress", ""), jobSnap("completed", "")), "job.completed"},
		{"status", models.NewUpdate(models.EntityJob, "org", "job-1", jobSnap("planned", ""), jobSnap("in_progress", "")), "job.status_changed"},
		{"reassigned", models.NewUpdate(models.EntityJob, "org", "job-1", jobSnap("planned", "a"), jobSnap("planned", "b")), "job.reassigned"},
		{"other", models.NewUpdate(models.EntityJob, "org", "job-1",
			map[string]any{"title": "Trench", "status": "planned"}, map[string]any{"title": "Pit", "status": "planned"}), "job.updated"},
		{"delete", models.NewDelete(models.EntityJob, "org", "job-1", jobSnap("planned", "")), "job.deleted"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rule, ok := r.Match(&tt.m)
			if !ok {
				t.Fatal("expected a rule to match")
			}

			if rule.EventName != tt.want {
				t.Fatalf("event = %q, want %q", rule.EventName, tt.want)
			}
		})
	}
}

func TestDefaultRules_OtherEntityShapes(t *testing.T) {
	r := DefaultRegistry()

	tests := []struct {
		name string
		m    models.Mutation
		want string
	}{
		{"control waived", models.NewUpdate(models.EntityControl, "org", "c",
			map[string]any{"status": "pending"}, map[string]any{"status": "waived"}), "control.waived"},
		{"control completed", models.NewUpdate(models.EntityControl, "org", "c",
			map[string]any{"status": "pending"}, map[string]any{"status": "completed"}), "control.completed"},
		{"control reopened", models.NewUpdate(models.EntityControl, "org", "c",
			map[string]any{"status": "waived"}, map[string]any{"status": "pending"}), "control.status_changed"},
		{"evidence sealed", models.NewUpdate(models.EntityEvidence, "org", "e",
			map[string]any{"sealed_at": nil}, map[string]any{"sealed_at": "2026-03-01T08:30:00Z"}), "evidence.sealed"},
		{"evidence unsealed", models.NewUpdate(models.EntityEvidence, "org", "e",
			map[string]any{"sealed_at": "2026-03-01T08:30:00Z"}, map[string]any{"sealed_at": nil}), "evidence.updated"},
		{"export failed", models.NewUpdate(models.EntityExport, "org", "x",
			map[string]any{"status": "queued"}, map[string]any{"status": "failed"}), "export.failed"},
		{"export requested", models.NewInsert(models.EntityExport, "org", "x", map[string]any{"status": "queued"}), "export.requested"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rule, ok := r.Match(&tt.m)
			if !ok || rule.EventName != tt.want {
				t.Fatalf("matched %q (ok=%v), want %q", rule.EventName, ok, tt.want)
			}
		})
	}
}

func TestDefaultRules_EveryWatchedMutationMatches(t *testing.T) {
	r := DefaultRegistry()
	ops := []models.MutationOp{models.OpInsert, models.OpUpdate, models.OpDelete}

	for _, entity := range []string{models.EntityJob, models.EntityControl, models.EntityEvidence, models.EntityExport} {
		if !r.Watches(entity) {
			t.Fatalf("%s is not watched", entity)
		}

		for _, op := range ops {
			m := models.Mutation{
				EntityType: entity, Op: op, OrganizationID: "org", EntityID: "x",
				Old: map[string]any{"a": "1"}, New: map[string]any{"a": "1"},
			}

			if _, ok := r.Match(&m); !ok {
				t.Fatalf("no rule for %s %s", entity, op)
			}
		}
	}

	if r.Watches("invoice") {
		t.Fatal("unregistered entity reported as watched")
	}
}

func TestRegistry_Fallback(t *testing.T) {
	r := DefaultRegistry()
	m := models.NewUpdate(models.EntityJob, "org-a", "job-1", jobSnap("planned", ""), jobSnap("in_progress", ""))

	d, ok := r.Fallback(&m)
	if !ok {
		t.Fatal("expected a fallback draft")
	}

	if d.OrganizationID != "org-a" || d.TargetType != models.EntityJob || d.TargetID != "job-1" {
		t.Fatalf("unexpected target: %+v", d)
	}

	if d.EventName != "job.status_changed" {
		t.Fatalf("event = %q", d.EventName)
	}

	want := map[string]any{
		"source": "auto", "op": "update",
		"field": "status", "from": "planned", "to": "in_progress",
		"title": "Trench", "status": "in_progress", "assigned_to": "",
	}
	for k, v := range want {
		if d.Metadata[k] != v {
			t.Errorf("metadata[%s] = %v, want %v", k, d.Metadata[k], v)
		}
	}

	if _, ok := d.Metadata["id"]; ok {
		t.Error("unprojected field copied into metadata")
	}
}

func TestRegistry_FallbackListsChangedFields(t *testing.T) {
	r := DefaultRegistry()
	m := models.NewUpdate(models.EntityJob, "org-a", "job-1",
		map[string]any{"title": "Trench", "status": "planned"},
		map[string]any{"title": "Pit", "status": "planned", "notes": "x"})

	d, ok := r.Fallback(&m)
	if !ok || d.EventName != "job.updated" {
		t.Fatalf("unexpected fallback: %+v, %v", d, ok)
	}

	changed, _ := d.Metadata["changed"].([]string)
	if len(changed) != 2 || changed[0] != "notes" || changed[1] != "title" {
		t.Fatalf("changed = %v, want [notes title]", d.Metadata["changed"])
	}
}

func TestRegistry_RegisterValidates(t *testing.T) {
	bad := []Rule{
		{Op: models.OpInsert, EventName: "x.created"},
		{EntityType: "x", Op: models.OpInsert},
		{EntityType: "x", Op: "upsert", EventName: "x.upserted"},
		{EntityType: "x", Op: models.OpInsert, Field: "status", EventName: "x.created"},
		{EntityType: "x", Op: models.OpUpdate, To: "done", EventName: "x.done"},
		{EntityType: "x", Op: models.OpUpdate, Field: "status", To: "[", EventName: "x.bad"},
	}

	for i, rule := range bad {
		if _, err := NewRegistry(rule); err == nil {
			t.Errorf("rule %d: expected registration error", i)
		}
	}
}

func TestRegistry_FirstMatchWins(t *testing.T) {
	r, err := NewRegistry(
		Rule{EntityType: "x", Op: models.OpUpdate, EventName: "x.updated"},
		Rule{EntityType: "x", Op: models.OpUpdate, Field: "status", EventName: "x.status_changed"},
	)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	m := models.NewUpdate("x", "org", "1", map[string]any{"status": "a"}, map[string]any{"status": "b"})
	if rule, _ := r.Match(&m); rule.EventName != "x.updated" {
		t.Fatalf("matched %q, want the earlier catch-all", rule.EventName)
	}
}
