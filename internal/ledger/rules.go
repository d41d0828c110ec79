package ledger

import "github.com/persistorai/ledger/internal/models"

// DefaultRules returns the rule sets for every watched entity. Each set ends
// with unconditional insert, update and delete rules, so any mutation of a
// watched entity yields a fallback entry.
func DefaultRules() []Rule {
	var rules []Rule
	rules = append(rules, jobRules()...)
	rules = append(rules, controlRules()...)
	rules = append(rules, evidenceRules()...)
	rules = append(rules, exportRules()...)

	return rules
}

// DefaultRegistry returns a Registry loaded with DefaultRules.
func DefaultRegistry() *Registry {
	r, err := NewRegistry(DefaultRules()...)
	if err != nil {
		panic(err)
	}

	return r
}

func jobRules() []Rule {
	project := []string{"title", "status", "assigned_to"}

	return []Rule{
		{EntityType: models.EntityJob, Op: models.OpInsert, EventName: "job.created", Project: project},
		{EntityType: models.EntityJob, Op: models.OpUpdate, Field: "status", To: models.JobCompleted, EventName: "job.completed", Project: project},
		{EntityType: models.EntityJob, Op: models.OpUpdate, Field: "status", EventName: "job.status_changed", Project: project},
		{EntityType: models.EntityJob, Op: models.OpUpdate, Field: "assigned_to", EventName: "job.reassigned", Project: project},
		{EntityType: models.EntityJob, Op: models.OpUpdate, EventName: "job.updated", Project: project},
		{EntityType: models.EntityJob, Op: models.OpDelete, EventName: "job.deleted", Project: project},
	}
}

func controlRules() []Rule {
	project := []string{"job_id", "description", "status"}

	return []Rule{
		{EntityType: models.EntityControl, Op: models.OpInsert, EventName: "control.added", Project: project},
		{
			EntityType: models.EntityControl, Op: models.OpUpdate, Field: "status", To: models.ControlCompleted,
			EventName: "control.completed", Project: append(project, "completed_by", "completed_at"),
		},
		{EntityType: models.EntityControl, Op: models.OpUpdate, Field: "status", To: models.ControlWaived, EventName: "control.waived", Project: project},
		{EntityType: models.EntityControl, Op: models.OpUpdate, Field: "status", EventName: "control.status_changed", Project: project},
		{EntityType: models.EntityControl, Op: models.OpUpdate, EventName: "control.updated", Project: project},
		{EntityType: models.EntityControl, Op: models.OpDelete, EventName: "control.removed", Project: project},
	}
}

func evidenceRules() []Rule {
	project := []string{"job_id", "file_name", "sha256"}

	return []Rule{
		{EntityType: models.EntityEvidence, Op: models.OpInsert, EventName: "evidence.uploaded", Project: append(project, "size_bytes", "uploaded_by")},
		{
			EntityType: models.EntityEvidence, Op: models.OpUpdate, Field: "sealed_at", To: "?*",
			EventName: "evidence.sealed", Project: append(project, "sealed_by"),
		},
		{EntityType: models.EntityEvidence, Op: models.OpUpdate, EventName: "evidence.updated", Project: project},
		{EntityType: models.EntityEvidence, Op: models.OpDelete, EventName: "evidence.deleted", Project: project},
	}
}

func exportRules() []Rule {
	project := []string{"job_id", "kind", "status"}

	return []Rule{
		{EntityType: models.EntityExport, Op: models.OpInsert, EventName: "export.requested", Project: append(project, "requested_by")},
		{
			EntityType: models.EntityExport, Op: models.OpUpdate, Field: "status", To: models.ExportCompleted,
			EventName: "export.completed", Project: append(project, "file_hash", "completed_at"),
		},
		{
			EntityType: models.EntityExport, Op: models.OpUpdate, Field: "status", To: models.ExportFailed,
			EventName: "export.failed", Project: append(project, "failure_reason"),
		},
		{EntityType: models.EntityExport, Op: models.OpUpdate, EventName: "export.updated", Project: project},
		{EntityType: models.EntityExport, Op: models.OpDelete, EventName: "export.deleted", Project: project},
	}
}
