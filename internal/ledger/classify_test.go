package ledger

import (
	"testing"

	"github.com/persistorai/ledger/internal/models"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		event string
		want  Classification
	}{
		{"job.created", Classification{models.CategoryOperations, models.SeverityInfo, models.OutcomeAllowed}},
		{"job.completion_blocked", Classification{models.CategoryGovernance, models.SeverityCritical, models.OutcomeBlocked}},
		{"policy.violation_detected", Classification{models.CategoryGovernance, models.SeverityCritical, models.OutcomeBlocked}},
		{"job.deleted", Classification{models.CategoryOperations, models.SeverityMaterial, models.OutcomeAllowed}},
		{"control.waived", Classification{models.CategoryGovernance, models.SeverityMaterial, models.OutcomeAllowed}},
		{"evidence.sealed", Classification{models.CategoryGovernance, models.SeverityInfo, models.OutcomeAllowed}},
		{"team.member_role_changed", Classification{models.CategoryAccess, models.SeverityInfo, models.OutcomeAllowed}},
		{"team.role_changed", Classification{models.CategoryAccess, models.SeverityMaterial, models.OutcomeAllowed}},
		{"access.denied", Classification{models.CategoryAccess, models.SeverityMaterial, models.OutcomeBlocked}},
		{"team.invite_sent", Classification{models.CategoryAccess, models.SeverityInfo, models.OutcomeAllowed}},
		{"export.failed", Classification{models.CategoryOperations, models.SeverityMaterial, models.OutcomeAllowed}},
	}

	for _, tt := range tests {
		t.Run(tt.event, func(t *testing.T) {
			if got := Classify(tt.event); got != tt.want {
				t.Fatalf("Classify(%q) = %+v, want %+v", tt.event, got, tt.want)
			}
		})
	}
}

func TestClassify_KeepsCallerValues(t *testing.T) {
	d := models.Draft{EventName: "job.completion_blocked", Severity: models.SeverityMaterial}
	classify(&d)

	if d.Severity != models.SeverityMaterial {
		t.Errorf("severity = %q, want caller-supplied material", d.Severity)
	}

	if d.Outcome != models.OutcomeBlocked {
		t.Errorf("outcome = %q, want blocked", d.Outcome)
	}

	if d.Category != models.CategoryGovernance {
		t.Errorf("category = %q, want governance", d.Category)
	}
}
