package ledger

import (
	"github.com/gobwas/glob"

	"github.com/persistorai/ledger/internal/models"
)

// Classification is the category, severity and outcome derived from an event name.
type Classification struct {
	Category string
	Severity string
	Outcome  string
}

type classRule struct {
	pattern glob.Glob
	value   string
}

func compileClassRules(value string, patterns ...string) []classRule {
	rules := make([]classRule, 0, len(patterns))
	for _, p := range patterns {
		rules = append(rules, classRule{pattern: glob.MustCompile(p), value: value})
	}

	return rules
}

// Evaluated in order; the first matching pattern decides.
var (
	outcomeRules = compileClassRules(models.OutcomeBlocked,
		"*violation*", "*blocked*", "*denied*", "*rejected*")

	severityRules = append(
		compileClassRules(models.SeverityCritical, "*violation*", "*blocked*"),
		compileClassRules(models.SeverityMaterial,
			"*.deleted", "*.removed", "*.revoked", "*.waived", "*.failed",
			"*denied*", "*rejected*", "*.role_changed", "*overdue*", "*flagged*")...,
	)

	categoryRules = append(
		compileClassRules(models.CategoryAccess,
			"team.*", "access.*", "auth.*", "*.role_changed", "*invite*", "*.member_*"),
		compileClassRules(models.CategoryGovernance,
			"*violation*", "*blocked*", "policy.*", "*.attested", "*.signed_off", "*.sealed", "*.waived")...,
	)
)

func firstMatch(rules []classRule, name, fallback string) string {
	for _, r := range rules {
		if r.pattern.Match(name) {
			return r.value
		}
	}

	return fallback
}

// Classify derives an entry's classification from its event name.
func Classify(eventName string) Classification {
	return Classification{
		Category: firstMatch(categoryRules, eventName, models.CategoryOperations),
		Severity: firstMatch(severityRules, eventName, models.SeverityInfo),
		Outcome:  firstMatch(outcomeRules, eventName, models.OutcomeAllowed),
	}
}

// classify fills the classification fields the caller left empty.
func classify(d *models.Draft) {
	c := Classify(d.EventName)
	if d.Category == "" {
		d.Category = c.Category
	}

	if d.Severity == "" {
		d.Severity = c.Severity
	}

	if d.Outcome == "" {
		d.Outcome = c.Outcome
	}
}
