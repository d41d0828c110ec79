package ledger

import (
	"errors"
	"fmt"
	"sort"

	"github.com/gobwas/glob"

	"github.com/persistorai/ledger/internal/models"
)

// Rule maps one mutation shape on a watched entity to a fallback entry.
type Rule struct {
	EntityType string
	Op         models.MutationOp

	// Field restricts an update rule to mutations that changed this field.
	Field string

	// To is a glob the field's new value must match. Empty matches any value.
	To string

	EventName string

	// Project lists snapshot fields copied into the entry's metadata.
	Project []string
}

type compiledRule struct {
	Rule
	to glob.Glob
}

func (r *compiledRule) matches(m *models.Mutation) bool {
	if r.Op != m.Op {
		return false
	}

	if r.Field == "" {
		return true
	}

	if !m.Changed(r.Field) {
		return false
	}

	return r.to == nil || r.to.Match(snapshotString(m.New[r.Field]))
}

// Registry holds the auto-logger rules, grouped by entity type and evaluated
// in registration order. The first matching rule wins. Rules are registered
// at startup; a Registry is read-only afterwards.
type Registry struct {
	rules map[string][]compiledRule
}

// NewRegistry creates a Registry holding rules.
func NewRegistry(rules ...Rule) (*Registry, error) {
	r := &Registry{rules: make(map[string][]compiledRule)}
	if err := r.Register(rules...); err != nil {
		return nil, err
	}

	return r, nil
}

// Register appends rules after the ones already registered.
func (r *Registry) Register(rules ...Rule) error {
	for _, rule := range rules {
		if rule.EntityType == "" || rule.EventName == "" {
			return errors.New("auto-log rule needs an entity type and an event name")
		}

		switch rule.Op {
		case models.OpInsert, models.OpUpdate, models.OpDelete:
		default:
			return fmt.Errorf("auto-log rule %s: unknown op %q", rule.EventName, rule.Op)
		}

		if rule.Field != "" && rule.Op != models.OpUpdate {
			return fmt.Errorf("auto-log rule %s: field transitions apply to updates only", rule.EventName)
		}

		cr := compiledRule{Rule: rule}
		if rule.To != "" {
			if rule.Field == "" {
				return fmt.Errorf("auto-log rule %s: target value without a field", rule.EventName)
			}

			g, err := glob.Compile(rule.To)
			if err != nil {
				return fmt.Errorf("auto-log rule %s: compiling %q: %w", rule.EventName, rule.To, err)
			}
			cr.to = g
		}

		r.rules[rule.EntityType] = append(r.rules[rule.EntityType], cr)
	}

	return nil
}

// Watches reports whether any rule covers entityType.
func (r *Registry) Watches(entityType string) bool {
	return len(r.rules[entityType]) > 0
}

// Match returns the first rule matching m.
func (r *Registry) Match(m *models.Mutation) (Rule, bool) {
	for i := range r.rules[m.EntityType] {
		if cr := &r.rules[m.EntityType][i]; cr.matches(m) {
			return cr.Rule, true
		}
	}

	return Rule{}, false
}

// Fallback builds the generic entry describing m, or reports false when no
// rule matches.
func (r *Registry) Fallback(m *models.Mutation) (models.Draft, bool) {
	rule, ok := r.Match(m)
	if !ok {
		return models.Draft{}, false
	}

	current := m.Current()
	meta := map[string]any{
		"source": "auto",
		"op":     string(m.Op),
	}

	for _, f := range rule.Project {
		if v, ok := current[f]; ok {
			meta[f] = v
		}
	}

	switch {
	case rule.Field != "":
		meta["field"] = rule.Field
		meta["from"] = m.Old[rule.Field]
		meta["to"] = m.New[rule.Field]
	case m.Op == models.OpUpdate:
		meta["changed"] = changedFields(m)
	}

	return models.Draft{
		OrganizationID: m.OrganizationID,
		EventName:      rule.EventName,
		TargetType:     m.EntityType,
		TargetID:       m.EntityID,
		Metadata:       meta,
	}, true
}

func changedFields(m *models.Mutation) []string {
	seen := make(map[string]struct{}, len(m.New))
	for k := range m.Old {
		seen[k] = struct{}{}
	}

	for k := range m.New {
		seen[k] = struct{}{}
	}

	changed := make([]string, 0, len(seen))
	for k := range seen {
		if m.Changed(k) {
			changed = append(changed, k)
		}
	}

	sort.Strings(changed)

	return changed
}

func snapshotString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	default:
		return fmt.Sprint(t)
	}
}
