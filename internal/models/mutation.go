package models

import "time"

// Watched entity types.
const (
	EntityJob      = "job"
	EntityControl  = "control"
	EntityEvidence = "evidence"
	EntityExport   = "export"
)

// MutationOp is the shape of a row change.
type MutationOp string

// Mutation operations.
const (
	OpInsert MutationOp = "insert"
	OpUpdate MutationOp = "update"
	OpDelete MutationOp = "delete"
)

// Mutation describes one committed row change on a watched entity. Old is nil
// for inserts and New is nil for deletes.
type Mutation struct {
	EntityType     string
	Op             MutationOp
	OrganizationID string
	EntityID       string
	Old            map[string]any
	New            map[string]any
}

// Changed reports whether field differs between the old and new snapshots.
func (m *Mutation) Changed(field string) bool {
	if m.Op != OpUpdate {
		return false
	}

	oldVal, hadOld := m.Old[field]
	newVal, hasNew := m.New[field]
	if hadOld != hasNew {
		return true
	}

	return oldVal != newVal
}

// Current returns the most recent snapshot: New, or Old for deletes.
func (m *Mutation) Current() map[string]any {
	if m.New != nil {
		return m.New
	}

	return m.Old
}

// NewInsert builds an insert mutation.
func NewInsert(entityType, orgID, entityID string, snapshot map[string]any) Mutation {
	return Mutation{EntityType: entityType, Op: OpInsert, OrganizationID: orgID, EntityID: entityID, New: snapshot}
}

// NewUpdate builds an update mutation.
func NewUpdate(entityType, orgID, entityID string, before, after map[string]any) Mutation {
	return Mutation{EntityType: entityType, Op: OpUpdate, OrganizationID: orgID, EntityID: entityID, Old: before, New: after}
}

// NewDelete builds a delete mutation.
func NewDelete(entityType, orgID, entityID string, snapshot map[string]any) Mutation {
	return Mutation{EntityType: entityType, Op: OpDelete, OrganizationID: orgID, EntityID: entityID, Old: snapshot}
}

// snapshotTime renders an optional timestamp for a snapshot.
func snapshotTime(t *time.Time) any {
	if t == nil {
		return nil
	}

	return t.UTC().Format(time.RFC3339Nano)
}
