/*
store.go - Audit trail contract

PURPOSE:
  Every successful mutation in the leave core reports what changed. The
  core builds an AuditEntry (action, entity, actor, before/after diff) and
  hands it to an AuditLog; how the log is stored is the store's business.

APPEND-ONLY:
  Audit entries are never updated or deleted. They are written in the same
  database transaction as the change they describe, so a rolled-back
  mutation leaves no audit record behind.

SEE ALSO:
  - leave/store.go: Repository contract (embeds AuditLog)
  - store/sqlstore: audit_log table
*/
package generic

import (
	"context"
	"slices"
	"sort"
	"time"
)

// =============================================================================
// AUDIT LOG - Tracks who did what when
// =============================================================================

type AuditAction string

const (
	AuditCreated   AuditAction = "create"
	AuditUpdated   AuditAction = "update"
	AuditActivated AuditAction = "activate"
	AuditRetired   AuditAction = "retire"
	AuditArchived  AuditAction = "archive"
	AuditPosted    AuditAction = "post"
	AuditApproved  AuditAction = "approve"
	AuditRejected  AuditAction = "reject"
	AuditCancelled AuditAction = "cancel"
	AuditPaid      AuditAction = "mark_paid"
	AuditOpened    AuditAction = "open"
	AuditClosed    AuditAction = "close"
	AuditReopened  AuditAction = "reopen"
)

// AuditEntry records who did what when.
type AuditEntry struct {
	ID        string
	Timestamp time.Time
	ActorID   string
	Action    AuditAction
	Entity    string
	EntityID  string
	Changes   []FieldChange
}

// FieldChange is one entry of a before/after diff. Empty Before means the
// field was introduced by a create.
type FieldChange struct {
	Field  string `json:"field"`
	Before string `json:"before,omitempty"`
	After  string `json:"after,omitempty"`
}

// AuditLog stores audit entries. Append-only.
type AuditLog interface {
	AppendAudit(ctx context.Context, entry AuditEntry) error
	QueryAudit(ctx context.Context, filter AuditFilter) ([]AuditEntry, error)
}

// AuditFilter narrows QueryAudit. Zero fields match everything.
type AuditFilter struct {
	Entity   string
	EntityID string
	ActorID  string
	Actions  []AuditAction
	Limit    int
}

// Matches reports whether e passes the filter.
func (f AuditFilter) Matches(e AuditEntry) bool {
	if f.Entity != "" && e.Entity != f.Entity {
		return false
	}
	if f.EntityID != "" && e.EntityID != f.EntityID {
		return false
	}
	if f.ActorID != "" && e.ActorID != f.ActorID {
		return false
	}
	if len(f.Actions) > 0 && !slices.Contains(f.Actions, e.Action) {
		return false
	}
	return true
}

// Snapshot is a flat field -> rendered value view of a record used for diffs.
type Snapshot map[string]string

// Diff lists every field whose rendered value differs between before and
// after, sorted by field name. A nil before describes a create.
func Diff(before, after Snapshot) []FieldChange {
	keys := make(map[string]struct{}, len(after))
	for k := range before {
		keys[k] = struct{}{}
	}
	for k := range after {
		keys[k] = struct{}{}
	}

	var changes []FieldChange
	for k := range keys {
		b, a := before[k], after[k]
		if b == a {
			continue
		}
		changes = append(changes, FieldChange{Field: k, Before: b, After: a})
	}
	sort.Slice(changes, func(i, j int) bool { return changes[i].Field < changes[j].Field })
	return changes
}
