package generic

import "time"

// RecordState is the soft-delete state of a stored record.
type RecordState string

const (
	StateActive   RecordState = "active"
	StateArchived RecordState = "archived"
)

// Lifecycle tracks whether a record is archived. The fields are unexported so
// the only way to change state is Archive or Restore.
type Lifecycle struct {
	state      RecordState
	archivedAt time.Time
}

// LoadLifecycle rebuilds a Lifecycle from storage. A nil archivedAt means active.
func LoadLifecycle(archivedAt *time.Time) Lifecycle {
	if archivedAt == nil || archivedAt.IsZero() {
		return Lifecycle{state: StateActive}
	}
	return Lifecycle{state: StateArchived, archivedAt: *archivedAt}
}

func (l Lifecycle) State() RecordState {
	if l.state == "" {
		return StateActive
	}
	return l.state
}

func (l Lifecycle) IsArchived() bool { return l.State() == StateArchived }

// ArchivedAt is nil while active.
func (l Lifecycle) ArchivedAt() *time.Time {
	if !l.IsArchived() {
		return nil
	}
	at := l.archivedAt
	return &at
}

// Archive moves an active record to archived.
func (l *Lifecycle) Archive(entity string, at time.Time) error {
	if l.IsArchived() {
		return Conflict(entity, "already archived")
	}
	l.state = StateArchived
	l.archivedAt = at
	return nil
}

// Restore moves an archived record back to active.
func (l *Lifecycle) Restore(entity string) error {
	if !l.IsArchived() {
		return Conflict(entity, "not archived")
	}
	l.state = StateActive
	l.archivedAt = time.Time{}
	return nil
}
