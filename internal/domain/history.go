package domain

import "time"

// EventType describes a persisted history entry for a stream.
type EventType string

// EventType values recorded by the append-only history ledger.
const (
	EventCreated         EventType = "created"
	EventStatusChanged   EventType = "status_changed"
	EventProgressUpdated EventType = "progress_updated"
	EventCompleted       EventType = "completed"
	EventArchived        EventType = "archived"
)

// HistoryEvent is one immutable audit record of a field-level stream change.
// OldValue and NewValue are opaque strings whose meaning depends on EventType.
type HistoryEvent struct {
	ID        int64
	StreamID  string
	EventType EventType
	OldValue  string
	NewValue  string
	Timestamp time.Time
}
