package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// EventType names the session change an audit event records.
type EventType string

const (
	EventStatementExecuted EventType = "statement_executed"
	EventTableImported     EventType = "table_imported"
	EventTableRefreshed    EventType = "table_refreshed"
	EventTableDropped      EventType = "table_dropped"
)

// MaxStatementLen caps the SQL text carried by an event, in bytes.
const MaxStatementLen = 4096

// Event is a single audit record emitted after a successful write or a
// change to the table cache.
type Event struct {
	ID           string    `json:"id"`
	Type         EventType `json:"type"`
	Database     string    `json:"database"`
	Table        string    `json:"table,omitempty"`
	Statement    string    `json:"statement,omitempty"` // credentials masked, capped at MaxStatementLen
	RowsAffected *int64    `json:"rows_affected,omitempty"`
	RowCount     *int      `json:"row_count,omitempty"`
	OccurredAt   time.Time `json:"occurred_at"`
}

// NewEvent stamps a fresh event with a random ID.
func NewEvent(t EventType, database string, at time.Time) Event {
	return Event{
		ID:         uuid.New().String(),
		Type:       t,
		Database:   database,
		OccurredAt: at,
	}
}

// Key is the partitioning key: the table when the event is about one,
// otherwise the database.
func (e Event) Key() string {
	if e.Table != "" {
		return e.Database + "." + e.Table
	}
	return e.Database
}

// Publisher ships audit events to an external sink.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
	Close() error
}

// NoopPublisher drops every event. Used when no broker is configured.
type NoopPublisher struct{}

func (NoopPublisher) Publish(context.Context, Event) error { return nil }
func (NoopPublisher) Close() error                         { return nil }
