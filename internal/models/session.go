package models

import (
	"time"

	"github.com/dhima/mysql-connector/internal/session"
)

// StatementRequest carries one SQL statement.
type StatementRequest struct {
	SQL string `json:"sql" example:"SELECT id, name FROM users"`
	// MaxRows caps the rows a query returns; zero means DefaultMaxRows.
	MaxRows int `json:"max_rows,omitempty" example:"100"`
}

// DefaultMaxRows is used when a query request sets no limit.
const DefaultMaxRows = 1000

// QueryResponse is a drained cursor.
type QueryResponse struct {
	Columns   []string `json:"columns"`
	Rows      [][]any  `json:"rows"`
	Truncated bool     `json:"truncated"`
}

// ExecuteResponse reports the outcome of a write statement.
// RowsAffected is omitted for statements that report no row count.
type ExecuteResponse struct {
	RowsAffected *int64 `json:"rows_affected,omitempty"`
	RowCount     bool   `json:"row_count_reported"`
}

// SessionStatus describes the session behind the API.
type SessionStatus struct {
	Initialized bool     `json:"initialized"`
	Open        bool     `json:"open"`
	LastError   string   `json:"last_error,omitempty"`
	Tables      []string `json:"tables"`
}

// TableListResponse lists the cached snapshots.
type TableListResponse struct {
	Tables []string `json:"tables"`
}

// TableResponse is a cached table snapshot.
type TableResponse struct {
	Name       string           `json:"name"`
	Columns    []session.Column `json:"columns"`
	Rows       [][]any          `json:"rows"`
	RowCount   int              `json:"row_count"`
	ImportedAt time.Time        `json:"imported_at"`
}

// NewTableResponse converts a snapshot for the wire.
func NewTableResponse(t *session.Table) TableResponse {
	return TableResponse{
		Name:       t.Name,
		Columns:    t.Columns,
		Rows:       t.Rows,
		RowCount:   t.Len(),
		ImportedAt: t.ImportedAt,
	}
}
