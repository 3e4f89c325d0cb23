package session

import (
	"database/sql"
	"sync"
)

// Cursor is a forward-only view over a query result. It is returned
// already positioned at the first row, so Scan or Values can be called
// straight away; Next advances to the following row.
//
// A cursor belongs to the session that produced it. The session closes it
// on the next Query, Execute, ImportTable, RefreshTable or Close, after
// which reads fail with ErrCursorClosed.
type Cursor struct {
	mu      sync.Mutex
	rows    *sql.Rows
	columns []string
	types   []string
	closed  bool
}

// newCursor advances rows onto the first row. It closes rows and returns
// ErrNoRows when the result is empty.
func newCursor(rows *sql.Rows) (*Cursor, error) {
	columnTypes, err := rows.ColumnTypes()
	if err != nil {
		_ = rows.Close()
		return nil, driverError("read columns", err)
	}

	if !rows.Next() {
		err := rows.Err()
		_ = rows.Close()
		if err != nil {
			return nil, driverError("fetch", err)
		}
		return nil, ErrNoRows
	}

	c := &Cursor{
		rows:    rows,
		columns: make([]string, len(columnTypes)),
		types:   make([]string, len(columnTypes)),
	}
	for i, ct := range columnTypes {
		c.columns[i] = ct.Name()
		c.types[i] = ct.DatabaseTypeName()
	}
	return c, nil
}

// Columns returns the result column names.
func (c *Cursor) Columns() []string {
	out := make([]string, len(c.columns))
	copy(out, c.columns)
	return out
}

// Scan copies the current row into dest, like sql.Rows.Scan.
func (c *Cursor) Scan(dest ...any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrCursorClosed
	}
	if err := c.rows.Scan(dest...); err != nil {
		return driverError("scan", err)
	}
	return nil
}

// Values returns the current row. Text columns come back as strings.
func (c *Cursor) Values() ([]any, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrCursorClosed
	}
	return scanRow(c.rows, c.types)
}

// Map returns the current row keyed by column name.
func (c *Cursor) Map() (map[string]any, error) {
	values, err := c.Values()
	if err != nil {
		return nil, err
	}
	return toRecord(c.columns, values), nil
}

// Next advances to the following row. It returns false at the end of the
// result or on error; the cursor is closed in both cases and Err reports
// any failure.
func (c *Cursor) Next() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	if c.rows.Next() {
		return true
	}
	c.closed = true
	_ = c.rows.Close()
	return false
}

// Err returns the error, if any, encountered while iterating.
func (c *Cursor) Err() error {
	if err := c.rows.Err(); err != nil {
		return driverError("fetch", err)
	}
	return nil
}

// Close releases the result set. Closing twice is harmless.
func (c *Cursor) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	if err := c.rows.Close(); err != nil {
		return driverError("close cursor", err)
	}
	return nil
}

// Closed reports whether the cursor has been closed or exhausted.
func (c *Cursor) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// scanRow reads the current row of rows into fresh values.
func scanRow(rows *sql.Rows, types []string) ([]any, error) {
	values := make([]any, len(types))
	ptrs := make([]any, len(types))
	for i := range values {
		ptrs[i] = &values[i]
	}
	if err := rows.Scan(ptrs...); err != nil {
		return nil, driverError("scan", err)
	}
	for i, v := range values {
		values[i] = normalizeValue(v, types[i])
	}
	return values, nil
}

// normalizeValue turns text payloads into strings. Binary column types
// keep their bytes.
func normalizeValue(v any, dbType string) any {
	b, ok := v.([]byte)
	if !ok {
		return v
	}
	if isBinaryType(dbType) {
		return b
	}
	return string(b)
}

func isBinaryType(dbType string) bool {
	switch dbType {
	case "BINARY", "VARBINARY", "BLOB", "TINYBLOB", "MEDIUMBLOB", "LONGBLOB", "BIT", "GEOMETRY":
		return true
	}
	return false
}

func toRecord(columns []string, values []any) map[string]any {
	record := make(map[string]any, len(columns))
	for i, name := range columns {
		record[name] = values[i]
	}
	return record
}
