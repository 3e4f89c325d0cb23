package session

import (
	"bytes"
	"database/sql"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/samber/lo"
)

// Column describes one column of a cached table.
type Column struct {
	Name         string `json:"name"`
	DatabaseType string `json:"database_type"`
	Nullable     bool   `json:"nullable"`
}

// Record is one table row keyed by column name.
type Record map[string]any

// Table is an in-memory snapshot of a server-side table taken at import
// time. Later writes on the server are not reflected in it.
type Table struct {
	Name       string    `json:"name"`
	Columns    []Column  `json:"columns"`
	Rows       [][]any   `json:"rows"`
	ImportedAt time.Time `json:"imported_at"`
}

// Len returns the number of rows in the snapshot.
func (t *Table) Len() int {
	return len(t.Rows)
}

// ColumnNames returns the column names in result order.
func (t *Table) ColumnNames() []string {
	return lo.Map(t.Columns, func(c Column, _ int) string { return c.Name })
}

// ColumnIndex returns the position of the named column, matched
// case-insensitively, or -1.
func (t *Table) ColumnIndex(name string) int {
	_, idx, ok := lo.FindIndexOf(t.Columns, func(c Column) bool {
		return strings.EqualFold(c.Name, name)
	})
	if !ok {
		return -1
	}
	return idx
}

// Value returns the value at row for the named column.
func (t *Table) Value(row int, column string) (any, bool) {
	idx := t.ColumnIndex(column)
	if idx < 0 || row < 0 || row >= len(t.Rows) {
		return nil, false
	}
	return t.Rows[row][idx], true
}

// Column returns every value of the named column.
func (t *Table) Column(name string) ([]any, error) {
	idx := t.ColumnIndex(name)
	if idx < 0 {
		return nil, fmt.Errorf("table %s has no column %q", t.Name, name)
	}
	return lo.Map(t.Rows, func(row []any, _ int) any { return row[idx] }), nil
}

// Records returns the rows as maps keyed by column name.
func (t *Table) Records() []Record {
	names := t.ColumnNames()
	return lo.Map(t.Rows, func(row []any, _ int) Record {
		return Record(toRecord(names, row))
	})
}

// Where returns the records for which pred holds.
func (t *Table) Where(pred func(Record) bool) []Record {
	return lo.Filter(t.Records(), func(r Record, _ int) bool { return pred(r) })
}

// Clone returns a deep copy so callers cannot alter the cached snapshot.
func (t *Table) Clone() *Table {
	out := &Table{
		Name:       t.Name,
		Columns:    append([]Column(nil), t.Columns...),
		Rows:       make([][]any, len(t.Rows)),
		ImportedAt: t.ImportedAt,
	}
	for i, row := range t.Rows {
		out.Rows[i] = lo.Map(row, func(v any, _ int) any {
			if b, ok := v.([]byte); ok {
				return bytes.Clone(b)
			}
			return v
		})
	}
	return out
}

var identifierPart = regexp.MustCompile(`^[A-Za-z0-9_$]{1,64}$`)

// quoteTableName validates name as table or schema.table and returns it
// backtick-quoted.
func quoteTableName(name string) (string, error) {
	parts := strings.Split(name, ".")
	if len(parts) > 2 {
		return "", fmt.Errorf("%w: %q", ErrInvalidTableName, name)
	}
	for i, part := range parts {
		if !identifierPart.MatchString(part) || strings.Trim(part, "0123456789") == "" {
			return "", fmt.Errorf("%w: %q", ErrInvalidTableName, name)
		}
		parts[i] = "`" + part + "`"
	}
	return strings.Join(parts, "."), nil
}

// readTable drains rows into a snapshot named name.
func readTable(rows *sql.Rows, name string, at time.Time) (*Table, error) {
	defer rows.Close()

	columnTypes, err := rows.ColumnTypes()
	if err != nil {
		return nil, driverError("read columns", err)
	}

	table := &Table{
		Name:       name,
		Columns:    make([]Column, len(columnTypes)),
		Rows:       make([][]any, 0),
		ImportedAt: at,
	}
	types := make([]string, len(columnTypes))
	for i, ct := range columnTypes {
		nullable, _ := ct.Nullable()
		types[i] = ct.DatabaseTypeName()
		table.Columns[i] = Column{Name: ct.Name(), DatabaseType: types[i], Nullable: nullable}
	}

	for rows.Next() {
		values, err := scanRow(rows, types)
		if err != nil {
			return nil, err
		}
		table.Rows = append(table.Rows, values)
	}
	if err := rows.Err(); err != nil {
		return nil, driverError("fetch", err)
	}
	return table, nil
}
