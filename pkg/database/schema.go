package database

import (
	"fmt"
	"strings"
)

// TimestampColumn is the primary key shared by every benchmark table
const TimestampColumn = "s_time"

// DefaultTables returns the fixed set of benchmark tables Table_0..Table_4.
// Column counts and types differ per table.
func DefaultTables() []TableSchema {
	return []TableSchema{
		{Name: "Table_0", Columns: columns("Col", ColumnText, 20)},
		{Name: "Table_1", Columns: columns("Val", ColumnReal, 12)},
		{Name: "Table_2", Columns: append(columns("Cnt", ColumnInteger, 8), columns("Tag", ColumnText, 4)...)},
		{Name: "Table_3", Columns: append(columns("Col", ColumnText, 10), columns("Val", ColumnReal, 6)...)},
		{Name: "Table_4", Columns: append(columns("Raw", ColumnBlob, 4), columns("Cnt", ColumnInteger, 2)...)},
	}
}

func columns(prefix string, typ ColumnType, n int) []Column {
	cols := make([]Column, n)
	for i := range cols {
		cols[i] = Column{Name: fmt.Sprintf("%s%d", prefix, i), Type: typ}
	}
	return cols
}

// CreateTableSQL returns an idempotent CREATE TABLE statement for the schema
func (t TableSchema) CreateTableSQL() string {
	var b strings.Builder
	fmt.Fprintf(&b, "CREATE TABLE IF NOT EXISTS %s (\n    %s REAL PRIMARY KEY", t.Name, TimestampColumn)
	for _, c := range t.Columns {
		fmt.Fprintf(&b, ",\n    %s %s", c.Name, c.Type)
	}
	b.WriteString("\n)")
	return b.String()
}

// InsertSQL returns the parameterized insert used by the writer.
// The timestamp is the first parameter, followed by the payload columns in order.
func (t TableSchema) InsertSQL() string {
	names := make([]string, 0, len(t.Columns)+1)
	params := make([]string, 0, len(t.Columns)+1)
	names = append(names, TimestampColumn)
	params = append(params, "?")
	for _, c := range t.Columns {
		names = append(names, c.Name)
		params = append(params, "?")
	}
	return fmt.Sprintf("INSERT OR REPLACE INTO %s (%s) VALUES (%s)",
		t.Name, strings.Join(names, ", "), strings.Join(params, ", "))
}

// CountSQL returns the row-count query the reader polls
func (t TableSchema) CountSQL() string {
	return fmt.Sprintf("SELECT COUNT(*) FROM %s", t.Name)
}

// MaxTimestampSQL returns the query for the newest simulated timestamp
func (t TableSchema) MaxTimestampSQL() string {
	return fmt.Sprintf("SELECT MAX(%s) FROM %s", TimestampColumn, t.Name)
}

// DummyValues returns the fixed payload arguments for one row, excluding
// the timestamp. The slice is built once per table and reused for every insert.
func (t TableSchema) DummyValues() []interface{} {
	values := make([]interface{}, len(t.Columns))
	for i, c := range t.Columns {
		values[i] = dummyValue(t.Name, i, c.Type)
	}
	return values
}

func dummyValue(table string, index int, typ ColumnType) interface{} {
	switch typ {
	case ColumnReal:
		return float64(index) + 0.5
	case ColumnInteger:
		return int64(index * 1000)
	case ColumnBlob:
		return []byte(strings.Repeat("x", 256))
	default:
		return fmt.Sprintf("Val_%s_%d_%s", table, index, strings.Repeat("d", 32))
	}
}
