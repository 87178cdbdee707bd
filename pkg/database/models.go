package database

import (
	"strings"

	"github.com/cockroachdb/errors"
)

// JournalMode selects how the engine makes changes durable
type JournalMode string

const (
	JournalWAL     JournalMode = "WAL"     // write-ahead log, separate checkpointing
	JournalDefault JournalMode = "DEFAULT" // engine default rollback journal
	JournalMemory  JournalMode = "MEMORY"  // non-durable in-memory journal
)

// JournalModes lists every mode in the order the performance comparison runs them
var JournalModes = []JournalMode{JournalWAL, JournalDefault, JournalMemory}

// ParseJournalMode parses a case-insensitive journal mode name
func ParseJournalMode(s string) (JournalMode, error) {
	switch mode := JournalMode(strings.ToUpper(strings.TrimSpace(s))); mode {
	case JournalWAL, JournalDefault, JournalMemory:
		return mode, nil
	default:
		return "", errors.Newf("invalid journal mode %q (valid: WAL, DEFAULT, MEMORY)", s)
	}
}

// ColumnType is the declared SQLite type of a payload column
type ColumnType string

const (
	ColumnText    ColumnType = "TEXT"
	ColumnReal    ColumnType = "REAL"
	ColumnInteger ColumnType = "INTEGER"
	ColumnBlob    ColumnType = "BLOB"
)

// Column is one payload column of a benchmark table
type Column struct {
	Name string
	Type ColumnType
}

// TableSchema describes a benchmark table. Every table is keyed by the
// simulated timestamp column s_time; the payload columns only exist to
// give inserts a representative cost.
type TableSchema struct {
	Name    string
	Columns []Column
}
