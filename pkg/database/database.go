package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/mattn/go-sqlite3"
)

// Options configures a writer connection
type Options struct {
	JournalMode        JournalMode
	CheckpointDisabled bool          // sets wal_autocheckpoint=0
	BusyTimeout        time.Duration // how long the engine retries a locked database
}

// DB wraps a single SQLite connection used by one benchmark actor
type DB struct {
	conn     *sql.DB
	path     string
	mode     JournalMode
	readOnly bool
}

// Open opens or creates the target database for writing and applies the
// journaling configuration. The pool is pinned to one connection so the
// pragmas hold for every statement.
func Open(ctx context.Context, path string, opts Options) (*DB, error) {
	if opts.JournalMode == "" {
		opts.JournalMode = JournalWAL
	}

	conn, err := sql.Open("sqlite3", dsn(path, "rwc", opts.BusyTimeout))
	if err != nil {
		return nil, errors.Wrap(err, "failed to open database")
	}
	conn.SetMaxOpenConns(1)

	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, errors.Wrapf(err, "failed to open database %s", path)
	}

	// The engine answers with the mode in effect, which is the old one
	// when the switch is refused.
	if want := journalPragma(opts.JournalMode); want != "" {
		var got string
		if err := conn.QueryRowContext(ctx, "PRAGMA journal_mode="+want).Scan(&got); err != nil {
			conn.Close()
			return nil, errors.Wrapf(err, "failed to set journal mode %s", opts.JournalMode)
		}
		if !strings.EqualFold(got, want) {
			conn.Close()
			return nil, errors.Newf("journal mode %s was not applied to %s (engine reports %q)", opts.JournalMode, path, got)
		}
	}

	db := &DB{conn: conn, path: path, mode: opts.JournalMode}
	for _, pragma := range pragmas(opts) {
		if _, err := conn.ExecContext(ctx, pragma); err != nil {
			conn.Close()
			return nil, errors.Wrapf(err, "failed to apply %q", pragma)
		}
	}

	return db, nil
}

// OpenReadOnly opens an existing database without the ability to create or
// modify it. It fails while the file does not exist yet.
func OpenReadOnly(ctx context.Context, path string, busyTimeout time.Duration) (*DB, error) {
	conn, err := sql.Open("sqlite3", dsn(path, "ro", busyTimeout))
	if err != nil {
		return nil, errors.Wrap(err, "failed to open database")
	}
	conn.SetMaxOpenConns(1)

	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, errors.Wrapf(err, "failed to open database %s read-only", path)
	}

	return &DB{conn: conn, path: path, readOnly: true}, nil
}

// uriPath escapes the characters that end or alter the path of a file: URI
var uriPath = strings.NewReplacer("%", "%25", "?", "%3f", "#", "%23")

func dsn(path, mode string, busyTimeout time.Duration) string {
	return fmt.Sprintf("file:%s?mode=%s&_busy_timeout=%d", uriPath.Replace(path), mode, busyTimeout.Milliseconds())
}

// journalPragma is the journal_mode value requested for mode; empty keeps
// the engine default
func journalPragma(mode JournalMode) string {
	switch mode {
	case JournalWAL:
		return "wal"
	case JournalMemory:
		return "memory"
	}
	return ""
}

// pragmas returns the statements applied once the journal mode is set
func pragmas(opts Options) []string {
	var stmts []string
	switch opts.JournalMode {
	case JournalWAL:
		stmts = append(stmts, "PRAGMA synchronous=NORMAL")
		if opts.CheckpointDisabled {
			stmts = append(stmts, "PRAGMA wal_autocheckpoint=0")
		}
	case JournalMemory:
		stmts = append(stmts, "PRAGMA synchronous=OFF")
	}
	return stmts
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.conn.Close()
}

// Path returns the database file path
func (db *DB) Path() string {
	return db.path
}

// JournalMode returns the mode the writer configured (empty for read-only handles)
func (db *DB) JournalMode() JournalMode {
	return db.mode
}

// CreateTables creates the benchmark tables if they do not already exist
func (db *DB) CreateTables(ctx context.Context, tables []TableSchema) error {
	for _, t := range tables {
		if _, err := db.conn.ExecContext(ctx, t.CreateTableSQL()); err != nil {
			return errors.Wrapf(err, "failed to create table %s", t.Name)
		}
	}
	return nil
}

// Exec executes a statement and returns the number of affected rows
func (db *DB) Exec(ctx context.Context, stmt string, args ...interface{}) (int64, error) {
	result, err := db.conn.ExecContext(ctx, stmt, args...)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// Query runs a multi-row query
func (db *DB) Query(ctx context.Context, stmt string, args ...interface{}) (*sql.Rows, error) {
	return db.conn.QueryContext(ctx, stmt, args...)
}

// QueryInt runs a scalar integer query such as COUNT(*)
func (db *DB) QueryInt(ctx context.Context, stmt string, args ...interface{}) (int64, error) {
	var n int64
	if err := db.conn.QueryRowContext(ctx, stmt, args...).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

// QueryFloat runs a scalar float query. A NULL result reports ok=false.
func (db *DB) QueryFloat(ctx context.Context, stmt string, args ...interface{}) (float64, bool, error) {
	var v sql.NullFloat64
	if err := db.conn.QueryRowContext(ctx, stmt, args...).Scan(&v); err != nil {
		return 0, false, err
	}
	return v.Float64, v.Valid, nil
}

// Begin starts a transaction
func (db *DB) Begin(ctx context.Context) (*sql.Tx, error) {
	return db.conn.BeginTx(ctx, nil)
}

// Prepare compiles a statement once for reuse across transactions
func (db *DB) Prepare(ctx context.Context, stmt string) (*sql.Stmt, error) {
	return db.conn.PrepareContext(ctx, stmt)
}

// ErrReadOnly is returned for operations that need a read-write connection
var ErrReadOnly = errors.New("read-only connection")

// CheckpointResult is the row reported by PRAGMA wal_checkpoint
type CheckpointResult struct {
	Busy         bool  // a concurrent connection kept the checkpoint from finishing
	LogFrames    int64 // frames in the write-ahead log, -1 outside WAL mode
	Checkpointed int64 // frames copied back into the database file, -1 outside WAL mode
}

// Checkpoint folds the write-ahead log back into the database file.
// mode is one of PASSIVE, FULL, RESTART or TRUNCATE. It is a no-op outside
// WAL mode; read-only handles cannot checkpoint, use CheckpointFile.
func (db *DB) Checkpoint(ctx context.Context, mode string) (CheckpointResult, error) {
	if db.readOnly {
		return CheckpointResult{}, errors.Wrapf(ErrReadOnly, "failed to checkpoint %s", db.path)
	}
	if db.mode != JournalWAL {
		return CheckpointResult{LogFrames: -1, Checkpointed: -1}, nil
	}
	return checkpoint(ctx, db.conn, mode)
}

// CheckpointFile checkpoints an existing database through a short-lived
// read-write connection. The database must already be in WAL mode for
// frames to be copied.
func CheckpointFile(ctx context.Context, path, mode string, busyTimeout time.Duration) (CheckpointResult, error) {
	conn, err := sql.Open("sqlite3", dsn(path, "rw", busyTimeout))
	if err != nil {
		return CheckpointResult{}, errors.Wrap(err, "failed to open database")
	}
	defer conn.Close()
	conn.SetMaxOpenConns(1)

	return checkpoint(ctx, conn, mode)
}

func checkpoint(ctx context.Context, conn *sql.DB, mode string) (CheckpointResult, error) {
	var busy int
	var res CheckpointResult
	row := conn.QueryRowContext(ctx, fmt.Sprintf("PRAGMA wal_checkpoint(%s)", mode))
	if err := row.Scan(&busy, &res.LogFrames, &res.Checkpointed); err != nil {
		return CheckpointResult{}, errors.Wrapf(err, "failed to checkpoint (%s)", mode)
	}
	res.Busy = busy != 0
	return res, nil
}

// JournalSize reports the size in bytes of the on-disk journal file for the
// configured mode. ok is false when the mode keeps no journal file or the
// file does not currently exist.
func (db *DB) JournalSize() (size int64, ok bool) {
	var suffix string
	switch db.mode {
	case JournalWAL:
		suffix = "-wal"
	case JournalDefault:
		suffix = "-journal"
	default:
		return 0, false
	}
	info, err := os.Stat(db.path + suffix)
	if err != nil {
		return 0, false
	}
	return info.Size(), true
}

// Remove deletes a database file together with its journal side files
func Remove(path string) error {
	for _, p := range []string{path, path + "-wal", path + "-shm", path + "-journal"} {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			return errors.Wrapf(err, "failed to remove %s", p)
		}
	}
	return nil
}

// IsLocked reports whether err is SQLite lock contention (SQLITE_BUSY or SQLITE_LOCKED)
func IsLocked(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code == sqlite3.ErrBusy || sqliteErr.Code == sqlite3.ErrLocked
	}
	return strings.Contains(errMessage(err), "database is locked")
}

// IsTransient reports whether a reader should simply retry after err:
// lock contention, a database file that cannot be opened yet, or a
// schema the writer has not created yet.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if IsLocked(err) {
		return true
	}
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code {
		case sqlite3.ErrCantOpen, sqlite3.ErrSchema, sqlite3.ErrProtocol, sqlite3.ErrNotADB:
			return true
		}
	}
	return strings.Contains(errMessage(err), "no such table")
}

func errMessage(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
