package database

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/require"
)

func openTemp(t *testing.T, mode JournalMode) *DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "bench.db")
	db, err := Open(context.Background(), path, Options{JournalMode: mode, BusyTimeout: 50 * time.Millisecond})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestOpenAppliesJournalMode(t *testing.T) {
	tests := []struct {
		mode JournalMode
		want string
	}{
		{JournalWAL, "wal"},
		{JournalMemory, "memory"},
		{JournalDefault, "delete"},
	}

	for _, tt := range tests {
		t.Run(string(tt.mode), func(t *testing.T) {
			db := openTemp(t, tt.mode)
			rows, err := db.Query(context.Background(), "PRAGMA journal_mode")
			require.NoError(t, err)
			defer rows.Close()

			require.True(t, rows.Next())
			var got string
			require.NoError(t, rows.Scan(&got))
			require.Equal(t, tt.want, strings.ToLower(got))
		})
	}
}

func TestCheckpointDisabled(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bench.db")
	db, err := Open(context.Background(), path, Options{JournalMode: JournalWAL, CheckpointDisabled: true})
	require.NoError(t, err)
	defer db.Close()

	n, err := db.QueryInt(context.Background(), "PRAGMA wal_autocheckpoint")
	require.NoError(t, err)
	require.Equal(t, int64(0), n)
}

func TestCreateTablesIsIdempotent(t *testing.T) {
	ctx := context.Background()
	db := openTemp(t, JournalWAL)

	require.NoError(t, db.CreateTables(ctx, DefaultTables()))
	require.NoError(t, db.CreateTables(ctx, DefaultTables()))

	for _, table := range DefaultTables() {
		n, err := db.QueryInt(ctx, table.CountSQL())
		require.NoError(t, err)
		require.Zero(t, n)
	}
}

func TestInsertAndQuery(t *testing.T) {
	ctx := context.Background()
	db := openTemp(t, JournalWAL)
	tables := DefaultTables()
	require.NoError(t, db.CreateTables(ctx, tables))

	for _, table := range tables {
		args := append([]interface{}{0.01}, table.DummyValues()...)
		affected, err := db.Exec(ctx, table.InsertSQL(), args...)
		require.NoError(t, err, table.Name)
		require.Equal(t, int64(1), affected)

		newest, ok, err := db.QueryFloat(ctx, table.MaxTimestampSQL())
		require.NoError(t, err)
		require.True(t, ok)
		require.InDelta(t, 0.01, newest, 1e-9)
	}

	size, ok := db.JournalSize()
	require.True(t, ok, "WAL file should exist after writes")
	require.Positive(t, size)
}

func TestMaxTimestampOnEmptyTable(t *testing.T) {
	ctx := context.Background()
	db := openTemp(t, JournalWAL)
	table := DefaultTables()[0]
	require.NoError(t, db.CreateTables(ctx, []TableSchema{table}))

	_, ok, err := db.QueryFloat(ctx, table.MaxTimestampSQL())
	require.NoError(t, err)
	require.False(t, ok)
}

func TestTransactionRollback(t *testing.T) {
	ctx := context.Background()
	db := openTemp(t, JournalWAL)
	table := DefaultTables()[1]
	require.NoError(t, db.CreateTables(ctx, []TableSchema{table}))

	tx, err := db.Begin(ctx)
	require.NoError(t, err)
	args := append([]interface{}{1.0}, table.DummyValues()...)
	_, err = tx.ExecContext(ctx, table.InsertSQL(), args...)
	require.NoError(t, err)
	require.NoError(t, tx.Rollback())

	n, err := db.QueryInt(ctx, table.CountSQL())
	require.NoError(t, err)
	require.Zero(t, n)
}

func TestOpenReadOnlyMissingFileIsTransient(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing.db")
	_, err := OpenReadOnly(context.Background(), path, time.Millisecond)
	require.Error(t, err)
	require.True(t, IsTransient(err), "missing file should be retryable: %v", err)

	_, statErr := os.Stat(path)
	require.True(t, os.IsNotExist(statErr), "read-only open must not create the file")
}

func TestReadOnlyMissingTableIsTransient(t *testing.T) {
	ctx := context.Background()
	writer := openTemp(t, JournalWAL)

	reader, err := OpenReadOnly(ctx, writer.Path(), time.Millisecond)
	require.NoError(t, err)
	defer reader.Close()

	_, err = reader.QueryInt(ctx, DefaultTables()[0].CountSQL())
	require.Error(t, err)
	require.True(t, IsTransient(err))
}

func TestReadOnlyRejectsWrites(t *testing.T) {
	ctx := context.Background()
	writer := openTemp(t, JournalWAL)
	require.NoError(t, writer.CreateTables(ctx, DefaultTables()))

	reader, err := OpenReadOnly(ctx, writer.Path(), time.Millisecond)
	require.NoError(t, err)
	defer reader.Close()

	table := DefaultTables()[0]
	args := append([]interface{}{1.0}, table.DummyValues()...)
	_, err = reader.Exec(ctx, table.InsertSQL(), args...)
	require.Error(t, err)
}

func TestIsTransient(t *testing.T) {
	require.False(t, IsTransient(nil))
	require.False(t, IsTransient(errors.New("syntax error near SELEC")))
	require.True(t, IsTransient(errors.Wrap(errors.New("no such table: Table_0"), "count rows")))
	require.True(t, IsLocked(errors.New("database is locked")))
}

func TestRemove(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bench.db")
	for _, p := range []string{path, path + "-wal", path + "-shm"} {
		require.NoError(t, os.WriteFile(p, []byte("x"), 0644))
	}

	require.NoError(t, Remove(path))
	require.NoError(t, Remove(path), "removing twice is not an error")

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Empty(t, entries)
}

func TestParseJournalMode(t *testing.T) {
	for _, in := range []string{"wal", "WAL", " Memory ", "default"} {
		_, err := ParseJournalMode(in)
		require.NoError(t, err, in)
	}
	_, err := ParseJournalMode("truncate")
	require.Error(t, err)
}

func TestSchemaShapes(t *testing.T) {
	tables := DefaultTables()
	require.Len(t, tables, 5)

	seen := map[int]bool{}
	for _, table := range tables {
		seen[len(table.Columns)] = true
		placeholders := strings.Count(table.InsertSQL(), "?")
		require.Equal(t, len(table.Columns)+1, placeholders, table.Name)
		require.Len(t, table.DummyValues(), len(table.Columns))
		require.Contains(t, table.CreateTableSQL(), "IF NOT EXISTS")
	}
	require.Greater(t, len(seen), 1, "tables should have heterogeneous column counts")
}

func TestOpenRejectsUnappliedJournalMode(t *testing.T) {
	// An in-memory database cannot switch to WAL and keeps reporting "memory"
	_, err := Open(context.Background(), ":memory:", Options{JournalMode: JournalWAL})
	require.Error(t, err)
	require.Contains(t, err.Error(), "was not applied")
}

func TestOpenPathWithURICharacters(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "run?1#a%20b")
	require.NoError(t, os.Mkdir(dir, 0755))
	path := filepath.Join(dir, "bench.db")

	db, err := Open(context.Background(), path, Options{JournalMode: JournalWAL})
	require.NoError(t, err)
	require.NoError(t, db.CreateTables(context.Background(), DefaultTables()[:1]))
	require.NoError(t, db.Close())

	_, err = os.Stat(path)
	require.NoError(t, err, "database must be created at the literal path")

	reader, err := OpenReadOnly(context.Background(), path, time.Millisecond)
	require.NoError(t, err)
	defer reader.Close()
	_, err = reader.QueryInt(context.Background(), DefaultTables()[0].CountSQL())
	require.NoError(t, err)
}

func TestCheckpointFile(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "bench.db")

	// The writer stays open so its frames remain in the log
	writer, err := Open(ctx, path, Options{JournalMode: JournalWAL, CheckpointDisabled: true})
	require.NoError(t, err)
	defer writer.Close()
	table := DefaultTables()[0]
	require.NoError(t, writer.CreateTables(ctx, []TableSchema{table}))
	for i := 1; i <= 20; i++ {
		args := append([]interface{}{float64(i)}, table.DummyValues()...)
		_, err := writer.Exec(ctx, table.InsertSQL(), args...)
		require.NoError(t, err)
	}
	size, ok := writer.JournalSize()
	require.True(t, ok)
	require.Positive(t, size)

	reader, err := OpenReadOnly(ctx, path, time.Millisecond)
	require.NoError(t, err)
	defer reader.Close()
	_, err = reader.Checkpoint(ctx, "PASSIVE")
	require.ErrorIs(t, err, ErrReadOnly)

	res, err := CheckpointFile(ctx, path, "PASSIVE", time.Second)
	require.NoError(t, err)
	require.False(t, res.Busy)
	require.Positive(t, res.LogFrames)
	require.Equal(t, res.LogFrames, res.Checkpointed, "every frame is copied into the database file")

	// Nothing is left to copy
	again, err := CheckpointFile(ctx, path, "PASSIVE", time.Second)
	require.NoError(t, err)
	require.Equal(t, again.LogFrames, again.Checkpointed)
}

func TestCheckpointFileMissingDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing.db")
	_, err := CheckpointFile(context.Background(), path, "PASSIVE", time.Millisecond)
	require.Error(t, err)

	_, statErr := os.Stat(path)
	require.True(t, os.IsNotExist(statErr), "checkpoint must not create the file")
}

func TestCheckpointOutsideWAL(t *testing.T) {
	db := openTemp(t, JournalDefault)
	res, err := db.Checkpoint(context.Background(), "TRUNCATE")
	require.NoError(t, err)
	require.Equal(t, int64(-1), res.LogFrames)
}
