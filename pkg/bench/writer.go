package bench

import (
	"context"
	"database/sql"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/mslinn/sqlite_wal_bench/pkg/database"
	"github.com/mslinn/sqlite_wal_bench/pkg/progress"
)

// WriterOptions configures a Writer
type WriterOptions struct {
	Actor  string // progress actor name, defaults to ActorWriter
	Sink   ProgressSink
	Logger *slog.Logger
}

// WriterResult summarizes one writer run
type WriterResult struct {
	Duration           time.Duration
	Transactions       int   // transactions attempted
	FailedTransactions int   // transactions rolled back after a failed insert
	Committed          int64 // records in committed transactions
}

// Writer inserts TotalRecords synthetic records into every table, in
// transactions of RecordsPerTransaction records.
type Writer struct {
	path      string
	cfg       TrialConfig
	actor     string
	sink      ProgressSink
	logger    *slog.Logger
	committed atomic.Int64
}

// NewWriter creates a writer for the database at path
func NewWriter(path string, cfg TrialConfig, opts WriterOptions) *Writer {
	if opts.Actor == "" {
		opts.Actor = ActorWriter
	}
	cfg = cfg.Normalize()
	return &Writer{
		path:   path,
		cfg:    cfg,
		actor:  opts.Actor,
		sink:   sinkOrDiscard(opts.Sink),
		logger: loggerOrDefault(opts.Logger).With(slog.String("actor", opts.Actor)),
	}
}

// Committed returns the number of records committed so far. Safe for concurrent use.
func (w *Writer) Committed() int64 {
	return w.committed.Load()
}

// Run opens the target, creates the tables and writes every transaction.
// Failing to open or prepare the target is fatal and marked ErrWriterOpen;
// a failed insert only abandons its own transaction.
func (w *Writer) Run(ctx context.Context) (WriterResult, error) {
	var result WriterResult
	if err := w.cfg.Validate(); err != nil {
		return result, err
	}
	start := time.Now()

	db, err := database.Open(ctx, w.path, database.Options{
		JournalMode:        w.cfg.JournalMode,
		CheckpointDisabled: w.cfg.CheckpointDisabled,
		BusyTimeout:        w.cfg.BusyTimeout,
	})
	if err != nil {
		return result, errors.Mark(err, ErrWriterOpen)
	}
	defer w.close(db)

	if err := db.CreateTables(ctx, w.cfg.Tables); err != nil {
		return result, errors.Mark(err, ErrWriterOpen)
	}

	stmts := make([]*sql.Stmt, len(w.cfg.Tables))
	args := make([][]interface{}, len(w.cfg.Tables))
	for i, table := range w.cfg.Tables {
		stmt, err := db.Prepare(ctx, table.InsertSQL())
		if err != nil {
			return result, errors.Mark(errors.Wrapf(err, "failed to prepare insert for %s", table.Name), ErrWriterOpen)
		}
		defer stmt.Close()
		stmts[i] = stmt
		args[i] = append([]interface{}{0.0}, table.DummyValues()...)
	}

	total := int64(w.cfg.TotalRecords)
	perTx := w.cfg.RecordsPerTransaction
	interval := int64(w.cfg.UpdateInterval)
	txCount := w.cfg.TransactionCount()

	w.logger.Debug("writer started",
		slog.String("path", db.Path()),
		slog.String("journal_mode", string(db.JournalMode())),
		slog.Any("config", w.cfg))

	for tx := 0; tx < txCount; tx++ {
		if err := ctx.Err(); err != nil {
			result.Duration = time.Since(start)
			return result, errors.Wrap(err, "writer cancelled")
		}

		first := int64(tx) * int64(perTx)
		batch := int64(perTx)
		if first+batch > total {
			batch = total - first
		}

		result.Transactions++
		if err := w.writeTransaction(ctx, db, stmts, args, first, batch); err != nil {
			result.FailedTransactions++
			continue
		}

		before := w.committed.Load()
		after := w.committed.Add(batch)
		if after/interval > before/interval && after < total {
			w.publish(db, after, time.Since(start), false)
		}
	}

	result.Duration = time.Since(start)
	result.Committed = w.committed.Load()
	w.publish(db, result.Committed, result.Duration, true)

	w.logger.Debug("writer finished",
		slog.Int64("committed", result.Committed),
		slog.Int("failed_transactions", result.FailedTransactions),
		slog.Duration("duration", result.Duration))

	return result, nil
}

// writeTransaction inserts records [first, first+batch) into every table in
// one transaction. On any failure the transaction is rolled back.
func (w *Writer) writeTransaction(ctx context.Context, db *database.DB, stmts []*sql.Stmt, args [][]interface{}, first, batch int64) error {
	tx, err := db.Begin(ctx)
	if err != nil {
		w.logFailure(err, "", float64(first+1)*TimestampStep)
		return err
	}

	txStmts := make([]*sql.Stmt, len(stmts))
	for i, stmt := range stmts {
		txStmts[i] = tx.StmtContext(ctx, stmt)
	}

	for r := int64(0); r < batch; r++ {
		ts := float64(first+r+1) * TimestampStep
		for i, stmt := range txStmts {
			args[i][0] = ts
			if _, err := stmt.ExecContext(ctx, args[i]...); err != nil {
				_ = tx.Rollback()
				w.logFailure(err, w.cfg.Tables[i].Name, ts)
				return err
			}
		}
	}

	if err := tx.Commit(); err != nil {
		_ = tx.Rollback()
		w.logFailure(err, "", float64(first+batch)*TimestampStep)
		return err
	}
	return nil
}

func (w *Writer) logFailure(err error, table string, ts float64) {
	if database.IsLocked(err) {
		w.logger.Warn("[LOCK DETECTED]", slog.String("table", table), slog.Float64("s_time", ts))
		return
	}
	w.logger.Error("transaction abandoned",
		slog.String("table", table),
		slog.Float64("s_time", ts),
		slog.String("error", err.Error()))
}

func (w *Writer) publish(db *database.DB, written int64, elapsed time.Duration, final bool) {
	journal := int64(-1)
	if size, ok := db.JournalSize(); ok {
		journal = size
	}
	s := progress.WriterSample(written, int64(w.cfg.TotalRecords), elapsed, journal)
	s.Status = string(db.JournalMode())
	s.Final = final
	w.sink.Publish(w.actor, s)
}

// close truncates the write-ahead log when checkpointing is enabled, then closes the handle
func (w *Writer) close(db *database.DB) {
	if !w.cfg.CheckpointDisabled {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		res, err := db.Checkpoint(ctx, "TRUNCATE")
		if err != nil {
			w.logger.Debug("final checkpoint failed", slog.String("error", err.Error()))
		} else if res.Busy {
			w.logger.Debug("final checkpoint incomplete", slog.Int64("log_frames", res.LogFrames), slog.Int64("checkpointed", res.Checkpointed))
		}
	}
	if err := db.Close(); err != nil {
		w.logger.Warn("failed to close database", slog.String("error", err.Error()))
	}
}
