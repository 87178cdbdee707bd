package bench

import (
	"context"
	"log/slog"
	"math"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/mslinn/sqlite_wal_bench/pkg/database"
	"github.com/mslinn/sqlite_wal_bench/pkg/progress"
)

// Reader phases reported in progress samples
const (
	StatusConnectWait = "connect-wait"
	StatusPolling     = "polling"
	StatusDone        = "done"
	StatusCancelled   = "cancelled"
)

// ReaderOptions configures a Reader
type ReaderOptions struct {
	Actor              string // progress actor name, defaults to ActorReader
	Sink               ProgressSink
	Logger             *slog.Logger
	Table              database.TableSchema // probed table; defaults to the first default table
	BusyTimeout        time.Duration
	RetryDelay         time.Duration // between connect attempts
	PollDelay          time.Duration // between poll queries
	MaxConnectAttempts int           // 0 waits forever
	FinalCheckpoint    bool          // run a passive checkpoint once every row is observed
}

// ReaderResult summarizes one reader run
type ReaderResult struct {
	Duration        time.Duration
	RowsObserved    int64
	QueryAttempts   int64
	ConnectAttempts int64
	NewestTimestamp float64 // largest s_time seen, 0 if none
	Completed       bool    // observed rows reached the target

	CheckpointedFrames int64 // frames copied by the final checkpoint
}

// Reader polls a database the writer is filling until it has observed the
// target row count. Its counters are atomics so other goroutines can sample
// them while it runs.
type Reader struct {
	path   string
	opts   ReaderOptions
	sink   ProgressSink
	logger *slog.Logger

	target   atomic.Int64
	observed atomic.Int64
	attempts atomic.Int64
	newest   atomic.Uint64 // math.Float64bits of the newest s_time
}

// NewReader creates a reader for the database at path
func NewReader(path string, target int64, opts ReaderOptions) *Reader {
	if opts.Actor == "" {
		opts.Actor = ActorReader
	}
	if opts.Table.Name == "" {
		opts.Table = database.DefaultTables()[0]
	}
	r := &Reader{
		path:   path,
		opts:   opts,
		sink:   sinkOrDiscard(opts.Sink),
		logger: loggerOrDefault(opts.Logger).With(slog.String("actor", opts.Actor)),
	}
	r.target.Store(target)
	return r
}

// SetTarget changes the row count at which the reader stops
func (r *Reader) SetTarget(n int64) {
	r.target.Store(n)
}

// Target returns the current target row count
func (r *Reader) Target() int64 {
	return r.target.Load()
}

// Observed returns the latest row count the reader saw
func (r *Reader) Observed() int64 {
	return r.observed.Load()
}

// Attempts returns the number of connect and poll queries issued so far
func (r *Reader) Attempts() int64 {
	return r.attempts.Load()
}

// Done reports whether the reader has observed its target
func (r *Reader) Done() bool {
	return r.observed.Load() >= r.target.Load()
}

// Run waits for the schema to exist, then polls until the target is observed
// or ctx is cancelled. Query errors are retried and never returned; the only
// error is ErrConnectAttemptsExhausted when a connect bound is configured.
func (r *Reader) Run(ctx context.Context) (ReaderResult, error) {
	start := time.Now()

	db, connects, err := r.connect(ctx, start)
	result := ReaderResult{ConnectAttempts: connects}
	if err != nil {
		result.Duration = time.Since(start)
		result.QueryAttempts = r.attempts.Load()
		return result, err
	}
	if db == nil {
		return r.finish(result, start, StatusCancelled), nil
	}
	defer db.Close()

	r.poll(ctx, db, start)

	status := StatusCancelled
	if r.Done() {
		status = StatusDone
		if r.opts.FinalCheckpoint {
			result.CheckpointedFrames = r.checkpoint()
		}
	}
	return r.finish(result, start, status), nil
}

// checkpoint runs a passive checkpoint through its own read-write
// connection, since the polling handle is read-only
func (r *Reader) checkpoint() int64 {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	res, err := database.CheckpointFile(ctx, r.path, "PASSIVE", r.opts.BusyTimeout)
	if err != nil {
		r.logger.Warn("final checkpoint failed", slog.String("error", err.Error()))
		return 0
	}
	r.logger.Debug("final checkpoint",
		slog.Bool("busy", res.Busy),
		slog.Int64("log_frames", res.LogFrames),
		slog.Int64("checkpointed", res.Checkpointed))
	return max(res.Checkpointed, 0)
}

// connect repeatedly opens a read-only handle and probes the table until
// both succeed. It returns a nil handle without error when ctx ends first.
func (r *Reader) connect(ctx context.Context, start time.Time) (*database.DB, int64, error) {
	var connects int64
	for {
		if ctx.Err() != nil {
			return nil, connects, nil
		}
		connects++
		r.attempts.Add(1)

		db, err := database.OpenReadOnly(ctx, r.path, r.opts.BusyTimeout)
		if err == nil {
			if _, err = db.QueryInt(ctx, r.opts.Table.CountSQL()); err == nil {
				r.logger.Debug("reader connected", slog.Int64("connect_attempts", connects))
				return db, connects, nil
			}
			db.Close()
		}
		if connects == 1 || connects%1000 == 0 {
			r.logger.Debug("waiting for writer", slog.Int64("attempt", connects), slog.String("error", err.Error()))
		}
		r.sink.Publish(r.opts.Actor, progress.ReaderSample(0, r.target.Load(), r.attempts.Load(), time.Since(start), StatusConnectWait))

		if r.opts.MaxConnectAttempts > 0 && connects >= int64(r.opts.MaxConnectAttempts) {
			return nil, connects, errors.Mark(
				errors.Wrapf(err, "gave up after %d connect attempts", connects),
				ErrConnectAttemptsExhausted)
		}
		if !sleepCtx(ctx, r.opts.RetryDelay) {
			return nil, connects, nil
		}
	}
}

func (r *Reader) poll(ctx context.Context, db *database.DB, start time.Time) {
	last := int64(-1)
	for ctx.Err() == nil {
		r.attempts.Add(1)

		n, err := db.QueryInt(ctx, r.opts.Table.CountSQL())
		if err != nil {
			if !database.IsTransient(err) && ctx.Err() == nil {
				r.logger.Debug("poll query failed", slog.String("error", err.Error()))
			}
			sleepCtx(ctx, r.opts.PollDelay)
			continue
		}

		if n > last {
			last = n
			r.observed.Store(n)
			if ts, ok, err := db.QueryFloat(ctx, r.opts.Table.MaxTimestampSQL()); err == nil && ok {
				r.newest.Store(math.Float64bits(ts))
			}
			r.sink.Publish(r.opts.Actor, progress.ReaderSample(n, r.target.Load(), r.attempts.Load(), time.Since(start), StatusPolling))
		}

		if r.Done() {
			return
		}
		sleepCtx(ctx, r.opts.PollDelay)
	}
}

func (r *Reader) finish(result ReaderResult, start time.Time, status string) ReaderResult {
	result.Duration = time.Since(start)
	result.RowsObserved = r.observed.Load()
	result.QueryAttempts = r.attempts.Load()
	result.NewestTimestamp = math.Float64frombits(r.newest.Load())
	result.Completed = r.Done()

	s := progress.ReaderSample(result.RowsObserved, r.target.Load(), result.QueryAttempts, result.Duration, status)
	s.Final = true
	r.sink.Publish(r.opts.Actor, s)

	r.logger.Debug("reader finished",
		slog.Int64("rows_observed", result.RowsObserved),
		slog.Int64("query_attempts", result.QueryAttempts),
		slog.Duration("duration", result.Duration))
	return result
}

// sleepCtx sleeps for d and reports false if ctx ended first
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
