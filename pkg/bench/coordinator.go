package bench

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/dustin/go-humanize"
	"golang.org/x/sync/errgroup"

	"github.com/mslinn/sqlite_wal_bench/pkg/database"
)

// CoordinatorOptions configures a Coordinator
type CoordinatorOptions struct {
	WorkDir string    // holds baseline.db and concurrent.db
	Out     io.Writer // phase banners; nil discards them
	Sink    ProgressSink
	Logger  *slog.Logger

	ReaderRetryDelay         time.Duration
	ReaderPollDelay          time.Duration
	ReaderMaxConnectAttempts int

	DrainMaxIterations int
	DrainInterval      time.Duration

	TestingKnobs CoordinatorTestingKnobs
}

// CoordinatorTestingKnobs are hooks into a trial, used only by tests
type CoordinatorTestingKnobs struct {
	// BeforeConcurrentPhase runs after the concurrent database was removed
	// and before its writer and reader start
	BeforeConcurrentPhase func(path string)
}

// Coordinator runs a baseline trial with the writer alone, then the same
// workload with a reader polling concurrently, and compares the two.
type Coordinator struct {
	cfg    TrialConfig
	opts   CoordinatorOptions
	sink   ProgressSink
	logger *slog.Logger
	state  atomic.Int32
}

// NewCoordinator creates a coordinator for one trial
func NewCoordinator(cfg TrialConfig, opts CoordinatorOptions) *Coordinator {
	if opts.Out == nil {
		opts.Out = io.Discard
	}
	if opts.DrainMaxIterations <= 0 {
		opts.DrainMaxIterations = 1000
	}
	if opts.DrainInterval <= 0 {
		opts.DrainInterval = 10 * time.Millisecond
	}
	return &Coordinator{
		cfg:    cfg.Normalize(),
		opts:   opts,
		sink:   sinkOrDiscard(opts.Sink),
		logger: loggerOrDefault(opts.Logger),
	}
}

// State returns the current phase. Safe for concurrent use.
func (c *Coordinator) State() State {
	return State(c.state.Load())
}

func (c *Coordinator) setState(s State) {
	prev := State(c.state.Swap(int32(s)))
	c.logger.Debug("trial state", slog.String("from", prev.String()), slog.String("to", s.String()))
}

// BaselinePath and ConcurrentPath are the per-phase database files
func (c *Coordinator) BaselinePath() string   { return filepath.Join(c.opts.WorkDir, "baseline.db") }
func (c *Coordinator) ConcurrentPath() string { return filepath.Join(c.opts.WorkDir, "concurrent.db") }

// Run executes both phases. A writer that cannot open its target aborts the
// trial; reader problems never do.
func (c *Coordinator) Run(ctx context.Context) (*TrialResult, error) {
	if err := c.cfg.Validate(); err != nil {
		return nil, err
	}
	result := &TrialResult{Config: c.cfg}

	c.setState(StateBaselineRunning)
	fmt.Fprintf(c.opts.Out, "[1/2] Baseline: writing %s records (%s per transaction, %s)\n",
		humanize.Comma(int64(c.cfg.TotalRecords)), humanize.Comma(int64(c.cfg.RecordsPerTransaction)), c.cfg.JournalMode)

	baseline, err := c.runBaseline(ctx)
	if err != nil {
		c.setState(StateAborted)
		return nil, errors.Wrap(err, "baseline phase failed")
	}
	result.BaselineDuration = baseline.Duration
	result.BaselineCommitted = baseline.Committed
	result.FailedTransactions = baseline.FailedTransactions
	c.setState(StateBaselineDone)

	c.sink.Reset()
	c.setState(StateConcurrentRunning)
	fmt.Fprintf(c.opts.Out, "[2/2] Concurrent: writing %s records with a reader polling\n",
		humanize.Comma(int64(c.cfg.TotalRecords)))

	if err := c.runConcurrent(ctx, result); err != nil {
		c.setState(StateAborted)
		return nil, errors.Wrap(err, "concurrent phase failed")
	}

	c.setState(StateComplete)
	return result, nil
}

func (c *Coordinator) runBaseline(ctx context.Context) (WriterResult, error) {
	path := c.BaselinePath()
	if err := database.Remove(path); err != nil {
		return WriterResult{}, err
	}
	w := NewWriter(path, c.cfg, WriterOptions{Sink: c.sink, Logger: c.logger})
	res, err := w.Run(ctx)
	c.sink.Flush()
	return res, err
}

func (c *Coordinator) runConcurrent(ctx context.Context, result *TrialResult) error {
	path := c.ConcurrentPath()
	if err := database.Remove(path); err != nil {
		return err
	}
	if hook := c.opts.TestingKnobs.BeforeConcurrentPhase; hook != nil {
		hook(path)
	}

	writer := NewWriter(path, c.cfg, WriterOptions{Sink: c.sink, Logger: c.logger})
	reader := NewReader(path, int64(c.cfg.TotalRecords), ReaderOptions{
		Sink:               c.sink,
		Logger:             c.logger,
		Table:              c.cfg.Tables[0],
		BusyTimeout:        c.cfg.BusyTimeout,
		RetryDelay:         c.opts.ReaderRetryDelay,
		PollDelay:          c.opts.ReaderPollDelay,
		MaxConnectAttempts: c.opts.ReaderMaxConnectAttempts,
		FinalCheckpoint:    c.cfg.JournalMode == database.JournalWAL,
	})

	g, gctx := errgroup.WithContext(ctx)
	readerCtx, cancelReader := context.WithCancel(gctx)
	defer cancelReader()

	var readerRes ReaderResult
	g.Go(func() error {
		res, err := reader.Run(readerCtx)
		readerRes = res
		if err != nil {
			c.logger.Warn("reader stopped early", slog.String("error", err.Error()))
		}
		return nil
	})

	var writerRes WriterResult
	var writerErr error
	writerDone := make(chan struct{})
	g.Go(func() error {
		defer close(writerDone)
		writerRes, writerErr = writer.Run(gctx)
		return writerErr
	})

	<-writerDone
	if writerErr != nil {
		cancelReader()
		_ = g.Wait()
		return writerErr
	}

	result.ConcurrentDuration = writerRes.Duration
	result.ConcurrentCommitted = writerRes.Committed
	result.FailedTransactions += writerRes.FailedTransactions
	c.setState(StateConcurrentDone)

	// Rows from abandoned transactions never appear, so the reader can
	// only ever see what the writer committed.
	if writerRes.Committed < reader.Target() {
		reader.SetTarget(writerRes.Committed)
	}

	c.setState(StateReaderDraining)
	drained := 0
	for ; drained < c.opts.DrainMaxIterations && !reader.Done(); drained++ {
		c.sink.Flush()
		if !sleepCtx(ctx, c.opts.DrainInterval) {
			break
		}
	}
	result.DrainIterations = drained
	if !reader.Done() {
		c.logger.Warn("reader did not catch up before the drain limit",
			slog.Int64("observed", reader.Observed()),
			slog.Int64("target", reader.Target()),
			slog.Int("iterations", drained))
		cancelReader()
	}

	if err := g.Wait(); err != nil {
		return err
	}
	c.sink.Flush()

	result.ReaderDuration = readerRes.Duration
	result.ReaderQueryAttempts = readerRes.QueryAttempts
	result.FinalRowsObserved = readerRes.RowsObserved
	result.ReaderCompleted = readerRes.Completed
	return nil
}
