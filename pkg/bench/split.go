package bench

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"golang.org/x/sync/errgroup"

	"github.com/mslinn/sqlite_wal_bench/pkg/database"
	"github.com/mslinn/sqlite_wal_bench/pkg/timing"
)

// Child process roles of a split execution
const (
	RoleWriter = "writer"
	RoleReader = "reader"
)

// SplitOptions configures RunSplit
type SplitOptions struct {
	Executable string   // binary re-launched for each role
	BaseArgs   []string // placed before the role arguments
	WorkDir    string
	Readers    int
	Out        io.Writer // receives the children's prefixed output
	Env        []string
	Logger     *slog.Logger

	// DrainTimeout bounds how long readers may run after the writer exits.
	// Readers that have not finished by then are stopped. Defaults to 10s.
	DrainTimeout time.Duration
}

// SplitResult holds the wall-clock time of every child process
type SplitResult struct {
	Writer  time.Duration
	Readers []time.Duration
}

// SlowestReader returns the longest reader process time
func (r *SplitResult) SlowestReader() time.Duration {
	var slowest time.Duration
	for _, d := range r.Readers {
		if d > slowest {
			slowest = d
		}
	}
	return slowest
}

// SplitPath is the database shared by the child processes
func SplitPath(workDir string) string {
	return filepath.Join(workDir, "split.db")
}

// ChildArgs returns the command line for one child role. Every role gets
// the journal settings so readers agree with the writer on checkpointing.
func ChildArgs(role string, id int, path string, cfg TrialConfig) []string {
	args := []string{
		"--role", role,
		"--db", path,
		"--total", strconv.Itoa(cfg.TotalRecords),
		"--journal-mode", string(cfg.JournalMode),
	}
	if cfg.CheckpointDisabled {
		args = append(args, "--no-checkpoint")
	}
	switch role {
	case RoleWriter:
		args = append(args,
			"--tx", strconv.Itoa(cfg.RecordsPerTransaction),
			"--interval", strconv.Itoa(cfg.UpdateInterval))
	case RoleReader:
		args = append(args, "--reader-id", strconv.Itoa(id))
	}
	return args
}

// RunSplit runs the writer and the readers as separate processes against one
// database file, streaming their output with a per-process prefix. A failing
// writer stops the readers. Once the writer exits, readers get DrainTimeout
// to finish; a reader waiting for rows that were never committed is stopped.
func RunSplit(ctx context.Context, cfg TrialConfig, opts SplitOptions) (*SplitResult, error) {
	cfg = cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if opts.Readers <= 0 {
		opts.Readers = 1
	}
	if opts.Out == nil {
		opts.Out = io.Discard
	}
	if opts.DrainTimeout <= 0 {
		opts.DrainTimeout = 10 * time.Second
	}
	logger := loggerOrDefault(opts.Logger)

	path := SplitPath(opts.WorkDir)
	if err := database.Remove(path); err != nil {
		return nil, err
	}

	out := timing.NewSyncWriter(opts.Out)
	result := &SplitResult{Readers: make([]time.Duration, opts.Readers)}

	g, gctx := errgroup.WithContext(ctx)
	readersCtx, stopReaders := context.WithCancel(gctx)
	defer stopReaders()

	var readers sync.WaitGroup
	readersDone := make(chan struct{})
	for i := 0; i < opts.Readers; i++ {
		id := i + 1
		readers.Add(1)
		g.Go(func() error {
			defer readers.Done()
			res := runChild(readersCtx, opts, out, fmt.Sprintf("[reader %d] ", id), ChildArgs(RoleReader, id, path, cfg))
			result.Readers[id-1] = res.Duration()
			if !res.Success() && readersCtx.Err() == nil {
				logger.Warn("reader process failed", slog.Int("reader", id), slog.Int("exit_code", res.ExitCode))
			}
			return nil
		})
	}
	go func() {
		readers.Wait()
		close(readersDone)
	}()

	g.Go(func() error {
		res := runChild(gctx, opts, out, "[writer] ", ChildArgs(RoleWriter, 0, path, cfg))
		result.Writer = res.Duration()
		if !res.Success() {
			return errors.Wrapf(res.Error, "writer process failed (exit code %d)", res.ExitCode)
		}

		drain := time.NewTimer(opts.DrainTimeout)
		defer drain.Stop()
		select {
		case <-readersDone:
		case <-gctx.Done():
		case <-drain.C:
			logger.Warn("reader processes did not finish before the drain limit; stopping them",
				slog.Duration("drain_timeout", opts.DrainTimeout))
			stopReaders()
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return result, err
	}
	return result, nil
}

func runChild(ctx context.Context, opts SplitOptions, out io.Writer, prefix string, roleArgs []string) *timing.Result {
	args := append(append([]string{}, opts.BaseArgs...), roleArgs...)
	return timing.Run(ctx, opts.Executable, args, &timing.Options{
		Env:    opts.Env,
		Tee:    out,
		Prefix: prefix,
	})
}

// RunWriterChild is the body of a writer child process
func RunWriterChild(ctx context.Context, path string, cfg TrialConfig, out io.Writer, sink ProgressSink, logger *slog.Logger) error {
	res, err := NewWriter(path, cfg, WriterOptions{Sink: sink, Logger: logger}).Run(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Writer finished: %d records committed in %s\n", res.Committed, FormatClock(res.Duration))
	return nil
}

// RunReaderChild is the body of a reader child process
func RunReaderChild(ctx context.Context, path string, target int64, opts ReaderOptions, out io.Writer) error {
	res, err := NewReader(path, target, opts).Run(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Reader finished: %d rows observed, %d queries in %s\n",
		res.RowsObserved, res.QueryAttempts, FormatClock(res.Duration))
	return nil
}
