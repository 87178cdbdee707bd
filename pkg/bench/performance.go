package bench

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/mslinn/sqlite_wal_bench/pkg/database"
)

// ModeResult is the writer outcome for one journal mode
type ModeResult struct {
	Mode   database.JournalMode
	Writer WriterResult
}

// PerformanceOptions configures RunPerformance
type PerformanceOptions struct {
	WorkDir string
	Modes   []database.JournalMode // defaults to database.JournalModes
	Out     io.Writer
	Sink    ProgressSink
	Logger  *slog.Logger
}

// RunPerformance runs the writer alone once per journal mode, each against a
// fresh database, and prints a completion banner after each mode.
func RunPerformance(ctx context.Context, cfg TrialConfig, opts PerformanceOptions) ([]ModeResult, error) {
	cfg = cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if opts.Out == nil {
		opts.Out = io.Discard
	}
	modes := opts.Modes
	if len(modes) == 0 {
		modes = database.JournalModes
	}
	sink := sinkOrDiscard(opts.Sink)
	logger := loggerOrDefault(opts.Logger)

	results := make([]ModeResult, 0, len(modes))
	for i, mode := range modes {
		path := filepath.Join(opts.WorkDir, fmt.Sprintf("perf_%s.db", strings.ToLower(string(mode))))
		if err := database.Remove(path); err != nil {
			return results, err
		}

		modeCfg := cfg
		modeCfg.JournalMode = mode
		fmt.Fprintf(opts.Out, "[%d/%d] %s mode: writing %d records\n", i+1, len(modes), mode, cfg.TotalRecords)

		sink.Reset()
		w := NewWriter(path, modeCfg, WriterOptions{Sink: sink, Logger: logger.With(slog.String("mode", string(mode)))})
		res, err := w.Run(ctx)
		sink.Flush()
		if err != nil {
			return results, errors.Wrapf(err, "%s mode failed", mode)
		}

		WriteModeSummary(opts.Out, mode, res)
		results = append(results, ModeResult{Mode: mode, Writer: res})
	}
	return results, nil
}
