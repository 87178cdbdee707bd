// Package automation runs repeated trials as isolated child processes and
// records their results in a ledger.
package automation

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"

	"github.com/mslinn/sqlite_wal_bench/pkg/ledger"
	"github.com/mslinn/sqlite_wal_bench/pkg/timing"
)

// Options configures a Runner
type Options struct {
	TrialBinary string   // trial executable
	TrialArgs   []string // arguments placed before the scripted session
	TestType    ledger.TestType
	Iterations  int

	TotalRecords          int
	RecordsPerTransaction int
	UpdateInterval        int // 0 leaves the prompt blank so the trial derives it

	LedgerDir  string
	LedgerPath string        // overrides the generated name in LedgerDir
	Env        []string      // extra environment for every trial
	Timeout    time.Duration // per trial; 0 waits forever
	Live       bool          // stream trial output while it runs

	Out    io.Writer
	Logger *slog.Logger
	Now    func() time.Time
}

// Summary describes a finished automation session
type Summary struct {
	Session    string
	LedgerPath string
	Iterations int
	Recorded   int
	Failed     int
}

// Runner drives Iterations trial processes one after another. Trials never
// overlap, since concurrent trials would distort each other's timings.
type Runner struct {
	opts    Options
	session string
	logger  *slog.Logger
}

// New creates a runner with a fresh session id
func New(opts Options) *Runner {
	if opts.Out == nil {
		opts.Out = io.Discard
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.TestType == "" {
		opts.TestType = ledger.Performance
	}
	// A trial never puts more than TotalRecords in one transaction
	if opts.TotalRecords > 0 && opts.RecordsPerTransaction > opts.TotalRecords {
		opts.RecordsPerTransaction = opts.TotalRecords
	}
	session := uuid.NewString()
	return &Runner{
		opts:    opts,
		session: session,
		logger:  opts.Logger.With(slog.String("session", session)),
	}
}

// Session returns the id shared by every log line of this run
func (r *Runner) Session() string {
	return r.session
}

// Script returns the stdin a trial receives: menu option, total records,
// records per transaction, update interval, a blank line to return to the
// menu, then 0 to exit.
func (r *Runner) Script() string {
	interval := ""
	if r.opts.UpdateInterval > 0 {
		interval = strconv.Itoa(r.opts.UpdateInterval)
	}
	lines := []string{
		r.opts.TestType.MenuOption(),
		strconv.Itoa(r.opts.TotalRecords),
		strconv.Itoa(r.opts.RecordsPerTransaction),
		interval,
		"",
		"0",
	}
	return strings.Join(lines, "\n") + "\n"
}

// Run creates the ledger and executes every iteration. Only a ledger that
// cannot be created or written stops the session; failing trials are
// logged and skipped.
func (r *Runner) Run(ctx context.Context) (*Summary, error) {
	if r.opts.Iterations <= 0 {
		return nil, errors.Newf("iterations must be positive, got %d", r.opts.Iterations)
	}
	if r.opts.TrialBinary == "" {
		return nil, errors.New("no trial binary configured")
	}

	path := r.opts.LedgerPath
	if path == "" {
		name := ledger.FileName(r.opts.TestType, r.opts.TotalRecords, r.opts.RecordsPerTransaction, r.opts.Now())
		path = filepath.Join(r.opts.LedgerDir, name)
	}
	l, err := ledger.Create(path, r.opts.TestType)
	if err != nil {
		return nil, err
	}
	defer l.Close()

	summary := &Summary{Session: r.session, LedgerPath: path, Iterations: r.opts.Iterations}
	fmt.Fprintf(r.opts.Out, "Session %s\n", r.session)
	fmt.Fprintf(r.opts.Out, "Trial binary: %s\n", r.opts.TrialBinary)
	fmt.Fprintf(r.opts.Out, "Starting %s test (ledger: %s)\n\n", r.opts.TestType, path)

	for i := 1; i <= r.opts.Iterations; i++ {
		if err := ctx.Err(); err != nil {
			return summary, errors.Wrap(err, "automation interrupted")
		}
		fmt.Fprintf(r.opts.Out, "========== Iteration %d / %d ==========\n", i, r.opts.Iterations)

		row, ok := r.runOnce(ctx, i)
		if !ok {
			summary.Failed++
			continue
		}
		if err := l.Append(row); err != nil {
			return summary, err
		}
		summary.Recorded++
	}

	fmt.Fprintf(r.opts.Out, "\nAll iterations finished: %d recorded, %d failed\n", summary.Recorded, summary.Failed)
	return summary, nil
}

// runOnce launches one trial and converts its output into a ledger row
func (r *Runner) runOnce(ctx context.Context, index int) (ledger.Row, bool) {
	fmt.Fprintf(r.opts.Out, "Running %s test (menu option %s)...\n", r.opts.TestType, r.opts.TestType.MenuOption())

	opts := &timing.Options{
		Stdin:   strings.NewReader(r.Script()),
		Env:     append([]string{"WALB_RUN_INDEX=" + strconv.Itoa(index)}, r.opts.Env...),
		Timeout: r.opts.Timeout,
	}
	if r.opts.Live {
		opts.Tee = timing.NewSyncWriter(r.opts.Out)
		opts.Prefix = "   | "
	}
	res := timing.Run(ctx, r.opts.TrialBinary, r.opts.TrialArgs, opts)

	logger := r.logger.With(slog.Int("run", index))
	if !res.Success() {
		logger.Warn("trial exited abnormally",
			slog.Int("exit_code", res.ExitCode),
			slog.Duration("duration", res.Duration()),
			slog.String("stderr", Snapshot(res.Stderr)))
	}

	metrics, err := ParseMetrics(r.opts.TestType, res.Stdout)
	if err != nil {
		logger.Warn("failed to parse trial output",
			slog.String("error", err.Error()),
			slog.String("snapshot", Snapshot(res.Stdout)))
		fmt.Fprintf(r.opts.Out, "   -> Result: parse failure (%v)\n", err)
		return ledger.Row{}, false
	}

	fmt.Fprintf(r.opts.Out, "   -> Result: %s\n", formatMetrics(r.opts.TestType, metrics))
	return ledger.Row{
		Timestamp:             r.opts.Now(),
		RunIndex:              index,
		TestType:              r.opts.TestType,
		TotalRecords:          r.opts.TotalRecords,
		RecordsPerTransaction: r.opts.RecordsPerTransaction,
		Metrics:               metrics,
	}, true
}

func formatMetrics(t ledger.TestType, metrics []float64) string {
	cols := t.MetricColumns()
	parts := make([]string, len(metrics))
	for i, v := range metrics {
		name := strings.TrimSuffix(strings.TrimSuffix(cols[i], "Seconds"), "Percent")
		if strings.HasSuffix(cols[i], "Percent") {
			parts[i] = fmt.Sprintf("%s = %+.2f%%", name, v)
		} else {
			parts[i] = fmt.Sprintf("%s = %.3fs", name, v)
		}
	}
	return strings.Join(parts, ", ")
}
