package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/spf13/pflag"

	"github.com/mslinn/sqlite_wal_bench/pkg/bench"
	"github.com/mslinn/sqlite_wal_bench/pkg/config"
	"github.com/mslinn/sqlite_wal_bench/pkg/database"
	"github.com/mslinn/sqlite_wal_bench/pkg/ledger"
	"github.com/mslinn/sqlite_wal_bench/pkg/menu"
	"github.com/mslinn/sqlite_wal_bench/pkg/progress"
)

var version = "dev" // Set by -ldflags during build

// childFlags are set only when the trial re-launches itself for split execution
type childFlags struct {
	role     string
	db       string
	total    int
	tx       int
	interval int
	readerID int
}

func main() {
	var (
		showVersion  bool
		showHelp     bool
		debug        bool
		configPath   string
		workDir      string
		journalMode  string
		noCheckpoint bool
		child        childFlags
	)

	// Define flags
	pflag.BoolVarP(&showVersion, "version", "V", false, "Show version and exit")
	pflag.BoolVarP(&showHelp, "help", "h", false, "Show this help message")
	pflag.BoolVarP(&debug, "debug", "d", false, "Enable debug logging")
	pflag.BoolVarP(&debug, "verbose", "v", false, "Enable verbose output (alias for --debug)")
	pflag.StringVar(&configPath, "config", "", "Path to config file (default: ~/.walb-config)")
	pflag.StringVar(&workDir, "work-dir", "", "Directory for benchmark databases (default from config)")
	pflag.StringVar(&journalMode, "journal-mode", "", "Journal mode for concurrency and split trials: WAL, DEFAULT, MEMORY")
	pflag.BoolVar(&noCheckpoint, "no-checkpoint", false, "Disable WAL auto-checkpointing and the final checkpoint")

	// Hidden flags used by split execution children
	pflag.StringVar(&child.role, "role", "", "Child process role: writer or reader")
	pflag.StringVar(&child.db, "db", "", "Database shared by child processes")
	pflag.IntVar(&child.total, "total", 0, "Total records")
	pflag.IntVar(&child.tx, "tx", 0, "Records per transaction")
	pflag.IntVar(&child.interval, "interval", 0, "Records between progress updates")
	pflag.IntVar(&child.readerID, "reader-id", 0, "Reader number")
	for _, name := range []string{"role", "db", "total", "tx", "interval", "reader-id"} {
		pflag.CommandLine.MarkHidden(name)
	}

	pflag.Parse()

	// Handle version
	if showVersion {
		fmt.Printf("walb-trial version %s\n", version)
		os.Exit(0)
	}

	if showHelp {
		printHelp()
		os.Exit(0)
	}

	if configPath != "" {
		os.Setenv("WALB_CONFIG", configPath)
	}

	// Load configuration, then apply flag overrides
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	if workDir != "" {
		cfg.WorkDir = workDir
	}
	if journalMode != "" {
		cfg.JournalMode = journalMode
	}
	if noCheckpoint {
		cfg.CheckpointDisabled = true
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// A split trial child runs its role and exits
	if child.role != "" {
		if err := runChild(ctx, cfg, child, logger); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if err := os.MkdirAll(cfg.GetWorkDir(), 0755); err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to create work directory: %v\n", err)
		os.Exit(1)
	}

	t := &trial{cfg: cfg, logger: logger}
	m := menu.New(os.Stdin, os.Stdout, menu.Defaults{
		TotalRecords:          cfg.TotalRecords,
		RecordsPerTransaction: cfg.RecordsPerTransaction,
		UpdateInterval:        cfg.UpdateInterval,
	})
	if err := m.Loop(ctx, t.run); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// trial runs menu selections in this process
type trial struct {
	cfg    *config.Config
	logger *slog.Logger
}

func (t *trial) trialConfig(sel menu.Selection) (bench.TrialConfig, error) {
	cfg := *t.cfg
	cfg.TotalRecords = sel.TotalRecords
	cfg.RecordsPerTransaction = sel.RecordsPerTransaction
	cfg.UpdateInterval = sel.UpdateInterval
	return bench.NewTrialConfig(&cfg)
}

func (t *trial) reporter(actors ...string) *progress.Reporter {
	return progress.NewReporter(progress.NewRenderer(os.Stdout), progress.Options{
		Interval: t.cfg.RenderInterval,
		Fallback: progress.NewLineRenderer(os.Stdout),
		Logger:   t.logger,
	}, actors...)
}

func (t *trial) run(ctx context.Context, sel menu.Selection) error {
	tc, err := t.trialConfig(sel)
	if err != nil {
		return err
	}
	logger := t.logger.With(slog.String("test", string(sel.TestType)))
	logger.Debug("starting trial", slog.Any("config", tc))

	start := time.Now()
	switch sel.TestType {
	case ledger.Performance:
		fmt.Printf("\n=== Performance Comparison: %d records, %d per transaction ===\n", tc.TotalRecords, tc.RecordsPerTransaction)
		_, err = bench.RunPerformance(ctx, tc, bench.PerformanceOptions{
			WorkDir: t.cfg.GetWorkDir(),
			Out:     os.Stdout,
			Sink:    t.reporter(bench.ActorWriter),
			Logger:  logger,
		})

	case ledger.Concurrency:
		fmt.Printf("\n=== Concurrency Test: %d records, %d per transaction, %s ===\n", tc.TotalRecords, tc.RecordsPerTransaction, tc.JournalMode)
		var result *bench.TrialResult
		result, err = bench.NewCoordinator(tc, bench.CoordinatorOptions{
			WorkDir:                  t.cfg.GetWorkDir(),
			Out:                      os.Stdout,
			Sink:                     t.reporter(bench.ActorWriter, bench.ActorReader),
			Logger:                   logger,
			ReaderRetryDelay:         t.cfg.ReaderRetryDelay,
			ReaderPollDelay:          t.cfg.ReaderPollDelay,
			ReaderMaxConnectAttempts: t.cfg.ReaderMaxConnectAttempts,
			DrainMaxIterations:       t.cfg.DrainMaxIterations,
			DrainInterval:            t.cfg.DrainInterval,
		}).Run(ctx)
		if err == nil {
			bench.WriteConcurrencySummary(os.Stdout, result, t.cfg.OverheadThresholdPercent)
		}

	case ledger.Split:
		fmt.Printf("\n=== Split Execution: %d records, %d reader process(es) ===\n", tc.TotalRecords, t.cfg.SplitReaders)
		var exe string
		if exe, err = os.Executable(); err != nil {
			return err
		}
		var result *bench.SplitResult
		result, err = bench.RunSplit(ctx, tc, bench.SplitOptions{
			Executable: exe,
			BaseArgs:   []string{"--config", config.GetConfigPath(), "--work-dir", t.cfg.GetWorkDir()},
			WorkDir:    t.cfg.GetWorkDir(),
			Readers:    t.cfg.SplitReaders,
			Out:        os.Stdout,
			Logger:     logger,

			DrainTimeout: time.Duration(t.cfg.DrainMaxIterations) * t.cfg.DrainInterval,
		})
		if err == nil {
			bench.WriteSplitSummary(os.Stdout, result)
		}
	}
	if err != nil {
		return err
	}

	fmt.Printf("\n%s: %s\n", bench.LabelTotalTime, bench.FormatClock(time.Since(start)))
	return nil
}

// runChild is the body of a process launched by a split trial
func runChild(ctx context.Context, cfg *config.Config, child childFlags, logger *slog.Logger) error {
	if child.db == "" || child.total <= 0 {
		return errors.New("--role requires --db and a positive --total")
	}

	mode, err := database.ParseJournalMode(cfg.JournalMode)
	if err != nil {
		return err
	}
	busy := time.Duration(cfg.BusyTimeoutMs) * time.Millisecond

	switch child.role {
	case bench.RoleWriter:
		tc := bench.TrialConfig{
			TotalRecords:          child.total,
			RecordsPerTransaction: child.tx,
			UpdateInterval:        child.interval,
			JournalMode:           mode,
			CheckpointDisabled:    cfg.CheckpointDisabled,
			BusyTimeout:           busy,
		}.Normalize()
		sink := progress.NewReporter(progress.NewLineRenderer(os.Stdout), progress.Options{
			Interval: cfg.RenderInterval,
			Logger:   logger,
		}, bench.ActorWriter)
		return bench.RunWriterChild(ctx, child.db, tc, os.Stdout, sink, logger)

	case bench.RoleReader:
		actor := fmt.Sprintf("%s %d", bench.ActorReader, child.readerID)
		sink := progress.NewReporter(progress.NewLineRenderer(os.Stdout), progress.Options{
			Interval: cfg.RenderInterval,
			Logger:   logger,
		}, actor)
		return bench.RunReaderChild(ctx, child.db, int64(child.total), bench.ReaderOptions{
			Actor:              actor,
			Sink:               sink,
			Logger:             logger.With(slog.Int("reader", child.readerID)),
			BusyTimeout:        busy,
			RetryDelay:         cfg.ReaderRetryDelay,
			PollDelay:          cfg.ReaderPollDelay,
			MaxConnectAttempts: cfg.ReaderMaxConnectAttempts,
			FinalCheckpoint:    mode == database.JournalWAL && !cfg.CheckpointDisabled,
		}, os.Stdout)
	}
	return errors.Newf("unknown role %q (valid: %s, %s)", child.role, bench.RoleWriter, bench.RoleReader)
}

func printHelp() {
	fmt.Printf("walb-trial - Run SQLite write benchmark trials\n\n")
	fmt.Printf("Version: %s\n\n", version)

	fmt.Printf("DESCRIPTION:\n")
	fmt.Printf("  Interactive menu that runs one benchmark at a time. Reads its answers\n")
	fmt.Printf("  line by line from stdin, so walb-runner can script it.\n\n")

	fmt.Printf("USAGE:\n")
	fmt.Printf("  walb-trial [OPTIONS]\n\n")

	fmt.Printf("MENU:\n")
	fmt.Printf("  1  Performance comparison: the writer alone in WAL, DEFAULT and MEMORY mode\n")
	fmt.Printf("  2  Concurrency test: baseline writer vs. writer with a polling reader\n")
	fmt.Printf("  3  Split execution: writer and readers as separate processes\n")
	fmt.Printf("  0  Exit\n\n")
	fmt.Printf("  Each test asks for total records, records per transaction and the\n")
	fmt.Printf("  progress update interval. A blank answer keeps the default shown.\n\n")

	fmt.Printf("OPTIONS:\n")
	pflag.PrintDefaults()

	fmt.Printf("\nEXAMPLES:\n")
	fmt.Printf("  # Interactive\n")
	fmt.Printf("  walb-trial\n\n")

	fmt.Printf("  # One scripted concurrency test of 10,000 records, 100 per transaction\n")
	fmt.Printf("  printf '2\\n10000\\n100\\n\\n\\n0\\n' | walb-trial\n\n")

	fmt.Printf("  # Concurrency test in rollback-journal mode\n")
	fmt.Printf("  walb-trial --journal-mode DEFAULT\n")
}
