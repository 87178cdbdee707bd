package main

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/spf13/pflag"

	"github.com/mslinn/sqlite_wal_bench/pkg/automation"
	"github.com/mslinn/sqlite_wal_bench/pkg/config"
	"github.com/mslinn/sqlite_wal_bench/pkg/ledger"
)

var version = "dev" // Set by -ldflags during build

func main() {
	var (
		showVersion bool
		showHelp    bool
		debug       bool
		live        bool
		configPath  string
		testType    string
		iterations  int
		total       int
		tx          int
		interval    int
		ledgerDir   string
		ledgerPath  string
		trialBin    string
		timeout     time.Duration
	)

	// Define flags
	pflag.BoolVarP(&showVersion, "version", "V", false, "Show version and exit")
	pflag.BoolVarP(&showHelp, "help", "h", false, "Show this help message")
	pflag.BoolVarP(&debug, "debug", "d", false, "Enable debug logging")
	pflag.BoolVarP(&debug, "verbose", "v", false, "Enable verbose output (alias for --debug)")
	pflag.BoolVar(&live, "live", false, "Stream each trial's output while it runs")
	pflag.StringVar(&configPath, "config", "", "Path to config file (default: ~/.walb-config)")
	pflag.StringVarP(&testType, "type", "t", "", "Test type: performance, concurrency, split (or 1, 2, 3)")
	pflag.IntVarP(&iterations, "iterations", "n", 0, "Number of trials (default from config)")
	pflag.IntVar(&total, "total", 0, "Total records per trial (default from config)")
	pflag.IntVar(&tx, "tx", 0, "Records per transaction (default from config)")
	pflag.IntVar(&interval, "interval", 0, "Records between progress updates (default: derived)")
	pflag.StringVar(&ledgerDir, "ledger-dir", "", "Directory for the result ledger (default from config)")
	pflag.StringVar(&ledgerPath, "ledger", "", "Exact ledger file path (overrides --ledger-dir)")
	pflag.StringVar(&trialBin, "trial-bin", "", "Trial executable (default from config)")
	pflag.DurationVar(&timeout, "timeout", 0, "Per-trial time limit, e.g. 30m (default: none)")

	pflag.Parse()

	// Handle version
	if showVersion {
		fmt.Printf("walb-runner version %s\n", version)
		os.Exit(0)
	}

	if showHelp {
		printHelp()
		os.Exit(0)
	}

	// Override config path if specified
	if configPath != "" {
		os.Setenv("WALB_CONFIG", configPath)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	// Ask for the test type only when someone can answer
	if testType == "" {
		if !isatty.IsTerminal(os.Stdin.Fd()) {
			fmt.Fprintf(os.Stderr, "Error: --type is required when stdin is not a terminal\n\n")
			printUsage()
			os.Exit(1)
		}
		testType = prompt(bufio.NewReader(os.Stdin), "Test type (1 performance, 2 concurrency, 3 split)", "2")
	}
	tt, err := ledger.ParseTestType(testType)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	// Fill unset options from config
	if iterations <= 0 {
		iterations = cfg.Iterations
	}
	if total <= 0 {
		total = cfg.TotalRecords
	}
	if tx <= 0 {
		tx = cfg.RecordsPerTransaction
	}
	if interval <= 0 {
		interval = cfg.UpdateInterval
	}
	if ledgerDir == "" {
		ledgerDir = cfg.GetLedgerDir()
	}
	if trialBin == "" {
		trialBin = cfg.TrialBinary
	}

	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Trials read the same config file
	var trialArgs []string
	if configPath != "" {
		trialArgs = append(trialArgs, "--config", configPath)
	}

	runner := automation.New(automation.Options{
		TrialBinary:           trialBin,
		TrialArgs:             trialArgs,
		TestType:              tt,
		Iterations:            iterations,
		TotalRecords:          total,
		RecordsPerTransaction: tx,
		UpdateInterval:        interval,
		LedgerDir:             ledgerDir,
		LedgerPath:            ledgerPath,
		Timeout:               timeout,
		Live:                  live,
		Out:                   os.Stdout,
		Logger:                logger,
	})

	summary, err := runner.Run(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "\nError: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("\n✓ Ledger written: %s\n", summary.LedgerPath)
	fmt.Printf("  View results: walb-query stats %s\n", summary.LedgerPath)
	if summary.Recorded == 0 {
		os.Exit(1)
	}
}

// prompt reads one answer, falling back to def when it is blank
func prompt(in *bufio.Reader, label, def string) string {
	fmt.Printf("%s [%s]: ", label, def)
	line, _ := in.ReadString('\n')
	if line = strings.TrimSpace(line); line != "" {
		return line
	}
	return def
}

func printUsage() {
	fmt.Fprintf(os.Stderr, "Usage: walb-runner [OPTIONS]\n\n")
	fmt.Fprintf(os.Stderr, "Run repeated benchmark trials and record them in a CSV ledger\n\n")
	pflag.PrintDefaults()
}

func printHelp() {
	fmt.Printf("walb-runner - Run repeated benchmark trials\n\n")
	fmt.Printf("Version: %s\n\n", version)

	fmt.Printf("DESCRIPTION:\n")
	fmt.Printf("  Launches walb-trial once per iteration, one at a time, answers its menu\n")
	fmt.Printf("  from a script and parses the timings it prints. Every parsed run is\n")
	fmt.Printf("  appended to a new ledger named\n")
	fmt.Printf("    Result_<Type>_Rec<N>_Tx<M>_<yyyyMMdd_HHmmss>.csv\n")
	fmt.Printf("  A run that cannot be parsed is logged and skipped.\n\n")

	fmt.Printf("USAGE:\n")
	fmt.Printf("  walb-runner [OPTIONS]\n\n")

	fmt.Printf("OPTIONS:\n")
	pflag.PrintDefaults()

	fmt.Printf("\nEXAMPLES:\n")
	fmt.Printf("  # Ten concurrency trials with the configured defaults\n")
	fmt.Printf("  walb-runner --type concurrency\n\n")

	fmt.Printf("  # Five performance comparisons of 1,000,000 records in batches of 100\n")
	fmt.Printf("  walb-runner -t performance -n 5 --total 1000000 --tx 100\n\n")

	fmt.Printf("  # Watch the trials while they run\n")
	fmt.Printf("  walb-runner -t split -n 3 --total 100000 --live\n")
}
