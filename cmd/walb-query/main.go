package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/pflag"

	"github.com/mslinn/sqlite_wal_bench/pkg/config"
	"github.com/mslinn/sqlite_wal_bench/pkg/ledger"
	"github.com/mslinn/sqlite_wal_bench/pkg/report"
)

var version = "dev" // Set by -ldflags during build

func main() {
	var (
		showVersion bool
		showHelp    bool
		debug       bool
		ledgerDir   string
	)

	// Define global flags
	pflag.BoolVarP(&showVersion, "version", "V", false, "Show version and exit")
	pflag.BoolVarP(&showHelp, "help", "h", false, "Show this help message")
	pflag.BoolVarP(&debug, "debug", "d", false, "Enable debug output")
	pflag.BoolVarP(&debug, "verbose", "v", false, "Enable verbose output (alias for --debug)")
	pflag.StringVar(&ledgerDir, "ledger-dir", "", "Directory holding result ledgers (default from config)")

	// Stop parsing at first non-flag argument (the subcommand)
	pflag.CommandLine.SetInterspersed(false)
	pflag.Parse()

	// Handle version
	if showVersion {
		fmt.Printf("walb-query version %s\n", version)
		os.Exit(0)
	}

	args := pflag.Args()
	if len(args) == 0 || showHelp {
		printHelp()
		os.Exit(0)
	}

	// Get subcommand
	subcommand := args[0]

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	// Use config ledger directory if not overridden
	if ledgerDir == "" {
		ledgerDir = cfg.GetLedgerDir()
	}

	// Execute subcommand
	switch subcommand {
	case "list":
		handleList(ledgerDir, args[1:], debug)
	case "show":
		handleShow(ledgerDir, args[1:], debug)
	case "stats":
		handleStats(ledgerDir, args[1:], debug)
	default:
		fmt.Fprintf(os.Stderr, "Error: unknown subcommand '%s'\n\n", subcommand)
		printUsage()
		os.Exit(1)
	}
}

func handleList(ledgerDir string, args []string, debug bool) {
	fs := pflag.NewFlagSet("list", pflag.ExitOnError)
	fs.Parse(args)

	entries, err := report.ListLedgers(ledgerDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error listing ledgers: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Ledgers in %s:\n\n", ledgerDir)
	report.WriteList(os.Stdout, entries)

	if debug {
		for _, e := range entries {
			if e.Err != nil {
				fmt.Printf("\n%s: %v\n", filepath.Base(e.Path), e.Err)
			}
		}
	}
}

// resolveLedger accepts a path, a file name inside ledgerDir, or nothing
// for the newest valid ledger in ledgerDir
func resolveLedger(ledgerDir string, args []string) string {
	if len(args) > 0 {
		if _, err := os.Stat(args[0]); err == nil {
			return args[0]
		}
		candidate := filepath.Join(ledgerDir, args[0])
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
		fmt.Fprintf(os.Stderr, "Error: ledger '%s' not found\n", args[0])
		os.Exit(1)
	}

	entries, err := report.ListLedgers(ledgerDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error listing ledgers: %v\n", err)
		os.Exit(1)
	}
	for _, e := range entries {
		if e.Err == nil {
			return e.Path
		}
	}
	fmt.Fprintf(os.Stderr, "Error: no ledgers found in %s\n", ledgerDir)
	os.Exit(1)
	return ""
}

func readLedger(path string) *ledger.Table {
	table, err := ledger.Read(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading ledger: %v\n", err)
		os.Exit(1)
	}
	return table
}

func handleShow(ledgerDir string, args []string, debug bool) {
	fs := pflag.NewFlagSet("show", pflag.ExitOnError)
	limit := fs.Int("limit", 0, "Show only the last N rows (0 shows all)")
	fs.Parse(args)

	path := resolveLedger(ledgerDir, fs.Args())
	table := readLedger(path)

	fmt.Printf("Ledger: %s\n\n", path)
	if len(table.Rows) == 0 {
		fmt.Println("No runs recorded")
		return
	}
	report.WriteRows(os.Stdout, table, *limit)
}

func handleStats(ledgerDir string, args []string, debug bool) {
	fs := pflag.NewFlagSet("stats", pflag.ExitOnError)
	fs.Parse(args)

	path := resolveLedger(ledgerDir, fs.Args())
	table := readLedger(path)

	fmt.Printf("Ledger: %s\n\n", path)
	if len(table.Rows) == 0 {
		fmt.Println("No runs recorded")
		return
	}
	report.WriteStats(os.Stdout, table)

	if debug {
		first, last := table.Rows[0], table.Rows[len(table.Rows)-1]
		fmt.Printf("\nRecords: %d, per transaction: %d\n", first.TotalRecords, first.RecordsPerTransaction)
		fmt.Printf("Runs from %s to %s\n", first.Timestamp.Format(ledger.TimeLayout), last.Timestamp.Format(ledger.TimeLayout))
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, "Usage: walb-query [OPTIONS] SUBCOMMAND [LEDGER]\n\n")
	fmt.Fprintf(os.Stderr, "Subcommands:\n")
	fmt.Fprintf(os.Stderr, "  list          List result ledgers\n")
	fmt.Fprintf(os.Stderr, "  show          Show the rows of a ledger\n")
	fmt.Fprintf(os.Stderr, "  stats         Show per-metric statistics of a ledger\n\n")
	pflag.PrintDefaults()
}

func printHelp() {
	fmt.Printf("walb-query - Report on benchmark result ledgers\n\n")
	fmt.Printf("Version: %s\n\n", version)

	fmt.Printf("DESCRIPTION:\n")
	fmt.Printf("  Lists the CSV ledgers written by walb-runner and summarizes their runs.\n")
	fmt.Printf("  LEDGER may be a path or a file name in the ledger directory. Without it\n")
	fmt.Printf("  the newest ledger is used.\n\n")

	fmt.Printf("USAGE:\n")
	fmt.Printf("  walb-query [OPTIONS] SUBCOMMAND [LEDGER]\n\n")

	fmt.Printf("SUBCOMMANDS:\n")
	fmt.Printf("  list                 List ledgers, newest first\n")
	fmt.Printf("  show [--limit N]     Show recorded runs\n")
	fmt.Printf("  stats                Mean, min, max and standard deviation per metric\n\n")

	fmt.Printf("GLOBAL OPTIONS:\n")
	pflag.PrintDefaults()

	fmt.Printf("\nEXAMPLES:\n")
	fmt.Printf("  # List ledgers\n")
	fmt.Printf("  walb-query list\n\n")

	fmt.Printf("  # Last five runs of the newest ledger\n")
	fmt.Printf("  walb-query show --limit 5\n\n")

	fmt.Printf("  # Statistics for one ledger\n")
	fmt.Printf("  walb-query stats Result_Concurrency_Rec100000_Tx100_20260401_093000.csv\n")
}
