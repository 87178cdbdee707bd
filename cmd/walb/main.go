package main

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"syscall"
)

var version = "dev" // Set by -ldflags during build

// Available subcommands
var subcommands = []struct {
	name        string
	description string
}{
	{"trial", "Run one benchmark trial (interactive menu)"},
	{"runner", "Run repeated trials and record them in a ledger"},
	{"query", "List and summarize result ledgers"},
	{"config", "Manage configuration"},
}

func main() {
	// Handle version flag
	if len(os.Args) > 1 && (os.Args[1] == "--version" || os.Args[1] == "-V") {
		fmt.Printf("walb version %s\n", version)
		os.Exit(0)
	}

	// Handle help flag
	if len(os.Args) == 1 || os.Args[1] == "--help" || os.Args[1] == "-h" {
		printHelp()
		os.Exit(0)
	}

	// Get subcommand
	subcommand := os.Args[1]

	// Check it against the known tools
	validSubcommand := false
	for _, sc := range subcommands {
		if sc.name == subcommand {
			validSubcommand = true
			break
		}
	}

	if !validSubcommand {
		fmt.Fprintf(os.Stderr, "Error: unknown subcommand '%s'\n\n", subcommand)
		printUsage()
		os.Exit(1)
	}

	// Build the command name
	cmdName := "walb-" + subcommand

	// Find the full path to the command
	cmdPath, err := exec.LookPath(cmdName)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: command '%s' not found in PATH\n", cmdName)
		fmt.Fprintf(os.Stderr, "Make sure it is installed (try: go install ./cmd/...)\n")
		os.Exit(1)
	}

	// Prepare arguments (skip 'walb' and the subcommand name)
	args := []string{filepath.Base(cmdPath)}
	if len(os.Args) > 2 {
		args = append(args, os.Args[2:]...)
	}

	// Replace this process with the subcommand (execve)
	// The trial then receives signals and owns the terminal for its progress redraws
	if err := syscall.Exec(cmdPath, args, os.Environ()); err != nil {
		// If exec fails, fall back to running as subprocess
		cmd := exec.Command(cmdPath, args[1:]...)
		cmd.Stdin = os.Stdin
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr

		if err := cmd.Run(); err != nil {
			if exitErr, ok := err.(*exec.ExitError); ok {
				os.Exit(exitErr.ExitCode())
			}
			fmt.Fprintf(os.Stderr, "Error executing %s: %v\n", cmdName, err)
			os.Exit(1)
		}
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, "Usage: walb <command> [options]\n\n")
	fmt.Fprintf(os.Stderr, "Available commands:\n")
	for _, sc := range subcommands {
		fmt.Fprintf(os.Stderr, "  %-8s %s\n", sc.name, sc.description)
	}
	fmt.Fprintf(os.Stderr, "\nRun 'walb <command> --help' for more information on a command.\n")
}

func printHelp() {
	fmt.Printf("walb - SQLite concurrent read/write benchmark\n\n")
	fmt.Printf("Version: %s\n\n", version)
	fmt.Printf("DESCRIPTION:\n")
	fmt.Printf("  Measures how much a concurrently polling reader slows down a batched\n")
	fmt.Printf("  SQLite writer, compares journal modes, and records repeated runs in\n")
	fmt.Printf("  CSV ledgers. Dispatches to the individual walb-* tools.\n\n")

	fmt.Printf("USAGE:\n")
	fmt.Printf("  walb <command> [options]\n\n")

	fmt.Printf("AVAILABLE COMMANDS:\n")
	for _, sc := range subcommands {
		fmt.Printf("  %-8s %s\n", sc.name, sc.description)
	}

	fmt.Printf("\nGLOBAL OPTIONS:\n")
	fmt.Printf("  -h, --help       Show this help message\n")
	fmt.Printf("  -V, --version    Show version\n\n")

	fmt.Printf("EXAMPLES:\n")
	fmt.Printf("  # Interactive trial menu\n")
	fmt.Printf("  walb trial\n\n")

	fmt.Printf("  # Ten concurrency trials of 100,000 records, 100 per transaction\n")
	fmt.Printf("  walb runner --type concurrency -n 10 --total 100000 --tx 100\n\n")

	fmt.Printf("  # Statistics for a ledger\n")
	fmt.Printf("  walb query stats Result_Concurrency_Rec100000_Tx100_20260401_093000.csv\n\n")

	fmt.Printf("GETTING STARTED:\n")
	fmt.Printf("  1. Set up configuration:\n")
	fmt.Printf("       walb config init\n")
	fmt.Printf("       walb config set work_dir /mnt/fast/walb_data\n\n")

	fmt.Printf("  2. Try one trial by hand:\n")
	fmt.Printf("       walb trial\n\n")

	fmt.Printf("  3. Automate repeated runs:\n")
	fmt.Printf("       walb runner --type performance -n 5\n\n")

	fmt.Printf("  4. Review the results:\n")
	fmt.Printf("       walb query list\n\n")

	fmt.Printf("For detailed help on any command:\n")
	fmt.Printf("  walb <command> --help\n")
}
