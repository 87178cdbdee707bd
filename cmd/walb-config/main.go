package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/pflag"

	"github.com/mslinn/sqlite_wal_bench/pkg/config"
)

var version = "dev" // Set by -ldflags during build

// envOverrides maps each environment variable to the key it replaces
var envOverrides = []struct {
	name string
	key  string
}{
	{"WALB_WORK_DIR", "work_dir"},
	{"WALB_LEDGER_DIR", "ledger_dir"},
	{"WALB_JOURNAL_MODE", "journal_mode"},
	{"WALB_CHECKPOINT_DISABLED", "checkpoint_disabled"},
	{"WALB_TRIAL_BIN", "trial_binary"},
	{"WALB_READER_MAX_ATTEMPTS", "reader_max_connect_attempts"},
}

func main() {
	var (
		showVersion bool
		showHelp    bool
		configPath  string
	)

	// Define flags
	pflag.BoolVarP(&showVersion, "version", "V", false, "Show version and exit")
	pflag.BoolVarP(&showHelp, "help", "h", false, "Show this help message")
	pflag.StringVar(&configPath, "config", "", "Path to config file (default: ~/.walb-config)")
	pflag.CommandLine.SetInterspersed(false)

	pflag.Parse()

	// Handle version
	if showVersion {
		fmt.Printf("walb-config version %s\n", version)
		os.Exit(0)
	}

	// Handle help
	if showHelp {
		printHelp()
		os.Exit(0)
	}

	args := pflag.Args()
	if len(args) == 0 {
		fmt.Fprintf(os.Stderr, "Error: subcommand required\n\n")
		printUsage()
		os.Exit(1)
	}

	subcommand := args[0]

	// Override config path if specified
	if configPath != "" {
		os.Setenv("WALB_CONFIG", configPath)
	}

	// Execute subcommand
	switch subcommand {
	case "init":
		handleInit(args[1:])
	case "set":
		handleSet(args[1:])
	case "get":
		handleGet(args[1:])
	case "show":
		handleShow()
	case "path":
		handlePath()
	default:
		fmt.Fprintf(os.Stderr, "Error: unknown subcommand '%s'\n\n", subcommand)
		printUsage()
		os.Exit(1)
	}
}

func handleInit(args []string) {
	var force bool
	// Parse flags for init
	flags := pflag.NewFlagSet("init", pflag.ExitOnError)
	flags.BoolVarP(&force, "force", "f", false, "Overwrite existing config file")
	flags.Parse(args)

	configPath := config.GetConfigPath()

	// Check if config exists
	if _, err := os.Stat(configPath); err == nil && !force {
		fmt.Fprintf(os.Stderr, "Error: config file already exists at %s\n", configPath)
		fmt.Fprintf(os.Stderr, "Use --force to overwrite\n")
		os.Exit(1)
	}

	// Create default config
	cfg := config.DefaultConfig()
	if err := cfg.Save(configPath); err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to save config: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("✓ Created config file at %s\n", configPath)
	fmt.Println("\nDefault configuration:")
	fmt.Printf("  work_dir: %s\n", cfg.WorkDir)
	fmt.Printf("  total_records: %d\n", cfg.TotalRecords)
	fmt.Printf("  records_per_transaction: %d\n", cfg.RecordsPerTransaction)
	fmt.Printf("  journal_mode: %s\n", cfg.JournalMode)
	fmt.Println("\nEdit the file or use 'walb-config set' to customize.")
}

// loadFileConfig reads the config file without environment overrides, so
// that set does not persist values that only came from the environment
func loadFileConfig() *config.Config {
	for _, env := range envOverrides {
		os.Unsetenv(env.name)
	}
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to load config: %v\n", err)
		fmt.Fprintf(os.Stderr, "Try running 'walb-config init' first\n")
		os.Exit(1)
	}
	return cfg
}

func handleSet(args []string) {
	if len(args) < 2 {
		fmt.Fprintf(os.Stderr, "Error: 'set' requires KEY and VALUE arguments\n\n")
		fmt.Fprintf(os.Stderr, "Usage: walb-config set KEY VALUE\n")
		fmt.Fprintf(os.Stderr, "\nValid keys: %s\n", strings.Join(config.Keys(), ", "))
		os.Exit(1)
	}

	key := args[0]
	value := args[1]

	// Load existing config
	cfg := loadFileConfig()

	// Set the value
	if err := cfg.Set(key, value); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	// Save config
	configPath := config.GetConfigPath()
	if err := cfg.Save(configPath); err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to save config: %v\n", err)
		os.Exit(1)
	}

	stored, _ := cfg.Get(key)
	fmt.Printf("✓ Set %s = %s\n", key, stored)
}

func handleGet(args []string) {
	if len(args) < 1 {
		fmt.Fprintf(os.Stderr, "Error: 'get' requires KEY argument\n\n")
		fmt.Fprintf(os.Stderr, "Usage: walb-config get KEY\n")
		fmt.Fprintf(os.Stderr, "\nValid keys: %s\n", strings.Join(config.Keys(), ", "))
		os.Exit(1)
	}

	// Load config
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Get the value
	value, err := cfg.Get(args[0])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(value)
}

func handleShow() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to load config: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Configuration from: %s\n\n", config.GetConfigPath())
	for _, key := range config.Keys() {
		value, _ := cfg.Get(key)
		fmt.Printf("%-28s %s\n", key+":", value)
	}

	// Show environment variable overrides
	fmt.Println("\nEnvironment variable overrides:")
	for _, env := range envOverrides {
		if v := os.Getenv(env.name); v != "" {
			fmt.Printf("  %s=%s (overrides %s)\n", env.name, v, env.key)
		}
	}
}

func handlePath() {
	fmt.Println(config.GetConfigPath())
}

func printUsage() {
	fmt.Fprintf(os.Stderr, "Usage: walb-config [OPTIONS] SUBCOMMAND\n\n")
	fmt.Fprintf(os.Stderr, "Manage benchmark configuration\n\n")
	fmt.Fprintf(os.Stderr, "Subcommands:\n")
	fmt.Fprintf(os.Stderr, "  init          Create default config file\n")
	fmt.Fprintf(os.Stderr, "  set KEY VAL   Set configuration value\n")
	fmt.Fprintf(os.Stderr, "  get KEY       Get configuration value\n")
	fmt.Fprintf(os.Stderr, "  show          Show all configuration\n")
	fmt.Fprintf(os.Stderr, "  path          Show config file path\n\n")
	pflag.PrintDefaults()
}

func printHelp() {
	fmt.Printf("walb-config - Manage benchmark configuration\n\n")
	fmt.Printf("Version: %s\n\n", version)

	fmt.Printf("DESCRIPTION:\n")
	fmt.Printf("  Manages configuration for the walb commands. Configuration is stored in\n")
	fmt.Printf("  ~/.walb-config by default and can be overridden with environment variables.\n\n")

	fmt.Printf("USAGE:\n")
	fmt.Printf("  walb-config [OPTIONS] SUBCOMMAND\n\n")

	fmt.Printf("SUBCOMMANDS:\n")
	fmt.Printf("  init          Create default configuration file\n")
	fmt.Printf("  set KEY VAL   Set a configuration value\n")
	fmt.Printf("  get KEY       Get a configuration value\n")
	fmt.Printf("  show          Display all configuration values\n")
	fmt.Printf("  path          Show the config file path\n\n")

	fmt.Printf("CONFIGURATION KEYS:\n")
	for _, key := range config.Keys() {
		fmt.Printf("  %s\n", key)
	}
	fmt.Println()

	fmt.Printf("ENVIRONMENT VARIABLES:\n")
	fmt.Printf("  WALB_CONFIG        Path to config file\n")
	for _, env := range envOverrides {
		fmt.Printf("  %-26s Override %s\n", env.name, env.key)
	}
	fmt.Println()

	fmt.Printf("OPTIONS:\n")
	pflag.PrintDefaults()

	fmt.Printf("\nEXAMPLES:\n")
	fmt.Printf("  # Create default config\n")
	fmt.Printf("  walb-config init\n\n")

	fmt.Printf("  # Keep benchmark databases on a fast disk\n")
	fmt.Printf("  walb-config set work_dir /mnt/nvme/walb_data\n\n")

	fmt.Printf("  # Bound the reader's wait for the writer's schema\n")
	fmt.Printf("  walb-config set reader_max_connect_attempts 5000\n\n")

	fmt.Printf("  # View all configuration\n")
	fmt.Printf("  walb-config show\n\n")

	fmt.Printf("  # Find config file location\n")
	fmt.Printf("  walb-config path\n\n")

	fmt.Printf("CONFIG FILE FORMAT:\n")
	fmt.Printf("  # %s\n", config.GetConfigPath())
	fmt.Printf("  work_dir: ~/walb_data\n")
	fmt.Printf("  total_records: 10000000\n")
	fmt.Printf("  records_per_transaction: 1\n")
	fmt.Printf("  journal_mode: WAL\n")
	fmt.Printf("  reader_poll_delay: 1ms\n\n")
}
