package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"gopkg.in/yaml.v3"
)

// Journal mode names accepted in the config file and on the command line
const (
	JournalWAL     = "WAL"
	JournalDefault = "DEFAULT"
	JournalMemory  = "MEMORY"
)

// Config represents the benchmark configuration
type Config struct {
	WorkDir   string `yaml:"work_dir"`
	LedgerDir string `yaml:"ledger_dir"`

	// Trial defaults used when a menu prompt is left blank
	TotalRecords          int `yaml:"total_records"`
	RecordsPerTransaction int `yaml:"records_per_transaction"`
	UpdateInterval        int `yaml:"update_interval"` // 0 derives it from records_per_transaction

	JournalMode        string `yaml:"journal_mode"`
	CheckpointDisabled bool   `yaml:"checkpoint_disabled"`
	BusyTimeoutMs      int    `yaml:"busy_timeout_ms"`

	ReaderRetryDelay         time.Duration `yaml:"reader_retry_delay"`
	ReaderPollDelay          time.Duration `yaml:"reader_poll_delay"`
	ReaderMaxConnectAttempts int           `yaml:"reader_max_connect_attempts"` // 0 = wait forever

	DrainMaxIterations       int           `yaml:"drain_max_iterations"`
	DrainInterval            time.Duration `yaml:"drain_interval"`
	OverheadThresholdPercent float64       `yaml:"overhead_threshold_percent"`
	RenderInterval           time.Duration `yaml:"render_interval"`
	SplitReaders             int           `yaml:"split_readers"`

	// Automation runner
	Iterations  int    `yaml:"iterations"`
	TrialBinary string `yaml:"trial_binary"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	workDir := filepath.Join(os.TempDir(), "walb")
	if homeDir, err := os.UserHomeDir(); err == nil {
		workDir = filepath.Join(homeDir, "walb_data")
	}
	return &Config{
		WorkDir:                  workDir,
		LedgerDir:                ".",
		TotalRecords:             10_000_000,
		RecordsPerTransaction:    1,
		UpdateInterval:           0,
		JournalMode:              JournalWAL,
		CheckpointDisabled:       false,
		BusyTimeoutMs:            50,
		ReaderRetryDelay:         time.Millisecond,
		ReaderPollDelay:          time.Millisecond,
		ReaderMaxConnectAttempts: 0,
		DrainMaxIterations:       1000,
		DrainInterval:            10 * time.Millisecond,
		OverheadThresholdPercent: 5,
		RenderInterval:           100 * time.Millisecond,
		SplitReaders:             1,
		Iterations:               10,
		TrialBinary:              "walb-trial",
	}
}

// Load loads configuration from file and environment variables
// Priority: environment variables > config file > defaults
func Load() (*Config, error) {
	cfg := DefaultConfig()

	configPath := GetConfigPath()
	if err := loadFromFile(cfg, configPath); err != nil {
		// Config file is optional, so we just skip if not found
		if !os.IsNotExist(err) {
			return nil, errors.Wrap(err, "failed to load config file")
		}
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// applyEnv overrides fields from WALB_* environment variables
func applyEnv(cfg *Config) error {
	if dir := os.Getenv("WALB_WORK_DIR"); dir != "" {
		cfg.WorkDir = dir
	}
	if dir := os.Getenv("WALB_LEDGER_DIR"); dir != "" {
		cfg.LedgerDir = dir
	}
	if mode := os.Getenv("WALB_JOURNAL_MODE"); mode != "" {
		cfg.JournalMode = strings.ToUpper(mode)
	}
	if disabled := os.Getenv("WALB_CHECKPOINT_DISABLED"); disabled != "" {
		cfg.CheckpointDisabled = disabled == "true" || disabled == "1"
	}
	if bin := os.Getenv("WALB_TRIAL_BIN"); bin != "" {
		cfg.TrialBinary = bin
	}
	if attempts := os.Getenv("WALB_READER_MAX_ATTEMPTS"); attempts != "" {
		n, err := strconv.Atoi(attempts)
		if err != nil {
			return errors.Wrapf(err, "invalid WALB_READER_MAX_ATTEMPTS %q", attempts)
		}
		cfg.ReaderMaxConnectAttempts = n
	}
	return nil
}

// loadFromFile loads configuration from a YAML file
func loadFromFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return errors.Wrap(err, "failed to parse config file")
	}

	return nil
}

// Validate checks ranges and normalizes the journal mode name
func (cfg *Config) Validate() error {
	cfg.JournalMode = strings.ToUpper(cfg.JournalMode)
	switch cfg.JournalMode {
	case JournalWAL, JournalDefault, JournalMemory:
	default:
		return errors.Newf("invalid journal_mode %q (valid: WAL, DEFAULT, MEMORY)", cfg.JournalMode)
	}
	if cfg.TotalRecords <= 0 {
		return errors.Newf("total_records must be positive, got %d", cfg.TotalRecords)
	}
	if cfg.RecordsPerTransaction <= 0 {
		return errors.Newf("records_per_transaction must be positive, got %d", cfg.RecordsPerTransaction)
	}
	if cfg.UpdateInterval < 0 {
		return errors.Newf("update_interval must not be negative, got %d", cfg.UpdateInterval)
	}
	if cfg.ReaderMaxConnectAttempts < 0 {
		return errors.Newf("reader_max_connect_attempts must not be negative, got %d", cfg.ReaderMaxConnectAttempts)
	}
	if cfg.Iterations <= 0 {
		return errors.Newf("iterations must be positive, got %d", cfg.Iterations)
	}
	if cfg.SplitReaders <= 0 {
		cfg.SplitReaders = 1
	}
	return nil
}

// Save saves the configuration to a file
func (cfg *Config) Save(path string) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return errors.Wrap(err, "failed to marshal config")
	}

	// Create directory if it doesn't exist
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return errors.Wrap(err, "failed to create config directory")
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return errors.Wrap(err, "failed to write config file")
	}

	return nil
}

// GetConfigPath returns the path to the config file
func GetConfigPath() string {
	configPath := os.Getenv("WALB_CONFIG")
	if configPath == "" {
		homeDir, err := os.UserHomeDir()
		if err == nil {
			configPath = filepath.Join(homeDir, ".walb-config")
		} else {
			configPath = ".walb-config"
		}
	}
	return configPath
}

// GetWorkDir returns the work directory, expanding ~/ if needed
func (cfg *Config) GetWorkDir() string {
	return expandHome(cfg.WorkDir)
}

// GetLedgerDir returns the ledger directory, expanding ~/ if needed
func (cfg *Config) GetLedgerDir() string {
	return expandHome(cfg.LedgerDir)
}

func expandHome(path string) string {
	if strings.HasPrefix(path, "~/") {
		homeDir, err := os.UserHomeDir()
		if err == nil {
			return filepath.Join(homeDir, path[2:])
		}
	}
	return path
}

// DerivedUpdateInterval returns the progress cadence for a trial.
// An explicit interval wins; otherwise it is recordsPerTransaction*100,
// never larger than totalRecords.
func DerivedUpdateInterval(explicit, totalRecords, recordsPerTransaction int) int {
	if explicit > 0 {
		return explicit
	}
	interval := recordsPerTransaction * 100
	if interval > totalRecords {
		interval = totalRecords
	}
	if interval <= 0 {
		interval = 1
	}
	return interval
}
