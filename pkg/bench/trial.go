// Package bench drives the SQLite write benchmark: a batched writer, a
// concurrently polling reader, and the coordinator that compares a
// reader-free baseline with a concurrent run.
package bench

import (
	"log/slog"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/mslinn/sqlite_wal_bench/pkg/config"
	"github.com/mslinn/sqlite_wal_bench/pkg/database"
	"github.com/mslinn/sqlite_wal_bench/pkg/progress"
)

// TimestampStep is the simulated time between two consecutive records
const TimestampStep = 0.01

// Actor names used for progress reporting
const (
	ActorWriter = "writer"
	ActorReader = "reader"
)

var (
	// ErrWriterOpen marks failures to open or prepare the writer's target
	ErrWriterOpen = errors.New("writer target unavailable")
	// ErrConnectAttemptsExhausted is returned by a reader whose connect-wait bound ran out
	ErrConnectAttemptsExhausted = errors.New("reader connect attempts exhausted")
)

// TrialConfig holds the inputs of one trial
type TrialConfig struct {
	TotalRecords          int
	RecordsPerTransaction int
	UpdateInterval        int // records between progress samples
	JournalMode           database.JournalMode
	CheckpointDisabled    bool
	BusyTimeout           time.Duration
	Tables                []database.TableSchema
}

// NewTrialConfig builds a trial configuration from the loaded settings
func NewTrialConfig(cfg *config.Config) (TrialConfig, error) {
	mode, err := database.ParseJournalMode(cfg.JournalMode)
	if err != nil {
		return TrialConfig{}, err
	}
	return TrialConfig{
		TotalRecords:          cfg.TotalRecords,
		RecordsPerTransaction: cfg.RecordsPerTransaction,
		UpdateInterval:        cfg.UpdateInterval,
		JournalMode:           mode,
		CheckpointDisabled:    cfg.CheckpointDisabled,
		BusyTimeout:           time.Duration(cfg.BusyTimeoutMs) * time.Millisecond,
	}.Normalize(), nil
}

// Normalize returns a copy with every field coerced into its valid range.
// Records per transaction is clamped to [1, TotalRecords].
func (c TrialConfig) Normalize() TrialConfig {
	if c.RecordsPerTransaction < 1 {
		c.RecordsPerTransaction = 1
	}
	if c.TotalRecords > 0 && c.RecordsPerTransaction > c.TotalRecords {
		c.RecordsPerTransaction = c.TotalRecords
	}
	c.UpdateInterval = config.DerivedUpdateInterval(c.UpdateInterval, c.TotalRecords, c.RecordsPerTransaction)
	if c.JournalMode == "" {
		c.JournalMode = database.JournalWAL
	}
	if len(c.Tables) == 0 {
		c.Tables = database.DefaultTables()
	}
	return c
}

// Validate reports configurations that cannot run at all
func (c TrialConfig) Validate() error {
	if c.TotalRecords <= 0 {
		return errors.Newf("total records must be positive, got %d", c.TotalRecords)
	}
	if _, err := database.ParseJournalMode(string(c.JournalMode)); err != nil {
		return err
	}
	return nil
}

// TransactionCount is ceil(TotalRecords / RecordsPerTransaction) of a normalized config
func (c TrialConfig) TransactionCount() int {
	if c.TotalRecords <= 0 || c.RecordsPerTransaction <= 0 {
		return 0
	}
	return (c.TotalRecords + c.RecordsPerTransaction - 1) / c.RecordsPerTransaction
}

// LogValue implements slog.LogValuer
func (c TrialConfig) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int("total_records", c.TotalRecords),
		slog.Int("records_per_tx", c.RecordsPerTransaction),
		slog.Int("update_interval", c.UpdateInterval),
		slog.String("journal_mode", string(c.JournalMode)),
		slog.Bool("checkpoint_disabled", c.CheckpointDisabled),
	)
}

// ProgressSink receives progress samples from the actors. *progress.Reporter implements it.
type ProgressSink interface {
	Publish(actor string, s progress.Sample)
	Flush()
	Reset()
}

type discardSink struct{}

func (discardSink) Publish(string, progress.Sample) {}
func (discardSink) Flush()                          {}
func (discardSink) Reset()                          {}

func sinkOrDiscard(s ProgressSink) ProgressSink {
	if s == nil {
		return discardSink{}
	}
	return s
}

func loggerOrDefault(l *slog.Logger) *slog.Logger {
	if l == nil {
		return slog.Default()
	}
	return l
}
