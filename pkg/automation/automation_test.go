package automation

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/require"

	"github.com/mslinn/sqlite_wal_bench/pkg/bench"
	"github.com/mslinn/sqlite_wal_bench/pkg/ledger"
	"github.com/mslinn/sqlite_wal_bench/pkg/progress"
)

// fakeTrial reads the scripted menu session and prints a concurrency
// summary. Run 2 prints nothing parseable.
const fakeTrial = `#!/bin/sh
read menu
read total
read tx
read interval
read enter
read exit_choice
echo "menu=$menu total=$total tx=$tx interval=[$interval] exit=$exit_choice"
if [ "$WALB_RUN_INDEX" = "2" ]; then
  echo "trial crashed before reporting"
  exit 1
fi
echo "=== Concurrency Test Results ==="
echo "1. Baseline (Write Only)  : 2.000 s"
echo "2. Concurrent (Write+Read): 2.100 s"
echo "Read duration: 2.150 s"
`

func writeScript(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fake-trial.sh")
	require.NoError(t, os.WriteFile(path, []byte(body), 0755))
	return path
}

func fixedClock() time.Time {
	return time.Date(2026, 4, 1, 9, 30, 0, 0, time.Local)
}

func TestRunnerAppendsParsedRuns(t *testing.T) {
	var out, logs bytes.Buffer
	dir := t.TempDir()
	r := New(Options{
		TrialBinary:           "sh",
		TrialArgs:             []string{writeScript(t, fakeTrial)},
		TestType:              ledger.Concurrency,
		Iterations:            4,
		TotalRecords:          10000,
		RecordsPerTransaction: 100,
		LedgerDir:             dir,
		Out:                   &out,
		Logger:                slog.New(slog.NewTextHandler(&logs, nil)),
		Now:                   fixedClock,
	})

	summary, err := r.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 3, summary.Recorded)
	require.Equal(t, 1, summary.Failed)
	require.Equal(t, r.Session(), summary.Session)
	require.Equal(t, filepath.Join(dir, "Result_Concurrency_Rec10000_Tx100_20260401_093000.csv"), summary.LedgerPath)

	table, err := ledger.Read(summary.LedgerPath)
	require.NoError(t, err)
	require.Len(t, table.Rows, 3)
	require.Equal(t, []int{1, 3, 4}, []int{table.Rows[0].RunIndex, table.Rows[1].RunIndex, table.Rows[2].RunIndex})
	require.Equal(t, []float64{2.0, 2.1, 2.15, 5.0}, roundAll(table.Rows[0].Metrics))

	text := out.String()
	require.Contains(t, text, "========== Iteration 4 / 4 ==========")
	require.Contains(t, text, "-> Result: Baseline = 2.000s, Concurrent = 2.100s, Read = 2.150s, Overhead = +5.00%")
	require.Contains(t, text, "-> Result: parse failure")

	require.Contains(t, logs.String(), "failed to parse trial output")
	require.Contains(t, logs.String(), "trial crashed before reporting")
	require.Contains(t, logs.String(), "session="+r.Session())
}

func roundAll(v []float64) []float64 {
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = float64(int64(x*1000+0.5)) / 1000
	}
	return out
}

func TestRunnerScriptsMenuInput(t *testing.T) {
	var out bytes.Buffer
	r := New(Options{
		TrialBinary:           "sh",
		TrialArgs:             []string{writeScript(t, fakeTrial)},
		TestType:              ledger.Concurrency,
		Iterations:            1,
		TotalRecords:          5000,
		RecordsPerTransaction: 10,
		UpdateInterval:        250,
		LedgerDir:             t.TempDir(),
		Live:                  true,
		Out:                   &out,
		Logger:                slog.New(slog.NewTextHandler(io.Discard, nil)),
	})

	_, err := r.Run(context.Background())
	require.NoError(t, err)
	require.Contains(t, out.String(), "   | menu=2 total=5000 tx=10 interval=[250] exit=0")
}

func TestRunnerRecordsClampedTransactionSize(t *testing.T) {
	dir := t.TempDir()
	r := New(Options{
		TrialBinary:           "sh",
		TrialArgs:             []string{writeScript(t, fakeTrial)},
		TestType:              ledger.Concurrency,
		Iterations:            1,
		TotalRecords:          5,
		RecordsPerTransaction: 1000,
		LedgerDir:             dir,
		Logger:                slog.New(slog.NewTextHandler(io.Discard, nil)),
		Now:                   fixedClock,
	})
	require.Equal(t, "2\n5\n5\n\n\n0\n", r.Script())

	summary, err := r.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, filepath.Join(dir, "Result_Concurrency_Rec5_Tx5_20260401_093000.csv"), summary.LedgerPath)

	table, err := ledger.Read(summary.LedgerPath)
	require.NoError(t, err)
	require.Len(t, table.Rows, 1)
	require.Equal(t, 5, table.Rows[0].RecordsPerTransaction)
}

func TestScriptLeavesIntervalBlank(t *testing.T) {
	r := New(Options{TestType: ledger.Performance, TotalRecords: 100, RecordsPerTransaction: 1})
	require.Equal(t, "1\n100\n1\n\n\n0\n", r.Script())
}

func TestRunnerRefusesExistingLedger(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.csv")
	require.NoError(t, os.WriteFile(path, []byte("keep me\n"), 0644))

	_, err := New(Options{TrialBinary: "true", Iterations: 1, LedgerPath: path}).Run(context.Background())
	require.True(t, errors.Is(err, ledger.ErrLedgerExists))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "keep me\n", string(data))
}

func TestRunnerMissingBinaryStillWritesHeader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.csv")
	summary, err := New(Options{
		TrialBinary: "walb-trial-does-not-exist",
		Iterations:  2,
		LedgerPath:  path,
		Logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
	}).Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, summary.Failed)

	table, err := ledger.Read(path)
	require.NoError(t, err)
	require.Empty(t, table.Rows)
}

func TestParsePerformance(t *testing.T) {
	var out bytes.Buffer
	bench.WriteModeSummary(&out, "WAL", bench.WriterResult{Duration: 12345 * time.Millisecond, Committed: 10})
	bench.WriteModeSummary(&out, "DEFAULT", bench.WriterResult{Duration: 61 * time.Second, Committed: 10})
	bench.WriteModeSummary(&out, "MEMORY", bench.WriterResult{Duration: 500 * time.Millisecond, Committed: 10})

	metrics, err := ParseMetrics(ledger.Performance, "noise\n"+out.String())
	require.NoError(t, err)
	require.InDeltaSlice(t, []float64{12.345, 61, 0.5}, metrics, 1e-9)
}

func TestParsePerformanceMissingMode(t *testing.T) {
	var out bytes.Buffer
	bench.WriteModeSummary(&out, "WAL", bench.WriterResult{Duration: time.Second})

	_, err := ParseMetrics(ledger.Performance, out.String())
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrMarkersMissing))
	require.Contains(t, err.Error(), "DEFAULT mode complete!")
}

func TestParseConcurrencyFromSummary(t *testing.T) {
	var out bytes.Buffer
	bench.WriteConcurrencySummary(&out, &bench.TrialResult{
		BaselineDuration:   4 * time.Second,
		ConcurrentDuration: 3 * time.Second,
		ReaderDuration:     3100 * time.Millisecond,
	}, 5)

	metrics, err := ParseMetrics(ledger.Concurrency, out.String())
	require.NoError(t, err)
	require.InDeltaSlice(t, []float64{4, 3, 3.1, -25}, metrics, 1e-9)
}

func TestParseSplitFromSummary(t *testing.T) {
	var out bytes.Buffer
	bench.WriteSplitSummary(&out, &bench.SplitResult{
		Writer:  1500 * time.Millisecond,
		Readers: []time.Duration{time.Second, 1700 * time.Millisecond},
	})

	metrics, err := ParseMetrics(ledger.Split, out.String())
	require.NoError(t, err)
	require.InDeltaSlice(t, []float64{1.5, 1.7}, metrics, 1e-9)
}

func TestParseIgnoresProgressLines(t *testing.T) {
	// Progress output mentions records but never the result labels
	noise := progress.Format(bench.ActorWriter, progress.WriterSample(5, 10, time.Second, 100))
	_, err := ParseMetrics(ledger.Concurrency, noise)
	require.True(t, errors.Is(err, ErrMarkersMissing))
}

func TestSnapshot(t *testing.T) {
	require.Equal(t, "short", Snapshot("short"))

	long := strings.Repeat("x", 600)
	snap := Snapshot(long)
	require.Len(t, snap, SnapshotLimit+3)
	require.True(t, strings.HasSuffix(snap, "..."))
}
