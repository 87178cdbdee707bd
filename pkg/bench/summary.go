package bench

import (
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/dustin/go-humanize"

	"github.com/mslinn/sqlite_wal_bench/pkg/database"
)

// Summary labels. The automation runner locates results in a trial's
// output by these exact strings, so they must not change.
const (
	LabelBaseline       = "1. Baseline (Write Only)"
	LabelConcurrent     = "2. Concurrent (Write+Read)"
	LabelReadDuration   = "Read duration"
	LabelModeComplete   = "mode complete!"
	LabelTotalTime      = "Total time"
	LabelWriterProcess  = "Writer process time"
	LabelReaderProcess  = "Reader process time"
	LabelSplitCompleted = "Split execution complete"
)

// FormatClock renders d as HH:MM:SS.fff
func FormatClock(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	ms := d.Milliseconds()
	h := ms / 3_600_000
	m := ms / 60_000 % 60
	s := ms / 1000 % 60
	return fmt.Sprintf("%02d:%02d:%02d.%03d", h, m, s, ms%1000)
}

// ParseClock parses the HH:MM:SS.fff form written by FormatClock.
// Any number of fractional digits is accepted.
func ParseClock(s string) (time.Duration, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 3 {
		return 0, errors.Newf("invalid clock value %q", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, errors.Wrapf(err, "invalid hours in %q", s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, errors.Wrapf(err, "invalid minutes in %q", s)
	}
	sec, err := strconv.ParseFloat(parts[2], 64)
	if err != nil {
		return 0, errors.Wrapf(err, "invalid seconds in %q", s)
	}
	total := time.Duration(h)*time.Hour + time.Duration(m)*time.Minute
	return total + time.Duration(math.Round(sec*float64(time.Second))), nil
}

// WriteModeSummary prints the completion banner of one performance-comparison mode
func WriteModeSummary(w io.Writer, mode database.JournalMode, res WriterResult) {
	fmt.Fprintf(w, "%s %s\n", mode, LabelModeComplete)
	fmt.Fprintf(w, "  Records committed: %s\n", humanize.Comma(res.Committed))
	if res.FailedTransactions > 0 {
		fmt.Fprintf(w, "  Failed transactions: %s\n", humanize.Comma(int64(res.FailedTransactions)))
	}
	fmt.Fprintf(w, "  %s: %s\n", LabelTotalTime, FormatClock(res.Duration))
}

// WriteConcurrencySummary prints the result block of a concurrency trial
func WriteConcurrencySummary(w io.Writer, r *TrialResult, thresholdPercent float64) {
	fmt.Fprintln(w, "=== Concurrency Test Results ===")
	fmt.Fprintf(w, "%-26s: %.3f s\n", LabelBaseline, r.BaselineDuration.Seconds())
	fmt.Fprintf(w, "%-26s: %.3f s\n", LabelConcurrent, r.ConcurrentDuration.Seconds())
	fmt.Fprintf(w, "%s: %.3f s\n", LabelReadDuration, r.ReaderDuration.Seconds())
	fmt.Fprintf(w, "Reader queries: %s\n", humanize.Comma(r.ReaderQueryAttempts))
	fmt.Fprintf(w, "Rows observed: %s / %s\n",
		humanize.Comma(r.FinalRowsObserved), humanize.Comma(int64(r.Config.TotalRecords)))
	if r.FailedTransactions > 0 {
		fmt.Fprintf(w, "Failed transactions: %s\n", humanize.Comma(int64(r.FailedTransactions)))
	}
	fmt.Fprintf(w, "Overhead: %+.3f s (%+.2f%%)\n", r.OverheadSeconds(), r.OverheadPercent())
	fmt.Fprintf(w, "Verdict: %s (threshold ±%g%%)\n", r.Classify(thresholdPercent), thresholdPercent)
}

// WriteSplitSummary prints the process timings of a split execution
func WriteSplitSummary(w io.Writer, r *SplitResult) {
	fmt.Fprintf(w, "%s\n", LabelSplitCompleted)
	fmt.Fprintf(w, "%s: %.3f s\n", LabelWriterProcess, r.Writer.Seconds())
	fmt.Fprintf(w, "%s: %.3f s\n", LabelReaderProcess, r.SlowestReader().Seconds())
	for i, d := range r.Readers {
		fmt.Fprintf(w, "  reader %d: %.3f s\n", i+1, d.Seconds())
	}
}
