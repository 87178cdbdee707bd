package automation

import (
	"regexp"
	"strconv"

	"github.com/cockroachdb/errors"

	"github.com/mslinn/sqlite_wal_bench/pkg/bench"
	"github.com/mslinn/sqlite_wal_bench/pkg/database"
	"github.com/mslinn/sqlite_wal_bench/pkg/ledger"
)

// ErrMarkersMissing marks trial output that lacks an expected result marker
var ErrMarkersMissing = errors.New("result markers missing from trial output")

// SnapshotLimit bounds the output excerpt logged for a parse failure
const SnapshotLimit = 500

const (
	clockPattern   = `(\d{2}:\d{2}:\d{2}\.\d+)`
	secondsPattern = `([\d.]+)`
)

var (
	modePatterns = func() map[database.JournalMode]*regexp.Regexp {
		m := make(map[database.JournalMode]*regexp.Regexp, len(database.JournalModes))
		for _, mode := range database.JournalModes {
			m[mode] = regexp.MustCompile(`(?s)\b` + regexp.QuoteMeta(string(mode)+" "+bench.LabelModeComplete) +
				`.*?` + regexp.QuoteMeta(bench.LabelTotalTime) + `:\s*` + clockPattern)
		}
		return m
	}()

	baselinePattern   = labeledSeconds(bench.LabelBaseline)
	concurrentPattern = labeledSeconds(bench.LabelConcurrent)
	readPattern       = labeledSeconds(bench.LabelReadDuration)
	writerProcPattern = labeledSeconds(bench.LabelWriterProcess)
	readerProcPattern = labeledSeconds(bench.LabelReaderProcess)
)

func labeledSeconds(label string) *regexp.Regexp {
	return regexp.MustCompile(regexp.QuoteMeta(label) + `\s*:\s*` + secondsPattern)
}

// ParseMetrics extracts the metric columns of testType from a trial's
// captured output, in ledger column order.
func ParseMetrics(testType ledger.TestType, output string) ([]float64, error) {
	switch testType {
	case ledger.Performance:
		return parsePerformance(output)
	case ledger.Concurrency:
		return parseConcurrency(output)
	case ledger.Split:
		return parseSplit(output)
	}
	return nil, errors.Newf("unknown test type %q", testType)
}

func parsePerformance(output string) ([]float64, error) {
	metrics := make([]float64, 0, len(database.JournalModes))
	for _, mode := range database.JournalModes {
		m := modePatterns[mode].FindStringSubmatch(output)
		if m == nil {
			return nil, missing(string(mode) + " " + bench.LabelModeComplete)
		}
		d, err := bench.ParseClock(m[1])
		if err != nil {
			return nil, errors.Mark(err, ErrMarkersMissing)
		}
		metrics = append(metrics, d.Seconds())
	}
	return metrics, nil
}

func parseConcurrency(output string) ([]float64, error) {
	baseline, err := findSeconds(output, baselinePattern, bench.LabelBaseline)
	if err != nil {
		return nil, err
	}
	concurrent, err := findSeconds(output, concurrentPattern, bench.LabelConcurrent)
	if err != nil {
		return nil, err
	}
	read, err := findSeconds(output, readPattern, bench.LabelReadDuration)
	if err != nil {
		return nil, err
	}
	percent := 0.0
	if baseline > 0 {
		percent = (concurrent - baseline) / baseline * 100
	}
	return []float64{baseline, concurrent, read, percent}, nil
}

func parseSplit(output string) ([]float64, error) {
	writer, err := findSeconds(output, writerProcPattern, bench.LabelWriterProcess)
	if err != nil {
		return nil, err
	}
	reader, err := findSeconds(output, readerProcPattern, bench.LabelReaderProcess)
	if err != nil {
		return nil, err
	}
	return []float64{writer, reader}, nil
}

func findSeconds(output string, re *regexp.Regexp, label string) (float64, error) {
	m := re.FindStringSubmatch(output)
	if m == nil {
		return 0, missing(label)
	}
	v, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, errors.Mark(errors.Wrapf(err, "invalid value for %q", label), ErrMarkersMissing)
	}
	return v, nil
}

func missing(label string) error {
	return errors.Mark(errors.Newf("marker %q not found", label), ErrMarkersMissing)
}

// Snapshot returns at most SnapshotLimit bytes of output, marking truncation
func Snapshot(output string) string {
	if len(output) <= SnapshotLimit {
		return output
	}
	return output[:SnapshotLimit] + "..."
}
