// Package ledger persists trial results as an append-only CSV file.
package ledger

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
)

// ErrLedgerExists is returned when Create finds a ledger at the target path
var ErrLedgerExists = errors.New("ledger already exists")

// TimeLayout is the format of the TimeStamp column
const TimeLayout = "2006-01-02 15:04:05"

// baseColumns start every ledger row
var baseColumns = []string{"TimeStamp", "RunIndex", "TestType", "TotalRecords", "RecordsPerTx"}

// TestType selects the trial menu option and the metric columns of a ledger
type TestType string

const (
	Performance TestType = "Performance"
	Concurrency TestType = "Concurrency"
	Split       TestType = "Split"
)

// TestTypes lists the ledger types in menu order
var TestTypes = []TestType{Performance, Concurrency, Split}

// ParseTestType accepts a type name or its menu option
func ParseTestType(s string) (TestType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "performance":
		return Performance, nil
	case "2", "concurrency":
		return Concurrency, nil
	case "3", "split":
		return Split, nil
	}
	return "", errors.Newf("unknown test type %q (valid: performance, concurrency, split)", s)
}

// MenuOption is the trial menu selection that runs this test type
func (t TestType) MenuOption() string {
	switch t {
	case Concurrency:
		return "2"
	case Split:
		return "3"
	default:
		return "1"
	}
}

// MetricColumns names the metric columns recorded for this test type, in order
func (t TestType) MetricColumns() []string {
	switch t {
	case Concurrency:
		return []string{"BaselineSeconds", "ConcurrentSeconds", "ReadSeconds", "OverheadPercent"}
	case Split:
		return []string{"WriterSeconds", "ReaderSeconds"}
	default:
		return []string{"WalSeconds", "DefaultSeconds", "MemorySeconds"}
	}
}

// Header returns the full header row for this test type
func (t TestType) Header() []string {
	return append(append([]string{}, baseColumns...), t.MetricColumns()...)
}

// Row is one completed trial
type Row struct {
	Timestamp             time.Time
	RunIndex              int
	TestType              TestType
	TotalRecords          int
	RecordsPerTransaction int
	Metrics               []float64 // in MetricColumns order
}

// Record renders the row as CSV fields
func (r Row) Record() []string {
	rec := []string{
		r.Timestamp.Format(TimeLayout),
		strconv.Itoa(r.RunIndex),
		string(r.TestType),
		strconv.Itoa(r.TotalRecords),
		strconv.Itoa(r.RecordsPerTransaction),
	}
	for _, m := range r.Metrics {
		rec = append(rec, strconv.FormatFloat(m, 'f', 3, 64))
	}
	return rec
}

// FileName returns the conventional ledger name
// Result_<Type>_Rec<N>_Tx<M>_<yyyyMMdd_HHmmss>.csv
func FileName(t TestType, totalRecords, recordsPerTx int, at time.Time) string {
	return fmt.Sprintf("Result_%s_Rec%d_Tx%d_%s.csv", t, totalRecords, recordsPerTx, at.Format("20060102_150405"))
}

// Ledger appends rows to one CSV file. Every row is flushed and synced
// before Append returns, so a crash loses at most the row in flight.
type Ledger struct {
	path     string
	testType TestType
	file     *os.File
	w        *csv.Writer
	rows     int
}

// Create creates a new ledger at path and writes its header.
// It never overwrites an existing file.
func Create(path string, t TestType) (*Ledger, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, errors.Wrap(err, "failed to create ledger directory")
		}
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		if os.IsExist(err) {
			return nil, errors.Mark(errors.Wrapf(err, "ledger %s", path), ErrLedgerExists)
		}
		return nil, errors.Wrap(err, "failed to create ledger")
	}

	l := &Ledger{path: path, testType: t, file: f, w: csv.NewWriter(f)}
	if err := l.write(t.Header()); err != nil {
		f.Close()
		return nil, errors.Wrap(err, "failed to write ledger header")
	}
	return l, nil
}

// Path returns the ledger file path
func (l *Ledger) Path() string {
	return l.path
}

// Rows returns the number of rows appended through this handle
func (l *Ledger) Rows() int {
	return l.rows
}

// Append writes one row. The metric count must match the ledger's test type.
func (l *Ledger) Append(r Row) error {
	if r.TestType != l.testType {
		return errors.Newf("row type %s does not match ledger type %s", r.TestType, l.testType)
	}
	if want := len(l.testType.MetricColumns()); len(r.Metrics) != want {
		return errors.Newf("%s row needs %d metrics, got %d", l.testType, want, len(r.Metrics))
	}
	if err := l.write(r.Record()); err != nil {
		return errors.Wrap(err, "failed to append ledger row")
	}
	l.rows++
	return nil
}

func (l *Ledger) write(record []string) error {
	if err := l.w.Write(record); err != nil {
		return err
	}
	l.w.Flush()
	if err := l.w.Error(); err != nil {
		return err
	}
	return l.file.Sync()
}

// Close closes the ledger file
func (l *Ledger) Close() error {
	return l.file.Close()
}

// Table is a ledger read back from disk
type Table struct {
	TestType TestType
	Header   []string
	Rows     []Row
}

// Read parses a ledger file
func Read(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open ledger")
	}
	defer f.Close()
	return Parse(f)
}

// Parse reads a ledger from r. The test type is taken from the header.
func Parse(r io.Reader) (*Table, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		return nil, errors.Wrap(err, "failed to read ledger header")
	}
	t, err := typeFromHeader(header)
	if err != nil {
		return nil, err
	}

	table := &Table{TestType: t, Header: header}
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrapf(err, "failed to read ledger line %d", line)
		}
		row, err := parseRow(rec, len(header))
		if err != nil {
			return nil, errors.Wrapf(err, "ledger line %d", line)
		}
		table.Rows = append(table.Rows, row)
	}
	return table, nil
}

func typeFromHeader(header []string) (TestType, error) {
	for _, t := range TestTypes {
		want := t.Header()
		if len(want) != len(header) {
			continue
		}
		match := true
		for i := range want {
			if want[i] != header[i] {
				match = false
				break
			}
		}
		if match {
			return t, nil
		}
	}
	return "", errors.Newf("unrecognized ledger header %q", strings.Join(header, ","))
}

func parseRow(rec []string, width int) (Row, error) {
	if len(rec) != width {
		return Row{}, errors.Newf("expected %d fields, got %d", width, len(rec))
	}
	ts, err := time.ParseInLocation(TimeLayout, rec[0], time.Local)
	if err != nil {
		return Row{}, errors.Wrap(err, "invalid TimeStamp")
	}
	row := Row{Timestamp: ts, TestType: TestType(rec[2])}
	for _, f := range []struct {
		col int
		dst *int
	}{{1, &row.RunIndex}, {3, &row.TotalRecords}, {4, &row.RecordsPerTransaction}} {
		if *f.dst, err = strconv.Atoi(rec[f.col]); err != nil {
			return Row{}, errors.Wrapf(err, "invalid %s", baseColumns[f.col])
		}
	}
	for i, field := range rec[len(baseColumns):] {
		v, err := strconv.ParseFloat(field, 64)
		if err != nil {
			return Row{}, errors.Wrapf(err, "invalid metric %d", i+1)
		}
		row.Metrics = append(row.Metrics, v)
	}
	return row, nil
}
