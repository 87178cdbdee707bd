// Package report summarizes result ledgers for the terminal.
package report

import (
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/dustin/go-humanize"
	"github.com/olekukonko/tablewriter"

	"github.com/mslinn/sqlite_wal_bench/pkg/ledger"
)

// LedgerPattern matches ledger files produced by the runner
const LedgerPattern = "Result_*.csv"

// Stat aggregates one metric column over every row of a ledger
type Stat struct {
	Column string
	N      int
	Mean   float64
	Min    float64
	Max    float64
	StdDev float64 // sample standard deviation; 0 below two rows
}

// Compute returns one Stat per metric column of table
func Compute(table *ledger.Table) []Stat {
	cols := table.TestType.MetricColumns()
	stats := make([]Stat, len(cols))
	for i, col := range cols {
		s := Stat{Column: col, Min: math.Inf(1), Max: math.Inf(-1)}
		var sum float64
		for _, row := range table.Rows {
			if i >= len(row.Metrics) {
				continue
			}
			v := row.Metrics[i]
			s.N++
			sum += v
			s.Min = math.Min(s.Min, v)
			s.Max = math.Max(s.Max, v)
		}
		if s.N == 0 {
			s.Min, s.Max = 0, 0
			stats[i] = s
			continue
		}
		s.Mean = sum / float64(s.N)
		if s.N > 1 {
			var sq float64
			for _, row := range table.Rows {
				if i < len(row.Metrics) {
					d := row.Metrics[i] - s.Mean
					sq += d * d
				}
			}
			s.StdDev = math.Sqrt(sq / float64(s.N-1))
		}
		stats[i] = s
	}
	return stats
}

func newTable(w io.Writer, header []string) *tablewriter.Table {
	table := tablewriter.NewWriter(w)
	table.SetAutoFormatHeaders(false)
	table.SetAutoWrapText(false)
	table.SetHeader(header)
	return table
}

func formatMetric(v float64) string {
	return strconv.FormatFloat(v, 'f', 3, 64)
}

// WriteStats renders per-column statistics of table
func WriteStats(w io.Writer, table *ledger.Table) {
	t := newTable(w, []string{"Metric", "N", "Mean", "Min", "Max", "StdDev"})
	for _, s := range Compute(table) {
		t.Append([]string{
			s.Column,
			strconv.Itoa(s.N),
			formatMetric(s.Mean),
			formatMetric(s.Min),
			formatMetric(s.Max),
			formatMetric(s.StdDev),
		})
	}
	t.Render()
	fmt.Fprintf(w, "(%s test, %d run%s)\n", table.TestType, len(table.Rows), plural(len(table.Rows)))
}

// WriteRows renders the ledger rows. A positive limit keeps only the last
// limit rows.
func WriteRows(w io.Writer, table *ledger.Table, limit int) {
	rows := table.Rows
	if limit > 0 && len(rows) > limit {
		rows = rows[len(rows)-limit:]
	}
	t := newTable(w, table.Header)
	for _, row := range rows {
		t.Append(row.Record())
	}
	t.Render()
	fmt.Fprintf(w, "(%d of %d row%s)\n", len(rows), len(table.Rows), plural(len(table.Rows)))
}

// Entry describes one ledger file found on disk
type Entry struct {
	Path     string
	TestType ledger.TestType
	Rows     int
	Size     int64
	Modified time.Time
	Err      error // set when the file could not be parsed
}

// ListLedgers returns the ledgers in dir, newest first
func ListLedgers(dir string) ([]Entry, error) {
	matches, err := filepath.Glob(filepath.Join(dir, LedgerPattern))
	if err != nil {
		return nil, errors.Wrap(err, "invalid ledger pattern")
	}

	entries := make([]Entry, 0, len(matches))
	for _, path := range matches {
		info, err := os.Stat(path)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to stat %s", path)
		}
		e := Entry{Path: path, Size: info.Size(), Modified: info.ModTime()}
		if table, err := ledger.Read(path); err != nil {
			e.Err = err
		} else {
			e.TestType = table.TestType
			e.Rows = len(table.Rows)
		}
		entries = append(entries, e)
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Modified.After(entries[j].Modified)
	})
	return entries, nil
}

// WriteList renders entries as a table
func WriteList(w io.Writer, entries []Entry) {
	if len(entries) == 0 {
		fmt.Fprintln(w, "No ledgers found")
		return
	}
	t := newTable(w, []string{"Ledger", "Type", "Rows", "Size", "Modified"})
	for _, e := range entries {
		typ, rows := string(e.TestType), strconv.Itoa(e.Rows)
		if e.Err != nil {
			typ, rows = "invalid", "-"
		}
		t.Append([]string{
			filepath.Base(e.Path),
			typ,
			rows,
			humanize.Bytes(uint64(e.Size)),
			humanize.Time(e.Modified),
		})
	}
	t.Render()
}

func plural(n int) string {
	if n == 1 {
		return ""
	}
	return "s"
}
