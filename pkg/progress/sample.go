// Package progress renders periodic progress snapshots published
// concurrently by the benchmark actors.
package progress

import (
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

// Field marks which optional values of a Sample are set
type Field uint8

const (
	HasJournal Field = 1 << iota
	HasRows
	HasAttempts
)

// Sample is an immutable snapshot of one actor's progress.
// It is passed by value and never modified after Publish.
type Sample struct {
	RecordsWritten int64
	RecordsTarget  int64
	Elapsed        time.Duration

	JournalBytes  int64 // valid with HasJournal
	RowsObserved  int64 // valid with HasRows
	QueryAttempts int64 // valid with HasAttempts
	Fields        Field

	Status string // free-form phase label, e.g. "connect-wait"
	Final  bool   // last sample of the actor; always rendered
}

// Has reports whether the optional field f is set
func (s Sample) Has(f Field) bool {
	return s.Fields&f != 0
}

// WriterSample builds a writer progress snapshot. journalBytes < 0 means unknown.
func WriterSample(written, target int64, elapsed time.Duration, journalBytes int64) Sample {
	s := Sample{RecordsWritten: written, RecordsTarget: target, Elapsed: elapsed}
	if journalBytes >= 0 {
		s.JournalBytes = journalBytes
		s.Fields |= HasJournal
	}
	return s
}

// ReaderSample builds a reader progress snapshot
func ReaderSample(observed, target, attempts int64, elapsed time.Duration, status string) Sample {
	return Sample{
		RecordsTarget: target,
		Elapsed:       elapsed,
		RowsObserved:  observed,
		QueryAttempts: attempts,
		Fields:        HasRows | HasAttempts,
		Status:        status,
	}
}

// Format renders one sample as a single display line
func Format(actor string, s Sample) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%-8s", actor)

	done := s.RecordsWritten
	label := "records"
	if s.Has(HasRows) {
		done = s.RowsObserved
		label = "rows"
	}
	fmt.Fprintf(&b, " %s %s / %s", label, humanize.Comma(done), humanize.Comma(s.RecordsTarget))
	if s.RecordsTarget > 0 {
		fmt.Fprintf(&b, " (%5.1f%%)", float64(done)*100/float64(s.RecordsTarget))
	}
	fmt.Fprintf(&b, "  elapsed %.1fs", s.Elapsed.Seconds())

	if s.Has(HasAttempts) {
		fmt.Fprintf(&b, "  queries %s", humanize.Comma(s.QueryAttempts))
	}
	if s.Has(HasJournal) {
		fmt.Fprintf(&b, "  journal %s", humanize.Bytes(uint64(s.JournalBytes)))
	}
	if s.Status != "" {
		fmt.Fprintf(&b, "  [%s]", s.Status)
	}
	return b.String()
}
