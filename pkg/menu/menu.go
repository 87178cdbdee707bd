// Package menu implements the trial's line-oriented text menu. It reads
// the same way from a terminal and from the runner's scripted stdin.
package menu

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/dustin/go-humanize"

	"github.com/mslinn/sqlite_wal_bench/pkg/ledger"
)

// ExitOption leaves the menu loop
const ExitOption = "0"

// Defaults are used for prompts left blank
type Defaults struct {
	TotalRecords          int
	RecordsPerTransaction int
	UpdateInterval        int // 0 lets the trial derive it
}

// Selection is one menu choice with its answered prompts
type Selection struct {
	TestType              ledger.TestType
	TotalRecords          int
	RecordsPerTransaction int
	UpdateInterval        int
}

// Handler runs a selection. A returned error is reported and the menu
// continues.
type Handler func(ctx context.Context, sel Selection) error

// Menu reads choices from in and writes prompts to out
type Menu struct {
	in       *bufio.Reader
	out      io.Writer
	defaults Defaults
}

// New creates a menu
func New(in io.Reader, out io.Writer, defaults Defaults) *Menu {
	return &Menu{in: bufio.NewReader(in), out: out, defaults: defaults}
}

// readLine returns the next trimmed input line. io.EOF is returned only
// when no partial line remains.
func (m *Menu) readLine() (string, error) {
	line, err := m.in.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

func (m *Menu) printMenu() {
	fmt.Fprintln(m.out)
	fmt.Fprintln(m.out, "==== SQLite Write Benchmark ====")
	for _, t := range ledger.TestTypes {
		fmt.Fprintf(m.out, "%s. %s\n", t.MenuOption(), describe(t))
	}
	fmt.Fprintf(m.out, "%s. Exit\n", ExitOption)
	fmt.Fprint(m.out, "Select: ")
}

func describe(t ledger.TestType) string {
	switch t {
	case ledger.Concurrency:
		return "Concurrency test (baseline vs. writer with polling reader)"
	case ledger.Split:
		return "Split execution (writer and readers as separate processes)"
	default:
		return "Performance comparison (WAL / DEFAULT / MEMORY)"
	}
}

// Next shows the menu until a valid choice is entered and prompts for the
// trial parameters. ok is false when the user chose to exit or input ended.
func (m *Menu) Next() (sel Selection, ok bool, err error) {
	for {
		m.printMenu()
		choice, err := m.readLine()
		if errors.Is(err, io.EOF) {
			return Selection{}, false, nil
		}
		if err != nil {
			return Selection{}, false, errors.Wrap(err, "failed to read menu choice")
		}
		if choice == ExitOption {
			return Selection{}, false, nil
		}
		t, perr := ledger.ParseTestType(choice)
		if perr != nil {
			fmt.Fprintf(m.out, "Invalid choice %q\n", choice)
			continue
		}

		sel = Selection{TestType: t}
		if sel.TotalRecords, err = m.promptInt("Total records", m.defaults.TotalRecords, false); err != nil {
			return Selection{}, false, err
		}
		if sel.RecordsPerTransaction, err = m.promptInt("Records per transaction", m.defaults.RecordsPerTransaction, false); err != nil {
			return Selection{}, false, err
		}
		if sel.UpdateInterval, err = m.promptInt("Progress update interval", m.defaults.UpdateInterval, true); err != nil {
			return Selection{}, false, err
		}
		return sel, true, nil
	}
}

// promptInt reads a positive integer. A blank or invalid answer keeps def.
// An interval default of 0 is shown as derived.
func (m *Menu) promptInt(label string, def int, derived bool) (int, error) {
	shown := humanize.Comma(int64(def))
	if derived && def == 0 {
		shown = "derived from records per transaction"
	}
	fmt.Fprintf(m.out, "%s [%s]: ", label, shown)

	line, err := m.readLine()
	if errors.Is(err, io.EOF) {
		return def, nil
	}
	if err != nil {
		return 0, errors.Wrapf(err, "failed to read %s", strings.ToLower(label))
	}
	if line == "" {
		return def, nil
	}
	n, err := strconv.Atoi(strings.ReplaceAll(line, ",", ""))
	if err != nil || n <= 0 {
		fmt.Fprintf(m.out, "Invalid value %q, using %s\n", line, shown)
		return def, nil
	}
	return n, nil
}

// Pause waits for a line before the menu is shown again
func (m *Menu) Pause() {
	fmt.Fprint(m.out, "\nPress Enter to return to the menu...")
	m.readLine()
	fmt.Fprintln(m.out)
}

// Loop runs handler for every selection until the user exits, input ends,
// or ctx is cancelled.
func (m *Menu) Loop(ctx context.Context, handler Handler) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		sel, ok, err := m.Next()
		if err != nil {
			return err
		}
		if !ok {
			fmt.Fprintln(m.out, "\nBye")
			return nil
		}
		if err := handler(ctx, sel); err != nil {
			fmt.Fprintf(m.out, "\nError: %v\n", err)
		}
		m.Pause()
	}
}
