package progress

import (
	"fmt"
	"io"
	"os"

	"github.com/mattn/go-isatty"
)

// Entry is one actor's line in a frame
type Entry struct {
	Actor   string
	Sample  Sample
	Changed bool // sample differs from the one in the previous frame
}

// Renderer draws a full frame. Render is never called concurrently.
type Renderer interface {
	Render(frame []Entry) error
	// Reset forgets the previous frame so the next one starts on fresh lines
	Reset()
}

// NewRenderer picks the positioned renderer when f is an interactive
// terminal and the append-only renderer otherwise.
func NewRenderer(f *os.File) Renderer {
	if isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd()) {
		return &TerminalRenderer{w: f}
	}
	return &LineRenderer{w: f}
}

// TerminalRenderer redraws the frame in place using ANSI cursor movement
type TerminalRenderer struct {
	w     io.Writer
	lines int
}

// NewTerminalRenderer returns a positioned renderer writing to w
func NewTerminalRenderer(w io.Writer) *TerminalRenderer {
	return &TerminalRenderer{w: w}
}

func (r *TerminalRenderer) Render(frame []Entry) error {
	if r.lines > 0 {
		if _, err := fmt.Fprintf(r.w, "\x1b[%dA", r.lines); err != nil {
			return err
		}
	}
	for _, e := range frame {
		if _, err := fmt.Fprintf(r.w, "\r\x1b[2K%s\n", Format(e.Actor, e.Sample)); err != nil {
			return err
		}
	}
	r.lines = len(frame)
	return nil
}

func (r *TerminalRenderer) Reset() {
	r.lines = 0
}

// LineRenderer appends one line per changed actor and never moves the cursor.
// Used when output is captured by a pipe or file.
type LineRenderer struct {
	w io.Writer
}

// NewLineRenderer returns an append-only renderer writing to w
func NewLineRenderer(w io.Writer) *LineRenderer {
	return &LineRenderer{w: w}
}

func (r *LineRenderer) Render(frame []Entry) error {
	for _, e := range frame {
		if !e.Changed {
			continue
		}
		if _, err := fmt.Fprintln(r.w, Format(e.Actor, e.Sample)); err != nil {
			return err
		}
	}
	return nil
}

func (r *LineRenderer) Reset() {}
