package timing

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
)

const waitDelay = 2 * time.Second

// Result contains the results of a timed child process execution
type Result struct {
	Command    string
	Args       []string
	DurationMs int64
	Stdout     string
	Stderr     string
	ExitCode   int
	Error      error
}

// Options configures child process execution
type Options struct {
	Dir     string        // Working directory
	Timeout time.Duration // Process timeout (0 for no timeout)
	Env     []string      // Extra KEY=VALUE entries appended to the parent environment
	Stdin   io.Reader     // Scripted input; nil means no input
	Tee     io.Writer     // Receives stdout and stderr live, line by line
	Prefix  string        // Prepended to every line written to Tee
}

// Run starts the command, feeds it Stdin, waits for it to exit and measures
// its wall-clock time with millisecond precision. Output is always captured;
// with Tee set it is also streamed while the process runs.
func Run(ctx context.Context, command string, args []string, opts *Options) *Result {
	if opts == nil {
		opts = &Options{}
	}
	if ctx == nil {
		ctx = context.Background()
	}

	result := &Result{
		Command: command,
		Args:    args,
	}

	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	if command == "" {
		result.Error = errors.New("no command given")
		result.ExitCode = -1
		return result
	}

	cmd := exec.CommandContext(ctx, command, args...)
	if opts.Dir != "" {
		cmd.Dir = opts.Dir
	}
	if len(opts.Env) > 0 {
		cmd.Env = append(cmd.Environ(), opts.Env...)
	}
	if opts.Stdin != nil {
		cmd.Stdin = opts.Stdin
	}

	// Grandchildren holding the output pipes must not keep Run waiting after a kill
	cmd.WaitDelay = waitDelay

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	var tees []*PrefixWriter
	if opts.Tee != nil {
		out := NewPrefixWriter(opts.Tee, opts.Prefix)
		errOut := NewPrefixWriter(opts.Tee, opts.Prefix)
		tees = append(tees, out, errOut)
		cmd.Stdout = io.MultiWriter(&stdout, out)
		cmd.Stderr = io.MultiWriter(&stderr, errOut)
	}

	start := time.Now()
	err := cmd.Run()
	duration := time.Since(start)

	for _, t := range tees {
		t.Flush()
	}

	result.DurationMs = duration.Milliseconds()
	result.Stdout = stdout.String()
	result.Stderr = stderr.String()

	if err != nil {
		result.Error = errors.Wrapf(err, "failed to run %s", command)
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
		} else {
			result.ExitCode = -1
		}
	} else {
		result.ExitCode = 0
	}

	return result
}

// Duration returns the measured wall-clock time
func (r *Result) Duration() time.Duration {
	return time.Duration(r.DurationMs) * time.Millisecond
}

// Success returns true if the command executed successfully
func (r *Result) Success() bool {
	return r.ExitCode == 0 && r.Error == nil
}

// String returns a human-readable summary of the result
func (r *Result) String() string {
	status := "success"
	if !r.Success() {
		status = fmt.Sprintf("failed (exit code %d)", r.ExitCode)
	}

	return fmt.Sprintf("%s %v: %s (%.3fs)",
		r.Command,
		r.Args,
		status,
		float64(r.DurationMs)/1000.0,
	)
}

// DebugString returns a detailed debug output
func (r *Result) DebugString() string {
	output := r.String() + "\n"

	if r.Stdout != "" {
		output += fmt.Sprintf("STDOUT:\n%s\n", r.Stdout)
	}

	if r.Stderr != "" {
		output += fmt.Sprintf("STDERR:\n%s\n", r.Stderr)
	}

	if r.Error != nil {
		output += fmt.Sprintf("ERROR: %v\n", r.Error)
	}

	return output
}

// SyncWriter serializes writes to an underlying writer shared by several
// child processes.
type SyncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

// NewSyncWriter wraps w
func NewSyncWriter(w io.Writer) *SyncWriter {
	return &SyncWriter{w: w}
}

func (s *SyncWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}

// PrefixWriter writes complete lines to w, each starting with prefix.
// A trailing partial line is held until its newline arrives or Flush.
type PrefixWriter struct {
	w      io.Writer
	prefix string
	buf    []byte
}

// NewPrefixWriter returns a line-prefixing writer
func NewPrefixWriter(w io.Writer, prefix string) *PrefixWriter {
	return &PrefixWriter{w: w, prefix: prefix}
}

func (p *PrefixWriter) Write(b []byte) (int, error) {
	p.buf = append(p.buf, b...)
	for {
		i := bytes.IndexByte(p.buf, '\n')
		if i < 0 {
			break
		}
		if err := p.emit(p.buf[:i+1]); err != nil {
			return len(b), err
		}
		p.buf = p.buf[i+1:]
	}
	return len(b), nil
}

// Flush writes any held partial line followed by a newline
func (p *PrefixWriter) Flush() {
	if len(p.buf) == 0 {
		return
	}
	line := append(p.buf, '\n')
	p.buf = nil
	_ = p.emit(line)
}

func (p *PrefixWriter) emit(line []byte) error {
	out := make([]byte, 0, len(p.prefix)+len(line))
	out = append(out, p.prefix...)
	out = append(out, line...)
	_, err := p.w.Write(out)
	return err
}
