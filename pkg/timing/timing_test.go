package timing

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestRun_Success(t *testing.T) {
	result := Run(context.Background(), "echo", []string{"hello"}, nil)

	if result == nil {
		t.Fatal("Run returned nil")
	}

	if result.Error != nil {
		t.Errorf("Run failed: %v", result.Error)
	}

	if result.ExitCode != 0 {
		t.Errorf("ExitCode = %d, want 0", result.ExitCode)
	}

	if result.DurationMs < 0 {
		t.Error("DurationMs should not be negative")
	}

	if strings.TrimSpace(result.Stdout) != "hello" {
		t.Errorf("Stdout = %q, want hello", result.Stdout)
	}
}

func TestRun_ScriptedStdin(t *testing.T) {
	// Emulates the menu conversation of a trial process
	script := `read choice; read total; echo "choice=$choice total=$total"`
	opts := &Options{Stdin: strings.NewReader("2\n10000\n")}

	result := Run(context.Background(), "sh", []string{"-c", script}, opts)
	if !result.Success() {
		t.Fatalf("Run failed: %s", result.DebugString())
	}

	if !strings.Contains(result.Stdout, "choice=2 total=10000") {
		t.Errorf("Stdout = %q", result.Stdout)
	}
}

func TestRun_NonZeroExit(t *testing.T) {
	result := Run(context.Background(), "sh", []string{"-c", "exit 42"}, nil)

	if result == nil {
		t.Fatal("Run returned nil")
	}

	if result.ExitCode != 42 {
		t.Errorf("ExitCode = %d, want 42", result.ExitCode)
	}

	if result.DurationMs < 0 {
		t.Errorf("DurationMs = %d, should not be negative even for failed commands", result.DurationMs)
	}

	if result.Success() {
		t.Error("Success() = true for exit code 42")
	}
}

func TestRun_NonexistentCommand(t *testing.T) {
	result := Run(context.Background(), "nonexistent_command_xyz", []string{}, nil)

	if result.Error == nil {
		t.Error("Expected error for nonexistent command")
	}

	if result.ExitCode == 0 {
		t.Error("ExitCode should not be 0 for failed command")
	}
}

func TestRun_StderrCapture(t *testing.T) {
	result := Run(context.Background(), "sh", []string{"-c", "echo error_message >&2"}, nil)

	if result.Error != nil && result.ExitCode != 0 {
		t.Fatalf("Run failed unexpectedly: %v", result.Error)
	}

	if !strings.Contains(result.Stderr, "error_message") {
		t.Errorf("Stderr = %q", result.Stderr)
	}
}

func TestRun_Timing(t *testing.T) {
	start := time.Now()
	result := Run(context.Background(), "sleep", []string{"0.1"}, nil)
	elapsed := time.Since(start)

	if result.Error != nil {
		t.Fatalf("Run failed: %v", result.Error)
	}

	if result.DurationMs < 100 {
		t.Errorf("DurationMs = %d, want >= 100", result.DurationMs)
	}

	if result.Duration() < 100*time.Millisecond {
		t.Errorf("Duration() = %v, want >= 100ms", result.Duration())
	}

	diff := result.DurationMs - elapsed.Milliseconds()
	if diff < -50 || diff > 50 {
		t.Logf("Warning: DurationMs (%d) and elapsed (%d) differ by %dms",
			result.DurationMs, elapsed.Milliseconds(), diff)
	}
}

func TestRun_ContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	result := Run(ctx, "sleep", []string{"5"}, nil)
	if result.Success() {
		t.Fatal("expected cancelled process to fail")
	}
	if result.DurationMs >= 5000 {
		t.Errorf("DurationMs = %d, process was not killed", result.DurationMs)
	}
}

func TestRun_Timeout(t *testing.T) {
	result := Run(context.Background(), "sleep", []string{"5"}, &Options{Timeout: 50 * time.Millisecond})
	if result.Success() {
		t.Fatal("expected timed out process to fail")
	}
}

func TestRun_TeeWithPrefix(t *testing.T) {
	var live bytes.Buffer
	opts := &Options{Tee: NewSyncWriter(&live), Prefix: "[writer] "}

	result := Run(context.Background(), "sh", []string{"-c", "echo one; echo two >&2; printf three"}, opts)
	if !result.Success() {
		t.Fatalf("Run failed: %s", result.DebugString())
	}

	got := live.String()
	for _, want := range []string{"[writer] one\n", "[writer] two\n", "[writer] three\n"} {
		if !strings.Contains(got, want) {
			t.Errorf("tee output %q missing %q", got, want)
		}
	}

	// Captured output stays unprefixed for parsing
	if result.Stdout != "one\nthree" {
		t.Errorf("Stdout = %q", result.Stdout)
	}
}

func TestRun_Env(t *testing.T) {
	opts := &Options{Env: []string{"WALB_TEST_VALUE=42"}}
	result := Run(context.Background(), "sh", []string{"-c", "echo $WALB_TEST_VALUE"}, opts)

	if strings.TrimSpace(result.Stdout) != "42" {
		t.Errorf("Stdout = %q, want 42", result.Stdout)
	}
}

func TestRun_LargeOutput(t *testing.T) {
	result := Run(context.Background(), "sh", []string{"-c", "for i in $(seq 1 1000); do echo line$i; done"}, nil)

	if result.Error != nil {
		t.Fatalf("Run failed: %v", result.Error)
	}

	if len(result.Stdout) < 5000 {
		t.Errorf("Stdout length = %d, expected > 5000 (for 1000 lines)", len(result.Stdout))
	}
}

func TestRun_WithWorkingDirectory(t *testing.T) {
	tempDir := t.TempDir()
	testFile := "bench.db"
	if err := os.WriteFile(filepath.Join(tempDir, testFile), []byte("content"), 0644); err != nil {
		t.Fatalf("Failed to create test file: %v", err)
	}

	result := Run(context.Background(), "ls", nil, &Options{Dir: tempDir})
	if result.Error != nil {
		t.Fatalf("Run failed: %v", result.Error)
	}

	if !strings.Contains(result.Stdout, testFile) {
		t.Errorf("Output doesn't contain %s: %s", testFile, result.Stdout)
	}
}

func TestRun_EmptyCommand(t *testing.T) {
	result := Run(context.Background(), "", []string{}, nil)

	if result == nil {
		t.Fatal("Run returned nil for empty command")
	}

	if result.Error == nil {
		t.Error("Expected error for empty command")
	}
}

func TestPrefixWriter_SplitWrites(t *testing.T) {
	var out bytes.Buffer
	w := NewPrefixWriter(&out, "> ")

	w.Write([]byte("par"))
	w.Write([]byte("tial\nnext"))
	if out.String() != "> partial\n" {
		t.Errorf("out = %q", out.String())
	}

	w.Flush()
	if out.String() != "> partial\n> next\n" {
		t.Errorf("out after flush = %q", out.String())
	}
}

func TestResult_String(t *testing.T) {
	r := &Result{Command: "walb-trial", Args: []string{"--role", "writer"}, DurationMs: 1500}
	if got := r.String(); got != "walb-trial [--role writer]: success (1.500s)" {
		t.Errorf("String() = %q", got)
	}

	r.ExitCode = 2
	if !strings.Contains(r.String(), "failed (exit code 2)") {
		t.Errorf("String() = %q", r.String())
	}
}
