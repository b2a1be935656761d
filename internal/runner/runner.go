// Package runner executes external tools (compose, docker, git, sh) from argument
// vectors and returns a typed result with the exit code and captured output lines.
package runner

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// Cmd describes a single invocation.
type Cmd struct {
	// Name is the executable to run.
	Name string
	// Args are passed verbatim, no shell is involved.
	Args []string
	// Env is the complete environment of the process; nil inherits the current one.
	Env []string
	// Dir is the working directory; empty means the current one.
	Dir string
	// Stdin is optional process input.
	Stdin io.Reader
	// LogFile, when set, receives the combined output. It is truncated first
	// unless AppendLog is set.
	LogFile string
	// AppendLog keeps the existing content of LogFile.
	AppendLog bool
	// Output, when set, receives the combined output as it is produced.
	Output io.Writer
}

// String renders the command line for logs.
func (c Cmd) String() string {
	return strings.TrimSpace(c.Name + " " + strings.Join(c.Args, " "))
}

// Result is the outcome of a command that was started.
type Result struct {
	// ExitCode is the process exit status.
	ExitCode int
	// Lines is the combined stdout and stderr split into lines.
	Lines []string
}

// OK reports whether the command exited with status zero.
func (r Result) OK() bool { return r.ExitCode == 0 }

// Tail returns the last n output lines.
func (r Result) Tail(n int) []string { return LastLines(r.Lines, n) }

// Runner runs commands. A non-zero exit status is reported through Result; the error
// is reserved for commands that could not be started at all.
type Runner interface {
	Run(ctx context.Context, cmd Cmd) (Result, error)
}

// Exec runs commands with os/exec.
type Exec struct {
	logger *slog.Logger
}

// NewExec constructs an Exec runner.
func NewExec(logger *slog.Logger) *Exec {
	return &Exec{logger: logger}
}

// Run starts cmd, waits for it and collects its output.
func (e *Exec) Run(ctx context.Context, cmd Cmd) (Result, error) {
	if strings.TrimSpace(cmd.Name) == "" {
		return Result{}, fmt.Errorf("command name is empty")
	}

	var combined bytes.Buffer
	writers := []io.Writer{&combined}
	if cmd.Output != nil {
		writers = append(writers, cmd.Output)
	}
	if cmd.LogFile != "" {
		if err := os.MkdirAll(filepath.Dir(cmd.LogFile), 0o755); err != nil {
			return Result{}, fmt.Errorf("create log dir for %q: %w", cmd.LogFile, err)
		}
		flags := os.O_CREATE | os.O_WRONLY | os.O_TRUNC
		if cmd.AppendLog {
			flags = os.O_CREATE | os.O_WRONLY | os.O_APPEND
		}
		f, err := os.OpenFile(cmd.LogFile, flags, 0o644)
		if err != nil {
			return Result{}, fmt.Errorf("open log file %q: %w", cmd.LogFile, err)
		}
		defer func() { _ = f.Close() }()
		writers = append(writers, f)
	}
	out := io.MultiWriter(writers...)

	c := exec.CommandContext(ctx, cmd.Name, cmd.Args...)
	c.Env = cmd.Env
	c.Dir = cmd.Dir
	c.Stdin = cmd.Stdin
	c.Stdout = out
	c.Stderr = out

	if e.logger != nil {
		e.logger.Debug("running command", "cmd", cmd.Name, "args", cmd.Args, "dir", cmd.Dir)
	}

	err := c.Run()
	res := Result{Lines: SplitLines(combined.String())}
	if err == nil {
		return res, nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		res.ExitCode = exitErr.ExitCode()
		if e.logger != nil {
			e.logger.Debug("command exited non-zero", "cmd", cmd.String(), "code", res.ExitCode)
		}
		return res, nil
	}
	return res, fmt.Errorf("run %s: %w", cmd.String(), err)
}

// SplitLines splits command output into lines without trailing newlines.
func SplitLines(s string) []string {
	var lines []string
	sc := bufio.NewScanner(strings.NewReader(s))
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		lines = append(lines, strings.TrimRight(sc.Text(), "\r"))
	}
	return lines
}

// LastLines returns the final n entries of lines.
func LastLines(lines []string, n int) []string {
	if n <= 0 || len(lines) == 0 {
		return nil
	}
	if len(lines) <= n {
		return append([]string(nil), lines...)
	}
	return append([]string(nil), lines[len(lines)-n:]...)
}

// TailFile returns the last n lines of the file at path.
func TailFile(path string, n int) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %q: %w", path, err)
	}
	return LastLines(SplitLines(string(data)), n), nil
}
