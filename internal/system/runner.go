package system

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/mattn/go-shellwords"
)

// Runner abstracts exec.Command calls for testability.
type Runner interface {
	// Run executes name with args and returns its stdout.
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
	// RunWithInput is Run with input written to the command's stdin.
	RunWithInput(ctx context.Context, input string, name string, args ...string) ([]byte, error)
	// LookPath reports where name resolves on PATH.
	LookPath(name string) (string, error)
}

// CommandError is returned when a command exits non-zero or cannot start.
type CommandError struct {
	Cmd      string
	ExitCode int // -1 when the process never ran
	Stderr   string
	Err      error
}

func (e *CommandError) Error() string {
	msg := fmt.Sprintf("%s: %v", e.Cmd, e.Err)
	if s := strings.TrimSpace(e.Stderr); s != "" {
		msg += ": " + lastLine(s)
	}
	return msg
}

func (e *CommandError) Unwrap() error { return e.Err }

func lastLine(s string) string {
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		return s[i+1:]
	}
	return s
}

// ExecRunner is the production Runner.
type ExecRunner struct {
	Logger *slog.Logger
	// Stream, when set, receives a copy of the command's stdout and stderr.
	Stream io.Writer
}

// NewExecRunner returns a runner that logs through logger.
func NewExecRunner(logger *slog.Logger) *ExecRunner {
	if logger == nil {
		logger = slog.Default()
	}
	return &ExecRunner{Logger: logger}
}

func (r *ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	return r.run(ctx, nil, name, args...)
}

func (r *ExecRunner) RunWithInput(ctx context.Context, input string, name string, args ...string) ([]byte, error) {
	return r.run(ctx, strings.NewReader(input), name, args...)
}

func (r *ExecRunner) LookPath(name string) (string, error) { return exec.LookPath(name) }

func (r *ExecRunner) run(ctx context.Context, stdin io.Reader, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Env = append(os.Environ(), "DEBIAN_FRONTEND=noninteractive", "LC_ALL=C")
	cmd.Stdin = stdin

	var stdout, stderr bytes.Buffer
	if r.Stream != nil {
		cmd.Stdout = io.MultiWriter(&stdout, r.Stream)
		cmd.Stderr = io.MultiWriter(&stderr, r.Stream)
	} else {
		cmd.Stdout = &stdout
		cmd.Stderr = &stderr
	}

	start := time.Now()
	err := cmd.Run()
	r.Logger.Debug("exec", "cmd", name, "args", args, "duration", time.Since(start).String(), "err", err)
	if err != nil {
		ce := &CommandError{Cmd: name + " " + strings.Join(args, " "), ExitCode: -1, Stderr: stderr.String(), Err: err}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			ce.ExitCode = exitErr.ExitCode()
		}
		return stdout.Bytes(), ce
	}
	return stdout.Bytes(), nil
}

// SplitArgs parses a shell-style argument string ("--quiet --version=2.7.2").
func SplitArgs(s string) ([]string, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	args, err := shellwords.Parse(s)
	if err != nil {
		return nil, fmt.Errorf("parse arguments %q: %w", s, err)
	}
	return args, nil
}
