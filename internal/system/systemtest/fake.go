// Package systemtest provides a scripted system.Runner for tests.
package systemtest

import (
	"context"
	"errors"
	"os/exec"
	"strings"
	"sync"

	"github.com/milonpatowary/ubuntu-lemp-react-laravel/internal/system"
)

// Response is what a scripted command returns.
type Response struct {
	Out []byte
	Err error
}

// Call records one invocation.
type Call struct {
	Line  string // name and args joined by spaces
	Input string
}

// FakeRunner answers commands by exact command line, then by longest prefix.
// Unscripted commands succeed with empty output.
type FakeRunner struct {
	mu        sync.Mutex
	responses map[string]Response
	paths     map[string]string
	calls     []Call
	// OnRun, when set, runs after a call is recorded and before the response is chosen.
	OnRun func(line string)
}

// NewFakeRunner returns an empty FakeRunner.
func NewFakeRunner() *FakeRunner {
	return &FakeRunner{responses: map[string]Response{}, paths: map[string]string{}}
}

// On scripts the response for a command line or command line prefix.
func (f *FakeRunner) On(line string, out string, err error) *FakeRunner {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses[line] = Response{Out: []byte(out), Err: err}
	return f
}

// Fail scripts a non-zero exit for line.
func (f *FakeRunner) Fail(line string, stderr string) *FakeRunner {
	return f.On(line, "", &system.CommandError{Cmd: line, ExitCode: 1, Stderr: stderr, Err: errors.New("exit status 1")})
}

// Provide makes LookPath(name) succeed.
func (f *FakeRunner) Provide(names ...string) *FakeRunner {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, n := range names {
		f.paths[n] = "/usr/bin/" + n
	}
	return f
}

func (f *FakeRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	return f.RunWithInput(ctx, "", name, args...)
}

func (f *FakeRunner) RunWithInput(ctx context.Context, input string, name string, args ...string) ([]byte, error) {
	line := strings.TrimSpace(name + " " + strings.Join(args, " "))
	f.mu.Lock()
	f.calls = append(f.calls, Call{Line: line, Input: input})
	hook := f.OnRun
	f.mu.Unlock()
	if hook != nil {
		hook(line)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if r, ok := f.responses[line]; ok {
		return r.Out, r.Err
	}
	best := ""
	for k := range f.responses {
		if strings.HasPrefix(line, k) && len(k) > len(best) {
			best = k
		}
	}
	if best != "" {
		r := f.responses[best]
		return r.Out, r.Err
	}
	return nil, nil
}

func (f *FakeRunner) LookPath(name string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if p, ok := f.paths[name]; ok {
		return p, nil
	}
	return "", &exec.Error{Name: name, Err: exec.ErrNotFound}
}

// Calls returns every recorded invocation.
func (f *FakeRunner) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Call(nil), f.calls...)
}

// Lines returns the recorded command lines.
func (f *FakeRunner) Lines() []string {
	var out []string
	for _, c := range f.Calls() {
		out = append(out, c.Line)
	}
	return out
}

// Ran reports whether line was executed exactly.
func (f *FakeRunner) Ran(line string) bool {
	for _, l := range f.Lines() {
		if l == line {
			return true
		}
	}
	return false
}
