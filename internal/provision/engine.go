// Package provision reconciles a host against the desired LEMP state.
//
// Each Step pairs a Check, which reports whether the host already satisfies
// it, with an Apply that makes it so. The Engine runs steps strictly in
// order and stops at the first failure; nothing is rolled back.
package provision

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Status is the state of one step in a plan or run.
type Status string

const (
	StatusPending Status = "pending"
	StatusRunning Status = "running"
	StatusSkipped Status = "skipped" // already in the desired state
	StatusApplied Status = "applied"
	StatusFailed  Status = "failed"

	// plan only
	StatusOK      Status = "ok"
	StatusChange  Status = "change"
	StatusUnknown Status = "unknown"
)

// CheckFunc reports whether the host already satisfies a step.
type CheckFunc func(ctx context.Context) (bool, error)

// ApplyFunc brings the host into the state a step describes.
type ApplyFunc func(ctx context.Context) error

// Step is a named check/apply pair. A nil Check means the step always applies.
type Step struct {
	Name        string
	Description string
	Check       CheckFunc
	Apply       ApplyFunc
}

// Result records what happened to one step.
type Result struct {
	Step     string        `json:"step" yaml:"step"`
	Status   Status        `json:"status" yaml:"status"`
	Message  string        `json:"message,omitempty" yaml:"message,omitempty"`
	Duration time.Duration `json:"duration_ns" yaml:"duration_ns"`
}

// Report is the outcome of Plan or Apply.
type Report struct {
	Results  []Result  `json:"results" yaml:"results"`
	Started  time.Time `json:"started" yaml:"started"`
	Finished time.Time `json:"finished" yaml:"finished"`
}

// Count returns how many results have status s.
func (r Report) Count(s Status) int {
	n := 0
	for _, res := range r.Results {
		if res.Status == s {
			n++
		}
	}
	return n
}

// Event is sent to the Observer on every status transition.
type Event struct {
	Index    int
	Total    int
	Step     string
	Status   Status
	Err      error
	Duration time.Duration
}

// StepError is the single failure kind of a run.
type StepError struct {
	Step string
	Err  error
}

func (e *StepError) Error() string { return fmt.Sprintf("step %q failed: %v", e.Step, e.Err) }

func (e *StepError) Unwrap() error { return e.Err }

// Engine executes a step list.
type Engine struct {
	Steps    []Step
	Observer func(Event)
	// Force applies every step even when its check passes.
	Force  bool
	Logger *slog.Logger
}

func (e *Engine) logger() *slog.Logger {
	if e.Logger == nil {
		return slog.Default()
	}
	return e.Logger
}

func (e *Engine) emit(ev Event) {
	if e.Observer != nil {
		e.Observer(ev)
	}
}

func newReport(steps []Step) Report {
	r := Report{Started: time.Now(), Results: make([]Result, len(steps))}
	for i, s := range steps {
		r.Results[i] = Result{Step: s.Name, Status: StatusPending}
	}
	return r
}

// Plan runs every check without applying anything. A failing check is
// recorded as unknown and does not stop the plan.
func (e *Engine) Plan(ctx context.Context) Report {
	rep := newReport(e.Steps)
	for i, s := range e.Steps {
		if ctx.Err() != nil {
			break
		}
		start := time.Now()
		res := &rep.Results[i]
		switch {
		case s.Check == nil:
			res.Status = StatusChange
			res.Message = "always runs"
		default:
			ok, err := s.Check(ctx)
			switch {
			case err != nil:
				res.Status = StatusUnknown
				res.Message = err.Error()
			case ok:
				res.Status = StatusOK
			default:
				res.Status = StatusChange
			}
		}
		if res.Message == "" && res.Status == StatusChange {
			res.Message = s.Description
		}
		res.Duration = time.Since(start)
		e.logger().Debug("plan", "step", s.Name, "status", res.Status, "message", res.Message)
		e.emit(Event{Index: i, Total: len(e.Steps), Step: s.Name, Status: res.Status, Duration: res.Duration})
	}
	rep.Finished = time.Now()
	return rep
}

// Apply runs the steps in order. It returns a *StepError for the first step
// whose Apply fails; the remaining steps stay pending.
func (e *Engine) Apply(ctx context.Context) (Report, error) {
	rep := newReport(e.Steps)

	for i, s := range e.Steps {
		res := &rep.Results[i]
		if err := ctx.Err(); err != nil {
			res.Status = StatusFailed
			res.Message = err.Error()
			e.emit(Event{Index: i, Total: len(e.Steps), Step: s.Name, Status: StatusFailed, Err: err})
			rep.Finished = time.Now()
			return rep, &StepError{Step: s.Name, Err: err}
		}

		start := time.Now()
		res.Status = StatusRunning
		e.emit(Event{Index: i, Total: len(e.Steps), Step: s.Name, Status: StatusRunning})

		if !e.Force && s.Check != nil {
			ok, err := s.Check(ctx)
			if err != nil {
				e.logger().Debug("check failed, applying", "step", s.Name, "err", err)
			}
			if err == nil && ok {
				res.Status = StatusSkipped
				res.Duration = time.Since(start)
				e.logger().Info("step skipped", "step", s.Name)
				e.emit(Event{Index: i, Total: len(e.Steps), Step: s.Name, Status: StatusSkipped, Duration: res.Duration})
				continue
			}
		}

		e.logger().Info("step started", "step", s.Name)
		err := s.Apply(ctx)
		res.Duration = time.Since(start)
		if err != nil {
			res.Status = StatusFailed
			res.Message = err.Error()
			e.logger().Error("step failed", "step", s.Name, "err", err, "duration", res.Duration.String())
			e.emit(Event{Index: i, Total: len(e.Steps), Step: s.Name, Status: StatusFailed, Err: err, Duration: res.Duration})
			rep.Finished = time.Now()
			return rep, &StepError{Step: s.Name, Err: err}
		}
		res.Status = StatusApplied
		e.logger().Info("step applied", "step", s.Name, "duration", res.Duration.String())
		e.emit(Event{Index: i, Total: len(e.Steps), Step: s.Name, Status: StatusApplied, Duration: res.Duration})
	}
	rep.Finished = time.Now()
	return rep, nil
}
