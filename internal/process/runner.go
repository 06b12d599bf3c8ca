// Package process runs short-lived external commands with their standard
// input fed from memory and their output captured, bounded by a timeout.
package process

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// ProcessStatus is the outcome of a run
type ProcessStatus string

const (
	StatusPending ProcessStatus = "pending"
	StatusRunning ProcessStatus = "running"
	StatusStopped ProcessStatus = "stopped"
	StatusFailed  ProcessStatus = "failed"
	StatusSuccess ProcessStatus = "success"
)

// IsFinished returns true if the status represents a finished state
func (s ProcessStatus) IsFinished() bool {
	return s == StatusStopped || s == StatusFailed || s == StatusSuccess
}

// Spec describes one invocation
type Spec struct {
	Name  string
	Args  []string
	Stdin string
	Dir   string
	// Timeout bounds the run; zero uses the runner default
	Timeout time.Duration
}

// Result is what a finished run produced
type Result struct {
	ID        string
	Command   string
	Status    ProcessStatus
	Stdout    string
	Stderr    string
	ExitCode  int
	StartTime time.Time
	EndTime   time.Time
}

// Duration returns how long the run took
func (r Result) Duration() time.Duration {
	return r.EndTime.Sub(r.StartTime)
}

// String returns a one line summary
func (r Result) String() string {
	return fmt.Sprintf("Process[%s %s: %s exit=%d %s]", r.ID[:8], r.Command, r.Status, r.ExitCode, r.Duration().Round(time.Millisecond))
}

// ErrTimeout is returned when a run exceeds its timeout
var ErrTimeout = errors.New("process timed out")

// DefaultTimeout applies when neither Spec.Timeout nor the runner sets one
const DefaultTimeout = 10 * time.Second

// Runner executes commands. It is safe for concurrent use.
type Runner struct {
	timeout time.Duration
	env     []string

	mu      sync.Mutex
	running map[string]Result
	history []Result
	limit   int

	started  atomic.Uint64
	failures atomic.Uint64
}

// NewRunner creates a runner. A zero timeout uses DefaultTimeout.
func NewRunner(timeout time.Duration) *Runner {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Runner{
		timeout: timeout,
		env:     os.Environ(),
		running: make(map[string]Result),
		limit:   20,
	}
}

// Run starts spec, writes Stdin to the child, closes it and waits. A process
// that exits non-zero is reported through Result.Status and ExitCode with a
// nil error; err is set when the process could not be started, timed out or
// was cancelled.
func (r *Runner) Run(ctx context.Context, spec Spec) (Result, error) {
	timeout := spec.Timeout
	if timeout <= 0 {
		timeout = r.timeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	res := Result{
		ID:        uuid.New().String(),
		Command:   strings.Join(append([]string{spec.Name}, spec.Args...), " "),
		Status:    StatusPending,
		ExitCode:  -1,
		StartTime: time.Now(),
	}

	cmd := exec.CommandContext(ctx, spec.Name, spec.Args...)
	cmd.Dir = spec.Dir
	cmd.Env = r.env
	cmd.Stdin = strings.NewReader(spec.Stdin)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	setupProcessGroup(cmd)
	cmd.Cancel = func() error {
		return killProcessTree(cmd.Process.Pid)
	}
	cmd.WaitDelay = time.Second

	r.started.Add(1)
	if err := cmd.Start(); err != nil {
		res.Status = StatusFailed
		res.EndTime = time.Now()
		r.finish(res)
		return res, fmt.Errorf("failed to start command %v: %w", cmd.Args, err)
	}

	res.Status = StatusRunning
	r.mu.Lock()
	r.running[res.ID] = res
	r.mu.Unlock()

	err := cmd.Wait()
	res.EndTime = time.Now()
	res.Stdout = stdout.String()
	res.Stderr = stderr.String()

	switch {
	case ctx.Err() != nil:
		res.Status = StatusStopped
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			err = fmt.Errorf("%w after %s: %w", ErrTimeout, timeout, ctx.Err())
		} else {
			err = ctx.Err()
		}
	case err != nil:
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			res.ExitCode = exitErr.ExitCode()
			res.Status = StatusFailed
			err = nil
		} else {
			res.Status = StatusFailed
		}
	default:
		res.ExitCode = 0
		res.Status = StatusSuccess
	}

	r.finish(res)
	return res, err
}

func (r *Runner) finish(res Result) {
	if res.Status != StatusSuccess {
		r.failures.Add(1)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.running, res.ID)
	r.history = append(r.history, res)
	if len(r.history) > r.limit {
		r.history = r.history[len(r.history)-r.limit:]
	}
}

// Running returns the runs in progress
func (r *Runner) Running() []Result {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Result, 0, len(r.running))
	for _, res := range r.running {
		out = append(out, res)
	}
	return out
}

// History returns the most recent finished runs, oldest first
func (r *Runner) History() []Result {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Result(nil), r.history...)
}

// Stats returns how many runs were started and how many did not succeed
func (r *Runner) Stats() (started, failed uint64) {
	return r.started.Load(), r.failures.Load()
}
