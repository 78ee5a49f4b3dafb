package remote

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"time"

	"DistWordCount/internal/logger"
)

// ErrAlreadyStarted is returned by Add once Run has been called.
var ErrAlreadyStarted = errors.New("remote: chain already started")

// DefaultWaitDelay bounds how long output pipes are drained after a step's
// process is killed.
const DefaultWaitDelay = 2 * time.Second

// StartError reports a step whose process could not be spawned.
type StartError struct {
	Chain string
	Step  string
	Err   error
}

func (e *StartError) Error() string {
	return fmt.Sprintf("chain %s: failed to start step %s: %v", e.Chain, e.Step, e.Err)
}

func (e *StartError) Unwrap() error { return e.Err }

// Result describes one finished (or killed) step.
type Result struct {
	Chain    string
	Step     string
	Command  Command
	Output   []byte // merged stdout and stderr
	Err      error  // exit error, nil on success
	TimedOut bool
	Elapsed  time.Duration
}

// OK reports a step that exited zero within its timeout.
func (r Result) OK() bool {
	return r.Err == nil && !r.TimedOut
}

// FirstLine returns the first output line without its terminator.
func (r Result) FirstLine() string {
	sc := bufio.NewScanner(bytes.NewReader(r.Output))
	if sc.Scan() {
		return sc.Text()
	}
	return ""
}

// Completion is called after every step of a chain.
type Completion func(Result)

type step struct {
	label   string
	cmd     Command
	timeout time.Duration
}

// Chain runs commands one after the other, each bounded by its own timeout.
// A step that times out is killed and logged; the chain then moves on to the
// next step.
type Chain struct {
	ID         string
	OnComplete Completion
	WaitDelay  time.Duration

	mu      sync.Mutex
	started bool
	steps   []step
	logger  *logger.Logger
}

func NewChain(id string, lg *logger.Logger) *Chain {
	if lg == nil {
		lg = logger.New("INFO")
	}
	return &Chain{
		ID:        id,
		WaitDelay: DefaultWaitDelay,
		logger:    lg,
	}
}

// Add appends a step. A zero timeout waits for the process indefinitely.
func (c *Chain) Add(label string, cmd Command, timeout time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.started {
		return ErrAlreadyStarted
	}
	if len(cmd.Args) == 0 {
		return fmt.Errorf("chain %s: step %s has no command", c.ID, label)
	}
	c.steps = append(c.steps, step{label: label, cmd: cmd, timeout: timeout})
	return nil
}

// Len returns the number of steps added so far.
func (c *Chain) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.steps)
}

// Run executes every step in order. It only returns an error when a process
// cannot be started or ctx is done; timeouts and non-zero exits are reported
// through OnComplete and the log.
func (c *Chain) Run(ctx context.Context) error {
	c.mu.Lock()
	c.started = true
	steps := append([]step(nil), c.steps...)
	c.mu.Unlock()

	c.logger.Debug("Chain started: chain=%s steps=%d", c.ID, len(steps))

	for _, s := range steps {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("chain %s interrupted: %w", c.ID, err)
		}

		res, err := c.runStep(ctx, s)
		if err != nil {
			c.logger.Error("Failed to start step: chain=%s step=%s err=%v", c.ID, s.label, err)
			return err
		}

		switch {
		case res.TimedOut:
			c.logger.Warn("Timeout: chain=%s step=%s after=%s", c.ID, s.label, s.timeout)
		case res.Err != nil:
			c.logger.Warn("Step failed: chain=%s step=%s err=%v", c.ID, s.label, res.Err)
		default:
			c.logger.Debug("Step done: chain=%s step=%s elapsed=%s", c.ID, s.label, res.Elapsed)
		}

		if c.OnComplete != nil {
			c.OnComplete(res)
		}
	}

	c.logger.Debug("Chain finished: chain=%s", c.ID)
	return nil
}

func (c *Chain) runStep(ctx context.Context, s step) (Result, error) {
	stepCtx, cancel := ctx, context.CancelFunc(func() {})
	if s.timeout > 0 {
		stepCtx, cancel = context.WithTimeout(ctx, s.timeout)
	}
	defer cancel()

	var out bytes.Buffer
	cmd := exec.CommandContext(stepCtx, s.cmd.Args[0], s.cmd.Args[1:]...)
	if len(s.cmd.Env) > 0 {
		cmd.Env = append(os.Environ(), s.cmd.Env...)
	}
	cmd.Stdout = &out
	cmd.Stderr = &out
	cmd.WaitDelay = c.WaitDelay
	killGroup(cmd)

	c.logger.Debug("Step started: chain=%s step=%s cmd=%s", c.ID, s.label, s.cmd)

	begin := time.Now()
	if err := cmd.Start(); err != nil {
		return Result{}, &StartError{Chain: c.ID, Step: s.label, Err: err}
	}
	waitErr := cmd.Wait()

	return Result{
		Chain:    c.ID,
		Step:     s.label,
		Command:  s.cmd,
		Output:   out.Bytes(),
		Err:      waitErr,
		TimedOut: timedOut(waitErr, stepCtx.Err()),
		Elapsed:  time.Since(begin),
	}, nil
}

// timedOut reports a process killed by its step deadline. A process that
// exited cleanly is never a timeout, even if the deadline passed right after.
func timedOut(waitErr, ctxErr error) bool {
	return waitErr != nil && errors.Is(ctxErr, context.DeadlineExceeded)
}
