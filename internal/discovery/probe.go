package discovery

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"DistWordCount/internal/logger"
	"DistWordCount/internal/remote"
	"DistWordCount/internal/types"
)

const (
	DefaultProbeTimeout = 4 * time.Second
	DefaultProbeWorkers = 10
)

// Prober filters a roster down to the machines that answer.
type Prober interface {
	Run(ctx context.Context, roster []types.Machine) ([]types.Machine, error)
	Statuses() []Status
}

// Status is the probe outcome of one machine.
type Status struct {
	Machine types.Machine
	Status  types.MachineStatus
	Reason  string
}

// Probe checks every machine by running the transport's identify command and
// comparing the answer with the roster name, so a stale DNS entry or a
// wrongly routed host is not mistaken for the machine.
type Probe struct {
	Transport remote.Transport
	Timeout   time.Duration
	Workers   int
	Verbose   bool
	Out       io.Writer

	mu       sync.Mutex
	statuses []Status
	logger   *logger.Logger
}

func NewProbe(t remote.Transport, lg *logger.Logger) *Probe {
	if lg == nil {
		lg = logger.New("INFO")
	}
	return &Probe{
		Transport: t,
		Timeout:   DefaultProbeTimeout,
		Workers:   DefaultProbeWorkers,
		Out:       os.Stderr,
		logger:    lg,
	}
}

// Run probes the roster and returns the available machines in roster order.
// It returns an error only if a probe process cannot be started.
func (p *Probe) Run(ctx context.Context, roster []types.Machine) ([]types.Machine, error) {
	workers := p.Workers
	if workers < 1 {
		workers = DefaultProbeWorkers
	}

	statuses := make([]Status, len(roster))
	for i, m := range roster {
		statuses[i] = Status{Machine: m, Status: types.MachineUnavailable, Reason: "not probed"}
	}

	var wg sync.WaitGroup
	var errMu sync.Mutex
	var firstErr error
	sem := make(chan struct{}, workers)

	for i, m := range roster {
		wg.Add(1)
		go func(i int, m types.Machine) {
			defer wg.Done()
			sem <- struct{}{}        // Acquire semaphore
			defer func() { <-sem }() // Release semaphore

			chain := remote.NewChain("probe-"+string(m), p.logger)
			chain.OnComplete = func(r remote.Result) {
				statuses[i] = evaluate(m, r)
			}
			err := chain.Add("identify", p.Transport.Identify(string(m)), p.Timeout)
			if err == nil {
				err = chain.Run(ctx)
			}
			if err != nil {
				errMu.Lock()
				if firstErr == nil {
					firstErr = err
				}
				errMu.Unlock()
			}
		}(i, m)
	}

	wg.Wait()

	p.mu.Lock()
	p.statuses = statuses
	p.mu.Unlock()

	if firstErr != nil {
		return nil, fmt.Errorf("failed to probe fleet: %w", firstErr)
	}

	p.report(statuses)
	return Available(statuses), nil
}

// Statuses returns the outcome of the last Run in roster order.
func (p *Probe) Statuses() []Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Status(nil), p.statuses...)
}

func evaluate(m types.Machine, r remote.Result) Status {
	switch {
	case r.TimedOut:
		return Status{Machine: m, Status: types.MachineUnavailable, Reason: "timeout"}
	case r.Err != nil:
		return Status{Machine: m, Status: types.MachineUnavailable, Reason: r.Err.Error()}
	case r.FirstLine() != string(m):
		return Status{Machine: m, Status: types.MachineUnavailable, Reason: fmt.Sprintf("answered as %q", r.FirstLine())}
	default:
		return Status{Machine: m, Status: types.MachineAvailable}
	}
}

func (p *Probe) report(statuses []Status) {
	report(p.Out, p.Verbose, statuses)
	p.logger.Info("Fleet probed: tested=%d available=%d", len(statuses), len(Available(statuses)))
}

func report(out io.Writer, verbose bool, statuses []Status) {
	if out == nil {
		return
	}
	for _, s := range statuses {
		switch {
		case verbose && s.Status == types.MachineAvailable:
			fmt.Fprintf(out, "Machine %s %s\n", s.Machine, s.Status)
		case s.Status != types.MachineAvailable:
			fmt.Fprintf(out, "Machine %s %s (%s)\n", s.Machine, s.Status, s.Reason)
		}
	}
}

// Available keeps the available machines, preserving order.
func Available(statuses []Status) []types.Machine {
	var out []types.Machine
	for _, s := range statuses {
		if s.Status == types.MachineAvailable {
			out = append(out, s.Machine)
		}
	}
	return out
}
