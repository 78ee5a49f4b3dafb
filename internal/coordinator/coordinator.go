package coordinator

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"DistWordCount/internal/journal"
	"DistWordCount/internal/layout"
	"DistWordCount/internal/logger"
	"DistWordCount/internal/partition"
	"DistWordCount/internal/remote"
	"DistWordCount/internal/types"
)

// ErrNoMachines is returned when no machine is available for the run.
var ErrNoMachines = errors.New("unable to reach remote machines")

// Recorder receives phase transitions.
type Recorder interface {
	Record(journal.Entry) error
}

// Options configures an Orchestrator.
type Options struct {
	Transport remote.Transport
	Local     layout.Layout // working tree on this machine
	Remote    layout.Layout // working tree on the workers

	// WorkerCommand is the shell command starting a worker inside the
	// remote working tree; WorkerFlags are passed before the mode.
	WorkerCommand string
	WorkerFlags   []string

	StepTimeout time.Duration
	Splits      int // 0 means one split per available machine
	Journal     Recorder
}

// Orchestrator drives MAP, SHUFFLE, REDUCE and RETRIEVE over the fleet,
// waiting for every machine at the end of each phase.
type Orchestrator struct {
	opts        Options
	runID       string
	partitioner *partition.Partitioner
	logger      *logger.Logger

	mu          sync.Mutex
	phase       types.Phase
	chainSeq    int
	splits      []types.Split
	assignments []types.Assignment
	durations   map[types.Phase]time.Duration
}

func New(opts Options, lg *logger.Logger) *Orchestrator {
	if lg == nil {
		lg = logger.New("INFO")
	}
	runID := "run-" + uuid.New().String()[:8]
	lg.Info("Orchestrator initialized: run_id=%s local=%s remote=%s", runID, opts.Local.Base, opts.Remote.Base)

	return &Orchestrator{
		opts:        opts,
		runID:       runID,
		partitioner: partition.New(opts.Local, lg),
		logger:      lg,
		phase:       types.PhaseInit,
		durations:   make(map[types.Phase]time.Duration),
	}
}

// RunID identifies this run in logs and in the journal.
func (o *Orchestrator) RunID() string {
	return o.runID
}

// Phase returns the phase currently running.
func (o *Orchestrator) Phase() types.Phase {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.phase
}

// Assignments returns the machine to splits mapping of the run.
func (o *Orchestrator) Assignments() []types.Assignment {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]types.Assignment(nil), o.assignments...)
}

// Durations returns the wall time of every finished phase.
func (o *Orchestrator) Durations() map[types.Phase]time.Duration {
	o.mu.Lock()
	defer o.mu.Unlock()

	out := make(map[types.Phase]time.Duration, len(o.durations))
	for k, v := range o.durations {
		out[k] = v
	}
	return out
}

// Assign hands split i to available[i mod n], n being the number of used
// machines, min(len(splits), len(available)).
func Assign(available []types.Machine, splits []types.Split) []types.Assignment {
	n := len(available)
	if len(splits) < n {
		n = len(splits)
	}
	if n == 0 {
		return nil
	}

	assignments := make([]types.Assignment, n)
	for i := 0; i < n; i++ {
		assignments[i] = types.Assignment{Machine: available[i]}
	}
	for i, s := range splits {
		a := &assignments[i%n]
		a.Splits = append(a.Splits, s)
	}
	return assignments
}

// Run executes the whole pipeline and returns the path of the merged result
// file.
func (o *Orchestrator) Run(ctx context.Context, available []types.Machine, input string) (string, error) {
	if len(available) == 0 {
		return "", ErrNoMachines
	}

	if err := o.prepare(available, input); err != nil {
		o.record(journal.Entry{Phase: types.PhaseInit, Event: journal.EventFail, Error: err.Error()})
		return "", err
	}

	phases := []struct {
		phase types.Phase
		build func() ([]*remote.Chain, error)
		after func() error
	}{
		{types.PhaseMap, o.mapChains, nil},
		{types.PhaseShuffle, o.shuffleChains, nil},
		{types.PhaseReduce, o.reduceChains, nil},
		{types.PhaseRetrieve, o.retrieveChains, o.merge},
	}

	for _, p := range phases {
		if err := o.runPhase(ctx, p.phase, p.build, p.after); err != nil {
			o.record(journal.Entry{Phase: p.phase, Event: journal.EventFail, Error: err.Error()})
			return "", err
		}
	}

	o.setPhase(types.PhaseDone)
	o.record(journal.Entry{Phase: types.PhaseDone, Event: journal.EventFinish})
	o.logger.Info("Run finished: run_id=%s result=%s", o.runID, o.opts.Local.Result())
	return o.opts.Local.Result(), nil
}

// prepare partitions the input, picks the used machines and writes the
// used-machines manifest.
func (o *Orchestrator) prepare(available []types.Machine, input string) error {
	if err := os.MkdirAll(o.opts.Local.Base, 0755); err != nil {
		return fmt.Errorf("failed to create working directory: %w", err)
	}

	n := o.opts.Splits
	if n <= 0 {
		n = len(available)
	}
	splits, err := o.partitioner.Split(input, n)
	if err != nil {
		return err
	}

	assignments := Assign(available, splits)
	used := make([]types.Machine, len(assignments))
	for i, a := range assignments {
		used[i] = a.Machine
	}

	if err := writeManifest(o.opts.Local.UsedMachines(), used); err != nil {
		return err
	}

	o.mu.Lock()
	o.splits = splits
	o.assignments = assignments
	o.mu.Unlock()

	o.record(journal.Entry{Phase: types.PhaseInit, Event: journal.EventFinish, Machines: used})
	o.logger.Info("Run prepared: %s", logger.Fields(map[string]interface{}{
		"run_id":    o.runID,
		"available": len(available),
		"used":      len(used),
		"splits":    len(splits),
	}))
	return nil
}

func writeManifest(path string, machines []types.Machine) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create used machines file: %w", err)
	}
	w := bufio.NewWriter(f)
	for _, m := range machines {
		w.WriteString(string(m) + "\n")
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("failed to write used machines file: %w", err)
	}
	return f.Close()
}

func (o *Orchestrator) setPhase(p types.Phase) {
	o.mu.Lock()
	o.phase = p
	o.mu.Unlock()
}

func (o *Orchestrator) record(e journal.Entry) {
	if o.opts.Journal == nil {
		return
	}
	e.RunID = o.runID
	if err := o.opts.Journal.Record(e); err != nil {
		o.logger.Warn("Failed to journal %s %s: %v", e.Phase, e.Event, err)
	}
}

// runPhase builds one chain per machine, runs them all and waits for every
// one of them before returning.
func (o *Orchestrator) runPhase(ctx context.Context, phase types.Phase, build func() ([]*remote.Chain, error), after func() error) error {
	o.setPhase(phase)
	o.logger.Info("<Starting> %s", phase)

	chains, err := build()
	if err != nil {
		return fmt.Errorf("%s: %w", phase, err)
	}
	o.record(journal.Entry{Phase: phase, Event: journal.EventStart})

	begin := time.Now()
	if err := fanOut(ctx, chains); err != nil {
		return fmt.Errorf("%s: %w", phase, err)
	}
	if after != nil {
		if err := after(); err != nil {
			return fmt.Errorf("%s: %w", phase, err)
		}
	}
	elapsed := time.Since(begin)

	o.mu.Lock()
	o.durations[phase] = elapsed
	o.mu.Unlock()

	o.logger.Info("%s FINISHED in %s", phase, types.NewElapsed(elapsed))
	o.record(journal.Entry{Phase: phase, Event: journal.EventFinish, Elapsed: elapsed})
	return nil
}

// newChain labels chains with the run id, the phase and a counter owned by
// the orchestrator.
func (o *Orchestrator) newChain(phase types.Phase, m types.Machine) *remote.Chain {
	o.mu.Lock()
	o.chainSeq++
	id := fmt.Sprintf("%s/%s%d@%s", o.runID, phase, o.chainSeq, m)
	o.mu.Unlock()

	c := remote.NewChain(id, o.logger)
	c.OnComplete = func(r remote.Result) {
		out := strings.TrimSpace(string(r.Output))
		if !r.OK() {
			o.logger.Warn("Step did not complete: chain=%s step=%s timed_out=%v err=%v output=%s", r.Chain, r.Step, r.TimedOut, r.Err, out)
			return
		}
		if out != "" {
			o.logger.Debug("Step output: chain=%s step=%s output=%s", r.Chain, r.Step, out)
		}
	}
	return c
}

// worker builds the remote worker invocation for mode with args.
func (o *Orchestrator) worker(mode string, args ...string) string {
	parts := append(append([]string{}, o.opts.WorkerFlags...), mode)
	parts = append(parts, args...)
	return o.opts.WorkerCommand + " " + remote.JoinArgs(parts...)
}
