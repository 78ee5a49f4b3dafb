package journal

import (
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"DistWordCount/internal/types"
)

// RunState is what the journal knows about one run.
type RunState struct {
	RunID     string
	Seq       uint64
	Phase     types.Phase
	Machines  []types.Machine
	Durations map[types.Phase]time.Duration
	Failed    string
	Started   time.Time
	Finished  time.Time
}

// Done reports a run that reached the end of the pipeline.
func (r RunState) Done() bool {
	return r.Phase == types.PhaseDone && r.Failed == ""
}

// State folds journal entries into per-run state.
type State struct {
	mu    sync.RWMutex
	runs  map[string]*RunState
	order []string
}

func NewState() *State {
	return &State{runs: make(map[string]*RunState)}
}

// Load replays the whole journal into a new State.
func Load(j *Journal) (*State, error) {
	s := NewState()
	if err := j.Replay(s.Apply); err != nil {
		return nil, err
	}
	return s, nil
}

// Apply processes one entry.
func (s *State) Apply(seq uint64, e Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	run, ok := s.runs[e.RunID]
	if !ok {
		run = &RunState{
			RunID:     e.RunID,
			Seq:       seq,
			Phase:     types.PhaseInit,
			Durations: make(map[types.Phase]time.Duration),
			Started:   e.Timestamp,
		}
		s.runs[e.RunID] = run
		s.order = append(s.order, e.RunID)
	}

	switch e.Event {
	case EventStart:
		run.Phase = e.Phase
	case EventFinish:
		run.Phase = e.Phase
		if e.Elapsed > 0 {
			run.Durations[e.Phase] = e.Elapsed
		}
		if e.Phase == types.PhaseDone {
			run.Finished = e.Timestamp
		}
	case EventFail:
		run.Phase = e.Phase
		run.Failed = e.Error
		run.Finished = e.Timestamp
	default:
		return fmt.Errorf("unknown journal event: %s", e.Event)
	}

	if len(e.Machines) > 0 {
		run.Machines = append([]types.Machine(nil), e.Machines...)
	}
	return nil
}

// Runs returns every run, oldest first.
func (s *State) Runs() []RunState {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]RunState, 0, len(s.order))
	for _, id := range s.order {
		r := *s.runs[id]
		r.Durations = make(map[types.Phase]time.Duration, len(s.runs[id].Durations))
		for k, v := range s.runs[id].Durations {
			r.Durations[k] = v
		}
		out = append(out, r)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out
}

// Run returns one run by id.
func (s *State) Run(id string) (RunState, bool) {
	for _, r := range s.Runs() {
		if r.RunID == id {
			return r, true
		}
	}
	return RunState{}, false
}

// Print writes one line per run with its phase timings.
func (s *State) Print(w io.Writer) {
	for _, r := range s.Runs() {
		status := string(r.Phase)
		if r.Failed != "" {
			status = "FAILED in " + status + ": " + r.Failed
		}
		fmt.Fprintf(w, "#%d %s %s machines=%d %s\n", r.Seq, r.RunID, r.Started.Format(time.RFC3339), len(r.Machines), status)
		for _, ph := range types.Phases {
			if d, ok := r.Durations[ph]; ok {
				fmt.Fprintf(w, "    %-8s %s\n", ph, types.NewElapsed(d))
			}
		}
	}
}
