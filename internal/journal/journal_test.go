package journal

import (
	"bytes"
	"io"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"DistWordCount/internal/logger"
	"DistWordCount/internal/types"
)

func openJournal(t *testing.T, path string) *Journal {
	t.Helper()
	j, err := Open(path, logger.NewWithOutput("ERROR", io.Discard))
	if err != nil {
		t.Fatalf("Failed to open journal: %v", err)
	}
	return j
}

func TestJournalRecordsRuns(t *testing.T) {
	path := filepath.Join(t.TempDir(), "db", "journal.db")
	j := openJournal(t, path)

	seq, err := j.BeginRun("run-1")
	if err != nil || seq != 1 {
		t.Fatalf("BeginRun = %d, %v", seq, err)
	}
	machines := []types.Machine{"a", "b"}
	j.Record(Entry{Phase: types.PhaseMap, Event: EventStart, Machines: machines})
	j.Record(Entry{Phase: types.PhaseMap, Event: EventFinish, Elapsed: 1500 * time.Millisecond})
	j.Record(Entry{Phase: types.PhaseDone, Event: EventFinish})

	if err := j.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	// A second run in the same database gets the next sequence number.
	j = openJournal(t, path)
	defer j.Close()

	seq, err = j.BeginRun("run-2")
	if err != nil || seq != 2 {
		t.Fatalf("BeginRun = %d, %v", seq, err)
	}
	j.Record(Entry{Phase: types.PhaseShuffle, Event: EventFail, Error: "boom"})

	current, err := j.CurrentRun()
	if err != nil || current != "run-2" {
		t.Fatalf("CurrentRun = %q, %v", current, err)
	}

	state, err := Load(j)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	runs := state.Runs()
	if len(runs) != 2 {
		t.Fatalf("Expected 2 runs, got %d", len(runs))
	}

	first := runs[0]
	if !first.Done() || first.Seq != 1 || len(first.Machines) != 2 {
		t.Fatalf("Unexpected first run: %+v", first)
	}
	if first.Durations[types.PhaseMap] != 1500*time.Millisecond {
		t.Fatalf("MAP duration = %s", first.Durations[types.PhaseMap])
	}

	second, ok := state.Run("run-2")
	if !ok || second.Done() || second.Failed != "boom" || second.Phase != types.PhaseShuffle {
		t.Fatalf("Unexpected second run: %+v", second)
	}

	var out bytes.Buffer
	state.Print(&out)
	if !strings.Contains(out.String(), "run-1") || !strings.Contains(out.String(), "FAILED in SHUFFLE: boom") {
		t.Fatalf("Unexpected history:\n%s", out.String())
	}
	t.Logf("✓ Journal replayed %d runs", len(runs))
}

func TestEmptyJournal(t *testing.T) {
	j := openJournal(t, filepath.Join(t.TempDir(), "journal.db"))
	defer j.Close()

	state, err := Load(j)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(state.Runs()) != 0 {
		t.Fatalf("Expected no runs")
	}
	if current, err := j.CurrentRun(); err != nil || current != "" {
		t.Fatalf("CurrentRun = %q, %v", current, err)
	}
}

func TestStateRejectsUnknownEvent(t *testing.T) {
	s := NewState()
	if err := s.Apply(1, Entry{RunID: "r", Event: "explode"}); err == nil {
		t.Fatalf("Unknown event should be rejected")
	}
}
