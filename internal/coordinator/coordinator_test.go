package coordinator

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"DistWordCount/internal/journal"
	"DistWordCount/internal/layout"
	"DistWordCount/internal/logger"
	"DistWordCount/internal/remote"
	"DistWordCount/internal/types"
	"DistWordCount/internal/worker"
)

const (
	helperEnv  = "WORDCOUNT_HELPER_WORKER"
	remoteBase = "/wc"
)

// TestHelperWorker is not a test: the pipeline tests start the test binary
// itself as the worker command.
func TestHelperWorker(t *testing.T) {
	if os.Getenv(helperEnv) != "1" {
		t.Skip("helper process")
	}
	args := os.Args
	for i, a := range args {
		if a == "--" {
			args = args[i+1:]
			break
		}
	}
	os.Exit(worker.Main(args, os.Stderr))
}

func quietLogger() *logger.Logger {
	return logger.NewWithOutput("ERROR", io.Discard)
}

// sandboxFleet creates one host directory per host and returns options
// running the pipeline over them.
func sandboxFleet(t *testing.T, hosts ...string) Options {
	t.Helper()
	t.Setenv(helperEnv, "1")

	root := t.TempDir()
	for _, h := range hosts {
		if err := os.MkdirAll(filepath.Join(root, h), 0755); err != nil {
			t.Fatalf("Failed to create host %s: %v", h, err)
		}
	}

	return Options{
		Transport:     remote.NewSandbox(root),
		Local:         layout.New(t.TempDir()),
		Remote:        layout.New(remoteBase),
		WorkerCommand: remote.Quote(os.Args[0]) + " -test.run=TestHelperWorker --",
		WorkerFlags:   []string{"-remote-dir", remoteBase, "-log-level", "ERROR"},
	}
}

func writeInput(t *testing.T, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "input.txt")
	if err := os.WriteFile(p, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write input: %v", err)
	}
	return p
}

func readCounts(t *testing.T, path string) map[string]int {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read results: %v", err)
	}

	counts := make(map[string]int)
	for _, line := range strings.Split(strings.TrimSpace(string(data)), "\n") {
		if line == "" {
			continue
		}
		word, n, ok := strings.Cut(line, " ")
		if !ok {
			t.Fatalf("Malformed result line %q", line)
		}
		if _, dup := counts[word]; dup {
			t.Fatalf("Word %q appears twice in the results", word)
		}
		v, err := strconv.Atoi(n)
		if err != nil {
			t.Fatalf("Bad count in %q: %v", line, err)
		}
		counts[word] = v
	}
	return counts
}

func TestAssignRoundRobin(t *testing.T) {
	machines := []types.Machine{"a", "b"}
	splits := make([]types.Split, 5)
	for i := range splits {
		splits[i] = types.Split{Index: i}
	}

	got := Assign(machines, splits)
	if len(got) != 2 {
		t.Fatalf("Expected 2 assignments, got %d", len(got))
	}
	want := map[types.Machine][]int{"a": {0, 2, 4}, "b": {1, 3}}
	for _, a := range got {
		if len(a.Splits) != len(want[a.Machine]) {
			t.Fatalf("%s got %d splits, want %v", a.Machine, len(a.Splits), want[a.Machine])
		}
		for i, s := range a.Splits {
			if s.Index != want[a.Machine][i] {
				t.Fatalf("%s split %d = %d, want %d", a.Machine, i, s.Index, want[a.Machine][i])
			}
		}
	}
}

func TestAssignUsesOnlyNeededMachines(t *testing.T) {
	machines := []types.Machine{"a", "b", "c"}
	splits := []types.Split{{Index: 0}, {Index: 1}}

	got := Assign(machines, splits)
	if len(got) != 2 || got[0].Machine != "a" || got[1].Machine != "b" {
		t.Fatalf("Unexpected assignments %+v", got)
	}
	if len(got[0].Splits) != 1 || got[0].Splits[0].Index != 0 || got[1].Splits[0].Index != 1 {
		t.Fatalf("Each used machine should hold one split: %+v", got)
	}
}

func TestRunWithoutMachines(t *testing.T) {
	o := New(Options{Local: layout.New(t.TempDir())}, quietLogger())
	if _, err := o.Run(context.Background(), nil, "input.txt"); !errors.Is(err, ErrNoMachines) {
		t.Fatalf("Expected ErrNoMachines, got %v", err)
	}
}

func TestRunSingleWord(t *testing.T) {
	opts := sandboxFleet(t, "m0", "m1")
	input := writeInput(t, strings.TrimSpace(strings.Repeat("go ", 100)))

	o := New(opts, quietLogger())
	result, err := o.Run(context.Background(), []types.Machine{"m0", "m1"}, input)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if result != opts.Local.Result() {
		t.Fatalf("Result path %s, want %s", result, opts.Local.Result())
	}

	counts := readCounts(t, result)
	if len(counts) != 1 || counts["go"] != 100 {
		t.Fatalf("Unexpected counts %v", counts)
	}
	if o.Phase() != types.PhaseDone {
		t.Fatalf("Phase = %s after run", o.Phase())
	}
	for _, p := range []types.Phase{types.PhaseMap, types.PhaseShuffle, types.PhaseReduce, types.PhaseRetrieve} {
		if _, ok := o.Durations()[p]; !ok {
			t.Fatalf("No duration recorded for %s", p)
		}
	}
	t.Logf("✓ go 100 across two machines")
}

func TestRunConservesCounts(t *testing.T) {
	opts := sandboxFleet(t, "m0", "m1", "m2")
	opts.Splits = 5

	j, err := journal.Open(filepath.Join(t.TempDir(), "journal.db"), quietLogger())
	if err != nil {
		t.Fatalf("Failed to open journal: %v", err)
	}
	defer j.Close()
	opts.Journal = j

	words := []string{"the", "cat", "sat", "on", "mat", "and", "dog", "ran"}
	want := make(map[string]int)
	var b strings.Builder
	for i := 0; i < 300; i++ {
		w := words[(i*7+i/3)%len(words)]
		want[w]++
		b.WriteString(w)
		if i%11 == 10 {
			b.WriteString("\n")
		} else {
			b.WriteString(" ")
		}
	}

	o := New(opts, quietLogger())
	if _, err := j.BeginRun(o.RunID()); err != nil {
		t.Fatalf("BeginRun failed: %v", err)
	}
	result, err := o.Run(context.Background(), []types.Machine{"m0", "m1", "m2"}, writeInput(t, b.String()))
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	got := readCounts(t, result)
	if len(got) != len(want) {
		t.Fatalf("Got %d words, want %d: %v", len(got), len(want), got)
	}
	for w, n := range want {
		if got[w] != n {
			t.Fatalf("Count of %q = %d, want %d", w, got[w], n)
		}
	}

	state, err := journal.Load(j)
	if err != nil {
		t.Fatalf("Failed to replay journal: %v", err)
	}
	run, ok := state.Run(o.RunID())
	if !ok || !run.Done() {
		t.Fatalf("Journal does not show run %s as done: %+v", o.RunID(), run)
	}
	t.Logf("✓ %d words counted over 5 splits and 3 machines", len(got))
}

func TestRunSkipsUnreachableCopies(t *testing.T) {
	opts := sandboxFleet(t, "m0")
	input := writeInput(t, "a b a")

	// m1 has no host directory: every step against it fails without
	// stopping the run.
	o := New(opts, quietLogger())
	result, err := o.Run(context.Background(), []types.Machine{"m0", "m1"}, input)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	data, err := os.ReadFile(result)
	if err != nil {
		t.Fatalf("Failed to read results: %v", err)
	}
	if len(data) != 0 && !strings.HasSuffix(string(data), "\n") {
		t.Fatalf("Results should be whole lines: %q", data)
	}
}

func TestSecondRunIgnoresEarlierState(t *testing.T) {
	opts := sandboxFleet(t, "m0", "m1", "m2")

	first := New(opts, quietLogger())
	if _, err := first.Run(context.Background(), []types.Machine{"m0", "m1", "m2"}, writeInput(t, "cat dog bird fish a a")); err != nil {
		t.Fatalf("First run failed: %v", err)
	}

	second := New(opts, quietLogger())
	result, err := second.Run(context.Background(), []types.Machine{"m0", "m1"}, writeInput(t, "go go a"))
	if err != nil {
		t.Fatalf("Second run failed: %v", err)
	}

	got := readCounts(t, result)
	want := map[string]int{"go": 2, "a": 1}
	if len(got) != len(want) {
		t.Fatalf("Second run counted %v, want %v", got, want)
	}
	for w, n := range want {
		if got[w] != n {
			t.Fatalf("Count of %q = %d, want %d (all: %v)", w, got[w], n, got)
		}
	}
	t.Logf("✓ Nothing from the first run leaked into the second")
}
