package types

import (
	"fmt"
	"time"
)

// Machine is an opaque host identifier as it appears in the roster file.
type Machine string

// Phase is a step of the word-count pipeline.
type Phase string

const (
	PhaseInit     Phase = "INIT"
	PhaseMap      Phase = "MAP"
	PhaseShuffle  Phase = "SHUFFLE"
	PhaseReduce   Phase = "REDUCE"
	PhaseRetrieve Phase = "RETRIEVE"
	PhaseDone     Phase = "DONE"
)

// Phases lists the pipeline in execution order.
var Phases = []Phase{PhaseInit, PhaseMap, PhaseShuffle, PhaseReduce, PhaseRetrieve, PhaseDone}

// MachineStatus is the outcome of a liveness probe
type MachineStatus string

const (
	MachineAvailable   MachineStatus = "AVAILABLE"
	MachineUnavailable MachineStatus = "UNAVAILABLE"
)

// Split is a contiguous byte range of the input materialised as its own file.
type Split struct {
	Index int
	Path  string
	Size  int64
}

// Assignment binds a used machine to the splits it processes.
type Assignment struct {
	Machine Machine
	Splits  []Split
}

// MapRecord is one token occurrence emitted by the map step.
type MapRecord struct {
	Word  string
	Count int
}

func (r MapRecord) String() string {
	return fmt.Sprintf("%s %d", r.Word, r.Count)
}

// ReduceResult is the total count of one word.
type ReduceResult struct {
	Word  string
	Count int
}

func (r ReduceResult) String() string {
	return fmt.Sprintf("%s %d", r.Word, r.Count)
}

// Elapsed splits a duration into s/ms/us/ns for phase timing lines.
type Elapsed struct {
	S, Ms, Us, Ns int64
}

func NewElapsed(d time.Duration) Elapsed {
	n := d.Nanoseconds()
	e := Elapsed{S: n / 1e9}
	n %= 1e9
	e.Ms = n / 1e6
	n %= 1e6
	e.Us = n / 1e3
	e.Ns = n % 1e3
	return e
}

func (e Elapsed) String() string {
	return fmt.Sprintf("%ds %dms %dus %dns", e.S, e.Ms, e.Us, e.Ns)
}
