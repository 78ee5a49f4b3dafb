// Package layout names every file and directory of the working tree shared by
// the coordinator and the workers.
package layout

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"unicode"
)

const (
	SplitsDir        = "splits"
	MapsDir          = "maps"
	ShufflesDir      = "shuffles"
	ReceivedDir      = "shufflesreceived"
	ReducesDir       = "reduces"
	ResultsDir       = "results"
	MachinesFile     = "machines.txt"
	UsedMachinesFile = "used_machines.txt"
	ResultFile       = "results.txt"
)

// Layout resolves names against a base directory.
type Layout struct {
	Base string
}

func New(base string) Layout {
	return Layout{Base: base}
}

func (l Layout) path(elem ...string) string {
	return filepath.Join(append([]string{l.Base}, elem...)...)
}

func (l Layout) Splits() string       { return l.path(SplitsDir) }
func (l Layout) Maps() string         { return l.path(MapsDir) }
func (l Layout) Shuffles() string     { return l.path(ShufflesDir) }
func (l Layout) Received() string     { return l.path(ReceivedDir) }
func (l Layout) Reduces() string      { return l.path(ReducesDir) }
func (l Layout) Results() string      { return l.path(ResultsDir) }
func (l Layout) Machines() string     { return l.path(MachinesFile) }
func (l Layout) UsedMachines() string { return l.path(UsedMachinesFile) }
func (l Layout) Result() string       { return l.path(ResultsDir, ResultFile) }

// SplitFile is the file holding split i.
func (l Layout) SplitFile(i int) string {
	return l.path(SplitsDir, SplitName(i))
}

// MapFile is the map output produced from split i.
func (l Layout) MapFile(i int) string {
	return l.path(MapsDir, MapName(i))
}

// ShuffleFile is the bucket file for hash written by host.
func (l Layout) ShuffleFile(hash uint32, host string) string {
	return l.path(ShufflesDir, ShuffleName(hash, host))
}

// ReduceFile is the reduce output for hash.
func (l Layout) ReduceFile(hash string) string {
	return l.path(ReducesDir, hash+".txt")
}

// MachineResults is the local directory receiving one machine's reduces.
func (l Layout) MachineResults(machine string) string {
	return l.path(ResultsDir, machine)
}

func SplitName(i int) string { return fmt.Sprintf("S%d.txt", i) }

func MapName(i int) string { return fmt.Sprintf("UM%d.txt", i) }

func ShuffleName(hash uint32, host string) string {
	return strconv.FormatUint(uint64(hash), 10) + "-" + host + ".txt"
}

// Relative joins rel path elements without a base, for commands run inside
// the remote working directory.
func Relative(elem ...string) string {
	return filepath.Join(elem...)
}

// Index extracts the first run of digits of a file's base name, so that
// "splits/S12.txt" and "maps/UM12.txt" both give 12.
func Index(path string) (int, error) {
	name := filepath.Base(path)
	name = strings.TrimSuffix(name, filepath.Ext(name))

	start := strings.IndexFunc(name, unicode.IsDigit)
	if start < 0 {
		return 0, fmt.Errorf("no numeric suffix in %s", path)
	}
	end := start
	for end < len(name) && name[end] >= '0' && name[end] <= '9' {
		end++
	}
	return strconv.Atoi(name[start:end])
}

// MapFileFor derives the relative map output name from a split path.
func MapFileFor(splitPath string) (string, error) {
	i, err := Index(splitPath)
	if err != nil {
		return "", err
	}
	return Relative(MapsDir, MapName(i)), nil
}

// HashPrefix returns the hash part of a shuffle file name "<hash>-<host>.txt".
func HashPrefix(name string) (string, bool) {
	name = filepath.Base(name)
	i := strings.IndexByte(name, '-')
	if i <= 0 {
		return "", false
	}
	if _, err := strconv.ParseUint(name[:i], 10, 32); err != nil {
		return "", false
	}
	return name[:i], true
}
