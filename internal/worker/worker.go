package worker

import (
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"time"

	"DistWordCount/internal/layout"
	"DistWordCount/internal/logger"
	"DistWordCount/internal/remote"
)

// ErrUsage marks invalid worker invocations.
var ErrUsage = errors.New("usage")

// Mode selects the pipeline step a worker invocation runs.
type Mode int

const (
	ModeMap     Mode = 0
	ModeShuffle Mode = 1
	ModeReduce  Mode = 2
)

func (m Mode) String() string {
	switch m {
	case ModeMap:
		return "MAP"
	case ModeShuffle:
		return "SHUFFLE"
	case ModeReduce:
		return "REDUCE"
	default:
		return "Mode(" + strconv.Itoa(int(m)) + ")"
	}
}

// ParseMode parses the numeric mode argument.
func ParseMode(s string) (Mode, error) {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("%w: illegal argument %q for mode", ErrUsage, s)
	}
	switch m := Mode(n); m {
	case ModeMap, ModeShuffle, ModeReduce:
		return m, nil
	default:
		return 0, fmt.Errorf("%w: unexpected mode %d", ErrUsage, n)
	}
}

// Worker runs the per-machine steps of the pipeline. Local is this
// machine's working tree; Peer is the same tree as addressed on the other
// machines (they only differ under the sandbox transport).
type Worker struct {
	Host        string
	Local       layout.Layout
	Peer        layout.Layout
	Transport   remote.Transport
	PushTimeout time.Duration
	logger      *logger.Logger
}

func New(host string, local, peer layout.Layout, t remote.Transport, lg *logger.Logger) *Worker {
	if lg == nil {
		lg = logger.New("INFO")
	}
	return &Worker{
		Host:        host,
		Local:       local,
		Peer:        peer,
		Transport:   t,
		PushTimeout: 4 * time.Second,
		logger:      lg,
	}
}

// resolve interprets relative paths against the local working tree.
func (w *Worker) resolve(path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(w.Local.Base, path)
}
