package journal

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	raft "github.com/hashicorp/raft"
	raftboltdb "github.com/hashicorp/raft-boltdb/v2"

	"DistWordCount/internal/logger"
	"DistWordCount/internal/types"
)

// Event is what happened to a phase.
type Event string

const (
	EventStart  Event = "start"
	EventFinish Event = "finish"
	EventFail   Event = "fail"
)

var (
	keyRunSeq     = []byte("run_seq")
	keyCurrentRun = []byte("current_run")
)

// Entry is one journal record.
type Entry struct {
	RunID     string          `json:"run_id"`
	Phase     types.Phase     `json:"phase"`
	Event     Event           `json:"event"`
	Machines  []types.Machine `json:"machines,omitempty"`
	Elapsed   time.Duration   `json:"elapsed,omitempty"`
	Error     string          `json:"error,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// Journal appends phase transitions of every run to a BoltDB log. Entries
// are raft log records whose term is the run sequence number.
type Journal struct {
	mu     sync.Mutex
	store  *raftboltdb.BoltStore
	logs   raft.LogStore
	stable raft.StableStore
	seq    uint64
	runID  string
	logger *logger.Logger
}

// Open opens or creates the journal database at path.
func Open(path string, lg *logger.Logger) (*Journal, error) {
	if lg == nil {
		lg = logger.New("INFO")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create journal directory: %w", err)
	}

	store, err := raftboltdb.NewBoltStore(path)
	if err != nil {
		lg.Error("Failed to open journal: %v", err)
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}

	return &Journal{
		store:  store,
		logs:   store,
		stable: store,
		logger: lg,
	}, nil
}

// BeginRun allocates the next run sequence number for runID.
func (j *Journal) BeginRun(runID string) (uint64, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	seq, err := j.stable.GetUint64(keyRunSeq)
	if err != nil && !isNotFound(err) {
		return 0, fmt.Errorf("failed to read run sequence: %w", err)
	}
	seq++

	if err := j.stable.SetUint64(keyRunSeq, seq); err != nil {
		return 0, fmt.Errorf("failed to store run sequence: %w", err)
	}
	if err := j.stable.Set(keyCurrentRun, []byte(runID)); err != nil {
		return 0, fmt.Errorf("failed to store run id: %w", err)
	}

	j.seq = seq
	j.runID = runID
	j.logger.Debug("Journal run started: run_id=%s seq=%d", runID, seq)
	return seq, nil
}

// CurrentRun returns the id of the latest run begun in this database.
func (j *Journal) CurrentRun() (string, error) {
	v, err := j.stable.Get(keyCurrentRun)
	if isNotFound(err) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read current run: %w", err)
	}
	return string(v), nil
}

// Record appends e to the log.
func (j *Journal) Record(e Entry) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if e.RunID == "" {
		e.RunID = j.runID
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}

	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to marshal entry: %w", err)
	}

	last, err := j.logs.LastIndex()
	if err != nil {
		return fmt.Errorf("failed to read last index: %w", err)
	}

	log := &raft.Log{
		Index:      last + 1,
		Term:       j.seq,
		Type:       raft.LogCommand,
		Data:       data,
		AppendedAt: e.Timestamp,
	}
	if err := j.logs.StoreLog(log); err != nil {
		return fmt.Errorf("failed to append entry: %w", err)
	}
	return nil
}

// Replay feeds every entry, oldest first, with its run sequence number.
func (j *Journal) Replay(fn func(seq uint64, e Entry) error) error {
	first, err := j.logs.FirstIndex()
	if err != nil {
		return fmt.Errorf("failed to read first index: %w", err)
	}
	last, err := j.logs.LastIndex()
	if err != nil {
		return fmt.Errorf("failed to read last index: %w", err)
	}
	if last == 0 {
		return nil
	}

	for i := first; i <= last; i++ {
		var log raft.Log
		if err := j.logs.GetLog(i, &log); err != nil {
			if errors.Is(err, raft.ErrLogNotFound) {
				continue
			}
			return fmt.Errorf("failed to read entry %d: %w", i, err)
		}

		var e Entry
		if err := json.Unmarshal(log.Data, &e); err != nil {
			j.logger.Warn("Skipping unreadable journal entry: index=%d err=%v", i, err)
			continue
		}
		if err := fn(log.Term, e); err != nil {
			return err
		}
	}
	return nil
}

// Close closes the database.
func (j *Journal) Close() error {
	return j.store.Close()
}

func isNotFound(err error) bool {
	return errors.Is(err, raftboltdb.ErrKeyNotFound)
}
