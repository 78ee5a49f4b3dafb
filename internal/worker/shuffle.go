package worker

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"DistWordCount/internal/discovery"
	"DistWordCount/internal/remote"
	"DistWordCount/internal/types"
)

// bucket is an open shuffle file of one hash.
type bucket struct {
	hash uint32
	path string
	file *os.File
	w    *bufio.Writer
}

// Shuffle routes every map line to its bucket file, keeps the buckets this
// machine owns and pushes the others to their destination machines.
func (w *Worker) Shuffle(ctx context.Context, mapFiles ...string) error {
	machines, err := discovery.ReadRoster(w.Local.Machines())
	if err != nil {
		return fmt.Errorf("failed to read used machines: %w", err)
	}
	rank := -1
	for i, m := range machines {
		if string(m) == w.Host {
			rank = i
			break
		}
	}
	if rank < 0 {
		return fmt.Errorf("host %s is not in the used machines manifest", w.Host)
	}

	buckets, err := w.bucketize(mapFiles)
	if err != nil {
		return err
	}

	outgoing := make([][]string, len(machines))
	for _, b := range buckets {
		dest := Destination(b.hash, len(machines))
		outgoing[dest] = append(outgoing[dest], b.path)
	}

	if err := w.keep(outgoing[rank]); err != nil {
		return err
	}

	w.logger.Info("Shuffle prepared: host=%s rank=%d machines=%d buckets=%d kept=%d",
		w.Host, rank, len(machines), len(buckets), len(outgoing[rank]))

	return w.push(ctx, machines, rank, outgoing)
}

// bucketize appends each map line to shuffles/<hash>-<host>.txt.
func (w *Worker) bucketize(mapFiles []string) ([]*bucket, error) {
	if err := os.MkdirAll(w.Local.Shuffles(), 0755); err != nil {
		return nil, fmt.Errorf("failed to create shuffles directory: %w", err)
	}
	if err := w.clearOwnBuckets(); err != nil {
		return nil, err
	}

	open := make(map[uint32]*bucket)
	closeAll := func() {
		for _, b := range open {
			b.file.Close()
		}
	}

	for _, name := range mapFiles {
		if err := w.bucketizeFile(w.resolve(name), open); err != nil {
			closeAll()
			return nil, err
		}
	}

	buckets := make([]*bucket, 0, len(open))
	for _, b := range open {
		buckets = append(buckets, b)
	}
	sort.Slice(buckets, func(i, j int) bool { return buckets[i].hash < buckets[j].hash })

	for _, b := range buckets {
		if err := b.w.Flush(); err != nil {
			closeAll()
			return nil, fmt.Errorf("failed to write shuffle file %s: %w", b.path, err)
		}
		if err := b.file.Close(); err != nil {
			return nil, fmt.Errorf("failed to close shuffle file %s: %w", b.path, err)
		}
	}
	return buckets, nil
}

func (w *Worker) bucketizeFile(path string, open map[uint32]*bucket) error {
	in, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open map output: %w", err)
	}
	defer in.Close()

	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 64*1024), maxTokenSize)
	for scanner.Scan() {
		line := scanner.Text()
		word, _, _ := strings.Cut(line, " ")
		if word == "" {
			continue
		}

		hash := Hash(word)
		b, ok := open[hash]
		if !ok {
			p := w.Local.ShuffleFile(hash, w.Host)
			f, err := os.OpenFile(p, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
			if err != nil {
				return fmt.Errorf("failed to open shuffle file: %w", err)
			}
			b = &bucket{hash: hash, path: p, file: f, w: bufio.NewWriter(f)}
			open[hash] = b
		}
		if _, err := b.w.WriteString(line + "\n"); err != nil {
			return fmt.Errorf("failed to write shuffle file %s: %w", b.path, err)
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read map output %s: %w", path, err)
	}
	return nil
}

// clearOwnBuckets drops bucket files left by an earlier run of this host.
func (w *Worker) clearOwnBuckets() error {
	stale, err := filepath.Glob(filepath.Join(w.Local.Shuffles(), "*-"+w.Host+".txt"))
	if err != nil {
		return fmt.Errorf("failed to list shuffle files: %w", err)
	}
	for _, p := range stale {
		if err := os.Remove(p); err != nil {
			return fmt.Errorf("failed to remove stale shuffle file: %w", err)
		}
	}
	return nil
}

// keep moves the buckets owned by this machine into its received directory.
func (w *Worker) keep(files []string) error {
	if err := os.MkdirAll(w.Local.Received(), 0755); err != nil {
		return fmt.Errorf("failed to create received shuffles directory: %w", err)
	}
	for _, p := range files {
		dst := filepath.Join(w.Local.Received(), filepath.Base(p))
		if err := os.Rename(p, dst); err != nil {
			return fmt.Errorf("failed to keep shuffle file: %w", err)
		}
	}
	return nil
}

// push sends one chain per other machine: create its received directory,
// then copy every bucket it owns in a single copy. Every chain is built
// before any of them starts.
func (w *Worker) push(ctx context.Context, machines []types.Machine, rank int, outgoing [][]string) error {
	dir := w.Peer.Received()
	chains := make([]*remote.Chain, len(machines))

	for i, m := range machines {
		if i == rank {
			continue
		}

		chain := remote.NewChain(fmt.Sprintf("shuffle-%s-%s", w.Host, m), w.logger)
		chain.OnComplete = func(r remote.Result) {
			if !r.OK() {
				w.logger.Warn("Shuffle push step failed: dest=%s step=%s timed_out=%v err=%v output=%s",
					m, r.Step, r.TimedOut, r.Err, strings.TrimSpace(string(r.Output)))
			}
		}
		if err := chain.Add("mkdir", w.Transport.Mkdir(string(m), dir), w.PushTimeout); err != nil {
			return fmt.Errorf("failed to build shuffle push to %s: %w", m, err)
		}
		if files := outgoing[i]; len(files) > 0 {
			if err := chain.Add("copy", w.Transport.Copy(false, w.Transport.Location(string(m), dir)+"/", files...), w.PushTimeout); err != nil {
				return fmt.Errorf("failed to build shuffle push to %s: %w", m, err)
			}
		}
		chains[i] = chain
	}

	var wg sync.WaitGroup
	errs := make([]error, len(machines))
	for i, chain := range chains {
		if chain == nil {
			continue
		}
		wg.Add(1)
		go func(i int, chain *remote.Chain) {
			defer wg.Done()
			errs[i] = chain.Run(ctx)
		}(i, chain)
	}

	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return fmt.Errorf("failed to push shuffle files: %w", err)
		}
	}
	w.logger.Info("Shuffle done: host=%s destinations=%d", w.Host, len(machines)-1)
	return nil
}
