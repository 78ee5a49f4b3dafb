package worker

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"DistWordCount/internal/layout"
	"DistWordCount/internal/types"
)

// Reduce groups the received shuffle files by hash and writes, per hash,
// one "<word> <count>" line per distinct word to reduces/<hash>.txt.
// Counting per word keeps two words that share a hash apart. Outputs of an
// earlier run are removed first.
func (w *Worker) Reduce() ([]string, error) {
	if err := os.RemoveAll(w.Local.Reduces()); err != nil {
		return nil, fmt.Errorf("failed to clear reduces directory: %w", err)
	}
	if err := os.MkdirAll(w.Local.Reduces(), 0755); err != nil {
		return nil, fmt.Errorf("failed to create reduces directory: %w", err)
	}

	groups, err := w.receivedByHash()
	if err != nil {
		return nil, err
	}

	hashes := make([]string, 0, len(groups))
	for h := range groups {
		hashes = append(hashes, h)
	}
	sort.Strings(hashes)

	outputs := make([]string, 0, len(hashes))
	for _, h := range hashes {
		results, err := reduceFiles(groups[h])
		if err != nil {
			return nil, err
		}
		out := w.Local.ReduceFile(h)
		if err := writeResults(out, results); err != nil {
			return nil, err
		}
		outputs = append(outputs, out)
	}

	w.logger.Info("Reduce done: host=%s hashes=%d", w.Host, len(outputs))
	return outputs, nil
}

func (w *Worker) receivedByHash() (map[string][]string, error) {
	groups := make(map[string][]string)
	err := filepath.WalkDir(w.Local.Received(), func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		hash, ok := layout.HashPrefix(d.Name())
		if !ok {
			w.logger.Warn("Ignoring unexpected file in received shuffles: %s", p)
			return nil
		}
		groups[hash] = append(groups[hash], p)
		return nil
	})
	if errors.Is(err, fs.ErrNotExist) {
		w.logger.Warn("No shuffle files received: host=%s", w.Host)
		return groups, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list received shuffles: %w", err)
	}
	return groups, nil
}

// reduceFiles counts the well-formed "<word> <count>" lines of files per word.
func reduceFiles(files []string) ([]types.ReduceResult, error) {
	counts := make(map[string]int)
	for _, p := range files {
		if err := countLines(p, counts); err != nil {
			return nil, err
		}
	}

	results := make([]types.ReduceResult, 0, len(counts))
	for word, n := range counts {
		results = append(results, types.ReduceResult{Word: word, Count: n})
	}
	sort.Slice(results, func(i, j int) bool { return results[i].Word < results[j].Word })
	return results, nil
}

func countLines(path string, counts map[string]int) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open shuffle file: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), maxTokenSize)
	for scanner.Scan() {
		fields := strings.Split(scanner.Text(), " ")
		if len(fields) != 2 || fields[0] == "" {
			continue
		}
		counts[fields[0]]++
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read shuffle file %s: %w", path, err)
	}
	return nil
}

func writeResults(path string, results []types.ReduceResult) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create reduce output: %w", err)
	}
	bw := bufio.NewWriter(f)
	for _, r := range results {
		bw.WriteString(r.String() + "\n")
	}
	if err := bw.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("failed to write reduce output %s: %w", path, err)
	}
	return f.Close()
}
