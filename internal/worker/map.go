package worker

import (
	"bufio"
	"fmt"
	"os"

	"DistWordCount/internal/layout"
	"DistWordCount/internal/types"
)

const maxTokenSize = 16 * 1024 * 1024

// Map tokenizes a split on whitespace and writes one "<token> 1" line per
// token to maps/UM<i>.txt, i being the split's numeric suffix.
func (w *Worker) Map(splitPath string) (string, error) {
	i, err := layout.Index(splitPath)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUsage, err)
	}

	if err := os.MkdirAll(w.Local.Maps(), 0755); err != nil {
		return "", fmt.Errorf("failed to create maps directory: %w", err)
	}

	in, err := os.Open(w.resolve(splitPath))
	if err != nil {
		return "", fmt.Errorf("failed to open split: %w", err)
	}
	defer in.Close()

	outPath := w.Local.MapFile(i)
	out, err := os.Create(outPath)
	if err != nil {
		return "", fmt.Errorf("failed to create map output: %w", err)
	}
	defer out.Close()

	bw := bufio.NewWriter(out)
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 64*1024), maxTokenSize)
	scanner.Split(bufio.ScanWords)

	tokens := 0
	for scanner.Scan() {
		rec := types.MapRecord{Word: scanner.Text(), Count: 1}
		if _, err := bw.WriteString(rec.String() + "\n"); err != nil {
			return "", fmt.Errorf("failed to write map output: %w", err)
		}
		tokens++
	}
	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("failed to read split: %w", err)
	}
	if err := bw.Flush(); err != nil {
		return "", fmt.Errorf("failed to write map output: %w", err)
	}
	if err := out.Close(); err != nil {
		return "", fmt.Errorf("failed to close map output: %w", err)
	}

	w.logger.Info("Map done: host=%s split=%s tokens=%d output=%s", w.Host, splitPath, tokens, outPath)
	return outPath, nil
}
