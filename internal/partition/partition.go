package partition

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"

	"DistWordCount/internal/layout"
	"DistWordCount/internal/logger"
	"DistWordCount/internal/types"
)

// MinSplitSize is the smallest split, in bytes, the partitioner aims for.
const MinSplitSize = 1

// Partitioner cuts an input file into byte ranges that never end inside a
// token. Splits are written as S<i>.txt under the layout's splits directory.
type Partitioner struct {
	Layout       layout.Layout
	MinSplitSize int64
	logger       *logger.Logger
}

func New(l layout.Layout, lg *logger.Logger) *Partitioner {
	if lg == nil {
		lg = logger.New("INFO")
	}
	return &Partitioner{Layout: l, MinSplitSize: MinSplitSize, logger: lg}
}

// IsSpace reports the bytes a split may stop before.
func IsSpace(b byte) bool {
	switch b {
	case ' ', '\n', '\t', '\r', '\v', '\f':
		return true
	}
	return false
}

// Plan returns the split count and target split size for a file of size
// bytes cut into n pieces.
func Plan(size int64, n int, minSize int64) (int, int64) {
	if n < 1 {
		n = 1
	}
	if minSize < 1 {
		minSize = 1
	}
	if size == 0 {
		return 1, 0
	}

	approx := size / int64(n)
	if approx < minSize {
		n = int((size + minSize - 1) / minSize)
		approx = size / int64(n)
	}
	return n, approx
}

// Split writes at most n split files for path and returns them in order.
// Every split but the last holds at least the target size, then keeps going
// until the next byte is whitespace; the last one takes the remainder.
func (p *Partitioner) Split(path string, n int) ([]types.Split, error) {
	if err := os.MkdirAll(p.Layout.Splits(), 0755); err != nil {
		return nil, fmt.Errorf("failed to create splits directory: %w", err)
	}

	src, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open input: %w", err)
	}
	defer src.Close()

	info, err := src.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat input: %w", err)
	}

	count, approx := Plan(info.Size(), n, p.MinSplitSize)
	if count != n {
		p.logger.Info("Split count adjusted: requested=%d used=%d size=%d", n, count, info.Size())
	}

	reader := bufio.NewReader(src)
	var splits []types.Split

	for i := 0; i < count; i++ {
		last := i == count-1
		if i > 0 && !last {
			if _, err := reader.Peek(1); errors.Is(err, io.EOF) {
				break
			}
		}

		split, err := p.writeSplit(reader, i, approx, last)
		if err != nil {
			return nil, err
		}
		if split.Size == 0 && i > 0 {
			os.Remove(split.Path)
			break
		}
		splits = append(splits, split)
	}

	p.logger.Info("Input partitioned: file=%s size=%d splits=%d", path, info.Size(), len(splits))
	return splits, nil
}

func (p *Partitioner) writeSplit(r *bufio.Reader, i int, approx int64, last bool) (types.Split, error) {
	name := p.Layout.SplitFile(i)
	out, err := os.Create(name)
	if err != nil {
		return types.Split{}, fmt.Errorf("failed to create split %s: %w", name, err)
	}

	w := bufio.NewWriter(out)
	var written int64

	if last {
		written, err = io.Copy(w, r)
	} else {
		written, err = io.CopyN(w, r, approx)
		if errors.Is(err, io.EOF) {
			err = nil
		}
		if err == nil {
			var extra int64
			extra, err = copyToSpace(w, r)
			written += extra
		}
	}
	if err != nil {
		out.Close()
		return types.Split{}, fmt.Errorf("failed to write split %s: %w", name, err)
	}

	if err := w.Flush(); err != nil {
		out.Close()
		return types.Split{}, fmt.Errorf("failed to flush split %s: %w", name, err)
	}
	if err := out.Close(); err != nil {
		return types.Split{}, fmt.Errorf("failed to close split %s: %w", name, err)
	}

	p.logger.Debug("Split written: index=%d size=%d", i, written)
	return types.Split{Index: i, Path: name, Size: written}, nil
}

// copyToSpace copies bytes until the next unread byte is whitespace or the
// input ends.
func copyToSpace(w *bufio.Writer, r *bufio.Reader) (int64, error) {
	var n int64
	for {
		next, err := r.Peek(1)
		if errors.Is(err, io.EOF) {
			return n, nil
		}
		if err != nil {
			return n, err
		}
		if IsSpace(next[0]) {
			return n, nil
		}
		b, _ := r.ReadByte()
		if err := w.WriteByte(b); err != nil {
			return n, err
		}
		n++
	}
}
