package coordinator

import (
	"bufio"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"DistWordCount/internal/remote"
	"DistWordCount/internal/types"
)

// retrieveChains copies every machine's reduces directory into
// results/<machine>. Directories left by an earlier run are cleared first.
func (o *Orchestrator) retrieveChains() ([]*remote.Chain, error) {
	t := o.opts.Transport
	var chains []*remote.Chain

	for _, a := range o.Assignments() {
		dst := o.opts.Local.MachineResults(string(a.Machine))
		if err := os.RemoveAll(dst); err != nil {
			return nil, fmt.Errorf("failed to clear %s: %w", dst, err)
		}
		if err := os.MkdirAll(dst, 0755); err != nil {
			return nil, fmt.Errorf("failed to create %s: %w", dst, err)
		}

		src := t.Location(string(a.Machine), o.opts.Remote.Reduces())
		c, err := o.chain(types.PhaseRetrieve, a.Machine, step{"copy reduces", t.Copy(true, dst, src)})
		if err != nil {
			return nil, err
		}
		chains = append(chains, c)
	}
	return chains, nil
}

// merge concatenates every retrieved reduce file into results/results.txt,
// machine by machine in manifest order.
func (o *Orchestrator) merge() error {
	if err := os.MkdirAll(o.opts.Local.Results(), 0755); err != nil {
		return fmt.Errorf("failed to create results directory: %w", err)
	}
	out, err := os.Create(o.opts.Local.Result())
	if err != nil {
		return fmt.Errorf("failed to create result file: %w", err)
	}
	w := bufio.NewWriter(out)

	lines := 0
	for _, a := range o.Assignments() {
		n, err := appendTree(w, o.opts.Local.MachineResults(string(a.Machine)))
		if err != nil {
			out.Close()
			return err
		}
		lines += n
	}

	if err := w.Flush(); err != nil {
		out.Close()
		return fmt.Errorf("failed to write result file: %w", err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("failed to close result file: %w", err)
	}
	o.logger.Info("Results merged: file=%s lines=%d", o.opts.Local.Result(), lines)
	return nil
}

// appendTree writes every line of every regular file under dir to w, files
// sorted by path.
func appendTree(w *bufio.Writer, dir string) (int, error) {
	var files []string
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.Type().IsRegular() {
			files = append(files, p)
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to list %s: %w", dir, err)
	}
	sort.Strings(files)

	lines := 0
	for _, p := range files {
		n, err := appendLines(w, p)
		if err != nil {
			return lines, err
		}
		lines += n
	}
	return lines, nil
}

func appendLines(w *bufio.Writer, path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)
	n := 0
	for scanner.Scan() {
		if len(scanner.Bytes()) == 0 {
			continue
		}
		w.Write(scanner.Bytes())
		w.WriteByte('\n')
		n++
	}
	if err := scanner.Err(); err != nil {
		return n, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return n, nil
}
