package discovery

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"DistWordCount/internal/types"
)

// ReadRoster reads one machine per line. Blank lines are skipped and
// duplicates keep their first position.
func ReadRoster(path string) ([]types.Machine, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("file %s could not be opened: %w", path, err)
	}
	defer f.Close()

	var machines []types.Machine
	seen := make(map[types.Machine]bool)

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		m := types.Machine(strings.TrimSpace(scanner.Text()))
		if m == "" || seen[m] {
			continue
		}
		seen[m] = true
		machines = append(machines, m)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read roster %s: %w", path, err)
	}

	return machines, nil
}
