package remote

import (
	"strings"
)

// Command is a local process invocation. Remote work is expressed as a
// local command (ssh, scp, cp, ...) built by a Transport.
type Command struct {
	Args []string
	Env  []string // appended to the current environment
}

func (c Command) String() string {
	quoted := make([]string, len(c.Args))
	for i, a := range c.Args {
		quoted[i] = Quote(a)
	}
	return strings.Join(quoted, " ")
}

// Transport turns "run on host" and "copy between machines" into local
// commands. Any pair of remote exec and remote copy primitives fits.
type Transport interface {
	// Identify prints the host's own name on a single line.
	Identify(host string) Command
	// Exec runs a shell command on host from inside dir.
	Exec(host, dir, command string) Command
	// Mkdir creates dir and its parents on host.
	Mkdir(host, dir string) Command
	// Remove deletes path on host, recursively; a missing path is not an
	// error.
	Remove(host, path string) Command
	// Copy copies srcs to dst; either side may be a Location.
	Copy(recursive bool, dst string, srcs ...string) Command
	// Location addresses path on host for Copy.
	Location(host, path string) string
}

// Quote makes s safe to embed in a POSIX shell command line.
func Quote(s string) string {
	if s == "" {
		return "''"
	}
	safe := true
	for _, r := range s {
		if !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || strings.ContainsRune("@%_-+=:,./", r)) {
			safe = false
			break
		}
	}
	if safe {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

// JoinArgs quotes and joins args into one shell command.
func JoinArgs(args ...string) string {
	return Command{Args: args}.String()
}
