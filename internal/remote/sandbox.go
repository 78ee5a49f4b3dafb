package remote

import (
	"path/filepath"
)

const (
	// EnvHost carries the simulated host name into sandboxed processes.
	EnvHost = "WORDCOUNT_HOST"
	// EnvSandbox carries the sandbox root so workers can reach their peers.
	EnvSandbox = "WORDCOUNT_SANDBOX"
)

// Sandbox simulates a fleet on one machine: host h is the directory
// Root/h and remote path p on h is Root/h/p. A host is reachable iff its
// directory exists.
type Sandbox struct {
	Root string
}

func NewSandbox(root string) *Sandbox {
	return &Sandbox{Root: root}
}

func (s *Sandbox) hostDir(host string) string {
	return filepath.Join(s.Root, host)
}

func (s *Sandbox) env(host string) []string {
	return []string{EnvHost + "=" + host, EnvSandbox + "=" + s.Root}
}

func (s *Sandbox) Identify(host string) Command {
	return Command{
		Args: []string{"sh", "-c", `test -d "$1" && printf '%s\n' "$2"`, "sh", s.hostDir(host), host},
		Env:  s.env(host),
	}
}

func (s *Sandbox) Exec(host, dir, command string) Command {
	return Command{
		Args: []string{"sh", "-c", "cd " + Quote(s.Location(host, dir)) + " && " + command},
		Env:  s.env(host),
	}
}

func (s *Sandbox) Mkdir(host, dir string) Command {
	return Command{
		Args: []string{"sh", "-c", `test -d "$1" && mkdir -p "$2"`, "sh", s.hostDir(host), s.Location(host, dir)},
	}
}

func (s *Sandbox) Remove(host, path string) Command {
	return Command{
		Args: []string{"sh", "-c", `test -d "$1" && rm -rf "$2"`, "sh", s.hostDir(host), s.Location(host, path)},
	}
}

func (s *Sandbox) Copy(recursive bool, dst string, srcs ...string) Command {
	args := []string{"cp"}
	if recursive {
		args = append(args, "-r")
	}
	args = append(args, srcs...)
	args = append(args, dst)
	return Command{Args: args}
}

func (s *Sandbox) Location(host, path string) string {
	return filepath.Join(s.hostDir(host), path)
}
