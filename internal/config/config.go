package config

import (
	"flag"
	"fmt"
	"os"
	"os/user"
	"path/filepath"
	"time"
)

const (
	TransportSSH     = "ssh"
	TransportSandbox = "sandbox"

	ProbeShell  = "shell"
	ProbeGossip = "gossip"
)

// Config holds every knob shared by the coordinator, the worker and the
// connectivity tool.
type Config struct {
	User      string
	LocalDir  string // base directory on the coordinator
	RemoteDir string // base directory on every worker machine

	Transport   string // "ssh" or "sandbox"
	SandboxRoot string
	SSH         string
	SCP         string

	WorkerCommand string

	ProbeMode      string
	ProbeTimeout   time.Duration
	ProbeWorkers   int
	GossipPort     int
	StepTimeout    time.Duration
	ShuffleTimeout time.Duration

	Splits      int
	Verbose     bool
	PrintResult bool
	LogLevel    string
	JournalPath string
}

// CurrentUser returns the login name used for remote paths.
func CurrentUser() string {
	if u := os.Getenv("USER"); u != "" {
		return u
	}
	if u, err := user.Current(); err == nil {
		return u.Username
	}
	return "wordcount"
}

// Default returns the configuration used when no flag is given.
func Default() Config {
	name := CurrentUser()
	base := filepath.Join("/tmp", name)
	return Config{
		User:           name,
		LocalDir:       base,
		RemoteDir:      base,
		Transport:      TransportSSH,
		SSH:            "ssh",
		SCP:            "scp",
		WorkerCommand:  "./wcworker",
		ProbeMode:      ProbeShell,
		ProbeTimeout:   4 * time.Second,
		ProbeWorkers:   10,
		GossipPort:     7946,
		ShuffleTimeout: 4 * time.Second,
		LogLevel:       "INFO",
	}
}

// RegisterFlags binds the configuration to fs.
func (c *Config) RegisterFlags(fs *flag.FlagSet) {
	fs.StringVar(&c.User, "user", c.User, "Remote login name")
	fs.StringVar(&c.LocalDir, "local-dir", c.LocalDir, "Working directory on this machine")
	fs.StringVar(&c.RemoteDir, "remote-dir", c.RemoteDir, "Working directory on every worker machine")
	fs.StringVar(&c.Transport, "transport", c.Transport, "Remote transport: 'ssh' or 'sandbox'")
	fs.StringVar(&c.SandboxRoot, "sandbox", c.SandboxRoot, "Root directory holding one sub-directory per host (sandbox transport)")
	fs.StringVar(&c.SSH, "ssh", c.SSH, "ssh binary")
	fs.StringVar(&c.SCP, "scp", c.SCP, "scp binary")
	fs.StringVar(&c.WorkerCommand, "worker", c.WorkerCommand, "Worker command, run inside the remote directory")
	fs.StringVar(&c.ProbeMode, "probe", c.ProbeMode, "Liveness probe: 'shell' or 'gossip'")
	fs.DurationVar(&c.ProbeTimeout, "probe-timeout", c.ProbeTimeout, "Timeout of one liveness probe")
	fs.IntVar(&c.ProbeWorkers, "probe-workers", c.ProbeWorkers, "Concurrent liveness probes")
	fs.IntVar(&c.GossipPort, "gossip-port", c.GossipPort, "Port of the fleet gossip agents")
	fs.DurationVar(&c.StepTimeout, "step-timeout", c.StepTimeout, "Timeout of one pipeline step, 0 waits forever")
	fs.DurationVar(&c.ShuffleTimeout, "shuffle-timeout", c.ShuffleTimeout, "Timeout of one shuffle push")
	fs.IntVar(&c.Splits, "splits", c.Splits, "Number of splits, 0 uses one per available machine")
	fs.BoolVar(&c.Verbose, "v", c.Verbose, "Report the status of every machine")
	fs.BoolVar(&c.PrintResult, "print", c.PrintResult, "Print the merged result file when done")
	fs.StringVar(&c.LogLevel, "log-level", c.LogLevel, "DEBUG, INFO, WARN or ERROR")
	fs.StringVar(&c.JournalPath, "journal", c.JournalPath, "Run journal database, empty disables it")
}

// Validate checks values that would otherwise fail deep inside a run.
func (c *Config) Validate() error {
	switch c.Transport {
	case TransportSSH:
	case TransportSandbox:
		if c.SandboxRoot == "" {
			return fmt.Errorf("sandbox transport requires -sandbox")
		}
	default:
		return fmt.Errorf("unknown transport: %s", c.Transport)
	}

	switch c.ProbeMode {
	case ProbeShell, ProbeGossip:
	default:
		return fmt.Errorf("unknown probe mode: %s", c.ProbeMode)
	}

	if c.ProbeWorkers < 1 {
		return fmt.Errorf("probe-workers must be at least 1, got %d", c.ProbeWorkers)
	}
	if c.Splits < 0 {
		return fmt.Errorf("splits must not be negative, got %d", c.Splits)
	}
	if !filepath.IsAbs(c.RemoteDir) {
		return fmt.Errorf("remote-dir must be absolute: %s", c.RemoteDir)
	}
	return nil
}
