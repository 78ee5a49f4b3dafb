package coordinator

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"

	"DistWordCount/internal/config"
	"DistWordCount/internal/discovery"
	"DistWordCount/internal/journal"
	"DistWordCount/internal/layout"
	"DistWordCount/internal/logger"
	"DistWordCount/internal/remote"
)

const (
	usage      = "Usage:\n\tDistWordCount [flags] <machines-file> <input-file>\n\tDistWordCount -journal <db> -history\n"
	probeUsage = "Usage:\n\twcprobe [flags] <machines-file>\n"
)

// NewTransport returns the transport selected by cfg.
func NewTransport(cfg config.Config) remote.Transport {
	if cfg.Transport == config.TransportSandbox {
		return remote.NewSandbox(cfg.SandboxRoot)
	}
	return remote.NewSSH(cfg.User, cfg.SSH, cfg.SCP)
}

// NewProber returns the liveness probe selected by cfg.
func NewProber(cfg config.Config, t remote.Transport, out io.Writer, lg *logger.Logger) discovery.Prober {
	if cfg.ProbeMode == config.ProbeGossip {
		g := discovery.NewGossipProbe(cfg.GossipPort, lg.Named("gossip"))
		g.Timeout = cfg.ProbeTimeout
		g.Workers = cfg.ProbeWorkers
		g.Verbose = cfg.Verbose
		g.Out = out
		return g
	}

	p := discovery.NewProbe(t, lg.Named("probe"))
	p.Timeout = cfg.ProbeTimeout
	p.Workers = cfg.ProbeWorkers
	p.Verbose = cfg.Verbose
	p.Out = out
	return p
}

// workerFlags forwards the settings a remote worker needs.
func workerFlags(cfg config.Config) []string {
	return []string{
		"-user", cfg.User,
		"-remote-dir", cfg.RemoteDir,
		"-ssh", cfg.SSH,
		"-scp", cfg.SCP,
		"-shuffle-timeout", cfg.ShuffleTimeout.String(),
		"-log-level", cfg.LogLevel,
	}
}

// parse returns a nil FlagSet when flag parsing failed, the flag package
// having already reported it.
func parse(name, use string, args []string, stderr io.Writer, extra func(*flag.FlagSet)) (config.Config, *flag.FlagSet, error) {
	cfg := config.Default()
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() {
		fmt.Fprint(stderr, use)
		fs.PrintDefaults()
	}
	cfg.RegisterFlags(fs)
	if extra != nil {
		extra(fs)
	}
	if err := fs.Parse(args); err != nil {
		return cfg, nil, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fs, err
	}
	return cfg, fs, nil
}

// Main runs the coordinator command line and returns the exit code.
func Main(args []string, stdout, stderr io.Writer) int {
	var history bool
	cfg, fs, err := parse("DistWordCount", usage, args, stderr, func(fs *flag.FlagSet) {
		fs.BoolVar(&history, "history", false, "Print the runs recorded in the journal and exit")
	})
	if err != nil {
		if fs != nil {
			fmt.Fprintf(stderr, "DistWordCount: %v\n", err)
		}
		return 1
	}

	if history {
		if err := printHistory(cfg.JournalPath, stdout); err != nil {
			fmt.Fprintf(stderr, "DistWordCount: %v\n", err)
			return 1
		}
		return 0
	}

	if fs.NArg() != 2 {
		fmt.Fprint(stderr, usage)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	lg := logger.NewWithOutput(cfg.LogLevel, stderr)
	result, err := run(ctx, cfg, fs.Arg(0), fs.Arg(1), stderr, lg)
	if err != nil {
		fmt.Fprintf(stderr, "DistWordCount: %v\n", err)
		return 1
	}

	if cfg.PrintResult {
		f, err := os.Open(result)
		if err != nil {
			fmt.Fprintf(stderr, "DistWordCount: %v\n", err)
			return 1
		}
		defer f.Close()
		if _, err := io.Copy(stdout, f); err != nil {
			fmt.Fprintf(stderr, "DistWordCount: failed to print results: %v\n", err)
			return 1
		}
	}
	return 0
}

func run(ctx context.Context, cfg config.Config, rosterPath, input string, stderr io.Writer, lg *logger.Logger) (string, error) {
	roster, err := discovery.ReadRoster(rosterPath)
	if err != nil {
		return "", err
	}
	if _, err := os.Stat(input); err != nil {
		return "", fmt.Errorf("failed to open input file: %w", err)
	}

	t := NewTransport(cfg)
	available, err := NewProber(cfg, t, stderr, lg).Run(ctx, roster)
	if err != nil {
		return "", err
	}
	lg.Info("Machines available: %d of %d", len(available), len(roster))

	opts := Options{
		Transport:     t,
		Local:         layout.New(cfg.LocalDir),
		Remote:        layout.New(cfg.RemoteDir),
		WorkerCommand: cfg.WorkerCommand,
		WorkerFlags:   workerFlags(cfg),
		StepTimeout:   cfg.StepTimeout,
		Splits:        cfg.Splits,
	}

	o := New(opts, lg.Named("coordinator"))

	if cfg.JournalPath != "" {
		j, err := journal.Open(cfg.JournalPath, lg.Named("journal"))
		if err != nil {
			return "", err
		}
		defer j.Close()
		if _, err := j.BeginRun(o.RunID()); err != nil {
			return "", err
		}
		o.opts.Journal = j
	}

	return o.Run(ctx, available, input)
}

func printHistory(path string, w io.Writer) error {
	if path == "" {
		return fmt.Errorf("-history requires -journal")
	}
	j, err := journal.Open(path, logger.New("ERROR"))
	if err != nil {
		return err
	}
	defer j.Close()

	state, err := journal.Load(j)
	if err != nil {
		return err
	}
	state.Print(w)
	return nil
}

// ProbeMain runs the connectivity-only tool: it reports the status of every
// machine of the roster and exits non-zero when none is available.
func ProbeMain(args []string, stdout, stderr io.Writer) int {
	cfg, fs, err := parse("wcprobe", probeUsage, args, stderr, nil)
	if err != nil {
		if fs != nil {
			fmt.Fprintf(stderr, "wcprobe: %v\n", err)
		}
		return 1
	}
	if fs.NArg() != 1 {
		fmt.Fprint(stderr, probeUsage)
		return 1
	}

	roster, err := discovery.ReadRoster(fs.Arg(0))
	if err != nil {
		fmt.Fprintf(stderr, "wcprobe: %v\n", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	cfg.Verbose = true
	lg := logger.NewWithOutput(cfg.LogLevel, stderr)
	available, err := NewProber(cfg, NewTransport(cfg), stdout, lg).Run(ctx, roster)
	if err != nil {
		fmt.Fprintf(stderr, "wcprobe: %v\n", err)
		return 1
	}

	fmt.Fprintf(stdout, "%d of %d machines available\n", len(available), len(roster))
	if len(available) == 0 {
		fmt.Fprintf(stderr, "wcprobe: %v\n", ErrNoMachines)
		return 1
	}
	return 0
}
