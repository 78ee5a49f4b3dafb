package worker

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"

	"DistWordCount/internal/config"
	"DistWordCount/internal/layout"
	"DistWordCount/internal/logger"
	"DistWordCount/internal/remote"
)

const usage = "Usage:\n\twcworker [flags] <mode>\n\twcworker [flags] <mode> <file-name>...\n" +
	"modes: 0 = map <split>, 1 = shuffle <map-file>..., 2 = reduce\n"

// Main runs one worker invocation and returns the process exit code. The
// worker runs inside its working directory; its identity comes from
// WORDCOUNT_HOST or the hostname.
func Main(args []string, stderr io.Writer) int {
	cfg := config.Default()
	fs := flag.NewFlagSet("wcworker", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() {
		fmt.Fprint(stderr, usage)
		fs.PrintDefaults()
	}
	cfg.RegisterFlags(fs)
	if err := fs.Parse(args); err != nil {
		return 1
	}

	w, err := fromEnv(cfg, stderr)
	if err != nil {
		fmt.Fprintf(stderr, "wcworker: %v\n", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := w.Dispatch(ctx, fs.Args()); err != nil {
		if errors.Is(err, ErrUsage) {
			fmt.Fprint(stderr, usage)
		}
		fmt.Fprintf(stderr, "wcworker: %v\n", err)
		return 1
	}
	return 0
}

func fromEnv(cfg config.Config, stderr io.Writer) (*Worker, error) {
	host := os.Getenv(remote.EnvHost)
	if host == "" {
		h, err := os.Hostname()
		if err != nil {
			return nil, fmt.Errorf("failed to get hostname: %w", err)
		}
		host = h
	}

	wd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("failed to get working directory: %w", err)
	}

	var t remote.Transport
	if root := os.Getenv(remote.EnvSandbox); root != "" {
		t = remote.NewSandbox(root)
	} else {
		t = remote.NewSSH(cfg.User, cfg.SSH, cfg.SCP)
	}

	lg := logger.NewWithOutput(cfg.LogLevel, stderr).Named("worker@" + host)
	w := New(host, layout.New(wd), layout.New(cfg.RemoteDir), t, lg)
	w.PushTimeout = cfg.ShuffleTimeout
	return w, nil
}

// Dispatch runs the mode named by args[0] with the remaining arguments.
func (w *Worker) Dispatch(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("%w: missing mode", ErrUsage)
	}
	mode, err := ParseMode(args[0])
	if err != nil {
		return err
	}
	files := args[1:]

	switch mode {
	case ModeMap:
		if len(files) != 1 {
			return fmt.Errorf("%w: map takes exactly one split file", ErrUsage)
		}
		_, err := w.Map(files[0])
		return err
	case ModeShuffle:
		if len(files) == 0 {
			return fmt.Errorf("%w: shuffle takes at least one map file", ErrUsage)
		}
		return w.Shuffle(ctx, files...)
	default:
		if len(files) != 0 {
			return fmt.Errorf("%w: reduce takes no argument", ErrUsage)
		}
		_, err := w.Reduce()
		return err
	}
}
