package main

import (
	"context"
	"flag"
	"fmt"
	"math"
	"os"
	"strconv"
	"time"

	"observex-wss/api"
	"observex-wss/collector"
	"observex-wss/config"
	"observex-wss/report"

	"github.com/cockroachdb/errors"
	"golang.org/x/exp/slog"
)

// Build info
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

const (
	exitFatal = 1
	exitUsage = 2
)

var errUsage = errors.New("usage")

// longest interval a time.Duration can hold
const maxSeconds = float64(math.MaxInt64) / float64(time.Second)

const usageText = `USAGE: observex-wss [-json] [-v] PID DURATION
       observex-wss [-json] [-v] -container NAME DURATION

Estimates the working set size of a process: the memory it references
during DURATION seconds (minimum 0.01), using idle page tracking.

COLUMNS:
  Est(s)   measurement window, corrected for the time spent setting and
           reading page flags
  Ref(MB)  memory referenced during the window, the working set size
`

type options struct {
	container string
	json      bool
	verbose   bool
	showVer   bool
}

func main() {
	var opts options
	fs := flag.NewFlagSet("observex-wss", flag.ContinueOnError)
	fs.StringVar(&opts.container, "container", "", "measure the init process of a Docker container")
	fs.BoolVar(&opts.json, "json", false, "print the report as JSON")
	fs.BoolVar(&opts.verbose, "v", false, "print phase timings and busiest mappings")
	fs.BoolVar(&opts.showVer, "version", false, "print version and exit")
	fs.Usage = func() {
		fmt.Fprint(fs.Output(), usageText)
		fs.PrintDefaults()
	}
	if err := fs.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		os.Exit(exitUsage)
	}

	if opts.showVer {
		fmt.Printf("observex-wss %s (%s) built on %s\n", version, commit, date)
		return
	}

	pid, interval, cfg, err := setup(opts, fs.Args())
	if err != nil {
		exit(slog.New(slog.NewTextHandler(os.Stderr, nil)), fs, err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.LogLevel}))
	logger.Debug("observex-wss starting", slog.String("Version", version), slog.String("Commit", commit), slog.String("Date", date))
	if !cfg.EnvFile {
		logger.Debug("No .env file found, using environment variables")
	}

	if err := run(logger, cfg, opts, pid, interval); err != nil {
		exit(logger, fs, err)
	}
}

func run(logger *slog.Logger, cfg *config.Config, opts options, pid int, interval time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if opts.container != "" {
		var err error
		pid, err = collector.ResolveContainerPID(ctx, opts.container)
		if err != nil {
			return err
		}
		logger.Debug("resolved container", slog.String("Container", opts.container), slog.Int("PID", pid))
	}

	caps := collector.DetectCapabilities(cfg.IdleBitmapPath)
	collector.LogCapabilities(logger, caps)

	proc, err := collector.DescribeProcess(ctx, cfg.ProcRoot, pid)
	if err != nil {
		return err
	}

	if cfg.Output == config.OutputTable {
		fmt.Printf("Watching PID %d page references during %.2f seconds...\n", pid, interval.Seconds())
	} else {
		logger.Info("watching page references", slog.Int("PID", pid), slog.Duration("Interval", interval))
	}

	tracker := collector.NewIdleBitmapController(logger, cfg.IdleBitmapPath)
	estimator := collector.NewEstimator(logger, tracker, collector.EstimatorOptions{
		ProcRoot:       cfg.ProcRoot,
		KernelBoundary: cfg.KernelBoundary,
		ChunkBytes:     cfg.ChunkBytes,
	})

	est, err := estimator.Run(pid, interval)
	if err != nil {
		return err
	}
	if est.RegionsFailed > 0 {
		logger.Warn("some regions could not be read", slog.Int("Failed", est.RegionsFailed))
	}

	payload := collector.NewPayload(est, proc, opts.container)

	var data []byte
	if cfg.Output == config.OutputJSON || cfg.APIURL != "" {
		if data, err = report.JSON(payload); err != nil {
			return errors.Wrap(err, "encode report")
		}
	}

	if cfg.Output == config.OutputJSON {
		if _, err := fmt.Fprintln(os.Stdout, string(data)); err != nil {
			return err
		}
	} else {
		if opts.verbose {
			if err := report.WriteVerbose(os.Stdout, est, proc); err != nil {
				return err
			}
		}
		if err := report.WriteTable(os.Stdout, est); err != nil {
			return err
		}
	}

	if cfg.APIURL != "" {
		sender := api.NewSender(logger, cfg.APIURL, cfg.APIKey)
		sendCtx, sendCancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer sendCancel()
		if err := sender.SendReport(sendCtx, data); err != nil {
			return errors.Wrap(err, "send report")
		}
	}

	return nil
}

// setup checks the arguments before config loading reads .env
func setup(opts options, args []string) (int, time.Duration, *config.Config, error) {
	pid, interval, err := parseArgs(opts, args)
	if err != nil {
		return 0, 0, nil, err
	}

	cfg, err := config.Load()
	if err != nil {
		return 0, 0, nil, errors.Wrap(err, "config")
	}
	if opts.json {
		cfg.Output = config.OutputJSON
	}
	return pid, interval, cfg, nil
}

// parseArgs validates the command line before anything touches the kernel
func parseArgs(opts options, args []string) (int, time.Duration, error) {
	want := 2
	if opts.container != "" {
		want = 1
	}
	if len(args) != want {
		return 0, 0, errors.Mark(errors.Newf("expected %d arguments, got %d", want, len(args)), errUsage)
	}

	pid := 0
	if opts.container == "" {
		var err error
		pid, err = strconv.Atoi(args[0])
		if err != nil || pid <= 0 || pid > math.MaxInt32 {
			return 0, 0, errors.Mark(errors.Newf("invalid PID %q", args[0]), errUsage)
		}
	}

	seconds, err := strconv.ParseFloat(args[len(args)-1], 64)
	if err != nil || math.IsNaN(seconds) || math.IsInf(seconds, 0) || seconds >= maxSeconds {
		return 0, 0, errors.Mark(errors.Newf("invalid duration %q", args[len(args)-1]), errUsage)
	}
	interval := time.Duration(seconds * float64(time.Second))
	if interval < collector.MinInterval {
		return 0, 0, errors.Mark(errors.Newf("interval too short: %gs is below %v", seconds, collector.MinInterval), collector.ErrIntervalTooShort)
	}

	return pid, interval, nil
}

func exit(logger *slog.Logger, fs *flag.FlagSet, err error) {
	code := exitFatal
	switch {
	case errors.Is(err, errUsage):
		code = exitUsage
		fmt.Fprintln(os.Stderr, err)
		fs.Usage()
	case errors.Is(err, collector.ErrIntervalTooShort):
		code = exitUsage
		fmt.Fprintln(os.Stderr, err)
	default:
		logger.Error("observex-wss failed", slog.Any("error", err))
	}

	if hints := errors.FlattenHints(err); hints != "" {
		fmt.Fprintf(os.Stderr, "HINT: %s\n", hints)
	}
	os.Exit(code)
}
