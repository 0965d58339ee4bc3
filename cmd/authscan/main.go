// Command authscan analyzes an authentication log for suspicious login
// activity and writes a security report.
//
// Usage:
//
//	authscan [flags]
//
// Examples:
//
//	# Analyze the default log and write reports/report.txt
//	authscan
//
//	# Stricter thresholds, JSON to stdout
//	authscan -i /var/log/auth.log -t 3 -w 5 -format json -o -
//
//	# Keep a history of runs and publish metrics
//	authscan -sqlite ~/.local/state/authscan/runs.db -metrics-file /var/lib/node_exporter/authscan.prom
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"authscan/internal/analyzer"
	"authscan/internal/config"
	"authscan/internal/logging"
)

var (
	// Version information (set at build time)
	version   = "dev"
	commit    = "unknown"
	buildTime = "unknown"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

type options struct {
	configPath  string
	input       string
	output      string
	threshold   int
	window      int
	hours       string
	format      string
	timezone    string
	sqlitePath  string
	metricsFile string
	logLevel    string
	logFormat   string
	logFile     string
	validate    bool
	quiet       bool
	version     bool
	query       storeQuery
}

func newFlagSet(opts *options, stderr io.Writer) *flag.FlagSet {
	fs := flag.NewFlagSet("authscan", flag.ContinueOnError)
	fs.SetOutput(stderr)

	def := config.DefaultConfig()

	fs.StringVar(&opts.configPath, "config", "", "config file (TOML, JSON or YAML)")
	fs.StringVar(&opts.input, "input", def.Input.Path, "authentication log to analyze")
	fs.StringVar(&opts.input, "i", def.Input.Path, "shorthand for -input")
	fs.StringVar(&opts.output, "output", def.Report.Path, "report file, - for stdout")
	fs.StringVar(&opts.output, "o", def.Report.Path, "shorthand for -output")
	fs.IntVar(&opts.threshold, "threshold", def.Detection.FailedThreshold, "failed attempts that trigger an alert")
	fs.IntVar(&opts.threshold, "t", def.Detection.FailedThreshold, "shorthand for -threshold")
	fs.IntVar(&opts.window, "window", def.Detection.WindowMinutes, "detection window in minutes")
	fs.IntVar(&opts.window, "w", def.Detection.WindowMinutes, "shorthand for -window")
	fs.StringVar(&opts.hours, "hours", fmt.Sprintf("%d-%d", def.Detection.BusinessHourStart, def.Detection.BusinessHourEnd),
		"business hours as START-END, end exclusive")
	fs.StringVar(&opts.format, "format", def.Report.Format, "report format: text, json, markdown, yaml")
	fs.StringVar(&opts.timezone, "tz", def.Input.Timezone, "IANA zone of log timestamps")
	fs.StringVar(&opts.sqlitePath, "sqlite", "", "export the run to this SQLite database")
	fs.StringVar(&opts.metricsFile, "metrics-file", "", "write Prometheus metrics to this textfile")
	fs.StringVar(&opts.logLevel, "log-level", def.Logging.Level, "log level: debug, info, warn, error")
	fs.StringVar(&opts.logFormat, "log-format", def.Logging.Format, "log format: text, json")
	fs.StringVar(&opts.logFile, "log-file", "", "also write logs to this file")
	fs.BoolVar(&opts.validate, "validate", false, "check JSON reports against the report schema")
	fs.BoolVar(&opts.quiet, "quiet", false, "only log errors and skip the summary line")
	fs.BoolVar(&opts.version, "version", false, "print version and exit")
	fs.StringVar(&opts.query.historyUser, "history", "", "print stored event history for a user from -sqlite and exit")
	fs.IntVar(&opts.query.runsLimit, "runs", 0, "list the N most recent runs stored in -sqlite and exit (0 lists all)")
	fs.StringVar(&opts.query.deleteRun, "delete-run", "", "delete a stored run from -sqlite and exit")

	fs.Usage = func() {
		fmt.Fprintf(stderr, "authscan - Detect suspicious activity in authentication logs\n\n")
		fmt.Fprintf(stderr, "Usage: authscan [flags]\n\n")
		fmt.Fprintf(stderr, "Log lines look like:\n")
		fmt.Fprintf(stderr, "  2024-03-15 10:00:00 | alice | 192.168.1.20 | SUCCESS\n\n")
		fmt.Fprintf(stderr, "Flags:\n")
		fs.PrintDefaults()
		fmt.Fprintf(stderr, "\nStored runs:\n")
		fmt.Fprintf(stderr, "  authscan -sqlite runs.db -runs 10\n")
		fmt.Fprintf(stderr, "  authscan -sqlite runs.db -history alice\n")
		fmt.Fprintf(stderr, "\nSettings are applied in order: defaults, -config file, AUTHSCAN_* environment, flags.\n")
		fmt.Fprintf(stderr, "\nExit codes:\n")
		fmt.Fprintf(stderr, "  0  success (suspicious events are not an error)\n")
		fmt.Fprintf(stderr, "  1  invalid arguments or configuration\n")
		fmt.Fprintf(stderr, "  2  input log cannot be read\n")
		fmt.Fprintf(stderr, "  3  report cannot be written\n")
		fmt.Fprintf(stderr, "  4  export failed\n")
	}
	return fs
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	var opts options
	fs := newFlagSet(&opts, stderr)
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return analyzer.ExitOK
		}
		return analyzer.ExitConfig
	}
	if fs.NArg() > 0 {
		fmt.Fprintf(stderr, "Error: unexpected arguments: %v\n\n", fs.Args())
		fs.Usage()
		return analyzer.ExitConfig
	}

	if opts.version {
		fmt.Fprintf(stdout, "authscan %s (commit: %s, built: %s)\n", version, commit, buildTime)
		return analyzer.ExitOK
	}

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		fmt.Fprintf(stderr, "Error: load config: %v\n", err)
		return analyzer.ExitConfig
	}
	if err := applyFlags(cfg, fs, &opts); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return analyzer.ExitConfig
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(stderr, "Error: invalid configuration: %v\n", err)
		return analyzer.ExitConfig
	}

	if n := opts.query.active(); n > 0 {
		if n > 1 {
			fmt.Fprintf(stderr, "Error: -history, -runs and -delete-run are mutually exclusive\n")
			return analyzer.ExitConfig
		}
		loc, err := cfg.Location()
		if err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return analyzer.ExitConfig
		}
		return runStoreQuery(ctx, opts.query, cfg.Export.SQLitePath, loc, stdout, stderr)
	}

	logger, err := newLogger(cfg, opts.quiet, stderr)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return analyzer.ExitConfig
	}
	defer logger.Close()

	a, err := analyzer.New(analyzer.Options{
		Config: cfg,
		Logger: logger,
		Stdout: stdout,
	})
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return analyzer.ExitCode(err)
	}

	out, err := a.Run(ctx)
	if err != nil {
		logger.Error("analysis failed", "error", err)
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return analyzer.ExitCode(err)
	}

	if !opts.quiet && cfg.Report.Path != "-" {
		fmt.Fprintf(stderr, "Analysis complete: %d records, %d invalid lines, %d suspicious events. Report: %s\n",
			len(out.Input.Records), len(out.Input.Invalid), len(out.Events), cfg.Report.Path)
	}
	return analyzer.ExitOK
}

// applyFlags copies explicitly set flags over cfg.
func applyFlags(cfg *config.Config, fs *flag.FlagSet, opts *options) error {
	var err error
	fs.Visit(func(f *flag.Flag) {
		if err != nil {
			return
		}
		switch f.Name {
		case "input", "i":
			cfg.Input.Path = opts.input
		case "output", "o":
			cfg.Report.Path = opts.output
		case "threshold", "t":
			cfg.Detection.FailedThreshold = opts.threshold
		case "window", "w":
			cfg.Detection.WindowMinutes = opts.window
		case "hours":
			var start, end int
			start, end, err = config.ParseBusinessHours(opts.hours)
			cfg.Detection.BusinessHourStart, cfg.Detection.BusinessHourEnd = start, end
		case "format":
			cfg.Report.Format = opts.format
		case "tz":
			cfg.Input.Timezone = opts.timezone
		case "sqlite":
			cfg.Export.SQLitePath = opts.sqlitePath
		case "metrics-file":
			cfg.Export.MetricsFile = opts.metricsFile
		case "log-level":
			cfg.Logging.Level = opts.logLevel
		case "log-format":
			cfg.Logging.Format = opts.logFormat
		case "log-file":
			cfg.Logging.FilePath = opts.logFile
			cfg.Logging.Output = "both"
		case "validate":
			cfg.Report.Validate = opts.validate
		case "runs":
			opts.query.listRuns = true
		}
	})
	return err
}

func newLogger(cfg *config.Config, quiet bool, stderr io.Writer) (*logging.Logger, error) {
	level, err := logging.ParseLevel(cfg.Logging.Level)
	if err != nil {
		return nil, err
	}
	if quiet {
		level = logging.LevelError
	}
	format, err := logging.ParseFormat(cfg.Logging.Format)
	if err != nil {
		return nil, err
	}

	lc := logging.DefaultConfig()
	lc.Level = level
	lc.Format = format
	lc.Output = cfg.Logging.Output
	lc.FilePath = cfg.Logging.FilePath
	if cfg.Logging.Output == "stderr" {
		lc.Writer = stderr
	}
	return logging.New(lc)
}
