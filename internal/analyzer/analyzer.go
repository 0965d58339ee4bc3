// Package analyzer runs one batch analysis: read the log, detect
// suspicious activity, write the report and the optional exports.
package analyzer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/uuid"

	"authscan/internal/authlog"
	"authscan/internal/config"
	"authscan/internal/detect"
	"authscan/internal/logging"
	"authscan/internal/metrics"
	"authscan/internal/report"
	"authscan/internal/schemavalidation"
	"authscan/internal/store"
)

// Process exit codes.
const (
	ExitOK     = 0
	ExitConfig = 1
	ExitInput  = 2
	ExitReport = 3
	ExitExport = 4
)

// ExitError pairs a failure with the exit code the CLI should return.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	return e.Err.Error()
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

func exitErr(code int, format string, args ...any) *ExitError {
	return &ExitError{Code: code, Err: fmt.Errorf(format, args...)}
}

// ExitCode maps err to a process exit code. Errors that carry no code
// are treated as configuration errors.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	var ee *ExitError
	if errors.As(err, &ee) {
		return ee.Code
	}
	return ExitConfig
}

// Options configures an Analyzer.
type Options struct {
	Config *config.Config
	Logger *logging.Logger

	// Clock stamps the report and the run. Defaults to time.Now.
	Clock func() time.Time

	// RunID identifies the run. A random UUID is used when empty.
	RunID string

	// Stdout receives the report when the report path is "-".
	Stdout io.Writer
}

// Analyzer executes runs for one configuration.
type Analyzer struct {
	cfg       *config.Config
	detectCfg detect.Config
	format    report.Format
	log       *logging.Logger
	clock     func() time.Time
	runID     string
	stdout    io.Writer
}

// Outcome summarizes a completed run.
type Outcome struct {
	RunID    string
	Input    *authlog.Result
	Events   []detect.Event
	Document *report.Document
	Metrics  *metrics.RunMetrics
	Duration time.Duration
}

// New validates opts.Config and prepares an Analyzer.
func New(opts Options) (*Analyzer, error) {
	if opts.Config == nil {
		return nil, exitErr(ExitConfig, "no configuration")
	}
	if err := opts.Config.Validate(); err != nil {
		return nil, &ExitError{Code: ExitConfig, Err: err}
	}

	detectCfg, err := opts.Config.DetectConfig()
	if err != nil {
		return nil, &ExitError{Code: ExitConfig, Err: err}
	}
	format, err := report.ParseFormat(opts.Config.Report.Format)
	if err != nil {
		return nil, &ExitError{Code: ExitConfig, Err: err}
	}

	a := &Analyzer{
		cfg:       opts.Config,
		detectCfg: detectCfg,
		format:    format,
		log:       opts.Logger,
		clock:     opts.Clock,
		runID:     opts.RunID,
		stdout:    opts.Stdout,
	}
	if a.log == nil {
		a.log = logging.Discard()
	}
	if a.clock == nil {
		a.clock = time.Now
	}
	if a.runID == "" {
		a.runID = uuid.NewString()
	}
	if a.stdout == nil {
		a.stdout = os.Stdout
	}
	a.log = a.log.WithRunID(a.runID)
	return a, nil
}

// RunID returns the identifier of the run.
func (a *Analyzer) RunID() string {
	return a.runID
}

// Run performs the analysis. Suspicious events are not an error.
func (a *Analyzer) Run(ctx context.Context) (out *Outcome, err error) {
	started := a.clock()
	m := metrics.NewRunMetrics(nil)
	out = &Outcome{RunID: a.runID, Metrics: m}

	defer func() {
		out.Duration = a.clock().Sub(started)
		m.Finish(a.clock(), err)
		if a.cfg.Export.MetricsFile == "" {
			return
		}
		if werr := m.Registry().WriteTextfile(a.cfg.Export.MetricsFile); werr != nil && err == nil {
			err = &ExitError{Code: ExitExport, Err: werr}
		}
	}()

	if err := ctx.Err(); err != nil {
		return out, &ExitError{Code: ExitInput, Err: err}
	}

	// Read.
	path := a.cfg.Input.Path
	a.log.Info("loading log file", "path", path)
	stop := m.StartStage(metrics.StageRead)
	reader := authlog.NewReader(
		authlog.WithLocation(a.detectCfg.Location),
		authlog.WithSkipHook(func(pe *authlog.ParseError) {
			a.log.Warn("skipping invalid line", "line", pe.Line, "field", pe.Field, "reason", pe.Reason)
		}),
	)
	res, err := reader.ReadFile(ctx, path)
	stop()
	if err != nil {
		return out, exitErr(ExitInput, "read %s: %w", path, err)
	}
	out.Input = res
	m.RecordInput(res)
	a.log.Info("log parsed",
		"lines", res.Lines,
		"records", len(res.Records),
		"invalid", len(res.Invalid),
		"blank", res.Blank(),
		"digest", res.Digest,
	)
	if len(res.Records) == 0 {
		a.log.Warn("no valid log entries", "path", path)
	}

	// Detect.
	stop = m.StartStage(metrics.StageDetect)
	engine := detect.NewEngine(a.detectCfg)
	events := engine.DetectAll(res.Records)
	stop()
	out.Events = events
	m.RecordEvents(events)
	for _, ev := range events {
		if verr := ev.Validate(a.detectCfg); verr != nil {
			a.log.Error("event failed self-check", "error", verr)
		}
	}
	a.log.Info("detection complete", "events", len(events))

	// Report.
	stop = m.StartStage(metrics.StageReport)
	doc, err := a.writeReport(res, events)
	stop()
	if err != nil {
		return out, err
	}
	out.Document = doc

	// Export.
	if a.cfg.Export.SQLitePath != "" {
		stop = m.StartStage(metrics.StageExport)
		err := a.export(ctx, started, res, events)
		stop()
		if err != nil {
			return out, err
		}
	}

	return out, nil
}

func (a *Analyzer) writeReport(res *authlog.Result, events []detect.Event) (*report.Document, error) {
	gen := report.NewReportGenerator(a.format).
		WithLocation(a.detectCfg.Location).
		WithClock(a.clock).
		WithStdout(a.stdout)
	if a.cfg.Report.Validate {
		gen.WithCheck(schemavalidation.ValidateReport)
	}

	doc := report.NewDocument(res.Records, events, a.detectCfg)
	doc.RunID = a.runID
	doc.Input = report.InputInfo{
		Path:         a.cfg.Input.Path,
		Digest:       res.Digest,
		Lines:        res.Lines,
		InvalidLines: len(res.Invalid),
	}
	gen.Stamp(doc)

	dest := a.cfg.Report.Path
	if err := gen.WriteFile(doc, dest); err != nil {
		return nil, exitErr(ExitReport, "report %s: %w", dest, err)
	}
	if dest != "-" {
		a.log.Info("report written", "path", dest, "format", string(a.format))
	}
	return doc, nil
}

func (a *Analyzer) export(ctx context.Context, started time.Time, res *authlog.Result, events []detect.Event) error {
	path := a.cfg.Export.SQLitePath
	s, err := store.Open(ctx, path)
	if err != nil {
		return exitErr(ExitExport, "open export database %s: %w", path, err)
	}
	defer s.Close()

	previous, err := s.RunsByDigest(ctx, res.Digest)
	if err != nil {
		return &ExitError{Code: ExitExport, Err: err}
	}
	if len(previous) > 0 {
		a.log.Info("input analyzed before", "runs", len(previous), "first_run", previous[0].ID)
	}

	tally := authlog.Count(res.Records)
	run := &store.Run{
		ID:              a.runID,
		StartedAt:       started,
		FinishedAt:      a.clock(),
		InputPath:       a.cfg.Input.Path,
		InputDigest:     res.Digest,
		Lines:           res.Lines,
		Records:         tally.Total,
		InvalidLines:    len(res.Invalid),
		Success:         tally.Success,
		Failed:          tally.Failed,
		Unknown:         tally.Unknown,
		EventCount:      len(events),
		FailedThreshold: a.detectCfg.FailedThreshold,
		WindowMinutes:   a.detectCfg.WindowMinutes,
		BusinessStart:   a.detectCfg.BusinessStart,
		BusinessEnd:     a.detectCfg.BusinessEnd,
		Timezone:        a.detectCfg.Location.String(),
	}
	err = s.SaveRun(ctx, run,
		store.FromDetect(a.runID, events),
		store.FromParseErrors(a.runID, res.Invalid),
	)
	if err != nil {
		return exitErr(ExitExport, "export run: %w", err)
	}
	a.log.Info("run exported", "path", path, "events", len(events))
	return nil
}
