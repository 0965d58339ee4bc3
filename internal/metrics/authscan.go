package metrics

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"authscan/internal/authlog"
	"authscan/internal/detect"
)

// Stages of a run, used as the "stage" label on durations.
const (
	StageRead   = "read"
	StageDetect = "detect"
	StageReport = "report"
	StageExport = "export"
)

// RunMetrics holds the metrics recorded for one analyzer run.
type RunMetrics struct {
	registry *Registry

	LinesRead     prometheus.Counter
	Records       *prometheus.CounterVec
	InvalidLines  *prometheus.CounterVec
	Events        *prometheus.CounterVec
	StageDuration *prometheus.HistogramVec
	LastRun       prometheus.Gauge
	LastSuccess   prometheus.Gauge
}

// NewRunMetrics registers the run metrics on registry. A nil registry
// gets a fresh one.
func NewRunMetrics(registry *Registry) *RunMetrics {
	if registry == nil {
		registry = NewRegistry()
	}
	factory := promauto.With(registry.Registerer())

	m := &RunMetrics{
		registry: registry,

		LinesRead: factory.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "lines_read_total",
			Help:      "Lines read from the input log, including rejected ones",
		}),
		Records: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "records_total",
			Help:      "Accepted log records by login outcome",
		}, []string{"outcome"}),
		InvalidLines: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "invalid_lines_total",
			Help:      "Rejected log lines by reason",
		}, []string{"reason"}),
		Events: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "events_total",
			Help:      "Suspicious events detected by kind",
		}, []string{"kind"}),
		StageDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "stage_duration_seconds",
			Help:      "Time spent in each stage of a run",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 10), // 100µs to ~26s
		}, []string{"stage"}),
		LastRun: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix time the last run finished",
		}),
		LastSuccess: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "last_run_success",
			Help:      "1 if the last run completed without error, 0 otherwise",
		}),
	}

	// Pre-create label values so absent series read as zero.
	for _, o := range []authlog.Outcome{authlog.OutcomeSuccess, authlog.OutcomeFailed, authlog.OutcomeUnknown} {
		m.Records.WithLabelValues(o.String())
	}
	for _, k := range detect.Kinds {
		m.Events.WithLabelValues(string(k))
	}
	return m
}

// Registry returns the registry the metrics live in.
func (m *RunMetrics) Registry() *Registry {
	return m.registry
}

// RecordInput counts lines, records by outcome and rejections by reason.
func (m *RunMetrics) RecordInput(res *authlog.Result) {
	m.LinesRead.Add(float64(res.Lines))

	tally := authlog.Count(res.Records)
	m.Records.WithLabelValues(authlog.OutcomeSuccess.String()).Add(float64(tally.Success))
	m.Records.WithLabelValues(authlog.OutcomeFailed.String()).Add(float64(tally.Failed))
	m.Records.WithLabelValues(authlog.OutcomeUnknown.String()).Add(float64(tally.Unknown))

	for _, pe := range res.Invalid {
		m.InvalidLines.WithLabelValues(reasonLabel(pe)).Inc()
	}
}

// RecordEvents counts detected events by kind.
func (m *RunMetrics) RecordEvents(events []detect.Event) {
	for _, ev := range events {
		m.Events.WithLabelValues(string(ev.Kind)).Inc()
	}
}

// ObserveStage records how long a stage took.
func (m *RunMetrics) ObserveStage(stage string, d time.Duration) {
	m.StageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

// StartStage returns a function that observes the elapsed time when called.
func (m *RunMetrics) StartStage(stage string) func() time.Duration {
	start := time.Now()
	return func() time.Duration {
		d := time.Since(start)
		m.ObserveStage(stage, d)
		return d
	}
}

// Finish stamps the last-run gauges.
func (m *RunMetrics) Finish(at time.Time, err error) {
	m.LastRun.Set(float64(at.Unix()))
	if err != nil {
		m.LastSuccess.Set(0)
		return
	}
	m.LastSuccess.Set(1)
}

func reasonLabel(pe *authlog.ParseError) string {
	switch {
	case errors.Is(pe, authlog.ErrBlankLine):
		return "blank_line"
	case errors.Is(pe, authlog.ErrTooFewFields):
		return "too_few_fields"
	case errors.Is(pe, authlog.ErrEmptyField):
		return "empty_field"
	case errors.Is(pe, authlog.ErrBadTimestamp):
		return "bad_timestamp"
	case errors.Is(pe, authlog.ErrLineTooLong):
		return "line_too_long"
	default:
		return "other"
	}
}
