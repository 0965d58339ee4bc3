// Package report renders analysis results for people and machines.
package report

import (
	"time"

	"authscan/internal/authlog"
	"authscan/internal/detect"
)

// SchemaVersion identifies the layout of Document for machine consumers.
const SchemaVersion = 1

// Document is everything a report format may show about one run.
type Document struct {
	SchemaVersion int            `json:"schema_version" yaml:"schema_version"`
	RunID         string         `json:"run_id,omitempty" yaml:"run_id,omitempty"`
	GeneratedAt   time.Time      `json:"generated_at" yaml:"generated_at"`
	Input         InputInfo      `json:"input" yaml:"input"`
	Settings      Settings       `json:"settings" yaml:"settings"`
	Summary       Summary        `json:"summary" yaml:"summary"`
	Events        []detect.Event `json:"events" yaml:"events"`
}

// InputInfo describes the analyzed log.
type InputInfo struct {
	Path         string `json:"path,omitempty" yaml:"path,omitempty"`
	Digest       string `json:"digest,omitempty" yaml:"digest,omitempty"`
	Lines        int    `json:"lines" yaml:"lines"`
	InvalidLines int    `json:"invalid_lines" yaml:"invalid_lines"`
}

// Settings echoes the detector parameters used.
type Settings struct {
	FailedThreshold   int    `json:"failed_threshold" yaml:"failed_threshold"`
	WindowMinutes     int    `json:"window_minutes" yaml:"window_minutes"`
	BusinessHourStart int    `json:"business_hour_start" yaml:"business_hour_start"`
	BusinessHourEnd   int    `json:"business_hour_end" yaml:"business_hour_end"`
	Timezone          string `json:"timezone" yaml:"timezone"`
}

// Summary holds the headline counts.
type Summary struct {
	TotalEntries     int                 `json:"total_entries" yaml:"total_entries"`
	SuccessfulLogins int                 `json:"successful_logins" yaml:"successful_logins"`
	FailedLogins     int                 `json:"failed_logins" yaml:"failed_logins"`
	UnknownStatus    int                 `json:"unknown_status" yaml:"unknown_status"`
	SuspiciousEvents int                 `json:"suspicious_events" yaml:"suspicious_events"`
	EventsByKind     map[detect.Kind]int `json:"events_by_kind" yaml:"events_by_kind"`
}

// NewSummary counts outcomes and events.
func NewSummary(records []authlog.Record, events []detect.Event) Summary {
	tally := authlog.Count(records)
	byKind := make(map[detect.Kind]int, len(detect.Kinds))
	for _, k := range detect.Kinds {
		byKind[k] = 0
	}
	for _, ev := range events {
		byKind[ev.Kind]++
	}
	return Summary{
		TotalEntries:     tally.Total,
		SuccessfulLogins: tally.Success,
		FailedLogins:     tally.Failed,
		UnknownStatus:    tally.Unknown,
		SuspiciousEvents: len(events),
		EventsByKind:     byKind,
	}
}

// NewDocument assembles a document. Input and RunID are left for the
// caller; GeneratedAt is stamped by the generator.
func NewDocument(records []authlog.Record, events []detect.Event, cfg detect.Config) *Document {
	if events == nil {
		events = []detect.Event{}
	}
	loc := cfg.Location
	if loc == nil {
		loc = time.Local
	}
	return &Document{
		SchemaVersion: SchemaVersion,
		Settings: Settings{
			FailedThreshold:   cfg.FailedThreshold,
			WindowMinutes:     cfg.WindowMinutes,
			BusinessHourStart: cfg.BusinessStart,
			BusinessHourEnd:   cfg.BusinessEnd,
			Timezone:          loc.String(),
		},
		Summary: NewSummary(records, events),
		Events:  events,
	}
}
