// Package store exports analysis runs and their events to SQLite.
package store

import "time"

// Run is one invocation of the analyzer over one input.
type Run struct {
	ID          string
	StartedAt   time.Time
	FinishedAt  time.Time
	InputPath   string
	InputDigest string

	Lines        int
	Records      int
	InvalidLines int
	Success      int
	Failed       int
	Unknown      int
	EventCount   int

	FailedThreshold int
	WindowMinutes   int
	BusinessStart   int
	BusinessEnd     int
	Timezone        string
}

// Event is a detected anomaly as stored. Ordinal is its position in the
// run's event list, starting at 1 like the text report numbering.
type Event struct {
	ID          int64
	RunID       string
	Ordinal     int
	Kind        string
	User        string
	Sources     []string
	FirstSeen   time.Time
	LastSeen    time.Time
	Count       int
	Description string
}

// InvalidLine records a line the reader rejected.
type InvalidLine struct {
	RunID  string
	Line   int
	Field  string
	Reason string
}

// UserSummary aggregates stored events for one account across runs.
type UserSummary struct {
	User       string
	Runs       int
	Events     int
	LastSeen   time.Time
	KindCounts map[string]int
}
