// Package authlog parses line-oriented authentication logs into records.
//
// A log line has the shape
//
//	YYYY-MM-DD HH:MM:SS | USER | SOURCE | STATUS
//
// Timestamps carry no zone; they are interpreted as civil time in the
// location handed to the parser (time.Local unless pinned).
package authlog

import (
	"strings"
	"time"
)

// TimestampLayout is the civil-time layout of the first field.
const TimestampLayout = "2006-01-02 15:04:05"

// Outcome is the normalized status of a login attempt.
type Outcome int

const (
	OutcomeUnknown Outcome = iota
	OutcomeSuccess
	OutcomeFailed
)

// String returns the lowercase canonical spelling used by FormatLine.
func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// MarshalText encodes the outcome as its canonical spelling.
func (o Outcome) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

// ParseStatus maps a status field to an Outcome, case-insensitively.
// Anything other than SUCCESS or FAILED is OutcomeUnknown.
func ParseStatus(s string) Outcome {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "SUCCESS":
		return OutcomeSuccess
	case "FAILED":
		return OutcomeFailed
	default:
		return OutcomeUnknown
	}
}

// Record is one accepted log entry. Records are values; nothing in this
// module mutates one after ParseLine returns it.
type Record struct {
	Timestamp time.Time
	User      string
	Source    string
	Outcome   Outcome
}

// NewRecord builds a record from already-validated parts.
func NewRecord(ts time.Time, user, source string, outcome Outcome) Record {
	return Record{
		Timestamp: ts,
		User:      user,
		Source:    source,
		Outcome:   outcome,
	}
}

// FormatLine renders r in canonical form: single spaces around each bar
// and a lowercase status.
func FormatLine(r Record) string {
	var b strings.Builder
	b.WriteString(r.Timestamp.Format(TimestampLayout))
	b.WriteString(" | ")
	b.WriteString(r.User)
	b.WriteString(" | ")
	b.WriteString(r.Source)
	b.WriteString(" | ")
	b.WriteString(r.Outcome.String())
	return b.String()
}

// Tally counts records by outcome.
type Tally struct {
	Total   int
	Success int
	Failed  int
	Unknown int
}

// Count tallies records by outcome.
func Count(records []Record) Tally {
	t := Tally{Total: len(records)}
	for _, r := range records {
		switch r.Outcome {
		case OutcomeSuccess:
			t.Success++
		case OutcomeFailed:
			t.Failed++
		default:
			t.Unknown++
		}
	}
	return t
}
