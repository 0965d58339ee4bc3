package authlog

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// FieldSeparator delimits the fields of a log line.
const FieldSeparator = "|"

// Reasons a line is rejected.
var (
	ErrBlankLine    = errors.New("blank line")
	ErrTooFewFields = errors.New("expected 4 bar-separated fields")
	ErrEmptyField   = errors.New("empty field")
	ErrBadTimestamp = errors.New("invalid timestamp")
	ErrLineTooLong  = errors.New("line too long")
)

// ParseError describes a rejected line. Line is 1-based and zero when the
// error came from ParseLine directly rather than through a Reader.
type ParseError struct {
	Line   int
	Field  string
	Reason error
}

func (e *ParseError) Error() string {
	var b strings.Builder
	if e.Line > 0 {
		fmt.Fprintf(&b, "line %d: ", e.Line)
	}
	b.WriteString(e.Reason.Error())
	if e.Field != "" {
		fmt.Fprintf(&b, " (%s)", e.Field)
	}
	return b.String()
}

func (e *ParseError) Unwrap() error {
	return e.Reason
}

// ParseTimestamp decodes a YYYY-MM-DD HH:MM:SS civil time in loc.
// A nil loc means time.Local.
func ParseTimestamp(s string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.Local
	}
	s = strings.TrimSpace(s)
	// time.Parse accepts fractional seconds the layout does not name.
	if len(s) != len(TimestampLayout) {
		return time.Time{}, fmt.Errorf("%w: %q", ErrBadTimestamp, s)
	}
	ts, err := time.ParseInLocation(TimestampLayout, s, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrBadTimestamp, s)
	}
	return ts, nil
}

// ParseLine converts one raw log line into a Record. It never panics; any
// malformed input yields a *ParseError. Bars after the third belong to the
// status field. An unrecognized status is not an error: the record is
// returned with OutcomeUnknown.
func ParseLine(line string, loc *time.Location) (Record, error) {
	line = strings.TrimRight(line, "\r\n")
	if strings.TrimSpace(line) == "" {
		return Record{}, &ParseError{Reason: ErrBlankLine}
	}

	parts := strings.SplitN(line, FieldSeparator, 4)
	if len(parts) < 4 {
		return Record{}, &ParseError{Reason: ErrTooFewFields}
	}

	tsField := strings.TrimSpace(parts[0])
	user := strings.TrimSpace(parts[1])
	source := strings.TrimSpace(parts[2])
	status := strings.TrimSpace(parts[3])

	for _, f := range []struct {
		name  string
		value string
	}{
		{"timestamp", tsField},
		{"user", user},
		{"source", source},
		{"status", status},
	} {
		if f.value == "" {
			return Record{}, &ParseError{Field: f.name, Reason: ErrEmptyField}
		}
	}

	ts, err := ParseTimestamp(tsField, loc)
	if err != nil {
		return Record{}, &ParseError{Field: "timestamp", Reason: err}
	}

	return NewRecord(ts, user, source, ParseStatus(status)), nil
}
