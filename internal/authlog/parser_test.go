package authlog

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testZone = time.FixedZone("TEST", 2*60*60)

func TestParseStatus(t *testing.T) {
	tests := []struct {
		input    string
		expected Outcome
	}{
		{"SUCCESS", OutcomeSuccess},
		{"success", OutcomeSuccess},
		{"Success", OutcomeSuccess},
		{"FAILED", OutcomeFailed},
		{"failed", OutcomeFailed},
		{"  FaIlEd  ", OutcomeFailed},
		{"LOCKED", OutcomeUnknown},
		{"FAIL", OutcomeUnknown},
		{"", OutcomeUnknown},
	}

	for _, tc := range tests {
		t.Run(tc.input, func(t *testing.T) {
			assert.Equal(t, tc.expected, ParseStatus(tc.input))
		})
	}
}

func TestParseTimestamp(t *testing.T) {
	ts, err := ParseTimestamp("2026-01-10 08:45:12", testZone)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 1, 10, 8, 45, 12, 0, testZone), ts)
	assert.Equal(t, 8, ts.Hour())

	for _, bad := range []string{
		"2026-01-10",
		"2026/01/10 08:45:12",
		"2026-02-30 10:00:00",
		"2026-01-10 25:00:00",
		"yesterday",
		"2026-01-10T08:45:12",
		"2026-01-10 08:45:12 extra",
		"2026-01-10 08:45:12.999",
		"2026-01-10 08:45:12.000000000",
		"2026-1-10 08:45:12",
	} {
		t.Run(bad, func(t *testing.T) {
			_, err := ParseTimestamp(bad, testZone)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrBadTimestamp))
		})
	}
}

func TestParseLine_Valid(t *testing.T) {
	rec, err := ParseLine("2026-01-10 08:45:12 | jdoe | 192.168.1.10 | FAILED", testZone)
	require.NoError(t, err)

	assert.Equal(t, time.Date(2026, 1, 10, 8, 45, 12, 0, testZone), rec.Timestamp)
	assert.Equal(t, "jdoe", rec.User)
	assert.Equal(t, "192.168.1.10", rec.Source)
	assert.Equal(t, OutcomeFailed, rec.Outcome)
}

func TestParseLine_Whitespace(t *testing.T) {
	rec, err := ParseLine("   2026-01-10 08:45:12|alice   |\t10.0.0.1| success \r\n", testZone)
	require.NoError(t, err)
	assert.Equal(t, "alice", rec.User)
	assert.Equal(t, "10.0.0.1", rec.Source)
	assert.Equal(t, OutcomeSuccess, rec.Outcome)
}

func TestParseLine_UnknownStatusIsAccepted(t *testing.T) {
	rec, err := ParseLine("2026-01-10 08:45:12 | jdoe | 192.168.1.10 | LOCKED", testZone)
	require.NoError(t, err)
	assert.Equal(t, OutcomeUnknown, rec.Outcome)
}

func TestParseLine_ExtraBarsBelongToStatus(t *testing.T) {
	rec, err := ParseLine("2026-01-10 08:45:12 | jdoe | 192.168.1.10 | FAILED | extra", testZone)
	require.NoError(t, err)
	// "FAILED | extra" is not a known status
	assert.Equal(t, OutcomeUnknown, rec.Outcome)
}

func TestParseLine_Invalid(t *testing.T) {
	tests := []struct {
		name   string
		line   string
		reason error
		field  string
	}{
		{"empty", "", ErrBlankLine, ""},
		{"whitespace", "   \t ", ErrBlankLine, ""},
		{"no bars", "2026-01-10 08:45:12 jdoe 1.1.1.1 FAILED", ErrTooFewFields, ""},
		{"three fields", "2026-01-10 08:45:12 | jdoe | 1.1.1.1", ErrTooFewFields, ""},
		{"empty user", "2026-01-10 08:45:12 |  | 1.1.1.1 | FAILED", ErrEmptyField, "user"},
		{"empty source", "2026-01-10 08:45:12 | jdoe |   | FAILED", ErrEmptyField, "source"},
		{"empty timestamp", " | jdoe | 1.1.1.1 | FAILED", ErrEmptyField, "timestamp"},
		{"empty status", "2026-01-10 08:45:12 | jdoe | 1.1.1.1 |   ", ErrEmptyField, "status"},
		{"bad timestamp", "2026-13-10 08:45:12 | jdoe | 1.1.1.1 | FAILED", ErrBadTimestamp, "timestamp"},
		{"fractional seconds", "2026-01-10 08:45:12.999 | jdoe | 1.1.1.1 | FAILED", ErrBadTimestamp, "timestamp"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseLine(tc.line, testZone)
			require.Error(t, err)
			assert.ErrorIs(t, err, tc.reason)

			var pe *ParseError
			require.ErrorAs(t, err, &pe)
			assert.Equal(t, tc.field, pe.Field)
		})
	}
}

func TestFormatLine_RoundTrip(t *testing.T) {
	lines := []string{
		"2026-01-10 08:45:12 | jdoe | 192.168.1.10 | failed",
		"2026-01-10 23:59:59 | alice | 10.0.0.1 | success",
		"2024-02-29 00:00:00 | svc-backup | host.example.com | success",
	}

	for _, line := range lines {
		t.Run(line, func(t *testing.T) {
			rec, err := ParseLine(line, testZone)
			require.NoError(t, err)
			assert.Equal(t, line, FormatLine(rec))
		})
	}
}

func TestParseErrorMessage(t *testing.T) {
	err := &ParseError{Line: 7, Field: "user", Reason: ErrEmptyField}
	assert.Equal(t, "line 7: empty field (user)", err.Error())

	err = &ParseError{Reason: ErrTooFewFields}
	assert.Equal(t, "expected 4 bar-separated fields", err.Error())
}

func TestCount(t *testing.T) {
	ts := time.Date(2026, 1, 10, 9, 0, 0, 0, testZone)
	records := []Record{
		NewRecord(ts, "a", "1", OutcomeSuccess),
		NewRecord(ts, "a", "1", OutcomeFailed),
		NewRecord(ts, "b", "2", OutcomeFailed),
		NewRecord(ts, "c", "3", OutcomeUnknown),
	}

	assert.Equal(t, Tally{Total: 4, Success: 1, Failed: 2, Unknown: 1}, Count(records))
	assert.Equal(t, Tally{}, Count(nil))
}
