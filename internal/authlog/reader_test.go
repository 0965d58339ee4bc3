package authlog

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleLog = `2026-01-10 08:45:12 | jdoe | 192.168.1.10 | FAILED
2026-01-10 08:46:00 | jdoe | 192.168.1.10 | SUCCESS

not a log line
2026-01-10 08:47:00 | alice | 10.0.0.1 | LOCKED
2026-01-10 99:00:00 | alice | 10.0.0.1 | SUCCESS
2026-01-10 08:48:00 | bob | 10.0.0.2 | success
`

func TestReader_Read(t *testing.T) {
	var skipped []int
	r := NewReader(
		WithLocation(testZone),
		WithSkipHook(func(pe *ParseError) { skipped = append(skipped, pe.Line) }),
	)

	res, err := r.Read(context.Background(), strings.NewReader(sampleLog))
	require.NoError(t, err)

	assert.Equal(t, 7, res.Lines)
	require.Len(t, res.Records, 4)
	assert.Equal(t, "jdoe", res.Records[0].User)
	assert.Equal(t, OutcomeFailed, res.Records[0].Outcome)
	assert.Equal(t, OutcomeUnknown, res.Records[2].Outcome)
	assert.Equal(t, "bob", res.Records[3].User)

	require.Len(t, res.Invalid, 3)
	assert.Equal(t, []int{3, 4, 6}, skipped)
	assert.ErrorIs(t, res.Invalid[0], ErrBlankLine)
	assert.ErrorIs(t, res.Invalid[1], ErrTooFewFields)
	assert.ErrorIs(t, res.Invalid[2], ErrBadTimestamp)
	assert.Equal(t, 1, res.Blank())

	assert.Len(t, res.Digest, 64)
}

func TestReader_DigestIsStable(t *testing.T) {
	r := NewReader(WithLocation(testZone))

	a, err := r.Read(context.Background(), strings.NewReader(sampleLog))
	require.NoError(t, err)
	b, err := r.Read(context.Background(), strings.NewReader(sampleLog))
	require.NoError(t, err)
	c, err := r.Read(context.Background(), strings.NewReader(sampleLog+"\n"))
	require.NoError(t, err)

	assert.Equal(t, a.Digest, b.Digest)
	assert.NotEqual(t, a.Digest, c.Digest)
}

func TestReader_Empty(t *testing.T) {
	res, err := NewReader().Read(context.Background(), strings.NewReader(""))
	require.NoError(t, err)
	assert.Zero(t, res.Lines)
	assert.Empty(t, res.Records)
	assert.Empty(t, res.Invalid)
}

func TestReader_ReadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "auth.log")
	require.NoError(t, os.WriteFile(path, []byte(sampleLog), 0600))

	res, err := NewReader(WithLocation(testZone)).ReadFile(context.Background(), path)
	require.NoError(t, err)
	assert.Len(t, res.Records, 4)

	_, err = NewReader().ReadFile(context.Background(), filepath.Join(t.TempDir(), "missing.log"))
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestReader_Cancelled(t *testing.T) {
	var b strings.Builder
	for i := 0; i < ctxCheckInterval+1; i++ {
		b.WriteString("2026-01-10 08:45:12 | jdoe | 192.168.1.10 | FAILED\n")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewReader().Read(ctx, strings.NewReader(b.String()))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestReader_LineTooLong(t *testing.T) {
	const valid = "2026-01-10 08:45:12 | jdoe | 192.168.1.10 | FAILED\n"
	long := strings.Repeat("x", 2*maxLineSize)

	var skipped []*ParseError
	r := NewReader(
		WithLocation(testZone),
		WithSkipHook(func(pe *ParseError) { skipped = append(skipped, pe) }),
	)

	res, err := r.Read(context.Background(), strings.NewReader(valid+long+"\n"+valid))
	require.NoError(t, err)

	assert.Equal(t, 3, res.Lines)
	assert.Len(t, res.Records, 2)
	require.Len(t, res.Invalid, 1)
	assert.Equal(t, 2, res.Invalid[0].Line)
	assert.ErrorIs(t, res.Invalid[0], ErrLineTooLong)
	require.Len(t, skipped, 1)
	assert.Equal(t, "line 2: line too long", skipped[0].Error())
}

func TestReader_LineTooLongAtEOF(t *testing.T) {
	const valid = "2026-01-10 08:45:12 | jdoe | 192.168.1.10 | FAILED\n"

	res, err := NewReader(WithLocation(testZone)).Read(context.Background(),
		strings.NewReader(valid+strings.Repeat("\x00", maxLineSize+1)))
	require.NoError(t, err)

	assert.Equal(t, 2, res.Lines)
	assert.Len(t, res.Records, 1)
	require.Len(t, res.Invalid, 1)
	assert.ErrorIs(t, res.Invalid[0], ErrLineTooLong)
}

func TestReader_LineAtLimit(t *testing.T) {
	// A line of exactly maxLineSize bytes is parsed, not rejected for length.
	line := strings.Repeat("x", maxLineSize)

	res, err := NewReader().Read(context.Background(), strings.NewReader(line+"\n"))
	require.NoError(t, err)
	require.Len(t, res.Invalid, 1)
	assert.ErrorIs(t, res.Invalid[0], ErrTooFewFields)
}

func TestReader_LastLineWithoutNewline(t *testing.T) {
	input := "2026-01-10 08:45:12 | jdoe | 192.168.1.10 | FAILED\r\n" +
		"2026-01-10 08:46:00 | jdoe | 192.168.1.10 | SUCCESS"

	res, err := NewReader(WithLocation(testZone)).Read(context.Background(), strings.NewReader(input))
	require.NoError(t, err)
	assert.Equal(t, 2, res.Lines)
	require.Len(t, res.Records, 2)
	assert.Equal(t, OutcomeFailed, res.Records[0].Outcome)
	assert.Equal(t, OutcomeSuccess, res.Records[1].Outcome)
}
