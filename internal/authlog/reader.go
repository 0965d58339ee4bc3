package authlog

import (
	"bufio"
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"io"
	"os"
	"time"

	"golang.org/x/crypto/blake2b"
)

// maxLineSize bounds a single log line. Longer lines are rejected with
// ErrLineTooLong.
const maxLineSize = 1 << 20

// ctxCheckInterval is how many lines are read between cancellation checks.
const ctxCheckInterval = 4096

// Result is the outcome of reading a whole log.
type Result struct {
	// Records holds accepted records in acceptance order.
	Records []Record

	// Invalid holds one error per rejected line, in line order.
	Invalid []*ParseError

	// Lines is the number of lines read, accepted or not.
	Lines int

	// Digest is the hex BLAKE2b-256 of the raw input bytes.
	Digest string
}

// Blank returns how many rejected lines were empty or whitespace-only.
func (r *Result) Blank() int {
	n := 0
	for _, e := range r.Invalid {
		if errors.Is(e, ErrBlankLine) {
			n++
		}
	}
	return n
}

// Reader reads log lines and parses them into records.
type Reader struct {
	loc    *time.Location
	onSkip func(*ParseError)
}

// ReaderOption configures a Reader.
type ReaderOption func(*Reader)

// WithLocation pins the civil-time zone used for timestamps.
func WithLocation(loc *time.Location) ReaderOption {
	return func(r *Reader) {
		r.loc = loc
	}
}

// WithSkipHook registers a callback invoked for every rejected line.
func WithSkipHook(fn func(*ParseError)) ReaderOption {
	return func(r *Reader) {
		r.onSkip = fn
	}
}

// NewReader creates a Reader.
func NewReader(opts ...ReaderOption) *Reader {
	r := &Reader{loc: time.Local}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Read consumes src to EOF. Rejected lines are collected and never abort
// the read; only I/O failures and cancellation return an error.
func (r *Reader) Read(ctx context.Context, src io.Reader) (*Result, error) {
	h, err := blake2b.New256(nil)
	if err != nil {
		return nil, fmt.Errorf("init digest: %w", err)
	}

	res := &Result{}
	br := bufio.NewReaderSize(io.TeeReader(src, h), 64*1024)

	for {
		line, tooLong, ok, err := readLine(br)
		if err != nil {
			return nil, fmt.Errorf("read log: %w", err)
		}
		if !ok {
			break
		}

		res.Lines++
		if res.Lines%ctxCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}

		var rec Record
		if tooLong {
			err = &ParseError{Reason: ErrLineTooLong}
		} else {
			rec, err = ParseLine(string(line), r.loc)
		}
		if err != nil {
			var pe *ParseError
			if !errors.As(err, &pe) {
				pe = &ParseError{Reason: err}
			}
			pe.Line = res.Lines
			res.Invalid = append(res.Invalid, pe)
			if r.onSkip != nil {
				r.onSkip(pe)
			}
			continue
		}
		res.Records = append(res.Records, rec)
	}

	res.Digest = hexSum(h)
	return res, nil
}

// ReadFile opens path and reads it with Read.
func (r *Reader) ReadFile(ctx context.Context, path string) (*Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open log: %w", err)
	}
	defer f.Close()

	return r.Read(ctx, f)
}

// readLine returns the next line without its newline. A line longer than
// maxLineSize is consumed to its end and returned empty with tooLong set.
// ok is false once src is exhausted.
func readLine(br *bufio.Reader) (line []byte, tooLong, ok bool, err error) {
	for {
		chunk, err := br.ReadSlice('\n')
		if len(chunk) > 0 {
			ok = true
		}
		if !tooLong {
			line = append(line, chunk...)
			if len(bytes.TrimSuffix(line, []byte("\n"))) > maxLineSize {
				tooLong, line = true, nil
			}
		}

		switch {
		case err == nil, errors.Is(err, io.EOF):
			return bytes.TrimSuffix(line, []byte("\n")), tooLong, ok, nil
		case errors.Is(err, bufio.ErrBufferFull):
			continue
		default:
			return nil, false, false, err
		}
	}
}

func hexSum(h hash.Hash) string {
	return hex.EncodeToString(h.Sum(nil))
}
