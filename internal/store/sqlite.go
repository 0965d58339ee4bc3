package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"authscan/internal/authlog"
	"authscan/internal/detect"
)

// Store represents the SQLite export database.
type Store struct {
	db *sql.DB
}

// Open opens or creates the SQLite database at the given path and runs migrations.
func Open(ctx context.Context, path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := MigrateDB(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// FromDetect converts detector output into stored events for runID.
func FromDetect(runID string, events []detect.Event) []Event {
	out := make([]Event, len(events))
	for i, ev := range events {
		out[i] = Event{
			RunID:       runID,
			Ordinal:     i + 1,
			Kind:        string(ev.Kind),
			User:        ev.User,
			Sources:     ev.Sources,
			FirstSeen:   ev.FirstSeen,
			LastSeen:    ev.LastSeen,
			Count:       ev.Count,
			Description: ev.Description,
		}
	}
	return out
}

// FromParseErrors converts reader rejections into stored invalid lines.
func FromParseErrors(runID string, errs []*authlog.ParseError) []InvalidLine {
	out := make([]InvalidLine, len(errs))
	for i, pe := range errs {
		reason := "invalid line"
		if pe.Reason != nil {
			reason = pe.Reason.Error()
		}
		out[i] = InvalidLine{
			RunID:  runID,
			Line:   pe.Line,
			Field:  pe.Field,
			Reason: reason,
		}
	}
	return out
}

// SaveRun writes a run with its events and invalid lines in one transaction.
func (s *Store) SaveRun(ctx context.Context, run *Run, events []Event, invalid []InvalidLine) error {
	if run.ID == "" {
		return errors.New("save run: empty run id")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs (id, started_ns, finished_ns, input_path, input_digest, lines, records, invalid_lines,
			success, failed, unknown, event_count, failed_threshold, window_minutes, business_start, business_end, timezone)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.StartedAt.UnixNano(), run.FinishedAt.UnixNano(), run.InputPath, run.InputDigest,
		run.Lines, run.Records, run.InvalidLines, run.Success, run.Failed, run.Unknown, run.EventCount,
		run.FailedThreshold, run.WindowMinutes, run.BusinessStart, run.BusinessEnd, run.Timezone,
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}

	eventStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO events (run_id, ordinal, kind, username, first_seen_ns, last_seen_ns, count, description)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare statement: %w", err)
	}
	defer eventStmt.Close()

	sourceStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO event_sources (event_id, ordinal, source) VALUES (?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare statement: %w", err)
	}
	defer sourceStmt.Close()

	for _, e := range events {
		result, err := eventStmt.ExecContext(ctx, run.ID, e.Ordinal, e.Kind, e.User,
			e.FirstSeen.UnixNano(), e.LastSeen.UnixNano(), e.Count, e.Description)
		if err != nil {
			return fmt.Errorf("insert event %d: %w", e.Ordinal, err)
		}
		id, err := result.LastInsertId()
		if err != nil {
			return fmt.Errorf("get last insert id: %w", err)
		}
		for i, src := range e.Sources {
			if _, err := sourceStmt.ExecContext(ctx, id, i, src); err != nil {
				return fmt.Errorf("insert event source: %w", err)
			}
		}
	}

	if len(invalid) > 0 {
		lineStmt, err := tx.PrepareContext(ctx, `
			INSERT INTO invalid_lines (run_id, line, field, reason) VALUES (?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("prepare statement: %w", err)
		}
		defer lineStmt.Close()

		for _, l := range invalid {
			if _, err := lineStmt.ExecContext(ctx, run.ID, l.Line, l.Field, l.Reason); err != nil {
				return fmt.Errorf("insert invalid line %d: %w", l.Line, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

const runColumns = `id, started_ns, finished_ns, input_path, input_digest, lines, records, invalid_lines,
	success, failed, unknown, event_count, failed_threshold, window_minutes, business_start, business_end, timezone`

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (*Run, error) {
	var r Run
	var started, finished int64
	err := row.Scan(&r.ID, &started, &finished, &r.InputPath, &r.InputDigest, &r.Lines, &r.Records, &r.InvalidLines,
		&r.Success, &r.Failed, &r.Unknown, &r.EventCount, &r.FailedThreshold, &r.WindowMinutes,
		&r.BusinessStart, &r.BusinessEnd, &r.Timezone)
	if err != nil {
		return nil, err
	}
	r.StartedAt = time.Unix(0, started)
	r.FinishedAt = time.Unix(0, finished)
	return &r, nil
}

// GetRun retrieves a run by ID. It returns nil, nil when no run matches.
func (s *Store) GetRun(ctx context.Context, id string) (*Run, error) {
	r, err := scanRun(s.db.QueryRowContext(ctx, "SELECT "+runColumns+" FROM runs WHERE id = ?", id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get run: %w", err)
	}
	return r, nil
}

// ListRuns returns the most recent runs first. A limit of 0 returns all.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]*Run, error) {
	query := "SELECT " + runColumns + " FROM runs ORDER BY started_ns DESC, id"
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	return s.queryRuns(ctx, query, args...)
}

// RunsByDigest returns earlier runs over byte-identical input, oldest first.
func (s *Store) RunsByDigest(ctx context.Context, digest string) ([]*Run, error) {
	return s.queryRuns(ctx, "SELECT "+runColumns+" FROM runs WHERE input_digest = ? ORDER BY started_ns, id", digest)
}

func (s *Store) queryRuns(ctx context.Context, query string, args ...any) ([]*Run, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// Events returns a run's events in report order.
func (s *Store) Events(ctx context.Context, runID string) ([]Event, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, run_id, ordinal, kind, username, first_seen_ns, last_seen_ns, count, description
		FROM events WHERE run_id = ? ORDER BY ordinal`, runID)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}

	var events []Event
	for rows.Next() {
		var e Event
		var first, last int64
		if err := rows.Scan(&e.ID, &e.RunID, &e.Ordinal, &e.Kind, &e.User, &first, &last, &e.Count, &e.Description); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan event: %w", err)
		}
		e.FirstSeen = time.Unix(0, first)
		e.LastSeen = time.Unix(0, last)
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	for i := range events {
		sources, err := s.eventSources(ctx, events[i].ID)
		if err != nil {
			return nil, err
		}
		events[i].Sources = sources
	}
	return events, nil
}

func (s *Store) eventSources(ctx context.Context, eventID int64) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT source FROM event_sources WHERE event_id = ? ORDER BY ordinal", eventID)
	if err != nil {
		return nil, fmt.Errorf("query event sources: %w", err)
	}
	defer rows.Close()

	var sources []string
	for rows.Next() {
		var src string
		if err := rows.Scan(&src); err != nil {
			return nil, fmt.Errorf("scan event source: %w", err)
		}
		sources = append(sources, src)
	}
	return sources, rows.Err()
}

// InvalidLines returns the lines a run rejected, by line number.
func (s *Store) InvalidLines(ctx context.Context, runID string) ([]InvalidLine, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT run_id, line, field, reason FROM invalid_lines WHERE run_id = ? ORDER BY line", runID)
	if err != nil {
		return nil, fmt.Errorf("query invalid lines: %w", err)
	}
	defer rows.Close()

	var lines []InvalidLine
	for rows.Next() {
		var l InvalidLine
		if err := rows.Scan(&l.RunID, &l.Line, &l.Field, &l.Reason); err != nil {
			return nil, fmt.Errorf("scan invalid line: %w", err)
		}
		lines = append(lines, l)
	}
	return lines, rows.Err()
}

// UserHistory aggregates every stored event for user. It returns nil, nil
// when the user has none.
func (s *Store) UserHistory(ctx context.Context, user string) (*UserSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT kind, COUNT(*), MAX(last_seen_ns)
		FROM events WHERE username = ? GROUP BY kind`, user)
	if err != nil {
		return nil, fmt.Errorf("query user history: %w", err)
	}
	defer rows.Close()

	summary := &UserSummary{User: user, KindCounts: make(map[string]int)}
	var latest int64
	for rows.Next() {
		var kind string
		var n int
		var last int64
		if err := rows.Scan(&kind, &n, &last); err != nil {
			return nil, fmt.Errorf("scan user history: %w", err)
		}
		summary.KindCounts[kind] = n
		summary.Events += n
		latest = max(latest, last)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if summary.Events == 0 {
		return nil, nil
	}

	if err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(DISTINCT run_id) FROM events WHERE username = ?", user,
	).Scan(&summary.Runs); err != nil {
		return nil, fmt.Errorf("count user runs: %w", err)
	}
	summary.LastSeen = time.Unix(0, latest)
	return summary, nil
}

// ErrRunNotFound is returned when a run id matches no stored run.
var ErrRunNotFound = errors.New("run not found")

// DeleteRun removes a run and, by cascade, its events.
func (s *Store) DeleteRun(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM runs WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete run: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	return nil
}
