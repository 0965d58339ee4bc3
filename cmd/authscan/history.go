package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"
	"time"

	"authscan/internal/analyzer"
	"authscan/internal/authlog"
	"authscan/internal/detect"
	"authscan/internal/store"
)

// storeQuery is one of the modes that read or prune the export database
// instead of analyzing a log.
type storeQuery struct {
	historyUser string
	listRuns    bool
	runsLimit   int
	deleteRun   string
}

func (q storeQuery) active() int {
	n := 0
	if q.historyUser != "" {
		n++
	}
	if q.listRuns {
		n++
	}
	if q.deleteRun != "" {
		n++
	}
	return n
}

// runStoreQuery executes q against the database at path and returns the
// process exit code.
func runStoreQuery(ctx context.Context, q storeQuery, path string, loc *time.Location, stdout, stderr io.Writer) int {
	if path == "" {
		fmt.Fprintf(stderr, "Error: -history, -runs and -delete-run need an export database (-sqlite)\n")
		return analyzer.ExitConfig
	}
	if _, err := os.Stat(path); err != nil {
		fmt.Fprintf(stderr, "Error: open export database: %v\n", err)
		return analyzer.ExitInput
	}

	s, err := store.Open(ctx, path)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return analyzer.ExitExport
	}
	defer s.Close()

	switch {
	case q.historyUser != "":
		err = printHistory(ctx, s, q.historyUser, loc, stdout)
	case q.listRuns:
		err = printRuns(ctx, s, q.runsLimit, loc, stdout)
	case q.deleteRun != "":
		err = s.DeleteRun(ctx, q.deleteRun)
		if err == nil {
			fmt.Fprintf(stdout, "Deleted run %s\n", q.deleteRun)
		}
	}
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		if errors.Is(err, store.ErrRunNotFound) {
			return analyzer.ExitInput
		}
		return analyzer.ExitExport
	}
	return analyzer.ExitOK
}

func printHistory(ctx context.Context, s *store.Store, user string, loc *time.Location, w io.Writer) error {
	h, err := s.UserHistory(ctx, user)
	if err != nil {
		return err
	}
	if h == nil {
		fmt.Fprintf(w, "No stored events for user '%s'.\n", user)
		return nil
	}

	fmt.Fprintf(w, "User: %s\n", h.User)
	fmt.Fprintf(w, "Runs With Events: %d\n", h.Runs)
	fmt.Fprintf(w, "Total Events: %d\n", h.Events)
	fmt.Fprintf(w, "Last Occurrence: %s\n", h.LastSeen.In(loc).Format(authlog.TimestampLayout))

	kinds := make([]string, 0, len(h.KindCounts))
	for k := range h.KindCounts {
		kinds = append(kinds, k)
	}
	// Known kinds in report order, anything else after them.
	slices.SortFunc(kinds, func(a, b string) int {
		ia, ib := kindRank(a), kindRank(b)
		if ia != ib {
			return ia - ib
		}
		return strings.Compare(a, b)
	})
	for _, k := range kinds {
		fmt.Fprintf(w, "    %s: %d\n", detect.Kind(k).Label(), h.KindCounts[k])
	}
	return nil
}

func kindRank(k string) int {
	if i := slices.Index(detect.Kinds, detect.Kind(k)); i >= 0 {
		return i
	}
	return len(detect.Kinds)
}

func printRuns(ctx context.Context, s *store.Store, limit int, loc *time.Location, w io.Writer) error {
	runs, err := s.ListRuns(ctx, limit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Fprintln(w, "No stored runs.")
		return nil
	}
	for _, r := range runs {
		fmt.Fprintf(w, "%s  %s  records=%d invalid=%d events=%d  %s\n",
			r.ID,
			r.StartedAt.In(loc).Format(authlog.TimestampLayout),
			r.Records, r.InvalidLines, r.EventCount,
			r.InputPath,
		)
	}
	return nil
}
