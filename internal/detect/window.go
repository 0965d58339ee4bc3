package detect

import (
	"maps"
	"slices"
	"time"

	"authscan/internal/authlog"
)

// withinWindow reports whether t lies within window minutes of first.
// The gap is truncated to whole minutes before comparing, so a gap of
// 10m59s fits a 10 minute window.
func withinWindow(first, t time.Time, window int) bool {
	gap := t.Sub(first)
	if gap < 0 {
		gap = -gap
	}
	return int64(gap/time.Minute) <= int64(window)
}

// groupByUser partitions records with the given outcome by user. Each
// group keeps acceptance order and is then stably sorted by timestamp.
// Users are returned in ascending order.
func groupByUser(records []authlog.Record, outcome authlog.Outcome) ([]string, map[string][]authlog.Record) {
	groups := make(map[string][]authlog.Record)
	for _, r := range records {
		if r.Outcome != outcome {
			continue
		}
		groups[r.User] = append(groups[r.User], r)
	}

	for _, g := range groups {
		slices.SortStableFunc(g, func(a, b authlog.Record) int {
			return a.Timestamp.Compare(b.Timestamp)
		})
	}

	return slices.Sorted(maps.Keys(groups)), groups
}

// sweep walks a timestamp-sorted slice with an anchor i and the largest j
// such that records[j] is within window of records[i]. flag is called with
// records[i:j+1]; when it returns true the sweep resumes after j so that
// flagged clusters never overlap, otherwise the anchor advances by one.
//
// The right edge never moves backwards because the slice is sorted, so the
// whole sweep is linear in len(records).
func sweep(records []authlog.Record, window int, flag func(cluster []authlog.Record) bool) {
	j := 0
	for i := 0; i < len(records); {
		if j < i {
			j = i
		}
		for j+1 < len(records) && withinWindow(records[i].Timestamp, records[j+1].Timestamp, window) {
			j++
		}

		if flag(records[i : j+1]) {
			i = j + 1
		} else {
			i++
		}
	}
}

// distinctSources returns the distinct sources of a cluster in ascending order.
func distinctSources(cluster []authlog.Record) []string {
	seen := make(map[string]struct{}, len(cluster))
	for _, r := range cluster {
		seen[r.Source] = struct{}{}
	}
	return slices.Sorted(maps.Keys(seen))
}

// sortBlock orders a detector's output by (first_seen, user). The sort is
// stable so events of one user keep their sweep order.
func sortBlock(events []Event) {
	slices.SortStableFunc(events, func(a, b Event) int {
		if c := a.FirstSeen.Compare(b.FirstSeen); c != 0 {
			return c
		}
		switch {
		case a.User < b.User:
			return -1
		case a.User > b.User:
			return 1
		}
		return 0
	})
}
