// Package detect finds suspicious login activity in a batch of records.
//
// Three detectors run over the same input and their outputs are
// concatenated in a fixed order: multiple failed logins, logins outside
// business hours, logins from multiple source addresses. Detection is a
// pure function of the records and the Config.
package detect

import (
	"fmt"
	"slices"
	"time"
)

// Kind categorizes a suspicious event.
type Kind string

const (
	KindMultipleFailedLogins      Kind = "multiple_failed_logins"
	KindLoginOutsideBusinessHours Kind = "login_outside_business_hours"
	KindMultipleSourceAddresses   Kind = "multiple_source_addresses"
)

// Kinds lists every kind in block order.
var Kinds = []Kind{
	KindMultipleFailedLogins,
	KindLoginOutsideBusinessHours,
	KindMultipleSourceAddresses,
}

// Label returns the human-readable title used in reports.
func (k Kind) Label() string {
	switch k {
	case KindMultipleFailedLogins:
		return "Multiple Failed Login Attempts"
	case KindLoginOutsideBusinessHours:
		return "Login Outside Business Hours"
	case KindMultipleSourceAddresses:
		return "Multiple IP Addresses"
	default:
		return "Unknown Event Type"
	}
}

// Event is one detected anomaly.
//
// Count is the number of implicated records, except for
// KindMultipleSourceAddresses where it is the number of distinct sources.
type Event struct {
	Kind        Kind      `json:"kind" yaml:"kind"`
	User        string    `json:"user" yaml:"user"`
	Sources     []string  `json:"sources" yaml:"sources"`
	FirstSeen   time.Time `json:"first_seen" yaml:"first_seen"`
	LastSeen    time.Time `json:"last_seen" yaml:"last_seen"`
	Count       int       `json:"count" yaml:"count"`
	Description string    `json:"description" yaml:"description"`
}

// Validate checks the structural invariants an emitted event must satisfy
// under cfg.
func (e Event) Validate(cfg Config) error {
	if e.User == "" {
		return fmt.Errorf("%s: empty user", e.Kind)
	}
	if len(e.Sources) == 0 {
		return fmt.Errorf("%s: no sources", e.Kind)
	}
	if e.LastSeen.Before(e.FirstSeen) {
		return fmt.Errorf("%s: last_seen %s before first_seen %s", e.Kind, e.LastSeen, e.FirstSeen)
	}
	if e.Count < 1 {
		return fmt.Errorf("%s: count %d < 1", e.Kind, e.Count)
	}

	switch e.Kind {
	case KindMultipleFailedLogins:
		if e.Count < cfg.FailedThreshold {
			return fmt.Errorf("%s: count %d below threshold %d", e.Kind, e.Count, cfg.FailedThreshold)
		}
		if len(e.Sources) != 1 {
			return fmt.Errorf("%s: expected 1 source, got %d", e.Kind, len(e.Sources))
		}
	case KindLoginOutsideBusinessHours:
		if !e.FirstSeen.Equal(e.LastSeen) || e.Count != 1 {
			return fmt.Errorf("%s: expected a single instant with count 1", e.Kind)
		}
	case KindMultipleSourceAddresses:
		if len(e.Sources) < 2 {
			return fmt.Errorf("%s: expected at least 2 sources, got %d", e.Kind, len(e.Sources))
		}
		if e.Count != len(e.Sources) {
			return fmt.Errorf("%s: count %d != %d sources", e.Kind, e.Count, len(e.Sources))
		}
		if !slices.IsSorted(e.Sources) {
			return fmt.Errorf("%s: sources not in ascending order", e.Kind)
		}
		if !withinWindow(e.FirstSeen, e.LastSeen, cfg.WindowMinutes) {
			return fmt.Errorf("%s: span exceeds %d minutes", e.Kind, cfg.WindowMinutes)
		}
	default:
		return fmt.Errorf("unknown event kind %q", e.Kind)
	}
	return nil
}

func failedLoginsDescription(user string, n, window int) string {
	return fmt.Sprintf("User '%s' had %d failed login attempts within %d minutes", user, n, window)
}

func outsideHoursDescription(user string, hour, start, end int) string {
	return fmt.Sprintf("User '%s' logged in at hour %d (outside business hours: %d:00-%d:00)", user, hour, start, end)
}

func multipleSourcesDescription(user string, n, window int) string {
	return fmt.Sprintf("User '%s' logged in from %d different IP addresses within %d minutes", user, n, window)
}
