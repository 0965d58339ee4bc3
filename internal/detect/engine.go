package detect

import (
	"authscan/internal/authlog"
)

// Detector produces one block of events from a batch of records.
// Implementations must not retain or modify the input slice.
type Detector interface {
	// Kind is the single kind of event the detector emits.
	Kind() Kind

	// Detect returns the detector's events in block order.
	Detect(records []authlog.Record) []Event
}

// Engine runs the three detectors in block order.
type Engine struct {
	cfg       Config
	detectors []Detector
}

// NewEngine creates an engine for cfg.
func NewEngine(cfg Config) *Engine {
	return &Engine{
		cfg: cfg,
		detectors: []Detector{
			FailedLogins{cfg: cfg},
			OutsideBusinessHours{cfg: cfg},
			MultipleSources{cfg: cfg},
		},
	}
}

// Config returns the parameters the engine was built with.
func (e *Engine) Config() Config {
	return e.cfg
}

// Detectors returns the detectors in the order DetectAll runs them.
func (e *Engine) Detectors() []Detector {
	return append([]Detector(nil), e.detectors...)
}

// DetectAll concatenates the output of every detector.
func (e *Engine) DetectAll(records []authlog.Record) []Event {
	var all []Event
	for _, d := range e.detectors {
		all = append(all, d.Detect(records)...)
	}
	return all
}

// DetectAll is shorthand for NewEngine(cfg).DetectAll(records).
func DetectAll(records []authlog.Record, cfg Config) []Event {
	return NewEngine(cfg).DetectAll(records)
}

// FailedLogins flags bursts of failed logins for one user: at least
// FailedThreshold failures within WindowMinutes of the first.
type FailedLogins struct {
	cfg Config
}

// NewFailedLogins creates the failed-login detector.
func NewFailedLogins(cfg Config) FailedLogins {
	return FailedLogins{cfg: cfg}
}

func (d FailedLogins) Kind() Kind { return KindMultipleFailedLogins }

func (d FailedLogins) Detect(records []authlog.Record) []Event {
	var events []Event

	users, groups := groupByUser(records, authlog.OutcomeFailed)
	for _, user := range users {
		sweep(groups[user], d.cfg.WindowMinutes, func(cluster []authlog.Record) bool {
			n := len(cluster)
			if n < d.cfg.FailedThreshold {
				return false
			}
			first, last := cluster[0], cluster[n-1]
			events = append(events, Event{
				Kind:        KindMultipleFailedLogins,
				User:        user,
				Sources:     []string{first.Source},
				FirstSeen:   first.Timestamp,
				LastSeen:    last.Timestamp,
				Count:       n,
				Description: failedLoginsDescription(user, n, d.cfg.WindowMinutes),
			})
			return true
		})
	}

	sortBlock(events)
	return events
}

// OutsideBusinessHours flags every successful login whose hour, in the
// configured zone, falls outside [BusinessStart, BusinessEnd).
type OutsideBusinessHours struct {
	cfg Config
}

// NewOutsideBusinessHours creates the after-hours detector.
func NewOutsideBusinessHours(cfg Config) OutsideBusinessHours {
	return OutsideBusinessHours{cfg: cfg}
}

func (d OutsideBusinessHours) Kind() Kind { return KindLoginOutsideBusinessHours }

// Detect visits records in input order.
func (d OutsideBusinessHours) Detect(records []authlog.Record) []Event {
	var events []Event
	loc := d.cfg.location()

	for _, r := range records {
		if r.Outcome != authlog.OutcomeSuccess {
			continue
		}
		hour := r.Timestamp.In(loc).Hour()
		if d.cfg.IsBusinessHour(hour) {
			continue
		}
		events = append(events, Event{
			Kind:        KindLoginOutsideBusinessHours,
			User:        r.User,
			Sources:     []string{r.Source},
			FirstSeen:   r.Timestamp,
			LastSeen:    r.Timestamp,
			Count:       1,
			Description: outsideHoursDescription(r.User, hour, d.cfg.BusinessStart, d.cfg.BusinessEnd),
		})
	}
	return events
}

// MultipleSources flags one account logging in successfully from two or
// more distinct sources within WindowMinutes.
type MultipleSources struct {
	cfg Config
}

// NewMultipleSources creates the multi-source detector.
func NewMultipleSources(cfg Config) MultipleSources {
	return MultipleSources{cfg: cfg}
}

func (d MultipleSources) Kind() Kind { return KindMultipleSourceAddresses }

func (d MultipleSources) Detect(records []authlog.Record) []Event {
	var events []Event

	users, groups := groupByUser(records, authlog.OutcomeSuccess)
	for _, user := range users {
		sweep(groups[user], d.cfg.WindowMinutes, func(cluster []authlog.Record) bool {
			sources := distinctSources(cluster)
			if len(sources) < 2 {
				return false
			}
			events = append(events, Event{
				Kind:        KindMultipleSourceAddresses,
				User:        user,
				Sources:     sources,
				FirstSeen:   cluster[0].Timestamp,
				LastSeen:    cluster[len(cluster)-1].Timestamp,
				Count:       len(sources),
				Description: multipleSourcesDescription(user, len(sources), d.cfg.WindowMinutes),
			})
			return true
		})
	}

	sortBlock(events)
	return events
}
