package detect

import "time"

// Default detector parameters.
const (
	DefaultFailedThreshold = 5
	DefaultWindowMinutes   = 10
	DefaultBusinessStart   = 8
	DefaultBusinessEnd     = 18
)

// Config holds detector parameters. The configuration layer validates it
// before detection; detectors assume FailedThreshold >= 1,
// WindowMinutes >= 1 and 0 <= BusinessStart < BusinessEnd <= 23.
type Config struct {
	FailedThreshold int
	WindowMinutes   int

	// Business hours are the half-open interval [BusinessStart, BusinessEnd).
	BusinessStart int
	BusinessEnd   int

	// Location is the civil-time zone for hour-of-day checks.
	// Nil means time.Local.
	Location *time.Location
}

// DefaultConfig returns the stock detector parameters.
func DefaultConfig() Config {
	return Config{
		FailedThreshold: DefaultFailedThreshold,
		WindowMinutes:   DefaultWindowMinutes,
		BusinessStart:   DefaultBusinessStart,
		BusinessEnd:     DefaultBusinessEnd,
	}
}

func (c Config) location() *time.Location {
	if c.Location == nil {
		return time.Local
	}
	return c.Location
}

// IsBusinessHour reports whether hour falls inside [BusinessStart, BusinessEnd).
func (c Config) IsBusinessHour(hour int) bool {
	return hour >= c.BusinessStart && hour < c.BusinessEnd
}
