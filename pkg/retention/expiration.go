package retention

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Unit is the calendar unit of an Expiration.
type Unit int

const (
	// Fixed is a plain duration (seconds, "12h", "3 days").
	Fixed Unit = iota
	Months
	Years
)

// Expiration is how long a blob may go unaccessed before a rule removes it.
//
// Months and years are calendar-based (time.AddDate), not fixed multiples of
// days.
type Expiration struct {
	Duration time.Duration
	Amount   int
	Unit     Unit

	raw string
}

var humanExpiration = regexp.MustCompile(`^(\d+)\s*([a-zA-Z]+)$`)

var fixedUnits = map[string]time.Duration{
	"s": time.Second, "sec": time.Second, "secs": time.Second, "second": time.Second, "seconds": time.Second,
	"m": time.Minute, "min": time.Minute, "mins": time.Minute, "minute": time.Minute, "minutes": time.Minute,
	"h": time.Hour, "hr": time.Hour, "hrs": time.Hour, "hour": time.Hour, "hours": time.Hour,
	"d": 24 * time.Hour, "day": 24 * time.Hour, "days": 24 * time.Hour,
	"w": 7 * 24 * time.Hour, "week": 7 * 24 * time.Hour, "weeks": 7 * 24 * time.Hour,
}

var calendarUnits = map[string]Unit{
	"month": Months, "months": Months, "mo": Months,
	"y": Years, "year": Years, "years": Years, "yr": Years, "yrs": Years,
}

// ParseExpiration parses a rule expiration. Accepted forms:
//   - bare seconds: "86400"
//   - Go durations: "12h", "90m", "1h30m"
//   - amount and unit: "30 days", "1 week", "2 months", "1 year"
func ParseExpiration(s string) (Expiration, error) {
	raw := strings.TrimSpace(s)
	if raw == "" {
		return Expiration{}, fmt.Errorf("expiration is empty")
	}

	if secs, err := strconv.ParseInt(raw, 10, 64); err == nil {
		if secs <= 0 {
			return Expiration{}, fmt.Errorf("expiration %q must be positive", s)
		}
		return Expiration{Duration: time.Duration(secs) * time.Second, raw: raw}, nil
	}

	if d, err := time.ParseDuration(raw); err == nil {
		if d <= 0 {
			return Expiration{}, fmt.Errorf("expiration %q must be positive", s)
		}
		return Expiration{Duration: d, raw: raw}, nil
	}

	m := humanExpiration.FindStringSubmatch(raw)
	if m == nil {
		return Expiration{}, fmt.Errorf("invalid expiration %q", s)
	}
	amount, err := strconv.Atoi(m[1])
	if err != nil || amount <= 0 {
		return Expiration{}, fmt.Errorf("expiration %q must be positive", s)
	}

	unit := strings.ToLower(m[2])
	if d, ok := fixedUnits[unit]; ok {
		return Expiration{Duration: time.Duration(amount) * d, raw: raw}, nil
	}
	if u, ok := calendarUnits[unit]; ok {
		return Expiration{Amount: amount, Unit: u, raw: raw}, nil
	}
	return Expiration{}, fmt.Errorf("invalid expiration unit %q in %q", m[2], s)
}

// Cutoff returns the unix timestamp before which a blob is expired.
func (e Expiration) Cutoff(now time.Time) int64 {
	switch e.Unit {
	case Months:
		return now.AddDate(0, -e.Amount, 0).Unix()
	case Years:
		return now.AddDate(-e.Amount, 0, 0).Unix()
	default:
		return now.Add(-e.Duration).Unix()
	}
}

func (e Expiration) String() string {
	if e.raw != "" {
		return e.raw
	}
	switch e.Unit {
	case Months:
		return fmt.Sprintf("%d months", e.Amount)
	case Years:
		return fmt.Sprintf("%d years", e.Amount)
	default:
		return e.Duration.String()
	}
}
