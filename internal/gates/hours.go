package gates

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Standard-time offsets in hours. Daylight saving is ignored; the gate only
// needs coarse business-hour boundaries.
var zoneOffsets = map[string]int{
	"UTC":                 0,
	"GMT":                 0,
	"Etc/UTC":             0,
	"Europe/London":       0,
	"Europe/Dublin":       0,
	"Europe/Paris":        1,
	"Europe/Berlin":       1,
	"Europe/Amsterdam":    1,
	"Asia/Kolkata":        5,
	"Asia/Singapore":      8,
	"Asia/Shanghai":       8,
	"Asia/Hong_Kong":      8,
	"Asia/Taipei":         8,
	"Asia/Tokyo":          9,
	"Asia/Seoul":          9,
	"Australia/Sydney":    10,
	"America/New_York":    -5,
	"America/Chicago":     -6,
	"America/Denver":      -7,
	"America/Los_Angeles": -8,
}

// ZoneOffset returns the fixed hour offset for tz. ok is false for unknown zones.
func ZoneOffset(tz string) (hours int, ok bool) {
	hours, ok = zoneOffsets[tz]
	return hours, ok
}

// LocalTime shifts now into tz using the offset table. Unknown zones are UTC.
func LocalTime(now time.Time, tz string) time.Time {
	offset, _ := ZoneOffset(tz)
	return now.UTC().Add(time.Duration(offset) * time.Hour)
}

// BusinessHours describes the protected window.
type BusinessHours struct {
	Enabled   bool
	Timezone  string
	StartHour int
	EndHour   int
	Days      []time.Weekday
}

// DefaultBusinessHours is Monday to Friday, 09:00 to 18:00 UTC.
func DefaultBusinessHours() BusinessHours {
	return BusinessHours{
		Enabled:   true,
		Timezone:  "UTC",
		StartHour: 9,
		EndHour:   18,
		Days:      []time.Weekday{time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday},
	}
}

// Contains reports whether now falls on a configured day within [StartHour, EndHour).
// Returns false when the window is disabled.
func (b BusinessHours) Contains(now time.Time) bool {
	if !b.Enabled {
		return false
	}
	local := LocalTime(now, b.Timezone)
	if !containsDay(b.Days, local.Weekday()) {
		return false
	}
	h := local.Hour()
	return h >= b.StartHour && h < b.EndHour
}

func containsDay(days []time.Weekday, d time.Weekday) bool {
	for _, x := range days {
		if x == d {
			return true
		}
	}
	return false
}

// ParseDays parses a weekday list such as "1-5" or "1,3,5" (0 = Sunday).
func ParseDays(s string) ([]time.Weekday, error) {
	var days []time.Weekday
	seen := map[time.Weekday]bool{}
	add := func(d int) error {
		if d < 0 || d > 6 {
			return fmt.Errorf("weekday %d out of range 0-6", d)
		}
		if !seen[time.Weekday(d)] {
			seen[time.Weekday(d)] = true
			days = append(days, time.Weekday(d))
		}
		return nil
	}
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if lo, hi, ok := strings.Cut(part, "-"); ok {
			from, err1 := strconv.Atoi(strings.TrimSpace(lo))
			to, err2 := strconv.Atoi(strings.TrimSpace(hi))
			if err1 != nil || err2 != nil || from > to {
				return nil, fmt.Errorf("invalid weekday range %q", part)
			}
			for d := from; d <= to; d++ {
				if err := add(d); err != nil {
					return nil, err
				}
			}
			continue
		}
		d, err := strconv.Atoi(part)
		if err != nil {
			return nil, fmt.Errorf("invalid weekday %q", part)
		}
		if err := add(d); err != nil {
			return nil, err
		}
	}
	if len(days) == 0 {
		return nil, fmt.Errorf("no weekdays in %q", s)
	}
	return days, nil
}
