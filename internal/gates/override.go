package gates

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	overrideEnabled      = "enabled"
	overrideExpiryPrefix = "enabled:expires:"
)

// Override is an administrative hold on automatic close.
// A zero Expires means the override has no expiry.
type Override struct {
	Enabled bool
	Expires time.Time
}

// ParseOverride decodes "", "enabled" or "enabled:expires:<RFC3339>".
// Expiries given as epoch milliseconds are accepted too.
func ParseOverride(s string) (Override, error) {
	s = strings.TrimSpace(s)
	switch {
	case s == "":
		return Override{}, nil
	case s == overrideEnabled:
		return Override{Enabled: true}, nil
	case strings.HasPrefix(s, overrideExpiryPrefix):
		raw := strings.TrimPrefix(s, overrideExpiryPrefix)
		if t, err := time.Parse(time.RFC3339Nano, raw); err == nil {
			return Override{Enabled: true, Expires: t.UTC()}, nil
		}
		if ms, err := strconv.ParseInt(raw, 10, 64); err == nil {
			return Override{Enabled: true, Expires: time.UnixMilli(ms).UTC()}, nil
		}
		return Override{}, fmt.Errorf("invalid override expiry %q", raw)
	default:
		return Override{}, fmt.Errorf("invalid override value %q", s)
	}
}

func (o Override) String() string {
	if !o.Enabled {
		return ""
	}
	if o.Expires.IsZero() {
		return overrideEnabled
	}
	return overrideExpiryPrefix + o.Expires.UTC().Format(time.RFC3339)
}

// Active reports whether the override is enabled and not yet expired.
func (o Override) Active(now time.Time) bool {
	return o.Enabled && (o.Expires.IsZero() || now.Before(o.Expires))
}

// Expired reports whether an enabled override has passed its expiry.
func (o Override) Expired(now time.Time) bool {
	return o.Enabled && !o.Expires.IsZero() && !now.Before(o.Expires)
}

// ParseDuration accepts Nm, Nh and Nd. An empty string yields def.
func ParseDuration(s string, def time.Duration) (time.Duration, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	if s == "" {
		return def, nil
	}
	if len(s) < 2 {
		return 0, fmt.Errorf("invalid duration %q: use Nm, Nh or Nd", s)
	}
	n, err := strconv.Atoi(s[:len(s)-1])
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid duration %q: use Nm, Nh or Nd", s)
	}
	switch s[len(s)-1] {
	case 'm':
		return time.Duration(n) * time.Minute, nil
	case 'h':
		return time.Duration(n) * time.Hour, nil
	case 'd':
		return time.Duration(n) * 24 * time.Hour, nil
	default:
		return 0, fmt.Errorf("invalid duration %q: use Nm, Nh or Nd", s)
	}
}
