package gates

import (
	"fmt"
	"time"

	"github.com/picklr-io/vpnpilot/internal/vpn"
)

// ManualActivityGrace is how long automation stays away after a human acts.
const ManualActivityGrace = 15 * time.Minute

// Reason tags a veto.
type Reason string

const (
	ReasonInFlight          Reason = "in-flight"
	ReasonActiveConnections Reason = "active-connections"
	ReasonManualActivity    Reason = "manual-activity"
	ReasonAdminOverride     Reason = "admin-override"
	ReasonBusinessHours     Reason = "business-hours"
	ReasonCooldown          Reason = "cooldown"
)

var skipMetrics = map[Reason]string{
	ReasonInFlight:          "InFlightSkips",
	ReasonActiveConnections: "ActiveConnectionSkips",
	ReasonManualActivity:    "ManualActivitySkips",
	ReasonAdminOverride:     "AdminOverrideSkips",
	ReasonBusinessHours:     "BusinessHoursSkips",
	ReasonCooldown:          "CooldownSkips",
}

// MetricName is the counter incremented when this reason vetoes a close.
func (r Reason) MetricName() string {
	return skipMetrics[r]
}

// Silent reports whether a veto should go unannounced.
// In-flight transitions are an expected race.
func (r Reason) Silent() bool {
	return r == ReasonInFlight
}

// Verdict is the outcome of a chain evaluation.
type Verdict struct {
	Allowed bool
	Reason  Reason
	Detail  string
}

func allow() Verdict { return Verdict{Allowed: true} }

func veto(r Reason, format string, args ...any) Verdict {
	return Verdict{Reason: r, Detail: fmt.Sprintf(format, args...)}
}

// Markers are the durable inputs read once per cycle.
type Markers struct {
	Cooldown       time.Time
	ManualActivity time.Time
	Override       Override

	// OverrideErr is set when the override could not be read. The override
	// gate vetoes in that case.
	OverrideErr error
}

// Input is everything a gate may look at.
type Input struct {
	Status  vpn.LiveStatus
	Markers Markers
	Now     time.Time
}

// Config holds gate parameters.
type Config struct {
	Cooldown      time.Duration
	BusinessHours BusinessHours
}

// Gate is a pure predicate. It returns a veto verdict or an allowing one.
type Gate struct {
	Reason Reason
	Check  func(cfg Config, in Input) Verdict
}

// Gates in evaluation order. The first veto wins.
var Gates = []Gate{
	{ReasonInFlight, inFlight},
	{ReasonActiveConnections, activeConnections},
	{ReasonManualActivity, manualActivity},
	{ReasonAdminOverride, adminOverride},
	{ReasonBusinessHours, businessHours},
	{ReasonCooldown, cooldown},
}

// Evaluate runs every gate in order and returns the first veto, or an
// allowing verdict when none objects.
func Evaluate(cfg Config, in Input) Verdict {
	for _, g := range Gates {
		if v := g.Check(cfg, in); !v.Allowed {
			return v
		}
	}
	return allow()
}

func inFlight(_ Config, in Input) Verdict {
	if in.Status.AssociationState.Transitional() {
		return veto(ReasonInFlight, "association is %s", in.Status.AssociationState)
	}
	return allow()
}

func activeConnections(_ Config, in Input) Verdict {
	if in.Status.ActiveConnections > 0 {
		return veto(ReasonActiveConnections, "%d active connections", in.Status.ActiveConnections)
	}
	return allow()
}

func manualActivity(_ Config, in Input) Verdict {
	if in.Markers.ManualActivity.IsZero() {
		return allow()
	}
	if age := in.Now.Sub(in.Markers.ManualActivity); age < ManualActivityGrace {
		return veto(ReasonManualActivity, "manual activity %d minutes ago", int(age/time.Minute))
	}
	return allow()
}

func adminOverride(_ Config, in Input) Verdict {
	if in.Markers.OverrideErr != nil {
		return veto(ReasonAdminOverride, "override unreadable: %v", in.Markers.OverrideErr)
	}
	o := in.Markers.Override
	if !o.Active(in.Now) {
		return allow()
	}
	if o.Expires.IsZero() {
		return veto(ReasonAdminOverride, "admin override enabled")
	}
	return veto(ReasonAdminOverride, "admin override until %s", o.Expires.UTC().Format(time.RFC3339))
}

func businessHours(cfg Config, in Input) Verdict {
	if cfg.BusinessHours.Contains(in.Now) {
		return veto(ReasonBusinessHours, "within business hours (%02d:00-%02d:00 %s)",
			cfg.BusinessHours.StartHour, cfg.BusinessHours.EndHour, cfg.BusinessHours.Timezone)
	}
	return allow()
}

func cooldown(cfg Config, in Input) Verdict {
	if in.Markers.Cooldown.IsZero() {
		return allow()
	}
	if remaining := CooldownRemaining(cfg.Cooldown, in.Markers.Cooldown, in.Now); remaining > 0 {
		return veto(ReasonCooldown, "cooldown active, %d minutes remaining", int((remaining+time.Minute-1)/time.Minute))
	}
	return allow()
}

// CooldownRemaining is the time left in the window that started at marker.
func CooldownRemaining(window time.Duration, marker, now time.Time) time.Duration {
	if marker.IsZero() {
		return 0
	}
	if left := window - now.Sub(marker); left > 0 {
		return left
	}
	return 0
}
