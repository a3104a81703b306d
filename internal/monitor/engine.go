package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/picklr-io/vpnpilot/internal/cost"
	"github.com/picklr-io/vpnpilot/internal/gates"
	"github.com/picklr-io/vpnpilot/internal/logging"
	"github.com/picklr-io/vpnpilot/internal/metrics"
	"github.com/picklr-io/vpnpilot/internal/notify"
	"github.com/picklr-io/vpnpilot/internal/vpn"
)

// Outcome is the terminal state of one evaluation cycle.
type Outcome string

const (
	OutcomeNoAction           Outcome = "no-action-needed"
	OutcomeActive             Outcome = "active"
	OutcomeIdleBelowThreshold Outcome = "idle-below-threshold"
	OutcomeGated              Outcome = "gated"
	OutcomeClosed             Outcome = "closed"
	OutcomeOpened             Outcome = "opened"
	OutcomeSkipped            Outcome = "skipped"
	OutcomeError              Outcome = "error"
)

// Decision describes what a cycle did.
type Decision struct {
	Outcome     Outcome        `json:"outcome"`
	Reason      gates.Reason   `json:"reason,omitempty"`
	Detail      string         `json:"detail,omitempty"`
	IdleMinutes int            `json:"idleMinutes"`
	Status      vpn.LiveStatus `json:"status"`
	Savings     *cost.Estimate `json:"savings,omitempty"`
	Err         error          `json:"-"`
}

// Config holds the engine's thresholds.
type Config struct {
	Environment   string
	IdleThreshold time.Duration
	AutoOpenDays  []time.Weekday
	Timezone      string
	CostTracking  bool
}

// Engine decides whether to close an idle endpoint and performs the close.
type Engine struct {
	cfg        Config
	manager    *vpn.Manager
	chain      *gates.Chain
	markers    *gates.MarkerStore
	accountant *cost.Accountant
	notifier   *notify.Notifier
	recorder   *metrics.Recorder
	logger     *slog.Logger
}

// Deps are the collaborators an Engine drives.
type Deps struct {
	Manager    *vpn.Manager
	Chain      *gates.Chain
	Markers    *gates.MarkerStore
	Accountant *cost.Accountant
	Notifier   *notify.Notifier
	Recorder   *metrics.Recorder
	Logger     *slog.Logger
}

func New(cfg Config, deps Deps) *Engine {
	return &Engine{
		cfg:        cfg,
		manager:    deps.Manager,
		chain:      deps.Chain,
		markers:    deps.Markers,
		accountant: deps.Accountant,
		notifier:   deps.Notifier,
		recorder:   deps.Recorder,
		logger:     logging.OrDefault(deps.Logger).With("environment", cfg.Environment),
	}
}

// Evaluate runs one idle-check cycle to completion.
func (e *Engine) Evaluate(ctx context.Context) Decision {
	d := e.evaluate(ctx)
	e.logger.Info("idle check complete",
		"outcome", string(d.Outcome), "reason", string(d.Reason), "idle_minutes", d.IdleMinutes)
	return d
}

func (e *Engine) evaluate(ctx context.Context) Decision {
	if err := e.manager.ValidateEndpoint(ctx); err != nil {
		return e.fail(ctx, Decision{}, "VPN monitor: endpoint validation failed", metrics.MonitorErrors, err)
	}

	st, err := e.manager.Status(ctx)
	if err != nil {
		return e.fail(ctx, Decision{}, "VPN monitor error", metrics.MonitorErrors, err)
	}
	now := e.manager.Now()
	d := Decision{Status: st}

	associated := 0.0
	if st.Associated {
		associated = 1
	}
	e.recorder.Gauge(ctx, metrics.AssociationStatus, associated)
	e.recorder.Gauge(ctx, metrics.ActiveConnections, float64(st.ActiveConnections))

	if !st.Associated && !st.AssociationState.Transitional() && !st.Stranded() {
		d.Outcome = OutcomeNoAction
		return d
	}

	if st.ActiveConnections > 0 {
		e.chain.ResetIdle(ctx)
		d.Outcome = OutcomeActive
		return d
	}

	d.IdleMinutes = st.IdleMinutes(now)
	e.recorder.Gauge(ctx, metrics.IdleTimeMinutes, float64(d.IdleMinutes))
	if time.Duration(d.IdleMinutes)*time.Minute < e.cfg.IdleThreshold {
		d.Outcome = OutcomeIdleBelowThreshold
		return d
	}

	if v := e.chain.Evaluate(ctx, st, now); !v.Allowed {
		return e.gated(ctx, d, v, now)
	}

	changed, err := e.manager.Close(ctx)
	if errors.Is(err, vpn.ErrTransientState) {
		e.recorder.Count(ctx, metrics.TransientStateRejections, 1)
		return e.gated(ctx, d, gates.Verdict{Reason: gates.ReasonInFlight, Detail: err.Error()}, now)
	}
	if err != nil {
		msg := fmt.Sprintf("Failed to auto-close VPN %s after %d minutes idle", e.cfg.Environment, d.IdleMinutes)
		return e.fail(ctx, d, msg, metrics.AutoDisassociationErrors, err)
	}
	if !changed {
		d.Outcome = OutcomeNoAction
		return d
	}

	if err := e.markers.SetCooldown(ctx, now); err != nil {
		e.logger.Warn("failed to record cooldown", "error", err)
	}
	e.recorder.Count(ctx, metrics.IdleDisassociations, 1)

	savingsNote := ""
	if e.cfg.CostTracking && e.accountant != nil {
		est := e.accountant.RecordClose(ctx, len(st.SubnetIDs), d.IdleMinutes, now)
		d.Savings = &est
		savingsNote = fmt.Sprintf(" (~$%.2f/hour saved)", est.HourlySavings)
	}

	e.notifier.Notifyf(ctx, ":warning: VPN %s was idle for %d minutes. Subnets automatically disassociated to save costs%s. Use `/vpn open %s` to re-enable.",
		e.cfg.Environment, d.IdleMinutes, savingsNote, e.cfg.Environment)
	d.Outcome = OutcomeClosed
	return d
}

func (e *Engine) gated(ctx context.Context, d Decision, v gates.Verdict, now time.Time) Decision {
	d.Outcome = OutcomeGated
	d.Reason = v.Reason
	d.Detail = v.Detail

	e.recorder.Count(ctx, v.Reason.MetricName(), 1)
	if v.Reason == gates.ReasonCooldown {
		if left, err := e.chain.CooldownRemaining(ctx, now); err == nil {
			e.recorder.Gauge(ctx, metrics.CooldownRemainingMinutes, left.Minutes())
		}
	}
	if v.Reason.Silent() {
		return d
	}
	e.notifier.Notifyf(ctx, ":information_source: VPN %s has been idle for %d minutes but auto-close was skipped: %s",
		e.cfg.Environment, d.IdleMinutes, v.Detail)
	return d
}

func (e *Engine) fail(ctx context.Context, d Decision, msg, metric string, err error) Decision {
	d.Outcome = OutcomeError
	d.Err = err
	e.logger.Error(msg, "error", err, "kind", vpn.Kind(err))
	e.recorder.Count(ctx, metric, 1)
	e.notifier.Alert(ctx, notify.SeverityCritical, fmt.Sprintf("%s: %v", msg, err))
	return d
}

// AutoOpen opens the endpoint on configured weekdays. The time of day is
// owned by the schedule that triggers it.
func (e *Engine) AutoOpen(ctx context.Context) Decision {
	d := e.autoOpen(ctx)
	e.logger.Info("auto-open complete", "outcome", string(d.Outcome), "detail", d.Detail)
	return d
}

func (e *Engine) autoOpen(ctx context.Context) Decision {
	now := e.manager.Now()
	local := gates.LocalTime(now, e.cfg.Timezone)
	if !containsDay(e.cfg.AutoOpenDays, local.Weekday()) {
		return Decision{Outcome: OutcomeSkipped, Detail: fmt.Sprintf("%s is not an auto-open day", local.Weekday())}
	}

	if err := e.manager.ValidateEndpoint(ctx); err != nil {
		return e.fail(ctx, Decision{}, "VPN auto-open: endpoint validation failed", metrics.MonitorErrors, err)
	}

	changed, err := e.manager.Open(ctx)
	if errors.Is(err, vpn.ErrTransientState) {
		e.recorder.Count(ctx, metrics.TransientStateRejections, 1)
		return Decision{Outcome: OutcomeSkipped, Detail: err.Error()}
	}
	if err != nil {
		return e.fail(ctx, Decision{}, fmt.Sprintf("Failed to auto-open VPN %s", e.cfg.Environment), metrics.OperationErrors, err)
	}
	if !changed {
		return Decision{Outcome: OutcomeNoAction, Detail: "already open"}
	}

	if err := e.markers.ClearCooldown(ctx); err != nil {
		e.logger.Warn("failed to clear cooldown", "error", err)
	}
	e.recorder.Count(ctx, metrics.AutoOpenOperations, 1)
	e.notifier.Notifyf(ctx, ":sunrise: VPN %s opened automatically for the working day. It closes again after %d idle minutes.",
		e.cfg.Environment, int(e.cfg.IdleThreshold/time.Minute))
	return Decision{Outcome: OutcomeOpened}
}

func containsDay(days []time.Weekday, d time.Weekday) bool {
	for _, x := range days {
		if x == d {
			return true
		}
	}
	return false
}
