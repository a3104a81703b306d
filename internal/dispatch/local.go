package dispatch

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
	"github.com/picklr-io/vpnpilot/internal/monitor"
	"github.com/picklr-io/vpnpilot/internal/notify"
	"github.com/picklr-io/vpnpilot/internal/retry"
	"github.com/picklr-io/vpnpilot/internal/vpn"
)

// DefaultOverrideDuration applies when admin-override has no duration.
const DefaultOverrideDuration = 24 * time.Hour

// LocalExecutor runs commands against this environment's endpoint.
type LocalExecutor struct {
	environment string
	manager     *vpn.Manager
	markers     *gates.MarkerStore
	chain       *gates.Chain
	accountant  *cost.Accountant
	engine      *monitor.Engine
	notifier    *notify.Notifier
	recorder    *metrics.Recorder
	logger      *slog.Logger
}

// LocalDeps are the collaborators of a LocalExecutor.
type LocalDeps struct {
	Manager    *vpn.Manager
	Markers    *gates.MarkerStore
	Chain      *gates.Chain
	Accountant *cost.Accountant
	Engine     *monitor.Engine
	Notifier   *notify.Notifier
	Recorder   *metrics.Recorder
	Logger     *slog.Logger
}

func NewLocalExecutor(environment string, deps LocalDeps) *LocalExecutor {
	return &LocalExecutor{
		environment: environment,
		manager:     deps.Manager,
		markers:     deps.Markers,
		chain:       deps.Chain,
		accountant:  deps.Accountant,
		engine:      deps.Engine,
		notifier:    deps.Notifier,
		recorder:    deps.Recorder,
		logger:      logging.OrDefault(deps.Logger).With("environment", environment),
	}
}

// Execute runs cmd and converts every failure into a failed Result.
// Transient-state rejections are counted, not alerted.
func (x *LocalExecutor) Execute(ctx context.Context, cmd Command) Result {
	// the engine validates scheduled actions itself
	if cmd.Action.Mutating() && !cmd.Action.Scheduled() {
		if err := x.manager.ValidateEndpoint(ctx); err != nil {
			x.notifier.Alert(ctx, notify.SeverityCritical, "VPN endpoint validation failed. Please check configuration.")
			x.recorder.Count(ctx, metrics.OperationErrors, 1)
			return Failed(fmt.Errorf("VPN %s failed: %w", cmd.Action, err))
		}
	}

	res, err := x.run(ctx, cmd)
	if err == nil {
		return res
	}

	switch {
	case errors.Is(err, vpn.ErrTransientState):
		x.recorder.Count(ctx, metrics.TransientStateRejections, 1)
		x.logger.Info("command rejected, transition in flight", "action", cmd.Action.String(), "error", err)
	case errors.Is(err, vpn.ErrValidation):
		x.logger.Info("command rejected", "action", cmd.Action.String(), "error", err)
	default:
		severity := notify.SeverityCritical
		if retry.IsTransientError(err) {
			severity = notify.SeverityWarning
		}
		x.logger.Error("command failed", "action", cmd.Action.String(), "kind", vpn.Kind(err), "error", err)
		x.recorder.Count(ctx, metrics.OperationErrors, 1)
		x.notifier.Alert(ctx, severity, fmt.Sprintf("VPN %s operation failed: %v", cmd.Action, err))
	}
	return Failed(fmt.Errorf("VPN %s failed: %w", cmd.Action, err))
}

func (x *LocalExecutor) run(ctx context.Context, cmd Command) (Result, error) {
	switch cmd.Action {
	case ActionOpen:
		return x.open(ctx, cmd)
	case ActionClose:
		return x.close(ctx, cmd, false)
	case ActionAdminForceClose:
		return x.close(ctx, cmd, true)
	case ActionCheck:
		return x.check(ctx)
	case ActionAdminOverride:
		return x.setOverride(ctx, cmd)
	case ActionAdminClearOverride:
		return x.clearOverride(ctx, cmd)
	case ActionAdminCooldown:
		return x.cooldown(ctx)
	case ActionCostSavings:
		return x.costSavings(ctx)
	case ActionCostAnalysis:
		return x.costAnalysis(ctx)
	case ActionAutoOpen:
		return decisionResult(x.engine.AutoOpen(ctx))
	case ActionAutoClose:
		return decisionResult(x.engine.Evaluate(ctx))
	case ActionUnknown:
		return Result{}, fmt.Errorf("%w: unknown action", vpn.ErrValidation)
	default:
		return Result{}, fmt.Errorf("%w: unsupported action %s", vpn.ErrValidation, cmd.Action)
	}
}

func (x *LocalExecutor) open(ctx context.Context, cmd Command) (Result, error) {
	changed, err := x.manager.Open(ctx)
	if err != nil {
		return Result{}, err
	}
	x.recordManual(ctx)
	if err := x.markers.ClearCooldown(ctx); err != nil {
		x.logger.Warn("failed to clear cooldown", "error", err)
	}

	st, err := x.manager.Status(ctx)
	if err != nil {
		return Result{}, err
	}
	if !changed {
		return Succeeded(fmt.Sprintf("VPN %s is already open", x.environment), st), nil
	}
	x.recorder.Count(ctx, metrics.OpenOperations, 1)
	x.notifier.Notifyf(ctx, ":white_check_mark: VPN %s opened by %s", x.environment, cmd.User)
	return Succeeded(fmt.Sprintf("VPN %s environment opened successfully", x.environment), st), nil
}

func (x *LocalExecutor) close(ctx context.Context, cmd Command, force bool) (Result, error) {
	changed, err := x.manager.Close(ctx)
	if err != nil {
		return Result{}, err
	}
	x.recordManual(ctx)
	if force {
		if err := x.markers.ClearCooldown(ctx); err != nil {
			x.logger.Warn("failed to clear cooldown", "error", err)
		}
	}

	st, err := x.manager.Status(ctx)
	if err != nil {
		return Result{}, err
	}
	if !changed {
		return Succeeded(fmt.Sprintf("VPN %s is already closed", x.environment), st), nil
	}
	x.recorder.Count(ctx, metrics.CloseOperations, 1)
	verb := "closed"
	if force {
		verb = "force-closed"
	}
	x.notifier.Notifyf(ctx, ":red_circle: VPN %s %s by %s", x.environment, verb, cmd.User)
	return Succeeded(fmt.Sprintf("VPN %s environment %s successfully", x.environment, verb), st), nil
}

// StatusReport is the check action's data.
type StatusReport struct {
	vpn.LiveStatus
	IdleMinutes       int  `json:"idleMinutes"`
	CooldownMinutes   int  `json:"cooldownRemainingMinutes"`
	OverrideActive    bool `json:"adminOverride"`
	ManualGraceActive bool `json:"manualActivityGrace"`
}

func (x *LocalExecutor) check(ctx context.Context) (Result, error) {
	st, err := x.manager.Status(ctx)
	if err != nil {
		return Result{}, err
	}
	now := x.manager.Now()
	report := StatusReport{LiveStatus: st, IdleMinutes: st.IdleMinutes(now)}

	m := x.chain.Load(ctx)
	report.CooldownMinutes = minutesCeil(gates.CooldownRemaining(x.chain.Config().Cooldown, m.Cooldown, now))
	report.OverrideActive = m.Override.Active(now)
	report.ManualGraceActive = !m.ManualActivity.IsZero() && now.Sub(m.ManualActivity) < gates.ManualActivityGrace

	return Succeeded(fmt.Sprintf("VPN %s status retrieved successfully", x.environment), report), nil
}

func (x *LocalExecutor) setOverride(ctx context.Context, cmd Command) (Result, error) {
	d, err := gates.ParseDuration(cmd.Duration, DefaultOverrideDuration)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", vpn.ErrValidation, err)
	}
	o := gates.Override{Enabled: true, Expires: x.manager.Now().Add(d)}
	if err := x.markers.SetOverride(ctx, o); err != nil {
		return Result{}, fmt.Errorf("%w: write override: %w", vpn.ErrProvider, err)
	}
	x.notifier.Notifyf(ctx, ":shield: Auto-close for VPN %s disabled by %s until %s",
		x.environment, cmd.User, o.Expires.Format(time.RFC3339))
	return Succeeded(fmt.Sprintf("Admin override enabled for %s until %s", x.environment, o.Expires.Format(time.RFC3339)),
		map[string]any{"override": o.String(), "expiresAt": o.Expires}), nil
}

func (x *LocalExecutor) clearOverride(ctx context.Context, cmd Command) (Result, error) {
	if err := x.markers.ClearOverride(ctx); err != nil {
		return Result{}, fmt.Errorf("%w: clear override: %w", vpn.ErrProvider, err)
	}
	x.notifier.Notifyf(ctx, ":shield: Auto-close for VPN %s re-enabled by %s", x.environment, cmd.User)
	return Succeeded(fmt.Sprintf("Admin override cleared for %s", x.environment), nil), nil
}

func (x *LocalExecutor) cooldown(ctx context.Context) (Result, error) {
	left, err := x.chain.CooldownRemaining(ctx, x.manager.Now())
	if err != nil {
		return Result{}, fmt.Errorf("%w: %w", vpn.ErrProvider, err)
	}
	minutes := minutesCeil(left)
	x.recorder.Gauge(ctx, metrics.CooldownRemainingMinutes, float64(minutes))
	msg := fmt.Sprintf("No active cooldown for %s", x.environment)
	if minutes > 0 {
		msg = fmt.Sprintf("Cooldown active for %s: %d minutes remaining", x.environment, minutes)
	}
	return Succeeded(msg, map[string]int{"cooldownRemainingMinutes": minutes}), nil
}

func (x *LocalExecutor) costSavings(ctx context.Context) (Result, error) {
	summary, err := x.accountant.Savings(ctx, x.subnetCount(ctx), x.manager.Now())
	if err != nil {
		return Result{}, fmt.Errorf("%w: read savings: %w", vpn.ErrProvider, err)
	}
	return Succeeded(fmt.Sprintf("Cost savings for %s", x.environment), summary), nil
}

func (x *LocalExecutor) costAnalysis(ctx context.Context) (Result, error) {
	analysis, err := x.accountant.Analyze(ctx, x.manager.Now(), 7)
	if err != nil {
		return Result{}, fmt.Errorf("%w: read savings: %w", vpn.ErrProvider, err)
	}
	return Succeeded(fmt.Sprintf("Cost analysis for %s (last 7 days)", x.environment), analysis), nil
}

// subnetCount falls back to one when the config cannot be read.
func (x *LocalExecutor) subnetCount(ctx context.Context) int {
	cfg, err := x.manager.Config(ctx)
	if err != nil {
		x.logger.Warn("failed to read resource config for cost estimate", "error", err)
		return 1
	}
	return len(cfg.SubnetIDs)
}

func (x *LocalExecutor) recordManual(ctx context.Context) {
	if err := x.markers.RecordManualActivity(ctx, x.manager.Now()); err != nil {
		x.logger.Warn("failed to record manual activity", "error", err)
	}
}

func decisionResult(d monitor.Decision) (Result, error) {
	if d.Outcome == monitor.OutcomeError {
		// already alerted by the engine
		return Result{Success: false, Message: string(d.Outcome), Data: d, Error: d.Err.Error()}, nil
	}
	msg := string(d.Outcome)
	if d.Reason != "" {
		msg += ": " + string(d.Reason)
	}
	return Succeeded(msg, d), nil
}

func minutesCeil(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int((d + time.Minute - 1) / time.Minute)
}
