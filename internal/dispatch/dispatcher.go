package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/picklr-io/vpnpilot/internal/logging"
	"github.com/picklr-io/vpnpilot/internal/metrics"
	"github.com/picklr-io/vpnpilot/internal/notify"
	"github.com/picklr-io/vpnpilot/internal/vpn"
)

// Executor runs a command against the local environment.
type Executor interface {
	Execute(ctx context.Context, cmd Command) Result
}

// Forwarder sends a command to another environment.
type Forwarder interface {
	Forward(ctx context.Context, cmd Command) (Result, error)
}

// Dispatcher routes validated commands to the local executor or a peer.
type Dispatcher struct {
	environment string
	local       Executor
	peers       map[string]Forwarder
	notifier    *notify.Notifier
	recorder    *metrics.Recorder
	logger      *slog.Logger
}

// NewDispatcher creates a dispatcher for the given home environment.
// peers maps environment names to forwarders; a missing entry is a config error.
func NewDispatcher(environment string, local Executor, peers map[string]Forwarder, notifier *notify.Notifier, recorder *metrics.Recorder, logger *slog.Logger) *Dispatcher {
	if peers == nil {
		peers = map[string]Forwarder{}
	}
	return &Dispatcher{
		environment: environment,
		local:       local,
		peers:       peers,
		notifier:    notifier,
		recorder:    recorder,
		logger:      logging.OrDefault(logger).With("environment", environment),
	}
}

// Environment is the dispatcher's home environment.
func (d *Dispatcher) Environment() string {
	return d.environment
}

// Dispatch validates and runs cmd. It always returns a Result.
func (d *Dispatcher) Dispatch(ctx context.Context, cmd Command) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("dispatch panicked", "action", cmd.Action.String(), "panic", r)
			d.notifier.Alert(ctx, notify.SeverityCritical, fmt.Sprintf("VPN %s command crashed: %v", cmd.Action, r))
			res = Failed(fmt.Errorf("internal error handling %s", cmd.Action))
		}
	}()

	if err := cmd.Validate(); err != nil {
		d.logger.Info("rejected command", "error", err)
		return Failed(err)
	}

	log := d.logger.With("action", cmd.Action.String(), "target", cmd.Environment, "user", cmd.User, "request_id", cmd.RequestID)
	if cmd.Environment == d.environment {
		log.Info("executing command locally")
		return d.local.Execute(ctx, cmd)
	}

	log.Info("forwarding command")
	return d.forward(ctx, cmd, log)
}

func (d *Dispatcher) forward(ctx context.Context, cmd Command, log *slog.Logger) Result {
	peer, ok := d.peers[cmd.Environment]
	var (
		res Result
		err error
	)
	if !ok {
		err = fmt.Errorf("%w: no route to %s", vpn.ErrConfig, cmd.Environment)
	} else {
		res, err = peer.Forward(ctx, cmd)
	}
	if err == nil {
		return res
	}

	log.Error("cross-environment routing failed", "kind", vpn.Kind(err), "error", err)
	d.recorder.Count(ctx, metrics.CrossAccountRoutingErrors, 1)
	d.notifier.Alert(ctx, notify.SeverityCritical,
		fmt.Sprintf("Failed to route %s command to %s: %v", cmd.Action, cmd.Environment, err))

	msg := fmt.Sprintf("Failed to reach %s environment", cmd.Environment)
	if errors.Is(err, vpn.ErrConfig) {
		msg = fmt.Sprintf("Routing to %s environment is not configured", cmd.Environment)
	}
	return Result{Success: false, Message: msg, Error: err.Error()}
}
