// Package app wires the automation from configuration.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/picklr-io/vpnpilot/internal/config"
	"github.com/picklr-io/vpnpilot/internal/cost"
	"github.com/picklr-io/vpnpilot/internal/dispatch"
	"github.com/picklr-io/vpnpilot/internal/gates"
	"github.com/picklr-io/vpnpilot/internal/handler"
	"github.com/picklr-io/vpnpilot/internal/logging"
	"github.com/picklr-io/vpnpilot/internal/metrics"
	"github.com/picklr-io/vpnpilot/internal/monitor"
	"github.com/picklr-io/vpnpilot/internal/notify"
	"github.com/picklr-io/vpnpilot/internal/slack"
	"github.com/picklr-io/vpnpilot/internal/store"
	"github.com/picklr-io/vpnpilot/internal/vpn"
	awsprovider "github.com/picklr-io/vpnpilot/providers/aws"
)

// Backends are the external systems the automation talks to.
type Backends struct {
	Provider  vpn.StatusProvider
	Store     store.Store
	Sink      notify.Sink
	Publisher metrics.Publisher
	Secrets   config.SecretSource
	// Account resolves the caller's account id when SOURCE_ACCOUNT_ID is unset.
	Account func(ctx context.Context) (string, error)
}

// App holds one environment's fully wired components.
type App struct {
	Config     *config.Config
	Logger     *slog.Logger
	Store      store.Store
	Manager    *vpn.Manager
	Markers    *gates.MarkerStore
	Chain      *gates.Chain
	Accountant *cost.Accountant
	Engine     *monitor.Engine
	Notifier   *notify.Notifier
	Recorder   *metrics.Recorder
	Local      *dispatch.LocalExecutor
	Dispatcher *dispatch.Dispatcher
}

// Build wires the components over b.
func Build(ctx context.Context, cfg *config.Config, b Backends, logger *slog.Logger) (*App, error) {
	logger = logging.OrDefault(logger)
	env := cfg.Environment

	recorder := metrics.NewRecorder(b.Publisher, env, cfg.Region, logger)
	notifier := notify.NewNotifier(b.Sink, env, logger)
	manager := vpn.NewManager(b.Provider, b.Store, env, logger)
	markers := gates.NewMarkerStore(b.Store, env)
	chain := gates.NewChain(cfg.GateConfig(), markers, manager, logger)
	accountant := cost.NewAccountant(b.Store, env, cfg.Region, recorder, logger)
	engine := monitor.New(monitor.Config{
		Environment:   env,
		IdleThreshold: cfg.IdleThreshold(),
		AutoOpenDays:  cfg.AutoOpenDays,
		Timezone:      cfg.BusinessHoursTimezone,
		CostTracking:  cfg.CostTracking,
	}, monitor.Deps{
		Manager:    manager,
		Chain:      chain,
		Markers:    markers,
		Accountant: accountant,
		Notifier:   notifier,
		Recorder:   recorder,
		Logger:     logger,
	})
	local := dispatch.NewLocalExecutor(env, dispatch.LocalDeps{
		Manager:    manager,
		Markers:    markers,
		Chain:      chain,
		Accountant: accountant,
		Engine:     engine,
		Notifier:   notifier,
		Recorder:   recorder,
		Logger:     logger,
	})

	peers := map[string]dispatch.Forwarder{}
	if cfg.PeerEndpoint != "" {
		peer, err := newPeer(ctx, cfg, b, logger)
		if err != nil {
			return nil, err
		}
		peers[cfg.PeerEnvironment()] = peer
	}

	return &App{
		Config:     cfg,
		Logger:     logger,
		Store:      b.Store,
		Manager:    manager,
		Markers:    markers,
		Chain:      chain,
		Accountant: accountant,
		Engine:     engine,
		Notifier:   notifier,
		Recorder:   recorder,
		Local:      local,
		Dispatcher: dispatch.NewDispatcher(env, local, peers, notifier, recorder, logger),
	}, nil
}

func newPeer(ctx context.Context, cfg *config.Config, b Backends, logger *slog.Logger) (*dispatch.PeerClient, error) {
	key, err := cfg.ResolvePeerAPIKey(ctx, b.Secrets)
	if err != nil {
		return nil, err
	}
	account := cfg.SourceAccount
	if account == "" && b.Account != nil {
		if account, err = b.Account(ctx); err != nil {
			logger.Warn("failed to resolve source account", "error", err)
		}
	}
	return dispatch.NewPeerClient(dispatch.PeerConfig{
		Endpoint:          cfg.PeerEndpoint,
		APIKey:            key,
		SourceEnvironment: cfg.Environment,
		SourceAccount:     account,
	}, nil, nil, logger), nil
}

// SigningSecret returns the configured Slack signing secret, falling back to
// the encrypted parameter.
func (a *App) SigningSecret(ctx context.Context) (string, error) {
	if a.Config.SlackSigningSecret != "" {
		return a.Config.SlackSigningSecret, nil
	}
	secret, err := a.Store.Get(ctx, store.SlackSigningSecretKey)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return "", fmt.Errorf("%w: slack signing secret not configured", vpn.ErrConfig)
		}
		return "", err
	}
	return secret, nil
}

// SlackHandler serves the slash command.
func (a *App) SlackHandler() *handler.Slack {
	return &handler.Slack{
		SigningSecret: a.SigningSecret,
		Parser: &slack.Parser{
			ProductionUsers:    a.Config.ProductionUsers,
			AdminUsers:         a.Config.AdminUsers,
			DefaultEnvironment: a.Config.Environment,
		},
		Dispatcher: a.Dispatcher,
		Notifier:   a.Notifier,
		Recorder:   a.Recorder,
		Logger:     a.Logger,
	}
}

// ControlHandler serves the environment's command API.
func (a *App) ControlHandler() *handler.Control {
	return &handler.Control{
		Environment: a.Config.Environment,
		APIKey:      a.Config.ControlAPIKey,
		Executor:    a.Local,
		Notifier:    a.Notifier,
		Recorder:    a.Recorder,
		Logger:      a.Logger,
	}
}

// MonitorHandler serves the scheduled rule.
func (a *App) MonitorHandler() *handler.Monitor {
	return &handler.Monitor{Environment: a.Config.Environment, Dispatcher: a.Dispatcher, Logger: a.Logger}
}

// AWSBackends binds the backends to AWS services.
func AWSBackends(cfg *config.Config, clients *awsprovider.Clients) Backends {
	params := awsprovider.NewParameterStore(clients.SSM, cfg.KMSKeyID)
	webhook := notify.NewWebhook(func(ctx context.Context) (string, error) {
		return params.Get(ctx, store.SlackWebhookKey)
	}, nil)
	sinks := notify.Multi{webhook}
	if cfg.AlertTopicARN != "" {
		sinks = append(sinks, alertsOnly{awsprovider.NewTopicSink(clients.SNS, cfg.AlertTopicARN)})
	}
	return Backends{
		Provider:  awsprovider.NewClientVPN(clients.EC2),
		Store:     params,
		Sink:      sinks,
		Publisher: awsprovider.NewMetricPublisher(clients.CloudWatch),
		Secrets:   awsprovider.NewSecretReader(clients.SecretsManager),
		Account: func(ctx context.Context) (string, error) {
			return awsprovider.AccountID(ctx, clients.STS)
		},
	}
}

// alertsOnly forwards alert-channel messages and drops the rest.
type alertsOnly struct {
	sink notify.Sink
}

func (a alertsOnly) Send(ctx context.Context, msg notify.Message) error {
	if msg.Channel != notify.AlertChannel {
		return nil
	}
	return a.sink.Send(ctx, msg)
}

// LoadOptions tune Load for the Lambda entry points and the operator CLI.
type LoadOptions struct {
	// Lookup reads configuration; os.LookupEnv when nil.
	Lookup config.LookupFunc
	// Profile selects a shared AWS profile.
	Profile string
	// Logger is used as-is; when nil Load installs the JSON logger.
	Logger *slog.Logger
}

// Load reads the configuration and wires the automation against AWS.
func Load(ctx context.Context, opts LoadOptions) (*App, error) {
	lookup := opts.Lookup
	if lookup == nil {
		lookup = os.LookupEnv
	}
	cfg, err := config.Load(lookup)
	if err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		logging.InitJSON(cfg.LogLevel)
		logger = logging.Logger()
	}
	logger = logger.With("environment", cfg.Environment)

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	clients, err := awsprovider.New(ctx, awsprovider.Options{Region: cfg.Region, Profile: opts.Profile})
	if err != nil {
		return nil, err
	}
	if cfg.Region == "" {
		cfg.Region = clients.Region
	}
	return Build(ctx, cfg, AWSBackends(cfg, clients), logger)
}
