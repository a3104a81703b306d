package handler

import (
	"context"
	"crypto/subtle"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/aws/aws-lambda-go/events"

	"github.com/picklr-io/vpnpilot/internal/dispatch"
	"github.com/picklr-io/vpnpilot/internal/logging"
	"github.com/picklr-io/vpnpilot/internal/metrics"
	"github.com/picklr-io/vpnpilot/internal/notify"
)

// Control serves the environment's command API. It only executes commands
// for its own environment and never forwards.
type Control struct {
	Environment string
	// APIKey, when set, must match the X-API-Key header.
	APIKey   string
	Executor dispatch.Executor
	Notifier *notify.Notifier
	Recorder *metrics.Recorder
	Logger   *slog.Logger
}

func (c *Control) Handle(ctx context.Context, req events.APIGatewayProxyRequest) (resp events.APIGatewayProxyResponse, err error) {
	log := logging.OrDefault(c.Logger).With("environment", c.Environment, "path", req.Path)
	defer func() {
		if r := recover(); r != nil {
			log.Error("control handler panicked", "panic", r)
			c.Notifier.Alert(ctx, notify.SeverityCritical, fmt.Sprintf("Critical error in VPN control handler: %v", r))
			c.Recorder.Count(ctx, metrics.HandlerErrors, 1)
			resp, err = errorResponse(http.StatusInternalServerError, "Internal server error"), nil
		}
	}()

	if c.APIKey != "" && subtle.ConstantTimeCompare([]byte(header(req, dispatch.APIKeyHeader)), []byte(c.APIKey)) != 1 {
		log.Warn("rejected request with invalid api key")
		return errorResponse(http.StatusUnauthorized, "Unauthorized"), nil
	}

	raw, err := body(req)
	if err != nil {
		return errorResponse(http.StatusBadRequest, "Invalid request body encoding"), nil
	}
	if raw == "" {
		raw = "{}"
	}
	cmd, envelope, err := dispatch.DecodeRequest([]byte(raw))
	if err != nil {
		return errorResponse(http.StatusBadRequest, err.Error()), nil
	}
	if envelope != nil {
		log = log.With("source_account", envelope.SourceAccount,
			"source_environment", envelope.CrossAccountMetadata.SourceEnvironment,
			"routing_attempt", envelope.CrossAccountMetadata.RoutingAttempt)
	}
	if err := cmd.Validate(); err != nil {
		return errorResponse(http.StatusBadRequest, err.Error()), nil
	}
	if cmd.Environment != c.Environment {
		return errorResponse(http.StatusBadRequest, fmt.Sprintf(
			"Environment mismatch. This function handles %s, but received %s", c.Environment, cmd.Environment)), nil
	}

	log.Info("processing command", "action", cmd.Action.String(), "user", cmd.User, "request_id", cmd.RequestID)
	res := c.Executor.Execute(ctx, cmd)
	status := http.StatusOK
	if !res.Success {
		status = http.StatusInternalServerError
	}
	return jsonResponse(status, res), nil
}
