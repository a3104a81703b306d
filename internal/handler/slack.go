package handler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/aws/aws-lambda-go/events"

	"github.com/picklr-io/vpnpilot/internal/dispatch"
	"github.com/picklr-io/vpnpilot/internal/logging"
	"github.com/picklr-io/vpnpilot/internal/metrics"
	"github.com/picklr-io/vpnpilot/internal/notify"
	"github.com/picklr-io/vpnpilot/internal/slack"
)

// Dispatcher routes a parsed command to its environment.
type Dispatcher interface {
	Dispatch(ctx context.Context, cmd dispatch.Command) dispatch.Result
}

// SecretFunc returns the Slack signing secret.
type SecretFunc func(ctx context.Context) (string, error)

// Slack serves the /vpn slash command.
type Slack struct {
	SigningSecret SecretFunc
	Parser        *slack.Parser
	Dispatcher    Dispatcher
	Notifier      *notify.Notifier
	Recorder      *metrics.Recorder
	Logger        *slog.Logger
	Now           func() time.Time
}

func (s *Slack) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *Slack) Handle(ctx context.Context, req events.APIGatewayProxyRequest) (resp events.APIGatewayProxyResponse, err error) {
	log := logging.OrDefault(s.Logger)
	defer func() {
		if r := recover(); r != nil {
			log.Error("slack handler panicked", "panic", r)
			s.Notifier.Alert(ctx, notify.SeverityCritical, fmt.Sprintf("Slack handler error: %v", r))
			s.Recorder.Count(ctx, metrics.HandlerErrors, 1)
			resp, err = jsonResponse(http.StatusOK, slack.Response{
				ResponseType: slack.Ephemeral,
				Text:         ":x: An unexpected error occurred. The team has been notified.",
			}), nil
		}
	}()

	if req.HTTPMethod != "" && req.HTTPMethod != http.MethodPost {
		return errorResponse(http.StatusMethodNotAllowed, "Method not allowed"), nil
	}

	raw, err := body(req)
	if err != nil {
		return errorResponse(http.StatusBadRequest, "Invalid request body encoding"), nil
	}

	secret, err := s.SigningSecret(ctx)
	if err != nil {
		log.Error("failed to read slack signing secret", "error", err)
		return errorResponse(http.StatusInternalServerError, "Internal server error"), nil
	}
	if err := slack.Verify(secret, header(req, slack.SignatureHeader), header(req, slack.TimestampHeader), raw, s.now()); err != nil {
		log.Warn("rejected slack request", "error", err)
		return errorResponse(http.StatusUnauthorized, "Unauthorized"), nil
	}

	sc, err := slack.ParseForm(raw)
	if err != nil {
		return jsonResponse(http.StatusOK, slack.ErrorResponse(err)), nil
	}
	cmd, err := s.Parser.Parse(sc)
	switch {
	case errors.Is(err, slack.ErrHelp):
		return jsonResponse(http.StatusOK, slack.HelpResponse()), nil
	case errors.Is(err, slack.ErrUnauthorized):
		log.Warn("unauthorized slash command", "user", sc.UserName, "text", sc.Text)
		return jsonResponse(http.StatusOK, slack.ErrorResponse(err)), nil
	case err != nil:
		return jsonResponse(http.StatusOK, slack.ErrorResponse(err)), nil
	}

	log.Info("slash command", "action", cmd.Action.String(), "target", cmd.Environment,
		"user", cmd.User, "channel", sc.ChannelName, "request_id", cmd.RequestID)
	res := s.Dispatcher.Dispatch(ctx, cmd)
	return jsonResponse(http.StatusOK, slack.Format(res, cmd, s.now())), nil
}
