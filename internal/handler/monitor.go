package handler

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/aws/aws-lambda-go/events"

	"github.com/picklr-io/vpnpilot/internal/dispatch"
	"github.com/picklr-io/vpnpilot/internal/logging"
)

// SchedulerUser is recorded on commands fired by the scheduled rule.
const SchedulerUser = "vpn-monitor"

// Monitor serves the scheduled rule by dispatching a command for the home
// environment. A detail of {"action":"auto-open"} runs the morning open;
// anything else runs an idle check.
type Monitor struct {
	Environment string
	Dispatcher  Dispatcher
	Logger      *slog.Logger
}

type scheduleDetail struct {
	Action dispatch.Action `json:"action"`
}

// Handle never returns an error; failures are alerted by the engine.
func (m *Monitor) Handle(ctx context.Context, event events.CloudWatchEvent) (dispatch.Result, error) {
	log := logging.OrDefault(m.Logger).With("event_id", event.ID, "event_time", event.Time)

	var detail scheduleDetail
	if len(event.Detail) > 0 {
		if err := json.Unmarshal(event.Detail, &detail); err != nil {
			log.Warn("ignoring unreadable event detail", "error", err)
		}
	}

	action := dispatch.ActionAutoClose
	if detail.Action == dispatch.ActionAutoOpen {
		action = dispatch.ActionAutoOpen
	}
	requestID := event.ID
	if requestID == "" || len(requestID) > 128 {
		requestID = dispatch.NewRequestID()
	}

	res := m.Dispatcher.Dispatch(ctx, dispatch.Command{
		Action:      action,
		Environment: m.Environment,
		User:        SchedulerUser,
		RequestID:   requestID,
	})
	log.Info("monitor cycle finished", "action", action.String(), "success", res.Success, "message", res.Message)
	return res, nil
}
