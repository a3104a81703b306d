package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/picklr-io/vpnpilot/internal/logging"
)

// Severity of an alert.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// AlertChannel receives every alert regardless of environment.
const AlertChannel = "#vpn-alerts"

// Message is one outbound notification.
type Message struct {
	Channel     string
	Text        string
	Environment string
	Severity    Severity
}

// Sink delivers messages.
type Sink interface {
	Send(ctx context.Context, msg Message) error
}

// Multi fans a message out to every sink and joins their errors.
type Multi []Sink

func (m Multi) Send(ctx context.Context, msg Message) error {
	var errs []error
	for _, s := range m {
		if s == nil {
			continue
		}
		if err := s.Send(ctx, msg); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Notifier formats environment notifications and alerts. Delivery failures
// are logged and never returned.
type Notifier struct {
	sink        Sink
	environment string
	logger      *slog.Logger
}

// NewNotifier creates a notifier for one environment. A nil sink only logs.
func NewNotifier(sink Sink, environment string, logger *slog.Logger) *Notifier {
	return &Notifier{
		sink:        sink,
		environment: environment,
		logger:      logging.OrDefault(logger).With("environment", environment),
	}
}

// Channel is the environment's notification channel.
func (n *Notifier) Channel() string {
	return "#vpn-" + n.environment
}

// Notify posts text to the environment channel.
func (n *Notifier) Notify(ctx context.Context, text string) {
	n.send(ctx, Message{
		Channel:     n.Channel(),
		Text:        text,
		Environment: n.environment,
		Severity:    SeverityInfo,
	})
}

// Notifyf is Notify with formatting.
func (n *Notifier) Notifyf(ctx context.Context, format string, args ...any) {
	n.Notify(ctx, fmt.Sprintf(format, args...))
}

// Alert posts text to the alert channel.
func (n *Notifier) Alert(ctx context.Context, severity Severity, text string) {
	prefix := ""
	switch severity {
	case SeverityCritical:
		prefix = ":rotating_light: "
	case SeverityWarning:
		prefix = ":warning: "
	}
	n.send(ctx, Message{
		Channel:     AlertChannel,
		Text:        fmt.Sprintf("%s[%s] %s", prefix, strings.ToUpper(n.environment), text),
		Environment: n.environment,
		Severity:    severity,
	})
}

func (n *Notifier) send(ctx context.Context, msg Message) {
	if n == nil {
		return
	}
	if n.sink == nil {
		n.logger.Info("notification", "channel", msg.Channel, "text", msg.Text)
		return
	}
	if err := n.sink.Send(ctx, msg); err != nil {
		n.logger.Warn("failed to deliver notification", "channel", msg.Channel, "error", err)
	}
}
