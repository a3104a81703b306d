package dispatch

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/picklr-io/vpnpilot/internal/vpn"
)

// Action is a command verb. The set is closed; Execute switches over every value.
type Action int

const (
	ActionUnknown Action = iota
	ActionOpen
	ActionClose
	ActionCheck
	ActionAdminOverride
	ActionAdminClearOverride
	ActionAdminCooldown
	ActionAdminForceClose
	ActionCostSavings
	ActionCostAnalysis
	ActionAutoOpen
	ActionAutoClose
)

var actionNames = map[Action]string{
	ActionOpen:               "open",
	ActionClose:              "close",
	ActionCheck:              "check",
	ActionAdminOverride:      "admin-override",
	ActionAdminClearOverride: "admin-clear-override",
	ActionAdminCooldown:      "admin-cooldown",
	ActionAdminForceClose:    "admin-force-close",
	ActionCostSavings:        "cost-savings",
	ActionCostAnalysis:       "cost-analysis",
	ActionAutoOpen:           "auto-open",
	ActionAutoClose:          "auto-close",
}

// Actions lists every valid action in declaration order.
func Actions() []Action {
	out := make([]Action, 0, len(actionNames))
	for a := ActionOpen; a <= ActionAutoClose; a++ {
		out = append(out, a)
	}
	return out
}

func (a Action) String() string {
	if s, ok := actionNames[a]; ok {
		return s
	}
	return fmt.Sprintf("action(%d)", int(a))
}

// Valid reports whether a is on the allow-list.
func (a Action) Valid() bool {
	_, ok := actionNames[a]
	return ok
}

// Admin reports whether the action needs administrator rights.
func (a Action) Admin() bool {
	switch a {
	case ActionAdminOverride, ActionAdminClearOverride, ActionAdminCooldown, ActionAdminForceClose:
		return true
	}
	return false
}

// Mutating reports whether the action can change the association.
func (a Action) Mutating() bool {
	switch a {
	case ActionOpen, ActionClose, ActionAdminForceClose, ActionAutoOpen, ActionAutoClose:
		return true
	}
	return false
}

// Scheduled reports whether the action is normally fired by a schedule.
func (a Action) Scheduled() bool {
	return a == ActionAutoOpen || a == ActionAutoClose
}

// ParseAction maps a name to an Action. Unknown names yield ActionUnknown.
func ParseAction(s string) Action {
	s = strings.ToLower(strings.TrimSpace(s))
	for a, name := range actionNames {
		if name == s {
			return a
		}
	}
	return ActionUnknown
}

func (a Action) MarshalText() ([]byte, error) {
	if !a.Valid() {
		return nil, fmt.Errorf("%w: unknown action %d", vpn.ErrValidation, int(a))
	}
	return []byte(a.String()), nil
}

// UnmarshalText accepts any string; unknown names decode to ActionUnknown and
// are rejected by Validate.
func (a *Action) UnmarshalText(text []byte) error {
	*a = ParseAction(string(text))
	return nil
}

// Environments a command may target.
const (
	EnvStaging    = "staging"
	EnvProduction = "production"
)

// Command is one validated request.
type Command struct {
	Action      Action `json:"action"`
	Environment string `json:"environment" validate:"required,oneof=staging production"`
	User        string `json:"user" validate:"required,max=128"`
	RequestID   string `json:"requestId" validate:"required,max=128"`
	Duration    string `json:"duration,omitempty" validate:"omitempty,max=16"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks the action allow-list and field constraints.
func (c Command) Validate() error {
	if !c.Action.Valid() {
		return fmt.Errorf("%w: invalid action, must be one of %s", vpn.ErrValidation, strings.Join(actionList(), ", "))
	}
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("%w: field %s failed %q", vpn.ErrValidation, strings.ToLower(fe.Field()), fe.Tag())
		}
		return fmt.Errorf("%w: %v", vpn.ErrValidation, err)
	}
	return nil
}

func actionList() []string {
	var names []string
	for _, a := range Actions() {
		names = append(names, a.String())
	}
	return names
}

// NewRequestID returns a fresh request identifier.
func NewRequestID() string {
	return uuid.NewString()
}

// Result is what every dispatch returns. Data is action-specific.
type Result struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Succeeded builds a success result.
func Succeeded(message string, data any) Result {
	return Result{Success: true, Message: message, Data: data}
}

// Failed builds a failure result.
func Failed(err error) Result {
	return Result{Success: false, Error: err.Error()}
}

// UserAgent identifies forwarded requests.
const UserAgent = "VPN-Automation-Slack-Handler/1.0"

// Envelope wraps a command forwarded to another environment.
type Envelope struct {
	Command              Command  `json:"command"`
	SourceAccount        string   `json:"sourceAccount"`
	CrossAccountMetadata Metadata `json:"crossAccountMetadata"`
}

// Metadata describes a forwarding attempt.
type Metadata struct {
	RequestTimestamp  time.Time `json:"requestTimestamp"`
	SourceEnvironment string    `json:"sourceEnvironment"`
	RoutingAttempt    int       `json:"routingAttempt"`
	UserAgent         string    `json:"userAgent"`
}

// DecodeRequest accepts either a bare Command or an Envelope.
// The envelope is returned when present.
func DecodeRequest(body []byte) (Command, *Envelope, error) {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(body, &probe); err != nil {
		return Command{}, nil, fmt.Errorf("%w: invalid JSON in request body", vpn.ErrValidation)
	}
	if _, ok := probe["command"]; ok {
		var env Envelope
		if err := json.Unmarshal(body, &env); err != nil {
			return Command{}, nil, fmt.Errorf("%w: invalid envelope: %v", vpn.ErrValidation, err)
		}
		return env.Command, &env, nil
	}
	var cmd Command
	if err := json.Unmarshal(body, &cmd); err != nil {
		return Command{}, nil, fmt.Errorf("%w: invalid command: %v", vpn.ErrValidation, err)
	}
	return cmd, nil, nil
}
