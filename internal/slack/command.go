package slack

import (
	"errors"
	"fmt"
	"net/url"
	"slices"
	"strings"

	"github.com/picklr-io/vpnpilot/internal/dispatch"
)

// SlashCommand is the form Slack posts for a slash command.
type SlashCommand struct {
	TeamID      string
	ChannelID   string
	ChannelName string
	UserID      string
	UserName    string
	Command     string
	Text        string
	ResponseURL string
	TriggerID   string
}

// ParseForm decodes an application/x-www-form-urlencoded body.
func ParseForm(body string) (SlashCommand, error) {
	v, err := url.ParseQuery(body)
	if err != nil {
		return SlashCommand{}, fmt.Errorf("invalid form body: %w", err)
	}
	return SlashCommand{
		TeamID:      v.Get("team_id"),
		ChannelID:   v.Get("channel_id"),
		ChannelName: v.Get("channel_name"),
		UserID:      v.Get("user_id"),
		UserName:    v.Get("user_name"),
		Command:     v.Get("command"),
		Text:        v.Get("text"),
		ResponseURL: v.Get("response_url"),
		TriggerID:   v.Get("trigger_id"),
	}, nil
}

var (
	// ErrHelp is returned for empty or help text; the message is the help.
	ErrHelp         = errors.New("help requested")
	ErrUsage        = errors.New("invalid command")
	ErrUnauthorized = errors.New("access denied")
)

var actionAliases = map[string]dispatch.Action{
	"open": dispatch.ActionOpen, "start": dispatch.ActionOpen, "enable": dispatch.ActionOpen, "on": dispatch.ActionOpen,
	"close": dispatch.ActionClose, "stop": dispatch.ActionClose, "disable": dispatch.ActionClose, "off": dispatch.ActionClose,
	"check": dispatch.ActionCheck, "status": dispatch.ActionCheck, "state": dispatch.ActionCheck, "info": dispatch.ActionCheck,
	"savings": dispatch.ActionCostSavings, "cost-savings": dispatch.ActionCostSavings,
	"costs": dispatch.ActionCostAnalysis, "cost-analysis": dispatch.ActionCostAnalysis,
}

var adminActions = map[string]dispatch.Action{
	"override":       dispatch.ActionAdminOverride,
	"clear-override": dispatch.ActionAdminClearOverride,
	"cooldown":       dispatch.ActionAdminCooldown,
	"force-close":    dispatch.ActionAdminForceClose,
}

var environmentAliases = map[string]string{
	"production": dispatch.EnvProduction, "prod": dispatch.EnvProduction, "production-env": dispatch.EnvProduction,
	"staging": dispatch.EnvStaging, "stage": dispatch.EnvStaging, "staging-env": dispatch.EnvStaging, "dev": dispatch.EnvStaging,
}

// Parser turns slash-command text into a dispatch command and authorizes it.
type Parser struct {
	// ProductionUsers may target production; "*" allows everyone.
	ProductionUsers []string
	// AdminUsers may run admin actions; production users may too.
	AdminUsers []string
	// DefaultEnvironment applies to cost reports given without one.
	DefaultEnvironment string
	NewRequestID       func() string
}

// Parse handles "<action> <env>", "admin <action> <env> [duration]",
// "savings <env>" and "costs [env]".
func (p *Parser) Parse(sc SlashCommand) (dispatch.Command, error) {
	parts := strings.Fields(strings.ToLower(sc.Text))
	if len(parts) == 0 || parts[0] == "help" || parts[0] == "--help" || parts[0] == "-h" {
		return dispatch.Command{}, ErrHelp
	}

	cmd := dispatch.Command{User: sc.UserName, RequestID: p.requestID()}
	if cmd.User == "" {
		cmd.User = sc.UserID
	}

	var envArg string
	if parts[0] == "admin" {
		if len(parts) < 3 {
			return dispatch.Command{}, fmt.Errorf("%w: usage is /vpn admin <override|clear-override|cooldown|force-close> <environment> [duration]", ErrUsage)
		}
		action, ok := adminActions[parts[1]]
		if !ok {
			return dispatch.Command{}, fmt.Errorf("%w: invalid admin action %q, must be override, clear-override, cooldown or force-close", ErrUsage, parts[1])
		}
		if !p.isAdmin(sc.UserName) {
			return dispatch.Command{}, fmt.Errorf("%w: user %q is not authorized for administrative commands", ErrUnauthorized, sc.UserName)
		}
		cmd.Action = action
		envArg = parts[2]
		if len(parts) > 3 && action == dispatch.ActionAdminOverride {
			cmd.Duration = parts[3]
		}
	} else {
		action, ok := actionAliases[parts[0]]
		if !ok {
			return dispatch.Command{}, fmt.Errorf("%w: invalid action %q, must be open, close, check, admin, savings or costs", ErrUsage, parts[0])
		}
		cmd.Action = action
		switch {
		case len(parts) >= 2:
			envArg = parts[1]
		case action == dispatch.ActionCostSavings || action == dispatch.ActionCostAnalysis:
			envArg = p.DefaultEnvironment
		default:
			return dispatch.Command{}, fmt.Errorf("%w: usage is /vpn <action> <environment>", ErrUsage)
		}
	}

	env, ok := environmentAliases[envArg]
	if !ok {
		return dispatch.Command{}, fmt.Errorf("%w: invalid environment %q, must be staging or production", ErrUsage, envArg)
	}
	cmd.Environment = env

	if env == dispatch.EnvProduction && !p.isProductionUser(sc.UserName) {
		return dispatch.Command{}, fmt.Errorf("%w: user %q is not authorized for production VPN operations", ErrUnauthorized, sc.UserName)
	}
	return cmd, nil
}

func (p *Parser) requestID() string {
	if p.NewRequestID != nil {
		return p.NewRequestID()
	}
	return dispatch.NewRequestID()
}

func (p *Parser) isProductionUser(user string) bool {
	return allowed(p.ProductionUsers, user)
}

func (p *Parser) isAdmin(user string) bool {
	return allowed(p.AdminUsers, user) || p.isProductionUser(user)
}

func allowed(list []string, user string) bool {
	if user == "" {
		return false
	}
	return slices.Contains(list, "*") || slices.Contains(list, user)
}

// HelpText lists the supported commands.
const HelpText = "*VPN Automation Commands*\n" +
	"`/vpn <action> <environment>`\n" +
	"• `open` (start, enable, on) associates the VPN subnets\n" +
	"• `close` (stop, disable, off) disassociates them\n" +
	"• `check` (status, state, info) shows the current status\n" +
	"• `/vpn savings <environment>` shows the savings report\n" +
	"• `/vpn costs [environment]` shows the last 7 days\n" +
	"• `/vpn admin override <environment> [24h]` disables auto-close\n" +
	"• `/vpn admin clear-override <environment>` re-enables auto-close\n" +
	"• `/vpn admin cooldown <environment>` shows the cooldown\n" +
	"• `/vpn admin force-close <environment>` closes and clears the cooldown\n" +
	"Environments: `staging` (stage, dev), `production` (prod)"
