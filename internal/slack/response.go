package slack

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/picklr-io/vpnpilot/internal/dispatch"
)

// Response types.
const (
	InChannel = "in_channel"
	Ephemeral = "ephemeral"
)

// Attachment colors.
const (
	ColorGood    = "good"
	ColorWarning = "warning"
	ColorDanger  = "danger"
)

// Response is the body returned to a slash command.
type Response struct {
	ResponseType string       `json:"response_type"`
	Text         string       `json:"text"`
	Attachments  []Attachment `json:"attachments,omitempty"`
}

type Attachment struct {
	Color  string  `json:"color,omitempty"`
	Fields []Field `json:"fields,omitempty"`
	Footer string  `json:"footer,omitempty"`
	Ts     int64   `json:"ts,omitempty"`
}

type Field struct {
	Title string `json:"title"`
	Value string `json:"value"`
	Short bool   `json:"short"`
}

// HelpResponse renders the command list.
func HelpResponse() Response {
	return Response{ResponseType: Ephemeral, Text: HelpText}
}

// ErrorResponse renders a parse or authorization error for the caller only.
func ErrorResponse(err error) Response {
	return Response{ResponseType: Ephemeral, Text: ":x: " + err.Error() + "\nUse `/vpn help` for usage."}
}

// statusView, savingsView and analysisView decode Result.Data whether it
// came from the local executor or a forwarded JSON response.
type statusView struct {
	Associated        bool      `json:"associated"`
	AssociationState  string    `json:"associationState"`
	ActiveConnections int       `json:"activeConnections"`
	LastActivity      time.Time `json:"lastActivity"`
	IdleMinutes       *int      `json:"idleMinutes"`
	CooldownMinutes   int       `json:"cooldownRemainingMinutes"`
	AdminOverride     bool      `json:"adminOverride"`
}

type savingsView struct {
	Region                 string  `json:"region"`
	TodaySavings           float64 `json:"todaySavings"`
	CumulativeSavings      float64 `json:"cumulativeSavings"`
	PotentialHourlySavings float64 `json:"potentialHourlySavings"`
	SubnetCount            int     `json:"subnetCount"`
}

type analysisView struct {
	Region string `json:"region"`
	Days   []struct {
		Date    string  `json:"date"`
		Savings float64 `json:"savings"`
	} `json:"days"`
	PeriodTotal       float64 `json:"periodTotal"`
	DailyAverage      float64 `json:"dailyAverage"`
	MonthlyEstimate   float64 `json:"monthlyEstimate"`
	CumulativeSavings float64 `json:"cumulativeSavings"`
}

func decodeData(data any, into any) bool {
	if data == nil {
		return false
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return false
	}
	return json.Unmarshal(raw, into) == nil
}

// Format renders a dispatch result for Slack.
func Format(res dispatch.Result, cmd dispatch.Command, now time.Time) Response {
	footer := "Request ID: " + cmd.RequestID
	if !res.Success {
		return Response{
			ResponseType: Ephemeral,
			Text:         fmt.Sprintf(":x: %s failed", cmd.Action),
			Attachments: []Attachment{{
				Color:  ColorDanger,
				Fields: []Field{{Title: "Error", Value: firstNonEmpty(res.Error, res.Message, "unknown error")}},
				Footer: footer,
				Ts:     now.Unix(),
			}},
		}
	}

	switch cmd.Action {
	case dispatch.ActionCostSavings:
		var v savingsView
		decodeData(res.Data, &v)
		return Response{
			ResponseType: InChannel,
			Text:         fmt.Sprintf(":moneybag: VPN cost savings for %s", cmd.Environment),
			Attachments: []Attachment{{
				Color: ColorGood,
				Fields: []Field{
					{Title: "Today", Value: money(v.TodaySavings), Short: true},
					{Title: "Total Saved", Value: money(v.CumulativeSavings), Short: true},
					{Title: "Hourly Rate When Closed", Value: money(v.PotentialHourlySavings), Short: true},
					{Title: "Subnets", Value: strconv.Itoa(v.SubnetCount), Short: true},
				},
				Footer: footer,
				Ts:     now.Unix(),
			}},
		}

	case dispatch.ActionCostAnalysis:
		var v analysisView
		decodeData(res.Data, &v)
		var lines []string
		for _, d := range v.Days {
			lines = append(lines, fmt.Sprintf("%s: %s", d.Date, money(d.Savings)))
		}
		fields := []Field{
			{Title: "Period Total", Value: money(v.PeriodTotal), Short: true},
			{Title: "Daily Average", Value: money(v.DailyAverage), Short: true},
			{Title: "Monthly Estimate", Value: money(v.MonthlyEstimate), Short: true},
			{Title: "Total Saved", Value: money(v.CumulativeSavings), Short: true},
		}
		if len(lines) > 0 {
			fields = append(fields, Field{Title: "Daily Breakdown", Value: strings.Join(lines, "\n")})
		}
		return Response{
			ResponseType: InChannel,
			Text:         fmt.Sprintf(":bar_chart: VPN cost analysis for %s (last %d days)", cmd.Environment, len(v.Days)),
			Attachments:  []Attachment{{Color: ColorGood, Fields: fields, Footer: footer, Ts: now.Unix()}},
		}

	case dispatch.ActionAdminCooldown:
		return Response{ResponseType: Ephemeral, Text: ":hourglass: " + res.Message}

	case dispatch.ActionAdminOverride, dispatch.ActionAdminClearOverride:
		return Response{
			ResponseType: Ephemeral,
			Text:         ":shield: " + res.Message,
			Attachments:  []Attachment{{Color: ColorWarning, Footer: footer, Ts: now.Unix()}},
		}
	}

	color := ColorGood
	if cmd.Action.Admin() {
		color = ColorWarning
	}
	var v statusView
	if !decodeData(res.Data, &v) {
		return Response{ResponseType: InChannel, Text: ":white_check_mark: " + res.Message}
	}
	return Response{
		ResponseType: InChannel,
		Text:         ":white_check_mark: " + res.Message,
		Attachments: []Attachment{{
			Color:  color,
			Fields: statusFields(v, now),
			Footer: footer,
			Ts:     now.Unix(),
		}},
	}
}

func statusFields(v statusView, now time.Time) []Field {
	status := ":red_circle: Closed"
	switch {
	case v.Associated:
		status = ":large_green_circle: Open"
	case v.AssociationState == "associating" || v.AssociationState == "disassociating":
		status = ":large_yellow_circle: " + strings.ToUpper(v.AssociationState[:1]) + v.AssociationState[1:]
	}
	fields := []Field{
		{Title: "Status", Value: status, Short: true},
		{Title: "Active Connections", Value: strconv.Itoa(v.ActiveConnections), Short: true},
		{Title: "Last Activity", Value: lastActivity(v.LastActivity, now), Short: true},
	}
	if v.IdleMinutes != nil && v.Associated {
		fields = append(fields, Field{Title: "Idle", Value: fmt.Sprintf("%d minutes", *v.IdleMinutes), Short: true})
	}
	if v.CooldownMinutes > 0 {
		fields = append(fields, Field{Title: "Cooldown", Value: fmt.Sprintf("%d minutes remaining", v.CooldownMinutes), Short: true})
	}
	if v.AdminOverride {
		fields = append(fields, Field{Title: "Auto-close", Value: "Disabled by admin override", Short: true})
	}
	return fields
}

func lastActivity(t, now time.Time) string {
	if t.IsZero() {
		return "Unknown"
	}
	ago := now.Sub(t).Round(time.Minute)
	if ago < time.Minute {
		return "Just now"
	}
	return fmt.Sprintf("%d minutes ago", int(ago/time.Minute))
}

func money(v float64) string {
	return fmt.Sprintf("$%.2f", v)
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
