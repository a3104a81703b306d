package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/picklr-io/vpnpilot/internal/app"
	"github.com/picklr-io/vpnpilot/internal/config"
	"github.com/picklr-io/vpnpilot/internal/dispatch"
	"github.com/picklr-io/vpnpilot/internal/store"
	"github.com/picklr-io/vpnpilot/internal/vpn"
	"github.com/picklr-io/vpnpilot/providers/null"
)

const endpointID = "cvpn-endpoint-0123456789abcdef0"

// Wednesday 10:00 UTC.
var testNow = time.Date(2026, 6, 3, 10, 0, 0, 0, time.UTC)

func newTestApp(t *testing.T) (*app.App, *null.Provider) {
	t.Helper()
	ctx := context.Background()
	p, s := null.New(), store.NewMemory()
	p.AddEndpoint(endpointID, vpn.EndpointAvailable)
	require.NoError(t, store.PutJSON(ctx, s, store.Keys{Environment: "staging"}.Config(),
		vpn.ResourceConfig{EndpointID: endpointID, SubnetIDs: []string{"subnet-a"}}))

	cfg, err := config.Load(func(k string) (string, bool) {
		v, ok := map[string]string{config.EnvEnvironment: "staging", config.EnvRegion: "us-east-1"}[k]
		return v, ok
	})
	require.NoError(t, err)

	a, err := app.Build(ctx, cfg, app.Backends{Provider: p, Store: s}, nil)
	require.NoError(t, err)
	a.Manager.SetClock(func() time.Time { return testNow })
	return a, p
}

func runCLI(t *testing.T, a *app.App, stdin string, args ...string) (string, error) {
	t.Helper()
	loadApp = func(context.Context) (*app.App, error) { return a, nil }
	flagOutput, flagUser, noColor = "text", "tester", true
	overrideDuration, forceCloseYes, evaluateAutoOpen, dispatchDuration = "", false, false, ""

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetIn(strings.NewReader(stdin))
	rootCmd.SetArgs(args)
	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestOpenStatusClose(t *testing.T) {
	a, p := newTestApp(t)

	out, err := runCLI(t, a, "", "open")
	require.NoError(t, err)
	assert.Contains(t, out, "OK VPN staging environment opened successfully")
	assert.Contains(t, out, "  associated: true")

	out, err = runCLI(t, a, "", "status", "staging")
	require.NoError(t, err)
	assert.Contains(t, out, "status retrieved successfully")
	assert.Contains(t, out, "  activeConnections: 0")

	out, err = runCLI(t, a, "", "close")
	require.NoError(t, err)
	assert.Contains(t, out, "closed successfully")
	assert.Equal(t, 2, p.Mutations())
}

func TestUnroutedTargetFails(t *testing.T) {
	a, _ := newTestApp(t)

	out, err := runCLI(t, a, "", "status", "production")
	require.Error(t, err)
	assert.Contains(t, out, "FAILED Routing to production environment is not configured")
}

func TestJSONOutput(t *testing.T) {
	a, _ := newTestApp(t)

	out, err := runCLI(t, a, "", "cost", "savings", "--output", "json")
	require.NoError(t, err)

	var res dispatch.Result
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.True(t, res.Success)
	data, ok := res.Data.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "us-east-1", data["region"])
}

func TestBadOutputFormat(t *testing.T) {
	a, _ := newTestApp(t)
	_, err := runCLI(t, a, "", "status", "-o", "yaml")
	assert.ErrorContains(t, err, "unknown output format")
}

func TestAdminOverrideAndCooldown(t *testing.T) {
	a, _ := newTestApp(t)

	out, err := runCLI(t, a, "", "admin", "override", "--duration", "4h")
	require.NoError(t, err)
	assert.Contains(t, out, "Admin override enabled for staging until 2026-06-03T14:00:00Z")

	out, err = runCLI(t, a, "", "admin", "cooldown")
	require.NoError(t, err)
	assert.Contains(t, out, "No active cooldown for staging")
	assert.Contains(t, out, "cooldownRemainingMinutes: 0")

	out, err = runCLI(t, a, "", "admin", "override", "--duration", "forever")
	require.Error(t, err)
	assert.Contains(t, out, "FAILED")
}

func TestForceCloseConfirmation(t *testing.T) {
	a, p := newTestApp(t)
	_, err := runCLI(t, a, "", "open")
	require.NoError(t, err)
	before := p.Mutations()

	out, err := runCLI(t, a, "n\n", "admin", "force-close")
	require.NoError(t, err)
	assert.Contains(t, out, "Force-close cancelled.")
	assert.Equal(t, before, p.Mutations())

	out, err = runCLI(t, a, "", "admin", "force-close", "--yes")
	require.NoError(t, err)
	assert.Contains(t, out, "force-closed successfully")
}

func TestDispatchCommand(t *testing.T) {
	a, _ := newTestApp(t)

	_, err := runCLI(t, a, "", "dispatch", "reboot")
	assert.ErrorContains(t, err, `unknown action "reboot"`)

	out, err := runCLI(t, a, "", "dispatch", "cost-analysis", "staging")
	require.NoError(t, err)
	assert.Contains(t, out, "Cost analysis for staging (last 7 days)")
	assert.Contains(t, out, "periodTotal: 0")
}

func TestEvaluate(t *testing.T) {
	a, _ := newTestApp(t)

	out, err := runCLI(t, a, "", "evaluate")
	require.NoError(t, err)
	assert.Contains(t, out, "outcome: "+"no-action-needed")
}

func TestVersion(t *testing.T) {
	out, err := runCLI(t, nil, "", "version")
	require.NoError(t, err)
	assert.Contains(t, out, "vpnctl version dev")
}

func TestColorize(t *testing.T) {
	noColor = false
	assert.Equal(t, "\033[31m", colorize("\033[31m"))

	noColor = true
	assert.Equal(t, "", colorize("\033[31m"))
}

func TestDataLines(t *testing.T) {
	lines := dataLines(map[string]any{
		"b":    1,
		"a":    "x",
		"list": []string{"s1", "s2"},
		"nest": map[string]int{"k": 2},
	}, "")
	assert.Equal(t, []string{"a: x", "b: 1", `list: ["s1", "s2"]`, "nest:", "  k: 2"}, lines)
}
