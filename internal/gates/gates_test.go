package gates

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/picklr-io/vpnpilot/internal/store"
	"github.com/picklr-io/vpnpilot/internal/vpn"
)

// Tuesday 03:00 UTC, outside default business hours.
var night = time.Date(2026, 6, 2, 3, 0, 0, 0, time.UTC)

func idleStatus() vpn.LiveStatus {
	return vpn.LiveStatus{
		Associated:       true,
		AssociationState: vpn.StateAssociated,
		LastActivity:     night.Add(-70 * time.Minute),
	}
}

func baseConfig() Config {
	bh := DefaultBusinessHours()
	return Config{Cooldown: 30 * time.Minute, BusinessHours: bh}
}

func TestEvaluate_Allows(t *testing.T) {
	v := Evaluate(baseConfig(), Input{Status: idleStatus(), Now: night})
	assert.True(t, v.Allowed)
	assert.Empty(t, v.Reason)
}

func TestEvaluate_EachGate(t *testing.T) {
	tuesdayNoon := time.Date(2026, 6, 2, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name   string
		mutate func(in *Input)
		want   Reason
	}{
		{"associating", func(in *Input) { in.Status.AssociationState = vpn.StateAssociating }, ReasonInFlight},
		{"disassociating", func(in *Input) { in.Status.AssociationState = vpn.StateDisassociating }, ReasonInFlight},
		{"connections", func(in *Input) { in.Status.ActiveConnections = 1 }, ReasonActiveConnections},
		{"manual 10m ago", func(in *Input) { in.Markers.ManualActivity = in.Now.Add(-10 * time.Minute) }, ReasonManualActivity},
		{"override forever", func(in *Input) { in.Markers.Override = Override{Enabled: true} }, ReasonAdminOverride},
		{"override until later", func(in *Input) {
			in.Markers.Override = Override{Enabled: true, Expires: in.Now.Add(time.Hour)}
		}, ReasonAdminOverride},
		{"override unreadable", func(in *Input) { in.Markers.OverrideErr = errors.New("AccessDenied") }, ReasonAdminOverride},
		{"business hours", func(in *Input) { in.Now = tuesdayNoon }, ReasonBusinessHours},
		{"cooldown", func(in *Input) { in.Markers.Cooldown = in.Now.Add(-5 * time.Minute) }, ReasonCooldown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := Input{Status: idleStatus(), Now: night}
			tt.mutate(&in)
			v := Evaluate(baseConfig(), in)
			assert.False(t, v.Allowed)
			assert.Equal(t, tt.want, v.Reason)
			assert.NotEmpty(t, v.Detail)
		})
	}
}

func TestEvaluate_PassingMarkers(t *testing.T) {
	in := Input{Status: idleStatus(), Now: night}
	in.Markers.ManualActivity = night.Add(-20 * time.Minute)
	in.Markers.Override = Override{Enabled: true, Expires: night.Add(-time.Minute)}
	in.Markers.Cooldown = night.Add(-31 * time.Minute)

	assert.True(t, Evaluate(baseConfig(), in).Allowed)
}

func TestEvaluate_OverrideBeatsLaterGates(t *testing.T) {
	tuesdayNoon := time.Date(2026, 6, 2, 12, 0, 0, 0, time.UTC)
	in := Input{Status: idleStatus(), Now: tuesdayNoon}
	in.Markers.Override = Override{Enabled: true}
	in.Markers.Cooldown = tuesdayNoon.Add(-time.Minute)

	v := Evaluate(baseConfig(), in)
	assert.Equal(t, ReasonAdminOverride, v.Reason)
}

func TestEvaluate_BusinessHoursDisabled(t *testing.T) {
	cfg := baseConfig()
	cfg.BusinessHours.Enabled = false
	v := Evaluate(cfg, Input{Status: idleStatus(), Now: time.Date(2026, 6, 2, 12, 0, 0, 0, time.UTC)})
	assert.True(t, v.Allowed)
}

func TestReason(t *testing.T) {
	assert.Equal(t, "CooldownSkips", ReasonCooldown.MetricName())
	assert.Equal(t, "AdminOverrideSkips", ReasonAdminOverride.MetricName())
	assert.True(t, ReasonInFlight.Silent())
	assert.False(t, ReasonBusinessHours.Silent())
	for _, g := range Gates {
		assert.NotEmpty(t, g.Reason.MetricName(), g.Reason)
	}
}

type countingToucher struct{ n int }

func (c *countingToucher) Touch(context.Context) error { c.n++; return nil }

func TestChain_ActiveConnectionsResetIdle(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()
	markers := NewMarkerStore(s, "staging")
	require.NoError(t, markers.SetCooldown(ctx, night.Add(-5*time.Minute)))

	toucher := &countingToucher{}
	chain := NewChain(baseConfig(), markers, toucher, nil)

	st := idleStatus()
	st.ActiveConnections = 2
	v := chain.Evaluate(ctx, st, night)
	assert.Equal(t, ReasonActiveConnections, v.Reason)
	assert.Equal(t, 1, toucher.n)

	cd, err := markers.Cooldown(ctx)
	require.NoError(t, err)
	assert.True(t, cd.IsZero())
}

func TestChain_ClearsExpiredOverride(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()
	markers := NewMarkerStore(s, "staging")
	require.NoError(t, markers.SetOverride(ctx, Override{Enabled: true, Expires: night.Add(-time.Hour)}))

	chain := NewChain(baseConfig(), markers, nil, nil)
	v := chain.Evaluate(ctx, idleStatus(), night)
	assert.True(t, v.Allowed)

	_, err := s.Get(ctx, store.Keys{Environment: "staging"}.AdminOverride())
	assert.True(t, errors.Is(err, store.ErrNotFound))
}

type failingStore struct {
	store.Store
	failKey string
}

func (f failingStore) Get(ctx context.Context, key string) (string, error) {
	if key == f.failKey {
		return "", errors.New("ThrottlingException")
	}
	return f.Store.Get(ctx, key)
}

func TestChain_MarkerReadFailures(t *testing.T) {
	ctx := context.Background()
	keys := store.Keys{Environment: "staging"}

	// unreadable override vetoes
	s := failingStore{Store: store.NewMemory(), failKey: keys.AdminOverride()}
	chain := NewChain(baseConfig(), NewMarkerStore(s, "staging"), nil, nil)
	v := chain.Evaluate(ctx, idleStatus(), night)
	assert.Equal(t, ReasonAdminOverride, v.Reason)

	// unreadable cooldown is treated as absent
	s = failingStore{Store: store.NewMemory(), failKey: keys.Cooldown()}
	chain = NewChain(baseConfig(), NewMarkerStore(s, "staging"), nil, nil)
	assert.True(t, chain.Evaluate(ctx, idleStatus(), night).Allowed)
}

func TestChain_CooldownRemaining(t *testing.T) {
	ctx := context.Background()
	markers := NewMarkerStore(store.NewMemory(), "staging")
	chain := NewChain(baseConfig(), markers, nil, nil)

	left, err := chain.CooldownRemaining(ctx, night)
	require.NoError(t, err)
	assert.Zero(t, left)

	require.NoError(t, markers.SetCooldown(ctx, night.Add(-10*time.Minute)))
	left, err = chain.CooldownRemaining(ctx, night)
	require.NoError(t, err)
	assert.Equal(t, 20*time.Minute, left)

	require.NoError(t, markers.ClearCooldown(ctx))
	left, err = chain.CooldownRemaining(ctx, night)
	require.NoError(t, err)
	assert.Zero(t, left)
}

func TestMarkerStore_ManualActivity(t *testing.T) {
	ctx := context.Background()
	markers := NewMarkerStore(store.NewMemory(), "production")

	got, err := markers.ManualActivity(ctx)
	require.NoError(t, err)
	assert.True(t, got.IsZero())

	require.NoError(t, markers.RecordManualActivity(ctx, night))
	got, err = markers.ManualActivity(ctx)
	require.NoError(t, err)
	assert.True(t, night.Equal(got))
}
