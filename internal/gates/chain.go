package gates

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/picklr-io/vpnpilot/internal/logging"
	"github.com/picklr-io/vpnpilot/internal/store"
	"github.com/picklr-io/vpnpilot/internal/vpn"
)

// MarkerStore reads and writes the per-environment gate markers.
type MarkerStore struct {
	store store.Store
	keys  store.Keys
}

// NewMarkerStore creates a marker store for one environment.
func NewMarkerStore(s store.Store, environment string) *MarkerStore {
	return &MarkerStore{store: s, keys: store.Keys{Environment: environment}}
}

// Cooldown returns the cooldown marker, zero when absent.
func (m *MarkerStore) Cooldown(ctx context.Context) (time.Time, error) {
	t, _, err := store.GetTime(ctx, m.store, m.keys.Cooldown())
	return t, err
}

func (m *MarkerStore) SetCooldown(ctx context.Context, t time.Time) error {
	return store.PutTime(ctx, m.store, m.keys.Cooldown(), t)
}

// ClearCooldown writes an empty marker.
func (m *MarkerStore) ClearCooldown(ctx context.Context) error {
	return m.store.Put(ctx, m.keys.Cooldown(), "")
}

// ManualActivity returns the last manual activity, zero when absent.
func (m *MarkerStore) ManualActivity(ctx context.Context) (time.Time, error) {
	t, _, err := store.GetTime(ctx, m.store, m.keys.ManualActivity())
	return t, err
}

func (m *MarkerStore) RecordManualActivity(ctx context.Context, t time.Time) error {
	return store.PutTime(ctx, m.store, m.keys.ManualActivity(), t)
}

// Override returns the stored override. Absent keys yield a disabled override.
func (m *MarkerStore) Override(ctx context.Context) (Override, error) {
	raw, err := m.store.Get(ctx, m.keys.AdminOverride())
	if errors.Is(err, store.ErrNotFound) {
		return Override{}, nil
	}
	if err != nil {
		return Override{}, err
	}
	return ParseOverride(raw)
}

func (m *MarkerStore) SetOverride(ctx context.Context, o Override) error {
	return m.store.Put(ctx, m.keys.AdminOverride(), o.String())
}

func (m *MarkerStore) ClearOverride(ctx context.Context) error {
	return m.store.Delete(ctx, m.keys.AdminOverride())
}

// Chain loads markers, runs the gates and applies their side effects.
type Chain struct {
	cfg     Config
	markers *MarkerStore
	toucher Toucher
	logger  *slog.Logger
}

// Toucher refreshes the last-activity timestamp.
type Toucher interface {
	Touch(ctx context.Context) error
}

// NewChain creates a chain. toucher may be nil.
func NewChain(cfg Config, markers *MarkerStore, toucher Toucher, logger *slog.Logger) *Chain {
	return &Chain{
		cfg:     cfg,
		markers: markers,
		toucher: toucher,
		logger:  logging.OrDefault(logger),
	}
}

// Config returns the gate parameters.
func (c *Chain) Config() Config {
	return c.cfg
}

// Load reads all markers concurrently. Read failures on the cooldown and
// manual-activity markers are logged and treated as absent; an unreadable
// override is carried in OverrideErr so that gate vetoes.
func (c *Chain) Load(ctx context.Context) Markers {
	var out Markers
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		t, err := c.markers.Cooldown(gctx)
		if err != nil {
			c.logger.Warn("failed to read cooldown marker", "error", err)
			return nil
		}
		out.Cooldown = t
		return nil
	})
	g.Go(func() error {
		t, err := c.markers.ManualActivity(gctx)
		if err != nil {
			c.logger.Warn("failed to read manual activity marker", "error", err)
			return nil
		}
		out.ManualActivity = t
		return nil
	})
	g.Go(func() error {
		o, err := c.markers.Override(gctx)
		if err != nil {
			out.OverrideErr = err
			return nil
		}
		out.Override = o
		return nil
	})
	_ = g.Wait()
	return out
}

// Evaluate runs the gates for status at now.
func (c *Chain) Evaluate(ctx context.Context, status vpn.LiveStatus, now time.Time) Verdict {
	in := Input{Status: status, Markers: c.Load(ctx), Now: now}
	v := Evaluate(c.cfg, in)

	if in.Markers.Override.Expired(now) {
		c.logger.Info("clearing expired admin override", "expired_at", in.Markers.Override.Expires)
		if err := c.markers.ClearOverride(ctx); err != nil {
			c.logger.Warn("failed to clear expired admin override", "error", err)
		}
	}

	if v.Reason == ReasonActiveConnections {
		c.ResetIdle(ctx)
	}
	return v
}

// ResetIdle refreshes last activity and clears the cooldown marker.
// Failures are logged.
func (c *Chain) ResetIdle(ctx context.Context) {
	if c.toucher != nil {
		if err := c.toucher.Touch(ctx); err != nil {
			c.logger.Warn("failed to refresh last activity", "error", err)
		}
	}
	if err := c.markers.ClearCooldown(ctx); err != nil {
		c.logger.Warn("failed to clear cooldown", "error", err)
	}
}

// CooldownRemaining reads the marker and returns the time left in the window.
func (c *Chain) CooldownRemaining(ctx context.Context, now time.Time) (time.Duration, error) {
	marker, err := c.markers.Cooldown(ctx)
	if err != nil {
		return 0, fmt.Errorf("read cooldown marker: %w", err)
	}
	return CooldownRemaining(c.cfg.Cooldown, marker, now), nil
}
