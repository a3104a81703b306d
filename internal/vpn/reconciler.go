package vpn

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/picklr-io/vpnpilot/internal/logging"
	"github.com/picklr-io/vpnpilot/internal/store"
)

// Reconciler computes live status from the provider and corrects durable
// state when it has drifted. Status is the only read callers should branch on.
type Reconciler struct {
	provider StatusProvider
	store    store.Store
	keys     store.Keys
	now      func() time.Time
	logger   *slog.Logger
}

// NewReconciler creates a reconciler for one environment.
func NewReconciler(p StatusProvider, s store.Store, environment string, logger *slog.Logger) *Reconciler {
	return &Reconciler{
		provider: p,
		store:    s,
		keys:     store.Keys{Environment: environment},
		now:      func() time.Time { return time.Now().UTC() },
		logger:   logging.OrDefault(logger).With("environment", environment),
	}
}

// SetClock replaces the time source.
func (r *Reconciler) SetClock(now func() time.Time) {
	r.now = now
}

// Now returns the reconciler's current time.
func (r *Reconciler) Now() time.Time {
	return r.now()
}

// Environment returns the environment this reconciler serves.
func (r *Reconciler) Environment() string {
	return r.keys.Environment
}

// Config reads and validates the resource configuration.
func (r *Reconciler) Config(ctx context.Context) (ResourceConfig, error) {
	var cfg ResourceConfig
	if err := store.GetJSON(ctx, r.store, r.keys.Config(), &cfg); err != nil {
		return ResourceConfig{}, fmt.Errorf("%w: read resource config: %w", ErrConfig, err)
	}
	if cfg.EndpointID == "" || len(cfg.SubnetIDs) == 0 {
		return ResourceConfig{}, fmt.Errorf("%w: resource config at %s needs ENDPOINT_ID and SUBNET_ID", ErrConfig, r.keys.Config())
	}
	return cfg, nil
}

// State reads durable state. ok is false when nothing has been written yet.
func (r *Reconciler) State(ctx context.Context) (st ResourceState, ok bool, err error) {
	err = store.GetJSON(ctx, r.store, r.keys.State(), &st)
	if errors.Is(err, store.ErrNotFound) {
		return ResourceState{}, false, nil
	}
	if err != nil {
		return ResourceState{}, false, fmt.Errorf("%w: read resource state: %w", ErrProvider, err)
	}
	return st, true, nil
}

// WriteState overwrites durable state.
func (r *Reconciler) WriteState(ctx context.Context, st ResourceState) error {
	if err := store.PutJSON(ctx, r.store, r.keys.State(), st); err != nil {
		return fmt.Errorf("%w: write resource state: %w", ErrProvider, err)
	}
	return nil
}

// Status merges provider truth with durable state and heals any drift.
func (r *Reconciler) Status(ctx context.Context) (LiveStatus, error) {
	var (
		cfg      ResourceConfig
		st       ResourceState
		hasState bool
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		st, hasState, err = r.State(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		cfg, err = r.Config(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return LiveStatus{}, err
	}

	var (
		conns  []Connection
		assocs []Association
	)
	g, gctx = errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		conns, err = r.provider.DescribeConnections(gctx, cfg.EndpointID)
		if err != nil {
			return fmt.Errorf("%w: describe connections: %w", ErrProvider, err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		assocs, err = r.provider.DescribeAssociations(gctx, cfg.EndpointID)
		if err != nil {
			return fmt.Errorf("%w: describe associations: %w", ErrProvider, err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return LiveStatus{}, err
	}

	if !hasState {
		st = ResourceState{Associated: false, LastActivity: r.now()}
	}

	active := 0
	for _, c := range conns {
		if c.Active() {
			active++
		}
	}

	primary := cfg.PrimarySubnet()
	state := StateDisassociated
	if rec, ok := findAssociation(assocs, primary); ok {
		state = rec.State
	}
	associated := state == StateAssociated

	if !hasState || associated != st.Associated {
		r.logger.Info("correcting durable state",
			"stored", st.Associated, "actual", associated, "association_state", string(state))
		healed := ResourceState{Associated: associated, LastActivity: st.LastActivity}
		if err := r.WriteState(ctx, healed); err != nil {
			// the next cycle heals again
			r.logger.Warn("failed to correct durable state", "error", err)
		}
	}

	return LiveStatus{
		Associated:        associated,
		AssociationState:  state,
		ActiveConnections: active,
		LastActivity:      st.LastActivity,
		EndpointID:        cfg.EndpointID,
		SubnetID:          primary,
		SubnetIDs:         cfg.SubnetIDs,
		Associations:      assocs,
	}, nil
}

// findAssociation picks the record for subnet, preferring one that is not
// already disassociated since the provider keeps old records around.
func findAssociation(assocs []Association, subnet string) (Association, bool) {
	var found Association
	ok := false
	for _, a := range assocs {
		if a.SubnetID != subnet {
			continue
		}
		if a.State != StateDisassociated {
			return a, true
		}
		if !ok {
			found, ok = a, true
		}
	}
	return found, ok
}
