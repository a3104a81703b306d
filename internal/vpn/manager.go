package vpn

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/picklr-io/vpnpilot/internal/logging"
	"github.com/picklr-io/vpnpilot/internal/store"
)

// Manager performs association changes on top of a Reconciler.
// Durable state is written only after the provider confirms a mutation.
type Manager struct {
	*Reconciler
	provider StatusProvider
	logger   *slog.Logger
}

// NewManager creates a manager for one environment.
func NewManager(p StatusProvider, s store.Store, environment string, logger *slog.Logger) *Manager {
	logger = logging.OrDefault(logger)
	return &Manager{
		Reconciler: NewReconciler(p, s, environment, logger),
		provider:   p,
		logger:     logger.With("environment", environment),
	}
}

// Open associates every configured subnet lacking an active association.
// changed is false when the endpoint was already associated.
func (m *Manager) Open(ctx context.Context) (changed bool, err error) {
	st, err := m.Status(ctx)
	if err != nil {
		return false, err
	}
	if st.AssociationState.Transitional() {
		return false, fmt.Errorf("%w: endpoint %s is %s", ErrTransientState, st.EndpointID, st.AssociationState)
	}
	if st.Associated {
		m.logger.Info("open skipped, already associated", "endpoint_id", st.EndpointID)
		return false, nil
	}

	bound := map[string]bool{}
	for _, a := range st.Associations {
		if a.State == StateAssociated || a.State == StateAssociating {
			bound[a.SubnetID] = true
		}
	}

	for _, subnet := range st.SubnetIDs {
		if bound[subnet] {
			continue
		}
		id, err := m.provider.Associate(ctx, st.EndpointID, subnet)
		if err != nil {
			return false, fmt.Errorf("%w: associate subnet %s: %w", ErrProvider, subnet, err)
		}
		m.logger.Info("subnet associated", "endpoint_id", st.EndpointID, "subnet_id", subnet, "association_id", id)
	}

	if err := m.WriteState(ctx, ResourceState{Associated: true, LastActivity: m.Now()}); err != nil {
		m.logger.Warn("association confirmed but state write failed", "error", err)
	}
	return true, nil
}

// Close disassociates every active association.
// changed is false when nothing was associated. A stored state that claims
// association without a provider record has already been corrected by Status.
// Subnets stranded by an earlier partial close are still disassociated.
func (m *Manager) Close(ctx context.Context) (changed bool, err error) {
	st, err := m.Status(ctx)
	if err != nil {
		return false, err
	}
	if st.AssociationState.Transitional() {
		return false, fmt.Errorf("%w: endpoint %s is %s", ErrTransientState, st.EndpointID, st.AssociationState)
	}
	if !st.Associated && !st.Stranded() {
		m.logger.Info("close skipped, already disassociated", "endpoint_id", st.EndpointID)
		return false, nil
	}

	var targets []Association
	for _, a := range st.Associations {
		if a.State == StateAssociated {
			targets = append(targets, a)
		}
	}

	for _, a := range targets {
		if err := m.provider.Disassociate(ctx, st.EndpointID, a.ID); err != nil {
			return false, fmt.Errorf("%w: disassociate %s: %w", ErrProvider, a.ID, err)
		}
		m.logger.Info("subnet disassociated", "endpoint_id", st.EndpointID, "subnet_id", a.SubnetID, "association_id", a.ID)
	}

	if err := m.WriteState(ctx, ResourceState{Associated: false, LastActivity: m.Now()}); err != nil {
		m.logger.Warn("disassociation confirmed but state write failed", "error", err)
	}
	return true, nil
}

// Touch moves lastActivity to now without changing the association flag.
func (m *Manager) Touch(ctx context.Context) error {
	st, _, err := m.State(ctx)
	if err != nil {
		return err
	}
	now := m.Now()
	if now.Before(st.LastActivity) {
		return nil
	}
	st.LastActivity = now
	return m.WriteState(ctx, st)
}

// ValidateEndpoint checks that the configured endpoint exists and accepts
// association changes.
func (m *Manager) ValidateEndpoint(ctx context.Context) error {
	cfg, err := m.Config(ctx)
	if err != nil {
		return err
	}
	status, err := m.provider.DescribeEndpoint(ctx, cfg.EndpointID)
	if err != nil {
		return fmt.Errorf("%w: describe endpoint %s: %w", ErrProvider, cfg.EndpointID, err)
	}
	if !EndpointHealthy(status) {
		return fmt.Errorf("%w: endpoint %s is %q", ErrProvider, cfg.EndpointID, status)
	}
	return nil
}
