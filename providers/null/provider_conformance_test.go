package null

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/picklr-io/vpnpilot/internal/store"
	"github.com/picklr-io/vpnpilot/internal/vpn"
)

// Provider conformance test suite.
// Drives the provider through the manager's full lifecycle:
// Validate -> Status -> Open -> Open (noop) -> Close -> Close (noop)

func TestConformance_FullLifecycle(t *testing.T) {
	ctx := context.Background()
	p := New()
	p.AddEndpoint("cvpn-endpoint-1", vpn.EndpointPendingAssociate)

	s := store.NewMemory()
	require.NoError(t, store.PutJSON(ctx, s, store.Keys{Environment: "staging"}.Config(),
		vpn.ResourceConfig{EndpointID: "cvpn-endpoint-1", SubnetIDs: []string{"subnet-a", "subnet-b"}}))

	m := vpn.NewManager(p, s, "staging", nil)

	// 1. Validate
	require.NoError(t, m.ValidateEndpoint(ctx))

	// 2. Status
	st, err := m.Status(ctx)
	require.NoError(t, err)
	assert.False(t, st.Associated)
	assert.Equal(t, vpn.StateDisassociated, st.AssociationState)

	// 3. Open
	changed, err := m.Open(ctx)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, 2, p.Calls(OpAssociate))

	// 4. Open (noop)
	changed, err = m.Open(ctx)
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, 2, p.Calls(OpAssociate))

	// 5. Close
	changed, err = m.Close(ctx)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, 2, p.Calls(OpDisassociate))

	// 6. Close (noop)
	changed, err = m.Close(ctx)
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, 4, p.Mutations())
}
