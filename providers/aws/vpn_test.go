package aws

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/picklr-io/vpnpilot/internal/store"
	"github.com/picklr-io/vpnpilot/internal/vpn"
)

type fakeEC2 struct {
	networkPages  [][]ec2types.TargetNetwork
	connections   []ec2types.ClientVpnConnection
	endpoints     []ec2types.ClientVpnEndpoint
	associateErr  error
	disassocErr   error
	describeErr   error
	associated    []string
	disassociated []string
	connFilters   []ec2types.Filter
}

func (f *fakeEC2) DescribeClientVpnTargetNetworks(ctx context.Context, in *ec2.DescribeClientVpnTargetNetworksInput, _ ...func(*ec2.Options)) (*ec2.DescribeClientVpnTargetNetworksOutput, error) {
	if f.describeErr != nil {
		return nil, f.describeErr
	}
	page := 0
	if in.NextToken != nil {
		page = int(aws.ToString(in.NextToken)[0] - '0')
	}
	out := &ec2.DescribeClientVpnTargetNetworksOutput{}
	if page < len(f.networkPages) {
		out.ClientVpnTargetNetworks = f.networkPages[page]
	}
	if page+1 < len(f.networkPages) {
		out.NextToken = aws.String(string(rune('0' + page + 1)))
	}
	return out, nil
}

func (f *fakeEC2) DescribeClientVpnConnections(ctx context.Context, in *ec2.DescribeClientVpnConnectionsInput, _ ...func(*ec2.Options)) (*ec2.DescribeClientVpnConnectionsOutput, error) {
	f.connFilters = in.Filters
	return &ec2.DescribeClientVpnConnectionsOutput{Connections: f.connections}, nil
}

func (f *fakeEC2) AssociateClientVpnTargetNetwork(ctx context.Context, in *ec2.AssociateClientVpnTargetNetworkInput, _ ...func(*ec2.Options)) (*ec2.AssociateClientVpnTargetNetworkOutput, error) {
	if f.associateErr != nil {
		return nil, f.associateErr
	}
	f.associated = append(f.associated, aws.ToString(in.SubnetId))
	return &ec2.AssociateClientVpnTargetNetworkOutput{
		AssociationId: aws.String("cvpn-assoc-new"),
		Status:        &ec2types.AssociationStatus{Code: ec2types.AssociationStatusCodeAssociating},
	}, nil
}

func (f *fakeEC2) DisassociateClientVpnTargetNetwork(ctx context.Context, in *ec2.DisassociateClientVpnTargetNetworkInput, _ ...func(*ec2.Options)) (*ec2.DisassociateClientVpnTargetNetworkOutput, error) {
	if f.disassocErr != nil {
		return nil, f.disassocErr
	}
	f.disassociated = append(f.disassociated, aws.ToString(in.AssociationId))
	return &ec2.DisassociateClientVpnTargetNetworkOutput{}, nil
}

func (f *fakeEC2) DescribeClientVpnEndpoints(ctx context.Context, in *ec2.DescribeClientVpnEndpointsInput, _ ...func(*ec2.Options)) (*ec2.DescribeClientVpnEndpointsOutput, error) {
	return &ec2.DescribeClientVpnEndpointsOutput{ClientVpnEndpoints: f.endpoints}, nil
}

func targetNetwork(assocID, subnet string, code ec2types.AssociationStatusCode) ec2types.TargetNetwork {
	return ec2types.TargetNetwork{
		AssociationId:   aws.String(assocID),
		TargetNetworkId: aws.String(subnet),
		Status:          &ec2types.AssociationStatus{Code: code},
	}
}

func apiErr(code string) error {
	return &smithy.GenericAPIError{Code: code, Message: "test"}
}

func TestClientVPN_DescribeAssociationsPaginates(t *testing.T) {
	fake := &fakeEC2{networkPages: [][]ec2types.TargetNetwork{
		{targetNetwork("cvpn-assoc-1", "subnet-a", ec2types.AssociationStatusCodeAssociated)},
		{targetNetwork("cvpn-assoc-2", "subnet-b", ec2types.AssociationStatusCodeDisassociating)},
	}}

	got, err := NewClientVPN(fake).DescribeAssociations(context.Background(), "cvpn-endpoint-1")
	require.NoError(t, err)
	assert.Equal(t, []vpn.Association{
		{ID: "cvpn-assoc-1", SubnetID: "subnet-a", State: vpn.StateAssociated},
		{ID: "cvpn-assoc-2", SubnetID: "subnet-b", State: vpn.StateDisassociating},
	}, got)
}

func TestClientVPN_DescribeConnectionsSendsNoFilters(t *testing.T) {
	fake := &fakeEC2{connections: []ec2types.ClientVpnConnection{
		{ConnectionId: aws.String("cvpn-connection-1"), Status: &ec2types.ClientVpnConnectionStatus{Code: ec2types.ClientVpnConnectionStatusCodeActive}},
		{ConnectionId: aws.String("cvpn-connection-2"), Status: &ec2types.ClientVpnConnectionStatus{Code: ec2types.ClientVpnConnectionStatusCodeTerminated}},
		{ConnectionId: aws.String("cvpn-connection-3")},
	}}

	got, err := NewClientVPN(fake).DescribeConnections(context.Background(), "cvpn-endpoint-1")
	require.NoError(t, err)
	assert.Empty(t, fake.connFilters)
	require.Len(t, got, 3)

	active := 0
	for _, c := range got {
		if c.Active() {
			active++
		}
	}
	assert.Equal(t, 1, active)
}

func TestClientVPN_AssociateAndDisassociate(t *testing.T) {
	fake := &fakeEC2{}
	c := NewClientVPN(fake)
	ctx := context.Background()

	id, err := c.Associate(ctx, "cvpn-endpoint-1", "subnet-a")
	require.NoError(t, err)
	assert.Equal(t, "cvpn-assoc-new", id)
	assert.Equal(t, []string{"subnet-a"}, fake.associated)

	require.NoError(t, c.Disassociate(ctx, "cvpn-endpoint-1", "cvpn-assoc-new"))
	assert.Equal(t, []string{"cvpn-assoc-new"}, fake.disassociated)
}

func TestClientVPN_DisassociateMissingIsDone(t *testing.T) {
	fake := &fakeEC2{disassocErr: apiErr(codeAssociationNotFound)}
	assert.NoError(t, NewClientVPN(fake).Disassociate(context.Background(), "cvpn-endpoint-1", "cvpn-assoc-9"))
}

func TestClientVPN_ErrorClassification(t *testing.T) {
	ctx := context.Background()

	_, err := NewClientVPN(&fakeEC2{associateErr: apiErr(codeIncorrectState)}).Associate(ctx, "e", "s")
	assert.ErrorIs(t, err, vpn.ErrTransientState)

	_, err = NewClientVPN(&fakeEC2{associateErr: apiErr(codeSubnetNotFound)}).Associate(ctx, "e", "s")
	assert.ErrorIs(t, err, vpn.ErrConfig)

	_, err = NewClientVPN(&fakeEC2{describeErr: apiErr("RequestLimitExceeded")}).DescribeAssociations(ctx, "e")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "throttled")

	plain := errors.New("dial tcp: connection refused")
	_, err = NewClientVPN(&fakeEC2{associateErr: plain}).Associate(ctx, "e", "s")
	assert.ErrorIs(t, err, plain)
}

func TestClientVPN_DescribeEndpoint(t *testing.T) {
	fake := &fakeEC2{endpoints: []ec2types.ClientVpnEndpoint{
		{Status: &ec2types.ClientVpnEndpointStatus{Code: ec2types.ClientVpnEndpointStatusCodeAvailable}},
	}}
	status, err := NewClientVPN(fake).DescribeEndpoint(context.Background(), "cvpn-endpoint-1")
	require.NoError(t, err)
	assert.True(t, vpn.EndpointHealthy(status))

	_, err = NewClientVPN(&fakeEC2{}).DescribeEndpoint(context.Background(), "cvpn-endpoint-1")
	assert.ErrorIs(t, err, vpn.ErrConfig)
}

func TestClientVPN_DrivesManager(t *testing.T) {
	fake := &fakeEC2{
		endpoints: []ec2types.ClientVpnEndpoint{
			{Status: &ec2types.ClientVpnEndpointStatus{Code: ec2types.ClientVpnEndpointStatusCodeAvailable}},
		},
	}
	s := store.NewMemory()
	ctx := context.Background()
	require.NoError(t, store.PutJSON(ctx, s, store.Keys{Environment: "staging"}.Config(),
		vpn.ResourceConfig{EndpointID: "cvpn-endpoint-1", SubnetIDs: []string{"subnet-a", "subnet-b"}}))

	m := vpn.NewManager(NewClientVPN(fake), s, "staging", nil)
	require.NoError(t, m.ValidateEndpoint(ctx))
	changed, err := m.Open(ctx)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, []string{"subnet-a", "subnet-b"}, fake.associated)
}
