package aws

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"

	"github.com/picklr-io/vpnpilot/internal/vpn"
)

// EC2API is the subset of the EC2 client used for Client VPN.
type EC2API interface {
	ec2.DescribeClientVpnTargetNetworksAPIClient
	ec2.DescribeClientVpnConnectionsAPIClient
	AssociateClientVpnTargetNetwork(ctx context.Context, params *ec2.AssociateClientVpnTargetNetworkInput, optFns ...func(*ec2.Options)) (*ec2.AssociateClientVpnTargetNetworkOutput, error)
	DisassociateClientVpnTargetNetwork(ctx context.Context, params *ec2.DisassociateClientVpnTargetNetworkInput, optFns ...func(*ec2.Options)) (*ec2.DisassociateClientVpnTargetNetworkOutput, error)
	DescribeClientVpnEndpoints(ctx context.Context, params *ec2.DescribeClientVpnEndpointsInput, optFns ...func(*ec2.Options)) (*ec2.DescribeClientVpnEndpointsOutput, error)
}

// ClientVPN implements vpn.StatusProvider on EC2 Client VPN.
type ClientVPN struct {
	client EC2API
}

var _ vpn.StatusProvider = (*ClientVPN)(nil)

func NewClientVPN(client EC2API) *ClientVPN {
	return &ClientVPN{client: client}
}

func (c *ClientVPN) DescribeAssociations(ctx context.Context, endpointID string) ([]vpn.Association, error) {
	p := ec2.NewDescribeClientVpnTargetNetworksPaginator(c.client, &ec2.DescribeClientVpnTargetNetworksInput{
		ClientVpnEndpointId: aws.String(endpointID),
	})

	var out []vpn.Association
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, classify("describe client vpn target networks", err)
		}
		for _, n := range page.ClientVpnTargetNetworks {
			code := ""
			if n.Status != nil {
				code = string(n.Status.Code)
			}
			out = append(out, vpn.Association{
				ID:       aws.ToString(n.AssociationId),
				SubnetID: aws.ToString(n.TargetNetworkId),
				State:    vpn.ParseAssociationState(code),
			})
		}
	}
	return out, nil
}

// DescribeConnections returns every connection the endpoint reports. The API
// only filters by connection-id and username, so callers count active ones.
func (c *ClientVPN) DescribeConnections(ctx context.Context, endpointID string) ([]vpn.Connection, error) {
	p := ec2.NewDescribeClientVpnConnectionsPaginator(c.client, &ec2.DescribeClientVpnConnectionsInput{
		ClientVpnEndpointId: aws.String(endpointID),
	})

	var out []vpn.Connection
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, classify("describe client vpn connections", err)
		}
		for _, conn := range page.Connections {
			status := ""
			if conn.Status != nil {
				status = string(conn.Status.Code)
			}
			out = append(out, vpn.Connection{ID: aws.ToString(conn.ConnectionId), Status: status})
		}
	}
	return out, nil
}

func (c *ClientVPN) Associate(ctx context.Context, endpointID, subnetID string) (string, error) {
	resp, err := c.client.AssociateClientVpnTargetNetwork(ctx, &ec2.AssociateClientVpnTargetNetworkInput{
		ClientVpnEndpointId: aws.String(endpointID),
		SubnetId:            aws.String(subnetID),
	})
	if err != nil {
		return "", classify("associate client vpn target network", err)
	}
	return aws.ToString(resp.AssociationId), nil
}

// Disassociate treats an association that no longer exists as done.
func (c *ClientVPN) Disassociate(ctx context.Context, endpointID, associationID string) error {
	_, err := c.client.DisassociateClientVpnTargetNetwork(ctx, &ec2.DisassociateClientVpnTargetNetworkInput{
		ClientVpnEndpointId: aws.String(endpointID),
		AssociationId:       aws.String(associationID),
	})
	switch apiCode(err) {
	case codeAssociationNotFound, codeActiveAssocNotFound:
		return nil
	}
	return classify("disassociate client vpn target network", err)
}

func (c *ClientVPN) DescribeEndpoint(ctx context.Context, endpointID string) (string, error) {
	resp, err := c.client.DescribeClientVpnEndpoints(ctx, &ec2.DescribeClientVpnEndpointsInput{
		ClientVpnEndpointIds: []string{endpointID},
	})
	if err != nil {
		return "", classify("describe client vpn endpoints", err)
	}
	if len(resp.ClientVpnEndpoints) == 0 {
		return "", fmt.Errorf("%w: client vpn endpoint %s not found", vpn.ErrConfig, endpointID)
	}
	ep := resp.ClientVpnEndpoints[0]
	if ep.Status == nil {
		return "", nil
	}
	return string(ep.Status.Code), nil
}
