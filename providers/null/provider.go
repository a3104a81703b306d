package null

import (
	"context"
	"fmt"
	"sync"

	"github.com/picklr-io/vpnpilot/internal/vpn"
)

// Operation names accepted by FailOn.
const (
	OpDescribeAssociations = "DescribeAssociations"
	OpDescribeConnections  = "DescribeConnections"
	OpAssociate            = "Associate"
	OpDisassociate         = "Disassociate"
	OpDescribeEndpoint     = "DescribeEndpoint"
)

// Provider is an in-memory Client VPN service. Associations settle
// immediately unless a test pins a transitional state with SetAssociation.
type Provider struct {
	mu        sync.Mutex
	endpoints map[string]*endpoint
	failures  map[string]error
	calls     map[string]int
	seq       int
}

type endpoint struct {
	status       string
	associations []vpn.Association
	connections  []vpn.Connection
}

func New() *Provider {
	return &Provider{
		endpoints: map[string]*endpoint{},
		failures:  map[string]error{},
		calls:     map[string]int{},
	}
}

// AddEndpoint registers an endpoint with the given status code.
func (p *Provider) AddEndpoint(id, status string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.endpoints[id] = &endpoint{status: status}
}

// SetEndpointStatus changes the endpoint status code.
func (p *Provider) SetEndpointStatus(id, status string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if ep, ok := p.endpoints[id]; ok {
		ep.status = status
	}
}

// SetConnections replaces the connection list with n active connections.
func (p *Provider) SetConnections(id string, n int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	ep, ok := p.endpoints[id]
	if !ok {
		return
	}
	ep.connections = nil
	for i := 0; i < n; i++ {
		ep.connections = append(ep.connections, vpn.Connection{
			ID:     fmt.Sprintf("cvpn-connection-%d", i),
			Status: "active",
		})
	}
}

// SetAssociation inserts or updates the record for subnet.
func (p *Provider) SetAssociation(id, subnet string, state vpn.AssociationState) {
	p.mu.Lock()
	defer p.mu.Unlock()
	ep, ok := p.endpoints[id]
	if !ok {
		return
	}
	for i := range ep.associations {
		if ep.associations[i].SubnetID == subnet {
			ep.associations[i].State = state
			return
		}
	}
	p.seq++
	ep.associations = append(ep.associations, vpn.Association{
		ID:       fmt.Sprintf("cvpn-assoc-%04d", p.seq),
		SubnetID: subnet,
		State:    state,
	})
}

// FailOn makes every later call to op return err. A nil err clears it.
func (p *Provider) FailOn(op string, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err == nil {
		delete(p.failures, op)
		return
	}
	p.failures[op] = err
}

// Calls returns how many times op was invoked.
func (p *Provider) Calls(op string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls[op]
}

// Mutations returns the total number of associate and disassociate calls.
func (p *Provider) Mutations() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls[OpAssociate] + p.calls[OpDisassociate]
}

func (p *Provider) enter(op, id string) (*endpoint, error) {
	p.calls[op]++
	if err := p.failures[op]; err != nil {
		return nil, err
	}
	ep, ok := p.endpoints[id]
	if !ok {
		return nil, fmt.Errorf("client vpn endpoint %s not found", id)
	}
	return ep, nil
}

func (p *Provider) DescribeAssociations(ctx context.Context, endpointID string) ([]vpn.Association, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	ep, err := p.enter(OpDescribeAssociations, endpointID)
	if err != nil {
		return nil, err
	}
	return append([]vpn.Association(nil), ep.associations...), nil
}

func (p *Provider) DescribeConnections(ctx context.Context, endpointID string) ([]vpn.Connection, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	ep, err := p.enter(OpDescribeConnections, endpointID)
	if err != nil {
		return nil, err
	}
	return append([]vpn.Connection(nil), ep.connections...), nil
}

func (p *Provider) Associate(ctx context.Context, endpointID, subnetID string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	ep, err := p.enter(OpAssociate, endpointID)
	if err != nil {
		return "", err
	}
	for i := range ep.associations {
		a := &ep.associations[i]
		if a.SubnetID == subnetID && a.State == vpn.StateAssociated {
			return a.ID, nil
		}
	}
	p.seq++
	a := vpn.Association{
		ID:       fmt.Sprintf("cvpn-assoc-%04d", p.seq),
		SubnetID: subnetID,
		State:    vpn.StateAssociated,
	}
	// replace any stale record for the subnet
	kept := ep.associations[:0]
	for _, old := range ep.associations {
		if old.SubnetID != subnetID {
			kept = append(kept, old)
		}
	}
	ep.associations = append(kept, a)
	return a.ID, nil
}

func (p *Provider) Disassociate(ctx context.Context, endpointID, associationID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	ep, err := p.enter(OpDisassociate, endpointID)
	if err != nil {
		return err
	}
	for i := range ep.associations {
		if ep.associations[i].ID == associationID {
			ep.associations[i].State = vpn.StateDisassociated
			return nil
		}
	}
	return fmt.Errorf("association %s not found", associationID)
}

func (p *Provider) DescribeEndpoint(ctx context.Context, endpointID string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	ep, err := p.enter(OpDescribeEndpoint, endpointID)
	if err != nil {
		return "", err
	}
	return ep.status, nil
}

var _ vpn.StatusProvider = (*Provider)(nil)
