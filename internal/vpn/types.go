package vpn

import (
	"context"
	"encoding/json"
	"slices"
	"strings"
	"time"
)

// AssociationState is the lifecycle state of a subnet association.
type AssociationState string

const (
	StateAssociated     AssociationState = "associated"
	StateAssociating    AssociationState = "associating"
	StateDisassociating AssociationState = "disassociating"
	StateDisassociated  AssociationState = "disassociated"
	StateFailed         AssociationState = "failed"
)

// Transitional reports whether the association is mid-change.
func (s AssociationState) Transitional() bool {
	return s == StateAssociating || s == StateDisassociating
}

// ParseAssociationState maps a provider status code to an AssociationState.
// Empty codes mean no record and map to disassociated.
func ParseAssociationState(code string) AssociationState {
	switch strings.ToLower(code) {
	case "associated":
		return StateAssociated
	case "associating":
		return StateAssociating
	case "disassociating":
		return StateDisassociating
	case "", "disassociated":
		return StateDisassociated
	default:
		return StateFailed
	}
}

// Association is one subnet binding on the endpoint.
type Association struct {
	ID       string
	SubnetID string
	State    AssociationState
}

// Connection is one client connection record.
type Connection struct {
	ID     string
	Status string
}

// Active reports whether the connection currently counts as in use.
func (c Connection) Active() bool {
	return strings.EqualFold(c.Status, "active")
}

// Endpoint statuses accepted as healthy.
const (
	EndpointAvailable        = "available"
	EndpointPendingAssociate = "pending-associate"
)

// EndpointHealthy reports whether an endpoint status code allows operations.
func EndpointHealthy(status string) bool {
	return status == EndpointAvailable || status == EndpointPendingAssociate
}

// StatusProvider reads and mutates live endpoint state.
type StatusProvider interface {
	DescribeAssociations(ctx context.Context, endpointID string) ([]Association, error)
	DescribeConnections(ctx context.Context, endpointID string) ([]Connection, error)
	Associate(ctx context.Context, endpointID, subnetID string) (string, error)
	Disassociate(ctx context.Context, endpointID, associationID string) error
	DescribeEndpoint(ctx context.Context, endpointID string) (string, error)
}

// ResourceState is the durable per-environment record.
type ResourceState struct {
	Associated   bool      `json:"associated"`
	LastActivity time.Time `json:"lastActivity"`
}

// ResourceConfig identifies the endpoint and its target subnets.
type ResourceConfig struct {
	EndpointID string
	SubnetIDs  []string
}

type resourceConfigJSON struct {
	EndpointID string `json:"ENDPOINT_ID"`
	SubnetID   string `json:"SUBNET_ID"`
}

// MarshalJSON writes the provisioning format: subnets as a comma-separated string.
func (c ResourceConfig) MarshalJSON() ([]byte, error) {
	return json.Marshal(resourceConfigJSON{
		EndpointID: c.EndpointID,
		SubnetID:   strings.Join(c.SubnetIDs, ","),
	})
}

func (c *ResourceConfig) UnmarshalJSON(data []byte) error {
	var raw resourceConfigJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	c.EndpointID = strings.TrimSpace(raw.EndpointID)
	c.SubnetIDs = SplitSubnets(raw.SubnetID)
	return nil
}

// PrimarySubnet is the subnet whose association drives status.
func (c ResourceConfig) PrimarySubnet() string {
	if len(c.SubnetIDs) == 0 {
		return ""
	}
	return c.SubnetIDs[0]
}

// SplitSubnets splits a comma-separated subnet list, dropping blanks.
func SplitSubnets(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// LiveStatus is provider truth merged with durable state for one call.
type LiveStatus struct {
	Associated        bool             `json:"associated"`
	AssociationState  AssociationState `json:"associationState"`
	ActiveConnections int              `json:"activeConnections"`
	LastActivity      time.Time        `json:"lastActivity"`
	EndpointID        string           `json:"endpointId"`
	SubnetID          string           `json:"subnetId"`
	SubnetIDs         []string         `json:"subnetIds,omitempty"`
	Associations      []Association    `json:"-"`
}

// Stranded reports whether a configured subnet other than the primary is
// still associated while the primary is not. A close that failed part way
// leaves this behind.
func (s LiveStatus) Stranded() bool {
	if s.Associated {
		return false
	}
	for _, a := range s.Associations {
		if a.State == StateAssociated && slices.Contains(s.SubnetIDs, a.SubnetID) {
			return true
		}
	}
	return false
}

// IdleMinutes is the floored number of minutes since the last activity.
func (s LiveStatus) IdleMinutes(now time.Time) int {
	d := now.Sub(s.LastActivity)
	if d < 0 {
		return 0
	}
	return int(d / time.Minute)
}
