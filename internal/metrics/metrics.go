package metrics

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/picklr-io/vpnpilot/internal/logging"
)

// Namespaces.
const (
	NamespaceAutomation = "VPN/Automation"
	NamespaceCost       = "VPN/CostOptimization"
)

// Metric names.
const (
	AssociationStatus         = "VpnAssociationStatus"
	ActiveConnections         = "VpnActiveConnections"
	IdleTimeMinutes           = "VpnIdleTimeMinutes"
	IdleDisassociations       = "IdleSubnetDisassociations"
	AutoDisassociationErrors  = "AutoDisassociationErrors"
	MonitorErrors             = "MonitorLambdaErrors"
	CooldownRemainingMinutes  = "CooldownRemainingMinutes"
	TransientStateRejections  = "TransientStateRejections"
	OpenOperations            = "VpnOpenOperations"
	CloseOperations           = "VpnCloseOperations"
	OperationErrors           = "VpnOperationErrors"
	CrossAccountRoutingErrors = "CrossAccountRoutingFailures"
	AutoOpenOperations        = "AutoAssociations"
	HandlerErrors             = "LambdaErrors"

	CostSavingsPerHour = "CostSavingsPerHour"
	CostSavingsTotal   = "CostSavingsTotal"
	CumulativeSavings  = "CumulativeSavings"
	DailySavings       = "DailySavings"
)

// Units.
const (
	UnitCount = "Count"
	UnitNone  = "None"
)

// Datum is one data point.
type Datum struct {
	Namespace  string
	Name       string
	Value      float64
	Unit       string
	Dimensions map[string]string
	Timestamp  time.Time
}

// Publisher sends data points to a metrics backend.
type Publisher interface {
	Publish(ctx context.Context, data []Datum) error
}

// Recorder stamps dimensions onto data points and publishes them best-effort.
// Publish failures are logged and dropped.
type Recorder struct {
	pub        Publisher
	dimensions map[string]string
	now        func() time.Time
	logger     *slog.Logger
}

// NewRecorder creates a recorder with Environment and Region dimensions.
// A nil publisher yields a recorder that only logs at debug level.
func NewRecorder(pub Publisher, environment, region string, logger *slog.Logger) *Recorder {
	dims := map[string]string{"Environment": environment}
	if region != "" {
		dims["Region"] = region
	}
	return &Recorder{
		pub:        pub,
		dimensions: dims,
		now:        time.Now,
		logger:     logging.OrDefault(logger),
	}
}

// Count records value in the automation namespace with unit Count.
func (r *Recorder) Count(ctx context.Context, name string, value float64) {
	r.Put(ctx, NamespaceAutomation, name, value, UnitCount)
}

// Gauge records value in the automation namespace with unit None.
func (r *Recorder) Gauge(ctx context.Context, name string, value float64) {
	r.Put(ctx, NamespaceAutomation, name, value, UnitNone)
}

// Cost records value in the cost namespace.
func (r *Recorder) Cost(ctx context.Context, name string, value float64) {
	r.Put(ctx, NamespaceCost, name, value, UnitNone)
}

// Put records a single data point.
func (r *Recorder) Put(ctx context.Context, namespace, name string, value float64, unit string) {
	if r == nil {
		return
	}
	d := Datum{
		Namespace:  namespace,
		Name:       name,
		Value:      value,
		Unit:       unit,
		Dimensions: r.dimensions,
		Timestamp:  r.now(),
	}
	if r.pub == nil {
		r.logger.Debug("metric", "namespace", namespace, "name", name, "value", value)
		return
	}
	if err := r.pub.Publish(ctx, []Datum{d}); err != nil {
		r.logger.Warn("failed to publish metric", "name", name, "error", err)
	}
}

// Memory is an in-process Publisher that keeps every datum.
type Memory struct {
	mu   sync.Mutex
	data []Datum
	Err  error
}

func (m *Memory) Publish(ctx context.Context, data []Datum) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.data = append(m.data, data...)
	return nil
}

// Data returns every datum published so far.
func (m *Memory) Data() []Datum {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Datum(nil), m.data...)
}

// Sum adds all values published under name.
func (m *Memory) Sum(name string) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	var total float64
	for _, d := range m.data {
		if d.Name == name {
			total += d.Value
		}
	}
	return total
}

// Has reports whether anything was published under name.
func (m *Memory) Has(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, d := range m.data {
		if d.Name == name {
			return true
		}
	}
	return false
}
