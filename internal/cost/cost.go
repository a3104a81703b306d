package cost

import (
	"context"
	"log/slog"
	"math"
	"time"

	"github.com/picklr-io/vpnpilot/internal/logging"
	"github.com/picklr-io/vpnpilot/internal/metrics"
	"github.com/picklr-io/vpnpilot/internal/store"
)

// DefaultHourlyRate is the USD price of one subnet association per hour.
const DefaultHourlyRate = 0.10

var regionRates = map[string]float64{
	"us-east-1":      0.10,
	"us-east-2":      0.10,
	"us-west-1":      0.10,
	"us-west-2":      0.10,
	"eu-west-1":      0.12,
	"eu-west-2":      0.12,
	"eu-central-1":   0.12,
	"ap-northeast-1": 0.12,
	"ap-southeast-1": 0.12,
}

// HourlyRate returns the per-subnet association price for region.
func HourlyRate(region string) float64 {
	if r, ok := regionRates[region]; ok {
		return r
	}
	return DefaultHourlyRate
}

// Estimate is the savings attributed to one close.
type Estimate struct {
	Region        string  `json:"region"`
	SubnetCount   int     `json:"subnetCount"`
	HourlySavings float64 `json:"hourlySavings"`
	IdleMinutes   int     `json:"idleMinutes"`
	PeriodSavings float64 `json:"periodSavings"`
}

// NewEstimate computes rate × subnets, and that over the idle period.
// A subnet count below one counts as one.
func NewEstimate(region string, subnetCount, idleMinutes int) Estimate {
	if subnetCount < 1 {
		subnetCount = 1
	}
	hourly := HourlyRate(region) * float64(subnetCount)
	return Estimate{
		Region:        region,
		SubnetCount:   subnetCount,
		HourlySavings: round(hourly),
		IdleMinutes:   idleMinutes,
		PeriodSavings: round(hourly * float64(idleMinutes) / 60),
	}
}

func round(v float64) float64 {
	return math.Round(v*10000) / 10000
}

// Accountant keeps the durable savings accumulators. Every method that
// records is best-effort.
type Accountant struct {
	store    store.Store
	keys     store.Keys
	region   string
	recorder *metrics.Recorder
	logger   *slog.Logger
}

// NewAccountant creates an accountant for one environment.
func NewAccountant(s store.Store, environment, region string, recorder *metrics.Recorder, logger *slog.Logger) *Accountant {
	return &Accountant{
		store:    s,
		keys:     store.Keys{Environment: environment},
		region:   region,
		recorder: recorder,
		logger:   logging.OrDefault(logger).With("environment", environment),
	}
}

// Region returns the pricing region.
func (a *Accountant) Region() string {
	return a.region
}

// RecordClose adds the savings of one close to the cumulative and daily
// totals and publishes cost metrics. Store failures are logged only.
func (a *Accountant) RecordClose(ctx context.Context, subnetCount, idleMinutes int, now time.Time) Estimate {
	est := NewEstimate(a.region, subnetCount, idleMinutes)

	a.recorder.Cost(ctx, metrics.CostSavingsPerHour, est.HourlySavings)
	a.recorder.Cost(ctx, metrics.CostSavingsTotal, est.PeriodSavings)

	cumulative, err := store.AddFloat(ctx, a.store, a.keys.CumulativeSavings(), est.PeriodSavings)
	if err != nil {
		a.logger.Warn("failed to update cumulative savings", "error", err)
	} else {
		a.recorder.Cost(ctx, metrics.CumulativeSavings, cumulative)
	}

	daily, err := store.AddFloat(ctx, a.store, a.keys.DailySavings(now), est.PeriodSavings)
	if err != nil {
		a.logger.Warn("failed to update daily savings", "error", err)
	} else {
		a.recorder.Cost(ctx, metrics.DailySavings, daily)
	}

	a.logger.Info("recorded cost savings",
		"subnets", est.SubnetCount, "hourly", est.HourlySavings, "period", est.PeriodSavings)
	return est
}

// Summary is the cost-savings report.
type Summary struct {
	Region                 string  `json:"region"`
	TodaySavings           float64 `json:"todaySavings"`
	CumulativeSavings      float64 `json:"cumulativeSavings"`
	PotentialHourlySavings float64 `json:"potentialHourlySavings"`
	SubnetCount            int     `json:"subnetCount"`
}

// Savings reports today's and cumulative totals.
func (a *Accountant) Savings(ctx context.Context, subnetCount int, now time.Time) (Summary, error) {
	today, err := store.GetFloat(ctx, a.store, a.keys.DailySavings(now))
	if err != nil {
		return Summary{}, err
	}
	total, err := store.GetFloat(ctx, a.store, a.keys.CumulativeSavings())
	if err != nil {
		return Summary{}, err
	}
	est := NewEstimate(a.region, subnetCount, 0)
	return Summary{
		Region:                 a.region,
		TodaySavings:           round(today),
		CumulativeSavings:      round(total),
		PotentialHourlySavings: est.HourlySavings,
		SubnetCount:            est.SubnetCount,
	}, nil
}

// DaySavings is one row of an analysis.
type DaySavings struct {
	Date    string  `json:"date"`
	Savings float64 `json:"savings"`
}

// Analysis is the cost-analysis report.
type Analysis struct {
	Region            string       `json:"region"`
	Days              []DaySavings `json:"days"`
	PeriodTotal       float64      `json:"periodTotal"`
	DailyAverage      float64      `json:"dailyAverage"`
	MonthlyEstimate   float64      `json:"monthlyEstimate"`
	CumulativeSavings float64      `json:"cumulativeSavings"`
}

// Analyze reports the daily totals for the last n days, oldest first.
// Unreadable days count as zero.
func (a *Accountant) Analyze(ctx context.Context, now time.Time, n int) (Analysis, error) {
	if n < 1 {
		n = 7
	}
	out := Analysis{Region: a.region}
	for i := n - 1; i >= 0; i-- {
		day := now.UTC().AddDate(0, 0, -i)
		v, err := store.GetFloat(ctx, a.store, a.keys.DailySavings(day))
		if err != nil {
			a.logger.Warn("failed to read daily savings", "date", day.Format(time.DateOnly), "error", err)
			v = 0
		}
		out.Days = append(out.Days, DaySavings{Date: day.Format(time.DateOnly), Savings: round(v)})
		out.PeriodTotal += v
	}
	total, err := store.GetFloat(ctx, a.store, a.keys.CumulativeSavings())
	if err != nil {
		return Analysis{}, err
	}
	out.PeriodTotal = round(out.PeriodTotal)
	out.DailyAverage = round(out.PeriodTotal / float64(n))
	out.MonthlyEstimate = round(out.DailyAverage * 30)
	out.CumulativeSavings = round(total)
	return out, nil
}
