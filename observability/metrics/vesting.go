// Package metrics registers the prometheus instrumentation for the vesting
// subsystem.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// VestingMetrics tracks ledger operation volumes and outcomes.
type VestingMetrics struct {
	credits       prometheus.Counter
	claims        *prometheus.CounterVec
	earlyExits    prometheus.Counter
	opFailures    *prometheus.CounterVec
	vestedBalance prometheus.Gauge
}

var (
	vestingOnce     sync.Once
	vestingRegistry *VestingMetrics
)

// Vesting returns the process-wide vesting metrics, registering them on
// first use.
func Vesting() *VestingMetrics {
	vestingOnce.Do(func() {
		vestingRegistry = &VestingMetrics{
			credits: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "vesting_credits_total",
				Help: "Count of successful issuer credits.",
			}),
			claims: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "vesting_claims_total",
				Help: "Count of full payouts by kind (voluntary or forced).",
			}, []string{"kind"}),
			earlyExits: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "vesting_early_exits_total",
				Help: "Count of partial early-exit conversions.",
			}),
			opFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "vesting_op_failures_total",
				Help: "Count of rejected operations by method.",
			}, []string{"method"}),
			vestedBalance: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "vesting_total_balance",
				Help: "Reward-token balance held by the vesting module.",
			}),
		}
		prometheus.MustRegister(
			vestingRegistry.credits,
			vestingRegistry.claims,
			vestingRegistry.earlyExits,
			vestingRegistry.opFailures,
			vestingRegistry.vestedBalance,
		)
	})
	return vestingRegistry
}

// RecordCredit counts a successful credit.
func (m *VestingMetrics) RecordCredit() { m.credits.Inc() }

// RecordClaim counts a full payout; forced marks rollover flushes.
func (m *VestingMetrics) RecordClaim(forced bool) {
	kind := "voluntary"
	if forced {
		kind = "forced"
	}
	m.claims.WithLabelValues(kind).Inc()
}

// RecordEarlyExit counts a partial conversion.
func (m *VestingMetrics) RecordEarlyExit() { m.earlyExits.Inc() }

// RecordFailure counts a rejected operation for method.
func (m *VestingMetrics) RecordFailure(method string) {
	m.opFailures.WithLabelValues(method).Inc()
}

// SetVestedBalance records the module's current reward-token holdings.
func (m *VestingMetrics) SetVestedBalance(balance float64) {
	m.vestedBalance.Set(balance)
}
