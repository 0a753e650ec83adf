package metrics

import (
	"math/big"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// RewardsMetrics tracks ledger activity for operators: value moving through
// pools, claims paid out and lazy settlements folded.
type RewardsMetrics struct {
	deposits       *prometheus.CounterVec
	depositedValue *prometheus.CounterVec
	claims         *prometheus.CounterVec
	claimedValue   *prometheus.CounterVec
	settlements    prometheus.Counter
	settledValue   prometheus.Counter
	weightChanges  *prometheus.CounterVec
	forfeitedValue prometheus.Counter
	retainedValue  *prometheus.CounterVec
}

var (
	rewardsOnce     sync.Once
	rewardsRegistry *RewardsMetrics
)

// Rewards returns the lazily-initialised reward ledger metrics registry.
func Rewards() *RewardsMetrics {
	rewardsOnce.Do(func() {
		rewardsRegistry = &RewardsMetrics{
			deposits: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "rewards_deposits_total",
				Help: "Count of pool deposits by pool.",
			}, []string{"pool"}),
			depositedValue: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "rewards_deposited_value",
				Help: "Cumulative value deposited by pool.",
			}, []string{"pool"}),
			claims: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "rewards_claims_total",
				Help: "Count of claims by pool.",
			}, []string{"pool"}),
			claimedValue: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "rewards_claimed_value",
				Help: "Cumulative value claimed by pool.",
			}, []string{"pool"}),
			settlements: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "rewards_settlements_total",
				Help: "Count of lazy epoch settlements performed.",
			}),
			settledValue: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "rewards_settled_value",
				Help: "Cumulative treasury value withdrawn by settlements.",
			}),
			weightChanges: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "rewards_weight_changes_total",
				Help: "Count of weight reconciliation commands by direction.",
			}, []string{"direction"}),
			forfeitedValue: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "rewards_forfeited_value",
				Help: "Cumulative pending value forfeited on leave.",
			}),
			retainedValue: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "rewards_retained_value",
				Help: "Cumulative value retained undistributed by weightless pools.",
			}, []string{"pool"}),
		}
		prometheus.MustRegister(
			rewardsRegistry.deposits,
			rewardsRegistry.depositedValue,
			rewardsRegistry.claims,
			rewardsRegistry.claimedValue,
			rewardsRegistry.settlements,
			rewardsRegistry.settledValue,
			rewardsRegistry.weightChanges,
			rewardsRegistry.forfeitedValue,
			rewardsRegistry.retainedValue,
		)
	})
	return rewardsRegistry
}

// ObserveDeposit records a pool deposit.
func (m *RewardsMetrics) ObserveDeposit(pool string, amount *big.Int) {
	if m == nil {
		return
	}
	m.deposits.WithLabelValues(pool).Inc()
	m.depositedValue.WithLabelValues(pool).Add(bigToFloat(amount))
}

// ObserveClaim records a paid claim.
func (m *RewardsMetrics) ObserveClaim(pool string, amount *big.Int) {
	if m == nil {
		return
	}
	m.claims.WithLabelValues(pool).Inc()
	m.claimedValue.WithLabelValues(pool).Add(bigToFloat(amount))
}

// ObserveSettlement records a completed lazy settlement.
func (m *RewardsMetrics) ObserveSettlement(withdrawn *big.Int) {
	if m == nil {
		return
	}
	m.settlements.Inc()
	m.settledValue.Add(bigToFloat(withdrawn))
}

// ObserveWeightChange records a reconciliation command.
func (m *RewardsMetrics) ObserveWeightChange(direction string) {
	if m == nil {
		return
	}
	m.weightChanges.WithLabelValues(direction).Inc()
}

// ObserveRetained records value retained undistributed by a weightless pool.
func (m *RewardsMetrics) ObserveRetained(pool string, amount *big.Int) {
	if m == nil {
		return
	}
	m.retainedValue.WithLabelValues(pool).Add(bigToFloat(amount))
}

// ObserveForfeit records pending value forfeited on leave.
func (m *RewardsMetrics) ObserveForfeit(amount *big.Int) {
	if m == nil {
		return
	}
	m.forfeitedValue.Add(bigToFloat(amount))
}

func bigToFloat(v *big.Int) float64 {
	if v == nil {
		return 0
	}
	f, _ := new(big.Float).SetInt(v).Float64()
	return f
}
