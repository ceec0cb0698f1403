package metrics

import (
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// MarketMetrics wraps the collectors describing one lending market's health.
type MarketMetrics struct {
	operations      *prometheus.CounterVec
	liquidations    *prometheus.CounterVec
	flashLoans      *prometheus.CounterVec
	flashLoanFees   prometheus.Counter
	interestAccrued prometheus.Counter
	utilization     prometheus.Gauge
	totalBase       prometheus.Gauge
	totalBorrow     prometheus.Gauge
	supplyRate      prometheus.Gauge
	borrowRate      *prometheus.GaugeVec
	openPositions   prometheus.Gauge
}

var (
	marketOnce     sync.Once
	marketRegistry *MarketMetrics
)

// Market returns the singleton metrics registry for the lending engine.
func Market() *MarketMetrics {
	marketOnce.Do(func() {
		marketRegistry = &MarketMetrics{
			operations: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "lendefi_market_operations_total",
				Help: "Count of market operations segmented by kind and outcome.",
			}, []string{"operation", "outcome"}),
			liquidations: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "lendefi_market_liquidations_total",
				Help: "Count of executed liquidations segmented by collateral tier.",
			}, []string{"tier"}),
			flashLoans: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "lendefi_market_flash_loans_total",
				Help: "Count of flash loan attempts segmented by outcome.",
			}, []string{"outcome"}),
			flashLoanFees: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "lendefi_market_flash_loan_fees_base_units",
				Help: "Cumulative flash loan fees collected in base token units.",
			}),
			interestAccrued: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "lendefi_market_interest_accrued_base_units",
				Help: "Cumulative borrower interest accrued in base token units.",
			}),
			utilization: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "lendefi_market_utilization_wad",
				Help: "Current pool utilization in WAD units (1e6 = 100%).",
			}),
			totalBase: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "lendefi_market_total_base_units",
				Help: "Total base token accounted to the vault.",
			}),
			totalBorrow: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "lendefi_market_total_borrow_units",
				Help: "Total outstanding borrow principal plus accrued interest.",
			}),
			supplyRate: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "lendefi_market_supply_rate_wad",
				Help: "Current annual supply rate in WAD units.",
			}),
			borrowRate: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Name: "lendefi_market_borrow_rate_wad",
				Help: "Current annual borrow rate in WAD units per collateral tier.",
			}, []string{"tier"}),
			openPositions: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "lendefi_market_open_positions",
				Help: "Number of currently active borrow positions.",
			}),
		}
		prometheus.MustRegister(
			marketRegistry.operations,
			marketRegistry.liquidations,
			marketRegistry.flashLoans,
			marketRegistry.flashLoanFees,
			marketRegistry.interestAccrued,
			marketRegistry.utilization,
			marketRegistry.totalBase,
			marketRegistry.totalBorrow,
			marketRegistry.supplyRate,
			marketRegistry.borrowRate,
			marketRegistry.openPositions,
		)
	})
	return marketRegistry
}

// ObserveOperation counts one engine operation by name and outcome.
func (m *MarketMetrics) ObserveOperation(operation string, err error) {
	if m == nil {
		return
	}
	op := strings.TrimSpace(operation)
	if op == "" {
		op = "unknown"
	}
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	m.operations.WithLabelValues(op, outcome).Inc()
}

// ObserveLiquidation counts one completed liquidation for a collateral tier.
func (m *MarketMetrics) ObserveLiquidation(tier string) {
	if m == nil {
		return
	}
	if tier == "" {
		tier = "unknown"
	}
	m.liquidations.WithLabelValues(tier).Inc()
}

// ObserveFlashLoan counts one flash loan attempt and, when it succeeded,
// accumulates the fee.
func (m *MarketMetrics) ObserveFlashLoan(fee float64, err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.flashLoans.WithLabelValues("error").Inc()
		return
	}
	m.flashLoans.WithLabelValues("success").Inc()
	m.flashLoanFees.Add(fee)
}

// AddInterestAccrued accumulates borrower interest in base units.
func (m *MarketMetrics) AddInterestAccrued(amount float64) {
	if m == nil || amount <= 0 {
		return
	}
	m.interestAccrued.Add(amount)
}

// SetPoolState publishes the vault totals and derived utilization.
func (m *MarketMetrics) SetPoolState(totalBase, totalBorrow, utilizationWAD float64) {
	if m == nil {
		return
	}
	m.totalBase.Set(totalBase)
	m.totalBorrow.Set(totalBorrow)
	m.utilization.Set(utilizationWAD)
}

// SetRates publishes the current supply rate and one tier's borrow rate.
func (m *MarketMetrics) SetRates(supplyRateWAD float64, tier string, borrowRateWAD float64) {
	if m == nil {
		return
	}
	m.supplyRate.Set(supplyRateWAD)
	if tier == "" {
		tier = "unknown"
	}
	m.borrowRate.WithLabelValues(tier).Set(borrowRateWAD)
}

// SetOpenPositions publishes the active position count.
func (m *MarketMetrics) SetOpenPositions(count float64) {
	if m == nil {
		return
	}
	m.openPositions.Set(count)
}
