package engine

import "math"

// Cost model: pure functions of (order, market context, config).

// MarketContext carries the per-bar market state the cost model prices
// against. Built by the orchestrator from the rolling window.
type MarketContext struct {
	Bar         Bar
	AvgVolume   float64 // mean bar volume over the window
	RealizedVol float64 // std of per-bar returns over the window
}

// CostModel prices slippage, market impact and tiered commission.
type CostModel struct {
	cfg *SimulationConfig
}

func NewCostModel(cfg *SimulationConfig) CostModel { return CostModel{cfg: cfg} }

// Impact is the square-root market-impact rate: lambda * sqrt(qty / avgVolume).
func (m CostModel) Impact(qty float64, mc MarketContext) float64 {
	if m.cfg.ImpactLambda == 0 || mc.AvgVolume <= 0 || qty <= 0 {
		return 0
	}
	return m.cfg.ImpactLambda * math.Sqrt(qty/mc.AvgVolume)
}

// SlippageRate is baseRate * timeOfDayMultiplier * volatilityMultiplier.
func (m CostModel) SlippageRate(mc MarketContext) float64 {
	s := m.cfg.Slippage
	return s.BaseRate * m.timeOfDayMult(minuteOfDay(mc.Bar.Timestamp)) * m.volatilityMult(mc.RealizedVol)
}

func (m CostModel) timeOfDayMult(minute int) float64 {
	s := m.cfg.Slippage
	if s.EdgeWindowMin <= 0 {
		return 1
	}
	if absInt(minute-s.SessionOpenMin) <= s.EdgeWindowMin {
		return s.OpenMultiplier
	}
	if absInt(minute-s.SessionCloseMin) <= s.EdgeWindowMin {
		return s.CloseMultiplier
	}
	return 1
}

func (m CostModel) volatilityMult(vol float64) float64 {
	s := m.cfg.Slippage
	if s.RefVolatility <= 0 || vol <= s.RefVolatility {
		return 1
	}
	mult := vol / s.RefVolatility
	if mult > s.MaxVolMult {
		return s.MaxVolMult
	}
	return mult
}

// CommissionRate looks up the tier for the given cumulative traded notional.
// Tiers are validated non-increasing, so higher volume never costs more.
func (m CostModel) CommissionRate(cumVolume float64) float64 {
	rate := m.cfg.CommissionTiers[0].Rate
	for _, t := range m.cfg.CommissionTiers {
		if cumVolume >= t.MinVolume {
			rate = t.Rate
		}
	}
	return rate
}

// Commission is the fee for a fill at the given tier state.
func (m CostModel) Commission(price, qty, cumVolume float64) float64 {
	return price * qty * m.CommissionRate(cumVolume)
}

func absInt(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
