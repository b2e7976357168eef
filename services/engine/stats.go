package engine

import "math"

// Summary statistics computed once over the finished trade and equity
// series. Ratios whose denominator is zero are reported with a false
// Valid flag instead of Inf/NaN so results stay serializable.
type Summary struct {
	TotalReturn       float64 `json:"total_return"`
	WinRate           float64 `json:"win_rate"`
	MaxDrawdown       float64 `json:"max_drawdown"`
	Sharpe            float64 `json:"sharpe"`
	SharpeValid       bool    `json:"sharpe_valid"`
	ProfitFactor      float64 `json:"profit_factor"`
	ProfitFactorValid bool    `json:"profit_factor_valid"`
	TradeCount        int     `json:"trade_count"`
	Wins              int     `json:"wins"`
	Losses            int     `json:"losses"`
	GrossProfit       float64 `json:"gross_profit"`
	GrossLoss         float64 `json:"gross_loss"`
	TotalCommission   float64 `json:"total_commission"`
	TotalSlippageCost float64 `json:"total_slippage_cost"`
	TotalImpactCost   float64 `json:"total_impact_cost"`
}

// Summarize reduces the full run into summary statistics.
func Summarize(trades []Trade, equity []EquityPoint, initialCapital, barsPerYear float64) Summary {
	var s Summary
	if len(equity) > 0 && initialCapital > 0 {
		s.TotalReturn = (equity[len(equity)-1].Equity - initialCapital) / initialCapital
	}

	closed := 0
	for i := range trades {
		t := &trades[i]
		s.TotalCommission += t.Entry.Commission
		s.TotalSlippageCost += t.Entry.Slippage
		s.TotalImpactCost += t.Entry.Impact
		if t.Exit != nil {
			s.TotalCommission += t.Exit.Commission
			s.TotalSlippageCost += t.Exit.Slippage
			s.TotalImpactCost += t.Exit.Impact
		}
		if !t.Closed {
			continue
		}
		closed++
		if t.PnL > 0 {
			s.Wins++
			s.GrossProfit += t.PnL
		} else if t.PnL < 0 {
			s.Losses++
			s.GrossLoss += -t.PnL
		}
	}
	s.TradeCount = closed
	if closed > 0 {
		s.WinRate = float64(s.Wins) / float64(closed)
	}
	if s.GrossLoss > 0 {
		s.ProfitFactor = s.GrossProfit / s.GrossLoss
		s.ProfitFactorValid = true
	}

	s.MaxDrawdown = MaxDrawdown(equity)
	s.Sharpe, s.SharpeValid = SharpeRatio(equityReturns(equity), barsPerYear)
	return s
}

// MaxDrawdown is the largest peak-to-trough equity decline, as a fraction
// of the peak.
func MaxDrawdown(equity []EquityPoint) float64 {
	peak := 0.0
	maxDD := 0.0
	for _, p := range equity {
		if p.Equity > peak {
			peak = p.Equity
		}
		if peak > 0 {
			dd := (peak - p.Equity) / peak
			if dd > maxDD {
				maxDD = dd
			}
		}
	}
	return maxDD
}

// SharpeRatio annualizes mean/std of the per-period return series. A zero
// or undefined standard deviation yields valid=false.
func SharpeRatio(returns []float64, periodsPerYear float64) (float64, bool) {
	mean, std := MeanStd(returns)
	if std == 0 || len(returns) < 2 {
		return 0, false
	}
	sharpe := mean / std
	if periodsPerYear > 0 {
		sharpe *= math.Sqrt(periodsPerYear)
	}
	return sharpe, true
}

// MeanStd returns the mean and population standard deviation.
func MeanStd(xs []float64) (float64, float64) {
	if len(xs) == 0 {
		return 0, 0
	}
	mean := 0.0
	for _, x := range xs {
		mean += x
	}
	mean /= float64(len(xs))
	variance := 0.0
	for _, x := range xs {
		d := x - mean
		variance += d * d
	}
	variance /= float64(len(xs))
	return mean, math.Sqrt(variance)
}

func equityReturns(equity []EquityPoint) []float64 {
	if len(equity) < 2 {
		return nil
	}
	rs := make([]float64, 0, len(equity)-1)
	for i := 1; i < len(equity); i++ {
		prev := equity[i-1].Equity
		if prev > 0 {
			rs = append(rs, (equity[i].Equity-prev)/prev)
		}
	}
	return rs
}
