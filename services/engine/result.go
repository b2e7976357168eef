package engine

// EquityPoint marks the account state after one bar.
type EquityPoint struct {
	Timestamp     uint64  `json:"timestamp"`
	Cash          float64 `json:"cash"`
	PositionValue float64 `json:"position_value"`
	Equity        float64 `json:"equity"`
}

// BacktestResult is the immutable output of one orchestrator run. It is a
// plain serializable record: the reporting layer renders it without
// re-running anything.
type BacktestResult struct {
	JobID          string        `json:"job_id"`
	Symbol         string        `json:"symbol"`
	Timeframe      string        `json:"timeframe"`
	ConfigHash     string        `json:"config_hash"`
	InitialCapital float64       `json:"initial_capital"`
	Trades         []Trade       `json:"trades"`
	Equity         []EquityPoint `json:"equity"`
	Summary        Summary       `json:"summary"`
	Rejections     int           `json:"rejections"`
	Warnings       []string      `json:"warnings,omitempty"`
}

// TradeReturns extracts the closed-trade return sequence, the input to
// Monte Carlo resampling.
func (r *BacktestResult) TradeReturns() []float64 {
	out := make([]float64, 0, len(r.Trades))
	for i := range r.Trades {
		if r.Trades[i].Closed {
			out = append(out, r.Trades[i].Return())
		}
	}
	return out
}
