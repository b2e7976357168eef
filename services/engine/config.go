package engine

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
)

// timeframeStepMs lists the supported bar intervals. Anything else is a
// hard ConfigError, never a silent substitution.
var timeframeStepMs = map[string]uint64{
	"1m":  60_000,
	"5m":  300_000,
	"15m": 900_000,
	"1h":  3_600_000,
	"4h":  14_400_000,
	"1d":  86_400_000,
}

// CommissionTier maps a cumulative traded notional breakpoint to a rate.
type CommissionTier struct {
	MinVolume float64 `json:"min_volume"`
	Rate      float64 `json:"rate"`
}

// SlippageParams controls the base slippage rate and its time-of-day and
// volatility scaling.
type SlippageParams struct {
	BaseRate float64 `json:"base_rate"`

	// Session boundaries as UTC minute-of-day; slippage is elevated within
	// EdgeWindowMin of open/close. Zero EdgeWindowMin disables the effect.
	SessionOpenMin  int     `json:"session_open_min"`
	SessionCloseMin int     `json:"session_close_min"`
	EdgeWindowMin   int     `json:"edge_window_min"`
	OpenMultiplier  float64 `json:"open_multiplier"`
	CloseMultiplier float64 `json:"close_multiplier"`

	// RefVolatility is the realized volatility at which the multiplier is
	// 1.0; the multiplier grows proportionally and is capped at MaxVolMult.
	RefVolatility float64 `json:"ref_volatility"`
	MaxVolMult    float64 `json:"max_vol_mult"`
}

// PartialFillParams bounds an order to a fraction of bar volume.
type PartialFillParams struct {
	Enabled          bool    `json:"enabled"`
	MaxBarVolumeFrac float64 `json:"max_bar_volume_frac"`
}

// SimulationConfig is the validated configuration for one simulation run.
// Construct via Validate; a config that fails Validate must not be used.
type SimulationConfig struct {
	Timeframe      string  `json:"timeframe"`
	InitialCapital float64 `json:"initial_capital"`
	WindowSize     int     `json:"window_size"`

	CommissionTiers []CommissionTier  `json:"commission_tiers"`
	Slippage        SlippageParams    `json:"slippage"`
	ImpactLambda    float64           `json:"impact_lambda"`
	MaxOrderQty     float64           `json:"max_order_qty"`
	PartialFills    PartialFillParams `json:"partial_fills"`

	MaxInvalidBarFrac float64 `json:"max_invalid_bar_frac"`
	RequireVolume     bool    `json:"require_volume"`
}

// DefaultSimulationConfig returns a config with realistic retail-tier
// costs. Callers still run Validate after overriding fields.
func DefaultSimulationConfig() SimulationConfig {
	return SimulationConfig{
		Timeframe:      "1h",
		InitialCapital: 10_000,
		WindowSize:     20,
		CommissionTiers: []CommissionTier{
			{MinVolume: 0, Rate: 0.001},
			{MinVolume: 100_000, Rate: 0.0008},
			{MinVolume: 1_000_000, Rate: 0.0005},
		},
		Slippage: SlippageParams{
			BaseRate:        0.0005,
			SessionOpenMin:  0,
			SessionCloseMin: 1440,
			EdgeWindowMin:   0,
			OpenMultiplier:  1.5,
			CloseMultiplier: 1.3,
			RefVolatility:   0.02,
			MaxVolMult:      2.0,
		},
		ImpactLambda:      0.1,
		MaxOrderQty:       1_000_000,
		MaxInvalidBarFrac: 0.05,
	}
}

// StepMs returns the bar interval in milliseconds.
func (c *SimulationConfig) StepMs() uint64 { return timeframeStepMs[c.Timeframe] }

// BarsPerYear returns the annualization base for the configured timeframe.
func (c *SimulationConfig) BarsPerYear() float64 {
	step := c.StepMs()
	if step == 0 {
		return 0
	}
	return float64(365*24*3_600_000) / float64(step)
}

// Validate rejects malformed configuration with a ConfigError.
func (c *SimulationConfig) Validate() error {
	if _, ok := timeframeStepMs[c.Timeframe]; !ok {
		return &ConfigError{Field: "timeframe", Msg: fmt.Sprintf("unsupported %q", c.Timeframe)}
	}
	if c.InitialCapital <= 0 {
		return &ConfigError{Field: "initial_capital", Msg: "must be positive"}
	}
	if c.WindowSize < 2 {
		return &ConfigError{Field: "window_size", Msg: "must be at least 2"}
	}
	if len(c.CommissionTiers) == 0 {
		return &ConfigError{Field: "commission_tiers", Msg: "at least one tier required"}
	}
	if c.CommissionTiers[0].MinVolume != 0 {
		return &ConfigError{Field: "commission_tiers", Msg: "first tier must start at volume 0"}
	}
	for i, t := range c.CommissionTiers {
		if t.Rate < 0 {
			return &ConfigError{Field: "commission_tiers", Msg: "negative rate"}
		}
		if i > 0 {
			prev := c.CommissionTiers[i-1]
			if t.MinVolume <= prev.MinVolume {
				return &ConfigError{Field: "commission_tiers", Msg: "breakpoints must be strictly increasing"}
			}
			if t.Rate > prev.Rate {
				return &ConfigError{Field: "commission_tiers", Msg: "rates must be non-increasing by tier"}
			}
		}
	}
	s := c.Slippage
	if s.BaseRate < 0 {
		return &ConfigError{Field: "slippage.base_rate", Msg: "negative"}
	}
	if s.OpenMultiplier < 1 || s.CloseMultiplier < 1 {
		return &ConfigError{Field: "slippage", Msg: "session multipliers must be >= 1"}
	}
	if s.MaxVolMult < 1 {
		return &ConfigError{Field: "slippage.max_vol_mult", Msg: "must be >= 1"}
	}
	if s.RefVolatility < 0 {
		return &ConfigError{Field: "slippage.ref_volatility", Msg: "negative"}
	}
	if c.ImpactLambda < 0 {
		return &ConfigError{Field: "impact_lambda", Msg: "negative"}
	}
	if c.MaxOrderQty <= 0 {
		return &ConfigError{Field: "max_order_qty", Msg: "must be positive"}
	}
	if c.PartialFills.Enabled && (c.PartialFills.MaxBarVolumeFrac <= 0 || c.PartialFills.MaxBarVolumeFrac > 1) {
		return &ConfigError{Field: "partial_fills.max_bar_volume_frac", Msg: "must be in (0,1]"}
	}
	if c.MaxInvalidBarFrac < 0 || c.MaxInvalidBarFrac >= 1 {
		return &ConfigError{Field: "max_invalid_bar_frac", Msg: "must be in [0,1)"}
	}
	return nil
}

// Hash returns a stable digest of the config for run manifests.
func (c *SimulationConfig) Hash() string {
	b, _ := json.Marshal(c)
	return fmt.Sprintf("%x", sha256.Sum256(b))
}
