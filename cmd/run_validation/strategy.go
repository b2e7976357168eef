package main

import (
	"context"

	"backtest-validation/services/engine"
	"backtest-validation/services/validate"
)

// SMA-crossover demo strategy: long when the fast average crosses above
// the slow one, flat on the reverse cross.
type smaCross struct {
	fast int
	slow int
	qty  float64
}

func newSMACross(p validate.Params) engine.Strategy {
	return &smaCross{
		fast: int(p["fast"]),
		slow: int(p["slow"]),
		qty:  p["qty"],
	}
}

func (s *smaCross) Decide(window []engine.Bar, pos engine.PositionSnapshot) engine.Decision {
	if len(window) < s.slow+1 {
		return engine.Decision{Action: engine.ActionHold}
	}
	fastNow := sma(window, s.fast, 0)
	slowNow := sma(window, s.slow, 0)
	fastPrev := sma(window, s.fast, 1)
	slowPrev := sma(window, s.slow, 1)

	crossUp := fastPrev <= slowPrev && fastNow > slowNow
	crossDown := fastPrev >= slowPrev && fastNow < slowNow

	if pos.Side == engine.SideFlat && crossUp {
		return engine.Decision{Action: engine.ActionBuy, Quantity: s.qty}
	}
	if pos.Side == engine.SideLong && crossDown {
		return engine.Decision{Action: engine.ActionSell, Quantity: pos.Quantity}
	}
	return engine.Decision{Action: engine.ActionHold}
}

// sma averages the last n closes, offset bars back from the window end.
func sma(window []engine.Bar, n, offset int) float64 {
	end := len(window) - offset
	start := end - n
	if start < 0 {
		start = 0
	}
	if end <= start {
		return 0
	}
	sum := 0.0
	for _, b := range window[start:end] {
		sum += b.Close
	}
	return sum / float64(end-start)
}

// gridOptimizer fits the SMA periods by exhaustive search on the train
// window, honoring the fold deadline between candidates.
type gridOptimizer struct {
	simCfg engine.SimulationConfig
	qty    float64
}

func (o *gridOptimizer) Optimize(ctx context.Context, train []engine.Bar, space validate.ParamSpace) (validate.Params, error) {
	fastBounds := space["fast"]
	slowBounds := space["slow"]

	best := validate.Params{"fast": fastBounds[0], "slow": slowBounds[0], "qty": o.qty}
	bestReturn := 0.0
	seen := false

	for fast := int(fastBounds[0]); fast <= int(fastBounds[1]); fast += 2 {
		for slow := int(slowBounds[0]); slow <= int(slowBounds[1]); slow += 5 {
			if slow <= fast {
				continue
			}
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			params := validate.Params{"fast": float64(fast), "slow": float64(slow), "qty": o.qty}
			orch, err := engine.NewOrchestrator(o.simCfg, nil)
			if err != nil {
				return nil, err
			}
			res, err := orch.Run(ctx, "train", train, newSMACross(params))
			if err != nil {
				return nil, err
			}
			if !seen || res.Summary.TotalReturn > bestReturn {
				best = params
				bestReturn = res.Summary.TotalReturn
				seen = true
			}
		}
	}
	return best, nil
}
