package engine

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Action is a strategy decision for the current bar.
type Action int

const (
	ActionHold Action = iota
	ActionBuy
	ActionSell
)

// Decision is what the external strategy returns per bar.
type Decision struct {
	Action   Action
	Quantity float64
}

// PositionSnapshot is the read-only state handed to the strategy.
// LastReject carries the previous bar's order rejection, if any.
type PositionSnapshot struct {
	Side       PositionSide
	Quantity   float64
	AvgPrice   float64
	Cash       float64
	Equity     float64
	LastReject RejectReason
}

// Strategy is the injected decision function. The window holds the most
// recent bars up to and including the current one; implementations must
// not retain or mutate it.
type Strategy interface {
	Decide(window []Bar, pos PositionSnapshot) Decision
}

// Orchestrator drives one chronological pass over a bar series. A run is
// strictly sequential: each bar's decision depends on the position and
// trade state produced by all prior bars.
type Orchestrator struct {
	cfg SimulationConfig
	log *zap.Logger
}

// NewOrchestrator validates the config up front; an invalid config is a
// ConfigError here, never a per-order failure later.
func NewOrchestrator(cfg SimulationConfig, log *zap.Logger) (*Orchestrator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Orchestrator{cfg: cfg, log: log}, nil
}

// Run backtests the strategy over the bar series and returns the finalized
// result. Cancellation is honored between bars.
func (o *Orchestrator) Run(ctx context.Context, symbol string, bars []Bar, strat Strategy) (*BacktestResult, error) {
	clean, warnings, err := CleanBars(bars, o.cfg.MaxInvalidBarFrac, o.cfg.RequireVolume)
	if err != nil {
		return nil, err
	}
	if gaps := DetectGaps(clean, o.cfg.StepMs()); len(gaps) > 0 {
		warnings = append(warnings, fmt.Sprintf("%d gaps detected in bar series", len(gaps)))
	}

	jobID := uuid.NewString()
	log := o.log.With(zap.String("job_id", jobID), zap.String("symbol", symbol))
	log.Info("backtest start", zap.Int("bars", len(clean)), zap.String("timeframe", o.cfg.Timeframe))

	sim := NewSimulator(&o.cfg)
	pos := Position{Symbol: symbol}
	cash := o.cfg.InitialCapital
	equity := make([]EquityPoint, 0, len(clean))
	var trades []Trade
	openTrade := -1
	rejections := 0
	lastReject := RejectNone

	for i := range clean {
		if i%1024 == 0 && ctx.Err() != nil {
			return nil, ctx.Err()
		}
		bar := clean[i]
		window := clean[maxInt(0, i+1-o.cfg.WindowSize) : i+1]
		mc := buildContext(bar, window)

		snap := PositionSnapshot{
			Side:       pos.Side,
			Quantity:   pos.Quantity,
			AvgPrice:   pos.AvgPrice,
			Cash:       cash,
			Equity:     cash + pos.MarkValue(bar.Close),
			LastReject: lastReject,
		}
		lastReject = RejectNone

		d := strat.Decide(window, snap)
		if d.Action != ActionHold && d.Quantity > 0 {
			side := TradeSideBuy
			if d.Action == ActionSell {
				side = TradeSideSell
			}
			order := Order{Symbol: symbol, Side: side, Quantity: d.Quantity, Price: bar.Close, Kind: OrderMarket}
			fill, reject := sim.Simulate(order, mc)
			if reject != RejectNone {
				rejections++
				lastReject = reject
				log.Debug("order rejected", zap.Uint64("ts", bar.Timestamp), zap.String("reason", string(reject)))
			} else {
				cash = settle(cash, fill)
				outcome := pos.ApplyFill(fill.Side, fill.Price, fill.Quantity)

				if outcome.ClosedQty > 0 && openTrade >= 0 {
					exit := scaleFill(fill, outcome.ClosedQty)
					t := &trades[openTrade]
					if outcome.ClosedQty < t.Quantity {
						// Partial reduce: carve a closed slice off the open
						// trade; the residual stays open at its prorated entry.
						entry := scaleFill(t.Entry, outcome.ClosedQty)
						t.Entry = scaleFill(t.Entry, t.Quantity-outcome.ClosedQty)
						t.Quantity -= outcome.ClosedQty
						trades = append(trades, Trade{
							Symbol:   symbol,
							Side:     t.Side,
							Entry:    entry,
							Exit:     &exit,
							Quantity: outcome.ClosedQty,
							PnL:      outcome.RealizedPnL - entry.Commission - exit.Commission,
							Closed:   true,
						})
					} else {
						t.Exit = &exit
						t.PnL = outcome.RealizedPnL - t.Entry.Commission - exit.Commission
						t.Closed = true
						openTrade = -1
					}
				}
				if outcome.OpenedQty > 0 {
					entry := scaleFill(fill, outcome.OpenedQty)
					trades = append(trades, Trade{
						Symbol:   symbol,
						Side:     pos.Side,
						Entry:    entry,
						Quantity: outcome.OpenedQty,
					})
					openTrade = len(trades) - 1
				}
			}
		}

		equity = append(equity, EquityPoint{
			Timestamp:     bar.Timestamp,
			Cash:          cash,
			PositionValue: pos.MarkValue(bar.Close),
			Equity:        cash + pos.MarkValue(bar.Close),
		})
	}

	result := &BacktestResult{
		JobID:          jobID,
		Symbol:         symbol,
		Timeframe:      o.cfg.Timeframe,
		ConfigHash:     o.cfg.Hash(),
		InitialCapital: o.cfg.InitialCapital,
		Trades:         trades,
		Equity:         equity,
		Summary:        Summarize(trades, equity, o.cfg.InitialCapital, o.cfg.BarsPerYear()),
		Rejections:     rejections,
		Warnings:       warnings,
	}
	log.Info("backtest done",
		zap.Int("trades", result.Summary.TradeCount),
		zap.Float64("total_return", result.Summary.TotalReturn),
		zap.Int("rejections", rejections))
	return result, nil
}

// settle applies the fill's cash flow: buys cost cash, sells raise it,
// commission always comes out.
func settle(cash float64, f Fill) float64 {
	if f.Side == TradeSideBuy {
		cash -= f.Price * f.Quantity
	} else {
		cash += f.Price * f.Quantity
	}
	return cash - f.Commission
}

// scaleFill carves a quantity slice out of a fill, prorating its costs.
// Used when one fill both closes a trade and opens the flipped one.
func scaleFill(f Fill, qty float64) Fill {
	if qty >= f.Quantity || f.Quantity == 0 {
		return f
	}
	frac := qty / f.Quantity
	f.Quantity = qty
	f.Commission *= frac
	f.Slippage *= frac
	f.Impact *= frac
	return f
}

func buildContext(bar Bar, window []Bar) MarketContext {
	avgVol := 0.0
	for _, b := range window {
		avgVol += b.Volume
	}
	avgVol /= float64(len(window))

	var rets []float64
	for i := 1; i < len(window); i++ {
		if window[i-1].Close > 0 {
			rets = append(rets, (window[i].Close-window[i-1].Close)/window[i-1].Close)
		}
	}
	_, vol := MeanStd(rets)

	return MarketContext{Bar: bar, AvgVolume: avgVol, RealizedVol: vol}
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
