package engine

import (
	"math"
	"testing"
)

func flatContext(price, volume float64) MarketContext {
	return MarketContext{
		Bar: Bar{Timestamp: 1_700_000_000_000, Open: price, High: price, Low: price, Close: price, Volume: volume},
	}
}

func TestSimulateRejections(t *testing.T) {
	cfg := testConfig()
	cfg.MaxOrderQty = 100
	sim := NewSimulator(&cfg)
	mc := flatContext(100, 1000)

	cases := []struct {
		name  string
		order Order
		want  RejectReason
	}{
		{"zero price", Order{Side: TradeSideBuy, Quantity: 1, Price: 0}, RejectBadPrice},
		{"negative qty", Order{Side: TradeSideBuy, Quantity: -1, Price: 100}, RejectBadQuantity},
		{"NaN qty", Order{Side: TradeSideBuy, Quantity: math.NaN(), Price: 100}, RejectBadQuantity},
		{"NaN price", Order{Side: TradeSideBuy, Quantity: 1, Price: math.NaN()}, RejectBadPrice},
		{"above liquidity cap", Order{Side: TradeSideBuy, Quantity: 101, Price: 100}, RejectNoLiquidity},
	}
	for _, tc := range cases {
		_, reject := sim.Simulate(tc.order, mc)
		if reject != tc.want {
			t.Fatalf("%s: reject = %q, want %q", tc.name, reject, tc.want)
		}
	}
	if sim.CumulativeVolume() != 0 {
		t.Fatal("rejected orders must not advance the tier counter")
	}
}

func TestSimulateCostsAreAdverse(t *testing.T) {
	cfg := testConfig()
	cfg.ImpactLambda = 0.1
	cfg.Slippage.BaseRate = 0.001
	cfg.Slippage.RefVolatility = 0
	sim := NewSimulator(&cfg)
	mc := flatContext(100, 1000)

	buy, reject := sim.Simulate(Order{Side: TradeSideBuy, Quantity: 10, Price: 100}, mc)
	if reject != RejectNone {
		t.Fatalf("buy rejected: %q", reject)
	}
	if buy.Price <= 100 {
		t.Fatalf("buy fill %v should be above requested price", buy.Price)
	}

	sell, reject := sim.Simulate(Order{Side: TradeSideSell, Quantity: 10, Price: 100}, mc)
	if reject != RejectNone {
		t.Fatalf("sell rejected: %q", reject)
	}
	if sell.Price >= 100 {
		t.Fatalf("sell fill %v should be below requested price", sell.Price)
	}
}

func TestSimulateTierProgression(t *testing.T) {
	cfg := testConfig()
	cfg.ImpactLambda = 0
	cfg.Slippage.BaseRate = 0
	cfg.CommissionTiers = []CommissionTier{
		{MinVolume: 0, Rate: 0.0010},
		{MinVolume: 1500, Rate: 0.0005},
	}
	sim := NewSimulator(&cfg)
	mc := flatContext(100, 1000)

	first, _ := sim.Simulate(Order{Side: TradeSideBuy, Quantity: 10, Price: 100}, mc)
	if math.Abs(first.Commission-1.0) > 1e-9 {
		t.Fatalf("first commission = %v, want 1.0 (tier 0)", first.Commission)
	}
	// Cumulative notional is now 1000; next order should still be tier 0
	// at lookup time, then cross the breakpoint.
	second, _ := sim.Simulate(Order{Side: TradeSideBuy, Quantity: 10, Price: 100}, mc)
	if math.Abs(second.Commission-1.0) > 1e-9 {
		t.Fatalf("second commission = %v, want 1.0", second.Commission)
	}
	third, _ := sim.Simulate(Order{Side: TradeSideBuy, Quantity: 10, Price: 100}, mc)
	if math.Abs(third.Commission-0.5) > 1e-9 {
		t.Fatalf("third commission = %v, want 0.5 (tier 1)", third.Commission)
	}
}

func TestSimulatePartialFill(t *testing.T) {
	cfg := testConfig()
	cfg.PartialFills = PartialFillParams{Enabled: true, MaxBarVolumeFrac: 0.1}
	sim := NewSimulator(&cfg)
	mc := flatContext(100, 50) // 5 units available

	fill, reject := sim.Simulate(Order{Side: TradeSideBuy, Quantity: 20, Price: 100}, mc)
	if reject != RejectNone {
		t.Fatalf("rejected: %q", reject)
	}
	if !fill.Partial || math.Abs(fill.Quantity-5) > 1e-12 {
		t.Fatalf("fill qty = %v partial=%v, want 5 partial", fill.Quantity, fill.Partial)
	}

	_, reject = sim.Simulate(Order{Side: TradeSideBuy, Quantity: 1, Price: 100}, flatContext(100, 0))
	if reject != RejectNoBarVolume {
		t.Fatalf("reject = %q, want %q", reject, RejectNoBarVolume)
	}
}
