package engine

import (
	"math"
	"testing"
)

func TestMaxDrawdown(t *testing.T) {
	equity := []EquityPoint{
		{Equity: 100}, {Equity: 120}, {Equity: 90}, {Equity: 110}, {Equity: 80},
	}
	got := MaxDrawdown(equity)
	want := (120.0 - 80.0) / 120.0
	if math.Abs(got-want) > 1e-12 {
		t.Fatalf("maxDD = %v, want %v", got, want)
	}
	if MaxDrawdown(nil) != 0 {
		t.Fatal("empty series maxDD should be 0")
	}
}

func TestSharpeSentinel(t *testing.T) {
	_, valid := SharpeRatio([]float64{0.01, 0.01, 0.01}, 252)
	if valid {
		t.Fatal("zero-variance series must report Sharpe as undefined")
	}
	s, valid := SharpeRatio([]float64{0.01, -0.02, 0.03, 0.01}, 252)
	if !valid {
		t.Fatal("Sharpe should be defined")
	}
	if math.IsNaN(s) || math.IsInf(s, 0) {
		t.Fatalf("Sharpe = %v", s)
	}
}

func TestProfitFactorSentinel(t *testing.T) {
	win := Trade{Closed: true, PnL: 50, Quantity: 1, Entry: Fill{Price: 100}}
	s := Summarize([]Trade{win, win}, nil, 10_000, 0)
	if s.ProfitFactorValid {
		t.Fatal("all-winning trades must leave profit factor undefined, not Inf")
	}

	loss := Trade{Closed: true, PnL: -25, Quantity: 1, Entry: Fill{Price: 100}}
	s = Summarize([]Trade{win, loss}, nil, 10_000, 0)
	if !s.ProfitFactorValid || math.Abs(s.ProfitFactor-2) > 1e-12 {
		t.Fatalf("profit factor = %v valid=%v, want 2", s.ProfitFactor, s.ProfitFactorValid)
	}
	if math.Abs(s.WinRate-0.5) > 1e-12 {
		t.Fatalf("win rate = %v, want 0.5", s.WinRate)
	}
}

func TestSummarizeOpenTradesExcluded(t *testing.T) {
	open := Trade{Closed: false, Entry: Fill{Price: 100, Commission: 1}}
	s := Summarize([]Trade{open}, nil, 10_000, 0)
	if s.TradeCount != 0 {
		t.Fatal("open trades must not count toward closed-trade stats")
	}
	if s.TotalCommission != 1 {
		t.Fatal("open trade entry costs still accrue")
	}
}
