package montecarlo

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"reflect"
	"testing"

	"backtest-validation/services/engine"
)

// resultWith builds a finished backtest carrying the given trade returns
// on unit notional.
func resultWith(returns []float64) *engine.BacktestResult {
	trades := make([]engine.Trade, len(returns))
	for i, r := range returns {
		trades[i] = engine.Trade{
			Closed:   true,
			Quantity: 1,
			Entry:    engine.Fill{Price: 100},
			PnL:      r * 100,
		}
	}
	return &engine.BacktestResult{JobID: "job-test", Trades: trades}
}

var mixedReturns = []float64{0.05, -0.02, 0.03, -0.01, 0.04, 0.01, -0.03, 0.06, 0.02, -0.02}

func TestFixedSeedBitIdentical(t *testing.T) {
	for _, mode := range []Mode{ModeBootstrap, ModeBlock, ModeParametric} {
		cfg := DefaultConfig(1234)
		cfg.Mode = mode
		cfg.NumPaths = 200
		v, err := New(cfg, nil)
		if err != nil {
			t.Fatal(err)
		}
		a, err := v.Simulate(context.Background(), resultWith(mixedReturns))
		if err != nil {
			t.Fatal(err)
		}
		b, err := v.Simulate(context.Background(), resultWith(mixedReturns))
		if err != nil {
			t.Fatal(err)
		}
		if a.MeanReturn != b.MeanReturn || a.StdReturn != b.StdReturn ||
			a.CILower != b.CILower || a.CIUpper != b.CIUpper ||
			a.MedianReturn != b.MedianReturn || a.Robustness != b.Robustness {
			t.Fatalf("%v: statistics not bit-identical across runs", mode)
		}
		if !reflect.DeepEqual(a.Paths, b.Paths) {
			t.Fatalf("%v: per-path stats differ across runs", mode)
		}
	}
}

func TestWorkerCountDoesNotAffectStatistics(t *testing.T) {
	run := func(workers int) *Report {
		cfg := DefaultConfig(99)
		cfg.NumPaths = 300
		cfg.Workers = workers
		v, err := New(cfg, nil)
		if err != nil {
			t.Fatal(err)
		}
		rep, err := v.Simulate(context.Background(), resultWith(mixedReturns))
		if err != nil {
			t.Fatal(err)
		}
		return rep
	}
	one := run(1)
	many := run(8)
	if one.MeanReturn != many.MeanReturn || one.CILower != many.CILower ||
		one.CIUpper != many.CIUpper || one.Robustness != many.Robustness {
		t.Fatal("worker scheduling leaked into reported statistics")
	}
	if !reflect.DeepEqual(one.Paths, many.Paths) {
		t.Fatal("per-path results depend on worker count")
	}
}

func TestAllProfitableTrades(t *testing.T) {
	// Identical returns: every resampled path is the same, so the
	// confidence interval degenerates onto the mean.
	identical := resultWith([]float64{0.05, 0.05, 0.05, 0.05, 0.05})
	cfg := DefaultConfig(7)
	cfg.NumPaths = 500
	v, err := New(cfg, nil)
	if err != nil {
		t.Fatal(err)
	}
	rep, err := v.Simulate(context.Background(), identical)
	if err != nil {
		t.Fatal(err)
	}
	if rep.ProbPositive != 1 {
		t.Fatalf("prob positive = %v, want 1", rep.ProbPositive)
	}
	if math.Abs(rep.CILower-rep.CIUpper) > 1e-12 || math.Abs(rep.CILower-rep.MeanReturn) > 1e-12 {
		t.Fatalf("CI should degenerate: lower=%v upper=%v mean=%v", rep.CILower, rep.CIUpper, rep.MeanReturn)
	}

	// Varied but uniformly positive returns: robustness approaches 1.
	varied := resultWith([]float64{0.04, 0.05, 0.06, 0.045, 0.055, 0.05, 0.042, 0.058})
	rep, err = v.Simulate(context.Background(), varied)
	if err != nil {
		t.Fatal(err)
	}
	if rep.ProbPositive != 1 {
		t.Fatalf("prob positive = %v, want 1", rep.ProbPositive)
	}
	if rep.Robustness < 0.9 {
		t.Fatalf("robustness = %v, want near 1", rep.Robustness)
	}
}

func TestBlockResampleKeepsBlocksContiguous(t *testing.T) {
	// Distinct source values let every output element be traced back to
	// its source index; each block must be a contiguous source slice.
	n := 37
	returns := make([]float64, n)
	index := make(map[float64]int, n)
	for i := range returns {
		returns[i] = 0.0001 * float64(i+1)
		index[returns[i]] = i
	}

	cfg := DefaultConfig(21)
	cfg.Mode = ModeBlock
	cfg.BlockLength = 5
	v, err := New(cfg, nil)
	if err != nil {
		t.Fatal(err)
	}

	for seed := int64(0); seed < 20; seed++ {
		rng := rand.New(rand.NewSource(seed))
		out := v.resample(rng, returns, 0, 0)
		if len(out) != n {
			t.Fatalf("seed %d: resample length %d, want %d", seed, len(out), n)
		}
		for pos := 0; pos < n; pos += cfg.BlockLength {
			end := pos + cfg.BlockLength
			if end > n {
				end = n
			}
			start, ok := index[out[pos]]
			if !ok {
				t.Fatalf("seed %d: value %v at %d not from the source", seed, out[pos], pos)
			}
			for j := 1; pos+j < end; j++ {
				if out[pos+j] != returns[start+j] {
					t.Fatalf("seed %d: block at %d breaks at offset %d: got %v, want %v",
						seed, pos, j, out[pos+j], returns[start+j])
				}
			}
		}
	}
}

func TestDiscardEscalation(t *testing.T) {
	// A -150% trade return sends every resampled equity path non-positive,
	// so every path is discarded and the validator must fail fatally.
	cfg := DefaultConfig(1)
	cfg.NumPaths = 50
	v, err := New(cfg, nil)
	if err != nil {
		t.Fatal(err)
	}
	_, err = v.Simulate(context.Background(), resultWith([]float64{-1.5}))
	var mcErr *Error
	if !errors.As(err, &mcErr) {
		t.Fatalf("expected montecarlo.Error, got %v", err)
	}
}

func TestNoTradesRejected(t *testing.T) {
	v, err := New(DefaultConfig(1), nil)
	if err != nil {
		t.Fatal(err)
	}
	_, err = v.Simulate(context.Background(), &engine.BacktestResult{})
	var dq *engine.DataQualityError
	if !errors.As(err, &dq) {
		t.Fatalf("expected DataQualityError, got %v", err)
	}
}

func TestConfigRejected(t *testing.T) {
	bad := DefaultConfig(1)
	bad.Confidence = 1.5
	if _, err := New(bad, nil); err == nil {
		t.Fatal("confidence outside (0,1) must be rejected")
	}
	bad = DefaultConfig(1)
	bad.NumPaths = 0
	if _, err := New(bad, nil); err == nil {
		t.Fatal("zero paths must be rejected")
	}
	bad = DefaultConfig(1)
	bad.Mode = ModeBlock
	bad.BlockLength = 0
	if _, err := New(bad, nil); err == nil {
		t.Fatal("block mode without block length must be rejected")
	}
}

func TestCancellationBetweenPaths(t *testing.T) {
	cfg := DefaultConfig(5)
	cfg.NumPaths = 10_000
	cfg.Workers = 1
	v, err := New(cfg, nil)
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := v.Simulate(ctx, resultWith(mixedReturns)); err == nil {
		t.Fatal("cancelled context must abort the simulation")
	}
}
