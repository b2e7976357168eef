package validate

import (
	"testing"

	"backtest-validation/services/engine"
)

func resultWithSummary(totalReturn, sharpe float64) *engine.BacktestResult {
	return &engine.BacktestResult{
		Summary: engine.Summary{
			TotalReturn: totalReturn,
			Sharpe:      sharpe,
			SharpeValid: true,
		},
	}
}

func TestIdenticalSamplesScoreNearZero(t *testing.T) {
	a, err := NewAnalyzer(DefaultOverfitConfig())
	if err != nil {
		t.Fatal(err)
	}
	in := resultWithSummary(0.3, 1.5)
	out := resultWithSummary(0.3, 1.5)

	rep, err := a.Analyze(in, out, nil, 3)
	if err != nil {
		t.Fatal(err)
	}
	if rep.Composite > 0.1 {
		t.Fatalf("identical IS/OOS composite = %v, want near 0", rep.Composite)
	}
	if rep.Overfit {
		t.Fatal("identical IS/OOS must not be flagged")
	}
}

func TestCompositeMonotonicInDegradation(t *testing.T) {
	a, err := NewAnalyzer(DefaultOverfitConfig())
	if err != nil {
		t.Fatal(err)
	}
	in := resultWithSummary(0.5, 2.0)

	prev := -1.0
	for _, oosReturn := range []float64{0.5, 0.4, 0.3, 0.2, 0.1, 0.0, -0.1} {
		out := resultWithSummary(oosReturn, 2.0)
		rep, err := a.Analyze(in, out, nil, 3)
		if err != nil {
			t.Fatal(err)
		}
		if rep.Composite < prev {
			t.Fatalf("composite dropped from %v to %v as degradation grew", prev, rep.Composite)
		}
		prev = rep.Composite
	}
}

func TestSevereDegradationFlagged(t *testing.T) {
	a, err := NewAnalyzer(DefaultOverfitConfig())
	if err != nil {
		t.Fatal(err)
	}
	in := resultWithSummary(0.8, 3.0)
	out := resultWithSummary(-0.2, -0.5)

	wf := &WalkForwardReport{
		PassRate:      0.2,
		Consistency:   0.1,
		ParamVariance: map[string]float64{"fast": 0.9, "slow": 1.4},
	}
	rep, err := a.Analyze(in, out, wf, 25)
	if err != nil {
		t.Fatal(err)
	}
	if !rep.Overfit {
		t.Fatalf("severe degradation not flagged (composite %v)", rep.Composite)
	}
	if rep.Confidence != 1.0 {
		t.Fatalf("all inputs supplied but confidence = %v", rep.Confidence)
	}
	if len(rep.Warnings) == 0 {
		t.Fatal("parameter count above threshold should warn")
	}
	if len(rep.Recommendations) == 0 {
		t.Fatal("flagged report should carry recommendations")
	}
}

func TestConfidenceScalesWithInputs(t *testing.T) {
	a, err := NewAnalyzer(DefaultOverfitConfig())
	if err != nil {
		t.Fatal(err)
	}
	in := resultWithSummary(0.3, 1.0)
	out := resultWithSummary(0.2, 0.8)

	minimal, err := a.Analyze(in, out, nil, 0)
	if err != nil {
		t.Fatal(err)
	}
	withWF, err := a.Analyze(in, out, &WalkForwardReport{PassRate: 0.8, Consistency: 0.7}, 0)
	if err != nil {
		t.Fatal(err)
	}
	full, err := a.Analyze(in, out, &WalkForwardReport{
		PassRate:      0.8,
		Consistency:   0.7,
		ParamVariance: map[string]float64{"fast": 0.2},
	}, 4)
	if err != nil {
		t.Fatal(err)
	}

	if !(minimal.Confidence < withWF.Confidence && withWF.Confidence < full.Confidence) {
		t.Fatalf("confidence not increasing with inputs: %v, %v, %v",
			minimal.Confidence, withWF.Confidence, full.Confidence)
	}
	if len(minimal.Warnings) == 0 {
		t.Fatal("missing indicators must be surfaced, not silently dropped")
	}
}

func TestCustomWeightsRenormalized(t *testing.T) {
	cfg := DefaultOverfitConfig()
	cfg.Weights = Weights{Degradation: 1} // only degradation counts
	a, err := NewAnalyzer(cfg)
	if err != nil {
		t.Fatal(err)
	}
	in := resultWithSummary(0.5, 2.0)
	out := resultWithSummary(0.0, 2.0)
	rep, err := a.Analyze(in, out, nil, 0)
	if err != nil {
		t.Fatal(err)
	}
	// Full return loss, no Sharpe loss, weight concentrated on
	// degradation: the blended indicator scores 0.5.
	if rep.Composite != 0.5 {
		t.Fatalf("composite = %v, want 0.5", rep.Composite)
	}
}

func TestAnalyzerConfigRejected(t *testing.T) {
	bad := DefaultOverfitConfig()
	bad.FlagThreshold = 0
	if _, err := NewAnalyzer(bad); err == nil {
		t.Fatal("threshold outside (0,1) must be rejected")
	}
	bad = DefaultOverfitConfig()
	bad.Weights = Weights{}
	if _, err := NewAnalyzer(bad); err == nil {
		t.Fatal("all-zero weights must be rejected")
	}
}
