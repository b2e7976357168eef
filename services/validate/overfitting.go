package validate

import (
	"fmt"
	"math"

	"backtest-validation/services/engine"
)

// Overfitting analyzer: compares in-sample and out-of-sample results into
// a composite [0,1] score. Indicators that cannot be computed from the
// supplied inputs lower the report's confidence rather than silently
// scoring as "no overfitting".

// Weights are empirical defaults, renormalized over supplied indicators.
type Weights struct {
	Degradation      float64 `json:"degradation"`
	ParamInstability float64 `json:"param_instability"`
	Complexity       float64 `json:"complexity"`
	WFConsistency    float64 `json:"wf_consistency"`
	SharpeDrop       float64 `json:"sharpe_drop"`
}

func DefaultWeights() Weights {
	return Weights{
		Degradation:      0.30,
		ParamInstability: 0.15,
		Complexity:       0.15,
		WFConsistency:    0.25,
		SharpeDrop:       0.15,
	}
}

type OverfitConfig struct {
	Weights             Weights `json:"weights"`
	FlagThreshold       float64 `json:"flag_threshold"`
	ComplexityThreshold int     `json:"complexity_threshold"`
}

func DefaultOverfitConfig() OverfitConfig {
	return OverfitConfig{
		Weights:             DefaultWeights(),
		FlagThreshold:       0.5,
		ComplexityThreshold: 15,
	}
}

func (c *OverfitConfig) validate() error {
	w := c.Weights
	for _, v := range []float64{w.Degradation, w.ParamInstability, w.Complexity, w.WFConsistency, w.SharpeDrop} {
		if v < 0 {
			return &engine.ConfigError{Field: "overfit.weights", Msg: "negative weight"}
		}
	}
	if w.Degradation+w.ParamInstability+w.Complexity+w.WFConsistency+w.SharpeDrop == 0 {
		return &engine.ConfigError{Field: "overfit.weights", Msg: "all weights zero"}
	}
	if c.FlagThreshold <= 0 || c.FlagThreshold >= 1 {
		return &engine.ConfigError{Field: "overfit.flag_threshold", Msg: "must be in (0,1)"}
	}
	if c.ComplexityThreshold <= 0 {
		return &engine.ConfigError{Field: "overfit.complexity_threshold", Msg: "must be positive"}
	}
	return nil
}

// Indicator is one scored overfitting signal.
type Indicator struct {
	Name     string  `json:"name"`
	Score    float64 `json:"score"`
	Weight   float64 `json:"weight"`
	Supplied bool    `json:"supplied"`
}

type OverfitReport struct {
	Indicators      []Indicator `json:"indicators"`
	Composite       float64     `json:"composite"`
	Overfit         bool        `json:"overfit"`
	Confidence      float64     `json:"confidence"`
	Warnings        []string    `json:"warnings,omitempty"`
	Recommendations []string    `json:"recommendations,omitempty"`
}

type Analyzer struct {
	cfg OverfitConfig
}

func NewAnalyzer(cfg OverfitConfig) (*Analyzer, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &Analyzer{cfg: cfg}, nil
}

// Analyze scores overfitting from in-sample vs out-of-sample results plus
// optional walk-forward output and parameter count (0 = unknown).
func (a *Analyzer) Analyze(inSample, outOfSample *engine.BacktestResult, wf *WalkForwardReport, paramCount int) (*OverfitReport, error) {
	if inSample == nil || outOfSample == nil {
		return nil, &engine.ConfigError{Field: "analyze", Msg: "in-sample and out-of-sample results required"}
	}
	w := a.cfg.Weights
	rep := &OverfitReport{}

	degradation := Indicator{Name: "performance_degradation", Weight: w.Degradation, Supplied: true}
	degradation.Score = relativeDrop(inSample.Summary.TotalReturn, outOfSample.Summary.TotalReturn)
	if inSample.Summary.SharpeValid && outOfSample.Summary.SharpeValid {
		degradation.Score = 0.5*degradation.Score +
			0.5*relativeDrop(inSample.Summary.Sharpe, outOfSample.Summary.Sharpe)
	}
	rep.Indicators = append(rep.Indicators, degradation)

	instability := Indicator{Name: "parameter_instability", Weight: w.ParamInstability}
	if wf != nil && len(wf.ParamVariance) > 0 {
		instability.Supplied = true
		sum := 0.0
		for _, cv := range wf.ParamVariance {
			sum += clamp01(cv)
		}
		instability.Score = sum / float64(len(wf.ParamVariance))
	}
	rep.Indicators = append(rep.Indicators, instability)

	complexity := Indicator{Name: "complexity_penalty", Weight: w.Complexity}
	if paramCount > 0 {
		complexity.Supplied = true
		complexity.Score = clamp01(float64(paramCount) / float64(2*a.cfg.ComplexityThreshold))
		if paramCount > a.cfg.ComplexityThreshold {
			rep.Warnings = append(rep.Warnings, fmt.Sprintf("parameter count %d above threshold %d", paramCount, a.cfg.ComplexityThreshold))
		}
	}
	rep.Indicators = append(rep.Indicators, complexity)

	wfConsistency := Indicator{Name: "walk_forward_consistency", Weight: w.WFConsistency}
	if wf != nil {
		wfConsistency.Supplied = true
		wfConsistency.Score = clamp01(1 - 0.5*(wf.PassRate+wf.Consistency))
	}
	rep.Indicators = append(rep.Indicators, wfConsistency)

	sharpeDrop := Indicator{Name: "sharpe_drop", Weight: w.SharpeDrop}
	if inSample.Summary.SharpeValid && outOfSample.Summary.SharpeValid {
		sharpeDrop.Supplied = true
		sharpeDrop.Score = relativeDrop(inSample.Summary.Sharpe, outOfSample.Summary.Sharpe)
	}
	rep.Indicators = append(rep.Indicators, sharpeDrop)

	// Composite over supplied indicators only, weights renormalized.
	weightSum := 0.0
	score := 0.0
	supplied := 0
	for _, ind := range rep.Indicators {
		if !ind.Supplied {
			continue
		}
		weightSum += ind.Weight
		score += ind.Weight * ind.Score
		supplied++
	}
	if weightSum > 0 {
		rep.Composite = score / weightSum
	}
	rep.Overfit = rep.Composite > a.cfg.FlagThreshold

	// Confidence scales with how much optional input was supplied.
	rep.Confidence = 0.5
	if wf != nil {
		rep.Confidence += 0.25
	}
	if wf != nil && len(wf.ParamVariance) > 0 {
		rep.Confidence += 0.25
	}
	if supplied < len(rep.Indicators) {
		rep.Warnings = append(rep.Warnings, fmt.Sprintf("only %d of %d indicators computable from supplied inputs", supplied, len(rep.Indicators)))
	}

	if rep.Overfit {
		rep.Recommendations = append(rep.Recommendations,
			"reduce parameter count or widen the out-of-sample window",
			"re-validate with walk-forward analysis before deployment")
	}
	return rep, nil
}

func clamp01(x float64) float64 {
	if x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}

// relativeDrop measures out-of-sample deterioration relative to in-sample,
// clamped to [0,1]. An OOS result at or above IS scores 0.
func relativeDrop(inSample, outOfSample float64) float64 {
	if inSample <= 0 {
		// No in-sample edge to lose; degradation is whatever OOS lost
		// below zero, on an absolute scale.
		if outOfSample < inSample {
			return clamp01(inSample - outOfSample)
		}
		return 0
	}
	return clamp01((inSample - outOfSample) / math.Abs(inSample))
}
