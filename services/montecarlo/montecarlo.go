// Package montecarlo resamples a finished backtest's trade returns into a
// distribution of alternate equity paths and derives confidence intervals
// and a robustness score.
package montecarlo

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sort"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"backtest-validation/services/engine"
)

type Mode int

const (
	ModeBootstrap Mode = iota
	ModeBlock
	ModeParametric
)

func (m Mode) String() string {
	switch m {
	case ModeBlock:
		return "block_bootstrap"
	case ModeParametric:
		return "parametric"
	}
	return "bootstrap"
}

// RobustnessWeights combines path stability, positive-outcome probability
// and risk-adjusted return into one score. Defaults are empirical, not
// invariants; they are renormalized to sum to 1.
type RobustnessWeights struct {
	Stability    float64 `json:"stability"`
	ProbPositive float64 `json:"prob_positive"`
	Sharpe       float64 `json:"sharpe"`
}

func DefaultRobustnessWeights() RobustnessWeights {
	return RobustnessWeights{Stability: 0.3, ProbPositive: 0.4, Sharpe: 0.3}
}

type Config struct {
	Mode        Mode              `json:"mode"`
	NumPaths    int               `json:"num_paths"`
	BlockLength int               `json:"block_length"`
	Confidence  float64           `json:"confidence"` // e.g. 0.95
	Workers     int               `json:"workers"`
	Seed        int64             `json:"seed"`
	Weights     RobustnessWeights `json:"weights"`
}

func DefaultConfig(seed int64) Config {
	return Config{
		Mode:        ModeBootstrap,
		NumPaths:    1000,
		BlockLength: 5,
		Confidence:  0.95,
		Workers:     4,
		Seed:        seed,
		Weights:     DefaultRobustnessWeights(),
	}
}

func (c *Config) validate() error {
	if c.NumPaths <= 0 {
		return &engine.ConfigError{Field: "num_paths", Msg: "must be positive"}
	}
	if c.Confidence <= 0 || c.Confidence >= 1 {
		return &engine.ConfigError{Field: "confidence", Msg: "must be in (0,1)"}
	}
	if c.Mode == ModeBlock && c.BlockLength <= 0 {
		return &engine.ConfigError{Field: "block_length", Msg: "must be positive"}
	}
	if c.Workers <= 0 {
		return &engine.ConfigError{Field: "workers", Msg: "must be positive"}
	}
	w := c.Weights
	if w.Stability < 0 || w.ProbPositive < 0 || w.Sharpe < 0 || w.Stability+w.ProbPositive+w.Sharpe == 0 {
		return &engine.ConfigError{Field: "weights", Msg: "must be non-negative and not all zero"}
	}
	return nil
}

// PathStats summarizes one synthetic equity path.
type PathStats struct {
	Index       int     `json:"index"`
	FinalReturn float64 `json:"final_return"`
	Sharpe      float64 `json:"sharpe"`
	MaxDrawdown float64 `json:"max_drawdown"`
	Discarded   bool    `json:"discarded,omitempty"`
}

// Report is the aggregate over all surviving paths. Produced once, never
// mutated.
type Report struct {
	ReportID     string      `json:"report_id"`
	SourceJobID  string      `json:"source_job_id"`
	Mode         string      `json:"mode"`
	Seed         int64       `json:"seed"`
	NumPaths     int         `json:"num_paths"`
	Discarded    int         `json:"discarded"`
	MeanReturn   float64     `json:"mean_return"`
	MedianReturn float64     `json:"median_return"`
	StdReturn    float64     `json:"std_return"`
	CILower      float64     `json:"ci_lower"`
	CIUpper      float64     `json:"ci_upper"`
	Confidence   float64     `json:"confidence"`
	ProbPositive float64     `json:"prob_positive"`
	Robustness   float64     `json:"robustness"`
	Paths        []PathStats `json:"paths"`
	Warnings     []string    `json:"warnings,omitempty"`
}

// Error is the fatal case: more than half the paths degenerated.
type Error struct {
	Discarded int
	Total     int
}

func (e *Error) Error() string {
	return fmt.Sprintf("monte carlo: %d of %d paths discarded", e.Discarded, e.Total)
}

type Validator struct {
	cfg Config
	log *zap.Logger
}

func New(cfg Config, log *zap.Logger) (*Validator, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Validator{cfg: cfg, log: log}, nil
}

// Simulate resamples the result's trade returns into NumPaths synthetic
// equity paths. Path i derives its generator from Seed+i, so the output is
// bit-identical for a fixed seed regardless of worker count or scheduling:
// all paths are computed into a fixed slot, then reduced in index order.
func (v *Validator) Simulate(ctx context.Context, result *engine.BacktestResult) (*Report, error) {
	returns := result.TradeReturns()
	if len(returns) == 0 {
		return nil, &engine.DataQualityError{Reason: "no closed trades to resample"}
	}

	mean, std := engine.MeanStd(returns)
	paths := make([]PathStats, v.cfg.NumPaths)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(v.cfg.Workers)
	for i := 0; i < v.cfg.NumPaths; i++ {
		if gctx.Err() != nil {
			break // cooperative abort between paths
		}
		i := i
		g.Go(func() error {
			rng := rand.New(rand.NewSource(v.cfg.Seed + int64(i)))
			sample := v.resample(rng, returns, mean, std)
			paths[i] = summarizePath(i, sample)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	return v.reduce(result.JobID, paths)
}

// resample draws one synthetic return sequence, same length as the source.
func (v *Validator) resample(rng *rand.Rand, returns []float64, mean, std float64) []float64 {
	n := len(returns)
	out := make([]float64, 0, n)
	switch v.cfg.Mode {
	case ModeBlock:
		L := v.cfg.BlockLength
		if L > n {
			L = n
		}
		for len(out) < n {
			start := rng.Intn(n - L + 1)
			take := L
			if len(out)+take > n {
				take = n - len(out)
			}
			out = append(out, returns[start:start+take]...)
		}
	case ModeParametric:
		for i := 0; i < n; i++ {
			out = append(out, mean+std*boxMuller(rng))
		}
	default: // bootstrap
		for i := 0; i < n; i++ {
			out = append(out, returns[rng.Intn(n)])
		}
	}
	return out
}

// boxMuller draws one standard normal variate.
func boxMuller(rng *rand.Rand) float64 {
	u1 := rng.Float64()
	for u1 == 0 {
		u1 = rng.Float64()
	}
	u2 := rng.Float64()
	return math.Sqrt(-2*math.Log(u1)) * math.Cos(2*math.Pi*u2)
}

func summarizePath(index int, sample []float64) PathStats {
	eq := 1.0
	peak := 1.0
	maxDD := 0.0
	for _, r := range sample {
		eq *= 1 + r
		if math.IsNaN(eq) || math.IsInf(eq, 0) || eq <= 0 {
			return PathStats{Index: index, Discarded: true}
		}
		if eq > peak {
			peak = eq
		}
		if dd := (peak - eq) / peak; dd > maxDD {
			maxDD = dd
		}
	}
	sharpe, _ := engine.SharpeRatio(sample, 0)
	final := eq - 1
	if math.IsNaN(final) || math.IsInf(final, 0) {
		return PathStats{Index: index, Discarded: true}
	}
	return PathStats{Index: index, FinalReturn: final, Sharpe: sharpe, MaxDrawdown: maxDD}
}

// reduce aggregates surviving paths. Order-independent by construction:
// paths are already slotted by index, statistics come from sorted copies.
func (v *Validator) reduce(sourceJob string, paths []PathStats) (*Report, error) {
	finals := make([]float64, 0, len(paths))
	sharpes := make([]float64, 0, len(paths))
	discarded := 0
	positive := 0
	for _, p := range paths {
		if p.Discarded {
			discarded++
			continue
		}
		finals = append(finals, p.FinalReturn)
		sharpes = append(sharpes, p.Sharpe)
		if p.FinalReturn > 0 {
			positive++
		}
	}
	if discarded*2 > len(paths) {
		return nil, &Error{Discarded: discarded, Total: len(paths)}
	}

	sort.Float64s(finals)
	mean, std := engine.MeanStd(finals)
	meanSharpe, _ := engine.MeanStd(sharpes)
	alpha := (1 - v.cfg.Confidence) / 2
	probPositive := float64(positive) / float64(len(finals))

	rep := &Report{
		ReportID:     uuid.NewString(),
		SourceJobID:  sourceJob,
		Mode:         v.cfg.Mode.String(),
		Seed:         v.cfg.Seed,
		NumPaths:     len(paths),
		Discarded:    discarded,
		MeanReturn:   mean,
		MedianReturn: percentile(finals, 0.5),
		StdReturn:    std,
		CILower:      percentile(finals, alpha),
		CIUpper:      percentile(finals, 1-alpha),
		Confidence:   v.cfg.Confidence,
		ProbPositive: probPositive,
		Robustness:   v.robustness(mean, std, probPositive, meanSharpe),
		Paths:        paths,
	}
	if discarded > 0 {
		rep.Warnings = append(rep.Warnings, fmt.Sprintf("%d of %d paths discarded (numeric degeneration)", discarded, len(paths)))
	}
	v.log.Info("monte carlo done",
		zap.String("report_id", rep.ReportID),
		zap.String("mode", rep.Mode),
		zap.Int("paths", rep.NumPaths),
		zap.Int("discarded", discarded),
		zap.Float64("robustness", rep.Robustness))
	return rep, nil
}

func (v *Validator) robustness(mean, std, probPositive, meanSharpe float64) float64 {
	w := v.cfg.Weights
	total := w.Stability + w.ProbPositive + w.Sharpe

	stability := 0.0
	if mean != 0 {
		cv := std / math.Abs(mean)
		stability = clamp01(1 - cv)
	}
	normSharpe := clamp01(meanSharpe / 2)

	return (w.Stability*stability + w.ProbPositive*probPositive + w.Sharpe*normSharpe) / total
}

// percentile interpolates linearly on an already-sorted slice.
func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	if len(sorted) == 1 {
		return sorted[0]
	}
	pos := p * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	frac := pos - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
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
