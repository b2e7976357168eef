// Package validate holds the statistical validation layer: walk-forward
// analysis over rolling train/test folds and overfitting scoring.
package validate

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"backtest-validation/services/engine"
)

// Optimizer is the external parameter-fitting collaborator. It must honor
// ctx; a fold whose optimizer overruns its deadline is excluded, not fatal.
type Optimizer interface {
	Optimize(ctx context.Context, train []engine.Bar, space ParamSpace) (Params, error)
}

// StrategyFactory builds a strategy from fixed, already-optimized params.
type StrategyFactory func(Params) engine.Strategy

// FoldConfig shapes the rolling train/test split.
type FoldConfig struct {
	TrainBars        int           `json:"train_bars"`
	TestBars         int           `json:"test_bars"`
	StepBars         int           `json:"step_bars"`
	MinFolds         int           `json:"min_folds"`
	OptimizerTimeout time.Duration `json:"optimizer_timeout"`
	Workers          int           `json:"workers"`
}

func (c *FoldConfig) validate() error {
	if c.TrainBars <= 0 || c.TestBars <= 0 || c.StepBars <= 0 {
		return &engine.ConfigError{Field: "fold_config", Msg: "train/test/step bars must be positive"}
	}
	if c.MinFolds <= 0 {
		return &engine.ConfigError{Field: "min_folds", Msg: "must be positive"}
	}
	if c.OptimizerTimeout <= 0 {
		return &engine.ConfigError{Field: "optimizer_timeout", Msg: "must be positive"}
	}
	if c.Workers <= 0 {
		return &engine.ConfigError{Field: "workers", Msg: "must be positive"}
	}
	return nil
}

type FoldStatus int

const (
	FoldOK FoldStatus = iota
	FoldFailed
)

// FoldResult is one train/test outcome. Failed folds carry a reason and no
// backtest result.
type FoldResult struct {
	Index      int                    `json:"index"`
	Status     FoldStatus             `json:"status"`
	Reason     string                 `json:"reason,omitempty"`
	TrainStart int                    `json:"train_start"`
	TrainEnd   int                    `json:"train_end"`
	TestStart  int                    `json:"test_start"`
	TestEnd    int                    `json:"test_end"`
	Params     Params                 `json:"params,omitempty"`
	Result     *engine.BacktestResult `json:"result,omitempty"`
	Return     float64                `json:"return"`
}

// WalkForwardReport aggregates per-fold outcomes.
type WalkForwardReport struct {
	ReportID      string             `json:"report_id"`
	Symbol        string             `json:"symbol"`
	Folds         []FoldResult       `json:"folds"`
	FailedFolds   int                `json:"failed_folds"`
	PassRate      float64            `json:"pass_rate"`
	Consistency   float64            `json:"consistency"`
	ParamVariance map[string]float64 `json:"param_variance,omitempty"`
	Warnings      []string           `json:"warnings,omitempty"`
}

// WalkForwardError is fatal: failed folds formed a majority.
type WalkForwardError struct {
	Failed int
	Total  int
}

func (e *WalkForwardError) Error() string {
	return fmt.Sprintf("walk-forward: %d of %d folds failed", e.Failed, e.Total)
}

type WalkForward struct {
	cfg     FoldConfig
	simCfg  engine.SimulationConfig
	opt     Optimizer
	factory StrategyFactory
	space   ParamSpace
	cache   *ParamCache
	log     *zap.Logger
}

func NewWalkForward(cfg FoldConfig, simCfg engine.SimulationConfig, opt Optimizer, factory StrategyFactory, space ParamSpace, log *zap.Logger) (*WalkForward, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if err := simCfg.Validate(); err != nil {
		return nil, err
	}
	if opt == nil || factory == nil {
		return nil, &engine.ConfigError{Field: "walk_forward", Msg: "optimizer and strategy factory required"}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &WalkForward{
		cfg:     cfg,
		simCfg:  simCfg,
		opt:     opt,
		factory: factory,
		space:   space,
		cache:   NewParamCache(),
		log:     log,
	}, nil
}

// splitFolds produces [trainStart, trainEnd) / [testStart, testEnd) index
// pairs advancing by StepBars.
func (w *WalkForward) splitFolds(n int) []FoldResult {
	var folds []FoldResult
	for start := 0; start+w.cfg.TrainBars+w.cfg.TestBars <= n; start += w.cfg.StepBars {
		folds = append(folds, FoldResult{
			Index:      len(folds),
			TrainStart: start,
			TrainEnd:   start + w.cfg.TrainBars,
			TestStart:  start + w.cfg.TrainBars,
			TestEnd:    start + w.cfg.TrainBars + w.cfg.TestBars,
		})
	}
	return folds
}

// Validate runs all folds, concurrently up to Workers. Folds share only
// the read-only bar series; every fold gets its own orchestrator and
// therefore its own simulator state.
func (w *WalkForward) Validate(ctx context.Context, symbol string, bars []engine.Bar) (*WalkForwardReport, error) {
	folds := w.splitFolds(len(bars))
	if len(folds) < w.cfg.MinFolds {
		return nil, &engine.DataQualityError{
			Reason: fmt.Sprintf("only %d folds possible, need %d", len(folds), w.cfg.MinFolds),
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(w.cfg.Workers)
	for i := range folds {
		if gctx.Err() != nil {
			break // cooperative abort between folds
		}
		i := i
		g.Go(func() error {
			w.runFold(gctx, symbol, bars, &folds[i])
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	return w.aggregate(symbol, folds)
}

func (w *WalkForward) runFold(ctx context.Context, symbol string, bars []engine.Bar, fold *FoldResult) {
	train := bars[fold.TrainStart:fold.TrainEnd]
	test := bars[fold.TestStart:fold.TestEnd]
	log := w.log.With(zap.String("symbol", symbol), zap.Int("fold", fold.Index))

	key := cacheKey(symbol, train[0].Timestamp, train[len(train)-1].Timestamp)
	params, ok := w.cache.get(key)
	if !ok {
		octx, cancel := context.WithTimeout(ctx, w.cfg.OptimizerTimeout)
		var err error
		params, err = w.opt.Optimize(octx, train, w.space)
		cancel()
		if err != nil {
			fold.Status = FoldFailed
			if errors.Is(err, context.DeadlineExceeded) {
				fold.Reason = "optimizer timeout"
			} else {
				fold.Reason = fmt.Sprintf("optimizer: %v", err)
			}
			log.Warn("fold failed", zap.String("reason", fold.Reason))
			return
		}
		w.cache.put(key, params)
	}
	fold.Params = params

	orch, err := engine.NewOrchestrator(w.simCfg, w.log)
	if err != nil {
		fold.Status = FoldFailed
		fold.Reason = fmt.Sprintf("orchestrator: %v", err)
		return
	}
	result, err := orch.Run(ctx, symbol, test, w.factory(params))
	if err != nil {
		fold.Status = FoldFailed
		fold.Reason = fmt.Sprintf("backtest: %v", err)
		log.Warn("fold failed", zap.String("reason", fold.Reason))
		return
	}
	fold.Result = result
	fold.Return = result.Summary.TotalReturn
	log.Debug("fold done", zap.Float64("return", fold.Return))
}

func (w *WalkForward) aggregate(symbol string, folds []FoldResult) (*WalkForwardReport, error) {
	failed := 0
	positive := 0
	var returns []float64
	for i := range folds {
		if folds[i].Status == FoldFailed {
			failed++
			continue
		}
		returns = append(returns, folds[i].Return)
		if folds[i].Return > 0 {
			positive++
		}
	}
	if failed*2 > len(folds) {
		return nil, &WalkForwardError{Failed: failed, Total: len(folds)}
	}

	rep := &WalkForwardReport{
		ReportID:      uuid.NewString(),
		Symbol:        symbol,
		Folds:         folds,
		FailedFolds:   failed,
		ParamVariance: paramVariance(folds),
	}
	if len(returns) > 0 {
		rep.PassRate = float64(positive) / float64(len(returns))
		rep.Consistency = consistency(returns)
	}
	if failed > 0 {
		rep.Warnings = append(rep.Warnings, fmt.Sprintf("%d of %d folds excluded", failed, len(folds)))
	}
	w.log.Info("walk-forward done",
		zap.String("report_id", rep.ReportID),
		zap.Int("folds", len(folds)),
		zap.Int("failed", failed),
		zap.Float64("pass_rate", rep.PassRate),
		zap.Float64("consistency", rep.Consistency),
		zap.Int("cache_hits", w.cache.Hits()))
	return rep, nil
}

// consistency is the inverse-normalized spread of fold returns in [0,1]:
// 1 / (1 + sigma / max(|mu|, 0.01)).
func consistency(returns []float64) float64 {
	mean, std := engine.MeanStd(returns)
	denom := math.Abs(mean)
	if denom < 0.01 {
		denom = 0.01
	}
	return 1 / (1 + std/denom)
}

// paramVariance computes the per-parameter coefficient of variation across
// non-failed folds, the input to the overfitting instability indicator.
func paramVariance(folds []FoldResult) map[string]float64 {
	values := make(map[string][]float64)
	for i := range folds {
		if folds[i].Status == FoldFailed {
			continue
		}
		for k, v := range folds[i].Params {
			values[k] = append(values[k], v)
		}
	}
	if len(values) == 0 {
		return nil
	}
	out := make(map[string]float64, len(values))
	for k, vs := range values {
		mean, std := engine.MeanStd(vs)
		if math.Abs(mean) > 1e-12 {
			out[k] = std / math.Abs(mean)
		} else {
			out[k] = std
		}
	}
	return out
}
