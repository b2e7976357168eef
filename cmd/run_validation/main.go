// End-to-end validation runner: loads bars (ClickHouse or CSV), backtests
// the demo strategy, then runs Monte Carlo, walk-forward and overfitting
// analysis over the result.
package main

import (
	"context"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"backtest-validation/services/chstore"
	"backtest-validation/services/csvsource"
	"backtest-validation/services/engine"
	"backtest-validation/services/montecarlo"
	"backtest-validation/services/validate"
)

func mustEnv(k, def string) string {
	if v := strings.TrimSpace(os.Getenv(k)); v != "" {
		return v
	}
	return def
}

func envInt(k string, def int) int {
	if n, err := strconv.Atoi(mustEnv(k, "")); err == nil {
		return n
	}
	return def
}

func main() {
	_ = godotenv.Load()

	log, err := zap.NewDevelopment()
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	ctx := context.Background()
	symbol := mustEnv("SYMBOL", "BTCUSDT")
	timeframe := mustEnv("TIMEFRAME", "1h")

	simCfg := engine.DefaultSimulationConfig()
	simCfg.Timeframe = timeframe
	if err := simCfg.Validate(); err != nil {
		log.Fatal("bad simulation config", zap.Error(err))
	}

	bars, store := loadBars(ctx, log, symbol, timeframe)
	if store != nil {
		defer store.Close()
	}
	if len(bars) < 500 {
		log.Fatal("not enough bars", zap.Int("count", len(bars)))
	}

	// In-sample / out-of-sample split for the overfitting analyzer.
	split := len(bars) * 7 / 10
	params := validate.Params{"fast": 9, "slow": 26, "qty": 1}

	orch, err := engine.NewOrchestrator(simCfg, log)
	if err != nil {
		log.Fatal("orchestrator", zap.Error(err))
	}
	inSample, err := orch.Run(ctx, symbol, bars[:split], newSMACross(params))
	if err != nil {
		log.Fatal("in-sample backtest", zap.Error(err))
	}
	outOfSample, err := orch.Run(ctx, symbol, bars[split:], newSMACross(params))
	if err != nil {
		log.Fatal("out-of-sample backtest", zap.Error(err))
	}

	mc, err := montecarlo.New(montecarlo.Config{
		Mode:        montecarlo.ModeBlock,
		NumPaths:    envInt("MC_PATHS", 1000),
		BlockLength: 5,
		Confidence:  0.95,
		Workers:     envInt("MC_WORKERS", 4),
		Seed:        int64(envInt("MC_SEED", 42)),
		Weights:     montecarlo.DefaultRobustnessWeights(),
	}, log)
	if err != nil {
		log.Fatal("monte carlo config", zap.Error(err))
	}
	mcReport, err := mc.Simulate(ctx, inSample)
	if err != nil {
		log.Error("monte carlo failed", zap.Error(err))
	}

	wf, err := validate.NewWalkForward(validate.FoldConfig{
		TrainBars:        envInt("WF_TRAIN_BARS", 1000),
		TestBars:         envInt("WF_TEST_BARS", 250),
		StepBars:         envInt("WF_STEP_BARS", 250),
		MinFolds:         3,
		OptimizerTimeout: time.Duration(envInt("WF_OPT_TIMEOUT_SEC", 30)) * time.Second,
		Workers:          envInt("WF_WORKERS", 4),
	}, simCfg, &gridOptimizer{simCfg: simCfg, qty: 1}, newSMACross, validate.ParamSpace{
		"fast": {5, 15},
		"slow": {20, 60},
	}, log)
	if err != nil {
		log.Fatal("walk-forward config", zap.Error(err))
	}
	wfReport, err := wf.Validate(ctx, symbol, bars)
	if err != nil {
		log.Error("walk-forward failed", zap.Error(err))
	}

	analyzer, err := validate.NewAnalyzer(validate.DefaultOverfitConfig())
	if err != nil {
		log.Fatal("overfit config", zap.Error(err))
	}
	ofReport, err := analyzer.Analyze(inSample, outOfSample, wfReport, len(params))
	if err != nil {
		log.Fatal("overfitting analysis", zap.Error(err))
	}

	log.Info("validation summary",
		zap.Float64("is_return", inSample.Summary.TotalReturn),
		zap.Float64("oos_return", outOfSample.Summary.TotalReturn),
		zap.Float64("overfit_score", ofReport.Composite),
		zap.Bool("overfit", ofReport.Overfit),
		zap.Float64("confidence", ofReport.Confidence))

	if store != nil {
		if err := store.EnsureReportTable(ctx); err != nil {
			log.Warn("report table", zap.Error(err))
			return
		}
		saveReports(ctx, log, store, inSample, mcReport, wfReport, ofReport)
	}
}

func loadBars(ctx context.Context, log *zap.Logger, symbol, timeframe string) ([]engine.Bar, *chstore.Store) {
	if path := mustEnv("CSV_PATH", ""); path != "" {
		bars, err := csvsource.LoadBars(path)
		if err != nil {
			log.Fatal("csv load", zap.Error(err))
		}
		return bars, nil
	}
	store, err := chstore.Open(ctx, chstore.Config{
		DSN:      mustEnv("CLICKHOUSE_DSN", "clickhouse://default:@localhost:9000"),
		Database: mustEnv("CH_DATABASE", "backtest"),
		Table:    mustEnv("CH_TABLE", "data"),
		User:     mustEnv("CH_USER", "backtest"),
		Password: mustEnv("CH_PASSWORD", "backtest123"),
	}, log)
	if err != nil {
		log.Fatal("clickhouse open", zap.Error(err))
	}
	from := uint64(envInt("FROM_MS", 0))
	to := uint64(envInt("TO_MS", int(time.Now().UnixMilli())))
	bars, err := store.LoadBars(ctx, symbol, timeframe, from, to)
	if err != nil {
		log.Fatal("clickhouse load", zap.Error(err))
	}
	return bars, store
}

func saveReports(ctx context.Context, log *zap.Logger, store *chstore.Store,
	result *engine.BacktestResult, mc *montecarlo.Report, wf *validate.WalkForwardReport, of *validate.OverfitReport) {
	if err := store.SaveReport(ctx, "backtest", result.JobID, result); err != nil {
		log.Warn("save backtest report", zap.Error(err))
	}
	if mc != nil {
		if err := store.SaveReport(ctx, "montecarlo", mc.ReportID, mc); err != nil {
			log.Warn("save monte carlo report", zap.Error(err))
		}
	}
	if wf != nil {
		if err := store.SaveReport(ctx, "walkforward", wf.ReportID, wf); err != nil {
			log.Warn("save walk-forward report", zap.Error(err))
		}
	}
	if err := store.SaveReport(ctx, "overfitting", result.JobID, of); err != nil {
		log.Warn("save overfitting report", zap.Error(err))
	}
}
