// Command backtest replays a historical candle feed through a configured
// strategy and prints the performance summary.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"spot-backtest/services/backtest"
	"spot-backtest/services/clickhouse"
	"spot-backtest/services/config"
	"spot-backtest/services/engine"
	"spot-backtest/services/marketdata"
	"spot-backtest/services/position"
	"spot-backtest/services/series"
	"spot-backtest/services/trading"
)

func main() {
	configPath := flag.String("config", "./backtest.json", "Path to run configuration")
	saveResults := flag.Bool("save", false, "Persist run results to ClickHouse")
	verbose := flag.Bool("verbose", false, "Development logging")
	flag.Parse()

	logger, err := buildLogger(*verbose)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()

	if err := run(*configPath, *saveResults, logger); err != nil {
		logger.Fatal("backtest failed", zap.Error(err))
	}
}

func buildLogger(verbose bool) (*zap.Logger, error) {
	if verbose {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func run(configPath string, saveResults bool, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	feed, store, err := loadFeed(ctx, cfg, logger)
	if err != nil {
		return err
	}

	tsByName, ordered, err := cfg.BuildTimeSeries(logger)
	if err != nil {
		return err
	}

	exg, err := engine.NewExchangeState(
		cfg.DecimalUSD(), cfg.DecimalAsset(),
		cfg.DecimalMakerFee(), cfg.DecimalTakerFee(), logger)
	if err != nil {
		return err
	}
	client := engine.NewBacktestClient(exg, logger)

	runner, err := backtest.NewRunner(backtest.RunnerConfig{
		Symbol:        cfg.Symbol,
		Feed:          feed,
		TimeSeries:    ordered,
		StartUnix:     cfg.StartUnix,
		WarmupCandles: cfg.WarmupCandles,
	}, exg, client, nil, logger)
	if err != nil {
		return err
	}

	// Timeframes must be prepared before signals precompute their series.
	runner.Prepare()

	strategy, err := cfg.BuildStrategy(tsByName, logger)
	if err != nil {
		return err
	}
	buyStrategy, sellStrategy, exitStrategy, err := cfg.BuildOrderStrategies()
	if err != nil {
		return err
	}

	state := position.NewTradingState()
	t := trading.NewTrading(trading.Config{
		Mode:                trading.ModeBacktest,
		State:               state,
		Client:              client,
		Strategy:            strategy,
		BuyStrategy:         buyStrategy,
		SellStrategy:        sellStrategy,
		ExitStrategy:        exitStrategy,
		LimitOrderStaleSecs: cfg.LimitOrderStaleSecs,
		CandleSizeMin:       primaryCandleSize(ordered),
		RiskFreeRate:        cfg.RiskFreeRate,
	}, logger)
	runner.SetTrading(t)

	stats, err := runner.Execute(ctx)
	if err != nil {
		return err
	}
	fmt.Println(stats.Summary())

	if saveResults {
		if store == nil {
			return fmt.Errorf("cannot save results without a clickhouse_dsn")
		}
		if err := store.SaveRun(ctx, runner.ID, cfg.Symbol, stats); err != nil {
			return err
		}
		if err := store.SaveTrades(ctx, runner.ID, cfg.Symbol, state.ClosedPositions); err != nil {
			return err
		}
		logger.Info("results saved", zap.String("run_id", runner.ID))
	}
	return nil
}

// loadFeed reads the candle feed from the configured source and, when
// ClickHouse is in play, returns the result store bound to that connection.
func loadFeed(ctx context.Context, cfg *config.RunConfig, logger *zap.Logger) ([]series.Candle, *clickhouse.ResultStore, error) {
	if cfg.CandleFile != "" {
		feed, err := marketdata.LoadCSV(cfg.CandleFile)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("feed loaded", zap.String("file", cfg.CandleFile), zap.Int("candles", len(feed)))
		return feed, nil, nil
	}

	conn, err := clickhouse.NewConn(ctx, cfg.ClickHouseDSN)
	if err != nil {
		return nil, nil, err
	}
	source := clickhouse.NewCandleSource(conn, cfg.ClickHouseTable)
	feed, err := source.Candles(ctx, cfg.Symbol, 0, 0)
	if err != nil {
		return nil, nil, err
	}
	logger.Info("feed loaded", zap.String("symbol", cfg.Symbol), zap.Int("candles", len(feed)))
	return feed, clickhouse.NewResultStore(conn), nil
}

func primaryCandleSize(ordered []*series.TimeSeries) int64 {
	if len(ordered) == 0 {
		return 0
	}
	return ordered[0].CandleSizeMin
}
