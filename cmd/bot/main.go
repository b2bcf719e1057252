// Command bot runs one batch of limit-order price discovery: open new
// covered calls or buy existing ones back, retrying each symbol at
// progressively better prices until it fills or the search space runs out.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/algotrading-io/callwheel/internal/broker"
	"github.com/algotrading-io/callwheel/internal/chain"
	"github.com/algotrading-io/callwheel/internal/config"
	"github.com/algotrading-io/callwheel/internal/dashboard"
	"github.com/algotrading-io/callwheel/internal/mock"
	"github.com/algotrading-io/callwheel/internal/models"
	"github.com/algotrading-io/callwheel/internal/orders"
	"github.com/algotrading-io/callwheel/internal/retry"
	"github.com/algotrading-io/callwheel/internal/storage"
	"github.com/algotrading-io/callwheel/internal/strategy"
)

func main() {
	var (
		configPath    string
		directionName string
		symbolsFlag   string
	)
	flag.StringVar(&configPath, "config", "config.yaml", "Path to configuration file")
	flag.StringVar(&directionName, "direction", "open", "Trade direction: open (sell calls) or close (buy them back)")
	flag.StringVar(&symbolsFlag, "symbols", "", "Comma-separated symbol override")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	symbols := cfg.Symbols
	if symbolsFlag != "" {
		symbols = splitSymbols(symbolsFlag)
	}

	logger := newLogger(cfg)
	logger.Printf("Starting callwheel in %s mode, direction %s, symbols %v",
		cfg.Environment.Mode, directionName, symbols)
	if !cfg.IsPaperTrading() {
		logger.Println("LIVE TRADING MODE - real money at risk!")
		logger.Println("Waiting 10 seconds to confirm...")
		time.Sleep(10 * time.Second)
	}

	b := buildBroker(cfg, symbols, directionName)

	store, err := storage.NewSQLiteStore(cfg.GetStoragePath())
	if err != nil {
		logger.Fatalf("Failed to open run history: %v", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Printf("Closing run history: %v", err)
		}
	}()

	dir, err := buildDirection(directionName, b, cfg, logger)
	if err != nil {
		logger.Fatalf("%v", err)
	}

	executor := orders.NewExecutor(b, dir, store, logger, orders.Config{
		CooldownMin: cfg.GetCooldownMin(),
		CooldownMax: cfg.GetCooldownMax(),
		MaxRounds:   cfg.Execution.MaxRounds,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Verify broker connectivity before touching any orders.
	if _, err := retry.Do(ctx, logger, retry.DefaultConfig, "broker connectivity check",
		func() (map[string]broker.Holding, error) { return b.GetHoldings() }); err != nil {
		logger.Fatalf("Failed to reach broker: %v", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	batchCtx, batchDone := context.WithCancel(gctx)

	if cfg.Dashboard.Enabled {
		srv := dashboard.NewServer(dashboard.Config{Addr: cfg.Dashboard.Listen}, store, b, newLogrus(cfg))
		g.Go(func() error {
			if err := srv.Start(); !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-batchCtx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	g.Go(func() error {
		defer batchDone()
		return runBatch(gctx, executor, store, dir.Name(), symbols, logger)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatalf("Run failed: %v", err)
	}
	logger.Println("Done")
}

// runBatch records the run, drives the executor to completion, and logs
// the per-symbol outcomes.
func runBatch(
	ctx context.Context,
	executor *orders.Executor,
	store storage.Interface,
	direction string,
	symbols []string,
	logger *log.Logger,
) error {
	runID := uuid.New().String()
	if err := store.CreateRun(&storage.Run{
		ID:        runID,
		Direction: direction,
		Symbols:   strings.Join(symbols, ","),
		StartedAt: time.Now().UTC(),
	}); err != nil {
		return fmt.Errorf("recording run: %w", err)
	}

	results, execErr := executor.Execute(ctx, runID, symbols)
	if err := store.FinishRun(runID, time.Now().UTC()); err != nil {
		logger.Printf("Finishing run %s: %v", shortID(runID), err)
	}

	keys := make([]string, 0, len(results))
	for symbol := range results {
		keys = append(keys, symbol)
	}
	sort.Strings(keys)
	for _, symbol := range keys {
		res := results[symbol]
		switch {
		case res.Filled():
			logger.Printf("%s: FILLED order %s @ %.2f", symbol, shortID(res.Order.ID), res.Order.Price.Float())
		case errors.Is(res.Err, models.ErrSearchExhausted):
			logger.Printf("%s: EXHAUSTED, no fill within the search space", symbol)
		default:
			logger.Printf("%s: no fill: %v", symbol, res.Err)
		}
	}
	return execErr
}

// buildBroker picks the paper or live client per config. Paper mode seeds
// a synthetic account; when closing, it also seeds short calls so there is
// something to buy back.
func buildBroker(cfg *config.Config, symbols []string, direction string) broker.Broker {
	if cfg.IsPaperTrading() {
		paper := mock.NewPaperBroker(symbols)
		if direction == "close" {
			for _, symbol := range symbols {
				paper.SeedShortCall(symbol, 1)
			}
		}
		return paper
	}

	api := broker.NewRobinhoodAPI(cfg.Broker.Token, cfg.Broker.APIEndpoint).
		WithTimeout(cfg.GetBrokerTimeout())
	if cfg.Broker.CircuitBreaker {
		return broker.NewCircuitBreakerBroker(api)
	}
	return api
}

func buildDirection(name string, b broker.Broker, cfg *config.Config, logger *log.Logger) (strategy.Direction, error) {
	switch name {
	case "open":
		catalog := chain.NewCatalog(b, logger, chain.Config{
			OptionType:     cfg.Selection.OptionType,
			ProfitLow:      cfg.Selection.ProfitLow,
			ProfitHigh:     cfg.Selection.ProfitHigh,
			ProfitTarget:   cfg.Selection.ProfitTarget,
			MinPrice:       cfg.Selection.MinPrice,
			MaxCandidates:  cfg.Selection.MaxCandidates,
			NumExpirations: cfg.Selection.NumExpirations,
		})
		return strategy.NewSellToOpen(b, catalog, logger), nil
	case "close":
		return strategy.NewBuyToClose(b, logger), nil
	default:
		return nil, fmt.Errorf("unknown direction %q: want open or close", name)
	}
}

// newLogger builds the engine logger, teeing to a size-rotated file when
// one is configured.
func newLogger(cfg *config.Config) *log.Logger {
	var w io.Writer = os.Stdout
	if cfg.Environment.LogPath != "" {
		w = io.MultiWriter(os.Stdout, &lumberjack.Logger{
			Filename:   cfg.Environment.LogPath,
			MaxSize:    10, // megabytes
			MaxBackups: 5,
			MaxAge:     30, // days
			Compress:   true,
		})
	}
	return log.New(w, "[BOT] ", log.LstdFlags|log.Lshortfile)
}

// newLogrus builds the dashboard's structured logger at the configured
// level.
func newLogrus(cfg *config.Config) *logrus.Logger {
	logger := logrus.New()
	level, err := logrus.ParseLevel(cfg.Environment.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)
	return logger
}

func splitSymbols(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if symbol := strings.ToUpper(strings.TrimSpace(part)); symbol != "" {
			out = append(out, symbol)
		}
	}
	return out
}
