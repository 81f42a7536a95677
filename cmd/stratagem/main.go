// Command stratagem runs the trading strategy assistant service.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/stratagem-ai/stratagem/pkg/approval"
	"github.com/stratagem-ai/stratagem/pkg/bus"
	"github.com/stratagem-ai/stratagem/pkg/config"
	"github.com/stratagem-ai/stratagem/pkg/logging"
	"github.com/stratagem-ai/stratagem/pkg/marketdata"
	"github.com/stratagem-ai/stratagem/pkg/model"
	"github.com/stratagem-ai/stratagem/pkg/orchestrator"
	"github.com/stratagem-ai/stratagem/pkg/server"
	"github.com/stratagem-ai/stratagem/pkg/storage"
	"github.com/stratagem-ai/stratagem/pkg/telemetry"
	"github.com/stratagem-ai/stratagem/pkg/tool"
	"github.com/stratagem-ai/stratagem/pkg/tool/builtin"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "stratagem:", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "", "path to YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}

	logger, err := logging.NewLogger(cfg.Logging.Dir)
	if err != nil {
		return err
	}
	defer logger.Close()
	if cfg.Logging.Level != "" {
		logger.SetMinLevel(logging.Level(cfg.Logging.Level))
	}

	store, err := storage.Open(cfg.Storage.Path)
	if err != nil {
		return err
	}
	defer store.Close()

	eventBus, err := bus.New(bus.Config{URL: cfg.Bus.URL, Name: "stratagem"})
	if err != nil {
		return err
	}
	defer eventBus.Close()

	hub := telemetry.NewHub()
	defer hub.Close()

	models := model.NewClient(cfg.Model.APIKey, cfg.Model.BaseURL)
	models.SetTimeout(cfg.Model.RequestTimeout)
	models.SetRequestsPerMinute(cfg.Model.RequestsPerMin)

	var market *marketdata.Client
	if !cfg.MarketData.Synthetic {
		market = marketdata.NewClient(cfg.MarketData.BaseURL)
	}

	gate := approval.NewGate(cfg.Approval.Timeout, logger)

	registry := tool.NewRegistry(logger)
	registry.Register(&builtin.GenerateStrategyTool{Client: models, Model: cfg.Model.Name})
	registry.Register(&builtin.GenerateCodeTool{})
	registry.Register(&builtin.RunBacktestTool{})
	registry.Register(&builtin.SaveStrategyTool{Store: store})
	registry.Register(&builtin.FetchMarketDataTool{Client: market})

	controller, err := orchestrator.New(orchestrator.Config{
		Models:   models,
		Model:    cfg.Model.Name,
		Registry: registry,
		Gate:     gate,
		Store:    store,
		Cache:    orchestrator.NewMarketCache(cfg.MarketData.CacheTTL),
		Validator: orchestrator.Validator{
			MinTrades: cfg.Validator.MinTrades,
			Candles:   cfg.Validator.Candles,
			Disabled:  cfg.Validator.Disabled,
		},
		Notifier:      &orchestrator.Notifier{Hub: hub, Bus: eventBus},
		Logger:        logger,
		MaxIterations: cfg.Orchestrator.MaxIterations,
		HistoryTurns:  cfg.Orchestrator.HistoryTurns,
	})
	if err != nil {
		return err
	}

	srv := server.New(server.Config{
		Bind:       cfg.Server.Bind,
		Controller: controller,
		Gate:       gate,
		Store:      store,
		Hub:        hub,
		Logger:     logger,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(srv.Start)
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Model.RequestTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
