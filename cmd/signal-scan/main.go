// signal-scan runs one aggregation pass over the configured symbols and
// prints the vote tallies. Useful for checking provider wiring without
// starting a trading session.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/tradequorum/quorum-bot/internal/broker"
	"github.com/tradequorum/quorum-bot/internal/config"
	"github.com/tradequorum/quorum-bot/internal/events"
	"github.com/tradequorum/quorum-bot/internal/logger"
	"github.com/tradequorum/quorum-bot/internal/reporting"
	"github.com/tradequorum/quorum-bot/internal/signal"
	"github.com/tradequorum/quorum-bot/internal/signal/providers"
)

func main() {
	var (
		configFile = flag.String("config", "config.yaml", "Configuration file path")
		symbolList = flag.String("symbols", "", "Comma-separated symbols (overrides config)")
		timeout    = flag.Duration("timeout", 30*time.Second, "Aggregation timeout")
	)
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	symbols := cfg.Signals.Symbols
	if *symbolList != "" {
		symbols = strings.Split(*symbolList, ",")
		for i := range symbols {
			symbols[i] = strings.TrimSpace(symbols[i])
		}
	}

	logg, err := logger.New(logger.Config{Level: "warn", Format: "console"})
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}

	var feed broker.PriceFeed
	if cfg.Broker.Name == "bybit" {
		feed = broker.NewBybitAdapter(broker.BybitConfig{
			APIKey:    cfg.Broker.APIKey,
			APISecret: cfg.Broker.APISecret,
			Testnet:   cfg.Broker.Testnet,
			Category:  cfg.Broker.Category,
		}, logg)
	} else {
		feed = broker.NewSyntheticFeed(50000)
	}

	fetchers, err := providers.BuildLocal(cfg.Signals.Providers, feed, cfg.Broker.Category)
	if err != nil {
		log.Fatalf("Failed to build signal providers: %v", err)
	}
	for _, remote := range cfg.Signals.Remotes {
		fetchers = append(fetchers, providers.NewRemoteProvider(remote.Name, remote.URL))
	}

	bus := events.NewBus()
	sources := make([]signal.Source, 0, len(fetchers))
	for _, fetcher := range fetchers {
		sources = append(sources, signal.NewSource(fetcher, signal.SourceOptions{
			CacheTTL:  cfg.Signals.CacheTTL,
			RateLimit: cfg.Signals.RateLimit,
			Bus:       bus,
			Logger:    logg,
		}))
	}

	aggregator := signal.NewAggregator(sources, signal.AggregatorOptions{
		Timeout:          *timeout,
		MinSources:       cfg.Signals.MinSources,
		DefaultVoteRatio: cfg.Signals.DefaultVoteRatio,
		Logger:           logg,
	})

	ctx, cancel := context.WithTimeout(context.Background(), *timeout+5*time.Second)
	defer cancel()

	fmt.Printf("🔍 Scanning %d symbols with %d sources...\n\n", len(symbols), len(sources))
	aggs := aggregator.AggregateMany(ctx, symbols)
	if len(aggs) == 0 {
		fmt.Println("⚠️ No symbol produced a verdict (insufficient sources?)")
		return
	}

	for _, agg := range aggs {
		reporting.PrintAggregation(agg)
	}

	if best := signal.SelectBestBuyCandidate(aggs); best != nil {
		fmt.Printf("🏆 Best buy candidate: %s (%.1f%% buy consensus across %d sources)\n",
			best.Symbol, best.BuyPercentage, best.TotalSources)
	} else {
		fmt.Println("⏸️ No buy candidate this scan")
	}
}
