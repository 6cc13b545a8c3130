package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/tradequorum/quorum-bot/internal/broker"
	"github.com/tradequorum/quorum-bot/internal/config"
	"github.com/tradequorum/quorum-bot/internal/events"
	"github.com/tradequorum/quorum-bot/internal/logger"
	"github.com/tradequorum/quorum-bot/internal/monitoring"
	"github.com/tradequorum/quorum-bot/internal/notifications"
	"github.com/tradequorum/quorum-bot/internal/persistence"
	"github.com/tradequorum/quorum-bot/internal/portfolio"
	"github.com/tradequorum/quorum-bot/internal/reporting"
	"github.com/tradequorum/quorum-bot/internal/risk"
	"github.com/tradequorum/quorum-bot/internal/session"
	"github.com/tradequorum/quorum-bot/internal/signal/providers"
	"github.com/tradequorum/quorum-bot/internal/sizing"

	signalpkg "github.com/tradequorum/quorum-bot/internal/signal"
)

func main() {
	var (
		configFile = flag.String("config", "config.yaml", "Configuration file path")
		paperMode  = flag.Bool("paper", false, "Force paper trading regardless of config")
	)
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *paperMode {
		cfg.Broker.Name = "paper"
	}

	logg, err := logger.New(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Dir:    cfg.Logging.Dir,
	})
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}

	fmt.Println("🚀 Quorum Bot Starting...")
	reporting.PrintStartupInfo(cfg.Signals.Symbols, cfg.Broker.Category, cfg.Broker.Name, cfg.Broker.Name == "paper")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bus := events.NewBus()
	notifier := buildNotifier(cfg)
	go forwardAlerts(ctx, bus, notifier, logg)

	adapter, feed := buildBroker(cfg, logg)

	store, err := persistence.Open(cfg.Persistence.Path)
	if err != nil {
		log.Fatalf("Failed to open audit store: %v", err)
	}
	defer store.Close()

	cache := buildCache(cfg, logg)
	sources := buildSources(cfg, feed, cache, bus, logg)

	aggregator := signalpkg.NewAggregator(sources, signalpkg.AggregatorOptions{
		Timeout:          cfg.Signals.Timeout,
		MinSources:       cfg.Signals.MinSources,
		DefaultVoteRatio: cfg.Signals.DefaultVoteRatio,
		Logger:           logger.Component(logg, "aggregator"),
	})

	sizer := sizing.NewSizer(sizing.Config{
		RiskPerTradePct:     cfg.Sizing.RiskPerTradePct,
		MinPositionSize:     cfg.Sizing.MinPositionSize,
		MaxPositionSize:     cfg.Sizing.MaxPositionSize,
		MaxPortfolioRiskPct: cfg.Risk.MaxPortfolioRiskPct,
	})

	riskManager := risk.NewManager(risk.Constraints{
		MaxPositionSize:     cfg.Risk.MaxPositionSize,
		MaxPortfolioRiskPct: cfg.Risk.MaxPortfolioRiskPct,
		PerTradeRiskPct:     cfg.Risk.PerTradeRiskPct,
		StopLossPct:         cfg.Risk.StopLossPct,
		TakeProfitPct:       cfg.Risk.TakeProfitPct,
		MaxDailyLoss:        cfg.Risk.MaxDailyLoss,
		MaxDrawdownPct:      cfg.Risk.MaxDrawdownPct,
		EmergencyStop:       cfg.Risk.EmergencyStop,
	}, bus, logg)

	ledger := portfolio.NewLedger(cfg.Sizing.InitialBalance)
	health := monitoring.NewHealthChecker()

	controller, err := session.NewController(session.Config{
		Symbols:           cfg.Signals.Symbols,
		Market:            cfg.Broker.Category,
		CycleInterval:     cfg.Session.CycleInterval,
		MonitorInterval:   cfg.Session.MonitorInterval,
		TradingHoursStart: cfg.Session.TradingHoursStart,
		TradingHoursEnd:   cfg.Session.TradingHoursEnd,
		Timezone:          cfg.Session.Timezone,
		ReconnectRetries:  cfg.Session.ReconnectRetries,
		ReconnectInterval: cfg.Session.ReconnectInterval,
		Sizing:            cfg.Sizing,
	}, session.Deps{
		Aggregator: aggregator,
		Sizer:      sizer,
		Risk:       riskManager,
		Ledger:     ledger,
		Broker:     adapter,
		Feed:       feed,
		Store:      store,
		Bus:        bus,
		Health:     health,
		Logger:     logg,
	})
	if err != nil {
		log.Fatalf("Failed to create session controller: %v", err)
	}

	startServers(cfg, health, logg)

	if err := controller.Start(ctx); err != nil {
		log.Fatalf("Failed to start trading session: %v", err)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan
	fmt.Println("\n🛑 Shutdown signal received...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	controller.Stop(shutdownCtx)
	cancel()

	snap := ledger.Snapshot()
	reporting.PrintSessionSummary(controller.Session(), snap)
	writeSessionReport(cfg, controller.Session(), snap, logg)

	fmt.Println("✅ Bot stopped successfully")
}

func buildBroker(cfg *config.Config, logg zerolog.Logger) (broker.Adapter, broker.PriceFeed) {
	if cfg.Broker.Name == "bybit" {
		adapter := broker.NewBybitAdapter(broker.BybitConfig{
			APIKey:    cfg.Broker.APIKey,
			APISecret: cfg.Broker.APISecret,
			Testnet:   cfg.Broker.Testnet,
			Category:  cfg.Broker.Category,
		}, logg)
		return adapter, adapter
	}
	paper := broker.NewPaperBroker(cfg.Sizing.InitialBalance, logg)
	return paper, broker.NewSyntheticFeed(50000)
}

func buildCache(cfg *config.Config, logg zerolog.Logger) signalpkg.Cache {
	if cfg.Cache.Backend == "redis" {
		client := redis.NewClient(&redis.Options{
			Addr: cfg.Cache.RedisAddr,
			DB:   cfg.Cache.RedisDB,
		})
		logg.Info().Str("addr", cfg.Cache.RedisAddr).Msg("using redis signal cache")
		return signalpkg.NewRedisCache(client)
	}
	return signalpkg.NewMemoryCache()
}

func buildSources(cfg *config.Config, feed broker.PriceFeed, cache signalpkg.Cache, bus *events.Bus, logg zerolog.Logger) []signalpkg.Source {
	fetchers, err := providers.BuildLocal(cfg.Signals.Providers, feed, cfg.Broker.Category)
	if err != nil {
		log.Fatalf("Failed to build signal providers: %v", err)
	}
	for _, remote := range cfg.Signals.Remotes {
		fetchers = append(fetchers, providers.NewRemoteProvider(remote.Name, remote.URL))
	}

	sources := make([]signalpkg.Source, 0, len(fetchers))
	for _, fetcher := range fetchers {
		sources = append(sources, signalpkg.NewSource(fetcher, signalpkg.SourceOptions{
			CacheTTL:  cfg.Signals.CacheTTL,
			RateLimit: cfg.Signals.RateLimit,
			Cache:     cache,
			Bus:       bus,
			Logger:    logger.Component(logg, "source"),
		}))
	}
	return sources
}

func buildNotifier(cfg *config.Config) notifications.Notifier {
	if cfg.Notifications.TelegramToken != "" && cfg.Notifications.TelegramChatID != "" {
		return notifications.NewTelegramNotifier(cfg.Notifications.TelegramToken, cfg.Notifications.TelegramChatID)
	}
	return notifications.NopNotifier{}
}

// forwardAlerts relays risk and session events to the operator channel.
func forwardAlerts(ctx context.Context, bus *events.Bus, notifier notifications.Notifier, logg zerolog.Logger) {
	alerts, unsubAlerts := bus.Subscribe(events.TopicRiskAlert, 16)
	defer unsubAlerts()
	stops, unsubStops := bus.Subscribe(events.TopicEmergencyStop, 4)
	defer unsubStops()
	trips, unsubTrips := bus.Subscribe(events.TopicSourceTripped, 16)
	defer unsubTrips()

	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-alerts:
			if alert, ok := ev.(events.RiskAlert); ok {
				if err := notifier.SendAlert("warning", fmt.Sprintf("Risk alert [%s]: %s", alert.Rule, alert.Message)); err != nil {
					logg.Warn().Err(err).Msg("failed to send risk alert")
				}
			}
		case ev := <-stops:
			if alert, ok := ev.(events.RiskAlert); ok {
				if err := notifier.SendAlert("error", fmt.Sprintf("EMERGENCY STOP [%s]: trading halted", alert.Rule)); err != nil {
					logg.Warn().Err(err).Msg("failed to send emergency stop alert")
				}
			}
		case ev := <-trips:
			if trip, ok := ev.(events.SourceTripped); ok {
				if err := notifier.SendAlert("warning", fmt.Sprintf("Signal source %s disabled after %d failures", trip.Source, trip.Failures)); err != nil {
					logg.Warn().Err(err).Msg("failed to send source trip alert")
				}
			}
		}
	}
}

func startServers(cfg *config.Config, health *monitoring.HealthChecker, logg zerolog.Logger) {
	go func() {
		addr := fmt.Sprintf(":%d", cfg.Monitoring.PrometheusPort)
		logg.Info().Str("addr", addr).Msg("metrics server listening")
		if err := http.ListenAndServe(addr, monitoring.Handler()); err != nil {
			logg.Error().Err(err).Msg("metrics server stopped")
		}
	}()
	go func() {
		addr := fmt.Sprintf(":%d", cfg.Monitoring.HealthPort)
		mux := http.NewServeMux()
		mux.Handle("/health", health)
		logg.Info().Str("addr", addr).Msg("health server listening")
		if err := http.ListenAndServe(addr, mux); err != nil {
			logg.Error().Err(err).Msg("health server stopped")
		}
	}()
}

func writeSessionReport(cfg *config.Config, s *session.Session, snap portfolio.Snapshot, logg zerolog.Logger) {
	if s == nil {
		return
	}
	reporter := reporting.NewExcelReporter()
	path := filepath.Join(cfg.Reporting.Dir, fmt.Sprintf("session_%s.xlsx", time.Now().Format("2006-01-02_150405")))
	if err := reporter.WriteSessionXLSX(s, snap, path); err != nil {
		logg.Warn().Err(err).Msg("failed to write session report")
		return
	}
	fmt.Printf("📊 Session report saved to: %s\n", path)
}
