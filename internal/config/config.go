package config

import (
	"fmt"
	"os"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the full bot configuration, loaded from a YAML file with
// environment overrides for secrets.
type Config struct {
	Environment string `yaml:"environment" default:"development"`

	Logging struct {
		Level  string `yaml:"level" default:"info"`
		Format string `yaml:"format" default:"console"`
		Dir    string `yaml:"dir" default:"logs"`
	} `yaml:"logging"`

	Broker struct {
		Name      string `yaml:"name" default:"paper" validate:"oneof=paper bybit"`
		APIKey    string `yaml:"api_key"`
		APISecret string `yaml:"api_secret"`
		Testnet   bool   `yaml:"testnet" default:"true"`
		Category  string `yaml:"category" default:"spot"`
	} `yaml:"broker"`

	Signals SignalsConfig `yaml:"signals"`
	Sizing  SizingConfig  `yaml:"sizing"`
	Risk    RiskConfig    `yaml:"risk"`
	Session SessionConfig `yaml:"session"`

	Cache struct {
		Backend   string `yaml:"backend" default:"memory" validate:"oneof=memory redis"`
		RedisAddr string `yaml:"redis_addr" default:"localhost:6379"`
		RedisDB   int    `yaml:"redis_db" default:"0"`
	} `yaml:"cache"`

	Persistence struct {
		Path string `yaml:"path" default:"data/quorum-bot.db"`
	} `yaml:"persistence"`

	Monitoring struct {
		PrometheusPort int `yaml:"prometheus_port" default:"8080"`
		HealthPort     int `yaml:"health_port" default:"8081"`
	} `yaml:"monitoring"`

	Notifications struct {
		TelegramToken  string `yaml:"telegram_token"`
		TelegramChatID string `yaml:"telegram_chat_id"`
	} `yaml:"notifications"`

	Reporting struct {
		Dir string `yaml:"dir" default:"reports"`
	} `yaml:"reporting"`
}

// SignalsConfig configures providers and the aggregator.
type SignalsConfig struct {
	Symbols          []string       `yaml:"symbols"`
	MinSources       int            `yaml:"min_sources" default:"2" validate:"gte=1"`
	Timeout          time.Duration  `yaml:"timeout" default:"30s"`
	DefaultVoteRatio float64        `yaml:"default_vote_ratio" default:"0.70" validate:"gt=0,lte=1"`
	CacheTTL         time.Duration  `yaml:"cache_ttl" default:"60s"`
	RateLimit        time.Duration  `yaml:"rate_limit" default:"500ms"`
	Providers        []string       `yaml:"providers" default:"[\"rsi\",\"sma\",\"macd\",\"bollinger\"]"`
	Remotes          []RemoteSource `yaml:"remotes"`
}

// RemoteSource configures an HTTP JSON signal provider.
type RemoteSource struct {
	Name string `yaml:"name" validate:"required"`
	URL  string `yaml:"url" validate:"required,url"`
}

// SizingConfig configures the position sizer.
type SizingConfig struct {
	InitialBalance  float64 `yaml:"initial_balance" default:"10000" validate:"gt=0"`
	RiskPerTradePct float64 `yaml:"risk_per_trade_pct" default:"2" validate:"gt=0,lte=100"`
	MinPositionSize float64 `yaml:"min_position_size" default:"10" validate:"gte=0"`
	MaxPositionSize float64 `yaml:"max_position_size" default:"3000" validate:"gt=0"`
	WinRatePct      float64 `yaml:"win_rate_pct" default:"55"`
	AvgWin          float64 `yaml:"avg_win" default:"1.5"`
	AvgLoss         float64 `yaml:"avg_loss" default:"1.0"`
}

// RiskConfig holds the portfolio-level risk constraints. Values may be
// hot-updated between cycles via Session.UpdateConstraints.
type RiskConfig struct {
	MaxPositionSize     float64 `yaml:"max_position_size" default:"3000" validate:"gt=0"`
	MaxPortfolioRiskPct float64 `yaml:"max_portfolio_risk_pct" default:"10" validate:"gt=0,lte=100"`
	PerTradeRiskPct     float64 `yaml:"per_trade_risk_pct" default:"2" validate:"gt=0,lte=100"`
	StopLossPct         float64 `yaml:"stop_loss_pct" default:"5" validate:"gt=0,lt=100"`
	TakeProfitPct       float64 `yaml:"take_profit_pct" default:"10" validate:"gt=0"`
	MaxDailyLoss        float64 `yaml:"max_daily_loss" default:"500" validate:"gt=0"`
	MaxDrawdownPct      float64 `yaml:"max_drawdown_pct" default:"20" validate:"gt=0,lte=100"`
	EmergencyStop       bool    `yaml:"emergency_stop" default:"true"`
}

// SessionConfig configures the scheduler.
type SessionConfig struct {
	CycleInterval     time.Duration `yaml:"cycle_interval" default:"1m"`
	MonitorInterval   time.Duration `yaml:"monitor_interval" default:"30s"`
	TradingHoursStart string        `yaml:"trading_hours_start" default:"09:00"`
	TradingHoursEnd   string        `yaml:"trading_hours_end" default:"17:00"`
	Timezone          string        `yaml:"timezone" default:"UTC"`
	ReconnectRetries  int           `yaml:"reconnect_retries" default:"5" validate:"gte=1"`
	ReconnectInterval time.Duration `yaml:"reconnect_interval" default:"10s"`
}

// Load reads the config file, applies defaults, overlays environment
// variables for credentials, and validates the result.
func Load(path string) (*Config, error) {
	// .env is optional; real deployments set variables directly
	_ = godotenv.Load()

	cfg := &Config{}
	if err := defaults.Set(cfg); err != nil {
		return nil, fmt.Errorf("failed to apply config defaults: %w", err)
	}

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	cfg.applyEnvOverrides()

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if len(cfg.Signals.Symbols) == 0 {
		cfg.Signals.Symbols = []string{"BTCUSDT"}
	}
	return cfg, nil
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("BROKER_API_KEY"); v != "" {
		c.Broker.APIKey = v
	}
	if v := os.Getenv("BROKER_API_SECRET"); v != "" {
		c.Broker.APISecret = v
	}
	if v := os.Getenv("TELEGRAM_TOKEN"); v != "" {
		c.Notifications.TelegramToken = v
	}
	if v := os.Getenv("TELEGRAM_CHAT_ID"); v != "" {
		c.Notifications.TelegramChatID = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
}
