package infra

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// SymbolConfig seeds one symbol of the simulated universe.
type SymbolConfig struct {
	Symbol    string  `yaml:"symbol"`
	BasePrice float64 `yaml:"base_price"`
}

// Config holds every venue setting. Load it with LoadConfig; environment
// variables override the sensitive or deployment-specific values afterwards.
type Config struct {
	Server struct {
		ListenAddr string `yaml:"listen_addr"`
		WSPath     string `yaml:"ws_path"`
	} `yaml:"server"`

	Simulator struct {
		PriceIntervalMS    int     `yaml:"price_interval_ms"`
		MatchingIntervalMS int     `yaml:"matching_interval_ms"`
		EventsIntervalMS   int     `yaml:"events_interval_ms"`
		EventChance        float64 `yaml:"event_chance"`
	} `yaml:"simulator"`

	Market struct {
		Symbols []SymbolConfig `yaml:"symbols"`
	} `yaml:"market"`

	Session struct {
		MaxSubscriptions int     `yaml:"max_subscriptions"`
		CommandBurst     int     `yaml:"command_burst"`
		CommandRate      float64 `yaml:"command_rate"`
	} `yaml:"session"`

	Orders struct {
		CommissionCap  string `yaml:"commission_cap"`
		CommissionRate string `yaml:"commission_rate"`
	} `yaml:"orders"`

	Auth struct {
		Secret   string `yaml:"secret"`
		TokenTTL int    `yaml:"token_ttl_sec"`
	} `yaml:"auth"`

	Storage struct {
		Path string `yaml:"path"`
	} `yaml:"storage"`

	Kafka struct {
		Brokers     []string `yaml:"brokers"`
		TopicPrefix string   `yaml:"topic_prefix"`
	} `yaml:"kafka"`

	Logging struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"logging"`
}

// DefaultConfig returns the venue defaults: the stock/ETF/crypto universe of
// the simulator with its base prices, the standard loop intervals, and the
// default subscription cap.
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.Server.ListenAddr = ":8765"
	cfg.Server.WSPath = "/ws/market-data"

	cfg.Simulator.PriceIntervalMS = 2000
	cfg.Simulator.MatchingIntervalMS = 1000
	cfg.Simulator.EventsIntervalMS = 30000
	cfg.Simulator.EventChance = 0.1

	cfg.Market.Symbols = []SymbolConfig{
		{"AAPL", 150.00}, {"GOOGL", 2800.00}, {"MSFT", 380.00},
		{"TSLA", 250.00}, {"AMZN", 3400.00}, {"META", 320.00},
		{"NFLX", 450.00}, {"SPY", 450.00}, {"QQQ", 380.00},
		{"VTI", 240.00}, {"VOO", 420.00}, {"IWM", 200.00},
		{"BTC-USD", 45000.00}, {"ETH-USD", 3200.00}, {"ADA-USD", 0.85},
		{"DOT-USD", 25.00}, {"SOL-USD", 180.00},
	}

	cfg.Session.MaxSubscriptions = 50
	cfg.Session.CommandBurst = 10
	cfg.Session.CommandRate = 20

	cfg.Orders.CommissionCap = "9.99"
	cfg.Orders.CommissionRate = "0.001"

	cfg.Auth.Secret = ""
	cfg.Auth.TokenTTL = 3600

	cfg.Storage.Path = "venue.db"

	cfg.Kafka.TopicPrefix = "brokerage."

	cfg.Logging.Level = "info"
	cfg.Logging.Format = "text"
	return cfg
}

// LoadConfig reads and parses the config file, applies env overrides and
// validates the result. A missing path loads defaults plus env overrides.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	overrideWithEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks configuration validity.
func (c *Config) Validate() error {
	if c.Server.ListenAddr == "" {
		return fmt.Errorf("server listen address is required")
	}
	if !strings.HasPrefix(c.Server.WSPath, "/") {
		return fmt.Errorf("invalid websocket path: %s", c.Server.WSPath)
	}
	if c.Simulator.PriceIntervalMS <= 0 || c.Simulator.MatchingIntervalMS <= 0 || c.Simulator.EventsIntervalMS <= 0 {
		return fmt.Errorf("simulator intervals must be positive")
	}
	if c.Simulator.EventChance < 0 || c.Simulator.EventChance > 1 {
		return fmt.Errorf("event chance must be within [0, 1]")
	}
	if len(c.Market.Symbols) == 0 {
		return fmt.Errorf("at least one market symbol is required")
	}
	for _, s := range c.Market.Symbols {
		if s.Symbol == "" || s.BasePrice <= 0 {
			return fmt.Errorf("invalid symbol config: %q base price %v", s.Symbol, s.BasePrice)
		}
	}
	if c.Session.MaxSubscriptions <= 0 {
		return fmt.Errorf("max subscriptions must be positive")
	}
	if c.Session.CommandBurst <= 0 || c.Session.CommandRate <= 0 {
		return fmt.Errorf("session command limits must be positive")
	}
	if c.Auth.Secret == "" {
		return fmt.Errorf("auth secret is required (set BROKERAGE_AUTH_SECRET)")
	}
	if c.Storage.Path == "" {
		return fmt.Errorf("storage path is required")
	}
	return nil
}

// PriceInterval returns the price generation period.
func (c *Config) PriceInterval() time.Duration {
	return time.Duration(c.Simulator.PriceIntervalMS) * time.Millisecond
}

// MatchingInterval returns the order matching period.
func (c *Config) MatchingInterval() time.Duration {
	return time.Duration(c.Simulator.MatchingIntervalMS) * time.Millisecond
}

// EventsInterval returns the market event generation period.
func (c *Config) EventsInterval() time.Duration {
	return time.Duration(c.Simulator.EventsIntervalMS) * time.Millisecond
}

// overrideWithEnv applies environment variables on top of the file values.
// Env vars win so secrets can stay out of config files.
func overrideWithEnv(cfg *Config) {
	if v := os.Getenv("BROKERAGE_AUTH_SECRET"); v != "" {
		cfg.Auth.Secret = v
	}
	if v := os.Getenv("BROKERAGE_LISTEN_ADDR"); v != "" {
		cfg.Server.ListenAddr = v
	}
	if v := os.Getenv("BROKERAGE_DB_PATH"); v != "" {
		cfg.Storage.Path = v
	}
	if v := os.Getenv("BROKERAGE_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("BROKERAGE_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}
