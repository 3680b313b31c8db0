package config

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ducminhle1904/crypto-trade-gate/internal/exchange/adapters"
	"github.com/ducminhle1904/crypto-trade-gate/internal/exchange/bybit"
	"github.com/ducminhle1904/crypto-trade-gate/internal/ledger"
	"github.com/ducminhle1904/crypto-trade-gate/internal/orchestrator"
	"github.com/ducminhle1904/crypto-trade-gate/internal/risk"
	"github.com/ducminhle1904/crypto-trade-gate/internal/safety"
)

// Environment variables read on load. Secrets never live in the config file.
const (
	EnvBybitAPIKey     = "BYBIT_API_KEY"
	EnvBybitAPISecret  = "BYBIT_API_SECRET"
	EnvBybitTestnet    = "BYBIT_TESTNET"
	EnvTelegramToken   = "TELEGRAM_TOKEN"
	EnvTelegramChatIDs = "TELEGRAM_CHAT_IDS"
)

// GateConfig is the complete configuration of one trade gate process
type GateConfig struct {
	Symbol       string        `yaml:"symbol"`
	Interval     string        `yaml:"interval"`
	CandleLimit  int           `yaml:"candle_limit"`
	PollInterval time.Duration `yaml:"poll_interval"`
	Debug        bool          `yaml:"debug"`
	LogDir       string        `yaml:"log_dir"`
	StateDir     string        `yaml:"state_dir"`

	Exchange      ExchangeConfig       `yaml:"exchange"`
	Ledger        ledger.Config        `yaml:"ledger"`
	Risk          risk.Config          `yaml:"risk"`
	Health        safety.HealthConfig  `yaml:"health"`
	Breaker       safety.BreakerConfig `yaml:"breaker"`
	Orchestrator  orchestrator.Config  `yaml:"orchestrator"`
	Journal       JournalConfig        `yaml:"journal"`
	Monitoring    MonitoringConfig     `yaml:"monitoring"`
	Notifications NotificationConfig   `yaml:"notifications"`
}

// ExchangeConfig selects and configures the venue
type ExchangeConfig struct {
	Name              string  `yaml:"name"`
	Testnet           bool    `yaml:"testnet"`
	Demo              bool    `yaml:"demo"`
	Category          string  `yaml:"category"`
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	PaperFeeRate      float64 `yaml:"paper_fee_rate"`

	APIKey    string `yaml:"-"`
	APISecret string `yaml:"-"`
}

// JournalConfig controls the SQLite decision journal
type JournalConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// MonitoringConfig controls the HTTP health and metrics server
type MonitoringConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// NotificationConfig controls Telegram alerts
type NotificationConfig struct {
	Enabled   bool     `yaml:"enabled"`
	ChatIDs   []string `yaml:"chat_ids"`
	QueueSize int      `yaml:"queue_size"`

	TelegramToken string `yaml:"-"`
}

// Load reads a YAML or JSON config file over the defaults, applies secrets
// from the environment and validates the result.
func Load(configFile string) (*GateConfig, error) {
	data, err := os.ReadFile(configFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", configFile, err)
	}
	return Parse(data)
}

// Parse decodes raw config bytes. Fields absent from data keep their defaults.
func Parse(data []byte) (*GateConfig, error) {
	config := Default()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	config.applyEnv()
	config.setDefaults()

	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return config, nil
}

// Validate checks a config that was built in code rather than loaded
func (c *GateConfig) Validate() error {
	c.setDefaults()
	return c.validate()
}

// applyEnv copies secrets from the environment
func (c *GateConfig) applyEnv() {
	c.Exchange.APIKey = getEnv(EnvBybitAPIKey, c.Exchange.APIKey)
	c.Exchange.APISecret = getEnv(EnvBybitAPISecret, c.Exchange.APISecret)
	c.Exchange.Testnet = getEnvBool(EnvBybitTestnet, c.Exchange.Testnet)
	c.Notifications.TelegramToken = getEnv(EnvTelegramToken, c.Notifications.TelegramToken)
	if ids := getEnv(EnvTelegramChatIDs, ""); ids != "" {
		c.Notifications.ChatIDs = splitList(ids)
	}
}

// setDefaults fills derived and empty values
func (c *GateConfig) setDefaults() {
	def := Default()

	if c.Symbol == "" {
		c.Symbol = def.Symbol
	}
	c.Symbol = strings.ToUpper(c.Symbol)
	if c.Interval == "" {
		c.Interval = def.Interval
	}
	if c.CandleLimit <= 0 {
		c.CandleLimit = def.CandleLimit
	}
	if c.PollInterval <= 0 {
		c.PollInterval = def.PollInterval
	}
	if c.LogDir == "" {
		c.LogDir = def.LogDir
	}
	if c.StateDir == "" {
		c.StateDir = def.StateDir
	}

	if c.Exchange.Name == "" {
		c.Exchange.Name = def.Exchange.Name
	}
	c.Exchange.Name = strings.ToLower(c.Exchange.Name)
	if c.Exchange.Category == "" {
		c.Exchange.Category = def.Exchange.Category
	}

	// The ledger cap follows the risk cap unless set on its own
	if c.Ledger.MaxPositionFraction <= 0 {
		c.Ledger.MaxPositionFraction = c.Risk.MaxPositionFraction
	}
	if c.Orchestrator.OrderTimeout <= 0 {
		c.Orchestrator.OrderTimeout = def.Orchestrator.OrderTimeout
	}
	if c.Health.ProbeTimeout <= 0 {
		c.Health.ProbeTimeout = def.Health.ProbeTimeout
	}
	if c.Health.MaxErrors <= 0 {
		c.Health.MaxErrors = def.Health.MaxErrors
	}

	if c.Journal.Path == "" {
		c.Journal.Path = filepath.Join(c.StateDir, "journal.db")
	}
	if c.Monitoring.Addr == "" {
		c.Monitoring.Addr = def.Monitoring.Addr
	}
	if c.Notifications.QueueSize <= 0 {
		c.Notifications.QueueSize = def.Notifications.QueueSize
	}
}

// validate validates the configuration
func (c *GateConfig) validate() error {
	if _, err := bybit.ParseInterval(c.Interval); err != nil {
		return fmt.Errorf("interval: %w", err)
	}

	if v := safety.NewValidator().ValidateSymbol(c.Symbol); !v.Valid {
		return fmt.Errorf("symbol: %s", v.Message)
	}

	if !(c.Ledger.InitialCapital > 0) || math.IsInf(c.Ledger.InitialCapital, 0) {
		return fmt.Errorf("initial capital must be greater than 0")
	}
	if err := fraction("ledger max position fraction", c.Ledger.MaxPositionFraction); err != nil {
		return err
	}
	if err := fraction("risk max position fraction", c.Risk.MaxPositionFraction); err != nil {
		return err
	}
	if err := fraction("max daily loss fraction", c.Risk.MaxDailyLossFraction); err != nil {
		return err
	}
	if err := fraction("stop loss fraction", c.Risk.StopLossFraction); err != nil {
		return err
	}
	if c.Risk.MaxTradesPerDay < 0 {
		return fmt.Errorf("max trades per day must not be negative")
	}
	if c.Risk.MinTimeBetweenTrades < 0 {
		return fmt.Errorf("min time between trades must not be negative")
	}
	if _, err := time.LoadLocation(c.Risk.TimeZone); err != nil {
		return fmt.Errorf("invalid trading time zone %q: %w", c.Risk.TimeZone, err)
	}

	if err := fraction("max capital loss fraction", c.Breaker.MaxCapitalLossFraction); err != nil {
		return err
	}
	if c.Breaker.MaxConsecutiveLosses <= 0 {
		return fmt.Errorf("max consecutive losses must be greater than 0")
	}
	if c.Breaker.MaxRuntime <= 0 {
		return fmt.Errorf("max runtime must be greater than 0")
	}

	if err := adapters.NewFactory().ValidateConfig(c.AdapterConfig()); err != nil {
		return fmt.Errorf("exchange config validation failed: %w", err)
	}

	if c.Notifications.Enabled {
		if c.Notifications.TelegramToken == "" {
			return fmt.Errorf("notifications enabled but %s is not set", EnvTelegramToken)
		}
		if len(c.Notifications.ChatIDs) == 0 {
			return fmt.Errorf("notifications enabled but no chat IDs configured")
		}
	}
	return nil
}

func fraction(name string, v float64) error {
	if !(v > 0 && v < 1) {
		return fmt.Errorf("%s must be between 0 and 1, got %v", name, v)
	}
	return nil
}

// AdapterConfig builds the exchange factory config
func (c *GateConfig) AdapterConfig() adapters.Config {
	return adapters.Config{
		Name: c.Exchange.Name,
		Bybit: bybit.Config{
			APIKey:            c.Exchange.APIKey,
			APISecret:         c.Exchange.APISecret,
			Testnet:           c.Exchange.Testnet,
			Demo:              c.Exchange.Demo,
			Category:          c.Exchange.Category,
			RequestsPerSecond: c.Exchange.RequestsPerSecond,
		},
		ProbeSymbol:  c.Symbol,
		PaperFeeRate: c.Exchange.PaperFeeRate,
	}
}

// LedgerStatePath is where the capital ledger persists its record
func (c *GateConfig) LedgerStatePath() string {
	return filepath.Join(c.StateDir, "ledger.json")
}

// BreakerStatePath is where the safety breaker persists its record
func (c *GateConfig) BreakerStatePath() string {
	return filepath.Join(c.StateDir, "breaker.json")
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return defaultVal
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
