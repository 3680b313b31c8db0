package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ducminhle1904/crypto-trade-gate/internal/exchange/adapters"
	"github.com/ducminhle1904/crypto-trade-gate/internal/ledger"
	"github.com/ducminhle1904/crypto-trade-gate/internal/orchestrator"
	"github.com/ducminhle1904/crypto-trade-gate/internal/risk"
	"github.com/ducminhle1904/crypto-trade-gate/internal/safety"
)

// Default returns the configuration used for every field a file leaves out
func Default() *GateConfig {
	return &GateConfig{
		Symbol:       "BTCUSDT",
		Interval:     "5m",
		CandleLimit:  100,
		PollInterval: 60 * time.Second,
		LogDir:       "logs",
		StateDir:     "state",
		Exchange: ExchangeConfig{
			Name:              "paper",
			Testnet:           true,
			Category:          "spot",
			RequestsPerSecond: 5,
			PaperFeeRate:      adapters.DefaultPaperFeeRate,
		},
		Ledger:       ledger.DefaultConfig(),
		Risk:         risk.DefaultConfig(),
		Health:       safety.DefaultHealthConfig(),
		Breaker:      safety.DefaultBreakerConfig(),
		Orchestrator: orchestrator.DefaultConfig(),
		Journal:      JournalConfig{Enabled: true},
		Monitoring: MonitoringConfig{
			Enabled: true,
			Addr:    ":8080",
		},
		Notifications: NotificationConfig{QueueSize: 64},
	}
}

// Write saves config as YAML, creating the directory if needed. Secrets are
// not written.
func Write(config *GateConfig, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Summary renders the effective settings on a few lines for startup logs
func (c *GateConfig) Summary() string {
	return fmt.Sprintf(
		"symbol=%s interval=%s poll=%s exchange=%s capital=%.2f max_position=%.1f%% daily_loss=%.1f%% capital_loss=%.1f%% max_losses=%d runtime=%s",
		c.Symbol, c.Interval, c.PollInterval, c.Exchange.Name,
		c.Ledger.InitialCapital, c.Risk.MaxPositionFraction*100, c.Risk.MaxDailyLossFraction*100,
		c.Breaker.MaxCapitalLossFraction*100, c.Breaker.MaxConsecutiveLosses, c.Breaker.MaxRuntime,
	)
}
