package adapters

import (
	"fmt"
	"strings"

	"github.com/ducminhle1904/crypto-trade-gate/internal/exchange"
	"github.com/ducminhle1904/crypto-trade-gate/internal/exchange/bybit"
)

// Config selects and configures a venue
type Config struct {
	Name         string
	Bybit        bybit.Config
	ProbeSymbol  string
	PaperFeeRate float64
}

// Factory creates exchange instances based on configuration
type Factory struct{}

// NewFactory creates a new exchange factory instance
func NewFactory() *Factory {
	return &Factory{}
}

// CreateExchange creates an exchange instance based on the provided configuration.
// The paper venue reads public Bybit market data and simulates fills.
func (f *Factory) CreateExchange(config Config) (exchange.Exchange, error) {
	if err := f.ValidateConfig(config); err != nil {
		return nil, err
	}

	switch normalizeName(config.Name) {
	case "bybit":
		adapter, err := NewBybitAdapter(config.Bybit, config.ProbeSymbol)
		if err != nil {
			return nil, err
		}
		return adapter, nil
	case "paper":
		market := NewBybitMarketData(config.Bybit, config.ProbeSymbol)
		return NewPaperVenue(market, config.PaperFeeRate), nil
	}
	return nil, unsupported(config.Name)
}

// GetSupportedExchanges returns a list of supported exchange names
func (f *Factory) GetSupportedExchanges() []string {
	return []string{"bybit", "paper"}
}

// ValidateConfig validates the exchange configuration
func (f *Factory) ValidateConfig(config Config) error {
	switch normalizeName(config.Name) {
	case "":
		return &exchange.ExchangeError{
			Kind:    exchange.KindConfig,
			Code:    "MISSING_EXCHANGE_NAME",
			Message: "exchange name is required",
		}
	case "bybit":
		if config.Bybit.APIKey == "" || config.Bybit.APISecret == "" {
			return exchange.ErrMissingCredentials
		}
		return nil
	case "paper":
		if config.PaperFeeRate < 0 || config.PaperFeeRate >= 1 {
			return &exchange.ExchangeError{
				Kind:    exchange.KindConfig,
				Code:    "INVALID_FEE_RATE",
				Message: fmt.Sprintf("paper fee rate %.4f outside [0, 1)", config.PaperFeeRate),
			}
		}
		return nil
	}
	return unsupported(config.Name)
}

func normalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

func unsupported(name string) error {
	return &exchange.ExchangeError{
		Kind:    exchange.KindConfig,
		Code:    "UNSUPPORTED_EXCHANGE",
		Message: fmt.Sprintf("exchange '%s' is not supported", name),
		Details: "supported exchanges: bybit, paper",
	}
}
