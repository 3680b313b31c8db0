package bybit

import (
	"context"

	bybit_api "github.com/bybit-exchange/bybit.go.api"

	"github.com/ducminhle1904/crypto-trade-gate/internal/safety"
)

// Client wraps the Bybit API client with request throttling and instrument
// caching
type Client struct {
	httpClient  *bybit_api.Client
	config      Config
	limiter     *safety.RateLimiter
	instruments *InstrumentManager
}

// Config holds the configuration for the Bybit client
type Config struct {
	APIKey    string
	APISecret string
	Testnet   bool
	Demo      bool // Demo trading environment
	Category  string
	// RequestsPerSecond caps outgoing REST calls
	RequestsPerSecond float64
}

// NewClient creates a new Bybit client
func NewClient(config Config) *Client {
	var baseURL string
	if config.Demo {
		baseURL = "https://api-demo.bybit.com"
	} else if config.Testnet {
		baseURL = bybit_api.TESTNET
	} else {
		baseURL = bybit_api.MAINNET
	}
	if config.Category == "" {
		config.Category = "spot"
	}
	if config.RequestsPerSecond <= 0 {
		config.RequestsPerSecond = 10
	}

	httpClient := bybit_api.NewBybitHttpClient(
		config.APIKey,
		config.APISecret,
		bybit_api.WithBaseURL(baseURL),
	)

	c := &Client{
		httpClient: httpClient,
		config:     config,
		limiter:    safety.NewRateLimiter("bybit", int(config.RequestsPerSecond), config.RequestsPerSecond),
	}
	c.instruments = NewInstrumentManager(c)
	return c
}

// Category returns the product category orders and quotes are sent to
func (c *Client) Category() string {
	return c.config.Category
}

// GetEnvironment returns a string describing the current environment
func (c *Client) GetEnvironment() string {
	switch {
	case c.config.Demo:
		return "demo"
	case c.config.Testnet:
		return "testnet"
	default:
		return "mainnet"
	}
}

// throttle waits for a request slot
func (c *Client) throttle(ctx context.Context) error {
	return c.limiter.Wait(ctx)
}
