package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"github.com/ducminhle1904/crypto-trade-gate/internal/bot"
	"github.com/ducminhle1904/crypto-trade-gate/internal/config"
	"github.com/ducminhle1904/crypto-trade-gate/internal/exchange"
	"github.com/ducminhle1904/crypto-trade-gate/internal/exchange/adapters"
	"github.com/ducminhle1904/crypto-trade-gate/internal/journal"
	"github.com/ducminhle1904/crypto-trade-gate/internal/ledger"
	"github.com/ducminhle1904/crypto-trade-gate/internal/logger"
	"github.com/ducminhle1904/crypto-trade-gate/internal/monitoring"
	"github.com/ducminhle1904/crypto-trade-gate/internal/notifications"
	"github.com/ducminhle1904/crypto-trade-gate/internal/orchestrator"
	"github.com/ducminhle1904/crypto-trade-gate/internal/risk"
	"github.com/ducminhle1904/crypto-trade-gate/internal/safety"
	"github.com/ducminhle1904/crypto-trade-gate/internal/state"
)

var runQueueSize int

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the trade gate control loop",
	Long: `Run polls market data, checks exits and the kill switch on every tick, and
feeds signals posted to /signals through the admission pipeline.

The loop stops on SIGINT/SIGTERM, or when the safety breaker trips.`,
	Args: cobra.NoArgs,
	RunE: runGate,
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().IntVar(&runQueueSize, "queue-size", 16, "maximum number of pending signals")
}

func runGate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	log, err := logger.NewLoggerWithDebug(cfg.Symbol, cfg.Interval, cfg.LogDir, cfg.Debug)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer log.Close()
	log.Info("Configuration: %s", cfg.Summary())

	venue, err := adapters.NewFactory().CreateExchange(cfg.AdapterConfig())
	if err != nil {
		return fmt.Errorf("failed to create exchange: %w", err)
	}

	gate, err := assemble(cfg, venue, log)
	if err != nil {
		return err
	}
	defer gate.close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if gate.server != nil {
		go func() {
			if err := gate.server.Start(); err != nil {
				log.LogError("monitoring server", err)
			}
		}()
	}

	printStartup(cmd, cfg, venue, log)

	err = gate.loop.Run(ctx)
	if errors.Is(err, bot.ErrHalted) {
		fmt.Fprintf(cmd.ErrOrStderr(), "🚨 %v\n", err)
		fmt.Fprintln(cmd.ErrOrStderr(), "Inspect the state, then clear it with: trade-gate breaker reset")
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), "Trade gate stopped")
	return err
}

// gateRuntime holds everything run starts so it can be torn down in order
type gateRuntime struct {
	loop       *bot.GateBot
	server     *monitoring.Server
	journal    *journal.SQLiteJournal
	dispatcher *notifications.Dispatcher
	log        *logger.Logger
}

// assemble builds the components from cfg around venue
func assemble(cfg *config.GateConfig, venue exchange.Exchange, log *logger.Logger) (*gateRuntime, error) {
	ledgerStore, err := state.NewFileStore(cfg.LedgerStatePath())
	if err != nil {
		return nil, fmt.Errorf("ledger state: %w", err)
	}
	breakerStore, err := state.NewFileStore(cfg.BreakerStatePath())
	if err != nil {
		return nil, fmt.Errorf("breaker state: %w", err)
	}

	capital := ledger.NewCapitalLedger(cfg.Ledger, ledgerStore, log)
	evaluator, err := risk.NewRiskEvaluator(cfg.Risk, log)
	if err != nil {
		return nil, err
	}
	health := safety.NewHealthMonitor(cfg.Health, log)
	breaker := safety.NewSafetyBreaker(cfg.Breaker, breakerStore, log)

	rt := &gateRuntime{log: log}
	metrics := monitoring.NewMetrics()
	opts := []orchestrator.Option{orchestrator.WithObserver(metrics)}

	if cfg.Notifications.Enabled {
		telegram := notifications.NewTelegramNotifier(cfg.Notifications.TelegramToken, cfg.Notifications.ChatIDs)
		rt.dispatcher = notifications.NewDispatcher(telegram, log, cfg.Notifications.QueueSize)
		opts = append(opts, orchestrator.WithNotifier(rt.dispatcher))
	}
	if cfg.Journal.Enabled {
		rt.journal, err = journal.NewSQLite(cfg.Journal.Path, log)
		if err != nil {
			rt.close()
			return nil, fmt.Errorf("journal: %w", err)
		}
		opts = append(opts, orchestrator.WithObserver(rt.journal))
	}

	orders, err := orchestrator.NewOrderManager(cfg.Orchestrator, orchestrator.Components{
		Ledger:  capital,
		Risk:    evaluator,
		Health:  health,
		Breaker: breaker,
		Venue:   venue,
	}, log, opts...)
	if err != nil {
		rt.close()
		return nil, err
	}

	queue := bot.NewQueueSource(cfg.Symbol, runQueueSize)
	rt.loop, err = bot.NewGateBot(bot.Config{
		Symbol:       cfg.Symbol,
		Interval:     cfg.Interval,
		CandleLimit:  cfg.CandleLimit,
		PollInterval: cfg.PollInterval,
	}, bot.Components{
		Market:  venue,
		Venue:   venue,
		Orders:  orders,
		Ledger:  capital,
		Risk:    evaluator,
		Health:  health,
		Breaker: breaker,
		Source:  queue,
		Metrics: metrics,
	}, log)
	if err != nil {
		rt.close()
		return nil, err
	}

	if cfg.Monitoring.Enabled {
		rt.server = monitoring.NewServer(cfg.Monitoring.Addr, monitoring.Sources{
			Ledger:  capital,
			Risk:    evaluator,
			Health:  health,
			Breaker: breaker,
		}, metrics, queue, log)
	}
	return rt, nil
}

func (rt *gateRuntime) close() {
	if rt.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := rt.server.Shutdown(ctx); err != nil {
			rt.log.LogError("monitoring shutdown", err)
		}
		cancel()
	}
	if rt.dispatcher != nil {
		rt.dispatcher.Close()
	}
	if rt.journal != nil {
		if err := rt.journal.Close(); err != nil {
			rt.log.LogError("journal close", err)
		}
	}
}

func printStartup(cmd *cobra.Command, cfg *config.GateConfig, venue exchange.Exchange, log *logger.Logger) {
	t := table.NewWriter()
	t.SetOutputMirror(cmd.OutOrStdout())
	t.SetTitle("TRADE GATE")
	t.SetStyle(table.StyleRounded)

	monitoringAddr := "disabled"
	if cfg.Monitoring.Enabled {
		monitoringAddr = cfg.Monitoring.Addr
	}
	t.AppendRows([]table.Row{
		{"📊 Symbol", cfg.Symbol},
		{"⏰ Interval", fmt.Sprintf("%s (poll %s)", cfg.Interval, cfg.PollInterval)},
		{"🏪 Exchange", venue.Name()},
		{"💰 Initial capital", fmt.Sprintf("$%.2f", cfg.Ledger.InitialCapital)},
		{"📏 Max position", fmt.Sprintf("%.1f%%", cfg.Risk.MaxPositionFraction*100)},
		{"🛑 Kill switch", fmt.Sprintf("loss %.0f%% / %d losses / %s", cfg.Breaker.MaxCapitalLossFraction*100, cfg.Breaker.MaxConsecutiveLosses, cfg.Breaker.MaxRuntime)},
		{"🌐 Monitoring", monitoringAddr},
		{"📝 Log file", log.GetLogPath()},
	})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, WidthMin: 18, WidthMax: 18, Align: text.AlignLeft},
		{Number: 2, WidthMin: 30, WidthMax: 50, Align: text.AlignLeft},
	})
	t.Render()
}
