package cmd

import (
	"context"
	"time"

	"github.com/fulmenhq/gofulmen/signals"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/floorlens/floorlens/internal/config"
	"github.com/floorlens/floorlens/internal/core"
	"github.com/floorlens/floorlens/internal/core/engine"
	"github.com/floorlens/floorlens/internal/core/execution"
	"github.com/floorlens/floorlens/internal/core/marketdata"
	"github.com/floorlens/floorlens/internal/observability"
)

var watchMetrics bool

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Run the acquisition and alert engines",
	Long: `Run the acquisition and alert engines in the foreground.

The watcher polls floor prices for every active trigger and alert,
acquires listings that match a trigger's price ceiling, and fires alerts
whose thresholds are crossed. Trigger and alert state is persisted, so
the watcher picks up where it left off after a restart.

Press Ctrl+C or send SIGTERM for a graceful shutdown.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		logger := observability.CLILogger

		if watchMetrics && cfg.Metrics.Enabled {
			if err := observability.InitMetrics("floorlens", cfg.Metrics.Port); err != nil {
				logger.Warn("Failed to initialize metrics, continuing without", zap.Error(err))
			}
		}

		db, err := openStore(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer db.Close() // nolint:errcheck // best-effort cleanup

		positions, err := restorePositions(cmd.Context(), db)
		if err != nil {
			return err
		}
		alerts, err := restoreAlerts(cmd.Context(), db)
		if err != nil {
			return err
		}

		limiter := buildLimiter(cfg)
		market := &marketdata.Client{
			BaseURL: cfg.Market.BaseURL,
			APIKey:  cfg.Market.APIKey,
		}
		wallet := &execution.Client{
			BaseURL: cfg.Execution.BaseURL,
			APIKey:  cfg.Execution.APIKey,
		}

		scheduler := &engine.Scheduler{
			Positions: positions,
			Market:    market,
			Execution: wallet,
			Limiter:   limiter,
			Listings:  engine.NewCache[[]core.Listing](cfg.Acquisition.ListingsTTL),
			Events:    db,
			Logger:    logger,
			Config:    schedulerConfig(cfg),
		}
		alertEngine := &engine.AlertEngine{
			Alerts:   alerts,
			Market:   market,
			Limiter:  limiter,
			Listings: engine.NewCache[[]core.Listing](cfg.Alerts.ListingsTTL),
			Logger:   logger,
			Config: engine.AlertEngineConfig{
				Interval:     cfg.Alerts.Interval,
				FetchTimeout: cfg.Market.Timeout,
				ListingsTTL:  cfg.Alerts.ListingsTTL,
			},
		}

		// Persist engine outcomes as they happen. Persistence uses a
		// background context so shutdown does not lose the final writes.
		scheduler.OnFulfilled(func(pos core.TriggerPosition, f core.Fulfillment) {
			logger.Info("Trigger fulfilled",
				zap.String("id", pos.ID),
				zap.String("collection", pos.Collection),
				zap.String("asset_id", f.AssetID),
				zap.Float64("price", f.Price),
				zap.String("tx_hash", f.TxHash))
			if err := db.SavePosition(context.Background(), pos); err != nil {
				logger.Warn("Failed to persist fulfilled trigger", zap.String("id", pos.ID), zap.Error(err))
			}
		})
		scheduler.OnError(func(pos core.TriggerPosition, err error) {
			logger.Warn("Trigger attempt failed",
				zap.String("id", pos.ID),
				zap.String("collection", pos.Collection),
				zap.Int("attempts", pos.Attempts),
				zap.String("status", string(pos.Status)),
				zap.Error(err))
			if err := db.SavePosition(context.Background(), pos); err != nil {
				logger.Warn("Failed to persist trigger state", zap.String("id", pos.ID), zap.Error(err))
			}
		})
		alertEngine.SubscribeAll(func(alert core.PriceAlert, event core.AlertEvent) {
			logger.Info("Alert fired",
				zap.String("id", alert.ID),
				zap.String("collection", alert.Collection),
				zap.String("direction", string(alert.Direction)),
				zap.Float64("target", event.Target),
				zap.Float64("price", event.Price))
			if err := db.SaveAlert(context.Background(), alert); err != nil {
				logger.Warn("Failed to persist alert state", zap.String("id", alert.ID), zap.Error(err))
			}
		})

		scheduler.Start(cmd.Context())
		alertEngine.Start(cmd.Context())
		logger.Info("Watcher started",
			zap.Int("triggers", len(positions.List())),
			zap.Int("alerts", len(alerts.List())),
			zap.Duration("acquisition_interval", scheduler.Config.Interval),
			zap.Duration("alert_interval", alertEngine.Config.Interval))

		done := make(chan struct{})
		signals.OnShutdown(func(ctx context.Context) error {
			logger.Info("Stopping engines...")
			scheduler.Stop()
			alertEngine.Stop()

			// Snapshot every position and alert so attempts and
			// last-checked times survive the restart.
			for _, pos := range positions.List() {
				if err := db.SavePosition(context.Background(), pos); err != nil {
					logger.Warn("Failed to persist trigger state", zap.String("id", pos.ID), zap.Error(err))
				}
			}
			for _, alert := range alerts.List() {
				if err := db.SaveAlert(context.Background(), alert); err != nil {
					logger.Warn("Failed to persist alert state", zap.String("id", alert.ID), zap.Error(err))
				}
			}

			close(done)
			return nil
		})

		if err := signals.EnableDoubleTap(signals.DoubleTapConfig{
			Window:  2 * time.Second,
			Message: "Press Ctrl+C again within 2 seconds to force quit",
		}); err != nil {
			logger.Warn("Failed to enable double-tap force quit", zap.Error(err))
		}

		errChan := make(chan error, 1)
		go func() {
			if err := signals.Listen(cmd.Context()); err != nil {
				errChan <- err
			}
		}()

		select {
		case err := <-errChan:
			return err
		case <-done:
			logger.Info("Watcher stopped")
			return nil
		}
	},
}

func schedulerConfig(cfg *config.Config) engine.SchedulerConfig {
	sc := engine.DefaultSchedulerConfig
	if cfg.Acquisition.Interval > 0 {
		sc.Interval = cfg.Acquisition.Interval
	}
	if cfg.Market.Timeout > 0 {
		sc.FetchTimeout = cfg.Market.Timeout
	}
	if cfg.Acquisition.SubmitTimeout > 0 {
		sc.SubmitTimeout = cfg.Acquisition.SubmitTimeout
	}
	if cfg.Acquisition.ListingsTTL > 0 {
		sc.ListingsTTL = cfg.Acquisition.ListingsTTL
	}
	if cfg.Acquisition.MaxRetries > 0 {
		sc.Retry.MaxRetries = cfg.Acquisition.MaxRetries
	}
	if cfg.Acquisition.InitialDelay > 0 {
		sc.Retry.InitialDelay = cfg.Acquisition.InitialDelay
	}
	if cfg.Acquisition.MaxDelay > 0 {
		sc.Retry.MaxDelay = cfg.Acquisition.MaxDelay
	}
	if cfg.Acquisition.Multiplier >= 1 {
		sc.Retry.BackoffMultiplier = cfg.Acquisition.Multiplier
	}
	return sc
}

func init() {
	rootCmd.AddCommand(watchCmd)

	watchCmd.Flags().BoolVar(&watchMetrics, "metrics", false, "expose Prometheus metrics while watching")
}
