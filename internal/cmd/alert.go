package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/floorlens/floorlens/internal/core"
	"github.com/floorlens/floorlens/internal/core/engine"
	"github.com/floorlens/floorlens/internal/core/store"
	"github.com/floorlens/floorlens/internal/observability"
	"github.com/floorlens/floorlens/internal/output"
)

var (
	alertDirection  string
	alertTarget     float64
	alertListOutput string
)

var alertCmd = &cobra.Command{
	Use:   "alert",
	Short: "Manage floor-price alerts",
	Long: `Manage floor-price alerts.

An alert fires every time the collection floor crosses its threshold when
the watcher polls. Alerts stay active after firing; deactivate them to
silence them without losing the configuration.`,
}

var alertCreateCmd = &cobra.Command{
	Use:   "create <collection>",
	Short: "Create a floor-price alert",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		db, err := openStore(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer db.Close() // nolint:errcheck // best-effort cleanup

		alerts := engine.NewAlertStore()
		alert, err := alerts.Create(engine.AlertParams{
			Collection:  args[0],
			Direction:   core.AlertDirection(alertDirection),
			TargetPrice: alertTarget,
		})
		if err != nil {
			return err
		}

		if err := db.SaveAlert(cmd.Context(), alert); err != nil {
			return err
		}

		observability.CLILogger.Info("Alert created",
			zap.String("id", alert.ID),
			zap.String("collection", alert.Collection),
			zap.String("direction", string(alert.Direction)),
			zap.Float64("target_price", alert.TargetPrice))
		fmt.Println(alert.ID)
		return nil
	},
}

var alertListCmd = &cobra.Command{
	Use:   "list",
	Short: "List alerts",
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := output.ParseFormat(alertListOutput)
		if err != nil {
			return err
		}

		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		db, err := openStore(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer db.Close() // nolint:errcheck // best-effort cleanup

		alerts, err := restoreAlerts(cmd.Context(), db)
		if err != nil {
			return err
		}

		if format == output.FormatJSON {
			formatter := &output.JSONFormatter{Indent: true}
			rendered, err := formatter.Format(alerts.List())
			if err != nil {
				return err
			}
			fmt.Println(rendered)
			return nil
		}

		formatter := &output.TableFormatter{}
		fmt.Println(formatter.FormatAlerts(alerts.List()))
		return nil
	},
}

var alertDeactivateCmd = &cobra.Command{
	Use:   "deactivate <id>",
	Short: "Silence an alert without removing it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return transitionAlert(cmd.Context(), args[0], "Alert deactivated", (*engine.AlertStore).Deactivate)
	},
}

var alertActivateCmd = &cobra.Command{
	Use:   "activate <id>",
	Short: "Re-enable a silenced alert",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return transitionAlert(cmd.Context(), args[0], "Alert activated", (*engine.AlertStore).Activate)
	},
}

var alertRemoveCmd = &cobra.Command{
	Use:   "remove <id>",
	Short: "Remove an alert",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		db, err := openStore(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer db.Close() // nolint:errcheck // best-effort cleanup

		if err := db.DeleteAlert(cmd.Context(), args[0]); err != nil {
			return err
		}

		observability.CLILogger.Info("Alert removed", zap.String("id", args[0]))
		return nil
	},
}

func transitionAlert(ctx context.Context, id, msg string, op func(*engine.AlertStore, string) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	db, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close() // nolint:errcheck // best-effort cleanup

	alerts, err := restoreAlerts(ctx, db)
	if err != nil {
		return err
	}

	if err := op(alerts, id); err != nil {
		return err
	}

	alert, _ := alerts.Get(id)
	if err := db.SaveAlert(ctx, alert); err != nil {
		return err
	}

	observability.CLILogger.Info(msg, zap.String("id", id))
	return nil
}

// restoreAlerts loads durable alerts into an in-memory store.
func restoreAlerts(ctx context.Context, db *store.Store) (*engine.AlertStore, error) {
	saved, err := db.LoadAlerts(ctx)
	if err != nil {
		return nil, err
	}

	alerts := engine.NewAlertStore()
	for _, alert := range saved {
		alerts.Restore(alert)
	}
	return alerts, nil
}

func init() {
	rootCmd.AddCommand(alertCmd)
	alertCmd.AddCommand(alertCreateCmd)
	alertCmd.AddCommand(alertListCmd)
	alertCmd.AddCommand(alertDeactivateCmd)
	alertCmd.AddCommand(alertActivateCmd)
	alertCmd.AddCommand(alertRemoveCmd)

	alertCreateCmd.Flags().StringVar(&alertDirection, "direction", "above", "fire when the floor is above|below the target")
	alertCreateCmd.Flags().Float64Var(&alertTarget, "target", 0, "threshold price (required)")
	_ = alertCreateCmd.MarkFlagRequired("target")

	alertListCmd.Flags().StringVar(&alertListOutput, "output-format", string(output.FormatTable), "Output format: table|json")
}
