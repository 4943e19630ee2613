package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/floorlens/floorlens/internal/core"
	"github.com/floorlens/floorlens/internal/core/engine"
	"github.com/floorlens/floorlens/internal/core/store"
	"github.com/floorlens/floorlens/internal/observability"
	"github.com/floorlens/floorlens/internal/output"
)

var (
	triggerMaxPrice    float64
	triggerUnit        string
	triggerMaxRetries  int
	triggerStopOnError bool
	triggerListOutput  string
	triggerImportFile  string
)

var triggerCmd = &cobra.Command{
	Use:   "trigger",
	Short: "Manage auto-buy triggers",
	Long: `Manage auto-buy triggers.

A trigger watches one collection and acquires the cheapest listing priced
at or below its ceiling the next time the watcher polls. Triggers created
here are picked up by "floorlens watch".`,
}

var triggerCreateCmd = &cobra.Command{
	Use:   "create <collection>",
	Short: "Create an auto-buy trigger",
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

		positions := engine.NewPositionStore()
		pos, err := positions.Create(engine.TriggerParams{
			Collection:  args[0],
			MaxPrice:    triggerMaxPrice,
			Unit:        core.PaymentUnit(triggerUnit),
			MaxRetries:  triggerMaxRetries,
			StopOnError: triggerStopOnError,
		})
		if err != nil {
			return err
		}

		if err := db.SavePosition(cmd.Context(), pos); err != nil {
			return err
		}

		observability.CLILogger.Info("Trigger created",
			zap.String("id", pos.ID),
			zap.String("collection", pos.Collection),
			zap.Float64("max_price", pos.MaxPrice),
			zap.String("unit", string(pos.Unit)))
		fmt.Println(pos.ID)
		return nil
	},
}

var triggerListCmd = &cobra.Command{
	Use:   "list",
	Short: "List triggers",
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := output.ParseFormat(triggerListOutput)
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

		positions, err := restorePositions(cmd.Context(), db)
		if err != nil {
			return err
		}

		if format == output.FormatJSON {
			formatter := &output.JSONFormatter{Indent: true}
			rendered, err := formatter.Format(positions.List())
			if err != nil {
				return err
			}
			fmt.Println(rendered)
			return nil
		}

		formatter := &output.TableFormatter{}
		fmt.Println(formatter.FormatPositions(positions.List()))
		return nil
	},
}

var triggerStopCmd = &cobra.Command{
	Use:   "stop <id>",
	Short: "Pause a trigger without removing it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return transitionTrigger(cmd.Context(), args[0], "Trigger stopped", (*engine.PositionStore).Stop)
	},
}

var triggerResumeCmd = &cobra.Command{
	Use:   "resume <id>",
	Short: "Reactivate a stopped trigger",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return transitionTrigger(cmd.Context(), args[0], "Trigger resumed", (*engine.PositionStore).Resume)
	},
}

var triggerRemoveCmd = &cobra.Command{
	Use:   "remove <id>",
	Short: "Remove a trigger",
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

		if err := db.DeletePosition(cmd.Context(), args[0]); err != nil {
			return err
		}

		observability.CLILogger.Info("Trigger removed", zap.String("id", args[0]))
		return nil
	},
}

// triggerImportSpec is one entry of a YAML import file.
type triggerImportSpec struct {
	Collection  string  `yaml:"collection"`
	MaxPrice    float64 `yaml:"max_price"`
	Unit        string  `yaml:"unit"`
	MaxRetries  int     `yaml:"max_retries"`
	StopOnError bool    `yaml:"stop_on_error"`
}

var triggerImportCmd = &cobra.Command{
	Use:   "import",
	Short: "Bulk-create triggers from a YAML file",
	Long: `Bulk-create triggers from a YAML file.

The file holds a list of trigger definitions:

  - collection: cool-cats
    max_price: 0.5
    unit: eth
  - collection: doodles
    max_price: 1.2
    max_retries: 5
    stop_on_error: true`,
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(triggerImportFile)
		if err != nil {
			return fmt.Errorf("read import file: %w", err)
		}

		var specs []triggerImportSpec
		if err := yaml.Unmarshal(data, &specs); err != nil {
			return fmt.Errorf("parse import file: %w", err)
		}
		if len(specs) == 0 {
			return fmt.Errorf("import file contains no triggers")
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

		positions := engine.NewPositionStore()
		for i, spec := range specs {
			pos, err := positions.Create(engine.TriggerParams{
				Collection:  spec.Collection,
				MaxPrice:    spec.MaxPrice,
				Unit:        core.PaymentUnit(spec.Unit),
				MaxRetries:  spec.MaxRetries,
				StopOnError: spec.StopOnError,
			})
			if err != nil {
				return fmt.Errorf("entry %d: %w", i+1, err)
			}
			if err := db.SavePosition(cmd.Context(), pos); err != nil {
				return fmt.Errorf("entry %d: %w", i+1, err)
			}
			fmt.Println(pos.ID)
		}

		observability.CLILogger.Info("Triggers imported",
			zap.Int("count", len(specs)),
			zap.String("file", triggerImportFile))
		return nil
	},
}

func transitionTrigger(ctx context.Context, id, msg string, op func(*engine.PositionStore, string) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	db, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close() // nolint:errcheck // best-effort cleanup

	positions, err := restorePositions(ctx, db)
	if err != nil {
		return err
	}

	if err := op(positions, id); err != nil {
		return err
	}

	pos, _ := positions.Get(id)
	if err := db.SavePosition(ctx, pos); err != nil {
		return err
	}

	observability.CLILogger.Info(msg, zap.String("id", id))
	return nil
}

// restorePositions loads durable trigger positions into an in-memory store.
func restorePositions(ctx context.Context, db *store.Store) (*engine.PositionStore, error) {
	saved, err := db.LoadPositions(ctx)
	if err != nil {
		return nil, err
	}

	positions := engine.NewPositionStore()
	for _, pos := range saved {
		positions.Restore(pos)
	}
	return positions, nil
}

func init() {
	rootCmd.AddCommand(triggerCmd)
	triggerCmd.AddCommand(triggerCreateCmd)
	triggerCmd.AddCommand(triggerListCmd)
	triggerCmd.AddCommand(triggerStopCmd)
	triggerCmd.AddCommand(triggerResumeCmd)
	triggerCmd.AddCommand(triggerRemoveCmd)
	triggerCmd.AddCommand(triggerImportCmd)

	triggerCreateCmd.Flags().Float64Var(&triggerMaxPrice, "max-price", 0, "price ceiling (required)")
	triggerCreateCmd.Flags().StringVar(&triggerUnit, "unit", "eth", "price unit: eth|wei")
	triggerCreateCmd.Flags().IntVar(&triggerMaxRetries, "max-retries", 0, "purchase attempts before the trigger gives up (default 3)")
	triggerCreateCmd.Flags().BoolVar(&triggerStopOnError, "stop-on-error", false, "stop instead of failing when attempts are exhausted")
	_ = triggerCreateCmd.MarkFlagRequired("max-price")

	triggerListCmd.Flags().StringVar(&triggerListOutput, "output-format", string(output.FormatTable), "Output format: table|json")

	triggerImportCmd.Flags().StringVar(&triggerImportFile, "file", "", "YAML file with trigger definitions (required)")
	_ = triggerImportCmd.MarkFlagRequired("file")
}
