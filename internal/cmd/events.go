package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/floorlens/floorlens/internal/output"
)

var (
	eventsLimit      int
	eventsListOutput string
)

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Show the trade audit log",
	Long: `Show the trade audit log.

Every fulfilled or exhausted trigger leaves a trade event behind. Events
are listed newest first.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := output.ParseFormat(eventsListOutput)
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

		events, err := db.ListTradeEvents(cmd.Context(), eventsLimit)
		if err != nil {
			return err
		}

		if format == output.FormatJSON {
			formatter := &output.JSONFormatter{Indent: true}
			rendered, err := formatter.Format(events)
			if err != nil {
				return err
			}
			fmt.Println(rendered)
			return nil
		}

		formatter := &output.TableFormatter{}
		fmt.Println(formatter.FormatTradeEvents(events))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(eventsCmd)

	eventsCmd.Flags().IntVar(&eventsLimit, "limit", 50, "maximum number of events to show (0 for all)")
	eventsCmd.Flags().StringVar(&eventsListOutput, "output-format", string(output.FormatTable), "Output format: table|json")
}
