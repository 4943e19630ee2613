package cmd

import (
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/spf13/cobra"

	"github.com/floorlens/floorlens/internal/config"
	"github.com/floorlens/floorlens/internal/core/engine"
	"github.com/floorlens/floorlens/internal/output"
)

var rateLimitListOutput string

var rateLimitCmd = &cobra.Command{
	Use:   "rate-limit",
	Short: "Inspect rate limit configuration",
}

var rateLimitListCmd = &cobra.Command{
	Use:   "list",
	Short: "List effective rate limits",
	Long: `List effective rate limits.

Shows the default window plus every per-service override from the
configuration, as the watcher and server would apply them.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := output.ParseFormat(rateLimitListOutput)
		if err != nil {
			return err
		}

		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		limiter := buildLimiter(cfg)

		if format == output.FormatJSON {
			formatter := &output.JSONFormatter{Indent: true}
			rendered, err := formatter.Format(limiter.Configs())
			if err != nil {
				return err
			}
			fmt.Println(rendered)
			return nil
		}

		formatter := &output.TableFormatter{}
		fmt.Println(formatter.FormatRateLimits(limiter))
		return nil
	},
}

var rateLimitResetCmd = &cobra.Command{
	Use:   "reset <service>",
	Short: "Clear the admission window for a service on a running server",
	Long: `Clear the admission window for a service on a running server.

Sends the reset to the API of the floorlens server configured in
server.host and server.port. The next request to the service is admitted
as if the window were empty.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		service := args[0]
		endpoint := fmt.Sprintf("http://%s:%d/api/v1/rate-limits/%s",
			cfg.Server.Host, cfg.Server.Port, url.PathEscape(service))

		req, err := http.NewRequestWithContext(cmd.Context(), http.MethodDelete, endpoint, nil)
		if err != nil {
			return err
		}

		resp, err := (&http.Client{Timeout: 10 * time.Second}).Do(req)
		if err != nil {
			return fmt.Errorf("reset rate limit for %s: %w", service, err)
		}
		defer resp.Body.Close() // nolint:errcheck // best-effort cleanup on HTTP response body

		if resp.StatusCode != http.StatusNoContent {
			return fmt.Errorf("reset rate limit for %s: server returned %s", service, resp.Status)
		}

		fmt.Printf("Rate limit window for %s cleared\n", service)
		return nil
	},
}

// buildLimiter constructs a rate limiter from configuration defaults and
// per-service overrides.
func buildLimiter(cfg *config.Config) *engine.RateLimiter {
	limiter := engine.NewRateLimiter(engine.RateLimitConfig{
		MaxRequests: cfg.RateLimits.MaxRequests,
		Window:      cfg.RateLimits.Window,
	})
	for service, limit := range cfg.RateLimits.Services {
		limiter.SetLimit(service, engine.RateLimitConfig{
			MaxRequests: limit.MaxRequests,
			Window:      limit.Window,
		})
	}
	return limiter
}

func init() {
	rootCmd.AddCommand(rateLimitCmd)
	rateLimitCmd.AddCommand(rateLimitListCmd)
	rateLimitCmd.AddCommand(rateLimitResetCmd)

	rateLimitListCmd.Flags().StringVar(&rateLimitListOutput, "output-format", string(output.FormatTable), "Output format: table|json")
}
