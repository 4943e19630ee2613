package output

import (
	"fmt"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/floorlens/floorlens/internal/core"
	"github.com/floorlens/floorlens/internal/core/engine"
)

// TableFormatter renders toolkit state as ASCII tables.
type TableFormatter struct{}

// FormatPositions renders trigger positions as a table.
func (f *TableFormatter) FormatPositions(positions []core.TriggerPosition) string {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"ID", "Collection", "Max Price", "Status", "Attempts", "Last Checked", "Notes"})

	for _, pos := range positions {
		t.AppendRow(table.Row{
			shortID(pos.ID),
			pos.Collection,
			fmt.Sprintf("%g %s", pos.MaxPrice, pos.Unit),
			string(pos.Status),
			fmt.Sprintf("%d/%d", pos.Attempts, pos.MaxRetries),
			formatTime(pos.LastCheckedAt),
			positionNotes(pos),
		})
	}

	return t.Render()
}

// FormatAlerts renders price alerts as a table.
func (f *TableFormatter) FormatAlerts(alerts []core.PriceAlert) string {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"ID", "Collection", "Condition", "Status", "Last Price", "Last Triggered"})

	for _, alert := range alerts {
		t.AppendRow(table.Row{
			shortID(alert.ID),
			alert.Collection,
			fmt.Sprintf("%s %g", alert.Direction, alert.TargetPrice),
			string(alert.Status),
			formatPrice(alert.LastPrice),
			formatTime(alert.LastTriggeredAt),
		})
	}

	return t.Render()
}

// FormatRateLimits renders per-service admission state as a table.
func (f *TableFormatter) FormatRateLimits(limiter *engine.RateLimiter) string {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"Service", "Limit", "Window", "In Window", "Wait"})

	for _, service := range limiter.Services() {
		cfg := limiter.Limit(service)
		t.AppendRow(table.Row{
			service,
			cfg.MaxRequests,
			cfg.Window.String(),
			limiter.InWindow(service),
			limiter.WaitTime(service).Round(time.Millisecond).String(),
		})
	}

	return t.Render()
}

// FormatTradeEvents renders the trade audit log as a table.
func (f *TableFormatter) FormatTradeEvents(events []core.TradeEvent) string {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"When", "Kind", "Collection", "Asset", "Price", "Tx / Error"})

	for _, event := range events {
		detail := event.TxHash
		if event.Kind == core.TradeFailed {
			detail = event.Error
		}
		t.AppendRow(table.Row{
			formatTime(event.OccurredAt),
			string(event.Kind),
			event.Collection,
			event.AssetID,
			formatPrice(event.Price),
			detail,
		})
	}

	return t.Render()
}

func positionNotes(pos core.TriggerPosition) string {
	if pos.Fulfillment != nil {
		return fmt.Sprintf("bought %s @ %g (%s)", pos.Fulfillment.AssetID, pos.Fulfillment.Price, shortID(pos.Fulfillment.TxHash))
	}
	return pos.LastError
}

func shortID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8]
}

func formatTime(ts time.Time) string {
	if ts.IsZero() {
		return "-"
	}
	return ts.UTC().Format(time.RFC3339)
}

func formatPrice(price float64) string {
	if price == 0 {
		return "-"
	}
	return fmt.Sprintf("%g", price)
}
