package output

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/floorlens/floorlens/internal/core"
	"github.com/floorlens/floorlens/internal/core/engine"
)

func TestParseFormat(t *testing.T) {
	format, err := ParseFormat("")
	require.NoError(t, err)
	require.Equal(t, FormatTable, format)

	format, err = ParseFormat("  JSON ")
	require.NoError(t, err)
	require.Equal(t, FormatJSON, format)

	format, err = ParseFormat("table")
	require.NoError(t, err)
	require.Equal(t, FormatTable, format)

	_, err = ParseFormat("xml")
	require.ErrorContains(t, err, "unsupported output format")
}

func TestFormatPositions(t *testing.T) {
	checked := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	positions := []core.TriggerPosition{
		{
			ID:            "a1b2c3d4e5f6",
			Collection:    "cool-cats",
			MaxPrice:      0.5,
			Unit:          core.UnitETH,
			Status:        core.TriggerFulfilled,
			Attempts:      1,
			MaxRetries:    3,
			LastCheckedAt: checked,
			Fulfillment: &core.Fulfillment{
				AssetID: "cc-42",
				Price:   0.45,
				TxHash:  "0xdeadbeefcafe",
			},
		},
		{
			ID:         "ffff0000aaaa",
			Collection: "doodles",
			MaxPrice:   1.2,
			Unit:       core.UnitETH,
			Status:     core.TriggerActive,
			MaxRetries: 3,
			LastError:  "listing fetch failed",
		},
	}

	rendered := (&TableFormatter{}).FormatPositions(positions)
	require.Contains(t, rendered, "a1b2c3d4")
	require.NotContains(t, rendered, "a1b2c3d4e5f6")
	require.Contains(t, rendered, "cool-cats")
	require.Contains(t, rendered, "0.5 eth")
	require.Contains(t, rendered, "1/3")
	require.Contains(t, rendered, "2026-08-01T12:00:00Z")
	require.Contains(t, rendered, "bought cc-42 @ 0.45 (0xdeadbe)")
	require.Contains(t, rendered, "listing fetch failed")
}

func TestFormatAlerts(t *testing.T) {
	alerts := []core.PriceAlert{
		{
			ID:          "alert-1234",
			Collection:  "cool-cats",
			Direction:   core.AlertBelow,
			TargetPrice: 0.4,
			Status:      core.AlertActive,
		},
	}

	rendered := (&TableFormatter{}).FormatAlerts(alerts)
	require.Contains(t, rendered, "below 0.4")
	require.Contains(t, rendered, "cool-cats")
	// Zero price and zero time render as placeholders.
	require.Contains(t, rendered, "-")
}

func TestFormatRateLimits(t *testing.T) {
	limiter := engine.NewRateLimiter(engine.RateLimitConfig{MaxRequests: 5, Window: time.Minute})
	limiter.SetLimit("market", engine.RateLimitConfig{MaxRequests: 2, Window: 30 * time.Second})

	rendered := (&TableFormatter{}).FormatRateLimits(limiter)
	require.Contains(t, rendered, "market")
	require.Contains(t, rendered, "30s")
}

func TestFormatTradeEvents(t *testing.T) {
	events := []core.TradeEvent{
		{
			Kind:       core.TradeFulfilled,
			Collection: "cool-cats",
			AssetID:    "cc-7",
			Price:      0.3,
			TxHash:     "0xabc",
			OccurredAt: time.Date(2026, 8, 2, 9, 30, 0, 0, time.UTC),
		},
		{
			Kind:       core.TradeFailed,
			Collection: "doodles",
			Error:      "insufficient funds",
			OccurredAt: time.Date(2026, 8, 2, 9, 31, 0, 0, time.UTC),
		},
	}

	rendered := (&TableFormatter{}).FormatTradeEvents(events)
	require.Contains(t, rendered, "0xabc")
	require.Contains(t, rendered, "insufficient funds")
	require.Contains(t, rendered, "2026-08-02T09:30:00Z")
}

func TestJSONFormatter(t *testing.T) {
	positions := []core.TriggerPosition{{ID: "p1", Collection: "cool-cats", MaxPrice: 0.5, Unit: core.UnitETH}}

	flat, err := (&JSONFormatter{}).Format(positions)
	require.NoError(t, err)

	var decoded []core.TriggerPosition
	require.NoError(t, json.Unmarshal([]byte(flat), &decoded))
	require.Len(t, decoded, 1)
	require.Equal(t, "p1", decoded[0].ID)

	indented, err := (&JSONFormatter{Indent: true}).Format(positions)
	require.NoError(t, err)
	require.Contains(t, indented, "\n  ")
}
