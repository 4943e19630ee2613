package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/floorlens/floorlens/internal/core"
)

// AppendTradeEvent appends one entry to the trade audit log. The log is
// append-only; entries are never updated or deleted.
func (s *Store) AppendTradeEvent(ctx context.Context, event core.TradeEvent) error {
	if s == nil || s.DB == nil {
		return errors.New("store is not initialized")
	}

	if ctx == nil {
		ctx = context.Background()
	}

	if strings.TrimSpace(event.PositionID) == "" {
		return errors.New("trade event position id is required")
	}
	occurredAt := event.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = time.Now().UTC()
	}

	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO trade_events (position_id, collection, kind, asset_id, price, tx_hash, error, occurred_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, event.PositionID, event.Collection, string(event.Kind), event.AssetID, event.Price, event.TxHash, event.Error, occurredAt.Unix())
	if err != nil {
		return fmt.Errorf("append trade event: %w", err)
	}

	return nil
}

// ListTradeEvents returns audit log entries, newest first, up to limit
// (zero means no limit).
func (s *Store) ListTradeEvents(ctx context.Context, limit int) ([]core.TradeEvent, error) {
	if s == nil || s.DB == nil {
		return nil, errors.New("store is not initialized")
	}

	if ctx == nil {
		ctx = context.Background()
	}

	query := `
		SELECT id, position_id, collection, kind, asset_id, price, tx_hash, error, occurred_at
		FROM trade_events
		ORDER BY occurred_at DESC, id DESC
	`
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list trade events: %w", err)
	}
	defer rows.Close() // nolint:errcheck // best-effort cleanup on SQL rows

	var events []core.TradeEvent
	for rows.Next() {
		var (
			event      core.TradeEvent
			kind       string
			assetID    sql.NullString
			price      sql.NullFloat64
			txHash     sql.NullString
			errMessage sql.NullString
			occurredAt int64
		)
		if err := rows.Scan(&event.ID, &event.PositionID, &event.Collection, &kind, &assetID, &price, &txHash, &errMessage, &occurredAt); err != nil {
			return nil, fmt.Errorf("scan trade event: %w", err)
		}
		event.Kind = core.TradeEventKind(kind)
		event.AssetID = assetID.String
		event.Price = price.Float64
		event.TxHash = txHash.String
		event.Error = errMessage.String
		event.OccurredAt = time.Unix(occurredAt, 0).UTC()
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list trade events: %w", err)
	}

	return events, nil
}
