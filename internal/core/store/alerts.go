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

// SaveAlert upserts a price alert so it survives restarts.
func (s *Store) SaveAlert(ctx context.Context, alert core.PriceAlert) error {
	if s == nil || s.DB == nil {
		return errors.New("store is not initialized")
	}

	if ctx == nil {
		ctx = context.Background()
	}

	if strings.TrimSpace(alert.ID) == "" {
		return errors.New("alert id is required")
	}

	var lastChecked, lastTriggered sql.NullInt64
	if !alert.LastCheckedAt.IsZero() {
		lastChecked = sql.NullInt64{Int64: alert.LastCheckedAt.UTC().Unix(), Valid: true}
	}
	if !alert.LastTriggeredAt.IsZero() {
		lastTriggered = sql.NullInt64{Int64: alert.LastTriggeredAt.UTC().Unix(), Valid: true}
	}

	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO alerts (id, collection, direction, target_price, status, last_checked_at, last_triggered_at, last_price, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			last_checked_at = excluded.last_checked_at,
			last_triggered_at = excluded.last_triggered_at,
			last_price = excluded.last_price
	`, alert.ID, alert.Collection, string(alert.Direction), alert.TargetPrice, string(alert.Status),
		lastChecked, lastTriggered, alert.LastPrice, alert.CreatedAt.UTC().Unix())
	if err != nil {
		return fmt.Errorf("save alert: %w", err)
	}

	return nil
}

// DeleteAlert removes a persisted price alert.
func (s *Store) DeleteAlert(ctx context.Context, id string) error {
	if s == nil || s.DB == nil {
		return errors.New("store is not initialized")
	}

	if ctx == nil {
		ctx = context.Background()
	}

	if _, err := s.DB.ExecContext(ctx, `DELETE FROM alerts WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete alert: %w", err)
	}
	return nil
}

// LoadAlerts returns all persisted price alerts.
func (s *Store) LoadAlerts(ctx context.Context) ([]core.PriceAlert, error) {
	if s == nil || s.DB == nil {
		return nil, errors.New("store is not initialized")
	}

	if ctx == nil {
		ctx = context.Background()
	}

	rows, err := s.DB.QueryContext(ctx, `
		SELECT id, collection, direction, target_price, status, last_checked_at, last_triggered_at, last_price, created_at
		FROM alerts
		ORDER BY created_at ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("load alerts: %w", err)
	}
	defer rows.Close() // nolint:errcheck // best-effort cleanup on SQL rows

	var alerts []core.PriceAlert
	for rows.Next() {
		var (
			alert         core.PriceAlert
			direction     string
			status        string
			lastChecked   sql.NullInt64
			lastTriggered sql.NullInt64
			lastPrice     sql.NullFloat64
			createdAt     int64
		)
		if err := rows.Scan(&alert.ID, &alert.Collection, &direction, &alert.TargetPrice, &status,
			&lastChecked, &lastTriggered, &lastPrice, &createdAt); err != nil {
			return nil, fmt.Errorf("scan alert: %w", err)
		}
		alert.Direction = core.AlertDirection(direction)
		alert.Status = core.AlertStatus(status)
		alert.LastPrice = lastPrice.Float64
		alert.CreatedAt = time.Unix(createdAt, 0).UTC()
		if lastChecked.Valid {
			alert.LastCheckedAt = time.Unix(lastChecked.Int64, 0).UTC()
		}
		if lastTriggered.Valid {
			alert.LastTriggeredAt = time.Unix(lastTriggered.Int64, 0).UTC()
		}
		alerts = append(alerts, alert)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load alerts: %w", err)
	}

	return alerts, nil
}
