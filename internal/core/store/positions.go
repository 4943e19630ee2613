package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/floorlens/floorlens/internal/core"
)

// SavePosition upserts a position snapshot so intents survive restarts.
func (s *Store) SavePosition(ctx context.Context, pos core.TriggerPosition) error {
	if s == nil || s.DB == nil {
		return errors.New("store is not initialized")
	}

	if ctx == nil {
		ctx = context.Background()
	}

	if strings.TrimSpace(pos.ID) == "" {
		return errors.New("position id is required")
	}

	var fulfillment sql.NullString
	if pos.Fulfillment != nil {
		encoded, err := json.Marshal(pos.Fulfillment)
		if err != nil {
			return fmt.Errorf("encode fulfillment: %w", err)
		}
		fulfillment = sql.NullString{String: string(encoded), Valid: true}
	}

	var lastChecked sql.NullInt64
	if !pos.LastCheckedAt.IsZero() {
		lastChecked = sql.NullInt64{Int64: pos.LastCheckedAt.UTC().Unix(), Valid: true}
	}

	stopOnError := 0
	if pos.StopOnError {
		stopOnError = 1
	}

	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO positions (id, collection, max_price, unit, max_retries, stop_on_error, status, attempts, last_checked_at, last_error, fulfillment, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			attempts = excluded.attempts,
			last_checked_at = excluded.last_checked_at,
			last_error = excluded.last_error,
			fulfillment = excluded.fulfillment
	`, pos.ID, pos.Collection, pos.MaxPrice, string(pos.Unit), pos.MaxRetries, stopOnError,
		string(pos.Status), pos.Attempts, lastChecked, pos.LastError, fulfillment, pos.CreatedAt.UTC().Unix())
	if err != nil {
		return fmt.Errorf("save position: %w", err)
	}

	return nil
}

// DeletePosition removes a persisted position snapshot.
func (s *Store) DeletePosition(ctx context.Context, id string) error {
	if s == nil || s.DB == nil {
		return errors.New("store is not initialized")
	}

	if ctx == nil {
		ctx = context.Background()
	}

	if _, err := s.DB.ExecContext(ctx, `DELETE FROM positions WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete position: %w", err)
	}
	return nil
}

// LoadPositions returns all persisted position snapshots.
func (s *Store) LoadPositions(ctx context.Context) ([]core.TriggerPosition, error) {
	if s == nil || s.DB == nil {
		return nil, errors.New("store is not initialized")
	}

	if ctx == nil {
		ctx = context.Background()
	}

	rows, err := s.DB.QueryContext(ctx, `
		SELECT id, collection, max_price, unit, max_retries, stop_on_error, status, attempts, last_checked_at, last_error, fulfillment, created_at
		FROM positions
		ORDER BY created_at ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("load positions: %w", err)
	}
	defer rows.Close() // nolint:errcheck // best-effort cleanup on SQL rows

	var positions []core.TriggerPosition
	for rows.Next() {
		var (
			pos         core.TriggerPosition
			unit        string
			stopOnError int
			status      string
			lastChecked sql.NullInt64
			lastError   sql.NullString
			fulfillment sql.NullString
			createdAt   int64
		)
		if err := rows.Scan(&pos.ID, &pos.Collection, &pos.MaxPrice, &unit, &pos.MaxRetries, &stopOnError,
			&status, &pos.Attempts, &lastChecked, &lastError, &fulfillment, &createdAt); err != nil {
			return nil, fmt.Errorf("scan position: %w", err)
		}
		pos.Unit = core.PaymentUnit(unit)
		pos.StopOnError = stopOnError != 0
		pos.Status = core.TriggerStatus(status)
		pos.LastError = lastError.String
		pos.CreatedAt = time.Unix(createdAt, 0).UTC()
		if lastChecked.Valid {
			pos.LastCheckedAt = time.Unix(lastChecked.Int64, 0).UTC()
		}
		if fulfillment.Valid && fulfillment.String != "" {
			var f core.Fulfillment
			if err := json.Unmarshal([]byte(fulfillment.String), &f); err != nil {
				return nil, fmt.Errorf("decode fulfillment: %w", err)
			}
			pos.Fulfillment = &f
		}
		positions = append(positions, pos)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load positions: %w", err)
	}

	return positions, nil
}
