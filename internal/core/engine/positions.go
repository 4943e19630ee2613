package engine

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/floorlens/floorlens/internal/core"
)

// Trigger position validation errors. These are surfaced synchronously at
// creation time and never retried.
var (
	ErrPositionNotFound = errors.New("trigger position not found")
	ErrPositionTerminal = errors.New("trigger position is in a terminal state")
)

// TriggerParams configures a new auto-buy position.
type TriggerParams struct {
	Collection  string
	MaxPrice    float64
	Unit        core.PaymentUnit
	MaxRetries  int
	StopOnError bool
}

// PositionStore owns the lifecycle of trigger positions. Engines never hold
// independent copies; every mutation goes through the store and checks the
// position still exists, so results of calls that outlive a removal are
// discarded rather than resurrecting state.
type PositionStore struct {
	Clock func() time.Time

	mu        sync.RWMutex
	positions map[string]*core.TriggerPosition
}

// NewPositionStore creates an empty position store.
func NewPositionStore() *PositionStore {
	return &PositionStore{positions: make(map[string]*core.TriggerPosition)}
}

// Create validates params and registers a new active position.
func (s *PositionStore) Create(params TriggerParams) (core.TriggerPosition, error) {
	collection := strings.TrimSpace(params.Collection)
	if collection == "" {
		return core.TriggerPosition{}, errors.New("collection is required")
	}
	if params.MaxPrice <= 0 {
		return core.TriggerPosition{}, fmt.Errorf("max price must be positive, got %v", params.MaxPrice)
	}
	unit := params.Unit
	if unit == "" {
		unit = core.UnitETH
	}
	if unit != core.UnitETH && unit != core.UnitWEI {
		return core.TriggerPosition{}, fmt.Errorf("unsupported payment unit %q", unit)
	}
	maxRetries := params.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}

	pos := &core.TriggerPosition{
		ID:          uuid.New().String(),
		Collection:  collection,
		MaxPrice:    params.MaxPrice,
		Unit:        unit,
		MaxRetries:  maxRetries,
		StopOnError: params.StopOnError,
		Status:      core.TriggerActive,
		CreatedAt:   s.now(),
	}

	s.mu.Lock()
	s.positions[pos.ID] = pos
	s.mu.Unlock()

	return *pos, nil
}

// Restore registers a previously persisted position as-is. Terminal
// positions are kept for inspection but never polled again.
func (s *PositionStore) Restore(pos core.TriggerPosition) {
	if strings.TrimSpace(pos.ID) == "" {
		return
	}
	copied := pos
	s.mu.Lock()
	s.positions[copied.ID] = &copied
	s.mu.Unlock()
}

// Get returns a snapshot of one position.
func (s *PositionStore) Get(id string) (core.TriggerPosition, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	pos, ok := s.positions[id]
	if !ok {
		return core.TriggerPosition{}, false
	}
	return snapshot(pos), true
}

// List returns snapshots of all positions ordered by creation time.
func (s *PositionStore) List() []core.TriggerPosition {
	s.mu.RLock()
	out := make([]core.TriggerPosition, 0, len(s.positions))
	for _, pos := range s.positions {
		out = append(out, snapshot(pos))
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// ListActive returns snapshots of positions eligible for polling.
func (s *PositionStore) ListActive() []core.TriggerPosition {
	all := s.List()
	out := all[:0]
	for _, pos := range all {
		if pos.Status == core.TriggerActive {
			out = append(out, pos)
		}
	}
	return out
}

// Stop pauses an active position. Terminal positions cannot be stopped.
func (s *PositionStore) Stop(id string) error {
	return s.update(id, func(pos *core.TriggerPosition) error {
		if pos.Status.Terminal() {
			return ErrPositionTerminal
		}
		pos.Status = core.TriggerStopped
		return nil
	})
}

// Resume reactivates a stopped position and resets its attempt counter.
func (s *PositionStore) Resume(id string) error {
	return s.update(id, func(pos *core.TriggerPosition) error {
		if pos.Status.Terminal() {
			return ErrPositionTerminal
		}
		pos.Status = core.TriggerActive
		pos.Attempts = 0
		pos.LastError = ""
		return nil
	})
}

// Remove deletes a position. Removing is idempotent.
func (s *PositionStore) Remove(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.positions[id]; !ok {
		return false
	}
	delete(s.positions, id)
	return true
}

// Touch stamps the position's last poll time. A missing position is a
// no-op: the poll raced a removal.
func (s *PositionStore) Touch(id string, at time.Time) {
	_ = s.update(id, func(pos *core.TriggerPosition) error {
		pos.LastCheckedAt = at
		return nil
	})
}

// MarkFulfilled transitions an active position to its fulfilled terminal
// state exactly once.
func (s *PositionStore) MarkFulfilled(id string, f core.Fulfillment) error {
	return s.update(id, func(pos *core.TriggerPosition) error {
		if pos.Status != core.TriggerActive {
			return ErrPositionTerminal
		}
		pos.Status = core.TriggerFulfilled
		pos.Fulfillment = &f
		pos.LastError = ""
		return nil
	})
}

// RecordFailure charges one failed execution attempt against the position
// and applies the exhaustion transition when the budget runs out. It
// returns the resulting snapshot and whether the position just exhausted.
func (s *PositionStore) RecordFailure(id string, cause error) (core.TriggerPosition, bool, error) {
	var out core.TriggerPosition
	exhausted := false
	err := s.update(id, func(pos *core.TriggerPosition) error {
		if pos.Status != core.TriggerActive {
			return ErrPositionTerminal
		}
		pos.Attempts++
		if cause != nil {
			pos.LastError = cause.Error()
		}
		if pos.Attempts >= pos.MaxRetries {
			exhausted = true
			if pos.StopOnError {
				pos.Status = core.TriggerStopped
			} else {
				pos.Status = core.TriggerFailed
			}
		}
		out = snapshot(pos)
		return nil
	})
	return out, exhausted, err
}

func (s *PositionStore) update(id string, fn func(*core.TriggerPosition) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	pos, ok := s.positions[id]
	if !ok {
		return ErrPositionNotFound
	}
	return fn(pos)
}

func (s *PositionStore) now() time.Time {
	if s != nil && s.Clock != nil {
		return s.Clock()
	}
	return time.Now().UTC()
}

func snapshot(pos *core.TriggerPosition) core.TriggerPosition {
	out := *pos
	if pos.Fulfillment != nil {
		f := *pos.Fulfillment
		out.Fulfillment = &f
	}
	return out
}
