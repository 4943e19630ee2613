package engine

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/floorlens/floorlens/internal/core"
)

func testClock() func() time.Time {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	return func() time.Time { return now }
}

func TestPositionStoreCreateValidation(t *testing.T) {
	store := NewPositionStore()
	store.Clock = testClock()

	_, err := store.Create(TriggerParams{MaxPrice: 1})
	require.Error(t, err)

	_, err = store.Create(TriggerParams{Collection: "cool-cats", MaxPrice: 0})
	require.Error(t, err)

	_, err = store.Create(TriggerParams{Collection: "cool-cats", MaxPrice: 1, Unit: "gwei"})
	require.Error(t, err)

	pos, err := store.Create(TriggerParams{Collection: "  cool-cats  ", MaxPrice: 0.5})
	require.NoError(t, err)
	require.NotEmpty(t, pos.ID)
	require.Equal(t, "cool-cats", pos.Collection)
	require.Equal(t, core.UnitETH, pos.Unit)
	require.Equal(t, 3, pos.MaxRetries)
	require.Equal(t, core.TriggerActive, pos.Status)
}

func TestPositionStoreListActive(t *testing.T) {
	store := NewPositionStore()
	store.Clock = testClock()

	a, err := store.Create(TriggerParams{Collection: "a", MaxPrice: 1})
	require.NoError(t, err)
	b, err := store.Create(TriggerParams{Collection: "b", MaxPrice: 1})
	require.NoError(t, err)

	require.NoError(t, store.Stop(a.ID))

	active := store.ListActive()
	require.Len(t, active, 1)
	require.Equal(t, b.ID, active[0].ID)
	require.Len(t, store.List(), 2)
}

func TestPositionStoreStopResume(t *testing.T) {
	store := NewPositionStore()
	store.Clock = testClock()

	pos, err := store.Create(TriggerParams{Collection: "cool-cats", MaxPrice: 1})
	require.NoError(t, err)

	// Accumulate failures, then stop and resume.
	_, _, err = store.RecordFailure(pos.ID, errors.New("declined"))
	require.NoError(t, err)

	require.NoError(t, store.Stop(pos.ID))
	stopped, ok := store.Get(pos.ID)
	require.True(t, ok)
	require.Equal(t, core.TriggerStopped, stopped.Status)

	require.NoError(t, store.Resume(pos.ID))
	resumed, ok := store.Get(pos.ID)
	require.True(t, ok)
	require.Equal(t, core.TriggerActive, resumed.Status)
	require.Equal(t, 0, resumed.Attempts)
	require.Empty(t, resumed.LastError)
}

func TestPositionStoreMarkFulfilledExactlyOnce(t *testing.T) {
	store := NewPositionStore()
	store.Clock = testClock()

	pos, err := store.Create(TriggerParams{Collection: "cool-cats", MaxPrice: 1})
	require.NoError(t, err)

	fulfillment := core.Fulfillment{AssetID: "cc-7", Price: 0.9, TxHash: "0xabc"}
	require.NoError(t, store.MarkFulfilled(pos.ID, fulfillment))

	got, ok := store.Get(pos.ID)
	require.True(t, ok)
	require.Equal(t, core.TriggerFulfilled, got.Status)
	require.NotNil(t, got.Fulfillment)
	require.Equal(t, "cc-7", got.Fulfillment.AssetID)

	// Terminal states reject further transitions.
	require.ErrorIs(t, store.MarkFulfilled(pos.ID, fulfillment), ErrPositionTerminal)
	require.ErrorIs(t, store.Stop(pos.ID), ErrPositionTerminal)
	require.ErrorIs(t, store.Resume(pos.ID), ErrPositionTerminal)
}

func TestPositionStoreRecordFailureExhaustion(t *testing.T) {
	store := NewPositionStore()
	store.Clock = testClock()

	pos, err := store.Create(TriggerParams{Collection: "cool-cats", MaxPrice: 1, MaxRetries: 2})
	require.NoError(t, err)

	snap, exhausted, err := store.RecordFailure(pos.ID, errors.New("declined"))
	require.NoError(t, err)
	require.False(t, exhausted)
	require.Equal(t, 1, snap.Attempts)
	require.Equal(t, core.TriggerActive, snap.Status)

	snap, exhausted, err = store.RecordFailure(pos.ID, errors.New("declined again"))
	require.NoError(t, err)
	require.True(t, exhausted)
	require.Equal(t, core.TriggerFailed, snap.Status)
	require.Equal(t, "declined again", snap.LastError)
}

func TestPositionStoreRecordFailureStopOnError(t *testing.T) {
	store := NewPositionStore()
	store.Clock = testClock()

	pos, err := store.Create(TriggerParams{Collection: "cool-cats", MaxPrice: 1, MaxRetries: 1, StopOnError: true})
	require.NoError(t, err)

	snap, exhausted, err := store.RecordFailure(pos.ID, errors.New("declined"))
	require.NoError(t, err)
	require.True(t, exhausted)
	require.Equal(t, core.TriggerStopped, snap.Status)

	// A stopped-on-error position can be resumed with a fresh budget.
	require.NoError(t, store.Resume(pos.ID))
	resumed, ok := store.Get(pos.ID)
	require.True(t, ok)
	require.Equal(t, core.TriggerActive, resumed.Status)
	require.Equal(t, 0, resumed.Attempts)
}

func TestPositionStoreRemoveAndRestore(t *testing.T) {
	store := NewPositionStore()
	store.Clock = testClock()

	pos, err := store.Create(TriggerParams{Collection: "cool-cats", MaxPrice: 1})
	require.NoError(t, err)

	require.True(t, store.Remove(pos.ID))
	require.False(t, store.Remove(pos.ID))
	_, _, err = store.RecordFailure(pos.ID, errors.New("late result"))
	require.ErrorIs(t, err, ErrPositionNotFound)

	store.Restore(pos)
	restored, ok := store.Get(pos.ID)
	require.True(t, ok)
	require.Equal(t, pos.ID, restored.ID)
}

func TestPositionStoreSnapshotIsolation(t *testing.T) {
	store := NewPositionStore()
	store.Clock = testClock()

	pos, err := store.Create(TriggerParams{Collection: "cool-cats", MaxPrice: 1})
	require.NoError(t, err)
	require.NoError(t, store.MarkFulfilled(pos.ID, core.Fulfillment{AssetID: "cc-7", Price: 0.9, TxHash: "0xabc"}))

	snap, ok := store.Get(pos.ID)
	require.True(t, ok)
	snap.Fulfillment.AssetID = "mutated"

	fresh, ok := store.Get(pos.ID)
	require.True(t, ok)
	require.Equal(t, "cc-7", fresh.Fulfillment.AssetID)
}
