package engine

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/floorlens/floorlens/internal/core"
)

type fakeMarket struct {
	mu       sync.Mutex
	listings map[string][]core.Listing
	err      error
	fetches  int
}

func (m *fakeMarket) FetchListings(ctx context.Context, collection string) ([]core.Listing, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fetches++
	if m.err != nil {
		return nil, m.err
	}
	return m.listings[collection], nil
}

func (m *fakeMarket) fetchCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.fetches
}

type fakeExecution struct {
	mu      sync.Mutex
	err     error
	receipt *core.TransferReceipt
	submits int
}

func (e *fakeExecution) Submit(ctx context.Context, req core.TransferRequest) (*core.TransferReceipt, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.submits++
	if e.err != nil {
		return nil, e.err
	}
	if e.receipt != nil {
		return e.receipt, nil
	}
	return &core.TransferReceipt{TxHash: "0xdeadbeef", Status: core.TransferConfirmed}, nil
}

func (e *fakeExecution) submitCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.submits
}

type memoryEventSink struct {
	mu     sync.Mutex
	events []core.TradeEvent
}

func (s *memoryEventSink) AppendTradeEvent(ctx context.Context, event core.TradeEvent) error {
	s.mu.Lock()
	s.events = append(s.events, event)
	s.mu.Unlock()
	return nil
}

func (s *memoryEventSink) all() []core.TradeEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]core.TradeEvent(nil), s.events...)
}

func newTestScheduler(market *fakeMarket, exec *fakeExecution, sink *memoryEventSink) (*Scheduler, *PositionStore) {
	positions := NewPositionStore()
	cfg := DefaultSchedulerConfig
	cfg.Retry = RetryOptions{MaxRetries: 0, InitialDelay: time.Millisecond, BackoffMultiplier: 2}
	cfg.ListingsTTL = time.Millisecond
	return &Scheduler{
		Positions: positions,
		Market:    market,
		Execution: exec,
		Listings:  NewCache[[]core.Listing](time.Millisecond),
		Events:    sink,
		Config:    cfg,
	}, positions
}

func TestSchedulerFulfillsMatchingTrigger(t *testing.T) {
	market := &fakeMarket{listings: map[string][]core.Listing{
		"cool-cats": {
			{ListingID: "l1", AssetID: "cc-1", Price: 0.45, Unit: core.UnitETH, Seller: "0xseller"},
			{ListingID: "l2", AssetID: "cc-2", Price: 0.30, Unit: core.UnitETH, Seller: "0xseller"},
			{ListingID: "l3", AssetID: "cc-3", Price: 0.80, Unit: core.UnitETH, Seller: "0xseller"},
		},
	}}
	exec := &fakeExecution{}
	sink := &memoryEventSink{}
	scheduler, positions := newTestScheduler(market, exec, sink)

	pos, err := positions.Create(TriggerParams{Collection: "cool-cats", MaxPrice: 0.3})
	require.NoError(t, err)

	var fulfilled []core.Fulfillment
	scheduler.OnFulfilled(func(p core.TriggerPosition, f core.Fulfillment) {
		fulfilled = append(fulfilled, f)
	})

	scheduler.Tick(context.Background())

	// Price boundary is inclusive; the cheapest match wins.
	require.Equal(t, 1, exec.submitCount())
	got, ok := positions.Get(pos.ID)
	require.True(t, ok)
	require.Equal(t, core.TriggerFulfilled, got.Status)
	require.NotNil(t, got.Fulfillment)
	require.Equal(t, "cc-2", got.Fulfillment.AssetID)
	require.Equal(t, "0xdeadbeef", got.Fulfillment.TxHash)

	require.Len(t, fulfilled, 1)
	events := sink.all()
	require.Len(t, events, 1)
	require.Equal(t, core.TradeFulfilled, events[0].Kind)
	require.Equal(t, pos.ID, events[0].PositionID)

	// The fulfilled position is never polled again.
	scheduler.Tick(context.Background())
	require.Equal(t, 1, exec.submitCount())
}

func TestSchedulerNoMatchBelowCeiling(t *testing.T) {
	market := &fakeMarket{listings: map[string][]core.Listing{
		"cool-cats": {{ListingID: "l1", AssetID: "cc-1", Price: 0.5, Unit: core.UnitETH}},
	}}
	exec := &fakeExecution{}
	scheduler, positions := newTestScheduler(market, exec, &memoryEventSink{})

	pos, err := positions.Create(TriggerParams{Collection: "cool-cats", MaxPrice: 0.3})
	require.NoError(t, err)

	scheduler.Tick(context.Background())

	require.Equal(t, 0, exec.submitCount())
	got, _ := positions.Get(pos.ID)
	require.Equal(t, core.TriggerActive, got.Status)
	require.False(t, got.LastCheckedAt.IsZero())
}

func TestSchedulerWeiListingNormalized(t *testing.T) {
	market := &fakeMarket{listings: map[string][]core.Listing{
		// 0.25 ETH expressed in wei.
		"cool-cats": {{ListingID: "l1", AssetID: "cc-1", Price: 2.5e17, Unit: core.UnitWEI}},
	}}
	exec := &fakeExecution{}
	scheduler, positions := newTestScheduler(market, exec, &memoryEventSink{})

	pos, err := positions.Create(TriggerParams{Collection: "cool-cats", MaxPrice: 0.3})
	require.NoError(t, err)

	scheduler.Tick(context.Background())

	require.Equal(t, 1, exec.submitCount())
	got, _ := positions.Get(pos.ID)
	require.Equal(t, core.TriggerFulfilled, got.Status)
	require.InDelta(t, 0.25, got.Fulfillment.Price, 1e-9)
}

func TestSchedulerFetchFailureConsumesNoAttempt(t *testing.T) {
	market := &fakeMarket{err: &core.APIError{StatusCode: http.StatusBadGateway, Message: "upstream down"}}
	exec := &fakeExecution{}
	scheduler, positions := newTestScheduler(market, exec, &memoryEventSink{})

	pos, err := positions.Create(TriggerParams{Collection: "cool-cats", MaxPrice: 0.3})
	require.NoError(t, err)

	scheduler.Tick(context.Background())
	scheduler.Tick(context.Background())

	got, _ := positions.Get(pos.ID)
	require.Equal(t, core.TriggerActive, got.Status)
	require.Equal(t, 0, got.Attempts)
	require.Equal(t, 0, exec.submitCount())
}

func TestSchedulerExhaustionTerminatesPosition(t *testing.T) {
	market := &fakeMarket{listings: map[string][]core.Listing{
		"cool-cats": {{ListingID: "l1", AssetID: "cc-1", Price: 0.1, Unit: core.UnitETH}},
	}}
	exec := &fakeExecution{err: errors.New("wallet declined")}
	sink := &memoryEventSink{}
	scheduler, positions := newTestScheduler(market, exec, sink)

	pos, err := positions.Create(TriggerParams{Collection: "cool-cats", MaxPrice: 0.3, MaxRetries: 2})
	require.NoError(t, err)

	var failures int
	scheduler.OnError(func(p core.TriggerPosition, err error) { failures++ })

	scheduler.Tick(context.Background())
	scheduler.Tick(context.Background())

	got, _ := positions.Get(pos.ID)
	require.Equal(t, core.TriggerFailed, got.Status)
	require.Equal(t, 2, got.Attempts)
	require.Equal(t, "wallet declined", got.LastError)
	require.Equal(t, 2, failures)

	events := sink.all()
	require.Len(t, events, 1)
	require.Equal(t, core.TradeFailed, events[0].Kind)

	// Terminal positions drop out of the polling set.
	scheduler.Tick(context.Background())
	require.Equal(t, 2, exec.submitCount())
}

func TestSchedulerStopOnErrorLeavesResumable(t *testing.T) {
	market := &fakeMarket{listings: map[string][]core.Listing{
		"cool-cats": {{ListingID: "l1", AssetID: "cc-1", Price: 0.1, Unit: core.UnitETH}},
	}}
	exec := &fakeExecution{err: errors.New("wallet declined")}
	scheduler, positions := newTestScheduler(market, exec, &memoryEventSink{})

	pos, err := positions.Create(TriggerParams{Collection: "cool-cats", MaxPrice: 0.3, MaxRetries: 1, StopOnError: true})
	require.NoError(t, err)

	scheduler.Tick(context.Background())

	got, _ := positions.Get(pos.ID)
	require.Equal(t, core.TriggerStopped, got.Status)

	require.NoError(t, positions.Resume(pos.ID))
	resumed, _ := positions.Get(pos.ID)
	require.Equal(t, core.TriggerActive, resumed.Status)
	require.Equal(t, 0, resumed.Attempts)
}

func TestSchedulerObserverPanicIsolated(t *testing.T) {
	market := &fakeMarket{listings: map[string][]core.Listing{
		"cool-cats": {{ListingID: "l1", AssetID: "cc-1", Price: 0.1, Unit: core.UnitETH}},
	}}
	exec := &fakeExecution{}
	scheduler, positions := newTestScheduler(market, exec, &memoryEventSink{})

	_, err := positions.Create(TriggerParams{Collection: "cool-cats", MaxPrice: 0.3})
	require.NoError(t, err)

	var second bool
	scheduler.OnFulfilled(func(p core.TriggerPosition, f core.Fulfillment) { panic("observer bug") })
	scheduler.OnFulfilled(func(p core.TriggerPosition, f core.Fulfillment) { second = true })

	require.NotPanics(t, func() { scheduler.Tick(context.Background()) })
	require.True(t, second)
}

func TestSchedulerSharesFetchAcrossPositions(t *testing.T) {
	market := &fakeMarket{listings: map[string][]core.Listing{
		"cool-cats": {{ListingID: "l1", AssetID: "cc-1", Price: 5, Unit: core.UnitETH}},
	}}
	exec := &fakeExecution{}
	scheduler, positions := newTestScheduler(market, exec, &memoryEventSink{})
	scheduler.Listings = NewCache[[]core.Listing](time.Minute)
	scheduler.Config.ListingsTTL = time.Minute

	_, err := positions.Create(TriggerParams{Collection: "cool-cats", MaxPrice: 0.3})
	require.NoError(t, err)
	_, err = positions.Create(TriggerParams{Collection: "cool-cats", MaxPrice: 0.2})
	require.NoError(t, err)

	scheduler.Tick(context.Background())

	// Both positions watch the same collection; one fetch serves both.
	require.Equal(t, 1, market.fetchCount())
}

func TestSchedulerStartStop(t *testing.T) {
	market := &fakeMarket{listings: map[string][]core.Listing{}}
	exec := &fakeExecution{}
	scheduler, _ := newTestScheduler(market, exec, &memoryEventSink{})
	scheduler.Config.Interval = 5 * time.Millisecond

	scheduler.Start(context.Background())
	scheduler.Start(context.Background()) // no-op when already running
	time.Sleep(20 * time.Millisecond)
	scheduler.Stop()
	scheduler.Stop() // idempotent

	// No tick starts after Stop returns.
	fetched := market.fetchCount()
	time.Sleep(20 * time.Millisecond)
	require.Equal(t, fetched, market.fetchCount())
}

func TestSchedulerStartImmediateStop(t *testing.T) {
	// Stop racing the loop goroutine's first instruction must not crash;
	// the loop owns the done channel it was started with.
	market := &fakeMarket{listings: map[string][]core.Listing{}}
	scheduler, _ := newTestScheduler(market, &fakeExecution{}, &memoryEventSink{})

	for i := 0; i < 100; i++ {
		scheduler.Start(context.Background())
		scheduler.Stop()
	}
}

func TestSchedulerWeiCeilingNormalized(t *testing.T) {
	market := &fakeMarket{listings: map[string][]core.Listing{
		"cool-cats": {
			{ListingID: "l1", AssetID: "cc-1", Price: 0.5, Unit: core.UnitETH, Seller: "0xseller"},
		},
	}}
	exec := &fakeExecution{}
	scheduler, positions := newTestScheduler(market, exec, &memoryEventSink{})

	// 3e17 wei is a 0.3 ETH ceiling; the 0.5 ETH listing must not trigger.
	pos, err := positions.Create(TriggerParams{Collection: "cool-cats", MaxPrice: 3e17, Unit: core.UnitWEI})
	require.NoError(t, err)

	scheduler.Tick(context.Background())
	require.Equal(t, 0, exec.submitCount())

	current, ok := positions.Get(pos.ID)
	require.True(t, ok)
	require.Equal(t, core.TriggerActive, current.Status)

	// A listing at 0.25 ETH sits under the same ceiling and triggers.
	market.mu.Lock()
	market.listings["cool-cats"] = []core.Listing{
		{ListingID: "l2", AssetID: "cc-2", Price: 0.25, Unit: core.UnitETH, Seller: "0xseller"},
	}
	market.mu.Unlock()
	time.Sleep(2 * time.Millisecond) // listings cache expiry

	scheduler.Tick(context.Background())
	require.Equal(t, 1, exec.submitCount())

	current, ok = positions.Get(pos.ID)
	require.True(t, ok)
	require.Equal(t, core.TriggerFulfilled, current.Status)
	require.NotNil(t, current.Fulfillment)
	require.InDelta(t, 0.25, current.Fulfillment.Price, 1e-9)
}

func TestSchedulerStartKeepsCustomConfig(t *testing.T) {
	scheduler, _ := newTestScheduler(&fakeMarket{}, &fakeExecution{}, &memoryEventSink{})
	scheduler.Config = SchedulerConfig{
		SubmitTimeout: 3 * time.Second,
		ListingsTTL:   time.Second,
		Retry:         RetryOptions{MaxRetries: 0, InitialDelay: time.Millisecond, BackoffMultiplier: 2},
	}

	scheduler.Start(context.Background())
	scheduler.Stop()

	// Zero fields pick up defaults; caller-set ones survive.
	require.Equal(t, DefaultSchedulerConfig.Interval, scheduler.Config.Interval)
	require.Equal(t, DefaultSchedulerConfig.FetchTimeout, scheduler.Config.FetchTimeout)
	require.Equal(t, 3*time.Second, scheduler.Config.SubmitTimeout)
	require.Equal(t, time.Second, scheduler.Config.ListingsTTL)
	require.Equal(t, 0, scheduler.Config.Retry.MaxRetries)
	require.Equal(t, time.Millisecond, scheduler.Config.Retry.InitialDelay)
}
