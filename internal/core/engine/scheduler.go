package engine

import (
	"context"
	"sync"
	"time"

	"github.com/fulmenhq/gofulmen/logging"
	"go.uber.org/zap"

	"github.com/floorlens/floorlens/internal/core"
	"github.com/floorlens/floorlens/internal/metrics"
)

// FulfilledFunc observes a successful purchase.
type FulfilledFunc func(pos core.TriggerPosition, f core.Fulfillment)

// ErrorFunc observes a failed execution attempt.
type ErrorFunc func(pos core.TriggerPosition, err error)

// EventSink receives trade audit events. Sink failures are logged and
// never interrupt a tick.
type EventSink interface {
	AppendTradeEvent(ctx context.Context, event core.TradeEvent) error
}

// SchedulerConfig tunes the acquisition polling loop.
type SchedulerConfig struct {
	// Interval between ticks.
	Interval time.Duration
	// FetchTimeout bounds a single market-data fetch.
	FetchTimeout time.Duration
	// SubmitTimeout bounds a single execution submission.
	SubmitTimeout time.Duration
	// ListingsTTL controls how long fetched listings are reused.
	ListingsTTL time.Duration
	// Retry configures the execution retry policy.
	Retry RetryOptions
}

// DefaultSchedulerConfig matches the engine's documented defaults.
var DefaultSchedulerConfig = SchedulerConfig{
	Interval:      5 * time.Second,
	FetchTimeout:  10 * time.Second,
	SubmitTimeout: 30 * time.Second,
	ListingsTTL:   30 * time.Second,
	Retry:         DefaultRetryOptions,
}

// withDefaults fills unset fields without touching caller-set ones. Retry
// is defaulted only when left entirely zero; an explicit MaxRetries of 0
// (single attempt) is preserved.
func (c SchedulerConfig) withDefaults() SchedulerConfig {
	if c.Interval <= 0 {
		c.Interval = DefaultSchedulerConfig.Interval
	}
	if c.FetchTimeout <= 0 {
		c.FetchTimeout = DefaultSchedulerConfig.FetchTimeout
	}
	if c.SubmitTimeout <= 0 {
		c.SubmitTimeout = DefaultSchedulerConfig.SubmitTimeout
	}
	if c.ListingsTTL <= 0 {
		c.ListingsTTL = DefaultSchedulerConfig.ListingsTTL
	}
	if c.Retry.MaxRetries == 0 && c.Retry.InitialDelay == 0 && c.Retry.MaxDelay == 0 &&
		c.Retry.BackoffMultiplier == 0 && c.Retry.ShouldRetry == nil {
		c.Retry = DefaultRetryOptions
	}
	return c
}

// Scheduler drives auto-buy positions: each tick it samples listings for
// every active position through the rate limiter and cache, evaluates the
// price trigger, and on a match submits a purchase through the retry
// policy.
//
// Ticks never overlap: the loop runs ticks on a single goroutine, so a
// slow tick delays later ones instead of racing them.
type Scheduler struct {
	Positions *PositionStore
	Market    core.MarketDataPort
	Execution core.ExecutionPort
	Limiter   *RateLimiter
	Listings  *Cache[[]core.Listing]
	Events    EventSink
	Logger    *logging.Logger
	Clock     func() time.Time
	Config    SchedulerConfig

	mu        sync.Mutex
	cancel    context.CancelFunc
	done      chan struct{}
	fulfilled []FulfilledFunc
	errors    []ErrorFunc
}

// OnFulfilled registers a purchase observer. Registrations are additive.
func (s *Scheduler) OnFulfilled(fn FulfilledFunc) {
	if fn == nil {
		return
	}
	s.mu.Lock()
	s.fulfilled = append(s.fulfilled, fn)
	s.mu.Unlock()
}

// OnError registers an error observer. Registrations are additive.
func (s *Scheduler) OnError(fn ErrorFunc) {
	if fn == nil {
		return
	}
	s.mu.Lock()
	s.errors = append(s.errors, fn)
	s.mu.Unlock()
}

// Start launches the polling loop. It is a no-op if already running.
func (s *Scheduler) Start(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}
	s.Config = s.Config.withDefaults()
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	// The loop closes its own done channel; Stop nils the field, so the
	// goroutine must not read it back.
	go s.run(runCtx, s.done)
}

// Stop halts the loop and waits for any in-flight tick to finish. No tick
// starts after Stop returns; results of external calls that complete later
// are applied only through liveness-checked store mutations.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	done := s.done
	s.cancel = nil
	s.done = nil
	s.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (s *Scheduler) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.Config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Tick processes every active position once. A single position's failure
// never stops the others or the loop.
func (s *Scheduler) Tick(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	metrics.RecordTick("acquisition")
	for _, pos := range s.Positions.ListActive() {
		if ctx.Err() != nil {
			return
		}
		s.process(ctx, pos)
	}
}

func (s *Scheduler) process(ctx context.Context, pos core.TriggerPosition) {
	s.Positions.Touch(pos.ID, s.now())

	listings, err := s.fetchListings(ctx, pos.Collection)
	if err != nil {
		// No data this tick. Not a position failure and not an attempt.
		s.logDebug("listings fetch failed",
			zap.String("position_id", pos.ID),
			zap.String("collection", pos.Collection),
			zap.Error(err))
		return
	}

	listing, ok := matchListing(listings, pos.NormalizedMaxPrice())
	if !ok {
		return
	}
	metrics.RecordTriggerMatch(pos.Collection)

	receipt, err := s.submit(ctx, pos, listing)
	if err != nil {
		s.recordFailure(ctx, pos, err)
		return
	}

	fulfillment := core.Fulfillment{
		AssetID: listing.AssetID,
		Price:   listing.NormalizedPrice(),
		TxHash:  receipt.TxHash,
	}
	if err := s.Positions.MarkFulfilled(pos.ID, fulfillment); err != nil {
		// Position was removed or already terminal while the purchase was
		// in flight; discard the result.
		s.logDebug("discarding fulfillment for missing position",
			zap.String("position_id", pos.ID), zap.Error(err))
		return
	}
	metrics.RecordPurchase(pos.Collection, true)

	updated, _ := s.Positions.Get(pos.ID)
	s.appendEvent(ctx, core.TradeEvent{
		PositionID: pos.ID,
		Collection: pos.Collection,
		Kind:       core.TradeFulfilled,
		AssetID:    fulfillment.AssetID,
		Price:      fulfillment.Price,
		TxHash:     fulfillment.TxHash,
		OccurredAt: s.now(),
	})
	s.notifyFulfilled(updated, fulfillment)
}

// fetchListings samples market state through the cache; only the
// underlying fetch on a miss is gated by the rate limiter.
func (s *Scheduler) fetchListings(ctx context.Context, collection string) ([]core.Listing, error) {
	return s.Listings.GetOrSet(ctx, collection, func(ctx context.Context) ([]core.Listing, error) {
		if s.Limiter != nil {
			if err := s.Limiter.Acquire(ctx, collection); err != nil {
				return nil, err
			}
		}
		fetchCtx, cancel := context.WithTimeout(ctx, s.Config.FetchTimeout)
		defer cancel()
		return s.Market.FetchListings(fetchCtx, collection)
	}, s.Config.ListingsTTL)
}

func (s *Scheduler) submit(ctx context.Context, pos core.TriggerPosition, listing core.Listing) (*core.TransferReceipt, error) {
	return Retry(ctx, s.Config.Retry, func(ctx context.Context) (*core.TransferReceipt, error) {
		submitCtx, cancel := context.WithTimeout(ctx, s.Config.SubmitTimeout)
		defer cancel()
		receipt, err := s.Execution.Submit(submitCtx, core.TransferRequest{
			Destination: listing.Seller,
			Amount:      listing.Price,
			Unit:        listing.Unit,
			Reference:   listing.ListingID,
		})
		if err != nil {
			return nil, err
		}
		if receipt.Status == core.TransferFailed {
			return nil, &core.APIError{StatusCode: 0, Message: "transfer reported failed"}
		}
		return receipt, nil
	})
}

func (s *Scheduler) recordFailure(ctx context.Context, pos core.TriggerPosition, cause error) {
	updated, exhausted, err := s.Positions.RecordFailure(pos.ID, cause)
	if err != nil {
		// Removed or terminal while the submission was in flight.
		return
	}
	metrics.RecordPurchase(pos.Collection, false)
	if exhausted {
		s.appendEvent(ctx, core.TradeEvent{
			PositionID: pos.ID,
			Collection: pos.Collection,
			Kind:       core.TradeFailed,
			Error:      cause.Error(),
			OccurredAt: s.now(),
		})
	}
	s.notifyError(updated, cause)
}

func (s *Scheduler) appendEvent(ctx context.Context, event core.TradeEvent) {
	if s.Events == nil {
		return
	}
	if err := s.Events.AppendTradeEvent(ctx, event); err != nil {
		s.logDebug("trade event append failed", zap.Error(err))
	}
}

func (s *Scheduler) notifyFulfilled(pos core.TriggerPosition, f core.Fulfillment) {
	s.mu.Lock()
	observers := append([]FulfilledFunc(nil), s.fulfilled...)
	s.mu.Unlock()
	for _, fn := range observers {
		s.invoke(func() { fn(pos, f) })
	}
}

func (s *Scheduler) notifyError(pos core.TriggerPosition, err error) {
	s.mu.Lock()
	observers := append([]ErrorFunc(nil), s.errors...)
	s.mu.Unlock()
	for _, fn := range observers {
		s.invoke(func() { fn(pos, err) })
	}
}

// invoke isolates one observer: a panicking callback must not abort the
// remaining positions or observers.
func (s *Scheduler) invoke(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			s.logDebug("observer panicked", zap.Any("panic", r))
		}
	}()
	fn()
}

// matchListing returns the cheapest listing at or below maxPrice. The
// boundary is inclusive: price == maxPrice triggers.
func matchListing(listings []core.Listing, maxPrice float64) (core.Listing, bool) {
	best := core.Listing{}
	found := false
	for _, l := range listings {
		price := l.NormalizedPrice()
		if price > maxPrice {
			continue
		}
		if !found || price < best.NormalizedPrice() {
			best = l
			found = true
		}
	}
	return best, found
}

func (s *Scheduler) now() time.Time {
	if s != nil && s.Clock != nil {
		return s.Clock()
	}
	return time.Now().UTC()
}

func (s *Scheduler) logDebug(msg string, fields ...zap.Field) {
	if s.Logger == nil {
		return
	}
	s.Logger.Debug(msg, fields...)
}
