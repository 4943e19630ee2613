package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fulmenhq/gofulmen/logging"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/floorlens/floorlens/internal/core"
	"github.com/floorlens/floorlens/internal/metrics"
)

// ErrAlertNotFound is returned for operations on unknown alert ids.
var ErrAlertNotFound = errors.New("price alert not found")

// AlertFunc observes a threshold crossing.
type AlertFunc func(alert core.PriceAlert, event core.AlertEvent)

// AlertParams configures a new price alert.
type AlertParams struct {
	Collection  string
	Direction   core.AlertDirection
	TargetPrice float64
}

// AlertStore owns price alert records, mirroring the position store's
// ownership rules: engines mutate only through the store.
type AlertStore struct {
	Clock func() time.Time

	mu     sync.RWMutex
	alerts map[string]*core.PriceAlert
}

// NewAlertStore creates an empty alert store.
func NewAlertStore() *AlertStore {
	return &AlertStore{alerts: make(map[string]*core.PriceAlert)}
}

// Create validates params and registers a new active alert.
func (s *AlertStore) Create(params AlertParams) (core.PriceAlert, error) {
	collection := strings.TrimSpace(params.Collection)
	if collection == "" {
		return core.PriceAlert{}, errors.New("collection is required")
	}
	if params.Direction != core.AlertAbove && params.Direction != core.AlertBelow {
		return core.PriceAlert{}, fmt.Errorf("unsupported alert direction %q", params.Direction)
	}
	if params.TargetPrice <= 0 {
		return core.PriceAlert{}, fmt.Errorf("target price must be positive, got %v", params.TargetPrice)
	}

	alert := &core.PriceAlert{
		ID:          uuid.New().String(),
		Collection:  collection,
		Direction:   params.Direction,
		TargetPrice: params.TargetPrice,
		Status:      core.AlertActive,
		CreatedAt:   s.now(),
	}

	s.mu.Lock()
	s.alerts[alert.ID] = alert
	s.mu.Unlock()

	return *alert, nil
}

// Restore inserts a previously persisted alert without validation.
func (s *AlertStore) Restore(alert core.PriceAlert) {
	if alert.ID == "" {
		return
	}

	copied := alert
	s.mu.Lock()
	s.alerts[copied.ID] = &copied
	s.mu.Unlock()
}

// Get returns a snapshot of one alert.
func (s *AlertStore) Get(id string) (core.PriceAlert, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	alert, ok := s.alerts[id]
	if !ok {
		return core.PriceAlert{}, false
	}
	return *alert, true
}

// List returns snapshots of all alerts ordered by creation time.
func (s *AlertStore) List() []core.PriceAlert {
	s.mu.RLock()
	out := make([]core.PriceAlert, 0, len(s.alerts))
	for _, alert := range s.alerts {
		out = append(out, *alert)
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// ListActive returns snapshots of alerts eligible for polling.
func (s *AlertStore) ListActive() []core.PriceAlert {
	all := s.List()
	out := all[:0]
	for _, alert := range all {
		if alert.Status == core.AlertActive {
			out = append(out, alert)
		}
	}
	return out
}

// Deactivate suspends an alert without removing it.
func (s *AlertStore) Deactivate(id string) error {
	return s.update(id, func(alert *core.PriceAlert) {
		alert.Status = core.AlertInactive
	})
}

// Activate re-enables a suspended alert.
func (s *AlertStore) Activate(id string) error {
	return s.update(id, func(alert *core.PriceAlert) {
		alert.Status = core.AlertActive
	})
}

// Remove deletes an alert. Removing is idempotent.
func (s *AlertStore) Remove(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.alerts[id]; !ok {
		return false
	}
	delete(s.alerts, id)
	return true
}

// Observe stamps poll results onto the alert. A missing alert means the
// poll raced a removal and the result is discarded.
func (s *AlertStore) Observe(id string, at time.Time, price float64, triggered bool) error {
	return s.update(id, func(alert *core.PriceAlert) {
		alert.LastCheckedAt = at
		alert.LastPrice = price
		if triggered {
			alert.LastTriggeredAt = at
		}
	})
}

func (s *AlertStore) update(id string, fn func(*core.PriceAlert)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	alert, ok := s.alerts[id]
	if !ok {
		return ErrAlertNotFound
	}
	fn(alert)
	return nil
}

func (s *AlertStore) now() time.Time {
	if s != nil && s.Clock != nil {
		return s.Clock()
	}
	return time.Now().UTC()
}

// AlertEngineConfig tunes the alert polling loop.
type AlertEngineConfig struct {
	Interval     time.Duration
	FetchTimeout time.Duration
	ListingsTTL  time.Duration
}

// DefaultAlertEngineConfig matches the engine's documented defaults.
var DefaultAlertEngineConfig = AlertEngineConfig{
	Interval:     time.Minute,
	FetchTimeout: 10 * time.Second,
	ListingsTTL:  30 * time.Second,
}

// withDefaults fills unset fields without touching caller-set ones.
func (c AlertEngineConfig) withDefaults() AlertEngineConfig {
	if c.Interval <= 0 {
		c.Interval = DefaultAlertEngineConfig.Interval
	}
	if c.FetchTimeout <= 0 {
		c.FetchTimeout = DefaultAlertEngineConfig.FetchTimeout
	}
	if c.ListingsTTL <= 0 {
		c.ListingsTTL = DefaultAlertEngineConfig.ListingsTTL
	}
	return c
}

// AlertEngine polls floor prices for active alerts and fires observer
// callbacks on inclusive threshold crossings. Alerts are recurring: a
// triggered alert stays active and fires again on the next crossing,
// unlike trigger positions which are one-shot intents.
type AlertEngine struct {
	Alerts   *AlertStore
	Market   core.MarketDataPort
	Limiter  *RateLimiter
	Listings *Cache[[]core.Listing]
	Logger   *logging.Logger
	Clock    func() time.Time
	Config   AlertEngineConfig

	mu       sync.Mutex
	cancel   context.CancelFunc
	done     chan struct{}
	global   []AlertFunc
	perAlert map[string][]AlertFunc
}

// Subscribe registers an observer for one alert id. Registrations are
// additive, never overwritten.
func (e *AlertEngine) Subscribe(alertID string, fn AlertFunc) {
	if fn == nil {
		return
	}
	e.mu.Lock()
	if e.perAlert == nil {
		e.perAlert = make(map[string][]AlertFunc)
	}
	e.perAlert[alertID] = append(e.perAlert[alertID], fn)
	e.mu.Unlock()
}

// SubscribeAll registers an observer for every alert.
func (e *AlertEngine) SubscribeAll(fn AlertFunc) {
	if fn == nil {
		return
	}
	e.mu.Lock()
	e.global = append(e.global, fn)
	e.mu.Unlock()
}

// Start launches the polling loop. It is a no-op if already running.
func (e *AlertEngine) Start(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.cancel != nil {
		return
	}
	e.Config = e.Config.withDefaults()
	runCtx, cancel := context.WithCancel(ctx)
	e.cancel = cancel
	e.done = make(chan struct{})
	// The loop closes its own done channel; Stop nils the field, so the
	// goroutine must not read it back.
	go e.run(runCtx, e.done)
}

// Stop halts the loop and waits for any in-flight tick to finish.
func (e *AlertEngine) Stop() {
	e.mu.Lock()
	cancel := e.cancel
	done := e.done
	e.cancel = nil
	e.done = nil
	e.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (e *AlertEngine) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(e.Config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.Tick(ctx)
		}
	}
}

// Tick evaluates every active alert once.
func (e *AlertEngine) Tick(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	metrics.RecordTick("alert")
	for _, alert := range e.Alerts.ListActive() {
		if ctx.Err() != nil {
			return
		}
		e.process(ctx, alert)
	}
}

func (e *AlertEngine) process(ctx context.Context, alert core.PriceAlert) {
	listings, err := e.fetchListings(ctx, alert.Collection)
	if err != nil {
		if e.Logger != nil {
			e.Logger.Debug("alert listings fetch failed",
				zap.String("alert_id", alert.ID),
				zap.String("collection", alert.Collection),
				zap.Error(err))
		}
		return
	}

	price, ok := floorPrice(listings)
	if !ok {
		return
	}

	now := e.now()
	triggered := crossed(alert.Direction, alert.TargetPrice, price)
	if err := e.Alerts.Observe(alert.ID, now, price, triggered); err != nil {
		// Alert removed while the fetch was in flight; discard.
		return
	}
	if !triggered {
		return
	}
	metrics.RecordAlertFired(alert.Collection)

	updated, ok := e.Alerts.Get(alert.ID)
	if !ok {
		return
	}
	event := core.AlertEvent{
		AlertID:    alert.ID,
		Collection: alert.Collection,
		Direction:  alert.Direction,
		Target:     alert.TargetPrice,
		Price:      price,
		ObservedAt: now,
	}
	e.notify(updated, event)
}

func (e *AlertEngine) fetchListings(ctx context.Context, collection string) ([]core.Listing, error) {
	return e.Listings.GetOrSet(ctx, collection, func(ctx context.Context) ([]core.Listing, error) {
		if e.Limiter != nil {
			if err := e.Limiter.Acquire(ctx, collection); err != nil {
				return nil, err
			}
		}
		fetchCtx, cancel := context.WithTimeout(ctx, e.Config.FetchTimeout)
		defer cancel()
		return e.Market.FetchListings(fetchCtx, collection)
	}, e.Config.ListingsTTL)
}

func (e *AlertEngine) notify(alert core.PriceAlert, event core.AlertEvent) {
	e.mu.Lock()
	observers := append([]AlertFunc(nil), e.global...)
	observers = append(observers, e.perAlert[alert.ID]...)
	e.mu.Unlock()
	for _, fn := range observers {
		e.invoke(func() { fn(alert, event) })
	}
}

// invoke isolates one observer; a panicking callback must not silence the
// rest.
func (e *AlertEngine) invoke(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			if e.Logger != nil {
				e.Logger.Debug("alert observer panicked", zap.Any("panic", r))
			}
		}
	}()
	fn()
}

func (e *AlertEngine) now() time.Time {
	if e != nil && e.Clock != nil {
		return e.Clock()
	}
	return time.Now().UTC()
}

// floorPrice returns the lowest normalized price among listings.
func floorPrice(listings []core.Listing) (float64, bool) {
	found := false
	floor := 0.0
	for _, l := range listings {
		price := l.NormalizedPrice()
		if !found || price < floor {
			floor = price
			found = true
		}
	}
	return floor, found
}

// crossed evaluates the threshold with an inclusive boundary: a price
// equal to the target triggers for both directions.
func crossed(direction core.AlertDirection, target, price float64) bool {
	switch direction {
	case core.AlertAbove:
		return price >= target
	case core.AlertBelow:
		return price <= target
	default:
		return false
	}
}
