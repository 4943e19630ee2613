package engine

import (
	"context"
	"sync"
	"time"
)

// RateLimitConfig bounds admissions for one service: at most MaxRequests
// within any trailing Window.
type RateLimitConfig struct {
	MaxRequests int
	Window      time.Duration
}

// DefaultRateLimit is applied to services without an explicit override.
var DefaultRateLimit = RateLimitConfig{MaxRequests: 60, Window: time.Minute}

// RateLimiter performs per-service sliding-window admission control.
//
// Each service keeps an ordered log of admission timestamps. Entries older
// than the window are pruned lazily on access. Waiters contending for the
// same service are admitted in arrival order; services never block each
// other.
type RateLimiter struct {
	Clock func() time.Time

	mu       sync.Mutex
	defaults RateLimitConfig
	configs  map[string]RateLimitConfig
	services map[string]*serviceWindow
}

type serviceWindow struct {
	mu      sync.Mutex
	log     []time.Time
	waiters []*waiter
}

type waiter struct {
	ready chan struct{}
}

// NewRateLimiter creates a limiter with the given default config. Invalid
// defaults fall back to DefaultRateLimit.
func NewRateLimiter(defaults RateLimitConfig) *RateLimiter {
	if defaults.MaxRequests < 1 || defaults.Window <= 0 {
		defaults = DefaultRateLimit
	}
	return &RateLimiter{
		defaults: defaults,
		configs:  make(map[string]RateLimitConfig),
		services: make(map[string]*serviceWindow),
	}
}

// SetLimit replaces the config for a service. The change applies to
// subsequent evaluations; admissions already recorded are reinterpreted
// under the new window width on the next prune, not migrated.
func (r *RateLimiter) SetLimit(service string, cfg RateLimitConfig) {
	if r == nil || cfg.MaxRequests < 1 || cfg.Window <= 0 {
		return
	}
	r.mu.Lock()
	r.configs[service] = cfg
	r.mu.Unlock()

	// A wider limit may free the head waiter immediately.
	w := r.window(service)
	w.mu.Lock()
	w.signalHead()
	w.mu.Unlock()
}

// Limit returns the effective config for a service.
func (r *RateLimiter) Limit(service string) RateLimitConfig {
	if r == nil {
		return DefaultRateLimit
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if cfg, ok := r.configs[service]; ok {
		return cfg
	}
	return r.defaults
}

// Configs returns a snapshot of all per-service overrides.
func (r *RateLimiter) Configs() map[string]RateLimitConfig {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]RateLimitConfig, len(r.configs))
	for service, cfg := range r.configs {
		out[service] = cfg
	}
	return out
}

// Services returns the names of all services with recorded state.
func (r *RateLimiter) Services() []string {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.services))
	for service := range r.services {
		out = append(out, service)
	}
	return out
}

// InWindow reports the number of admissions currently inside the service's
// window.
func (r *RateLimiter) InWindow(service string) int {
	cfg := r.Limit(service)
	w := r.window(service)
	w.mu.Lock()
	defer w.mu.Unlock()
	w.prune(r.now(), cfg.Window)
	return len(w.log)
}

// TryAcquire records an admission if a slot is free right now. It never
// blocks; it returns false exactly when Acquire would have to wait.
func (r *RateLimiter) TryAcquire(service string) bool {
	cfg := r.Limit(service)
	w := r.window(service)
	w.mu.Lock()
	defer w.mu.Unlock()
	now := r.now()
	w.prune(now, cfg.Window)
	if len(w.waiters) == 0 && len(w.log) < cfg.MaxRequests {
		w.log = append(w.log, now)
		return true
	}
	return false
}

// WaitTime returns the duration until the next slot frees for a service,
// or zero if a request would be admitted immediately.
func (r *RateLimiter) WaitTime(service string) time.Duration {
	cfg := r.Limit(service)
	w := r.window(service)
	w.mu.Lock()
	defer w.mu.Unlock()
	now := r.now()
	w.prune(now, cfg.Window)
	if len(w.waiters) == 0 && len(w.log) < cfg.MaxRequests {
		return 0
	}
	if len(w.log) == 0 {
		// Queued waiters are pending wake on an empty log. A new request
		// still yields to them, so report a minimal positive wait to stay
		// consistent with TryAcquire returning false here.
		return time.Millisecond
	}
	wait := w.log[0].Add(cfg.Window).Sub(now)
	if wait < 0 {
		return 0
	}
	return wait
}

// Acquire blocks until an admission slot is free for the service, then
// records the admission. Waiters on the same service are served in FIFO
// order. The wait re-evaluates after each computed delay instead of
// sleeping a whole window, since earlier waiters or config updates may
// change the picture. Returns ctx.Err() if the context ends first.
func (r *RateLimiter) Acquire(ctx context.Context, service string) error {
	if ctx == nil {
		ctx = context.Background()
	}

	cfg := r.Limit(service)
	w := r.window(service)

	w.mu.Lock()
	now := r.now()
	w.prune(now, cfg.Window)
	if len(w.waiters) == 0 && len(w.log) < cfg.MaxRequests {
		w.log = append(w.log, now)
		w.mu.Unlock()
		return nil
	}
	me := &waiter{ready: make(chan struct{}, 1)}
	w.waiters = append(w.waiters, me)
	if w.waiters[0] == me {
		w.scheduleWake(r.waitLocked(w, cfg))
	}
	w.mu.Unlock()

	for {
		select {
		case <-ctx.Done():
			w.mu.Lock()
			w.remove(me)
			w.signalHead()
			w.mu.Unlock()
			return ctx.Err()
		case <-me.ready:
			w.mu.Lock()
			cfg = r.Limit(service)
			now := r.now()
			w.prune(now, cfg.Window)
			if len(w.waiters) > 0 && w.waiters[0] == me {
				if len(w.log) < cfg.MaxRequests {
					w.waiters = w.waiters[1:]
					w.log = append(w.log, now)
					if len(w.waiters) > 0 {
						if len(w.log) < cfg.MaxRequests {
							w.signalHead()
						} else {
							w.scheduleWake(r.waitLocked(w, cfg))
						}
					}
					w.mu.Unlock()
					return nil
				}
				w.scheduleWake(r.waitLocked(w, cfg))
			}
			w.mu.Unlock()
		}
	}
}

// Reset clears the admission log for one service.
func (r *RateLimiter) Reset(service string) {
	if r == nil {
		return
	}
	w := r.window(service)
	w.mu.Lock()
	w.log = nil
	w.signalHead()
	w.mu.Unlock()
}

// ResetAll clears admission logs for every service.
func (r *RateLimiter) ResetAll() {
	if r == nil {
		return
	}
	for _, service := range r.Services() {
		r.Reset(service)
	}
}

func (r *RateLimiter) window(service string) *serviceWindow {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.services[service]
	if !ok {
		w = &serviceWindow{}
		r.services[service] = w
	}
	return w
}

// waitLocked computes the delay until the oldest admission ages out.
// Caller holds w.mu.
func (r *RateLimiter) waitLocked(w *serviceWindow, cfg RateLimitConfig) time.Duration {
	if len(w.log) == 0 {
		return 0
	}
	wait := w.log[0].Add(cfg.Window).Sub(r.now())
	if wait < 0 {
		return 0
	}
	return wait
}

func (r *RateLimiter) now() time.Time {
	if r != nil && r.Clock != nil {
		return r.Clock()
	}
	return time.Now().UTC()
}

// prune drops admissions that have aged out of the window.
// Caller holds w.mu.
func (w *serviceWindow) prune(now time.Time, window time.Duration) {
	cutoff := now.Add(-window)
	idx := 0
	for idx < len(w.log) && !w.log[idx].After(cutoff) {
		idx++
	}
	if idx > 0 {
		w.log = append([]time.Time(nil), w.log[idx:]...)
	}
}

// signalHead wakes the first waiter, if any. Caller holds w.mu.
func (w *serviceWindow) signalHead() {
	if len(w.waiters) == 0 {
		return
	}
	select {
	case w.waiters[0].ready <- struct{}{}:
	default:
	}
}

// scheduleWake arranges for the head waiter to re-evaluate after the given
// delay. Caller holds w.mu.
func (w *serviceWindow) scheduleWake(delay time.Duration) {
	if delay <= 0 {
		w.signalHead()
		return
	}
	time.AfterFunc(delay, func() {
		w.mu.Lock()
		w.signalHead()
		w.mu.Unlock()
	})
}

// remove drops a waiter from the queue. Caller holds w.mu.
func (w *serviceWindow) remove(me *waiter) {
	for i, candidate := range w.waiters {
		if candidate == me {
			w.waiters = append(w.waiters[:i], w.waiters[i+1:]...)
			return
		}
	}
}
