package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/floorlens/floorlens/internal/core/engine"
	apperrors "github.com/floorlens/floorlens/internal/errors"
)

// RateLimitsHandler exposes per-service admission state over HTTP.
type RateLimitsHandler struct {
	Limiter *engine.RateLimiter
}

// RateLimitState describes the current window for one service.
type RateLimitState struct {
	Service     string `json:"service"`
	MaxRequests int    `json:"max_requests"`
	Window      string `json:"window"`
	InWindow    int    `json:"in_window"`
	WaitMS      int64  `json:"wait_ms"`
}

// UpdateRateLimitRequest is the request body for updating a service limit.
type UpdateRateLimitRequest struct {
	MaxRequests int    `json:"max_requests"`
	Window      string `json:"window"`
}

// Routes mounts the rate-limit endpoints on a chi router.
func (h *RateLimitsHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.List)
	r.Get("/{service}", h.Get)
	r.Put("/{service}", h.Update)
	r.Delete("/{service}", h.Reset)
	return r
}

// List returns the window state for every known service.
func (h *RateLimitsHandler) List(w http.ResponseWriter, r *http.Request) {
	services := h.Limiter.Services()
	states := make([]RateLimitState, 0, len(services))
	for _, service := range services {
		states = append(states, h.state(service))
	}

	respondJSON(w, http.StatusOK, states)
}

// Get returns the window state for one service.
func (h *RateLimitsHandler) Get(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.state(chi.URLParam(r, "service")))
}

// Update replaces the limit configuration for one service.
func (h *RateLimitsHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req UpdateRateLimitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, r, apperrors.NewInvalidInputError("request body is not valid JSON"))
		return
	}

	if req.MaxRequests < 1 {
		respondWithError(w, r, apperrors.NewValidationError("max_requests must be at least 1"))
		return
	}

	window, err := time.ParseDuration(req.Window)
	if err != nil || window <= 0 {
		respondWithError(w, r, apperrors.NewValidationError("window must be a positive duration"))
		return
	}

	service := chi.URLParam(r, "service")
	h.Limiter.SetLimit(service, engine.RateLimitConfig{
		MaxRequests: req.MaxRequests,
		Window:      window,
	})

	respondJSON(w, http.StatusOK, h.state(service))
}

// Reset clears the recorded window for one service.
func (h *RateLimitsHandler) Reset(w http.ResponseWriter, r *http.Request) {
	h.Limiter.Reset(chi.URLParam(r, "service"))
	w.WriteHeader(http.StatusNoContent)
}

func (h *RateLimitsHandler) state(service string) RateLimitState {
	cfg := h.Limiter.Limit(service)
	return RateLimitState{
		Service:     service,
		MaxRequests: cfg.MaxRequests,
		Window:      cfg.Window.String(),
		InWindow:    h.Limiter.InWindow(service),
		WaitMS:      h.Limiter.WaitTime(service).Milliseconds(),
	}
}
