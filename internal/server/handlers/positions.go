package handlers

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/floorlens/floorlens/internal/core"
	"github.com/floorlens/floorlens/internal/core/engine"
	apperrors "github.com/floorlens/floorlens/internal/errors"
)

// PositionPersister mirrors trigger position changes to durable storage.
type PositionPersister interface {
	SavePosition(ctx context.Context, pos core.TriggerPosition) error
	DeletePosition(ctx context.Context, id string) error
}

// PositionsHandler exposes trigger positions over HTTP.
type PositionsHandler struct {
	Positions *engine.PositionStore
	Persister PositionPersister
}

// CreateTriggerRequest is the request body for creating a trigger.
type CreateTriggerRequest struct {
	Collection  string  `json:"collection"`
	MaxPrice    float64 `json:"max_price"`
	Unit        string  `json:"unit,omitempty"`
	MaxRetries  int     `json:"max_retries,omitempty"`
	StopOnError bool    `json:"stop_on_error,omitempty"`
}

// Routes mounts the trigger endpoints on a chi router.
func (h *PositionsHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.List)
	r.Post("/", h.Create)
	r.Get("/{id}", h.Get)
	r.Delete("/{id}", h.Remove)
	r.Post("/{id}/stop", h.Stop)
	r.Post("/{id}/resume", h.Resume)
	return r
}

// List returns all trigger positions.
func (h *PositionsHandler) List(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.Positions.List())
}

// Create registers a new trigger position.
func (h *PositionsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateTriggerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, r, apperrors.NewInvalidInputError("request body is not valid JSON"))
		return
	}

	pos, err := h.Positions.Create(engine.TriggerParams{
		Collection:  req.Collection,
		MaxPrice:    req.MaxPrice,
		Unit:        core.PaymentUnit(req.Unit),
		MaxRetries:  req.MaxRetries,
		StopOnError: req.StopOnError,
	})
	if err != nil {
		respondWithError(w, r, apperrors.NewValidationError(err.Error()))
		return
	}

	h.persist(r, pos)
	respondJSON(w, http.StatusCreated, pos)
}

// Get returns a single trigger position.
func (h *PositionsHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	pos, ok := h.Positions.Get(id)
	if !ok {
		respondWithError(w, r, apperrors.NewNotFoundError("trigger not found"))
		return
	}

	respondJSON(w, http.StatusOK, pos)
}

// Stop pauses an active trigger.
func (h *PositionsHandler) Stop(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.Positions.Stop)
}

// Resume reactivates a stopped trigger.
func (h *PositionsHandler) Resume(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.Positions.Resume)
}

// Remove deletes a trigger position.
func (h *PositionsHandler) Remove(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !h.Positions.Remove(id) {
		respondWithError(w, r, apperrors.NewNotFoundError("trigger not found"))
		return
	}

	if h.Persister != nil {
		_ = h.Persister.DeletePosition(r.Context(), id)
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *PositionsHandler) transition(w http.ResponseWriter, r *http.Request, op func(string) error) {
	id := chi.URLParam(r, "id")
	if err := op(id); err != nil {
		switch {
		case stderrors.Is(err, engine.ErrPositionNotFound):
			respondWithError(w, r, apperrors.NewNotFoundError("trigger not found"))
		case stderrors.Is(err, engine.ErrPositionTerminal):
			respondWithError(w, r, apperrors.NewConflictError("trigger already reached a terminal state"))
		default:
			respondWithError(w, r, apperrors.NewInternalError(err.Error()))
		}
		return
	}

	pos, _ := h.Positions.Get(id)
	h.persist(r, pos)
	respondJSON(w, http.StatusOK, pos)
}

func (h *PositionsHandler) persist(r *http.Request, pos core.TriggerPosition) {
	if h.Persister == nil {
		return
	}
	_ = h.Persister.SavePosition(r.Context(), pos)
}
