package handlers

import (
	"encoding/json"
	stderrors "errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/floorlens/floorlens/internal/core"
	"github.com/floorlens/floorlens/internal/core/engine"
	apperrors "github.com/floorlens/floorlens/internal/errors"
)

// AlertsHandler exposes price alerts over HTTP.
type AlertsHandler struct {
	Alerts *engine.AlertStore
}

// CreateAlertRequest is the request body for creating a price alert.
type CreateAlertRequest struct {
	Collection  string  `json:"collection"`
	Direction   string  `json:"direction"`
	TargetPrice float64 `json:"target_price"`
}

// Routes mounts the alert endpoints on a chi router.
func (h *AlertsHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.List)
	r.Post("/", h.Create)
	r.Get("/{id}", h.Get)
	r.Delete("/{id}", h.Remove)
	r.Post("/{id}/deactivate", h.Deactivate)
	r.Post("/{id}/activate", h.Activate)
	return r
}

// List returns all price alerts.
func (h *AlertsHandler) List(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.Alerts.List())
}

// Create registers a new price alert.
func (h *AlertsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateAlertRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, r, apperrors.NewInvalidInputError("request body is not valid JSON"))
		return
	}

	alert, err := h.Alerts.Create(engine.AlertParams{
		Collection:  req.Collection,
		Direction:   core.AlertDirection(req.Direction),
		TargetPrice: req.TargetPrice,
	})
	if err != nil {
		respondWithError(w, r, apperrors.NewValidationError(err.Error()))
		return
	}

	respondJSON(w, http.StatusCreated, alert)
}

// Get returns a single price alert.
func (h *AlertsHandler) Get(w http.ResponseWriter, r *http.Request) {
	alert, ok := h.Alerts.Get(chi.URLParam(r, "id"))
	if !ok {
		respondWithError(w, r, apperrors.NewNotFoundError("alert not found"))
		return
	}

	respondJSON(w, http.StatusOK, alert)
}

// Deactivate pauses an alert without removing it.
func (h *AlertsHandler) Deactivate(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.Alerts.Deactivate)
}

// Activate re-enables a paused alert.
func (h *AlertsHandler) Activate(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.Alerts.Activate)
}

// Remove deletes a price alert.
func (h *AlertsHandler) Remove(w http.ResponseWriter, r *http.Request) {
	if !h.Alerts.Remove(chi.URLParam(r, "id")) {
		respondWithError(w, r, apperrors.NewNotFoundError("alert not found"))
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *AlertsHandler) transition(w http.ResponseWriter, r *http.Request, op func(string) error) {
	id := chi.URLParam(r, "id")
	if err := op(id); err != nil {
		if stderrors.Is(err, engine.ErrAlertNotFound) {
			respondWithError(w, r, apperrors.NewNotFoundError("alert not found"))
			return
		}
		respondWithError(w, r, apperrors.NewInternalError(err.Error()))
		return
	}

	alert, _ := h.Alerts.Get(id)
	respondJSON(w, http.StatusOK, alert)
}
