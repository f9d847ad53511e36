// Package handler contains chi HTTP handlers that translate HTTP
// requests/responses to and from the service layer.
package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"eventlottery/internal/admission"
	"eventlottery/internal/draw"
	"eventlottery/internal/lifecycle"
	"eventlottery/internal/model"
	"eventlottery/internal/service"
	"eventlottery/internal/storage"
)

// LotteryHandler holds all HTTP handlers for the event lottery API.
type LotteryHandler struct {
	svc *service.LotteryService
}

// NewLotteryHandler constructs a LotteryHandler.
func NewLotteryHandler(svc *service.LotteryService) *LotteryHandler {
	return &LotteryHandler{svc: svc}
}

// ─── Helper utilities ─────────────────────────────────────────────────────────

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, model.ErrorResponse{Error: msg})
}

func decodeJSON(r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(nil, r.Body, 1<<20) // 1 MB limit
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

// writeDomainError maps core sentinel errors to HTTP statuses so callers
// always see the specific rejection, never a generic failure.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, storage.ErrAlreadyRegistered):
		writeError(w, http.StatusConflict, "you are already registered for this event")
	case errors.Is(err, storage.ErrStaleState):
		writeError(w, http.StatusConflict, "registration changed concurrently, retry")
	case errors.Is(err, admission.ErrRegistrationClosed):
		writeError(w, http.StatusForbidden, "registration is closed for this event")
	case errors.Is(err, admission.ErrWaitlistFull):
		writeError(w, http.StatusConflict, "the waitlist for this event is full")
	case errors.Is(err, admission.ErrBusy):
		writeError(w, http.StatusServiceUnavailable, "event is busy, try again")
	case errors.Is(err, draw.ErrInvalidCount):
		writeError(w, http.StatusBadRequest, "draw count must be positive")
	case errors.Is(err, draw.ErrExceedsCapacity):
		writeError(w, http.StatusConflict, "draw count exceeds available capacity")
	case errors.Is(err, draw.ErrInsufficientWaiting):
		writeError(w, http.StatusConflict, "not enough waiting entrants for draw")
	case errors.Is(err, lifecycle.ErrInvalidTransition):
		writeError(w, http.StatusConflict, "registration is not in a state that allows this action")
	case errors.Is(err, lifecycle.ErrEventFull):
		writeError(w, http.StatusConflict, "event is at confirmed capacity")
	default:
		writeError(w, http.StatusBadRequest, err.Error())
	}
}

// ─── Event handlers ───────────────────────────────────────────────────────────

// CreateEvent handles POST /events
// Creates a new event with capacity, waitlist cap, and registration window.
func (h *LotteryHandler) CreateEvent(w http.ResponseWriter, r *http.Request) {
	var req model.CreateEventRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	event, err := h.svc.CreateEvent(r.Context(), req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	writeJSON(w, http.StatusCreated, event)
}

// ListEvents handles GET /events
func (h *LotteryHandler) ListEvents(w http.ResponseWriter, r *http.Request) {
	events, err := h.svc.ListEvents(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list events")
		return
	}

	// Return an empty array rather than null for better client compatibility.
	if events == nil {
		events = []model.Event{}
	}

	writeJSON(w, http.StatusOK, events)
}

// GetEvent handles GET /events/{id}
func (h *LotteryHandler) GetEvent(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	event, err := h.svc.GetEvent(r.Context(), id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusNotFound, "event not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to get event")
		return
	}

	writeJSON(w, http.StatusOK, event)
}

// ─── Admission handlers ───────────────────────────────────────────────────────

// Join handles POST /events/{id}/join
// Admits the entrant to the event's waitlist.
func (h *LotteryHandler) Join(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req model.JoinRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	reg, err := h.svc.Join(r.Context(), id, req.EntrantID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, reg)
}

// Leave handles POST /events/{id}/leave
// Cancels the entrant's waiting or selected registration.
func (h *LotteryHandler) Leave(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req model.JoinRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	if err := h.svc.Leave(r.Context(), id, req.EntrantID); err != nil {
		writeDomainError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Waitlist handles GET /events/{id}/waitlist
// Returns a snapshot of waiting entrant IDs in insertion order.
func (h *LotteryHandler) Waitlist(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	members, err := h.svc.Waitlist(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	if members == nil {
		members = []string{}
	}

	writeJSON(w, http.StatusOK, members)
}

// ListRegistrations handles GET /events/{id}/registrations
// Returns all registrations for an event, terminal records included.
func (h *LotteryHandler) ListRegistrations(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	regs, err := h.svc.ListRegistrations(r.Context(), id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusNotFound, "event not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to list registrations")
		return
	}

	if regs == nil {
		regs = []model.Registration{}
	}

	writeJSON(w, http.StatusOK, regs)
}

// ─── Draw and response handlers ───────────────────────────────────────────────

// Draw handles POST /events/{id}/draw
// Randomly selects waiting entrants to promote toward attendance.
func (h *LotteryHandler) Draw(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req model.DrawRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	outcome, err := h.svc.Draw(r.Context(), id, req.Count)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, outcome)
}

// Confirm handles POST /events/{id}/registrations/{entrant}/confirm
func (h *LotteryHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	reg, err := h.svc.Confirm(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "entrant"))
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, reg)
}

// Decline handles POST /events/{id}/registrations/{entrant}/decline
func (h *LotteryHandler) Decline(w http.ResponseWriter, r *http.Request) {
	reg, err := h.svc.Decline(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "entrant"))
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, reg)
}

// ─── Health check ─────────────────────────────────────────────────────────────

// HealthCheck handles GET /health
func HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
