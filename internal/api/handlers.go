package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/meetpatell07/GBC-EventBooking/internal/domain/booking"
	"github.com/meetpatell07/GBC-EventBooking/internal/usecase"
)

type Handlers struct {
	createBookingUC *usecase.CreateBooking
	getBookingUC    *usecase.GetBooking
	cancelBookingUC *usecase.CancelBooking
}

func NewHandlers(createBookingUC *usecase.CreateBooking, getBookingUC *usecase.GetBooking, cancelBookingUC *usecase.CancelBooking) *Handlers {
	return &Handlers{
		createBookingUC: createBookingUC,
		getBookingUC:    getBookingUC,
		cancelBookingUC: cancelBookingUC,
	}
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{
		"error":   code,
		"message": message,
	})
}

// writeUsecaseError maps domain errors onto the API error codes; anything
// unrecognized is infrastructure.
func writeUsecaseError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, usecase.ErrValidation):
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
	case errors.Is(err, booking.ErrRoomUnavailable):
		writeError(w, http.StatusConflict, "room_unavailable", "the room is already booked for the requested window")
	case errors.Is(err, booking.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", "booking does not exist")
	default:
		writeError(w, http.StatusInternalServerError, "infrastructure_error", "request could not be completed")
	}
}

func (h *Handlers) CreateBooking(w http.ResponseWriter, r *http.Request) {
	var params usecase.CreateBookingParams
	if err := json.NewDecoder(r.Body).Decode(&params); err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", "invalid request body")
		return
	}

	id, err := h.createBookingUC.Execute(r.Context(), params)
	if err != nil {
		writeUsecaseError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]string{
		"booking_id": id,
		"status":     booking.StatusPending,
	})
}

func (h *Handlers) GetBooking(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "validation_failed", "missing booking id")
		return
	}

	b, err := h.getBookingUC.Execute(r.Context(), id)
	if err != nil {
		writeUsecaseError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	json.NewEncoder(w).Encode(b)
}

func (h *Handlers) ListBookings(w http.ResponseWriter, r *http.Request) {
	requesterID := r.URL.Query().Get("requester_id")
	if requesterID == "" {
		writeError(w, http.StatusBadRequest, "validation_failed", "requester_id query parameter is required")
		return
	}

	bookings, err := h.getBookingUC.ListByRequester(r.Context(), requesterID)
	if err != nil {
		writeUsecaseError(w, err)
		return
	}
	if bookings == nil {
		bookings = []*booking.Booking{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(bookings)
}

func (h *Handlers) CancelBooking(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "validation_failed", "missing booking id")
		return
	}

	if err := h.cancelBookingUC.Execute(r.Context(), id); err != nil {
		writeUsecaseError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]string{
		"booking_id": id,
		"status":     booking.StatusCancelled,
	})
}
