package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	ChiMiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/meetpatell07/GBC-EventBooking/internal/domain/approval"
)

// DecisionReader is the read slice of the approval repository the query
// API needs.
type DecisionReader interface {
	GetByBookingID(ctx context.Context, bookingID string) (*approval.Decision, error)
}

// NewApprovalRouter serves the approval service's query surface: the
// decision for a booking. Writes only happen through the event stream.
func NewApprovalRouter(decisions DecisionReader) http.Handler {
	r := chi.NewRouter()

	r.Use(ChiMiddleware.Logger)
	r.Use(ChiMiddleware.Recoverer)
	r.Use(ChiMiddleware.RequestID)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	r.Get("/approvals/{bookingID}", func(w http.ResponseWriter, r *http.Request) {
		bookingID := chi.URLParam(r, "bookingID")
		if bookingID == "" {
			writeError(w, http.StatusBadRequest, "validation_failed", "missing booking id")
			return
		}

		d, err := decisions.GetByBookingID(r.Context(), bookingID)
		if err != nil {
			if errors.Is(err, approval.ErrNotFound) {
				writeError(w, http.StatusNotFound, "not_found", "no decision for this booking yet")
				return
			}
			writeError(w, http.StatusInternalServerError, "infrastructure_error", "request could not be completed")
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
		json.NewEncoder(w).Encode(d)
	})

	return r
}
