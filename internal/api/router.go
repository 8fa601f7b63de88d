package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	ChiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"

	"github.com/meetpatell07/GBC-EventBooking/internal/api/middleware"
)

func NewRouter(h *Handlers, redisClient *redis.Client) http.Handler {
	r := chi.NewRouter()

	r.Use(ChiMiddleware.Logger)
	r.Use(ChiMiddleware.Recoverer)
	r.Use(ChiMiddleware.RequestID)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	// Idempotent booking creation: a retried POST with the same
	// Idempotency-Key does not create a second booking.
	r.With(middleware.Idempotency(redisClient)).Post("/bookings", h.CreateBooking)

	r.Get("/bookings/{id}", h.GetBooking)
	r.Get("/bookings", h.ListBookings)
	r.Post("/bookings/{id}/cancel", h.CancelBooking)

	return r
}
